// SPDX-License-Identifier: MIT
/*
Package job runs analysis jobs one at a time:
- Preprocess the submitted signal, then estimate key and tempo alongside
  feature extraction on a truncated excerpt
- Broadcast the feature vector to the classifier pool
- Collect one score per dispatched classifier, then merge scores and the
  tonal profile into an Aggregate for the Sink

Concurrency:
- Admission is a single compare-and-swap from Idle; a second Submit fails
  with ErrBusy until the active job has finished
- Every Sink call for a job comes from that job's goroutine
*/
package job

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"trackscan/internal/analysis"
	"trackscan/internal/audio"
	"trackscan/internal/classifier"
	"trackscan/internal/feature"
	"trackscan/internal/log"
	"trackscan/internal/pool"
)

// State is the controller's position in a job's lifecycle.
type State int32

const (
	Idle State = iota
	Preprocessing
	ExtractingFeatures
	AwaitingPredictions
	Aggregating
	Complete
	Failed
)

var stateNames = [...]string{
	Idle:                "idle",
	Preprocessing:       "preprocessing",
	ExtractingFeatures:  "extracting_features",
	AwaitingPredictions: "awaiting_predictions",
	Aggregating:         "aggregating",
	Complete:            "complete",
	Failed:              "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Pool is the classifier pool as seen by the controller.
type Pool interface {
	Ready() bool
	Roster() []classifier.ID
	Dispatch(jobID string, v feature.Vector) []classifier.ID
	// Release ends a job's scoring and takes the stalled classifiers out
	// of dispatch.
	Release(jobID string, stalled []classifier.ID)
	Results() <-chan pool.Reply
}

// Preprocessor converts a submitted signal to mono samples at the analysis rate.
type Preprocessor interface {
	Process(s *audio.Signal) ([]float64, error)
}

// TonalEstimator derives key and tempo from the full preprocessed signal.
type TonalEstimator interface {
	Estimate(ctx context.Context, samples []float64, sampleRate float64) (analysis.TonalProfile, error)
}

// FeatureSource runs one feature extraction per request.
type FeatureSource interface {
	Start(ctx context.Context, req feature.Request) <-chan feature.Response
}

// Options wires the controller's collaborators.
type Options struct {
	Preprocessor Preprocessor
	SampleRate   float64 // Rate the Preprocessor produces.
	Trim         audio.TrimPolicy
	Tonal        TonalEstimator // nil disables tonal estimation.
	Features     FeatureSource
	Timeout      time.Duration // 0 waits indefinitely.
	Sink         Sink
}

// AnalysisJob is the single active job.
type AnalysisJob struct {
	ID        string
	CreatedAt time.Time

	signal  *audio.Signal
	replies chan pool.Reply
	done    chan struct{}
}

// takeSignal hands the submitted buffer over and clears the job's reference.
func (j *AnalysisJob) takeSignal() *audio.Signal {
	s := j.signal
	j.signal = nil
	return s
}

// Controller admits and runs analysis jobs.
type Controller struct {
	opts   Options
	pool   Pool
	logger *log.Logger

	state  atomic.Int32
	active atomic.Pointer[AnalysisJob]
	last   atomic.Pointer[Aggregate]

	ctx        context.Context
	cancel     context.CancelFunc
	routerOnce sync.Once
	wg         sync.WaitGroup
}

// NewController returns an idle controller dispatching to p.
func NewController(p Pool, opts Options) *Controller {
	if opts.Sink == nil {
		opts.Sink = NopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		opts:   opts,
		pool:   p,
		logger: log.New("job"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return State(c.state.Load()) }

// ActiveJob returns the ID of the running job, or "".
func (c *Controller) ActiveJob() string {
	if j := c.active.Load(); j != nil {
		return j.ID
	}
	return ""
}

// Last returns the most recent finished aggregate, or nil.
func (c *Controller) Last() *Aggregate { return c.last.Load() }

// Submit starts a job for sig and returns immediately. The controller owns
// sig from this point. ctx only gates admission; the job itself runs until
// it finishes, the configured timeout passes or the controller is closed.
func (c *Controller) Submit(ctx context.Context, sig *audio.Signal) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.ctx.Err() != nil || !c.pool.Ready() {
		return nil, ErrNotReady
	}
	if !c.state.CompareAndSwap(int32(Idle), int32(Preprocessing)) {
		return nil, ErrBusy
	}

	j := &AnalysisJob{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		signal:    sig,
		replies:   make(chan pool.Reply, 16),
		done:      make(chan struct{}),
	}
	t := NewTicket(j.ID)

	c.routerOnce.Do(func() {
		c.wg.Add(1)
		go c.route()
	})

	jobCtx, cancel := c.ctx, context.CancelFunc(func() {})
	if c.opts.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(c.ctx, c.opts.Timeout)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.run(jobCtx, j, t)
	}()
	return t, nil
}

// Close cancels any running job and waits for the controller's goroutines.
func (c *Controller) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

// route forwards pool replies to the active job and drops replies for
// jobs that have already finished.
func (c *Controller) route() {
	defer c.wg.Done()
	results := c.pool.Results()
	for {
		select {
		case <-c.ctx.Done():
			return
		case r, ok := <-results:
			if !ok {
				return
			}
			j := c.active.Load()
			if j == nil || j.ID != r.JobID {
				if r.JobID != "" {
					c.logger.Debugf("dropping stale %s from %s for job %s", r.Kind, r.ID, r.JobID)
				}
				continue
			}
			select {
			case j.replies <- r:
			case <-j.done:
			case <-c.ctx.Done():
				return
			}
		}
	}
}

func (c *Controller) setState(s State) { c.state.Store(int32(s)) }

func (c *Controller) run(ctx context.Context, j *AnalysisJob, t *Ticket) {
	logger := c.logger.With(j.ID[:8])
	agg := &Aggregate{JobID: j.ID, StartedAt: j.CreatedAt}
	c.opts.Sink.OnJobStarted(j.ID)
	logger.Infof("job started")

	sig := j.takeSignal()
	mono, err := c.opts.Preprocessor.Process(sig)
	sig.Release()
	if err != nil {
		c.fail(j, t, agg, fmt.Errorf("%w: %w", ErrPreprocessFailed, err))
		return
	}

	tonalCh := make(chan Tonal, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		tonalCh <- c.estimateTonal(ctx, logger, mono)
	}()

	c.setState(ExtractingFeatures)
	excerpt := c.opts.Trim.Apply(mono)
	logger.Debugf("extracting features from %d of %d samples", len(excerpt), len(mono))
	var vec feature.Vector
	select {
	case resp := <-c.opts.Features.Start(ctx, feature.Request{Signal: excerpt, SampleRate: c.opts.SampleRate}):
		if resp.Err != nil {
			c.fail(j, t, agg, fmt.Errorf("%w: %w", ErrFeatureExtractionFailed, resp.Err))
			return
		}
		vec = resp.Vector
	case <-ctx.Done():
		c.fail(j, t, agg, fmt.Errorf("%w: %w", ErrFeatureExtractionFailed, ctx.Err()))
		return
	}

	c.setState(AwaitingPredictions)
	var scores map[classifier.ID]float64
	collector := NewCollector(func(m map[classifier.ID]float64) { scores = m })
	c.active.Store(j)
	dispatched := c.pool.Dispatch(j.ID, vec)
	logger.Debugf("dispatched to %d classifiers", len(dispatched))
	collector.Arm(len(dispatched))

	timedOut := false
	answered := make(map[classifier.ID]bool, len(dispatched))
	for collector.Armed() {
		select {
		case r := <-j.replies:
			switch r.Kind {
			case pool.KindResult:
				answered[r.ID] = true
				collector.Record(r.ID, r.Score)
			case pool.KindFailed:
				answered[r.ID] = true
				logger.Warnf("classifier %s failed: %v", r.ID, r.Err)
				collector.Exclude(r.ID)
			}
		case <-ctx.Done():
			timedOut = true
			collector.Flush()
		}
	}
	c.active.Store(nil)
	close(j.done)

	var stalled []classifier.ID
	if timedOut {
		for _, id := range dispatched {
			if !answered[id] {
				stalled = append(stalled, id)
			}
		}
	}
	c.pool.Release(j.ID, stalled)

	c.setState(Aggregating)
	var tonal Tonal
	select {
	case tonal = <-tonalCh:
	default:
		select {
		case tonal = <-tonalCh:
		case <-ctx.Done():
			tonal = Unavailable(fmt.Errorf("%w: %v", ErrTonalEstimationFailed, ctx.Err()))
		}
	}

	agg.Predictions = scores
	agg.Tonal = tonal
	agg.Missing = missing(c.pool.Roster(), scores)
	c.opts.Sink.OnTonalProfileUpdated(j.ID, tonal)
	c.opts.Sink.OnPredictionsUpdated(j.ID, scores)

	if timedOut {
		err := fmt.Errorf("%w: %d of %d classifiers answered, no answer from %v",
			ErrAggregationIncomplete, len(scores), len(dispatched), stalled)
		c.fail(j, t, agg, err)
		return
	}

	c.setState(Complete)
	agg.Success = true
	agg.Duration = time.Since(j.CreatedAt)
	logger.Infof("job complete in %v: %d predictions, tonal available=%v", agg.Duration.Round(time.Millisecond), len(scores), tonal.Available)
	c.opts.Sink.OnJobFinished(j.ID, true, nil)
	c.finish(t, agg, nil)
}

func (c *Controller) estimateTonal(ctx context.Context, logger *log.Logger, mono []float64) Tonal {
	if c.opts.Tonal == nil {
		return Unavailable(fmt.Errorf("%w: disabled", ErrTonalEstimationFailed))
	}
	profile, err := c.opts.Tonal.Estimate(ctx, mono, c.opts.SampleRate)
	if err != nil {
		logger.Warnf("tonal estimation failed: %v", err)
		return Unavailable(fmt.Errorf("%w: %w", ErrTonalEstimationFailed, err))
	}
	return Tonal{Available: true, Profile: &profile}
}

func (c *Controller) fail(j *AnalysisJob, t *Ticket, agg *Aggregate, err error) {
	c.setState(Failed)
	if c.active.CompareAndSwap(j, nil) {
		close(j.done)
	}
	agg.Error = err.Error()
	agg.Duration = time.Since(j.CreatedAt)
	c.logger.With(j.ID[:8]).Errorf("job failed: %v", err)
	c.opts.Sink.OnJobFinished(j.ID, false, err)
	c.finish(t, agg, err)
}

func (c *Controller) finish(t *Ticket, agg *Aggregate, err error) {
	c.last.Store(agg)
	c.setState(Idle)
	t.resolve(agg, err)
}
