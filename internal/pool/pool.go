// SPDX-License-Identifier: MIT
/*
Package pool runs one long-lived worker goroutine per classifier.

Lifecycle:
- Initialize spawns every worker, sends it its classifier ID and waits for
  a Ready or Failed acknowledgement from each
- Failed workers are excluded from dispatch; the pool still becomes ready
  as long as at least one worker is Ready
- Dispatch hands a feature vector to every Ready worker without blocking
- Release ends a job: its scoring context is cancelled and workers that
  never answered are marked Failed
- Replies for all workers arrive on the single Results channel
- Close stops every worker and releases its scorer
*/
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trackscan/internal/classifier"
	"trackscan/internal/feature"
	"trackscan/internal/log"
)

const inboxSize = 2

var (
	// ErrWorkerSpawnFailed is returned when no worker came up.
	ErrWorkerSpawnFailed = errors.New("worker spawn failed")
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("pool already initialized")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pool closed")
	// ErrWorkerStalled marks a worker that did not answer before its job ended.
	ErrWorkerStalled = errors.New("worker stalled")
)

// Pool owns the classifier workers.
type Pool struct {
	factory classifier.Factory
	logger  *log.Logger

	handles []*Handle
	results chan Reply
	ready   atomic.Bool
	started atomic.Bool

	jobsMu sync.Mutex
	jobs   map[string]context.CancelFunc

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New returns an empty pool that builds scorers with factory.
func New(factory classifier.Factory) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		factory: factory,
		logger:  log.New("pool"),
		jobs:    make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Initialize spawns one worker per ID and blocks until each has
// acknowledged or ctx ends. Workers that have not acknowledged by then are
// marked Failed. The pool reports ready when at least one worker is Ready.
func (p *Pool) Initialize(ctx context.Context, ids []classifier.ID) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no classifiers configured", ErrWorkerSpawnFailed)
	}
	if p.ctx.Err() != nil {
		return ErrClosed
	}
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}

	p.handles = make([]*Handle, len(ids))
	// Acks and per-job replies share one channel; size it so a full round of
	// results never blocks a worker.
	p.results = make(chan Reply, len(ids)*(inboxSize+1))
	acks := make(chan Reply, len(ids))

	for i, id := range ids {
		h := newHandle(id)
		p.handles[i] = h
		p.wg.Add(1)
		go p.runWorker(h, acks)
	}

	pending := len(ids)
	for pending > 0 {
		select {
		case r := <-acks:
			pending--
			if r.Kind == KindFailed {
				p.logger.Warnf("classifier %s failed to start: %v", r.ID, r.Err)
			} else {
				p.logger.Debugf("classifier %s ready", r.ID)
			}
		case <-ctx.Done():
			for _, h := range p.handles {
				if h.transition(Spawning, Failed) {
					err := fmt.Errorf("%w: %s did not acknowledge: %v", ErrWorkerSpawnFailed, h.ID, ctx.Err())
					h.err.Store(&err)
					p.logger.Warnf("classifier %s did not acknowledge in time", h.ID)
				}
			}
			pending = 0
		}
	}

	n := len(p.ReadyIDs())
	if n == 0 {
		return fmt.Errorf("%w: none of %d classifiers started", ErrWorkerSpawnFailed, len(ids))
	}
	if n < len(ids) {
		p.logger.Warnf("pool degraded: %d of %d classifiers ready", n, len(ids))
	} else {
		p.logger.Infof("pool ready with %d classifiers", n)
	}
	p.ready.Store(true)
	return nil
}

func (p *Pool) runWorker(h *Handle, acks chan<- Reply) {
	defer p.wg.Done()

	scorer, err := p.factory(p.ctx, h.ID)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrWorkerSpawnFailed, h.ID, err)
		if h.transition(Spawning, Failed) {
			h.err.Store(&err)
			acks <- Reply{Kind: KindFailed, ID: h.ID, Err: err}
		}
		return
	}
	defer scorer.Close()

	if !h.transition(Spawning, Ready) {
		// Initialize gave up on this worker.
		return
	}
	acks <- Reply{Kind: KindReady, ID: h.ID}

	logger := p.logger.With(h.ID.String())
	for {
		select {
		case <-p.ctx.Done():
			return
		case req, ok := <-h.inbox:
			if !ok {
				return
			}
			if req.ctx.Err() != nil {
				// The job ended while the request was queued.
				continue
			}
			start := time.Now()
			score, err := scorer.Score(req.ctx, req.vector)
			latency := time.Since(start)
			h.lastNs.Store(int64(latency))

			reply := Reply{Kind: KindResult, ID: h.ID, JobID: req.jobID, Score: score, Latency: latency}
			if err != nil {
				h.errors.Add(1)
				logger.Warnf("job %s: %v", req.jobID, err)
				reply = Reply{Kind: KindFailed, ID: h.ID, JobID: req.jobID, Err: err, Latency: latency}
				if errors.Is(err, classifier.ErrScorerBroken) {
					h.fail(err)
				}
			} else {
				h.scored.Add(1)
			}

			select {
			case p.results <- reply:
			case <-p.ctx.Done():
				return
			}
			if h.State() == Failed {
				return
			}
		}
	}
}

// Ready reports whether initialization completed with at least one worker.
func (p *Pool) Ready() bool { return p.ready.Load() && p.ctx.Err() == nil }

// Dispatch sends v to every Ready worker and returns the classifiers that
// accepted it. Failed workers and workers whose inbox is full are skipped.
// Scoring runs under a per-job context that lasts until Release.
func (p *Pool) Dispatch(jobID string, v feature.Vector) []classifier.ID {
	if !p.Ready() {
		return nil
	}
	jobCtx, cancel := context.WithCancel(p.ctx)
	p.jobsMu.Lock()
	if prev, ok := p.jobs[jobID]; ok {
		prev()
	}
	p.jobs[jobID] = cancel
	p.jobsMu.Unlock()

	dispatched := make([]classifier.ID, 0, len(p.handles))
	for _, h := range p.handles {
		if h.State() != Ready {
			p.logger.Warnf("job %s: skipping %s (%s)", jobID, h.ID, h.State())
			continue
		}
		select {
		case h.inbox <- request{ctx: jobCtx, jobID: jobID, vector: v}:
			dispatched = append(dispatched, h.ID)
		default:
			h.dropped.Add(1)
			p.logger.Warnf("job %s: %s is still busy, skipping", jobID, h.ID)
		}
	}
	return dispatched
}

// Release ends jobID: scoring still in progress for it is cancelled and
// every classifier in stalled is marked Failed so later jobs skip it.
func (p *Pool) Release(jobID string, stalled []classifier.ID) {
	p.jobsMu.Lock()
	cancel, ok := p.jobs[jobID]
	delete(p.jobs, jobID)
	p.jobsMu.Unlock()
	if ok {
		cancel()
	}

	for _, id := range stalled {
		for _, h := range p.handles {
			if h.ID != id || !h.transition(Ready, Failed) {
				continue
			}
			err := fmt.Errorf("%w: %s did not answer job %s", ErrWorkerStalled, id, jobID)
			h.err.Store(&err)
			p.logger.Warnf("classifier %s stalled on job %s, removing it from dispatch", id, jobID)
		}
	}
}

// Roster lists every registered classifier, ready or not, in registration
// order.
func (p *Pool) Roster() []classifier.ID {
	ids := make([]classifier.ID, len(p.handles))
	for i, h := range p.handles {
		ids[i] = h.ID
	}
	return ids
}

// Results returns the channel every worker reply is delivered on. It is nil
// before Initialize.
func (p *Pool) Results() <-chan Reply { return p.results }

// ReadyIDs lists the classifiers currently accepting work.
func (p *Pool) ReadyIDs() []classifier.ID {
	var ids []classifier.ID
	for _, h := range p.handles {
		if h.State() == Ready {
			ids = append(ids, h.ID)
		}
	}
	return ids
}

// Report returns the status of every handle in registration order.
func (p *Pool) Report() []Status {
	out := make([]Status, len(p.handles))
	for i, h := range p.handles {
		out[i] = h.Status()
	}
	return out
}

// Close stops all workers, waits for them to exit and closes their scorers.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.ready.Store(false)
		p.cancel()
		p.wg.Wait()
		p.logger.Debugf("pool closed")
	})
	return nil
}
