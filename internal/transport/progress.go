package transport

import (
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"trackscan/internal/classifier"
	"trackscan/internal/job"
)

// Stages shown by ProgressSink: started, tonal, predictions, finished.
const progressStages = 4

// ProgressSink draws a terminal progress bar per job.
type ProgressSink struct {
	mu       sync.Mutex
	progress *mpb.Progress
	bar      *mpb.Bar
	started  time.Time
}

// NewProgressSink renders bars to w.
func NewProgressSink(w io.Writer) *ProgressSink {
	return &ProgressSink{
		progress: mpb.New(mpb.WithOutput(w), mpb.WithWidth(40), mpb.WithRefreshRate(100*time.Millisecond)),
	}
}

func (s *ProgressSink) OnJobStarted(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		s.bar.Abort(false)
	}
	s.started = time.Now()
	s.bar = s.progress.AddBar(progressStages,
		mpb.PrependDecorators(
			decor.Name("job "+shortID(jobID), decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d/%d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO), "done"),
		),
	)
	s.bar.Increment()
}

func (s *ProgressSink) step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		s.bar.Increment()
	}
}

func (s *ProgressSink) OnTonalProfileUpdated(string, job.Tonal) { s.step() }

func (s *ProgressSink) OnPredictionsUpdated(string, map[classifier.ID]float64) { s.step() }

func (s *ProgressSink) OnJobFinished(jobID string, success bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar == nil {
		return
	}
	if success {
		s.bar.SetCurrent(progressStages)
	} else {
		s.bar.Abort(false)
	}
	s.bar = nil
}

// Close waits for the progress container to finish rendering.
func (s *ProgressSink) Close() error {
	s.mu.Lock()
	if s.bar != nil {
		s.bar.Abort(false)
		s.bar = nil
	}
	s.mu.Unlock()
	s.progress.Wait()
	return nil
}

var _ job.Sink = (*ProgressSink)(nil)
