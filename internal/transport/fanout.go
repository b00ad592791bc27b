package transport

import (
	"errors"
	"io"

	"trackscan/internal/classifier"
	"trackscan/internal/job"
)

// Fanout forwards every event to each sink in order.
type Fanout []job.Sink

func (f Fanout) OnJobStarted(jobID string) {
	for _, s := range f {
		s.OnJobStarted(jobID)
	}
}

func (f Fanout) OnPredictionsUpdated(jobID string, predictions map[classifier.ID]float64) {
	for _, s := range f {
		s.OnPredictionsUpdated(jobID, predictions)
	}
}

func (f Fanout) OnTonalProfileUpdated(jobID string, t job.Tonal) {
	for _, s := range f {
		s.OnTonalProfileUpdated(jobID, t)
	}
}

func (f Fanout) OnJobFinished(jobID string, success bool, err error) {
	for _, s := range f {
		s.OnJobFinished(jobID, success, err)
	}
}

// Close closes every sink that implements io.Closer.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

var _ job.Sink = Fanout(nil)
