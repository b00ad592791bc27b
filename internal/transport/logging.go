package transport

import (
	"slices"
	"strings"

	"trackscan/internal/classifier"
	"trackscan/internal/job"
	applog "trackscan/internal/log"
)

var logger = applog.New("transport")

// LoggingSink writes job events to the application log.
type LoggingSink struct {
	log *applog.Logger
}

// NewLoggingSink creates a sink logging under the "results" component.
func NewLoggingSink() *LoggingSink {
	return &LoggingSink{log: applog.New("results")}
}

func (s *LoggingSink) OnJobStarted(jobID string) {
	s.log.Infof("job %s started", jobID)
}

func (s *LoggingSink) OnPredictionsUpdated(jobID string, predictions map[classifier.ID]float64) {
	ids := make([]classifier.ID, 0, len(predictions))
	for id := range predictions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(id.String())
		b.WriteString("=")
		b.WriteString(formatScore(predictions[id]))
	}
	s.log.Infof("job %s predictions: %s", jobID, b.String())
}

func (s *LoggingSink) OnTonalProfileUpdated(jobID string, t job.Tonal) {
	if !t.Available {
		s.log.Warnf("job %s tonal profile unavailable: %s", jobID, t.Reason)
		return
	}
	s.log.Infof("job %s key %s %s (%.2f), %.1f BPM", jobID, t.Profile.Key, t.Profile.Scale, t.Profile.KeyStrength, t.Profile.BPM)
}

func (s *LoggingSink) OnJobFinished(jobID string, success bool, err error) {
	if success {
		s.log.Infof("job %s finished", jobID)
		return
	}
	s.log.Errorf("job %s failed: %v", jobID, err)
}

var _ job.Sink = (*LoggingSink)(nil)
