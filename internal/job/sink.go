package job

import (
	"slices"
	"time"

	"trackscan/internal/analysis"
	"trackscan/internal/classifier"
)

// Sink receives job progress. Calls for one job come from a single
// goroutine in the order started, tonal/predictions, finished.
type Sink interface {
	OnJobStarted(jobID string)
	OnPredictionsUpdated(jobID string, predictions map[classifier.ID]float64)
	OnTonalProfileUpdated(jobID string, tonal Tonal)
	OnJobFinished(jobID string, success bool, err error)
}

// Tonal is either a tonal profile or the marker that none is available.
type Tonal struct {
	Available bool                   `json:"available"`
	Profile   *analysis.TonalProfile `json:"profile,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
}

// Unavailable returns the marker for a failed tonal estimation.
func Unavailable(err error) Tonal {
	t := Tonal{}
	if err != nil {
		t.Reason = err.Error()
	}
	return t
}

// Aggregate is the final result of one job.
type Aggregate struct {
	JobID       string                    `json:"jobId"`
	Success     bool                      `json:"success"`
	Error       string                    `json:"error,omitempty"`
	Predictions map[classifier.ID]float64 `json:"predictions"`
	Tonal       Tonal                     `json:"tonal"`
	Missing     []classifier.ID           `json:"missing,omitempty"`
	StartedAt   time.Time                 `json:"startedAt"`
	Duration    time.Duration             `json:"duration"`
}

// missing returns the roster classifiers absent from predictions, in roster
// order. Classifiers that were never dispatched count as missing.
func missing(roster []classifier.ID, predictions map[classifier.ID]float64) []classifier.ID {
	var out []classifier.ID
	for _, id := range roster {
		if _, ok := predictions[id]; !ok && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) OnJobStarted(string) {}
func (NopSink) OnPredictionsUpdated(string, map[classifier.ID]float64) {}
func (NopSink) OnTonalProfileUpdated(string, Tonal) {}
func (NopSink) OnJobFinished(string, bool, error) {}

var _ Sink = NopSink{}
