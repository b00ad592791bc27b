// SPDX-License-Identifier: MIT
/*
Package transport publishes job progress to consoles, dashboards and
message brokers. Every sink implements job.Sink; network transports share
the Transport interface and are adapted to job.Sink by EventSink.
*/
package transport

import (
	"time"

	"trackscan/internal/classifier"
	"trackscan/internal/job"
)

// Transport delivers encoded events to one destination.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(data any) error
	Close() error
}

// EventType names a job lifecycle event on the wire.
type EventType string

const (
	EventJobStarted  EventType = "job_started"
	EventPredictions EventType = "predictions"
	EventTonal       EventType = "tonal"
	EventJobFinished EventType = "job_finished"
)

// Event is the JSON message sent to network transports.
type Event struct {
	Type        EventType                 `json:"type"`
	JobID       string                    `json:"jobId"`
	Timestamp   time.Time                 `json:"timestamp"`
	Predictions map[classifier.ID]float64 `json:"predictions,omitempty"`
	Tonal       *job.Tonal                `json:"tonal,omitempty"`
	Success     *bool                     `json:"success,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

// EventSink turns job callbacks into Events for a Transport. Send errors
// are logged and never reach the job.
type EventSink struct {
	name string
	t    Transport
}

// NewEventSink wraps t. name is used in log messages.
func NewEventSink(name string, t Transport) *EventSink {
	return &EventSink{name: name, t: t}
}

func (s *EventSink) send(e Event) {
	e.Timestamp = time.Now().UTC()
	if err := s.t.Send(e); err != nil {
		logger.Warnf("%s: failed to publish %s for job %s: %v", s.name, e.Type, e.JobID, err)
	}
}

func (s *EventSink) OnJobStarted(jobID string) {
	s.send(Event{Type: EventJobStarted, JobID: jobID})
}

func (s *EventSink) OnPredictionsUpdated(jobID string, predictions map[classifier.ID]float64) {
	s.send(Event{Type: EventPredictions, JobID: jobID, Predictions: predictions})
}

func (s *EventSink) OnTonalProfileUpdated(jobID string, tonal job.Tonal) {
	s.send(Event{Type: EventTonal, JobID: jobID, Tonal: &tonal})
}

func (s *EventSink) OnJobFinished(jobID string, success bool, err error) {
	e := Event{Type: EventJobFinished, JobID: jobID, Success: &success}
	if err != nil {
		e.Error = err.Error()
	}
	s.send(e)
}

// Close closes the underlying transport.
func (s *EventSink) Close() error { return s.t.Close() }

var _ job.Sink = (*EventSink)(nil)
