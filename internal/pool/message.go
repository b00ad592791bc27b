package pool

import (
	"context"
	"time"

	"trackscan/internal/classifier"
	"trackscan/internal/feature"
)

// Kind tags a worker reply.
type Kind uint8

const (
	KindReady Kind = iota + 1
	KindFailed
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindReady:
		return "ready"
	case KindFailed:
		return "failed"
	case KindResult:
		return "result"
	}
	return "unknown"
}

// Reply is the only message a worker sends. Ready and Failed answer the
// configure step (JobID empty) or, for Failed, a scoring request; Result
// carries a score for JobID.
type Reply struct {
	Kind    Kind
	ID      classifier.ID
	JobID   string
	Score   float64
	Err     error
	Latency time.Duration
}

// request is a scoring order sent to a worker inbox.
type request struct {
	ctx    context.Context
	jobID  string
	vector feature.Vector
}
