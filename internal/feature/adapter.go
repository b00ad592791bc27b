package feature

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trackscan/internal/log"
)

// ErrNoFeatures is returned when the extractor produced an empty vector.
var ErrNoFeatures = errors.New("extractor returned no features")

// Extractor computes feature values for a mono signal, in the order of the
// names passed to NewAdapter.
type Extractor interface {
	Extract(ctx context.Context, samples []float64, sampleRate float64) ([]float64, error)
}

// Request hands a signal to the adapter. The adapter owns Signal from the
// moment Start is called.
type Request struct {
	Signal     []float64
	SampleRate float64
}

// Response carries the outcome of one extraction.
type Response struct {
	Vector  Vector
	Err     error
	Elapsed time.Duration
}

// Adapter runs each extraction as a single-shot task on its own goroutine.
type Adapter struct {
	extractor Extractor
	names     []string
	logger    *log.Logger
}

// NewAdapter wraps ex. names labels the values ex returns.
func NewAdapter(ex Extractor, names []string) *Adapter {
	return &Adapter{
		extractor: ex,
		names:     names,
		logger:    log.New("features"),
	}
}

// Start launches the extraction and returns a channel that receives exactly
// one Response. The channel is buffered so the task never blocks on a caller
// that stopped listening.
func (a *Adapter) Start(ctx context.Context, req Request) <-chan Response {
	out := make(chan Response, 1)
	go func() {
		start := time.Now()
		resp := a.run(ctx, req)
		resp.Elapsed = time.Since(start)
		if resp.Err == nil {
			a.logger.Debugf("extracted %d features from %d samples in %v", resp.Vector.Len(), len(req.Signal), resp.Elapsed)
		}
		out <- resp
	}()
	return out
}

func (a *Adapter) run(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = Response{Err: fmt.Errorf("feature extractor panicked: %v", r)}
		}
	}()

	values, err := a.extractor.Extract(ctx, req.Signal, req.SampleRate)
	if err != nil {
		return Response{Err: err}
	}
	if len(values) == 0 {
		return Response{Err: ErrNoFeatures}
	}
	if len(values) != len(a.names) {
		return Response{Err: fmt.Errorf("extractor returned %d values for %d feature names", len(values), len(a.names))}
	}
	return Response{Vector: Vector{Names: a.names, Values: values}}
}
