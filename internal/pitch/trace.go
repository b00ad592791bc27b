// SPDX-License-Identifier: MIT
package pitch

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Trace is the ordered sequence of per-chunk frequency estimates of a signal.
type Trace struct {
	Frequencies []float64 `json:"frequencies"`
	Base        float64   `json:"baseFrequency"` // First nonzero estimate, 0 if none.
	Note        string    `json:"note,omitempty"`
	ChunkSize   int       `json:"chunkSize"`
	SampleRate  float64   `json:"sampleRate"`
}

// Voiced reports how many chunks produced an estimate.
func (t Trace) Voiced() int {
	n := 0
	for _, f := range t.Frequencies {
		if f > 0 {
			n++
		}
	}
	return n
}

// Analyze splits samples into consecutive non-overlapping chunks of
// chunkSize (the last one may be shorter) and estimates each one. Chunks are
// independent, so they are spread over GOMAXPROCS goroutines; the result is
// in chunk order regardless.
func Analyze(ctx context.Context, samples []float64, sampleRate float64, chunkSize int) (Trace, error) {
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}
	nChunks := (len(samples) + chunkSize - 1) / chunkSize
	tr := Trace{
		Frequencies: make([]float64, nChunks),
		ChunkSize:   chunkSize,
		SampleRate:  sampleRate,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < nChunks; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(samples))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tr.Frequencies[i] = AutoCorrelate(samples[start:end], sampleRate)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Trace{}, err
	}

	for _, f := range tr.Frequencies {
		if f > 0 {
			tr.Base = f
			tr.Note = NoteName(f)
			break
		}
	}
	return tr, nil
}
