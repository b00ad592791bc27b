// SPDX-License-Identifier: MIT
package classifier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"trackscan/internal/feature"
)

// Scorer turns a feature vector into a score in [0,1]. A pool worker owns
// exactly one Scorer and calls it from a single goroutine.
type Scorer interface {
	Score(ctx context.Context, v feature.Vector) (float64, error)
	Close() error
}

// Factory builds the Scorer for one classifier. It is called once per
// classifier when the pool starts.
type Factory func(ctx context.Context, id ID) (Scorer, error)

// Options selects the back-end of each classifier.
type Options struct {
	// ModelsDir holds <classifier>.yaml weight files. Classifiers without a
	// file use DefaultModel.
	ModelsDir string
	// Exec maps a classifier name to an external scorer command line.
	Exec map[string][]string
}

// NewFactory returns a Factory honouring opts. An external command takes
// precedence over a model file.
func NewFactory(opts Options) Factory {
	return func(ctx context.Context, id ID) (Scorer, error) {
		if argv, ok := opts.Exec[id.String()]; ok && len(argv) > 0 {
			return StartExec(ctx, id, argv)
		}
		if opts.ModelsDir != "" {
			path := filepath.Join(opts.ModelsDir, id.String()+".yaml")
			if _, err := os.Stat(path); err == nil {
				return LoadModel(path)
			}
		}
		if !id.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrUnknownClassifier, uint8(id))
		}
		return DefaultModel(id), nil
	}
}
