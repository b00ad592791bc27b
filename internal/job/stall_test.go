package job

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trackscan/internal/analysis"
	"trackscan/internal/classifier"
	"trackscan/internal/feature"
	"trackscan/internal/pool"
)

// hangingScorer never answers on its own; it returns only when the job
// context is cancelled.
type hangingScorer struct{ calls *atomic.Int32 }

func (s hangingScorer) Score(ctx context.Context, v feature.Vector) (float64, error) {
	s.calls.Add(1)
	<-ctx.Done()
	return 0, ctx.Err()
}

func (hangingScorer) Close() error { return nil }

type constScorer float64

func (s constScorer) Score(context.Context, feature.Vector) (float64, error) { return float64(s), nil }
func (constScorer) Close() error { return nil }

func TestStalledClassifierDoesNotPoisonLaterJobs(t *testing.T) {
	stuck := classifier.MoodAcoustic
	var calls atomic.Int32
	p := pool.New(func(ctx context.Context, id classifier.ID) (classifier.Scorer, error) {
		if id == stuck {
			return hangingScorer{calls: &calls}, nil
		}
		return constScorer(0.5), nil
	})
	defer p.Close()
	if err := p.Initialize(context.Background(), classifier.All()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	c, _ := newTestController(p, &fakeFeatures{}, fakeTonal{}, 150*time.Millisecond)
	defer c.Close()

	want := len(classifier.All()) - 1
	for i := range 4 {
		tk, err := c.Submit(context.Background(), testSignal())
		if err != nil {
			t.Fatalf("job %d: Submit: %v", i, err)
		}
		agg, err := wait(t, tk)
		if i == 0 {
			if !errors.Is(err, ErrAggregationIncomplete) {
				t.Fatalf("job 0: err = %v, want ErrAggregationIncomplete", err)
			}
		} else if err != nil || !agg.Success {
			t.Fatalf("job %d: %+v, %v", i, agg, err)
		}
		if len(agg.Predictions) != want {
			t.Errorf("job %d: predictions = %d, want %d", i, len(agg.Predictions), want)
		}
		if !slices.Equal(agg.Missing, []classifier.ID{stuck}) {
			t.Errorf("job %d: missing = %v", i, agg.Missing)
		}
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("stalled scorer called %d times, want 1", n)
	}
	for _, st := range p.Report() {
		if st.Classifier == stuck.String() && (st.State != "failed" || !strings.Contains(st.Error, "did not answer")) {
			t.Errorf("stalled worker = %+v", st)
		}
	}
}

// slowTonal blocks until release is closed, then records that it returned.
type slowTonal struct {
	started  chan struct{}
	release  chan struct{}
	returned *atomic.Bool
}

func (s slowTonal) Estimate(ctx context.Context, samples []float64, rate float64) (analysis.TonalProfile, error) {
	close(s.started)
	<-s.release
	s.returned.Store(true)
	return analysis.TonalProfile{}, ctx.Err()
}

func TestCloseWaitsForTonalEstimation(t *testing.T) {
	var returned atomic.Bool
	tonal := slowTonal{started: make(chan struct{}), release: make(chan struct{}), returned: &returned}
	c, _ := newTestController(newFakePool(classifier.All()), &fakeFeatures{err: errors.New("extractor down")}, tonal, time.Second)

	tk, err := c.Submit(context.Background(), testSignal())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wait(t, tk); !errors.Is(err, ErrFeatureExtractionFailed) {
		t.Fatalf("err = %v", err)
	}
	<-tonal.started

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while tonal estimation was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(tonal.release)
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	if !returned.Load() {
		t.Error("Close returned before the estimator")
	}
}
