package pool

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trackscan/internal/classifier"
	"trackscan/internal/feature"
)

type fakeScorer struct {
	score  float64
	err    error
	closed *atomic.Int32
}

func (s *fakeScorer) Score(ctx context.Context, v feature.Vector) (float64, error) {
	return s.score, s.err
}

func (s *fakeScorer) Close() error {
	if s.closed != nil {
		s.closed.Add(1)
	}
	return nil
}

// scoreByID scores every classifier with its ID divided by 10.
func scoreByID(closed *atomic.Int32) classifier.Factory {
	return func(ctx context.Context, id classifier.ID) (classifier.Scorer, error) {
		return &fakeScorer{score: float64(id) / 10, closed: closed}, nil
	}
}

func collect(t *testing.T, p *Pool, n int) map[classifier.ID]Reply {
	t.Helper()
	got := make(map[classifier.ID]Reply)
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case r := <-p.Results():
			got[r.ID] = r
		case <-timeout:
			t.Fatalf("received %d of %d replies", len(got), n)
		}
	}
	return got
}

func TestPoolDispatchAll(t *testing.T) {
	var closed atomic.Int32
	p := New(scoreByID(&closed))
	ids := classifier.All()
	if err := p.Initialize(context.Background(), ids); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !p.Ready() {
		t.Fatal("pool not ready")
	}

	dispatched := p.Dispatch("job-1", feature.Vector{})
	if len(dispatched) != len(ids) {
		t.Fatalf("dispatched to %d, want %d", len(dispatched), len(ids))
	}
	for id, r := range collect(t, p, len(ids)) {
		if r.Kind != KindResult || r.JobID != "job-1" {
			t.Errorf("%s: reply %v for %q", id, r.Kind, r.JobID)
		}
		if r.Score != float64(id)/10 {
			t.Errorf("%s: score %v", id, r.Score)
		}
	}

	p.Close()
	if p.Ready() {
		t.Error("pool ready after Close")
	}
	if got := closed.Load(); got != int32(len(ids)) {
		t.Errorf("closed %d scorers, want %d", got, len(ids))
	}
	if d := p.Dispatch("job-2", feature.Vector{}); len(d) != 0 {
		t.Errorf("dispatch after Close reached %d workers", len(d))
	}
}

func TestPoolDegradedInit(t *testing.T) {
	broken := classifier.MoodParty
	factory := func(ctx context.Context, id classifier.ID) (classifier.Scorer, error) {
		if id == broken {
			return nil, errors.New("model file corrupt")
		}
		return &fakeScorer{score: 0.5}, nil
	}
	p := New(factory)
	defer p.Close()

	ids := classifier.All()
	if err := p.Initialize(context.Background(), ids); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := len(p.ReadyIDs()); got != len(ids)-1 {
		t.Fatalf("ready = %d, want %d", got, len(ids)-1)
	}

	dispatched := p.Dispatch("job", feature.Vector{})
	if len(dispatched) != len(ids)-1 {
		t.Fatalf("dispatched = %d", len(dispatched))
	}
	for _, id := range dispatched {
		if id == broken {
			t.Fatal("dispatched to a failed worker")
		}
	}
	replies := collect(t, p, len(dispatched))
	if _, ok := replies[broken]; ok {
		t.Error("failed worker replied")
	}

	for _, s := range p.Report() {
		if s.Classifier == broken.String() {
			if s.State != "failed" || s.Error == "" {
				t.Errorf("report for broken worker = %+v", s)
			}
		}
	}
}

func TestPoolAllFailed(t *testing.T) {
	p := New(func(ctx context.Context, id classifier.ID) (classifier.Scorer, error) {
		return nil, errors.New("no runtime")
	})
	defer p.Close()

	err := p.Initialize(context.Background(), []classifier.ID{classifier.MoodHappy, classifier.MoodSad})
	if !errors.Is(err, ErrWorkerSpawnFailed) {
		t.Fatalf("err = %v, want ErrWorkerSpawnFailed", err)
	}
	if p.Ready() {
		t.Error("pool ready with no workers")
	}
}

func TestPoolAckTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := classifier.Danceability
	p := New(func(ctx context.Context, id classifier.ID) (classifier.Scorer, error) {
		if id == slow {
			<-release
		}
		return &fakeScorer{score: 1}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Initialize(ctx, []classifier.ID{classifier.MoodHappy, slow}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	ready := p.ReadyIDs()
	if len(ready) != 1 || ready[0] != classifier.MoodHappy {
		t.Errorf("ready = %v", ready)
	}
	if st := p.Report()[1]; st.State != "failed" {
		t.Errorf("slow worker state = %s", st.State)
	}
}

func TestPoolScoreFailure(t *testing.T) {
	p := New(func(ctx context.Context, id classifier.ID) (classifier.Scorer, error) {
		return &fakeScorer{err: errors.New("nan input")}, nil
	})
	defer p.Close()
	if err := p.Initialize(context.Background(), []classifier.ID{classifier.TonalAtonal}); err != nil {
		t.Fatal(err)
	}
	p.Dispatch("job-x", feature.Vector{})
	r := collect(t, p, 1)[classifier.TonalAtonal]
	if r.Kind != KindFailed || r.JobID != "job-x" || r.Err == nil {
		t.Errorf("reply = %+v", r)
	}
	// An ordinary scoring error leaves the worker usable.
	if p.Report()[0].State != "ready" {
		t.Errorf("state = %s", p.Report()[0].State)
	}
}

func TestPoolInitializeTwice(t *testing.T) {
	p := New(scoreByID(nil))
	defer p.Close()
	ids := []classifier.ID{classifier.MoodHappy}
	if err := p.Initialize(context.Background(), ids); err != nil {
		t.Fatal(err)
	}
	if err := p.Initialize(context.Background(), ids); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Initialize = %v", err)
	}
	if err := New(scoreByID(nil)).Initialize(context.Background(), nil); !errors.Is(err, ErrWorkerSpawnFailed) {
		t.Errorf("empty roster = %v", err)
	}
}

// waitScorer blocks until the job context is cancelled.
type waitScorer struct{ cancelled chan error }

func (s *waitScorer) Score(ctx context.Context, v feature.Vector) (float64, error) {
	<-ctx.Done()
	s.cancelled <- ctx.Err()
	return 0, ctx.Err()
}

func (s *waitScorer) Close() error { return nil }

func TestPoolReleaseFailsStalledWorker(t *testing.T) {
	stuck := classifier.MoodAcoustic
	ws := &waitScorer{cancelled: make(chan error, 1)}
	p := New(func(ctx context.Context, id classifier.ID) (classifier.Scorer, error) {
		if id == stuck {
			return ws, nil
		}
		return &fakeScorer{score: 0.5}, nil
	})
	defer p.Close()

	ids := []classifier.ID{classifier.MoodHappy, stuck}
	if err := p.Initialize(context.Background(), ids); err != nil {
		t.Fatal(err)
	}
	if d := p.Dispatch("job-1", feature.Vector{}); len(d) != 2 {
		t.Fatalf("dispatched = %v", d)
	}
	if r := collect(t, p, 1)[classifier.MoodHappy]; r.Kind != KindResult {
		t.Fatalf("reply = %+v", r)
	}

	p.Release("job-1", []classifier.ID{stuck})
	select {
	case err := <-ws.cancelled:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("scorer saw %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Release did not cancel the job context")
	}

	st := p.Report()[1]
	if st.State != "failed" || !strings.Contains(st.Error, "did not answer job job-1") {
		t.Errorf("stalled worker = %+v", st)
	}
	if d := p.Dispatch("job-2", feature.Vector{}); len(d) != 1 || d[0] != classifier.MoodHappy {
		t.Errorf("job-2 dispatched to %v", d)
	}
	if got := p.Roster(); len(got) != 2 || got[1] != stuck {
		t.Errorf("roster = %v", got)
	}
}

func TestPoolReleaseKeepsAnsweringWorkers(t *testing.T) {
	p := New(scoreByID(nil))
	defer p.Close()
	if err := p.Initialize(context.Background(), []classifier.ID{classifier.MoodSad}); err != nil {
		t.Fatal(err)
	}
	p.Dispatch("job-1", feature.Vector{})
	collect(t, p, 1)
	p.Release("job-1", nil)
	p.Release("job-unknown", []classifier.ID{classifier.Danceability})

	if st := p.Report()[0]; st.State != "ready" {
		t.Errorf("state = %s", st.State)
	}
}
