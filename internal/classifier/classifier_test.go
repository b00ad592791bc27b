// SPDX-License-Identifier: MIT
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trackscan/internal/analysis"
	"trackscan/internal/feature"
)

func TestParseID(t *testing.T) {
	for _, id := range All() {
		got, err := ParseID(id.String())
		if err != nil || got != id {
			t.Errorf("ParseID(%q) = %v, %v", id.String(), got, err)
		}
	}
	if _, err := ParseID("mood_bored"); !errors.Is(err, ErrUnknownClassifier) {
		t.Errorf("expected ErrUnknownClassifier, got %v", err)
	}
	if len(All()) != 9 {
		t.Errorf("All() = %d classifiers, want 9", len(All()))
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs([]string{"danceability", "mood_sad"})
	if err != nil {
		t.Fatalf("ParseIDs: %v", err)
	}
	if ids[0] != Danceability || ids[1] != MoodSad {
		t.Errorf("order not preserved: %v", ids)
	}
	if _, err := ParseIDs([]string{"mood_sad", "mood_sad"}); err == nil {
		t.Error("expected duplicate error")
	}
}

func TestIDAsJSONKey(t *testing.T) {
	in := map[ID]float64{MoodHappy: 0.25, TonalAtonal: 0.5}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"mood_happy":0.25,"tonal_atonal":0.5}` {
		t.Errorf("json = %s", data)
	}
	var out map[ID]float64
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[TonalAtonal] != 0.5 {
		t.Errorf("round trip lost value: %v", out)
	}
}

func TestModelScore(t *testing.T) {
	m := &Model{
		Classifier: "test",
		Bias:       0,
		Terms:      []Term{{Feature: "x", Weight: 2, Center: 0.5, Scale: 0.25}},
	}
	tests := []struct {
		x    float64
		want float64
	}{
		{0.5, 0.5},
		{0.75, 1 / (1 + math.Exp(-2))},
		{0.25, 1 / (1 + math.Exp(2))},
	}
	for _, tt := range tests {
		got, err := m.Score(context.Background(), feature.Vector{Names: []string{"x"}, Values: []float64{tt.x}})
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Score(x=%v) = %v, want %v", tt.x, got, tt.want)
		}
	}

	_, err := m.Score(context.Background(), feature.Vector{})
	if !errors.Is(err, ErrMissingFeature) {
		t.Errorf("expected ErrMissingFeature, got %v", err)
	}
}

func TestDefaultModelsUseExtractedFeatures(t *testing.T) {
	names := analysis.FeatureNames()
	v := feature.Vector{Names: names, Values: make([]float64, len(names))}
	for _, id := range All() {
		m := DefaultModel(id)
		if len(m.Terms) == 0 {
			t.Errorf("%s has no default terms", id)
			continue
		}
		score, err := m.Score(context.Background(), v)
		if err != nil {
			t.Errorf("%s: %v", id, err)
		}
		if score <= 0 || score >= 1 {
			t.Errorf("%s score %v outside (0,1)", id, score)
		}
	}
}

func TestFactoryModelsDir(t *testing.T) {
	dir := t.TempDir()
	yml := "classifier: mood_sad\nbias: 3\nterms:\n  - feature: rms_mean\n    weight: 0\n"
	if err := os.WriteFile(filepath.Join(dir, "mood_sad.yaml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	factory := NewFactory(Options{ModelsDir: dir})

	s, err := factory(context.Background(), MoodSad)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	got, _ := s.Score(context.Background(), feature.Vector{Names: []string{"rms_mean"}, Values: []float64{0}})
	if math.Abs(got-1/(1+math.Exp(-3))) > 1e-12 {
		t.Errorf("loaded model not used, score %v", got)
	}

	s, err = factory(context.Background(), MoodHappy)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if m, ok := s.(*Model); !ok || m.Classifier != "mood_happy" {
		t.Errorf("expected default model, got %#v", s)
	}

	if _, err := factory(context.Background(), ID(200)); !errors.Is(err, ErrUnknownClassifier) {
		t.Errorf("expected ErrUnknownClassifier, got %v", err)
	}
}

// fakeScorer answers the stream protocol on the far side of two pipes.
func fakeScorer(t *testing.T, r io.Reader, w io.Writer, score float64) {
	t.Helper()
	go func() {
		for {
			var req Request
			if err := ReadFrame(r, &req); err != nil {
				return
			}
			resp := Response{OK: true}
			switch req.Op {
			case "configure":
				if req.ID == "" {
					resp = Response{Error: "missing id"}
				}
			case "score":
				resp.Score = score * float64(len(req.Values))
			}
			if err := WriteFrame(w, resp); err != nil {
				return
			}
		}
	}()
}

func TestStreamScorer(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	fakeScorer(t, reqR, respW, 0.25)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := NewStreamScorer(ctx, Danceability, respR, reqW)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	defer s.Close()

	got, err := s.Score(ctx, feature.Vector{Names: []string{"a", "b"}, Values: []float64{1, 2}})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 0.5 {
		t.Errorf("score = %v, want 0.5", got)
	}

	// 0.25 * 5 values is out of range and must be rejected.
	if _, err := s.Score(ctx, feature.Vector{Values: make([]float64, 5)}); err == nil {
		t.Error("expected out-of-range error")
	}
}

func TestStreamScorerCancelledExchangeBreaksStream(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go func() {
		var req Request
		_ = ReadFrame(reqR, &req)
		_ = WriteFrame(respW, Response{OK: true})
		// Never answer a score request.
		_ = ReadFrame(reqR, &req)
	}()

	s, err := NewStreamScorer(context.Background(), MoodParty, respR, reqW)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Score(ctx, feature.Vector{})
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrScorerBroken) {
		t.Fatalf("expected broken stream after deadline, got %v", err)
	}
	if _, err := s.Score(context.Background(), feature.Vector{}); !errors.Is(err, ErrScorerBroken) {
		t.Errorf("expected ErrScorerBroken, got %v", err)
	}
	respW.Close()
	s.Close()
}

func TestStreamScorerDeadProcessBreaksStream(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go func() {
		var req Request
		_ = ReadFrame(reqR, &req)
		_ = WriteFrame(respW, Response{OK: true})
		// Exit while a score request is in flight.
		_ = ReadFrame(reqR, &req)
		respW.Close()
		reqR.Close()
	}()

	s, err := NewStreamScorer(context.Background(), MoodSad, respR, reqW)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = s.Score(ctx, feature.Vector{Values: []float64{1}})
	if !errors.Is(err, ErrScorerBroken) || !errors.Is(err, io.EOF) {
		t.Fatalf("first failure = %v, want ErrScorerBroken wrapping EOF", err)
	}
	if _, err := s.Score(ctx, feature.Vector{}); !errors.Is(err, ErrScorerBroken) {
		t.Errorf("second call = %v", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	var resp Response
	err := ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}), &resp)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}
