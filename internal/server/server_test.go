package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trackscan/internal/audio"
	"trackscan/internal/classifier"
	"trackscan/internal/job"
	"trackscan/internal/pitch"
	"trackscan/internal/pool"
	"trackscan/internal/transport"
	"trackscan/pkg/utils"
)

type fakeAnalyzer struct {
	submitErr error
	submitted *audio.Signal
	ticket    *job.Ticket
	state     job.State
	active    string
	last      *job.Aggregate
}

func (f *fakeAnalyzer) Submit(ctx context.Context, sig *audio.Signal) (*job.Ticket, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = sig
	return f.ticket, nil
}
func (f *fakeAnalyzer) State() job.State { return f.state }
func (f *fakeAnalyzer) ActiveJob() string { return f.active }
func (f *fakeAnalyzer) Last() *job.Aggregate { return f.last }

type fakePool struct{}

func (fakePool) Ready() bool { return true }
func (fakePool) Report() []pool.Status {
	return []pool.Status{{Classifier: "mood_happy", State: "ready", Scored: 3}}
}

type fakeResults map[string]*transport.StoredResult

func (f fakeResults) Load(_ context.Context, id string) (*transport.StoredResult, error) {
	if r, ok := f[id]; ok {
		return r, nil
	}
	return nil, transport.ErrJobNotFound
}

// wavBytes encodes samples as a mono 16-bit WAV file.
func wavBytes(t *testing.T, samples []float64, rate float64) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	if err := audio.SaveWAV(path, &audio.Signal{Samples: samples, Channels: 1, SampleRate: rate}, 16); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func uploadRequest(t *testing.T, target string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "in.wav")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := New(&fakeAnalyzer{}, fakePool{}, Options{JWTSecret: "secret"})
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAnalyzeStatusCodes(t *testing.T) {
	wav := wavBytes(t, utils.GenerateSineWave(8000, 8000, 440), 8000)
	tests := []struct {
		name      string
		submitErr error
		body      []byte
		want      int
		code      string
	}{
		{"accepted", nil, wav, http.StatusAccepted, ""},
		{"busy", job.ErrBusy, wav, http.StatusConflict, CodeBusy},
		{"not ready", job.ErrNotReady, wav, http.StatusServiceUnavailable, CodeNotReady},
		{"invalid audio", nil, []byte("not a wav file at all"), http.StatusBadRequest, CodeValidation},
		{"internal", errors.New("boom"), wav, http.StatusInternalServerError, CodeService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAnalyzer{submitErr: tt.submitErr, ticket: job.NewTicket("job-1")}
			s := New(a, fakePool{}, Options{})
			resp, err := s.App().Test(uploadRequest(t, "/api/analyze", tt.body), -1)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.code != "" {
				if got := decode[ErrorResponse](t, resp); got.Error.Code != tt.code {
					t.Errorf("code = %s, want %s", got.Error.Code, tt.code)
				}
				return
			}
			if got := decode[SubmitResponse](t, resp); got.JobID != "job-1" {
				t.Errorf("jobId = %s", got.JobID)
			}
			if a.submitted == nil || a.submitted.SampleRate != 8000 || a.submitted.Frames() != 8000 {
				t.Errorf("submitted signal = %+v", a.submitted)
			}
		})
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	s := New(&fakeAnalyzer{}, fakePool{}, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	a := &fakeAnalyzer{state: job.AwaitingPredictions, active: "job-9"}
	s := New(a, fakePool{}, Options{})
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	got := decode[StatusResponse](t, resp)
	if got.State != "awaiting_predictions" || got.ActiveJob != "job-9" || !got.PoolReady {
		t.Errorf("status = %+v", got)
	}
	if len(got.Classifiers) != 1 || got.Classifiers[0].Scored != 3 {
		t.Errorf("classifiers = %+v", got.Classifiers)
	}
}

func TestJobResultLookup(t *testing.T) {
	stored := &transport.StoredResult{State: transport.StateComplete, Aggregate: job.Aggregate{
		JobID: "stored", Success: true, Predictions: map[classifier.ID]float64{classifier.MoodSad: 0.5},
	}}
	a := &fakeAnalyzer{
		active: "running",
		last:   &job.Aggregate{JobID: "recent", Error: "timeout"},
	}
	s := New(a, fakePool{}, Options{Results: fakeResults{"stored": stored}})

	tests := []struct {
		id     string
		status int
		state  string
	}{
		{"stored", http.StatusOK, transport.StateComplete},
		{"recent", http.StatusOK, transport.StateFailed},
		{"running", http.StatusOK, transport.StateRunning},
		{"unknown", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/jobs/"+tt.id, nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.state == "" {
				return
			}
			got := decode[transport.StoredResult](t, resp)
			if got.State != tt.state || got.JobID != tt.id {
				t.Errorf("result = %+v", got)
			}
		})
	}
}

func TestPitchEndpoint(t *testing.T) {
	const rate = 8000.0
	samples := utils.GeneratePeriodic(pitch.ChunkSize*3, 40)
	s := New(&fakeAnalyzer{}, fakePool{}, Options{PitchChunk: pitch.ChunkSize})

	resp, err := s.App().Test(uploadRequest(t, "/api/pitch", wavBytes(t, samples, rate)), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	tr := decode[pitch.Trace](t, resp)
	if len(tr.Frequencies) != 3 || tr.ChunkSize != pitch.ChunkSize || tr.SampleRate != rate {
		t.Errorf("trace = %+v", tr)
	}

	resp, _ = s.App().Test(uploadRequest(t, "/api/pitch?chunk=abc", nil), -1)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad chunk status = %d", resp.StatusCode)
	}
}

func TestBearerAuth(t *testing.T) {
	auth := NewAuth("secret")
	s := New(&fakeAnalyzer{}, fakePool{}, Options{JWTSecret: "secret"})

	valid, err := auth.GenerateToken("alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, _ := auth.GenerateToken("alice", -time.Hour)
	foreign, _ := NewAuth("other").GenerateToken("mallory", time.Hour)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"foreign key", "Bearer " + foreign, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := s.App().Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
