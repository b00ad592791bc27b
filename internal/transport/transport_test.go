package transport

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"trackscan/internal/analysis"
	"trackscan/internal/classifier"
	"trackscan/internal/job"
	applog "trackscan/internal/log"
)

type captureTransport struct {
	mu     sync.Mutex
	sent   []any
	err    error
	closed bool
}

func (c *captureTransport) Send(data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return c.err
}

func (c *captureTransport) Close() error {
	c.closed = true
	return nil
}

func sampleTonal() job.Tonal {
	return job.Tonal{Available: true, Profile: &analysis.TonalProfile{
		Key: "A", Scale: analysis.Minor, KeyStrength: 0.71, BPM: 124.5,
	}}
}

func samplePredictions() map[classifier.ID]float64 {
	return map[classifier.ID]float64{
		classifier.MoodHappy:    0.25,
		classifier.Danceability: 0.875,
	}
}

func TestEventSinkEmitsEvents(t *testing.T) {
	ct := &captureTransport{}
	s := NewEventSink("test", ct)

	s.OnJobStarted("job-1")
	s.OnTonalProfileUpdated("job-1", sampleTonal())
	s.OnPredictionsUpdated("job-1", samplePredictions())
	s.OnJobFinished("job-1", false, errors.New("boom"))

	want := []EventType{EventJobStarted, EventTonal, EventPredictions, EventJobFinished}
	if len(ct.sent) != len(want) {
		t.Fatalf("sent %d events, want %d", len(ct.sent), len(want))
	}
	for i, w := range want {
		e := ct.sent[i].(Event)
		if e.Type != w || e.JobID != "job-1" {
			t.Errorf("event %d = %s/%s, want %s/job-1", i, e.Type, e.JobID, w)
		}
		if e.Timestamp.IsZero() {
			t.Errorf("event %d has no timestamp", i)
		}
	}
	last := ct.sent[3].(Event)
	if last.Success == nil || *last.Success || last.Error != "boom" {
		t.Errorf("finished event = %+v", last)
	}
	if err := s.Close(); err != nil || !ct.closed {
		t.Errorf("Close = %v, closed = %v", err, ct.closed)
	}
}

func TestEventSinkSwallowsSendErrors(t *testing.T) {
	var buf bytes.Buffer
	applog.SetOutput(&buf)
	defer applog.SetOutput(os.Stderr)

	s := NewEventSink("flaky", &captureTransport{err: errors.New("offline")})
	s.OnJobStarted("job-2")

	if !strings.Contains(buf.String(), "flaky: failed to publish job_started for job job-2: offline") {
		t.Errorf("log = %q", buf.String())
	}
}

type recordingSink struct {
	name   string
	events *[]string
}

func (r recordingSink) OnJobStarted(string) { *r.events = append(*r.events, r.name+":start") }
func (r recordingSink) OnPredictionsUpdated(string, map[classifier.ID]float64) {
	*r.events = append(*r.events, r.name+":predictions")
}
func (r recordingSink) OnTonalProfileUpdated(string, job.Tonal) {
	*r.events = append(*r.events, r.name+":tonal")
}
func (r recordingSink) OnJobFinished(string, bool, error) { *r.events = append(*r.events, r.name+":finish") }

func TestFanoutPreservesOrder(t *testing.T) {
	var events []string
	ct := &captureTransport{}
	f := Fanout{recordingSink{"a", &events}, recordingSink{"b", &events}, NewEventSink("c", ct)}

	f.OnJobStarted("j")
	f.OnJobFinished("j", true, nil)

	want := []string{"a:start", "b:start", "a:finish", "b:finish"}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", events, want)
	}
	if len(ct.sent) != 2 {
		t.Errorf("event sink got %d events", len(ct.sent))
	}
	if err := f.Close(); err != nil || !ct.closed {
		t.Errorf("Close = %v, closed = %v", err, ct.closed)
	}
}

func TestLoggingSink(t *testing.T) {
	var buf bytes.Buffer
	applog.SetOutput(&buf)
	defer applog.SetOutput(os.Stderr)

	s := NewLoggingSink()
	s.OnPredictionsUpdated("j", samplePredictions())
	s.OnTonalProfileUpdated("j", job.Unavailable(errors.New("too short")))
	s.OnTonalProfileUpdated("j", sampleTonal())
	s.OnJobFinished("j", false, errors.New("timeout"))

	out := buf.String()
	for _, want := range []string{
		"results: job j predictions: mood_happy=25.0% danceability=87.5%",
		"tonal profile unavailable: too short",
		"key A minor (0.71), 124.5 BPM",
		"job j failed: timeout",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestFormatScore(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0%"},
		{0.5, "50.0%"},
		{0.12345, "12.3%"},
		{1, "100.0%"},
	}
	for _, tt := range tests {
		if got := formatScore(tt.in); got != tt.want {
			t.Errorf("formatScore(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderCard(t *testing.T) {
	card := RenderCard("0123456789abcdef", samplePredictions(), sampleTonal(), true, nil)
	for _, want := range []string{"Analysis 01234567", "A minor", "124.5", "mood_happy", "87.5%"} {
		if !strings.Contains(card, want) {
			t.Errorf("card missing %q:\n%s", want, card)
		}
	}

	failed := RenderCard("j", nil, job.Unavailable(nil), false, errors.New("no features"))
	for _, want := range []string{"unavailable", "failed: no features"} {
		if !strings.Contains(failed, want) {
			t.Errorf("failed card missing %q:\n%s", want, failed)
		}
	}
}

func TestMeterBounds(t *testing.T) {
	for _, v := range []float64{-1, 0, 0.5, 1, 2} {
		if got := strings.Count(meter(v), "█") + strings.Count(meter(v), "░"); got != meterWidth {
			t.Errorf("meter(%v) has %d cells, want %d", v, got, meterWidth)
		}
	}
}

func TestConsoleSinkPrintsOnFinish(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf)
	s.OnJobStarted("j")
	s.OnPredictionsUpdated("j", samplePredictions())
	if buf.Len() != 0 {
		t.Fatal("console sink printed before the job finished")
	}
	s.OnTonalProfileUpdated("j", sampleTonal())
	s.OnJobFinished("j", true, nil)
	if !strings.Contains(buf.String(), "danceability") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestProgressSinkLifecycle(t *testing.T) {
	var buf bytes.Buffer
	s := NewProgressSink(&buf)
	s.OnJobStarted("job-a")
	s.OnTonalProfileUpdated("job-a", sampleTonal())
	s.OnPredictionsUpdated("job-a", samplePredictions())
	s.OnJobFinished("job-a", true, nil)

	s.OnJobStarted("job-b")
	s.OnJobFinished("job-b", false, errors.New("x"))

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
