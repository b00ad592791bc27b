package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trackscan/internal/audio"
	"trackscan/internal/job"
	"trackscan/pkg/utils"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(&Options{})
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClassifiersList(t *testing.T) {
	out, err := run(t, "classifiers", "--classifiers", "mood_sad,danceability")
	if err != nil {
		t.Fatalf("classifiers: %v", err)
	}
	for _, want := range []string{"mood_sad", "danceability", "tonal_atonal", "yes"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestUnknownClassifierFlag(t *testing.T) {
	if _, err := run(t, "classifiers", "--classifiers", "mood_grumpy"); err == nil {
		t.Fatal("expected error for unknown classifier")
	}
}

func TestInvalidLogLevel(t *testing.T) {
	if _, err := run(t, "classifiers", "--log-level", "chatty"); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestTokenRequiresSecret(t *testing.T) {
	if _, err := run(t, "token"); err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("err = %v", err)
	}

	path := filepath.Join(t.TempDir(), "trackscan.yaml")
	if err := os.WriteFile(path, []byte("server:\n  jwt_secret: s3cret\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "token", "--config", path, "--subject", "ci")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if parts := strings.Split(strings.TrimSpace(out), "."); len(parts) != 3 {
		t.Errorf("not a JWT: %q", out)
	}
}

func TestAnalyzeJSON(t *testing.T) {
	const rate = 16000
	path := filepath.Join(t.TempDir(), "tone.wav")
	sig := &audio.Signal{Samples: utils.GenerateComplexWave(rate*6, rate), Channels: 1, SampleRate: rate}
	if err := audio.SaveWAV(path, sig, 16); err != nil {
		t.Fatalf("SaveWAV: %v", err)
	}

	var stdout, stderr bytes.Buffer
	root := NewRootCommand(&Options{})
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs([]string{"analyze", "--json", "--classifiers", "mood_happy,mood_relaxed", path})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var agg job.Aggregate
	if err := json.Unmarshal(stdout.Bytes(), &agg); err != nil {
		t.Fatalf("stdout is not an aggregate: %v\n%s", err, stdout.String())
	}
	if !agg.Success || len(agg.Predictions) != 2 {
		t.Errorf("aggregate = %+v", agg)
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	_, err := run(t, "analyze", filepath.Join(t.TempDir(), "absent.wav"))
	if err == nil || !strings.Contains(err.Error(), "absent.wav") {
		t.Fatalf("err = %v", err)
	}
}

func TestPitchCommand(t *testing.T) {
	const rate = 16000
	path := filepath.Join(t.TempDir(), "a4.wav")
	sig := &audio.Signal{Samples: utils.GenerateSineWave(rate, rate, 440), Channels: 1, SampleRate: rate}
	if err := audio.SaveWAV(path, sig, 16); err != nil {
		t.Fatalf("SaveWAV: %v", err)
	}

	out, err := run(t, "pitch", "--chunk", "2048", path)
	if err != nil {
		t.Fatalf("pitch: %v", err)
	}
	if !strings.Contains(out, "A4") {
		t.Errorf("expected A4 in output:\n%s", out)
	}
}
