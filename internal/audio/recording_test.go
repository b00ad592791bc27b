// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		bitDepth int
		channels int
		tol      float64
	}{
		{"16-bit mono", 16, 1, 1.0 / 32767},
		{"16-bit stereo", 16, 2, 1.0 / 32767},
		{"24-bit mono", 24, 1, 1.0 / 8388607},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &Signal{Channels: tt.channels, SampleRate: 22050}
			for i := 0; i < 2000*tt.channels; i++ {
				in.Samples = append(in.Samples, 0.8*math.Sin(float64(i)*0.01))
			}

			path := filepath.Join(t.TempDir(), "roundtrip.wav")
			if err := SaveWAV(path, in, tt.bitDepth); err != nil {
				t.Fatalf("SaveWAV: %v", err)
			}
			out, err := DecodeFile(path)
			if err != nil {
				t.Fatalf("DecodeFile: %v", err)
			}
			if out.Channels != tt.channels || out.SampleRate != 22050 {
				t.Fatalf("format = %d ch @ %v", out.Channels, out.SampleRate)
			}
			if len(out.Samples) != len(in.Samples) {
				t.Fatalf("samples = %d, want %d", len(out.Samples), len(in.Samples))
			}
			for i := range in.Samples {
				if d := math.Abs(out.Samples[i] - in.Samples[i]); d > 2*tt.tol {
					t.Fatalf("sample %d off by %g", i, d)
				}
			}
		})
	}
}

func TestWriteWAVErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := SaveWAV(path, &Signal{Channels: 1, SampleRate: 8000}, 12); err == nil {
		t.Error("expected error for 12-bit output")
	}
	if err := SaveWAV(path, &Signal{Channels: 0, SampleRate: 8000}, 16); !errors.Is(err, ErrInvalidAudio) {
		t.Errorf("zero channels: %v", err)
	}
	if err := SaveWAV("/nonexistent/dir/file.wav", &Signal{Channels: 1, SampleRate: 8000}, 16); err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestDecodeWAVInvalid(t *testing.T) {
	if _, err := DecodeWAV(bytes.NewReader([]byte("definitely not RIFF data"))); !errors.Is(err, ErrInvalidAudio) {
		t.Errorf("garbage input: %v", err)
	}
	if _, err := DecodeFile(filepath.Join(t.TempDir(), "missing.wav")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: %v", err)
	}
}

func TestSignalDuration(t *testing.T) {
	s := &Signal{Samples: make([]float64, 32000), Channels: 2, SampleRate: 16000}
	if s.Frames() != 16000 {
		t.Errorf("Frames = %d", s.Frames())
	}
	if s.Duration().Seconds() != 1 {
		t.Errorf("Duration = %v", s.Duration())
	}
	s.Release()
	if s.Samples != nil || s.Frames() != 0 {
		t.Error("Release kept the buffer")
	}
	var nilSig *Signal
	if nilSig.Frames() != 0 || nilSig.Duration() != 0 {
		t.Error("nil signal has length")
	}
}
