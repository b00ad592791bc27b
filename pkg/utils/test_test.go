// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"testing"
)

const (
	testSize       = 1024
	testSampleRate = 44100
	testFrequency  = 440.0
)

func TestGenerateSineWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
		frequency  float64
	}{
		{"A4", testSize, testSampleRate, testFrequency},
		{"Low", 4096, 16000, 100},
		{"High", 2048, 48000, 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wave := GenerateSineWave(tt.size, tt.sampleRate, tt.frequency)
			if len(wave) != tt.size {
				t.Fatalf("len = %d, want %d", len(wave), tt.size)
			}
			crossings := 0
			for i := 1; i < len(wave); i++ {
				if (wave[i-1] < 0) != (wave[i] < 0) {
					crossings++
				}
			}
			expected := float64(tt.size) / (tt.sampleRate / tt.frequency / 2)
			if math.Abs(float64(crossings)-expected) > 0.2*expected {
				t.Errorf("zero crossings = %d, expected about %.1f", crossings, expected)
			}
		})
	}
}

func TestGeneratePeriodic(t *testing.T) {
	const period = 37
	wave := GeneratePeriodic(500, period)
	for i := 0; i+period < len(wave); i++ {
		if wave[i] != wave[i+period] {
			t.Fatalf("x[%d] != x[%d]", i, i+period)
		}
	}
	for p := 1; p < period; p++ {
		if wave[0] == wave[p] {
			t.Fatalf("shorter period %d found", p)
		}
	}
}

func TestGenerateClickTrack(t *testing.T) {
	const rate = 8000.0
	wave := GenerateClickTrack(int(rate)*2, rate, 120)
	interval := int(rate / 2)
	for _, at := range []int{0, interval, 2 * interval, 3 * interval} {
		if wave[at+1] == 0 {
			t.Errorf("no click at %d", at)
		}
	}
	if wave[interval/2] != 0 {
		t.Errorf("unexpected energy between clicks")
	}
}

func TestFindPeakBin(t *testing.T) {
	mags := make([]float64, testSize)
	for i := range mags {
		mags[i] = math.Exp(-0.01 * math.Pow(float64(i-testSize/4), 2))
	}
	tests := []struct {
		name     string
		mags     []float64
		start    int
		end      int
		expected int
	}{
		{"Full Range", mags, 0, testSize - 1, testSize / 4},
		{"Partial Range", mags, testSize / 8, testSize / 3, testSize / 4},
		{"Negative Start", mags, -10, testSize - 1, testSize / 4},
		{"Out of Range End", mags, 0, testSize * 2, testSize / 4},
		{"Empty Slice", []float64{}, 0, 10, 0},
		{"Single Value", []float64{1.0}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindPeakBin(tt.mags, tt.start, tt.end); got != tt.expected {
				t.Errorf("FindPeakBin() = %d, want %d", got, tt.expected)
			}
		})
	}

	allocs := testing.AllocsPerRun(100, func() {
		FindPeakBin(mags, 0, len(mags)-1)
	})
	if allocs > 0 {
		t.Errorf("FindPeakBin allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkGenerateComplexWave(b *testing.B) {
	for _, size := range []int{64, 1024, 8192} {
		b.Run("", func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				GenerateComplexWave(size, testSampleRate)
			}
		})
	}
}
