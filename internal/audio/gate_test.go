// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"strconv"
	"testing"
)

var (
	quietBuffer = makeBuffer(1024, 1000)
	loudBuffer  = makeBuffer(1024, math.MaxInt32/2)
)

// makeBuffer returns a square-ish wave alternating between +peak and -peak.
func makeBuffer(n int, peak int32) []int32 {
	buf := make([]int32, n)
	for i := range buf {
		v := peak - int32(i%7)
		if i%2 == 1 {
			v = -v
		}
		buf[i] = v
	}
	return buf
}

func TestGateThresholdBoundaries(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{-0.1, 0.0}, // Below min
		{0.0, 0.0},
		{0.5, 0.5},
		{1.0, 1.0},
		{1.5, 1.0}, // Above max
	}

	g := &Gate{}
	for _, tt := range tests {
		t.Run(strconv.FormatFloat(tt.input, 'f', 2, 64), func(t *testing.T) {
			g.SetThreshold(tt.input)
			if got := g.Threshold(); math.Abs(got-tt.expected) > 0.001 {
				t.Errorf("Gate threshold conversion: got %.3f, want %.3f", got, tt.expected)
			}
		})
	}
}

func TestGateObserve(t *testing.T) {
	tests := []struct {
		desc      string
		buffer    []int32
		threshold float64
		want      bool
	}{
		{"Quiet signal/Low threshold", quietBuffer, 0.0000001, true},
		{"Quiet signal/Mid threshold", quietBuffer, 0.1, false},
		{"Loud signal/Mid threshold", loudBuffer, 0.1, true},
		{"Loud signal/High threshold", loudBuffer, 0.999, false},
		{"Empty buffer", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			g := NewGate(tt.threshold)
			if got := g.Observe(tt.buffer); got != tt.want {
				t.Errorf("Observe = %v, want %v (peak=%d, threshold=%d)", got, tt.want, Peak(tt.buffer), g.threshold)
			}
			if g.Opened() != tt.want {
				t.Errorf("Opened = %v after one buffer", g.Opened())
			}
		})
	}
}

func TestGateStaysOpenUntilReset(t *testing.T) {
	g := NewGate(0.1)
	g.Observe(loudBuffer)
	g.Observe(quietBuffer)
	if !g.Opened() {
		t.Fatal("gate closed after a quiet buffer followed a loud one")
	}
	g.Reset()
	if g.Opened() {
		t.Error("gate still open after Reset")
	}
}

func TestPeak(t *testing.T) {
	tests := []struct {
		name string
		buf  []int32
		want int32
	}{
		{"empty", nil, 0},
		{"positive", []int32{1, 5, 3}, 5},
		{"negative", []int32{-2, -9, 4}, 9},
		{"min int ignored", []int32{math.MinInt32, 12}, 12},
		{"full scale", []int32{math.MaxInt32, -1}, math.MaxInt32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Peak(tt.buf); got != tt.want {
				t.Errorf("Peak(%v) = %d, want %d", tt.buf, got, tt.want)
			}
		})
	}
}

func TestPeakNoAllocs(t *testing.T) {
	allocs := testing.AllocsPerRun(100, func() {
		_ = Peak(loudBuffer)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Peak, got %.1f", allocs)
	}
}

func BenchmarkPeak(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		_ = Peak(loudBuffer)
	}
}
