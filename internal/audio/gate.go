// SPDX-License-Identifier: MIT
package audio

import "math"

// Gate tracks whether captured buffers rise above a silence threshold. The
// threshold is held as an absolute int32 amplitude so the capture callback
// compares raw samples without conversion.
type Gate struct {
	threshold int32
	opened    bool
}

// NewGate returns a gate with the given threshold, see SetThreshold.
func NewGate(threshold float64) *Gate {
	g := &Gate{}
	g.SetThreshold(threshold)
	return g
}

// SetThreshold adjusts the silence threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	threshold = math.Max(0, math.Min(1, threshold))
	g.threshold = int32(threshold * float64(math.MaxInt32))
}

// Threshold returns the current threshold as a float64 in 0.0-1.0.
func (g *Gate) Threshold() float64 {
	return float64(g.threshold) / float64(math.MaxInt32)
}

// Observe records one buffer and reports whether it passed the gate.
func (g *Gate) Observe(buffer []int32) bool {
	open := Peak(buffer) > g.threshold
	if open {
		g.opened = true
	}
	return open
}

// Opened reports whether any observed buffer passed the gate.
func (g *Gate) Opened() bool { return g.opened }

// Reset forgets earlier observations.
func (g *Gate) Reset() { g.opened = false }

// Peak returns the largest absolute sample without branching.
// A math.MinInt32 sample has no positive counterpart and is ignored.
func Peak(buffer []int32) int32 {
	var maxAmplitude int32
	for _, sample := range buffer {
		mask := sample >> 31
		amplitude := ((sample ^ mask) - mask) & math.MaxInt32
		diff := amplitude - maxAmplitude
		maxAmplitude += (diff & (diff >> 31)) ^ diff
	}
	return maxAmplitude
}
