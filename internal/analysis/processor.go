// SPDX-License-Identifier: MIT
package analysis

import "errors"

// ErrSignalTooShort is returned when a signal holds less than one analysis frame.
var ErrSignalTooShort = errors.New("signal too short for analysis")

// SpectrumProvider exposes the geometry of a magnitude spectrum so that
// band and chroma mappings can be computed once per processor rather than
// per frame.
type SpectrumProvider interface {
	FrequencyForBin(bin int) float64 // Center frequency (Hz) of a bin.
	Bins() int                       // Number of magnitude bins per frame.
	Size() int                       // FFT size in samples.
	SampleRate() float64             // Sample rate the spectrum was computed at.
}

// frameStarts returns the start offsets of consecutive frames of size
// advanced by hop. A signal shorter than one frame still yields offset 0.
func frameStarts(n, size, hop int) []int {
	if hop <= 0 {
		hop = size
	}
	if n <= size {
		return []int{0}
	}
	starts := make([]int, 0, (n-size)/hop+1)
	for s := 0; s+size <= n; s += hop {
		starts = append(starts, s)
	}
	return starts
}
