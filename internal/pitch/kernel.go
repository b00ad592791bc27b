// SPDX-License-Identifier: MIT
package pitch

import "math"

const (
	// ChunkSize is the number of samples per pitch estimate.
	ChunkSize = 2048

	// NoMatchThreshold is the initial best difference sum. A lag is only
	// accepted when its sum is strictly below it.
	NoMatchThreshold = 1.0

	// minChunk is the shortest chunk with at least one candidate lag.
	minChunk = 4
)

// AutoCorrelate estimates the fundamental frequency of chunk using a
// difference-sum autocorrelation. For every lag in [1, len/2) it sums
// |x[j] - x[j+lag]| over the first half of the chunk; the smallest sum wins
// if it is below NoMatchThreshold, and the estimate is sampleRate/lag.
//
// It returns 0 when no lag qualifies, when the chunk is flat (silence has a
// zero sum at every lag and carries no period), or when the chunk is too
// short. Cost is quadratic in len(chunk).
func AutoCorrelate(chunk []float64, sampleRate float64) float64 {
	n := len(chunk)
	if n < minChunk || sampleRate <= 0 || isFlat(chunk) {
		return 0
	}
	half := n / 2

	best := NoMatchThreshold
	bestLag := 0
	for lag := 1; lag < half; lag++ {
		var sum float64
		for j := 0; j < half; j++ {
			sum += math.Abs(chunk[j] - chunk[j+lag])
			if sum >= best {
				break
			}
		}
		if sum < best {
			best = sum
			bestLag = lag
		}
	}

	if bestLag == 0 {
		return 0
	}
	return sampleRate / float64(bestLag)
}

func isFlat(chunk []float64) bool {
	first := chunk[0]
	for _, v := range chunk[1:] {
		if v != first {
			return false
		}
	}
	return true
}
