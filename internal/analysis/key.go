// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Scale is the mode of an estimated key.
type Scale string

const (
	Major Scale = "major"
	Minor Scale = "minor"
)

// Krumhansl-Kessler key profiles, tonic first.
var (
	majorProfile = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}

	pitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
)

// Chroma range; below it bins are too coarse, above it harmonics dominate.
const (
	chromaMinHz = 65.0
	chromaMaxHz = 2100.0
	peakFloor   = 0.01
)

// KeyGuess is one candidate key with its profile correlation.
type KeyGuess struct {
	Tonic string  `json:"tonic"`
	Scale Scale   `json:"scale"`
	Score float64 `json:"score"`
}

// Name returns e.g. "A minor".
func (k KeyGuess) Name() string { return k.Tonic + " " + string(k.Scale) }

// Chroma folds spec into a 12-bin pitch-class profile averaged over frames.
// Only spectral peaks within peakFloor of the frame maximum contribute, so
// window leakage and broadband noise do not flatten the profile.
func Chroma(sp SpectrumProvider, spec [][]float64) [12]float64 {
	pcOfBin := make([]int, sp.Bins())
	for i := range pcOfBin {
		pcOfBin[i] = -1
		f := sp.FrequencyForBin(i)
		if f < chromaMinHz || f > chromaMaxHz {
			continue
		}
		midi := int(math.Round(12*math.Log2(f/440.0) + 69))
		pcOfBin[i] = ((midi % 12) + 12) % 12
	}

	var sum [12]float64
	for _, mags := range spec {
		if len(mags) < 3 {
			continue
		}
		floor := floats.Max(mags) * peakFloor
		for bin := 1; bin < len(mags)-1 && bin < len(pcOfBin); bin++ {
			pc := pcOfBin[bin]
			m := mags[bin]
			if pc < 0 || m <= floor || m < mags[bin-1] || m <= mags[bin+1] {
				continue
			}
			sum[pc] += m
		}
	}
	if len(spec) > 0 {
		for i := range sum {
			sum[i] /= float64(len(spec))
		}
	}
	return sum
}

// EstimateKey correlates chroma with the 24 rotated major and minor profiles
// and returns the candidates ordered best first. A flat chroma correlates
// with nothing and every score is 0.
func EstimateKey(chroma [12]float64) []KeyGuess {
	guesses := make([]KeyGuess, 0, 24)
	var rotated [12]float64
	for root := range 12 {
		rotate(&rotated, &majorProfile, root)
		guesses = append(guesses, KeyGuess{Tonic: pitchClasses[root], Scale: Major, Score: correlate(chroma[:], rotated[:])})
		rotate(&rotated, &minorProfile, root)
		guesses = append(guesses, KeyGuess{Tonic: pitchClasses[root], Scale: Minor, Score: correlate(chroma[:], rotated[:])})
	}
	sort.SliceStable(guesses, func(i, j int) bool { return guesses[i].Score > guesses[j].Score })
	return guesses
}

func rotate(dst, profile *[12]float64, shift int) {
	for i := range 12 {
		dst[i] = profile[(i-shift+12)%12]
	}
}

func correlate(a, b []float64) float64 {
	if floats.Max(a) == floats.Min(a) {
		return 0
	}
	return stat.Correlation(a, b, nil)
}

// PitchClass returns the index 0..11 of a tonic name such as "F#", or -1.
func PitchClass(tonic string) int {
	for i, pc := range pitchClasses {
		if pc == tonic {
			return i
		}
	}
	return -1
}

// PitchClassName is the inverse of PitchClass.
func PitchClassName(i int) string {
	if i < 0 || i >= len(pitchClasses) {
		return ""
	}
	return pitchClasses[i]
}
