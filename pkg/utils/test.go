// Package utils provides deterministic signal generators for tests and
// benchmarks across the analysis packages.
package utils

import "math"

// GenerateSineWave returns size samples of a unit-amplitude sine at frequency.
func GenerateSineWave(size int, sampleRate, frequency float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = math.Sin(2 * math.Pi * frequency * t)
	}
	return buffer
}

// GenerateComplexWave returns a 440Hz fundamental with two harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		buffer[i] = math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
	}
	return buffer
}

// GeneratePeriodic repeats a fixed ramp of length period, so x[i] == x[i+period]
// holds exactly and no shorter period exists.
func GeneratePeriodic(size, period int) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		buffer[i] = float64(i%period)/float64(period) - 0.5
	}
	return buffer
}

// GenerateClickTrack returns decaying noise bursts at bpm over a quiet
// background, suitable for tempo estimation.
func GenerateClickTrack(size int, sampleRate, bpm float64) []float64 {
	buffer := make([]float64, size)
	interval := int(math.Round(60 / bpm * sampleRate))
	clickLen := int(sampleRate / 100)
	seed := uint32(1)
	for start := 0; start < size; start += interval {
		for j := 0; j < clickLen && start+j < size; j++ {
			seed = seed*1664525 + 1013904223
			noise := float64(seed)/float64(math.MaxUint32)*2 - 1
			buffer[start+j] = noise * math.Exp(-float64(j)/float64(clickLen)*5)
		}
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	startBin = max(startBin, 0)
	endBin = min(endBin, len(magnitudes)-1)

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
