package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Tempo search range.
const (
	MinBPM = 60.0
	MaxBPM = 200.0

	// priorBPM centers the log-normal tempo prior that breaks ties between
	// a beat period and its multiples.
	priorBPM    = 120.0
	priorOctave = 1.0
)

// OnsetEnvelope returns the half-wave rectified spectral flux of spec: for
// each frame, the summed increase in magnitude over the previous frame.
// Magnitudes are log-compressed so quiet onsets still register.
func OnsetEnvelope(spec [][]float64) []float64 {
	env := make([]float64, len(spec))
	var prev []float64
	for i, frame := range spec {
		cur := make([]float64, len(frame))
		for k, m := range frame {
			cur[k] = math.Log1p(100 * m)
		}
		if prev != nil {
			var flux float64
			for k := range cur {
				if d := cur[k] - prev[k]; d > 0 {
					flux += d
				}
			}
			env[i] = flux
		}
		prev = cur
	}
	return env
}

// EstimateTempo autocorrelates the mean-removed onset envelope over the lags
// spanning MinBPM..MaxBPM, weights each lag by a tempo prior and refines the
// winning lag by parabolic interpolation. frameRate is envelope frames per
// second. Clarity is the unweighted autocorrelation at the winning lag
// relative to lag zero, in [0,1]. A flat envelope yields (0, 0).
func EstimateTempo(env []float64, frameRate float64) (bpm, clarity float64) {
	if len(env) < 2 || frameRate <= 0 {
		return 0, 0
	}
	centered := make([]float64, len(env))
	copy(centered, env)
	floats.AddConst(-stat.Mean(env, nil), centered)

	energy := floats.Dot(centered, centered)
	if energy == 0 {
		return 0, 0
	}

	minLag := int(math.Ceil(frameRate * 60 / MaxBPM))
	maxLag := int(math.Floor(frameRate * 60 / MinBPM))
	minLag = max(minLag, 1)
	maxLag = min(maxLag, len(env)-1)
	if minLag > maxLag {
		return 0, 0
	}

	// Neighbours of the lag range are computed for the interpolation below;
	// the upper one only exists while the envelope is long enough.
	hi := min(maxLag+1, len(env)-1)
	acf := make([]float64, hi+1)
	for lag := max(minLag-1, 1); lag <= hi; lag++ {
		acf[lag] = floats.Dot(centered[:len(centered)-lag], centered[lag:]) / energy
	}

	bestLag, bestScore := 0, math.Inf(-1)
	for lag := minLag; lag <= maxLag; lag++ {
		t := 60 * frameRate / float64(lag)
		w := math.Log2(t/priorBPM) / priorOctave
		score := acf[lag] * math.Exp(-0.5*w*w)
		if score > bestScore {
			bestScore = score
			bestLag = lag
		}
	}
	if bestLag == 0 || acf[bestLag] <= 0 {
		return 0, 0
	}

	period := float64(bestLag)
	if bestLag > 1 && bestLag+1 < len(acf) {
		a, b, c := acf[bestLag-1], acf[bestLag], acf[bestLag+1]
		if den := a - 2*b + c; den < 0 {
			period += 0.5 * (a - c) / den
		}
	}
	return 60 * frameRate / period, math.Min(acf[bestLag], 1)
}

// OnsetRate counts local maxima of env above mean+std and returns them per second.
func OnsetRate(env []float64, frameRate float64) float64 {
	if len(env) < 3 || frameRate <= 0 {
		return 0
	}
	mean, std := stat.MeanStdDev(env, nil)
	threshold := mean + std
	count := 0
	for i := 1; i < len(env)-1; i++ {
		if env[i] > threshold && env[i] >= env[i-1] && env[i] > env[i+1] {
			count++
		}
	}
	return float64(count) / (float64(len(env)) / frameRate)
}
