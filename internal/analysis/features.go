// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Per-frame descriptors, each summarised by mean and standard deviation.
var frameDescriptors = []string{"rms", "zcr", "centroid", "rolloff", "flatness", "flux"}

// Whole-signal descriptors appended after the frame summaries.
var globalDescriptors = []string{"onset_rate", "pulse_clarity"}

const rolloffShare = 0.85

// FeatureNames lists the features Extract produces, in order.
func FeatureNames() []string {
	var names []string
	add := func(base string) { names = append(names, base+"_mean", base+"_std") }
	for _, d := range frameDescriptors {
		add(d)
	}
	for _, b := range DefaultBands {
		add("band_" + b.Name)
	}
	return append(names, globalDescriptors...)
}

// FeatureExtractor summarises a signal as a fixed-length vector of spectral
// and temporal statistics. Centroid and rolloff are expressed as a share of
// the Nyquist frequency and band energies as a share of frame energy, so
// most features fall in [0,1] regardless of sample rate.
type FeatureExtractor struct {
	FrameSize int
	HopSize   int
	Window    WindowFunc
}

// Extract returns the feature values in FeatureNames order.
func (e *FeatureExtractor) Extract(ctx context.Context, samples []float64, sampleRate float64) ([]float64, error) {
	if len(samples) < e.FrameSize {
		return nil, fmt.Errorf("%w: %d samples, need %d", ErrSignalTooShort, len(samples), e.FrameSize)
	}
	proc, err := NewFFTProcessor(e.FrameSize, sampleRate, e.Window)
	if err != nil {
		return nil, err
	}
	bands := NewBandEnergy(proc, DefaultBands)
	nyquist := sampleRate / 2

	starts := frameStarts(len(samples), e.FrameSize, e.HopSize)
	n := len(starts)
	series := make([][]float64, len(frameDescriptors)+len(DefaultBands))
	for i := range series {
		series[i] = make([]float64, n)
	}

	var mags, prev, fractions []float64
	spec := make([][]float64, 0, n)
	for f, start := range starts {
		if f%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		frame := samples[start : start+e.FrameSize]
		mags = proc.Magnitudes(nil, frame)
		spec = append(spec, mags)

		series[0][f] = rms(frame)
		series[1][f] = zeroCrossingRate(frame)
		series[2][f] = centroid(proc, mags) / nyquist
		series[3][f] = rolloff(proc, mags, rolloffShare) / nyquist
		series[4][f] = flatness(mags)
		series[5][f] = normalizedFlux(prev, mags)
		prev = mags

		fractions = bands.Fractions(fractions, mags)
		for b, v := range fractions {
			series[len(frameDescriptors)+b][f] = v
		}
	}

	out := make([]float64, 0, 2*len(series)+len(globalDescriptors))
	for _, s := range series {
		mean, std := stat.MeanStdDev(s, nil)
		if n == 1 {
			std = 0
		}
		out = append(out, mean, std)
	}

	frameRate := sampleRate / float64(e.HopSize)
	env := OnsetEnvelope(spec)
	_, clarity := EstimateTempo(env, frameRate)
	out = append(out, OnsetRate(env, frameRate), clarity)

	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = 0
		}
	}
	return out, nil
}

func rms(frame []float64) float64 {
	return math.Sqrt(floats.Dot(frame, frame) / float64(len(frame)))
}

func zeroCrossingRate(frame []float64) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] < 0) != (frame[i] < 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}

func centroid(sp SpectrumProvider, mags []float64) float64 {
	var num, den float64
	for i, m := range mags {
		num += sp.FrequencyForBin(i) * m
		den += m
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func rolloff(sp SpectrumProvider, mags []float64, share float64) float64 {
	var total float64
	for _, m := range mags {
		total += m * m
	}
	if total == 0 {
		return 0
	}
	var acc float64
	for i, m := range mags {
		acc += m * m
		if acc >= share*total {
			return sp.FrequencyForBin(i)
		}
	}
	return sp.FrequencyForBin(len(mags) - 1)
}

// flatness is the ratio of geometric to arithmetic mean power: 1 for a
// perfectly flat spectrum, near 0 for a pure tone.
func flatness(mags []float64) float64 {
	const eps = 1e-12
	var logSum, sum float64
	for _, m := range mags {
		p := m*m + eps
		logSum += math.Log(p)
		sum += p
	}
	n := float64(len(mags))
	if sum <= 2*n*eps {
		return 0
	}
	return math.Exp(logSum/n) / (sum / n)
}

// normalizedFlux compares the shapes of consecutive spectra, each scaled to
// unit sum, so the result is independent of loudness and lies in [0,1].
func normalizedFlux(prev, cur []float64) float64 {
	if prev == nil {
		return 0
	}
	ps, cs := floats.Sum(prev), floats.Sum(cur)
	if ps == 0 || cs == 0 {
		return 0
	}
	var flux float64
	for i := range cur {
		if d := cur[i]/cs - prev[i]/ps; d > 0 {
			flux += d
		}
	}
	return flux
}
