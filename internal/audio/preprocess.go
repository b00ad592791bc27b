package audio

import (
	"fmt"
	"math"
)

// Preprocessor converts decoded signals to the mono analysis format.
type Preprocessor struct {
	TargetRate float64
}

// Process downmixes s to mono and resamples it to TargetRate. The returned
// slice is freshly allocated; s is left untouched.
func (p Preprocessor) Process(s *Signal) ([]float64, error) {
	if s == nil || len(s.Samples) == 0 {
		return nil, ErrEmptySignal
	}
	if s.Channels <= 0 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidAudio, s.Channels)
	}
	if s.SampleRate <= 0 || p.TargetRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %v -> %v", ErrInvalidAudio, s.SampleRate, p.TargetRate)
	}
	if len(s.Samples)%s.Channels != 0 {
		return nil, fmt.Errorf("%w: %d samples do not divide into %d channels",
			ErrInvalidAudio, len(s.Samples), s.Channels)
	}

	mono := Downmix(s.Samples, s.Channels)
	for i, v := range mono {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite sample at frame %d", ErrInvalidAudio, i)
		}
	}
	if s.SampleRate == p.TargetRate {
		return mono, nil
	}
	return Resample(mono, s.SampleRate, p.TargetRate), nil
}

// Downmix averages interleaved channels into a new mono slice.
func Downmix(samples []float64, channels int) []float64 {
	frames := len(samples) / channels
	out := make([]float64, frames)
	if channels == 1 {
		copy(out, samples)
		return out
	}
	inv := 1 / float64(channels)
	for f := range out {
		var sum float64
		for _, v := range samples[f*channels : (f+1)*channels] {
			sum += v
		}
		out[f] = sum * inv
	}
	return out
}

// Resample converts mono samples between rates by linear interpolation.
func Resample(samples []float64, from, to float64) []float64 {
	if len(samples) == 0 || from == to {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	n := int(math.Round(float64(len(samples)) * to / from))
	if n < 1 {
		n = 1
	}
	out := make([]float64, n)
	step := from / to
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}
	return out
}
