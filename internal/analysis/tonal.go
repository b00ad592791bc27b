// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoTempo is returned when the onset envelope has no periodicity in the
// tempo search range.
var ErrNoTempo = errors.New("no tempo detected")

// TonalProfile is the key and tempo of one recording.
type TonalProfile struct {
	Key          string     `json:"key"`
	Scale        Scale      `json:"scale"`
	KeyStrength  float64    `json:"keyStrength"`
	BPM          float64    `json:"bpm"`
	PulseClarity float64    `json:"pulseClarity"`
	Candidates   []KeyGuess `json:"candidates,omitempty"`
}

// TonalEstimator derives a TonalProfile from a full-length mono signal.
type TonalEstimator struct {
	KeyFrameSize   int // FFT size for chroma; longer frames resolve low notes.
	TempoFrameSize int // FFT size for the onset envelope.
	TempoHop       int
	Window         WindowFunc
}

// NewTonalEstimator returns an estimator with frame sizes suited to 16-48kHz audio.
func NewTonalEstimator() *TonalEstimator {
	return &TonalEstimator{
		KeyFrameSize:   4096,
		TempoFrameSize: 1024,
		TempoHop:       256,
		Window:         Hann,
	}
}

// Estimate computes key and tempo. It fails when the signal is shorter than
// one key frame or carries no detectable pulse; callers treat both as a
// missing profile rather than a failed analysis.
func (e *TonalEstimator) Estimate(ctx context.Context, samples []float64, sampleRate float64) (TonalProfile, error) {
	if len(samples) < e.KeyFrameSize {
		return TonalProfile{}, fmt.Errorf("%w: %d samples", ErrSignalTooShort, len(samples))
	}

	keyFFT, err := NewFFTProcessor(e.KeyFrameSize, sampleRate, e.Window)
	if err != nil {
		return TonalProfile{}, err
	}
	chroma := Chroma(keyFFT, keyFFT.Spectrogram(samples, e.KeyFrameSize/2))
	if err := ctx.Err(); err != nil {
		return TonalProfile{}, err
	}
	guesses := EstimateKey(chroma)
	best := guesses[0]
	if best.Score <= 0 {
		return TonalProfile{}, errors.New("no tonal center detected")
	}

	tempoFFT, err := NewFFTProcessor(e.TempoFrameSize, sampleRate, e.Window)
	if err != nil {
		return TonalProfile{}, err
	}
	env := OnsetEnvelope(tempoFFT.Spectrogram(samples, e.TempoHop))
	if err := ctx.Err(); err != nil {
		return TonalProfile{}, err
	}
	bpm, clarity := EstimateTempo(env, sampleRate/float64(e.TempoHop))
	if bpm <= 0 {
		return TonalProfile{}, ErrNoTempo
	}

	return TonalProfile{
		Key:          best.Tonic,
		Scale:        best.Scale,
		KeyStrength:  best.Score,
		BPM:          bpm,
		PulseClarity: clarity,
		Candidates:   guesses[:3],
	}, nil
}
