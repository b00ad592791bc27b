// SPDX-License-Identifier: MIT
/*
Package audio turns recordings into analysis-ready signals:
- WAV decoding and encoding via go-audio
- Downmix and resampling to the analysis rate
- Interior truncation of long signals before feature extraction
- Fixed-duration capture from PortAudio input devices

Ownership:
- A Signal handed to another stage belongs to that stage; the sender
  must not read or write its Samples afterwards.
*/
package audio

import (
	"errors"
	"time"
)

var (
	// ErrInvalidAudio is returned for unreadable or unsupported input.
	ErrInvalidAudio = errors.New("invalid audio")
	// ErrEmptySignal is returned when a signal holds no samples.
	ErrEmptySignal = errors.New("empty signal")
)

// Signal is an interleaved PCM buffer normalised to [-1, 1].
type Signal struct {
	Samples    []float64
	Channels   int
	SampleRate float64
}

// Frames returns the number of sample frames (samples per channel).
func (s *Signal) Frames() int {
	if s == nil || s.Channels <= 0 {
		return 0
	}
	return len(s.Samples) / s.Channels
}

// Duration returns the playing time of the signal.
func (s *Signal) Duration() time.Duration {
	if s == nil || s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(s.Frames()) / s.SampleRate * float64(time.Second))
}

// Release drops the sample buffer so it can be collected.
func (s *Signal) Release() {
	if s != nil {
		s.Samples = nil
	}
}
