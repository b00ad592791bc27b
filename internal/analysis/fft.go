// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"strings"

	"trackscan/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "BartlettHann"
	case Blackman:
		return "Blackman"
	case BlackmanNuttall:
		return "BlackmanNuttall"
	case Hann:
		return "Hann"
	case Hamming:
		return "Hamming"
	case Lanczos:
		return "Lanczos"
	case Nuttall:
		return "Nuttall"
	default:
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
}

// FFTProcessor computes windowed magnitude spectra of fixed-size frames.
// It reuses its buffers between calls and is therefore not safe for
// concurrent use; give each goroutine its own processor.
type FFTProcessor struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64
	window     []float64
	input      []float64
	coeffs     []complex128
}

var _ SpectrumProvider = (*FFTProcessor)(nil)

// NewFFTProcessor returns a processor for frames of size samples.
func NewFFTProcessor(size int, sampleRate float64, windowType WindowFunc) (*FFTProcessor, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	coeffs := make([]float64, size)
	applyWindow(coeffs, windowType)
	return &FFTProcessor{
		fft:        fourier.NewFFT(size),
		size:       size,
		sampleRate: sampleRate,
		window:     coeffs,
		input:      make([]float64, size),
		coeffs:     make([]complex128, size/2+1),
	}, nil
}

// Magnitudes windows frame (zero-padded to the FFT size), transforms it and
// writes the size/2+1 magnitudes into dst, which is grown if needed.
func (p *FFTProcessor) Magnitudes(dst, frame []float64) []float64 {
	for i := range p.size {
		if i < len(frame) {
			p.input[i] = frame[i] * p.window[i]
		} else {
			p.input[i] = 0
		}
	}
	p.fft.Coefficients(p.coeffs, p.input)

	if cap(dst) < len(p.coeffs) {
		dst = make([]float64, len(p.coeffs))
	}
	dst = dst[:len(p.coeffs)]
	for i, c := range p.coeffs {
		dst[i] = cmplx.Abs(c)
	}
	return dst
}

// Spectrogram returns the magnitude spectrum of every full frame of samples
// advanced by hop. A signal shorter than one frame yields a single
// zero-padded frame.
func (p *FFTProcessor) Spectrogram(samples []float64, hop int) [][]float64 {
	starts := frameStarts(len(samples), p.size, hop)
	spec := make([][]float64, len(starts))
	for i, start := range starts {
		end := min(start+p.size, len(samples))
		spec[i] = p.Magnitudes(nil, samples[start:end])
	}
	return spec
}

// FrequencyForBin returns the center frequency (Hz) for a given bin index.
func (p *FFTProcessor) FrequencyForBin(bin int) float64 {
	if bin < 0 || bin >= len(p.coeffs) {
		return 0
	}
	return float64(bin) * p.sampleRate / float64(p.size)
}

// Size returns the configured FFT size.
func (p *FFTProcessor) Size() int { return p.size }

// Bins returns the number of magnitude bins per frame.
func (p *FFTProcessor) Bins() int { return len(p.coeffs) }

// SampleRate returns the configured sample rate (Hz).
func (p *FFTProcessor) SampleRate() float64 { return p.sampleRate }

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window. Unknown types fall back
// to Hann.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
}
