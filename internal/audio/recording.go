package audio

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV reads a complete WAV stream into a Signal.
func DecodeWAV(r io.ReadSeeker) (*Signal, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV stream", ErrInvalidAudio)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read PCM data: %v", ErrInvalidAudio, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: missing format information", ErrInvalidAudio)
	}
	if len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAudio, ErrEmptySignal)
	}

	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidAudio, bitDepth)
	}

	// 8-bit WAV is unsigned; wider formats are signed.
	scale := math.Ldexp(1, bitDepth-1)
	offset := 0.0
	if bitDepth == 8 {
		offset = scale
	}
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = (float64(v) - offset) / scale
	}
	return &Signal{
		Samples:    samples,
		Channels:   buf.Format.NumChannels,
		SampleRate: float64(buf.Format.SampleRate),
	}, nil
}

// DecodeFile opens and decodes the WAV file at path.
func DecodeFile(path string) (*Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// WriteWAV encodes s as PCM WAV at the given bit depth (16, 24 or 32).
func WriteWAV(w io.WriteSeeker, s *Signal, bitDepth int) error {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if s.Channels <= 0 || s.SampleRate <= 0 {
		return fmt.Errorf("%w: channels=%d rate=%v", ErrInvalidAudio, s.Channels, s.SampleRate)
	}

	enc := wav.NewEncoder(w, int(s.SampleRate), bitDepth, s.Channels, 1)
	maxVal := math.Ldexp(1, bitDepth-1) - 1
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: s.Channels,
			SampleRate:  int(s.SampleRate),
		},
		SourceBitDepth: bitDepth,
		Data:           make([]int, len(s.Samples)),
	}
	for i, v := range s.Samples {
		v = math.Max(-1, math.Min(1, v))
		buf.Data[i] = int(math.Round(v * maxVal))
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return nil
}

// SaveWAV writes s to a new file at path.
func SaveWAV(path string, s *Signal, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	if err := WriteWAV(f, s, bitDepth); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
