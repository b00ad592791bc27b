// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"trackscan/internal/config"
	"trackscan/internal/log"
)

// ErrSilentCapture is returned when no captured buffer passed the gate.
var ErrSilentCapture = errors.New("capture contained only silence")

// Recorder captures a fixed-length signal from a PortAudio input device.
type Recorder struct {
	cfg    config.CaptureConfig
	device *portaudio.DeviceInfo
	gate   *Gate
	logger *log.Logger

	// Capture state. The callback writes into captured and advances
	// written; done is closed once the buffer is full.
	captured []int32
	written  atomic.Int64
	done     chan struct{}
	full     atomic.Bool
}

// NewRecorder resolves the configured input device. PortAudio must be
// initialised by the caller.
func NewRecorder(cfg config.CaptureConfig) (*Recorder, error) {
	device, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}
	if device.MaxInputChannels < cfg.Channels {
		return nil, fmt.Errorf("device %s has %d input channels, need %d",
			device.Name, device.MaxInputChannels, cfg.Channels)
	}
	return &Recorder{
		cfg:    cfg,
		device: device,
		gate:   NewGate(cfg.SilenceTh),
		logger: log.New("capture"),
	}, nil
}

// Record captures cfg.Duration of audio and returns it as a Signal. When
// cfg.OutputDir is set the capture is also written there as a WAV file.
func (r *Recorder) Record(ctx context.Context) (*Signal, error) {
	total := int(r.cfg.Duration.Seconds()*r.cfg.SampleRate) * r.cfg.Channels
	if total <= 0 {
		return nil, fmt.Errorf("capture duration %v is too short", r.cfg.Duration)
	}
	r.captured = make([]int32, total)
	r.written.Store(0)
	r.full.Store(false)
	r.done = make(chan struct{})
	r.gate.Reset()

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: r.cfg.Channels,
			Device:   r.device,
			Latency:  r.device.DefaultHighInputLatency,
		},
		FramesPerBuffer: r.cfg.FramesPerBuffer,
		SampleRate:      r.cfg.SampleRate,
	}
	stream, err := portaudio.OpenStream(params, r.processInputStream)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}
	r.logger.Infof("recording %v from %s", r.cfg.Duration, r.device.Name)

	// Allow one extra second for device start-up before giving up.
	deadline := time.NewTimer(r.cfg.Duration + time.Second)
	defer deadline.Stop()

	var waitErr error
	select {
	case <-r.done:
	case <-deadline.C:
		r.logger.Warnf("device delivered %d of %d samples", r.written.Load(), total)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}
	if err := stream.Stop(); err != nil && waitErr == nil {
		waitErr = fmt.Errorf("failed to stop input stream: %w", err)
	}
	if waitErr != nil {
		return nil, waitErr
	}

	n := int(r.written.Load())
	n -= n % r.cfg.Channels
	sig := r.toSignal(r.captured[:n])
	r.captured = nil

	if !r.gate.Opened() {
		return nil, ErrSilentCapture
	}
	if r.cfg.OutputDir != "" {
		path := filepath.Join(r.cfg.OutputDir, fmt.Sprintf("capture_%s.wav", time.Now().Format("20060102_150405")))
		if err := SaveWAV(path, sig, 16); err != nil {
			r.logger.Warnf("failed to keep capture: %v", err)
		} else {
			r.logger.Infof("capture saved to %s", path)
		}
	}
	return sig, nil
}

// processInputStream is the PortAudio callback. It only copies into the
// pre-allocated capture buffer.
func (r *Recorder) processInputStream(in []int32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if r.full.Load() {
		return
	}
	r.gate.Observe(in)

	pos := int(r.written.Load())
	n := copy(r.captured[pos:], in)
	r.written.Store(int64(pos + n))
	if pos+n == len(r.captured) && r.full.CompareAndSwap(false, true) {
		close(r.done)
	}
}

func (r *Recorder) toSignal(raw []int32) *Signal {
	samples := make([]float64, len(raw))
	for i, v := range raw {
		samples[i] = float64(v) / math.MaxInt32
	}
	return &Signal{
		Samples:    samples,
		Channels:   r.cfg.Channels,
		SampleRate: r.cfg.SampleRate,
	}
}
