// SPDX-License-Identifier: MIT
package classifier

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"trackscan/internal/feature"
	"trackscan/internal/log"

	"github.com/vmihailenco/msgpack/v5"
)

// External scorers speak length-prefixed MessagePack over stdin/stdout:
// a 4-byte big-endian length followed by the encoded message. The first
// exchange is a "configure" request carrying the classifier name; the
// process answers ok=true once its model is loaded. Each "score" request
// carries the feature vector and is answered with one score.

const maxFrameSize = 16 << 20

var (
	// ErrScorerBroken is returned once an exchange failed or was cancelled
	// and left the stream in an unknown position.
	ErrScorerBroken = errors.New("scorer stream broken")
	// ErrFrameTooLarge guards against a corrupt length prefix.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Request is a message sent to an external scorer.
type Request struct {
	Op     string    `msgpack:"op"`
	ID     string    `msgpack:"id,omitempty"`
	Names  []string  `msgpack:"names,omitempty"`
	Values []float64 `msgpack:"values,omitempty"`
}

// Response is a message received from an external scorer.
type Response struct {
	OK    bool    `msgpack:"ok"`
	Score float64 `msgpack:"score"`
	Error string  `msgpack:"error,omitempty"`
}

// WriteFrame encodes v and writes it with its length prefix.
func WriteFrame(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal msgpack frame: %w", err)
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write msgpack data: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and decodes it into v.
func ReadFrame(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("failed to read msgpack data: %w", err)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal msgpack frame: %w", err)
	}
	return nil
}

// StreamScorer scores over an established request/response stream.
type StreamScorer struct {
	id ID
	r  io.Reader
	w  io.WriteCloser

	mu     sync.Mutex
	broken bool

	closeOnce sync.Once
	closeFn   func() error
}

var _ Scorer = (*StreamScorer)(nil)

// NewStreamScorer performs the configure handshake on (r, w).
func NewStreamScorer(ctx context.Context, id ID, r io.Reader, w io.WriteCloser) (*StreamScorer, error) {
	s := &StreamScorer{id: id, r: bufio.NewReader(r), w: w}
	resp, err := s.roundTrip(ctx, Request{Op: "configure", ID: id.String()})
	if err != nil {
		return nil, fmt.Errorf("configure %s: %w", id, err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("configure %s: %s", id, resp.Error)
	}
	return s, nil
}

// Score implements Scorer.
func (s *StreamScorer) Score(ctx context.Context, v feature.Vector) (float64, error) {
	resp, err := s.roundTrip(ctx, Request{Op: "score", Names: v.Names, Values: v.Values})
	if err != nil {
		return 0, err
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("%s: %s", s.id, resp.Error)
	}
	if resp.Score < 0 || resp.Score > 1 {
		return 0, fmt.Errorf("%s: score %v outside [0,1]", s.id, resp.Score)
	}
	return resp.Score, nil
}

func (s *StreamScorer) roundTrip(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return Response{}, ErrScorerBroken
	}

	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		if res.err = WriteFrame(s.w, req); res.err == nil {
			res.err = ReadFrame(s.r, &res.resp)
		}
		done <- res
	}()

	select {
	case res := <-done:
		if res.err != nil {
			s.broken = true
			return Response{}, fmt.Errorf("%w: %s: %w", ErrScorerBroken, s.id, res.err)
		}
		return res.resp, nil
	case <-ctx.Done():
		s.broken = true
		return Response{}, fmt.Errorf("%w: %s: %w", ErrScorerBroken, s.id, ctx.Err())
	}
}

// Close closes the request stream and releases the underlying process.
func (s *StreamScorer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.w.Close()
		if s.closeFn != nil {
			err = errors.Join(err, s.closeFn())
		}
	})
	return err
}

// StartExec launches argv as an external scorer for id.
func StartExec(ctx context.Context, id ID, argv []string) (*StreamScorer, error) {
	logger := log.New("scorer").With(id.String())

	cmd := exec.Command(argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scorer process: %w", err)
	}
	logger.Debugf("process started (pid %d)", cmd.Process.Pid)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debugf("%s", scanner.Text())
		}
	}()

	exited := make(chan error, 1)
	go func() {
		wg.Wait()
		exited <- cmd.Wait()
	}()

	s, err := NewStreamScorer(ctx, id, stdout, stdin)
	if err != nil {
		_ = cmd.Process.Kill()
		<-exited
		return nil, err
	}
	s.closeFn = func() error {
		select {
		case err := <-exited:
			return err
		case <-time.After(2 * time.Second):
			logger.Warnf("stop timeout, killing process")
			_ = cmd.Process.Kill()
			<-exited
			return nil
		}
	}
	return s, nil
}
