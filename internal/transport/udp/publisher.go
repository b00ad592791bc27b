// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"trackscan/internal/analysis"
	"trackscan/internal/classifier"
	"trackscan/internal/job"
)

// Snapshot flags.
const (
	FlagFinished uint8 = 1 << iota
	FlagSuccess
	FlagTonal
	FlagMinor
)

/*
Packet layout (BigEndian):

	+--------------+-------------+-------+----------+---------+-----------+-----------+---------+-----------------+
	| Sequence     | Timestamp   | JobID | Flags    | Key     | BPM       | Strength  | Count N | Scores          |
	| uint32       | int64 (ns)  | 16 B  | uint8    | int8    | float32   | float32   | uint16  | N x (uint8,f32) |
	+--------------+-------------+-------+----------+---------+-----------+-----------+---------+-----------------+

Key is the tonic pitch class 0..11 (C..B) or -1 when no tonal profile is
available. Scores are sorted by classifier ID.
*/
const headerSize = 4 + 8 + 16 + 1 + 1 + 4 + 4 + 2

// Packet is a decoded snapshot datagram.
type Packet struct {
	Sequence    uint32
	Timestamp   time.Time
	JobID       uuid.UUID
	Flags       uint8
	Key         int8
	BPM         float32
	KeyStrength float32
	Scores      map[classifier.ID]float32
}

type header struct {
	Sequence    uint32
	Timestamp   int64
	JobID       [16]byte
	Flags       uint8
	Key         int8
	BPM         float32
	KeyStrength float32
	Count       uint16
}

type scoreEntry struct {
	ID    uint8
	Score float32
}

// Decode parses a datagram produced by Publisher.
func Decode(b []byte) (Packet, error) {
	if len(b) < headerSize {
		return Packet{}, fmt.Errorf("short packet: %d bytes", len(b))
	}
	r := bytes.NewReader(b)
	var h header
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return Packet{}, fmt.Errorf("failed to read header: %w", err)
	}
	entries := make([]scoreEntry, h.Count)
	if err := binary.Read(r, binary.BigEndian, entries); err != nil {
		return Packet{}, fmt.Errorf("failed to read %d scores: %w", h.Count, err)
	}
	p := Packet{
		Sequence:    h.Sequence,
		Timestamp:   time.Unix(0, h.Timestamp),
		JobID:       h.JobID,
		Flags:       h.Flags,
		Key:         h.Key,
		BPM:         h.BPM,
		KeyStrength: h.KeyStrength,
		Scores:      make(map[classifier.ID]float32, len(entries)),
	}
	for _, e := range entries {
		p.Scores[classifier.ID(e.ID)] = e.Score
	}
	return p, nil
}

// Publisher sends the latest job snapshot as a datagram whenever it changes
// and, while started, on every tick so late listeners catch up.
type Publisher struct {
	sender   io.Writer
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // guards everything below and the start/stop fields

	sequenceNum  uint32
	snap         header
	scores       []scoreEntry
	live         bool
	packetBuffer *bytes.Buffer
}

// NewPublisher writes datagrams to sender. interval <= 0 disables resends.
func NewPublisher(interval time.Duration, sender io.Writer) (*Publisher, error) {
	if sender == nil {
		return nil, errors.New("udp publisher: sender cannot be nil")
	}
	return &Publisher{
		sender:       sender,
		interval:     interval,
		snap:         header{Key: -1},
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins periodic resends. Repeated calls are no-ops.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil || p.interval <= 0 {
		p.mu.Unlock()
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker, done := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logger.Debugf("publisher started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.mu.Lock()
				if p.live {
					p.sendLocked()
				}
				p.mu.Unlock()
			case <-done:
				return
			}
		}
	}()
}

// Stop ends periodic resends and waits for the goroutine to exit.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

// Close stops the publisher and closes the sender if it is closable.
func (p *Publisher) Close() error {
	err := p.Stop()
	if c, ok := p.sender.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}

func (p *Publisher) sendLocked() {
	p.sequenceNum++
	h := p.snap
	h.Sequence = p.sequenceNum
	h.Timestamp = time.Now().UnixNano()
	h.Count = uint16(len(p.scores))

	p.packetBuffer.Reset()
	err := binary.Write(p.packetBuffer, binary.BigEndian, h)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.scores)
	}
	if err != nil {
		logger.Errorf("failed to pack snapshot: %v", err)
		return
	}
	if _, err := p.sender.Write(p.packetBuffer.Bytes()); err != nil {
		logger.Debugf("snapshot %d not sent: %v", p.sequenceNum, err)
	}
}

func (p *Publisher) OnJobStarted(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, _ := uuid.Parse(jobID)
	p.snap = header{JobID: id, Key: -1}
	p.scores = p.scores[:0]
	p.live = true
	p.sendLocked()
}

func (p *Publisher) OnPredictionsUpdated(_ string, predictions map[classifier.ID]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scores = p.scores[:0]
	for id, v := range predictions {
		p.scores = append(p.scores, scoreEntry{ID: uint8(id), Score: float32(v)})
	}
	slices.SortFunc(p.scores, func(a, b scoreEntry) int { return int(a.ID) - int(b.ID) })
	p.sendLocked()
}

func (p *Publisher) OnTonalProfileUpdated(_ string, t job.Tonal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Flags &^= FlagTonal | FlagMinor
	p.snap.Key = -1
	p.snap.BPM, p.snap.KeyStrength = 0, 0
	if t.Available && t.Profile != nil {
		p.snap.Flags |= FlagTonal
		if t.Profile.Scale == analysis.Minor {
			p.snap.Flags |= FlagMinor
		}
		p.snap.Key = int8(analysis.PitchClass(t.Profile.Key))
		p.snap.BPM = float32(t.Profile.BPM)
		p.snap.KeyStrength = float32(t.Profile.KeyStrength)
	}
	p.sendLocked()
}

func (p *Publisher) OnJobFinished(_ string, success bool, _ error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Flags |= FlagFinished
	if success {
		p.snap.Flags |= FlagSuccess
	}
	p.sendLocked()
}

var _ job.Sink = (*Publisher)(nil)
