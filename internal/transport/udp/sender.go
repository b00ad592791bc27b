package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	applog "trackscan/internal/log"
)

var logger = applog.New("udp")

var ErrSenderClosed = errors.New("udp sender is closed")

// Sender writes datagrams to one target address.
type Sender struct {
	conn       *net.UDPConn
	targetAddr *net.UDPAddr
	mu         sync.Mutex
	closed     bool
}

// NewSender dials target, e.g. "127.0.0.1:9090".
func NewSender(target string) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", target, err)
	}
	logger.Infof("sender connected to %s", conn.RemoteAddr())
	return &Sender{conn: conn, targetAddr: udpAddr}, nil
}

// Send transmits data as one datagram. Safe for concurrent use.
func (s *Sender) Send(data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSenderClosed
	}
	_, err := s.conn.Write(data)
	s.mu.Unlock()

	if err != nil {
		logger.Debugf("send to %s failed: %v", s.targetAddr, err)
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Close closes the connection. Later calls are no-ops.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}

// Write implements io.Writer on top of Send.
func (s *Sender) Write(b []byte) (int, error) {
	if err := s.Send(b); err != nil {
		return 0, err
	}
	return len(b), nil
}
