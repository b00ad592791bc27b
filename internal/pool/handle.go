package pool

import (
	"sync/atomic"
	"time"

	"trackscan/internal/classifier"
)

// State is the readiness of one worker.
type State int32

const (
	Spawning State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Spawning:
		return "spawning"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Handle is the pool's reference to one worker goroutine.
type Handle struct {
	ID    classifier.ID
	state atomic.Int32
	inbox chan request

	err     atomic.Pointer[error]
	scored  atomic.Uint64
	errors  atomic.Uint64
	dropped atomic.Uint64
	lastNs  atomic.Int64
}

func newHandle(id classifier.ID) *Handle {
	return &Handle{ID: id, inbox: make(chan request, inboxSize)}
}

// State returns the current readiness.
func (h *Handle) State() State { return State(h.state.Load()) }

func (h *Handle) transition(from, to State) bool {
	return h.state.CompareAndSwap(int32(from), int32(to))
}

func (h *Handle) fail(err error) {
	if err != nil {
		h.err.Store(&err)
	}
	h.state.Store(int32(Failed))
}

// Status is a point-in-time view of a handle.
type Status struct {
	Classifier  string        `json:"classifier"`
	State       string        `json:"state"`
	Error       string        `json:"error,omitempty"`
	Scored      uint64        `json:"scored"`
	Errors      uint64        `json:"errors"`
	Dropped     uint64        `json:"dropped"`
	LastLatency time.Duration `json:"lastLatency"`
}

// Status returns the handle's counters and state.
func (h *Handle) Status() Status {
	s := Status{
		Classifier:  h.ID.String(),
		State:       h.State().String(),
		Scored:      h.scored.Load(),
		Errors:      h.errors.Load(),
		Dropped:     h.dropped.Load(),
		LastLatency: time.Duration(h.lastNs.Load()),
	}
	if e := h.err.Load(); e != nil {
		s.Error = (*e).Error()
	}
	return s
}
