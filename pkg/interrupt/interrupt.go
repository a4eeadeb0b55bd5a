// Package interrupt broadcasts a single cancellation signal to every stage
// of a running query pipeline. It is adapted from the pub-sub broker used
// elsewhere in the ambient stack, narrowed from many named event types to
// one signal that fires at most once.
package interrupt

import (
	"sync"

	"github.com/vertexdb/vertexdb/pkg/vterr"
)

// Reason identifies why a Signal fired.
type Reason string

const (
	ReasonClientDisconnect Reason = "client_disconnect"
	ReasonServerShutdown   Reason = "server_shutdown"
	ReasonTimeout          Reason = "timeout"
)

// Subscriber is a channel that is closed when the signal fires.
type Subscriber <-chan struct{}

// Signal is a one-shot broadcastable cancellation signal. The zero value
// is not usable; construct with New.
type Signal struct {
	mu       sync.Mutex
	fired    bool
	reason   Reason
	done     chan struct{}
}

// New creates an armed Signal.
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Fire broadcasts the signal to every subscriber. Subsequent calls after
// the first are no-ops.
func (s *Signal) Fire(reason Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return
	}
	s.fired = true
	s.reason = reason
	close(s.done)
}

// Subscribe returns a channel closed when Fire is called. Nothing in this
// module subscribes; the executor polls Check instead.
func (s *Signal) Subscribe() Subscriber {
	return s.done
}

// Check returns a typed interrupted error if the signal has fired, nil
// otherwise. The executor calls it before each match step, before each
// pipeline modifier and for each row a pipeline emits; the WAL, the
// keyspaces and fetch do not check it.
func (s *Signal) Check() error {
	select {
	case <-s.done:
		s.mu.Lock()
		reason := s.reason
		s.mu.Unlock()
		return vterr.Wrap(vterr.CodeInterrupted, nil, "interrupted: %s", reason)
	default:
		return nil
	}
}

// Fired reports whether the signal has already fired.
func (s *Signal) Fired() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
