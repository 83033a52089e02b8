package model

import (
	"fmt"
	"time"
)

// SessionState is the lifecycle position of a relay session.
type SessionState int

const (
	StateReceived SessionState = iota
	StateForwarding
	StateStreamingResponse
	StateComplete
	StateErrored
)

func (s SessionState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateForwarding:
		return "forwarding"
	case StateStreamingResponse:
		return "streaming_response"
	case StateComplete:
		return "complete"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are allowed.
func (s SessionState) Terminal() bool {
	return s == StateComplete || s == StateErrored
}

// Session tracks one inbound/outbound exchange. It is owned by a single
// goroutine and is not safe for concurrent use.
type Session struct {
	ID         string
	EndpointID string
	Started    time.Time

	state SessionState
}

// NewSession returns a session in the Received state.
func NewSession(id string) *Session {
	return &Session{ID: id, Started: time.Now()}
}

// State returns the current state.
func (s *Session) State() SessionState {
	return s.state
}

// Advance moves the session to next. Sessions only move forward: Errored is
// reachable from any non-terminal state, everything else must follow the
// Received -> Forwarding -> StreamingResponse -> Complete order.
func (s *Session) Advance(next SessionState) error {
	if s.state.Terminal() {
		return fmt.Errorf("session %s: transition %s -> %s from terminal state", s.ID, s.state, next)
	}
	if next == StateErrored || next == s.state+1 {
		s.state = next
		return nil
	}
	return fmt.Errorf("session %s: illegal transition %s -> %s", s.ID, s.state, next)
}

// Elapsed returns the time since the session was received.
func (s *Session) Elapsed() time.Duration {
	return time.Since(s.Started)
}
