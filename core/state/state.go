// Package state defines the connection session state machine.
package state

import "fmt"

// ConnectionState represents the state of a streaming connection session.
type ConnectionState int

const (
	// StateClosed is both the initial and the terminal state of a session.
	StateClosed ConnectionState = iota
	// StateConnecting indicates the streaming connection request is in flight.
	StateConnecting
	// StateOpen indicates the connection is established and timers are running.
	StateOpen
)

// String returns the string representation of the state.
func (s ConnectionState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// validTransitions defines the allowed state transitions.
// Key is the current state, value is a list of valid target states.
var validTransitions = map[ConnectionState][]ConnectionState{
	StateClosed:     {StateConnecting},
	StateConnecting: {StateOpen, StateClosed},
	StateOpen:       {StateClosed},
}

// CanTransitionTo checks if transitioning from the current state to the target state is valid.
func (s ConnectionState) CanTransitionTo(target ConnectionState) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, t := range allowed {
		if t == target {
			return true
		}
	}
	return false
}

// ValidTransitions returns the list of valid target states from the current state.
func (s ConnectionState) ValidTransitions() []ConnectionState {
	return validTransitions[s]
}

// IsActive returns true while a connection is being established or is established.
func (s ConnectionState) IsActive() bool {
	return s == StateConnecting || s == StateOpen
}

// CanSend returns true if outbound frames can be written in this state.
func (s ConnectionState) CanSend() bool {
	return s == StateOpen
}

// TransitionError represents an invalid state transition attempt.
type TransitionError struct {
	From   ConnectionState
	To     ConnectionState
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid state transition from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to ConnectionState, reason string) *TransitionError {
	return &TransitionError{From: from, To: to, Reason: reason}
}
