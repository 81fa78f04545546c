// Package event defines the events flowing through the subsystem.
// Server events are typed representations of changes pushed by the remote service;
// lifecycle events describe changes to local scopes and connections.
package event

// Event is the base interface for all events.
type Event interface {
	// EventName returns the name of the event for logging/debugging
	EventName() string
}

// ScopeEvent is a lifecycle event that concerns a single configuration scope.
type ScopeEvent interface {
	Event
	// ScopeID returns the affected configuration scope
	ScopeID() string
}

// ConnectionEvent is a lifecycle event that concerns a single connection.
type ConnectionEvent interface {
	Event
	// ConnectionID returns the affected connection
	ConnectionID() string
}

// baseScopeEvent provides common implementation for scope events.
type baseScopeEvent struct {
	scopeID string
}

func (e *baseScopeEvent) ScopeID() string {
	return e.scopeID
}

// baseConnectionEvent provides common implementation for connection events.
type baseConnectionEvent struct {
	connectionID string
}

func (e *baseConnectionEvent) ConnectionID() string {
	return e.connectionID
}
