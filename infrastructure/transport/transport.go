// Package transport provides the streaming connection to the remote service.
package transport

import (
	"context"
	"errors"
)

// ErrConnClosed is returned when sending on a connection that is closing or closed.
var ErrConnClosed = errors.New("connection closed")

// Conn is an established streaming connection.
type Conn interface {
	// Send writes one text frame.
	Send(text string) error

	// Close closes the outbound direction, waits for the inbound direction to end
	// until ctx is done, then aborts the connection. Idempotent.
	Close(ctx context.Context) error
}

// Dialer opens streaming connections with the credentials of a connection already applied.
type Dialer interface {
	// Dial blocks until the connection is established or fails.
	// onMessage is called for every inbound text frame, in arrival order, from a single goroutine.
	// onEnded is called once when the inbound direction ends for any reason.
	Dial(ctx context.Context, connectionID string, onMessage func(text string), onEnded func()) (Conn, error)
}

// CredentialsProvider resolves the token of a connection at dial time.
type CredentialsProvider interface {
	Token(ctx context.Context, connectionID string) (string, error)
}
