package connection

import "context"

// Repository defines the interface for connection persistence operations.
type Repository interface {
	// FindByID retrieves a connection by its identifier.
	// Returns nil if not found.
	FindByID(ctx context.Context, id string) (*Connection, error)

	// FindAll retrieves all connections.
	FindAll(ctx context.Context) ([]*Connection, error)

	// Insert creates a new connection.
	Insert(ctx context.Context, conn *Connection) error

	// Update replaces an existing connection.
	Update(ctx context.Context, conn *Connection) error

	// UpdateToken updates only the credential of a connection.
	UpdateToken(ctx context.Context, id, token string) error

	// Delete removes a connection by its identifier.
	Delete(ctx context.Context, id string) error
}
