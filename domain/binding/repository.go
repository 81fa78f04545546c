package binding

import "context"

// Repository defines the interface for scope persistence operations.
type Repository interface {
	// FindByID retrieves a scope by its identifier.
	// Returns nil if not found.
	FindByID(ctx context.Context, id string) (*Scope, error)

	// FindAll retrieves all scopes.
	FindAll(ctx context.Context) ([]*Scope, error)

	// FindByConnection retrieves the scopes bound through a connection.
	FindByConnection(ctx context.Context, connectionID string) ([]*Scope, error)

	// Upsert creates or replaces a scope.
	Upsert(ctx context.Context, scope *Scope) error

	// UpdateBinding sets or clears (nil) the binding of a scope.
	UpdateBinding(ctx context.Context, id string, b *Binding) error

	// Delete removes a scope by its identifier.
	Delete(ctx context.Context, id string) error
}
