package connection

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"eventlink-go/core/event"
	"eventlink-go/core/eventbus"
)

// Common errors for connection operations.
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrInvalidConnection  = errors.New("invalid connection")
)

// Service provides business logic for connection management.
// Every successful change is announced on the event bus.
type Service struct {
	repo Repository
	bus  eventbus.EventBus
}

// NewService creates a new connection service. bus may be nil.
func NewService(repo Repository, bus eventbus.EventBus) *Service {
	return &Service{repo: repo, bus: bus}
}

// GetConnection retrieves a connection by ID.
func (s *Service) GetConnection(ctx context.Context, id string) (*Connection, error) {
	conn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	return conn, nil
}

// ListConnections retrieves all connections sorted by ID.
func (s *Service) ListConnections(ctx context.Context) ([]*Connection, error) {
	conns, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].ID < conns[j].ID
	})
	return conns, nil
}

// Token returns the credential of a connection.
func (s *Service) Token(ctx context.Context, id string) (string, error) {
	conn, err := s.GetConnection(ctx, id)
	if err != nil {
		return "", err
	}
	return conn.Token, nil
}

// CreateConnection stores a new connection.
func (s *Service) CreateConnection(ctx context.Context, conn *Connection) error {
	if err := validate(conn); err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, conn); err != nil {
		return err
	}
	s.publish(event.NewConnectionAdded(conn.ID))
	return nil
}

// UpdateConnection replaces a connection's settings, including its notification opt-out.
func (s *Service) UpdateConnection(ctx context.Context, conn *Connection) error {
	if err := validate(conn); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, conn); err != nil {
		return err
	}
	s.publish(event.NewConnectionUpdated(conn.ID))
	return nil
}

// RotateToken replaces a connection's credential.
func (s *Service) RotateToken(ctx context.Context, id, token string) error {
	if err := s.repo.UpdateToken(ctx, id, token); err != nil {
		return err
	}
	s.publish(event.NewCredentialsChanged(id))
	return nil
}

// DeleteConnection removes a connection.
func (s *Service) DeleteConnection(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(event.NewConnectionRemoved(id))
	return nil
}

func (s *Service) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func validate(conn *Connection) error {
	if conn.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidConnection)
	}
	switch conn.Kind {
	case KindCloud, KindServer:
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidConnection, conn.Kind)
	}
}
