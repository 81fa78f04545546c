package binding

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"eventlink-go/core/event"
	"eventlink-go/core/eventbus"
)

// Common errors for scope operations.
var (
	ErrScopeNotFound   = errors.New("scope not found")
	ErrBindingNotFound = errors.New("scope is not bound")
	ErrInvalidBinding  = errors.New("invalid binding")
)

// Service provides business logic for scopes and their bindings.
// Every successful change is announced on the event bus.
type Service struct {
	repo Repository
	bus  eventbus.EventBus
}

// NewService creates a new binding service. bus may be nil.
func NewService(repo Repository, bus eventbus.EventBus) *Service {
	return &Service{repo: repo, bus: bus}
}

// GetScope retrieves a scope by ID.
func (s *Service) GetScope(ctx context.Context, id string) (*Scope, error) {
	scope, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if scope == nil {
		return nil, fmt.Errorf("%w: %s", ErrScopeNotFound, id)
	}
	return scope, nil
}

// GetBinding returns the current binding of a scope, or ErrBindingNotFound when it has none.
func (s *Service) GetBinding(ctx context.Context, scopeID string) (*Binding, error) {
	scope, err := s.GetScope(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	if !scope.IsBound() {
		return nil, fmt.Errorf("%w: %s", ErrBindingNotFound, scopeID)
	}
	b := *scope.Binding
	return &b, nil
}

// ListScopes retrieves all scopes sorted by ID.
func (s *Service) ListScopes(ctx context.Context) ([]*Scope, error) {
	scopes, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	sortScopes(scopes)
	return scopes, nil
}

// ScopesForConnection returns the IDs of the scopes bound through a connection, sorted.
func (s *Service) ScopesForConnection(ctx context.Context, connectionID string) ([]string, error) {
	scopes, err := s.repo.FindByConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	sortScopes(scopes)
	ids := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		ids = append(ids, sc.ID)
	}
	return ids, nil
}

// ScopesBoundTo returns the IDs of the scopes bound to a project through a connection, sorted.
func (s *Service) ScopesBoundTo(ctx context.Context, connectionID, projectKey string) ([]string, error) {
	scopes, err := s.repo.FindByConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	sortScopes(scopes)
	var ids []string
	for _, sc := range scopes {
		if sc.IsBoundTo(connectionID, projectKey) {
			ids = append(ids, sc.ID)
		}
	}
	return ids, nil
}

// AddScopes stores new scopes and announces them in a single event.
func (s *Service) AddScopes(ctx context.Context, scopes ...*Scope) error {
	ids := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		if sc.ID == "" {
			return fmt.Errorf("%w: empty scope id", ErrInvalidBinding)
		}
		if err := s.repo.Upsert(ctx, sc); err != nil {
			return err
		}
		ids = append(ids, sc.ID)
	}
	if len(ids) > 0 {
		s.publish(event.NewScopesAdded(ids...))
	}
	return nil
}

// RemoveScope deletes a scope.
func (s *Service) RemoveScope(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(event.NewScopeRemoved(id))
	return nil
}

// Bind points a scope at a project, replacing any previous binding.
func (s *Service) Bind(ctx context.Context, scopeID string, b Binding) error {
	if b.ConnectionID == "" || b.ProjectKey == "" {
		return fmt.Errorf("%w: connection and project are required", ErrInvalidBinding)
	}
	if err := s.repo.UpdateBinding(ctx, scopeID, &b); err != nil {
		return err
	}
	s.publish(event.NewBindingChanged(scopeID))
	return nil
}

// Unbind clears the binding of a scope.
func (s *Service) Unbind(ctx context.Context, scopeID string) error {
	if err := s.repo.UpdateBinding(ctx, scopeID, nil); err != nil {
		return err
	}
	s.publish(event.NewBindingChanged(scopeID))
	return nil
}

func (s *Service) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func sortScopes(scopes []*Scope) {
	sort.Slice(scopes, func(i, j int) bool {
		return scopes[i].ID < scopes[j].ID
	})
}
