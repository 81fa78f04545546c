// Package binding defines configuration scopes and the remote project each one is bound to.
package binding

// Binding points a scope at a project reachable through a connection.
type Binding struct {
	ConnectionID string
	ProjectKey   string
}

// Scope is a local consumer of server events, such as an open workspace.
type Scope struct {
	// ID is the unique identifier of the scope
	ID string

	// Name is a display name
	Name string

	// Binding is nil while the scope is unbound
	Binding *Binding
}

// IsBound returns true if the scope points at a remote project.
func (s *Scope) IsBound() bool {
	return s.Binding != nil && s.Binding.ConnectionID != "" && s.Binding.ProjectKey != ""
}

// IsBoundTo reports whether the scope is bound to the project through the connection.
func (s *Scope) IsBoundTo(connectionID, projectKey string) bool {
	return s.IsBound() && s.Binding.ConnectionID == connectionID && s.Binding.ProjectKey == projectKey
}

// Clone creates a deep copy of the scope.
func (s *Scope) Clone() *Scope {
	clone := &Scope{ID: s.ID, Name: s.Name}
	if s.Binding != nil {
		b := *s.Binding
		clone.Binding = &b
	}
	return clone
}
