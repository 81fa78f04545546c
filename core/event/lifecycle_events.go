package event

// ScopesAdded is published when configuration scopes are declared by the client.
type ScopesAdded struct {
	ScopeIDs []string
}

func NewScopesAdded(scopeIDs ...string) *ScopesAdded {
	return &ScopesAdded{ScopeIDs: scopeIDs}
}

func (e *ScopesAdded) EventName() string {
	return "ScopesAdded"
}

// ScopeRemoved is published when a configuration scope goes away.
type ScopeRemoved struct {
	baseScopeEvent
}

func NewScopeRemoved(scopeID string) *ScopeRemoved {
	return &ScopeRemoved{baseScopeEvent: baseScopeEvent{scopeID: scopeID}}
}

func (e *ScopeRemoved) EventName() string {
	return "ScopeRemoved"
}

// BindingChanged is published when a scope is bound, unbound or rebound.
type BindingChanged struct {
	baseScopeEvent
}

func NewBindingChanged(scopeID string) *BindingChanged {
	return &BindingChanged{baseScopeEvent: baseScopeEvent{scopeID: scopeID}}
}

func (e *BindingChanged) EventName() string {
	return "BindingChanged"
}

// ConnectionAdded is published when a new connection is configured.
type ConnectionAdded struct {
	baseConnectionEvent
}

func NewConnectionAdded(connectionID string) *ConnectionAdded {
	return &ConnectionAdded{baseConnectionEvent: baseConnectionEvent{connectionID: connectionID}}
}

func (e *ConnectionAdded) EventName() string {
	return "ConnectionAdded"
}

// ConnectionUpdated is published when a connection's settings change,
// including its notification opt-out flag.
type ConnectionUpdated struct {
	baseConnectionEvent
}

func NewConnectionUpdated(connectionID string) *ConnectionUpdated {
	return &ConnectionUpdated{baseConnectionEvent: baseConnectionEvent{connectionID: connectionID}}
}

func (e *ConnectionUpdated) EventName() string {
	return "ConnectionUpdated"
}

// ConnectionRemoved is published when a connection is deleted.
type ConnectionRemoved struct {
	baseConnectionEvent
}

func NewConnectionRemoved(connectionID string) *ConnectionRemoved {
	return &ConnectionRemoved{baseConnectionEvent: baseConnectionEvent{connectionID: connectionID}}
}

func (e *ConnectionRemoved) EventName() string {
	return "ConnectionRemoved"
}

// CredentialsChanged is published when a connection's credentials are rotated.
type CredentialsChanged struct {
	baseConnectionEvent
}

func NewCredentialsChanged(connectionID string) *CredentialsChanged {
	return &CredentialsChanged{baseConnectionEvent: baseConnectionEvent{connectionID: connectionID}}
}

func (e *CredentialsChanged) EventName() string {
	return "CredentialsChanged"
}

// SessionEnded is published when a streaming session ends without the client asking for it:
// the server dropped the connection or the session reached its maximum lifetime.
type SessionEnded struct {
	SessionID string
}

func NewSessionEnded(sessionID string) *SessionEnded {
	return &SessionEnded{SessionID: sessionID}
}

func (e *SessionEnded) EventName() string {
	return "SessionEnded"
}
