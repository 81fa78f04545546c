// Package connection defines the Connection entity: one set of credentials for a remote service.
package connection

// Kind identifies the flavour of remote service a connection points at.
type Kind string

const (
	// KindCloud connections can stream server events.
	KindCloud Kind = "CLOUD"
	// KindServer connections are self-hosted and never stream.
	KindServer Kind = "SERVER"
)

// Connection represents a configured remote service identity.
type Connection struct {
	// ID is the user-chosen unique identifier
	ID string

	// Kind is the remote service flavour
	Kind Kind

	// ServerURL is the base URL of the remote service
	ServerURL string

	// Organization is the organization key on cloud connections
	Organization string

	// Token is the credential used to authenticate the streaming connection
	Token string

	// DisableNotifications opts the connection out of server events
	DisableNotifications bool
}

// IsEligible reports whether the connection can drive a streaming session:
// it must point at the cloud service and must not have opted out of notifications.
func (c *Connection) IsEligible() bool {
	return c.Kind == KindCloud && !c.DisableNotifications
}

// NotificationsDisabled reports whether a cloud connection has opted out of server events.
func (c *Connection) NotificationsDisabled() bool {
	return c.Kind == KindCloud && c.DisableNotifications
}

// HasCredentials returns true if the connection carries a token.
func (c *Connection) HasCredentials() bool {
	return c.Token != ""
}

// Clone creates a copy of the connection.
func (c *Connection) Clone() *Connection {
	clone := *c
	return &clone
}
