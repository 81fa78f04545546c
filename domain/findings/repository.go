package findings

import "context"

// Repository defines the persistence operations used by server event handlers.
// All lookups are scoped to a connection.
type Repository interface {
	// FindIssue retrieves an issue, or nil if not stored.
	FindIssue(ctx context.Context, connectionID, key string) (*Issue, error)

	// UpsertIssue creates or replaces an issue.
	UpsertIssue(ctx context.Context, issue *Issue) error

	// UpdateIssue applies a partial change. Returns ErrFindingNotFound if the issue is not stored.
	UpdateIssue(ctx context.Context, connectionID, key string, update IssueUpdate) error

	// InsertTaint creates or replaces a taint vulnerability.
	InsertTaint(ctx context.Context, taint *Taint) error

	// DeleteTaint removes a taint vulnerability. Deleting a missing taint is not an error.
	DeleteTaint(ctx context.Context, connectionID, key string) error

	// FindTaints lists the taint vulnerabilities of a project.
	FindTaints(ctx context.Context, connectionID, projectKey string) ([]*Taint, error)

	// UpsertHotspot creates or replaces a hotspot.
	UpsertHotspot(ctx context.Context, hotspot *Hotspot) error

	// UpdateHotspot applies a partial change. Returns ErrFindingNotFound if the hotspot is not stored.
	UpdateHotspot(ctx context.Context, connectionID, key string, update HotspotUpdate) error

	// DeleteHotspot removes a hotspot. Deleting a missing hotspot is not an error.
	DeleteHotspot(ctx context.Context, connectionID, key string) error

	// FindHotspots lists the hotspots of a project.
	FindHotspots(ctx context.Context, connectionID, projectKey string) ([]*Hotspot, error)
}
