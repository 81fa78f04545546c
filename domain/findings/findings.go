// Package findings defines the locally cached server findings that server events keep up to date.
// Findings are partitioned by connection.
package findings

import (
	"errors"
	"time"

	"eventlink-go/core/event"
)

// ErrFindingNotFound is returned when an update targets a finding that is not stored.
var ErrFindingNotFound = errors.New("finding not found")

// Issue is a server issue attached to a branch of a project.
type Issue struct {
	ConnectionID string
	ProjectKey   string
	Key          string
	BranchName   string
	Resolved     bool
	Severity     event.IssueSeverity
	Type         event.RuleType
	Impacts      event.Impacts
}

// IssueUpdate carries the fields changed by an IssueChanged event. Nil fields are left alone.
type IssueUpdate struct {
	Resolved *bool
	Severity *event.IssueSeverity
	Type     *event.RuleType
	Impacts  event.Impacts
}

// IsEmpty returns true if the update changes nothing.
func (u *IssueUpdate) IsEmpty() bool {
	return u.Resolved == nil && u.Severity == nil && u.Type == nil && len(u.Impacts) == 0
}

// Apply merges the update into an issue. Impacts are merged per software quality.
func (u *IssueUpdate) Apply(is *Issue) {
	if u.Resolved != nil {
		is.Resolved = *u.Resolved
	}
	if u.Severity != nil {
		is.Severity = *u.Severity
	}
	if u.Type != nil {
		is.Type = *u.Type
	}
	if len(u.Impacts) > 0 {
		if is.Impacts == nil {
			is.Impacts = make(event.Impacts, len(u.Impacts))
		}
		for q, s := range u.Impacts {
			is.Impacts[q] = s
		}
	}
}

// Taint is a taint vulnerability raised by the server.
type Taint struct {
	ConnectionID              string
	ProjectKey                string
	Key                       string
	BranchName                string
	RuleKey                   string
	Severity                  event.IssueSeverity
	Type                      event.RuleType
	CreationDate              time.Time
	CleanCodeAttribute        string
	Impacts                   event.Impacts
	MainLocation              event.Location
	Flows                     []event.Flow
	RuleDescriptionContextKey string
}

// Hotspot is a security hotspot awaiting or having had review.
type Hotspot struct {
	ConnectionID             string
	ProjectKey               string
	Key                      string
	BranchName               string
	RuleKey                  string
	Status                   event.HotspotReviewStatus
	VulnerabilityProbability event.VulnerabilityProbability
	CreationDate             time.Time
	Assignee                 string
	FilePath                 string
	Message                  string
	TextRange                *event.TextRange
}

// HotspotUpdate carries the fields changed by a SecurityHotspotChanged event.
type HotspotUpdate struct {
	Status   *event.HotspotReviewStatus
	Assignee string
}

// Apply merges the update into a hotspot. An empty assignee leaves the current one.
func (u *HotspotUpdate) Apply(h *Hotspot) {
	if u.Status != nil {
		h.Status = *u.Status
	}
	if u.Assignee != "" {
		h.Assignee = u.Assignee
	}
}
