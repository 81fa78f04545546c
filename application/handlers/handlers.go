// Package handlers persists the effect of server events on behalf of one connection.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventlink-go/core/dispatch"
	"eventlink-go/core/event"
	"eventlink-go/domain/findings"
	"eventlink-go/infrastructure/logging"
)

// ScopeResolver finds the scopes bound to a project through a connection.
type ScopeResolver interface {
	ScopesBoundTo(ctx context.Context, connectionID, projectKey string) ([]string, error)
}

// Notification is a smart notification addressed to the scopes bound to its project.
type Notification struct {
	ConnectionID string
	ScopeIDs     []string
	Category     string
	Message      string
	Link         string
	Date         time.Time
}

// Notifier shows smart notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs note with the logger given to the notifier, or the one carried by ctx.
func (n *LogNotifier) Notify(ctx context.Context, note Notification) error {
	logger := n.Logger
	if logger == nil {
		logger = logging.From(ctx)
	}
	logger.Info("Smart notification",
		"connection_id", note.ConnectionID,
		"scopes", note.ScopeIDs,
		"category", note.Category,
		"message", note.Message,
		"link", note.Link,
		"date", note.Date)
	return nil
}

// Handlers updates the findings of one connection from server events.
type Handlers struct {
	connectionID string
	findings     findings.Repository
	scopes       ScopeResolver
	notifier     Notifier
}

// Config holds configuration for creating Handlers.
type Config struct {
	ConnectionID string
	Findings     findings.Repository
	Scopes       ScopeResolver
	// Notifier defaults to a LogNotifier writing to Logger, or to the
	// dispatch context logger when Logger is nil.
	Notifier Notifier
	Logger   *slog.Logger
}

// New creates the handlers of a connection.
func New(cfg *Config) *Handlers {
	if cfg.Notifier == nil {
		cfg.Notifier = &LogNotifier{Logger: cfg.Logger}
	}
	return &Handlers{
		connectionID: cfg.ConnectionID,
		findings:     cfg.Findings,
		scopes:       cfg.Scopes,
		notifier:     cfg.Notifier,
	}
}

// Register adds one handler per server event kind to d.
func (h *Handlers) Register(d *dispatch.Dispatcher) {
	d.Register(event.KindIssueChanged, withKind(h.issueChanged))
	d.Register(event.KindTaintVulnerabilityRaised, withKind(h.taintRaised))
	d.Register(event.KindTaintVulnerabilityClosed, withKind(h.taintClosed))
	d.Register(event.KindSecurityHotspotRaised, withKind(h.hotspotRaised))
	d.Register(event.KindSecurityHotspotChanged, withKind(h.hotspotChanged))
	d.Register(event.KindSecurityHotspotClosed, withKind(h.hotspotClosed))
	d.Register(event.KindSmartNotification, withKind(h.smartNotification))
}

// withKind tags the context logger with the event kind and project.
func withKind(fn dispatch.HandlerFunc) dispatch.Handler {
	return dispatch.HandlerFunc(func(ctx context.Context, e event.ServerEvent) error {
		return fn(logging.WithAttrs(ctx, "kind", e.Kind(), "project", e.ProjectKey()), e)
	})
}

func (h *Handlers) issueChanged(ctx context.Context, se event.ServerEvent) error {
	e, ok := se.(*event.IssueChanged)
	if !ok {
		return unexpected(se)
	}

	for _, is := range e.Issues {
		update := findings.IssueUpdate{
			Resolved: e.Resolved,
			Severity: e.UserSeverity,
			Type:     e.UserType,
			Impacts:  is.Impacts,
		}
		if update.IsEmpty() {
			continue
		}
		err := h.findings.UpdateIssue(ctx, h.connectionID, is.IssueKey, update)
		if errors.Is(err, findings.ErrFindingNotFound) {
			logging.From(ctx).Debug("Changed issue is not stored", "issue", is.IssueKey)
			continue
		}
		if err != nil {
			return fmt.Errorf("update issue %s: %w", is.IssueKey, err)
		}
	}
	return nil
}

func (h *Handlers) taintRaised(ctx context.Context, se event.ServerEvent) error {
	e, ok := se.(*event.TaintVulnerabilityRaised)
	if !ok {
		return unexpected(se)
	}
	return h.findings.InsertTaint(ctx, &findings.Taint{
		ConnectionID:              h.connectionID,
		ProjectKey:                e.ProjectKey(),
		Key:                       e.Key,
		BranchName:                e.BranchName,
		RuleKey:                   e.RuleKey,
		Severity:                  e.Severity,
		Type:                      e.Type,
		CreationDate:              e.CreationDate,
		CleanCodeAttribute:        e.CleanCodeAttribute,
		Impacts:                   e.Impacts,
		MainLocation:              e.MainLocation,
		Flows:                     e.Flows,
		RuleDescriptionContextKey: e.RuleDescriptionContextKey,
	})
}

func (h *Handlers) taintClosed(ctx context.Context, se event.ServerEvent) error {
	e, ok := se.(*event.TaintVulnerabilityClosed)
	if !ok {
		return unexpected(se)
	}
	return h.findings.DeleteTaint(ctx, h.connectionID, e.TaintIssueKey)
}

func (h *Handlers) hotspotRaised(ctx context.Context, se event.ServerEvent) error {
	e, ok := se.(*event.SecurityHotspotRaised)
	if !ok {
		return unexpected(se)
	}
	return h.findings.UpsertHotspot(ctx, &findings.Hotspot{
		ConnectionID:             h.connectionID,
		ProjectKey:               e.ProjectKey(),
		Key:                      e.Key,
		BranchName:               e.BranchName,
		RuleKey:                  e.RuleKey,
		Status:                   e.Status,
		VulnerabilityProbability: e.VulnerabilityProbability,
		CreationDate:             e.CreationDate,
		FilePath:                 e.MainLocation.FilePath,
		Message:                  e.MainLocation.Message,
		TextRange:                e.MainLocation.TextRange,
	})
}

func (h *Handlers) hotspotChanged(ctx context.Context, se event.ServerEvent) error {
	e, ok := se.(*event.SecurityHotspotChanged)
	if !ok {
		return unexpected(se)
	}
	err := h.findings.UpdateHotspot(ctx, h.connectionID, e.Key, findings.HotspotUpdate{
		Status:   e.Status,
		Assignee: e.Assignee,
	})
	if errors.Is(err, findings.ErrFindingNotFound) {
		logging.From(ctx).Debug("Changed hotspot is not stored", "hotspot", e.Key)
		return nil
	}
	return err
}

func (h *Handlers) hotspotClosed(ctx context.Context, se event.ServerEvent) error {
	e, ok := se.(*event.SecurityHotspotClosed)
	if !ok {
		return unexpected(se)
	}
	return h.findings.DeleteHotspot(ctx, h.connectionID, e.Key)
}

func (h *Handlers) smartNotification(ctx context.Context, se event.ServerEvent) error {
	e, ok := se.(*event.SmartNotification)
	if !ok {
		return unexpected(se)
	}

	scopeIDs, err := h.scopes.ScopesBoundTo(ctx, h.connectionID, e.ProjectKey())
	if err != nil {
		return fmt.Errorf("resolve scopes of %s: %w", e.ProjectKey(), err)
	}
	if len(scopeIDs) == 0 {
		logging.From(ctx).Debug("No scope bound to notified project")
		return nil
	}

	return h.notifier.Notify(ctx, Notification{
		ConnectionID: h.connectionID,
		ScopeIDs:     scopeIDs,
		Category:     e.Category,
		Message:      e.Message,
		Link:         e.Link,
		Date:         e.Date,
	})
}

func unexpected(e event.ServerEvent) error {
	return fmt.Errorf("unexpected event %T for kind %s", e, e.Kind())
}
