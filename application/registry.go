// Package application provides the application layer orchestrating the streaming session.
package application

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"eventlink-go/application/session"
	"eventlink-go/core/dispatch"
	"eventlink-go/core/event"
	"eventlink-go/core/eventbus"
	"eventlink-go/core/state"
	"eventlink-go/domain/binding"
	"eventlink-go/domain/connection"
	"eventlink-go/domain/parsing"
	"eventlink-go/infrastructure/logging"
	"eventlink-go/infrastructure/metrics"
	"eventlink-go/infrastructure/transport"
)

// Reopen reasons, used as metric labels.
const (
	ReopenCredentials      = "credentials"
	ReopenEnded            = "ended"
	ReopenConnectionSwitch = "connection_switch"
)

// BindingResolver resolves which project a scope is bound to.
type BindingResolver interface {
	GetBinding(ctx context.Context, scopeID string) (*binding.Binding, error)
	ScopesForConnection(ctx context.Context, connectionID string) ([]string, error)
	ListScopes(ctx context.Context) ([]*binding.Scope, error)
}

// ConnectionResolver looks up connections to decide their eligibility.
type ConnectionResolver interface {
	GetConnection(ctx context.Context, id string) (*connection.Connection, error)
}

// DispatcherFactory creates the dispatcher delivering events on behalf of a connection.
type DispatcherFactory func(connectionID string) *dispatch.Dispatcher

// subscription is one row of the subscription table.
type subscription struct {
	connectionID string
	projectKey   string
}

// target is a connection interested in events and the dispatcher serving it.
type target struct {
	connectionID string
	dispatcher   *dispatch.Dispatcher
}

// SubscriptionRegistry owns at most one streaming session and keeps the set of
// projects subscribed on it equal to the projects bound by eligible scopes.
// All state is guarded by a single mutex.
type SubscriptionRegistry struct {
	mu          sync.Mutex
	table       map[string]subscription
	interested  map[string]struct{}
	current     *session.Session
	dispatchers map[string]*dispatch.Dispatcher
	stopped     bool

	// targets is read by the receive goroutine without taking mu.
	targets atomic.Pointer[[]target]

	// Dependencies
	enabled       bool
	eventBus      eventbus.EventBus
	bindings      BindingResolver
	connections   ConnectionResolver
	dialer        transport.Dialer
	parser        *parsing.Registry
	newDispatcher DispatcherFactory
	sessionCfg    session.Config
	metrics       *metrics.Collector
	logger        *slog.Logger
	subID         string

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
}

// RegistryConfig holds configuration for the SubscriptionRegistry.
type RegistryConfig struct {
	// ManageServerEvents enables the registry. When false every lifecycle event is ignored.
	ManageServerEvents bool
	EventBus           eventbus.EventBus
	Bindings           BindingResolver
	Connections        ConnectionResolver
	Dialer             transport.Dialer
	Parser             *parsing.Registry
	Dispatchers        DispatcherFactory
	// Session carries the timings of created sessions. Identity, transport and
	// callbacks are filled in by the registry.
	Session session.Config
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// NewSubscriptionRegistry creates a registry with no session.
func NewSubscriptionRegistry(cfg *RegistryConfig) *SubscriptionRegistry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Parser == nil {
		cfg.Parser = parsing.DefaultRegistry()
	}
	if cfg.Dispatchers == nil {
		logger := cfg.Logger
		cfg.Dispatchers = func(string) *dispatch.Dispatcher {
			return dispatch.New(&dispatch.Config{Logger: logger})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &SubscriptionRegistry{
		table:         make(map[string]subscription),
		interested:    make(map[string]struct{}),
		dispatchers:   make(map[string]*dispatch.Dispatcher),
		enabled:       cfg.ManageServerEvents,
		eventBus:      cfg.EventBus,
		bindings:      cfg.Bindings,
		connections:   cfg.Connections,
		dialer:        cfg.Dialer,
		parser:        cfg.Parser,
		newDispatcher: cfg.Dispatchers,
		sessionCfg:    cfg.Session,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		ctx:           ctx,
		cancel:        cancel,
	}
	r.targets.Store(&[]target{})
	return r
}

// Start subscribes to lifecycle events and considers every stored scope.
func (r *SubscriptionRegistry) Start() {
	if !r.enabled {
		r.logger.Info("Server events are disabled")
		return
	}

	if r.eventBus != nil {
		r.subID = r.eventBus.SubscribeEvents(r.handleEvent,
			"ScopesAdded", "ScopeRemoved", "BindingChanged",
			"ConnectionAdded", "ConnectionUpdated", "ConnectionRemoved",
			"CredentialsChanged", "SessionEnded")
	}

	scopes, err := r.bindings.ListScopes(r.ctx)
	if err != nil {
		r.logger.Error("Failed to list scopes", "error", err)
	} else {
		r.mu.Lock()
		for _, sc := range scopes {
			if sc.IsBound() && !r.stopped {
				r.considerScope(sc.ID)
			}
		}
		r.mu.Unlock()
	}

	r.logger.Info("Subscription registry started")
}

// Shutdown closes the session within ctx and forgets every subscription.
// Lifecycle events and calls arriving afterwards are ignored.
func (r *SubscriptionRegistry) Shutdown(ctx context.Context) {
	if r.eventBus != nil && r.subID != "" {
		r.eventBus.Unsubscribe(r.subID)
	}
	r.cancel()

	r.mu.Lock()
	r.stopped = true
	s := r.current
	r.current = nil
	r.table = make(map[string]subscription)
	r.interested = make(map[string]struct{})
	r.refreshTargets()
	r.mu.Unlock()

	if s != nil {
		s.CloseContext(ctx)
	}
	r.metrics.SetSubscribedProjects(0)
	r.logger.Info("Subscription registry stopped")
}

// ConsiderScope subscribes or unsubscribes a scope according to its current binding.
func (r *SubscriptionRegistry) ConsiderScope(scopeID string) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.considerScope(scopeID)
}

// Forget drops a scope's subscription and closes the session when nothing is left.
func (r *SubscriptionRegistry) Forget(scopeID string) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.forget(scopeID)
	r.closeIfNoMoreNeeded()
}

// ReopenConnection replaces the session with one using the given connection's credentials.
func (r *SubscriptionRegistry) ReopenConnection(connectionID string) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.reopen(connectionID, ReopenCredentials, "Reopen requested")
}

// HasOpenSession reports whether a session exists and its connection is established.
func (r *SubscriptionRegistry) HasOpenSession() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && r.current.State() == state.StateOpen
}

// ConnectionInUse returns the connection backing the session, or "" without a session.
func (r *SubscriptionRegistry) ConnectionInUse() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectionInUse()
}

// SubscribedProjects returns the distinct projects in the subscription table, sorted.
func (r *SubscriptionRegistry) SubscribedProjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.projects()
}

// handleEvent handles lifecycle events from the event bus.
func (r *SubscriptionRegistry) handleEvent(e event.Event) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	switch evt := e.(type) {
	case *event.ScopesAdded:
		for _, id := range evt.ScopeIDs {
			r.considerScope(id)
		}
	case *event.BindingChanged:
		r.considerScope(evt.ScopeID())
	case *event.ScopeRemoved:
		r.forget(evt.ScopeID())
		r.closeIfNoMoreNeeded()
	case *event.ConnectionAdded:
		// A binding pointing at a missing connection becomes valid.
		r.considerConnection(evt.ConnectionID())
	case *event.ConnectionUpdated:
		id := evt.ConnectionID()
		if r.didDisableNotifications(id) {
			r.forgetConnection(id, "Notifications were disabled")
		} else if r.didEnableNotifications(id) {
			r.considerConnection(id)
		}
	case *event.ConnectionRemoved:
		r.forgetConnection(evt.ConnectionID(), "Connection was removed")
	case *event.CredentialsChanged:
		id := evt.ConnectionID()
		if id == r.connectionInUse() && r.isEligible(id) {
			r.reopen(id, ReopenCredentials, "Credentials have changed")
		}
	case *event.SessionEnded:
		r.handleSessionEnded(evt.SessionID)
	}
}

func (r *SubscriptionRegistry) handleSessionEnded(sessionID string) {
	if r.current == nil || r.current.ID() != sessionID {
		r.logger.Debug("Ignoring end of a replaced session", "session_id", sessionID)
		return
	}

	connectionID := r.current.ConnectionID()
	if _, ok := r.interested[connectionID]; !ok || !r.isEligible(connectionID) {
		connectionID = r.pickInterested()
	}
	r.reopen(connectionID, ReopenEnded, "Connection was closed by the server or reached its end of life")
}

func (r *SubscriptionRegistry) considerConnection(connectionID string) {
	scopeIDs, err := r.bindings.ScopesForConnection(r.ctx, connectionID)
	if err != nil {
		r.logger.Error("Failed to list scopes of connection", "connection_id", connectionID, "error", err)
		return
	}
	for _, id := range scopeIDs {
		r.considerScope(id)
	}
}

func (r *SubscriptionRegistry) considerScope(scopeID string) {
	b, err := r.bindings.GetBinding(r.ctx, scopeID)
	if err != nil {
		if !errors.Is(err, binding.ErrBindingNotFound) && !errors.Is(err, binding.ErrScopeNotFound) {
			r.logger.Error("Failed to resolve binding", "scope_id", scopeID, "error", err)
			return
		}
		b = nil
	}

	if b != nil && r.isEligible(b.ConnectionID) {
		r.subscribe(scopeID, b)
		return
	}

	prev, ok := r.table[scopeID]
	if ok && (b == nil || prev.projectKey != b.ProjectKey || prev.connectionID != b.ConnectionID) {
		r.forget(scopeID)
		r.closeIfNoMoreNeeded()
	}
}

func (r *SubscriptionRegistry) subscribe(scopeID string, b *binding.Binding) {
	r.ensureSession(b.ConnectionID)

	if prev, ok := r.table[scopeID]; ok && prev.projectKey != b.ProjectKey {
		r.forget(scopeID)
	}
	if !r.isProjectSubscribed(b.ProjectKey) {
		r.sendSubscribe(b.ProjectKey)
	}
	r.table[scopeID] = subscription{connectionID: b.ConnectionID, projectKey: b.ProjectKey}
	r.metrics.SetSubscribedProjects(len(r.projects()))
}

func (r *SubscriptionRegistry) forget(scopeID string) {
	prev, ok := r.table[scopeID]
	if !ok {
		return
	}
	delete(r.table, scopeID)
	if !r.isProjectSubscribed(prev.projectKey) && r.current != nil {
		if err := r.current.Unsubscribe(prev.projectKey); err != nil {
			r.logger.Warn("Failed to queue unsubscribe", "project", prev.projectKey, "error", err)
		}
	}
	r.metrics.SetSubscribedProjects(len(r.projects()))
}

func (r *SubscriptionRegistry) forgetConnection(connectionID, reason string) {
	if _, ok := r.interested[connectionID]; !ok {
		return
	}
	delete(r.interested, connectionID)
	delete(r.dispatchers, connectionID)
	r.refreshTargets()

	switch {
	case len(r.interested) == 0:
		r.closeSession(reason)
		r.table = make(map[string]subscription)
		r.metrics.SetSubscribedProjects(0)
	case connectionID == r.connectionInUse():
		// Stop using these credentials and continue with another interested connection.
		r.dropEntries(connectionID)
		r.reopen(r.pickInterested(), ReopenConnectionSwitch, reason+", switching connection")
	default:
		for scopeID, sub := range r.table {
			if sub.connectionID == connectionID {
				r.forget(scopeID)
			}
		}
		r.closeIfNoMoreNeeded()
	}
}

// dropEntries removes a connection's rows without sending unsubscribes,
// since the session they were sent on is about to be replaced.
func (r *SubscriptionRegistry) dropEntries(connectionID string) {
	for scopeID, sub := range r.table {
		if sub.connectionID == connectionID {
			delete(r.table, scopeID)
		}
	}
	r.metrics.SetSubscribedProjects(len(r.projects()))
}

func (r *SubscriptionRegistry) reopen(connectionID, reasonLabel, reason string) {
	r.closeSession(reason)
	if connectionID == "" {
		r.logger.Warn("No interested connection left to reopen", "reason", reason)
		return
	}
	if len(r.table) == 0 {
		return
	}
	r.metrics.Reopened(reasonLabel)
	r.ensureSession(connectionID)
}

// ensureSession makes connectionID interested and creates a session for it if none is usable.
// A new session is subscribed to every project already in the table.
func (r *SubscriptionRegistry) ensureSession(connectionID string) {
	if _, ok := r.interested[connectionID]; !ok {
		r.interested[connectionID] = struct{}{}
		r.refreshTargets()
	}

	// A session that failed to connect or was dropped is discarded and retried.
	if r.current != nil {
		select {
		case <-r.current.Done():
			r.logger.Info("Discarding ended session", "session_id", r.current.ID())
			r.closeSession("Session is no longer connected")
		default:
		}
	}
	if r.current != nil {
		return
	}

	cfg := r.sessionCfg
	cfg.ID = ""
	cfg.ConnectionID = connectionID
	cfg.Dialer = r.dialer
	cfg.Parser = r.parser
	cfg.Sink = r.deliver
	cfg.OnEnded = r.onSessionEnded
	cfg.Metrics = r.metrics
	cfg.Logger = r.logger

	s := session.New(&cfg)
	if err := s.Open(); err != nil {
		r.logger.Error("Failed to open session", "error", err)
		return
	}
	r.current = s
	r.logger.Info("Session created", "session_id", s.ID(), "connection_id", connectionID)

	for _, pk := range r.projects() {
		r.sendSubscribe(pk)
	}
}

// connectionInUse returns the connection backing the session, or "" without one.
func (r *SubscriptionRegistry) connectionInUse() string {
	if r.current == nil {
		return ""
	}
	return r.current.ConnectionID()
}

func (r *SubscriptionRegistry) closeIfNoMoreNeeded() {
	if len(r.table) == 0 {
		r.closeSession("No more bound project")
	}
}

func (r *SubscriptionRegistry) closeSession(reason string) {
	if r.current == nil {
		return
	}
	s := r.current
	r.current = nil
	r.logger.Info("Closing session", "session_id", s.ID(), "reason", reason)
	s.Close()
}

func (r *SubscriptionRegistry) sendSubscribe(projectKey string) {
	if r.current == nil {
		return
	}
	if err := r.current.Subscribe(projectKey); err != nil {
		r.logger.Warn("Failed to queue subscribe", "project", projectKey, "error", err)
	}
}

// onSessionEnded runs on the session's goroutines, so the decision is
// deferred to the event bus instead of taking the registry lock here.
func (r *SubscriptionRegistry) onSessionEnded(sessionID string) {
	if r.eventBus != nil {
		r.eventBus.Publish(event.NewSessionEnded(sessionID))
		return
	}
	go r.handleEvent(event.NewSessionEnded(sessionID))
}

// deliver fans an event out to the dispatcher of every interested connection.
func (r *SubscriptionRegistry) deliver(ctx context.Context, e event.ServerEvent) {
	for _, t := range *r.targets.Load() {
		t.dispatcher.Dispatch(logging.WithAttrs(ctx, "target_connection_id", t.connectionID), e)
	}
}

// refreshTargets republishes the interested connections for deliver.
func (r *SubscriptionRegistry) refreshTargets() {
	ids := r.interestedIDs()
	targets := make([]target, 0, len(ids))
	for _, id := range ids {
		d, ok := r.dispatchers[id]
		if !ok {
			d = r.newDispatcher(id)
			r.dispatchers[id] = d
		}
		targets = append(targets, target{connectionID: id, dispatcher: d})
	}
	r.targets.Store(&targets)
}

func (r *SubscriptionRegistry) isEligible(connectionID string) bool {
	conn, err := r.connections.GetConnection(r.ctx, connectionID)
	if err != nil {
		if !errors.Is(err, connection.ErrConnectionNotFound) {
			r.logger.Error("Failed to resolve connection", "connection_id", connectionID, "error", err)
		}
		return false
	}
	return conn.IsEligible()
}

func (r *SubscriptionRegistry) didDisableNotifications(connectionID string) bool {
	if _, ok := r.interested[connectionID]; !ok {
		return false
	}
	conn, err := r.connections.GetConnection(r.ctx, connectionID)
	return err == nil && conn.NotificationsDisabled()
}

func (r *SubscriptionRegistry) didEnableNotifications(connectionID string) bool {
	_, ok := r.interested[connectionID]
	return !ok && r.isEligible(connectionID)
}

// pickInterested returns the first eligible interested connection in ID order.
func (r *SubscriptionRegistry) pickInterested() string {
	for _, id := range r.interestedIDs() {
		if r.isEligible(id) {
			return id
		}
	}
	return ""
}

func (r *SubscriptionRegistry) interestedIDs() []string {
	ids := make([]string, 0, len(r.interested))
	for id := range r.interested {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *SubscriptionRegistry) isProjectSubscribed(projectKey string) bool {
	for _, sub := range r.table {
		if sub.projectKey == projectKey {
			return true
		}
	}
	return false
}

func (r *SubscriptionRegistry) projects() []string {
	seen := make(map[string]struct{}, len(r.table))
	keys := make([]string, 0, len(r.table))
	for _, sub := range r.table {
		if _, ok := seen[sub.projectKey]; !ok {
			seen[sub.projectKey] = struct{}{}
			keys = append(keys, sub.projectKey)
		}
	}
	sort.Strings(keys)
	return keys
}
