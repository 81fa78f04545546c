package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"eventlink-go/core/dispatch"
	"eventlink-go/core/event"
	"eventlink-go/core/eventbus"
	"eventlink-go/core/state"
	"eventlink-go/domain/binding"
	"eventlink-go/domain/connection"
	"eventlink-go/infrastructure/transport/transporttest"
)

// fakeBindings is an in-memory BindingResolver. A nil binding is an unbound scope.
type fakeBindings struct {
	mu     sync.Mutex
	scopes map[string]*binding.Binding
}

func newFakeBindings() *fakeBindings {
	return &fakeBindings{scopes: make(map[string]*binding.Binding)}
}

func (f *fakeBindings) bind(scopeID, connectionID, projectKey string) {
	f.mu.Lock()
	f.scopes[scopeID] = &binding.Binding{ConnectionID: connectionID, ProjectKey: projectKey}
	f.mu.Unlock()
}

func (f *fakeBindings) unbind(scopeID string) {
	f.mu.Lock()
	f.scopes[scopeID] = nil
	f.mu.Unlock()
}

func (f *fakeBindings) remove(scopeID string) {
	f.mu.Lock()
	delete(f.scopes, scopeID)
	f.mu.Unlock()
}

func (f *fakeBindings) GetBinding(ctx context.Context, scopeID string) (*binding.Binding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.scopes[scopeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", binding.ErrScopeNotFound, scopeID)
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %s", binding.ErrBindingNotFound, scopeID)
	}
	clone := *b
	return &clone, nil
}

func (f *fakeBindings) ScopesForConnection(ctx context.Context, connectionID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, b := range f.scopes {
		if b != nil && b.ConnectionID == connectionID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeBindings) ListScopes(ctx context.Context) ([]*binding.Scope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scopes := make([]*binding.Scope, 0, len(f.scopes))
	for id, b := range f.scopes {
		sc := &binding.Scope{ID: id}
		if b != nil {
			clone := *b
			sc.Binding = &clone
		}
		scopes = append(scopes, sc)
	}
	return scopes, nil
}

// fakeConnections is an in-memory ConnectionResolver.
type fakeConnections struct {
	mu    sync.Mutex
	conns map[string]*connection.Connection
}

func newFakeConnections() *fakeConnections {
	return &fakeConnections{conns: make(map[string]*connection.Connection)}
}

func (f *fakeConnections) put(id string, kind connection.Kind, disabled bool) {
	f.mu.Lock()
	f.conns[id] = &connection.Connection{ID: id, Kind: kind, Token: "token-" + id, DisableNotifications: disabled}
	f.mu.Unlock()
}

func (f *fakeConnections) remove(id string) {
	f.mu.Lock()
	delete(f.conns, id)
	f.mu.Unlock()
}

func (f *fakeConnections) GetConnection(ctx context.Context, id string) (*connection.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", connection.ErrConnectionNotFound, id)
	}
	return c.Clone(), nil
}

type fixture struct {
	registry    *SubscriptionRegistry
	dialer      *transporttest.Dialer
	bindings    *fakeBindings
	connections *fakeConnections
}

func newFixture(t *testing.T, cfg *RegistryConfig) *fixture {
	t.Helper()
	f := &fixture{
		dialer:      transporttest.NewDialer(),
		bindings:    newFakeBindings(),
		connections: newFakeConnections(),
	}
	if cfg == nil {
		cfg = &RegistryConfig{ManageServerEvents: true}
	}
	cfg.Bindings = f.bindings
	cfg.Connections = f.connections
	cfg.Dialer = f.dialer
	f.registry = NewSubscriptionRegistry(cfg)
	t.Cleanup(func() { f.registry.Shutdown(context.Background()) })
	return f
}

func (f *fixture) waitOpen(t *testing.T) *transporttest.Conn {
	t.Helper()
	waitFor(t, "open session", f.registry.HasOpenSession)
	return f.dialer.Last()
}

func (f *fixture) currentState() state.ConnectionState {
	f.registry.mu.Lock()
	defer f.registry.mu.Unlock()
	if f.registry.current == nil {
		return state.StateClosed
	}
	return f.registry.current.State()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// countFrames counts the PROJECT filter frames of an action for a project.
func countFrames(c *transporttest.Conn, action, projectKey string) int {
	n := 0
	for _, f := range c.Sent() {
		if isFrame(f, action, projectKey) {
			n++
		}
	}
	return n
}

func indexOfFrame(c *transporttest.Conn, action, projectKey string) int {
	for i, f := range c.Sent() {
		if isFrame(f, action, projectKey) {
			return i
		}
	}
	return -1
}

func isFrame(f, action, projectKey string) bool {
	return strings.Contains(f, `"action":"`+action+`"`) &&
		strings.Contains(f, `"filterType":"PROJECT"`) &&
		strings.Contains(f, `"project":"`+projectKey+`"`)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRegistry_IdempotentSubscribe(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")
	f.bindings.bind("s2", "connA", "projX")

	f.registry.ConsiderScope("s1")
	f.registry.ConsiderScope("s2")
	f.registry.ConsiderScope("s1")
	conn := f.waitOpen(t)

	f.registry.Forget("s1")
	if got := f.registry.SubscribedProjects(); !equalStrings(got, []string{"projX"}) {
		t.Errorf("SubscribedProjects() = %v, want [projX]", got)
	}

	f.registry.Forget("s2")

	if got := countFrames(conn, "subscribe", "projX"); got != 1 {
		t.Errorf("subscribe(projX) frames = %d, want 1", got)
	}
	if got := countFrames(conn, "unsubscribe", "projX"); got != 1 {
		t.Errorf("unsubscribe(projX) frames = %d, want 1", got)
	}
	if f.registry.HasOpenSession() {
		t.Error("HasOpenSession() = true after last scope forgotten, want false")
	}
	if !conn.Closed() {
		t.Error("connection not closed after last scope forgotten")
	}
}

func TestRegistry_IneligibleConnectionScenario(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.connections.put("connB", connection.KindServer, false)
	f.bindings.bind("s1", "connA", "projX")
	f.bindings.bind("s2", "connA", "projX")
	f.bindings.bind("s3", "connB", "projY")

	f.registry.handleEvent(event.NewScopesAdded("s1", "s2", "s3"))
	conn := f.waitOpen(t)

	if got := len(f.dialer.Conns()); got != 1 {
		t.Fatalf("dialed connections = %d, want 1", got)
	}
	if conn.ConnectionID != "connA" {
		t.Errorf("dialed connection = %v, want connA", conn.ConnectionID)
	}

	f.registry.handleEvent(event.NewScopeRemoved("s1"))
	f.registry.handleEvent(event.NewScopeRemoved("s2"))

	if got := countFrames(conn, "subscribe", "projX"); got != 1 {
		t.Errorf("subscribe(projX) frames = %d, want 1", got)
	}
	if got := countFrames(conn, "unsubscribe", "projX"); got != 1 {
		t.Errorf("unsubscribe(projX) frames = %d, want 1", got)
	}
	if got := countFrames(conn, "subscribe", "projY"); got != 0 {
		t.Errorf("subscribe(projY) frames = %d, want 0", got)
	}
	if !conn.Closed() {
		t.Error("session not closed after s1 and s2 removed")
	}
}

func TestRegistry_Rebind(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projA")

	f.registry.ConsiderScope("s1")
	conn := f.waitOpen(t)

	f.bindings.bind("s1", "connA", "projB")
	f.registry.handleEvent(event.NewBindingChanged("s1"))

	waitFor(t, "subscribe(projB)", func() bool { return countFrames(conn, "subscribe", "projB") == 1 })

	unsub := indexOfFrame(conn, "unsubscribe", "projA")
	sub := indexOfFrame(conn, "subscribe", "projB")
	if unsub < 0 || unsub > sub {
		t.Errorf("unsubscribe(projA) at %d, subscribe(projB) at %d, want unsubscribe first", unsub, sub)
	}
	if got := f.registry.SubscribedProjects(); !equalStrings(got, []string{"projB"}) {
		t.Errorf("SubscribedProjects() = %v, want [projB]", got)
	}
	if got := len(f.dialer.Conns()); got != 1 {
		t.Errorf("dialed connections = %d, want 1", got)
	}
}

func TestRegistry_RebindSharedProjectKeepsSubscription(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projA")
	f.bindings.bind("s2", "connA", "projA")

	f.registry.ConsiderScope("s1")
	f.registry.ConsiderScope("s2")
	conn := f.waitOpen(t)

	f.bindings.bind("s1", "connA", "projB")
	f.registry.ConsiderScope("s1")
	waitFor(t, "subscribe(projB)", func() bool { return countFrames(conn, "subscribe", "projB") == 1 })

	if got := countFrames(conn, "unsubscribe", "projA"); got != 0 {
		t.Errorf("unsubscribe(projA) frames = %d, want 0", got)
	}
}

func TestRegistry_UnbindClosesSession(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")

	f.registry.ConsiderScope("s1")
	conn := f.waitOpen(t)

	f.bindings.unbind("s1")
	f.registry.handleEvent(event.NewBindingChanged("s1"))

	if got := countFrames(conn, "unsubscribe", "projX"); got != 1 {
		t.Errorf("unsubscribe(projX) frames = %d, want 1", got)
	}
	if f.registry.HasOpenSession() {
		t.Error("HasOpenSession() = true after unbind, want false")
	}
}

func TestRegistry_RebindToIneligibleConnection(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.connections.put("connB", connection.KindServer, false)
	f.bindings.bind("s1", "connA", "projX")

	f.registry.ConsiderScope("s1")
	conn := f.waitOpen(t)

	f.bindings.bind("s1", "connB", "projX")
	f.registry.ConsiderScope("s1")

	if got := countFrames(conn, "unsubscribe", "projX"); got != 1 {
		t.Errorf("unsubscribe(projX) frames = %d, want 1", got)
	}
	if !conn.Closed() {
		t.Error("session not closed after rebind to ineligible connection")
	}
}

func TestRegistry_UnboundAndUnknownScopes(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.bindings.unbind("s1")

	f.registry.ConsiderScope("s1")
	f.registry.ConsiderScope("missing")

	if got := len(f.dialer.Conns()); got != 0 {
		t.Errorf("dialed connections = %d, want 0", got)
	}
	if f.registry.ConnectionInUse() != "" {
		t.Errorf("ConnectionInUse() = %v, want empty", f.registry.ConnectionInUse())
	}
}

func TestRegistry_SingleSession(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.connections.put("connB", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")
	f.bindings.bind("s2", "connB", "projY")

	f.registry.ConsiderScope("s1")
	f.registry.ConsiderScope("s2")
	f.registry.ConsiderScope("s1")
	conn := f.waitOpen(t)

	waitFor(t, "subscribe(projY)", func() bool { return countFrames(conn, "subscribe", "projY") == 1 })

	if got := len(f.dialer.Open()); got != 1 {
		t.Errorf("open connections = %d, want 1", got)
	}
	if got := f.registry.ConnectionInUse(); got != "connA" {
		t.Errorf("ConnectionInUse() = %v, want connA", got)
	}
	if got := countFrames(conn, "subscribe", "projX"); got != 1 {
		t.Errorf("subscribe(projX) frames = %d, want 1", got)
	}
}

func TestRegistry_SwitchesConnectionWhenInUseDisabled(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.connections.put("connB", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")
	f.bindings.bind("s2", "connB", "projY")

	f.registry.ConsiderScope("s1")
	f.registry.ConsiderScope("s2")
	first := f.waitOpen(t)

	f.connections.put("connA", connection.KindCloud, true)
	f.registry.handleEvent(event.NewConnectionUpdated("connA"))

	waitFor(t, "second connection", func() bool { return len(f.dialer.Conns()) == 2 })
	second := f.waitOpen(t)

	if !first.Closed() {
		t.Error("first connection not closed")
	}
	if second.ConnectionID != "connB" {
		t.Errorf("reopened with %v, want connB", second.ConnectionID)
	}
	waitFor(t, "subscribe(projY)", func() bool { return countFrames(second, "subscribe", "projY") == 1 })
	if got := countFrames(second, "subscribe", "projX"); got != 0 {
		t.Errorf("subscribe(projX) on new connection = %d, want 0", got)
	}
	if got := f.registry.SubscribedProjects(); !equalStrings(got, []string{"projY"}) {
		t.Errorf("SubscribedProjects() = %v, want [projY]", got)
	}
}

func TestRegistry_RemovesConnectionNotInUse(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.connections.put("connB", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")
	f.bindings.bind("s2", "connB", "projY")

	f.registry.ConsiderScope("s1")
	f.registry.ConsiderScope("s2")
	conn := f.waitOpen(t)

	f.connections.remove("connB")
	f.registry.handleEvent(event.NewConnectionRemoved("connB"))

	waitFor(t, "unsubscribe(projY)", func() bool { return countFrames(conn, "unsubscribe", "projY") == 1 })
	if got := len(f.dialer.Conns()); got != 1 {
		t.Errorf("dialed connections = %d, want 1", got)
	}
	if got := countFrames(conn, "unsubscribe", "projX"); got != 0 {
		t.Errorf("unsubscribe(projX) frames = %d, want 0", got)
	}
}

func TestRegistry_RemovingLastConnectionClosesSession(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")

	f.registry.ConsiderScope("s1")
	conn := f.waitOpen(t)

	f.connections.remove("connA")
	f.registry.handleEvent(event.NewConnectionRemoved("connA"))

	if !conn.Closed() {
		t.Error("connection not closed")
	}
	if got := f.registry.SubscribedProjects(); len(got) != 0 {
		t.Errorf("SubscribedProjects() = %v, want empty", got)
	}
}

func TestRegistry_EnablingNotificationsSubscribes(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, true)
	f.bindings.bind("s1", "connA", "projX")

	f.registry.ConsiderScope("s1")
	if got := len(f.dialer.Conns()); got != 0 {
		t.Fatalf("dialed connections = %d, want 0", got)
	}

	f.connections.put("connA", connection.KindCloud, false)
	f.registry.handleEvent(event.NewConnectionUpdated("connA"))
	conn := f.waitOpen(t)

	waitFor(t, "subscribe(projX)", func() bool { return countFrames(conn, "subscribe", "projX") == 1 })
}

func TestRegistry_ConnectionAddedMakesBindingValid(t *testing.T) {
	f := newFixture(t, nil)
	f.bindings.bind("s1", "connA", "projX")

	f.registry.ConsiderScope("s1")
	if got := len(f.dialer.Conns()); got != 0 {
		t.Fatalf("dialed connections = %d, want 0", got)
	}

	f.connections.put("connA", connection.KindCloud, false)
	f.registry.handleEvent(event.NewConnectionAdded("connA"))
	f.waitOpen(t)
}

func TestRegistry_CredentialsChanged(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.connections.put("connB", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")

	f.registry.ConsiderScope("s1")
	first := f.waitOpen(t)

	f.registry.handleEvent(event.NewCredentialsChanged("connB"))
	if got := len(f.dialer.Conns()); got != 1 {
		t.Fatalf("dialed connections after unrelated rotation = %d, want 1", got)
	}

	f.registry.handleEvent(event.NewCredentialsChanged("connA"))
	waitFor(t, "reopened connection", func() bool { return len(f.dialer.Conns()) == 2 })
	second := f.waitOpen(t)

	if !first.Closed() {
		t.Error("first connection not closed")
	}
	waitFor(t, "resubscribe(projX)", func() bool { return countFrames(second, "subscribe", "projX") == 1 })
}

func TestRegistry_ReopensWhenSessionEnds(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")

	f.registry.ConsiderScope("s1")
	first := f.waitOpen(t)

	first.Drop()

	waitFor(t, "reopened connection", func() bool { return len(f.dialer.Conns()) == 2 })
	second := f.waitOpen(t)
	waitFor(t, "resubscribe(projX)", func() bool { return countFrames(second, "subscribe", "projX") == 1 })

	if second.ConnectionID != "connA" {
		t.Errorf("reopened with %v, want connA", second.ConnectionID)
	}
}

func TestRegistry_IgnoresEndOfReplacedSession(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")

	f.registry.ConsiderScope("s1")
	f.waitOpen(t)

	f.registry.handleEvent(event.NewSessionEnded("replaced-session"))

	if got := len(f.dialer.Conns()); got != 1 {
		t.Errorf("dialed connections = %d, want 1", got)
	}
}

func TestRegistry_RetriesAfterFailedDial(t *testing.T) {
	f := newFixture(t, nil)
	f.connections.put("connA", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")
	f.bindings.bind("s2", "connA", "projY")

	f.dialer.SetErr(errors.New("connection refused"))
	f.registry.ConsiderScope("s1")

	waitFor(t, "failed dial", func() bool {
		f.registry.mu.Lock()
		defer f.registry.mu.Unlock()
		return f.registry.current != nil && f.registry.current.State() == state.StateClosed
	})
	if f.registry.HasOpenSession() {
		t.Fatal("HasOpenSession() = true after failed dial, want false")
	}

	f.dialer.SetErr(nil)
	f.registry.ConsiderScope("s2")
	conn := f.waitOpen(t)

	waitFor(t, "both subscriptions", func() bool {
		return countFrames(conn, "subscribe", "projX") == 1 && countFrames(conn, "subscribe", "projY") == 1
	})
}

func TestRegistry_DeliversToInterestedConnections(t *testing.T) {
	var mu sync.Mutex
	received := make(map[string][]*event.IssueChanged)

	cfg := &RegistryConfig{
		ManageServerEvents: true,
		Dispatchers: func(connectionID string) *dispatch.Dispatcher {
			d := dispatch.New(nil)
			d.Register(event.KindIssueChanged, dispatch.HandlerFunc(func(ctx context.Context, e event.ServerEvent) error {
				mu.Lock()
				received[connectionID] = append(received[connectionID], e.(*event.IssueChanged))
				mu.Unlock()
				return nil
			}))
			return d
		},
	}
	f := newFixture(t, cfg)
	f.connections.put("connA", connection.KindCloud, false)
	f.connections.put("connB", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")
	f.bindings.bind("s2", "connB", "projX")

	f.registry.ConsiderScope("s1")
	f.registry.ConsiderScope("s2")
	conn := f.waitOpen(t)

	raw := `{"event":"IssueChanged","data":{"projectKey":"projX","issues":[{"issueKey":"AX1","branchName":"main","impacts":[]}],"resolved":true}}`
	conn.Deliver(raw)
	conn.Deliver(raw)

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []string{"connA", "connB"} {
		events := received[id]
		if len(events) != 1 {
			t.Fatalf("%s received %d events, want 1", id, len(events))
		}
		e := events[0]
		if e.ProjectKey() != "projX" {
			t.Errorf("ProjectKey() = %v, want projX", e.ProjectKey())
		}
		if e.Resolved == nil || !*e.Resolved {
			t.Errorf("Resolved = %v, want true", e.Resolved)
		}
		if len(e.Issues) != 1 || e.Issues[0].IssueKey != "AX1" {
			t.Errorf("Issues = %+v, want [AX1]", e.Issues)
		}
	}
}

func TestRegistry_Disabled(t *testing.T) {
	f := newFixture(t, &RegistryConfig{ManageServerEvents: false})
	f.connections.put("connA", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")

	f.registry.Start()
	f.registry.ConsiderScope("s1")
	f.registry.handleEvent(event.NewBindingChanged("s1"))

	if got := len(f.dialer.Conns()); got != 0 {
		t.Errorf("dialed connections = %d, want 0", got)
	}
}

func TestRegistry_StartAndEventBus(t *testing.T) {
	bus := eventbus.New(16, nil)
	defer bus.Close()

	f := newFixture(t, &RegistryConfig{ManageServerEvents: true, EventBus: bus})
	f.connections.put("connA", connection.KindCloud, false)
	f.bindings.bind("s1", "connA", "projX")

	f.registry.Start()
	conn := f.waitOpen(t)

	f.bindings.bind("s2", "connA", "projY")
	bus.Publish(event.NewBindingChanged("s2"))
	waitFor(t, "subscribe(projY)", func() bool { return countFrames(conn, "subscribe", "projY") == 1 })

	// Session end travels through the bus as well.
	conn.Drop()
	waitFor(t, "reopened connection", func() bool { return len(f.dialer.Conns()) == 2 })

	f.registry.Shutdown(context.Background())
	if f.registry.HasOpenSession() {
		t.Error("HasOpenSession() = true after Shutdown, want false")
	}
	if got := len(f.dialer.Open()); got != 0 {
		t.Errorf("open connections after Shutdown = %d, want 0", got)
	}
	if f.currentState() != state.StateClosed {
		t.Errorf("state after Shutdown = %v, want Closed", f.currentState())
	}
}

func TestRegistry_ForgetUnknownScope(t *testing.T) {
	f := newFixture(t, nil)
	f.bindings.remove("s1")

	f.registry.Forget("s1")
	f.registry.handleEvent(event.NewScopeRemoved("s1"))

	if f.registry.HasOpenSession() {
		t.Error("HasOpenSession() = true, want false")
	}
}

// gatedBindings holds the first GetBinding call until gate is closed.
type gatedBindings struct {
	*fakeBindings
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (g *gatedBindings) GetBinding(ctx context.Context, scopeID string) (*binding.Binding, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.gate
	}
	return g.fakeBindings.GetBinding(ctx, scopeID)
}

func TestRegistry_NoLifecycleEventLostWhileBusy(t *testing.T) {
	bus := eventbus.New(4, nil)
	defer bus.Close()

	bindings := &gatedBindings{
		fakeBindings: newFakeBindings(),
		gate:         make(chan struct{}),
		entered:      make(chan struct{}),
	}
	connections := newFakeConnections()
	connections.put("connA", connection.KindCloud, false)
	dialer := transporttest.NewDialer()

	registry := NewSubscriptionRegistry(&RegistryConfig{
		ManageServerEvents: true,
		EventBus:           bus,
		Bindings:           bindings,
		Connections:        connections,
		Dialer:             dialer,
	})
	defer registry.Shutdown(context.Background())
	registry.Start()

	const scopes = 20
	want := make([]string, 0, scopes)
	for i := 0; i < scopes; i++ {
		id := fmt.Sprintf("s%02d", i)
		project := fmt.Sprintf("proj%02d", i)
		bindings.bind(id, "connA", project)
		want = append(want, project)
	}

	bus.Publish(event.NewBindingChanged("s00"))
	<-bindings.entered
	for i := 1; i < scopes; i++ {
		bus.Publish(event.NewBindingChanged(fmt.Sprintf("s%02d", i)))
	}
	close(bindings.gate)

	waitFor(t, "every scope subscribed", func() bool { return len(registry.SubscribedProjects()) == scopes })
	if got := registry.SubscribedProjects(); !equalStrings(got, want) {
		t.Errorf("SubscribedProjects() = %v, want %v", got, want)
	}
	conn := dialer.Last()
	waitFor(t, "subscribe frames", func() bool { return countFrames(conn, "subscribe", "proj19") == 1 })
	if got := len(dialer.Conns()); got != 1 {
		t.Errorf("dialed connections = %d, want 1", got)
	}
}

func TestRegistry_IgnoresCallsAfterShutdown(t *testing.T) {
	bus := eventbus.New(4, nil)
	defer bus.Close()

	f := newFixture(t, &RegistryConfig{ManageServerEvents: true, EventBus: bus})
	f.connections.put("connA", connection.KindCloud, false)
	f.registry.Start()
	f.registry.Shutdown(context.Background())

	f.bindings.bind("s1", "connA", "projX")
	f.registry.ConsiderScope("s1")
	f.registry.handleEvent(event.NewBindingChanged("s1"))
	f.registry.ReopenConnection("connA")

	if got := len(f.dialer.Conns()); got != 0 {
		t.Errorf("dialed connections after Shutdown = %d, want 0", got)
	}
	if got := f.registry.SubscribedProjects(); len(got) != 0 {
		t.Errorf("SubscribedProjects() = %v, want none", got)
	}
}
