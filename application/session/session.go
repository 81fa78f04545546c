// Package session implements the Session Actor owning one streaming connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"eventlink-go/core/command"
	"eventlink-go/core/event"
	"eventlink-go/core/state"
	"eventlink-go/domain/parsing"
	"eventlink-go/infrastructure/logging"
	"eventlink-go/infrastructure/metrics"
	"eventlink-go/infrastructure/transport"
)

// Default timings. They follow the remote service's idle timeout and hard connection lifetime.
const (
	DefaultKeepAliveInterval = 9 * time.Minute
	DefaultReopenAfter       = 119 * time.Minute
	DefaultPruneInterval     = 5 * time.Minute
	DefaultHistoryWindow     = time.Minute
	DefaultCloseTimeout      = 10 * time.Second
	DefaultStopGrace         = time.Second
)

// Sink receives every parsed, non-duplicate server event.
type Sink func(ctx context.Context, e event.ServerEvent)

// Session represents one streaming connection as an Actor.
// Outbound frames are processed serially through a command queue; inbound
// messages arrive on the transport's receive goroutine.
type Session struct {
	// Identity
	id           string
	connectionID string

	// State
	state   state.ConnectionState
	conn    transport.Conn
	stateMu sync.RWMutex
	closing atomic.Bool

	// Dependencies
	dialer  transport.Dialer
	parser  *parsing.Registry
	filters []command.EventFilter
	sink    Sink
	onEnded func(sessionID string)
	history *History
	metrics *metrics.Collector
	logger  *slog.Logger

	// Timings
	keepAliveInterval time.Duration
	reopenAfter       time.Duration
	pruneInterval     time.Duration
	historyWindow     time.Duration
	closeTimeout      time.Duration
	stopGrace         time.Duration

	// Command processing
	cmdChan   chan command.Command
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	openOnce  sync.Once
	closeOnce sync.Once
}

// Config holds configuration for creating a new Session.
type Config struct {
	ID           string
	ConnectionID string
	Dialer       transport.Dialer
	Parser       *parsing.Registry
	// Filters are sent with every subscribe and unsubscribe. Defaults to Parser.Filters().
	Filters []command.EventFilter
	Sink    Sink
	// OnEnded is called when the connection ends without Close being called,
	// including when the connection reaches its maximum lifetime.
	OnEnded func(sessionID string)
	Metrics *metrics.Collector
	Logger  *slog.Logger

	KeepAliveInterval time.Duration
	ReopenAfter       time.Duration
	PruneInterval     time.Duration
	HistoryWindow     time.Duration
	CloseTimeout      time.Duration
	StopGrace         time.Duration
	CommandBuffer     int
}

// New creates a new Session actor in the Closed state.
func New(cfg *Config) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Parser == nil {
		cfg.Parser = parsing.DefaultRegistry()
	}
	if cfg.Filters == nil {
		cfg.Filters = cfg.Parser.Filters()
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = 100
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if cfg.ReopenAfter <= 0 {
		cfg.ReopenAfter = DefaultReopenAfter
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = DefaultPruneInterval
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}

	logger := cfg.Logger.With("session_id", cfg.ID, "connection_id", cfg.ConnectionID)
	ctx, cancel := context.WithCancel(logging.With(context.Background(), logger))

	return &Session{
		id:                cfg.ID,
		connectionID:      cfg.ConnectionID,
		state:             state.StateClosed,
		dialer:            cfg.Dialer,
		parser:            cfg.Parser,
		filters:           cfg.Filters,
		sink:              cfg.Sink,
		onEnded:           cfg.OnEnded,
		history:           NewHistory(),
		metrics:           cfg.Metrics,
		logger:            logger,
		keepAliveInterval: cfg.KeepAliveInterval,
		reopenAfter:       cfg.ReopenAfter,
		pruneInterval:     cfg.PruneInterval,
		historyWindow:     cfg.HistoryWindow,
		closeTimeout:      cfg.CloseTimeout,
		stopGrace:         cfg.StopGrace,
		cmdChan:           make(chan command.Command, cfg.CommandBuffer),
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Open starts connecting in the background. Commands sent before the
// connection is established are written once it is.
// Only the first call has an effect.
func (s *Session) Open() error {
	err := errors.New("session already opened")
	s.openOnce.Do(func() {
		if err = s.transitionTo(state.StateConnecting); err != nil {
			return
		}
		s.wg.Add(1)
		go s.run()
		s.logger.Info("Session opening")
	})
	return err
}

// Close closes the connection gracefully within the configured close timeout.
// Calling it more than once is a no-op.
func (s *Session) Close() {
	s.CloseContext(context.Background())
}

// CloseContext is Close bounded additionally by ctx.
func (s *Session) CloseContext(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.cancel()
		s.waitStopped()

		if conn := s.connection(); conn != nil {
			closeCtx, cancel := context.WithTimeout(ctx, s.closeTimeout)
			if err := conn.Close(closeCtx); err != nil {
				s.logger.Warn("Connection did not close gracefully", "error", err)
			}
			cancel()
		}

		if s.State().IsActive() {
			s.transitionTo(state.StateClosed)
		}
		s.logger.Info("Session closed")
	})
}

// Subscribe queues the subscribe frames of a project.
func (s *Session) Subscribe(projectKey string) error {
	return s.Send(command.NewSubscribe(projectKey, s.filters))
}

// Unsubscribe queues the unsubscribe frames of a project.
func (s *Session) Unsubscribe(projectKey string) error {
	return s.Send(command.NewUnsubscribe(projectKey, s.filters))
}

// Send queues a command to the session for processing.
// Returns an error if the session is not accepting commands.
func (s *Session) Send(cmd command.Command) error {
	if s.ctx.Err() != nil {
		return fmt.Errorf("session is stopped")
	}
	select {
	case s.cmdChan <- cmd:
		return nil
	case <-s.ctx.Done():
		return fmt.Errorf("session is stopped")
	default:
		return fmt.Errorf("command queue full")
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// ConnectionID returns the connection whose credentials the session uses.
func (s *Session) ConnectionID() string {
	return s.connectionID
}

// State returns the current connection state.
func (s *Session) State() state.ConnectionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Done is closed once the session stops accepting commands, whether through
// Close, a failed connection attempt or the peer ending the connection.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) connection() transport.Conn {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.conn
}

// waitStopped waits up to the stop grace for the actor goroutine to exit.
func (s *Session) waitStopped() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.stopGrace):
		s.logger.Warn("Session stop timeout")
	}
}

// run connects, then processes commands and timers until the session stops.
func (s *Session) run() {
	defer s.wg.Done()

	if !s.connect() {
		return
	}

	keepAlive := time.NewTicker(s.keepAliveInterval)
	defer keepAlive.Stop()
	prune := time.NewTicker(s.pruneInterval)
	defer prune.Stop()
	reopen := time.NewTimer(s.reopenAfter)
	defer reopen.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.flush()
			return
		case cmd := <-s.cmdChan:
			s.processCommand(cmd)
		case <-keepAlive.C:
			s.processCommand(&command.KeepAlive{})
		case <-prune.C:
			if n := s.history.ForgetOlderThan(s.historyWindow); n > 0 {
				s.logger.Debug("Pruned message history", "removed", n, "remaining", s.history.Len())
			}
		case <-reopen.C:
			s.logger.Info("Connection reached its maximum lifetime")
			s.notifyEnded()
		}
	}
}

// connect dials and moves to Open. It reports whether the session is usable.
func (s *Session) connect() bool {
	conn, err := s.dialer.Dial(s.ctx, s.connectionID, s.handleMessage, s.handleEnded)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Error("Failed to open connection", "error", err)
			s.metrics.DialFailed()
		}
		s.cancel()
		if s.State().IsActive() {
			s.transitionTo(state.StateClosed)
		}
		return false
	}

	s.stateMu.Lock()
	s.conn = conn
	s.stateMu.Unlock()

	// Closed while dialing, or ended before the dial returned.
	if s.ctx.Err() != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.closeTimeout)
		conn.Close(ctx)
		cancel()
		return false
	}

	if err := s.transitionTo(state.StateOpen); err != nil {
		s.logger.Error("Failed to transition to open", "error", err)
		return false
	}
	s.metrics.SessionOpened()
	return true
}

// flush writes the commands still queued when the session is closed.
func (s *Session) flush() {
	if !s.closing.Load() {
		return
	}
	for {
		select {
		case cmd := <-s.cmdChan:
			s.processCommand(cmd)
		default:
			return
		}
	}
}

func (s *Session) processCommand(cmd command.Command) {
	fc, ok := cmd.(command.FrameCommand)
	if !ok {
		s.logger.Warn("Unknown command", "command", fmt.Sprintf("%T", cmd))
		return
	}

	frames, err := fc.Frames()
	if err != nil {
		s.logger.Error("Failed to render frames", "command", cmd.CommandName(), "error", err)
		return
	}

	if st := s.State(); !st.CanSend() {
		s.logger.Warn("Dropped frames, connection is not open", "command", cmd.CommandName(), "state", st)
		return
	}

	conn := s.connection()
	for _, f := range frames {
		if err := conn.Send(f); err != nil {
			s.logger.Warn("Failed to send frame", "command", cmd.CommandName(), "error", err)
			return
		}
		s.logger.Debug("Sent frame", "command", cmd.CommandName(), "frame", f)
	}
}

// handleMessage runs the inbound pipeline for one raw message. Failures are
// logged and never end the connection.
func (s *Session) handleMessage(raw string) {
	if s.ctx.Err() != nil {
		return
	}
	s.metrics.MessageReceived()
	s.logger.Debug("Received message", "message", raw)

	if s.history.CheckAndRecord(raw) {
		s.metrics.DuplicateDropped()
		s.logger.Debug("Dropped duplicate message")
		return
	}

	env, err := parsing.DecodeEnvelope(raw)
	if err != nil {
		s.metrics.MalformedDropped(metrics.ReasonEnvelope)
		if errors.Is(err, parsing.ErrMissingEventType) {
			s.logger.Debug("Dropped message without event type")
			return
		}
		s.logger.Error("Malformed message", "error", err)
		return
	}

	e, err := s.parser.Parse(env.Event, env.Data)
	if err != nil {
		if errors.Is(err, parsing.ErrUnknownEventType) {
			s.metrics.MalformedDropped(metrics.ReasonUnknownType)
			s.logger.Warn("Unknown event type", "event", env.Event)
			return
		}
		s.metrics.MalformedDropped(metrics.ReasonInvalidPayload)
		s.logger.Error("Invalid event payload", "event", env.Event, "error", err)
		return
	}

	s.deliver(e)
}

func (s *Session) deliver(e event.ServerEvent) {
	if s.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Event sink panicked", "kind", e.Kind(), "panic", r)
		}
	}()
	s.metrics.EventDispatched(e.Kind().String())
	s.sink(s.ctx, e)
}

// handleEnded is called by the transport when the inbound direction ends.
func (s *Session) handleEnded() {
	if s.closing.Load() {
		return
	}
	s.logger.Info("Connection ended by peer")
	s.cancel()

	if conn := s.connection(); conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.closeTimeout)
		conn.Close(ctx)
		cancel()
	}
	if s.State().IsActive() {
		s.transitionTo(state.StateClosed)
	}
	s.notifyEnded()
}

func (s *Session) notifyEnded() {
	if s.onEnded != nil && !s.closing.Load() {
		s.onEnded(s.id)
	}
}

// State transition helpers

func (s *Session) transitionTo(newState state.ConnectionState) error {
	s.stateMu.Lock()
	oldState := s.state

	if !oldState.CanTransitionTo(newState) {
		s.stateMu.Unlock()
		return state.NewTransitionError(oldState, newState,
			fmt.Sprintf("allowed targets are %v", oldState.ValidTransitions()))
	}

	s.state = newState
	s.stateMu.Unlock()

	s.logger.Info("State changed", "from", oldState, "to", newState)
	return nil
}
