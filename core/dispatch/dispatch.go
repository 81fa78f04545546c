// Package dispatch routes parsed server events to the handlers registered for their kind.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"eventlink-go/core/event"
)

// Handler persists or reacts to the effect of one server event.
type Handler interface {
	Handle(ctx context.Context, e event.ServerEvent) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, e event.ServerEvent) error

// Handle calls f(ctx, e).
func (f HandlerFunc) Handle(ctx context.Context, e event.ServerEvent) error {
	return f(ctx, e)
}

// FailureObserver is notified when a handler returns an error or panics.
type FailureObserver func(kind event.Kind)

// Dispatcher maps event kinds to handlers and invokes them in registration order.
// It is safe for concurrent use.
type Dispatcher struct {
	mu        sync.RWMutex
	handlers  map[event.Kind][]Handler
	logger    *slog.Logger
	onFailure FailureObserver
}

// Config holds configuration for creating a new Dispatcher.
type Config struct {
	Logger    *slog.Logger
	OnFailure FailureObserver
}

// New creates an empty Dispatcher.
func New(cfg *Config) *Dispatcher {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		handlers:  make(map[event.Kind][]Handler),
		logger:    cfg.Logger,
		onFailure: cfg.OnFailure,
	}
}

// Register appends a handler for the given kind.
func (d *Dispatcher) Register(kind event.Kind, h Handler) {
	d.mu.Lock()
	d.handlers[kind] = append(d.handlers[kind], h)
	d.mu.Unlock()
}

// Dispatch invokes every handler registered for the event's kind.
// A failing handler is logged and never prevents the remaining handlers from running.
// It returns the number of handlers that completed without error.
func (d *Dispatcher) Dispatch(ctx context.Context, e event.ServerEvent) int {
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[e.Kind()]...)
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.logger.Debug("No handler registered", "kind", e.Kind())
		return 0
	}

	ok := 0
	for i, h := range handlers {
		if err := d.invoke(ctx, h, e); err != nil {
			d.logger.Error("Event handler failed",
				"kind", e.Kind(),
				"project", e.ProjectKey(),
				"handler", i,
				"error", err)
			if d.onFailure != nil {
				d.onFailure(e.Kind())
			}
			continue
		}
		ok++
	}
	return ok
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, e event.ServerEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, e)
}
