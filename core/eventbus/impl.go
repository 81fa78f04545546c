package eventbus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"eventlink-go/core/event"
)

// subscription represents a single event subscription.
type subscription struct {
	id      string
	handler EventHandler
	names   map[string]struct{} // nil means subscribe to all events
}

func (s *subscription) matches(e event.Event) bool {
	if s.names == nil {
		return true
	}
	_, ok := s.names[e.EventName()]
	return ok
}

// channelEventBus delivers events from an unbounded queue on a single goroutine,
// so subscribers observe them in publish order and no event is ever dropped.
// Publish never blocks, so it is safe from timer and network goroutines.
type channelEventBus struct {
	queueMu sync.Mutex
	queue   []event.Event
	closed  bool
	wake    chan struct{}

	subscriptions map[string]*subscription
	order         []string
	mu            sync.RWMutex
	wg            sync.WaitGroup
	logger        *slog.Logger
}

// New creates a new EventBus. bufferSize is the initial queue capacity.
func New(bufferSize int, logger *slog.Logger) EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}

	bus := &channelEventBus{
		queue:         make([]event.Event, 0, bufferSize),
		wake:          make(chan struct{}, 1),
		subscriptions: make(map[string]*subscription),
		logger:        logger.With("component", "eventbus"),
	}

	bus.wg.Add(1)
	go bus.dispatch()

	return bus
}

// Publish queues an event for all subscribers.
func (b *channelEventBus) Publish(e event.Event) {
	b.queueMu.Lock()
	if b.closed {
		b.queueMu.Unlock()
		return
	}
	b.queue = append(b.queue, e)
	backlog := len(b.queue)
	b.queueMu.Unlock()

	if backlog > 0 && backlog%1000 == 0 {
		b.logger.Warn("Event backlog growing", "queued", backlog)
	}
	b.signal()
}

func (b *channelEventBus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Subscribe subscribes to all events.
func (b *channelEventBus) Subscribe(handler EventHandler) string {
	return b.subscribe(nil, handler)
}

// SubscribeEvents subscribes to the named events only.
func (b *channelEventBus) SubscribeEvents(handler EventHandler, names ...string) string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return b.subscribe(set, handler)
}

func (b *channelEventBus) subscribe(names map[string]struct{}, handler EventHandler) string {
	id := uuid.NewString()

	b.mu.Lock()
	b.subscriptions[id] = &subscription{
		id:      id,
		handler: handler,
		names:   names,
	}
	b.order = append(b.order, id)
	b.mu.Unlock()

	return id
}

// Unsubscribe removes a subscription by its ID.
func (b *channelEventBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscriptions[subscriptionID]; !ok {
		return
	}
	delete(b.subscriptions, subscriptionID)
	for i, id := range b.order {
		if id == subscriptionID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Close shuts down the event bus after delivering every queued event.
func (b *channelEventBus) Close() {
	b.queueMu.Lock()
	if b.closed {
		b.queueMu.Unlock()
		return
	}
	b.closed = true
	b.queueMu.Unlock()

	b.signal()
	b.wg.Wait()
}

// dispatch is the main event dispatch loop.
func (b *channelEventBus) dispatch() {
	defer b.wg.Done()

	for {
		b.queueMu.Lock()
		batch := b.queue
		closed := b.closed
		b.queue = nil
		b.queueMu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-b.wake
			continue
		}
		for _, e := range batch {
			b.deliverEvent(e)
		}
	}
}

// deliverEvent delivers an event to all matching subscribers in subscription order.
func (b *channelEventBus) deliverEvent(e event.Event) {
	b.mu.RLock()
	// Copy subscriptions to avoid holding lock during handler execution
	subs := make([]*subscription, 0, len(b.order))
	for _, id := range b.order {
		if sub := b.subscriptions[id]; sub.matches(e) {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		// Catch panics to prevent one bad handler from affecting others
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Event handler panicked",
						"event", e.EventName(),
						"subscription", sub.id,
						"panic", r)
				}
			}()
			sub.handler(e)
		}()
	}
}
