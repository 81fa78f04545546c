// Package eventbus carries lifecycle events from the domain services to the
// subscription registry on a single delivery goroutine.
package eventbus

import (
	"eventlink-go/core/event"
)

// EventBus delivers published events to subscribers in publish order.
type EventBus interface {
	// Publish queues e and returns without waiting for delivery.
	// It is a no-op after Close.
	Publish(e event.Event)

	// Subscribe registers handler for every event and returns its subscription ID.
	Subscribe(handler EventHandler) string

	// SubscribeEvents registers handler for the events named in names.
	SubscribeEvents(handler EventHandler, names ...string) string

	Unsubscribe(subscriptionID string)

	// Close drains the queue and stops the delivery goroutine.
	Close()
}

// EventHandler handles one event. Panics are recovered by the bus.
type EventHandler func(e event.Event)
