package session

import (
	"sync"
	"time"
)

// History remembers recently received raw messages so that redelivered
// duplicates can be dropped. Byte equality is the identity.
type History struct {
	mu       sync.Mutex
	received map[string]time.Time
	now      func() time.Time
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		received: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Record stores a raw message with the current time.
func (h *History) Record(raw string) {
	h.mu.Lock()
	h.received[raw] = h.now()
	h.mu.Unlock()
}

// Exists reports whether raw was recorded and not yet pruned.
func (h *History) Exists(raw string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.received[raw]
	return ok
}

// CheckAndRecord records raw and reports whether it had been seen before.
func (h *History) CheckAndRecord(raw string) (seen bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.received[raw]; ok {
		return true
	}
	h.received[raw] = h.now()
	return false
}

// ForgetOlderThan removes entries recorded more than d ago and returns how many were removed.
func (h *History) ForgetOlderThan(d time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	limit := h.now().Add(-d)
	removed := 0
	for raw, at := range h.received {
		if at.Before(limit) {
			delete(h.received, raw)
			removed++
		}
	}
	return removed
}

// Len returns the number of remembered messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.received)
}
