package session

import (
	"testing"
	"time"
)

func TestHistory_RecordExists(t *testing.T) {
	h := NewHistory()

	if h.Exists("a") {
		t.Error("Exists() on empty history = true")
	}
	h.Record("a")
	if !h.Exists("a") {
		t.Error("Exists() after Record = false")
	}
	if h.Exists("b") {
		t.Error("Exists() for other message = true")
	}
}

func TestHistory_CheckAndRecord(t *testing.T) {
	h := NewHistory()

	if h.CheckAndRecord("msg") {
		t.Error("first CheckAndRecord() = true, want false")
	}
	if !h.CheckAndRecord("msg") {
		t.Error("second CheckAndRecord() = false, want true")
	}
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}
}

func TestHistory_ForgetOlderThan(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHistory()
	h.now = func() time.Time { return now }

	h.Record("old")
	now = now.Add(90 * time.Second)
	h.Record("recent")
	now = now.Add(30 * time.Second)

	if removed := h.ForgetOlderThan(time.Minute); removed != 1 {
		t.Errorf("ForgetOlderThan() removed %d, want 1", removed)
	}
	if h.Exists("old") {
		t.Error("old message still present after pruning")
	}
	if !h.Exists("recent") {
		t.Error("recent message pruned")
	}
}
