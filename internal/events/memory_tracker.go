package events

import (
	"context"
	"sync"
)

// MemoryTracker is the in-process Tracker used without a database.
type MemoryTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{seen: make(map[string]struct{})}
}

var _ Tracker = (*MemoryTracker)(nil)

func (m *MemoryTracker) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	key := provider + "\x00" + eventID
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = struct{}{}
	return true, nil
}
