package settings

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps settings in process. Used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	current *PhoneSettings
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Current(ctx context.Context) (PhoneSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return PhoneSettings{}, ErrNotConfigured
	}
	return cloneSettings(*m.current), nil
}

func (m *MemoryStore) Save(ctx context.Context, s PhoneSettings) (PhoneSettings, error) {
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return PhoneSettings{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 1
	if m.current != nil {
		next = m.current.Version + 1
	}
	s.Version = next
	s.UpdatedAt = m.now().UTC()
	stored := cloneSettings(s)
	m.current = &stored
	return cloneSettings(s), nil
}

func cloneSettings(s PhoneSettings) PhoneSettings {
	out := s
	out.ActiveWeekdays = append([]string(nil), s.ActiveWeekdays...)
	out.DialTargets = append([]string(nil), s.DialTargets...)
	return out
}
