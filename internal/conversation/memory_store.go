package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a single-process Store with the same uniqueness and append
// guarantees as the Postgres store.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	messages      map[string][]Message
	refs          map[string]string
	seq           int64
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		refs:          make(map[string]string),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*MemoryStore)(nil)

func refKey(phone, channel, ref string) string {
	return phone + "|" + channel + "|" + ref
}

func (m *MemoryStore) FindOrCreateActive(ctx context.Context, p FindOrCreateParams) (Conversation, FindOrCreateOutcome, error) {
	if err := p.validate(); err != nil {
		return Conversation{}, "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if p.Ref != "" {
		if id, ok := m.refs[refKey(p.Phone, p.Channel, p.Ref)]; ok {
			if c, ok := m.conversations[id]; ok {
				return m.snapshot(c), OutcomeDuplicate, nil
			}
		}
	}

	if p.JoinEscalated {
		if esc := m.openLocked(p.Phone, true); esc != nil {
			for k, v := range p.Metadata {
				esc.Metadata[k] = v
			}
			esc.UpdatedAt = now
			if p.Ref != "" {
				m.refs[refKey(p.Phone, p.Channel, p.Ref)] = esc.ID
			}
			return m.snapshot(esc), OutcomeEscalated, nil
		}
	}

	active := m.activeLocked(p.Phone, p.Channel)
	outcome := OutcomeExisting
	if active == nil {
		active = &Conversation{
			ID:        uuid.NewString(),
			Phone:     p.Phone,
			Channel:   p.Channel,
			Status:    StatusActive,
			Metadata:  map[string]string{},
			CreatedAt: now,
		}
		m.conversations[active.ID] = active
		outcome = OutcomeCreated
	}
	for k, v := range p.Metadata {
		active.Metadata[k] = v
	}
	active.UpdatedAt = now
	if p.Ref != "" {
		m.refs[refKey(p.Phone, p.Channel, p.Ref)] = active.ID
	}
	return m.snapshot(active), outcome, nil
}

func (m *MemoryStore) activeLocked(phone, channel string) *Conversation {
	for _, c := range m.conversations {
		if c.Phone == phone && c.Channel == channel && c.Status == StatusActive {
			return c
		}
	}
	return nil
}

func (m *MemoryStore) FindOpenByPhone(ctx context.Context, phone string) (Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best := m.openLocked(phone, false)
	if best == nil {
		return Conversation{}, false, nil
	}
	return m.snapshot(best), true, nil
}

// openLocked picks the phone's open conversation, escalated first.
func (m *MemoryStore) openLocked(phone string, escalatedOnly bool) *Conversation {
	var best *Conversation
	for _, c := range m.conversations {
		if c.Phone != phone || c.Status == StatusCompleted {
			continue
		}
		if escalatedOnly && c.Status != StatusEscalated {
			continue
		}
		switch {
		case best == nil:
			best = c
		case (c.Status == StatusEscalated) != (best.Status == StatusEscalated):
			if c.Status == StatusEscalated {
				best = c
			}
		case c.UpdatedAt.After(best.UpdatedAt):
			best = c
		}
	}
	return best
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return m.snapshot(c), nil
}

func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Conversation
	for _, c := range m.conversations {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Phone != "" && c.Phone != filter.Phone {
			continue
		}
		out = append(out, m.snapshot(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if filter.Offset >= len(out) {
		return []Conversation{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, conversationID string, msg Message) (Message, error) {
	if err := msg.validate(); err != nil {
		return Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	m.seq++
	msg.ID = uuid.NewString()
	msg.ConversationID = conversationID
	msg.Seq = m.seq
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	c.UpdatedAt = m.now()
	return msg, nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	out := append([]Message(nil), m.messages[conversationID]...)
	sortMessages(out)
	return out, nil
}

func (m *MemoryStore) SetStatus(ctx context.Context, conversationID string, status Status) (Conversation, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return Conversation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	if status == StatusActive && c.Status != StatusActive {
		if other := m.activeLocked(c.Phone, c.Channel); other != nil && other.ID != c.ID {
			return Conversation{}, ErrActiveConflict
		}
	}
	c.Status = status
	c.UpdatedAt = m.now()
	return m.snapshot(c), nil
}

func (m *MemoryStore) snapshot(c *Conversation) Conversation {
	out := *c
	out.Metadata = make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		out.Metadata[k] = v
	}
	out.Messages = nil
	return out
}

// sortMessages orders by timestamp, ties broken by insertion sequence.
func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

func (p *FindOrCreateParams) validate() error {
	p.Phone = strings.TrimSpace(p.Phone)
	p.Channel = strings.TrimSpace(p.Channel)
	p.Ref = strings.TrimSpace(p.Ref)
	if p.Phone == "" {
		return fmt.Errorf("conversation: phone required")
	}
	if p.Channel == "" {
		return fmt.Errorf("conversation: channel required")
	}
	return nil
}
