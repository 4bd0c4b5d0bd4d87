// Package conversation owns conversations and their append-only message log,
// the AI reply engine and the inbound SMS / operator reply flows.
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned for an unknown conversation id.
	ErrNotFound = errors.New("conversation: not found")
	// ErrInvalidStatus is returned for a status outside Status values.
	ErrInvalidStatus = errors.New("conversation: invalid status")
	// ErrActiveConflict is returned when reopening would create a second
	// active conversation for the same phone and channel.
	ErrActiveConflict = errors.New("conversation: another active conversation exists for this phone and channel")
	// ErrInvalidMessage is returned when appending a message without a role or body.
	ErrInvalidMessage = errors.New("conversation: invalid message")
)

// Status of a conversation. Transitions between the three are unrestricted.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusEscalated Status = "escalated"
)

// ParseStatus validates a status string.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusActive, StatusCompleted, StatusEscalated:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Channels tag how a conversation started.
const (
	ChannelMissedCall = "missed_call"
	ChannelSMS        = "sms"
)

// SentBy distinguishes automated from human-authored outbound messages.
const (
	SentByAutomation = "automation"
	SentByAI         = "ai"
	SentByHuman      = "human"
)

// Metadata keys written by the dispatch flows.
const (
	MetaLastCallID    = "last_call_id"
	MetaTriggerReason = "trigger_reason"
	MetaEscalation    = "escalation_trigger"
)

// Conversation is one customer thread on one channel.
type Conversation struct {
	ID        string            `json:"id"`
	Phone     string            `json:"phone"`
	Channel   string            `json:"channel"`
	Status    Status            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Messages  []Message         `json:"messages,omitempty"`
}

// Message is immutable once appended.
type Message struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	Role              string    `json:"role"`
	Body              string    `json:"body"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	SentBy            string    `json:"sent_by,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	// Seq breaks timestamp ties in insertion order.
	Seq int64 `json:"seq"`
}

func (m Message) validate() error {
	switch m.Role {
	case ChatRoleUser, ChatRoleAssistant, ChatRoleSystem:
	default:
		return fmt.Errorf("%w: role %q", ErrInvalidMessage, m.Role)
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("%w: empty body", ErrInvalidMessage)
	}
	return nil
}

// FindOrCreateParams identifies the active conversation to resolve.
type FindOrCreateParams struct {
	Phone   string
	Channel string
	// Ref is the idempotency key (a call id). A ref that was already applied
	// makes the call a no-op that reports OutcomeDuplicate.
	Ref      string
	Metadata map[string]string
	// JoinEscalated attaches to the phone's escalated conversation on any
	// channel, when one exists, instead of resolving (phone, channel).
	JoinEscalated bool
}

// FindOrCreateOutcome reports what FindOrCreateActive did.
type FindOrCreateOutcome string

const (
	OutcomeCreated   FindOrCreateOutcome = "created"
	OutcomeExisting  FindOrCreateOutcome = "existing"
	OutcomeDuplicate FindOrCreateOutcome = "duplicate"
	// OutcomeEscalated means the params joined an escalated conversation.
	OutcomeEscalated FindOrCreateOutcome = "escalated"
)

// ListFilter narrows List results.
type ListFilter struct {
	Status Status
	Phone  string
	Limit  int
	Offset int
}
