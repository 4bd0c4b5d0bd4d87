// Package deliverylog is the append-only record of every outbound message
// attempt and every received voicemail.
package deliverylog

import (
	"context"
	"time"
)

// Type tags what an entry records.
type Type string

const (
	TypeMissedCallGreeting Type = "missed_call_greeting"
	TypeAIReply            Type = "ai_reply"
	TypeHumanReply         Type = "human_reply"
	TypeVoicemailReceived  Type = "voicemail_received"
)

// Status of an entry. Voicemails are "received"; sends are sent or failed.
type Status string

const (
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
	StatusReceived Status = "received"
)

// Entry is written once and never mutated.
type Entry struct {
	ID             string            `json:"id"`
	Recipient      string            `json:"recipient"`
	Type           Type              `json:"type"`
	Body           string            `json:"body,omitempty"`
	ProviderID     string            `json:"provider_id,omitempty"`
	Status         Status            `json:"status"`
	Error          string            `json:"error,omitempty"`
	CallSid        string            `json:"call_sid,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Writer records entries.
type Writer interface {
	Record(ctx context.Context, e Entry) error
}

// Reader lists entries for operators.
type Reader interface {
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// Filter narrows List results. Zero values are ignored.
type Filter struct {
	Recipient      string
	ConversationID string
	CallSid        string
	Type           Type
	Since          time.Time
	Limit          int
}

// Store is both sides of the log.
type Store interface {
	Writer
	Reader
}

func (f Filter) matches(e Entry) bool {
	if f.Recipient != "" && e.Recipient != f.Recipient {
		return false
	}
	if f.ConversationID != "" && e.ConversationID != f.ConversationID {
		return false
	}
	if f.CallSid != "" && e.CallSid != f.CallSid {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}
