// Package messaging is the outbound SMS gateway plus the phone-number and
// webhook helpers shared by the inbound handlers.
package messaging

import (
	"context"
	"errors"
	"strings"
)

var (
	errToRequired   = errors.New("messaging: to required")
	errFromRequired = errors.New("messaging: from required")
	errBodyRequired = errors.New("messaging: body required")
)

// OutboundSMS is one text message to send.
type OutboundSMS struct {
	To   string
	From string
	Body string
	// Kind tags the message for logs and metrics (greeting, ai_reply, human_reply).
	Kind           string
	ConversationID string
}

// SendResult describes an accepted send.
type SendResult struct {
	Provider          string
	ProviderMessageID string
	Status            string
}

// Sender delivers SMS through a provider. Implementations must honor ctx
// cancellation so callers can bound the send.
type Sender interface {
	SendSMS(ctx context.Context, msg OutboundSMS) (SendResult, error)
}

func (m OutboundSMS) validate(defaultFrom string) (OutboundSMS, error) {
	if strings.TrimSpace(m.To) == "" {
		return m, errToRequired
	}
	if m.From == "" {
		m.From = defaultFrom
	}
	if strings.TrimSpace(m.From) == "" {
		return m, errFromRequired
	}
	if strings.TrimSpace(m.Body) == "" {
		return m, errBodyRequired
	}
	return m, nil
}
