package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

// Escalation describes a conversation that was handed to a human.
type Escalation struct {
	ConversationID string
	Phone          string
	Channel        string
	Trigger        string
	LastInbound    string
	Reply          string
	At             time.Time
}

// Voicemail describes a voicemail left by a caller.
type Voicemail struct {
	Phone           string
	CallSid         string
	DurationSeconds int
	Transcript      string
	RecordingURL    string
}

// OperatorNotifier e-mails every configured operator address.
type OperatorNotifier struct {
	email      EmailSender
	recipients []string
	adminURL   string
	logger     *logging.Logger
}

// NewOperatorNotifier returns a notifier. adminURL, when set, is linked from
// each message so operators can open the conversation.
func NewOperatorNotifier(email EmailSender, recipients []string, adminURL string, logger *logging.Logger) *OperatorNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	var cleaned []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return &OperatorNotifier{email: email, recipients: cleaned, adminURL: strings.TrimRight(adminURL, "/"), logger: logger}
}

// NotifyEscalation tells operators a conversation needs a human reply.
func (n *OperatorNotifier) NotifyEscalation(ctx context.Context, e Escalation) error {
	subject := fmt.Sprintf("Conversation escalated: %s", e.Phone)
	var body strings.Builder
	fmt.Fprintf(&body, "A conversation with %s needs a human reply.\n\n", e.Phone)
	if e.Trigger != "" {
		fmt.Fprintf(&body, "Trigger: %s\n", e.Trigger)
	}
	if e.LastInbound != "" {
		fmt.Fprintf(&body, "Customer said: %s\n", truncate(e.LastInbound, 500))
	}
	if e.Reply != "" {
		fmt.Fprintf(&body, "Automated reply: %s\n", truncate(e.Reply, 500))
	}
	if n.adminURL != "" && e.ConversationID != "" {
		fmt.Fprintf(&body, "\nOpen: %s/admin/conversations/%s\n", n.adminURL, e.ConversationID)
	}
	return n.broadcast(ctx, subject, body.String())
}

// NotifyVoicemail tells operators a voicemail arrived.
func (n *OperatorNotifier) NotifyVoicemail(ctx context.Context, v Voicemail) error {
	subject := fmt.Sprintf("New voicemail from %s", v.Phone)
	var body strings.Builder
	fmt.Fprintf(&body, "Caller: %s\nDuration: %ds\n", v.Phone, v.DurationSeconds)
	if v.Transcript != "" {
		fmt.Fprintf(&body, "Transcript: %s\n", v.Transcript)
	}
	if v.RecordingURL != "" {
		fmt.Fprintf(&body, "Recording: %s\n", v.RecordingURL)
	}
	return n.broadcast(ctx, subject, body.String())
}

func (n *OperatorNotifier) broadcast(ctx context.Context, subject, text string) error {
	if n == nil || n.email == nil || len(n.recipients) == 0 {
		return nil
	}
	htmlBody := "<pre>" + html.EscapeString(text) + "</pre>"
	var errs []error
	for _, to := range n.recipients {
		if err := n.email.Send(ctx, EmailMessage{To: to, Subject: subject, Body: text, HTML: htmlBody}); err != nil {
			n.logger.Warn("operator notification failed", "to", to, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
