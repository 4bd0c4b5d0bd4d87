package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/frontdesk-dispatch/internal/archive"
	"github.com/wolfman30/frontdesk-dispatch/internal/deliverylog"
	"github.com/wolfman30/frontdesk-dispatch/internal/events"
	"github.com/wolfman30/frontdesk-dispatch/internal/messaging"
	"github.com/wolfman30/frontdesk-dispatch/internal/notify"
	"github.com/wolfman30/frontdesk-dispatch/internal/observability/metrics"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

var serviceTracer = otel.Tracer("frontdesk.internal.conversation.service")

const defaultSendTimeout = 10 * time.Second

// EscalationNotifier alerts operators when a conversation is handed off.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, e notify.Escalation) error
}

// TranscriptArchiver stores a closed conversation transcript.
type TranscriptArchiver interface {
	ArchiveConversation(ctx context.Context, rec archive.ConversationRecord) (string, error)
}

// ServiceDeps wires the service. Store, Sender and Deliveries are required.
type ServiceDeps struct {
	Store      Store
	Engine     *ReplyEngine
	Sender     messaging.Sender
	Deliveries deliverylog.Writer
	Tracker    events.Tracker
	Notifier   EscalationNotifier
	Archiver   TranscriptArchiver
	Metrics    *metrics.DispatchMetrics
	Logger     *logging.Logger
}

type ServiceConfig struct {
	FromNumber  string
	SendTimeout time.Duration
	// ArchiveOnComplete uploads the transcript when a conversation is completed.
	ArchiveOnComplete bool
}

// Service runs the inbound SMS flow and the operator-facing actions.
type Service struct {
	store      Store
	engine     *ReplyEngine
	sender     messaging.Sender
	deliveries deliverylog.Writer
	tracker    events.Tracker
	notifier   EscalationNotifier
	archiver   TranscriptArchiver
	metrics    *metrics.DispatchMetrics
	logger     *logging.Logger
	cfg        ServiceConfig
}

func NewService(deps ServiceDeps, cfg ServiceConfig) *Service {
	if deps.Store == nil || deps.Sender == nil || deps.Deliveries == nil {
		panic("conversation: store, sender and delivery log are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Service{
		store:      deps.Store,
		engine:     deps.Engine,
		sender:     deps.Sender,
		deliveries: deps.Deliveries,
		tracker:    deps.Tracker,
		notifier:   deps.Notifier,
		archiver:   deps.Archiver,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// InboundResult summarizes what HandleInboundSMS did.
type InboundResult struct {
	ConversationID string
	Duplicate      bool
	Reply          ReplyOutcome
	Sent           bool
	Escalated      bool
}

// HandleInboundSMS records the customer's text and, unless the conversation
// is already with a human, answers it with an AI reply. Send failures are
// logged and recorded, not returned.
func (s *Service) HandleInboundSMS(ctx context.Context, in messaging.InboundSMS) (InboundResult, error) {
	ctx, span := serviceTracer.Start(ctx, "conversation.inbound_sms")
	defer span.End()
	span.SetAttributes(attribute.String("message_sid", in.MessageSid))

	phone, ok := messaging.NormalizeE164(in.From)
	if phone == "" {
		return InboundResult{}, errors.New("conversation: inbound sms has no sender")
	}
	logger := s.logger.With("message_sid", in.MessageSid, "phone", phone)
	if !ok {
		logger.Warn("inbound sms from malformed number", "phone_flag", "malformed", "raw_from", in.From)
	}
	if strings.TrimSpace(in.Body) == "" {
		logger.Info("ignoring empty inbound sms")
		return InboundResult{}, nil
	}

	if s.tracker != nil && in.MessageSid != "" {
		first, err := s.tracker.MarkProcessed(ctx, events.ProviderTwilioSMS, in.MessageSid)
		if err != nil {
			logger.Warn("processed-event check failed; continuing", "error", err)
		} else if !first {
			logger.Info("duplicate inbound sms ignored")
			return InboundResult{Duplicate: true}, nil
		}
	}

	conv, found, err := s.store.FindOpenByPhone(ctx, phone)
	if err != nil {
		return InboundResult{}, err
	}
	if !found {
		conv, _, err = s.store.FindOrCreateActive(ctx, FindOrCreateParams{
			Phone:    phone,
			Channel:  ChannelSMS,
			Ref:      in.MessageSid,
			Metadata: map[string]string{MetaTriggerReason: "inbound_sms"},
		})
		if err != nil {
			return InboundResult{}, err
		}
	}
	result := InboundResult{ConversationID: conv.ID}
	logger = logger.With("conversation_id", conv.ID)

	history, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return result, err
	}
	if _, err := s.store.AppendMessage(ctx, conv.ID, Message{
		Role:              ChatRoleUser,
		Body:              in.Body,
		ProviderMessageID: in.MessageSid,
	}); err != nil {
		return result, err
	}

	if conv.Status == StatusEscalated {
		logger.Info("conversation escalated; awaiting operator")
		s.metrics.ObserveAIReply("skipped_escalated")
		return result, nil
	}
	if s.engine == nil {
		result.Reply = ReplyOutcome{Suppressed: true, SuppressReason: SuppressDisabled}
		s.metrics.ObserveAIReply("suppressed")
		return result, nil
	}

	outcome, err := s.engine.GenerateReply(ctx, in.Body, history)
	if err != nil {
		return result, err
	}
	result.Reply = outcome
	if outcome.Suppressed {
		logger.Info("ai reply suppressed", "reason", outcome.SuppressReason)
		s.metrics.ObserveAIReply("suppressed")
		return result, nil
	}
	if outcome.Escalate {
		s.metrics.ObserveAIReply("escalated")
	} else {
		s.metrics.ObserveAIReply("reply")
	}

	if _, err := s.sendAndRecord(ctx, conv, outcome.Text, deliverylog.TypeAIReply, SentByAI, nil); err != nil {
		logger.Error("ai reply send failed", "error", err)
	} else {
		result.Sent = true
	}

	if outcome.Escalate {
		result.Escalated = true
		s.escalate(ctx, conv, in.Body, outcome, logger)
	}
	return result, nil
}

func (s *Service) escalate(ctx context.Context, conv Conversation, inbound string, outcome ReplyOutcome, logger *logging.Logger) {
	if _, err := s.store.SetStatus(ctx, conv.ID, StatusEscalated); err != nil {
		logger.Error("failed to mark conversation escalated", "error", err)
	}
	logger.Warn("conversation escalated", "trigger", outcome.Trigger)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyEscalation(ctx, notify.Escalation{
		ConversationID: conv.ID,
		Phone:          conv.Phone,
		Channel:        conv.Channel,
		Trigger:        outcome.Trigger,
		LastInbound:    inbound,
		Reply:          outcome.Text,
		At:             time.Now().UTC(),
	}); err != nil {
		logger.Error("escalation notification failed", "error", err)
	}
}

// SendOperatorReply sends operator-authored text and appends it tagged as
// human. Unlike webhook paths, failures go back to the caller.
func (s *Service) SendOperatorReply(ctx context.Context, conversationID, text, operator string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, fmt.Errorf("%w: empty body", ErrInvalidMessage)
	}
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return Message{}, err
	}
	var meta map[string]string
	if operator != "" {
		meta = map[string]string{"operator": operator}
	}
	msg, err := s.sendAndRecord(ctx, conv, text, deliverylog.TypeHumanReply, SentByHuman, meta)
	if err != nil {
		return Message{}, err
	}
	s.logger.Info("operator reply sent", "conversation_id", conv.ID, "operator", operator)
	return msg, nil
}

// sendAndRecord sends one SMS under the send timeout, writes the delivery
// log entry, and appends the assistant message only after a successful send.
func (s *Service) sendAndRecord(ctx context.Context, conv Conversation, body string, kind deliverylog.Type, sentBy string, meta map[string]string) (Message, error) {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	res, sendErr := s.sender.SendSMS(sendCtx, messaging.OutboundSMS{
		To:             conv.Phone,
		From:           s.cfg.FromNumber,
		Body:           body,
		Kind:           string(kind),
		ConversationID: conv.ID,
	})
	cancel()

	entry := deliverylog.Entry{
		Recipient:      conv.Phone,
		Type:           kind,
		Body:           body,
		ConversationID: conv.ID,
		Metadata:       meta,
		Status:         deliverylog.StatusSent,
		ProviderID:     res.ProviderMessageID,
	}
	if sendErr != nil {
		entry.Status = deliverylog.StatusFailed
		entry.Error = sendErr.Error()
	}
	if err := s.deliveries.Record(ctx, entry); err != nil {
		s.logger.Error("delivery log write failed", "conversation_id", conv.ID, "error", err)
	}
	s.metrics.ObserveOutbound(string(kind), string(entry.Status))
	if sendErr != nil {
		return Message{}, fmt.Errorf("conversation: send %s: %w", kind, sendErr)
	}

	// The send already happened; a failed append here leaves the log entry as
	// the only record.
	return s.store.AppendMessage(ctx, conv.ID, Message{
		Role:              ChatRoleAssistant,
		Body:              body,
		ProviderMessageID: res.ProviderMessageID,
		SentBy:            sentBy,
	})
}

// SetStatus persists an operator status change. Completing a conversation
// archives its transcript when configured.
func (s *Service) SetStatus(ctx context.Context, conversationID string, status Status) (Conversation, error) {
	status, err := ParseStatus(string(status))
	if err != nil {
		return Conversation{}, err
	}
	conv, err := s.store.SetStatus(ctx, conversationID, status)
	if err != nil {
		return Conversation{}, err
	}
	s.logger.Info("conversation status changed", "conversation_id", conv.ID, "status", conv.Status)
	if status == StatusCompleted && s.cfg.ArchiveOnComplete && s.archiver != nil {
		s.archiveTranscript(ctx, conv)
	}
	return conv, nil
}

func (s *Service) archiveTranscript(ctx context.Context, conv Conversation) {
	msgs, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		s.logger.Warn("transcript archive skipped", "conversation_id", conv.ID, "error", err)
		return
	}
	rec := archive.ConversationRecord{
		ConversationID: conv.ID,
		PhoneHash:      archive.HashPhone(conv.Phone),
		Channel:        conv.Channel,
		Status:         string(conv.Status),
		StartedAt:      conv.CreatedAt,
	}
	for _, m := range msgs {
		rec.Messages = append(rec.Messages, archive.Message{Role: m.Role, Content: m.Body, SentBy: m.SentBy, At: m.CreatedAt})
	}
	if _, err := s.archiver.ArchiveConversation(ctx, rec); err != nil {
		s.logger.Warn("transcript archive failed", "conversation_id", conv.ID, "error", err)
	}
}

// GetWithMessages loads a conversation and its ordered message log.
func (s *Service) GetWithMessages(ctx context.Context, conversationID string) (Conversation, error) {
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	conv.Messages = msgs
	return conv, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Conversation, error) {
	return s.store.List(ctx, filter)
}
