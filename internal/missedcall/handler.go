// Package missedcall reacts to unanswered or diverted calls with a fixed SMS
// greeting and records voicemails left by callers.
package missedcall

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/frontdesk-dispatch/internal/archive"
	"github.com/wolfman30/frontdesk-dispatch/internal/conversation"
	"github.com/wolfman30/frontdesk-dispatch/internal/deliverylog"
	"github.com/wolfman30/frontdesk-dispatch/internal/events"
	"github.com/wolfman30/frontdesk-dispatch/internal/messaging"
	"github.com/wolfman30/frontdesk-dispatch/internal/notify"
	"github.com/wolfman30/frontdesk-dispatch/internal/observability/metrics"
	"github.com/wolfman30/frontdesk-dispatch/internal/telephony"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

var tracer = otel.Tracer("frontdesk.internal.missedcall")

const defaultSendTimeout = 10 * time.Second

// Result reasons.
const (
	ReasonAnswered     = "answered"
	ReasonNoCaller     = "no_caller"
	ReasonDuplicate    = "duplicate"
	ReasonGreeted      = "greeted"
	ReasonEscalated    = "escalated"
	ReasonSendFailed   = "send_failed"
	ReasonRecorded     = "recorded"
	ReasonRecordFailed = "record_failed"
)

// CallEvent is the outcome of an inbound call. DialStatus is empty when no
// dial was attempted (after-hours diversion).
type CallEvent struct {
	CallSid    string
	From       string
	To         string
	CallStatus string
	DialStatus string
}

// VoicemailEvent arrives asynchronously after the recording is transcribed.
// It correlates to the call only by CallSid and caller number.
type VoicemailEvent struct {
	CallSid             string
	From                string
	RecordingSid        string
	RecordingURL        string
	DurationSeconds     int
	Transcript          string
	TranscriptionStatus string
}

// Result is informational; webhook callers acknowledge regardless.
type Result struct {
	ConversationID string
	Sent           bool
	Duplicate      bool
	Reason         string
}

// VoicemailArchiver stores voicemail records durably.
type VoicemailArchiver interface {
	ArchiveVoicemail(ctx context.Context, rec archive.VoicemailRecord) (string, error)
}

// VoicemailNotifier alerts operators about a new voicemail.
type VoicemailNotifier interface {
	NotifyVoicemail(ctx context.Context, v notify.Voicemail) error
}

type Config struct {
	BusinessName string
	BookingURL   string
	FromNumber   string
	// Channel tags conversations started by calls.
	Channel     string
	SendTimeout time.Duration
}

// Deps wires the handler. Store, Sender and Deliveries are required.
type Deps struct {
	Store      conversation.Store
	Sender     messaging.Sender
	Deliveries deliverylog.Writer
	Tracker    events.Tracker
	Archiver   VoicemailArchiver
	Notifier   VoicemailNotifier
	Metrics    *metrics.DispatchMetrics
	Logger     *logging.Logger
}

type Handler struct {
	store      conversation.Store
	sender     messaging.Sender
	deliveries deliverylog.Writer
	tracker    events.Tracker
	archiver   VoicemailArchiver
	notifier   VoicemailNotifier
	metrics    *metrics.DispatchMetrics
	logger     *logging.Logger
	cfg        Config
	greeting   string
}

func NewHandler(deps Deps, cfg Config) *Handler {
	if deps.Store == nil || deps.Sender == nil || deps.Deliveries == nil {
		panic("missedcall: store, sender and delivery log are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if strings.TrimSpace(cfg.Channel) == "" {
		cfg.Channel = conversation.ChannelMissedCall
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Handler{
		store:      deps.Store,
		sender:     deps.Sender,
		deliveries: deps.Deliveries,
		tracker:    deps.Tracker,
		archiver:   deps.Archiver,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        cfg,
		greeting:   GreetingMessage(cfg.BusinessName, cfg.BookingURL),
	}
}

// ShouldGreet reports whether a dial outcome calls for the automated
// greeting. Only a call a human answered is left alone.
func ShouldGreet(dialStatus string) bool {
	return strings.ToLower(strings.TrimSpace(dialStatus)) != telephony.DialCompleted
}

// HandleCallOutcome sends the greeting at most once per call. It never
// returns an error; every failure is logged and recorded.
func (h *Handler) HandleCallOutcome(ctx context.Context, ev CallEvent) Result {
	ctx, span := tracer.Start(ctx, "missedcall.call_outcome")
	defer span.End()
	span.SetAttributes(attribute.String("call_sid", ev.CallSid), attribute.String("dial_status", ev.DialStatus))

	logger := h.logger.With("call_sid", ev.CallSid, "dial_status", ev.DialStatus)
	if !ShouldGreet(ev.DialStatus) {
		logger.Info("call answered; no greeting")
		return Result{Reason: ReasonAnswered}
	}

	phone, ok := messaging.NormalizeE164(ev.From)
	if phone == "" {
		logger.Warn("missed call without caller number")
		return Result{Reason: ReasonNoCaller}
	}
	logger = logger.With("phone", phone)
	if !ok {
		logger.Warn("caller number is malformed; using best-effort form", "phone_flag", "malformed", "raw_from", ev.From)
	}

	trigger := ev.DialStatus
	if trigger == "" {
		trigger = "after_hours"
	}
	conv, outcome, err := h.store.FindOrCreateActive(ctx, conversation.FindOrCreateParams{
		Phone:   phone,
		Channel: h.cfg.Channel,
		Ref:     ev.CallSid,
		Metadata: map[string]string{
			conversation.MetaLastCallID:    ev.CallSid,
			conversation.MetaTriggerReason: trigger,
		},
		JoinEscalated: true,
	})
	storeOK := err == nil
	if err != nil {
		// Without the store there is no dedupe; the caller still hears back.
		logger.Error("conversation store failed; sending greeting anyway", "error", err)
	} else if outcome == conversation.OutcomeDuplicate {
		logger.Info("duplicate call outcome ignored", "conversation_id", conv.ID)
		return Result{ConversationID: conv.ID, Duplicate: true, Reason: ReasonDuplicate}
	} else if outcome == conversation.OutcomeEscalated {
		return h.noteEscalatedCall(ctx, conv, ev.CallSid, trigger, logger)
	}

	res := Result{ConversationID: conv.ID}
	sendCtx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
	sent, sendErr := h.sender.SendSMS(sendCtx, messaging.OutboundSMS{
		To:             phone,
		From:           h.cfg.FromNumber,
		Body:           h.greeting,
		Kind:           string(deliverylog.TypeMissedCallGreeting),
		ConversationID: conv.ID,
	})
	cancel()

	entry := deliverylog.Entry{
		Recipient:      phone,
		Type:           deliverylog.TypeMissedCallGreeting,
		Body:           h.greeting,
		ProviderID:     sent.ProviderMessageID,
		Status:         deliverylog.StatusSent,
		CallSid:        ev.CallSid,
		ConversationID: conv.ID,
		Metadata:       map[string]string{"trigger_reason": trigger},
	}
	if !ok {
		entry.Metadata["phone_flag"] = "malformed"
	}
	if sendErr != nil {
		entry.Status = deliverylog.StatusFailed
		entry.Error = sendErr.Error()
	}
	if err := h.deliveries.Record(ctx, entry); err != nil {
		logger.Error("delivery log write failed", "error", err)
	}
	h.metrics.ObserveOutbound(string(entry.Type), string(entry.Status))

	if sendErr != nil {
		span.RecordError(sendErr)
		logger.Error("missed-call greeting send failed", "error", sendErr)
		res.Reason = ReasonSendFailed
		return res
	}
	res.Sent = true
	res.Reason = ReasonGreeted

	if storeOK {
		if _, err := h.store.AppendMessage(ctx, conv.ID, conversation.Message{
			Role:              conversation.ChatRoleAssistant,
			Body:              h.greeting,
			ProviderMessageID: sent.ProviderMessageID,
			SentBy:            conversation.SentByAutomation,
		}); err != nil {
			logger.Error("failed to append greeting", "conversation_id", conv.ID, "error", err)
		}
	}
	logger.Info("missed-call greeting sent", "conversation_id", conv.ID, "outcome", outcome)
	return res
}

// noteEscalatedCall leaves the operator-owned thread without an automated
// greeting and adds a system note so the operator sees the missed call.
func (h *Handler) noteEscalatedCall(ctx context.Context, conv conversation.Conversation, callSid, trigger string, logger *logging.Logger) Result {
	note := "Missed call (" + callSid + ", " + trigger + ") while escalated; automated greeting withheld."
	if _, err := h.store.AppendMessage(ctx, conv.ID, conversation.Message{
		Role:   conversation.ChatRoleSystem,
		Body:   note,
		SentBy: conversation.SentByAutomation,
	}); err != nil {
		logger.Error("failed to note missed call on escalated conversation", "conversation_id", conv.ID, "error", err)
	}
	logger.Info("caller has an escalated conversation; greeting withheld", "conversation_id", conv.ID)
	return Result{ConversationID: conv.ID, Reason: ReasonEscalated}
}

// HandleVoicemail records a voicemail as a delivery log entry. It does not
// touch the conversation's message list.
func (h *Handler) HandleVoicemail(ctx context.Context, ev VoicemailEvent) Result {
	ctx, span := tracer.Start(ctx, "missedcall.voicemail")
	defer span.End()
	span.SetAttributes(attribute.String("call_sid", ev.CallSid))

	phone, ok := messaging.NormalizeE164(ev.From)
	logger := h.logger.With("call_sid", ev.CallSid, "phone", phone)
	if !ok {
		logger.Warn("voicemail from malformed number", "phone_flag", "malformed", "raw_from", ev.From)
	}

	if h.tracker != nil && ev.CallSid != "" {
		first, err := h.tracker.MarkProcessed(ctx, events.ProviderTwilioVoice, "voicemail:"+ev.CallSid)
		if err != nil {
			logger.Warn("processed-event check failed; continuing", "error", err)
		} else if !first {
			logger.Info("duplicate voicemail callback ignored")
			return Result{Duplicate: true, Reason: ReasonDuplicate}
		}
	}

	meta := map[string]string{
		"duration_seconds": strconv.Itoa(ev.DurationSeconds),
	}
	if ev.RecordingURL != "" {
		meta["recording_url"] = ev.RecordingURL
	}
	if ev.RecordingSid != "" {
		meta["recording_sid"] = ev.RecordingSid
	}
	if ev.TranscriptionStatus != "" {
		meta["transcription_status"] = ev.TranscriptionStatus
	}
	if !ok {
		meta["phone_flag"] = "malformed"
	}

	receivedAt := time.Now().UTC()
	if err := h.deliveries.Record(ctx, deliverylog.Entry{
		Recipient: phone,
		Type:      deliverylog.TypeVoicemailReceived,
		Body:      ev.Transcript,
		Status:    deliverylog.StatusReceived,
		CallSid:   ev.CallSid,
		Metadata:  meta,
		CreatedAt: receivedAt,
	}); err != nil {
		logger.Error("voicemail log write failed", "error", err)
		return Result{Reason: ReasonRecordFailed}
	}
	logger.Info("voicemail recorded", "duration_seconds", ev.DurationSeconds)

	if h.archiver != nil {
		if _, err := h.archiver.ArchiveVoicemail(ctx, archive.VoicemailRecord{
			CallSid:         ev.CallSid,
			Phone:           phone,
			DurationSeconds: ev.DurationSeconds,
			Transcript:      ev.Transcript,
			RecordingURL:    ev.RecordingURL,
			ReceivedAt:      receivedAt,
		}); err != nil {
			logger.Warn("voicemail archive failed", "error", err)
		}
	}
	if h.notifier != nil {
		if err := h.notifier.NotifyVoicemail(ctx, notify.Voicemail{
			Phone:           phone,
			CallSid:         ev.CallSid,
			DurationSeconds: ev.DurationSeconds,
			Transcript:      ev.Transcript,
			RecordingURL:    ev.RecordingURL,
		}); err != nil {
			logger.Warn("voicemail notification failed", "error", err)
		}
	}
	return Result{Reason: ReasonRecorded}
}
