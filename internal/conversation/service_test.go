package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/frontdesk-dispatch/internal/archive"
	"github.com/wolfman30/frontdesk-dispatch/internal/deliverylog"
	"github.com/wolfman30/frontdesk-dispatch/internal/events"
	"github.com/wolfman30/frontdesk-dispatch/internal/messaging"
	"github.com/wolfman30/frontdesk-dispatch/internal/notify"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []messaging.OutboundSMS
	err  error
}

func (f *fakeSender) SendSMS(ctx context.Context, msg messaging.OutboundSMS) (messaging.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return messaging.SendResult{}, f.err
	}
	f.sent = append(f.sent, msg)
	return messaging.SendResult{Provider: "fake", ProviderMessageID: fmt.Sprintf("SM%d", len(f.sent)), Status: "queued"}, nil
}

type recordingNotifier struct {
	escalations []notify.Escalation
}

func (r *recordingNotifier) NotifyEscalation(ctx context.Context, e notify.Escalation) error {
	r.escalations = append(r.escalations, e)
	return nil
}

type recordingArchiver struct {
	records []archive.ConversationRecord
}

func (r *recordingArchiver) ArchiveConversation(ctx context.Context, rec archive.ConversationRecord) (string, error) {
	r.records = append(r.records, rec)
	return "conversations/v1/" + rec.ConversationID + ".json", nil
}

type serviceFixture struct {
	svc      *Service
	store    *MemoryStore
	sender   *fakeSender
	log      *deliverylog.MemoryStore
	llm      *stubLLM
	notifier *recordingNotifier
	archiver *recordingArchiver
}

func newServiceFixture(t *testing.T, replyText string) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store:    NewMemoryStore(),
		sender:   &fakeSender{},
		log:      deliverylog.NewMemoryStore(),
		llm:      &stubLLM{text: replyText},
		notifier: &recordingNotifier{},
		archiver: &recordingArchiver{},
	}
	engine := newTestEngine(f.llm, nil)
	f.svc = NewService(ServiceDeps{
		Store:      f.store,
		Engine:     engine,
		Sender:     f.sender,
		Deliveries: f.log,
		Tracker:    events.NewMemoryTracker(),
		Notifier:   f.notifier,
		Archiver:   f.archiver,
		Logger:     logging.Discard(),
	}, ServiceConfig{FromNumber: "+17205550100", ArchiveOnComplete: true})
	return f
}

func TestHandleInboundSMS_RepliesAndLogs(t *testing.T) {
	f := newServiceFixture(t, "We can see you Friday at 2pm.")
	ctx := context.Background()

	res, err := f.svc.HandleInboundSMS(ctx, messaging.InboundSMS{MessageSid: "SM-in-1", From: "7195551234", Body: "Can I come in Friday?"})
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.False(t, res.Escalated)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "+17195551234", f.sender.sent[0].To)
	assert.Equal(t, "+17205550100", f.sender.sent[0].From)
	assert.Contains(t, f.sender.sent[0].Body, testBookingURL)

	conv, err := f.svc.GetWithMessages(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, ChannelSMS, conv.Channel)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, ChatRoleUser, conv.Messages[0].Role)
	assert.Equal(t, ChatRoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, SentByAI, conv.Messages[1].SentBy)
	assert.Equal(t, "SM1", conv.Messages[1].ProviderMessageID)

	entries := f.log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, deliverylog.TypeAIReply, entries[0].Type)
	assert.Equal(t, deliverylog.StatusSent, entries[0].Status)
}

func TestHandleInboundSMS_DuplicateDeliveryIgnored(t *testing.T) {
	f := newServiceFixture(t, "Sure.")
	ctx := context.Background()
	in := messaging.InboundSMS{MessageSid: "SM-dup", From: "+17195551234", Body: "hi"}

	_, err := f.svc.HandleInboundSMS(ctx, in)
	require.NoError(t, err)
	res, err := f.svc.HandleInboundSMS(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, f.sender.sent, 1)
}

func TestHandleInboundSMS_ReusesMissedCallConversation(t *testing.T) {
	f := newServiceFixture(t, "Happy to help.")
	ctx := context.Background()
	existing, _, err := f.store.FindOrCreateActive(ctx, FindOrCreateParams{Phone: "+17195551234", Channel: ChannelMissedCall, Ref: "CA1"})
	require.NoError(t, err)

	res, err := f.svc.HandleInboundSMS(ctx, messaging.InboundSMS{MessageSid: "SM-2", From: "+17195551234", Body: "Yes please"})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, res.ConversationID)
}

func TestHandleInboundSMS_EscalatedThreadWinsOverNewerActive(t *testing.T) {
	f := newServiceFixture(t, "Sure, see you then.")
	ctx := context.Background()

	escalated, _, err := f.store.FindOrCreateActive(ctx, FindOrCreateParams{Phone: "+17195551234", Channel: ChannelMissedCall, Ref: "CA1"})
	require.NoError(t, err)
	_, err = f.store.SetStatus(ctx, escalated.ID, StatusEscalated)
	require.NoError(t, err)
	_, _, err = f.store.FindOrCreateActive(ctx, FindOrCreateParams{Phone: "+17195551234", Channel: ChannelSMS})
	require.NoError(t, err)

	res, err := f.svc.HandleInboundSMS(ctx, messaging.InboundSMS{MessageSid: "SM-in-9", From: "+17195551234", Body: "Any update?"})
	require.NoError(t, err)
	assert.Equal(t, escalated.ID, res.ConversationID)
	assert.False(t, res.Sent)
	assert.Empty(t, f.sender.sent, "AI must not reply while an operator owns the thread")
}

func TestHandleInboundSMS_EscalationMarksAndNotifies(t *testing.T) {
	f := newServiceFixture(t, "[ESCALATE] I'm sorry about this. I'm connecting you with a member of our team who will reach out shortly.")
	ctx := context.Background()

	res, err := f.svc.HandleInboundSMS(ctx, messaging.InboundSMS{MessageSid: "SM-3", From: "+17195551234", Body: "You burned my skin, I want a refund"})
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.True(t, res.Sent)
	assert.NotContains(t, f.sender.sent[0].Body, testBookingURL)

	conv, err := f.store.Get(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, conv.Status)
	require.Len(t, f.notifier.escalations, 1)
	assert.Equal(t, "+17195551234", f.notifier.escalations[0].Phone)

	// Follow-up texts are recorded but left for an operator.
	res, err = f.svc.HandleInboundSMS(ctx, messaging.InboundSMS{MessageSid: "SM-4", From: "+17195551234", Body: "Hello??"})
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Len(t, f.sender.sent, 1)
	msgs, err := f.store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	assert.Len(t, f.llm.reqs, 1)
}

func TestHandleInboundSMS_AIFailureSendsNothing(t *testing.T) {
	f := newServiceFixture(t, "")
	f.llm.err = errors.New("model unavailable")

	res, err := f.svc.HandleInboundSMS(context.Background(), messaging.InboundSMS{MessageSid: "SM-5", From: "+17195551234", Body: "hi"})
	require.NoError(t, err)
	assert.True(t, res.Reply.Suppressed)
	assert.False(t, res.Sent)
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.log.Entries())
}

func TestHandleInboundSMS_SendFailureIsLogged(t *testing.T) {
	f := newServiceFixture(t, "See you soon.")
	f.sender.err = errors.New("carrier rejected")

	res, err := f.svc.HandleInboundSMS(context.Background(), messaging.InboundSMS{MessageSid: "SM-6", From: "+17195551234", Body: "hi"})
	require.NoError(t, err)
	assert.False(t, res.Sent)

	entries := f.log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, deliverylog.StatusFailed, entries[0].Status)
	assert.Contains(t, entries[0].Error, "carrier rejected")

	msgs, err := f.store.ListMessages(context.Background(), res.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSendOperatorReply(t *testing.T) {
	f := newServiceFixture(t, "")
	ctx := context.Background()
	conv, _, err := f.store.FindOrCreateActive(ctx, FindOrCreateParams{Phone: "+17195551234", Channel: ChannelMissedCall})
	require.NoError(t, err)

	msg, err := f.svc.SendOperatorReply(ctx, conv.ID, "Hi, this is Dana from the front desk.", "dana@example.com")
	require.NoError(t, err)
	assert.Equal(t, SentByHuman, msg.SentBy)
	assert.Equal(t, ChatRoleAssistant, msg.Role)

	entries := f.log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, deliverylog.TypeHumanReply, entries[0].Type)
	assert.Equal(t, "dana@example.com", entries[0].Metadata["operator"])

	_, err = f.svc.SendOperatorReply(ctx, "missing", "hello", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.SendOperatorReply(ctx, conv.ID, "   ", "")
	assert.ErrorIs(t, err, ErrInvalidMessage)

	f.sender.err = errors.New("provider down")
	_, err = f.svc.SendOperatorReply(ctx, conv.ID, "retry", "")
	assert.ErrorContains(t, err, "provider down")
}

func TestServiceSetStatusArchivesOnComplete(t *testing.T) {
	f := newServiceFixture(t, "")
	ctx := context.Background()
	conv, _, err := f.store.FindOrCreateActive(ctx, FindOrCreateParams{Phone: "+17195551234", Channel: ChannelSMS})
	require.NoError(t, err)
	_, err = f.store.AppendMessage(ctx, conv.ID, Message{Role: ChatRoleUser, Body: "email me at jo@example.com"})
	require.NoError(t, err)

	got, err := f.svc.SetStatus(ctx, conv.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.Len(t, f.archiver.records, 1)
	assert.Equal(t, archive.HashPhone("+17195551234"), f.archiver.records[0].PhoneHash)
	assert.Len(t, f.archiver.records[0].Messages, 1)

	_, err = f.svc.SetStatus(ctx, conv.ID, Status("bogus"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
