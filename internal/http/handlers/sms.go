package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/frontdesk-dispatch/internal/conversation"
	"github.com/wolfman30/frontdesk-dispatch/internal/messaging"
	"github.com/wolfman30/frontdesk-dispatch/internal/observability/metrics"
	"github.com/wolfman30/frontdesk-dispatch/internal/telephony"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

// InboundSMSService handles a customer text.
type InboundSMSService interface {
	HandleInboundSMS(ctx context.Context, in messaging.InboundSMS) (conversation.InboundResult, error)
}

// SMSHandler acknowledges inbound texts immediately and replies out of band.
type SMSHandler struct {
	service InboundSMSService
	run     Runner
	metrics *metrics.DispatchMetrics
	logger  *logging.Logger
}

func NewSMSHandler(service InboundSMSService, run Runner, m *metrics.DispatchMetrics, logger *logging.Logger) *SMSHandler {
	if service == nil {
		panic("handlers: sms service required")
	}
	if run == nil {
		run = Background(30 * time.Second).Run
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SMSHandler{service: service, run: run, metrics: m, logger: logger}
}

func (h *SMSHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency("sms", time.Since(start).Seconds())
	}()

	in, err := messaging.ParseTwilioSMS(r)
	if err != nil || in.From == "" {
		h.logger.Warn("invalid sms webhook", "error", err)
		h.metrics.ObserveInbound("sms", "invalid")
		writeTwiML(w, telephony.RenderEmpty())
		return
	}

	h.run(r.Context(), func(ctx context.Context) {
		res, err := h.service.HandleInboundSMS(ctx, in)
		if err != nil {
			h.logger.Error("inbound sms processing failed", "message_sid", in.MessageSid, "error", err)
			return
		}
		h.logger.Info("inbound sms processed",
			"message_sid", in.MessageSid,
			"conversation_id", res.ConversationID,
			"duplicate", res.Duplicate,
			"replied", res.Sent,
			"escalated", res.Escalated,
		)
	})
	h.metrics.ObserveInbound("sms", "accepted")
	writeTwiML(w, telephony.RenderEmpty())
}
