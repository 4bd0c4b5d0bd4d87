package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/frontdesk-dispatch/internal/missedcall"
	"github.com/wolfman30/frontdesk-dispatch/internal/observability/metrics"
	"github.com/wolfman30/frontdesk-dispatch/internal/routing"
	"github.com/wolfman30/frontdesk-dispatch/internal/telephony"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

// Webhook paths. Callback URLs handed to the provider are built from these.
const (
	PathVoice         = "/webhooks/twilio/voice"
	PathDialStatus    = "/webhooks/twilio/voice/dial-status"
	PathRecording     = "/webhooks/twilio/voice/recording"
	PathTranscription = "/webhooks/twilio/voice/transcription"
	PathSMS           = "/webhooks/twilio/sms"
)

// WebhookCallbacks returns the absolute callback URLs for a public base URL.
func WebhookCallbacks(publicBaseURL string) routing.Callbacks {
	base := strings.TrimRight(publicBaseURL, "/")
	return routing.Callbacks{
		DialStatusURL:    base + PathDialStatus,
		RecordingURL:     base + PathRecording,
		TranscriptionURL: base + PathTranscription,
	}
}

// CallRouter decides how to handle an inbound call.
type CallRouter interface {
	Decide(ctx context.Context, caller string, now time.Time) routing.Decision
}

// CallOutcomeHandler runs the missed-call and voicemail flows.
type CallOutcomeHandler interface {
	HandleCallOutcome(ctx context.Context, ev missedcall.CallEvent) missedcall.Result
	HandleVoicemail(ctx context.Context, ev missedcall.VoicemailEvent) missedcall.Result
}

type VoiceConfig struct {
	Router    CallRouter
	Outcomes  CallOutcomeHandler
	Callbacks routing.Callbacks
	Voicemail telephony.VoicemailOptions
	// Run executes the greeting and voicemail work. Defaults to Background.
	Run     Runner
	Metrics *metrics.DispatchMetrics
	Logger  *logging.Logger
}

// VoiceHandler answers the voice webhooks with TwiML. Every path responds
// 200; failures only show up in logs and the delivery log.
type VoiceHandler struct {
	router    CallRouter
	outcomes  CallOutcomeHandler
	callbacks routing.Callbacks
	voicemail telephony.VoicemailOptions
	run       Runner
	metrics   *metrics.DispatchMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewVoiceHandler(cfg VoiceConfig) *VoiceHandler {
	if cfg.Router == nil || cfg.Outcomes == nil {
		panic("handlers: voice handler needs a router and outcome handler")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Run == nil {
		cfg.Run = Background(30 * time.Second).Run
	}
	return &VoiceHandler{
		router:    cfg.Router,
		outcomes:  cfg.Outcomes,
		callbacks: cfg.Callbacks,
		voicemail: cfg.Voicemail,
		run:       cfg.Run,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

func (h *VoiceHandler) observe(endpoint, result string, start time.Time) {
	h.metrics.ObserveInbound(endpoint, result)
	h.metrics.ObserveWebhookLatency(endpoint, time.Since(start).Seconds())
}

func (h *VoiceHandler) voicemailTwiML() string {
	out, err := telephony.RenderVoicemail(h.callbacks.RecordingURL, h.callbacks.TranscriptionURL, h.voicemail)
	if err != nil {
		h.logger.Error("render voicemail twiml failed", "error", err)
		return telephony.RenderHangup()
	}
	return out
}

// InboundCall routes a new call. A diverted call gets the voicemail prompt
// and the SMS greeting right away since no dial outcome will follow.
func (h *VoiceHandler) InboundCall(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	wh, err := telephony.ParseVoiceForm(r)
	if err != nil {
		h.logger.Warn("invalid voice webhook", "error", err)
		h.observe("voice", "invalid", start)
		writeTwiML(w, h.voicemailTwiML())
		return
	}

	decision := h.router.Decide(r.Context(), wh.From, h.now())
	h.metrics.ObserveCallRouted(string(decision.Kind), decision.Reason)

	body, err := telephony.RenderDecision(decision, h.voicemail)
	if err != nil {
		h.logger.Error("render routing decision failed; diverting", "call_sid", wh.CallSid, "error", err)
		body = h.voicemailTwiML()
		decision.Kind = routing.KindDivert
	}

	if decision.Diverted() {
		ev := missedcall.CallEvent{CallSid: wh.CallSid, From: wh.From, To: wh.To, CallStatus: wh.CallStatus}
		h.run(r.Context(), func(ctx context.Context) {
			h.outcomes.HandleCallOutcome(ctx, ev)
		})
	}
	h.observe("voice", string(decision.Kind), start)
	writeTwiML(w, body)
}

// DialStatus receives the Dial action callback once live targets stop ringing.
func (h *VoiceHandler) DialStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	wh, err := telephony.ParseVoiceForm(r)
	if err != nil {
		h.logger.Warn("invalid dial status webhook", "error", err)
		h.observe("dial_status", "invalid", start)
		writeTwiML(w, telephony.RenderHangup())
		return
	}
	if !missedcall.ShouldGreet(wh.DialCallStatus) {
		h.observe("dial_status", "answered", start)
		writeTwiML(w, telephony.RenderHangup())
		return
	}

	ev := missedcall.CallEvent{
		CallSid:    wh.CallSid,
		From:       wh.From,
		To:         wh.To,
		CallStatus: wh.CallStatus,
		DialStatus: wh.DialCallStatus,
	}
	h.run(r.Context(), func(ctx context.Context) {
		h.outcomes.HandleCallOutcome(ctx, ev)
	})
	h.observe("dial_status", "missed", start)
	writeTwiML(w, h.voicemailTwiML())
}

// Recording is the Record verb's action; the call ends after the recording.
func (h *VoiceHandler) Recording(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	wh, err := telephony.ParseVoiceForm(r)
	if err != nil {
		h.logger.Warn("invalid recording webhook", "error", err)
	} else {
		h.logger.Info("voicemail recording finished",
			"call_sid", wh.CallSid,
			"recording_sid", wh.RecordingSid,
			"duration_seconds", wh.RecordingDuration,
		)
	}
	h.observe("recording", "ok", start)
	writeTwiML(w, telephony.RenderHangup())
}

// Transcription records the transcribed voicemail in the delivery log.
func (h *VoiceHandler) Transcription(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	wh, err := telephony.ParseVoiceForm(r)
	if err != nil {
		h.logger.Warn("invalid transcription webhook", "error", err)
		h.observe("transcription", "invalid", start)
		writeTwiML(w, telephony.RenderEmpty())
		return
	}
	ev := missedcall.VoicemailEvent{
		CallSid:             wh.CallSid,
		From:                wh.From,
		RecordingSid:        wh.RecordingSid,
		RecordingURL:        wh.RecordingURL,
		DurationSeconds:     wh.RecordingDuration,
		Transcript:          wh.TranscriptionText,
		TranscriptionStatus: wh.TranscriptionStatus,
	}
	h.run(r.Context(), func(ctx context.Context) {
		h.outcomes.HandleVoicemail(ctx, ev)
	})
	h.observe("transcription", "ok", start)
	writeTwiML(w, telephony.RenderEmpty())
}
