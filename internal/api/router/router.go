package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/frontdesk-dispatch/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/frontdesk-dispatch/internal/http/middleware"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger         *logging.Logger
	Voice          *handlers.VoiceHandler
	SMS            *handlers.SMSHandler
	Conversations  *handlers.AdminConversationsHandler
	PhoneSettings  *handlers.AdminSettingsHandler
	MetricsHandler http.Handler
	HealthChecks   map[string]handlers.HealthCheck

	// TwilioAuthToken enables webhook signature validation when set.
	TwilioAuthToken string
	PublicBaseURL   string
	AdminJWTSecret  string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(logger))

	r.Get("/health", handlers.Health(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Provider webhooks
	r.Group(func(hooks chi.Router) {
		hooks.Use(httpmiddleware.TwilioSignature(cfg.TwilioAuthToken, cfg.PublicBaseURL, logger))
		if cfg.Voice != nil {
			hooks.Post(handlers.PathVoice, cfg.Voice.InboundCall)
			hooks.Post(handlers.PathDialStatus, cfg.Voice.DialStatus)
			hooks.Post(handlers.PathRecording, cfg.Voice.Recording)
			hooks.Post(handlers.PathTranscription, cfg.Voice.Transcription)
		}
		if cfg.SMS != nil {
			hooks.Post(handlers.PathSMS, cfg.SMS.Inbound)
		}
	})

	// Operator API
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))
		if cfg.Conversations != nil {
			admin.Get("/conversations", cfg.Conversations.List)
			admin.Get("/conversations/{id}", cfg.Conversations.Get)
			admin.Post("/conversations/{id}/reply", cfg.Conversations.Reply)
			admin.Put("/conversations/{id}/status", cfg.Conversations.SetStatus)
			admin.Get("/deliveries", cfg.Conversations.Deliveries)
		}
		if cfg.PhoneSettings != nil {
			admin.Get("/settings/phone", cfg.PhoneSettings.Get)
			admin.Put("/settings/phone", cfg.PhoneSettings.Put)
		}
	})

	return r
}
