package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"

	"github.com/wolfman30/frontdesk-dispatch/cmd/mainconfig"
	"github.com/wolfman30/frontdesk-dispatch/internal/api/router"
	"github.com/wolfman30/frontdesk-dispatch/internal/archive"
	appconfig "github.com/wolfman30/frontdesk-dispatch/internal/config"
	"github.com/wolfman30/frontdesk-dispatch/internal/conversation"
	"github.com/wolfman30/frontdesk-dispatch/internal/http/handlers"
	"github.com/wolfman30/frontdesk-dispatch/internal/messaging"
	"github.com/wolfman30/frontdesk-dispatch/internal/missedcall"
	"github.com/wolfman30/frontdesk-dispatch/internal/notify"
	"github.com/wolfman30/frontdesk-dispatch/internal/routing"
	"github.com/wolfman30/frontdesk-dispatch/internal/settings"
	"github.com/wolfman30/frontdesk-dispatch/internal/telephony"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting frontdesk-dispatch API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil && cfg.UsesDatabase() {
		logger.Error("DATABASE_URL is set but the database is unreachable")
		os.Exit(1)
	}
	redisClient := connectRedis(ctx, cfg, logger)
	st := buildStores(pool, redisClient, cfg, logger)

	metricsHandler, dispatchMetrics := setupMetrics()

	fromNumber := messaging.MustE164(cfg.SMSFromNumber)
	sender, provider, reason := messaging.BuildSender(messaging.ProviderSelectionConfig{
		Preference:       cfg.SMSProvider,
		FromNumber:       fromNumber,
		TelnyxAPIKey:     cfg.TelnyxAPIKey,
		TelnyxProfileID:  cfg.TelnyxProfileID,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
	}, logger)
	if sender == nil {
		logger.Warn("no SMS provider configured; outbound messages are logged only", "reason", reason)
		sender, provider = messaging.NewLogSender(logger), messaging.SMSProviderLog
	}
	logger.Info("sms sender ready", "provider", provider)

	llm, closeLLM, err := buildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to configure LLM; AI replies disabled", "error", err)
	}
	defer closeLLM()
	engine := conversation.NewReplyEngine(llm, conversation.ReplyEngineConfig{
		Enabled:       cfg.AIRepliesEnabled,
		Persona:       conversation.PersonaConfig{BusinessName: cfg.BusinessName, MaxReplyChars: cfg.AIMaxReplyChars},
		BookingURL:    cfg.BookingURL,
		MaxHistory:    cfg.AIMaxHistory,
		MaxReplyChars: cfg.AIMaxReplyChars,
		Temperature:   -1,
		Timeout:       cfg.AITimeout,
	}, logger)
	logger.Info("ai replies", "enabled", engine.Enabled(), "provider", cfg.LLMProvider, "fallback", cfg.LLMFallbackProvider)

	notifier := notify.NewOperatorNotifier(buildEmailSender(cfg, awsCfg, logger), cfg.EscalationEmails, cfg.PublicBaseURL+"/admin/conversations", logger)
	archiver := archive.NewStore(s3.NewFromConfig(awsCfg, mainconfig.S3Options(cfg)), cfg.VoicemailArchiveBucket, logger)

	missed := missedcall.NewHandler(missedcall.Deps{
		Store:      st.conversations,
		Sender:     sender,
		Deliveries: st.deliveries,
		Tracker:    st.tracker,
		Archiver:   archiver,
		Notifier:   notifier,
		Metrics:    dispatchMetrics,
		Logger:     logger,
	}, missedcall.Config{
		BusinessName: cfg.BusinessName,
		BookingURL:   cfg.BookingURL,
		FromNumber:   fromNumber,
		Channel:      cfg.CallChannel,
		SendTimeout:  cfg.SMSSendTimeout,
	})

	svc := conversation.NewService(conversation.ServiceDeps{
		Store:      st.conversations,
		Engine:     engine,
		Sender:     sender,
		Deliveries: st.deliveries,
		Tracker:    st.tracker,
		Notifier:   notifier,
		Archiver:   archiver,
		Metrics:    dispatchMetrics,
		Logger:     logger,
	}, conversation.ServiceConfig{
		FromNumber:        fromNumber,
		SendTimeout:       cfg.SMSSendTimeout,
		ArchiveOnComplete: archiver.Enabled(),
	})

	if cfg.PublicBaseURL == "" {
		logger.Warn("PUBLIC_BASE_URL not set; provider callbacks will be relative")
	}
	callbacks := handlers.WebhookCallbacks(cfg.PublicBaseURL)
	fallback := settings.Defaults()
	fallback.Timezone = cfg.BusinessTimezone
	callRouter := routing.NewRouter(st.settings, callbacks, logger).WithFallback(fallback)

	// Webhook follow-up work outlives the request but not the process.
	followUpTimeout := cfg.AITimeout + 2*cfg.SMSSendTimeout + 5*time.Second
	run := handlers.Background(followUpTimeout)

	healthChecks := map[string]handlers.HealthCheck{}
	if pool != nil {
		healthChecks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	r := router.New(&router.Config{
		Logger: logger,
		Voice: handlers.NewVoiceHandler(handlers.VoiceConfig{
			Router:    callRouter,
			Outcomes:  missed,
			Callbacks: callbacks,
			Voicemail: telephony.VoicemailOptions{MaxLengthSeconds: cfg.VoicemailMaxSeconds},
			Run:       run.Run,
			Metrics:   dispatchMetrics,
			Logger:    logger,
		}),
		SMS:             handlers.NewSMSHandler(svc, run.Run, dispatchMetrics, logger),
		Conversations:   handlers.NewAdminConversationsHandler(svc, st.deliveries, logger),
		PhoneSettings:   handlers.NewAdminSettingsHandler(st.settings, logger),
		MetricsHandler:  metricsHandler,
		HealthChecks:    healthChecks,
		TwilioAuthToken: cfg.TwilioWebhookSecret,
		PublicBaseURL:   cfg.PublicBaseURL,
		AdminJWTSecret:  cfg.AdminJWTSecret,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Follow-up jobs may start just before shutdown and run their full budget.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second+followUpTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := run.Wait(shutdownCtx); err != nil {
		logger.Error("webhook follow-up work still running at shutdown", "error", err)
	}
	if st.sqlDB != nil {
		_ = st.sqlDB.Close()
	}
	if pool != nil {
		pool.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
