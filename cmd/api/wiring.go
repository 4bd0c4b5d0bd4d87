package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/frontdesk-dispatch/cmd/mainconfig"
	appconfig "github.com/wolfman30/frontdesk-dispatch/internal/config"
	"github.com/wolfman30/frontdesk-dispatch/internal/conversation"
	"github.com/wolfman30/frontdesk-dispatch/internal/deliverylog"
	"github.com/wolfman30/frontdesk-dispatch/internal/events"
	"github.com/wolfman30/frontdesk-dispatch/internal/notify"
	"github.com/wolfman30/frontdesk-dispatch/internal/observability/metrics"
	"github.com/wolfman30/frontdesk-dispatch/internal/settings"
	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

const (
	llmProviderBedrock = "bedrock"
	llmProviderOpenAI  = "openai"
	llmProviderGemini  = "gemini"
	llmProviderNone    = "none"
)

func setupMetrics() (http.Handler, *metrics.DispatchMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewDispatchMetrics(reg)
}

// connectPostgresPool returns nil when no URL is configured or the database
// is unreachable; callers fall back to in-memory stores.
func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func connectRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable; settings cache disabled", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

type stores struct {
	conversations conversation.Store
	deliveries    deliverylog.Store
	tracker       events.Tracker
	settings      settings.Store
	sqlDB         *sql.DB
}

// buildStores picks Postgres-backed stores when a pool is available and
// in-memory ones otherwise.
func buildStores(pool *pgxpool.Pool, cache *redis.Client, cfg *appconfig.Config, logger *logging.Logger) stores {
	if pool == nil {
		logger.Warn("no database configured; using in-memory stores")
		return stores{
			conversations: conversation.NewMemoryStore(),
			deliveries:    deliverylog.NewMemoryStore(),
			tracker:       events.NewMemoryTracker(),
			settings:      settings.NewCachedStore(settings.NewMemoryStore(), cache, cfg.SettingsCacheTTL, logger),
		}
	}
	db := stdlib.OpenDBFromPool(pool)
	return stores{
		conversations: conversation.NewPostgresStore(pool),
		deliveries:    deliverylog.NewSQLStore(db),
		tracker:       events.NewProcessedStore(pool),
		settings:      settings.NewCachedStore(settings.NewPostgresStore(pool), cache, cfg.SettingsCacheTTL, logger),
		sqlDB:         db,
	}
}

// buildLLMClient returns the configured primary model wrapped with the
// fallback provider when one is set. A nil client disables AI replies.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (conversation.LLMClient, func(), error) {
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	build := func(provider string) (conversation.LLMClient, error) {
		switch provider {
		case llmProviderBedrock:
			if cfg.BedrockModelID == "" {
				return nil, fmt.Errorf("BEDROCK_MODEL_ID is required for the bedrock provider")
			}
			return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
		case llmProviderOpenAI:
			client, err := conversation.NewOpenAILLMClient(conversation.OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel})
			if err != nil {
				return nil, err
			}
			return client, nil
		case llmProviderGemini:
			client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				return nil, err
			}
			closers = append(closers, func() { _ = client.Close() })
			return client, nil
		case "", llmProviderNone:
			return nil, nil
		default:
			return nil, fmt.Errorf("unknown LLM provider %q", provider)
		}
	}

	if !cfg.AIRepliesEnabled {
		return nil, closeAll, nil
	}
	primary, err := build(cfg.LLMProvider)
	if err != nil {
		return nil, closeAll, fmt.Errorf("primary llm: %w", err)
	}
	if primary == nil {
		return nil, closeAll, nil
	}
	if cfg.LLMFallbackProvider == "" || cfg.LLMFallbackProvider == cfg.LLMProvider {
		return primary, closeAll, nil
	}
	fallback, err := build(cfg.LLMFallbackProvider)
	if err != nil {
		logger.Warn("fallback llm unavailable; continuing with primary only", "provider", cfg.LLMFallbackProvider, "error", err)
		return primary, closeAll, nil
	}
	return conversation.NewFallbackLLMClient(primary, fallback, logger), closeAll, nil
}

func buildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("SENDGRID_API_KEY missing; operator e-mail is logged only")
	case "ses":
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg, mainconfig.SESOptions(cfg)), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	}
	return notify.NewStubEmailSender(logger)
}
