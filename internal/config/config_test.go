package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BUSINESS_TIMEZONE", "")
	t.Setenv("AI_TIMEOUT", "")
	t.Setenv("ESCALATION_EMAILS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.BusinessTimezone != "America/Denver" {
		t.Fatalf("expected default timezone, got %s", cfg.BusinessTimezone)
	}
	if cfg.AITimeout != 8*time.Second {
		t.Fatalf("expected default ai timeout, got %s", cfg.AITimeout)
	}
	if cfg.UsesDatabase() {
		t.Fatalf("expected in-memory mode without DATABASE_URL")
	}
	if cfg.EscalationEmails != nil {
		t.Fatalf("expected no escalation emails, got %v", cfg.EscalationEmails)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("PUBLIC_BASE_URL", "https://dispatch.example.com/")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SMS_PROVIDER", " Twilio ")
	t.Setenv("AI_REPLIES_ENABLED", "false")
	t.Setenv("AI_TIMEOUT", "3s")
	t.Setenv("AI_MAX_HISTORY", "6")
	t.Setenv("ESCALATION_EMAILS", "owner@example.com, , desk@example.com")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.PublicBaseURL != "https://dispatch.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.PublicBaseURL)
	}
	if !cfg.UsesDatabase() {
		t.Fatalf("expected database mode")
	}
	if cfg.SMSProvider != "twilio" {
		t.Fatalf("expected normalized provider, got %q", cfg.SMSProvider)
	}
	if cfg.AIRepliesEnabled {
		t.Fatalf("expected ai replies disabled")
	}
	if cfg.AITimeout != 3*time.Second || cfg.AIMaxHistory != 6 {
		t.Fatalf("unexpected ai config %s %d", cfg.AITimeout, cfg.AIMaxHistory)
	}
	if len(cfg.EscalationEmails) != 2 || cfg.EscalationEmails[1] != "desk@example.com" {
		t.Fatalf("unexpected escalation emails %v", cfg.EscalationEmails)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("AI_MAX_HISTORY", "many")
	t.Setenv("SMS_SEND_TIMEOUT", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.AIMaxHistory != 20 {
		t.Fatalf("expected default history, got %d", cfg.AIMaxHistory)
	}
	if cfg.SMSSendTimeout != 5*time.Second {
		t.Fatalf("expected default send timeout, got %s", cfg.SMSSendTimeout)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis tls default false")
	}
}
