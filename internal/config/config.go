package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	SettingsCacheTTL time.Duration

	// Business identity used in greetings and the AI persona.
	BusinessName     string
	BusinessTimezone string
	BookingURL       string
	CallChannel      string

	SMSProvider         string
	SMSFromNumber       string
	SMSSendTimeout      time.Duration
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioWebhookSecret string
	TelnyxAPIKey        string
	TelnyxProfileID     string

	AIRepliesEnabled    bool
	LLMProvider         string
	LLMFallbackProvider string
	BedrockModelID      string
	OpenAIAPIKey        string
	OpenAIModel         string
	GeminiAPIKey        string
	GeminiModel         string
	AITimeout           time.Duration
	AIMaxHistory        int
	AIMaxReplyChars     int

	AdminJWTSecret string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	VoicemailArchiveBucket string
	VoicemailMaxSeconds    int

	EmailProvider    string
	SendGridAPIKey   string
	EmailFrom        string
	EmailFromName    string
	EscalationEmails []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		SettingsCacheTTL: getEnvAsDuration("SETTINGS_CACHE_TTL", time.Minute),

		BusinessName:     getEnv("BUSINESS_NAME", ""),
		BusinessTimezone: getEnv("BUSINESS_TIMEZONE", "America/Denver"),
		BookingURL:       getEnv("BOOKING_URL", ""),
		CallChannel:      getEnv("CALL_CHANNEL", "missed_call"),

		SMSProvider:         strings.ToLower(strings.TrimSpace(getEnv("SMS_PROVIDER", "auto"))),
		SMSFromNumber:       getEnv("SMS_FROM_NUMBER", ""),
		SMSSendTimeout:      getEnvAsDuration("SMS_SEND_TIMEOUT", 5*time.Second),
		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),
		TelnyxAPIKey:        getEnv("TELNYX_API_KEY", ""),
		TelnyxProfileID:     getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),

		AIRepliesEnabled:    getEnvAsBool("AI_REPLIES_ENABLED", true),
		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "bedrock"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AITimeout:           getEnvAsDuration("AI_TIMEOUT", 8*time.Second),
		AIMaxHistory:        getEnvAsInt("AI_MAX_HISTORY", 20),
		AIMaxReplyChars:     getEnvAsInt("AI_MAX_REPLY_CHARS", 320),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		VoicemailArchiveBucket: getEnv("VOICEMAIL_ARCHIVE_BUCKET", ""),
		VoicemailMaxSeconds:    getEnvAsInt("VOICEMAIL_MAX_SECONDS", 120),

		EmailProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:        getEnv("EMAIL_FROM", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Front Desk"),
		EscalationEmails: getEnvAsList("ESCALATION_EMAILS"),
	}
}

// UsesDatabase reports whether Postgres-backed stores should be wired.
func (c *Config) UsesDatabase() bool {
	return c != nil && strings.TrimSpace(c.DatabaseURL) != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
