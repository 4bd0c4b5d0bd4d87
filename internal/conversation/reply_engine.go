package conversation

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

const (
	defaultMaxHistory    = 12
	defaultMaxReplyChars = 320
	defaultReplyTimeout  = 8 * time.Second
	defaultMaxTokens     = 220
)

// Suppression reasons reported on ReplyOutcome.
const (
	SuppressDisabled = "disabled"
	SuppressTimeout  = "timeout"
	SuppressError    = "llm_error"
	SuppressEmpty    = "empty_reply"
)

// ReplyEngineConfig tunes the AI reply path.
type ReplyEngineConfig struct {
	Enabled       bool
	Model         string
	Persona       PersonaConfig
	BookingURL    string
	MaxHistory    int
	MaxReplyChars int
	MaxTokens     int32
	Temperature   float32
	Timeout       time.Duration
}

// ReplyOutcome is either suppressed or a reply that may be an escalation.
type ReplyOutcome struct {
	Suppressed     bool
	SuppressReason string
	Text           string
	Escalate       bool
	// Trigger is the escalation marker that matched.
	Trigger string
	Usage   TokenUsage
}

// ReplyEngine turns an inbound text plus history into an SMS reply. It only
// classifies; callers own any status change.
type ReplyEngine struct {
	llm    LLMClient
	cfg    ReplyEngineConfig
	system string
	logger *logging.Logger
}

func NewReplyEngine(llm LLMClient, cfg ReplyEngineConfig, logger *logging.Logger) *ReplyEngine {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	if cfg.MaxReplyChars <= 0 {
		cfg.MaxReplyChars = defaultMaxReplyChars
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultReplyTimeout
	}
	cfg.Persona.MaxReplyChars = cfg.MaxReplyChars
	if llm == nil {
		cfg.Enabled = false
	}
	return &ReplyEngine{
		llm:    llm,
		cfg:    cfg,
		system: buildSystemPrompt(cfg.Persona),
		logger: logger,
	}
}

// Enabled reports whether replies can be generated at all.
func (e *ReplyEngine) Enabled() bool {
	return e != nil && e.cfg.Enabled
}

// GenerateReply never surfaces LLM failures; they come back as Suppressed
// with a reason. The returned error is reserved for caller cancellation.
func (e *ReplyEngine) GenerateReply(ctx context.Context, inbound string, history []Message) (ReplyOutcome, error) {
	if !e.Enabled() {
		return ReplyOutcome{Suppressed: true, SuppressReason: SuppressDisabled}, nil
	}
	if err := ctx.Err(); err != nil {
		return ReplyOutcome{}, err
	}

	ctx, span := llmTracer.Start(ctx, "conversation.generate_reply")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resp, err := e.llm.Complete(callCtx, LLMRequest{
		Model:       e.cfg.Model,
		System:      []string{e.system},
		Messages:    e.promptMessages(inbound, history),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			return ReplyOutcome{}, ctx.Err()
		}
		reason := SuppressError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = SuppressTimeout
		}
		e.logger.Warn("ai reply suppressed", "reason", reason, "error", err)
		return ReplyOutcome{Suppressed: true, SuppressReason: reason}, nil
	}

	if resp.Truncated() {
		e.logger.Warn("ai reply hit token cap", "stop_reason", resp.StopReason, "output_tokens", resp.Usage.OutputTokens)
		span.SetAttributes(attribute.Bool("reply.truncated", true))
	}

	trigger, escalate := DetectEscalation(resp.Text)
	text := stripEscalationTag(resp.Text)
	if escalate {
		text = e.stripBookingLink(text)
	}
	limit, cta := e.cfg.MaxReplyChars, ""
	if !escalate {
		cta = e.bookingCTA(text)
		// The link is kept whole; the model's text gives way to it.
		if n := utf8.RuneCountInString(cta); n < limit {
			limit -= n
		} else {
			cta = ""
		}
	}
	text = truncateAtWord(text, limit)
	if text == "" {
		return ReplyOutcome{Suppressed: true, SuppressReason: SuppressEmpty, Usage: resp.Usage}, nil
	}
	text += cta

	span.SetAttributes(attribute.Bool("reply.escalate", escalate))
	return ReplyOutcome{
		Text:     text,
		Escalate: escalate,
		Trigger:  trigger,
		Usage:    resp.Usage,
	}, nil
}

// promptMessages keeps the most recent history so the prompt stays bounded.
func (e *ReplyEngine) promptMessages(inbound string, history []Message) []ChatMessage {
	if len(history) > e.cfg.MaxHistory {
		history = history[len(history)-e.cfg.MaxHistory:]
	}
	out := make([]ChatMessage, 0, len(history)+1)
	for _, msg := range history {
		if msg.Role == ChatRoleSystem || strings.TrimSpace(msg.Body) == "" {
			continue
		}
		out = append(out, ChatMessage{Role: msg.Role, Content: msg.Body})
	}
	inbound = strings.TrimSpace(inbound)
	// The inbound text is usually already the last history entry.
	if n := len(out); n == 0 || out[n-1].Role != ChatRoleUser || out[n-1].Content != inbound {
		out = append(out, ChatMessage{Role: ChatRoleUser, Content: inbound})
	}
	return out
}

// bookingCTA is the suffix appended to a normal reply, empty when the
// model already included the link.
func (e *ReplyEngine) bookingCTA(text string) string {
	url := strings.TrimSpace(e.cfg.BookingURL)
	if url == "" || strings.Contains(text, url) {
		return ""
	}
	return " Book online: " + url
}

func (e *ReplyEngine) stripBookingLink(text string) string {
	url := strings.TrimSpace(e.cfg.BookingURL)
	if url == "" {
		return text
	}
	text = strings.ReplaceAll(text, "Book online: "+url, "")
	text = strings.ReplaceAll(text, url, "")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// truncateAtWord shortens s to at most limit runes, backing up to the last space.
func truncateAtWord(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if idx := strings.LastIndex(cut, " "); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:-")
}
