package conversation

import (
	"context"
	"errors"
	"strings"
)

// Roles as stored on Message.Role and sent to the model.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// errNoMessages is returned by clients that need at least one turn to answer.
var errNoMessages = errors.New("conversation: completion request has no messages")

// ChatMessage is one caller or front-desk turn of an SMS thread.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage is reported per reply for cost tracking; zero when the provider omits it.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMRequest carries the front-desk persona in System and the thread in
// Messages. A negative Temperature leaves the provider default.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// LLMResponse is a completion as the reply engine sees it. StopReason is
// the provider's raw value.
type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// Truncated reports whether the provider stopped on its output token cap.
// Bedrock says max_tokens, OpenAI length, Gemini MAX_TOKENS.
func (r LLMResponse) Truncated() bool {
	switch strings.ToLower(strings.TrimSpace(r.StopReason)) {
	case "max_tokens", "length":
		return true
	}
	return false
}

// LLMClient answers one inbound SMS. Callers bound latency through ctx.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
