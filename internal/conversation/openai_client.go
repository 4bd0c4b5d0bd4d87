package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI chat completion client.
type OpenAIConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint (proxies, compatible gateways, tests).
	BaseURL string
}

// OpenAILLMClient implements LLMClient on the chat completions API.
type OpenAILLMClient struct {
	client *openai.Client
	model  string
}

func NewOpenAILLMClient(cfg OpenAIConfig) (*OpenAILLMClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("conversation: openai api key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAILLMClient{client: openai.NewClientWithConfig(clientConfig), model: model}, nil
}

func (c *OpenAILLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	messages := openAIMessages(req)
	if len(messages) == 0 || messages[len(messages)-1].Role == openai.ChatMessageRoleSystem {
		return LLMResponse{}, errNoMessages
	}

	ctx, span := llmTracer.Start(ctx, "openai.chat_completion")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model))

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature >= 0 {
		chatReq.Temperature = req.Temperature
	}
	if req.TopP > 0 {
		chatReq.TopP = req.TopP
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		span.RecordError(err)
		return LLMResponse{}, fmt.Errorf("conversation: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return LLMResponse{}, errors.New("conversation: openai returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return LLMResponse{}, errors.New("conversation: openai returned empty text")
	}
	return LLMResponse{
		Text:       text,
		StopReason: string(resp.Choices[0].FinishReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}

func openAIMessages(req LLMRequest) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.System)+len(req.Messages))
	for _, s := range req.System {
		if strings.TrimSpace(s) != "" {
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: s})
		}
	}
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case ChatRoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case ChatRoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	return out
}
