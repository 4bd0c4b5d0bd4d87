package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var llmTracer = otel.Tracer("frontdesk.internal.conversation.llm")

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockLLMClient calls the Bedrock Converse API.
type BedrockLLMClient struct {
	api          bedrockConverseAPI
	defaultModel string
}

func NewBedrockLLMClient(api bedrockConverseAPI, defaultModel string) *BedrockLLMClient {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api, defaultModel: strings.TrimSpace(defaultModel)}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.defaultModel
	}
	if model == "" {
		return LLMResponse{}, errors.New("conversation: bedrock model id is required")
	}

	ctx, span := llmTracer.Start(ctx, "bedrock.converse")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", model))

	system, messages, err := bedrockTurns(req)
	if err != nil {
		return LLMResponse{}, err
	}
	if len(messages) == 0 {
		return LLMResponse{}, errNoMessages
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(model),
		System:          system,
		Messages:        messages,
		InferenceConfig: bedrockInference(req),
	})
	if err != nil {
		span.RecordError(err)
		return LLMResponse{}, fmt.Errorf("conversation: bedrock converse: %w", err)
	}

	text, err := bedrockExtractOutputText(out)
	if err != nil {
		return LLMResponse{}, err
	}
	resp := LLMResponse{
		Text:       strings.TrimSpace(text),
		StopReason: string(out.StopReason),
	}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int32OrZero(out.Usage.InputTokens),
			OutputTokens: int32OrZero(out.Usage.OutputTokens),
			TotalTokens:  int32OrZero(out.Usage.TotalTokens),
		}
		span.SetAttributes(attribute.Int("llm.output_tokens", int(resp.Usage.OutputTokens)))
	}
	return resp, nil
}

// bedrockTurns splits system text from the conversational turns. System-role
// messages are folded into the system blocks since Converse rejects them inline.
func bedrockTurns(req LLMRequest) ([]brtypes.SystemContentBlock, []brtypes.Message, error) {
	var system []brtypes.SystemContentBlock
	for _, block := range req.System {
		if strings.TrimSpace(block) != "" {
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: block})
		}
	}

	messages := make([]brtypes.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		var role brtypes.ConversationRole
		switch msg.Role {
		case ChatRoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: content})
			continue
		case ChatRoleUser:
			role = brtypes.ConversationRoleUser
		case ChatRoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return nil, nil, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
		messages = append(messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: content}},
		})
	}
	return system, messages, nil
}

func bedrockInference(req LLMRequest) *brtypes.InferenceConfiguration {
	cfg := &brtypes.InferenceConfiguration{}
	set := false
	if req.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(req.MaxTokens)
		set = true
	}
	if req.Temperature >= 0 {
		cfg.Temperature = aws.Float32(req.Temperature)
		set = true
	}
	if req.TopP > 0 {
		cfg.TopP = aws.Float32(req.TopP)
		set = true
	}
	if !set {
		return nil
	}
	return cfg
}

func bedrockExtractOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("conversation: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("conversation: bedrock response did not include a message output")
	}

	var builder strings.Builder
	for _, block := range msgOut.Value.Content {
		if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(textBlock.Value)
		}
	}
	if strings.TrimSpace(builder.String()) == "" {
		return "", errors.New("conversation: bedrock response contained no text")
	}
	return builder.String(), nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
