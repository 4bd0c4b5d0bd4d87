package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func TestBedrockLLMClient_Complete(t *testing.T) {
	fake := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: " We open at 9. "}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(40), OutputTokens: aws.Int32(6), TotalTokens: aws.Int32(46)},
	}}
	client := NewBedrockLLMClient(fake, "anthropic.claude-test")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System: []string{"persona"},
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "extra rule"},
			{Role: ChatRoleAssistant, Content: "Hi!"},
			{Role: ChatRoleUser, Content: "When do you open?"},
		},
		MaxTokens:   100,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "We open at 9.", resp.Text)
	assert.Equal(t, int32(46), resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.StopReason)

	require.NotNil(t, fake.input)
	assert.Equal(t, "anthropic.claude-test", aws.ToString(fake.input.ModelId))
	assert.Len(t, fake.input.System, 2)
	assert.Len(t, fake.input.Messages, 2)
	assert.Equal(t, int32(100), aws.ToInt32(fake.input.InferenceConfig.MaxTokens))
}

func TestBedrockLLMClient_Errors(t *testing.T) {
	client := NewBedrockLLMClient(&fakeConverse{err: errors.New("throttled")}, "")
	_, err := client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
	assert.ErrorContains(t, err, "model id is required")

	client = NewBedrockLLMClient(&fakeConverse{err: errors.New("throttled")}, "m")
	_, err = client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
	assert.ErrorContains(t, err, "throttled")

	_, err = client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: "tool", Content: "hi"}}})
	assert.ErrorContains(t, err, "unsupported role")

	_, err = client.Complete(context.Background(), LLMRequest{System: []string{"only system"}})
	assert.ErrorIs(t, err, errNoMessages)
}

func TestOpenAILLMClient_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Happy to help!"}}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 4, "total_tokens": 34}
		}`))
	}))
	defer srv.Close()

	client, err := NewOpenAILLMClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), LLMRequest{
		System:      []string{"persona"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "Can I book?"}},
		MaxTokens:   50,
		Temperature: -1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Happy to help!", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, int32(34), resp.Usage.TotalTokens)

	assert.Equal(t, defaultOpenAIModel, got["model"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAILLMClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAILLMClient(OpenAIConfig{})
	assert.Error(t, err)
}

func TestOpenAILLMClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit"}}`))
	}))
	defer srv.Close()

	client, err := NewOpenAILLMClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
	assert.ErrorContains(t, err, "openai completion")
}

func TestFallbackLLMClient(t *testing.T) {
	primary := &stubLLM{err: errors.New("primary down")}
	fallback := &stubLLM{text: "from fallback"}
	client := NewFallbackLLMClient(primary, fallback, logging.Discard())

	resp, err := client.Complete(context.Background(), LLMRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Text)

	fallback.err = errors.New("fallback down")
	_, err = client.Complete(context.Background(), LLMRequest{})
	assert.ErrorContains(t, err, "primary down")
	assert.ErrorContains(t, err, "fallback down")

	solo := NewFallbackLLMClient(primary, nil, logging.Discard())
	_, err = solo.Complete(context.Background(), LLMRequest{})
	assert.EqualError(t, err, "primary down")
}

func TestFallbackLLMClient_SkipsFallbackWhenCancelled(t *testing.T) {
	primary := &stubLLM{err: context.Canceled}
	fallback := &stubLLM{text: "unused"}
	client := NewFallbackLLMClient(primary, fallback, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Complete(ctx, LLMRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fallback.reqs)
}

func TestGeminiTurns(t *testing.T) {
	history, last, system := geminiTurns(LLMRequest{
		System: []string{"persona"},
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "rule"},
			{Role: ChatRoleAssistant, Content: "Hi!"},
			{Role: ChatRoleUser, Content: "first"},
			{Role: ChatRoleAssistant, Content: "answer"},
			{Role: ChatRoleUser, Content: "second"},
		},
	})
	assert.Equal(t, "second", last)
	assert.Equal(t, "persona\n\nrule", system)
	require.Len(t, history, 3)
	assert.Equal(t, "model", history[0].Role)
	assert.Equal(t, "user", history[1].Role)

	_, last, _ = geminiTurns(LLMRequest{System: []string{"only"}})
	assert.Empty(t, last)
}
