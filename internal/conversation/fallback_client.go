package conversation

import (
	"context"
	"errors"

	"github.com/wolfman30/frontdesk-dispatch/pkg/logging"
)

// FallbackLLMClient retries a failed completion on a second provider.
type FallbackLLMClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFallbackLLMClient wraps primary. A nil fallback makes it a passthrough.
func NewFallbackLLMClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("conversation: primary llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if c.fallback == nil {
		return LLMResponse{}, err
	}
	// No point spending the fallback once the caller's deadline is gone.
	if ctx.Err() != nil {
		return LLMResponse{}, err
	}

	c.logger.Warn("primary llm failed, trying fallback", "error", err)
	resp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback llm failed", "primary_error", err, "fallback_error", fallbackErr)
		return LLMResponse{}, errors.Join(err, fallbackErr)
	}
	return resp, nil
}
