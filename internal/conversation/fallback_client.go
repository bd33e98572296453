package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/moto-assistant/pkg/logging"
)

var errEmptyCompletion = errors.New("conversation: llm returned empty text")

// FallbackLLMClient sends each request to the primary gateway and retries once
// on the fallback when the primary errors or answers with blank text.
type FallbackLLMClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFallbackLLMClient accepts a nil fallback, in which case primary results
// are returned unchanged.
func NewFallbackLLMClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("conversation: primary llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil && strings.TrimSpace(resp.Text) == "" && c.fallback != nil {
		err = errEmptyCompletion
	}
	if err == nil || c.fallback == nil || ctx.Err() != nil {
		return resp, err
	}

	c.logger.Warn("primary llm failed, using fallback", "error", err)
	fbResp, fbErr := c.fallback.Complete(ctx, req)
	if fbErr != nil {
		c.logger.Error("fallback llm failed", "primary_error", err, "error", fbErr)
		return LLMResponse{}, fmt.Errorf("conversation: fallback llm: %w (primary: %v)", fbErr, err)
	}
	return fbResp, nil
}
