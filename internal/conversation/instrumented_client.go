package conversation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/moto-assistant/internal/observability/metrics"
)

var llmTracer = otel.Tracer("moto.internal.conversation.llm")

// InstrumentedLLMClient records latency, token usage, and a trace span per call.
type InstrumentedLLMClient struct {
	next     LLMClient
	provider string
	metrics  *metrics.ConversationMetrics
	timeout  time.Duration
}

// NewInstrumentedLLMClient wraps next. A positive timeout bounds each call.
func NewInstrumentedLLMClient(next LLMClient, provider string, m *metrics.ConversationMetrics, timeout time.Duration) *InstrumentedLLMClient {
	if next == nil {
		panic("conversation: llm client required")
	}
	return &InstrumentedLLMClient{next: next, provider: provider, metrics: m, timeout: timeout}
}

func (c *InstrumentedLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	ctx, span := llmTracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("moto.llm.provider", c.provider),
		attribute.Int("moto.llm.messages", len(req.Messages)),
	)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.next.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.metrics.ObserveLLM(c.provider, status, time.Since(start).Seconds(), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	span.SetAttributes(
		attribute.Int("moto.llm.input_tokens", int(resp.Usage.InputTokens)),
		attribute.Int("moto.llm.output_tokens", int(resp.Usage.OutputTokens)),
	)
	return resp, err
}
