package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/moto-assistant/internal/channels/whatsapp"
	"github.com/wolfman30/moto-assistant/internal/observability/metrics"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// Publisher enqueues inbound messages for asynchronous processing.
type Publisher struct {
	queue   Queue
	jobs    JobRecorder
	metrics *metrics.ConversationMetrics
	logger  *logging.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherMetrics counts webhook messages by enqueue status.
func WithPublisherMetrics(m *metrics.ConversationMetrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

// NewPublisher creates a queue-backed publisher. jobs may be nil.
func NewPublisher(queue Queue, jobs JobRecorder, logger *logging.Logger, opts ...PublisherOption) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Publisher{
		queue:  queue,
		jobs:   jobs,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EnqueueInbound publishes one inbound message and returns its job id.
func (p *Publisher) EnqueueInbound(ctx context.Context, msg InboundMessage) (string, error) {
	payload, body, err := encodePayload(queuePayload{
		Kind:        jobTypeInbound,
		Inbound:     msg,
		TrackStatus: p.jobs != nil,
	})
	if err != nil {
		return "", err
	}

	if p.jobs != nil {
		record := &JobRecord{
			JobID:       payload.ID,
			RequestType: payload.Kind,
			WAMID:       msg.MessageID,
			Sender:      msg.SenderAddress,
		}
		if err := p.jobs.PutPending(ctx, record); err != nil {
			p.logger.Warn("failed to record pending job", "error", err, "job_id", payload.ID)
		}
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("conversation job enqueued", "job_id", payload.ID, "wamid", msg.MessageID)
	return payload.ID, nil
}

// WebhookHandler adapts the publisher to the WhatsApp webhook. The phone
// number id from the webhook metadata wins over defaultPhoneNumberID.
func (p *Publisher) WebhookHandler(defaultPhoneNumberID string) whatsapp.MessageHandler {
	return func(ctx context.Context, in whatsapp.ParsedInboundMessage) error {
		phoneNumberID := strings.TrimSpace(in.PhoneNumberID)
		if phoneNumberID == "" {
			phoneNumberID = defaultPhoneNumberID
		}
		_, err := p.EnqueueInbound(ctx, InboundMessage{
			SenderAddress: in.From,
			Text:          in.Text,
			DisplayName:   in.DisplayName,
			MessageID:     in.MessageID,
			Timestamp:     in.Timestamp,
			Delivery:      whatsapp.DeliveryContext{PhoneNumberID: phoneNumberID},
		})
		if err != nil {
			p.metrics.ObserveWebhookMessage("enqueue_failed")
			return err
		}
		p.metrics.ObserveWebhookMessage("enqueued")
		return nil
	}
}
