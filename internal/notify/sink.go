package notify

import (
	"context"
	"time"

	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// Notification types published by the conversation engine and appointment service.
const (
	TypeMessageReceived     = "message.received"
	TypeMessageSent         = "message.sent"
	TypeAppointmentProposed = "appointment.proposed"
	TypeAppointmentCreated  = "appointment.created"
	TypeAppointmentUpdated  = "appointment.updated"
)

// Notification is a real-time event for operator dashboards.
type Notification struct {
	Type            string         `json:"type"`
	CorrespondentID string         `json:"correspondent_id"`
	Data            map[string]any `json:"data,omitempty"`
	At              time.Time      `json:"at"`
}

// Sink receives notifications. Publish must not block the caller for long
// and failures are never surfaced to the conversation.
type Sink interface {
	Publish(ctx context.Context, n Notification)
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, n Notification) {
	s.logger.Info("notification", "type", n.Type, "correspondent_id", n.CorrespondentID, "data", n.Data)
}

// MultiSink fans a notification out to every non-nil sink.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, n Notification) {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, n)
		}
	}
}

// NopSink discards notifications.
type NopSink struct{}

func (NopSink) Publish(context.Context, Notification) {}
