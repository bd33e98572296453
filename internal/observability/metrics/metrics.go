package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "moto"

	// LLMLatencyName is the fully-qualified histogram name read back by Snapshot.
	LLMLatencyName = "moto_conversation_llm_latency_seconds"
	// TurnsName is the fully-qualified turn counter name read back by Snapshot.
	TurnsName = "moto_conversation_turns_total"
)

// ConversationMetrics exposes counters/histograms for the WhatsApp conversation flow.
// All methods are safe on a nil receiver.
type ConversationMetrics struct {
	webhookMessages *prometheus.CounterVec
	turns           *prometheus.CounterVec
	actions         *prometheus.CounterVec
	outbound        *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	llmTokens       *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		webhookMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "messages_total",
			Help:      "Inbound WhatsApp messages accepted by the webhook",
		}, []string{"status"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversation turns by outcome",
		}, []string{"outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "actions_total",
			Help:      "Action directives dispatched",
		}, []string{"action", "status"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "whatsapp",
			Name:      "outbound_total",
			Help:      "Outbound WhatsApp sends",
		}, []string{"type", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "llm_latency_seconds",
			Help:      "Latency of LLM completions",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30},
		}, []string{"provider", "status"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "llm_tokens_total",
			Help:      "Tokens used by the LLM",
		}, []string{"provider", "type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookMessages, m.turns, m.actions, m.outbound, m.llmLatency, m.llmTokens)
	return m
}

func (m *ConversationMetrics) ObserveWebhookMessage(status string) {
	if m == nil {
		return
	}
	m.webhookMessages.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) ObserveAction(action, status string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, status).Inc()
}

func (m *ConversationMetrics) ObserveOutbound(kind string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.outbound.WithLabelValues(kind, status).Inc()
}

func (m *ConversationMetrics) ObserveLLM(provider, status string, seconds float64, inputTokens, outputTokens int32) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(provider, status).Observe(seconds)
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}
