package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/moto-assistant/internal/config"
	"github.com/wolfman30/moto-assistant/internal/conversation"
	"github.com/wolfman30/moto-assistant/internal/events"
	"github.com/wolfman30/moto-assistant/internal/notify"
	"github.com/wolfman30/moto-assistant/internal/observability/metrics"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

const llmCallTimeout = 45 * time.Second

// ErrNoLLMProvider is returned when neither Gemini nor Bedrock is configured.
var ErrNoLLMProvider = errors.New("bootstrap: no language model provider configured")

// BuildLLMClient wires Gemini as the primary gateway and Bedrock as the
// fallback. Either may be absent; awsCfg may be nil when Bedrock is unused.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, m *metrics.ConversationMetrics, logger *logging.Logger) (conversation.LLMClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var primary, fallback conversation.LLMClient
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		primary = conversation.NewInstrumentedLLMClient(gemini, "gemini", m, llmCallTimeout)
	}
	if strings.TrimSpace(cfg.BedrockModelID) != "" {
		if awsCfg == nil {
			logger.Warn("bedrock model configured without aws config; skipping fallback")
		} else {
			bedrock := conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID)
			fallback = conversation.NewInstrumentedLLMClient(bedrock, "bedrock", m, llmCallTimeout)
		}
	}

	switch {
	case primary != nil && fallback != nil:
		logger.Info("using gemini with bedrock fallback", "gemini_model", cfg.GeminiModel, "bedrock_model", cfg.BedrockModelID)
		return conversation.NewFallbackLLMClient(primary, fallback, logger), nil
	case primary != nil:
		logger.Info("using gemini", "model", cfg.GeminiModel)
		return primary, nil
	case fallback != nil:
		logger.Info("using bedrock", "model", cfg.BedrockModelID)
		return fallback, nil
	}
	return nil, ErrNoLLMProvider
}

// BuildQueue returns the in-memory queue or the SQS queue named in config.
func BuildQueue(cfg *appconfig.Config, awsCfg *aws.Config) (conversation.Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if cfg.UseMemoryQueue {
		return conversation.NewMemoryQueue(1024), nil
	}
	if strings.TrimSpace(cfg.ConversationQueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: CONVERSATION_QUEUE_URL is required when USE_MEMORY_QUEUE=false")
	}
	if awsCfg == nil {
		return nil, fmt.Errorf("bootstrap: aws config is required for sqs")
	}
	return conversation.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.ConversationQueueURL), nil
}

// BuildJobStore returns the DynamoDB job tracker, or nil when tracking is off.
func BuildJobStore(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *conversation.JobStore {
	if cfg == nil || cfg.UseMemoryQueue || strings.TrimSpace(cfg.ConversationJobsTable) == "" || awsCfg == nil {
		return nil
	}
	return conversation.NewJobStore(dynamodb.NewFromConfig(*awsCfg), cfg.ConversationJobsTable, logger)
}

// EngineConfig maps the model settings onto the engine configuration.
func EngineConfig(cfg *appconfig.Config) conversation.EngineConfig {
	model := cfg.GeminiModel
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		model = cfg.BedrockModelID
	}
	return conversation.EngineConfig{
		HistoryWindow: cfg.HistoryWindow,
		Model:         model,
		MaxTokens:     int32(cfg.LLMMaxTokens),
		Temperature:   float32(cfg.LLMTemperature),
	}
}

// EngineRuntime holds the collaborators a conversation worker needs.
type EngineRuntime struct {
	Stores   *Stores
	LLM      conversation.LLMClient
	Outbound conversation.Outbound
	Sink     notify.Sink
	Metrics  *metrics.ConversationMetrics
	Location *time.Location
}

// BuildEngine wires the dispatcher and engine over rt.
func BuildEngine(cfg *appconfig.Config, rt EngineRuntime, logger *logging.Logger) *conversation.Engine {
	dispatcher := conversation.NewActionDispatcher(
		rt.Stores.Catalog,
		rt.Stores.Correspondents,
		rt.Outbound,
		logger,
		conversation.WithDispatchSink(rt.Sink),
		conversation.WithDispatchMetrics(rt.Metrics),
		conversation.WithBusinessLocation(rt.Location),
	)
	return conversation.NewEngine(conversation.EngineDeps{
		Correspondents: rt.Stores.Correspondents,
		History:        rt.Stores.History,
		Catalog:        rt.Stores.Catalog,
		LLM:            rt.LLM,
		Dispatcher:     dispatcher,
		Outbound:       rt.Outbound,
		Sink:           rt.Sink,
		Metrics:        rt.Metrics,
		Logger:         logger,
	}, EngineConfig(cfg))
}

// BuildWorker wires a queue consumer around engine. jobs may be nil.
func BuildWorker(cfg *appconfig.Config, engine *conversation.Engine, queue conversation.Queue, deduper events.Deduper, jobs *conversation.JobStore, m *metrics.ConversationMetrics, logger *logging.Logger) *conversation.Worker {
	opts := []conversation.WorkerOption{
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithDeliveryCredentials(cfg.WhatsAppAccessToken, cfg.WhatsAppPhoneNumberID),
		conversation.WithDeduper(deduper),
		conversation.WithWorkerMetrics(m),
	}
	if jobs != nil {
		opts = append(opts, conversation.WithJobUpdater(jobs))
	}
	return conversation.NewWorker(engine, queue, logger, opts...)
}
