package bootstrap

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/moto-assistant/internal/config"
	"github.com/wolfman30/moto-assistant/internal/conversation"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

func TestBuildLLMClientRequiresConfig(t *testing.T) {
	if _, err := BuildLLMClient(context.Background(), nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildLLMClientNoProvider(t *testing.T) {
	_, err := BuildLLMClient(context.Background(), &appconfig.Config{}, nil, nil, logging.New("error"))
	assert.ErrorIs(t, err, ErrNoLLMProvider)
}

func TestBuildLLMClientBedrockWithoutAWSConfig(t *testing.T) {
	cfg := &appconfig.Config{BedrockModelID: "anthropic.claude-3-haiku"}
	_, err := BuildLLMClient(context.Background(), cfg, nil, nil, logging.New("error"))
	assert.ErrorIs(t, err, ErrNoLLMProvider)
}

func TestBuildLLMClientBedrockOnly(t *testing.T) {
	cfg := &appconfig.Config{BedrockModelID: "anthropic.claude-3-haiku"}
	awsCfg := aws.Config{Region: "us-east-1"}

	client, err := BuildLLMClient(context.Background(), cfg, &awsCfg, nil, logging.New("error"))
	require.NoError(t, err)
	_, ok := client.(*conversation.InstrumentedLLMClient)
	assert.True(t, ok, "expected instrumented bedrock client, got %T", client)
}

func TestBuildQueue(t *testing.T) {
	q, err := BuildQueue(&appconfig.Config{UseMemoryQueue: true}, nil)
	require.NoError(t, err)
	assert.IsType(t, &conversation.MemoryQueue{}, q)

	_, err = BuildQueue(&appconfig.Config{}, nil)
	assert.Error(t, err, "sqs mode needs a queue url")

	_, err = BuildQueue(&appconfig.Config{ConversationQueueURL: "http://localhost:4566/000000000000/conv"}, nil)
	assert.Error(t, err, "sqs mode needs aws config")

	awsCfg := aws.Config{Region: "us-east-1"}
	q, err = BuildQueue(&appconfig.Config{ConversationQueueURL: "http://localhost:4566/000000000000/conv"}, &awsCfg)
	require.NoError(t, err)
	assert.IsType(t, &conversation.SQSQueue{}, q)
}

func TestBuildJobStore(t *testing.T) {
	awsCfg := aws.Config{Region: "us-east-1"}
	assert.Nil(t, BuildJobStore(&appconfig.Config{UseMemoryQueue: true, ConversationJobsTable: "jobs"}, &awsCfg, nil))
	assert.Nil(t, BuildJobStore(&appconfig.Config{}, &awsCfg, nil))
	assert.NotNil(t, BuildJobStore(&appconfig.Config{ConversationJobsTable: "jobs"}, &awsCfg, nil))
}

func TestEngineConfig(t *testing.T) {
	cfg := &appconfig.Config{
		GeminiAPIKey:   "k",
		GeminiModel:    "gemini-2.5-flash",
		BedrockModelID: "bedrock-model",
		LLMMaxTokens:   512,
		LLMTemperature: 0.5,
		HistoryWindow:  6,
	}
	ec := EngineConfig(cfg)
	assert.Equal(t, "gemini-2.5-flash", ec.Model)
	assert.Equal(t, int32(512), ec.MaxTokens)
	assert.Equal(t, 6, ec.HistoryWindow)

	cfg.GeminiAPIKey = ""
	assert.Equal(t, "bedrock-model", EngineConfig(cfg).Model)
}
