package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/moto-assistant/internal/app/bootstrap"
	"github.com/wolfman30/moto-assistant/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/moto-assistant/internal/config"
	"github.com/wolfman30/moto-assistant/internal/conversation"
	"github.com/wolfman30/moto-assistant/internal/notify"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, reg, m := setupMetrics()
	if handler == nil || reg == nil || m == nil {
		t.Fatalf("expected non-nil handler, registry and metrics")
	}

	m.ObserveWebhookMessage("enqueued")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "moto_webhook_messages_total") {
		t.Fatalf("expected webhook counter to be exported")
	}
}

func TestSetupArchiveDisabledWithoutBucket(t *testing.T) {
	cfg := &appconfig.Config{}
	_, stores := newTestEngine(t, cfg)
	h := setupArchive(cfg, nil, stores, logging.New("error"))
	if h == nil {
		t.Fatalf("expected archive handler")
	}

	r := chi.NewRouter()
	r.Post("/admin/correspondents/{id}/archive", h.Export)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/correspondents/c-1/archive", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "disabled") {
		t.Fatalf("expected disabled export, got %d %q", rr.Code, rr.Body.String())
	}
}

type noopLLM struct{}

func (noopLLM) Complete(context.Context, conversation.LLMRequest) (conversation.LLMResponse, error) {
	return conversation.LLMResponse{Text: `{"message":"ok"}`}, nil
}

type noopOutbound struct{}

func (noopOutbound) SendText(context.Context, whatsapp.DeliveryContext, string, string) bool {
	return true
}

func (noopOutbound) SendImage(context.Context, whatsapp.DeliveryContext, string, string, string) bool {
	return true
}

func newTestEngine(t *testing.T, cfg *appconfig.Config) (*conversation.Engine, *bootstrap.Stores) {
	t.Helper()
	logger := logging.New("error")
	stores, err := bootstrap.BuildStores(context.Background(), cfg, nil, logger)
	if err != nil {
		t.Fatalf("build stores: %v", err)
	}
	engine := bootstrap.BuildEngine(cfg, bootstrap.EngineRuntime{
		Stores:   stores,
		LLM:      noopLLM{},
		Outbound: noopOutbound{},
		Sink:     notify.NopSink{},
	}, logger)
	return engine, stores
}

func TestSetupInlineWorkerDisabled(t *testing.T) {
	cfg := &appconfig.Config{UseMemoryQueue: true, WorkerCount: 0}
	engine, stores := newTestEngine(t, cfg)

	worker := setupInlineWorker(context.Background(), cfg, engine, conversation.NewMemoryQueue(1), stores, nil, nil, logging.New("error"))
	if worker != nil {
		t.Fatalf("expected no worker when WORKER_COUNT is 0")
	}
}

func TestSetupInlineWorkerStartsAndStops(t *testing.T) {
	cfg := &appconfig.Config{UseMemoryQueue: true, WorkerCount: 1}
	engine, stores := newTestEngine(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())

	worker := setupInlineWorker(ctx, cfg, engine, conversation.NewMemoryQueue(2), stores, nil, nil, logging.New("error"))
	if worker == nil {
		t.Fatalf("expected worker when WORKER_COUNT > 0")
	}

	cancel()
	waitForInlineWorker(worker, logging.New("error"))
}
