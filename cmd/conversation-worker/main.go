package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/moto-assistant/cmd/mainconfig"
	"github.com/wolfman30/moto-assistant/internal/app/bootstrap"
	"github.com/wolfman30/moto-assistant/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/moto-assistant/internal/config"
	"github.com/wolfman30/moto-assistant/internal/observability/metrics"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// conversation-worker consumes the SQS queue fed by the API or the webhook
// lambda and runs one conversation turn per job.
func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	cfg.UseMemoryQueue = false
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewConversationMetrics(reg)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	stores, err := bootstrap.BuildStores(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.Error("failed to build stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()
	stores.StartEventRetention(ctx, 7*24*time.Hour, time.Hour, logger)

	llm, err := bootstrap.BuildLLMClient(ctx, cfg, &awsConfig, m, logger)
	if err != nil {
		logger.Error("failed to build language model client", "error", err)
		os.Exit(1)
	}
	queue, err := bootstrap.BuildQueue(cfg, &awsConfig)
	if err != nil {
		logger.Error("failed to build queue", "error", err)
		os.Exit(1)
	}

	engine := bootstrap.BuildEngine(cfg, bootstrap.EngineRuntime{
		Stores:   stores,
		LLM:      llm,
		Outbound: whatsapp.NewClient(cfg.WhatsAppGraphAPIBase, logger),
		Sink:     bootstrap.BuildSink(logger),
		Metrics:  m,
		Location: bootstrap.BusinessLocation(cfg, logger),
	}, logger)

	worker := bootstrap.BuildWorker(cfg, engine, queue, stores.Deduper, bootstrap.BuildJobStore(cfg, &awsConfig, logger), m, logger)
	worker.Start(ctx)
	logger.Info("conversation worker started", "count", cfg.WorkerCount, "queue", cfg.ConversationQueueURL)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
