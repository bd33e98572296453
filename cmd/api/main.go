package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/moto-assistant/cmd/mainconfig"
	"github.com/wolfman30/moto-assistant/internal/api/router"
	"github.com/wolfman30/moto-assistant/internal/app/bootstrap"
	"github.com/wolfman30/moto-assistant/internal/appointments"
	"github.com/wolfman30/moto-assistant/internal/archive"
	"github.com/wolfman30/moto-assistant/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/moto-assistant/internal/config"
	"github.com/wolfman30/moto-assistant/internal/conversation"
	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/internal/history"
	"github.com/wolfman30/moto-assistant/internal/notify"
	"github.com/wolfman30/moto-assistant/internal/observability/metrics"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting moto-assistant API server", "env", cfg.Env, "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, reg, m := setupMetrics()
	awsCfg := loadAWSConfig(ctx, cfg, logger)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	stores, err := bootstrap.BuildStores(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.Error("failed to build stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()
	stores.StartEventRetention(ctx, 7*24*time.Hour, time.Hour, logger)

	llm, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, m, logger)
	if err != nil {
		logger.Error("failed to build language model client", "error", err)
		os.Exit(1)
	}

	hub := notify.NewHub(logger)
	sink := bootstrap.BuildSink(logger, hub)
	loc := bootstrap.BusinessLocation(cfg, logger)
	waClient := whatsapp.NewClient(cfg.WhatsAppGraphAPIBase, logger)

	engine := bootstrap.BuildEngine(cfg, bootstrap.EngineRuntime{
		Stores:   stores,
		LLM:      llm,
		Outbound: waClient,
		Sink:     sink,
		Metrics:  m,
		Location: loc,
	}, logger)

	queue, err := bootstrap.BuildQueue(cfg, awsCfg)
	if err != nil {
		logger.Error("failed to build queue", "error", err)
		os.Exit(1)
	}
	jobStore := bootstrap.BuildJobStore(cfg, awsCfg, logger)
	var jobs conversation.JobRecorder
	if jobStore != nil {
		jobs = jobStore
	}
	publisher := conversation.NewPublisher(queue, jobs, logger, conversation.WithPublisherMetrics(m))

	worker := setupInlineWorker(ctx, cfg, engine, queue, stores, jobStore, m, logger)

	apptService := appointments.NewService(stores.Appointments, stores.Correspondents, logger,
		appointments.WithCatalog(stores.Catalog),
		appointments.WithEmailSender(bootstrap.BuildEmailSender(cfg, awsCfg, logger)),
		appointments.WithSink(sink),
		appointments.WithLocation(loc),
	)

	routerCfg := &router.Config{
		Logger:           logger,
		Webhook:          whatsapp.NewWebhookHandler(cfg.WhatsAppVerifyToken, cfg.WhatsAppAppSecret, publisher.WebhookHandler(cfg.WhatsAppPhoneNumberID), logger),
		Correspondents:   correspondents.NewHandler(stores.Correspondents, logger),
		History:          history.NewHandler(stores.History, logger),
		Appointments:     appointments.NewHandler(apptService, logger),
		Archive:          setupArchive(cfg, awsCfg, stores, logger),
		Notifications:    hub,
		AdminAuthSecret:  cfg.AdminJWTSecret,
		MetricsHandler:   metricsHandler,
		MetricsGatherer:  reg,
		WebhookRateLimit: cfg.WebhookRateLimit,
		WebhookRateBurst: cfg.WebhookRateBurst,
		HealthCheck:      stores.Ping,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	waitForInlineWorker(worker, logger)
	logger.Info("server stopped")
}

// setupMetrics registers the conversation metrics on a private registry.
func setupMetrics() (http.Handler, *prometheus.Registry, *metrics.ConversationMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewConversationMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), reg, m
}

// loadAWSConfig returns nil when the SDK cannot be configured; features that
// need AWS then stay disabled.
func loadAWSConfig(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *aws.Config {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Warn("aws config unavailable; bedrock, sqs, s3 and ses disabled", "error", err)
		return nil
	}
	return &awsCfg
}

// setupInlineWorker runs the consumer pool inside the API process. Set
// WORKER_COUNT=0 when cmd/conversation-worker consumes the queue instead.
func setupInlineWorker(ctx context.Context, cfg *appconfig.Config, engine *conversation.Engine, queue conversation.Queue, stores *bootstrap.Stores, jobs *conversation.JobStore, m *metrics.ConversationMetrics, logger *logging.Logger) *conversation.Worker {
	if cfg.WorkerCount <= 0 {
		if cfg.UseMemoryQueue {
			logger.Warn("memory queue without inline workers; inbound messages will not be processed")
		}
		return nil
	}
	worker := bootstrap.BuildWorker(cfg, engine, queue, stores.Deduper, jobs, m, logger)
	worker.Start(ctx)
	logger.Info("inline conversation workers started", "count", cfg.WorkerCount, "memory_queue", cfg.UseMemoryQueue)
	return worker
}

func waitForInlineWorker(worker *conversation.Worker, logger *logging.Logger) {
	if worker == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline conversation workers stopped")
	case <-time.After(30 * time.Second):
		logger.Error("inline conversation worker shutdown timed out")
	}
}

// setupArchive always mounts the export route; without a bucket or AWS
// config the store is disabled and exports answer with a disabled status.
func setupArchive(cfg *appconfig.Config, awsCfg *aws.Config, stores *bootstrap.Stores, logger *logging.Logger) *archive.Handler {
	var client archive.S3API
	if cfg.ArchiveBucket != "" && awsCfg != nil {
		client = s3.NewFromConfig(*awsCfg)
	}
	store := archive.NewStore(client, cfg.ArchiveBucket, logger)
	exporter := archive.NewExporter(store, stores.Correspondents, stores.History, cfg.ArchiveScrubPII, logger)
	return archive.NewHandler(exporter, logger)
}
