package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/moto-assistant/internal/events"
	"github.com/wolfman30/moto-assistant/internal/observability/metrics"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

// TurnHandler processes one inbound message. *Engine implements it.
type TurnHandler interface {
	HandleInboundMessage(ctx context.Context, msg InboundMessage) (TurnResult, error)
}

var _ TurnHandler = (*Engine)(nil)

// Worker consumes inbound jobs from the queue and runs them through the engine.
type Worker struct {
	handler TurnHandler
	queue   Queue
	jobs    JobUpdater
	dedupe  events.Deduper
	metrics *metrics.ConversationMetrics
	logger  *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	accessToken      string
	phoneNumberID    string
	turnTimeout      time.Duration
	jobs             JobUpdater
	dedupe           events.Deduper
	metrics          *metrics.ConversationMetrics
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
	defaultTurnTimeout   = 90 * time.Second
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithDeliveryCredentials sets the Cloud API token attached to every job and
// the phone number id used when a job carries none.
func WithDeliveryCredentials(accessToken, phoneNumberID string) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.accessToken = accessToken
		cfg.phoneNumberID = phoneNumberID
	}
}

// WithDeduper skips jobs whose WhatsApp message id was already processed.
func WithDeduper(d events.Deduper) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.dedupe = d
	}
}

// WithJobUpdater records job completion for tracked jobs.
func WithJobUpdater(jobs JobUpdater) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.jobs = jobs
	}
}

func WithWorkerMetrics(m *metrics.ConversationMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

// WithTurnTimeout bounds a single turn. Zero disables the bound.
func WithTurnTimeout(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d >= 0 {
			cfg.turnTimeout = d
		}
	}
}

// NewWorker constructs a queue consumer around the provided handler.
func NewWorker(handler TurnHandler, queue Queue, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if handler == nil {
		panic("conversation: turn handler cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		turnTimeout:      defaultTurnTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		handler: handler,
		queue:   queue,
		jobs:    cfg.jobs,
		dedupe:  cfg.dedupe,
		metrics: cfg.metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes one job and always deletes it; turns are never retried.
func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	defer w.deleteMessage(context.WithoutCancel(ctx), msg.ReceiptHandle)

	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode conversation job", "error", err, "msg_id", msg.ID)
		return
	}
	if payload.Kind != jobTypeInbound {
		w.logger.Error("unknown conversation job type", "kind", payload.Kind, "job_id", payload.ID)
		w.markFailed(ctx, payload, fmt.Sprintf("unknown job type %q", payload.Kind))
		return
	}

	inbound := payload.Inbound
	if msg.Attempts > 1 {
		w.logger.Info("conversation job redelivered", "job_id", payload.ID, "wamid", inbound.MessageID, "attempts", msg.Attempts)
	}
	if w.isDuplicate(ctx, inbound.MessageID) {
		w.logger.Info("skipping duplicate whatsapp message", "wamid", inbound.MessageID, "job_id", payload.ID)
		w.metrics.ObserveTurn(OutcomeDuplicate)
		w.markCompleted(ctx, payload, JobOutcome{Outcome: OutcomeDuplicate})
		return
	}

	inbound.Delivery.AccessToken = w.cfg.accessToken
	if inbound.Delivery.PhoneNumberID == "" {
		inbound.Delivery.PhoneNumberID = w.cfg.phoneNumberID
	}

	turnCtx := ctx
	if w.cfg.turnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, w.cfg.turnTimeout)
		defer cancel()
	}

	result, err := w.handler.HandleInboundMessage(turnCtx, inbound)
	if err != nil {
		w.logger.Warn("conversation turn not completed", "error", err, "job_id", payload.ID, "wamid", inbound.MessageID)
		w.markFailed(ctx, payload, err.Error())
		return
	}
	w.markCompleted(ctx, payload, JobOutcome{
		Outcome:         result.Outcome,
		CorrespondentID: result.CorrespondentID,
		Reply:           result.Reply.Message,
		Action:          result.Reply.ActionTag,
		State:           string(result.State),
	})
}

// isDuplicate claims the message id. A store failure lets the job through.
func (w *Worker) isDuplicate(ctx context.Context, wamid string) bool {
	if w.dedupe == nil || wamid == "" {
		return false
	}
	fresh, err := w.dedupe.MarkProcessed(ctx, events.ProviderWhatsApp, wamid)
	if err != nil {
		w.logger.Warn("dedupe store unavailable, processing anyway", "error", err, "wamid", wamid)
		return false
	}
	return !fresh
}

func (w *Worker) markCompleted(ctx context.Context, payload queuePayload, result JobOutcome) {
	if !payload.TrackStatus || w.jobs == nil {
		return
	}
	if err := w.jobs.MarkCompleted(ctx, payload.ID, result); err != nil {
		w.logger.Error("failed to update job status", "error", err, "job_id", payload.ID)
	}
}

func (w *Worker) markFailed(ctx context.Context, payload queuePayload, reason string) {
	if !payload.TrackStatus || w.jobs == nil {
		return
	}
	if err := w.jobs.MarkFailed(ctx, payload.ID, reason); err != nil {
		w.logger.Error("failed to update job status", "error", err, "job_id", payload.ID)
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}
