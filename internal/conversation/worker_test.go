package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/moto-assistant/internal/events"
	"github.com/wolfman30/moto-assistant/pkg/logging"
)

func TestWorkerProcessesInboundJobs(t *testing.T) {
	queue := NewMemoryQueue(4)
	handler := &recordingHandler{}
	jobs := &stubJobUpdater{}
	worker := NewWorker(handler, queue, logging.Default(),
		WithWorkerCount(1),
		WithReceiveWaitSeconds(0),
		WithJobUpdater(jobs),
		WithDeliveryCredentials("secret-token", "pn-default"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	publisher := NewPublisher(queue, nil, logging.Default())
	if _, err := publisher.EnqueueInbound(ctx, InboundMessage{SenderAddress: "5551234567", Text: "Hola", MessageID: "wamid.1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(func() bool { return handler.count() > 0 }, time.Second, t)
	cancel()
	worker.Wait()

	msgs := handler.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 handled message, got %d", len(msgs))
	}
	if msgs[0].Delivery.AccessToken != "secret-token" {
		t.Fatalf("expected access token to be attached, got %q", msgs[0].Delivery.AccessToken)
	}
	if msgs[0].Delivery.PhoneNumberID != "pn-default" {
		t.Fatalf("expected default phone number id, got %q", msgs[0].Delivery.PhoneNumberID)
	}
	if len(jobs.completedJobs()) != 0 {
		t.Fatalf("untracked jobs should not be recorded")
	}
}

func TestWorkerRecordsTrackedJobStatus(t *testing.T) {
	handler := &recordingHandler{result: TurnResult{Outcome: OutcomeDelivered, CorrespondentID: "c-1"}}
	jobs := &stubJobUpdater{}
	queue := newScriptedQueue()
	worker := NewWorker(handler, queue, logging.Default(), WithJobUpdater(jobs))

	worker.handleMessage(context.Background(), trackedJob(t, "job-1", "wamid.1"))

	if got := jobs.completedJobs(); len(got) != 1 || got[0] != "job-1" {
		t.Fatalf("expected job-1 completed, got %#v", got)
	}
	if jobs.results[0].CorrespondentID != "c-1" || jobs.results[0].Outcome != OutcomeDelivered {
		t.Fatalf("unexpected job result %#v", jobs.results[0])
	}
	if queue.deletedCount() != 1 {
		t.Fatalf("expected message deleted, got %d", queue.deletedCount())
	}
}

func TestWorkerMarksFailedTurns(t *testing.T) {
	handler := &recordingHandler{err: errors.New("llm down")}
	jobs := &stubJobUpdater{}
	queue := newScriptedQueue()
	worker := NewWorker(handler, queue, logging.Default(), WithJobUpdater(jobs))

	worker.handleMessage(context.Background(), trackedJob(t, "job-2", "wamid.2"))

	if jobs.failureCount() != 1 {
		t.Fatalf("expected job failure recorded, got %d", jobs.failureCount())
	}
	if queue.deletedCount() != 1 {
		t.Fatalf("failed turns must still be deleted, got %d", queue.deletedCount())
	}
}

func TestWorkerSkipsDuplicateMessageIDs(t *testing.T) {
	handler := &recordingHandler{}
	dedupe := events.NewMemoryProcessedStore()
	worker := NewWorker(handler, newScriptedQueue(), logging.Default(), WithDeduper(dedupe))

	worker.handleMessage(context.Background(), trackedJob(t, "job-1", "wamid.same"))
	worker.handleMessage(context.Background(), trackedJob(t, "job-2", "wamid.same"))

	if handler.count() != 1 {
		t.Fatalf("expected duplicate wamid to be processed once, got %d", handler.count())
	}
}

func TestWorkerProcessesWhenDedupeStoreFails(t *testing.T) {
	handler := &recordingHandler{}
	worker := NewWorker(handler, newScriptedQueue(), logging.Default(), WithDeduper(failingDeduper{}))

	worker.handleMessage(context.Background(), trackedJob(t, "job-1", "wamid.1"))

	if handler.count() != 1 {
		t.Fatalf("expected job processed despite dedupe failure, got %d", handler.count())
	}
}

func TestWorkerSkipsMalformedPayload(t *testing.T) {
	handler := &recordingHandler{}
	jobs := &stubJobUpdater{}
	queue := newScriptedQueue()
	worker := NewWorker(handler, queue, logging.Default(), WithJobUpdater(jobs))

	worker.handleMessage(context.Background(), queueMessage{ID: "bad", Body: "{", ReceiptHandle: "rh-bad"})

	if handler.count() != 0 {
		t.Fatalf("expected no handler calls for malformed body")
	}
	if len(jobs.completedJobs()) != 0 || jobs.failureCount() != 0 {
		t.Fatalf("expected no job updates for malformed payload")
	}
	if queue.deletedCount() != 1 {
		t.Fatalf("expected malformed message deleted")
	}
}

func TestWorkerBacksOffOnReceiveErrors(t *testing.T) {
	queue := newScriptedQueue()
	queue.receiveErr = errors.New("sqs throttled")
	worker := NewWorker(&recordingHandler{}, queue, logging.Default(), WithWorkerCount(1))

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	waitFor(func() bool { return queue.receiveCalls() > 0 }, time.Second, t)
	cancel()

	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop during backoff")
	}
}

func TestWorkerConfigOptions(t *testing.T) {
	worker := NewWorker(
		&recordingHandler{},
		newScriptedQueue(),
		logging.Default(),
		WithWorkerCount(3),
		WithReceiveBatchSize(20),
		WithReceiveWaitSeconds(30),
		WithTurnTimeout(0),
	)

	if worker.cfg.workers != 3 {
		t.Fatalf("expected worker count override, got %d", worker.cfg.workers)
	}
	if worker.cfg.receiveBatchSize != maxReceiveBatchSize {
		t.Fatalf("expected batch size capped at %d, got %d", maxReceiveBatchSize, worker.cfg.receiveBatchSize)
	}
	if worker.cfg.receiveWaitSecs != maxWaitSeconds {
		t.Fatalf("expected wait seconds capped at %d, got %d", maxWaitSeconds, worker.cfg.receiveWaitSecs)
	}
	if worker.cfg.turnTimeout != 0 {
		t.Fatalf("expected turn timeout disabled, got %s", worker.cfg.turnTimeout)
	}
}

func trackedJob(t *testing.T, jobID, wamid string) queueMessage {
	t.Helper()
	body, err := json.Marshal(queuePayload{
		ID:          jobID,
		Kind:        jobTypeInbound,
		TrackStatus: true,
		Inbound:     InboundMessage{SenderAddress: "5551234567", Text: "Hola", MessageID: wamid},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return queueMessage{ID: "msg-" + jobID, Body: string(body), ReceiptHandle: "rh-" + jobID}
}

type recordingHandler struct {
	mu     sync.Mutex
	msgs   []InboundMessage
	result TurnResult
	err    error
}

func (r *recordingHandler) HandleInboundMessage(ctx context.Context, msg InboundMessage) (TurnResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.result, r.err
}

func (r *recordingHandler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recordingHandler) messages() []InboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]InboundMessage(nil), r.msgs...)
}

type stubJobUpdater struct {
	mu        sync.Mutex
	completed []string
	results   []JobOutcome
	failures  int
}

func (s *stubJobUpdater) MarkCompleted(ctx context.Context, jobID string, result JobOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, jobID)
	s.results = append(s.results, result)
	return nil
}

func (s *stubJobUpdater) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return nil
}

func (s *stubJobUpdater) completedJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...)
}

func (s *stubJobUpdater) failureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

type scriptedQueue struct {
	mu         sync.Mutex
	ch         chan queueMessage
	deleted    int
	receives   int
	receiveErr error
}

func newScriptedQueue() *scriptedQueue {
	return &scriptedQueue{ch: make(chan queueMessage, 10)}
}

func (q *scriptedQueue) Send(ctx context.Context, body string) error {
	q.ch <- queueMessage{ID: "m", Body: body, ReceiptHandle: "rh"}
	return nil
}

func (q *scriptedQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	q.mu.Lock()
	q.receives++
	err := q.receiveErr
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-q.ch:
		return []queueMessage{msg}, nil
	}
}

func (q *scriptedQueue) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted++
	return nil
}

func (q *scriptedQueue) deletedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.deleted
}

func (q *scriptedQueue) receiveCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.receives
}

type failingDeduper struct{}

func (failingDeduper) AlreadyProcessed(context.Context, string, string) (bool, error) {
	return false, errStoreDown
}

func (failingDeduper) MarkProcessed(context.Context, string, string) (bool, error) {
	return false, errStoreDown
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
