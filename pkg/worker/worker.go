// Package worker runs the consume loop that pulls request messages off the
// queue, drives them through the processor, and records the outcome in the
// state store.
package worker

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/openhqm/openhqm/pkg/envelope"
	"github.com/openhqm/openhqm/pkg/errors"
	"github.com/openhqm/openhqm/pkg/logger"
	"github.com/openhqm/openhqm/pkg/processor"
	"github.com/openhqm/openhqm/pkg/queue"
	"github.com/openhqm/openhqm/pkg/resilience"
	"github.com/openhqm/openhqm/pkg/statestore"
)

// Config controls the worker's queue subscription and retry policy.
type Config struct {
	Count           int           `env:"COUNT" env-default:"1"`
	BatchSize       int           `env:"BATCH_SIZE" env-default:"10"`
	TimeoutSeconds  int           `env:"TIMEOUT_SECONDS" env-default:"30"`
	MaxRetries      int           `env:"MAX_RETRIES" env-default:"3"`
	RetryDelayBase  time.Duration `env:"RETRY_DELAY_BASE" env-default:"1s"`
	RetryDelayMax   time.Duration `env:"RETRY_DELAY_MAX" env-default:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// Worker consumes request messages, drives them through the processor, and
// records the outcome in the state store and response queue.
type Worker struct {
	id       string
	cfg      Config
	queue    queue.Queue
	store    statestore.Store
	proc     *processor.Processor
	stateTTL time.Duration

	running chan struct{}
}

// New builds a worker identified by id (used on DLQ entries and session
// affinity records).
func New(id string, cfg Config, q queue.Queue, store statestore.Store, proc *processor.Processor, stateTTL time.Duration) *Worker {
	return &Worker{
		id:       id,
		cfg:      cfg,
		queue:    q,
		store:    store,
		proc:     proc,
		stateTTL: stateTTL,
		running:  make(chan struct{}),
	}
}

// Start registers SIGTERM/SIGINT handlers, subscribes to the request queue,
// and blocks until a termination signal is received or ctx is canceled.
func (w *Worker) Start(ctx context.Context, requestQueue, responseQueue, dlqQueue string) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	close(w.running)

	logger.L().Info("worker starting", "worker_id", w.id, "queue", requestQueue)

	err := w.queue.Consume(sigCtx, requestQueue, w.id, func(msgCtx context.Context, msg *queue.Message) error {
		return w.handleMessage(msgCtx, msg, requestQueue, responseQueue, dlqQueue)
	}, queue.ConsumeOptions{BatchSize: w.cfg.BatchSize, WaitTime: 5 * time.Second})

	if err != nil && sigCtx.Err() == nil {
		logger.L().Error("worker consume loop exited with error", "worker_id", w.id, "error", err)
		return err
	}

	logger.L().Info("worker shutting down", "worker_id", w.id)
	return w.shutdown()
}

// shutdown disconnects the queue and closes the state store, per spec.md
// §4.5 ("disconnects queue and state store"), bounded by ShutdownTimeout.
func (w *Worker) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
	defer cancel()

	if err := w.queue.Disconnect(ctx); err != nil {
		logger.L().Error("failed to disconnect queue cleanly", "worker_id", w.id, "error", err)
	}
	return w.store.Close()
}

// handleMessage implements the per-message state machine from spec.md §4.5.
func (w *Worker) handleMessage(ctx context.Context, qmsg *queue.Message, requestQueue, responseQueue, dlqQueue string) error {
	msg, err := envelope.Unmarshal(qmsg.Payload)
	if err != nil {
		logger.L().Error("dropping malformed message", "worker_id", w.id, "error", err)
		return nil
	}

	now := time.Now().UTC()
	w.writeState(ctx, msg.CorrelationID, envelope.RequestState{
		CorrelationID: msg.CorrelationID,
		Status:        envelope.StatusProcessing,
		SubmittedAt:   msg.SubmittedAt,
		UpdatedAt:     now,
	})

	timeout := time.Duration(w.cfg.TimeoutSeconds) * time.Second
	procCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	full, err := msg.ToMap()
	if err != nil {
		return w.finishFatal(ctx, qmsg, msg, dlqQueue, err)
	}

	result, procErr := w.proc.Process(procCtx, toMap(msg.Payload), metadataMap(msg.Metadata), msg.Headers, full)
	elapsed := time.Since(start).Milliseconds()

	if procErr == nil && result.Skipped {
		logger.L().Debug("message skipped, not owned by this worker", "worker_id", w.id, "correlation_id", msg.CorrelationID)
		if result.SkipPolicy == "requeue" {
			return errors.Internal("partition not assigned, requeue", nil)
		}
		return nil
	}

	if procErr != nil {
		return w.handleProcessError(ctx, qmsg, msg, requestQueue, dlqQueue, procErr)
	}

	w.writeState(ctx, msg.CorrelationID, envelope.RequestState{
		CorrelationID: msg.CorrelationID,
		Status:        envelope.StatusCompleted,
		SubmittedAt:   msg.SubmittedAt,
		UpdatedAt:     time.Now().UTC(),
	})

	record := envelope.ResponseRecord{
		CorrelationID:    msg.CorrelationID,
		Result:           result.Body,
		StatusCode:       result.StatusCode,
		Headers:          result.Headers,
		ProcessingTimeMs: elapsed,
		CompletedAt:      time.Now().UTC(),
	}
	if err := w.store.Set(ctx, envelope.ResponseRecordKey(msg.CorrelationID), record, w.stateTTL); err != nil {
		logger.L().Error("failed to persist response record", "worker_id", w.id, "correlation_id", msg.CorrelationID, "error", err)
	}

	if responseQueue != "" {
		mirror := &queue.Message{
			ID:            uuid.NewString(),
			CorrelationID: msg.CorrelationID,
			Payload:       qmsg.Payload,
			Timestamp:     time.Now().UTC(),
		}
		if _, err := w.queue.Publish(ctx, responseQueue, mirror, queue.PublishOptions{}); err != nil {
			logger.L().Error("failed to mirror response message", "worker_id", w.id, "error", err)
		}
	}

	return nil
}

// handleProcessError applies spec.md §4.5 rules 4-6: transient errors retry
// with backoff up to max_retries, then DLQ; fatal and unexpected errors go
// straight to the DLQ.
func (w *Worker) handleProcessError(ctx context.Context, qmsg *queue.Message, msg *envelope.Message, requestQueue, dlqQueue string, procErr error) error {
	if !processor.IsTransient(procErr) {
		return w.finishFatal(ctx, qmsg, msg, dlqQueue, procErr)
	}

	if msg.Metadata.RetryCount >= w.cfg.MaxRetries {
		return w.finishFatal(ctx, qmsg, msg, dlqQueue, procErr)
	}

	msg.Metadata.RetryCount++
	backoff := resilience.ExponentialBackoff(msg.Metadata.RetryCount, w.cfg.RetryDelayBase, w.cfg.RetryDelayMax, 0)

	data, err := msg.Marshal()
	if err != nil {
		return w.finishFatal(ctx, qmsg, msg, dlqQueue, err)
	}

	republish := &queue.Message{
		ID:            uuid.NewString(),
		CorrelationID: msg.CorrelationID,
		Payload:       data,
		Priority:      qmsg.Priority,
		Attributes:    qmsg.Attributes,
		Timestamp:     time.Now().UTC(),
	}
	if _, err := w.queue.Publish(ctx, requestQueue, republish, queue.PublishOptions{DelaySeconds: int64(backoff.Seconds())}); err != nil {
		logger.L().Error("failed to republish retried message", "worker_id", w.id, "correlation_id", msg.CorrelationID, "error", err)
		return w.finishFatal(ctx, qmsg, msg, dlqQueue, err)
	}

	logger.L().Warn("message failed transiently, retrying", "worker_id", w.id, "correlation_id", msg.CorrelationID, "retry_count", msg.Metadata.RetryCount, "backoff", backoff)
	return nil
}

// finishFatal sends the message to the DLQ and marks the request FAILED.
func (w *Worker) finishFatal(ctx context.Context, qmsg *queue.Message, msg *envelope.Message, dlqQueue string, cause error) error {
	logger.L().Error("message failed permanently, sending to DLQ", "worker_id", w.id, "correlation_id", msg.CorrelationID, "error", cause)

	w.writeState(ctx, msg.CorrelationID, envelope.RequestState{
		CorrelationID: msg.CorrelationID,
		Status:        envelope.StatusFailed,
		SubmittedAt:   msg.SubmittedAt,
		UpdatedAt:     time.Now().UTC(),
	})

	record := envelope.ResponseRecord{
		CorrelationID: msg.CorrelationID,
		Error:         cause.Error(),
		CompletedAt:   time.Now().UTC(),
	}
	if err := w.store.Set(ctx, envelope.ResponseRecordKey(msg.CorrelationID), record, w.stateTTL); err != nil {
		logger.L().Error("failed to persist failure response record", "worker_id", w.id, "correlation_id", msg.CorrelationID, "error", err)
	}

	dlq, err := msg.ToMap()
	if err != nil {
		logger.L().Error("failed to build DLQ payload", "worker_id", w.id, "correlation_id", msg.CorrelationID, "error", err)
		dlq = map[string]interface{}{}
	}
	dlq["failed_at"] = time.Now().UTC()
	dlq["worker_id"] = w.id
	dlq["error"] = cause.Error()

	data, err := marshalDLQ(dlq)
	if err == nil {
		dlqMsg := &queue.Message{
			ID:            uuid.NewString(),
			CorrelationID: msg.CorrelationID,
			Payload:       data,
			Timestamp:     time.Now().UTC(),
		}
		if _, err := w.queue.Publish(ctx, dlqQueue, dlqMsg, queue.PublishOptions{}); err != nil {
			logger.L().Error("failed to publish to DLQ", "worker_id", w.id, "correlation_id", msg.CorrelationID, "error", err)
		}
	}

	return nil
}

func (w *Worker) writeState(ctx context.Context, cid string, state envelope.RequestState) {
	if err := w.store.Set(ctx, envelope.RequestStateKey(cid), state, w.stateTTL); err != nil {
		logger.L().Error("failed to write request state", "worker_id", w.id, "correlation_id", cid, "error", err)
	}
}

func toMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func metadataMap(m envelope.Metadata) map[string]interface{} {
	return map[string]interface{}{
		"priority":      m.Priority,
		"timeout":       m.Timeout,
		"retry_count":   m.RetryCount,
		"endpoint":      m.Endpoint,
		"method":        m.Method,
		"session_id":    m.SessionID,
		"partition_key": m.PartitionKey,
		"type":          m.Type,
	}
}

// Healthy reports whether the worker's queue connection is usable; the state
// store is not probed.
func (w *Worker) Healthy(ctx context.Context) bool {
	return w.queue.Healthy(ctx)
}

// Wait blocks until Start has begun consuming, for tests that need to
// observe the worker reach a running state.
func (w *Worker) Wait() {
	<-w.running
}

func marshalDLQ(v map[string]interface{}) ([]byte, error) {
	return json.Marshal(v)
}
