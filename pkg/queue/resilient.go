package queue

import (
	"context"
	"time"

	"github.com/openhqm/openhqm/pkg/resilience"
)

// ResilientConfig configures the resilient queue wrapper.
type ResilientConfig struct {
	CircuitBreakerEnabled   bool          `env:"CB_ENABLED" env-default:"true"`
	CircuitBreakerThreshold int64         `env:"CB_THRESHOLD" env-default:"5"`
	CircuitBreakerTimeout   time.Duration `env:"CB_TIMEOUT" env-default:"30s"`

	RetryEnabled     bool          `env:"RETRY_ENABLED" env-default:"true"`
	RetryMaxAttempts int           `env:"RETRY_MAX" env-default:"3"`
	RetryBackoff     time.Duration `env:"RETRY_BACKOFF" env-default:"100ms"`
}

// ResilientQueue wraps a Queue with circuit breaker and retry support on the
// publish/ack/reject/depth path. Consume is long-running by design and is
// passed through unwrapped; retry for message processing itself lives at
// the worker level.
type ResilientQueue struct {
	queue    Queue
	cb       *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
}

// NewResilientQueue wraps q with resilience features.
func NewResilientQueue(q Queue, cfg ResilientConfig) *ResilientQueue {
	rq := &ResilientQueue{queue: q}

	if cfg.CircuitBreakerEnabled {
		rq.cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "queue",
			FailureThreshold: cfg.CircuitBreakerThreshold,
			SuccessThreshold: 2,
			Timeout:          cfg.CircuitBreakerTimeout,
		})
	}

	if cfg.RetryEnabled {
		rq.retryCfg = resilience.RetryConfig{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryBackoff,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
			RetryIf:        IsTransient,
		}
	}

	return rq
}

func (rq *ResilientQueue) Connect(ctx context.Context) error {
	return rq.execute(ctx, rq.queue.Connect)
}

func (rq *ResilientQueue) Disconnect(ctx context.Context) error {
	return rq.queue.Disconnect(ctx)
}

func (rq *ResilientQueue) Publish(ctx context.Context, queueName string, msg *Message, opts PublishOptions) (string, error) {
	var id string
	err := rq.execute(ctx, func(ctx context.Context) error {
		var err error
		id, err = rq.queue.Publish(ctx, queueName, msg, opts)
		return err
	})
	return id, err
}

func (rq *ResilientQueue) Consume(ctx context.Context, queueName string, group string, handler MessageHandler, opts ConsumeOptions) error {
	return rq.queue.Consume(ctx, queueName, group, handler, opts)
}

func (rq *ResilientQueue) Acknowledge(ctx context.Context, msg *Message) error {
	return rq.execute(ctx, func(ctx context.Context) error {
		return rq.queue.Acknowledge(ctx, msg)
	})
}

func (rq *ResilientQueue) Reject(ctx context.Context, msg *Message, requeue bool, reason string) error {
	return rq.execute(ctx, func(ctx context.Context) error {
		return rq.queue.Reject(ctx, msg, requeue, reason)
	})
}

func (rq *ResilientQueue) GetQueueDepth(ctx context.Context, queueName string) (int64, error) {
	var depth int64
	err := rq.execute(ctx, func(ctx context.Context) error {
		var err error
		depth, err = rq.queue.GetQueueDepth(ctx, queueName)
		return err
	})
	return depth, err
}

func (rq *ResilientQueue) Healthy(ctx context.Context) bool {
	return rq.queue.Healthy(ctx)
}

func (rq *ResilientQueue) execute(ctx context.Context, fn resilience.Executor) error {
	operation := fn

	if rq.cb != nil {
		cbFn := operation
		operation = func(ctx context.Context) error {
			return rq.cb.Execute(ctx, cbFn)
		}
	}

	if rq.retryCfg.MaxAttempts > 0 {
		return resilience.Retry(ctx, rq.retryCfg, operation)
	}

	return operation(ctx)
}

// CircuitBreakerState returns the current circuit breaker state, or empty
// string if the breaker is disabled.
func (rq *ResilientQueue) CircuitBreakerState() resilience.State {
	if rq.cb == nil {
		return ""
	}
	return rq.cb.State()
}
