package statestore

import (
	"context"
	"time"

	"github.com/openhqm/openhqm/pkg/resilience"
)

// ResilientStore wraps a Store with circuit breaker and retry support.
// This prevents store failures from cascading and provides automatic recovery.
type ResilientStore struct {
	store    Store
	cb       *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
}

// ResilientConfig configures the resilient store wrapper.
type ResilientConfig struct {
	// Circuit breaker settings
	CircuitBreakerEnabled   bool          `env:"STATESTORE_CB_ENABLED" env-default:"true"`
	CircuitBreakerThreshold int64         `env:"STATESTORE_CB_THRESHOLD" env-default:"5"`
	CircuitBreakerTimeout   time.Duration `env:"STATESTORE_CB_TIMEOUT" env-default:"30s"`

	// Retry settings
	RetryEnabled     bool          `env:"STATESTORE_RETRY_ENABLED" env-default:"true"`
	RetryMaxAttempts int           `env:"STATESTORE_RETRY_MAX" env-default:"2"`
	RetryBackoff     time.Duration `env:"STATESTORE_RETRY_BACKOFF" env-default:"50ms"`
}

// NewResilientStore wraps a store with resilience features.
func NewResilientStore(store Store, cfg ResilientConfig) *ResilientStore {
	rs := &ResilientStore{
		store: store,
	}

	if cfg.CircuitBreakerEnabled {
		rs.cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "statestore",
			FailureThreshold: cfg.CircuitBreakerThreshold,
			SuccessThreshold: 2,
			Timeout:          cfg.CircuitBreakerTimeout,
		})
	}

	if cfg.RetryEnabled {
		rs.retryCfg = resilience.RetryConfig{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryBackoff,
			MaxBackoff:     time.Second,
			Multiplier:     2.0,
		}
	}

	return rs
}

func (rs *ResilientStore) Get(ctx context.Context, key string, dest interface{}) error {
	return rs.execute(ctx, func(ctx context.Context) error {
		return rs.store.Get(ctx, key, dest)
	})
}

func (rs *ResilientStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return rs.execute(ctx, func(ctx context.Context) error {
		return rs.store.Set(ctx, key, value, ttl)
	})
}

func (rs *ResilientStore) Delete(ctx context.Context, key string) error {
	return rs.execute(ctx, func(ctx context.Context) error {
		return rs.store.Delete(ctx, key)
	})
}

func (rs *ResilientStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	var result int64
	err := rs.execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = rs.store.Incr(ctx, key, delta)
		return err
	})
	return result, err
}

func (rs *ResilientStore) Close() error {
	return rs.store.Close()
}

func (rs *ResilientStore) execute(ctx context.Context, fn resilience.Executor) error {
	operation := fn

	// Wrap with circuit breaker if enabled
	if rs.cb != nil {
		cbFn := operation
		operation = func(ctx context.Context) error {
			return rs.cb.Execute(ctx, cbFn)
		}
	}

	// Wrap with retry if enabled
	if rs.retryCfg.MaxAttempts > 0 {
		return resilience.Retry(ctx, rs.retryCfg, operation)
	}

	return operation(ctx)
}

// Unwrap returns the underlying store.
func (rs *ResilientStore) Unwrap() Store {
	return rs.store
}

// CircuitBreakerState returns the current circuit breaker state.
func (rs *ResilientStore) CircuitBreakerState() resilience.State {
	if rs.cb == nil {
		return ""
	}
	return rs.cb.State()
}
