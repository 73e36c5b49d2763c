package statestore

import (
	"context"
	"time"

	"github.com/openhqm/openhqm/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStore wraps a Store to add logging and tracing.
type InstrumentedStore struct {
	next   Store
	tracer trace.Tracer
}

// NewInstrumentedStore creates a new instrumented store wrapper.
func NewInstrumentedStore(next Store) *InstrumentedStore {
	return &InstrumentedStore{
		next:   next,
		tracer: otel.Tracer("pkg/statestore"),
	}
}

func (s *InstrumentedStore) Get(ctx context.Context, key string, dest interface{}) error {
	ctx, span := s.tracer.Start(ctx, "statestore.Get", trace.WithAttributes(
		attribute.String("statestore.key", key),
	))
	defer span.End()

	err := s.next.Get(ctx, key, dest)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().DebugContext(ctx, "store miss", "key", key, "error", err)
		return err
	}

	logger.L().DebugContext(ctx, "store hit", "key", key)
	return nil
}

func (s *InstrumentedStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "statestore.Set", trace.WithAttributes(
		attribute.String("statestore.key", key),
		attribute.Int64("statestore.ttl_ms", ttl.Milliseconds()),
	))
	defer span.End()

	logger.L().DebugContext(ctx, "store set", "key", key, "ttl", ttl)

	err := s.next.Set(ctx, key, value, ttl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "store set failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	ctx, span := s.tracer.Start(ctx, "statestore.Delete", trace.WithAttributes(
		attribute.String("statestore.key", key),
	))
	defer span.End()

	logger.L().DebugContext(ctx, "store delete", "key", key)

	err := s.next.Delete(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "store delete failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (s *InstrumentedStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "statestore.Incr", trace.WithAttributes(
		attribute.String("statestore.key", key),
		attribute.Int64("statestore.delta", delta),
	))
	defer span.End()

	val, err := s.next.Incr(ctx, key, delta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "store incr failed", "key", key, "error", err)
		return 0, err
	}

	span.SetAttributes(attribute.Int64("statestore.value", val))
	return val, nil
}

func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}
