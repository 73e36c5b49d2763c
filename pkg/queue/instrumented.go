package queue

import (
	"context"

	"github.com/openhqm/openhqm/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedQueue wraps a Queue with logging and tracing.
type InstrumentedQueue struct {
	next   Queue
	tracer trace.Tracer
}

// NewInstrumentedQueue creates an InstrumentedQueue wrapping next.
func NewInstrumentedQueue(next Queue) *InstrumentedQueue {
	return &InstrumentedQueue{
		next:   next,
		tracer: otel.Tracer("pkg/queue"),
	}
}

func (q *InstrumentedQueue) Connect(ctx context.Context) error {
	logger.L().InfoContext(ctx, "connecting to queue broker")
	return q.next.Connect(ctx)
}

func (q *InstrumentedQueue) Disconnect(ctx context.Context) error {
	logger.L().InfoContext(ctx, "disconnecting from queue broker")
	return q.next.Disconnect(ctx)
}

func (q *InstrumentedQueue) Publish(ctx context.Context, queueName string, msg *Message, opts PublishOptions) (string, error) {
	ctx, span := q.tracer.Start(ctx, "queue.Publish", trace.WithAttributes(
		attribute.String("queue.name", queueName),
		attribute.String("queue.correlation_id", msg.CorrelationID),
	))
	defer span.End()

	logger.L().InfoContext(ctx, "publishing message", "queue", queueName, "correlation_id", msg.CorrelationID)

	id, err := q.next.Publish(ctx, queueName, msg, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "failed to publish message", "queue", queueName, "error", err)
		return id, err
	}

	span.SetStatus(codes.Ok, "message published")
	return id, nil
}

func (q *InstrumentedQueue) Consume(ctx context.Context, queueName string, group string, handler MessageHandler, opts ConsumeOptions) error {
	logger.L().InfoContext(ctx, "starting consume loop", "queue", queueName, "group", group)

	instrumented := func(ctx context.Context, msg *Message) error {
		ctx, span := q.tracer.Start(ctx, "queue.HandleMessage", trace.WithAttributes(
			attribute.String("queue.name", queueName),
			attribute.String("queue.group", group),
			attribute.String("queue.correlation_id", msg.CorrelationID),
		))
		defer span.End()

		err := handler(ctx, msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		span.SetStatus(codes.Ok, "message handled")
		return nil
	}

	return q.next.Consume(ctx, queueName, group, instrumented, opts)
}

func (q *InstrumentedQueue) Acknowledge(ctx context.Context, msg *Message) error {
	err := q.next.Acknowledge(ctx, msg)
	if err != nil {
		logger.L().ErrorContext(ctx, "failed to acknowledge message", "correlation_id", msg.CorrelationID, "error", err)
	}
	return err
}

func (q *InstrumentedQueue) Reject(ctx context.Context, msg *Message, requeue bool, reason string) error {
	logger.L().WarnContext(ctx, "rejecting message", "correlation_id", msg.CorrelationID, "requeue", requeue, "reason", reason)
	return q.next.Reject(ctx, msg, requeue, reason)
}

func (q *InstrumentedQueue) GetQueueDepth(ctx context.Context, queueName string) (int64, error) {
	return q.next.GetQueueDepth(ctx, queueName)
}

func (q *InstrumentedQueue) Healthy(ctx context.Context) bool {
	return q.next.Healthy(ctx)
}
