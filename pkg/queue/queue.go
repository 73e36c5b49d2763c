/*
Package queue provides a unified abstraction over the six message-queue
backends the router can be deployed against (Redis Streams, Kafka, SQS,
Azure Event Hubs, GCP Pub/Sub, MQTT).

# Architecture

The package follows the adapter pattern used across this module:
  - The core contract is defined here, with zero driver-specific dependencies.
  - Each driver lives in its own sub-package (pkg/queue/adapters/{driver}) and
    pulls in only the SDK it needs.
  - ResilientQueue and InstrumentedQueue wrap any Queue implementation with
    circuit breaking/retry and logging/tracing respectively.

# Usage

	import (
	    "github.com/openhqm/openhqm/pkg/queue"
	    "github.com/openhqm/openhqm/pkg/queue/adapters/memory"
	)

	q := memory.New(memory.Config{})
	id, err := q.Publish(ctx, "requests", &queue.Message{Payload: body}, queue.PublishOptions{})
	err = q.Consume(ctx, "requests", "workers", func(ctx context.Context, msg *queue.Message) error {
	    return process(msg)
	}, queue.ConsumeOptions{})
*/
package queue

import (
	"context"
	"time"
)

// Message is the unit of work moved through a queue. It carries everything
// a driver needs to round-trip a payload plus the bookkeeping the worker and
// processor attach to it (retry_count, correlation id, partition/session key).
type Message struct {
	// ID uniquely identifies the message. Adapters generate one if empty.
	ID string `json:"id"`

	// CorrelationID is the request's primary key, carried end to end.
	CorrelationID string `json:"correlation_id"`

	// Payload is the message body, typically the JSON-encoded full message
	// (payload + metadata + headers) the processor operates on.
	Payload []byte `json:"payload"`

	// Priority is 0-9; higher-priority messages are not reordered by every
	// driver (only a genuine priority queue would do that) but is always
	// carried through so the processor/worker can read it back out.
	Priority int `json:"priority"`

	// Attributes are free-form string metadata (session id, partition key,
	// endpoint override, retry_count, ...).
	Attributes map[string]string `json:"attributes,omitempty"`

	// DelaySeconds postpones visibility to consumers where the driver
	// supports it (SQS, Azure Service Bus-style delay). Drivers that cannot
	// honor a delay must document the limitation and deliver immediately.
	DelaySeconds int64 `json:"delay_seconds,omitempty"`

	// Timestamp is when the message was published.
	Timestamp time.Time `json:"timestamp"`

	// Metadata carries driver-specific delivery bookkeeping populated by the
	// consumer (partition/offset, receipt handle, delivery count). Treated
	// as read-only by callers.
	Metadata MessageMetadata `json:"metadata,omitempty"`
}

// MessageMetadata carries driver-specific delivery bookkeeping.
type MessageMetadata struct {
	Partition     int32       `json:"partition,omitempty"`
	Offset        int64       `json:"offset,omitempty"`
	DeliveryCount int         `json:"delivery_count,omitempty"`
	ReceiptHandle string      `json:"receipt_handle,omitempty"`
	Raw           interface{} `json:"-"`
}

// MessageHandler processes a single message. Returning nil acknowledges the
// message; returning an error triggers the driver's nack/requeue behavior.
// Each driver's Consume loop acts on the handler's return value itself;
// pkg/worker does not call Acknowledge/Reject, and handlers need not either.
type MessageHandler func(ctx context.Context, msg *Message) error

// PublishOptions configures a single publish call.
type PublishOptions struct {
	Priority     int
	Attributes   map[string]string
	DelaySeconds int64
}

// ConsumeOptions configures a consume loop.
type ConsumeOptions struct {
	BatchSize       int
	WaitTime        time.Duration
	VisibilityTimeout time.Duration
}

// Queue is the contract every driver implements. It is intentionally small:
// connect/disconnect lifecycle, publish, a blocking consume loop, explicit
// ack/reject for drivers where the consume loop needs them decoupled from
// the handler callback, and a best-effort depth probe.
type Queue interface {
	// Connect establishes the underlying connection. Idempotent.
	Connect(ctx context.Context) error

	// Disconnect releases the underlying connection. Idempotent.
	Disconnect(ctx context.Context) error

	// Publish enqueues a message onto the named queue/topic and returns its
	// assigned message id. Fails with a transient AppError on network
	// issues, a fatal one on misconfiguration (see errors.go).
	Publish(ctx context.Context, queueName string, msg *Message, opts PublishOptions) (string, error)

	// Consume blocks, delivering messages on queueName to handler one at a
	// time until ctx is canceled or an unrecoverable error occurs. The
	// driver acknowledges on nil return and rejects (with or without
	// requeue, per driver policy) on error.
	Consume(ctx context.Context, queueName string, group string, handler MessageHandler, opts ConsumeOptions) error

	// Acknowledge confirms successful processing of a message for drivers
	// whose ack model is decoupled from the handler return value.
	Acknowledge(ctx context.Context, msg *Message) error

	// Reject marks a message as not processed. requeue controls whether the
	// broker should redeliver it; reason is carried into driver-specific
	// dead-lettering where supported.
	Reject(ctx context.Context, msg *Message, requeue bool, reason string) error

	// GetQueueDepth returns an approximate backlog size for queueName.
	// Drivers that cannot report depth return 0 (documented per driver).
	GetQueueDepth(ctx context.Context, queueName string) (int64, error)

	// Healthy reports whether the underlying connection is usable.
	Healthy(ctx context.Context) bool
}

// Driver names recognized by pkg/queue's registry (see registry.go). Custom
// drivers registered at runtime are not restricted to this list.
const (
	DriverMemory      = "memory"
	DriverRedisStream = "redis"
	DriverKafka       = "kafka"
	DriverSQS         = "sqs"
	DriverEventHubs   = "azure_eventhubs"
	DriverPubSub      = "gcp_pubsub"
	DriverMQTT        = "mqtt"
	DriverCustom      = "custom"
)

// Config is the driver-agnostic portion of queue configuration. Each driver
// package declares its own Config with the connection fields it needs; this
// one only carries the fields cmd/* needs to pick a driver and a DLQ name.
type Config struct {
	Type         string `env:"TYPE" env-default:"memory"`
	RequestQueue string `env:"REQUEST_QUEUE" env-default:"requests"`
	ResponseQueue string `env:"RESPONSE_QUEUE" env-default:"responses"`
	DLQQueue     string `env:"DLQ_QUEUE" env-default:"requests-dlq"`
	ConsumerGroup string `env:"CONSUMER_GROUP" env-default:"openhqm-workers"`

	// Resilient configures the circuit breaker/retry wrapper cmd/* applies
	// around the constructed driver (see ResilientQueue).
	Resilient ResilientConfig `env-prefix:"RESILIENT_"`
}
