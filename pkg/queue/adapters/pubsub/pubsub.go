// Package pubsub implements the queue driver over GCP Pub/Sub. There is no
// native partitioning or ordering guarantee unless the caller sets an
// ordering key; delivery is ack/nack per message.
package pubsub

import (
	"context"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/openhqm/openhqm/pkg/queue"
)

func init() {
	queue.Register(queue.DriverPubSub, func(cfg map[string]string) (queue.Queue, error) {
		return New(context.Background(), Config{ProjectID: cfg["project_id"]})
	})
}

// Config configures the Pub/Sub driver.
type Config struct {
	ProjectID string `env:"PUBSUB_PROJECT_ID"`
}

// Broker is the Pub/Sub queue.Queue implementation. queueName is treated as
// the topic id for publish and the subscription id for consume.
type Broker struct {
	client *pubsub.Client
}

// New builds a Pub/Sub client for the given project.
func New(ctx context.Context, cfg Config) (*Broker, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, queue.ErrConnectionFailed(err)
	}
	return &Broker{client: client}, nil
}

func (b *Broker) Connect(ctx context.Context) error    { return nil }
func (b *Broker) Disconnect(ctx context.Context) error { return b.client.Close() }
func (b *Broker) Healthy(ctx context.Context) bool     { return b.client != nil }

func (b *Broker) Publish(ctx context.Context, queueName string, msg *queue.Message, opts queue.PublishOptions) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	attrs := map[string]string{
		"message_id":     msg.ID,
		"correlation_id": msg.CorrelationID,
		"priority":       strconv.Itoa(opts.Priority),
	}
	for k, v := range opts.Attributes {
		attrs["attr_"+k] = v
	}

	publisher := b.client.Publisher(queueName)
	defer publisher.Stop()

	result := publisher.Publish(ctx, &pubsub.Message{
		Data:       msg.Payload,
		Attributes: attrs,
	})

	serverID, err := result.Get(ctx)
	if err != nil {
		return "", queue.ErrTransient(err)
	}
	return serverID, nil
}

func (b *Broker) Consume(ctx context.Context, queueName string, group string, handler queue.MessageHandler, opts queue.ConsumeOptions) error {
	subscriber := b.client.Subscriber(queueName)
	if opts.BatchSize > 0 {
		subscriber.ReceiveSettings.MaxOutstandingMessages = opts.BatchSize
	}

	return subscriber.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		msg := decodeMessage(m)
		if err := handler(ctx, msg); err == nil {
			m.Ack()
		} else {
			m.Nack()
		}
	})
}

func decodeMessage(m *pubsub.Message) *queue.Message {
	msg := &queue.Message{
		Payload:    m.Data,
		Attributes: make(map[string]string),
		Metadata:   queue.MessageMetadata{ReceiptHandle: m.ID, Raw: m},
	}
	for k, v := range m.Attributes {
		switch k {
		case "message_id":
			msg.ID = v
		case "correlation_id":
			msg.CorrelationID = v
		case "priority":
			msg.Priority, _ = strconv.Atoi(v)
		default:
			msg.Attributes[k] = v
		}
	}
	return msg
}

func (b *Broker) Acknowledge(ctx context.Context, msg *queue.Message) error {
	if m, ok := msg.Metadata.Raw.(*pubsub.Message); ok {
		m.Ack()
	}
	return nil
}

func (b *Broker) Reject(ctx context.Context, msg *queue.Message, requeue bool, reason string) error {
	if m, ok := msg.Metadata.Raw.(*pubsub.Message); ok {
		m.Nack()
	}
	return nil
}

func (b *Broker) GetQueueDepth(ctx context.Context, queueName string) (int64, error) {
	// Pub/Sub only exposes backlog via Cloud Monitoring metrics, not a
	// direct API call on the client library; returning 0 here is the
	// documented limitation for this driver.
	return 0, nil
}
