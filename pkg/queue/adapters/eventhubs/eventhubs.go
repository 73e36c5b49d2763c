// Package eventhubs implements the queue driver over Azure Event Hubs.
// Partitioning is native. No checkpoint store is used: every Consume call
// reads each partition from its earliest retained event.
package eventhubs

import (
	"context"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azeventhubs"
	"github.com/google/uuid"
	"github.com/openhqm/openhqm/pkg/queue"
)

func init() {
	queue.Register(queue.DriverEventHubs, func(cfg map[string]string) (queue.Queue, error) {
		return New(Config{
			ConnectionString: cfg["connection_string"],
			EventHubName:     cfg["event_hub_name"],
		})
	})
}

// Config configures the Event Hubs driver.
type Config struct {
	ConnectionString string `env:"EVENTHUBS_CONNECTION_STRING"`
	EventHubName     string `env:"EVENTHUBS_NAME"`
}

// Broker is the Event Hubs queue.Queue implementation.
type Broker struct {
	cfg      Config
	producer *azeventhubs.ProducerClient
	consumer *azeventhubs.ConsumerClient
}

// New dials Event Hubs using a connection string.
func New(cfg Config) (*Broker, error) {
	producer, err := azeventhubs.NewProducerClientFromConnectionString(cfg.ConnectionString, cfg.EventHubName, nil)
	if err != nil {
		return nil, queue.ErrConnectionFailed(err)
	}
	return &Broker{cfg: cfg, producer: producer}, nil
}

func (b *Broker) Connect(ctx context.Context) error { return nil }

func (b *Broker) Disconnect(ctx context.Context) error {
	if b.consumer != nil {
		_ = b.consumer.Close(ctx)
	}
	return b.producer.Close(ctx)
}

func (b *Broker) Healthy(ctx context.Context) bool { return b.producer != nil }

func (b *Broker) Publish(ctx context.Context, queueName string, msg *queue.Message, opts queue.PublishOptions) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	batch, err := b.producer.NewEventDataBatch(ctx, nil)
	if err != nil {
		return "", queue.ErrTransient(err)
	}

	event := &azeventhubs.EventData{
		Body: msg.Payload,
		Properties: map[string]any{
			"message_id":     msg.ID,
			"correlation_id": msg.CorrelationID,
			"priority":       strconv.Itoa(opts.Priority),
		},
	}
	if key := msg.Attributes["partition_key"]; key != "" {
		event.PartitionKey = &key
	}
	for k, v := range opts.Attributes {
		event.Properties["attr_"+k] = v
	}

	if err := batch.AddEventData(event, nil); err != nil {
		return "", queue.ErrFatal("event too large for batch", err)
	}

	if err := b.producer.SendEventDataBatch(ctx, batch, nil); err != nil {
		return "", queue.ErrTransient(err)
	}

	return msg.ID, nil
}

func (b *Broker) Consume(ctx context.Context, queueName string, group string, handler queue.MessageHandler, opts queue.ConsumeOptions) error {
	if group == "" {
		group = azeventhubs.DefaultConsumerGroup
	}

	consumer, err := azeventhubs.NewConsumerClientFromConnectionString(b.cfg.ConnectionString, b.cfg.EventHubName, group, nil)
	if err != nil {
		return queue.ErrConnectionFailed(err)
	}
	b.consumer = consumer
	defer consumer.Close(ctx)

	props, err := consumer.GetEventHubProperties(ctx, nil)
	if err != nil {
		return queue.ErrConnectionFailed(err)
	}

	for _, partitionID := range props.PartitionIDs {
		partitionClient, err := consumer.NewPartitionClient(partitionID, &azeventhubs.PartitionClientOptions{
			StartPosition: azeventhubs.StartPosition{Earliest: toPtr(true)},
		})
		if err != nil {
			return queue.ErrConnectionFailed(err)
		}
		go b.consumePartition(ctx, partitionClient, handler, opts)
	}

	<-ctx.Done()
	return nil
}

func (b *Broker) consumePartition(ctx context.Context, pc *azeventhubs.PartitionClient, handler queue.MessageHandler, opts queue.ConsumeOptions) {
	defer pc.Close(ctx)

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	for ctx.Err() == nil {
		events, err := pc.ReceiveEvents(ctx, batchSize, nil)
		if err != nil {
			continue
		}
		for _, event := range events {
			msg := decodeEvent(event)
			_ = handler(ctx, msg)
			// The handler's result is ignored and no checkpoint is written:
			// the worker owns retry/DLQ routing, and a restarted consumer
			// starts again from the earliest event of each partition.
		}
	}
}

func decodeEvent(event *azeventhubs.ReceivedEventData) *queue.Message {
	msg := &queue.Message{
		Payload:    event.Body,
		Attributes: make(map[string]string),
	}
	for k, v := range event.Properties {
		s, _ := v.(string)
		switch k {
		case "message_id":
			msg.ID = s
		case "correlation_id":
			msg.CorrelationID = s
		case "priority":
			msg.Priority, _ = strconv.Atoi(s)
		default:
			msg.Attributes[k] = s
		}
	}
	return msg
}

func (b *Broker) Acknowledge(ctx context.Context, msg *queue.Message) error { return nil }

func (b *Broker) Reject(ctx context.Context, msg *queue.Message, requeue bool, reason string) error {
	return nil
}

func (b *Broker) GetQueueDepth(ctx context.Context, queueName string) (int64, error) {
	// Event Hubs exposes per-partition sequence numbers, not a single
	// backlog count; an accurate depth needs last-enqueued-sequence minus
	// last-checkpointed-sequence summed per partition, which this driver
	// does not track. Documented limitation per the driver table.
	return 0, nil
}

func toPtr[T any](v T) *T { return &v }
