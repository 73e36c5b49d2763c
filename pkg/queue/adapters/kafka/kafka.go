// Package kafka implements the queue driver over Kafka using IBM/sarama.
// Partitioning is native (key-based hashing); offsets are committed through
// a consumer group after the handler returns, giving per-partition ordering
// and at-least-once delivery.
package kafka

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/openhqm/openhqm/pkg/queue"
)

func init() {
	queue.Register(queue.DriverKafka, func(cfg map[string]string) (queue.Queue, error) {
		brokers := strings.Split(cfg["brokers"], ",")
		return New(Config{
			Brokers:       brokers,
			ConsumerGroup: cfg["consumer_group"],
		})
	})
}

// Config configures the Kafka driver.
type Config struct {
	Brokers       []string `env:"KAFKA_BROKERS" env-separator:","`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" env-default:"openhqm-workers"`
}

// Broker is the Kafka-backed queue.Queue implementation.
type Broker struct {
	cfg    Config
	client sarama.Client

	mu        sync.Mutex
	producer  sarama.SyncProducer
	consumers map[string]sarama.ConsumerGroup
}

// New dials Kafka and returns a ready Broker.
func New(cfg Config) (*Broker, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Version = sarama.V2_8_0_0

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, queue.ErrConnectionFailed(err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		return nil, queue.ErrConnectionFailed(err)
	}

	return &Broker{
		cfg:       cfg,
		client:    client,
		producer:  producer,
		consumers: make(map[string]sarama.ConsumerGroup),
	}, nil
}

func (b *Broker) Connect(ctx context.Context) error { return nil }

func (b *Broker) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.consumers {
		_ = c.Close()
	}
	if err := b.producer.Close(); err != nil {
		return err
	}
	return b.client.Close()
}

func (b *Broker) Healthy(ctx context.Context) bool {
	brokers := b.client.Brokers()
	for _, br := range brokers {
		if connected, _ := br.Connected(); connected {
			return true
		}
	}
	return false
}

func (b *Broker) Publish(ctx context.Context, queueName string, msg *queue.Message, opts queue.PublishOptions) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic:     queueName,
		Value:     sarama.ByteEncoder(msg.Payload),
		Timestamp: msg.Timestamp,
		Headers: []sarama.RecordHeader{
			{Key: []byte("message-id"), Value: []byte(msg.ID)},
			{Key: []byte("correlation-id"), Value: []byte(msg.CorrelationID)},
			{Key: []byte("priority"), Value: []byte(strconv.Itoa(opts.Priority))},
		},
	}
	if key := msg.Attributes["partition_key"]; key != "" {
		kafkaMsg.Key = sarama.StringEncoder(key)
	}
	for k, v := range opts.Attributes {
		kafkaMsg.Headers = append(kafkaMsg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := b.producer.SendMessage(kafkaMsg)
	if err != nil {
		return "", queue.ErrTransient(err)
	}

	msg.Metadata.Partition = partition
	msg.Metadata.Offset = offset
	return msg.ID, nil
}

func (b *Broker) Consume(ctx context.Context, queueName string, group string, handler queue.MessageHandler, opts queue.ConsumeOptions) error {
	if group == "" {
		group = b.cfg.ConsumerGroup
	}

	cg, err := sarama.NewConsumerGroupFromClient(group, b.client)
	if err != nil {
		return queue.ErrConnectionFailed(err)
	}

	b.mu.Lock()
	b.consumers[queueName] = cg
	b.mu.Unlock()

	handlerImpl := &consumerGroupHandler{handler: handler}

	for ctx.Err() == nil {
		if err := cg.Consume(ctx, []string{queueName}, handlerImpl); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return queue.ErrTransient(err)
		}
	}
	return ctx.Err()
}

func (b *Broker) Acknowledge(ctx context.Context, msg *queue.Message) error {
	// Offset commit happens in consumerGroupHandler.ConsumeClaim after the
	// handler returns; there is nothing further to do here.
	return nil
}

func (b *Broker) Reject(ctx context.Context, msg *queue.Message, requeue bool, reason string) error {
	// Kafka has no native negative-ack; there is nothing to do here. The
	// offset is marked in ConsumeClaim only when the handler returns nil,
	// so a message whose handler failed is redelivered (at-least-once).
	return nil
}

func (b *Broker) GetQueueDepth(ctx context.Context, queueName string) (int64, error) {
	partitions, err := b.client.Partitions(queueName)
	if err != nil {
		return 0, queue.ErrTransient(err)
	}

	var total int64
	for _, p := range partitions {
		newest, err := b.client.GetOffset(queueName, p, sarama.OffsetNewest)
		if err != nil {
			continue
		}
		oldest, err := b.client.GetOffset(queueName, p, sarama.OffsetOldest)
		if err != nil {
			continue
		}
		total += newest - oldest
	}
	return total, nil
}

type consumerGroupHandler struct {
	handler queue.MessageHandler
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case kafkaMsg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			msg := &queue.Message{
				Payload:   kafkaMsg.Value,
				Timestamp: kafkaMsg.Timestamp,
				Metadata: queue.MessageMetadata{
					Partition: kafkaMsg.Partition,
					Offset:    kafkaMsg.Offset,
					Raw:       kafkaMsg,
				},
				Attributes: make(map[string]string),
			}
			for _, header := range kafkaMsg.Headers {
				key := string(header.Key)
				switch key {
				case "message-id":
					msg.ID = string(header.Value)
				case "correlation-id":
					msg.CorrelationID = string(header.Value)
				default:
					msg.Attributes[key] = string(header.Value)
				}
			}

			if err := h.handler(sess.Context(), msg); err == nil {
				sess.MarkMessage(kafkaMsg, "")
			}
			// On handler error the offset is not marked; the next rebalance
			// or process restart redelivers it (at-least-once).
		case <-sess.Context().Done():
			return nil
		}
	}
}
