// Package redisstreams implements the queue driver over Redis Streams
// (XADD/XREADGROUP/XACK), giving one partition per stream and consumer-group
// based load balancing across workers.
package redisstreams

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/openhqm/openhqm/pkg/queue"
	"github.com/redis/go-redis/v9"
)

func init() {
	queue.Register(queue.DriverRedisStream, func(cfg map[string]string) (queue.Queue, error) {
		db, _ := strconv.Atoi(cfg["db"])
		return New(Config{
			Addr:     cfg["addr"],
			Password: cfg["password"],
			DB:       db,
		}), nil
	})
}

// Config configures the Redis Streams driver.
type Config struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

const payloadField = "payload"

// Broker is the Redis Streams queue.Queue implementation.
type Broker struct {
	client *redis.Client
}

// New creates a Redis Streams broker. The connection is lazy; Connect
// verifies reachability.
func New(cfg Config) *Broker {
	return &Broker{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (b *Broker) Connect(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return queue.ErrConnectionFailed(err)
	}
	return nil
}

func (b *Broker) Disconnect(ctx context.Context) error {
	return b.client.Close()
}

func (b *Broker) Healthy(ctx context.Context) bool {
	return b.client.Ping(ctx).Err() == nil
}

func (b *Broker) Publish(ctx context.Context, queueName string, msg *queue.Message, opts queue.PublishOptions) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	values := map[string]interface{}{
		payloadField:     string(msg.Payload),
		"message_id":     msg.ID,
		"correlation_id": msg.CorrelationID,
		"priority":       opts.Priority,
	}
	for k, v := range opts.Attributes {
		values["attr_"+k] = v
	}

	if opts.DelaySeconds > 0 {
		time.Sleep(time.Duration(opts.DelaySeconds) * time.Second)
	}

	streamID, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: queueName,
		Values: values,
	}).Result()
	if err != nil {
		return "", queue.ErrTransient(err)
	}

	msg.Metadata.Raw = streamID
	return msg.ID, nil
}

func (b *Broker) Consume(ctx context.Context, queueName string, group string, handler queue.MessageHandler, opts queue.ConsumeOptions) error {
	if group == "" {
		group = "openhqm-workers"
	}

	if err := b.client.XGroupCreateMkStream(ctx, queueName, group, "0").Err(); err != nil {
		if !isBusyGroupErr(err) {
			return queue.ErrConnectionFailed(err)
		}
	}

	consumerName := uuid.New().String()
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	wait := opts.WaitTime
	if wait <= 0 {
		wait = 5 * time.Second
	}

	for ctx.Err() == nil {
		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumerName,
			Streams:  []string{queueName, ">"},
			Count:    int64(batchSize),
			Block:    wait,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			return queue.ErrTransient(err)
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				msg := decodeEntry(entry)
				err := handler(ctx, msg)
				if err == nil {
					b.client.XAck(ctx, queueName, group, entry.ID)
				}
				// On error, the message stays pending; a claim sweep
				// (not implemented here) would redeliver it after the
				// consumer group's idle timeout.
			}
		}
	}
	return ctx.Err()
}

func decodeEntry(entry redis.XMessage) *queue.Message {
	msg := &queue.Message{
		Attributes: make(map[string]string),
		Metadata:   queue.MessageMetadata{ReceiptHandle: entry.ID},
	}
	for k, v := range entry.Values {
		s, _ := v.(string)
		switch k {
		case payloadField:
			msg.Payload = []byte(s)
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

func (b *Broker) Acknowledge(ctx context.Context, msg *queue.Message) error {
	return nil
}

func (b *Broker) Reject(ctx context.Context, msg *queue.Message, requeue bool, reason string) error {
	// Leaving the entry unacknowledged is sufficient; it remains in the
	// group's pending entries list for a later claim/redeliver.
	return nil
}

func (b *Broker) GetQueueDepth(ctx context.Context, queueName string) (int64, error) {
	length, err := b.client.XLen(ctx, queueName).Result()
	if err != nil {
		return 0, queue.ErrTransient(err)
	}
	return length, nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}
