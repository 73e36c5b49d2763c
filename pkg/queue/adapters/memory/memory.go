// Package memory provides an in-process queue driver backed by buffered
// Go channels, one per queue name. It has no delivery guarantees beyond the
// process boundary and exists for tests, local development, and the
// development_mode sample processor path.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openhqm/openhqm/pkg/queue"
)

func init() {
	queue.Register(queue.DriverMemory, func(cfg map[string]string) (queue.Queue, error) {
		bufSize := 1000
		if v, ok := cfg["buffer_size"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				bufSize = n
			}
		}
		return New(Config{BufferSize: bufSize}), nil
	})
}

// Config configures the memory driver.
type Config struct {
	// BufferSize is the channel capacity per queue. Publish blocks once full.
	BufferSize int `env:"MEMORY_BUFFER_SIZE" env-default:"1000"`
}

type Broker struct {
	cfg Config

	mu     sync.Mutex
	queues map[string]chan *queue.Message
	closed bool
}

// New creates an in-memory queue broker.
func New(cfg Config) *Broker {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	return &Broker{
		cfg:    cfg,
		queues: make(map[string]chan *queue.Message),
	}
}

func (b *Broker) Connect(ctx context.Context) error    { return nil }
func (b *Broker) Disconnect(ctx context.Context) error { return b.Close() }

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, ch := range b.queues {
		close(ch)
	}
	b.queues = make(map[string]chan *queue.Message)
	return nil
}

func (b *Broker) Healthy(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

func (b *Broker) channel(name string) chan *queue.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.queues[name]
	if !ok {
		ch = make(chan *queue.Message, b.cfg.BufferSize)
		b.queues[name] = ch
	}
	return ch
}

func (b *Broker) Publish(ctx context.Context, queueName string, msg *queue.Message, opts queue.PublishOptions) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.Priority = opts.Priority
	if opts.Attributes != nil {
		msg.Attributes = opts.Attributes
	}
	msg.DelaySeconds = opts.DelaySeconds

	ch := b.channel(queueName)

	publish := func() {
		if opts.DelaySeconds > 0 {
			time.Sleep(time.Duration(opts.DelaySeconds) * time.Second)
		}
		select {
		case ch <- msg:
		case <-ctx.Done():
		}
	}

	if opts.DelaySeconds > 0 {
		go publish()
	} else {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return msg.ID, nil
}

func (b *Broker) Consume(ctx context.Context, queueName string, group string, handler queue.MessageHandler, opts queue.ConsumeOptions) error {
	ch := b.channel(queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			msg.Metadata.DeliveryCount++
			if err := handler(ctx, msg); err != nil {
				// No native DLQ: the worker is responsible for routing
				// rejected messages to the configured DLQ queue name.
				continue
			}
		}
	}
}

func (b *Broker) Acknowledge(ctx context.Context, msg *queue.Message) error {
	return nil
}

// Reject is a no-op: for this driver, message-level retry and DLQ routing
// are handled explicitly by the worker republishing to a named queue, since
// the in-memory transport carries no notion of "the queue this came from"
// on the message itself.
func (b *Broker) Reject(ctx context.Context, msg *queue.Message, requeue bool, reason string) error {
	return nil
}

func (b *Broker) GetQueueDepth(ctx context.Context, queueName string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.queues[queueName]
	if !ok {
		return 0, nil
	}
	return int64(len(ch)), nil
}
