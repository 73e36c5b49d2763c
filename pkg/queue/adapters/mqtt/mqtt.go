// Package mqtt implements the queue driver over MQTT (QoS 1) using
// eclipse/paho.mqtt.golang. MQTT has no concept of queue depth or
// partitioning; queueName maps directly onto a topic.
package mqtt

import (
	"context"
	"strconv"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/openhqm/openhqm/pkg/queue"
)

func init() {
	queue.Register(queue.DriverMQTT, func(cfg map[string]string) (queue.Queue, error) {
		return New(Config{BrokerURL: cfg["broker_url"], ClientID: cfg["client_id"]})
	})
}

// Config configures the MQTT driver.
type Config struct {
	BrokerURL string `env:"MQTT_BROKER_URL"`
	ClientID  string `env:"MQTT_CLIENT_ID" env-default:"openhqm"`
}

const qos1 = byte(1)

// Broker is the MQTT queue.Queue implementation.
type Broker struct {
	client paho.Client
}

// New configures a paho client and connects to the broker.
func New(cfg Config) (*Broker, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, queue.ErrConnectionFailed(token.Error())
	}

	return &Broker{client: client}, nil
}

func (b *Broker) Connect(ctx context.Context) error { return nil }

func (b *Broker) Disconnect(ctx context.Context) error {
	b.client.Disconnect(250)
	return nil
}

func (b *Broker) Healthy(ctx context.Context) bool { return b.client.IsConnected() }

func (b *Broker) Publish(ctx context.Context, queueName string, msg *queue.Message, opts queue.PublishOptions) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	if opts.DelaySeconds > 0 {
		time.Sleep(time.Duration(opts.DelaySeconds) * time.Second)
	}

	envelope := encodeEnvelope(msg, opts)
	token := b.client.Publish(queueName, qos1, false, envelope)
	if token.Wait() && token.Error() != nil {
		return "", queue.ErrTransient(token.Error())
	}

	return msg.ID, nil
}

func (b *Broker) Consume(ctx context.Context, queueName string, group string, handler queue.MessageHandler, opts queue.ConsumeOptions) error {
	token := b.client.Subscribe(queueName, qos1, func(client paho.Client, m paho.Message) {
		msg := decodeEnvelope(m.Payload())
		if err := handler(ctx, msg); err == nil {
			m.Ack()
		}
		// QoS 1 without an Ack still redelivers on reconnect, which is the
		// closest MQTT gets to a nack/requeue.
	})
	if token.Wait() && token.Error() != nil {
		return queue.ErrConnectionFailed(token.Error())
	}

	<-ctx.Done()
	b.client.Unsubscribe(queueName)
	return nil
}

func (b *Broker) Acknowledge(ctx context.Context, msg *queue.Message) error { return nil }

func (b *Broker) Reject(ctx context.Context, msg *queue.Message, requeue bool, reason string) error {
	return nil
}

func (b *Broker) GetQueueDepth(ctx context.Context, queueName string) (int64, error) {
	// MQTT is a pure pub/sub transport with no broker-side backlog query in
	// the client API; documented as the driver's depth limitation.
	return 0, nil
}

// encodeEnvelope flattens a Message into a small delimiter-separated wire
// format (ID, correlation id and priority separated by \x1f, then \x1e, then
// the payload) so they survive a single MQTT publish without pulling in a
// general-purpose codec for one driver. Attributes are not carried.
func encodeEnvelope(msg *queue.Message, opts queue.PublishOptions) []byte {
	header := msg.ID + "\x1f" + msg.CorrelationID + "\x1f" + strconv.Itoa(opts.Priority) + "\x1e"
	return append([]byte(header), msg.Payload...)
}

func decodeEnvelope(raw []byte) *queue.Message {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\x1e' {
			header := string(raw[:i])
			payload := raw[i+1:]
			parts := splitHeader(header)
			msg := &queue.Message{Payload: payload}
			if len(parts) > 0 {
				msg.ID = parts[0]
			}
			if len(parts) > 1 {
				msg.CorrelationID = parts[1]
			}
			if len(parts) > 2 {
				msg.Priority, _ = strconv.Atoi(parts[2])
			}
			return msg
		}
	}
	return &queue.Message{Payload: raw}
}

func splitHeader(header string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(header); i++ {
		if header[i] == '\x1f' {
			parts = append(parts, header[start:i])
			start = i + 1
		}
	}
	parts = append(parts, header[start:])
	return parts
}
