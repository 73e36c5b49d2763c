// Package sqs implements the queue driver over AWS SQS. SQS has no native
// partitioning or ordering (outside FIFO queues) and uses per-message
// receipt handles for acknowledgment.
package sqs

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/openhqm/openhqm/pkg/queue"
)

func init() {
	queue.Register(queue.DriverSQS, func(cfg map[string]string) (queue.Queue, error) {
		return New(context.Background(), Config{Region: cfg["region"]})
	})
}

// Config configures the SQS driver.
type Config struct {
	Region string `env:"SQS_REGION" env-default:"us-east-1"`
}

// Broker is the SQS-backed queue.Queue implementation. queueName is treated
// as the SQS queue URL.
type Broker struct {
	client *sqs.Client
}

// New builds an SQS client using the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*Broker, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, queue.ErrConnectionFailed(err)
	}
	return &Broker{client: sqs.NewFromConfig(awsCfg)}, nil
}

func (b *Broker) Connect(ctx context.Context) error    { return nil }
func (b *Broker) Disconnect(ctx context.Context) error { return nil }
func (b *Broker) Healthy(ctx context.Context) bool     { return true }

func (b *Broker) Publish(ctx context.Context, queueName string, msg *queue.Message, opts queue.PublishOptions) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	attrs := map[string]types.MessageAttributeValue{
		"message_id":     stringAttr(msg.ID),
		"correlation_id": stringAttr(msg.CorrelationID),
		"priority":       stringAttr(strconv.Itoa(opts.Priority)),
	}
	for k, v := range opts.Attributes {
		attrs["attr_"+k] = stringAttr(v)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueName),
		MessageBody:       aws.String(string(msg.Payload)),
		MessageAttributes: attrs,
	}
	if opts.DelaySeconds > 0 {
		input.DelaySeconds = int32(opts.DelaySeconds)
	}

	out, err := b.client.SendMessage(ctx, input)
	if err != nil {
		return "", queue.ErrTransient(err)
	}

	return aws.ToString(out.MessageId), nil
}

func (b *Broker) Consume(ctx context.Context, queueName string, group string, handler queue.MessageHandler, opts queue.ConsumeOptions) error {
	batchSize := int32(opts.BatchSize)
	if batchSize <= 0 {
		batchSize = 10
	}
	waitSeconds := int32(opts.WaitTime.Seconds())
	if waitSeconds <= 0 {
		waitSeconds = 10
	}

	for ctx.Err() == nil {
		out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueName),
			MaxNumberOfMessages: batchSize,
			WaitTimeSeconds:     waitSeconds,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return queue.ErrTransient(err)
		}

		for _, sqsMsg := range out.Messages {
			msg := decodeMessage(sqsMsg)

			if err := handler(ctx, msg); err == nil {
				_, _ = b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
					QueueUrl:      aws.String(queueName),
					ReceiptHandle: sqsMsg.ReceiptHandle,
				})
			}
			// On error, visibility timeout expiry redelivers it.
		}
	}
	return ctx.Err()
}

func decodeMessage(sqsMsg types.Message) *queue.Message {
	msg := &queue.Message{
		Payload:    []byte(aws.ToString(sqsMsg.Body)),
		Attributes: make(map[string]string),
		Metadata:   queue.MessageMetadata{ReceiptHandle: aws.ToString(sqsMsg.ReceiptHandle), Raw: sqsMsg},
	}
	for k, v := range sqsMsg.MessageAttributes {
		value := aws.ToString(v.StringValue)
		switch k {
		case "message_id":
			msg.ID = value
		case "correlation_id":
			msg.CorrelationID = value
		case "priority":
			msg.Priority, _ = strconv.Atoi(value)
		default:
			msg.Attributes[k] = value
		}
	}
	return msg
}

func (b *Broker) Acknowledge(ctx context.Context, msg *queue.Message) error {
	return nil
}

func (b *Broker) Reject(ctx context.Context, msg *queue.Message, requeue bool, reason string) error {
	// Letting the visibility timeout lapse requeues the message; there is
	// no way to force-requeue a receipt handle earlier than that.
	return nil
}

func (b *Broker) GetQueueDepth(ctx context.Context, queueName string) (int64, error) {
	out, err := b.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueName),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, queue.ErrTransient(err)
	}
	n, _ := strconv.ParseInt(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)], 10, 64)
	return n, nil
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}
