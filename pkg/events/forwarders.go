package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/makemykankotri/kankotri/pkg/observability"
)

const forwardTimeout = 5 * time.Second

// RedisStreamForwarder appends every bus event to a Redis stream
type RedisStreamForwarder struct {
	client redis.Cmdable
	stream string
	maxLen int64
	logger observability.Logger
}

// NewRedisStreamForwarder creates a forwarder writing to stream
func NewRedisStreamForwarder(client redis.Cmdable, stream string, maxLen int64, logger observability.Logger) *RedisStreamForwarder {
	return &RedisStreamForwarder{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// Attach subscribes the forwarder to all events on bus
func (f *RedisStreamForwarder) Attach(bus *Bus) Subscription {
	return bus.On(Wildcard, f.Forward)
}

// Forward writes a single event to the stream
func (f *RedisStreamForwarder) Forward(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event payload")
	}

	ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: f.stream,
		Values: map[string]interface{}{
			"id":        event.ID,
			"event":     event.Name,
			"payload":   string(payload),
			"timestamp": event.Timestamp.Format(time.RFC3339Nano),
		},
	}
	if f.maxLen > 0 {
		args.MaxLen = f.maxLen
		args.Approx = true
	}

	if err := f.client.XAdd(ctx, args).Err(); err != nil {
		return errors.Wrapf(err, "failed to add event to stream %s", f.stream)
	}

	f.logger.Debug("Forwarded event to redis stream", map[string]interface{}{
		"event":  event.Name,
		"stream": f.stream,
	})
	return nil
}

// SQSSender is the subset of the SQS client used for forwarding
type SQSSender interface {
	SendMessage(ctx context.Context, input *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSForwarder sends every bus event to an SQS queue
type SQSForwarder struct {
	client   SQSSender
	queueURL string
	logger   observability.Logger
}

// NewSQSForwarder creates a forwarder sending to queueURL
func NewSQSForwarder(client SQSSender, queueURL string, logger observability.Logger) *SQSForwarder {
	return &SQSForwarder{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Attach subscribes the forwarder to all events on bus
func (f *SQSForwarder) Attach(bus *Bus) Subscription {
	return bus.On(Wildcard, f.Forward)
}

// Forward sends a single event as a JSON message body
func (f *SQSForwarder) Forward(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()

	_, err = f.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(f.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Name),
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to send event to SQS")
	}

	f.logger.Debug("Forwarded event to SQS", map[string]interface{}{"event": event.Name})
	return nil
}
