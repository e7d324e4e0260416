package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pcapi/internal/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// Handler processes one decoded envelope. A failed message is retried until
// it succeeds; the partition does not move past it meanwhile. Errors wrapping
// ErrMalformedPayload are not retried.
type Handler func(ctx context.Context, env Envelope) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader     messageReader
	topic      string
	logger     *logger.Logger
	newBackOff func() backoff.BackOff
}

func defaultBackOff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0
	return policy
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, topic: topic, logger: log, newBackOff: defaultBackOff}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	c.logger.LogKafka("CONSUME", c.topic, "consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.LogKafka("CONSUME", c.topic, "consumer stopped")
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message from %s: %v", c.topic, err))
			continue
		}

		var env Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			// poison message, commit it so the partition is not blocked
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to unmarshal message on %s offset %d: %v", c.topic, msg.Offset, err))
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		if err := c.handle(ctx, handler, env); err != nil {
			if ctx.Err() != nil {
				c.logger.LogKafka("CONSUME", c.topic, fmt.Sprintf("consumer stopped, offset %d left uncommitted", msg.Offset))
				return nil
			}
			// malformed payload, commit it like a poison message
			c.logger.Error("KAFKA", fmt.Sprintf("Dropping %s event %s at offset %d: %v", c.topic, env.ID, msg.Offset, err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to commit %s offset %d: %v", c.topic, msg.Offset, err))
		}
	}
}

// handle runs the handler until it succeeds, fails permanently or ctx ends.
func (c *Consumer) handle(ctx context.Context, handler Handler, env Envelope) error {
	newBackOff := c.newBackOff
	if newBackOff == nil {
		newBackOff = defaultBackOff
	}
	operation := func() error {
		err := handler(ctx, env)
		if errors.Is(err, ErrMalformedPayload) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("KAFKA", fmt.Sprintf("Handler failed for %s event %s, retrying in %s: %v", c.topic, env.ID, wait, err))
	}
	return backoff.RetryNotify(operation, backoff.WithContext(newBackOff(), ctx), notify)
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
