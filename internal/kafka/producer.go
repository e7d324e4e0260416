package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pcapi/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Publisher is the producer side services depend on.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer messageWriter
	Logger *logger.Logger
	now    func() time.Time
}

// NewProducer builds a producer that routes each message by its own topic.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &Producer{Writer: writer, Logger: log, now: time.Now}
}

// Publish wraps payload in an Envelope typed after the topic.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	env, err := NewEnvelope(topic, payload, p.now())
	if err != nil {
		return fmt.Errorf("failed to build envelope for %s: %w", topic, err)
	}
	msgBytes, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope for %s: %w", topic, err)
	}

	if err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	}); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s event=%s", key, env.ID))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopPublisher is used when Kafka is disabled.
type NoopPublisher struct {
	Logger *logger.Logger
}

func (n NoopPublisher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	if n.Logger != nil {
		n.Logger.Debug("KAFKA", fmt.Sprintf("kafka disabled, dropping %s key=%s", topic, key))
	}
	return nil
}
