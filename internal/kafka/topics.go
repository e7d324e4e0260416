package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pcapi/internal/logger"

	"github.com/segmentio/kafka-go"
)

const (
	TopicBookingCreated        = "pcapi.booking.created"
	TopicBookingCancelled      = "pcapi.booking.cancelled"
	TopicBookingUsed           = "pcapi.booking.used"
	TopicBookingUnused         = "pcapi.booking.unused"
	TopicCollectiveBookingUsed = "pcapi.collective_booking.used"
	TopicUserActivated         = "pcapi.user.activated"
	TopicOfferUpdated          = "pcapi.offer.updated"
)

// AllTopics lists every topic the service produces to.
func AllTopics() []string {
	return []string{
		TopicBookingCreated,
		TopicBookingCancelled,
		TopicBookingUsed,
		TopicBookingUnused,
		TopicCollectiveBookingUsed,
		TopicUserActivated,
		TopicOfferUpdated,
	}
}

// EnsureTopicsExist creates Kafka topics if they don't already exist.
func EnsureTopicsExist(ctx context.Context, brokers []string, topics []string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find kafka controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		})
		switch {
		case err == nil:
			log.LogKafka("CREATE_TOPIC", topic, "created")
		case errors.Is(err, kafka.TopicAlreadyExists):
			log.Debug("KAFKA", fmt.Sprintf("Topic %s already exists", topic))
		default:
			// keep going, the producer will surface the error on first write
			log.Error("KAFKA", fmt.Sprintf("Error creating topic %s: %v", topic, err))
		}
	}

	time.Sleep(500 * time.Millisecond)
	return nil
}
