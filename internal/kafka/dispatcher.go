package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pcapi/internal/logger"
)

// Dispatcher delivers published events to in-process handlers. It stands in
// for the broker when Kafka is disabled.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *logger.Logger
	now      func() time.Time
}

func NewDispatcher(log *logger.Logger) *Dispatcher {
	return &Dispatcher{handlers: map[string][]Handler{}, logger: log, now: time.Now}
}

func (d *Dispatcher) Subscribe(topic string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[topic] = append(d.handlers[topic], handler)
}

// Publish runs every handler of topic synchronously. Handler errors are
// logged and do not fail the publication, as with a committed poison message.
func (d *Dispatcher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	env, err := NewEnvelope(topic, payload, d.now())
	if err != nil {
		return fmt.Errorf("failed to build envelope for %s: %w", topic, err)
	}

	d.mu.RLock()
	handlers := d.handlers[topic]
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, env); err != nil {
			d.logger.Error("KAFKA", fmt.Sprintf("Local handler failed on %s key=%s: %v", topic, key, err))
		}
	}
	return nil
}
