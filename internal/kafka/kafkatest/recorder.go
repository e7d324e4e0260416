// Package kafkatest records published events in memory.
package kafkatest

import (
	"context"
	"encoding/json"
	"sync"
)

type Message struct {
	Topic   string
	Key     string
	Payload json.RawMessage
}

// Recorder implements kafka.Publisher.
type Recorder struct {
	mu       sync.Mutex
	Messages []Message
	Err      error
}

func (r *Recorder) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	if r.Err != nil {
		return r.Err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, Message{Topic: topic, Key: key, Payload: data})
	return nil
}

// Topics lists the topics published to, in order.
func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	topics := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		topics = append(topics, m.Topic)
	}
	return topics
}

// Last decodes the latest payload sent to topic into v. It reports false if
// nothing was sent there.
func (r *Recorder) Last(topic string, v interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Topic == topic {
			return json.Unmarshal(r.Messages[i].Payload, v) == nil
		}
	}
	return false
}
