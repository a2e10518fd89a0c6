package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Producer publishes events to per-topic Redis streams. Streams are ordered,
// durable and replayable from the beginning, giving at-least-once delivery
// to consumer groups.
type Producer struct {
	client *redis.Client
}

// NewProducer creates a new event log producer
func NewProducer(client *redis.Client) *Producer {
	return &Producer{client: client}
}

// streamKey maps a topic name to its Redis stream key
func streamKey(topic string) string {
	return fmt.Sprintf("eventlog:%s", topic)
}

// Publish appends a JSON-encoded payload to the topic's stream
func (p *Producer) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for topic %s: %w", topic, err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(topic),
		Values: map[string]interface{}{"payload": data},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
	}

	return nil
}
