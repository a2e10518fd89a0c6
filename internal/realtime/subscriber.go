package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Subscriber is the receiving side of the cross-service push channels
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *redis.Message, error)
}

// RedisSubscriber pattern-subscribes to every per-user push channel
type RedisSubscriber struct {
	client *redis.Client
}

// NewSubscriber creates a new realtime subscriber
func NewSubscriber(client *redis.Client) *RedisSubscriber {
	return &RedisSubscriber{client: client}
}

// Subscribe opens the pattern subscription and returns its message channel.
// The subscription closes when the context is cancelled.
func (s *RedisSubscriber) Subscribe(ctx context.Context) (<-chan *redis.Message, error) {
	pubsub := s.client.PSubscribe(ctx, UserChannelPattern)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", UserChannelPattern, err)
	}

	go func() {
		<-ctx.Done()
		pubsub.Close()
	}()

	return pubsub.Channel(), nil
}
