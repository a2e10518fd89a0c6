package eventlog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatgrid-backend/pkg/constants"
	"chatgrid-backend/pkg/logger"
	"chatgrid-backend/pkg/metrics"
)

// ErrSkip marks an event as permanently unprocessable. The consumer
// acknowledges and drops it so that one bad message never stalls the
// stream. Any other handler error is treated as transient and retried.
var ErrSkip = errors.New("eventlog: skip message")

// Handler processes one event payload. Messages within a topic are handed
// to the handler in log order, one at a time.
type Handler func(ctx context.Context, topic string, payload []byte) error

// Consumer reads per-topic streams through a consumer group. The group is
// created at stream position 0 so a fresh deployment replays the log from
// the start; acknowledged entries are never redelivered within the group.
type Consumer struct {
	client  *redis.Client
	group   string
	name    string
	topics  []string
	handler Handler
	metrics *metrics.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer group member for the given topics
func NewConsumer(client *redis.Client, group, name string, topics []string, handler Handler, m *metrics.Metrics) *Consumer {
	return &Consumer{
		client:  client,
		group:   group,
		name:    name,
		topics:  topics,
		handler: handler,
		metrics: m,
	}
}

// Start creates the consumer groups if needed and launches one sequential
// worker per topic. It returns once the workers are running.
func (c *Consumer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for _, topic := range c.topics {
		err := c.client.XGroupCreateMkStream(runCtx, streamKey(topic), c.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			cancel()
			return err
		}

		c.wg.Add(1)
		go c.consumeTopic(runCtx, topic)
	}

	logger.Info("Event log consumer started",
		zap.String("group", c.group),
		zap.String("consumer", c.name),
		zap.Strings("topics", c.topics))

	return nil
}

// Stop disconnects the consumer and waits for in-flight handlers to finish
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// consumeTopic is the per-topic worker: reclaim stale pending entries left
// by a crashed member, then read new entries in log order.
func (c *Consumer) consumeTopic(ctx context.Context, topic string) {
	defer c.wg.Done()

	c.reclaimPending(ctx, topic)

	stream := streamKey(topic)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{stream, ">"},
			Count:    16,
			Block:    constants.EventLogBlockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil || errors.Is(err, context.Canceled) {
				continue
			}
			logger.Warn("Event log read failed",
				zap.String("topic", topic),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				c.processMessage(ctx, topic, stream, msg)
			}
		}
	}
}

// reclaimPending takes over entries still pending from dead group members
func (c *Consumer) reclaimPending(ctx context.Context, topic string) {
	stream := streamKey(topic)
	start := "0-0"

	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    c.group,
			Consumer: c.name,
			MinIdle:  constants.EventLogClaimMinIdle,
			Start:    start,
			Count:    16,
		}).Result()
		if err != nil {
			if err != redis.Nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Event log reclaim failed",
					zap.String("topic", topic),
					zap.Error(err))
			}
			return
		}

		for _, msg := range msgs {
			c.processMessage(ctx, topic, stream, msg)
		}

		if next == "0-0" || len(msgs) == 0 {
			return
		}
		start = next
	}
}

// processMessage runs the handler for one entry. Transient handler errors
// are retried with backoff; the entry is acknowledged only after success
// or a permanent skip, so delivery is at-least-once.
func (c *Consumer) processMessage(ctx context.Context, topic, stream string, msg redis.XMessage) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		logger.Warn("Event log entry without payload field, dropping",
			zap.String("topic", topic),
			zap.String("id", msg.ID))
		c.ack(ctx, topic, stream, msg.ID)
		return
	}

	backoff := time.Second
	for {
		err := c.handler(ctx, topic, []byte(payload))
		if err == nil {
			c.metrics.RecordEventConsumed(topic)
			c.ack(ctx, topic, stream, msg.ID)
			return
		}
		if errors.Is(err, ErrSkip) {
			logger.Warn("Dropping unprocessable event",
				zap.String("topic", topic),
				zap.String("id", msg.ID),
				zap.Error(err))
			c.ack(ctx, topic, stream, msg.ID)
			return
		}

		logger.Error("Event handler failed, retrying",
			zap.String("topic", topic),
			zap.String("id", msg.ID),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Consumer) ack(ctx context.Context, topic, stream, id string) {
	if err := c.client.XAck(ctx, stream, c.group, id).Err(); err != nil && !errors.Is(err, context.Canceled) {
		// Redelivered and handled again on restart; handlers are expected
		// to tolerate duplicates.
		logger.Warn("Failed to ack event",
			zap.String("topic", topic),
			zap.String("id", id),
			zap.Error(err))
	}
}
