package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Delivery events pushed to client sessions
const (
	EventIncomingCall        = "incomingCall"
	EventCallAccepted        = "callAccepted"
	EventCallRejected        = "callRejected"
	EventCallEnded           = "callEnded"
	EventNotification        = "notification"
	EventUnreadNotifications = "unread_notifications"
	EventAuthError           = "auth_error"
)

const userChannelPrefix = "push:user:"

// UserChannelPattern matches every per-user push channel
const UserChannelPattern = userChannelPrefix + "*"

// Envelope is the wire frame delivered to a session
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// UserChannel returns the Redis Pub/Sub channel for a user's sessions
func UserChannel(userID uuid.UUID) string {
	return userChannelPrefix + userID.String()
}

// UserIDFromChannel extracts the user id from a per-user push channel name
func UserIDFromChannel(channel string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("not a user push channel: %s", channel)
	}
	return uuid.Parse(raw)
}

// Publisher pushes events toward a user's live delivery sessions from any
// service instance. Delivery is fire-and-forget: publishing to a user with
// no live sessions is a no-op.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a new realtime publisher
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Push sends an event to all of the user's live sessions
func (p *Publisher) Push(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal push event %s: %w", event, err)
	}

	if err := p.client.Publish(ctx, UserChannel(userID), frame).Err(); err != nil {
		return fmt.Errorf("failed to publish push event %s: %w", event, err)
	}

	return nil
}
