package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chatgrid-backend/pkg/constants"
)

// PresenceRepository tracks how many delivery sessions a user has open
// across all service instances. Keys: presence:user:<id> holds the session
// count with a heartbeat TTL, so entries orphaned by a crashed instance
// expire on their own.
type PresenceRepository struct {
	client *redis.Client
}

// NewPresenceRepository creates a new presence repository
func NewPresenceRepository(client *redis.Client) *PresenceRepository {
	return &PresenceRepository{client: client}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:user:%s", userID)
}

// SessionConnected records one more live session for the user
func (r *PresenceRepository) SessionConnected(ctx context.Context, userID uuid.UUID) error {
	key := presenceKey(userID)

	if err := r.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to increment presence: %w", err)
	}

	if err := r.client.Expire(ctx, key, constants.PresenceExpiry).Err(); err != nil {
		return fmt.Errorf("failed to set presence expiry: %w", err)
	}

	return nil
}

// SessionDisconnected records one fewer live session for the user. The key
// is removed once the count reaches zero so stale negatives never linger.
func (r *PresenceRepository) SessionDisconnected(ctx context.Context, userID uuid.UUID) error {
	key := presenceKey(userID)

	count, err := r.client.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to decrement presence: %w", err)
	}

	if count <= 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clear presence: %w", err)
		}
	}

	return nil
}

// RefreshPresence extends the heartbeat TTL for a user with live sessions
func (r *PresenceRepository) RefreshPresence(ctx context.Context, userID uuid.UUID) error {
	if err := r.client.Expire(ctx, presenceKey(userID), constants.PresenceExpiry).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

// SessionCount returns how many sessions the user has open anywhere
func (r *PresenceRepository) SessionCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := r.client.Get(ctx, presenceKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get presence: %w", err)
	}
	return count, nil
}
