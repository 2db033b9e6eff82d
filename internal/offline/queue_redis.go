package offline

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pulse/pkg/domain"
)

// Redis key prefix for per-user offline queues
const queueKeyPrefix = "offline:user:"

// RedisQueue is the production Queue: one Redis list per user, shared by the
// whole fleet. RPUSH keeps insertion order; EXPIRE on every append gives the
// sliding retention window.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, userID domain.UserID, payload []byte) error {
	key := queueKeyPrefix + userID.String()
	pipe := q.client.Pipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, Retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue offline message: %w", err)
	}
	return nil
}

func (q *RedisQueue) Drain(ctx context.Context, userID domain.UserID, deliver DeliverFunc) (int, error) {
	key := queueKeyPrefix + userID.String()
	items, err := q.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("read offline queue: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	for i, item := range items {
		if err := deliver([]byte(item)); err != nil {
			// Leave the list intact; the next connect re-drains from the top
			// and the client dedupes what it already saw.
			return i, fmt.Errorf("deliver queued message: %w", err)
		}
	}

	if err := q.client.Del(ctx, key).Err(); err != nil {
		return len(items), fmt.Errorf("clear offline queue: %w", err)
	}
	return len(items), nil
}
