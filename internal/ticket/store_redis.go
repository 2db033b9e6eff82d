package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pulse/pkg/domain"
	"pulse/pkg/platform/sentinel"
)

// Redis key prefix for handshake tickets
const ticketKeyPrefix = "ws:ticket:"

// RedisStore is the production Store. Tickets live in the shared Redis so a
// ticket issued while talking to one process validates on any process. TTL is
// enforced by Redis key expiry; consumption uses GETDEL so validate-once holds
// without any locking.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Issue(ctx context.Context, userID domain.UserID) (Ticket, error) {
	t := Ticket{
		ID:       domain.NewTicketID(),
		UserID:   userID,
		IssuedAt: time.Now(),
	}
	key := ticketKeyPrefix + t.ID.String()
	if err := s.client.Set(ctx, key, userID.String(), TTL).Err(); err != nil {
		return Ticket{}, fmt.Errorf("store ticket: %w", err)
	}
	return t, nil
}

func (s *RedisStore) Consume(ctx context.Context, id domain.TicketID) (domain.UserID, error) {
	key := ticketKeyPrefix + id.String()
	raw, err := s.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return domain.UserID{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.UserID{}, fmt.Errorf("consume ticket: %w", err)
	}
	userID, err := domain.ParseUserID(raw)
	if err != nil {
		// Corrupt value; treat as absent rather than authenticating anyone.
		return domain.UserID{}, sentinel.ErrNotFound
	}
	return userID, nil
}
