//go:build integration

package offline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/pkg/domain"
	"pulse/pkg/testutil/containers"
)

func TestRedisQueue_FIFOAndClear(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	queue := NewRedisQueue(rc.Client)
	userID := domain.UserID(uuid.New())

	require.NoError(t, queue.Enqueue(ctx, userID, []byte(`{"n":1}`)))
	require.NoError(t, queue.Enqueue(ctx, userID, []byte(`{"n":2}`)))

	var got []string
	n, err := queue.Drain(ctx, userID, func(p []byte) error {
		got = append(got, string(p))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`}, got)

	exists, err := rc.Client.Exists(ctx, queueKeyPrefix+userID.String()).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisQueue_TTLRefreshedOnAppend(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	queue := NewRedisQueue(rc.Client)
	userID := domain.UserID(uuid.New())
	key := queueKeyPrefix + userID.String()

	require.NoError(t, queue.Enqueue(ctx, userID, []byte("a")))
	// Shrink the TTL, then append again: Enqueue must restore the full window.
	require.NoError(t, rc.Client.Expire(ctx, key, 10*time.Second).Err())
	require.NoError(t, queue.Enqueue(ctx, userID, []byte("b")))

	ttl, err := rc.Client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl.Hours(), 24.0)
}
