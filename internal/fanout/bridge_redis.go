package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"pulse/internal/offline"
	"pulse/internal/platform/metrics"
	"pulse/pkg/domain"
)

// RedisBridge is the production Bridge on Redis pub/sub. PUBLISH returns the
// fleet-wide receiver count, which doubles as the offline signal: zero
// receivers means no process holds the user's socket. This under-detects
// offline status when a crashed process leaves a stale subscription behind;
// the subscription dies with the broker connection, so the window is short.
type RedisBridge struct {
	client  *redis.Client
	queue   offline.Queue
	logger  *slog.Logger
	metrics *metrics.Metrics

	pubsub   *redis.PubSub
	sink     LocalSink
	degraded atomic.Bool
}

// NewRedisBridge creates the bridge. Bind must be called with the local
// delivery sink before Run or Send.
func NewRedisBridge(client *redis.Client, queue offline.Queue, logger *slog.Logger, m *metrics.Metrics) *RedisBridge {
	return &RedisBridge{
		client: client,
		queue:  queue,
		logger: logger,
		// Subscription set starts empty; Subscribe adds per-user channels as
		// connections register.
		pubsub:  client.Subscribe(context.Background()),
		metrics: m,
	}
}

// Bind attaches the local delivery sink. Separate from the constructor
// because the registry and the bridge reference each other; the registry is
// built against the Bridge interface first, then bound here.
func (b *RedisBridge) Bind(sink LocalSink) {
	b.sink = sink
}

// Run is the singleton subscription listener for this process. Every message
// published to a channel this process subscribes to is written to the local
// socket via the sink. Blocks until ctx is canceled.
func (b *RedisBridge) Run(ctx context.Context) error {
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return b.pubsub.Close()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			raw, found := strings.CutPrefix(msg.Channel, "user:")
			if !found {
				continue
			}
			userID, err := domain.ParseUserID(raw)
			if err != nil {
				b.logger.WarnContext(ctx, "malformed fanout channel", "channel", msg.Channel)
				continue
			}
			if !b.sink.Deliver(userID, []byte(msg.Payload)) {
				// Stale subscription: the socket went away between publish
				// and receipt. The message is lost once; senders queued it
				// only if the publish saw zero receivers.
				b.logger.DebugContext(ctx, "fanout message for user with no local socket",
					"user_id", userID.String(),
				)
			}
		}
	}
}

func (b *RedisBridge) Subscribe(ctx context.Context, userID domain.UserID) error {
	return b.pubsub.Subscribe(ctx, userChannel(userID))
}

func (b *RedisBridge) Unsubscribe(ctx context.Context, userID domain.UserID) error {
	return b.pubsub.Unsubscribe(ctx, userChannel(userID))
}

func (b *RedisBridge) Send(ctx context.Context, userID domain.UserID, payload []byte) error {
	receivers, err := b.publish(ctx, userID, payload)
	if err != nil {
		return b.sendDegraded(ctx, userID, payload, err)
	}

	if b.degraded.Swap(false) {
		b.logger.InfoContext(ctx, "fanout broker recovered")
	}
	b.metrics.SetBrokerHealthy(true)

	if receivers == 0 {
		if err := b.queue.Enqueue(ctx, userID, payload); err != nil {
			return fmt.Errorf("offline fallback: %w", err)
		}
		b.metrics.Delivered(metrics.PathOffline)
		return nil
	}
	b.metrics.Delivered(metrics.PathRemote)
	return nil
}

// publish attempts the PUBLISH with a single retry. Retries never apply
// beyond the individual publish attempt.
func (b *RedisBridge) publish(ctx context.Context, userID domain.UserID, payload []byte) (int64, error) {
	receivers, err := b.client.Publish(ctx, userChannel(userID), payload).Result()
	if err == nil {
		return receivers, nil
	}
	return b.client.Publish(ctx, userChannel(userID), payload).Result()
}

// sendDegraded is the broker-down path: deliver directly when the target's
// socket is on this process, otherwise drop and surface the loss as an
// operational alert. An explicit, logged trade-off rather than silent failure.
func (b *RedisBridge) sendDegraded(ctx context.Context, userID domain.UserID, payload []byte, cause error) error {
	if !b.degraded.Swap(true) {
		b.logger.ErrorContext(ctx, "fanout broker unavailable, degrading to local-only delivery",
			"error", cause,
		)
	}
	b.metrics.SetBrokerHealthy(false)

	if b.sink.Deliver(userID, payload) {
		b.metrics.Delivered(metrics.PathLocal)
		return nil
	}

	b.metrics.Dropped()
	b.logger.ErrorContext(ctx, "message dropped: broker unavailable and user not connected locally",
		"user_id", userID.String(),
		"error", cause,
	)
	return nil
}

func (b *RedisBridge) State() State {
	if b.degraded.Load() {
		return StateDegraded
	}
	return StateHealthy
}
