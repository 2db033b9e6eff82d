package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"pulse/internal/offline"
	"pulse/internal/platform/metrics"
	"pulse/pkg/domain"
)

// LocalBridge is the redis-less Bridge used when no broker is configured:
// single-process deployments and unit tests. Delivery is local socket or
// offline queue; there is no remote path.
type LocalBridge struct {
	queue   offline.Queue
	logger  *slog.Logger
	metrics *metrics.Metrics
	sink    LocalSink
}

func NewLocalBridge(queue offline.Queue, logger *slog.Logger, m *metrics.Metrics) *LocalBridge {
	return &LocalBridge{queue: queue, logger: logger, metrics: m}
}

// Bind attaches the local delivery sink; see RedisBridge.Bind.
func (b *LocalBridge) Bind(sink LocalSink) {
	b.sink = sink
}

func (b *LocalBridge) Send(ctx context.Context, userID domain.UserID, payload []byte) error {
	if b.sink.Deliver(userID, payload) {
		b.metrics.Delivered(metrics.PathLocal)
		return nil
	}
	if err := b.queue.Enqueue(ctx, userID, payload); err != nil {
		return fmt.Errorf("offline fallback: %w", err)
	}
	b.metrics.Delivered(metrics.PathOffline)
	return nil
}

// Subscribe is a no-op: local delivery needs no channel membership.
func (b *LocalBridge) Subscribe(ctx context.Context, userID domain.UserID) error { return nil }

func (b *LocalBridge) Unsubscribe(ctx context.Context, userID domain.UserID) error { return nil }

func (b *LocalBridge) State() State { return StateUnconfigured }
