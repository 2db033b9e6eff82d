// Package registry owns the per-process map from user id to socket handle.
// The registry is constructed explicitly and passed to the gateway; there is
// no process-wide singleton, so tests instantiate isolated instances.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pulse/internal/event"
	"pulse/internal/offline"
	"pulse/internal/platform/metrics"
	"pulse/pkg/domain"
)

// Conn is the socket handle the registry holds: the gateway's per-connection
// client, which serializes writes through its own write pump.
type Conn interface {
	Send(payload []byte) error
	Close() error
}

// Bridge is the subscription surface the registry drives on connect and
// disconnect. The fanout bridge satisfies this.
type Bridge interface {
	Subscribe(ctx context.Context, userID domain.UserID) error
	Unsubscribe(ctx context.Context, userID domain.UserID) error
}

// Rooms is the membership cleanup hook invoked on disconnect.
type Rooms interface {
	RemoveUser(userID domain.UserID)
}

// Registry maps locally connected users to their socket handles. The map is
// the only resource in the process mutated concurrently; a plain mutex guards
// insert and remove.
type Registry struct {
	bridge  Bridge
	queue   offline.Queue
	rooms   Rooms
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.RWMutex
	conns map[domain.UserID]Conn
}

func New(bridge Bridge, queue offline.Queue, rooms Rooms, logger *slog.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		bridge:  bridge,
		queue:   queue,
		rooms:   rooms,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		conns:   make(map[domain.UserID]Conn),
	}
}

// Connect registers the socket for the user: any pre-existing local socket
// for the same user is replaced and force-closed, the user's fanout channel
// is subscribed, the offline backlog is drained in insertion order, and a
// connection_established event is emitted to the new socket.
func (r *Registry) Connect(ctx context.Context, userID domain.UserID, conn Conn) error {
	r.mu.Lock()
	old := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()

	if old != nil {
		r.logger.InfoContext(ctx, "replacing existing connection", "user_id", userID.String())
		_ = old.Close()
	} else {
		r.metrics.ConnectionOpened()
	}

	if err := r.bridge.Subscribe(ctx, userID); err != nil {
		// Remote deliveries will fall back to the offline queue (zero
		// receivers) until the next reconnect; keep the session usable.
		r.logger.WarnContext(ctx, "fanout subscribe failed",
			"user_id", userID.String(),
			"error", err,
		)
	}

	drained, err := r.queue.Drain(ctx, userID, conn.Send)
	if err != nil {
		r.logger.ErrorContext(ctx, "offline drain failed",
			"user_id", userID.String(),
			"delivered", drained,
			"error", err,
		)
		r.Disconnect(ctx, userID, conn)
		_ = conn.Close()
		return fmt.Errorf("drain offline queue: %w", err)
	}
	r.metrics.Drained(drained)

	established, err := event.NewConnectionEstablished(userID, r.now())
	if err != nil {
		return fmt.Errorf("encode connection event: %w", err)
	}
	if err := conn.Send(established); err != nil {
		r.Disconnect(ctx, userID, conn)
		_ = conn.Close()
		return fmt.Errorf("emit connection event: %w", err)
	}
	return nil
}

// Disconnect removes the mapping if conn is still the registered socket for
// the user. The identity guard keeps a stale pump's teardown from evicting
// the replacement connection. Unsubscribe is best-effort.
func (r *Registry) Disconnect(ctx context.Context, userID domain.UserID, conn Conn) {
	r.mu.Lock()
	current, ok := r.conns[userID]
	if !ok || current != conn {
		r.mu.Unlock()
		return
	}
	delete(r.conns, userID)
	r.mu.Unlock()

	r.metrics.ConnectionClosed()
	if err := r.bridge.Unsubscribe(ctx, userID); err != nil {
		r.logger.WarnContext(ctx, "fanout unsubscribe failed",
			"user_id", userID.String(),
			"error", err,
		)
	}
	r.rooms.RemoveUser(userID)
}

// Deliver writes the payload to the user's local socket, if any. A write
// error tears that single connection down; the message is lost once unless
// it was already parked in the offline queue.
func (r *Registry) Deliver(userID domain.UserID, payload []byte) bool {
	r.mu.RLock()
	conn, ok := r.conns[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := conn.Send(payload); err != nil {
		r.logger.WarnContext(context.Background(), "socket write failed, disconnecting",
			"user_id", userID.String(),
			"error", err,
		)
		r.Disconnect(context.Background(), userID, conn)
		_ = conn.Close()
		return false
	}
	return true
}

// IsLocallyOnline reports whether this process holds a socket for the user.
// Presence on other processes is not reflected; the design performs no
// fleet-wide round trip for presence checks.
func (r *Registry) IsLocallyOnline(userID domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// Count reports the number of locally held connections (health surface).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll force-closes every local socket. Called on server shutdown; each
// connection's pump then runs its own Disconnect teardown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	for _, c := range conns {
		_ = c.Close()
	}
}
