// Package offline implements the per-user store-and-forward buffer. When no
// process in the fleet holds a user's socket, the fanout bridge appends the
// serialized frame here; the connection registry drains the buffer, in
// insertion order, the next time the user connects.
package offline

import (
	"context"
	"time"

	"pulse/pkg/domain"
)

// Retention is the sliding time-to-live of a user's queue. It is refreshed on
// every append, so an actively messaged offline user keeps their backlog.
const Retention = 7 * 24 * time.Hour

// DeliverFunc writes one queued payload to the now-connected socket.
type DeliverFunc func(payload []byte) error

// Queue is an ordered, append-only buffer per user.
//
// Drain reads the whole list in insertion order, hands each payload to
// deliver, and deletes the list only after every delivery succeeded. The
// sequence is deliberately not transactional: a crash after delivery but
// before deletion re-delivers on the next connect, and a failed delivery
// leaves the remaining backlog (including already-delivered items) in place.
// Clients dedupe on message_id.
type Queue interface {
	Enqueue(ctx context.Context, userID domain.UserID, payload []byte) error
	Drain(ctx context.Context, userID domain.UserID, deliver DeliverFunc) (int, error)
}
