// Package ticket implements the single-use connection credentials used to
// authorize WebSocket handshakes. A ticket proves that its holder recently
// authenticated as a specific user; it is valid for 60 seconds and consumed
// atomically on first validation.
package ticket

import (
	"context"
	"time"

	"pulse/pkg/domain"
)

// TTL is the validity window of an issued ticket.
const TTL = 60 * time.Second

// Ticket is a short-lived, single-use handshake credential.
type Ticket struct {
	ID       domain.TicketID
	UserID   domain.UserID
	IssuedAt time.Time
}

// Store issues and consumes tickets. Consume is atomic fetch-and-delete: a
// ticket can be validated successfully at most once, fleet-wide.
//
// Implementations return sentinel.ErrNotFound when the ticket is absent,
// expired, or already consumed; any other error means the store itself is
// unreachable and the handshake must fail with an internal close code.
type Store interface {
	Issue(ctx context.Context, userID domain.UserID) (Ticket, error)
	Consume(ctx context.Context, id domain.TicketID) (domain.UserID, error)
}
