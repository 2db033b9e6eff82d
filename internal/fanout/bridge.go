// Package fanout makes "deliver this payload to this user" work regardless of
// which process, if any, currently holds the user's socket. Each connected
// user has a logical channel on the broker; whichever process holds the
// socket subscribes to that channel and writes incoming publishes straight to
// it. A publish that reaches zero subscribers anywhere in the fleet means the
// user is offline, and the payload is parked in the offline queue instead.
package fanout

import (
	"context"

	"pulse/pkg/domain"
)

// State describes broker reachability for the health surface.
type State string

const (
	StateHealthy      State = "healthy"
	StateDegraded     State = "degraded"
	StateUnconfigured State = "unconfigured"
)

// LocalSink is the per-process delivery surface the bridge listener writes
// into. The connection registry satisfies this; Deliver reports whether a
// local socket accepted the payload.
type LocalSink interface {
	Deliver(userID domain.UserID, payload []byte) bool
}

// Bridge is the fleet-wide delivery abstraction.
//
// Send is fire-and-forget per call: it either hands the payload to the broker,
// parks it in the offline queue, or (degraded mode) delivers locally / drops
// with an operational alert. Subscribe and Unsubscribe manage the per-user
// channel membership of this process's singleton listener.
type Bridge interface {
	Send(ctx context.Context, userID domain.UserID, payload []byte) error
	Subscribe(ctx context.Context, userID domain.UserID) error
	Unsubscribe(ctx context.Context, userID domain.UserID) error
	State() State
}

// userChannel is the logical broker address for one user's deliveries.
func userChannel(userID domain.UserID) string {
	return "user:" + userID.String()
}
