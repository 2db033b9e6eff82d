// Package room tracks group-chat membership for broadcast. Membership is
// process-local by design: a broadcast discovers members only among users who
// joined on this process, though delivery to each discovered member still
// crosses processes through the fanout bridge. Fleet-wide membership would
// need a shared directory in the broker; until then broadcast correctness is
// only guaranteed within a single process, and membership is lost on restart.
package room

import (
	"context"
	"sync"

	"pulse/pkg/domain"
)

// Sender delivers a payload to one user wherever their socket lives. The
// fanout bridge satisfies this.
type Sender interface {
	Send(ctx context.Context, userID domain.UserID, payload []byte) error
}

// Directory is the process-local room membership table.
type Directory struct {
	sender Sender

	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.UserID]struct{}
}

func NewDirectory(sender Sender) *Directory {
	return &Directory{
		sender: sender,
		rooms:  make(map[domain.RoomID]map[domain.UserID]struct{}),
	}
}

// Join adds the user to the room. Idempotent.
func (d *Directory) Join(roomID domain.RoomID, userID domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.rooms[roomID]
	if !ok {
		members = make(map[domain.UserID]struct{})
		d.rooms[roomID] = members
	}
	members[userID] = struct{}{}
}

// Leave removes the user from the room; an empty room is deleted. Idempotent.
func (d *Directory) Leave(roomID domain.RoomID, userID domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.rooms[roomID]
	if !ok {
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(d.rooms, roomID)
	}
}

// RemoveUser clears the user from every room. Called on disconnect.
func (d *Directory) RemoveUser(userID domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for roomID, members := range d.rooms {
		delete(members, userID)
		if len(members) == 0 {
			delete(d.rooms, roomID)
		}
	}
}

// Members returns a snapshot of the room's current local membership.
func (d *Directory) Members(roomID domain.RoomID) []domain.UserID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members := d.rooms[roomID]
	out := make([]domain.UserID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// Broadcast sends the payload to every current member except those excluded.
// Send errors are per-member and do not stop the iteration; the first error
// is returned after all members were attempted.
func (d *Directory) Broadcast(ctx context.Context, roomID domain.RoomID, payload []byte, exclude map[domain.UserID]struct{}) error {
	var firstErr error
	for _, member := range d.Members(roomID) {
		if _, skip := exclude[member]; skip {
			continue
		}
		if err := d.sender.Send(ctx, member, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
