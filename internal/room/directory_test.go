package room

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/pkg/domain"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[domain.UserID][]string
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[domain.UserID][]string)}
}

func (r *recordingSender) Send(_ context.Context, userID domain.UserID, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[userID] = append(r.sent[userID], string(payload))
	return nil
}

func TestJoinLeave_Idempotent(t *testing.T) {
	d := NewDirectory(newRecordingSender())
	roomID := domain.RoomID("conv-42")
	userID := domain.UserID(uuid.New())

	d.Join(roomID, userID)
	d.Join(roomID, userID)
	assert.Len(t, d.Members(roomID), 1)

	d.Leave(roomID, userID)
	d.Leave(roomID, userID)
	assert.Empty(t, d.Members(roomID))
}

func TestBroadcast_ReachesCurrentMembersOnly(t *testing.T) {
	sender := newRecordingSender()
	d := NewDirectory(sender)
	roomID := domain.RoomID("conv-7")

	alice := domain.UserID(uuid.New())
	bob := domain.UserID(uuid.New())
	carol := domain.UserID(uuid.New())

	d.Join(roomID, alice)
	d.Join(roomID, bob)
	d.Join(roomID, carol)
	d.Leave(roomID, carol)

	err := d.Broadcast(context.Background(), roomID, []byte("hello"), map[domain.UserID]struct{}{alice: {}})
	require.NoError(t, err)

	assert.Empty(t, sender.sent[alice], "excluded sender must not receive the broadcast")
	assert.Equal(t, []string{"hello"}, sender.sent[bob])
	assert.Empty(t, sender.sent[carol], "a user who left must never receive the broadcast")
}

func TestRemoveUser_ClearsEveryRoom(t *testing.T) {
	sender := newRecordingSender()
	d := NewDirectory(sender)
	userID := domain.UserID(uuid.New())
	other := domain.UserID(uuid.New())

	d.Join(domain.RoomID("a"), userID)
	d.Join(domain.RoomID("b"), userID)
	d.Join(domain.RoomID("b"), other)

	d.RemoveUser(userID)

	assert.Empty(t, d.Members(domain.RoomID("a")))
	assert.Equal(t, []domain.UserID{other}, d.Members(domain.RoomID("b")))
}
