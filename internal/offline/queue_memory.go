package offline

import (
	"context"
	"sync"
	"time"

	"pulse/pkg/domain"
)

type memoryEntry struct {
	payloads [][]byte
	lastPush time.Time
}

// MemoryQueue keeps offline messages in process memory. Used in unit tests
// and redis-less development mode; the backlog does not survive a restart.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[domain.UserID]*memoryEntry
	now     func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		entries: make(map[domain.UserID]*memoryEntry),
		now:     time.Now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, userID domain.UserID, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[userID]
	if !ok {
		e = &memoryEntry{}
		q.entries[userID] = e
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	e.payloads = append(e.payloads, buf)
	e.lastPush = q.now()
	return nil
}

func (q *MemoryQueue) Drain(ctx context.Context, userID domain.UserID, deliver DeliverFunc) (int, error) {
	q.mu.Lock()
	e, ok := q.entries[userID]
	if !ok {
		q.mu.Unlock()
		return 0, nil
	}
	if q.now().Sub(e.lastPush) > Retention {
		delete(q.entries, userID)
		q.mu.Unlock()
		return 0, nil
	}
	items := e.payloads
	q.mu.Unlock()

	for i, item := range items {
		if err := deliver(item); err != nil {
			return i, err
		}
	}

	q.mu.Lock()
	// Only clear what we delivered; appends that raced the drain stay queued.
	if e, ok := q.entries[userID]; ok {
		e.payloads = e.payloads[len(items):]
		if len(e.payloads) == 0 {
			delete(q.entries, userID)
		}
	}
	q.mu.Unlock()
	return len(items), nil
}

// Len reports the queued message count for a user. Test helper.
func (q *MemoryQueue) Len(userID domain.UserID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[userID]; ok {
		return len(e.payloads)
	}
	return 0
}
