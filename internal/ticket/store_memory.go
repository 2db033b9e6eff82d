package ticket

import (
	"context"
	"sync"
	"time"

	"pulse/pkg/domain"
	"pulse/pkg/platform/sentinel"
)

// MemoryStore keeps tickets in process memory. Used in unit tests and in
// redis-less development mode; tickets issued here only validate against the
// same process, which is fine for a single-instance deployment.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[domain.TicketID]Ticket
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[domain.TicketID]Ticket),
		now:     time.Now,
	}
}

func (s *MemoryStore) Issue(ctx context.Context, userID domain.UserID) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := Ticket{
		ID:       domain.NewTicketID(),
		UserID:   userID,
		IssuedAt: s.now(),
	}
	s.tickets[t.ID] = t
	return t, nil
}

func (s *MemoryStore) Consume(ctx context.Context, id domain.TicketID) (domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.UserID{}, sentinel.ErrNotFound
	}
	delete(s.tickets, id)
	if s.now().Sub(t.IssuedAt) > TTL {
		return domain.UserID{}, sentinel.ErrExpired
	}
	return t.UserID, nil
}
