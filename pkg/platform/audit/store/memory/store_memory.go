package memory

import (
	"context"
	"sync"

	id "crowdfund/pkg/domain"
	audit "crowdfund/pkg/platform/audit"
	"crowdfund/pkg/platform/tx"
)

// InMemoryStore keeps events in append order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append stores event once the surrounding transaction, if any, succeeds.
func (s *InMemoryStore) Append(ctx context.Context, event audit.Event) error {
	tx.AfterCommit(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = append(s.events, event)
	})
	return nil
}

// ListByIdentity returns events about identity, oldest first.
func (s *InMemoryStore) ListByIdentity(_ context.Context, identity id.Identity) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.Identity == identity {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecent returns up to limit events, most recent first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]audit.Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}
