package store

import (
	"context"
	"slices"
	"sync"

	"crowdfund/internal/verification/models"
	id "crowdfund/pkg/domain"
	"crowdfund/pkg/platform/sentinel"
)

// InMemory keeps requests in a map guarded by an RWMutex. Reads return
// copies so callers never observe a record mid-update.
type InMemory struct {
	mu       sync.RWMutex
	requests map[id.Identity]*models.Request
	sequence int64
}

func NewInMemory() *InMemory {
	return &InMemory{requests: make(map[id.Identity]*models.Request)}
}

// Create inserts a new request, assigning its submission sequence.
// Returns sentinel.ErrAlreadyUsed if the identity already has a request.
func (s *InMemory) Create(_ context.Context, r *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.Identity]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.sequence++
	r.Sequence = s.sequence
	s.requests[r.Identity] = r.Clone()
	return nil
}

func (s *InMemory) FindByIdentity(_ context.Context, identity id.Identity) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[identity]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// FindForUpdate is FindByIdentity; the caller's transaction runner
// serializes writers per identity.
func (s *InMemory) FindForUpdate(ctx context.Context, identity id.Identity) (*models.Request, error) {
	return s.FindByIdentity(ctx, identity)
}

func (s *InMemory) Update(_ context.Context, r *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.Identity]; !ok {
		return sentinel.ErrNotFound
	}
	s.requests[r.Identity] = r.Clone()
	return nil
}

// List returns requests in submission order, optionally filtered by status.
func (s *InMemory) List(_ context.Context, statuses ...models.Status) ([]*models.Request, error) {
	s.mu.RLock()
	out := make([]*models.Request, 0, len(s.requests))
	for _, r := range s.requests {
		if len(statuses) == 0 || slices.Contains(statuses, r.Status) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Request) int {
		switch {
		case a.Sequence < b.Sequence:
			return -1
		case a.Sequence > b.Sequence:
			return 1
		}
		return 0
	})
	return out, nil
}
