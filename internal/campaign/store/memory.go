package store

import (
	"context"
	"sync"

	"crowdfund/internal/campaign/models"
	id "crowdfund/pkg/domain"
	"crowdfund/pkg/platform/sentinel"
)

// InMemory keeps campaigns and their contributions in maps guarded by an
// RWMutex. Ids are allocated from 1 without gaps.
type InMemory struct {
	mu            sync.RWMutex
	campaigns     map[id.CampaignID]*models.Campaign
	contributions map[id.CampaignID][]*models.Contribution
	lastID        id.CampaignID
}

func NewInMemory() *InMemory {
	return &InMemory{
		campaigns:     make(map[id.CampaignID]*models.Campaign),
		contributions: make(map[id.CampaignID][]*models.Contribution),
	}
}

// Create assigns the next id to c and stores it.
func (s *InMemory) Create(_ context.Context, c *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	c.ID = s.lastID
	s.campaigns[c.ID] = c.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, campaignID id.CampaignID) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

// FindForUpdate is FindByID; writers are serialized per campaign by the
// transaction runner.
func (s *InMemory) FindForUpdate(ctx context.Context, campaignID id.CampaignID) (*models.Campaign, error) {
	return s.FindByID(ctx, campaignID)
}

func (s *InMemory) Update(_ context.Context, c *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.campaigns[c.ID] = c.Clone()
	return nil
}

// List returns every campaign in creation order.
func (s *InMemory) List(_ context.Context) ([]*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Campaign, 0, len(s.campaigns))
	for i := id.CampaignID(1); i <= s.lastID; i++ {
		if c, ok := s.campaigns[i]; ok {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (s *InMemory) ListIDs(_ context.Context) ([]id.CampaignID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]id.CampaignID, 0, len(s.campaigns))
	for i := id.CampaignID(1); i <= s.lastID; i++ {
		if _, ok := s.campaigns[i]; ok {
			out = append(out, i)
		}
	}
	return out, nil
}

func (s *InMemory) AddContribution(_ context.Context, c *models.Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[c.CampaignID]; !ok {
		return sentinel.ErrNotFound
	}
	stored := *c
	s.contributions[c.CampaignID] = append(s.contributions[c.CampaignID], &stored)
	return nil
}

// ListContributions returns the campaign's contributions oldest first.
func (s *InMemory) ListContributions(_ context.Context, campaignID id.CampaignID) ([]*models.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.contributions[campaignID]
	out := make([]*models.Contribution, len(records))
	for i, c := range records {
		copied := *c
		out[i] = &copied
	}
	return out, nil
}

// ContributionTotal sums the accepted amounts contributor has put into the campaign.
func (s *InMemory) ContributionTotal(_ context.Context, campaignID id.CampaignID, contributor id.Identity) (id.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total id.Amount
	for _, c := range s.contributions[campaignID] {
		if c.Contributor == contributor {
			total += c.Accepted
		}
	}
	return total, nil
}
