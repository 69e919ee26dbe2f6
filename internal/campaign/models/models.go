package models

import (
	"time"

	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 4096
)

// Status is the campaign escrow state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusWithdrawn Status = "withdrawn"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusWithdrawn:
		return true
	}
	return false
}

// CanTransitionTo allows active -> completed and completed -> withdrawn only.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusCompleted
	case StatusCompleted:
		return next == StatusWithdrawn
	}
	return false
}

// Campaign is a funding goal owned by one verified creator.
//
// Invariants:
//   - 0 <= Raised <= Goal, Goal > 0
//   - Status is completed or withdrawn exactly when Raised == Goal
//   - withdrawn is only reached from completed; nothing leaves withdrawn
//   - ID, Creator, Title, Description, Goal and CreatedAt never change
type Campaign struct {
	ID               id.CampaignID `json:"id"`
	Creator          id.Identity   `json:"creator"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Goal             id.Amount     `json:"goal_amount"`
	Raised           id.Amount     `json:"raised_amount"`
	Status           Status        `json:"status"`
	ContributorCount int           `json:"contributor_count"`
	CreatedAt        time.Time     `json:"created_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	WithdrawnAt      *time.Time    `json:"withdrawn_at,omitempty"`
}

// NewCampaign builds an active campaign. The id is assigned by the store.
func NewCampaign(creator id.Identity, title, description string, goal id.Amount, now time.Time) (*Campaign, error) {
	if creator.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "creator is required")
	}
	if !goal.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "goal must be positive")
	}
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "title is required")
	}
	if len(title) > MaxTitleLength {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "title must be %d bytes or less", MaxTitleLength)
	}
	if len(description) > MaxDescriptionLength {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "description must be %d bytes or less", MaxDescriptionLength)
	}
	return &Campaign{
		Creator:     creator,
		Title:       title,
		Description: description,
		Goal:        goal,
		Status:      StatusActive,
		CreatedAt:   now,
	}, nil
}

// Remaining is the amount still needed to reach the goal.
func (c *Campaign) Remaining() id.Amount {
	return c.Goal - c.Raised
}

func (c *Campaign) IsActive() bool {
	return c.Status == StatusActive
}

// Accept applies a contribution of amount, capping it at the remaining gap.
// The uncapped excess is returned as refunded and never added to Raised.
func (c *Campaign) Accept(amount id.Amount, now time.Time) (accepted, refunded id.Amount, err error) {
	if !c.IsActive() {
		return 0, 0, dErrors.Newf(dErrors.CodeInvariantViolation, "campaign is %s", c.Status)
	}
	if !amount.IsPositive() {
		return 0, 0, dErrors.New(dErrors.CodeInvariantViolation, "amount must be positive")
	}
	accepted = amount.Min(c.Remaining())
	refunded = amount - accepted
	c.Raised += accepted
	if c.Raised == c.Goal {
		c.Status = StatusCompleted
		completed := now
		c.CompletedAt = &completed
	}
	return accepted, refunded, nil
}

// CanWithdraw checks that caller may release the escrowed funds.
// Ownership is checked before status so non-creators always see the same error.
func (c *Campaign) CanWithdraw(caller id.Identity) error {
	if caller != c.Creator {
		return dErrors.New(dErrors.CodeUnauthorized, "only the campaign creator can withdraw")
	}
	if c.Status != StatusCompleted {
		return dErrors.Newf(dErrors.CodeNotWithdrawable, "campaign is %s", c.Status)
	}
	return nil
}

// MarkWithdrawn records a successful payout.
func (c *Campaign) MarkWithdrawn(now time.Time) error {
	if !c.Status.CanTransitionTo(StatusWithdrawn) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "cannot withdraw a %s campaign", c.Status)
	}
	c.Status = StatusWithdrawn
	withdrawn := now
	c.WithdrawnAt = &withdrawn
	return nil
}

func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	out := *c
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		out.CompletedAt = &t
	}
	if c.WithdrawnAt != nil {
		t := *c.WithdrawnAt
		out.WithdrawnAt = &t
	}
	return &out
}

// Contribution records one accepted contribution. Accepted + Refunded == Requested.
type Contribution struct {
	CampaignID  id.CampaignID `json:"campaign_id"`
	Contributor id.Identity   `json:"contributor"`
	Requested   id.Amount     `json:"requested"`
	Accepted    id.Amount     `json:"accepted"`
	Refunded    id.Amount     `json:"refunded"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ContributionResult is what a contributor learns about their contribution.
type ContributionResult struct {
	Campaign     *Campaign     `json:"campaign"`
	Contribution *Contribution `json:"contribution"`
}

// Completed reports whether this contribution closed the campaign.
func (r *ContributionResult) Completed() bool {
	return r.Campaign != nil && r.Campaign.Status == StatusCompleted && r.Campaign.Raised == r.Campaign.Goal
}
