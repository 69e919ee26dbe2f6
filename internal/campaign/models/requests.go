package models

import (
	"strings"
	"time"
)

// CreateRequest is the body of POST /campaigns. Goal, title and description
// are checked by the service so an unapproved caller always gets not_verified.
type CreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Goal        int64  `json:"goal_amount"`
}

func (r *CreateRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
}

func (r *CreateRequest) Validate() error { return nil }

// ContributeRequest is the body of POST /campaigns/{id}/contributions.
// Amount is checked by the service after the campaign's existence and status.
type ContributeRequest struct {
	Amount int64 `json:"amount"`
}

func (r *ContributeRequest) Normalize() {}

func (r *ContributeRequest) Validate() error { return nil }

type ListResponse struct {
	Campaigns []*Campaign `json:"campaigns"`
	Count     int         `json:"count"`
}

type IDsResponse struct {
	IDs []int64 `json:"ids"`
}

type ContributionsResponse struct {
	Contributions []*Contribution `json:"contributions"`
	Count         int             `json:"count"`
}

// WithdrawResponse reports the campaign after payout and the transfer receipt.
type WithdrawResponse struct {
	Campaign      *Campaign `json:"campaign"`
	Reference     string    `json:"reference"`
	Amount        int64     `json:"amount"`
	TransferredAt time.Time `json:"transferred_at"`
}

// ContributorTotalResponse answers GET /campaigns/{id}/contributions?contributor=.
type ContributorTotalResponse struct {
	CampaignID  int64  `json:"campaign_id"`
	Contributor string `json:"contributor"`
	Total       int64  `json:"total"`
}
