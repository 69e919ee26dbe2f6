//go:generate mockgen -source=payout.go -destination=mocks/mocks.go -package=mocks Transferer

// Package payout moves escrowed campaign funds to the campaign creator.
// Every transfer carries a reference that makes it idempotent: repeating a
// transfer with the same reference returns the original receipt.
package payout

import (
	"context"
	"fmt"
	"time"

	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
)

// Transfer is a single payout instruction.
type Transfer struct {
	Reference string
	Recipient id.Identity
	Amount    id.Amount
}

// Receipt confirms a completed transfer.
type Receipt struct {
	Reference     string      `json:"reference"`
	Recipient     id.Identity `json:"recipient"`
	Amount        id.Amount   `json:"amount"`
	TransferredAt time.Time   `json:"transferred_at"`
}

// Transferer is implemented by every payout backend.
type Transferer interface {
	Transfer(ctx context.Context, t Transfer) (*Receipt, error)
}

// Reference is the idempotency key for a campaign's single payout.
func Reference(campaignID id.CampaignID) string {
	return fmt.Sprintf("campaign-%d-payout", campaignID)
}

func (t Transfer) validate() error {
	if t.Reference == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer reference is required")
	}
	if t.Recipient.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer recipient is required")
	}
	if !t.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer amount must be positive")
	}
	return nil
}

// matches reports whether a stored receipt describes the same transfer.
func (r *Receipt) matches(t Transfer) error {
	if r.Recipient != t.Recipient || r.Amount != t.Amount {
		return dErrors.Newf(dErrors.CodeConflict, "transfer %s already issued with different terms", t.Reference)
	}
	return nil
}
