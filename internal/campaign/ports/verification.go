package ports

import (
	"context"

	id "crowdfund/pkg/domain"
)

// VerificationPort is the ledger's read-only view of the identity registry.
// Implementations must not mutate verification state.
type VerificationPort interface {
	IsApproved(ctx context.Context, identity id.Identity) (bool, error)
}
