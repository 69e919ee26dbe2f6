package adapters

import (
	"context"

	"crowdfund/internal/campaign/ports"
	verificationService "crowdfund/internal/verification/service"
	id "crowdfund/pkg/domain"
)

// VerificationAdapter is an in-process adapter that implements
// ports.VerificationPort by calling the verification service directly.
type VerificationAdapter struct {
	verificationService *verificationService.Service
}

func NewVerificationAdapter(verificationService *verificationService.Service) ports.VerificationPort {
	return &VerificationAdapter{
		verificationService: verificationService,
	}
}

// IsApproved reports whether identity may create campaigns. Unknown
// identities are simply not approved.
func (a *VerificationAdapter) IsApproved(ctx context.Context, identity id.Identity) (bool, error) {
	return a.verificationService.IsApproved(ctx, identity)
}
