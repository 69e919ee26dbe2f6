// Package access holds the single-administrator capability check shared by
// the verification and campaign modules.
package access

import (
	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
)

// Controller is immutable after construction and safe for concurrent use.
type Controller struct {
	administrator id.Identity
}

// New fixes the administrator identity. A zero identity is rejected so a
// misconfigured process cannot grant the capability to unauthenticated callers.
func New(administrator id.Identity) (*Controller, error) {
	if administrator.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "administrator identity is required")
	}
	return &Controller{administrator: administrator}, nil
}

// Administrator returns the configured administrator identity.
func (c *Controller) Administrator() id.Identity {
	return c.administrator
}

// RequireAdministrator fails with CodeUnauthorized unless caller is the administrator.
func (c *Controller) RequireAdministrator(caller id.Identity) error {
	if caller.IsZero() || caller != c.administrator {
		return dErrors.New(dErrors.CodeUnauthorized, "administrator capability required")
	}
	return nil
}
