package testutil

import (
	"net/http"

	id "crowdfund/pkg/domain"
	"crowdfund/pkg/requestcontext"
)

// WithIdentity stands in for the identity middleware. Identities that would
// fail parsing are left off so handlers see an anonymous caller.
func WithIdentity(req *http.Request, identity string) *http.Request {
	parsed, err := id.ParseIdentity(identity)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithIdentity(req.Context(), parsed))
}
