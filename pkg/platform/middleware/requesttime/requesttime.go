// Package requesttime pins one "now" per request so timestamps written by a
// single operation agree.
package requesttime

import (
	"net/http"
	"time"

	"crowdfund/pkg/requestcontext"
)

// Middleware pins the request time from the wall clock.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock pins the request time from now.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), now().UTC())))
		})
	}
}
