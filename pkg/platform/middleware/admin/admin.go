// Package admin gates routes to the configured administrator identity.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	id "crowdfund/pkg/domain"
	audit "crowdfund/pkg/platform/audit"
	"crowdfund/pkg/platform/httputil"
	request "crowdfund/pkg/platform/middleware/request"
	"crowdfund/pkg/requestcontext"
)

// Guard decides whether caller holds the administrator capability.
type Guard interface {
	RequireAdministrator(caller id.Identity) error
}

// AuditPublisher records denied attempts. Optional.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// RequireAdministrator must run after the identity middleware.
func RequireAdministrator(guard Guard, publisher AuditPublisher, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := requestcontext.Identity(ctx)
			if err := guard.RequireAdministrator(caller); err != nil {
				requestID := request.GetRequestID(ctx)
				logger.WarnContext(ctx, "admin access denied",
					"caller", caller.String(),
					"path", r.URL.Path,
					"request_id", requestID,
				)
				if publisher != nil {
					if emitErr := publisher.Emit(ctx, audit.Event{
						Identity:  caller,
						Action:    string(audit.EventAdminAccessDenied),
						Reason:    r.Method + " " + r.URL.Path,
						RequestID: requestID,
					}); emitErr != nil {
						logger.ErrorContext(ctx, "failed to record admin denial",
							"error", emitErr,
							"request_id", requestID,
						)
					}
				}
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
