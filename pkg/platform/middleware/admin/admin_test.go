package admin

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
	audit "crowdfund/pkg/platform/audit"
	"crowdfund/pkg/requestcontext"
)

type fixedGuard id.Identity

func (g fixedGuard) RequireAdministrator(caller id.Identity) error {
	if caller != id.Identity(g) {
		return dErrors.New(dErrors.CodeUnauthorized, "administrator capability required")
	}
	return nil
}

type recordingPublisher struct{ events []audit.Event }

func (p *recordingPublisher) Emit(_ context.Context, e audit.Event) error {
	p.events = append(p.events, e)
	return nil
}

func TestRequireAdministrator(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("admin passes through", func(t *testing.T) {
		pub := &recordingPublisher{}
		req := httptest.NewRequest(http.MethodGet, "/admin/whoami", nil)
		req = req.WithContext(requestcontext.WithIdentity(req.Context(), "0xadmin"))
		rr := httptest.NewRecorder()

		RequireAdministrator(fixedGuard("0xadmin"), pub, logger)(next).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, pub.events)
	})

	t.Run("other callers are denied and audited", func(t *testing.T) {
		pub := &recordingPublisher{}
		req := httptest.NewRequest(http.MethodGet, "/admin/events", nil)
		req = req.WithContext(requestcontext.WithIdentity(req.Context(), "0xmallory"))
		rr := httptest.NewRecorder()

		RequireAdministrator(fixedGuard("0xadmin"), pub, logger)(next).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		require.Len(t, pub.events, 1)
		assert.Equal(t, string(audit.EventAdminAccessDenied), pub.events[0].Action)
		assert.Equal(t, id.Identity("0xmallory"), pub.events[0].Identity)
	})
}
