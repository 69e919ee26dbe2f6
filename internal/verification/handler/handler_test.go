package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"crowdfund/internal/verification/handler/mocks"
	"crowdfund/internal/verification/models"
	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
	audit "crowdfund/pkg/platform/audit"
	"crowdfund/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/verification-mocks.go -package=mocks Service,EventFeed

type VerificationHandlerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockService *mocks.MockService
	mockEvents  *mocks.MockEventFeed
	router      chi.Router
}

func TestVerificationHandlerSuite(t *testing.T) {
	suite.Run(t, new(VerificationHandlerSuite))
}

func (s *VerificationHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	s.mockEvents = mocks.NewMockEventFeed(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(s.mockService, s.mockEvents, "0xadmin", logger)
	s.router = chi.NewRouter()
	h.Register(s.router)
	h.RegisterAdmin(s.router)
}

func (s *VerificationHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *VerificationHandlerSuite) do(method, path, body, caller string) *httptest.ResponseRecorder {
	var opts []testutil.RequestOption
	if body != "" {
		opts = append(opts, testutil.WithJSONBody(body))
	}
	if caller != "" {
		opts = append(opts, testutil.AsCaller(caller))
	}
	return testutil.Serve(s.router, testutil.NewRequest(s.T(), method, path, opts...))
}

func (s *VerificationHandlerSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	return testutil.DecodeJSON[map[string]any](s.T(), w)
}

func pending(identity string) *models.Request {
	return &models.Request{
		Identity:    id.Identity(identity),
		FullName:    "Fahad Saleem",
		NationalID:  "12345",
		Status:      models.StatusPending,
		SubmittedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *VerificationHandlerSuite) TestSubmit() {
	s.Run("creates request", func() {
		s.mockService.EXPECT().
			SubmitRequest(gomock.Any(), id.Identity("0xfahad"), "Fahad Saleem", "12345").
			Return(pending("0xfahad"), nil)

		w := s.do(http.MethodPost, "/verification/requests", `{"full_name":"  Fahad   Saleem ","national_id":"12345"}`, "0xfahad")

		s.Equal(http.StatusCreated, w.Code)
		body := s.decode(w)
		s.Equal("0xfahad", body["identity"])
		s.Equal("pending", body["status"])
	})

	s.Run("duplicate submission is a conflict", func() {
		s.mockService.EXPECT().
			SubmitRequest(gomock.Any(), id.Identity("0xfahad"), "Fahad Saleem", "12345").
			Return(nil, dErrors.New(dErrors.CodeAlreadySubmitted, "a verification request already exists for this identity"))

		w := s.do(http.MethodPost, "/verification/requests", `{"full_name":"Fahad Saleem","national_id":"12345"}`, "0xfahad")

		testutil.AssertError(s.T(), w, http.StatusConflict, "already_submitted")
	})

	s.Run("invalid body never reaches the service", func() {
		w := s.do(http.MethodPost, "/verification/requests", `{"full_name":""}`, "0xfahad")
		s.Equal(http.StatusBadRequest, w.Code)

		w = s.do(http.MethodPost, "/verification/requests", `{"unknown":1}`, "0xfahad")
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("missing caller is unauthenticated", func() {
		w := s.do(http.MethodPost, "/verification/requests", `{"full_name":"A","national_id":"1"}`, "")
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}

func (s *VerificationHandlerSuite) TestGetOwn() {
	s.mockService.EXPECT().GetRequest(gomock.Any(), id.Identity("0xfahad")).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "verification request not found"))

	w := s.do(http.MethodGet, "/verification/requests/me", "", "0xfahad")

	s.Equal(http.StatusNotFound, w.Code)
}

func (s *VerificationHandlerSuite) TestStatus() {
	s.Run("reports approval", func() {
		s.mockService.EXPECT().IsApproved(gomock.Any(), id.Identity("0xfahad")).Return(true, nil)

		w := s.do(http.MethodGet, "/verification/status/0xfahad", "", "0xanyone")

		s.Equal(http.StatusOK, w.Code)
		body := s.decode(w)
		s.Equal("0xfahad", body["identity"])
		s.Equal(true, body["approved"])
	})

	s.Run("rejects malformed identity", func() {
		w := s.do(http.MethodGet, "/verification/status/bad%20id", "", "0xanyone")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *VerificationHandlerSuite) TestWhoAmI() {
	w := s.do(http.MethodGet, "/admin/whoami", "", "0xadmin")

	s.Equal(http.StatusOK, w.Code)
	s.Equal("0xadmin", s.decode(w)["administrator"])
}

func (s *VerificationHandlerSuite) TestList() {
	s.Run("without filter", func() {
		s.mockService.EXPECT().ListRequests(gomock.Any()).
			Return([]*models.Request{pending("0xa"), pending("0xb")}, nil)

		w := s.do(http.MethodGet, "/admin/verification/requests", "", "0xadmin")

		s.Equal(http.StatusOK, w.Code)
		s.Equal(float64(2), s.decode(w)["count"])
	})

	s.Run("with status filters", func() {
		s.mockService.EXPECT().ListRequests(gomock.Any(), models.StatusPending, models.StatusRejected).
			Return([]*models.Request{}, nil)

		w := s.do(http.MethodGet, "/admin/verification/requests?status=pending,rejected", "", "0xadmin")

		s.Equal(http.StatusOK, w.Code)
		s.Equal(float64(0), s.decode(w)["count"])
	})

	s.Run("unknown status", func() {
		w := s.do(http.MethodGet, "/admin/verification/requests?status=maybe", "", "0xadmin")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *VerificationHandlerSuite) TestDecisions() {
	s.Run("approve", func() {
		approved := pending("0xfahad")
		approved.Status = models.StatusApproved
		s.mockService.EXPECT().Approve(gomock.Any(), id.Identity("0xadmin"), id.Identity("0xfahad")).
			Return(approved, nil)

		w := s.do(http.MethodPost, "/admin/verification/requests/0xfahad/approve", "", "0xadmin")

		s.Equal(http.StatusOK, w.Code)
		s.Equal("approved", s.decode(w)["status"])
	})

	s.Run("reject of decided request is a conflict", func() {
		s.mockService.EXPECT().Reject(gomock.Any(), id.Identity("0xadmin"), id.Identity("0xfahad")).
			Return(nil, dErrors.New(dErrors.CodeInvalidState, "request already decided"))

		w := s.do(http.MethodPost, "/admin/verification/requests/0xfahad/reject", "", "0xadmin")

		testutil.AssertError(s.T(), w, http.StatusConflict, "invalid_state")
	})

	s.Run("unauthorized caller is forbidden", func() {
		s.mockService.EXPECT().Approve(gomock.Any(), id.Identity("0xmallory"), id.Identity("0xfahad")).
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "administrator only"))

		w := s.do(http.MethodPost, "/admin/verification/requests/0xfahad/approve", "", "0xmallory")

		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("internal errors hide their description", func() {
		s.mockService.EXPECT().Approve(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(errors.New("connection reset"), dErrors.CodeInternal, "failed to load verification request"))

		w := s.do(http.MethodPost, "/admin/verification/requests/0xfahad/approve", "", "0xadmin")

		s.Equal(http.StatusInternalServerError, w.Code)
		body := s.decode(w)
		s.Equal("internal_error", body["error"])
		s.NotContains(body, "error_description")
	})
}

func (s *VerificationHandlerSuite) TestEvents() {
	s.Run("default limit", func() {
		eventID := uuid.New()
		s.mockEvents.EXPECT().Recent(gomock.Any(), defaultEventLimit).Return([]audit.Event{{
			ID:         eventID,
			Category:   audit.CategoryOperations,
			Action:     string(audit.EventContributionReceived),
			Identity:   "0xbacker",
			CampaignID: 1,
			Amount:     500,
		}}, nil)

		w := s.do(http.MethodGet, "/admin/events", "", "0xadmin")

		s.Equal(http.StatusOK, w.Code)
		body := s.decode(w)
		s.Equal(float64(1), body["count"])
		first := body["events"].([]any)[0].(map[string]any)
		s.Equal(eventID.String(), first["id"])
		s.Equal("contribution_received", first["action"])
		s.Equal(float64(500), first["amount"])
	})

	s.Run("limit is capped", func() {
		s.mockEvents.EXPECT().Recent(gomock.Any(), maxEventLimit).Return(nil, nil)

		w := s.do(http.MethodGet, "/admin/events?limit=10000", "", "0xadmin")

		s.Equal(http.StatusOK, w.Code)
		s.Equal(float64(0), s.decode(w)["count"])
	})

	s.Run("invalid limit", func() {
		w := s.do(http.MethodGet, "/admin/events?limit=-1", "", "0xadmin")
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("identity filter lists that identity's events", func() {
		s.mockEvents.EXPECT().List(gomock.Any(), id.Identity("0xbacker")).Return([]audit.Event{
			{ID: uuid.New(), Action: string(audit.EventContributionReceived), Identity: "0xbacker", CampaignID: 1},
			{ID: uuid.New(), Action: string(audit.EventContributionReceived), Identity: "0xbacker", CampaignID: 2},
		}, nil)

		w := s.do(http.MethodGet, "/admin/events?identity=0xbacker", "", "0xadmin")

		s.Equal(http.StatusOK, w.Code)
		body := s.decode(w)
		s.Equal(float64(2), body["count"])
		second := body["events"].([]any)[1].(map[string]any)
		s.Equal(float64(2), second["campaign_id"])
	})

	s.Run("malformed identity filter", func() {
		w := s.do(http.MethodGet, "/admin/events?identity=not%20valid", "", "0xadmin")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *VerificationHandlerSuite) TestEventStream() {
	s.Run("writes committed events until the feed closes", func() {
		feed := make(chan audit.Event, 2)
		eventID := uuid.New()
		feed <- audit.Event{
			ID:       eventID,
			Category: audit.CategoryCompliance,
			Action:   string(audit.EventRequestApproved),
			Identity: "0xfahad",
			ActorID:  "0xadmin",
		}
		close(feed)
		cancelled := false
		s.mockEvents.EXPECT().Subscribe(streamBuffer).Return((<-chan audit.Event)(feed), func() { cancelled = true })

		w := s.do(http.MethodGet, "/admin/events/stream", "", "0xadmin")

		s.Equal(http.StatusOK, w.Code)
		s.Equal("text/event-stream", w.Header().Get("Content-Type"))
		s.True(w.Flushed)
		s.Contains(w.Body.String(), "id: "+eventID.String()+"\n")
		s.Contains(w.Body.String(), "event: verification_request_approved\n")
		s.Contains(w.Body.String(), `"identity":"0xfahad"`)
		s.True(cancelled, "subscription is released when the stream ends")
	})

	s.Run("stops when the client disconnects", func() {
		feed := make(chan audit.Event)
		s.mockEvents.EXPECT().Subscribe(streamBuffer).Return((<-chan audit.Event)(feed), func() {})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		withCtx := func(r *http.Request) *http.Request { return r.WithContext(ctx) }
		req := testutil.NewRequest(s.T(), http.MethodGet, "/admin/events/stream", withCtx, testutil.AsCaller("0xadmin"))
		w := testutil.Serve(s.router, req)

		s.Equal(http.StatusOK, w.Code)
		s.Empty(strings.TrimSpace(w.Body.String()))
	})
}

func TestEvents_NoFeed(t *testing.T) {
	h := New(nil, nil, "0xadmin", slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := httptest.NewRequest(http.MethodGet, "/admin/events", nil).WithContext(context.Background())
	w := httptest.NewRecorder()

	h.HandleEvents(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"events":[]`) {
		t.Fatalf("expected empty events array, got %s", w.Body.String())
	}
}
