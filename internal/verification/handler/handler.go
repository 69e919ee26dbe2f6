package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"crowdfund/internal/verification/models"
	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
	audit "crowdfund/pkg/platform/audit"
	"crowdfund/pkg/platform/httputil"
	request "crowdfund/pkg/platform/middleware/request"
	platformstrings "crowdfund/pkg/platform/strings"
	"crowdfund/pkg/requestcontext"
)

// Service defines the identity registry operations exposed over HTTP.
type Service interface {
	SubmitRequest(ctx context.Context, caller id.Identity, fullName, nationalID string) (*models.Request, error)
	Approve(ctx context.Context, admin, target id.Identity) (*models.Request, error)
	Reject(ctx context.Context, admin, target id.Identity) (*models.Request, error)
	IsApproved(ctx context.Context, identity id.Identity) (bool, error)
	GetRequest(ctx context.Context, identity id.Identity) (*models.Request, error)
	ListRequests(ctx context.Context, statuses ...models.Status) ([]*models.Request, error)
}

// EventFeed serves stored and live notifications to administrators.
type EventFeed interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
	List(ctx context.Context, identity id.Identity) ([]audit.Event, error)
	Subscribe(buffer int) (<-chan audit.Event, func())
}

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
	streamBuffer      = 64
)

// Handler serves the verification and admin endpoints. Authentication and the
// administrator gate are applied by the router that mounts it.
type Handler struct {
	service       Service
	events        EventFeed
	administrator id.Identity
	logger        *slog.Logger
}

// New creates a verification Handler. events may be nil, in which case
// /admin/events answers with an empty list and the stream is unavailable.
func New(service Service, events EventFeed, administrator id.Identity, logger *slog.Logger) *Handler {
	return &Handler{
		service:       service,
		events:        events,
		administrator: administrator,
		logger:        logger,
	}
}

// Register mounts the caller-facing routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verification/requests", h.HandleSubmit)
	r.Get("/verification/requests/me", h.HandleGetOwn)
	r.Get("/verification/status/{identity}", h.HandleStatus)
}

// RegisterAdmin mounts the administrator routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/whoami", h.HandleWhoAmI)
	r.Get("/admin/events", h.HandleEvents)
	r.Get("/admin/events/stream", h.HandleEventStream)
	r.Get("/admin/verification/requests", h.HandleList)
	r.Get("/admin/verification/requests/{identity}", h.HandleGet)
	r.Post("/admin/verification/requests/{identity}/approve", h.HandleApprove)
	r.Post("/admin/verification/requests/{identity}/reject", h.HandleReject)
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.service.SubmitRequest(ctx, caller, req.FullName, req.NationalID)
	if err != nil {
		h.writeServiceError(w, ctx, "submit verification request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleGetOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	found, err := h.service.GetRequest(ctx, caller)
	if err != nil {
		h.writeServiceError(w, ctx, "get verification request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	approved, err := h.service.IsApproved(ctx, identity)
	if err != nil {
		h.writeServiceError(w, ctx, "check verification status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.StatusResponse{
		Identity: identity.String(),
		Approved: approved,
	})
}

func (h *Handler) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, models.WhoAmIResponse{Administrator: h.administrator.String()})
}

// HandleList accepts repeated or comma-separated ?status= filters.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var statuses []models.Status
	for _, part := range platformstrings.SplitDedupeLower(r.URL.Query()["status"]) {
		st, err := models.ParseStatus(part)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		statuses = append(statuses, st)
	}

	requests, err := h.service.ListRequests(ctx, statuses...)
	if err != nil {
		h.writeServiceError(w, ctx, "list verification requests", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ListResponse{Requests: requests, Count: len(requests)})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	found, err := h.service.GetRequest(ctx, identity)
	if err != nil {
		h.writeServiceError(w, ctx, "get verification request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, found)
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.service.Approve, "approve verification request")
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.service.Reject, "reject verification request")
}

func (h *Handler) handleDecision(
	w http.ResponseWriter,
	r *http.Request,
	decide func(ctx context.Context, admin, target id.Identity) (*models.Request, error),
	action string,
) {
	ctx := r.Context()
	admin, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	target, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	decided, err := decide(ctx, admin, target)
	if err != nil {
		h.writeServiceError(w, ctx, action, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decided)
}

type eventResponse struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	Action     string    `json:"action"`
	Identity   string    `json:"identity"`
	CampaignID int64     `json:"campaign_id,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type eventsResponse struct {
	Events []eventResponse `json:"events"`
	Count  int             `json:"count"`
}

func toEventResponse(e audit.Event) eventResponse {
	return eventResponse{
		ID:         e.ID.String(),
		Category:   string(e.Category),
		Action:     e.Action,
		Identity:   e.Identity.String(),
		CampaignID: int64(e.CampaignID),
		Amount:     int64(e.Amount),
		Reason:     e.Reason,
		ActorID:    e.ActorID,
		Timestamp:  e.Timestamp,
	}
}

// HandleEvents returns recent notifications, newest first. ?limit= caps the
// result (default 50, max 500). ?identity= instead returns every event about
// that identity, oldest first.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxEventLimit)
	}
	var subject id.Identity
	if raw := r.URL.Query().Get("identity"); raw != "" {
		parsed, err := id.ParseIdentity(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		subject = parsed
	}

	out := eventsResponse{Events: []eventResponse{}}
	if h.events != nil {
		var (
			events []audit.Event
			err    error
		)
		if subject.IsZero() {
			events, err = h.events.Recent(ctx, limit)
		} else {
			events, err = h.events.List(ctx, subject)
		}
		if err != nil {
			h.writeServiceError(w, ctx, "list events", dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
			return
		}
		for _, e := range events {
			out.Events = append(out.Events, toEventResponse(e))
		}
	}
	out.Count = len(out.Events)
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleEventStream sends committed notifications as server-sent events until
// the client goes away or the publisher closes.
func (h *Handler) HandleEventStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.events == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "event stream is not available"))
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.WarnContext(ctx, "failed to clear write deadline for event stream", "error", err)
	}

	feed, cancel := h.events.Subscribe(streamBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.WarnContext(ctx, "event stream not supported by response writer", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-feed:
			if !ok {
				return
			}
			payload, err := json.Marshal(toEventResponse(e))
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to encode event", "action", e.Action, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Action, payload); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) requireCaller(w http.ResponseWriter, ctx context.Context) (id.Identity, bool) {
	caller := requestcontext.Identity(ctx)
	if caller.IsZero() {
		// The identity middleware should have rejected the request already.
		h.logger.ErrorContext(ctx, "caller missing from context despite auth middleware",
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return "", false
	}
	return caller, true
}

func (h *Handler) identityParam(w http.ResponseWriter, r *http.Request) (id.Identity, bool) {
	identity, err := id.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return identity, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, ctx context.Context, action string, err error) {
	requestID := request.GetRequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+action,
			"request_id", requestID,
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, action+" rejected",
			"request_id", requestID,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
