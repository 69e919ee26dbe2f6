package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"crowdfund/internal/campaign/models"
	"crowdfund/internal/payout"
	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
	"crowdfund/pkg/platform/httputil"
	request "crowdfund/pkg/platform/middleware/request"
	"crowdfund/pkg/requestcontext"
)

// Service defines the campaign ledger operations exposed over HTTP.
type Service interface {
	CreateCampaign(ctx context.Context, caller id.Identity, title, description string, goal id.Amount) (*models.Campaign, error)
	Contribute(ctx context.Context, caller id.Identity, campaignID id.CampaignID, amount id.Amount) (*models.ContributionResult, error)
	Withdraw(ctx context.Context, caller id.Identity, campaignID id.CampaignID) (*models.Campaign, *payout.Receipt, error)
	GetCampaign(ctx context.Context, campaignID id.CampaignID) (*models.Campaign, error)
	ListCampaigns(ctx context.Context) ([]*models.Campaign, error)
	ListCampaignIDs(ctx context.Context) ([]id.CampaignID, error)
	ListContributions(ctx context.Context, campaignID id.CampaignID) ([]*models.Contribution, error)
	ContributionOf(ctx context.Context, campaignID id.CampaignID, contributor id.Identity) (id.Amount, error)
}

// Handler serves the campaign endpoints. The identity middleware must run first.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/campaigns", h.HandleCreate)
	r.Get("/campaigns", h.HandleList)
	r.Get("/campaigns/{id}", h.HandleGet)
	r.Post("/campaigns/{id}/contributions", h.HandleContribute)
	r.Get("/campaigns/{id}/contributions", h.HandleListContributions)
	r.Post("/campaigns/{id}/withdraw", h.HandleWithdraw)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.service.CreateCampaign(ctx, caller, req.Title, req.Description, id.Amount(req.Goal))
	if err != nil {
		h.writeServiceError(w, ctx, "create campaign", err)
		return
	}
	w.Header().Set("Location", "/campaigns/"+c.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, c)
}

// HandleList returns campaign details, or only their ids with ?ids_only=true.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idsOnly := false
	if raw := r.URL.Query().Get("ids_only"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "ids_only must be a boolean"))
			return
		}
		idsOnly = parsed
	}

	if idsOnly {
		ids, err := h.service.ListCampaignIDs(ctx)
		if err != nil {
			h.writeServiceError(w, ctx, "list campaign ids", err)
			return
		}
		out := models.IDsResponse{IDs: make([]int64, len(ids))}
		for i, v := range ids {
			out.IDs[i] = int64(v)
		}
		httputil.WriteJSON(w, http.StatusOK, out)
		return
	}

	campaigns, err := h.service.ListCampaigns(ctx)
	if err != nil {
		h.writeServiceError(w, ctx, "list campaigns", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ListResponse{Campaigns: campaigns, Count: len(campaigns)})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	campaignID, ok := h.campaignParam(w, r)
	if !ok {
		return
	}
	c, err := h.service.GetCampaign(ctx, campaignID)
	if err != nil {
		h.writeServiceError(w, ctx, "get campaign", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleContribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	campaignID, ok := h.campaignParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.ContributeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Contribute(ctx, caller, campaignID, id.Amount(req.Amount))
	if err != nil {
		h.writeServiceError(w, ctx, "contribute", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleListContributions lists every contribution, or with ?contributor=
// returns that contributor's accepted total.
func (h *Handler) HandleListContributions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	campaignID, ok := h.campaignParam(w, r)
	if !ok {
		return
	}

	if raw := r.URL.Query().Get("contributor"); raw != "" {
		contributor, err := id.ParseIdentity(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		total, err := h.service.ContributionOf(ctx, campaignID, contributor)
		if err != nil {
			h.writeServiceError(w, ctx, "get contribution total", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, models.ContributorTotalResponse{
			CampaignID:  int64(campaignID),
			Contributor: contributor.String(),
			Total:       int64(total),
		})
		return
	}

	contributions, err := h.service.ListContributions(ctx, campaignID)
	if err != nil {
		h.writeServiceError(w, ctx, "list contributions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ContributionsResponse{
		Contributions: contributions,
		Count:         len(contributions),
	})
}

func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	campaignID, ok := h.campaignParam(w, r)
	if !ok {
		return
	}

	c, receipt, err := h.service.Withdraw(ctx, caller, campaignID)
	if err != nil {
		h.writeServiceError(w, ctx, "withdraw", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.WithdrawResponse{
		Campaign:      c,
		Reference:     receipt.Reference,
		Amount:        int64(receipt.Amount),
		TransferredAt: receipt.TransferredAt,
	})
}

func (h *Handler) requireCaller(w http.ResponseWriter, ctx context.Context) (id.Identity, bool) {
	caller := requestcontext.Identity(ctx)
	if caller.IsZero() {
		h.logger.ErrorContext(ctx, "caller missing from context despite auth middleware",
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "authentication required"))
		return "", false
	}
	return caller, true
}

func (h *Handler) campaignParam(w http.ResponseWriter, r *http.Request) (id.CampaignID, bool) {
	campaignID, err := id.ParseCampaignID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return campaignID, true
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
