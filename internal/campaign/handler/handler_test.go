package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"crowdfund/internal/campaign/handler/mocks"
	"crowdfund/internal/campaign/models"
	"crowdfund/internal/payout"
	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
	"crowdfund/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/campaign-mocks.go -package=mocks Service

type CampaignHandlerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockService *mocks.MockService
	router      chi.Router
}

func TestCampaignHandlerSuite(t *testing.T) {
	suite.Run(t, new(CampaignHandlerSuite))
}

func (s *CampaignHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	h := New(s.mockService, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *CampaignHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *CampaignHandlerSuite) do(method, path, body, caller string) *httptest.ResponseRecorder {
	var opts []testutil.RequestOption
	if body != "" {
		opts = append(opts, testutil.WithJSONBody(body))
	}
	if caller != "" {
		opts = append(opts, testutil.AsCaller(caller))
	}
	return testutil.Serve(s.router, testutil.NewRequest(s.T(), method, path, opts...))
}

func (s *CampaignHandlerSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	return testutil.DecodeJSON[map[string]any](s.T(), w)
}

func campaign(status models.Status, raised id.Amount) *models.Campaign {
	return &models.Campaign{
		ID:        1,
		Creator:   "0xfahad",
		Title:     "Clean water",
		Goal:      100,
		Raised:    raised,
		Status:    status,
		CreatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *CampaignHandlerSuite) TestCreate() {
	s.Run("creates campaign", func() {
		s.mockService.EXPECT().
			CreateCampaign(gomock.Any(), id.Identity("0xfahad"), "Clean water", "Wells", id.Amount(100)).
			Return(campaign(models.StatusActive, 0), nil)

		w := s.do(http.MethodPost, "/campaigns", `{"title":" Clean water ","description":"Wells","goal_amount":100}`, "0xfahad")

		s.Equal(http.StatusCreated, w.Code)
		s.Equal("/campaigns/1", w.Header().Get("Location"))
		body := s.decode(w)
		s.Equal(float64(1), body["id"])
		s.Equal("active", body["status"])
	})

	s.Run("unverified caller is forbidden", func() {
		s.mockService.EXPECT().CreateCampaign(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotVerified, "caller is not verified"))

		w := s.do(http.MethodPost, "/campaigns", `{"title":"t","goal_amount":100}`, "0xstranger")

		testutil.AssertError(s.T(), w, http.StatusForbidden, "not_verified")
	})

	s.Run("invalid goal", func() {
		s.mockService.EXPECT().CreateCampaign(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), id.Amount(0)).
			Return(nil, dErrors.New(dErrors.CodeInvalidGoal, "goal must be greater than zero"))

		w := s.do(http.MethodPost, "/campaigns", `{"title":"t","goal_amount":0}`, "0xfahad")

		testutil.AssertError(s.T(), w, http.StatusBadRequest, "invalid_goal")
	})

	s.Run("unverified caller with an empty title is still forbidden", func() {
		s.mockService.EXPECT().CreateCampaign(gomock.Any(), id.Identity("0xstranger"), "", "x", id.Amount(100)).
			Return(nil, dErrors.New(dErrors.CodeNotVerified, "caller is not verified"))

		w := s.do(http.MethodPost, "/campaigns", `{"title":"","description":"x","goal_amount":100}`, "0xstranger")

		testutil.AssertError(s.T(), w, http.StatusForbidden, "not_verified")
	})

	s.Run("missing title is reported by the service", func() {
		s.mockService.EXPECT().CreateCampaign(gomock.Any(), id.Identity("0xfahad"), "", "", id.Amount(5)).
			Return(nil, dErrors.New(dErrors.CodeValidation, "title is required"))

		w := s.do(http.MethodPost, "/campaigns", `{"goal_amount":5}`, "0xfahad")

		testutil.AssertError(s.T(), w, http.StatusBadRequest, "validation_error")
	})
}

func (s *CampaignHandlerSuite) TestList() {
	s.Run("details", func() {
		s.mockService.EXPECT().ListCampaigns(gomock.Any()).
			Return([]*models.Campaign{campaign(models.StatusActive, 0)}, nil)

		w := s.do(http.MethodGet, "/campaigns", "", "0xfahad")

		s.Equal(http.StatusOK, w.Code)
		s.Equal(float64(1), s.decode(w)["count"])
	})

	s.Run("ids only", func() {
		s.mockService.EXPECT().ListCampaignIDs(gomock.Any()).Return([]id.CampaignID{1, 2, 3}, nil)

		w := s.do(http.MethodGet, "/campaigns?ids_only=true", "", "0xfahad")

		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`{"ids":[1,2,3]}`, w.Body.String())
	})

	s.Run("bad ids_only", func() {
		w := s.do(http.MethodGet, "/campaigns?ids_only=maybe", "", "0xfahad")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *CampaignHandlerSuite) TestGet() {
	s.Run("found", func() {
		s.mockService.EXPECT().GetCampaign(gomock.Any(), id.CampaignID(1)).
			Return(campaign(models.StatusCompleted, 100), nil)

		w := s.do(http.MethodGet, "/campaigns/1", "", "0xfahad")

		s.Equal(http.StatusOK, w.Code)
		body := s.decode(w)
		s.Equal("completed", body["status"])
		s.Equal(float64(100), body["raised_amount"])
	})

	s.Run("not found", func() {
		s.mockService.EXPECT().GetCampaign(gomock.Any(), id.CampaignID(9)).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "campaign 9 not found"))

		w := s.do(http.MethodGet, "/campaigns/9", "", "0xfahad")

		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("malformed id", func() {
		w := s.do(http.MethodGet, "/campaigns/abc", "", "0xfahad")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *CampaignHandlerSuite) TestContribute() {
	s.Run("reports accepted and refunded", func() {
		s.mockService.EXPECT().Contribute(gomock.Any(), id.Identity("0xbacker"), id.CampaignID(1), id.Amount(50)).
			Return(&models.ContributionResult{
				Campaign: campaign(models.StatusCompleted, 100),
				Contribution: &models.Contribution{
					CampaignID: 1, Contributor: "0xbacker", Requested: 50, Accepted: 30, Refunded: 20,
				},
			}, nil)

		w := s.do(http.MethodPost, "/campaigns/1/contributions", `{"amount":50}`, "0xbacker")

		s.Equal(http.StatusOK, w.Code)
		contribution := s.decode(w)["contribution"].(map[string]any)
		s.Equal(float64(30), contribution["accepted"])
		s.Equal(float64(20), contribution["refunded"])
	})

	s.Run("closed campaign is a conflict", func() {
		s.mockService.EXPECT().Contribute(gomock.Any(), gomock.Any(), id.CampaignID(1), id.Amount(10)).
			Return(nil, dErrors.New(dErrors.CodeCampaignClosed, "campaign is completed"))

		w := s.do(http.MethodPost, "/campaigns/1/contributions", `{"amount":10}`, "0xbacker")

		testutil.AssertError(s.T(), w, http.StatusConflict, "campaign_closed")
	})

	s.Run("missing caller", func() {
		w := s.do(http.MethodPost, "/campaigns/1/contributions", `{"amount":10}`, "")
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}

func (s *CampaignHandlerSuite) TestContributions() {
	s.Run("list", func() {
		s.mockService.EXPECT().ListContributions(gomock.Any(), id.CampaignID(1)).
			Return([]*models.Contribution{{CampaignID: 1, Contributor: "0xa", Requested: 5, Accepted: 5}}, nil)

		w := s.do(http.MethodGet, "/campaigns/1/contributions", "", "0xfahad")

		s.Equal(http.StatusOK, w.Code)
		s.Equal(float64(1), s.decode(w)["count"])
	})

	s.Run("total for contributor", func() {
		s.mockService.EXPECT().ContributionOf(gomock.Any(), id.CampaignID(1), id.Identity("0xa")).
			Return(id.Amount(75), nil)

		w := s.do(http.MethodGet, "/campaigns/1/contributions?contributor=0xa", "", "0xfahad")

		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(`{"campaign_id":1,"contributor":"0xa","total":75}`, w.Body.String())
	})
}

func (s *CampaignHandlerSuite) TestWithdraw() {
	s.Run("pays out", func() {
		withdrawn := campaign(models.StatusWithdrawn, 100)
		s.mockService.EXPECT().Withdraw(gomock.Any(), id.Identity("0xfahad"), id.CampaignID(1)).
			Return(withdrawn, &payout.Receipt{Reference: "campaign-1-payout", Recipient: "0xfahad", Amount: 100}, nil)

		w := s.do(http.MethodPost, "/campaigns/1/withdraw", "", "0xfahad")

		s.Equal(http.StatusOK, w.Code)
		body := s.decode(w)
		s.Equal("campaign-1-payout", body["reference"])
		s.Equal(float64(100), body["amount"])
	})

	s.Run("non-creator is forbidden", func() {
		s.mockService.EXPECT().Withdraw(gomock.Any(), id.Identity("0xmallory"), id.CampaignID(1)).
			Return(nil, nil, dErrors.New(dErrors.CodeUnauthorized, "only the campaign creator can withdraw"))

		w := s.do(http.MethodPost, "/campaigns/1/withdraw", "", "0xmallory")

		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("second withdrawal is a conflict", func() {
		s.mockService.EXPECT().Withdraw(gomock.Any(), gomock.Any(), id.CampaignID(1)).
			Return(nil, nil, dErrors.New(dErrors.CodeNotWithdrawable, "campaign is withdrawn"))

		w := s.do(http.MethodPost, "/campaigns/1/withdraw", "", "0xfahad")

		testutil.AssertError(s.T(), w, http.StatusConflict, "not_withdrawable")
	})

	s.Run("failed transfer is a bad gateway", func() {
		s.mockService.EXPECT().Withdraw(gomock.Any(), gomock.Any(), id.CampaignID(1)).
			Return(nil, nil, dErrors.New(dErrors.CodeTransferFailed, "fund transfer failed"))

		w := s.do(http.MethodPost, "/campaigns/1/withdraw", "", "0xfahad")

		testutil.AssertError(s.T(), w, http.StatusBadGateway, "transfer_failed")
	})
}
