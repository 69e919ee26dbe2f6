package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crowdfund/internal/campaign/metrics"
	"crowdfund/internal/campaign/models"
	"crowdfund/internal/campaign/ports"
	"crowdfund/internal/payout"
	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
	audit "crowdfund/pkg/platform/audit"
	"crowdfund/pkg/platform/sentinel"
	"crowdfund/pkg/platform/tx"
	"crowdfund/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, c *models.Campaign) error
	FindByID(ctx context.Context, campaignID id.CampaignID) (*models.Campaign, error)
	FindForUpdate(ctx context.Context, campaignID id.CampaignID) (*models.Campaign, error)
	Update(ctx context.Context, c *models.Campaign) error
	List(ctx context.Context) ([]*models.Campaign, error)
	ListIDs(ctx context.Context) ([]id.CampaignID, error)
	AddContribution(ctx context.Context, c *models.Contribution) error
	ListContributions(ctx context.Context, campaignID id.CampaignID) ([]*models.Contribution, error)
	ContributionTotal(ctx context.Context, campaignID id.CampaignID, contributor id.Identity) (id.Amount, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the campaign ledger: it owns campaigns, their contribution
// accounting and the single payout of each completed campaign.
type Service struct {
	store          Store
	verifier       ports.VerificationPort
	transferer     payout.Transferer
	tx             tx.Runner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx replaces the default in-memory sharded runner, e.g. with tx.NewSQL.
func WithTx(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func New(store Store, verifier ports.VerificationPort, transferer payout.Transferer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("campaign store is required")
	}
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if transferer == nil {
		return nil, errors.New("transferer is required")
	}
	s := &Service{
		store:      store,
		verifier:   verifier,
		transferer: transferer,
		tracer:     otel.Tracer("crowdfund/campaign"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewSharded(tx.DefaultTimeout)
	}
	return s, nil
}

func txKey(campaignID id.CampaignID) string {
	return "campaign:" + campaignID.String()
}

// CreateCampaign opens an active campaign for an approved caller.
// Eligibility is checked before the goal.
func (s *Service) CreateCampaign(ctx context.Context, caller id.Identity, title, description string, goal id.Amount) (_ *models.Campaign, err error) {
	ctx, end := s.startSpan(ctx, "CreateCampaign", attribute.String("creator", caller.String()))
	defer func() { end(err) }()
	defer s.observe("create", time.Now())

	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "caller identity is required")
	}
	approved, err := s.verifier.IsApproved(ctx, caller)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check verification status")
	}
	if !approved {
		return nil, dErrors.New(dErrors.CodeNotVerified, "caller is not verified")
	}
	if !goal.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvalidGoal, "goal must be greater than zero")
	}

	c, err := models.NewCampaign(caller, title, description, goal, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
		}
		return nil, err
	}

	err = s.tx.RunInTx(ctx, "campaign:create", func(ctx context.Context) error {
		if err := s.store.Create(ctx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store campaign")
		}
		return s.emit(ctx, audit.Event{
			Identity:   caller,
			Action:     string(audit.EventCampaignCreated),
			CampaignID: c.ID,
			Amount:     goal,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(audit.EventCampaignCreated),
		"campaign_id", c.ID.String(),
		"creator", caller.String(),
		"goal", goal.String(),
	)
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
	return c, nil
}

// Contribute adds amount to an active campaign. Only the part that fits under
// the goal is accepted; the rest is reported as refunded and never held.
// Checks run in order: existence, status, amount.
func (s *Service) Contribute(ctx context.Context, caller id.Identity, campaignID id.CampaignID, amount id.Amount) (_ *models.ContributionResult, err error) {
	ctx, end := s.startSpan(ctx, "Contribute",
		attribute.Int64("campaign_id", int64(campaignID)),
		attribute.String("contributor", caller.String()),
	)
	defer func() { end(err) }()
	defer s.observe("contribute", time.Now())

	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "caller identity is required")
	}

	var result *models.ContributionResult
	err = s.tx.RunInTx(ctx, txKey(campaignID), func(ctx context.Context) error {
		c, err := s.load(ctx, campaignID, true)
		if err != nil {
			return err
		}
		if !c.IsActive() {
			return dErrors.Newf(dErrors.CodeCampaignClosed, "campaign is %s", c.Status)
		}
		if !amount.IsPositive() {
			return dErrors.New(dErrors.CodeInvalidAmount, "amount must be greater than zero")
		}

		prior, err := s.store.ContributionTotal(ctx, campaignID, caller)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contribution total")
		}
		now := requestcontext.Now(ctx)
		accepted, refunded, err := c.Accept(amount, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "contribution rejected by campaign invariants")
		}
		if prior == 0 {
			c.ContributorCount++
		}

		if err := s.emit(ctx, audit.Event{
			Identity:   caller,
			Action:     string(audit.EventContributionReceived),
			CampaignID: campaignID,
			Amount:     accepted,
		}); err != nil {
			return err
		}
		if c.Status == models.StatusCompleted {
			if err := s.emit(ctx, audit.Event{
				Identity:   c.Creator,
				Action:     string(audit.EventCampaignCompleted),
				CampaignID: campaignID,
				Amount:     c.Raised,
			}); err != nil {
				return err
			}
		}

		if err := s.store.Update(ctx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update campaign")
		}
		contribution := &models.Contribution{
			CampaignID:  campaignID,
			Contributor: caller,
			Requested:   amount,
			Accepted:    accepted,
			Refunded:    refunded,
			CreatedAt:   now,
		}
		if err := s.store.AddContribution(ctx, contribution); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record contribution")
		}
		result = &models.ContributionResult{Campaign: c, Contribution: contribution}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(audit.EventContributionReceived),
		"campaign_id", campaignID.String(),
		"contributor", caller.String(),
		"accepted", result.Contribution.Accepted.String(),
		"refunded", result.Contribution.Refunded.String(),
	)
	if result.Completed() {
		s.logAudit(ctx, string(audit.EventCampaignCompleted), "campaign_id", campaignID.String())
	}
	if s.metrics != nil {
		s.metrics.ObserveContribution(int64(result.Contribution.Accepted), int64(result.Contribution.Refunded), result.Completed())
	}
	return result, nil
}

// Withdraw pays the raised amount of a completed campaign to its creator and
// marks it withdrawn. The transfer runs inside the campaign's critical
// section before the status flip, so a failed transfer leaves the campaign
// completed and a concurrent withdraw sees withdrawn once this one commits.
func (s *Service) Withdraw(ctx context.Context, caller id.Identity, campaignID id.CampaignID) (_ *models.Campaign, _ *payout.Receipt, err error) {
	ctx, end := s.startSpan(ctx, "Withdraw",
		attribute.Int64("campaign_id", int64(campaignID)),
		attribute.String("caller", caller.String()),
	)
	defer func() { end(err) }()
	defer s.observe("withdraw", time.Now())

	if caller.IsZero() {
		return nil, nil, dErrors.New(dErrors.CodeUnauthenticated, "caller identity is required")
	}

	var (
		withdrawn *models.Campaign
		receipt   *payout.Receipt
		attempted id.Amount
	)
	err = s.tx.RunInTx(ctx, txKey(campaignID), func(ctx context.Context) error {
		c, err := s.load(ctx, campaignID, true)
		if err != nil {
			return err
		}
		if err := c.CanWithdraw(caller); err != nil {
			return err
		}

		attempted = c.Raised
		receipt, err = s.transferer.Transfer(ctx, payout.Transfer{
			Reference: payout.Reference(campaignID),
			Recipient: caller,
			Amount:    c.Raised,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeTransferFailed, "fund transfer failed")
		}

		if err := c.MarkWithdrawn(requestcontext.Now(ctx)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "withdrawal rejected by campaign invariants")
		}
		if err := s.emit(ctx, audit.Event{
			Identity:   caller,
			Action:     string(audit.EventFundsWithdrawn),
			CampaignID: campaignID,
			Amount:     c.Raised,
			Reason:     receipt.Reference,
		}); err != nil {
			return err
		}
		if err := s.store.Update(ctx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update campaign")
		}
		withdrawn = c
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTransferFailed) {
			s.recordFailedWithdrawal(ctx, caller, campaignID, attempted, err)
		}
		return nil, nil, err
	}

	s.logAudit(ctx, string(audit.EventFundsWithdrawn),
		"campaign_id", campaignID.String(),
		"recipient", caller.String(),
		"amount", withdrawn.Raised.String(),
		"reference", receipt.Reference,
	)
	if s.metrics != nil {
		s.metrics.IncrementWithdrawal("success")
	}
	return withdrawn, receipt, nil
}

// recordFailedWithdrawal runs after the rollback; its event is best effort.
func (s *Service) recordFailedWithdrawal(ctx context.Context, caller id.Identity, campaignID id.CampaignID, amount id.Amount, cause error) {
	if s.metrics != nil {
		s.metrics.IncrementWithdrawal("transfer_failed")
	}
	s.logWarn(ctx, "withdrawal transfer failed",
		"campaign_id", campaignID.String(),
		"recipient", caller.String(),
		"error", cause,
	)
	if err := s.emit(ctx, audit.Event{
		Identity:   caller,
		Action:     string(audit.EventWithdrawalFailed),
		CampaignID: campaignID,
		Amount:     amount,
		Reason:     dErrors.Message(cause),
	}); err != nil {
		s.logWarn(ctx, "failed to publish withdrawal failure", "campaign_id", campaignID.String(), "error", err)
	}
}

func (s *Service) GetCampaign(ctx context.Context, campaignID id.CampaignID) (_ *models.Campaign, err error) {
	ctx, end := s.startSpan(ctx, "GetCampaign", attribute.Int64("campaign_id", int64(campaignID)))
	defer func() { end(err) }()
	return s.load(ctx, campaignID, false)
}

// ListCampaignIDs returns every id in creation order.
func (s *Service) ListCampaignIDs(ctx context.Context) (_ []id.CampaignID, err error) {
	ctx, end := s.startSpan(ctx, "ListCampaignIDs")
	defer func() { end(err) }()

	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list campaign ids")
	}
	if ids == nil {
		ids = []id.CampaignID{}
	}
	return ids, nil
}

// ListCampaigns returns every campaign in creation order.
func (s *Service) ListCampaigns(ctx context.Context) (_ []*models.Campaign, err error) {
	ctx, end := s.startSpan(ctx, "ListCampaigns")
	defer func() { end(err) }()

	out, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list campaigns")
	}
	if out == nil {
		out = []*models.Campaign{}
	}
	return out, nil
}

func (s *Service) ListContributions(ctx context.Context, campaignID id.CampaignID) (_ []*models.Contribution, err error) {
	ctx, end := s.startSpan(ctx, "ListContributions", attribute.Int64("campaign_id", int64(campaignID)))
	defer func() { end(err) }()

	if _, err := s.load(ctx, campaignID, false); err != nil {
		return nil, err
	}
	out, err := s.store.ListContributions(ctx, campaignID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list contributions")
	}
	if out == nil {
		out = []*models.Contribution{}
	}
	return out, nil
}

// ContributionOf returns the total accepted from contributor.
func (s *Service) ContributionOf(ctx context.Context, campaignID id.CampaignID, contributor id.Identity) (_ id.Amount, err error) {
	ctx, end := s.startSpan(ctx, "ContributionOf", attribute.Int64("campaign_id", int64(campaignID)))
	defer func() { end(err) }()

	if _, err := s.load(ctx, campaignID, false); err != nil {
		return 0, err
	}
	total, err := s.store.ContributionTotal(ctx, campaignID, contributor)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load contribution total")
	}
	return total, nil
}

func (s *Service) load(ctx context.Context, campaignID id.CampaignID, forUpdate bool) (*models.Campaign, error) {
	find := s.store.FindByID
	if forUpdate {
		find = s.store.FindForUpdate
	}
	c, err := find(ctx, campaignID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "campaign %d not found", campaignID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load campaign")
	}
	return c, nil
}

// emit runs inside the mutation's transaction; a failure aborts it. Updates
// emit before writing; creation emits after the store assigns the id.
func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to publish event")
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

func (s *Service) logWarn(ctx context.Context, msg string, attributes ...any) {
	if s.logger == nil {
		return
	}
	attributes = append(attributes, "request_id", requestcontext.RequestID(ctx))
	s.logger.WarnContext(ctx, msg, attributes...)
}

func (s *Service) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, start)
	}
}

func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "campaign."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
	}
}
