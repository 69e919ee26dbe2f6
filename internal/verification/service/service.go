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

	"crowdfund/internal/verification/metrics"
	"crowdfund/internal/verification/models"
	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
	audit "crowdfund/pkg/platform/audit"
	"crowdfund/pkg/platform/sentinel"
	"crowdfund/pkg/platform/tx"
	"crowdfund/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, r *models.Request) error
	FindByIdentity(ctx context.Context, identity id.Identity) (*models.Request, error)
	FindForUpdate(ctx context.Context, identity id.Identity) (*models.Request, error)
	Update(ctx context.Context, r *models.Request) error
	List(ctx context.Context, statuses ...models.Status) ([]*models.Request, error)
}

// Guard holds the administrator capability.
type Guard interface {
	RequireAdministrator(caller id.Identity) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ApprovalCache remembers approved identities. Failures degrade to store reads.
type ApprovalCache interface {
	IsApproved(ctx context.Context, identity id.Identity) (bool, error)
	MarkApproved(ctx context.Context, identity id.Identity) error
}

// Service is the identity registry: it owns verification requests and their
// pending -> approved/rejected workflow.
type Service struct {
	store          Store
	guard          Guard
	tx             tx.Runner
	cache          ApprovalCache
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

func WithApprovalCache(cache ApprovalCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithTx replaces the default in-memory sharded runner, e.g. with tx.NewSQL.
func WithTx(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func New(store Store, guard Guard, opts ...Option) *Service {
	s := &Service{
		store:  store,
		guard:  guard,
		tracer: otel.Tracer("crowdfund/verification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewSharded(tx.DefaultTimeout)
	}
	return s
}

func txKey(identity id.Identity) string {
	return "verification:" + identity.String()
}

// SubmitRequest records a pending request for caller. Any existing request,
// whatever its status, fails with CodeAlreadySubmitted.
func (s *Service) SubmitRequest(ctx context.Context, caller id.Identity, fullName, nationalID string) (_ *models.Request, err error) {
	ctx, end := s.startSpan(ctx, "SubmitRequest", attribute.String("identity", caller.String()))
	defer func() { end(err) }()

	req := models.SubmitRequest{FullName: fullName, NationalID: nationalID}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "caller identity is required")
	}

	r, err := models.NewRequest(caller, req.FullName, req.NationalID, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
		}
		return nil, err
	}

	err = s.tx.RunInTx(ctx, txKey(caller), func(ctx context.Context) error {
		if err := s.emit(ctx, audit.Event{
			Identity: caller,
			Action:   string(audit.EventRequestSubmitted),
		}); err != nil {
			return err
		}
		if err := s.store.Create(ctx, r); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeAlreadySubmitted, "a verification request already exists for this identity")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store verification request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(audit.EventRequestSubmitted), "identity", caller.String())
	if s.metrics != nil {
		s.metrics.IncrementSubmitted()
	}
	return r, nil
}

// Approve moves target's pending request to approved.
func (s *Service) Approve(ctx context.Context, admin, target id.Identity) (*models.Request, error) {
	return s.decide(ctx, "Approve", admin, target, models.StatusApproved, audit.EventRequestApproved)
}

// Reject moves target's pending request to rejected.
func (s *Service) Reject(ctx context.Context, admin, target id.Identity) (*models.Request, error) {
	return s.decide(ctx, "Reject", admin, target, models.StatusRejected, audit.EventRequestRejected)
}

func (s *Service) decide(ctx context.Context, op string, admin, target id.Identity, status models.Status, event audit.AuditEvent) (_ *models.Request, err error) {
	ctx, end := s.startSpan(ctx, op, attribute.String("identity", target.String()))
	defer func() { end(err) }()

	if err := s.guard.RequireAdministrator(admin); err != nil {
		return nil, err
	}

	var decided *models.Request
	err = s.tx.RunInTx(ctx, txKey(target), func(ctx context.Context) error {
		r, err := s.store.FindForUpdate(ctx, target)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "verification request not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification request")
		}
		if err := r.Decide(status, admin, requestcontext.Now(ctx)); err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeInvalidState, dErrors.Message(err))
			}
			return err
		}
		if err := s.emit(ctx, audit.Event{
			Identity: target,
			Action:   string(event),
			ActorID:  admin.String(),
		}); err != nil {
			return err
		}
		if err := s.store.Update(ctx, r); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update verification request")
		}
		decided = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if status == models.StatusApproved && s.cache != nil {
		if err := s.cache.MarkApproved(ctx, target); err != nil {
			s.logWarn(ctx, "failed to cache approval", "identity", target.String(), "error", err)
		}
	}
	s.logAudit(ctx, string(event), "identity", target.String(), "actor", admin.String())
	if s.metrics != nil {
		s.metrics.IncrementDecision(string(status))
	}
	return decided, nil
}

// IsApproved reports whether identity holds an approved request.
func (s *Service) IsApproved(ctx context.Context, identity id.Identity) (_ bool, err error) {
	ctx, end := s.startSpan(ctx, "IsApproved", attribute.String("identity", identity.String()))
	defer func() { end(err) }()
	start := time.Now()
	defer s.observe("is_approved", start)

	if s.cache != nil {
		hit, err := s.cache.IsApproved(ctx, identity)
		switch {
		case err != nil:
			s.countCache("error")
			s.logWarn(ctx, "approval cache lookup failed", "identity", identity.String(), "error", err)
		case hit:
			s.countCache("hit")
			return true, nil
		default:
			s.countCache("miss")
		}
	}

	r, err := s.store.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification request")
	}
	if !r.IsApproved() {
		return false, nil
	}
	if s.cache != nil {
		if err := s.cache.MarkApproved(ctx, identity); err != nil {
			s.logWarn(ctx, "failed to cache approval", "identity", identity.String(), "error", err)
		}
	}
	return true, nil
}

func (s *Service) GetRequest(ctx context.Context, identity id.Identity) (_ *models.Request, err error) {
	ctx, end := s.startSpan(ctx, "GetRequest", attribute.String("identity", identity.String()))
	defer func() { end(err) }()

	r, err := s.store.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "verification request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification request")
	}
	return r, nil
}

// ListRequests returns every request in submission order. Statuses, when
// given, restrict the result.
func (s *Service) ListRequests(ctx context.Context, statuses ...models.Status) (_ []*models.Request, err error) {
	ctx, end := s.startSpan(ctx, "ListRequests")
	defer func() { end(err) }()

	for _, st := range statuses {
		if !st.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", st)
		}
	}
	out, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verification requests")
	}
	if out == nil {
		out = []*models.Request{}
	}
	return out, nil
}

// emit runs inside the mutation's transaction ahead of the store write, so a
// failure aborts the write. The event itself lands only if the write commits.
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

func (s *Service) countCache(result string) {
	if s.metrics != nil {
		s.metrics.IncrementCacheLookup(result)
	}
}

func (s *Service) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, start)
	}
}

// startSpan opens a span named after op; the returned func ends it, recording err.
func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "verification."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
	}
}
