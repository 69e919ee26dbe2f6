package models

import (
	"time"

	id "crowdfund/pkg/domain"
	dErrors "crowdfund/pkg/domain-errors"
)

const (
	MaxFullNameLength   = 256
	MaxNationalIDLength = 64
)

// Status is the verification workflow state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo allows only pending -> approved and pending -> rejected.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

// ParseStatus accepts the lowercase wire form.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown status %q", s)
	}
	return st, nil
}

// Request is a caller's verification request.
//
// Invariants:
//   - Identity, FullName and NationalID are non-empty and immutable
//   - Status only moves pending -> approved or pending -> rejected
//   - DecidedAt and DecidedBy are set exactly when Status is terminal
//   - Sequence orders requests by submission and is assigned by the store
type Request struct {
	Identity    id.Identity `json:"identity"`
	FullName    string      `json:"full_name"`
	NationalID  string      `json:"national_id"`
	Status      Status      `json:"status"`
	SubmittedAt time.Time   `json:"submitted_at"`
	DecidedAt   *time.Time  `json:"decided_at,omitempty"`
	DecidedBy   id.Identity `json:"decided_by,omitempty"`
	Sequence    int64       `json:"-"`
}

func NewRequest(identity id.Identity, fullName, nationalID string, now time.Time) (*Request, error) {
	if identity.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity is required")
	}
	if fullName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "full name is required")
	}
	if len(fullName) > MaxFullNameLength {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "full name must be %d bytes or less", MaxFullNameLength)
	}
	if nationalID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "national id is required")
	}
	if len(nationalID) > MaxNationalIDLength {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "national id must be %d bytes or less", MaxNationalIDLength)
	}
	return &Request{
		Identity:    identity,
		FullName:    fullName,
		NationalID:  nationalID,
		Status:      StatusPending,
		SubmittedAt: now,
	}, nil
}

func (r *Request) IsApproved() bool {
	return r.Status == StatusApproved
}

// CanDecide checks that the request is still awaiting a decision.
func (r *Request) CanDecide() error {
	if r.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "request is already %s", r.Status)
	}
	return nil
}

// ApplyDecision records the administrator's decision. Call CanDecide first.
func (r *Request) ApplyDecision(status Status, admin id.Identity, now time.Time) {
	r.Status = status
	r.DecidedBy = admin
	decided := now
	r.DecidedAt = &decided
}

func (r *Request) Decide(status Status, admin id.Identity, now time.Time) error {
	if !r.Status.CanTransitionTo(status) {
		if err := r.CanDecide(); err != nil {
			return err
		}
		return dErrors.Newf(dErrors.CodeInvariantViolation, "cannot transition to %s", status)
	}
	r.ApplyDecision(status, admin, now)
	return nil
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}
