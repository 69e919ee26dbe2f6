package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "crowdfund/pkg/domain"
)

// EventCategory classifies events by their primary purpose so sinks can apply
// different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers verification decisions and fund movements.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers denied privileged actions.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine campaign activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain services when state changes. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	// Identity is the principal the event is about: the requester for
	// verification events, the creator or contributor for campaign events.
	Identity   id.Identity
	Action     string
	CampaignID id.CampaignID
	Amount     id.Amount
	Reason     string
	RequestID  string
	// ActorID is set when the acting identity differs from Identity,
	// e.g. the administrator approving a request.
	ActorID string
}

type AuditEvent string

const (
	// Verification events
	EventRequestSubmitted AuditEvent = "verification_request_submitted"
	EventRequestApproved  AuditEvent = "verification_request_approved"
	EventRequestRejected  AuditEvent = "verification_request_rejected"

	// Campaign events
	EventCampaignCreated      AuditEvent = "campaign_created"
	EventContributionReceived AuditEvent = "contribution_received"
	EventCampaignCompleted    AuditEvent = "campaign_completed"
	EventFundsWithdrawn       AuditEvent = "funds_withdrawn"
	EventWithdrawalFailed     AuditEvent = "withdrawal_failed"

	// Access events
	EventAdminAccessDenied AuditEvent = "admin_access_denied"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRequestSubmitted: CategoryCompliance,
	EventRequestApproved:  CategoryCompliance,
	EventRequestRejected:  CategoryCompliance,
	EventFundsWithdrawn:   CategoryCompliance,

	EventWithdrawalFailed:  CategorySecurity,
	EventAdminAccessDenied: CategorySecurity,

	EventCampaignCreated:      CategoryOperations,
	EventContributionReceived: CategoryOperations,
	EventCampaignCompleted:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByIdentity(ctx context.Context, identity id.Identity) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Prepare fills the derived fields of an event before it is stored.
func Prepare(event Event, now time.Time) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}
	return event
}
