package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	id "crowdfund/pkg/domain"
	audit "crowdfund/pkg/platform/audit"
	txcontext "crowdfund/pkg/platform/tx"

	"github.com/google/uuid"
)

// Store implements audit.Store using the transactional outbox pattern.
// Append writes to the outbox inside the caller's transaction; the outbox
// worker publishes to Kafka and the consumer materializes rows into
// audit_events via AppendWithID.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Payload is the JSON structure published to Kafka.
type Payload struct {
	ID         string `json:"id"`
	Category   string `json:"category"`
	Timestamp  string `json:"timestamp"`
	Identity   string `json:"identity,omitempty"`
	Action     string `json:"action"`
	CampaignID int64  `json:"campaign_id,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	Reason     string `json:"reason,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	ActorID    string `json:"actor_id,omitempty"`
}

// EncodePayload renders an event for the outbox.
func EncodePayload(event audit.Event) ([]byte, error) {
	return json.Marshal(Payload{
		ID:         event.ID.String(),
		Category:   string(event.Category),
		Timestamp:  event.Timestamp.UTC().Format(time.RFC3339Nano),
		Identity:   event.Identity.String(),
		Action:     event.Action,
		CampaignID: int64(event.CampaignID),
		Amount:     int64(event.Amount),
		Reason:     event.Reason,
		RequestID:  event.RequestID,
		ActorID:    event.ActorID,
	})
}

// DecodePayload is the inverse of EncodePayload.
func DecodePayload(data []byte) (audit.Event, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return audit.Event{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	eventID, err := uuid.Parse(p.ID)
	if err != nil {
		return audit.Event{}, fmt.Errorf("parse event id: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return audit.Event{}, fmt.Errorf("parse event timestamp: %w", err)
	}
	return audit.Event{
		ID:         eventID,
		Category:   audit.EventCategory(p.Category),
		Timestamp:  ts,
		Identity:   id.Identity(p.Identity),
		Action:     p.Action,
		CampaignID: id.CampaignID(p.CampaignID),
		Amount:     id.Amount(p.Amount),
		Reason:     p.Reason,
		RequestID:  p.RequestID,
		ActorID:    p.ActorID,
	}, nil
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	event = audit.Prepare(event, time.Now())
	payload, err := EncodePayload(event)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "identity"
	aggregateID := event.Identity.String()
	if event.CampaignID.IsValid() {
		aggregateType = "campaign"
		aggregateID = event.CampaignID.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		uuid.New(),
		aggregateType,
		aggregateID,
		event.Action,
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// AppendWithID materializes a consumed event. Duplicate deliveries are ignored.
func (s *Store) AppendWithID(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, identity, action,
			campaign_id, amount, reason, request_id, actor_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	var campaignID sql.NullInt64
	if event.CampaignID.IsValid() {
		campaignID = sql.NullInt64{Int64: int64(event.CampaignID), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Category),
		event.Timestamp,
		event.Identity.String(),
		event.Action,
		campaignID,
		int64(event.Amount),
		event.Reason,
		event.RequestID,
		event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, category, timestamp, identity, action,
	       campaign_id, amount, reason, request_id, actor_id
	FROM audit_events
`

// ListByIdentity returns materialized events about identity, oldest first.
func (s *Store) ListByIdentity(ctx context.Context, identity id.Identity) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`WHERE identity = $1 ORDER BY timestamp ASC`, identity.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the N most recent events. limit <= 0 returns all.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, selectColumns+`ORDER BY timestamp DESC LIMIT $1`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, selectColumns+`ORDER BY timestamp DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event      audit.Event
			category   string
			identity   string
			campaignID sql.NullInt64
			amount     int64
		)
		if err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&identity,
			&event.Action,
			&campaignID,
			&amount,
			&event.Reason,
			&event.RequestID,
			&event.ActorID,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Identity = id.Identity(identity)
		event.Amount = id.Amount(amount)
		if campaignID.Valid {
			event.CampaignID = id.CampaignID(campaignID.Int64)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
