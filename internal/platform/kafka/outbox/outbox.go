// Package outbox drains the transactional outbox table into Kafka.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Entry is one pending row of the outbox table.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Publisher is the transport the worker forwards entries to.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Store reads and acknowledges outbox rows.
type Store interface {
	// Claim runs fn with up to limit unpublished entries locked for this
	// worker; entries whose ids fn returns are marked published.
	Claim(ctx context.Context, limit int, fn func([]Entry) []uuid.UUID) error
}

// PostgresStore claims rows with FOR UPDATE SKIP LOCKED so several workers
// can drain the same table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Claim(ctx context.Context, limit int, fn func([]Entry) []uuid.UUID) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return fmt.Errorf("select outbox entries: %w", err)
	}
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err = rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return fmt.Errorf("iterate outbox entries: %w", err)
	}
	if len(entries) == 0 {
		return tx.Commit()
	}

	published := fn(entries)
	if len(published) > 0 {
		ids := make([]string, len(published))
		for i, id := range published {
			ids[i] = id.String()
		}
		if _, err = tx.ExecContext(ctx,
			`UPDATE outbox SET published_at = NOW() WHERE id = ANY($1::uuid[])`,
			pq.Array(ids),
		); err != nil {
			return fmt.Errorf("mark outbox entries published: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox tx: %w", err)
	}
	return nil
}

// Worker periodically forwards pending entries to the publisher. Entries are
// published in order and the batch stops at the first failure so ordering per
// aggregate is preserved.
type Worker struct {
	store     Store
	publisher Publisher
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func NewWorker(store Store, publisher Publisher, topic string, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		store:     store,
		publisher: publisher,
		topic:     topic,
		interval:  500 * time.Millisecond,
		batchSize: 100,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.Drain(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Drain publishes one batch and returns how many entries were published.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	var count int
	err := w.store.Claim(ctx, w.batchSize, func(entries []Entry) []uuid.UUID {
		published := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			headers := map[string]string{
				"event_type":     e.EventType,
				"aggregate_type": e.AggregateType,
			}
			if err := w.publisher.Publish(ctx, w.topic, []byte(e.AggregateID), e.Payload, headers); err != nil {
				w.logger.WarnContext(ctx, "outbox publish failed",
					"outbox_id", e.ID,
					"event_type", e.EventType,
					"error", err,
				)
				break
			}
			published = append(published, e.ID)
		}
		count = len(published)
		return published
	})
	return count, err
}
