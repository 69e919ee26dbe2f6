package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"crowdfund/internal/verification/models"
	id "crowdfund/pkg/domain"
	"crowdfund/pkg/platform/sentinel"
	txcontext "crowdfund/pkg/platform/tx"
)

// PostgresStore persists requests in verification_requests. Methods join the
// transaction carried by ctx when present.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `identity, full_name, national_id, status, sequence, submitted_at, decided_at, decided_by`

func (s *PostgresStore) Create(ctx context.Context, r *models.Request) error {
	query := `
		INSERT INTO verification_requests (identity, full_name, national_id, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity) DO NOTHING
		RETURNING sequence
	`
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query,
		r.Identity.String(),
		r.FullName,
		r.NationalID,
		string(r.Status),
		r.SubmittedAt,
	).Scan(&r.Sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("insert verification request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByIdentity(ctx context.Context, identity id.Identity) (*models.Request, error) {
	return s.find(ctx, `SELECT `+requestColumns+` FROM verification_requests WHERE identity = $1`, identity)
}

// FindForUpdate locks the row until the surrounding transaction ends.
func (s *PostgresStore) FindForUpdate(ctx context.Context, identity id.Identity) (*models.Request, error) {
	return s.find(ctx, `SELECT `+requestColumns+` FROM verification_requests WHERE identity = $1 FOR UPDATE`, identity)
}

func (s *PostgresStore) find(ctx context.Context, query string, identity id.Identity) (*models.Request, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, identity.String())
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find verification request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.Request) error {
	var decidedBy sql.NullString
	if !r.DecidedBy.IsZero() {
		decidedBy = sql.NullString{String: r.DecidedBy.String(), Valid: true}
	}
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE verification_requests
		SET status = $2, decided_at = $3, decided_by = $4
		WHERE identity = $1
	`, r.Identity.String(), string(r.Status), r.DecidedAt, decidedBy)
	if err != nil {
		return fmt.Errorf("update verification request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update verification request: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, statuses ...models.Status) ([]*models.Request, error) {
	exec := txcontext.Executor(ctx, s.db)
	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = exec.QueryContext(ctx, `SELECT `+requestColumns+` FROM verification_requests ORDER BY sequence`)
	} else {
		filter := make([]string, len(statuses))
		for i, st := range statuses {
			filter[i] = string(st)
		}
		rows, err = exec.QueryContext(ctx,
			`SELECT `+requestColumns+` FROM verification_requests WHERE status = ANY($1) ORDER BY sequence`,
			pq.Array(filter),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list verification requests: %w", err)
	}
	defer rows.Close()

	var out []*models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification requests: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*models.Request, error) {
	var (
		r         models.Request
		identity  string
		status    string
		decidedAt sql.NullTime
		decidedBy sql.NullString
	)
	if err := row.Scan(&identity, &r.FullName, &r.NationalID, &status, &r.Sequence, &r.SubmittedAt, &decidedAt, &decidedBy); err != nil {
		return nil, err
	}
	r.Identity = id.Identity(identity)
	r.Status = models.Status(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		r.DecidedAt = &t
	}
	if decidedBy.Valid {
		r.DecidedBy = id.Identity(decidedBy.String)
	}
	return &r, nil
}
