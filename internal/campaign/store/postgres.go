package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crowdfund/internal/campaign/models"
	"crowdfund/internal/platform/postgres"
	id "crowdfund/pkg/domain"
	"crowdfund/pkg/platform/sentinel"
	txcontext "crowdfund/pkg/platform/tx"
)

// PostgresStore persists campaigns and contributions. Ids come from the
// campaign row of id_counters, updated in the caller's transaction so an
// aborted create never leaves a gap.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const campaignColumns = `id, creator, title, description, goal_amount, raised_amount, status,
	contributor_count, created_at, completed_at, withdrawn_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Campaign) error {
	exec := txcontext.Executor(ctx, s.db)
	var next int64
	err := exec.QueryRowContext(ctx,
		`UPDATE id_counters SET value = value + 1 WHERE name = 'campaign' RETURNING value`,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("allocate campaign id: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO campaigns (id, creator, title, description, goal_amount, raised_amount, status, contributor_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		next,
		c.Creator.String(),
		c.Title,
		c.Description,
		int64(c.Goal),
		int64(c.Raised),
		string(c.Status),
		c.ContributorCount,
		c.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert campaign: %w", err)
	}
	c.ID = id.CampaignID(next)
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, campaignID id.CampaignID) (*models.Campaign, error) {
	return s.find(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, campaignID)
}

// FindForUpdate locks the campaign row until the surrounding transaction ends.
func (s *PostgresStore) FindForUpdate(ctx context.Context, campaignID id.CampaignID) (*models.Campaign, error) {
	return s.find(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 FOR UPDATE`, campaignID)
}

func (s *PostgresStore) find(ctx context.Context, query string, campaignID id.CampaignID) (*models.Campaign, error) {
	c, err := scanCampaign(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, int64(campaignID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find campaign: %w", err)
	}
	return c, nil
}

// Update writes the mutable fields. Schema checks reject a write that would
// break the goal accounting; those surface as sentinel.ErrInvalidState.
func (s *PostgresStore) Update(ctx context.Context, c *models.Campaign) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE campaigns
		SET raised_amount = $2, status = $3, contributor_count = $4, completed_at = $5, withdrawn_at = $6
		WHERE id = $1
	`, int64(c.ID), int64(c.Raised), string(c.Status), c.ContributorCount, c.CompletedAt, c.WithdrawnAt)
	if err != nil {
		if postgres.IsCheckViolation(err) {
			return sentinel.ErrInvalidState
		}
		return fmt.Errorf("update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Campaign, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListIDs(ctx context.Context) ([]id.CampaignID, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, `SELECT id FROM campaigns ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list campaign ids: %w", err)
	}
	defer rows.Close()

	var out []id.CampaignID
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan campaign id: %w", err)
		}
		out = append(out, id.CampaignID(v))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaign ids: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AddContribution(ctx context.Context, c *models.Contribution) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO contributions (campaign_id, contributor, requested, accepted, refunded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		int64(c.CampaignID),
		c.Contributor.String(),
		int64(c.Requested),
		int64(c.Accepted),
		int64(c.Refunded),
		c.CreatedAt,
	)
	if err != nil {
		if postgres.IsCheckViolation(err) {
			return sentinel.ErrInvalidState
		}
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListContributions(ctx context.Context, campaignID id.CampaignID) ([]*models.Contribution, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT campaign_id, contributor, requested, accepted, refunded, created_at
		FROM contributions
		WHERE campaign_id = $1
		ORDER BY id
	`, int64(campaignID))
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	out := []*models.Contribution{}
	for rows.Next() {
		var (
			c                             models.Contribution
			cid                           int64
			contributor                   string
			requested, accepted, refunded int64
		)
		if err := rows.Scan(&cid, &contributor, &requested, &accepted, &refunded, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		c.CampaignID = id.CampaignID(cid)
		c.Contributor = id.Identity(contributor)
		c.Requested = id.Amount(requested)
		c.Accepted = id.Amount(accepted)
		c.Refunded = id.Amount(refunded)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ContributionTotal(ctx context.Context, campaignID id.CampaignID, contributor id.Identity) (id.Amount, error) {
	var total int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(accepted), 0) FROM contributions WHERE campaign_id = $1 AND contributor = $2`,
		int64(campaignID), contributor.String(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum contributions: %w", err)
	}
	return id.Amount(total), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row scanner) (*models.Campaign, error) {
	var (
		c                   models.Campaign
		campaignID          int64
		creator, status     string
		goal, raised        int64
		completed, withdraw sql.NullTime
	)
	err := row.Scan(&campaignID, &creator, &c.Title, &c.Description, &goal, &raised, &status,
		&c.ContributorCount, &c.CreatedAt, &completed, &withdraw)
	if err != nil {
		return nil, err
	}
	c.ID = id.CampaignID(campaignID)
	c.Creator = id.Identity(creator)
	c.Goal = id.Amount(goal)
	c.Raised = id.Amount(raised)
	c.Status = models.Status(status)
	if completed.Valid {
		t := completed.Time
		c.CompletedAt = &t
	}
	if withdraw.Valid {
		t := withdraw.Time
		c.WithdrawnAt = &t
	}
	return &c, nil
}
