package payout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	id "crowdfund/pkg/domain"
	txcontext "crowdfund/pkg/platform/tx"
)

// PostgresLedger records payouts in the payouts table. Inside a transaction
// the receipt commits or rolls back together with the campaign status.
type PostgresLedger struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db, now: time.Now}
}

func (l *PostgresLedger) Transfer(ctx context.Context, t Transfer) (*Receipt, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	exec := txcontext.Executor(ctx, l.db)
	r := &Receipt{Reference: t.Reference, Recipient: t.Recipient, Amount: t.Amount}
	err := exec.QueryRowContext(ctx, `
		INSERT INTO payouts (reference, recipient, amount, transferred_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (reference) DO NOTHING
		RETURNING transferred_at
	`, t.Reference, t.Recipient.String(), int64(t.Amount), l.now()).Scan(&r.TransferredAt)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("insert payout: %w", err)
	}

	existing, err := l.find(ctx, t.Reference)
	if err != nil {
		return nil, err
	}
	if err := existing.matches(t); err != nil {
		return nil, err
	}
	return existing, nil
}

func (l *PostgresLedger) find(ctx context.Context, reference string) (*Receipt, error) {
	var (
		r         Receipt
		recipient string
		amount    int64
	)
	err := txcontext.Executor(ctx, l.db).QueryRowContext(ctx,
		`SELECT reference, recipient, amount, transferred_at FROM payouts WHERE reference = $1`,
		reference,
	).Scan(&r.Reference, &recipient, &amount, &r.TransferredAt)
	if err != nil {
		return nil, fmt.Errorf("find payout: %w", err)
	}
	r.Recipient = id.Identity(recipient)
	r.Amount = id.Amount(amount)
	return &r, nil
}

// Balance sums every payout issued to recipient.
func (l *PostgresLedger) Balance(ctx context.Context, recipient id.Identity) (id.Amount, error) {
	var total int64
	err := txcontext.Executor(ctx, l.db).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payouts WHERE recipient = $1`,
		recipient.String(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum payouts: %w", err)
	}
	return id.Amount(total), nil
}
