//go:build integration

package payout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "crowdfund/pkg/domain-errors"
	"crowdfund/pkg/platform/tx"
	"crowdfund/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	ledger   *PostgresLedger
}

func TestPostgresLedgerSuite(t *testing.T) {
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.ledger = NewPostgresLedger(s.postgres.DB)
}

func (s *PostgresLedgerSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "payouts"))
}

func (s *PostgresLedgerSuite) TestTransferIsIdempotent() {
	ctx := context.Background()
	transfer := Transfer{Reference: Reference(1), Recipient: "0xcreator", Amount: 250}

	first, err := s.ledger.Transfer(ctx, transfer)
	s.Require().NoError(err)
	second, err := s.ledger.Transfer(ctx, transfer)
	s.Require().NoError(err)
	s.True(first.TransferredAt.Equal(second.TransferredAt))

	balance, err := s.ledger.Balance(ctx, "0xcreator")
	s.Require().NoError(err)
	s.EqualValues(250, balance)

	_, err = s.ledger.Transfer(ctx, Transfer{Reference: Reference(1), Recipient: "0xcreator", Amount: 1})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *PostgresLedgerSuite) TestTransferRollsBackWithTransaction() {
	ctx := context.Background()
	runner := tx.NewSQL(s.postgres.DB, tx.DefaultTimeout)

	err := runner.RunInTx(ctx, "payout", func(ctx context.Context) error {
		if _, err := s.ledger.Transfer(ctx, Transfer{Reference: "rollback", Recipient: "0xa", Amount: 5}); err != nil {
			return err
		}
		return dErrors.New(dErrors.CodeInternal, "abort")
	})
	s.Require().Error(err)

	balance, err := s.ledger.Balance(ctx, "0xa")
	s.Require().NoError(err)
	s.Zero(balance)
}
