package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
)

// PostgresLedger persists the settlement ledger. Each mutating call runs in
// one transaction so the conservation invariant is never observable broken.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Schema for the ledger tables. The totals table is a singleton row.
const Schema = `
CREATE TABLE IF NOT EXISTS settlement_accounts (
	owner_id UUID PRIMARY KEY,
	earnings NUMERIC(20) NOT NULL DEFAULT 0 CHECK (earnings >= 0)
);
CREATE TABLE IF NOT EXISTS settlement_requesters (
	requester_id UUID PRIMARY KEY,
	spent NUMERIC(20) NOT NULL DEFAULT 0 CHECK (spent >= 0)
);
CREATE TABLE IF NOT EXISTS settlement_totals (
	singleton         BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
	total_fees        NUMERIC(20) NOT NULL DEFAULT 0,
	total_distributed NUMERIC(20) NOT NULL DEFAULT 0,
	platform_accrued  NUMERIC(20) NOT NULL DEFAULT 0
);
INSERT INTO settlement_totals (singleton) VALUES (TRUE) ON CONFLICT DO NOTHING;
`

func (l *PostgresLedger) ApplyDistribution(ctx context.Context, dist *Distribution) error {
	if err := dist.Validate(); err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin distribution tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Serialize distributions and withdrawals through the totals row lock.
	_, err = tx.ExecContext(ctx, `
		UPDATE settlement_totals SET
			total_fees = total_fees + $1,
			platform_accrued = platform_accrued + $2
		WHERE singleton
	`, uint64(dist.Payment), uint64(dist.PlatformShare))
	if err != nil {
		return fmt.Errorf("update totals: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO settlement_requesters (requester_id, spent) VALUES ($1, $2)
		ON CONFLICT (requester_id) DO UPDATE SET spent = settlement_requesters.spent + EXCLUDED.spent
	`, dist.Requester.String(), uint64(dist.Payment))
	if err != nil {
		return fmt.Errorf("update requester spend: %w", err)
	}

	for _, c := range dist.Credits {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO settlement_accounts (owner_id, earnings) VALUES ($1, $2)
			ON CONFLICT (owner_id) DO UPDATE SET earnings = settlement_accounts.earnings + EXCLUDED.earnings
		`, c.Owner.String(), uint64(c.Amount))
		if err != nil {
			return fmt.Errorf("credit owner %s: %w", c.Owner, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit distribution: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Withdraw(ctx context.Context, owner domain.OwnerID, transfer func(amount domain.Wei) error) (domain.Wei, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin withdrawal tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance uint64
	err = tx.QueryRowContext(ctx,
		`SELECT earnings FROM settlement_accounts WHERE owner_id = $1 FOR UPDATE`,
		owner.String(),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && balance == 0) {
		return 0, dErrors.New(dErrors.CodeConflict, "no earnings to withdraw")
	}
	if err != nil {
		return 0, fmt.Errorf("lock owner account: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE settlement_accounts SET earnings = 0 WHERE owner_id = $1`,
		owner.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("zero owner balance: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE settlement_totals SET total_distributed = total_distributed + $1 WHERE singleton
	`, balance)
	if err != nil {
		return 0, fmt.Errorf("update distributed total: %w", err)
	}

	// The payout runs before commit: a transfer failure rolls the zeroed
	// balance back, losing nothing.
	if err := transfer(domain.Wei(balance)); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeExternalFailure, "payout transfer failed")
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit withdrawal: %w", err)
	}
	return domain.Wei(balance), nil
}

func (l *PostgresLedger) Balance(ctx context.Context, owner domain.OwnerID) (domain.Wei, error) {
	var balance uint64
	err := l.db.QueryRowContext(ctx,
		`SELECT earnings FROM settlement_accounts WHERE owner_id = $1`,
		owner.String(),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return domain.Wei(balance), nil
}

func (l *PostgresLedger) Spent(ctx context.Context, requester domain.RequesterID) (domain.Wei, error) {
	var spent uint64
	err := l.db.QueryRowContext(ctx,
		`SELECT spent FROM settlement_requesters WHERE requester_id = $1`,
		requester.String(),
	).Scan(&spent)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read requester spend: %w", err)
	}
	return domain.Wei(spent), nil
}

func (l *PostgresLedger) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	var fees, distributed, accrued, outstanding uint64
	err := l.db.QueryRowContext(ctx, `
		SELECT t.total_fees, t.total_distributed, t.platform_accrued,
			COALESCE((SELECT SUM(earnings) FROM settlement_accounts), 0)
		FROM settlement_totals t WHERE t.singleton
	`).Scan(&fees, &distributed, &accrued, &outstanding)
	if err != nil {
		return nil, fmt.Errorf("read ledger stats: %w", err)
	}
	stats.TotalFees = domain.Wei(fees)
	stats.TotalDistributed = domain.Wei(distributed)
	stats.PlatformAccrued = domain.Wei(accrued)
	stats.OutstandingBalances = domain.Wei(outstanding)
	return &stats, nil
}
