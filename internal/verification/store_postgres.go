package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"dataledger/pkg/domain"
	"dataledger/pkg/platform/sentinel"
)

// PostgresStore persists stakes and reputation. Transitions lock the stake
// row; reputation adjustments clamp inside the UPDATE so they are safe under
// concurrency.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS verification_stakes (
	record_id         BIGINT      PRIMARY KEY,
	owner_id          UUID        NOT NULL,
	amount            NUMERIC(20) NOT NULL,
	status            TEXT        NOT NULL,
	scored            BOOLEAN     NOT NULL DEFAULT FALSE,
	ai_confidence     INT         NOT NULL DEFAULT 0,
	claims            TEXT[]      NOT NULL DEFAULT '{}',
	provider_attested BOOLEAN     NOT NULL DEFAULT FALSE,
	dispute_opened_at TIMESTAMPTZ,
	dispute_deadline  TIMESTAMPTZ,
	dispute_resolved  BOOLEAN     NOT NULL DEFAULT FALSE,
	dispute_confirmed BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reputation_scores (
	owner_id UUID PRIMARY KEY,
	score    INT  NOT NULL DEFAULT 0
);
`

const stakeColumns = `record_id, owner_id, amount, status, scored, ai_confidence, claims, provider_attested,
	dispute_opened_at, dispute_deadline, dispute_resolved, dispute_confirmed, created_at`

func (s *PostgresStore) Create(ctx context.Context, stake *Stake) error {
	query := `
		INSERT INTO verification_stakes (` + stakeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		uint64(stake.RecordID),
		stake.Owner.String(),
		uint64(stake.Amount),
		string(stake.Status),
		stake.Scored,
		stake.AIConfidence,
		pq.Array(stake.Claims),
		stake.ProviderAttested,
		stake.DisputeOpenedAt,
		stake.DisputeDeadline,
		stake.DisputeResolved,
		stake.DisputeConfirmed,
		stake.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create stake: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, recordID domain.RecordID) (*Stake, error) {
	query := `SELECT ` + stakeColumns + ` FROM verification_stakes WHERE record_id = $1`
	stake, err := scanStake(s.db.QueryRowContext(ctx, query, uint64(recordID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get stake: %w", err)
	}
	return stake, nil
}

func (s *PostgresStore) Execute(
	ctx context.Context,
	recordID domain.RecordID,
	validate func(*Stake) error,
	mutate func(*Stake),
) (*Stake, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin stake tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + stakeColumns + ` FROM verification_stakes WHERE record_id = $1 FOR UPDATE`
	stake, err := scanStake(tx.QueryRowContext(ctx, query, uint64(recordID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock stake: %w", err)
	}

	if err := validate(stake); err != nil {
		return nil, err
	}
	mutate(stake)

	_, err = tx.ExecContext(ctx, `
		UPDATE verification_stakes
		SET amount = $2, status = $3, scored = $4, ai_confidence = $5, claims = $6,
		    provider_attested = $7, dispute_opened_at = $8, dispute_deadline = $9,
		    dispute_resolved = $10, dispute_confirmed = $11
		WHERE record_id = $1`,
		uint64(stake.RecordID),
		uint64(stake.Amount),
		string(stake.Status),
		stake.Scored,
		stake.AIConfidence,
		pq.Array(stake.Claims),
		stake.ProviderAttested,
		stake.DisputeOpenedAt,
		stake.DisputeDeadline,
		stake.DisputeResolved,
		stake.DisputeConfirmed,
	)
	if err != nil {
		return nil, fmt.Errorf("update stake: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stake tx: %w", err)
	}
	return stake, nil
}

func (s *PostgresStore) Reputation(ctx context.Context, owner domain.OwnerID) (int, error) {
	var score int
	err := s.db.QueryRowContext(ctx,
		`SELECT score FROM reputation_scores WHERE owner_id = $1`, owner.String(),
	).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get reputation: %w", err)
	}
	return score, nil
}

func (s *PostgresStore) AdjustReputation(ctx context.Context, owner domain.OwnerID, delta int) (int, error) {
	var score int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO reputation_scores (owner_id, score)
		VALUES ($1, LEAST(GREATEST($2, 0), 1000))
		ON CONFLICT (owner_id)
		DO UPDATE SET score = LEAST(GREATEST(reputation_scores.score + $2, 0), 1000)
		RETURNING score`,
		owner.String(), delta,
	).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("adjust reputation: %w", err)
	}
	return score, nil
}

func scanStake(row interface{ Scan(dest ...any) error }) (*Stake, error) {
	var st Stake
	var owner, status string
	var recordID, amount uint64
	var claims pq.StringArray
	var openedAt, deadline sql.NullTime
	if err := row.Scan(
		&recordID, &owner, &amount, &status, &st.Scored, &st.AIConfidence, &claims, &st.ProviderAttested,
		&openedAt, &deadline, &st.DisputeResolved, &st.DisputeConfirmed, &st.CreatedAt,
	); err != nil {
		return nil, err
	}
	parsedOwner, err := domain.ParseOwnerID(owner)
	if err != nil {
		return nil, fmt.Errorf("stored owner id corrupt: %w", err)
	}
	st.RecordID = domain.RecordID(recordID)
	st.Owner = parsedOwner
	st.Amount = domain.Wei(amount)
	st.Status = StakeStatus(status)
	st.Claims = claims
	if openedAt.Valid {
		t := openedAt.Time
		st.DisputeOpenedAt = &t
	}
	if deadline.Valid {
		t := deadline.Time
		st.DisputeDeadline = &t
	}
	return &st, nil
}
