package oracle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"dataledger/internal/encryption"
	"dataledger/pkg/domain"
	"dataledger/pkg/platform/sentinel"
)

// PostgresStore persists query results. Decryption transitions run in a
// transaction holding the row lock.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS query_results (
	query_id             UUID        PRIMARY KEY,
	requester_id         UUID        NOT NULL,
	scanned_from         BIGINT      NOT NULL,
	scanned_count        INT         NOT NULL,
	sum_handle           TEXT        NOT NULL,
	count_handle         TEXT        NOT NULL,
	fee_paid             NUMERIC(20) NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL,
	decryption_requested BOOLEAN     NOT NULL DEFAULT FALSE,
	proof_commitment     TEXT        NOT NULL DEFAULT '',
	decrypted            BOOLEAN     NOT NULL DEFAULT FALSE,
	plain_sum            NUMERIC(20) NOT NULL DEFAULT 0,
	plain_count          NUMERIC(20) NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS individual_query_results (
	query_id        UUID        PRIMARY KEY,
	requester_id    UUID        NOT NULL,
	total_matching  INT         NOT NULL,
	consented_count INT         NOT NULL,
	anonymity_met   BOOLEAN     NOT NULL,
	record_ids      BIGINT[]    NOT NULL,
	fee_paid        NUMERIC(20) NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
`

const aggregateColumns = `query_id, requester_id, scanned_from, scanned_count, sum_handle, count_handle,
	fee_paid, created_at, decryption_requested, proof_commitment, decrypted, plain_sum, plain_count`

func (s *PostgresStore) SaveAggregate(ctx context.Context, result *QueryResult) error {
	query := `
		INSERT INTO query_results (` + aggregateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		result.ID.String(),
		result.Requester.String(),
		uint64(result.ScannedFrom),
		result.ScannedCount,
		string(result.SumHandle),
		string(result.CountHandle),
		uint64(result.FeePaid),
		result.CreatedAt,
		result.DecryptionRequested,
		result.ProofCommitment,
		result.Decrypted,
		result.PlainSum,
		result.PlainCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save aggregate result: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAggregate(ctx context.Context, id domain.QueryID) (*QueryResult, error) {
	query := `SELECT ` + aggregateColumns + ` FROM query_results WHERE query_id = $1`
	result, err := scanAggregate(s.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get aggregate result: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) ExecuteAggregate(
	ctx context.Context,
	id domain.QueryID,
	validate func(*QueryResult) error,
	mutate func(*QueryResult),
) (*QueryResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin query tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + aggregateColumns + ` FROM query_results WHERE query_id = $1 FOR UPDATE`
	result, err := scanAggregate(tx.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock query result: %w", err)
	}

	if err := validate(result); err != nil {
		return nil, err
	}
	mutate(result)

	_, err = tx.ExecContext(ctx, `
		UPDATE query_results
		SET decryption_requested = $2, proof_commitment = $3,
		    decrypted = $4, plain_sum = $5, plain_count = $6
		WHERE query_id = $1`,
		result.ID.String(),
		result.DecryptionRequested,
		result.ProofCommitment,
		result.Decrypted,
		result.PlainSum,
		result.PlainCount,
	)
	if err != nil {
		return nil, fmt.Errorf("update query result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit query tx: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) SaveIndividual(ctx context.Context, result *IndividualQueryResult) error {
	ids := make([]int64, len(result.RecordIDs))
	for i, id := range result.RecordIDs {
		ids[i] = int64(id)
	}
	query := `
		INSERT INTO individual_query_results
			(query_id, requester_id, total_matching, consented_count, anonymity_met, record_ids, fee_paid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		result.ID.String(),
		result.Requester.String(),
		result.TotalMatching,
		result.ConsentedCount,
		result.AnonymityMet,
		pq.Array(ids),
		uint64(result.FeePaid),
		result.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save individual result: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIndividual(ctx context.Context, id domain.QueryID) (*IndividualQueryResult, error) {
	query := `
		SELECT query_id, requester_id, total_matching, consented_count, anonymity_met, record_ids, fee_paid, created_at
		FROM individual_query_results WHERE query_id = $1
	`
	var r IndividualQueryResult
	var queryID, requester string
	var ids pq.Int64Array
	var fee uint64
	err := s.db.QueryRowContext(ctx, query, id.String()).Scan(
		&queryID, &requester, &r.TotalMatching, &r.ConsentedCount, &r.AnonymityMet, &ids, &fee, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get individual result: %w", err)
	}
	if r.ID, err = domain.ParseQueryID(queryID); err != nil {
		return nil, fmt.Errorf("stored query id corrupt: %w", err)
	}
	req, err := domain.ParseRequesterID(requester)
	if err != nil {
		return nil, fmt.Errorf("stored requester id corrupt: %w", err)
	}
	r.Requester = req
	r.RecordIDs = make([]domain.RecordID, len(ids))
	for i, v := range ids {
		r.RecordIDs[i] = domain.RecordID(v)
	}
	r.FeePaid = domain.Wei(fee)
	return &r, nil
}

func scanAggregate(row interface{ Scan(dest ...any) error }) (*QueryResult, error) {
	var r QueryResult
	var queryID, requester, sumHandle, countHandle string
	var scannedFrom, fee uint64
	if err := row.Scan(
		&queryID, &requester, &scannedFrom, &r.ScannedCount, &sumHandle, &countHandle,
		&fee, &r.CreatedAt, &r.DecryptionRequested, &r.ProofCommitment, &r.Decrypted, &r.PlainSum, &r.PlainCount,
	); err != nil {
		return nil, err
	}
	id, err := domain.ParseQueryID(queryID)
	if err != nil {
		return nil, fmt.Errorf("stored query id corrupt: %w", err)
	}
	r.ID = id
	req, err := domain.ParseRequesterID(requester)
	if err != nil {
		return nil, fmt.Errorf("stored requester id corrupt: %w", err)
	}
	r.Requester = req
	r.ScannedFrom = domain.RecordID(scannedFrom)
	r.SumHandle = encryption.Ciphertext(sumHandle)
	r.CountHandle = encryption.Ciphertext(countHandle)
	r.FeePaid = domain.Wei(fee)
	return &r, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
