package records

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

// PostgresStore persists the record index. Pure I/O; lifecycle rules live in
// the model and service.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema for the records table. BIGSERIAL positions match the memory
// store's 1-based ids.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	id            BIGSERIAL PRIMARY KEY,
	owner_id      UUID        NOT NULL,
	category      TEXT        NOT NULL,
	age           INT         NOT NULL,
	consent_level TEXT        NOT NULL,
	field_handles TEXT[]      NOT NULL,
	active        BOOLEAN     NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL
);
`

const recordColumns = `id, owner_id, category, age, consent_level, field_handles, active, created_at`

func (s *PostgresStore) Append(ctx context.Context, record *Record) (domain.RecordID, error) {
	query := `
		INSERT INTO records (owner_id, category, age, consent_level, field_handles, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	handles := make([]string, len(record.FieldHandles))
	for i, h := range record.FieldHandles {
		handles[i] = string(h)
	}
	var id uint64
	err := s.db.QueryRowContext(ctx, query,
		record.OwnerID.String(),
		record.Category,
		record.Age,
		string(record.ConsentLevel),
		pq.Array(handles),
		record.Active,
		record.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append record: %w", err)
	}
	return domain.RecordID(id), nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.RecordID) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, uint64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var count uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Scan(ctx context.Context, start domain.RecordID, limit int) ([]*Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `SELECT ` + recordColumns + ` FROM records WHERE id >= $1 AND id < $2 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, uint64(start), uint64(start)+uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Execute(ctx context.Context, id domain.RecordID, validate func(*Record) error, mutate func(*Record)) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1 FOR UPDATE`
	record, err := scanRecord(tx.QueryRowContext(ctx, query, uint64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock record: %w", err)
	}

	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)

	_, err = tx.ExecContext(ctx,
		`UPDATE records SET consent_level = $2, active = $3 WHERE id = $1`,
		uint64(record.ID), string(record.ConsentLevel), record.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record tx: %w", err)
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var ownerID string
	var consent string
	var handles pq.StringArray
	if err := row.Scan(&r.ID, &ownerID, &r.Category, &r.Age, &consent, &handles, &r.Active, &r.CreatedAt); err != nil {
		return nil, err
	}
	owner, err := domain.ParseOwnerID(ownerID)
	if err != nil {
		return nil, fmt.Errorf("stored owner id corrupt: %w", err)
	}
	r.OwnerID = owner
	r.ConsentLevel = domain.ConsentLevel(consent)
	r.FieldHandles = make([]encryption.Ciphertext, len(handles))
	for i, h := range handles {
		r.FieldHandles[i] = encryption.Ciphertext(h)
	}
	return &r, nil
}
