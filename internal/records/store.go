package records

import (
	"context"

	"dataledger/pkg/domain"
)

// Store is the persistence contract for the record index. Stores are
// interface-driven so the in-memory implementation backs unit tests and the
// PostgreSQL one backs deployments without rewiring domain code.
//
// Execute holds the record's lock (mutex or FOR UPDATE) across validation
// and mutation so lifecycle transitions are atomic.
type Store interface {
	// Append assigns the next index position and persists the record.
	Append(ctx context.Context, record *Record) (domain.RecordID, error)
	// Get returns a copy of the record, or sentinel.ErrNotFound.
	Get(ctx context.Context, id domain.RecordID) (*Record, error)
	// Count returns the number of records ever appended. Revoked records
	// keep their position; the count never shrinks.
	Count(ctx context.Context) (uint64, error)
	// Scan returns up to limit records starting at position start, in
	// position order. Windows past the end return fewer (or zero)
	// records, never an error.
	Scan(ctx context.Context, start domain.RecordID, limit int) ([]*Record, error)
	// Execute atomically validates then mutates one record.
	Execute(ctx context.Context, id domain.RecordID, validate func(*Record) error, mutate func(*Record)) (*Record, error)
}
