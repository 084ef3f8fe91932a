package verification

import (
	"context"

	"dataledger/pkg/domain"
)

// Store persists stakes and reputation scores. Stake transitions run
// through Execute, which holds the stake's lock across validate and mutate.
// AdjustReputation saturates at the bounds inside the store so concurrent
// adjustments cannot escape them.
type Store interface {
	// Create registers a new stake. sentinel.ErrConflict if the record
	// already has one.
	Create(ctx context.Context, stake *Stake) error
	Get(ctx context.Context, recordID domain.RecordID) (*Stake, error)
	Execute(
		ctx context.Context,
		recordID domain.RecordID,
		validate func(*Stake) error,
		mutate func(*Stake),
	) (*Stake, error)

	// Reputation returns an owner's score (zero for unknown owners).
	Reputation(ctx context.Context, owner domain.OwnerID) (int, error)
	// AdjustReputation applies a clamped delta and returns the new score.
	AdjustReputation(ctx context.Context, owner domain.OwnerID, delta int) (int, error)
}
