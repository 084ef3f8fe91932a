package settlement

import (
	"context"

	"dataledger/pkg/domain"
)

// Ledger is the persistence contract for the settlement ledger.
//
// ApplyDistribution and Withdraw are atomic: either every balance and
// counter moves together or nothing does. Withdraw runs the payout transfer
// inside the critical section so a failed transfer aborts before anything is
// committed: nothing is durable until the transfer returned.
type Ledger interface {
	// ApplyDistribution records an accepted payment: bumps total fees and
	// requester spend, accrues the platform share, credits each owner.
	ApplyDistribution(ctx context.Context, dist *Distribution) error
	// Withdraw zeroes the owner's balance and moves it to distributed,
	// invoking transfer with the amount before committing. A zero balance
	// or a transfer error aborts with nothing committed.
	Withdraw(ctx context.Context, owner domain.OwnerID, transfer func(amount domain.Wei) error) (domain.Wei, error)
	// Balance returns an owner's unwithdrawn earnings (zero if unknown).
	Balance(ctx context.Context, owner domain.OwnerID) (domain.Wei, error)
	// Spent returns a requester's cumulative payments.
	Spent(ctx context.Context, requester domain.RequesterID) (domain.Wei, error)
	// Stats returns the conservation view.
	Stats(ctx context.Context) (*Stats, error)
}
