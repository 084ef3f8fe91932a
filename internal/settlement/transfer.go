package settlement

import (
	"context"

	"dataledger/pkg/domain"

	"github.com/google/uuid"
)

// Transferer moves funds out of the ledger to an owner's external account.
// Implementations must be safe for concurrent use; a failed transfer aborts
// the withdrawal that invoked it.
type Transferer interface {
	Transfer(ctx context.Context, owner uuid.UUID, amount domain.Wei) error
}

// NopTransferer accepts every transfer without side effects. Used in tests
// and in deployments where payout happens out of band.
type NopTransferer struct{}

func (NopTransferer) Transfer(context.Context, uuid.UUID, domain.Wei) error { return nil }
