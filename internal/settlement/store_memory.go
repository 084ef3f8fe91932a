package settlement

import (
	"context"
	"sync"

	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
)

// MemoryLedger keeps the whole ledger behind one mutex: distributions touch
// several balances plus the global counters and must be visible all at once.
type MemoryLedger struct {
	mu sync.RWMutex

	earnings map[domain.OwnerID]domain.Wei
	spent    map[domain.RequesterID]domain.Wei

	totalFees        domain.Wei
	totalDistributed domain.Wei
	platformAccrued  domain.Wei
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		earnings: make(map[domain.OwnerID]domain.Wei),
		spent:    make(map[domain.RequesterID]domain.Wei),
	}
}

func (l *MemoryLedger) ApplyDistribution(ctx context.Context, dist *Distribution) error {
	if err := dist.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Stage on copies so an overflow mid-way leaves the ledger untouched.
	totalFees, err := l.totalFees.Add(dist.Payment)
	if err != nil {
		return err
	}
	platformAccrued, err := l.platformAccrued.Add(dist.PlatformShare)
	if err != nil {
		return err
	}
	spent, err := l.spent[dist.Requester].Add(dist.Payment)
	if err != nil {
		return err
	}
	staged := make(map[domain.OwnerID]domain.Wei, len(dist.Credits))
	for _, c := range dist.Credits {
		base, ok := staged[c.Owner]
		if !ok {
			base = l.earnings[c.Owner]
		}
		next, err := base.Add(c.Amount)
		if err != nil {
			return err
		}
		staged[c.Owner] = next
	}

	l.totalFees = totalFees
	l.platformAccrued = platformAccrued
	l.spent[dist.Requester] = spent
	for owner, balance := range staged {
		l.earnings[owner] = balance
	}
	return nil
}

func (l *MemoryLedger) Withdraw(ctx context.Context, owner domain.OwnerID, transfer func(amount domain.Wei) error) (domain.Wei, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.earnings[owner]
	if balance == 0 {
		return 0, dErrors.New(dErrors.CodeConflict, "no earnings to withdraw")
	}
	distributed, err := l.totalDistributed.Add(balance)
	if err != nil {
		return 0, err
	}

	// External call before commit: a transfer failure aborts the whole
	// withdrawal with the balance still intact.
	if err := transfer(balance); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeExternalFailure, "payout transfer failed")
	}

	l.earnings[owner] = 0
	l.totalDistributed = distributed
	return balance, nil
}

func (l *MemoryLedger) Balance(ctx context.Context, owner domain.OwnerID) (domain.Wei, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.earnings[owner], nil
}

func (l *MemoryLedger) Spent(ctx context.Context, requester domain.RequesterID) (domain.Wei, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.spent[requester], nil
}

func (l *MemoryLedger) Stats(ctx context.Context) (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var outstanding domain.Wei
	for _, balance := range l.earnings {
		sum, err := outstanding.Add(balance)
		if err != nil {
			return nil, err
		}
		outstanding = sum
	}
	return &Stats{
		TotalFees:           l.totalFees,
		TotalDistributed:    l.totalDistributed,
		PlatformAccrued:     l.platformAccrued,
		OutstandingBalances: outstanding,
	}, nil
}
