// Package settlement implements the payment processor: it splits each query
// fee between the platform and the contributing record owners, tracks
// per-owner earnings and per-requester spend, and pays owners out on
// withdrawal. It exclusively owns the settlement ledger; fund conservation
// must hold after every call, not just eventually.
package settlement

import (
	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
)

// Credit is one owner's share of a distribution.
type Credit struct {
	Owner  domain.OwnerID `json:"owner"`
	Amount domain.Wei     `json:"amount_wei"`
}

// Distribution is the exact split of one incoming payment. Credits are in
// first-seen owner order; the dust from integer division is already folded
// into the first credit, so the split always sums back to the payment.
type Distribution struct {
	Requester     domain.RequesterID `json:"requester"`
	QueryID       domain.QueryID     `json:"query_id"`
	Payment       domain.Wei         `json:"payment_wei"`
	PlatformShare domain.Wei         `json:"platform_share_wei"`
	Credits       []Credit           `json:"credits"`
}

// Validate checks the closed-sum property: platform share plus all credits
// equals the payment exactly.
func (d *Distribution) Validate() error {
	total := d.PlatformShare
	for _, c := range d.Credits {
		sum, err := total.Add(c.Amount)
		if err != nil {
			return err
		}
		total = sum
	}
	if total != d.Payment {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"distribution does not close: split %d != payment %d", total, d.Payment)
	}
	return nil
}

// Stats is the read-only ledger view for auditability.
type Stats struct {
	// TotalFees is every payment ever accepted.
	TotalFees domain.Wei `json:"total_fees_wei"`
	// TotalDistributed is every payout ever transferred to an owner.
	TotalDistributed domain.Wei `json:"total_distributed_wei"`
	// PlatformAccrued is the platform's cumulative share.
	PlatformAccrued domain.Wei `json:"platform_accrued_wei"`
	// OutstandingBalances is the sum of all unwithdrawn owner earnings.
	OutstandingBalances domain.Wei `json:"outstanding_balances_wei"`
}

// Conserved reports the fund conservation invariant:
// totalFees == totalDistributed + outstanding + platformAccrued.
func (s *Stats) Conserved() bool {
	sum, err := s.TotalDistributed.Add(s.OutstandingBalances)
	if err != nil {
		return false
	}
	sum, err = sum.Add(s.PlatformAccrued)
	if err != nil {
		return false
	}
	return sum == s.TotalFees
}
