package domain

import (
	"fmt"

	dErrors "dataledger/pkg/domain-errors"
)

// Wei is a payment amount in the smallest currency unit. All ledger
// arithmetic is exact: additions that would overflow are rejected as
// invariant violations rather than capped, because a silently capped sum
// would break fund conservation.
type Wei uint64

// Add returns a+b, or an invariant violation on overflow.
func (a Wei) Add(b Wei) (Wei, error) {
	sum := a + b
	if sum < a {
		return 0, dErrors.New(dErrors.CodeInvariantViolation, "wei addition overflow")
	}
	return sum, nil
}

// Sub returns a-b, or an invariant violation when b exceeds a.
func (a Wei) Sub(b Wei) (Wei, error) {
	if b > a {
		return 0, dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("wei underflow: %d - %d", a, b))
	}
	return a - b, nil
}

// SplitBPS returns the basis-point share of a. bps must not exceed 10000.
// The multiply is widened through the high/low decomposition so amounts up
// to the full uint64 range split without wrapping.
func (a Wei) SplitBPS(bps uint64) Wei {
	if bps > BPSMax {
		bps = BPSMax
	}
	// a * bps can exceed 64 bits; split a to keep the product exact.
	hi := uint64(a) / BPSMax
	lo := uint64(a) % BPSMax
	return Wei(hi*bps + lo*bps/BPSMax)
}

// BPSMax is the basis-point denominator (100% = 10000).
const BPSMax = 10000
