// Package params holds the adjustable engine parameters: the fee schedule,
// the platform/contributor split, the k-anonymity threshold and the scan
// batch cap. The admin surface updates them; the oracle, settlement and
// verification services read a consistent snapshot per call.
package params

import (
	"context"
	"sync"
	"time"

	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
)

// Params is one consistent parameter snapshot.
type Params struct {
	// AggregateFee is the minimum payment for an aggregate query.
	AggregateFee domain.Wei `json:"aggregate_fee_wei"`
	// IndividualFee is the minimum payment for an individual query.
	// Individual disclosure is priced above aggregation.
	IndividualFee domain.Wei `json:"individual_fee_wei"`
	// PlatformBPS is the platform share of each query fee in basis
	// points; the remainder is the contributor pool.
	PlatformBPS uint64 `json:"platform_bps"`
	// KAnonymity is the minimum count of consenting matching records
	// before any individual identifier may be disclosed.
	KAnonymity int `json:"k_anonymity"`
	// MaxBatch caps the scan window of a single aggregate query.
	MaxBatch int `json:"max_batch"`
	// MinStake / MaxStake bound verification stake deposits.
	MinStake domain.Wei `json:"min_stake_wei"`
	MaxStake domain.Wei `json:"max_stake_wei"`
	// ConfidenceThreshold is the score at or above which a confidence
	// submission advances reputation.
	ConfidenceThreshold int `json:"confidence_threshold"`
	// DisputeWindow is how long an open dispute may be resolved before it
	// lapses unconfirmed.
	DisputeWindow time.Duration `json:"dispute_window_ns"`
}

// Defaults mirror the launch configuration: 0.001 ETH aggregate fee,
// 0.005 ETH individual fee, 70/30 contributor split, K=3, 7 day disputes.
func Defaults() Params {
	return Params{
		AggregateFee:        1_000_000_000_000_000,
		IndividualFee:       5_000_000_000_000_000,
		PlatformBPS:         3000,
		KAnonymity:          3,
		MaxBatch:            500,
		MinStake:            1_000_000_000_000_000,
		MaxStake:            1_000_000_000_000_000_000,
		ConfidenceThreshold: 70,
		DisputeWindow:       7 * 24 * time.Hour,
	}
}

// Validate rejects parameter sets that would wedge the engine.
func (p Params) Validate() error {
	if p.PlatformBPS > domain.BPSMax {
		return dErrors.New(dErrors.CodeInvalidInput, "platform split exceeds 10000 basis points")
	}
	if p.KAnonymity < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "k-anonymity threshold must be at least 1")
	}
	if p.MaxBatch < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "max batch must be at least 1")
	}
	if p.MinStake == 0 || p.MinStake > p.MaxStake {
		return dErrors.New(dErrors.CodeInvalidInput, "stake bounds inverted or zero")
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 100 {
		return dErrors.New(dErrors.CodeInvalidInput, "confidence threshold must be within [0,100]")
	}
	if p.DisputeWindow <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "dispute window must be positive")
	}
	return nil
}

// Registry guards the live parameter set.
type Registry struct {
	mu      sync.RWMutex
	current Params
}

func NewRegistry(initial Params) (*Registry, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &Registry{current: initial}, nil
}

// Get returns the current snapshot.
func (r *Registry) Get(ctx context.Context) Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Update swaps in a validated parameter set.
func (r *Registry) Update(ctx context.Context, next Params) error {
	if err := next.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = next
	return nil
}
