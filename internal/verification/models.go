// Package verification implements the stake and reputation registry: owners
// stake against their records, AI oracles and attesting providers score
// them, and disputes resolve within a fixed window into a slash or a
// release. Slashing is terminal and requires an affirmative confirmation;
// an expired dispute protects the stake.
package verification

import (
	"time"

	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
)

// StakeStatus is the lifecycle position of a stake.
type StakeStatus string

const (
	StatusStaked    StakeStatus = "staked"
	StatusDisputed  StakeStatus = "disputed"
	StatusSlashed   StakeStatus = "slashed"
	StatusWithdrawn StakeStatus = "withdrawn"
)

// Stake is one record's verification stake. One stake per record; slashed
// and withdrawn are terminal.
type Stake struct {
	RecordID domain.RecordID `json:"record_id"`
	Owner    domain.OwnerID  `json:"owner"`
	Amount   domain.Wei      `json:"amount_wei"`
	Status   StakeStatus     `json:"status"`

	// Confidence scoring, settable once.
	Scored           bool     `json:"scored"`
	AIConfidence     int      `json:"ai_confidence"`
	Claims           []string `json:"claims,omitempty"`
	ProviderAttested bool     `json:"provider_attested"`

	// Dispute state. One dispute per stake; an unresolved dispute past its
	// deadline lapses unconfirmed.
	DisputeOpenedAt  *time.Time `json:"dispute_opened_at,omitempty"`
	DisputeDeadline  *time.Time `json:"dispute_deadline,omitempty"`
	DisputeResolved  bool       `json:"dispute_resolved"`
	DisputeConfirmed bool       `json:"dispute_confirmed"`

	CreatedAt time.Time `json:"created_at"`
}

func (s *Stake) terminal() error {
	switch s.Status {
	case StatusSlashed:
		return dErrors.New(dErrors.CodeConflict, "stake has been slashed")
	case StatusWithdrawn:
		return dErrors.New(dErrors.CodeConflict, "stake has been withdrawn")
	}
	return nil
}

// ExpireLapsedDispute folds an unresolved dispute past its deadline back
// into the staked state. Expiry is lazy: callers apply it before any
// transition that depends on dispute state.
func (s *Stake) ExpireLapsedDispute(now time.Time) bool {
	if s.Status != StatusDisputed || s.DisputeDeadline == nil || !now.After(*s.DisputeDeadline) {
		return false
	}
	s.Status = StatusStaked
	s.DisputeResolved = true
	s.DisputeConfirmed = false
	return true
}

func (s *Stake) CanScore() error {
	if err := s.terminal(); err != nil {
		return err
	}
	if s.Scored {
		return dErrors.New(dErrors.CodeConflict, "confidence score already submitted")
	}
	return nil
}

func (s *Stake) ApplyScore(score int, claims []string, providerAttested bool) {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	s.Scored = true
	s.AIConfidence = score
	s.Claims = claims
	s.ProviderAttested = providerAttested
}

func (s *Stake) CanOpenDispute() error {
	if err := s.terminal(); err != nil {
		return err
	}
	if s.DisputeOpenedAt != nil {
		return dErrors.New(dErrors.CodeConflict, "a dispute was already opened for this stake")
	}
	return nil
}

func (s *Stake) ApplyOpenDispute(now time.Time, window time.Duration) {
	deadline := now.Add(window)
	s.Status = StatusDisputed
	s.DisputeOpenedAt = &now
	s.DisputeDeadline = &deadline
}

func (s *Stake) CanResolveDispute(now time.Time) error {
	if err := s.terminal(); err != nil {
		return err
	}
	if s.Status != StatusDisputed {
		return dErrors.New(dErrors.CodeConflict, "no open dispute to resolve")
	}
	if s.DisputeDeadline != nil && now.After(*s.DisputeDeadline) {
		return dErrors.New(dErrors.CodeConflict, "dispute window has elapsed")
	}
	return nil
}

// ApplyResolveDispute confirms or rejects the open dispute. Confirmation
// slashes: the stake zeroes and the state is terminal. Rejection releases
// the stake back to withdrawable.
func (s *Stake) ApplyResolveDispute(confirmed bool) {
	s.DisputeResolved = true
	s.DisputeConfirmed = confirmed
	if confirmed {
		s.Status = StatusSlashed
		s.Amount = 0
		return
	}
	s.Status = StatusStaked
}

func (s *Stake) CanWithdraw(owner domain.OwnerID) error {
	if s.Owner != owner {
		return dErrors.New(dErrors.CodeForbidden, "only the stake owner may withdraw")
	}
	if err := s.terminal(); err != nil {
		return err
	}
	if s.Status == StatusDisputed {
		return dErrors.New(dErrors.CodeConflict, "stake is under an open dispute")
	}
	return nil
}

func (s *Stake) ApplyWithdraw() {
	s.Status = StatusWithdrawn
	s.Amount = 0
}

// Reputation bounds and deltas. Every adjustment saturates at the bounds,
// never wraps.
const (
	ReputationMin = 0
	ReputationMax = 1000

	DeltaStakeDeposited  = 10
	DeltaHighConfidence  = 25
	DeltaDisputeRejected = 15
	PenaltySlash         = 200
)

// ClampReputation applies a signed delta to a score, saturating at
// [ReputationMin, ReputationMax].
func ClampReputation(score, delta int) int {
	next := score + delta
	if next < ReputationMin {
		return ReputationMin
	}
	if next > ReputationMax {
		return ReputationMax
	}
	return next
}
