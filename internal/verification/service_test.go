package verification

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dataledger/internal/accesscontrol"
	"dataledger/internal/encryption"
	"dataledger/internal/params"
	"dataledger/internal/records"
	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
	"dataledger/pkg/platform/audit"
	"dataledger/pkg/requestcontext"
)

const minStake = domain.Wei(1_000_000_000_000_000)

type VerificationServiceSuite struct {
	suite.Suite
	ctx     context.Context
	arith   *encryption.Transparent
	records *records.Service
	store   *MemoryStore
	access  *accesscontrol.Registry
	service *Service
	scorer  uuid.UUID
	arbiter uuid.UUID
}

func TestVerificationServiceSuite(t *testing.T) {
	suite.Run(t, new(VerificationServiceSuite))
}

func (s *VerificationServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.arith = encryption.NewTransparent()
	s.records = records.NewService(records.NewMemoryStore(), audit.NopPublisher{}, slog.Default())
	s.store = NewMemoryStore()

	s.access = accesscontrol.New(uuid.New())
	s.scorer = uuid.New()
	s.Require().NoError(s.access.Grant(s.ctx, accesscontrol.RoleOracle, s.scorer))
	s.arbiter = uuid.New()
	s.Require().NoError(s.access.Grant(s.ctx, accesscontrol.RoleArbiter, s.arbiter))

	registry, err := params.NewRegistry(params.Defaults())
	s.Require().NoError(err)

	s.service = NewService(s.store, s.records, s.access, registry,
		audit.NopPublisher{}, nil, slog.Default())
}

func (s *VerificationServiceSuite) submitRecord(owner domain.OwnerID) domain.RecordID {
	handle, err := s.arith.Seal(s.ctx, 1)
	s.Require().NoError(err)
	id, err := s.records.Submit(s.ctx, records.SubmitRequest{
		Owner:        owner,
		Category:     "cardiology",
		Age:          40,
		ConsentLevel: domain.ConsentAggregateOnly,
		FieldHandles: []encryption.Ciphertext{handle},
	})
	s.Require().NoError(err)
	return id
}

func (s *VerificationServiceSuite) stakedRecord(owner domain.OwnerID) domain.RecordID {
	id := s.submitRecord(owner)
	_, err := s.service.DepositStake(s.ctx, owner, id, minStake)
	s.Require().NoError(err)
	return id
}

// TestDepositStake verifies the owner gate, the bounds and the one-stake
// rule.
func (s *VerificationServiceSuite) TestDepositStake() {
	s.Run("accepts a bounded stake from the owner", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.submitRecord(owner)

		stake, err := s.service.DepositStake(s.ctx, owner, id, minStake)
		s.Require().NoError(err)
		s.Equal(StatusStaked, stake.Status)
		s.Equal(minStake, stake.Amount)

		score, err := s.service.GetReputation(s.ctx, owner)
		s.Require().NoError(err)
		s.Equal(DeltaStakeDeposited, score)
	})

	s.Run("rejects a second deposit on the same record", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.stakedRecord(owner)

		_, err := s.service.DepositStake(s.ctx, owner, id, minStake)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejects non-owner and out-of-bounds amounts", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.submitRecord(owner)

		_, err := s.service.DepositStake(s.ctx, domain.OwnerID(uuid.New()), id, minStake)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = s.service.DepositStake(s.ctx, owner, id, minStake-1)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects staking a revoked record", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.submitRecord(owner)
		s.Require().NoError(s.records.Revoke(s.ctx, id, owner))

		_, err := s.service.DepositStake(s.ctx, owner, id, minStake)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

// TestSubmitConfidenceScore verifies the once-only scoring rule and its
// reputation effect.
func (s *VerificationServiceSuite) TestSubmitConfidenceScore() {
	s.Run("high score advances reputation", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.stakedRecord(owner)

		stake, err := s.service.SubmitConfidenceScore(s.ctx, s.scorer, id, 85, []string{"diagnosis consistent"})
		s.Require().NoError(err)
		s.True(stake.Scored)
		s.Equal(85, stake.AIConfidence)
		s.False(stake.ProviderAttested)

		score, err := s.service.GetReputation(s.ctx, owner)
		s.Require().NoError(err)
		s.Equal(DeltaStakeDeposited+DeltaHighConfidence, score)
	})

	s.Run("low score flags without advancing or slashing", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.stakedRecord(owner)

		stake, err := s.service.SubmitConfidenceScore(s.ctx, s.scorer, id, 40, nil)
		s.Require().NoError(err)
		s.Equal(StatusStaked, stake.Status)
		s.Equal(minStake, stake.Amount)

		score, err := s.service.GetReputation(s.ctx, owner)
		s.Require().NoError(err)
		s.Equal(DeltaStakeDeposited, score)
	})

	s.Run("score is settable once", func() {
		id := s.stakedRecord(domain.OwnerID(uuid.New()))
		_, err := s.service.SubmitConfidenceScore(s.ctx, s.scorer, id, 90, nil)
		s.Require().NoError(err)

		_, err = s.service.SubmitConfidenceScore(s.ctx, s.scorer, id, 10, nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("score is clamped to [0,100]", func() {
		id := s.stakedRecord(domain.OwnerID(uuid.New()))
		stake, err := s.service.SubmitConfidenceScore(s.ctx, s.scorer, id, 250, nil)
		s.Require().NoError(err)
		s.Equal(100, stake.AIConfidence)
	})

	s.Run("attestor submissions are marked provider-attested", func() {
		attestor := uuid.New()
		s.Require().NoError(s.access.Grant(s.ctx, accesscontrol.RoleAttestor, attestor))

		id := s.stakedRecord(domain.OwnerID(uuid.New()))
		stake, err := s.service.SubmitConfidenceScore(s.ctx, attestor, id, 95, nil)
		s.Require().NoError(err)
		s.True(stake.ProviderAttested)
	})

	s.Run("rejects unauthorized scorer", func() {
		id := s.stakedRecord(domain.OwnerID(uuid.New()))
		_, err := s.service.SubmitConfidenceScore(s.ctx, uuid.New(), id, 50, nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

// TestDisputeLifecycle covers the full fraud path (low score, dispute,
// confirmation, slash) and the one-way nature of each step.
func (s *VerificationServiceSuite) TestDisputeLifecycle() {
	s.Run("confirmed dispute slashes the stake exactly once", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.stakedRecord(owner)
		_, err := s.service.SubmitConfidenceScore(s.ctx, s.scorer, id, 40, nil)
		s.Require().NoError(err)

		_, err = s.service.OpenDispute(s.ctx, uuid.New(), id)
		s.Require().NoError(err)

		before, err := s.service.GetReputation(s.ctx, owner)
		s.Require().NoError(err)

		stake, err := s.service.ResolveDispute(s.ctx, s.arbiter, id, true)
		s.Require().NoError(err)
		s.Equal(StatusSlashed, stake.Status)
		s.Equal(domain.Wei(0), stake.Amount)

		after, err := s.service.GetReputation(s.ctx, owner)
		s.Require().NoError(err)
		s.Equal(ClampReputation(before, -PenaltySlash), after)

		// Terminal: no second resolution, no withdrawal.
		_, err = s.service.ResolveDispute(s.ctx, s.arbiter, id, false)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		_, err = s.service.WithdrawStake(s.ctx, owner, id)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejected dispute releases the stake and ticks reputation up", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.stakedRecord(owner)
		_, err := s.service.OpenDispute(s.ctx, uuid.New(), id)
		s.Require().NoError(err)

		stake, err := s.service.ResolveDispute(s.ctx, s.arbiter, id, false)
		s.Require().NoError(err)
		s.Equal(StatusStaked, stake.Status)
		s.Equal(minStake, stake.Amount)

		score, err := s.service.GetReputation(s.ctx, owner)
		s.Require().NoError(err)
		s.Equal(DeltaStakeDeposited+DeltaDisputeRejected, score)

		amount, err := s.service.WithdrawStake(s.ctx, owner, id)
		s.Require().NoError(err)
		s.Equal(minStake, amount)
	})

	s.Run("one dispute per stake", func() {
		id := s.stakedRecord(domain.OwnerID(uuid.New()))
		_, err := s.service.OpenDispute(s.ctx, uuid.New(), id)
		s.Require().NoError(err)
		_, err = s.service.ResolveDispute(s.ctx, s.arbiter, id, false)
		s.Require().NoError(err)

		_, err = s.service.OpenDispute(s.ctx, uuid.New(), id)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("lapsed dispute protects the stake", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.stakedRecord(owner)
		_, err := s.service.OpenDispute(s.ctx, uuid.New(), id)
		s.Require().NoError(err)

		// Resolution arriving after the window finds the dispute lapsed.
		late := requestcontext.WithTime(s.ctx, time.Now().Add(8*24*time.Hour))
		_, err = s.service.ResolveDispute(late, s.arbiter, id, true)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		amount, err := s.service.WithdrawStake(late, owner, id)
		s.Require().NoError(err)
		s.Equal(minStake, amount)
	})

	s.Run("withdrawal is blocked while a dispute is open", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.stakedRecord(owner)
		_, err := s.service.OpenDispute(s.ctx, uuid.New(), id)
		s.Require().NoError(err)

		_, err = s.service.WithdrawStake(s.ctx, owner, id)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("resolution is arbiter-only and never self-arbitrated", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.stakedRecord(owner)
		_, err := s.service.OpenDispute(s.ctx, uuid.New(), id)
		s.Require().NoError(err)

		_, err = s.service.ResolveDispute(s.ctx, uuid.New(), id, true)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		ownerArbiter := uuid.UUID(owner)
		s.Require().NoError(s.access.Grant(s.ctx, accesscontrol.RoleArbiter, ownerArbiter))
		_, err = s.service.ResolveDispute(s.ctx, ownerArbiter, id, true)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

// TestReputationSaturation verifies the [0,1000] clamp on both ends.
func (s *VerificationServiceSuite) TestReputationSaturation() {
	owner := domain.OwnerID(uuid.New())

	s.Run("never exceeds the ceiling", func() {
		for i := 0; i < 200; i++ {
			_, err := s.store.AdjustReputation(s.ctx, owner, DeltaHighConfidence)
			s.Require().NoError(err)
		}
		score, err := s.service.GetReputation(s.ctx, owner)
		s.Require().NoError(err)
		s.Equal(ReputationMax, score)
	})

	s.Run("never drops below zero", func() {
		for i := 0; i < 20; i++ {
			_, err := s.store.AdjustReputation(s.ctx, owner, -PenaltySlash)
			s.Require().NoError(err)
		}
		score, err := s.service.GetReputation(s.ctx, owner)
		s.Require().NoError(err)
		s.Equal(ReputationMin, score)
	})
}

// TestWithdrawStake covers ownership and terminal withdrawal.
func (s *VerificationServiceSuite) TestWithdrawStake() {
	s.Run("withdrawal is owner-only and one-shot", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.stakedRecord(owner)

		_, err := s.service.WithdrawStake(s.ctx, domain.OwnerID(uuid.New()), id)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		amount, err := s.service.WithdrawStake(s.ctx, owner, id)
		s.Require().NoError(err)
		s.Equal(minStake, amount)

		_, err = s.service.WithdrawStake(s.ctx, owner, id)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown record has no stake", func() {
		_, err := s.service.WithdrawStake(s.ctx, domain.OwnerID(uuid.New()), 99_999)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
