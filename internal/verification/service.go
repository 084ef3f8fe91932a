package verification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"dataledger/internal/accesscontrol"
	"dataledger/internal/params"
	"dataledger/internal/records"
	"dataledger/internal/verification/metrics"
	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
	"dataledger/pkg/platform/audit"
	"dataledger/pkg/platform/sentinel"
	"dataledger/pkg/requestcontext"
)

// Service runs the verification registry. It borrows read access to the
// record index for ownership and liveness checks; stakes and reputation are
// exclusively its own.
type Service struct {
	store   Store
	records *records.Service
	access  *accesscontrol.Registry
	params  *params.Registry
	auditor audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(
	store Store,
	recordIndex *records.Service,
	access *accesscontrol.Registry,
	registry *params.Registry,
	auditor audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if auditor == nil {
		auditor = audit.NopPublisher{}
	}
	return &Service{
		store:   store,
		records: recordIndex,
		access:  access,
		params:  registry,
		auditor: auditor,
		metrics: m,
		logger:  logger,
	}
}

// DepositStake opens a stake on a record. Owner-only, active records only,
// amount within the configured bounds, one stake per record ever.
func (s *Service) DepositStake(ctx context.Context, caller domain.OwnerID, recordID domain.RecordID, amount domain.Wei) (*Stake, error) {
	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.OwnerID != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the record owner may stake")
	}
	if !record.Active {
		return nil, dErrors.New(dErrors.CodeConflict, "cannot stake a revoked record")
	}
	cfg := s.params.Get(ctx)
	if amount < cfg.MinStake || amount > cfg.MaxStake {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"stake must be in [%d, %d] wei", cfg.MinStake, cfg.MaxStake)
	}

	stake := &Stake{
		RecordID:  recordID,
		Owner:     caller,
		Amount:    amount,
		Status:    StatusStaked,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, stake); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "record already has a stake")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create stake")
	}
	s.metrics.ObserveDeposit(uint64(amount))

	if _, err := s.store.AdjustReputation(ctx, caller, DeltaStakeDeposited); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to adjust reputation")
	}

	if err := s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionStakeDeposited,
		ActorID:   caller.String(),
		OwnerID:   caller.String(),
		RecordID:  recordID.String(),
		AmountWei: uint64(amount),
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, err
	}
	return stake, nil
}

// SubmitConfidenceScore records the verification verdict for a staked
// record, once. Callers are the AI oracle or an attesting provider; scores
// at or above the configured threshold advance the owner's reputation. A
// low score flags the record but never slashes by itself.
func (s *Service) SubmitConfidenceScore(ctx context.Context, caller uuid.UUID, recordID domain.RecordID, score int, claims []string) (*Stake, error) {
	attested := s.access.HasRole(ctx, accesscontrol.RoleAttestor, caller)
	if !attested && !s.access.HasRole(ctx, accesscontrol.RoleOracle, caller) {
		s.auditDenied(ctx, caller, recordID, "submit_confidence_score")
		return nil, dErrors.New(dErrors.CodeForbidden, "caller may not submit confidence scores")
	}

	stake, err := s.store.Execute(ctx, recordID,
		func(st *Stake) error {
			st.ExpireLapsedDispute(requestcontext.Now(ctx))
			return st.CanScore()
		},
		func(st *Stake) {
			st.ApplyScore(score, claims, attested)
		},
	)
	if err != nil {
		return nil, wrapStakeErr(err)
	}
	s.metrics.ObserveScore(stake.AIConfidence)

	cfg := s.params.Get(ctx)
	if stake.AIConfidence >= cfg.ConfidenceThreshold {
		if _, err := s.store.AdjustReputation(ctx, stake.Owner, DeltaHighConfidence); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to adjust reputation")
		}
	}

	if err := s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionConfidenceScored,
		ActorID:   caller.String(),
		OwnerID:   stake.Owner.String(),
		RecordID:  recordID.String(),
		Decision:  decisionForScore(stake.AIConfidence, cfg.ConfidenceThreshold),
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, err
	}
	return stake, nil
}

// OpenDispute starts the dispute window on a stake. Any party may open it;
// one dispute per stake ever.
func (s *Service) OpenDispute(ctx context.Context, caller uuid.UUID, recordID domain.RecordID) (*Stake, error) {
	if caller == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "caller id is required")
	}
	cfg := s.params.Get(ctx)

	stake, err := s.store.Execute(ctx, recordID,
		func(st *Stake) error {
			st.ExpireLapsedDispute(requestcontext.Now(ctx))
			return st.CanOpenDispute()
		},
		func(st *Stake) {
			st.ApplyOpenDispute(requestcontext.Now(ctx), cfg.DisputeWindow)
		},
	)
	if err != nil {
		return nil, wrapStakeErr(err)
	}
	s.metrics.ObserveDispute()

	if err := s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionDisputeOpened,
		ActorID:   caller.String(),
		OwnerID:   stake.Owner.String(),
		RecordID:  recordID.String(),
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, err
	}
	return stake, nil
}

// ResolveDispute closes an open dispute inside its window. Arbiter-only,
// and never the stake's own owner. Confirmation slashes the full stake and
// applies the reputation penalty; rejection releases the stake and ticks
// reputation up.
func (s *Service) ResolveDispute(ctx context.Context, caller uuid.UUID, recordID domain.RecordID, confirmed bool) (*Stake, error) {
	if err := s.access.Require(ctx, accesscontrol.RoleArbiter, caller); err != nil {
		s.auditDenied(ctx, caller, recordID, "resolve_dispute")
		return nil, err
	}

	var slashedAmount domain.Wei
	stake, err := s.store.Execute(ctx, recordID,
		func(st *Stake) error {
			if uuid.UUID(st.Owner) == caller {
				return dErrors.New(dErrors.CodeForbidden, "an owner may not arbitrate their own stake")
			}
			st.ExpireLapsedDispute(requestcontext.Now(ctx))
			return st.CanResolveDispute(requestcontext.Now(ctx))
		},
		func(st *Stake) {
			slashedAmount = st.Amount
			st.ApplyResolveDispute(confirmed)
		},
	)
	if err != nil {
		return nil, wrapStakeErr(err)
	}

	delta := DeltaDisputeRejected
	decision := "rejected"
	if confirmed {
		delta = -PenaltySlash
		decision = "confirmed"
		s.metrics.ObserveSlash(uint64(slashedAmount))
	}
	if _, err := s.store.AdjustReputation(ctx, stake.Owner, delta); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to adjust reputation")
	}

	if err := s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionDisputeResolved,
		ActorID:   caller.String(),
		OwnerID:   stake.Owner.String(),
		RecordID:  recordID.String(),
		Decision:  decision,
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, err
	}
	if confirmed {
		if err := s.auditor.Emit(ctx, audit.Event{
			Action:    audit.ActionStakeSlashed,
			ActorID:   caller.String(),
			OwnerID:   stake.Owner.String(),
			RecordID:  recordID.String(),
			AmountWei: uint64(slashedAmount),
			RequestID: requestcontext.RequestID(ctx),
		}); err != nil {
			return nil, err
		}
	}
	return stake, nil
}

// WithdrawStake returns a released stake to its owner. Blocked while a
// dispute is open and forever after a slash; a lapsed dispute releases the
// stake on the way through.
func (s *Service) WithdrawStake(ctx context.Context, caller domain.OwnerID, recordID domain.RecordID) (domain.Wei, error) {
	var amount domain.Wei
	_, err := s.store.Execute(ctx, recordID,
		func(st *Stake) error {
			st.ExpireLapsedDispute(requestcontext.Now(ctx))
			return st.CanWithdraw(caller)
		},
		func(st *Stake) {
			amount = st.Amount
			st.ApplyWithdraw()
		},
	)
	if err != nil {
		return 0, wrapStakeErr(err)
	}

	if err := s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionStakeWithdrawn,
		ActorID:   caller.String(),
		OwnerID:   caller.String(),
		RecordID:  recordID.String(),
		AmountWei: uint64(amount),
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return 0, err
	}
	return amount, nil
}

// GetStake returns the stake for a record.
func (s *Service) GetStake(ctx context.Context, recordID domain.RecordID) (*Stake, error) {
	stake, err := s.store.Get(ctx, recordID)
	if err != nil {
		return nil, wrapStakeErr(err)
	}
	stake.ExpireLapsedDispute(requestcontext.Now(ctx))
	return stake, nil
}

// GetReputation returns an owner's current score.
func (s *Service) GetReputation(ctx context.Context, owner domain.OwnerID) (int, error) {
	score, err := s.store.Reputation(ctx, owner)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read reputation")
	}
	return score, nil
}

func (s *Service) auditDenied(ctx context.Context, caller uuid.UUID, recordID domain.RecordID, op string) {
	_ = s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionAuthorizationDenied,
		ActorID:   caller.String(),
		RecordID:  recordID.String(),
		Decision:  "denied",
		Reason:    op + " requires a verification role",
		RequestID: requestcontext.RequestID(ctx),
	})
}

func decisionForScore(score, threshold int) string {
	if score >= threshold {
		return "passed"
	}
	return "flagged"
}

func wrapStakeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "no stake for this record")
	default:
		return err
	}
}
