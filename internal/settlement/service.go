package settlement

import (
	"context"
	"log/slog"

	"dataledger/internal/accesscontrol"
	"dataledger/internal/params"
	"dataledger/internal/settlement/metrics"
	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
	"dataledger/pkg/platform/audit"
	"dataledger/pkg/requestcontext"

	"github.com/google/uuid"
)

// Service is the payment processor. Distribution entry points are restricted
// to oracle-role callers so only the query path can move fees; withdrawals
// are owner-initiated.
type Service struct {
	ledger     Ledger
	access     *accesscontrol.Registry
	params     *params.Registry
	transferer Transferer
	auditor    audit.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(
	ledger Ledger,
	access *accesscontrol.Registry,
	registry *params.Registry,
	transferer Transferer,
	auditor audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if transferer == nil {
		transferer = NopTransferer{}
	}
	if auditor == nil {
		auditor = audit.NopPublisher{}
	}
	return &Service{
		ledger:     ledger,
		access:     access,
		params:     registry,
		transferer: transferer,
		auditor:    auditor,
		metrics:    m,
		logger:     logger,
	}
}

// DistributeEarnings splits a query payment between the platform and the
// owners of the records that contributed to the result. Owners may repeat
// (one entry per contributing record); each unique owner is credited exactly
// once, in first-seen order, and the integer-division dust goes to the first
// of them so the split closes to the payment exactly.
func (s *Service) DistributeEarnings(
	ctx context.Context,
	caller uuid.UUID,
	requester domain.RequesterID,
	queryID domain.QueryID,
	owners []domain.OwnerID,
	payment domain.Wei,
) (*Distribution, error) {
	if err := s.access.Require(ctx, accesscontrol.RoleOracle, caller); err != nil {
		s.auditDenied(ctx, caller, queryID, "distribute_earnings")
		return nil, err
	}
	if payment == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "payment must be positive")
	}
	if len(owners) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "distribution requires at least one contributing owner")
	}
	cfg := s.params.Get(ctx)
	if len(owners) > cfg.MaxBatch {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"too many contributing records: %d exceeds batch limit %d", len(owners), cfg.MaxBatch)
	}

	dist, err := split(requester, queryID, owners, payment, cfg.PlatformBPS)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.ApplyDistribution(ctx, dist); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply distribution")
	}

	pool, _ := dist.Payment.Sub(dist.PlatformShare)
	dust := uint64(dist.Credits[0].Amount) - uint64(pool)/uint64(len(dist.Credits))
	s.metrics.ObserveDistribution(uint64(pool), dust)

	if err := s.auditor.Emit(ctx, audit.Event{
		Action:      audit.ActionEarningsDistributed,
		ActorID:     caller.String(),
		RequesterID: requester.String(),
		QueryID:     queryID.String(),
		AmountWei:   uint64(payment),
		RequestID:   requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, err
	}

	if err := s.checkConservation(ctx); err != nil {
		return nil, err
	}
	return dist, nil
}

// AccruePlatformFee records a payment for a query that matched no consenting
// records: the query still succeeded and still cost its fee, so the entire
// payment accrues to the platform with no contributor credits.
func (s *Service) AccruePlatformFee(
	ctx context.Context,
	caller uuid.UUID,
	requester domain.RequesterID,
	queryID domain.QueryID,
	payment domain.Wei,
) error {
	if err := s.access.Require(ctx, accesscontrol.RoleOracle, caller); err != nil {
		s.auditDenied(ctx, caller, queryID, "accrue_platform_fee")
		return err
	}
	if payment == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "payment must be positive")
	}

	dist := &Distribution{
		Requester:     requester,
		QueryID:       queryID,
		Payment:       payment,
		PlatformShare: payment,
	}
	if err := s.ledger.ApplyDistribution(ctx, dist); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to accrue platform fee")
	}

	if err := s.auditor.Emit(ctx, audit.Event{
		Action:      audit.ActionEarningsDistributed,
		ActorID:     caller.String(),
		RequesterID: requester.String(),
		QueryID:     queryID.String(),
		AmountWei:   uint64(payment),
		Decision:    "platform_only",
		Reason:      "no contributing owners",
		RequestID:   requestcontext.RequestID(ctx),
	}); err != nil {
		return err
	}
	return s.checkConservation(ctx)
}

// WithdrawEarnings pays out an owner's full accumulated balance. The external
// transfer runs inside the ledger's critical section, so a failed transfer
// leaves the balance untouched.
func (s *Service) WithdrawEarnings(ctx context.Context, owner domain.OwnerID) (domain.Wei, error) {
	amount, err := s.ledger.Withdraw(ctx, owner, func(amount domain.Wei) error {
		return s.transferer.Transfer(ctx, uuid.UUID(owner), amount)
	})
	if err != nil {
		return 0, err
	}
	s.metrics.ObserveWithdrawal(uint64(amount))

	if err := s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionEarningsWithdrawn,
		ActorID:   owner.String(),
		OwnerID:   owner.String(),
		AmountWei: uint64(amount),
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return 0, err
	}

	if err := s.checkConservation(ctx); err != nil {
		return 0, err
	}
	return amount, nil
}

// Balance returns an owner's unwithdrawn earnings.
func (s *Service) Balance(ctx context.Context, owner domain.OwnerID) (domain.Wei, error) {
	return s.ledger.Balance(ctx, owner)
}

// Spent returns a requester's cumulative query payments.
func (s *Service) Spent(ctx context.Context, requester domain.RequesterID) (domain.Wei, error) {
	return s.ledger.Spent(ctx, requester)
}

// GetStats returns the ledger totals used for conservation auditing.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	stats, err := s.ledger.Stats(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger stats")
	}
	if !stats.Conserved() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "settlement ledger does not conserve funds")
	}
	return stats, nil
}

func (s *Service) checkConservation(ctx context.Context) error {
	stats, err := s.ledger.Stats(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ledger stats")
	}
	if !stats.Conserved() {
		s.logger.ErrorContext(ctx, "settlement conservation broken",
			"total_fees", uint64(stats.TotalFees),
			"total_distributed", uint64(stats.TotalDistributed),
			"platform_accrued", uint64(stats.PlatformAccrued),
			"outstanding", uint64(stats.OutstandingBalances),
		)
		return dErrors.New(dErrors.CodeInvariantViolation, "settlement ledger does not conserve funds")
	}
	return nil
}

func (s *Service) auditDenied(ctx context.Context, caller uuid.UUID, queryID domain.QueryID, op string) {
	_ = s.auditor.Emit(ctx, audit.Event{
		Action:    audit.ActionAuthorizationDenied,
		ActorID:   caller.String(),
		QueryID:   queryID.String(),
		Decision:  "denied",
		Reason:    op + " requires oracle role",
		RequestID: requestcontext.RequestID(ctx),
	})
}

// split computes the exact division of a payment: the platform's basis-point
// share first, then the contributor pool divided evenly across unique owners
// with the remainder folded into the first owner's credit.
func split(
	requester domain.RequesterID,
	queryID domain.QueryID,
	owners []domain.OwnerID,
	payment domain.Wei,
	platformBPS uint64,
) (*Distribution, error) {
	platformShare := payment.SplitBPS(platformBPS)
	pool, err := payment.Sub(platformShare)
	if err != nil {
		return nil, err
	}

	// Dedupe owners preserving first-seen order; the scratch set is sized
	// up front so the hot path never reallocates.
	seen := make(map[domain.OwnerID]struct{}, len(owners))
	unique := make([]domain.OwnerID, 0, len(owners))
	for _, o := range owners {
		if o.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "contributing owner id must not be nil")
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		unique = append(unique, o)
	}

	perOwner := domain.Wei(uint64(pool) / uint64(len(unique)))
	dust := domain.Wei(uint64(pool) - uint64(perOwner)*uint64(len(unique)))

	credits := make([]Credit, len(unique))
	for i, o := range unique {
		credits[i] = Credit{Owner: o, Amount: perOwner}
	}
	credits[0].Amount += dust

	dist := &Distribution{
		Requester:     requester,
		QueryID:       queryID,
		Payment:       payment,
		PlatformShare: platformShare,
		Credits:       credits,
	}
	if err := dist.Validate(); err != nil {
		return nil, err
	}
	return dist, nil
}
