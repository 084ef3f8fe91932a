package oracle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dataledger/internal/accesscontrol"
	"dataledger/internal/encryption"
	"dataledger/internal/oracle/metrics"
	"dataledger/internal/params"
	"dataledger/internal/records"
	"dataledger/internal/settlement"
	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
	"dataledger/pkg/platform/audit"
	"dataledger/pkg/platform/sentinel"
	pstrings "dataledger/pkg/platform/strings"
	"dataledger/pkg/requestcontext"
)

// pendingTTL bounds how long an unanswered decryption request stays visible
// to relayers.
const pendingTTL = 24 * time.Hour

// Service executes paid queries over the record index. It holds its own
// identity, authorized as an oracle on the settlement side, so the payment
// forward in ComputeAggregate/ComputeIndividual passes the same role gate
// any external oracle would.
type Service struct {
	identity uuid.UUID

	records    *records.Service
	settlement *settlement.Service
	store      Store
	arith      encryption.Arithmetic
	access     *accesscontrol.Registry
	params     *params.Registry
	pending    PendingMarker
	auditor    audit.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer

	// degraded lets the original requester play relayer for its own
	// queries. Dev and test deployments only.
	degraded bool
}

type ServiceConfig struct {
	Identity           uuid.UUID
	DegradedDecryption bool
}

func NewService(
	cfg ServiceConfig,
	recordIndex *records.Service,
	settlementSvc *settlement.Service,
	store Store,
	arith encryption.Arithmetic,
	access *accesscontrol.Registry,
	registry *params.Registry,
	pending PendingMarker,
	auditor audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if pending == nil {
		pending = NewMemoryPending()
	}
	if auditor == nil {
		auditor = audit.NopPublisher{}
	}
	return &Service{
		identity:   cfg.Identity,
		degraded:   cfg.DegradedDecryption,
		records:    recordIndex,
		settlement: settlementSvc,
		store:      store,
		arith:      arith,
		access:     access,
		params:     registry,
		pending:    pending,
		auditor:    auditor,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("dataledger/oracle"),
	}
}

// AggregateRequest parameterizes one aggregate query. The clear-text filter
// predicate runs over fields the oracle is authorized to read; the metric
// itself is accumulated as opaque handles.
type AggregateRequest struct {
	MinAge     int
	MaxAge     int
	Category   string
	StartIndex domain.RecordID
	BatchSize  int
	Payment    domain.Wei
}

// IndividualRequest parameterizes one individual query.
type IndividualRequest struct {
	MinAge     int
	MaxAge     int
	Category   string
	MaxResults int
	Payment    domain.Wei
}

func validateAgeRange(minAge, maxAge int) error {
	if minAge < 0 || maxAge > 150 {
		return dErrors.New(dErrors.CodeInvalidInput, "age bounds must lie within [0, 150]")
	}
	if minAge > maxAge {
		return dErrors.New(dErrors.CodeInvalidInput, "age range is inverted")
	}
	return nil
}

// ComputeAggregate scans a bounded window of the record index, accumulates
// the encrypted sum and count over matching active records, and forwards the
// payment to settlement across every active record scanned: data access,
// not just matching, is what is compensated. Scan and settlement are one
// unit: a settlement failure fails the whole query with no result retained.
func (s *Service) ComputeAggregate(ctx context.Context, requester domain.RequesterID, req AggregateRequest) (domain.QueryID, error) {
	ctx, span := s.tracer.Start(ctx, "oracle.ComputeAggregate",
		trace.WithAttributes(attribute.String("requester", requester.String())))
	defer span.End()

	if requester.IsNil() {
		return domain.QueryID{}, dErrors.New(dErrors.CodeInvalidInput, "requester id is required")
	}
	if err := validateAgeRange(req.MinAge, req.MaxAge); err != nil {
		return domain.QueryID{}, err
	}
	cfg := s.params.Get(ctx)
	if req.Payment < cfg.AggregateFee {
		return domain.QueryID{}, dErrors.Newf(dErrors.CodeInsufficientFee,
			"aggregate query requires at least %d wei", cfg.AggregateFee)
	}
	if req.BatchSize <= 0 || req.BatchSize > cfg.MaxBatch {
		return domain.QueryID{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"batch size must be in [1, %d]", cfg.MaxBatch)
	}
	start := req.StartIndex
	if start < 1 {
		start = 1
	}
	category := pstrings.NormalizeCategory(req.Category)

	scanned, err := s.records.Scan(ctx, start, req.BatchSize)
	if err != nil {
		return domain.QueryID{}, err
	}

	sumHandle, err := s.arith.Zero(ctx)
	if err != nil {
		return domain.QueryID{}, dErrors.Wrap(err, dErrors.CodeExternalFailure, "encrypted accumulator init failed")
	}
	countHandle, err := s.arith.Zero(ctx)
	if err != nil {
		return domain.QueryID{}, dErrors.Wrap(err, dErrors.CodeExternalFailure, "encrypted accumulator init failed")
	}

	// Owners of every active scanned record are compensated, matched or
	// not. Revoked records contribute nothing and earn nothing.
	owners := make([]domain.OwnerID, 0, len(scanned))
	for _, r := range scanned {
		if !r.Active {
			continue
		}
		owners = append(owners, r.OwnerID)
		if !r.Matches(req.MinAge, req.MaxAge, category) {
			continue
		}
		sumHandle, err = s.arith.Add(ctx, sumHandle, r.MetricHandle())
		if err != nil {
			return domain.QueryID{}, dErrors.Wrap(err, dErrors.CodeExternalFailure, "encrypted sum failed")
		}
		countHandle, err = s.arith.AddPlain(ctx, countHandle, 1)
		if err != nil {
			return domain.QueryID{}, dErrors.Wrap(err, dErrors.CodeExternalFailure, "encrypted count failed")
		}
	}

	queryID := domain.NewQueryID()
	span.SetAttributes(
		attribute.String("query_id", queryID.String()),
		attribute.Int("scanned", len(scanned)),
	)

	if err := s.settle(ctx, requester, queryID, owners, req.Payment); err != nil {
		return domain.QueryID{}, err
	}

	result := &QueryResult{
		ID:           queryID,
		Requester:    requester,
		ScannedFrom:  start,
		ScannedCount: len(scanned),
		SumHandle:    sumHandle,
		CountHandle:  countHandle,
		FeePaid:      req.Payment,
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.store.SaveAggregate(ctx, result); err != nil {
		return domain.QueryID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store query result")
	}
	s.metrics.ObserveQuery("aggregate", len(scanned))

	if err := s.auditor.Emit(ctx, audit.Event{
		Action:      audit.ActionAggregateQueryExecuted,
		ActorID:     requester.String(),
		RequesterID: requester.String(),
		QueryID:     queryID.String(),
		AmountWei:   uint64(req.Payment),
		RequestID:   requestcontext.RequestID(ctx),
	}); err != nil {
		return domain.QueryID{}, err
	}
	return queryID, nil
}

// ComputeIndividual finds active, individually-consented records matching
// the predicate and applies the k-anonymity gate: the id list is disclosed
// only when the consented count reaches the threshold, and is empty by
// construction otherwise. The query fee settles across every matching
// active record's owner, consented or not: the computation read them all,
// and access, not disclosure, is what is compensated.
func (s *Service) ComputeIndividual(ctx context.Context, requester domain.RequesterID, req IndividualRequest) (domain.QueryID, error) {
	ctx, span := s.tracer.Start(ctx, "oracle.ComputeIndividual",
		trace.WithAttributes(attribute.String("requester", requester.String())))
	defer span.End()

	if requester.IsNil() {
		return domain.QueryID{}, dErrors.New(dErrors.CodeInvalidInput, "requester id is required")
	}
	if err := validateAgeRange(req.MinAge, req.MaxAge); err != nil {
		return domain.QueryID{}, err
	}
	cfg := s.params.Get(ctx)
	if req.Payment < cfg.IndividualFee {
		return domain.QueryID{}, dErrors.Newf(dErrors.CodeInsufficientFee,
			"individual query requires at least %d wei", cfg.IndividualFee)
	}
	if req.MaxResults <= 0 || req.MaxResults > cfg.MaxBatch {
		return domain.QueryID{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"max results must be in [1, %d]", cfg.MaxBatch)
	}
	category := pstrings.NormalizeCategory(req.Category)

	count, err := s.records.Count(ctx)
	if err != nil {
		return domain.QueryID{}, err
	}

	var (
		totalMatching int
		consentedIDs  []domain.RecordID
		owners        []domain.OwnerID
	)
	// Walk the full index in batch-capped windows.
	for pos := domain.RecordID(1); uint64(pos) <= count; pos += domain.RecordID(cfg.MaxBatch) {
		window, err := s.records.Scan(ctx, pos, cfg.MaxBatch)
		if err != nil {
			return domain.QueryID{}, err
		}
		for _, r := range window {
			if !r.Active || !r.Matches(req.MinAge, req.MaxAge, category) {
				continue
			}
			totalMatching++
			owners = append(owners, r.OwnerID)
			if !r.ConsentsToIndividual() {
				continue
			}
			consentedIDs = append(consentedIDs, r.ID)
		}
	}

	anonymityMet := len(consentedIDs) >= cfg.KAnonymity
	disclosed := []domain.RecordID{}
	if anonymityMet {
		disclosed = consentedIDs
		if len(disclosed) > req.MaxResults {
			disclosed = disclosed[:req.MaxResults]
		}
	}

	queryID := domain.NewQueryID()
	span.SetAttributes(
		attribute.String("query_id", queryID.String()),
		attribute.Bool("anonymity_met", anonymityMet),
	)

	if err := s.settle(ctx, requester, queryID, owners, req.Payment); err != nil {
		return domain.QueryID{}, err
	}

	result := &IndividualQueryResult{
		ID:             queryID,
		Requester:      requester,
		TotalMatching:  totalMatching,
		ConsentedCount: len(consentedIDs),
		AnonymityMet:   anonymityMet,
		RecordIDs:      disclosed,
		FeePaid:        req.Payment,
		CreatedAt:      requestcontext.Now(ctx),
	}
	if err := s.store.SaveIndividual(ctx, result); err != nil {
		return domain.QueryID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store query result")
	}
	s.metrics.ObserveQuery("individual", totalMatching)

	decision := "anonymity_met"
	if !anonymityMet {
		decision = "anonymity_not_met"
		s.metrics.ObserveAnonymityRejection()
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		Action:      audit.ActionIndividualQueryExecuted,
		ActorID:     requester.String(),
		RequesterID: requester.String(),
		QueryID:     queryID.String(),
		AmountWei:   uint64(req.Payment),
		Decision:    decision,
		RequestID:   requestcontext.RequestID(ctx),
	}); err != nil {
		return domain.QueryID{}, err
	}
	return queryID, nil
}

// settle forwards a query payment under the oracle's own identity. Zero
// contributing owners means the query still charged its fee, accrued to the
// platform.
func (s *Service) settle(ctx context.Context, requester domain.RequesterID, queryID domain.QueryID, owners []domain.OwnerID, payment domain.Wei) error {
	if len(owners) == 0 {
		return s.settlement.AccruePlatformFee(ctx, s.identity, requester, queryID, payment)
	}
	_, err := s.settlement.DistributeEarnings(ctx, s.identity, requester, queryID, owners, payment)
	return err
}

// RequestDecryption opens phase one of the decryption protocol for the
// original requester. It returns the proof token the relayer must present
// in phase two; only its hash is stored.
func (s *Service) RequestDecryption(ctx context.Context, caller domain.RequesterID, queryID domain.QueryID) (string, error) {
	token, err := newProofToken()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate proof token")
	}

	_, err = s.store.ExecuteAggregate(ctx, queryID,
		func(q *QueryResult) error {
			if q.Requester != caller {
				return dErrors.New(dErrors.CodeForbidden, "only the original requester may request decryption")
			}
			return q.CanRequestDecryption()
		},
		func(q *QueryResult) {
			q.ApplyRequestDecryption(CommitProof(token))
		},
	)
	if err != nil {
		return "", wrapQueryErr(err)
	}

	if err := s.pending.Mark(ctx, queryID, pendingTTL); err != nil {
		// Marker is advisory; the protocol state is already committed.
		s.logger.WarnContext(ctx, "failed to mark pending decryption", "query_id", queryID, "error", err)
	}

	if err := s.auditor.Emit(ctx, audit.Event{
		Action:      audit.ActionDecryptionRequested,
		ActorID:     caller.String(),
		RequesterID: caller.String(),
		QueryID:     queryID.String(),
		RequestID:   requestcontext.RequestID(ctx),
	}); err != nil {
		return "", err
	}
	return token, nil
}

// SubmitDecrypted is phase two: the relayer (or, in degraded mode, the
// original requester) returns the plaintext sum and count with the proof
// token. Accepted exactly once per query.
func (s *Service) SubmitDecrypted(ctx context.Context, caller uuid.UUID, queryID domain.QueryID, sum, count uint64, proof string) error {
	result, err := s.store.ExecuteAggregate(ctx, queryID,
		func(q *QueryResult) error {
			if !s.authorizedRelayer(ctx, caller, q) {
				return dErrors.New(dErrors.CodeForbidden, "caller is not authorized to submit decrypted values")
			}
			return q.CanSubmitDecrypted(proof)
		},
		func(q *QueryResult) {
			q.ApplySubmitDecrypted(sum, count)
		},
	)
	if err != nil {
		return wrapQueryErr(err)
	}
	s.metrics.ObserveDecryption()

	if err := s.pending.Clear(ctx, queryID); err != nil {
		s.logger.WarnContext(ctx, "failed to clear pending decryption", "query_id", queryID, "error", err)
	}

	return s.auditor.Emit(ctx, audit.Event{
		Action:      audit.ActionDecryptionSubmitted,
		ActorID:     caller.String(),
		RequesterID: result.Requester.String(),
		QueryID:     queryID.String(),
		RequestID:   requestcontext.RequestID(ctx),
	})
}

func (s *Service) authorizedRelayer(ctx context.Context, caller uuid.UUID, q *QueryResult) bool {
	if s.access.HasRole(ctx, accesscontrol.RoleRelayer, caller) {
		return true
	}
	return s.degraded && caller == uuid.UUID(q.Requester)
}

// GetQueryResult returns an aggregate result to its requester. Plaintext
// fields are present only once decrypted.
func (s *Service) GetQueryResult(ctx context.Context, caller domain.RequesterID, queryID domain.QueryID) (*QueryResult, error) {
	result, err := s.store.GetAggregate(ctx, queryID)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	if result.Requester != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the original requester may read this result")
	}
	result.ProofCommitment = ""
	return result, nil
}

// GetIndividualResult returns an individual result to its requester.
func (s *Service) GetIndividualResult(ctx context.Context, caller domain.RequesterID, queryID domain.QueryID) (*IndividualQueryResult, error) {
	result, err := s.store.GetIndividual(ctx, queryID)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	if result.Requester != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the original requester may read this result")
	}
	return result, nil
}

// PendingDecryption reports whether a query currently awaits its relayer.
func (s *Service) PendingDecryption(ctx context.Context, queryID domain.QueryID) (bool, error) {
	return s.pending.Pending(ctx, queryID)
}

func newProofToken() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

func wrapQueryErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "query result not found")
	default:
		return err
	}
}
