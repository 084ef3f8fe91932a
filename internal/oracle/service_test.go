package oracle

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dataledger/internal/accesscontrol"
	"dataledger/internal/encryption"
	"dataledger/internal/params"
	"dataledger/internal/records"
	"dataledger/internal/settlement"
	"dataledger/pkg/domain"
	dErrors "dataledger/pkg/domain-errors"
	"dataledger/pkg/platform/audit"
)

const (
	aggregateFee  = domain.Wei(1_000_000_000_000_000)
	individualFee = domain.Wei(5_000_000_000_000_000)
)

type OracleServiceSuite struct {
	suite.Suite
	ctx        context.Context
	arith      *encryption.Transparent
	records    *records.Service
	ledger     *settlement.MemoryLedger
	settlement *settlement.Service
	access     *accesscontrol.Registry
	service    *Service
	relayer    uuid.UUID
	requester  domain.RequesterID
}

func TestOracleServiceSuite(t *testing.T) {
	suite.Run(t, new(OracleServiceSuite))
}

func (s *OracleServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.arith = encryption.NewTransparent()
	s.records = records.NewService(records.NewMemoryStore(), audit.NopPublisher{}, slog.Default())
	s.ledger = settlement.NewMemoryLedger()

	admin := uuid.New()
	s.access = accesscontrol.New(admin)
	identity := uuid.New()
	s.Require().NoError(s.access.Grant(s.ctx, accesscontrol.RoleOracle, identity))
	s.relayer = uuid.New()
	s.Require().NoError(s.access.Grant(s.ctx, accesscontrol.RoleRelayer, s.relayer))

	registry, err := params.NewRegistry(params.Defaults())
	s.Require().NoError(err)

	s.settlement = settlement.NewService(
		s.ledger, s.access, registry, settlement.NopTransferer{},
		audit.NopPublisher{}, nil, slog.Default())

	s.service = NewService(
		ServiceConfig{Identity: identity},
		s.records, s.settlement, NewMemoryStore(), s.arith,
		s.access, registry, NewMemoryPending(),
		audit.NopPublisher{}, nil, slog.Default())

	s.requester = domain.RequesterID(uuid.New())
}

func (s *OracleServiceSuite) submitRecord(owner domain.OwnerID, age int, category string, level domain.ConsentLevel, metric uint64) domain.RecordID {
	handle, err := s.arith.Seal(s.ctx, metric)
	s.Require().NoError(err)
	id, err := s.records.Submit(s.ctx, records.SubmitRequest{
		Owner:        owner,
		Category:     category,
		Age:          age,
		ConsentLevel: level,
		FieldHandles: []encryption.Ciphertext{handle},
	})
	s.Require().NoError(err)
	return id
}

func (s *OracleServiceSuite) aggregate(req AggregateRequest) (domain.QueryID, error) {
	return s.service.ComputeAggregate(s.ctx, s.requester, req)
}

func (s *OracleServiceSuite) decrypt(queryID domain.QueryID) (uint64, uint64) {
	token, err := s.service.RequestDecryption(s.ctx, s.requester, queryID)
	s.Require().NoError(err)

	result, err := s.service.GetQueryResult(s.ctx, s.requester, queryID)
	s.Require().NoError(err)
	sum, err := s.arith.Open(s.ctx, result.SumHandle)
	s.Require().NoError(err)
	count, err := s.arith.Open(s.ctx, result.CountHandle)
	s.Require().NoError(err)

	s.Require().NoError(s.service.SubmitDecrypted(s.ctx, s.relayer, queryID, sum, count, token))
	return sum, count
}

// TestComputeAggregate verifies the scan, the encrypted accumulation and the
// settlement forward.
func (s *OracleServiceSuite) TestComputeAggregate() {
	s.Run("accumulates matching records and pays every scanned owner", func() {
		ownerA := domain.OwnerID(uuid.New())
		ownerB := domain.OwnerID(uuid.New())
		ownerC := domain.OwnerID(uuid.New())
		s.submitRecord(ownerA, 30, "cardiology", domain.ConsentAggregateOnly, 120)
		s.submitRecord(ownerB, 45, "cardiology", domain.ConsentAggregateOnly, 80)
		// Out of age range: scanned (and compensated) but not accumulated.
		s.submitRecord(ownerC, 70, "cardiology", domain.ConsentAggregateOnly, 999)

		queryID, err := s.aggregate(AggregateRequest{
			MinAge: 18, MaxAge: 60, Category: "cardiology",
			StartIndex: 1, BatchSize: 10, Payment: aggregateFee,
		})
		s.Require().NoError(err)

		sum, count := s.decrypt(queryID)
		s.Equal(uint64(200), sum)
		s.Equal(uint64(2), count)

		for _, owner := range []domain.OwnerID{ownerA, ownerB, ownerC} {
			balance, err := s.settlement.Balance(s.ctx, owner)
			s.Require().NoError(err)
			s.Positive(uint64(balance))
		}
	})

	s.Run("revoked records neither accumulate nor earn", func() {
		owner := domain.OwnerID(uuid.New())
		id := s.submitRecord(owner, 30, "oncology", domain.ConsentAggregateOnly, 50)
		s.Require().NoError(s.records.Revoke(s.ctx, id, owner))

		queryID, err := s.aggregate(AggregateRequest{
			MinAge: 0, MaxAge: 150, Category: "oncology",
			StartIndex: 1, BatchSize: 10, Payment: aggregateFee,
		})
		s.Require().NoError(err)

		balance, err := s.settlement.Balance(s.ctx, owner)
		s.Require().NoError(err)
		s.Equal(domain.Wei(0), balance)

		_, count := s.decrypt(queryID)
		s.Equal(uint64(0), count)
	})

	s.Run("zero scanned records still charges the fee to the platform", func() {
		before, err := s.settlement.GetStats(s.ctx)
		s.Require().NoError(err)

		_, err = s.aggregate(AggregateRequest{
			MinAge: 0, MaxAge: 150, StartIndex: 1000, BatchSize: 10, Payment: aggregateFee,
		})
		s.Require().NoError(err)

		after, err := s.settlement.GetStats(s.ctx)
		s.Require().NoError(err)
		s.Equal(aggregateFee, after.TotalFees-before.TotalFees)
		s.Equal(aggregateFee, after.PlatformAccrued-before.PlatformAccrued)
	})

	s.Run("rejects insufficient fee", func() {
		_, err := s.aggregate(AggregateRequest{
			MinAge: 0, MaxAge: 150, StartIndex: 1, BatchSize: 10, Payment: aggregateFee - 1,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFee))
	})

	s.Run("rejects inverted age range", func() {
		_, err := s.aggregate(AggregateRequest{
			MinAge: 60, MaxAge: 18, StartIndex: 1, BatchSize: 10, Payment: aggregateFee,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects oversized batch", func() {
		_, err := s.aggregate(AggregateRequest{
			MinAge: 0, MaxAge: 150, StartIndex: 1, BatchSize: 501, Payment: aggregateFee,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// TestAnonymityGate verifies the k-anonymity threshold on individual
// queries.
func (s *OracleServiceSuite) TestAnonymityGate() {
	s.Run("withholds ids below threshold but still settles", func() {
		// Threshold K=3, only two consented matches.
		ownerA := domain.OwnerID(uuid.New())
		ownerB := domain.OwnerID(uuid.New())
		s.submitRecord(ownerA, 30, "cardiology", domain.ConsentIndividualAllowed, 1)
		s.submitRecord(ownerB, 40, "cardiology", domain.ConsentIndividualAllowed, 1)

		queryID, err := s.service.ComputeIndividual(s.ctx, s.requester, IndividualRequest{
			MinAge: 0, MaxAge: 150, Category: "cardiology",
			MaxResults: 10, Payment: individualFee,
		})
		s.Require().NoError(err)

		result, err := s.service.GetIndividualResult(s.ctx, s.requester, queryID)
		s.Require().NoError(err)
		s.False(result.AnonymityMet)
		s.Empty(result.RecordIDs)
		s.Equal(2, result.ConsentedCount)

		// The two consented owners are still compensated.
		for _, owner := range []domain.OwnerID{ownerA, ownerB} {
			balance, err := s.settlement.Balance(s.ctx, owner)
			s.Require().NoError(err)
			s.Positive(uint64(balance))
		}
	})

	s.Run("discloses ids at threshold, capped at max results", func() {
		var ids []domain.RecordID
		for i := 0; i < 4; i++ {
			owner := domain.OwnerID(uuid.New())
			ids = append(ids, s.submitRecord(owner, 30+i, "oncology", domain.ConsentIndividualAllowed, 1))
		}

		queryID, err := s.service.ComputeIndividual(s.ctx, s.requester, IndividualRequest{
			MinAge: 0, MaxAge: 150, Category: "oncology",
			MaxResults: 3, Payment: individualFee,
		})
		s.Require().NoError(err)

		result, err := s.service.GetIndividualResult(s.ctx, s.requester, queryID)
		s.Require().NoError(err)
		s.True(result.AnonymityMet)
		s.Equal(4, result.ConsentedCount)
		s.Equal(ids[:3], result.RecordIDs)
	})

	s.Run("aggregate-only records count as matching but never consented", func() {
		owners := make([]domain.OwnerID, 5)
		for i := range owners {
			owners[i] = domain.OwnerID(uuid.New())
			s.submitRecord(owners[i], 50, "radiology", domain.ConsentAggregateOnly, 1)
		}
		before, err := s.settlement.GetStats(s.ctx)
		s.Require().NoError(err)

		queryID, err := s.service.ComputeIndividual(s.ctx, s.requester, IndividualRequest{
			MinAge: 0, MaxAge: 150, Category: "radiology",
			MaxResults: 10, Payment: individualFee,
		})
		s.Require().NoError(err)

		result, err := s.service.GetIndividualResult(s.ctx, s.requester, queryID)
		s.Require().NoError(err)
		s.Equal(5, result.TotalMatching)
		s.Equal(0, result.ConsentedCount)
		s.False(result.AnonymityMet)
		s.Empty(result.RecordIDs)

		// The computation read every matching record, so every owner is
		// paid even though none consented to disclosure: 70% of the fee
		// split evenly across the five.
		perOwner := (individualFee - individualFee/10*3) / 5
		for _, owner := range owners {
			balance, err := s.settlement.Balance(s.ctx, owner)
			s.Require().NoError(err)
			s.Equal(perOwner, balance)
		}
		after, err := s.settlement.GetStats(s.ctx)
		s.Require().NoError(err)
		s.Equal(individualFee/10*3, after.PlatformAccrued-before.PlatformAccrued)
	})
}

// TestDecryptionProtocol verifies the two-phase protocol: request once,
// submit once, with a matching proof, by an authorized caller.
func (s *OracleServiceSuite) TestDecryptionProtocol() {
	newQuery := func() domain.QueryID {
		s.submitRecord(domain.OwnerID(uuid.New()), 30, "cardiology", domain.ConsentAggregateOnly, 7)
		queryID, err := s.aggregate(AggregateRequest{
			MinAge: 0, MaxAge: 150, StartIndex: 1, BatchSize: 500, Payment: aggregateFee,
		})
		s.Require().NoError(err)
		return queryID
	}

	s.Run("plaintext is hidden until decrypted and requester-only", func() {
		queryID := newQuery()

		result, err := s.service.GetQueryResult(s.ctx, s.requester, queryID)
		s.Require().NoError(err)
		s.False(result.Decrypted)
		s.Zero(result.PlainSum)

		_, err = s.service.GetQueryResult(s.ctx, domain.RequesterID(uuid.New()), queryID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("accepts the callback exactly once", func() {
		queryID := newQuery()
		token, err := s.service.RequestDecryption(s.ctx, s.requester, queryID)
		s.Require().NoError(err)

		s.Require().NoError(s.service.SubmitDecrypted(s.ctx, s.relayer, queryID, 7, 1, token))

		err = s.service.SubmitDecrypted(s.ctx, s.relayer, queryID, 7, 1, token)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		result, err := s.service.GetQueryResult(s.ctx, s.requester, queryID)
		s.Require().NoError(err)
		s.True(result.Decrypted)
		s.Equal(uint64(7), result.PlainSum)
		s.Equal(uint64(1), result.PlainCount)
	})

	s.Run("rejects a mismatched proof", func() {
		queryID := newQuery()
		_, err := s.service.RequestDecryption(s.ctx, s.requester, queryID)
		s.Require().NoError(err)

		err = s.service.SubmitDecrypted(s.ctx, s.relayer, queryID, 7, 1, "forged")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects submit before request", func() {
		queryID := newQuery()
		err := s.service.SubmitDecrypted(s.ctx, s.relayer, queryID, 7, 1, "anything")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejects a second request", func() {
		queryID := newQuery()
		_, err := s.service.RequestDecryption(s.ctx, s.requester, queryID)
		s.Require().NoError(err)

		_, err = s.service.RequestDecryption(s.ctx, s.requester, queryID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("request is requester-only", func() {
		queryID := newQuery()
		_, err := s.service.RequestDecryption(s.ctx, domain.RequesterID(uuid.New()), queryID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("rejects unauthorized submitter", func() {
		queryID := newQuery()
		token, err := s.service.RequestDecryption(s.ctx, s.requester, queryID)
		s.Require().NoError(err)

		err = s.service.SubmitDecrypted(s.ctx, uuid.New(), queryID, 7, 1, token)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("pending marker follows the protocol", func() {
		queryID := newQuery()
		pending, err := s.service.PendingDecryption(s.ctx, queryID)
		s.Require().NoError(err)
		s.False(pending)

		token, err := s.service.RequestDecryption(s.ctx, s.requester, queryID)
		s.Require().NoError(err)
		pending, err = s.service.PendingDecryption(s.ctx, queryID)
		s.Require().NoError(err)
		s.True(pending)

		s.Require().NoError(s.service.SubmitDecrypted(s.ctx, s.relayer, queryID, 7, 1, token))
		pending, err = s.service.PendingDecryption(s.ctx, queryID)
		s.Require().NoError(err)
		s.False(pending)
	})
}

// TestDegradedDecryption verifies the requester may act as its own relayer
// only when the service runs degraded.
func (s *OracleServiceSuite) TestDegradedDecryption() {
	identity := uuid.New()
	s.Require().NoError(s.access.Grant(s.ctx, accesscontrol.RoleOracle, identity))
	registry, err := params.NewRegistry(params.Defaults())
	s.Require().NoError(err)

	degraded := NewService(
		ServiceConfig{Identity: identity, DegradedDecryption: true},
		s.records, s.settlement, NewMemoryStore(), s.arith,
		s.access, registry, NewMemoryPending(),
		audit.NopPublisher{}, nil, slog.Default())

	s.submitRecord(domain.OwnerID(uuid.New()), 30, "cardiology", domain.ConsentAggregateOnly, 3)
	queryID, err := degraded.ComputeAggregate(s.ctx, s.requester, AggregateRequest{
		MinAge: 0, MaxAge: 150, StartIndex: 1, BatchSize: 500, Payment: aggregateFee,
	})
	s.Require().NoError(err)

	token, err := degraded.RequestDecryption(s.ctx, s.requester, queryID)
	s.Require().NoError(err)

	s.Run("requester may submit in degraded mode", func() {
		s.Require().NoError(degraded.SubmitDecrypted(s.ctx, uuid.UUID(s.requester), queryID, 3, 1, token))
	})

	s.Run("requester may not submit in normal mode", func() {
		s.submitRecord(domain.OwnerID(uuid.New()), 30, "cardiology", domain.ConsentAggregateOnly, 3)
		strictID, err := s.aggregate(AggregateRequest{
			MinAge: 0, MaxAge: 150, StartIndex: 1, BatchSize: 500, Payment: aggregateFee,
		})
		s.Require().NoError(err)
		strictToken, err := s.service.RequestDecryption(s.ctx, s.requester, strictID)
		s.Require().NoError(err)

		err = s.service.SubmitDecrypted(s.ctx, uuid.UUID(s.requester), strictID, 3, 1, strictToken)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
