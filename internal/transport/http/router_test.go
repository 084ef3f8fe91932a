package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"dataledger/internal/accesscontrol"
	"dataledger/internal/admin"
	"dataledger/internal/encryption"
	"dataledger/internal/jwtauth"
	"dataledger/internal/oracle"
	"dataledger/internal/params"
	"dataledger/internal/platform/metrics"
	"dataledger/internal/records"
	"dataledger/internal/settlement"
	"dataledger/internal/verification"
	"dataledger/pkg/platform/audit"
)

type RouterSuite struct {
	suite.Suite
	ctx     context.Context
	arith   *encryption.Transparent
	access  *accesscontrol.Registry
	jwt     *jwtauth.Service
	router  http.Handler
	metrics *metrics.Metrics

	adminID   uuid.UUID
	relayerID uuid.UUID
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

// Prometheus collectors register globally, so they are built once for the
// whole suite rather than per test.
func (s *RouterSuite) SetupSuite() {
	s.metrics = metrics.New()
}

func (s *RouterSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.Default()
	s.arith = encryption.NewTransparent()

	s.adminID = uuid.New()
	s.access = accesscontrol.New(s.adminID)
	oracleID := uuid.New()
	s.Require().NoError(s.access.Grant(s.ctx, accesscontrol.RoleOracle, oracleID))
	s.relayerID = uuid.New()
	s.Require().NoError(s.access.Grant(s.ctx, accesscontrol.RoleRelayer, s.relayerID))

	registry, err := params.NewRegistry(params.Defaults())
	s.Require().NoError(err)

	recordsSvc := records.NewService(records.NewMemoryStore(), audit.NopPublisher{}, logger)
	settlementSvc := settlement.NewService(
		settlement.NewMemoryLedger(), s.access, registry, settlement.NopTransferer{},
		audit.NopPublisher{}, nil, logger)
	oracleSvc := oracle.NewService(
		oracle.ServiceConfig{Identity: oracleID},
		recordsSvc, settlementSvc, oracle.NewMemoryStore(), s.arith,
		s.access, registry, oracle.NewMemoryPending(),
		audit.NopPublisher{}, nil, logger)
	verificationSvc := verification.NewService(
		verification.NewMemoryStore(), recordsSvc, s.access, registry,
		audit.NopPublisher{}, nil, logger)
	adminSvc := admin.NewService(s.access, registry, audit.NopPublisher{}, logger)

	s.jwt = jwtauth.NewService("test-signing-key", "dataledger-test")
	s.router = NewRouter(Services{
		Records:      recordsSvc,
		Oracle:       oracleSvc,
		Settlement:   settlementSvc,
		Verification: verificationSvc,
		Admin:        adminSvc,
	}, s.jwt, s.metrics, nil, logger)
}

func (s *RouterSuite) token(caller uuid.UUID) string {
	token, err := s.jwt.GenerateToken(caller, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *RouterSuite) do(method, path string, caller uuid.UUID, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+s.token(caller))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) decode(w *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.NewDecoder(w.Body).Decode(v))
}

func (s *RouterSuite) submitRecord(owner uuid.UUID, age int, category, consent string) uint64 {
	handle, err := s.arith.Seal(s.ctx, 100)
	s.Require().NoError(err)

	w := s.do(http.MethodPost, "/records", owner, map[string]any{
		"category":      category,
		"age":           age,
		"consent_level": consent,
		"field_handles": []string{string(handle)},
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		RecordID uint64 `json:"record_id"`
	}
	s.decode(w, &resp)
	return resp.RecordID
}

func (s *RouterSuite) TestAuthGate() {
	s.Run("rejects missing token", func() {
		w := s.do(http.MethodGet, "/settlement/balance", uuid.Nil, nil)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("health and metrics are public", func() {
		s.Equal(http.StatusOK, s.do(http.MethodGet, "/healthz", uuid.Nil, nil).Code)
		s.Equal(http.StatusOK, s.do(http.MethodGet, "/metrics", uuid.Nil, nil).Code)
	})
}

func (s *RouterSuite) TestRecordLifecycle() {
	owner := uuid.New()
	s.submitRecord(owner, 44, "cardiology", "aggregate_only")

	s.Run("reads back the stored record", func() {
		w := s.do(http.MethodGet, "/records/1", owner, nil)
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("owner updates consent", func() {
		w := s.do(http.MethodPut, "/records/1/consent", owner, map[string]any{
			"consent_level": "individual_allowed",
		})
		s.Equal(http.StatusOK, w.Code, w.Body.String())
	})

	s.Run("non-owner revoke is forbidden", func() {
		w := s.do(http.MethodPost, "/records/1/revoke", uuid.New(), nil)
		s.Equal(http.StatusForbidden, w.Code)

		var resp struct {
			Error string `json:"error"`
		}
		s.decode(w, &resp)
		s.Equal("forbidden", resp.Error)
	})

	s.Run("owner revoke succeeds once", func() {
		w := s.do(http.MethodPost, "/records/1/revoke", owner, nil)
		s.Equal(http.StatusOK, w.Code)

		w = s.do(http.MethodPost, "/records/1/revoke", owner, nil)
		s.Equal(http.StatusConflict, w.Code)
	})
}

func (s *RouterSuite) TestAggregateQueryFlow() {
	for i := 0; i < 3; i++ {
		s.submitRecord(uuid.New(), 40+i, "oncology", "aggregate_only")
	}
	requester := uuid.New()

	s.Run("insufficient fee maps to a distinct 400", func() {
		w := s.do(http.MethodPost, "/queries/aggregate", requester, map[string]any{
			"min_age": 0, "max_age": 150, "start_index": 1, "batch_size": 100,
			"payment_wei": 1,
		})
		s.Equal(http.StatusBadRequest, w.Code)

		var resp struct {
			Error string `json:"error"`
		}
		s.decode(w, &resp)
		s.Equal("insufficient_fee", resp.Error)
	})

	var queryID string
	s.Run("executes a paid query", func() {
		w := s.do(http.MethodPost, "/queries/aggregate", requester, map[string]any{
			"min_age": 0, "max_age": 150, "category": "oncology",
			"start_index": 1, "batch_size": 100,
			"payment_wei": 1_000_000_000_000_000,
		})
		s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

		var resp struct {
			QueryID string `json:"query_id"`
		}
		s.decode(w, &resp)
		queryID = resp.QueryID
	})

	var proof string
	s.Run("requester opens decryption", func() {
		w := s.do(http.MethodPost, "/queries/aggregate/"+queryID+"/decryption", requester, nil)
		s.Require().Equal(http.StatusAccepted, w.Code, w.Body.String())

		var resp struct {
			Proof string `json:"proof"`
		}
		s.decode(w, &resp)
		s.NotEmpty(resp.Proof)
		proof = resp.Proof
	})

	s.Run("relayer submits the plaintext", func() {
		w := s.do(http.MethodPost, "/queries/aggregate/"+queryID+"/decrypted", s.relayerID, map[string]any{
			"sum": 300, "count": 3, "proof": proof,
		})
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	})

	s.Run("requester reads the decrypted result", func() {
		w := s.do(http.MethodGet, "/queries/aggregate/"+queryID, requester, nil)
		s.Require().Equal(http.StatusOK, w.Code)

		var resp struct {
			Decrypted  bool   `json:"decrypted"`
			PlainSum   uint64 `json:"plain_sum"`
			PlainCount uint64 `json:"plain_count"`
		}
		s.decode(w, &resp)
		s.True(resp.Decrypted)
		s.Equal(uint64(300), resp.PlainSum)
		s.Equal(uint64(3), resp.PlainCount)
	})

	s.Run("strangers cannot read the result", func() {
		w := s.do(http.MethodGet, "/queries/aggregate/"+queryID, uuid.New(), nil)
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("owners withdraw their credits", func() {
		// Any of the three owners would do; re-submit under a known owner
		// and query again so the balance is deterministic.
		owner := uuid.New()
		s.submitRecord(owner, 50, "dermatology", "aggregate_only")
		w := s.do(http.MethodPost, "/queries/aggregate", requester, map[string]any{
			"min_age": 0, "max_age": 150, "category": "dermatology",
			"start_index": 4, "batch_size": 100,
			"payment_wei": 1_000_000_000_000_000,
		})
		s.Require().Equal(http.StatusCreated, w.Code)

		w = s.do(http.MethodGet, "/settlement/balance", owner, nil)
		s.Require().Equal(http.StatusOK, w.Code)
		var balance struct {
			BalanceWei uint64 `json:"balance_wei"`
		}
		s.decode(w, &balance)
		s.Positive(balance.BalanceWei)

		w = s.do(http.MethodPost, "/settlement/withdrawals", owner, nil)
		s.Require().Equal(http.StatusOK, w.Code)
		var withdrawal struct {
			AmountWei uint64 `json:"amount_wei"`
		}
		s.decode(w, &withdrawal)
		s.Equal(balance.BalanceWei, withdrawal.AmountWei)

		w = s.do(http.MethodPost, "/settlement/withdrawals", owner, nil)
		s.Equal(http.StatusConflict, w.Code)
	})
}

func (s *RouterSuite) TestIndividualQueryGate() {
	for i := 0; i < 2; i++ {
		s.submitRecord(uuid.New(), 30+i, "cardiology", "individual_allowed")
	}
	requester := uuid.New()

	w := s.do(http.MethodPost, "/queries/individual", requester, map[string]any{
		"min_age": 0, "max_age": 150, "category": "cardiology",
		"max_results": 10, "payment_wei": 5_000_000_000_000_000,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		QueryID string `json:"query_id"`
	}
	s.decode(w, &created)

	w = s.do(http.MethodGet, "/queries/individual/"+created.QueryID, requester, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var resp struct {
		AnonymityMet bool     `json:"anonymity_met"`
		RecordIDs    []uint64 `json:"record_ids"`
	}
	s.decode(w, &resp)
	s.False(resp.AnonymityMet)
	s.Empty(resp.RecordIDs)
}

func (s *RouterSuite) TestVerificationEndpoints() {
	owner := uuid.New()
	s.submitRecord(owner, 35, "cardiology", "aggregate_only")

	s.Run("owner deposits a stake", func() {
		w := s.do(http.MethodPost, "/verification/stakes", owner, map[string]any{
			"record_id": 1, "amount_wei": 1_000_000_000_000_000,
		})
		s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	})

	s.Run("reads the stake and reputation back", func() {
		w := s.do(http.MethodGet, "/verification/stakes/1", owner, nil)
		s.Equal(http.StatusOK, w.Code)

		w = s.do(http.MethodGet, "/verification/reputation/"+owner.String(), owner, nil)
		s.Require().Equal(http.StatusOK, w.Code)
		var resp struct {
			Score int `json:"score"`
		}
		s.decode(w, &resp)
		s.Equal(verification.DeltaStakeDeposited, resp.Score)
	})
}

func (s *RouterSuite) TestAdminEndpoints() {
	s.Run("admin grants and lists a role", func() {
		grantee := uuid.New()
		w := s.do(http.MethodPost, "/admin/roles", s.adminID, map[string]any{
			"role": "arbiter", "caller_id": grantee.String(),
		})
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

		w = s.do(http.MethodGet, "/admin/roles/arbiter", s.adminID, nil)
		s.Require().Equal(http.StatusOK, w.Code)
		var resp struct {
			Members []string `json:"members"`
		}
		s.decode(w, &resp)
		s.Contains(resp.Members, grantee.String())
	})

	s.Run("non-admin is forbidden", func() {
		w := s.do(http.MethodGet, "/admin/params", uuid.New(), nil)
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("admin updates parameters", func() {
		w := s.do(http.MethodPut, "/admin/params", s.adminID, map[string]any{
			"aggregate_fee_wei":    2_000_000_000_000_000,
			"individual_fee_wei":   6_000_000_000_000_000,
			"platform_bps":         2500,
			"k_anonymity":          5,
			"max_batch":            200,
			"min_stake_wei":        1_000_000_000_000_000,
			"max_stake_wei":        1_000_000_000_000_000_000,
			"confidence_threshold": 80,
			"dispute_window_hours": 72,
		})
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

		w = s.do(http.MethodGet, "/admin/params", s.adminID, nil)
		s.Require().Equal(http.StatusOK, w.Code)
		var resp struct {
			KAnonymity int `json:"k_anonymity"`
		}
		s.decode(w, &resp)
		s.Equal(5, resp.KAnonymity)
	})

	s.Run("rejects unknown role names", func() {
		w := s.do(http.MethodPost, "/admin/roles", s.adminID, map[string]any{
			"role": "emperor", "caller_id": uuid.New().String(),
		})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}
