// Package httptransport is the thin HTTP layer: route wiring, request
// decoding and response shaping. All business rules live in the services.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dataledger/internal/admin"
	"dataledger/internal/oracle"
	"dataledger/internal/platform/metrics"
	"dataledger/internal/platform/middleware"
	"dataledger/internal/records"
	"dataledger/internal/settlement"
	"dataledger/internal/verification"
)

const requestTimeout = 30 * time.Second

// Services bundles everything the router exposes.
type Services struct {
	Records      *records.Service
	Oracle       *oracle.Service
	Settlement   *settlement.Service
	Verification *verification.Service
	Admin        *admin.Service
}

// Health reports readiness of the process's dependencies.
type Health func(r *http.Request) error

// NewRouter wires the public API. Everything except health and metrics sits
// behind token auth; role checks stay in the services.
func NewRouter(
	svc Services,
	validator middleware.TokenValidator,
	m *metrics.Metrics,
	health Health,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Latency(m))

	r.Get("/healthz", handleHealth(health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, logger))
		r.Use(middleware.ContentTypeJSON)

		h := &handler{svc: svc, logger: logger}

		r.Route("/records", func(r chi.Router) {
			r.Post("/", h.handleSubmitRecord)
			r.Get("/{recordID}", h.handleGetRecord)
			r.Put("/{recordID}/consent", h.handleSetConsent)
			r.Post("/{recordID}/revoke", h.handleRevokeRecord)
		})

		r.Route("/queries", func(r chi.Router) {
			r.Post("/aggregate", h.handleComputeAggregate)
			r.Post("/individual", h.handleComputeIndividual)
			r.Get("/aggregate/{queryID}", h.handleGetAggregate)
			r.Get("/individual/{queryID}", h.handleGetIndividual)
			r.Post("/aggregate/{queryID}/decryption", h.handleRequestDecryption)
			r.Post("/aggregate/{queryID}/decrypted", h.handleSubmitDecrypted)
		})

		r.Route("/settlement", func(r chi.Router) {
			r.Post("/withdrawals", h.handleWithdrawEarnings)
			r.Get("/balance", h.handleBalance)
			r.Get("/spent", h.handleSpent)
			r.Get("/stats", h.handleStats)
		})

		r.Route("/verification", func(r chi.Router) {
			r.Post("/stakes", h.handleDepositStake)
			r.Get("/stakes/{recordID}", h.handleGetStake)
			r.Post("/stakes/{recordID}/score", h.handleSubmitScore)
			r.Post("/stakes/{recordID}/dispute", h.handleOpenDispute)
			r.Post("/stakes/{recordID}/resolution", h.handleResolveDispute)
			r.Post("/stakes/{recordID}/withdrawal", h.handleWithdrawStake)
			r.Get("/reputation/{ownerID}", h.handleGetReputation)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/roles", h.handleGrantRole)
			r.Delete("/roles", h.handleRevokeRole)
			r.Get("/roles/{role}", h.handleListRole)
			r.Get("/params", h.handleGetParams)
			r.Put("/params", h.handleUpdateParams)
		})
	})

	return r
}

type handler struct {
	svc    Services
	logger *slog.Logger
}

func handleHealth(health Health) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
