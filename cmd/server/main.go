package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"dataledger/internal/accesscontrol"
	"dataledger/internal/admin"
	"dataledger/internal/encryption"
	"dataledger/internal/jwtauth"
	"dataledger/internal/oracle"
	oraclemetrics "dataledger/internal/oracle/metrics"
	"dataledger/internal/params"
	"dataledger/internal/platform/config"
	"dataledger/internal/platform/httpserver"
	"dataledger/internal/platform/logger"
	"dataledger/internal/platform/metrics"
	platformredis "dataledger/internal/platform/redis"
	"dataledger/internal/records"
	"dataledger/internal/settlement"
	settlementmetrics "dataledger/internal/settlement/metrics"
	httptransport "dataledger/internal/transport/http"
	"dataledger/internal/verification"
	verificationmetrics "dataledger/internal/verification/metrics"
	"dataledger/pkg/platform/audit"
	auditkafka "dataledger/pkg/platform/audit/kafka"
	auditmemory "dataledger/pkg/platform/audit/store/memory"
	auditpostgres "dataledger/pkg/platform/audit/store/postgres"
	auditworker "dataledger/pkg/platform/audit/worker"
)

const auditInboxSize = 1024

// main wires dependencies and owns the process lifecycle. Business rules live
// in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Audit events flow through a buffered channel into a worker that
	// persists them and, when brokers are configured, mirrors them to
	// Kafka for downstream consumers.
	var auditStore audit.Store
	if db != nil {
		auditStore = auditpostgres.New(db)
	} else {
		auditStore = auditmemory.New()
	}

	var sink auditworker.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := auditkafka.New(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("kafka audit sink: %w", err)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}

	inbox := make(chan audit.Event, auditInboxSize)
	worker := auditworker.New(auditStore, sink, inbox, log)
	auditor := audit.NewChannelPublisher(inbox, func(ev audit.Event) {
		log.Warn("audit inbox full, dropping event", "action", ev.Action)
	})

	access, err := bootstrapAccess(ctx, cfg, log)
	if err != nil {
		return err
	}

	registry, err := params.NewRegistry(params.Defaults())
	if err != nil {
		return fmt.Errorf("engine params: %w", err)
	}

	recordsSvc := records.NewService(recordsStore(db), auditor, log)

	settlementSvc := settlement.NewService(
		settlementLedger(db), access, registry, settlement.NopTransferer{},
		auditor, settlementmetrics.New(), log)

	oracleID := uuid.New()
	if err := access.Grant(ctx, accesscontrol.RoleOracle, oracleID); err != nil {
		return fmt.Errorf("grant oracle role: %w", err)
	}

	var pending oracle.PendingMarker
	if redisClient != nil {
		pending = oracle.NewRedisPending(redisClient)
	}
	oracleSvc := oracle.NewService(
		oracle.ServiceConfig{Identity: oracleID, DegradedDecryption: cfg.DegradedDecryption},
		recordsSvc, settlementSvc, oracleStore(db), encryption.NewTransparent(),
		access, registry, pending, auditor, oraclemetrics.New(), log)

	verificationSvc := verification.NewService(
		verificationStore(db), recordsSvc, access, registry,
		auditor, verificationmetrics.New(), log)

	adminSvc := admin.NewService(access, registry, auditor, log)

	router := httptransport.NewRouter(httptransport.Services{
		Records:      recordsSvc,
		Oracle:       oracleSvc,
		Settlement:   settlementSvc,
		Verification: verificationSvc,
		Admin:        adminSvc,
	}, jwtauth.NewService(cfg.JWTSigningKey, "dataledger"), metrics.New(),
		healthCheck(db, redisClient), log)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting dataledger", "addr", cfg.Addr, "postgres", db != nil, "redis", redisClient != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// openPostgres connects and applies the module schemas. A missing URL is not
// an error; the engine runs on in-memory stores.
func openPostgres(ctx context.Context, url string) (*sql.DB, error) {
	if url == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	for _, schema := range []string{
		records.Schema,
		settlement.Schema,
		oracle.Schema,
		verification.Schema,
		auditpostgres.Schema,
	} {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return db, nil
}

func bootstrapAccess(ctx context.Context, cfg config.Server, log *slog.Logger) (*accesscontrol.Registry, error) {
	adminID := uuid.New()
	if cfg.AdminID != "" {
		parsed, err := uuid.Parse(cfg.AdminID)
		if err != nil {
			return nil, fmt.Errorf("parse admin id: %w", err)
		}
		adminID = parsed
	} else {
		log.Warn("no admin id configured, generated one for this run", "admin_id", adminID)
	}

	access := accesscontrol.New(adminID)
	for _, raw := range cfg.RelayerIDs {
		relayerID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse relayer id %q: %w", raw, err)
		}
		if err := access.Grant(ctx, accesscontrol.RoleRelayer, relayerID); err != nil {
			return nil, fmt.Errorf("grant relayer role: %w", err)
		}
	}
	return access, nil
}

func recordsStore(db *sql.DB) records.Store {
	if db != nil {
		return records.NewPostgres(db)
	}
	return records.NewMemoryStore()
}

func settlementLedger(db *sql.DB) settlement.Ledger {
	if db != nil {
		return settlement.NewPostgres(db)
	}
	return settlement.NewMemoryLedger()
}

func oracleStore(db *sql.DB) oracle.Store {
	if db != nil {
		return oracle.NewPostgres(db)
	}
	return oracle.NewMemoryStore()
}

func verificationStore(db *sql.DB) verification.Store {
	if db != nil {
		return verification.NewPostgres(db)
	}
	return verification.NewMemoryStore()
}

func healthCheck(db *sql.DB, redisClient *platformredis.Client) httptransport.Health {
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
		}
		if redisClient != nil {
			return redisClient.Health(ctx)
		}
		return nil
	}
}
