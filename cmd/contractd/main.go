// Command contractd runs the contract management service: the lifecycle
// API, the renewal engine, and the periodic renewal sweep.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/clauseworks/contractd/pkg/activity"
	"github.com/clauseworks/contractd/pkg/api"
	"github.com/clauseworks/contractd/pkg/auth"
	"github.com/clauseworks/contractd/pkg/config"
	"github.com/clauseworks/contractd/pkg/contract"
	"github.com/clauseworks/contractd/pkg/notify"
	"github.com/clauseworks/contractd/pkg/observability"
	"github.com/clauseworks/contractd/pkg/renewal"
	"github.com/clauseworks/contractd/pkg/signing"
)

func main() {
	if err := run(); err != nil {
		slog.Error("contractd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "contractd",
		ServiceVersion: "1.0.0",
		Environment:    envName(),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		ExportInterval: 15 * time.Second,
		Enabled:        cfg.OTLPEndpoint != "",
		Insecure:       true,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	// Storage: Postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		contractStore contract.Store
		recorder      activity.Recorder
		ruleStore     renewal.RuleStore
		proposalStore renewal.ProposalStore
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		contractStore = contract.NewPostgresStore(db)
		recorder = activity.NewPostgresRecorder(db)
		ruleStore = renewal.NewPostgresRuleStore(db)
		proposalStore = renewal.NewPostgresProposalStore(db)
		slog.Info("using postgres storage")
	} else {
		contractStore = contract.NewMemoryStore()
		recorder = activity.NewMemoryRecorder()
		ruleStore = renewal.NewMemoryRuleStore()
		proposalStore = renewal.NewMemoryProposalStore()
		slog.Warn("DATABASE_URL not set, using in-memory storage")
	}

	// Redis backs the sweep lock and the notification outbox when
	// configured.
	var (
		notifier  notify.Notifier = notify.NewLogNotifier()
		sweepLock *renewal.SweepLock
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		defer rdb.Close()
		notifier = notify.NewRedisNotifier(rdb, "")
		sweepLock = renewal.NewSweepLock(rdb, 0)
		slog.Info("redis connected", "addr", cfg.RedisAddr)
	}

	contracts := contract.NewService(contractStore, recorder, signing.NewStubWorkflow())

	renewalDefaults, err := config.LoadRenewalDefaults(cfg.RenewalFile)
	if err != nil {
		return err
	}
	engine := renewal.NewEngine(ruleStore, proposalStore, contracts, notifier, renewal.Defaults{
		RenewalPeriodMonths: renewalDefaults.RenewalPeriodMonths,
		LookaheadBufferDays: renewalDefaults.LookaheadBufferDays,
	})

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	authMW := auth.NewMiddleware(auth.NewJWTValidator([]byte(cfg.JWTSecret)))

	rateLimiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitRPS*2)
	defer rateLimiter.Stop()

	mux := api.NewMux(api.Routes{
		Contracts: api.NewContractHandler(contracts),
		Renewals:  api.NewRenewalHandler(engine, sweepLock),
	})
	handler := api.Chain(mux,
		api.RequestID,
		rateLimiter.Middleware,
		authMW,
	)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go runSweeper(ctx, engine, contracts, sweepLock, cfg.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("contractd listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runSweeper periodically expires overdue contracts and runs the renewal
// sweep for each tenant named in SWEEP_TENANTS. Tenants not listed are
// swept only through the API endpoint.
func runSweeper(ctx context.Context, engine *renewal.Engine, contracts *contract.Service, lock *renewal.SweepLock, interval time.Duration) {
	tenants := splitCSV(os.Getenv("SWEEP_TENANTS"))
	if len(tenants) == 0 {
		slog.Info("SWEEP_TENANTS not set, background sweep disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tenantID := range tenants {
				sweepTenant(ctx, engine, contracts, lock, tenantID)
			}
		}
	}
}

func sweepTenant(ctx context.Context, engine *renewal.Engine, contracts *contract.Service, lock *renewal.SweepLock, tenantID string) {
	logger := slog.With("tenant_id", tenantID)

	if lock != nil {
		release, acquired, err := lock.Acquire(ctx, tenantID)
		if err != nil {
			logger.Error("sweep lock acquire failed", "error", err)
			return
		}
		if !acquired {
			logger.Info("sweep already running, skipping")
			return
		}
		defer release(ctx)
	}

	expired, err := contracts.ExpireOverdue(ctx, tenantID, "system")
	if err != nil {
		logger.Error("expire overdue failed", "error", err)
	} else if expired > 0 {
		logger.Info("expired overdue contracts", "count", expired)
	}

	result, err := engine.Sweep(ctx, tenantID)
	if err != nil {
		logger.Error("renewal sweep failed", "error", err)
		return
	}
	logger.Info("renewal sweep complete",
		"created", result.Created,
		"processed", result.Processed,
		"notifications", result.Notifications,
	)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func envName() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
