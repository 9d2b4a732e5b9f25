package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	sshttp "github.com/spendsight/spendsight/internal/adapter/http"
	ssmcp "github.com/spendsight/spendsight/internal/adapter/mcp"
	ssnats "github.com/spendsight/spendsight/internal/adapter/nats"
	"github.com/spendsight/spendsight/internal/adapter/natskv"
	"github.com/spendsight/spendsight/internal/adapter/otel"
	"github.com/spendsight/spendsight/internal/adapter/postgres"
	"github.com/spendsight/spendsight/internal/adapter/ristretto"
	"github.com/spendsight/spendsight/internal/adapter/tiered"
	"github.com/spendsight/spendsight/internal/adapter/ws"
	"github.com/spendsight/spendsight/internal/config"
	"github.com/spendsight/spendsight/internal/domain/cloudaccount"
	"github.com/spendsight/spendsight/internal/logger"
	"github.com/spendsight/spendsight/internal/middleware"
	"github.com/spendsight/spendsight/internal/parallel"
	"github.com/spendsight/spendsight/internal/port/cache"
	"github.com/spendsight/spendsight/internal/resilience"
	"github.com/spendsight/spendsight/internal/secrets"
	"github.com/spendsight/spendsight/internal/service"
)

const version = "0.1.0"

// API rate limit: sustained requests per second per client, and burst.
const (
	apiRate  = 50
	apiBurst = 100
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logClose := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logClose.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"collector_interval", cfg.Collector.Interval,
	)

	ctx := context.Background()

	// --- Telemetry ---
	otelShutdown, err := otel.Init(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	// --- Credential master key ---
	vault, err := secrets.NewVault(secrets.EnvLoader(cfg.Vault.MasterKeyEnv))
	if err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	masterSecret, err := vault.Require(cfg.Vault.MasterKeyEnv)
	if err != nil {
		return err
	}
	encryptionKey := cloudaccount.DeriveKey(masterSecret)

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := ssnats.Connect(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	store := postgres.NewStore(pool)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	costCache := buildCache(ctx, cfg.Cache, queue)

	// --- Services ---
	accountSvc := service.NewAccountService(store, encryptionKey)
	collectorSvc := service.NewCollectionService(store, queue, encryptionKey, breaker, cfg.Collector.RequestTimeout)
	analyzerSvc := service.NewBaselineService(store, queue, cfg.Analyzer.BaselineDays)
	patternSvc := service.NewPatternService(store, cfg.Detector.WindowDays)
	reconcilerSvc := service.NewReconcilerService(store, queue)
	costSvc := service.NewCostService(store, costCache, cfg.Cache.L2TTL)
	anomalySvc := service.NewAnomalyService(store)
	recommendationSvc := service.NewRecommendationService(store)
	workers := parallel.NewPool(cfg.Collector.MaxConcurrent)
	batchSvc := service.NewBatchService(store, collectorSvc, analyzerSvc, patternSvc, reconcilerSvc, workers)

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	// --- Live feed and metrics bridge ---
	hub := ws.NewHub()
	stopRelay, err := ws.NewRelay(queue, hub).Start(bgCtx)
	if err != nil {
		return fmt.Errorf("ws relay: %w", err)
	}
	defer stopRelay()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	stopBridge, err := otel.NewEventMetrics(queue, metrics).Start(bgCtx)
	if err != nil {
		return fmt.Errorf("metrics bridge: %w", err)
	}
	defer stopBridge()

	// --- Scheduler (disabled when interval is zero) ---
	service.NewScheduler(store, collectorSvc, analyzerSvc, patternSvc, reconcilerSvc, cfg.Collector.Interval).Start(bgCtx)

	// --- HTTP ---
	handlers := &sshttp.Handlers{
		Accounts:        accountSvc,
		Collector:       collectorSvc,
		Analyzer:        analyzerSvc,
		Batch:           batchSvc,
		Patterns:        patternSvc,
		Reconciler:      reconcilerSvc,
		Costs:           costSvc,
		Anomalies:       anomalySvc,
		Recommendations: recommendationSvc,
		Store:           store,
		Queue:           queue,
		Breaker:         breaker,
	}

	limiter := middleware.NewRateLimiter(apiRate, apiBurst)
	defer limiter.StartCleanup(time.Minute, 10*time.Minute)()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// The limiter keys on the socket address, so it runs ahead of RealIP.
	r.Use(limiter.Handler)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(sshttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sshttp.SecurityHeaders)
	// TenantID runs ahead of Logger so request logs carry the tenant.
	r.Use(middleware.TenantID)
	r.Use(sshttp.Logger)
	// Idempotency needs the tenant from context, so it mounts after TenantID.
	if idemKV, err := queue.KeyValue(ctx, "spendsight-idempotency", 24*time.Hour); err != nil {
		slog.Warn("idempotency cache unavailable", "error", err)
	} else {
		r.Use(middleware.Idempotency(idemKV))
	}

	r.Get("/health", handlers.Health)
	r.Get("/ws", hub.HandleWS)
	sshttp.MountRoutes(r, handlers)

	// --- MCP analytics server (optional) ---
	if cfg.MCP.Enabled {
		mcpSrv := ssmcp.NewServer(ssmcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    "spendsight",
			Version: version,
		}, ssmcp.ServerDeps{
			Accounts:        accountSvc,
			Costs:           costSvc,
			Anomalies:       anomalySvc,
			Recommendations: recommendationSvc,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mcpSrv.Stop(sctx)
		}()
		slog.Info("mcp server started", "addr", cfg.MCP.Addr)
	}

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")
	bgCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildCache assembles the tiered read cache: L1 in-process, L2 shared via
// NATS KV. Cache failures never block startup; cost reads degrade to
// L1-only or straight to the store.
func buildCache(ctx context.Context, cfg config.Cache, queue *ssnats.Queue) cache.Cache {
	l1, err := ristretto.New(cfg.L1MaxSizeMB << 20)
	if err != nil {
		slog.Warn("cost cache disabled", "error", err)
		return nil
	}
	kv, err := queue.KeyValue(ctx, cfg.L2Bucket, cfg.L2TTL)
	if err != nil {
		slog.Warn("l2 cache unavailable, cost reads use l1 only", "error", err)
		return l1
	}
	return tiered.New(l1, natskv.New(kv), cfg.L2TTL)
}
