package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booking-platform/internal/agents"
	"booking-platform/internal/audit"
	"booking-platform/internal/auth"
	"booking-platform/internal/bolna"
	"booking-platform/internal/calls"
	"booking-platform/internal/config"
	"booking-platform/internal/credentials"
	"booking-platform/internal/httpapi"
	"booking-platform/internal/jobs"
	"booking-platform/internal/observability/metrics"
	"booking-platform/internal/store"
	"booking-platform/internal/vault"
	"booking-platform/pkg/logger"
	"booking-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is optional; real deployments inject env directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	secrets, err := vault.New(vault.Config{Secret: cfg.Vault.Secret, Logger: log})
	if err != nil {
		log.Error("vault init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	voiceMetrics := metrics.NewVoiceMetrics(reg)

	provider := bolna.New(bolna.Config{
		BaseURL:        cfg.Bolna.BaseURL,
		RequestTimeout: cfg.Bolna.RequestTimeout,
		ProbeTimeout:   cfg.Bolna.ProbeTimeout,
		Logger:         log,
		Metrics:        voiceMetrics,
	})

	pg := store.NewPostgresStore(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	credSvc := credentials.NewService(pg.Credentials(), secrets, provider, auditSvc)
	agentSvc := agents.NewService(pg.Agents(), credSvc, auditSvc)
	reconciler := calls.NewReconciler(pg.Calls(), agentSvc, credSvc, calls.Options{
		FromPhone: cfg.Bolna.FromPhone,
		Limiter:   utils.NewConcurrencyCap(rdb, "calls:inflight:", cfg.Calls.MaxConcurrentPerOrg, cfg.Calls.SlotTTL),
		Metrics:   voiceMetrics,
		Audit:     auditSvc,
	})

	cron := jobs.NewCronManager(log)
	if cfg.Sweep.Enabled {
		sweeper := calls.NewSweeper(reconciler, utils.NewLocker(rdb), calls.SweeperConfig{
			StaleAfter: cfg.Sweep.StaleAfter,
			BatchSize:  cfg.Sweep.BatchSize,
		}, voiceMetrics)
		if err := cron.AddCallSweep(cfg.Sweep.Schedule, sweeper, 2*time.Minute); err != nil {
			log.Error("sweep schedule failed", "err", err)
			os.Exit(1)
		}
		cron.Start()
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		handlers: httpapi.Handlers{Credentials: credSvc, Agents: agentSvc, Calls: reconciler},
		authMW:   auth.RequireAccessToken(authManager),
		gatherer: reg,
		ping:     func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) },
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	cron.Stop()
}
