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

	"github.com/hibiken/asynq"

	"github.com/pronas-pcd/pronas-core/internal/app"
	"github.com/pronas-pcd/pronas-core/internal/audit"
	audithttp "github.com/pronas-pcd/pronas-core/internal/audit/http"
	"github.com/pronas-pcd/pronas-core/internal/auth"
	"github.com/pronas-pcd/pronas-core/internal/identity"
	"github.com/pronas-pcd/pronas-core/internal/observability"
	"github.com/pronas-pcd/pronas-core/internal/platform/cache"
	"github.com/pronas-pcd/pronas-core/internal/platform/db"
	"github.com/pronas-pcd/pronas-core/internal/ratelimit"
	"github.com/pronas-pcd/pronas-core/internal/token"
	"github.com/pronas-pcd/pronas-core/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	issuer, err := token.NewIssuer(token.Config{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
	})
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}

	apiLimiter, err := ratelimit.New(redisClient, ratelimit.Config{
		Requests: cfg.RateLimitRequests,
		Window:   cfg.RateLimitWindow,
		Prefix:   "rl:api",
	})
	if err != nil {
		logger.Error("init api limiter", slog.Any("error", err))
		os.Exit(1)
	}
	loginLimiter, err := ratelimit.New(redisClient, ratelimit.Config{
		Requests: cfg.LoginRateLimitRequests,
		Window:   cfg.LoginRateLimitWindow,
		Prefix:   "rl:login",
	})
	if err != nil {
		logger.Error("init login limiter", slog.Any("error", err))
		os.Exit(1)
	}

	recorder := audit.NewRecorder(audit.NewPGSink(pool), logger, cfg.AuditTimeout)
	timeline := audit.NewTimeline(audit.NewTimelineRepository(pool))

	identityRepo := identity.NewRepository(pool)
	hasher := auth.BcryptHasher{Cost: cfg.BcryptCost}

	authService := auth.NewService(identityRepo, hasher, issuer, recorder, logger, cfg.StoreTimeout)
	authMW := auth.Middleware{Service: authService, Recorder: recorder, Logger: logger}
	authHandler := auth.NewHandler(logger, authService, authMW)

	identityService := identity.NewService(identityRepo, hasher, recorder)
	identityHandler := identity.NewHandler(logger, identityService)

	auditHandler := audithttp.NewHandler(logger, timeline, recorder)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobsHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthHandler:     authHandler,
		AuthMiddleware:  authMW,
		IdentityHandler: identityHandler,
		AuditHandler:    auditHandler,
		JobsHandler:     jobsHandler,
		APILimiter:      apiLimiter,
		LoginLimiter:    loginLimiter,
		Pool:            pool,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
