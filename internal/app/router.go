package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	audithttp "github.com/pronas-pcd/pronas-core/internal/audit/http"
	"github.com/pronas-pcd/pronas-core/internal/auth"
	"github.com/pronas-pcd/pronas-core/internal/authz"
	"github.com/pronas-pcd/pronas-core/internal/identity"
	"github.com/pronas-pcd/pronas-core/internal/observability"
	"github.com/pronas-pcd/pronas-core/internal/ratelimit"
	"github.com/pronas-pcd/pronas-core/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthHandler     *auth.Handler
	AuthMiddleware  auth.Middleware
	IdentityHandler *identity.Handler
	AuditHandler    *audithttp.Handler
	JobsHandler     *jobs.Handler
	APILimiter      *ratelimit.Limiter
	LoginLimiter    *ratelimit.Limiter
	Pool            *pgxpool.Pool
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Pool.Ping(ctx); err != nil {
				params.Logger.Warn("readiness ping failed", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	mw := params.AuthMiddleware

	r.Route("/api/v1", func(api chi.Router) {
		if params.APILimiter != nil {
			api.Use(mw.RateLimit(params.APILimiter))
		}

		api.Route("/auth", func(ar chi.Router) {
			loginLimit := func(next http.Handler) http.Handler { return next }
			if params.LoginLimiter != nil {
				loginLimit = mw.RateLimit(params.LoginLimiter)
			}
			params.AuthHandler.MountRoutes(ar, loginLimit)
		})

		api.Route("/identities", func(ir chi.Router) {
			ir.Use(mw.Authenticate)
			params.IdentityHandler.MountRoutes(ir,
				mw.Require(authz.ResourceIdentity, authz.ActionCreate),
				mw.Require(authz.ResourceIdentity, authz.ActionRead),
				mw.Require(authz.ResourceIdentity, authz.ActionUpdate),
			)
		})

		if params.JobsHandler != nil {
			api.Route("/jobs", func(jr chi.Router) {
				jr.Use(mw.Authenticate, mw.Require(authz.ResourceSystem, authz.ActionRead))
				params.JobsHandler.MountRoutes(jr)
			})
		}

		api.Route("/audit", func(tr chi.Router) {
			tr.Use(mw.Authenticate)
			params.AuditHandler.MountRoutes(tr,
				mw.Require(authz.ResourceAudit, authz.ActionRead),
				mw.Require(authz.ResourceAudit, authz.ActionExport),
			)
		})
	})

	return r
}
