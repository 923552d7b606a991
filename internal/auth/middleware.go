package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pronas-pcd/pronas-core/internal/audit"
	"github.com/pronas-pcd/pronas-core/internal/authz"
	"github.com/pronas-pcd/pronas-core/internal/identity"
	"github.com/pronas-pcd/pronas-core/internal/platform/httpx"
	"github.com/pronas-pcd/pronas-core/internal/ratelimit"
	"github.com/pronas-pcd/pronas-core/internal/shared"
)

// Middleware orchestrates the per-request authorization pipeline:
// rate limit, then token verification, then identity resolution, then the
// permission check installed on each route. The limiter runs first so
// abusive traffic is shed before any token or store work; token
// verification precedes permission evaluation because an unidentified
// caller cannot be evaluated. The pipeline holds no mutable state beyond
// the rate counter, so replaying a request with the same valid token yields
// the same decision.
type Middleware struct {
	Service  *Service
	Recorder *audit.Recorder
	Logger   *slog.Logger
}

// RateLimit rejects requests over the limiter's budget, keyed by client
// address. Rejections are a distinct 429 with Retry-After, never conflated
// with an authentication failure. On a limiter store error the request
// passes with a warning: shedding every caller because the counter store
// blinked would be the larger outage.
func (m Middleware) RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), clientKey(r))
			if err != nil {
				m.Logger.Warn("rate limiter unavailable", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())+1))
				httpx.RespondError(w, shared.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate verifies the bearer access token and resolves the identity
// behind it, storing both identity and request metadata in context. Failed
// verification of a presented token is audited; a missing header is
// malformed input and is not.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := shared.MetaFromRequest(r)
		ctx := shared.ContextWithMeta(r.Context(), meta)

		raw, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, shared.ErrTokenInvalid)
			return
		}
		ident, err := m.Service.ResolveAccess(ctx, raw)
		if err != nil {
			m.auditRejection(r, audit.Event{
				Action:      audit.ActionLogin,
				Resource:    audit.ResourceSystem,
				ActorRole:   "unknown",
				Meta:        meta,
				Description: "access token rejected",
				ErrorMsg:    err.Error(),
			})
			httpx.RespondError(w, err)
			return
		}
		ctx = identity.NewContext(ctx, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require guards a route with the permission matrix. Denials are audited
// with success=false; a denial is itself a security-relevant fact.
func (m Middleware) Require(resource authz.Resource, action authz.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := identity.FromContext(r.Context())
			if ident == nil {
				httpx.RespondError(w, shared.ErrTokenInvalid)
				return
			}
			if !authz.CanPerform(ident, resource, action) {
				m.auditDenial(r, ident, resource, action, shared.ErrPermissionDenied)
				httpx.RespondError(w, shared.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireInstitution layers tenant isolation on top of Require for routes
// carrying an {institutionID} parameter.
func (m Middleware) RequireInstitution(resource authz.Resource, action authz.Action) func(http.Handler) http.Handler {
	requirePerm := m.Require(resource, action)
	return func(next http.Handler) http.Handler {
		return requirePerm(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := identity.FromContext(r.Context())
			institutionID, err := strconv.ParseInt(chi.URLParam(r, "institutionID"), 10, 64)
			if err != nil {
				httpx.RespondError(w, httpx.ErrValidation)
				return
			}
			if !authz.CanAccessInstitution(ident, institutionID) {
				m.auditDenial(r, ident, resource, action, shared.ErrTenantMismatch)
				httpx.RespondError(w, shared.ErrTenantMismatch)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// CheckTenant applies the tenant rule for handlers that learn the owning
// institution only after loading the resource.
func (m Middleware) CheckTenant(r *http.Request, ident *identity.Identity, resource authz.Resource, action authz.Action, institutionID int64) error {
	if authz.CanAccessInstitution(ident, institutionID) {
		return nil
	}
	m.auditDenial(r, ident, resource, action, shared.ErrTenantMismatch)
	return shared.ErrTenantMismatch
}

func (m Middleware) auditDenial(r *http.Request, ident *identity.Identity, resource authz.Resource, action authz.Action, cause error) {
	m.auditRejection(r, audit.Event{
		Action:      audit.Action(action),
		Resource:    audit.Resource(resource),
		ActorID:     ident.ID,
		ActorEmail:  ident.Email,
		ActorRole:   string(ident.Role),
		Meta:        shared.MetaFromContext(r.Context()),
		Description: "denied: " + cause.Error(),
		ErrorMsg:    cause.Error(),
	})
}

// auditRejection records a denial. A denial mutates nothing, so a failed
// append here degrades to a warning rather than the fatal-class treatment a
// real mutation gets.
func (m Middleware) auditRejection(r *http.Request, ev audit.Event) {
	ev.Success = false
	if err := m.Recorder.Record(r.Context(), ev); err != nil {
		m.Logger.Warn("audit rejection", slog.Any("error", err))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// clientKey extracts the client address without the ephemeral port, so the
// whole host shares one counter. Relies on chi RealIP running earlier.
func clientKey(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 && !strings.HasSuffix(addr, "]") {
		host := addr[:idx]
		if !strings.Contains(host, ":") || strings.HasPrefix(host, "[") {
			return host
		}
	}
	return addr
}
