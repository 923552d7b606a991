package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/pronas-pcd/pronas-core/internal/audit"
	"github.com/pronas-pcd/pronas-core/internal/auth"
	"github.com/pronas-pcd/pronas-core/internal/authz"
	"github.com/pronas-pcd/pronas-core/internal/identity"
	"github.com/pronas-pcd/pronas-core/internal/ratelimit"
	"github.com/pronas-pcd/pronas-core/internal/shared"
	_ "github.com/pronas-pcd/pronas-core/testing"
)

type pipeline struct {
	mw      auth.Middleware
	service *auth.Service
	sink    *captureSink
	repo    *stubRepo
}

func newPipeline(t *testing.T, idents ...*identity.Identity) *pipeline {
	t.Helper()
	repo := newStubRepo(idents...)
	sink := &captureSink{}
	service := newService(t, repo, sink)
	recorder := audit.NewRecorder(sink, nil, time.Second)
	return &pipeline{
		mw:      auth.Middleware{Service: service, Recorder: recorder, Logger: testLogger()},
		service: service,
		sink:    sink,
		repo:    repo,
	}
}

func (p *pipeline) login(t *testing.T, email, secret string) auth.Tokens {
	t.Helper()
	tokens, _, err := p.service.Login(context.Background(), email, secret, shared.RequestMeta{})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return *tokens
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	p := newPipeline(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := ratelimit.New(client, ratelimit.Config{Requests: 2, Window: time.Minute})
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}

	handler := p.mw.RateLimit(limiter)(okHandler())

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:51234"
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:51234"
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}

	// A different host keeps its own budget.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:51234"
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d for fresh host", rr.Code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	p := newPipeline(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := ratelimit.New(client, ratelimit.Config{Requests: 1, Window: time.Minute})
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	mr.Close()

	handler := p.mw.RateLimit(limiter)(okHandler())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, want pass-through when counter store is down", rr.Code)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	ident := testIdentity(t, 1, "gestor@aacd.org.br", identity.RoleManager, "hunter2secret")
	p := newPipeline(t, ident)
	handler := p.mw.Authenticate(okHandler())

	// Missing header: 401, not audited.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rr.Code)
	}
	if len(p.sink.records) != 0 {
		t.Fatal("missing header should not be audited")
	}

	// Presented but invalid token: 401 and audited.
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rr.Code)
	}
	if len(p.sink.records) != 1 || p.sink.last(t).Success {
		t.Fatal("rejected token should be audited as failure")
	}
}

func TestAuthenticatePassesIdentity(t *testing.T) {
	ident := testIdentity(t, 1, "gestor@aacd.org.br", identity.RoleManager, "hunter2secret")
	p := newPipeline(t, ident)
	tokens := p.login(t, ident.Email, "hunter2secret")

	var seen *identity.Identity
	handler := p.mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = identity.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.Access)
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if seen == nil || seen.ID != 1 {
		t.Fatalf("identity not in context: %+v", seen)
	}
}

func TestRequireDeniesAndAudits(t *testing.T) {
	institutionID := int64(7)
	operator := testIdentity(t, 1, "operador@aacd.org.br", identity.RoleOperator, "hunter2secret")
	operator.InstitutionID = &institutionID
	p := newPipeline(t, operator)
	tokens := p.login(t, operator.Email, "hunter2secret")

	r := chi.NewRouter()
	r.Use(p.mw.Authenticate)
	r.With(p.mw.Require(authz.ResourceProject, authz.ActionUpdate)).Patch("/projects/{projectID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.With(p.mw.Require(authz.ResourceProject, authz.ActionCreate)).Post("/projects", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	before := len(p.sink.records)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/projects/5", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.Access)
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", rr.Code)
	}
	if len(p.sink.records) != before+1 {
		t.Fatal("denial not audited")
	}
	rec := p.sink.last(t)
	if rec.Success || rec.Action != audit.ActionUpdate || rec.Resource != audit.ResourceProject {
		t.Fatalf("denial record: %+v", rec)
	}

	// The same operator may create within its grants.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/projects", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.Access)
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201", rr.Code)
	}
}

func TestRequireInstitutionTenantIsolation(t *testing.T) {
	institutionID := int64(7)
	manager := testIdentity(t, 1, "gestor@aacd.org.br", identity.RoleManager, "hunter2secret")
	manager.InstitutionID = &institutionID
	auditor := testIdentity(t, 2, "auditor@saude.gov.br", identity.RoleAuditor, "hunter2secret")
	p := newPipeline(t, manager, auditor)

	r := chi.NewRouter()
	r.Use(p.mw.Authenticate)
	r.With(p.mw.RequireInstitution(authz.ResourceInstitution, authz.ActionRead)).
		Get("/institutions/{institutionID}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	managerTokens := p.login(t, manager.Email, "hunter2secret")
	auditorTokens := p.login(t, auditor.Email, "hunter2secret")

	get := func(path, access string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+access)
		r.ServeHTTP(rr, req)
		return rr
	}

	if rr := get("/institutions/7", managerTokens.Access); rr.Code != http.StatusOK {
		t.Fatalf("own institution: status %d", rr.Code)
	}

	before := len(p.sink.records)
	if rr := get("/institutions/8", managerTokens.Access); rr.Code != http.StatusForbidden {
		t.Fatalf("foreign institution: status %d, want 403", rr.Code)
	}
	if len(p.sink.records) != before+1 || p.sink.last(t).Success {
		t.Fatal("tenant denial not audited")
	}

	// Auditors see every institution.
	if rr := get("/institutions/8", auditorTokens.Access); rr.Code != http.StatusOK {
		t.Fatalf("auditor cross-tenant read: status %d", rr.Code)
	}

	if rr := get("/institutions/abc", managerTokens.Access); rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed institution id: status %d", rr.Code)
	}
}

func TestCheckTenant(t *testing.T) {
	institutionID := int64(7)
	operator := testIdentity(t, 1, "operador@aacd.org.br", identity.RoleOperator, "hunter2secret")
	operator.InstitutionID = &institutionID
	p := newPipeline(t, operator)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := p.mw.CheckTenant(req, operator, authz.ResourceDocument, authz.ActionRead, 7); err != nil {
		t.Fatalf("own tenant: %v", err)
	}
	if err := p.mw.CheckTenant(req, operator, authz.ResourceDocument, authz.ActionRead, 8); err != shared.ErrTenantMismatch {
		t.Fatalf("expected ErrTenantMismatch, got %v", err)
	}
}
