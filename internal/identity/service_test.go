package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pronas-pcd/pronas-core/internal/audit"
	"github.com/pronas-pcd/pronas-core/internal/identity"
	"github.com/pronas-pcd/pronas-core/internal/shared"
	_ "github.com/pronas-pcd/pronas-core/testing"
)

type memoryRepo struct {
	idents map[int64]*identity.Identity
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{idents: make(map[int64]*identity.Identity)}
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	for _, ident := range r.idents {
		if ident.Email == email {
			return ident, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) FindByID(ctx context.Context, id int64) (*identity.Identity, error) {
	ident, ok := r.idents[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *ident
	return &clone, nil
}

func (r *memoryRepo) Create(ctx context.Context, ident *identity.Identity) (int64, error) {
	for _, existing := range r.idents {
		if existing.Email == ident.Email {
			return 0, identity.ErrDuplicateEmail
		}
	}
	r.nextID++
	clone := *ident
	clone.ID = r.nextID
	r.idents[r.nextID] = &clone
	return r.nextID, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, id int64, active bool) error {
	ident, ok := r.idents[id]
	if !ok {
		return shared.ErrNotFound
	}
	ident.Active = active
	return nil
}

func (r *memoryRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	ident, ok := r.idents[id]
	if !ok {
		return shared.ErrNotFound
	}
	ident.PasswordHash = hash
	return nil
}

func (r *memoryRepo) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	return nil
}

type plainHasher struct{}

func (plainHasher) Hash(secret string) (string, error) { return "hashed:" + secret, nil }

type captureSink struct {
	records []audit.Record
	err     error
}

func (s *captureSink) Append(ctx context.Context, rec audit.Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func admin() *identity.Identity {
	return &identity.Identity{
		ID:     99,
		Email:  "admin@saude.gov.br",
		Role:   identity.RoleAdmin,
		Active: true,
	}
}

func ptr(v int64) *int64 { return &v }

func TestProvision(t *testing.T) {
	repo := newMemoryRepo()
	sink := &captureSink{}
	service := identity.NewService(repo, plainHasher{}, audit.NewRecorder(sink, nil, time.Second))

	ident, err := service.Provision(context.Background(), identity.ProvisionInput{
		Email:         "Gestor@AACD.org.br",
		FullName:      "Maria Souza",
		Role:          identity.RoleManager,
		InstitutionID: ptr(7),
		Password:      "hunter2secret",
		ConsentGiven:  true,
	}, admin(), shared.RequestMeta{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if ident.ID == 0 {
		t.Fatal("expected an id")
	}
	if ident.Email != "gestor@aacd.org.br" {
		t.Fatalf("email not normalized: %q", ident.Email)
	}
	if !ident.Active {
		t.Fatal("new identity should be active")
	}
	if ident.ConsentAt == nil {
		t.Fatal("consent timestamp missing")
	}
	if ident.PasswordHash != "hashed:hunter2secret" {
		t.Fatalf("hash: %q", ident.PasswordHash)
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Action != audit.ActionCreate || rec.Resource != audit.ResourceIdentity {
		t.Fatalf("audit record: %+v", rec)
	}
	if rec.ActorID != 99 || rec.ActorRole != "admin" {
		t.Fatalf("audit actor: %+v", rec)
	}
	if rec.Sensitivity != audit.SensitivityConfidential {
		t.Fatalf("sensitivity = %q", rec.Sensitivity)
	}
}

func TestProvisionRoleTenantBinding(t *testing.T) {
	repo := newMemoryRepo()
	sink := &captureSink{}
	service := identity.NewService(repo, plainHasher{}, audit.NewRecorder(sink, nil, time.Second))
	ctx := context.Background()
	meta := shared.RequestMeta{}

	cases := []struct {
		name  string
		input identity.ProvisionInput
	}{
		{"unknown role", identity.ProvisionInput{Email: "a@b.org", Role: identity.Role("chief"), Password: "x"}},
		{"manager without institution", identity.ProvisionInput{Email: "a@b.org", Role: identity.RoleManager, Password: "x"}},
		{"operator without institution", identity.ProvisionInput{Email: "a@b.org", Role: identity.RoleOperator, Password: "x"}},
		{"admin with institution", identity.ProvisionInput{Email: "a@b.org", Role: identity.RoleAdmin, InstitutionID: ptr(7), Password: "x"}},
		{"auditor with institution", identity.ProvisionInput{Email: "a@b.org", Role: identity.RoleAuditor, InstitutionID: ptr(7), Password: "x"}},
	}
	for _, tc := range cases {
		if _, err := service.Provision(ctx, tc.input, admin(), meta); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
	if len(sink.records) != 0 {
		t.Fatal("rejected inputs must not be audited as creations")
	}
}

func TestProvisionDuplicateEmail(t *testing.T) {
	repo := newMemoryRepo()
	sink := &captureSink{}
	service := identity.NewService(repo, plainHasher{}, audit.NewRecorder(sink, nil, time.Second))
	ctx := context.Background()

	input := identity.ProvisionInput{
		Email:         "gestor@aacd.org.br",
		FullName:      "Maria Souza",
		Role:          identity.RoleManager,
		InstitutionID: ptr(7),
		Password:      "hunter2secret",
	}
	if _, err := service.Provision(ctx, input, admin(), shared.RequestMeta{}); err != nil {
		t.Fatalf("first provision: %v", err)
	}
	if _, err := service.Provision(ctx, input, admin(), shared.RequestMeta{}); !errors.Is(err, identity.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestProvisionAuditFailureAborts(t *testing.T) {
	repo := newMemoryRepo()
	sink := &captureSink{err: errors.New("sink down")}
	service := identity.NewService(repo, plainHasher{}, audit.NewRecorder(sink, nil, time.Second))

	_, err := service.Provision(context.Background(), identity.ProvisionInput{
		Email:         "gestor@aacd.org.br",
		FullName:      "Maria Souza",
		Role:          identity.RoleManager,
		InstitutionID: ptr(7),
		Password:      "hunter2secret",
	}, admin(), shared.RequestMeta{})
	if !errors.Is(err, shared.ErrAuditWriteFailed) {
		t.Fatalf("expected ErrAuditWriteFailed, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	repo := newMemoryRepo()
	sink := &captureSink{}
	service := identity.NewService(repo, plainHasher{}, audit.NewRecorder(sink, nil, time.Second))
	ctx := context.Background()

	ident, err := service.Provision(ctx, identity.ProvisionInput{
		Email:         "operador@aacd.org.br",
		FullName:      "Joao Lima",
		Role:          identity.RoleOperator,
		InstitutionID: ptr(7),
		Password:      "hunter2secret",
	}, admin(), shared.RequestMeta{})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if err := service.SetStatus(ctx, ident.ID, false, admin(), shared.RequestMeta{}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	stored, err := service.Get(ctx, ident.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Active {
		t.Fatal("identity still active")
	}

	rec := sink.records[len(sink.records)-1]
	if rec.Action != audit.ActionUpdate || rec.Resource != audit.ResourceIdentity {
		t.Fatalf("audit record: %+v", rec)
	}
	if rec.Previous["active"] != true || rec.New["active"] != false {
		t.Fatalf("state diff: %+v", rec)
	}

	// Idempotent flips are not re-audited.
	before := len(sink.records)
	if err := service.SetStatus(ctx, ident.ID, false, admin(), shared.RequestMeta{}); err != nil {
		t.Fatalf("repeat deactivate: %v", err)
	}
	if len(sink.records) != before {
		t.Fatal("no-op status change should not append")
	}

	if err := service.SetStatus(ctx, 12345, true, admin(), shared.RequestMeta{}); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
