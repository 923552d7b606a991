package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pronas-pcd/pronas-core/internal/audit"
	"github.com/pronas-pcd/pronas-core/internal/shared"
)

// Hasher matches the password hasher used by the auth layer.
type Hasher interface {
	Hash(secret string) (string, error)
}

// ProvisionInput describes a new account. Provisioning is an Admin-only
// operation, enforced by the route guard.
type ProvisionInput struct {
	Email         string
	FullName      string
	Role          Role
	InstitutionID *int64
	Password      string
	ConsentGiven  bool
}

// Service owns identity lifecycle operations.
type Service struct {
	repo     Repository
	hasher   Hasher
	recorder *audit.Recorder
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, hasher Hasher, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, hasher: hasher, recorder: recorder, now: time.Now}
}

// Provision creates a new identity. The creation and its audit record are
// one unit of accountability: a failed audit append fails the call.
func (s *Service) Provision(ctx context.Context, input ProvisionInput, actor *Identity, meta shared.RequestMeta) (*Identity, error) {
	if !input.Role.Valid() {
		return nil, fmt.Errorf("identity: unknown role %q", input.Role)
	}
	if input.Role.TenantScoped() && input.InstitutionID == nil {
		return nil, errors.New("identity: manager and operator accounts require an institution")
	}
	if !input.Role.TenantScoped() && input.InstitutionID != nil {
		return nil, errors.New("identity: admin and auditor accounts are institution-agnostic")
	}
	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("identity: hash secret: %w", err)
	}
	now := s.now().UTC()
	ident := &Identity{
		Email:         email,
		FullName:      input.FullName,
		Role:          input.Role,
		InstitutionID: input.InstitutionID,
		Active:        true,
		PasswordHash:  hash,
		ConsentGiven:  input.ConsentGiven,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if input.ConsentGiven {
		ident.ConsentAt = &now
	}
	id, err := s.repo.Create(ctx, ident)
	if err != nil {
		return nil, err
	}
	ident.ID = id
	err = s.recorder.Record(ctx, audit.Event{
		Action:      audit.ActionCreate,
		Resource:    audit.ResourceIdentity,
		ResourceID:  &id,
		ActorID:     actor.ID,
		ActorEmail:  actor.Email,
		ActorRole:   string(actor.Role),
		Meta:        meta,
		Description: "identity provisioned: " + email,
		New:         map[string]any{"email": email, "role": string(input.Role)},
		Success:     true,
	})
	if err != nil {
		return nil, err
	}
	return ident, nil
}

// SetStatus activates or deactivates an identity. Deactivation is the
// terminal state; there is no delete.
func (s *Service) SetStatus(ctx context.Context, id int64, active bool, actor *Identity, meta shared.RequestMeta) error {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Active == active {
		return nil
	}
	if err := s.repo.UpdateStatus(ctx, id, active); err != nil {
		return err
	}
	return s.recorder.Record(ctx, audit.Event{
		Action:      audit.ActionUpdate,
		Resource:    audit.ResourceIdentity,
		ResourceID:  &id,
		ActorID:     actor.ID,
		ActorEmail:  actor.Email,
		ActorRole:   string(actor.Role),
		Meta:        meta,
		Description: "status changed for " + current.Email,
		Previous:    map[string]any{"active": current.Active},
		New:         map[string]any{"active": active},
		Success:     true,
	})
}

// Get returns an identity by id.
func (s *Service) Get(ctx context.Context, id int64) (*Identity, error) {
	return s.repo.FindByID(ctx, id)
}
