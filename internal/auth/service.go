package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pronas-pcd/pronas-core/internal/audit"
	"github.com/pronas-pcd/pronas-core/internal/identity"
	"github.com/pronas-pcd/pronas-core/internal/shared"
	"github.com/pronas-pcd/pronas-core/internal/token"
)

// Tokens is the pair returned by a successful login or refresh.
type Tokens struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token"`
}

// IdentitySummary is the caller-facing view of an identity.
type IdentitySummary struct {
	ID            int64         `json:"id"`
	Email         string        `json:"email"`
	FullName      string        `json:"full_name"`
	Role          identity.Role `json:"role"`
	InstitutionID *int64        `json:"institution_id,omitempty"`
}

func summarize(ident *identity.Identity) *IdentitySummary {
	return &IdentitySummary{
		ID:            ident.ID,
		Email:         ident.Email,
		FullName:      ident.FullName,
		Role:          ident.Role,
		InstitutionID: ident.InstitutionID,
	}
}

// Service wraps authentication business rules: credential checks, token
// rotation and the audit trail of both.
type Service struct {
	repo         identity.Repository
	hasher       Hasher
	issuer       *token.Issuer
	recorder     *audit.Recorder
	logger       *slog.Logger
	storeTimeout time.Duration
}

// NewService constructs a Service. storeTimeout bounds credential-store
// round trips so a slow store cannot hang the request pipeline.
func NewService(repo identity.Repository, hasher Hasher, issuer *token.Issuer, recorder *audit.Recorder, logger *slog.Logger, storeTimeout time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Service{
		repo:         repo,
		hasher:       hasher,
		issuer:       issuer,
		recorder:     recorder,
		logger:       logger,
		storeTimeout: storeTimeout,
	}
}

// Login validates email/secret credentials and issues a token pair.
// Every attempt is audited, denied ones included; the returned error is the
// uniform ErrInvalidCredentials regardless of which check failed.
func (s *Service) Login(ctx context.Context, email, secret string, meta shared.RequestMeta) (*Tokens, *IdentitySummary, error) {
	normalized, err := identity.NormalizeEmail(email)
	if err != nil {
		s.auditLogin(ctx, nil, email, meta, false, "malformed email")
		return nil, nil, shared.ErrInvalidCredentials
	}

	ident, err := s.findByEmail(ctx, normalized)
	if err != nil {
		s.auditLogin(ctx, nil, normalized, meta, false, "unknown account")
		return nil, nil, shared.ErrInvalidCredentials
	}
	if err := s.hasher.Compare(ident.PasswordHash, secret); err != nil {
		s.auditLogin(ctx, ident, normalized, meta, false, "secret mismatch")
		return nil, nil, shared.ErrInvalidCredentials
	}
	if !ident.Active {
		s.auditLogin(ctx, ident, normalized, meta, false, "inactive account")
		return nil, nil, shared.ErrInvalidCredentials
	}

	tokens, err := s.issuePair(ident)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.TouchLastLogin(ctx, ident.ID, time.Now()); err != nil {
		s.logger.Warn("touch last login", slog.Int64("identity", ident.ID), slog.Any("error", err))
	}
	s.auditLogin(ctx, ident, normalized, meta, true, "")
	return tokens, summarize(ident), nil
}

// Refresh exchanges a valid refresh token for a fresh pair. The identity is
// re-read so a deactivated account cannot rotate its way back in.
func (s *Service) Refresh(ctx context.Context, rawRefresh string, meta shared.RequestMeta) (*Tokens, *IdentitySummary, error) {
	claims, err := s.issuer.Verify(rawRefresh, token.KindRefresh)
	if err != nil {
		return nil, nil, err
	}
	id, err := claims.IdentityID()
	if err != nil {
		return nil, nil, err
	}
	ident, err := s.findByID(ctx, id)
	if err != nil || !ident.Active {
		return nil, nil, shared.ErrInvalidCredentials
	}
	tokens, err := s.issuePair(ident)
	if err != nil {
		return nil, nil, err
	}
	s.record(ctx, audit.Event{
		Action:      audit.ActionLogin,
		Resource:    audit.ResourceSystem,
		ActorID:     ident.ID,
		ActorEmail:  ident.Email,
		ActorRole:   string(ident.Role),
		Meta:        meta,
		Description: "token refresh",
		Success:     true,
	})
	return tokens, summarize(ident), nil
}

// ChangeSecret rotates a stored secret. Admins may reset another identity's
// secret without knowing the old one; everyone else must prove it. The
// change and its audit record are one unit: a failed audit append aborts
// the call with ErrAuditWriteFailed.
func (s *Service) ChangeSecret(ctx context.Context, identityID int64, oldSecret, newSecret string, actor *identity.Identity, meta shared.RequestMeta) error {
	target, err := s.findByID(ctx, identityID)
	if err != nil {
		return shared.ErrNotFound
	}
	if actor.ID != target.ID && actor.Role != identity.RoleAdmin {
		s.auditSecretChange(ctx, actor, target, meta, false, "not owner")
		return shared.ErrPermissionDenied
	}

	adminReset := actor.Role == identity.RoleAdmin && actor.ID != target.ID
	if !adminReset {
		if err := s.hasher.Compare(target.PasswordHash, oldSecret); err != nil {
			s.auditSecretChange(ctx, actor, target, meta, false, "old secret mismatch")
			return shared.ErrInvalidCredentials
		}
	}

	hash, err := s.hasher.Hash(newSecret)
	if err != nil {
		return fmt.Errorf("auth: hash secret: %w", err)
	}
	if err := s.repo.UpdatePasswordHash(ctx, target.ID, hash); err != nil {
		return fmt.Errorf("auth: update secret: %w", err)
	}
	return s.auditSecretChange(ctx, actor, target, meta, true, "")
}

// Logout audits the end of a session. Tokens are stateless and keep their
// natural expiry; there is no server-side revocation registry.
func (s *Service) Logout(ctx context.Context, ident *identity.Identity, meta shared.RequestMeta) {
	s.record(ctx, audit.Event{
		Action:      audit.ActionLogout,
		Resource:    audit.ResourceSystem,
		ActorID:     ident.ID,
		ActorEmail:  ident.Email,
		ActorRole:   string(ident.Role),
		Meta:        meta,
		Description: "logout",
		Success:     true,
	})
}

// ResolveAccess verifies an access token and re-reads the identity behind
// it. Authorization never trusts token-embedded state beyond the id.
func (s *Service) ResolveAccess(ctx context.Context, rawAccess string) (*identity.Identity, error) {
	claims, err := s.issuer.Verify(rawAccess, token.KindAccess)
	if err != nil {
		return nil, err
	}
	id, err := claims.IdentityID()
	if err != nil {
		return nil, err
	}
	ident, err := s.findByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrTokenInvalid
		}
		return nil, err
	}
	if !ident.Active {
		return nil, shared.ErrTokenInvalid
	}
	return ident, nil
}

func (s *Service) issuePair(ident *identity.Identity) (*Tokens, error) {
	access, err := s.issuer.IssueAccess(ident.ID, ident.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.IssueRefresh(ident.ID, ident.Email)
	if err != nil {
		return nil, err
	}
	return &Tokens{Access: access, Refresh: refresh}, nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.repo.FindByEmail(ctx, email)
}

func (s *Service) findByID(ctx context.Context, id int64) (*identity.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.repo.FindByID(ctx, id)
}

func (s *Service) auditLogin(ctx context.Context, ident *identity.Identity, email string, meta shared.RequestMeta, success bool, reason string) {
	ev := audit.Event{
		Action:      audit.ActionLogin,
		Resource:    audit.ResourceSystem,
		ActorEmail:  email,
		ActorRole:   "unknown",
		Meta:        meta,
		Description: "login attempt",
		Success:     success,
		ErrorMsg:    reason,
	}
	if ident != nil {
		ev.ActorID = ident.ID
		ev.ActorRole = string(ident.Role)
	}
	if success {
		ev.Description = "login"
	}
	s.record(ctx, ev)
}

func (s *Service) auditSecretChange(ctx context.Context, actor, target *identity.Identity, meta shared.RequestMeta, success bool, reason string) error {
	return s.record(ctx, audit.Event{
		Action:      audit.ActionUpdate,
		Resource:    audit.ResourceIdentity,
		ResourceID:  &target.ID,
		ActorID:     actor.ID,
		ActorEmail:  actor.Email,
		ActorRole:   string(actor.Role),
		Meta:        meta,
		Description: "secret changed for " + target.Email,
		Success:     success,
		ErrorMsg:    reason,
	})
}

func (s *Service) record(ctx context.Context, ev audit.Event) error {
	err := s.recorder.Record(ctx, ev)
	if err != nil {
		s.logger.Error("audit record", slog.Any("error", err))
	}
	return err
}
