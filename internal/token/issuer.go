// Package token issues and verifies the signed credentials of the platform.
// Tokens prove who the caller is, never what they may do: claims carry only
// the identity id (plus the email for convenience), and the permission layer
// always re-reads current identity state.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pronas-pcd/pronas-core/internal/shared"
)

// Kind distinguishes access from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Lifetime ceilings. An access token is short-lived by contract; a
// configuration that stretches it past these bounds is a mistake, not a
// tuning choice.
const (
	MaxAccessTTL  = 30 * time.Minute
	MaxRefreshTTL = 720 * time.Hour
)

// Config carries the signing material and lifetimes. Access and refresh
// tokens are signed with distinct secrets so a leaked access key cannot
// forge refresh tokens, and vice versa.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Claims is the decoded payload of a signed token.
type Claims struct {
	Email string `json:"email,omitempty"`
	Kind  Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// IdentityID parses the subject claim back into an identity id.
func (c *Claims) IdentityID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, shared.ErrTokenInvalid
	}
	return id, nil
}

// Issuer creates and verifies signed tokens.
type Issuer struct {
	cfg Config
}

// NewIssuer validates the configuration and constructs an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: both signing secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: lifetimes must be positive")
	}
	if cfg.AccessTTL > MaxAccessTTL {
		return nil, fmt.Errorf("token: access lifetime %s exceeds the %s maximum", cfg.AccessTTL, MaxAccessTTL)
	}
	if cfg.RefreshTTL > MaxRefreshTTL {
		return nil, fmt.Errorf("token: refresh lifetime %s exceeds the %s maximum", cfg.RefreshTTL, MaxRefreshTTL)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "pronas-core"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Issuer{cfg: cfg}, nil
}

// IssueAccess signs a short-lived access token for the identity.
func (i *Issuer) IssueAccess(identityID int64, email string) (string, error) {
	return i.issue(identityID, email, KindAccess, i.cfg.AccessSecret, i.cfg.AccessTTL)
}

// IssueRefresh signs a longer-lived refresh token for the identity.
func (i *Issuer) IssueRefresh(identityID int64, email string) (string, error) {
	return i.issue(identityID, email, KindRefresh, i.cfg.RefreshSecret, i.cfg.RefreshTTL)
}

func (i *Issuer) issue(identityID int64, email string, kind Kind, secret []byte, ttl time.Duration) (string, error) {
	now := i.cfg.Now().UTC()
	claims := Claims{
		Email: email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   strconv.FormatInt(identityID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and kind. The signing key is chosen from
// the caller's expected kind, so a token of the wrong kind fails signature
// verification even before its kind claim is compared. Expired tokens return
// shared.ErrTokenExpired so callers can route into the refresh flow; any
// other defect returns shared.ErrTokenInvalid.
func (i *Issuer) Verify(raw string, expected Kind) (*Claims, error) {
	secret := i.cfg.AccessSecret
	if expected == KindRefresh {
		secret = i.cfg.RefreshSecret
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, shared.ErrTokenInvalid
		}
		return secret, nil
	}, jwt.WithTimeFunc(i.cfg.Now), jwt.WithIssuer(i.cfg.Issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, shared.ErrTokenExpired
		}
		return nil, shared.ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, shared.ErrTokenInvalid
	}
	if claims.Kind != expected {
		return nil, shared.ErrTokenInvalid
	}
	if _, err := claims.IdentityID(); err != nil {
		return nil, shared.ErrTokenInvalid
	}
	return claims, nil
}
