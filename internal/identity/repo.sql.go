package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pronas-pcd/pronas-core/internal/shared"
)

// ErrDuplicateEmail indicates the email is already registered.
var ErrDuplicateEmail = errors.New("identity: email already registered")

// Repository defines persistence operations for identities.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id int64) (*Identity, error)
	Create(ctx context.Context, ident *Identity) (int64, error)
	UpdateStatus(ctx context.Context, id int64, active bool) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const identityColumns = `id, email, full_name, role, institution_id, is_active, password_hash, last_login, consent_given, consent_at, created_at, updated_at`

func scanIdentity(row pgx.Row) (*Identity, error) {
	var ident Identity
	err := row.Scan(
		&ident.ID, &ident.Email, &ident.FullName, &ident.Role,
		&ident.InstitutionID, &ident.Active, &ident.PasswordHash,
		&ident.LastLogin, &ident.ConsentGiven, &ident.ConsentAt,
		&ident.CreatedAt, &ident.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ident, nil
}

// FindByEmail fetches an identity by normalized email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, email)
	return scanIdentity(row)
}

// FindByID fetches an identity by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentity(row)
}

// Create inserts a new identity and returns its id.
func (r *PGRepository) Create(ctx context.Context, ident *Identity) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO identities (email, full_name, role, institution_id, is_active, password_hash, consent_given, consent_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`,
		ident.Email, ident.FullName, ident.Role, ident.InstitutionID,
		ident.Active, ident.PasswordHash, ident.ConsentGiven, ident.ConsentAt,
		ident.CreatedAt,
	).Scan(&id)
	if err != nil {
		if isDuplicateEmail(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, err
	}
	return id, nil
}

func isDuplicateEmail(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_identities_email"
}

// UpdateStatus flips the active flag. Deactivation is the terminal state of
// an identity; rows are never deleted.
func (r *PGRepository) UpdateStatus(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE identities SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdatePasswordHash replaces the stored secret hash.
func (r *PGRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE identities SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// TouchLastLogin records the most recent successful authentication.
func (r *PGRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE identities SET last_login = $2 WHERE id = $1`, id, at.UTC())
	return err
}

var _ Repository = (*PGRepository)(nil)
