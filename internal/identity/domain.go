package identity

import "time"

// Role determines which rule rows of the permission table apply.
type Role string

const (
	// RoleAdmin bypasses all permission and institution checks.
	RoleAdmin Role = "admin"
	// RoleManager is scoped to its own institution.
	RoleManager Role = "manager"
	// RoleAuditor is read-only but sees every institution.
	RoleAuditor Role = "auditor"
	// RoleOperator is scoped to its own institution with limited writes.
	RoleOperator Role = "operator"
)

// Valid reports whether the role is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleAuditor, RoleOperator:
		return true
	}
	return false
}

// TenantScoped reports whether the role must be bound to an institution.
// Admin and Auditor are the only tenant-agnostic roles.
func (r Role) TenantScoped() bool {
	return r == RoleManager || r == RoleOperator
}

// Identity represents an authenticated account. Accounts are never hard
// deleted; deactivation is the terminal state.
type Identity struct {
	ID            int64
	Email         string
	FullName      string
	Role          Role
	InstitutionID *int64
	Active        bool
	PasswordHash  string
	LastLogin     *time.Time
	ConsentGiven  bool
	ConsentAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
