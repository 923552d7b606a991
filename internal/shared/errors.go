package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Deliberately generic:
	// callers must not learn whether the email or the secret was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates a malformed or forged token, or a kind mismatch.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrPermissionDenied indicates the identity may not perform the action.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTenantMismatch indicates access to another institution's data.
	ErrTenantMismatch = errors.New("institution mismatch")
	// ErrRateLimited indicates the request budget for the window is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrAuditWriteFailed indicates a mutation could not be audited.
	// Fatal-class: an unaudited mutation is a compliance breach.
	ErrAuditWriteFailed = errors.New("audit write failed")
)
