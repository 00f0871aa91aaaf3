// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication. It deliberately carries
	// no detail: unknown account and wrong password must stay indistinguishable.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the client exceeded a request or token quota.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed client input.
	ErrValidation = errors.New("validation failed")
)

// ConflictError reports which unique field collided during registration.
// It wraps ErrAlreadyExists so callers can match either way.
type ConflictError struct {
	Field string // "email" or "username"
}

func (e *ConflictError) Error() string { return fmt.Sprintf("%s already exists", e.Field) }

func (e *ConflictError) Unwrap() error { return ErrAlreadyExists }

// AuthorizationError reports insufficient privilege. The required permission
// name is diagnostic only and safe to show to the client.
type AuthorizationError struct {
	Required string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("missing required permission %q", e.Required)
}
