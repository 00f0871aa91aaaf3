// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User represents an account stored on the server. PasswordHash is a
// PHC-encoded Argon2id string and is never exposed through the API.
type User struct {
	ID           uuid.UUID // PK
	Email        string    // unique (case-insensitive)
	Username     string    // unique (case-insensitive)
	PasswordHash string
	FirstName    string
	LastName     string
	IsAdmin      bool
	CreatedAt    time.Time
}

// Tokens collects issued access tokens. There is no refresh token: access
// tokens are stateless and live until their embedded expiry.
type Tokens struct {
	AccessToken string
	TokenType   string    // always "bearer"
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// ProfileUpdate is the closed set of caller-mutable profile fields.
// A nil field means "leave unchanged". Anything not listed here cannot be
// updated through the API at all.
type ProfileUpdate struct {
	Username  *string
	FirstName *string
	LastName  *string
}

// IsEmpty reports whether the update would change nothing.
func (p ProfileUpdate) IsEmpty() bool {
	return p.Username == nil && p.FirstName == nil && p.LastName == nil
}
