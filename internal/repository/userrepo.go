// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/walkiger/storyforge/internal/model"
)

// UserRepository provides account storage. Email and username uniqueness is
// ultimately enforced by the backend; implementations translate a uniqueness
// violation into *errs.ConflictError.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// FindByID loads a user by ID.
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// FindByEmail loads a user by email (case-insensitive).
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// FindByUsername loads a user by username (case-insensitive).
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	// FindByEmailOrUsername loads whichever existing user collides with either
	// identifier, in one query, for the registration conflict pre-check.
	FindByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error)
	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	// UpdateProfile applies the allow-listed profile fields and returns the
	// updated user.
	UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (*model.User, error)
	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]model.User, error)
}
