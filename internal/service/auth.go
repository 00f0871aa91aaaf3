// Package service contains the authentication and authorization core.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/walkiger/storyforge/internal/crypto"
	"github.com/walkiger/storyforge/internal/errs"
	"github.com/walkiger/storyforge/internal/model"
	"github.com/walkiger/storyforge/internal/repository"
	"github.com/walkiger/storyforge/internal/token"
)

// MinPasswordLength is the shortest accepted password, in bytes.
const MinPasswordLength = 7

// AuthService resolves presented credentials or tokens to identities.
// A valid token is necessary but not sufficient: the subject must still
// resolve against the user store at request time.
type AuthService struct {
	users  repository.UserRepository
	hasher *crypto.PasswordHasher
	codec  *token.Codec
	ttl    time.Duration
}

// NewAuthService constructs an AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, hasher *crypto.PasswordHasher, codec *token.Codec, accessTTL time.Duration) *AuthService {
	return &AuthService{users: users, hasher: hasher, codec: codec, ttl: accessTTL}
}

// RegisterRequest carries the fields needed to create an account.
type RegisterRequest struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

func (r RegisterRequest) validate() error {
	if r.Email == "" || !strings.Contains(r.Email, "@") {
		return fmt.Errorf("%w: email", errs.ErrValidation)
	}
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("%w: username", errs.ErrValidation)
	}
	if len(r.Password) < MinPasswordLength {
		return fmt.Errorf("%w: password shorter than %d bytes", errs.ErrValidation, MinPasswordLength)
	}
	return nil
}

// Register creates a new account. Duplicate email or username surfaces as
// *errs.ConflictError whether it is caught by the pre-check or by the store's
// unique constraint at commit time.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	existing, err := s.users.FindByEmailOrUsername(ctx, email, username)
	switch {
	case err == nil:
		if strings.EqualFold(existing.Email, email) {
			return nil, &errs.ConflictError{Field: "email"}
		}
		return nil, &errs.ConflictError{Field: "username"}
	case errors.Is(err, errs.ErrNotFound):
		// free to proceed
	default:
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("password hashing: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	u := &model.User{
		ID:           id,
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login authenticates by email and password and issues an access token.
// Unknown email and wrong password collapse into the same ErrUnauthorized so
// responses cannot be used to enumerate accounts.
func (s *AuthService) Login(ctx context.Context, email, password string) (model.Tokens, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil || !s.hasher.Verify(password, u.PasswordHash) {
		return model.Tokens{}, errs.ErrUnauthorized
	}

	access, exp, err := s.codec.Issue(u.ID, u.Email, u.IsAdmin, s.ttl)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, TokenType: "bearer", ExpiresAt: exp}, nil
}

// Resolve verifies a bearer token and loads the identity it names. Token
// verification failures pass through as token sentinels; a subject that no
// longer exists (deleted account) maps to ErrUnauthorized.
func (s *AuthService) Resolve(ctx context.Context, tokenString string) (*model.User, error) {
	claims, err := s.codec.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnauthorized
		}
		return nil, err
	}
	return u, nil
}

// ChangePassword verifies the current password and stores a hash of the new one.
func (s *AuthService) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	if len(next) < MinPasswordLength {
		return fmt.Errorf("%w: password shorter than %d bytes", errs.ErrValidation, MinPasswordLength)
	}
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, u.PasswordHash) {
		return errs.ErrUnauthorized
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("password hashing: %w", err)
	}
	return s.users.UpdatePasswordHash(ctx, id, hash)
}

// RequireAdmin gates privileged operations on the resolved identity.
// Pure predicate, no I/O.
func RequireAdmin(u *model.User) error {
	if u == nil || !u.IsAdmin {
		return &errs.AuthorizationError{Required: "admin"}
	}
	return nil
}
