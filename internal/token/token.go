// Package token signs and verifies compact, expiring identity assertions (HS256 JWTs).
package token

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// Verification failures form a closed set so callers handle each case
// explicitly. All three surface as 401 at the HTTP boundary; they are
// distinguished for logging only.
var (
	// ErrMalformed indicates the string could not be parsed as a token at all.
	ErrMalformed = errors.New("token malformed")
	// ErrInvalid indicates a signature mismatch or an unexpected signing method.
	ErrInvalid = errors.New("token invalid")
	// ErrExpired indicates the embedded expiry has passed. No grace window.
	ErrExpired = errors.New("token expired")
)

// Claims is the verified content of a token.
type Claims struct {
	UserID    uuid.UUID
	Email     string
	IsAdmin   bool
	ExpiresAt time.Time
}

type jwtClaims struct {
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// Codec issues and verifies tokens with a single process-wide secret.
// Rotating the secret invalidates every previously issued token: there is no
// key id embedded and no multi-key verification.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec constructs a Codec signing with the given secret.
func NewCodec(secret []byte, opts ...Option) *Codec {
	c := &Codec{secret: secret, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Issue creates a signed HS256 token for the subject with expiry = now + ttl.
func (c *Codec) Issue(userID uuid.UUID, email string, isAdmin bool, ttl time.Duration) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(ttl)
	claims := jwtClaims{
		Email:   email,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	return signed, exp, err
}

// Verify parses and validates a token string, returning its claims or exactly
// one of ErrMalformed, ErrInvalid, ErrExpired.
func (c *Codec) Verify(tokenString string) (Claims, error) {
	var claims jwtClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalid
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		default:
			return Claims{}, ErrInvalid
		}
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalid
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return Claims{}, ErrInvalid
	}
	return Claims{
		UserID:    id,
		Email:     claims.Email,
		IsAdmin:   claims.IsAdmin,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
