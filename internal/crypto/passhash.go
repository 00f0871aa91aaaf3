// Package crypto implements server-side password hashing and verification.
//
// Hashes are Argon2id in PHC string format
// ($argon2id$v=19$m=...,t=...,p=...$salt$digest), so every stored hash carries
// its own cost parameters: tuning Params later never breaks verification of
// hashes issued under the old settings.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

// Params holds Argon2id cost parameters used for newly issued hashes.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32 // iterations
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns parameters tuned for server-side hashing.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024, // 64 MB
		Time:        3,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// PasswordHasher hashes and verifies user passwords. Safe for concurrent use.
type PasswordHasher struct {
	params Params
}

// NewPasswordHasher validates params and constructs a hasher.
func NewPasswordHasher(p Params) (*PasswordHasher, error) {
	if p.Memory < 8*1024 {
		return nil, errors.New("argon2 memory must be >= 8192 KiB")
	}
	if p.Time < 1 {
		return nil, errors.New("argon2 time must be >= 1")
	}
	if p.Parallelism < 1 {
		return nil, errors.New("argon2 parallelism must be >= 1")
	}
	if p.SaltLength < 16 {
		return nil, errors.New("argon2 salt length must be >= 16")
	}
	if p.KeyLength < 16 {
		return nil, errors.New("argon2 key length must be >= 16")
	}
	return &PasswordHasher{params: p}, nil
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Hash derives an Argon2id digest of password under a fresh random salt and
// returns it PHC-encoded. Input length is not policed here; callers validate
// upstream. Hashing is CPU- and memory-bound and blocks the calling goroutine.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt, err := RandBytes(int(h.params.SaltLength))
	if err != nil {
		return "", fmt.Errorf("salt generation: %w", err)
	}

	digest := argon2.IDKey([]byte(password), salt,
		h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// Verify reports whether password matches the PHC-encoded hash. Malformed or
// foreign hash strings verify false, never error: a stored hash this server
// cannot interpret is treated the same as a wrong password. Comparison is
// constant-time over the digest.
func (h *PasswordHasher) Verify(password, encoded string) bool {
	p, salt, digest, err := decodePHC(encoded)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(password), salt,
		p.Time, p.Memory, p.Parallelism, uint32(len(digest)))
	return subtle.ConstantTimeCompare(computed, digest) == 1
}

// decodePHC parses a PHC Argon2id string into its parameters, salt and digest.
func decodePHC(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Params{}, nil, nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return Params{}, nil, nil, errors.New("unsupported algorithm")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, nil, nil, errors.New("unsupported argon2 version")
	}

	var p Params
	for _, pair := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return Params{}, nil, nil, errors.New("invalid parameter entry")
		}
		v, err := strconv.ParseUint(kv[1], 10, 32)
		if err != nil {
			return Params{}, nil, nil, errors.New("invalid parameter value")
		}
		switch kv[0] {
		case "m":
			p.Memory = uint32(v)
		case "t":
			p.Time = uint32(v)
		case "p":
			if v > 255 {
				return Params{}, nil, nil, errors.New("invalid parallelism")
			}
			p.Parallelism = uint8(v)
		default:
			return Params{}, nil, nil, errors.New("unsupported parameter")
		}
	}
	if p.Memory == 0 || p.Time == 0 || p.Parallelism == 0 {
		return Params{}, nil, nil, errors.New("missing parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Params{}, nil, nil, errors.New("invalid salt encoding")
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(digest) == 0 {
		return Params{}, nil, nil, errors.New("invalid digest encoding")
	}
	return p, salt, digest, nil
}
