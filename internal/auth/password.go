package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultWorkFactor is the bcrypt cost used when none is configured.
const DefaultWorkFactor = 12

// PasswordHasher hashes and verifies passwords with bcrypt. Digests carry
// their own cost, so changing the work factor keeps old digests verifiable.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher creates a hasher with the given work factor.
func NewPasswordHasher(workFactor int) (*PasswordHasher, error) {
	if workFactor < bcrypt.MinCost || workFactor > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt work factor must be within [%d, %d], got %d",
			bcrypt.MinCost, bcrypt.MaxCost, workFactor)
	}
	return &PasswordHasher{cost: workFactor}, nil
}

// Hash returns the salted digest of plaintext.
func (h *PasswordHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A malformed digest is a
// mismatch.
func (h *PasswordHasher) Verify(ctx context.Context, plaintext, digest string) bool {
	if ctx.Err() != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
