package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the largest input bcrypt hashes without truncation.
const MaxPasswordBytes = 72

// PasswordHasher produces salted, deliberately slow one-way digests.
// Every Hash call draws a fresh salt, so equal inputs yield different digests.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher clamps cost into bcrypt's accepted range.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns the bcrypt digest of plaintext. The digest embeds its salt and cost.
func (h *PasswordHasher) Hash(plaintext string) ([]byte, error) {
	if len(plaintext) > MaxPasswordBytes {
		return nil, errors.New("password exceeds 72 bytes")
	}
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Verify reports whether plaintext re-hashed with digest's salt equals digest.
// Inputs longer than MaxPasswordBytes never match, since bcrypt only reads the
// first 72 bytes. The comparison still runs so rejection takes the same time.
func (h *PasswordHasher) Verify(plaintext string, digest []byte) bool {
	matched := bcrypt.CompareHashAndPassword(digest, []byte(plaintext)) == nil
	return matched && len(plaintext) <= MaxPasswordBytes
}
