// Package password hashes and checks user passwords with bcrypt.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrTooLong is returned for passwords bcrypt cannot hash (over 72 bytes).
var ErrTooLong = errors.New("password is too long")

// Hasher hashes passwords at a fixed bcrypt cost.
type Hasher struct {
	cost int

	// dummyHash is compared against when the account does not exist, so the
	// "no such user" path costs as much as the "wrong password" path.
	dummyHash []byte
}

// New creates a Hasher. A cost outside bcrypt's range falls back to bcrypt.DefaultCost.
func New(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	dummyHash, err := bcrypt.GenerateFromPassword([]byte("dashboard-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("in internal/password/password.go/New(): error while `bcrypt.GenerateFromPassword()` calling: %w", err)
	}

	return &Hasher{
		cost:      cost,
		dummyHash: dummyHash,
	}, nil
}

// Hash returns the salted bcrypt hash of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrTooLong
	}
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Compare reports whether plaintext matches storedHash.
func (h *Hasher) Compare(plaintext, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plaintext)) == nil
}

// CompareDummy burns the same time as Compare and always reports false.
func (h *Hasher) CompareDummy(plaintext string) bool {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plaintext))

	return false
}
