// Package user defines the user model shared by the stores, the service
// layer and the HTTP handlers.
package user

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by the stores when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// ErrAlreadyExists is returned by the stores when the email is already taken.
var ErrAlreadyExists = errors.New("user already exists")

// User represents a registered account.
type User struct {
	// ID is the unique identifier of the user, meaning a UUID.
	ID string `json:"id"`

	// Email is stored normalized, see NormalizeEmail.
	Email string `json:"email"`

	Name string `json:"name"`

	// PasswordHash is the bcrypt hash of the password. It never leaves the server.
	PasswordHash string `json:"-"`

	CreatedAt time.Time `json:"-"`
}

// Public is the projection of a User that is safe to return to clients.
type Public struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Public returns the client-safe projection of the user.
func (u *User) Public() Public {
	return Public{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
	}
}

// NormalizeEmail is the form emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
