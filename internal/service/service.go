// Package service implements the register, login and profile operations on
// top of a user store, a password hasher and a token issuer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/patric-chuzhbe/dashboard/internal/auth"
	"github.com/patric-chuzhbe/dashboard/internal/password"
	"github.com/patric-chuzhbe/dashboard/internal/user"
	"github.com/patric-chuzhbe/dashboard/internal/validation"
)

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User) (*user.User, error)
	FindUserByEmail(ctx context.Context, email string) (*user.User, error)
}

type statsKeeper interface {
	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	userKeeper
	statsKeeper
	pinger
}

type passwordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(plaintext, storedHash string) bool
	CompareDummy(plaintext string) bool
}

type tokenIssuer interface {
	Issue(userID, email string) (string, error)
}

type structValidator interface {
	Struct(s interface{}) error
}

// ValidationError names the request field that was rejected.
type ValidationError = validation.FieldError

// ErrConflict is returned when the email is already registered.
var ErrConflict = errors.New("user already exists")

// ErrMissingCredentials is returned by Login when email or password is empty.
var ErrMissingCredentials = errors.New("email and password are required")

// ErrInvalidCredentials covers both an unknown email and a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrNotFound is returned by Profile when the token outlived its user.
var ErrNotFound = errors.New("user not found")

const msgPasswordTooLong = "Password must be at most 72 bytes"

// AuthResult is returned on successful register and login.
type AuthResult struct {
	Token string
	User  user.Public
}

// InternalStats is returned to trusted callers of the stats endpoint.
type InternalStats struct {
	Users int64 `json:"users"`
}

type registerInput struct {
	Email    string `validate:"dashemail"`
	Password string `validate:"dashpassword"`
	Name     string `validate:"dashname"`
}

type Service struct {
	db        storage
	hasher    passwordHasher
	tokens    tokenIssuer
	validator structValidator
}

func New(
	db storage,
	hasher passwordHasher,
	tokens tokenIssuer,
	validator structValidator,
) *Service {
	return &Service{
		db:        db,
		hasher:    hasher,
		tokens:    tokens,
		validator: validator,
	}
}

// Register validates the input, creates the user and returns a token for it.
func (s *Service) Register(ctx context.Context, email, plaintext, name string) (*AuthResult, error) {
	err := s.validator.Struct(registerInput{
		Email:    email,
		Password: plaintext,
		Name:     name,
	})
	if err != nil {
		return nil, err
	}

	_, err = s.db.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrConflict
	case !errors.Is(err, user.ErrNotFound):
		return nil, fmt.Errorf("in internal/service/service.go/Register(): error while `s.db.FindUserByEmail()` calling: %w", err)
	}

	hash, err := s.hasher.Hash(plaintext)
	if errors.Is(err, password.ErrTooLong) {
		return nil, &ValidationError{Field: "password", Message: msgPasswordTooLong}
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/Register(): error while `s.hasher.Hash()` calling: %w", err)
	}

	created, err := s.db.CreateUser(ctx, &user.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
	})
	if errors.Is(err, user.ErrAlreadyExists) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/Register(): error while `s.db.CreateUser()` calling: %w", err)
	}

	return s.authResult(created)
}

// Login checks the credentials and returns a fresh token. An unknown email
// and a wrong password both yield ErrInvalidCredentials after the same
// amount of hashing work.
func (s *Service) Login(ctx context.Context, email, plaintext string) (*AuthResult, error) {
	if email == "" || plaintext == "" {
		return nil, ErrMissingCredentials
	}

	found, err := s.db.FindUserByEmail(ctx, email)
	if errors.Is(err, user.ErrNotFound) {
		s.hasher.CompareDummy(plaintext)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/Login(): error while `s.db.FindUserByEmail()` calling: %w", err)
	}

	if !s.hasher.Compare(plaintext, found.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.authResult(found)
}

// Profile returns the user the verified claims belong to. A user that was
// removed, or whose email now belongs to another account, is ErrNotFound.
func (s *Service) Profile(ctx context.Context, claims *auth.Claims) (user.Public, error) {
	found, err := s.db.FindUserByEmail(ctx, claims.Email)
	if errors.Is(err, user.ErrNotFound) {
		return user.Public{}, ErrNotFound
	}
	if err != nil {
		return user.Public{}, fmt.Errorf("in internal/service/service.go/Profile(): error while `s.db.FindUserByEmail()` calling: %w", err)
	}
	if claims.UserID != "" && found.ID != claims.UserID {
		return user.Public{}, ErrNotFound
	}

	return found.Public(), nil
}

// Ping checks the health of the storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// GetInternalStats returns the number of registered users.
func (s *Service) GetInternalStats(ctx context.Context) (InternalStats, error) {
	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return InternalStats{}, err
	}

	return InternalStats{Users: users}, nil
}

func (s *Service) authResult(usr *user.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(usr.ID, usr.Email)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/authResult(): error while `s.tokens.Issue()` calling: %w", err)
	}

	return &AuthResult{
		Token: token,
		User:  usr.Public(),
	}, nil
}
