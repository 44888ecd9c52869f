// Package auth issues and verifies the bearer tokens handed out on register
// and login, and provides the middleware that guards authenticated routes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 24 * time.Hour

// ErrUnauthorized is wrapped by every verification failure. Callers that must
// not reveal which check failed should only test for this one.
var ErrUnauthorized = errors.New("unauthorized")

var (
	ErrTokenExpired          = fmt.Errorf("%w: token expired", ErrUnauthorized)
	ErrTokenInvalidSignature = fmt.Errorf("%w: token signature is invalid", ErrUnauthorized)
	ErrTokenMalformed        = fmt.Errorf("%w: token is malformed", ErrUnauthorized)
)

// Claims represents the JWT claims used by the system.
// It embeds standard JWT claims and adds the user identity.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// ClaimsKey is the context key the verified claims are stored under.
const ClaimsKey ContextKey = "claims"

// Issue signs claims with secret. The expiry is set to now + ttl, overriding
// whatever the caller put in claims.ExpiresAt.
func Issue(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	return issueAt(claims, secret, ttl, time.Now())
}

func issueAt(claims Claims, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("in internal/auth/auth.go/Issue(): error while `token.SignedString()` calling: %w", err)
	}

	return tokenString, nil
}

// Verify parses tokenString and checks its signature and expiry.
// The returned error is one of ErrTokenExpired, ErrTokenInvalidSignature or
// ErrTokenMalformed.
func Verify(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		},
	)
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalidSignature
	}
	if claims.ExpiresAt == nil {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalidSignature
	}
}

// ClaimsFromContext returns the claims stored by Authenticate.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok && claims != nil
}

// Tokens binds a signing secret and a TTL together.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens creates a Tokens. A non-positive ttl means DefaultTTL.
func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Tokens{
		secret: secret,
		ttl:    ttl,
	}
}

// Issue signs a token carrying userID and email.
func (t *Tokens) Issue(userID, email string) (string, error) {
	return Issue(Claims{UserID: userID, Email: email}, t.secret, t.ttl)
}

func (t *Tokens) Verify(tokenString string) (*Claims, error) {
	return Verify(tokenString, t.secret)
}
