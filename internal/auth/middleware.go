package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/dashboard/internal/logger"
)

const bearerPrefix = "Bearer "

// Messages of the 401 answers.
const (
	MsgNoToken      = "No token, authorization denied"
	MsgInvalidToken = "Token is not valid"
)

type verifier interface {
	Verify(tokenString string) (*Claims, error)
}

// Auth holds the verifier the middleware checks tokens with.
type Auth struct {
	tokens verifier
}

// New creates an Auth around tokens.
func New(tokens verifier) *Auth {
	return &Auth{tokens: tokens}
}

// Authenticate is an HTTP middleware that admits a request only when it
// carries a valid "Authorization: Bearer <token>" header. The verified claims
// are stored in the request context; otherwise the request ends with 401 and
// h is not called.
func (a *Auth) Authenticate(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		tokenString, ok := BearerToken(request)
		if !ok {
			writeUnauthorized(response, MsgNoToken)
			return
		}

		claims, err := a.tokens.Verify(tokenString)
		if err != nil {
			logger.Log.Debugln("Error calling the `a.tokens.Verify()`: ", zap.Error(err))
			writeUnauthorized(response, MsgInvalidToken)
			return
		}

		ctx := context.WithValue(request.Context(), ClaimsKey, claims)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

// BearerToken extracts the token from the Authorization header. A header
// without the "Bearer " prefix counts as no token at all.
func BearerToken(request *http.Request) (string, bool) {
	header := request.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if tokenString == "" {
		return "", false
	}

	return tokenString, true
}

func writeUnauthorized(response http.ResponseWriter, message string) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(http.StatusUnauthorized)

	err := json.NewEncoder(response).Encode(map[string]string{"error": message})
	if err != nil {
		logger.Log.Debugln("Error calling the `json.NewEncoder().Encode()`: ", zap.Error(err))
	}
}
