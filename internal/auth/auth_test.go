package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-test-secret-test-secret")

func TestIssueAndVerify(t *testing.T) {
	tokenString, err := Issue(Claims{UserID: "42", Email: "a@b.com"}, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := Verify(tokenString, testSecret)
	require.NoError(t, err)

	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestIssueOverridesExpiry(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UserID: "42",
	}

	tokenString, err := Issue(claims, testSecret, DefaultTTL)
	require.NoError(t, err)

	verified, err := Verify(tokenString, testSecret)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), verified.ExpiresAt.Time, 5*time.Second)
}

func TestVerifyFailures(t *testing.T) {
	expired, err := issueAt(Claims{UserID: "42"}, testSecret, time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	foreign, err := Issue(Claims{UserID: "42"}, []byte("another-secret"), time.Hour)
	require.NoError(t, err)

	own, err := Issue(Claims{UserID: "42"}, testSecret, time.Hour)
	require.NoError(t, err)
	other, err := Issue(Claims{UserID: "43"}, testSecret, time.Hour)
	require.NoError(t, err)

	ownParts := strings.Split(own, ".")
	otherParts := strings.Split(other, ".")
	require.Len(t, ownParts, 3)
	require.Len(t, otherParts, 3)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "42"}).SignedString(testSecret)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "42",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "expired", token: expired, wantErr: ErrTokenExpired},
		{name: "wrong_secret", token: foreign, wantErr: ErrTokenInvalidSignature},
		{name: "swapped_payload", token: ownParts[0] + "." + otherParts[1] + "." + ownParts[2], wantErr: ErrTokenInvalidSignature},
		{name: "garbage", token: "not-a-token", wantErr: ErrTokenMalformed},
		{name: "empty", token: "", wantErr: ErrTokenMalformed},
		{name: "no_expiry", token: noExpiry, wantErr: ErrTokenMalformed},
		{name: "none_algorithm", token: noneAlg, wantErr: ErrTokenInvalidSignature},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			claims, err := Verify(testCase.token, testSecret)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, testCase.wantErr)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestTokens(t *testing.T) {
	tokens := NewTokens(testSecret, 0)
	assert.Equal(t, DefaultTTL, tokens.ttl)

	tokenString, err := tokens.Issue("7", "x@y.io")
	require.NoError(t, err)

	claims, err := tokens.Verify(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.UserID)
	assert.Equal(t, "x@y.io", claims.Email)
}

func TestAuthenticate(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour)
	validToken, err := tokens.Issue("7", "x@y.io")
	require.NoError(t, err)

	expiredToken, err := issueAt(Claims{UserID: "7", Email: "x@y.io"}, testSecret, time.Hour, time.Now().Add(-25*time.Hour))
	require.NoError(t, err)

	testCases := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "no_header", header: "", wantStatus: http.StatusUnauthorized, wantBody: MsgNoToken},
		{name: "no_bearer_prefix", header: validToken, wantStatus: http.StatusUnauthorized, wantBody: MsgNoToken},
		{name: "basic_scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized, wantBody: MsgNoToken},
		{name: "bearer_without_token", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantBody: MsgNoToken},
		{name: "invalid_token", header: "Bearer garbage", wantStatus: http.StatusUnauthorized, wantBody: MsgInvalidToken},
		{name: "expired_token", header: "Bearer " + expiredToken, wantStatus: http.StatusUnauthorized, wantBody: MsgInvalidToken},
		{name: "valid_token", header: "Bearer " + validToken, wantStatus: http.StatusOK, wantBody: "x@y.io"},
	}

	var reached bool
	handler := New(tokens).Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(claims.Email))
	}))

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			reached = false
			request := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
			if testCase.header != "" {
				request.Header.Set("Authorization", testCase.header)
			}
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, request)

			assert.Equal(t, testCase.wantStatus, recorder.Code)
			assert.Contains(t, recorder.Body.String(), testCase.wantBody)
			assert.Equal(t, testCase.wantStatus == http.StatusOK, reached)
		})
	}
}

func TestClaimsFromContextEmpty(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)

	claims, ok := ClaimsFromContext(request.Context())
	assert.False(t, ok)
	assert.Nil(t, claims)
}
