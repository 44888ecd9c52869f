package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/patric-chuzhbe/dashboard/internal/auth"
	"github.com/patric-chuzhbe/dashboard/internal/db/memorystorage"
	"github.com/patric-chuzhbe/dashboard/internal/mockstorage"
	"github.com/patric-chuzhbe/dashboard/internal/password"
	"github.com/patric-chuzhbe/dashboard/internal/user"
	"github.com/patric-chuzhbe/dashboard/internal/validation"
)

var testSecret = []byte("service-test-secret-service-test-secret")

type spyHasher struct {
	*password.Hasher
	mu           sync.Mutex
	dummyCalls   int
	compareCalls int
}

func (h *spyHasher) Compare(plaintext, storedHash string) bool {
	h.mu.Lock()
	h.compareCalls++
	h.mu.Unlock()
	return h.Hasher.Compare(plaintext, storedHash)
}

func (h *spyHasher) CompareDummy(plaintext string) bool {
	h.mu.Lock()
	h.dummyCalls++
	h.mu.Unlock()
	return h.Hasher.CompareDummy(plaintext)
}

func newTestService(t *testing.T, db storage) (*Service, *spyHasher, *auth.Tokens) {
	t.Helper()

	hasher, err := password.New(bcrypt.MinCost)
	require.NoError(t, err)

	v, err := validation.New()
	require.NoError(t, err)

	spy := &spyHasher{Hasher: hasher}
	tokens := auth.NewTokens(testSecret, time.Hour)

	return New(db, spy, tokens, v), spy, tokens
}

func newMemoryService(t *testing.T) (*Service, *spyHasher, *auth.Tokens) {
	t.Helper()

	db, err := memorystorage.New()
	require.NoError(t, err)

	return newTestService(t, db)
}

func TestRegisterThenLogin(t *testing.T) {
	s, _, tokens := newMemoryService(t)
	ctx := context.Background()

	registered, err := s.Register(ctx, "a@b.com", "secret1", "Ann")
	require.NoError(t, err)
	assert.Equal(t, "Ann", registered.User.Name)
	assert.Equal(t, "a@b.com", registered.User.Email)
	assert.NotEmpty(t, registered.User.ID)

	loggedIn, err := s.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	first, err := tokens.Verify(registered.Token)
	require.NoError(t, err)
	second, err := tokens.Verify(loggedIn.Token)
	require.NoError(t, err)

	assert.Equal(t, registered.User.ID, first.UserID)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, "a@b.com", second.Email)

	profile, err := s.Profile(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, registered.User, profile)
}

func TestRegisterValidation(t *testing.T) {
	s, _, _ := newMemoryService(t)

	testCases := []struct {
		name      string
		email     string
		password  string
		userName  string
		wantField string
		wantMsg   string
	}{
		{name: "bad_email", email: "not-an-email", password: "secret1", userName: "Ann", wantField: "email", wantMsg: validation.MsgInvalidEmail},
		{name: "short_password", email: "a@b.com", password: "12345", userName: "Ann", wantField: "password", wantMsg: validation.MsgInvalidPassword},
		{name: "short_name", email: "a@b.com", password: "secret1", userName: " A ", wantField: "name", wantMsg: validation.MsgInvalidName},
		{name: "password_over_bcrypt_limit", email: "a@b.com", password: strings.Repeat("p", 73), userName: "Ann", wantField: "password", wantMsg: msgPasswordTooLong},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			result, err := s.Register(context.Background(), testCase.email, testCase.password, testCase.userName)
			assert.Nil(t, result)

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			assert.Equal(t, testCase.wantField, validationErr.Field)
			assert.Equal(t, testCase.wantMsg, validationErr.Message)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	s, _, _ := newMemoryService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "a@b.com", "secret1", "Ann")
	require.NoError(t, err)

	_, err = s.Register(ctx, "A@B.com", "secret2", "Another Ann")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegisterConcurrentSameEmail(t *testing.T) {
	s, _, _ := newMemoryService(t)

	const attempts = 16
	var (
		wg      sync.WaitGroup
		results = make(chan error, attempts)
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Register(context.Background(), "race@b.com", "secret1", "Racer")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)
}

func TestRegisterStoreConflictAfterPrecheck(t *testing.T) {
	db := &mockstorage.StorageMock{}
	s, _, _ := newTestService(t, db)

	db.On("FindUserByEmail", mock.Anything, "a@b.com").Return(nil, user.ErrNotFound)
	db.On("CreateUser", mock.Anything, mock.AnythingOfType("*user.User")).Return(nil, user.ErrAlreadyExists)

	_, err := s.Register(context.Background(), "a@b.com", "secret1", "Ann")
	assert.ErrorIs(t, err, ErrConflict)
	db.AssertExpectations(t)
}

func TestRegisterNeverStoresPlaintext(t *testing.T) {
	db := &mockstorage.StorageMock{}
	s, _, _ := newTestService(t, db)

	db.On("FindUserByEmail", mock.Anything, "a@b.com").Return(nil, user.ErrNotFound)
	db.On("CreateUser", mock.Anything, mock.MatchedBy(func(usr *user.User) bool {
		return usr.PasswordHash != "" && usr.PasswordHash != "secret1" && usr.Name == "Ann"
	})).Return(&user.User{ID: "id-1", Email: "a@b.com", Name: "Ann"}, nil)

	result, err := s.Register(context.Background(), "a@b.com", "secret1", "  Ann  ")
	require.NoError(t, err)
	assert.Equal(t, user.Public{ID: "id-1", Email: "a@b.com", Name: "Ann"}, result.User)
	db.AssertExpectations(t)
}

func TestRegisterStoreFailure(t *testing.T) {
	db := &mockstorage.StorageMock{}
	s, _, _ := newTestService(t, db)
	storeErr := errors.New("connection refused")

	db.On("FindUserByEmail", mock.Anything, "a@b.com").Return(nil, storeErr)

	_, err := s.Register(context.Background(), "a@b.com", "secret1", "Ann")
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s, hasher, _ := newMemoryService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "a@b.com", "secret1", "Ann")
	require.NoError(t, err)

	_, wrongPassword := s.Login(ctx, "a@b.com", "wrong-password")
	_, unknownEmail := s.Login(ctx, "nobody@b.com", "secret1")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, 1, hasher.compareCalls)
	assert.Equal(t, 1, hasher.dummyCalls, "the unknown email must still pay for a hash comparison")
}

func TestLoginMissingCredentials(t *testing.T) {
	s, _, _ := newMemoryService(t)

	_, err := s.Login(context.Background(), "", "secret1")
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = s.Login(context.Background(), "a@b.com", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestProfile(t *testing.T) {
	db := &mockstorage.StorageMock{}
	s, _, _ := newTestService(t, db)
	ctx := context.Background()

	db.On("FindUserByEmail", mock.Anything, "gone@b.com").Return(nil, user.ErrNotFound)
	db.On("FindUserByEmail", mock.Anything, "reused@b.com").Return(&user.User{ID: "new-id", Email: "reused@b.com"}, nil)
	db.On("FindUserByEmail", mock.Anything, "broken@b.com").Return(nil, errors.New("timeout"))

	_, err := s.Profile(ctx, &auth.Claims{UserID: "old-id", Email: "gone@b.com"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Profile(ctx, &auth.Claims{UserID: "old-id", Email: "reused@b.com"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Profile(ctx, &auth.Claims{UserID: "id", Email: "broken@b.com"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGetInternalStats(t *testing.T) {
	db := &mockstorage.StorageMock{
		OnGetNumberOfUsers: func(ctx context.Context) (int64, error) {
			return 5, nil
		},
	}
	s, _, _ := newTestService(t, db)

	stats, err := s.GetInternalStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, InternalStats{Users: 5}, stats)
}

func TestPing(t *testing.T) {
	db := &mockstorage.StorageMock{}
	s, _, _ := newTestService(t, db)

	db.On("Ping", mock.Anything).Return(nil).Once()
	db.On("Ping", mock.Anything).Return(errors.New("down")).Once()

	assert.NoError(t, s.Ping(context.Background()))
	assert.Error(t, s.Ping(context.Background()))
}
