// Package mockstorage provides a testify-based mock implementation
// of the user store interfaces consumed by the service and router packages.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/dashboard/internal/user"
)

// StorageMock is a testify mock of the user store.
//
// Use it in tests to simulate database failures or records that disappear
// between requests.
type StorageMock struct {
	mock.Mock

	// OnGetNumberOfUsers, if set, replaces testify's generic handling of
	// GetNumberOfUsers.
	OnGetNumberOfUsers func(ctx context.Context) (int64, error)
}

// CreateUser mocks inserting a user.
func (m *StorageMock) CreateUser(ctx context.Context, usr *user.User) (*user.User, error) {
	args := m.Called(ctx, usr)
	created, _ := args.Get(0).(*user.User)
	return created, args.Error(1)
}

// FindUserByEmail mocks the email lookup.
func (m *StorageMock) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	found, _ := args.Get(0).(*user.User)
	return found, args.Error(1)
}

// GetNumberOfUsers mocks counting registered users.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfUsers != nil {
		return m.OnGetNumberOfUsers(ctx)
	}
	args := m.Called(ctx)
	count, _ := args.Get(0).(int64)
	return count, args.Error(1)
}

// Ping mocks the pinger interface to simulate a health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks releasing the store.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
