// Package memorystorage is the user store used when neither a database nor a
// storage file is configured. Everything is lost on exit.
package memorystorage

import (
	"github.com/patric-chuzhbe/dashboard/internal/db/jsondb"
)

type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: jsondb.NewInMemory(),
	}, nil
}

func (theStorage *MemoryStorage) Close() error {
	return nil
}
