// Package jsondb is a user store kept in memory and persisted to a JSON file
// on Close. It is meant for local development without a database.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patric-chuzhbe/dashboard/internal/user"
)

// Record is the stored form of a user. Unlike user.User it serializes the
// password hash.
type Record struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// CacheStruct is the whole content of the JSON file.
type CacheStruct struct {
	Users     map[string]*Record
	EmailToID map[string]string
}

type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct
}

func NewCache() CacheStruct {
	return CacheStruct{
		Users:     map[string]*Record{},
		EmailToID: map[string]string{},
	}
}

func initDBFile(fileName string) error {
	return writeToJSONFile(fileName, NewCache())
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	file, err := os.OpenFile(fileName, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()

	_, err = file.Write(jsonData)
	if err != nil {
		return fmt.Errorf("error writing to file: %w", err)
	}

	return nil
}

func parseJSONFile(fileName string, cache *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cache)
}

// New loads fileName, creating it when it does not exist yet.
func New(fileName string) (*JSONDB, error) {
	db := &JSONDB{
		fileName: fileName,
		Cache:    NewCache(),
	}

	err := parseJSONFile(db.fileName, &db.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := initDBFile(fileName); err != nil {
			return nil, err
		}
	}
	if db.Cache.Users == nil {
		db.Cache.Users = map[string]*Record{}
	}
	if db.Cache.EmailToID == nil {
		db.Cache.EmailToID = map[string]string{}
	}

	return db, nil
}

// NewInMemory returns a JSONDB that is never written to disk.
func NewInMemory() *JSONDB {
	return &JSONDB{Cache: NewCache()}
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// CreateUser assigns an ID and stores usr. The email check and the insert
// happen under one lock, so concurrent registrations of the same email
// cannot both succeed.
func (db *JSONDB) CreateUser(ctx context.Context, usr *user.User) (*user.User, error) {
	email := user.NormalizeEmail(usr.Email)

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.Cache.EmailToID[email]; exists {
		return nil, user.ErrAlreadyExists
	}

	record := &Record{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         usr.Name,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	db.Cache.Users[record.ID] = record
	db.Cache.EmailToID[email] = record.ID

	return record.toUser(), nil
}

func (db *JSONDB) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, found := db.Cache.EmailToID[user.NormalizeEmail(email)]
	if !found {
		return nil, user.ErrNotFound
	}
	record, found := db.Cache.Users[id]
	if !found {
		return nil, user.ErrNotFound
	}

	return record.toUser(), nil
}

func (db *JSONDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Users)), nil
}

// Close flushes the cache to the file. In-memory instances do nothing.
func (db *JSONDB) Close() error {
	if db.fileName == "" {
		return nil
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	return writeToJSONFile(db.fileName, db.Cache)
}

func (r *Record) toUser() *user.User {
	return &user.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}
