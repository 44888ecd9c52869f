// Package postgresdb provides a PostgreSQL-based user store.
// The schema is applied with goose from migrations embedded in the binary.
// An unreachable database does not prevent the store from being created:
// migrations are retried on the next call until they succeed.
package postgresdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/dashboard/internal/logger"
	"github.com/patric-chuzhbe/dashboard/internal/user"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

const uniqueViolationCode = "23505"

const (
	defaultMaxOpenConns    = 20
	defaultConnMaxIdleTime = 30 * time.Second
)

// PostgresDB is a PostgreSQL-backed implementation of the user store.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration

	migrated  atomic.Bool
	migrateMu sync.Mutex
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type initOptions struct {
	DBPreReset      bool
	MaxOpenConns    int
	ConnMaxIdleTime time.Duration
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables dropping every table before migration.
// It can be used for test setups or development purposes.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// WithMaxOpenConns bounds the connection pool. Non-positive values keep the default.
func WithMaxOpenConns(value int) InitOption {
	return func(options *initOptions) {
		if value > 0 {
			options.MaxOpenConns = value
		}
	}
}

// WithConnMaxIdleTime sets how long an idle pooled connection is kept.
func WithConnMaxIdleTime(value time.Duration) InitOption {
	return func(options *initOptions) {
		if value > 0 {
			options.ConnMaxIdleTime = value
		}
	}
}

// New opens a connection pool for databaseDSN and tries to apply the schema.
// Only a DSN that cannot be parsed is an error; connectivity problems are
// logged and the schema is applied lazily.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset:      false,
		MaxOpenConns:    defaultMaxOpenConns,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	connConfig, err := pgx.ParseConfig(databaseDSN)
	if err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `pgx.ParseConfig()` calling: %w",
				err,
			)
	}
	if connectionTimeout > 0 {
		connConfig.ConnectTimeout = connectionTimeout
	}

	database := stdlib.OpenDB(*connConfig)
	database.SetMaxOpenConns(options.MaxOpenConns)
	database.SetMaxIdleConns(options.MaxOpenConns)
	database.SetConnMaxIdleTime(options.ConnMaxIdleTime)

	result := newWithDB(database, connectionTimeout)

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			logger.Log.Warnw("database reset failed", zap.Error(err))
		}
	}

	if err := result.ensureSchema(ctx); err != nil {
		logger.Log.Warnw(
			"database is not available, the service continues and will retry on demand",
			zap.Error(err),
		)
	}

	return result, nil
}

func newWithDB(database *sql.DB, connectionTimeout time.Duration) *PostgresDB {
	return &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}
}

func (db *PostgresDB) ensureSchema(ctx context.Context) error {
	if db.migrated.Load() {
		return nil
	}

	db.migrateMu.Lock()
	defer db.migrateMu.Unlock()

	if db.migrated.Load() {
		return nil
	}

	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/ensureSchema(): error while `goose.SetDialect()` calling: %w",
			err,
		)
	}

	if err := goose.UpContext(ctx, db.database, migrationsDir); err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/ensureSchema(): error while `goose.UpContext()` calling: %w",
			err,
		)
	}

	db.migrated.Store(true)
	logger.Log.Infow("database schema is up to date")

	return nil
}

// CreateUser inserts usr, whose password must already be hashed, and returns
// the stored row. The unique index on lower(email) turns a concurrent duplicate
// into user.ErrAlreadyExists.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *user.User) (*user.User, error) {
	if err := db.ensureSchema(ctx); err != nil {
		return nil, err
	}

	created := &user.User{
		Email:        user.NormalizeEmail(usr.Email),
		Name:         usr.Name,
		PasswordHash: usr.PasswordHash,
	}

	err := db.database.QueryRowContext(
		ctx,
		`INSERT INTO users (email, name, password) VALUES ($1, $2, $3) RETURNING id, created_at`,
		created.Email,
		created.Name,
		created.PasswordHash,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, user.ErrAlreadyExists
		}
		return nil, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/CreateUser(): error while `row.Scan()` calling: %w",
			err,
		)
	}

	return created, nil
}

// FindUserByEmail looks the user up ignoring case.
// It returns user.ErrNotFound when there is no such user.
func (db *PostgresDB) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	if err := db.ensureSchema(ctx); err != nil {
		return nil, err
	}

	return findUserByEmail(ctx, db.database, email)
}

func findUserByEmail(ctx context.Context, database queryer, email string) (*user.User, error) {
	row := database.QueryRowContext(
		ctx,
		`SELECT id, email, name, password, created_at FROM users WHERE lower(email) = $1`,
		user.NormalizeEmail(email),
	)

	found := &user.User{}
	err := row.Scan(&found.ID, &found.Email, &found.Name, &found.PasswordHash, &found.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/FindUserByEmail(): error while `row.Scan()` calling: %w",
			err,
		)
	}

	return found, nil
}

// GetNumberOfUsers returns how many users are registered.
func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	if err := db.ensureSchema(ctx); err != nil {
		return 0, err
	}

	var count int64
	err := db.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/GetNumberOfUsers(): error while `row.Scan()` calling: %w",
			err,
		)
	}

	return count, nil
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	if db.connectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.connectionTimeout)
		defer cancel()
	}

	return db.database.PingContext(ctx)
}

// Close closes the pool and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}
