// Package app initializes and runs the dashboard backend.
// It configures logging, storage, authentication and routing,
// and handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/dashboard/internal/auth"
	"github.com/patric-chuzhbe/dashboard/internal/config"
	"github.com/patric-chuzhbe/dashboard/internal/db/jsondb"
	"github.com/patric-chuzhbe/dashboard/internal/db/memorystorage"
	"github.com/patric-chuzhbe/dashboard/internal/db/postgresdb"
	"github.com/patric-chuzhbe/dashboard/internal/frontend"
	"github.com/patric-chuzhbe/dashboard/internal/ipchecker"
	"github.com/patric-chuzhbe/dashboard/internal/logger"
	"github.com/patric-chuzhbe/dashboard/internal/password"
	"github.com/patric-chuzhbe/dashboard/internal/router"
	"github.com/patric-chuzhbe/dashboard/internal/service"
	"github.com/patric-chuzhbe/dashboard/internal/user"
	"github.com/patric-chuzhbe/dashboard/internal/validation"
)

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
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
	Close() error
}

// App holds the configuration, the store and the HTTP handler of the service.
type App struct {
	cfg         *config.Config
	db          storage
	httpHandler http.Handler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - setting up the router and middleware
func New(configOptions ...config.InitOption) (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New(configOptions...)
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel, !app.cfg.IsDevelopment())
	if err != nil {
		return nil, err
	}

	if app.cfg.UsingDevSecret {
		logger.Log.Warnw("JWT_SECRET is not set, using the development secret", "app_env", app.cfg.AppEnv)
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	app.httpHandler, err = buildHandler(app.cfg, app.db)
	if err != nil {
		if closeErr := app.db.Close(); closeErr != nil {
			logger.Log.Errorw("storage close failed", zap.Error(closeErr))
		}
		return nil, err
	}

	return app, nil
}

func buildHandler(cfg *config.Config, db storage) (http.Handler, error) {
	hasher, err := password.New(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("in internal/app/app.go/buildHandler(): error while `password.New()` calling: %w", err)
	}

	structValidator, err := validation.New()
	if err != nil {
		return nil, fmt.Errorf("in internal/app/app.go/buildHandler(): error while `validation.New()` calling: %w", err)
	}

	checker, err := ipchecker.New(cfg.TrustedSubnet)
	if err != nil {
		return nil, fmt.Errorf("in internal/app/app.go/buildHandler(): error while `ipchecker.New()` calling: %w", err)
	}

	web, err := frontend.New()
	if err != nil {
		return nil, fmt.Errorf("in internal/app/app.go/buildHandler(): error while `frontend.New()` calling: %w", err)
	}

	tokens := auth.NewTokens([]byte(cfg.JWTSecret), cfg.TokenTTL.Duration)

	return router.New(
		service.New(db, hasher, tokens, structValidator),
		auth.New(tokens),
		checker,
		web,
		cfg.FrontendOrigin,
	), nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpHandler
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and closes the store upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.serve(ctx)
}

func (a *App) serve(ctx context.Context) error {
	logger.Log.Infow("server running", "RunAddr", a.cfg.RunAddr, "app_env", a.cfg.AppEnv)

	server := &http.Server{
		Addr:              a.cfg.RunAddr,
		Handler:           a.httpHandler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing the store and exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := server.Shutdown(shutdownCtx)
		closeErr := a.db.Close()
		if shutdownErr != nil {
			return fmt.Errorf("server shutdown error: %w", shutdownErr)
		}

		return closeErr

	case err := <-serverErrCh:
		if closeErr := a.db.Close(); closeErr != nil {
			logger.Log.Errorw("storage close failed", zap.Error(closeErr))
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return StorageTypeFile
	}

	return StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage, error) {
	switch getAvailableStorageType(cfg) {
	case StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout.Duration,
			postgresdb.WithMaxOpenConns(cfg.DBMaxOpenConns),
			postgresdb.WithConnMaxIdleTime(cfg.DBConnMaxIdleTime.Duration),
		)

	case StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}
