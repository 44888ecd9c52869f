// Package config loads the service configuration.
//
// Values are applied in increasing priority: built-in defaults, the JSON file
// named by the CONFIG environment variable (or the -c flag), the environment
// (including a .env file in the working directory) and command-line flags.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/thoas/go-funk"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// MinJWTSecretLength is enforced outside development.
const MinJWTSecretLength = 32

// DevJWTSecret is only ever used when APP_ENV is development and no secret is set.
const DevJWTSecret = "dashboard-development-only-secret-do-not-deploy"

// ErrJWTSecretRequired is returned outside development when JWT_SECRET is empty.
var ErrJWTSecretRequired = errors.New("JWT_SECRET is required outside development")

// ErrJWTSecretTooShort is returned outside development for short secrets.
var ErrJWTSecretTooShort = fmt.Errorf("JWT_SECRET must be at least %d bytes", MinJWTSecretLength)

var allowedLogLevels = []string{"debug", "info", "warn", "error", "fatal"}

// Duration is a time.Duration that reads "10s"-style strings from JSON,
// the environment and flags alike.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	value, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = value
	return nil
}

type Config struct {
	RunAddr  string `env:"SERVER_ADDRESS" json:"server_address" validate:"hostname_port"`
	Port     string `env:"PORT" json:"port" validate:"omitempty,numeric"`
	LogLevel string `env:"LOG_LEVEL" json:"log_level" validate:"loglevel"`
	AppEnv   string `env:"APP_ENV" json:"app_env" validate:"oneof=development production"`

	DatabaseDSN         string   `env:"DATABASE_DSN" json:"database_dsn"`
	DBHost              string   `env:"DB_HOST" json:"db_host"`
	DBPort              string   `env:"DB_PORT" json:"db_port" validate:"omitempty,numeric"`
	DBUser              string   `env:"DB_USER" json:"db_user"`
	DBPassword          string   `env:"DB_PASSWORD" json:"db_password"`
	DBName              string   `env:"DB_NAME" json:"db_name"`
	DBSSLMode           string   `env:"DB_SSLMODE" json:"db_sslmode"`
	DBConnectionTimeout Duration `env:"DB_CONNECTION_TIMEOUT" json:"db_connection_timeout"`
	DBMaxOpenConns      int      `env:"DB_MAX_OPEN_CONNS" json:"db_max_open_conns" validate:"gte=1"`
	DBConnMaxIdleTime   Duration `env:"DB_CONN_MAX_IDLE_TIME" json:"db_conn_max_idle_time"`
	DBFileName          string   `env:"FILE_STORAGE_PATH" json:"file_storage_path" validate:"filepath"`

	JWTSecret  string   `env:"JWT_SECRET" json:"jwt_secret"`
	TokenTTL   Duration `env:"TOKEN_TTL" json:"token_ttl"`
	BcryptCost int      `env:"BCRYPT_COST" json:"bcrypt_cost" validate:"gte=4,lte=31"`

	FrontendOrigin string `env:"FRONTEND_ORIGIN" json:"frontend_origin" validate:"url"`
	TrustedSubnet  string `env:"TRUSTED_SUBNET" json:"trusted_subnet" validate:"omitempty,cidr"`

	ConfigFile string `env:"CONFIG" json:"-"`

	// UsingDevSecret is set when DevJWTSecret was substituted for a missing secret.
	UsingDevSecret bool `json:"-"`
}

var defaultConfig = Config{
	RunAddr:             ":5000",
	LogLevel:            "info",
	AppEnv:              EnvProduction,
	DBSSLMode:           "disable",
	DBConnectionTimeout: Duration{10 * time.Second},
	DBMaxOpenConns:      20,
	DBConnMaxIdleTime:   Duration{30 * time.Second},
	TokenTTL:            Duration{24 * time.Hour},
	BcryptCost:          10,
	FrontendOrigin:      "http://localhost:3000",
}

type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	args                []string
}

func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// WithArgs replaces os.Args[1:] as the source of command-line flags.
func WithArgs(args []string) InitOption {
	return func(options *initOptions) {
		options.args = args
	}
}

// New builds and validates the configuration.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
		args:                os.Args[1:],
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("in internal/config/config.go/New(): error while `godotenv.Load()` calling: %w", err)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	configFile := os.Getenv("CONFIG")
	if !options.disableFlagsParsing {
		configFile = lookupConfigFlag(options.args, configFile)
	}
	if configFile != "" {
		if err := values.loadJSON(configFile); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(values); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/New(): error while `env.Parse()` calling: %w", err)
	}

	if values.Port != "" && os.Getenv("SERVER_ADDRESS") == "" {
		values.RunAddr = ":" + values.Port
	}

	if !options.disableFlagsParsing {
		if err := values.parseFlags(options.args); err != nil {
			return nil, err
		}
	}

	values.clarifyDatabaseDSN()

	if err := values.clarifyJWTSecret(); err != nil {
		return nil, err
	}

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

func applyDefaults(values *Config, defaults Config) {
	*values = defaults
}

func (c *Config) loadJSON(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `os.ReadFile()` calling: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `json.Unmarshal()` calling: %w", err)
	}

	c.ConfigFile = fileName

	return nil
}

// lookupConfigFlag finds -c before the rest of the flags are parsed, since
// the file it names sits below them in priority.
func lookupConfigFlag(args []string, fallback string) string {
	for i, arg := range args {
		switch {
		case (arg == "-c" || arg == "--c") && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "-c="):
			return strings.TrimPrefix(arg, "-c=")
		case strings.HasPrefix(arg, "--c="):
			return strings.TrimPrefix(arg, "--c=")
		}
	}

	return fallback
}

func (c *Config) parseFlags(args []string) error {
	flagSet := flag.NewFlagSet("dashboard", flag.ContinueOnError)

	flagSet.String("c", c.ConfigFile, "path to a JSON configuration file")
	flagSet.StringVar(&c.RunAddr, "a", c.RunAddr, "address and port to run server")
	flagSet.StringVar(&c.LogLevel, "l", c.LogLevel, "logger level")
	flagSet.StringVar(&c.AppEnv, "e", c.AppEnv, "application environment (development or production)")
	flagSet.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "a string with the database connection details")
	flagSet.StringVar(&c.DBFileName, "f", c.DBFileName, "JSON file name with the user store")
	flagSet.StringVar(&c.FrontendOrigin, "o", c.FrontendOrigin, "origin allowed to call the API from a browser")
	flagSet.StringVar(&c.TrustedSubnet, "t", c.TrustedSubnet, "CIDR allowed to read internal stats")
	flagSet.TextVar(&c.TokenTTL, "ttl", c.TokenTTL, "issued token lifetime")

	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("in internal/config/config.go/parseFlags(): error while `flagSet.Parse()` calling: %w", err)
	}

	return nil
}

func (c *Config) clarifyDatabaseDSN() {
	if c.DatabaseDSN != "" || c.DBHost == "" {
		return
	}

	host := c.DBHost
	if c.DBPort != "" {
		host = net.JoinHostPort(c.DBHost, c.DBPort)
	}

	dsn := url.URL{
		Scheme: "postgres",
		Host:   host,
		Path:   "/" + c.DBName,
	}
	if c.DBUser != "" {
		dsn.User = url.UserPassword(c.DBUser, c.DBPassword)
	}
	if c.DBSSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": []string{c.DBSSLMode}}.Encode()
	}

	c.DatabaseDSN = dsn.String()
}

func (c *Config) clarifyJWTSecret() error {
	if c.JWTSecret == "" {
		if !c.IsDevelopment() {
			return ErrJWTSecretRequired
		}
		c.JWTSecret = DevJWTSecret
		c.UsingDevSecret = true
		return nil
	}

	if len(c.JWTSecret) < MinJWTSecretLength && !c.IsDevelopment() {
		return ErrJWTSecretTooShort
	}

	return nil
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	if path == "" {
		return true
	}
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	return funk.ContainsString(allowedLogLevels, fieldLevel.Field().String())
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}
