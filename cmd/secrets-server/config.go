package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends
const (
	BackendFS        = "fs"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendDatastore = "datastore"
)

// Config is read from SECRETAUTH_* environment variables. Provider client
// credentials are read separately by the oauth2 package (OAUTH2_*).
type Config struct {
	Addr     string `env:"SECRETAUTH_ADDR" envDefault:":8080"`
	GRPCAddr string `env:"SECRETAUTH_GRPC_ADDR"`
	LogLevel string `env:"SECRETAUTH_LOG_LEVEL" envDefault:"info"`

	Backend            string `env:"SECRETAUTH_BACKEND" envDefault:"fs"`
	StoragePath        string `env:"SECRETAUTH_STORAGE_PATH" envDefault:"./data"`
	DatabaseURL        string `env:"SECRETAUTH_DATABASE_URL"`
	DatastoreProject   string `env:"SECRETAUTH_DATASTORE_PROJECT"`
	DatastoreNamespace string `env:"SECRETAUTH_DATASTORE_NAMESPACE"`

	SessionLifetime time.Duration `env:"SECRETAUTH_SESSION_LIFETIME" envDefault:"24h"`
	SecureCookies   bool          `env:"SECRETAUTH_SECURE_COOKIES"`

	// Enables /api/token and bearer auth on HTTP and gRPC
	JWTSecretKey string `env:"SECRETAUTH_JWT_SECRET_KEY"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadConfig parses and validates the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFS:
		if c.StoragePath == "" {
			return fmt.Errorf("SECRETAUTH_STORAGE_PATH is required for the %s backend", c.Backend)
		}
	case BackendSQLite, BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("SECRETAUTH_DATABASE_URL is required for the %s backend", c.Backend)
		}
	case BackendDatastore:
		if c.DatastoreProject == "" {
			return fmt.Errorf("SECRETAUTH_DATASTORE_PROJECT is required for the %s backend", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.GRPCAddr != "" && c.JWTSecretKey == "" {
		return fmt.Errorf("SECRETAUTH_GRPC_ADDR needs SECRETAUTH_JWT_SECRET_KEY")
	}
	if c.SessionLifetime <= 0 {
		return fmt.Errorf("session lifetime must be positive, got %s", c.SessionLifetime)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("bad log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
