package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Auth modes.
const (
	AuthModeDevelopment = "development"
	AuthModeJWT         = "jwt"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	AuthMode         string        `mapstructure:"AUTH_MODE"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	DevDefaultUser   string        `mapstructure:"DEV_DEFAULT_USER"`
	StorageBackend   string        `mapstructure:"STORAGE_BACKEND"`
	SnapshotPath     string        `mapstructure:"SNAPSHOT_PATH"`
	SnapshotKey      string        `mapstructure:"SNAPSHOT_KEY"`
	SnapshotDebounce time.Duration `mapstructure:"SNAPSHOT_DEBOUNCE"`
	SeedDemoData     bool          `mapstructure:"SEED_DEMO_DATA"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	ShutdownTimeout  time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "AUTH_MODE", "AUTH_SIGNING_KEY", "AUTH_ISSUER",
	"DEV_DEFAULT_USER", "STORAGE_BACKEND", "SNAPSHOT_PATH", "SNAPSHOT_KEY",
	"SNAPSHOT_DEBOUNCE", "SEED_DEMO_DATA", "DATABASE_URL", "DB_MAX_CONNS",
	"DB_MIN_CONNS", "CORS_ORIGINS", "BODY_LIMIT", "SHUTDOWN_TIMEOUT",
}

// Load reads configuration from the environment and an optional .env file
// in the working directory. It does not validate; call Validate before use.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("AUTH_ISSUER", "carehub")
	v.SetDefault("DEV_DEFAULT_USER", "2")
	v.SetDefault("STORAGE_BACKEND", BackendFile)
	v.SetDefault("SNAPSHOT_PATH", "./data/carehub-data.json")
	v.SetDefault("SNAPSHOT_KEY", "carehub-data")
	v.SetDefault("SNAPSHOT_DEBOUNCE", "250ms")
	v.SetDefault("SEED_DEMO_DATA", true)
	v.SetDefault("DB_MAX_CONNS", 5)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is set it
// wins; otherwise development environments use the dev header middleware
// and everything else requires signed tokens.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	return AuthModeJWT
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendFile:
		if c.SnapshotPath == "" {
			return fmt.Errorf("SNAPSHOT_PATH is required when STORAGE_BACKEND is %q", BackendFile)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND is %q", BackendPostgres)
		}
		if c.SnapshotKey == "" {
			return fmt.Errorf("SNAPSHOT_KEY is required when STORAGE_BACKEND is %q", BackendPostgres)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q, %q or %q, got %q",
			BackendFile, BackendPostgres, BackendMemory, c.StorageBackend)
	}

	if c.DBMinConns < 0 || c.DBMaxConns < 1 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid pool bounds: DB_MIN_CONNS=%d DB_MAX_CONNS=%d", c.DBMinConns, c.DBMaxConns)
	}
	if c.SnapshotDebounce < 0 {
		return fmt.Errorf("SNAPSHOT_DEBOUNCE must not be negative, got %s", c.SnapshotDebounce)
	}

	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if !c.IsDev() {
			return fmt.Errorf("AUTH_MODE %q is only allowed when ENV=development (current ENV=%q)", mode, c.Env)
		}
	case AuthModeJWT:
		if c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY must be set when AUTH_MODE is %q. "+
				"Refusing to start without authentication configuration", AuthModeJWT)
		}
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeDevelopment, AuthModeJWT, mode)
	}
	return nil
}
