package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// DevelopmentSecret signs tokens when no SECRET_KEY is set in development.
const DevelopmentSecret = "messagely-development-secret-change-me"

// MinSecretLength is the shortest SECRET_KEY accepted outside development.
const MinSecretLength = 32

// Config holds all configuration for the application
type Config struct {
	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Server settings
	HTTPPort   int  `env:"HTTP_PORT" envDefault:"8080"`
	TCPPort    int  `env:"TCP_PORT" envDefault:"7777"`
	TCPEnabled bool `env:"TCP_ENABLED" envDefault:"true"`

	// Store settings
	StoreDriver  string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/messagely.db"`

	// Token settings
	SecretKey   string        `env:"SECRET_KEY"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	TokenIssuer string        `env:"TOKEN_ISSUER" envDefault:"messagely"`

	BcryptWorkFactor    int           `env:"BCRYPT_WORK_FACTOR" envDefault:"12"`
	ParticipantCacheTTL time.Duration `env:"PARTICIPANT_CACHE_TTL" envDefault:"10m"`

	// CORS settings
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:3001" envSeparator:","`
}

// Load loads configuration from envFiles, or .env when none are given, and
// the process environment. Variables already set in the environment win
// over the files. A missing .env is not an error; a missing explicit file is.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SecretKey == "" && cfg.IsDevelopment() {
		cfg.SecretKey = DevelopmentSecret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT must be within [1, 65535], got %d", c.HTTPPort))
	}
	if c.TCPEnabled && (c.TCPPort < 1 || c.TCPPort > 65535) {
		errs = append(errs, fmt.Errorf("TCP_PORT must be within [1, 65535], got %d", c.TCPPort))
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			errs = append(errs, errors.New("DATABASE_PATH is required for the sqlite driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMemory, c.StoreDriver))
	}
	if !c.IsDevelopment() {
		if c.SecretKey == "" || c.SecretKey == DevelopmentSecret {
			errs = append(errs, errors.New("SECRET_KEY is required outside development"))
		} else if len(c.SecretKey) < MinSecretLength {
			errs = append(errs, fmt.Errorf("SECRET_KEY must be at least %d bytes", MinSecretLength))
		}
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL))
	}
	if c.BcryptWorkFactor < 4 || c.BcryptWorkFactor > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_WORK_FACTOR must be within [4, 31], got %d", c.BcryptWorkFactor))
	}
	if c.ParticipantCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("PARTICIPANT_CACHE_TTL must be positive, got %s", c.ParticipantCacheTTL))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// HTTPAddr returns the HTTP server address
func (c *Config) HTTPAddr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}

// TCPAddr returns the TCP server address
func (c *Config) TCPAddr() string {
	return ":" + strconv.Itoa(c.TCPPort)
}
