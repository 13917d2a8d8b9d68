// Package store implements the idempotent persistence layer on PostgreSQL:
// append-only power samples with duplicate suppression, upsertable daily
// energy totals, and the resumable ingestion cursors.
package store

import (
	"errors"
	"os"
	"time"
)

// Static errors for configuration validation
var (
	ErrDSNRequired = errors.New("database connection string is required")
)

// DSNEnvVar is consulted when no connection string is present in the config
// file.
const DSNEnvVar = "DATABASE_URL"

// Config contains PostgreSQL connection settings
type Config struct {
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"maxOpenConns" default:"4"`
	ConnTimeout  time.Duration `yaml:"connTimeout" default:"10s"`
}

// Validate checks if the configuration is valid. A missing DSN falls back to
// the DATABASE_URL environment variable before failing.
func (c *Config) Validate() error {
	if c.DSN == "" {
		c.DSN = os.Getenv(DSNEnvVar)
	}

	if c.DSN == "" {
		return ErrDSNRequired
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 4
	}

	if c.ConnTimeout == 0 {
		c.ConnTimeout = 10 * time.Second
	}
}
