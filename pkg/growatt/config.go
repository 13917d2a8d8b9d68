// Package growatt provides an HTTP client for the Growatt OpenAPI v1
// metering endpoints used by the ingestion pipeline.
package growatt

import (
	"errors"
	"os"
	"time"
)

// Static errors for configuration validation
var (
	ErrTokenRequired = errors.New("growatt API token is required")
)

// TokenEnvVar is consulted when no token is present in the config file.
const TokenEnvVar = "GROWATT_TOKEN" //nolint:gosec // Name of an env var, not a credential

// Config contains Growatt API connection settings
type Config struct {
	BaseURL        string        `yaml:"baseUrl" default:"https://openapi.growatt.com/v1"`
	Token          string        `yaml:"token"`
	RequestTimeout time.Duration `yaml:"requestTimeout" default:"30s"`
	Debug          bool          `yaml:"debug"`
}

// Validate checks if the configuration is valid. A missing token falls back
// to the GROWATT_TOKEN environment variable before failing.
func (c *Config) Validate() error {
	if c.Token == "" {
		c.Token = os.Getenv(TokenEnvVar)
	}

	if c.Token == "" {
		return ErrTokenRequired
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://openapi.growatt.com/v1"
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}
