// Package backfill implements the resumable historical ingestion driver:
// backward-stepping date windows over the upstream API, with a persisted
// cursor so a run can pick up where the last one stopped.
package backfill

import (
	"errors"
	"time"
)

// Static errors for configuration validation
var (
	ErrPlantIDRequired = errors.New("plant ID is required")
	ErrBadWindowDays   = errors.New("window days must be positive")
	ErrBadTimezone     = errors.New("timezone is not resolvable")
)

// Config contains backfill driver settings
type Config struct {
	PlantID int64 `yaml:"plantId"`

	// WindowDays is the size of each backward-stepping window.
	WindowDays int `yaml:"windowDays" default:"7"`

	// Pause is the minimum gap between upstream calls and between windows,
	// respecting the upstream rate limit.
	Pause time.Duration `yaml:"pause" default:"5s"`

	// RetryPause is the wait before re-fetching a window after a transient
	// upstream failure.
	RetryPause time.Duration `yaml:"retryPause" default:"15s"`

	// Timezone is the plant's fixed local zone; day windows are computed in
	// it and timestamps normalized from it.
	Timezone string `yaml:"timezone" default:"Asia/Kolkata"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PlantID <= 0 {
		return ErrPlantIDRequired
	}

	if c.WindowDays <= 0 {
		return ErrBadWindowDays
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return ErrBadTimezone
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.WindowDays == 0 {
		c.WindowDays = 7
	}

	if c.Pause == 0 {
		c.Pause = 5 * time.Second
	}

	if c.RetryPause == 0 {
		c.RetryPause = 15 * time.Second
	}

	if c.Timezone == "" {
		c.Timezone = "Asia/Kolkata"
	}
}
