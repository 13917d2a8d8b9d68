// Package syncday implements the routine single-day ingestion: pull one
// day's energy total and power series, cross-check them, and persist both.
package syncday

import (
	"errors"
	"time"
)

// Static errors for configuration validation
var (
	ErrPlantIDRequired = errors.New("plant ID is required")
	ErrBadTimezone     = errors.New("timezone is not resolvable")
)

// Config contains single-day sync settings
type Config struct {
	PlantID int64 `yaml:"plantId"`

	// Pause is the gap between the energy and power fetches, respecting the
	// upstream rate limit.
	Pause time.Duration `yaml:"pause" default:"5s"`

	// ToleranceKWh is the reconciliation disagreement threshold.
	ToleranceKWh float64 `yaml:"toleranceKwh" default:"1.0"`

	// Timezone is the plant's fixed local zone.
	Timezone string `yaml:"timezone" default:"Asia/Kolkata"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PlantID <= 0 {
		return ErrPlantIDRequired
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return ErrBadTimezone
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.Pause == 0 {
		c.Pause = 5 * time.Second
	}

	if c.ToleranceKWh == 0 {
		c.ToleranceKWh = 1.0
	}

	if c.Timezone == "" {
		c.Timezone = "Asia/Kolkata"
	}
}
