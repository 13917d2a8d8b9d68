package cmd

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/solarwatch/solarwatch/pkg/api"
	"github.com/solarwatch/solarwatch/pkg/backfill"
	"github.com/solarwatch/solarwatch/pkg/growatt"
	"github.com/solarwatch/solarwatch/pkg/store"
	"github.com/solarwatch/solarwatch/pkg/syncday"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration shared by all commands
type Config struct {
	// Logging level
	Logging string `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`

	// MetricsAddr is the address for the Prometheus metrics server
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`

	// PlantID identifies the plant every command operates on
	PlantID int64 `yaml:"plantId"`

	// Growatt API client configuration
	Growatt growatt.Config `yaml:"growatt"`

	// Store is the PostgreSQL configuration
	Store store.Config `yaml:"store"`

	// Redis configuration (optional, enables the single-writer run lock)
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis,omitempty"`

	// Backfill configuration
	Backfill backfill.Config `yaml:"backfill"`

	// Sync configuration
	Sync syncday.Config `yaml:"sync"`

	// API is the read API server configuration
	API api.Config `yaml:"api"`
}

// Validate validates the configuration for the given subsystems
func (c *Config) Validate() error {
	if err := c.Growatt.Validate(); err != nil {
		return fmt.Errorf("growatt config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	return nil
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	config := &Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	// Try to read the file, but allow it to not exist
	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, use defaults or environment variables
			return applyPlantID(config), nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return applyPlantID(config), nil
}

// applyPlantID copies the top-level plant ID into the per-service configs
// so that a single plantId entry configures every command.
func applyPlantID(config *Config) *Config {
	if config.Backfill.PlantID == 0 {
		config.Backfill.PlantID = config.PlantID
	}
	if config.Sync.PlantID == 0 {
		config.Sync.PlantID = config.PlantID
	}

	return config
}
