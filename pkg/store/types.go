package store

import (
	"time"

	"github.com/solarwatch/solarwatch/pkg/timewindow"
)

// Metric identifies which ingestion stream a cursor belongs to
type Metric string

// Ingestion metric streams
const (
	MetricPower  Metric = "power"
	MetricEnergy Metric = "energy"
)

// Valid reports whether m is a known metric
func (m Metric) Valid() bool {
	return m == MetricPower || m == MetricEnergy
}

// PowerSample is one instantaneous power reading. Samples are append-only:
// the (PlantID, Timestamp) key is unique and re-inserts are suppressed.
type PowerSample struct {
	PlantID   int64     `json:"plant_id"` //nolint:tagliatelle // persisted/API field names use snake_case
	Timestamp time.Time `json:"timestamp"`
	PowerW    float64   `json:"power_w"` //nolint:tagliatelle // persisted/API field names use snake_case
}

// DailyEnergy is one day's reported energy total. Unlike power samples it is
// upsertable: later pulls may overwrite with corrected values.
type DailyEnergy struct {
	PlantID   int64          `json:"plant_id"` //nolint:tagliatelle // persisted/API field names use snake_case
	Date      timewindow.Day `json:"date"`
	EnergyKWh float64        `json:"energy_kwh"` //nolint:tagliatelle // persisted/API field names use snake_case
}

// Cursor is the resumable backfill bookmark for one (plant, metric) stream.
// It is advisory state only: the data tables, not the cursor, are the source
// of truth for what has been ingested.
type Cursor struct {
	PlantID   int64
	Metric    Metric
	LastDate  timewindow.Day
	UpdatedAt time.Time
}
