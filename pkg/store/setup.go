package store

import (
	"context"
	"fmt"
)

// setupStatements provision the three tables. The unique primary keys are
// what make re-running ingestion over overlapping windows safe.
var setupStatements = []string{
	`CREATE TABLE IF NOT EXISTS power_samples (
		plant_id BIGINT       NOT NULL,
		ts       TIMESTAMPTZ  NOT NULL,
		power_w  DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (plant_id, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS daily_energy (
		plant_id   BIGINT      NOT NULL,
		date       DATE        NOT NULL,
		energy_kwh DOUBLE PRECISION NOT NULL CHECK (energy_kwh >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (plant_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS ingest_cursors (
		plant_id   BIGINT      NOT NULL,
		metric     TEXT        NOT NULL CHECK (metric IN ('power', 'energy')),
		last_date  DATE        NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (plant_id, metric)
	)`,
}

// Setup creates the schema if it does not exist. Intended as a one-time
// provisioning step; every statement is idempotent.
func (s *pgStore) Setup(ctx context.Context) error {
	for _, stmt := range setupStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to provision schema: %w", err)
		}
	}

	s.log.Info("Schema ready")

	return nil
}
