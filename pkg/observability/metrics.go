package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// RowsIngested counts rows durably persisted, by metric stream
	RowsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarwatch_rows_ingested_total",
			Help: "Rows durably persisted",
		},
		[]string{"plant", "metric"},
	)

	// DuplicatesSuppressed counts duplicate-key rows swallowed on insert
	DuplicatesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarwatch_duplicates_suppressed_total",
			Help: "Duplicate-key rows suppressed during insert",
		},
		[]string{"plant", "metric"},
	)

	// RowsSkipped counts rows or days skipped, by reason
	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarwatch_rows_skipped_total",
			Help: "Rows or days skipped during validation",
		},
		[]string{"plant", "metric", "reason"},
	)

	// UpstreamRetries counts transient upstream failures that were retried
	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarwatch_upstream_retries_total",
			Help: "Transient upstream failures retried after a pause",
		},
		[]string{"plant", "metric"},
	)

	// Discrepancies counts reconciliation disagreements beyond tolerance
	Discrepancies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarwatch_reconcile_discrepancies_total",
			Help: "Days where integrated and reported energy disagree beyond tolerance",
		},
		[]string{"plant"},
	)

	// CursorPosition tracks the backfill cursor as a unix timestamp
	CursorPosition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solarwatch_cursor_position",
			Help: "Backfill cursor position (unix timestamp of last ingested date)",
		},
		[]string{"plant", "metric"},
	)

	// WindowsProcessed counts backfill windows fully persisted
	WindowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solarwatch_backfill_windows_total",
			Help: "Backfill windows fetched, validated, and persisted",
		},
		[]string{"plant", "metric"},
	)
)
