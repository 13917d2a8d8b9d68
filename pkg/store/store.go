package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/solarwatch/solarwatch/pkg/timewindow"
)

// Static errors
var (
	ErrNegativeEnergy = errors.New("daily energy must not be negative")
	ErrInvalidMetric  = errors.New("invalid cursor metric")
)

// pgUniqueViolation is the SQLSTATE for a unique-constraint violation.
const pgUniqueViolation = "23505"

// InsertResult summarizes a bulk power-sample insert. Duplicates are the
// rows suppressed by the (plant_id, ts) unique key, not failures.
type InsertResult struct {
	Inserted   int
	Duplicates int
}

// Store defines the persistence operations used by the ingestion drivers and
// the read API
type Store interface {
	// UpsertDailyEnergy creates or replaces the energy total for one day
	UpsertDailyEnergy(ctx context.Context, doc DailyEnergy) error
	// InsertPowerSamples inserts samples, suppressing duplicate-key rows
	InsertPowerSamples(ctx context.Context, docs []PowerSample) (InsertResult, error)
	// ReadCursor loads the backfill cursor for one (plant, metric) stream
	ReadCursor(ctx context.Context, plantID int64, metric Metric) (*Cursor, error)
	// WriteCursor creates or advances the backfill cursor
	WriteCursor(ctx context.Context, plantID int64, metric Metric, lastDate timewindow.Day) error
	// PowerRange returns samples in [from, to] ascending by timestamp
	PowerRange(ctx context.Context, plantID int64, from, to time.Time) ([]PowerSample, error)
	// EnergyRange returns daily totals in [from, to] ascending by date
	EnergyRange(ctx context.Context, plantID int64, from, to timewindow.Day) ([]DailyEnergy, error)
	// Setup provisions tables and indexes (one-time)
	Setup(ctx context.Context) error
	// Start opens and verifies the connection
	Start(ctx context.Context) error
	// Stop closes the connection
	Stop() error
}

// pgStore implements Store over database/sql with the pgx driver
type pgStore struct {
	log logrus.FieldLogger
	db  *sql.DB
	cfg *Config
}

// New creates a PostgreSQL-backed store
func New(logger logrus.FieldLogger, cfg *Config) (Store, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)

	return &pgStore{
		log: logger.WithField("component", "store"),
		db:  db,
		cfg: cfg,
	}, nil
}

func (s *pgStore) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnTimeout)
	defer cancel()

	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	s.log.Info("Connected to PostgreSQL")

	return nil
}

func (s *pgStore) Stop() error {
	return s.db.Close()
}

func (s *pgStore) UpsertDailyEnergy(ctx context.Context, doc DailyEnergy) error {
	if doc.EnergyKWh < 0 {
		return fmt.Errorf("%w: plant %d date %s value %f", ErrNegativeEnergy, doc.PlantID, doc.Date, doc.EnergyKWh)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_energy (plant_id, date, energy_kwh, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (plant_id, date)
		DO UPDATE SET energy_kwh = EXCLUDED.energy_kwh, updated_at = now()
	`, doc.PlantID, doc.Date.UTCMidnight(), doc.EnergyKWh)
	if err != nil {
		return fmt.Errorf("failed to upsert daily energy for plant %d date %s: %w", doc.PlantID, doc.Date, err)
	}

	return nil
}

// InsertPowerSamples writes each sample individually so one bad row cannot
// abort the batch. Unique-key conflicts are counted and suppressed; any
// other error escalates with the offending row's context.
func (s *pgStore) InsertPowerSamples(ctx context.Context, docs []PowerSample) (InsertResult, error) {
	var result InsertResult

	for _, doc := range docs {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO power_samples (plant_id, ts, power_w)
			VALUES ($1, $2, $3)
		`, doc.PlantID, doc.Timestamp, doc.PowerW)

		switch {
		case err == nil:
			result.Inserted++
		case isUniqueViolation(err):
			result.Duplicates++
		default:
			return result, fmt.Errorf("failed to insert power sample for plant %d at %s: %w",
				doc.PlantID, doc.Timestamp.Format(time.RFC3339), err)
		}
	}

	return result, nil
}

func (s *pgStore) ReadCursor(ctx context.Context, plantID int64, metric Metric) (*Cursor, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMetric, metric)
	}

	var (
		lastDate  time.Time
		updatedAt time.Time
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT last_date, updated_at
		FROM ingest_cursors
		WHERE plant_id = $1 AND metric = $2
	`, plantID, string(metric)).Scan(&lastDate, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cursor for plant %d metric %s: %w", plantID, metric, err)
	}

	return &Cursor{
		PlantID:   plantID,
		Metric:    metric,
		LastDate:  timewindow.DayOf(lastDate, time.UTC),
		UpdatedAt: updatedAt,
	}, nil
}

func (s *pgStore) WriteCursor(ctx context.Context, plantID int64, metric Metric, lastDate timewindow.Day) error {
	if !metric.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidMetric, metric)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_cursors (plant_id, metric, last_date, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (plant_id, metric)
		DO UPDATE SET last_date = EXCLUDED.last_date, updated_at = now()
	`, plantID, string(metric), lastDate.UTCMidnight())
	if err != nil {
		return fmt.Errorf("failed to write cursor for plant %d metric %s: %w", plantID, metric, err)
	}

	return nil
}

func (s *pgStore) PowerRange(ctx context.Context, plantID int64, from, to time.Time) ([]PowerSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plant_id, ts, power_w
		FROM power_samples
		WHERE plant_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`, plantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query power range: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var samples []PowerSample
	for rows.Next() {
		var sample PowerSample
		if err := rows.Scan(&sample.PlantID, &sample.Timestamp, &sample.PowerW); err != nil {
			return nil, fmt.Errorf("failed to scan power sample: %w", err)
		}
		sample.Timestamp = sample.Timestamp.UTC()
		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate power range: %w", err)
	}

	return samples, nil
}

func (s *pgStore) EnergyRange(ctx context.Context, plantID int64, from, to timewindow.Day) ([]DailyEnergy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plant_id, date, energy_kwh
		FROM daily_energy
		WHERE plant_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`, plantID, from.UTCMidnight(), to.UTCMidnight())
	if err != nil {
		return nil, fmt.Errorf("failed to query energy range: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var totals []DailyEnergy
	for rows.Next() {
		var (
			doc  DailyEnergy
			date time.Time
		)
		if err := rows.Scan(&doc.PlantID, &date, &doc.EnergyKWh); err != nil {
			return nil, fmt.Errorf("failed to scan daily energy: %w", err)
		}
		doc.Date = timewindow.DayOf(date, time.UTC)
		totals = append(totals, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate energy range: %w", err)
	}

	return totals, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
