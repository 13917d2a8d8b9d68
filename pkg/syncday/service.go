package syncday

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solarwatch/solarwatch/pkg/growatt"
	"github.com/solarwatch/solarwatch/pkg/observability"
	"github.com/solarwatch/solarwatch/pkg/reconcile"
	"github.com/solarwatch/solarwatch/pkg/store"
	"github.com/solarwatch/solarwatch/pkg/timewindow"
)

// Service performs one day's pull. Each invocation is independent and
// idempotent: there is no cursor, and re-running for the same day changes
// nothing beyond what upstream reports.
type Service struct {
	log    logrus.FieldLogger
	cfg    *Config
	client growatt.ClientInterface
	store  store.Store
	loc    *time.Location

	// sleep is injectable for tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a single-day sync driver
func NewService(logger logrus.FieldLogger, cfg *Config, client growatt.ClientInterface, st store.Store) (*Service, error) {
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve timezone %q: %w", cfg.Timezone, err)
	}

	return &Service{
		log:    logger.WithField("component", "syncday"),
		cfg:    cfg,
		client: client,
		store:  st,
		loc:    loc,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}, nil
}

// Zone returns the plant's configured local zone.
func (s *Service) Zone() *time.Location {
	return s.loc
}

// Run syncs one day: energy first, a rate-limit pause, then power,
// reconciling the integrated power against the reported energy when both
// are available. Upstream failures are logged and end the run cleanly;
// store failures propagate.
func (s *Service) Run(ctx context.Context, day timewindow.Day) error {
	log := s.log.WithFields(logrus.Fields{
		"plant_id": s.cfg.PlantID,
		"date":     day.String(),
	})
	log.Info("Starting single-day sync")

	reported, haveReported, err := s.syncEnergy(ctx, day, log)
	if err != nil {
		return err
	}

	if err := s.sleep(ctx, s.cfg.Pause); err != nil {
		return err
	}

	if err := s.syncPower(ctx, day, reported, haveReported, log); err != nil {
		return err
	}

	log.Info("Single-day sync complete")

	return nil
}

// syncEnergy fetches and persists the day's reported total. It returns the
// accepted figure for cross-checking; a skipped day is not an error.
func (s *Service) syncEnergy(ctx context.Context, day timewindow.Day, log logrus.FieldLogger) (kwh float64, ok bool, err error) {
	rows, err := s.client.FetchEnergyRange(ctx, s.cfg.PlantID, day, day)
	if err != nil {
		log.WithError(err).Warn("Energy fetch failed, skipping energy signal")
		observability.RowsSkipped.WithLabelValues(s.plantLabel(), string(store.MetricEnergy), "fetch_failed").Inc()

		return 0, false, nil
	}

	kwh, verr := reconcile.ValidateEnergyDay(rows, day)
	if verr != nil {
		log.WithError(verr).Warn("Energy payload rejected, skipping energy signal")
		observability.RowsSkipped.WithLabelValues(s.plantLabel(), string(store.MetricEnergy), "invalid").Inc()

		return 0, false, nil
	}

	doc := store.DailyEnergy{PlantID: s.cfg.PlantID, Date: day, EnergyKWh: kwh}
	if err := s.store.UpsertDailyEnergy(ctx, doc); err != nil {
		return 0, false, err
	}

	observability.RowsIngested.WithLabelValues(s.plantLabel(), string(store.MetricEnergy)).Inc()
	log.WithField("energy_kwh", kwh).Info("Upserted daily energy")

	return kwh, true, nil
}

// syncPower fetches, validates, integrates, reconciles, and persists the
// day's power series.
func (s *Service) syncPower(ctx context.Context, day timewindow.Day, reported float64, haveReported bool, log logrus.FieldLogger) error {
	rows, err := s.client.FetchPowerDay(ctx, s.cfg.PlantID, day)
	if err != nil {
		log.WithError(err).Warn("Power fetch failed, skipping power signal")
		observability.RowsSkipped.WithLabelValues(s.plantLabel(), string(store.MetricPower), "fetch_failed").Inc()

		return nil
	}

	if len(rows) == 0 {
		log.Warn("No power data returned, skipping power signal")
		observability.RowsSkipped.WithLabelValues(s.plantLabel(), string(store.MetricPower), "missing").Inc()

		return nil
	}

	// A day where every sample is null or zero has no usable power data.
	// Distinct from a genuine zero-energy day, which the energy signal
	// still records when upstream explicitly reports zero.
	if reconcile.AllZeroOrNullPower(rows) {
		log.Warn("All power records are zero or null, skipping power signal")
		observability.RowsSkipped.WithLabelValues(s.plantLabel(), string(store.MetricPower), "all_zero").Inc()

		return nil
	}

	samples, dropped := reconcile.ParsePowerRows(rows, s.cfg.PlantID, s.loc)
	if dropped > 0 {
		log.WithField("dropped", dropped).Warn("Dropped corrupt power rows")
		observability.RowsSkipped.WithLabelValues(s.plantLabel(), string(store.MetricPower), "corrupt").Add(float64(dropped))
	}

	// Upstream occasionally returns stray rows dated outside the requested
	// day; only samples inside the day's local window belong to this sync.
	startUTC, endUTC := timewindow.LocalDayWindow(day, s.loc)
	kept := samples[:0]

	for _, sample := range samples {
		if sample.Timestamp.Before(startUTC) || sample.Timestamp.After(endUTC) {
			continue
		}

		kept = append(kept, sample)
	}

	if outOfDay := len(samples) - len(kept); outOfDay > 0 {
		log.WithField("dropped", outOfDay).Warn("Dropped power rows outside the target day")
		observability.RowsSkipped.WithLabelValues(s.plantLabel(), string(store.MetricPower), "out_of_window").Add(float64(outOfDay))
	}

	samples = kept

	if len(samples) == 0 {
		log.Warn("No valid power records after validation, skipping power signal")

		return nil
	}

	calculated := reconcile.IntegrateEnergy(samples, reconcile.SampleIntervalHours)
	log.WithField("calculated_kwh", calculated).Info("Integrated energy from power samples")

	if haveReported {
		result := reconcile.Reconcile(calculated, reported, s.cfg.ToleranceKWh)
		if !result.Agreement {
			// Informational only: either signal may be independently
			// correct, so both are persisted regardless.
			log.WithFields(logrus.Fields{
				"calculated_kwh": result.CalculatedKWh,
				"reported_kwh":   result.ReportedKWh,
				"delta_kwh":      result.DeltaKWh,
			}).Warn("Energy mismatch between integrated and reported figures")
			observability.Discrepancies.WithLabelValues(s.plantLabel()).Inc()
		}
	}

	result, err := s.store.InsertPowerSamples(ctx, samples)
	if err != nil {
		return err
	}

	observability.RowsIngested.WithLabelValues(s.plantLabel(), string(store.MetricPower)).Add(float64(result.Inserted))
	observability.DuplicatesSuppressed.WithLabelValues(s.plantLabel(), string(store.MetricPower)).Add(float64(result.Duplicates))
	log.WithFields(logrus.Fields{
		"inserted":   result.Inserted,
		"duplicates": result.Duplicates,
	}).Info("Persisted power samples")

	return nil
}

func (s *Service) plantLabel() string {
	return strconv.FormatInt(s.cfg.PlantID, 10)
}
