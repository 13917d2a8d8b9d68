package backfill

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

// Driver states. One backfill run walks FetchWindow -> Validate -> Persist
// -> Advance repeatedly until a stop condition moves it to Stopped.
type state int

const (
	stateInit state = iota
	stateFetchWindow
	stateValidate
	statePersist
	stateAdvance
	stateStopped
)

// Service drives resumable backfill for one plant. It processes one metric
// stream at a time, strictly sequentially; concurrent runs against the same
// (plant, metric) cursor are guarded externally by the run lock.
type Service struct {
	log    logrus.FieldLogger
	cfg    *Config
	client growatt.ClientInterface
	store  store.Store
	loc    *time.Location

	// now and sleep are injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates a backfill driver
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
		log:    logger.WithField("component", "backfill"),
		cfg:    cfg,
		client: client,
		store:  st,
		loc:    loc,
		now:    time.Now,
		sleep:  sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// run carries the mutable state of one backfill invocation
type run struct {
	metric store.Metric
	state  state
	anchor timewindow.Day

	// current window
	windowStart timewindow.Day
	windowEnd   timewindow.Day

	// fetched payloads for the current window
	powerRows  []growatt.PowerPoint
	energyRows []growatt.EnergyRecord
}

// Run executes the backfill state machine for one metric stream until it
// reaches Stopped or the context is canceled. A clean stop returns nil.
func (s *Service) Run(ctx context.Context, metric store.Metric) error {
	if !metric.Valid() {
		return fmt.Errorf("%w: %s", store.ErrInvalidMetric, metric)
	}

	r := &run{metric: metric, state: stateInit}

	log := s.log.WithFields(logrus.Fields{
		"plant_id": s.cfg.PlantID,
		"metric":   metric,
	})
	log.Info("Starting backfill")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch r.state {
		case stateInit:
			err = s.init(ctx, r, log)
		case stateFetchWindow:
			err = s.fetchWindow(ctx, r, log)
		case stateValidate:
			s.validate(r, log)
		case statePersist:
			err = s.persist(ctx, r, log)
		case stateAdvance:
			err = s.advance(ctx, r)
		case stateStopped:
			log.Info("Backfill stopped: historic window exhausted")
			return nil
		}

		if err != nil {
			return err
		}
	}
}

// init loads the cursor and derives the first anchor. With a cursor at date
// X the first window must end at X-1: X itself was the oldest date already
// confirmed ingested. Without one the stream starts at yesterday.
func (s *Service) init(ctx context.Context, r *run, log logrus.FieldLogger) error {
	cursor, err := s.store.ReadCursor(ctx, s.cfg.PlantID, r.metric)
	if err != nil {
		return err
	}

	if cursor != nil {
		r.anchor = cursor.LastDate.AddDays(-1)
		log.WithFields(logrus.Fields{
			"cursor": cursor.LastDate.String(),
			"anchor": r.anchor.String(),
		}).Info("Resuming from persisted cursor")
	} else {
		r.anchor = timewindow.DayOf(s.now(), s.loc).AddDays(-1)
		log.WithField("anchor", r.anchor.String()).Info("No cursor found, starting at yesterday")
	}

	r.state = stateFetchWindow

	return nil
}

// fetchWindow pulls one backward window, retrying the same window after a
// pause for as long as the upstream fails transiently. Backfill is a
// long-running batch job, so there is no retry limit, only the operator-
// visible log.
func (s *Service) fetchWindow(ctx context.Context, r *run, log logrus.FieldLogger) error {
	r.windowStart, r.windowEnd = timewindow.BackwardWindow(r.anchor, s.cfg.WindowDays)

	wlog := log.WithFields(logrus.Fields{
		"window_start": r.windowStart.String(),
		"window_end":   r.windowEnd.String(),
	})

	for {
		var err error
		switch r.metric {
		case store.MetricEnergy:
			r.energyRows, err = s.client.FetchEnergyRange(ctx, s.cfg.PlantID, r.windowStart, r.windowEnd)
		case store.MetricPower:
			r.powerRows, err = s.fetchPowerWindow(ctx, r.windowStart, r.windowEnd)
		}

		if err == nil {
			r.state = stateValidate
			return nil
		}

		if !growatt.IsTransient(err) {
			return fmt.Errorf("unrecoverable upstream failure: %w", err)
		}

		observability.UpstreamRetries.WithLabelValues(s.plantLabel(), string(r.metric)).Inc()
		wlog.WithError(err).Warn("Transient upstream failure, retrying window after pause")

		if err := s.sleep(ctx, s.cfg.RetryPause); err != nil {
			return err
		}
	}
}

// fetchPowerWindow pulls the per-day power endpoint for every day of the
// window, oldest first, pausing between calls.
func (s *Service) fetchPowerWindow(ctx context.Context, start, end timewindow.Day) ([]growatt.PowerPoint, error) {
	var rows []growatt.PowerPoint

	days := timewindow.DaysInWindow(start, end)
	for i, day := range days {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.Pause); err != nil {
				return nil, err
			}
		}

		dayRows, err := s.client.FetchPowerDay(ctx, s.cfg.PlantID, day)
		if err != nil {
			return nil, err
		}

		rows = append(rows, dayRows...)
	}

	return rows, nil
}

// validate applies the two stop conditions and otherwise moves to Persist.
// Stop condition A: the window came back empty (upstream exhausted).
// Stop condition B: every row is null/zero (edge of meaningful history).
func (s *Service) validate(r *run, log logrus.FieldLogger) {
	var (
		empty   bool
		allZero bool
	)

	switch r.metric {
	case store.MetricEnergy:
		empty = len(r.energyRows) == 0
		allZero = !empty && reconcile.AllZeroOrNullEnergy(r.energyRows)
	case store.MetricPower:
		empty = len(r.powerRows) == 0
		allZero = !empty && reconcile.AllZeroOrNullPower(r.powerRows)
	}

	wlog := log.WithFields(logrus.Fields{
		"window_start": r.windowStart.String(),
		"window_end":   r.windowEnd.String(),
	})

	switch {
	case empty:
		wlog.Info("Empty window returned by upstream")
		r.state = stateStopped
	case allZero:
		wlog.Info("Window contains only null or zero values")
		r.state = stateStopped
	default:
		r.state = statePersist
	}
}

// persist writes the window's valid rows and then, only then, the cursor.
// The write-after-data ordering is what bounds loss to one window on crash.
func (s *Service) persist(ctx context.Context, r *run, log logrus.FieldLogger) error {
	plant := s.plantLabel()

	switch r.metric {
	case store.MetricEnergy:
		totals, dropped := reconcile.ParseEnergyRows(r.energyRows, s.cfg.PlantID)
		if dropped > 0 {
			log.WithFields(logrus.Fields{
				"window_start": r.windowStart.String(),
				"dropped":      dropped,
			}).Warn("Dropped corrupt energy rows")
			observability.RowsSkipped.WithLabelValues(plant, string(r.metric), "corrupt").Add(float64(dropped))
		}

		for _, doc := range totals {
			if err := s.store.UpsertDailyEnergy(ctx, doc); err != nil {
				return err
			}
		}

		observability.RowsIngested.WithLabelValues(plant, string(r.metric)).Add(float64(len(totals)))
		log.WithFields(logrus.Fields{
			"window_start": r.windowStart.String(),
			"window_end":   r.windowEnd.String(),
			"days":         len(totals),
		}).Info("Persisted energy window")

	case store.MetricPower:
		samples, dropped := reconcile.ParsePowerRows(r.powerRows, s.cfg.PlantID, s.loc)
		if dropped > 0 {
			log.WithFields(logrus.Fields{
				"window_start": r.windowStart.String(),
				"dropped":      dropped,
			}).Warn("Dropped corrupt power rows")
			observability.RowsSkipped.WithLabelValues(plant, string(r.metric), "corrupt").Add(float64(dropped))
		}

		result, err := s.store.InsertPowerSamples(ctx, samples)
		if err != nil {
			return err
		}

		observability.RowsIngested.WithLabelValues(plant, string(r.metric)).Add(float64(result.Inserted))
		observability.DuplicatesSuppressed.WithLabelValues(plant, string(r.metric)).Add(float64(result.Duplicates))
		log.WithFields(logrus.Fields{
			"window_start": r.windowStart.String(),
			"window_end":   r.windowEnd.String(),
			"inserted":     result.Inserted,
			"duplicates":   result.Duplicates,
		}).Info("Persisted power window")
	}

	if err := s.store.WriteCursor(ctx, s.cfg.PlantID, r.metric, r.windowStart); err != nil {
		return err
	}

	observability.CursorPosition.WithLabelValues(plant, string(r.metric)).
		Set(float64(r.windowStart.UTCMidnight().Unix()))
	observability.WindowsProcessed.WithLabelValues(plant, string(r.metric)).Inc()

	r.state = stateAdvance

	return nil
}

// advance steps the anchor one day past the persisted window and pauses
// before the next fetch.
func (s *Service) advance(ctx context.Context, r *run) error {
	r.anchor = r.windowStart.AddDays(-1)
	r.powerRows = nil
	r.energyRows = nil

	if err := s.sleep(ctx, s.cfg.Pause); err != nil {
		return err
	}

	r.state = stateFetchWindow

	return nil
}

func (s *Service) plantLabel() string {
	return strconv.FormatInt(s.cfg.PlantID, 10)
}
