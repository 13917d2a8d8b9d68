// Package reconcile validates untrusted upstream payloads and cross-checks
// the two independently reported energy signals: power samples integrated
// over the day versus the API's own daily total.
package reconcile

import (
	"time"

	"github.com/solarwatch/solarwatch/pkg/growatt"
	"github.com/solarwatch/solarwatch/pkg/store"
	"github.com/solarwatch/solarwatch/pkg/timewindow"
)

const (
	// SampleIntervalHours is the upstream sampling interval (5 minutes).
	SampleIntervalHours = 5.0 / 60.0

	// DefaultToleranceKWh is the disagreement threshold between the
	// integrated and the reported daily energy.
	DefaultToleranceKWh = 1.0

	// powerTimeLayout is the local-naive timestamp format of power rows.
	powerTimeLayout = "2006-01-02 15:04:05"
)

// IntegrateEnergy computes kWh from power samples assumed uniformly spaced
// intervalHours apart, using the rectangle rule.
func IntegrateEnergy(samples []store.PowerSample, intervalHours float64) float64 {
	var totalWh float64
	for _, s := range samples {
		totalWh += s.PowerW * intervalHours
	}

	return totalWh / 1000.0
}

// Result is the outcome of comparing the two energy figures for one day.
type Result struct {
	CalculatedKWh float64
	ReportedKWh   float64
	DeltaKWh      float64
	Agreement     bool
}

// Reconcile flags disagreement when |calculated - reported| exceeds the
// tolerance. A discrepancy is informational only: either signal may be
// independently correct, so ingestion of both proceeds regardless.
func Reconcile(calculatedKWh, reportedKWh, toleranceKWh float64) Result {
	delta := calculatedKWh - reportedKWh
	if delta < 0 {
		delta = -delta
	}

	return Result{
		CalculatedKWh: calculatedKWh,
		ReportedKWh:   reportedKWh,
		DeltaKWh:      delta,
		Agreement:     delta <= toleranceKWh,
	}
}

// ParsePowerRows converts raw power points for one local day into samples.
// Timestamps are local-naive in loc and normalized to UTC. A nil power is
// coerced to 0.0 W; a row with an unparseable timestamp is dropped and
// counted. Rows are never silently discarded for a bad value alone.
func ParsePowerRows(rows []growatt.PowerPoint, plantID int64, loc *time.Location) (samples []store.PowerSample, dropped int) {
	for _, row := range rows {
		ts, err := time.ParseInLocation(powerTimeLayout, row.Time, loc)
		if err != nil {
			dropped++
			continue
		}

		var powerW float64
		if row.Power != nil {
			powerW = *row.Power
		}

		samples = append(samples, store.PowerSample{
			PlantID:   plantID,
			Timestamp: ts.UTC(),
			PowerW:    powerW,
		})
	}

	return samples, dropped
}

// AllZeroOrNullPower reports whether every row carries a nil or zero power
// value. Such a day has no usable power data: it is skipped during sync and
// marks the edge of meaningful history during backfill.
func AllZeroOrNullPower(rows []growatt.PowerPoint) bool {
	for _, row := range rows {
		if row.Power != nil && *row.Power != 0 {
			return false
		}
	}

	return true
}

// AllZeroOrNullEnergy reports whether every energy row is absent or exactly
// zero. Backfill stop condition for the energy stream. Malformed values do
// not count: they are corrupt rows to be dropped, not evidence that the
// plant's history has ended.
func AllZeroOrNullEnergy(rows []growatt.EnergyRecord) bool {
	for _, row := range rows {
		if !row.Energy.IsZeroOrAbsent() {
			return false
		}
	}

	return true
}

// ParseEnergyRows converts raw energy-history rows into daily totals.
// Corrupt rows (unparseable date or value) and negative values are dropped
// and counted; the window is never aborted for a bad row.
func ParseEnergyRows(rows []growatt.EnergyRecord, plantID int64) (totals []store.DailyEnergy, dropped int) {
	for _, row := range rows {
		day, err := timewindow.ParseDay(row.Date)
		if err != nil {
			dropped++
			continue
		}

		kwh, ok := row.Energy.Float()
		if !ok || kwh < 0 {
			dropped++
			continue
		}

		totals = append(totals, store.DailyEnergy{
			PlantID:   plantID,
			Date:      day,
			EnergyKWh: kwh,
		})
	}

	return totals, dropped
}
