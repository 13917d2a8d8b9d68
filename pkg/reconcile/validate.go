package reconcile

import (
	"errors"
	"fmt"

	"github.com/solarwatch/solarwatch/pkg/growatt"
	"github.com/solarwatch/solarwatch/pkg/timewindow"
)

// Skip reasons for a single requested day's energy payload. Only the
// exactly-one-record, date-matching, non-negative case is accepted.
var (
	ErrEnergyMissing      = errors.New("no energy record returned")
	ErrEnergyAmbiguous    = errors.New("multiple energy records returned for a single day")
	ErrEnergyMalformed    = errors.New("energy record has unparseable date or value")
	ErrEnergyDateMismatch = errors.New("energy record date does not match requested day")
	ErrEnergyNegative     = errors.New("energy record reports a negative value")
)

// ValidateEnergyDay checks the payload returned for a single requested day
// and extracts the kWh figure. A true zero is accepted: an explicitly
// reported zero-energy day is still a valid outcome.
func ValidateEnergyDay(rows []growatt.EnergyRecord, requested timewindow.Day) (float64, error) {
	if len(rows) == 0 {
		return 0, ErrEnergyMissing
	}

	if len(rows) != 1 {
		return 0, fmt.Errorf("%w: got %d", ErrEnergyAmbiguous, len(rows))
	}

	row := rows[0]

	day, err := timewindow.ParseDay(row.Date)
	if err != nil {
		return 0, fmt.Errorf("%w: date %q", ErrEnergyMalformed, row.Date)
	}

	kwh, ok := row.Energy.Float()
	if !ok {
		return 0, fmt.Errorf("%w: energy %q", ErrEnergyMalformed, row.Energy.String())
	}

	if !day.Equal(requested) {
		return 0, fmt.Errorf("%w: got %s, requested %s", ErrEnergyDateMismatch, day, requested)
	}

	if kwh < 0 {
		return 0, fmt.Errorf("%w: %f", ErrEnergyNegative, kwh)
	}

	return kwh, nil
}
