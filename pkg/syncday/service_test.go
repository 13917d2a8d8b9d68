package syncday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarwatch/solarwatch/internal/testutil"
	"github.com/solarwatch/solarwatch/pkg/growatt"
	"github.com/solarwatch/solarwatch/pkg/store"
	"github.com/solarwatch/solarwatch/pkg/timewindow"
)

type fakeClient struct {
	fetchPowerDay func(plantID int64, day timewindow.Day) ([]growatt.PowerPoint, error)
	fetchEnergy   func(plantID int64, start, end timewindow.Day) ([]growatt.EnergyRecord, error)
}

func (f *fakeClient) FetchPowerDay(_ context.Context, plantID int64, day timewindow.Day) ([]growatt.PowerPoint, error) {
	return f.fetchPowerDay(plantID, day)
}

func (f *fakeClient) FetchEnergyRange(_ context.Context, plantID int64, start, end timewindow.Day) ([]growatt.EnergyRecord, error) {
	return f.fetchEnergy(plantID, start, end)
}

func (f *fakeClient) Start() error { return nil }
func (f *fakeClient) Stop() error  { return nil }

var testDay = timewindow.Day{Year: 2025, Month: time.June, DayOfMonth: 15}

func energyPayload(t *testing.T, date string, energy float64) []growatt.EnergyRecord {
	t.Helper()

	var rows []growatt.EnergyRecord
	payload := fmt.Sprintf(`[{"date": %q, "energy": %g}]`, date, energy)
	require.NoError(t, json.Unmarshal([]byte(payload), &rows))

	return rows
}

func fullPowerDay(watts float64) []growatt.PowerPoint {
	rows := make([]growatt.PowerPoint, 288)
	for i := range rows {
		w := watts
		ts := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 5 * time.Minute)
		rows[i] = growatt.PowerPoint{Time: ts.Format("2006-01-02 15:04:05"), Power: &w}
	}

	return rows
}

func newTestService(t *testing.T, client growatt.ClientInterface, st store.Store) *Service {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	svc, err := NewService(log, &Config{PlantID: 42, Timezone: "UTC"}, client, st)
	require.NoError(t, err)

	svc.sleep = func(context.Context, time.Duration) error { return nil }

	return svc
}

func TestRun_PersistsBothSignals(t *testing.T) {
	st := testutil.NewMemStore()

	client := &fakeClient{
		fetchEnergy: func(_ int64, start, end timewindow.Day) ([]growatt.EnergyRecord, error) {
			assert.Equal(t, testDay, start)
			assert.Equal(t, testDay, end)

			return energyPayload(t, "2025-06-15", 24.0), nil
		},
		fetchPowerDay: func(_ int64, _ timewindow.Day) ([]growatt.PowerPoint, error) {
			return fullPowerDay(1000), nil
		},
	}

	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), testDay))

	doc, ok := st.EnergyDoc(42, testDay)
	require.True(t, ok)
	assert.InDelta(t, 24.0, doc.EnergyKWh, 1e-9)
	assert.Equal(t, 288, st.PowerCount())
}

func TestRun_Idempotent(t *testing.T) {
	st := testutil.NewMemStore()

	client := &fakeClient{
		fetchEnergy: func(_ int64, _, _ timewindow.Day) ([]growatt.EnergyRecord, error) {
			return energyPayload(t, "2025-06-15", 24.0), nil
		},
		fetchPowerDay: func(_ int64, _ timewindow.Day) ([]growatt.PowerPoint, error) {
			return fullPowerDay(1000), nil
		},
	}

	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), testDay))
	require.NoError(t, svc.Run(context.Background(), testDay))

	// Second run changed nothing: same sample set, same energy value.
	assert.Equal(t, 288, st.PowerCount())
	doc, ok := st.EnergyDoc(42, testDay)
	require.True(t, ok)
	assert.InDelta(t, 24.0, doc.EnergyKWh, 1e-9)
}

func TestRun_EnergyRejectedPowerStillIngested(t *testing.T) {
	tests := []struct {
		name    string
		payload func(t *testing.T) []growatt.EnergyRecord
	}{
		{
			name: "zero records",
			payload: func(*testing.T) []growatt.EnergyRecord {
				return nil
			},
		},
		{
			name: "date mismatch",
			payload: func(t *testing.T) []growatt.EnergyRecord {
				return energyPayload(t, "2025-06-14", 24.0)
			},
		},
		{
			name: "negative value",
			payload: func(t *testing.T) []growatt.EnergyRecord {
				return energyPayload(t, "2025-06-15", -2.0)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testutil.NewMemStore()

			client := &fakeClient{
				fetchEnergy: func(_ int64, _, _ timewindow.Day) ([]growatt.EnergyRecord, error) {
					return tt.payload(t), nil
				},
				fetchPowerDay: func(_ int64, _ timewindow.Day) ([]growatt.PowerPoint, error) {
					return fullPowerDay(800), nil
				},
			}

			svc := newTestService(t, client, st)
			require.NoError(t, svc.Run(context.Background(), testDay))

			_, ok := st.EnergyDoc(42, testDay)
			assert.False(t, ok, "rejected energy must not be stored")
			assert.Equal(t, 288, st.PowerCount(), "power ingestion proceeds independently")
		})
	}
}

func TestRun_AllZeroPowerSkipped(t *testing.T) {
	st := testutil.NewMemStore()

	client := &fakeClient{
		fetchEnergy: func(_ int64, _, _ timewindow.Day) ([]growatt.EnergyRecord, error) {
			return energyPayload(t, "2025-06-15", 0), nil
		},
		fetchPowerDay: func(_ int64, _ timewindow.Day) ([]growatt.PowerPoint, error) {
			zero := 0.0

			return []growatt.PowerPoint{
				{Time: "2025-06-15 10:00:00", Power: &zero},
				{Time: "2025-06-15 10:05:00", Power: nil},
			}, nil
		},
	}

	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), testDay))

	// The explicit zero-energy day is stored; the unusable power day is not.
	doc, ok := st.EnergyDoc(42, testDay)
	require.True(t, ok)
	assert.Zero(t, doc.EnergyKWh)
	assert.Zero(t, st.PowerCount())
}

func TestRun_StrayRowsOutsideDayDropped(t *testing.T) {
	st := testutil.NewMemStore()

	client := &fakeClient{
		fetchEnergy: func(_ int64, _, _ timewindow.Day) ([]growatt.EnergyRecord, error) {
			return energyPayload(t, "2025-06-15", 24.0), nil
		},
		fetchPowerDay: func(_ int64, _ timewindow.Day) ([]growatt.PowerPoint, error) {
			w := 640.0

			// Two rows dated outside the requested day sneak into the payload.
			return append(fullPowerDay(1000),
				growatt.PowerPoint{Time: "2025-06-14 23:55:00", Power: &w},
				growatt.PowerPoint{Time: "2025-06-16 00:00:00", Power: &w},
			), nil
		},
	}

	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), testDay))

	// Only the day's own samples survive.
	assert.Equal(t, 288, st.PowerCount())
}

func TestRun_UpstreamFailuresEndCleanly(t *testing.T) {
	st := testutil.NewMemStore()

	client := &fakeClient{
		fetchEnergy: func(_ int64, _, _ timewindow.Day) ([]growatt.EnergyRecord, error) {
			return nil, &growatt.UpstreamError{Endpoint: "plant/energy", Transient: true, Err: errors.New("timeout")}
		},
		fetchPowerDay: func(_ int64, _ timewindow.Day) ([]growatt.PowerPoint, error) {
			return nil, &growatt.UpstreamError{Endpoint: "plant/power", Transient: true, Err: errors.New("timeout")}
		},
	}

	svc := newTestService(t, client, st)
	assert.NoError(t, svc.Run(context.Background(), testDay))
	assert.Zero(t, st.PowerCount())
}

func TestRun_StoreFailurePropagates(t *testing.T) {
	st := testutil.NewMemStore()
	st.UpsertErr = errors.New("schema mismatch")

	client := &fakeClient{
		fetchEnergy: func(_ int64, _, _ timewindow.Day) ([]growatt.EnergyRecord, error) {
			return energyPayload(t, "2025-06-15", 24.0), nil
		},
		fetchPowerDay: func(_ int64, _ timewindow.Day) ([]growatt.PowerPoint, error) {
			return fullPowerDay(1000), nil
		},
	}

	svc := newTestService(t, client, st)
	assert.Error(t, svc.Run(context.Background(), testDay))
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Config{Timezone: "UTC"}).Validate(), ErrPlantIDRequired)
	assert.ErrorIs(t, (&Config{PlantID: 1, Timezone: "Nowhere/Nope"}).Validate(), ErrBadTimezone)
	assert.NoError(t, (&Config{PlantID: 1, Timezone: "Asia/Kolkata"}).Validate())
}
