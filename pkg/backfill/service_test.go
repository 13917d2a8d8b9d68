package backfill

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

// fakeClient scripts upstream responses per call
type fakeClient struct {
	fetchPowerDay  func(plantID int64, day timewindow.Day) ([]growatt.PowerPoint, error)
	fetchEnergy    func(plantID int64, start, end timewindow.Day) ([]growatt.EnergyRecord, error)
	powerRequests  []timewindow.Day
	energyRequests [][2]timewindow.Day
}

func (f *fakeClient) FetchPowerDay(_ context.Context, plantID int64, day timewindow.Day) ([]growatt.PowerPoint, error) {
	f.powerRequests = append(f.powerRequests, day)

	return f.fetchPowerDay(plantID, day)
}

func (f *fakeClient) FetchEnergyRange(_ context.Context, plantID int64, start, end timewindow.Day) ([]growatt.EnergyRecord, error) {
	f.energyRequests = append(f.energyRequests, [2]timewindow.Day{start, end})

	return f.fetchEnergy(plantID, start, end)
}

func (f *fakeClient) Start() error { return nil }
func (f *fakeClient) Stop() error  { return nil }

func day(y int, m time.Month, d int) timewindow.Day {
	return timewindow.Day{Year: y, Month: m, DayOfMonth: d}
}

func energyWindow(t *testing.T, start, end timewindow.Day, kwh float64) []growatt.EnergyRecord {
	t.Helper()

	var payload string
	for _, d := range timewindow.DaysInWindow(start, end) {
		if payload != "" {
			payload += ","
		}
		payload += fmt.Sprintf(`{"date": %q, "energy": %g}`, d.String(), kwh)
	}

	var rows []growatt.EnergyRecord
	require.NoError(t, json.Unmarshal([]byte("["+payload+"]"), &rows))

	return rows
}

func powerDay(d timewindow.Day, watts float64) []growatt.PowerPoint {
	w := watts

	return []growatt.PowerPoint{
		{Time: d.String() + " 10:00:00", Power: &w},
		{Time: d.String() + " 10:05:00", Power: &w},
	}
}

func newTestService(t *testing.T, client growatt.ClientInterface, st store.Store) *Service {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	svc, err := NewService(log, &Config{PlantID: 42, Timezone: "UTC"}, client, st)
	require.NoError(t, err)

	// Freeze time and skip real pauses.
	svc.now = func() time.Time {
		return time.Date(2025, time.June, 16, 12, 0, 0, 0, time.UTC)
	}
	svc.sleep = func(context.Context, time.Duration) error { return nil }

	return svc
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:   "valid",
			config: Config{PlantID: 42, WindowDays: 7, Timezone: "Asia/Kolkata"},
		},
		{
			name:    "missing plant",
			config:  Config{WindowDays: 7, Timezone: "UTC"},
			wantErr: ErrPlantIDRequired,
		},
		{
			name:    "bad window",
			config:  Config{PlantID: 42, WindowDays: -1, Timezone: "UTC"},
			wantErr: ErrBadWindowDays,
		},
		{
			name:    "bad timezone",
			config:  Config{PlantID: 42, WindowDays: 7, Timezone: "Mars/Olympus"},
			wantErr: ErrBadTimezone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewService_AppliesDefaultsBeforeValidating(t *testing.T) {
	// A config carrying only the required plant ID must construct cleanly:
	// window size, pauses, and timezone all come from defaults.
	cfg := &Config{PlantID: 42}

	svc, err := NewService(logrus.New(), cfg, &fakeClient{}, testutil.NewMemStore())
	require.NoError(t, err)
	require.NotNil(t, svc)

	assert.Equal(t, 7, cfg.WindowDays)
	assert.Equal(t, 5*time.Second, cfg.Pause)
	assert.Equal(t, 15*time.Second, cfg.RetryPause)
	assert.Equal(t, "Asia/Kolkata", cfg.Timezone)
}

func TestRun_EnergyBackfillWalksBackward(t *testing.T) {
	st := testutil.NewMemStore()

	// Yesterday (relative to the frozen clock) is 2025-06-15, so the first
	// window is 2025-06-09..15 and the second 2025-06-02..08.
	firstStart, firstEnd := day(2025, time.June, 9), day(2025, time.June, 15)
	secondStart, secondEnd := day(2025, time.June, 2), day(2025, time.June, 8)

	client := &fakeClient{}
	client.fetchEnergy = func(_ int64, start, end timewindow.Day) ([]growatt.EnergyRecord, error) {
		switch {
		case start.Equal(firstStart) && end.Equal(firstEnd):
			return energyWindow(t, start, end, 20.5), nil
		case start.Equal(secondStart) && end.Equal(secondEnd):
			return nil, nil // upstream exhausted
		default:
			return nil, fmt.Errorf("unexpected window %s..%s", start, end)
		}
	}

	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), store.MetricEnergy))

	// Seven days persisted from the first window.
	totals, err := st.EnergyRange(context.Background(), 42, firstStart, firstEnd)
	require.NoError(t, err)
	assert.Len(t, totals, 7)

	// Cursor sits at the first window's start; the empty second window wrote
	// no cursor of its own.
	cursorDate, ok := st.CursorDate(42, store.MetricEnergy)
	require.True(t, ok)
	assert.Equal(t, firstStart, cursorDate)
	assert.Equal(t, []timewindow.Day{firstStart}, st.CursorWrites)
}

func TestRun_ResumesFromCursor(t *testing.T) {
	st := testutil.NewMemStore()
	cursorAt := day(2025, time.June, 10)
	require.NoError(t, st.WriteCursor(context.Background(), 42, store.MetricEnergy, cursorAt))
	st.CursorWrites = nil

	client := &fakeClient{}
	client.fetchEnergy = func(_ int64, _, _ timewindow.Day) ([]growatt.EnergyRecord, error) {
		return nil, nil // stop immediately; we only care about the request
	}

	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), store.MetricEnergy))

	// First window ends the day before the cursor and never re-requests
	// the cursor date or anything later.
	require.Len(t, client.energyRequests, 1)
	assert.Equal(t, day(2025, time.June, 9), client.energyRequests[0][1])
	assert.Equal(t, day(2025, time.June, 3), client.energyRequests[0][0])
	assert.True(t, client.energyRequests[0][1].Before(cursorAt))
}

func TestRun_AllZeroWindowStops(t *testing.T) {
	st := testutil.NewMemStore()

	client := &fakeClient{}
	client.fetchEnergy = func(_ int64, start, end timewindow.Day) ([]growatt.EnergyRecord, error) {
		return energyWindow(t, start, end, 0), nil
	}

	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), store.MetricEnergy))

	require.Len(t, client.energyRequests, 1)
	_, ok := st.CursorDate(42, store.MetricEnergy)
	assert.False(t, ok, "all-zero window must not write a cursor")
}

func TestRun_MalformedEnergyWindowContinues(t *testing.T) {
	st := testutil.NewMemStore()

	firstStart, firstEnd := day(2025, time.June, 9), day(2025, time.June, 15)

	client := &fakeClient{}
	client.fetchEnergy = func(_ int64, _, end timewindow.Day) ([]growatt.EnergyRecord, error) {
		if end.Equal(firstEnd) {
			var rows []growatt.EnergyRecord
			require.NoError(t, json.Unmarshal([]byte(`[
				{"date": "2025-06-14", "energy": "abc"},
				{"date": "2025-06-15", "energy": "n/a"}
			]`), &rows))

			return rows, nil
		}

		return nil, nil // next window: upstream exhausted
	}

	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), store.MetricEnergy))

	// Corrupt values are dropped, not mistaken for the edge of history: the
	// cursor advances past the window and the walk requests the next one.
	require.Len(t, client.energyRequests, 2)

	cursorDate, ok := st.CursorDate(42, store.MetricEnergy)
	require.True(t, ok)
	assert.Equal(t, firstStart, cursorDate)

	totals, err := st.EnergyRange(context.Background(), 42, firstStart, firstEnd)
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func TestRun_TransientErrorRetriesSameWindow(t *testing.T) {
	st := testutil.NewMemStore()

	calls := 0
	client := &fakeClient{}
	client.fetchEnergy = func(_ int64, start, end timewindow.Day) ([]growatt.EnergyRecord, error) {
		calls++
		if calls <= 2 {
			return nil, &growatt.UpstreamError{Endpoint: "plant/energy", Transient: true, Err: errors.New("timeout")}
		}

		return nil, nil // stop after the retries succeed
	}

	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), store.MetricEnergy))

	assert.Equal(t, 3, calls)

	// All three calls requested the identical window.
	require.Len(t, client.energyRequests, 3)
	assert.Equal(t, client.energyRequests[0], client.energyRequests[1])
	assert.Equal(t, client.energyRequests[1], client.energyRequests[2])
}

func TestRun_NonTransientErrorAborts(t *testing.T) {
	st := testutil.NewMemStore()

	client := &fakeClient{}
	client.fetchEnergy = func(_ int64, _, _ timewindow.Day) ([]growatt.EnergyRecord, error) {
		return nil, &growatt.UpstreamError{Endpoint: "plant/energy", ErrorCode: 10001, Message: "token error"}
	}

	svc := newTestService(t, client, st)
	err := svc.Run(context.Background(), store.MetricEnergy)
	require.Error(t, err)

	_, ok := st.CursorDate(42, store.MetricEnergy)
	assert.False(t, ok)
}

func TestRun_PowerBackfillFetchesEachDay(t *testing.T) {
	st := testutil.NewMemStore()

	firstStart, firstEnd := day(2025, time.June, 9), day(2025, time.June, 15)

	client := &fakeClient{}
	client.fetchPowerDay = func(_ int64, d timewindow.Day) ([]growatt.PowerPoint, error) {
		if d.Before(firstStart) {
			return nil, nil // second window: upstream exhausted
		}

		return powerDay(d, 850), nil
	}

	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), store.MetricPower))

	// First window: 7 day fetches; second window stops after 7 empty days.
	assert.Len(t, client.powerRequests, 14)
	assert.Equal(t, firstStart, client.powerRequests[0])
	assert.Equal(t, firstEnd, client.powerRequests[6])

	// Two samples per day over seven days.
	assert.Equal(t, 14, st.PowerCount())

	cursorDate, ok := st.CursorDate(42, store.MetricPower)
	require.True(t, ok)
	assert.Equal(t, firstStart, cursorDate)
}

func TestRun_PowerAllNullWindowStops(t *testing.T) {
	st := testutil.NewMemStore()

	client := &fakeClient{}
	client.fetchPowerDay = func(_ int64, d timewindow.Day) ([]growatt.PowerPoint, error) {
		return []growatt.PowerPoint{{Time: d.String() + " 10:00:00", Power: nil}}, nil
	}

	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), store.MetricPower))

	assert.Zero(t, st.PowerCount())
	_, ok := st.CursorDate(42, store.MetricPower)
	assert.False(t, ok)
}

func TestRun_CorruptRowsDroppedWindowPersisted(t *testing.T) {
	st := testutil.NewMemStore()

	firstStart := day(2025, time.June, 9)

	client := &fakeClient{}
	client.fetchPowerDay = func(_ int64, d timewindow.Day) ([]growatt.PowerPoint, error) {
		if d.Before(firstStart) {
			return nil, nil
		}

		w := 900.0

		return []growatt.PowerPoint{
			{Time: d.String() + " 10:00:00", Power: &w},
			{Time: "garbage", Power: &w}, // dropped, window not aborted
		}, nil
	}

	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), store.MetricPower))

	assert.Equal(t, 7, st.PowerCount())
	_, ok := st.CursorDate(42, store.MetricPower)
	assert.True(t, ok)
}

func TestRun_RerunOverSameWindowIsIdempotent(t *testing.T) {
	st := testutil.NewMemStore()

	firstStart := day(2025, time.June, 9)

	fetch := func(_ int64, d timewindow.Day) ([]growatt.PowerPoint, error) {
		if d.Before(firstStart) {
			return nil, nil
		}

		return powerDay(d, 500), nil
	}

	client := &fakeClient{fetchPowerDay: fetch}
	svc := newTestService(t, client, st)
	require.NoError(t, svc.Run(context.Background(), store.MetricPower))
	countAfterFirst := st.PowerCount()

	// Drop the cursor and replay the same windows: every row is a duplicate
	// and nothing changes.
	st.DeleteCursor(42, store.MetricPower)
	require.NoError(t, svc.Run(context.Background(), store.MetricPower))

	assert.Equal(t, countAfterFirst, st.PowerCount())
}

func TestRun_InvalidMetric(t *testing.T) {
	svc := newTestService(t, &fakeClient{}, testutil.NewMemStore())

	err := svc.Run(context.Background(), store.Metric("voltage"))
	assert.ErrorIs(t, err, store.ErrInvalidMetric)
}

func TestRun_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestService(t, &fakeClient{}, testutil.NewMemStore())
	err := svc.Run(ctx, store.MetricPower)
	assert.ErrorIs(t, err, context.Canceled)
}
