package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/solarwatch/solarwatch/pkg/store"
	"github.com/solarwatch/solarwatch/pkg/timewindow"
)

// MemStore is an in-memory store.Store used by driver tests. It mirrors the
// real layer's semantics: duplicate power keys are suppressed and counted,
// daily energy is upsertable, cursors are last-writer-wins.
type MemStore struct {
	mu sync.Mutex

	power   map[string]store.PowerSample
	energy  map[string]store.DailyEnergy
	cursors map[string]store.Cursor

	// CursorWrites records every cursor write in order.
	CursorWrites []timewindow.Day

	// Error overrides for exercising escalation paths.
	InsertErr error
	UpsertErr error
	CursorErr error
}

var _ store.Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		power:   make(map[string]store.PowerSample),
		energy:  make(map[string]store.DailyEnergy),
		cursors: make(map[string]store.Cursor),
	}
}

func powerKey(plantID int64, ts time.Time) string {
	return fmt.Sprintf("%d|%d", plantID, ts.UnixNano())
}

func energyKey(plantID int64, day timewindow.Day) string {
	return fmt.Sprintf("%d|%s", plantID, day)
}

func cursorKey(plantID int64, metric store.Metric) string {
	return fmt.Sprintf("%d|%s", plantID, metric)
}

// UpsertDailyEnergy implements store.Store
func (m *MemStore) UpsertDailyEnergy(_ context.Context, doc store.DailyEnergy) error {
	if m.UpsertErr != nil {
		return m.UpsertErr
	}

	if doc.EnergyKWh < 0 {
		return store.ErrNegativeEnergy
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.energy[energyKey(doc.PlantID, doc.Date)] = doc

	return nil
}

// InsertPowerSamples implements store.Store
func (m *MemStore) InsertPowerSamples(_ context.Context, docs []store.PowerSample) (store.InsertResult, error) {
	var result store.InsertResult

	if m.InsertErr != nil {
		return result, m.InsertErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range docs {
		key := powerKey(doc.PlantID, doc.Timestamp)
		if _, exists := m.power[key]; exists {
			result.Duplicates++
			continue
		}
		m.power[key] = doc
		result.Inserted++
	}

	return result, nil
}

// ReadCursor implements store.Store
func (m *MemStore) ReadCursor(_ context.Context, plantID int64, metric store.Metric) (*store.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cursor, ok := m.cursors[cursorKey(plantID, metric)]
	if !ok {
		return nil, nil
	}

	return &cursor, nil
}

// WriteCursor implements store.Store
func (m *MemStore) WriteCursor(_ context.Context, plantID int64, metric store.Metric, lastDate timewindow.Day) error {
	if m.CursorErr != nil {
		return m.CursorErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cursors[cursorKey(plantID, metric)] = store.Cursor{
		PlantID:   plantID,
		Metric:    metric,
		LastDate:  lastDate,
		UpdatedAt: time.Now().UTC(),
	}
	m.CursorWrites = append(m.CursorWrites, lastDate)

	return nil
}

// PowerRange implements store.Store
func (m *MemStore) PowerRange(_ context.Context, plantID int64, from, to time.Time) ([]store.PowerSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var samples []store.PowerSample
	for _, s := range m.power {
		if s.PlantID == plantID && !s.Timestamp.Before(from) && !s.Timestamp.After(to) {
			samples = append(samples, s)
		}
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	return samples, nil
}

// EnergyRange implements store.Store
func (m *MemStore) EnergyRange(_ context.Context, plantID int64, from, to timewindow.Day) ([]store.DailyEnergy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var totals []store.DailyEnergy
	for _, e := range m.energy {
		if e.PlantID == plantID && !e.Date.Before(from) && !to.Before(e.Date) {
			totals = append(totals, e)
		}
	}

	sort.Slice(totals, func(i, j int) bool {
		return totals[i].Date.Before(totals[j].Date)
	})

	return totals, nil
}

// Setup implements store.Store
func (m *MemStore) Setup(_ context.Context) error { return nil }

// Start implements store.Store
func (m *MemStore) Start(_ context.Context) error { return nil }

// Stop implements store.Store
func (m *MemStore) Stop() error { return nil }

// PowerCount returns the number of stored power samples
func (m *MemStore) PowerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.power)
}

// EnergyDoc returns the stored daily energy for one day, if present
func (m *MemStore) EnergyDoc(plantID int64, day timewindow.Day) (store.DailyEnergy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.energy[energyKey(plantID, day)]

	return doc, ok
}

// DeleteCursor removes a cursor, simulating a stream with no prior runs
func (m *MemStore) DeleteCursor(plantID int64, metric store.Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cursors, cursorKey(plantID, metric))
}

// CursorDate returns the persisted cursor date, if present
func (m *MemStore) CursorDate(plantID int64, metric store.Metric) (timewindow.Day, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cursor, ok := m.cursors[cursorKey(plantID, metric)]

	return cursor.LastDate, ok
}
