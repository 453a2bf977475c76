package geofence

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-data/skywatch/internal/aggregator"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// squareFence covers lat 33..34, lon 35..36.
func squareFence(id int64, dwell time.Duration) Geofence {
	return Geofence{
		ID: id, Name: "test area", Active: true,
		DwellThreshold: dwell,
		AlertOnEntry:   true, AlertOnDwell: true, AlertOnExit: true,
		Polygon: orb.Polygon{orb.Ring{
			{35, 33}, {36, 33}, {36, 34}, {35, 34}, {35, 33},
		}},
	}
}

type memStore struct {
	fences []Geofence
	states map[string]*State
	alerts []Alert
}

func stateKey(id int64, hex string) string {
	return hex + "/" + string(rune('0'+id))
}

func newMemStore(fences ...Geofence) *memStore {
	return &memStore{fences: fences, states: map[string]*State{}}
}

func (m *memStore) ActiveGeofences(ctx context.Context) ([]Geofence, error) {
	return m.fences, nil
}

func (m *memStore) GeofenceStates(ctx context.Context) ([]State, error) {
	var out []State
	for _, s := range m.states {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memStore) SaveGeofenceState(ctx context.Context, s *State) error {
	cp := *s
	m.states[stateKey(s.GeofenceID, s.Hex)] = &cp
	return nil
}

func (m *memStore) DeleteGeofenceState(ctx context.Context, id int64, hex string) error {
	delete(m.states, stateKey(id, hex))
	return nil
}

func (m *memStore) InsertGeofenceAlert(ctx context.Context, a *Alert) error {
	m.alerts = append(m.alerts, *a)
	return nil
}

func pos(hex string, lat, lon float64, at time.Time) model.Position {
	return model.Position{Hex: hex, Lat: lat, Lon: lon, Time: at}
}

func alertTypes(alerts []Alert) []string {
	var out []string
	for _, a := range alerts {
		out = append(out, a.Type)
	}
	return out
}

func TestDwellScenario(t *testing.T) {
	// Acceptance scenario: dwell threshold 300 s, positions inside at t=0,
	// t=120 and t=360. One entry alert, one dwell alert.
	store := newMemStore(squareFence(1, 300*time.Second))
	clock := timeutil.NewManualClock(t0)
	mon := NewMonitor(store, Config{}, clock)
	ctx := context.Background()

	a1, err := mon.Evaluate(ctx, []model.Position{pos("AE01CE", 33.5, 35.5, clock.Now())}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{AlertEntry}, alertTypes(a1))

	clock.Advance(120 * time.Second)
	a2, err := mon.Evaluate(ctx, []model.Position{pos("AE01CE", 33.5, 35.5, clock.Now())}, nil)
	require.NoError(t, err)
	assert.Empty(t, a2, "under the dwell threshold")

	clock.Advance(240 * time.Second)
	a3, err := mon.Evaluate(ctx, []model.Position{pos("AE01CE", 33.5, 35.5, clock.Now())}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{AlertDwell}, alertTypes(a3))
	assert.Equal(t, StateDwelling, store.states[stateKey(1, "AE01CE")].State)
}

func TestRepeatedEvaluationIsIdempotent(t *testing.T) {
	store := newMemStore(squareFence(1, time.Hour))
	clock := timeutil.NewManualClock(t0)
	mon := NewMonitor(store, Config{}, clock)
	ctx := context.Background()

	batch := []model.Position{pos("AE01CE", 33.5, 35.5, t0)}
	_, err := mon.Evaluate(ctx, batch, nil)
	require.NoError(t, err)

	clock.Advance(time.Second)
	again, err := mon.Evaluate(ctx, batch, nil)
	require.NoError(t, err)
	assert.Empty(t, again, "same inside-set must not re-alert")
	assert.Len(t, store.alerts, 1)
}

func TestExitAlert(t *testing.T) {
	store := newMemStore(squareFence(1, time.Hour))
	clock := timeutil.NewManualClock(t0)
	mon := NewMonitor(store, Config{}, clock)
	ctx := context.Background()

	_, err := mon.Evaluate(ctx, []model.Position{pos("AE01CE", 33.5, 35.5, clock.Now())}, nil)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	alerts, err := mon.Evaluate(ctx, []model.Position{pos("AE01CE", 33.5, 37.0, clock.Now())}, nil)
	require.NoError(t, err)

	require.Equal(t, []string{AlertExit}, alertTypes(alerts))
	assert.Equal(t, SeverityLow, alerts[0].Severity)
	assert.Empty(t, store.states)
}

func TestUnobservedAircraftKeepsStateUntilStale(t *testing.T) {
	store := newMemStore(squareFence(1, time.Hour))
	clock := timeutil.NewManualClock(t0)
	mon := NewMonitor(store, Config{}, clock)
	ctx := context.Background()

	_, err := mon.Evaluate(ctx, []model.Position{pos("AE01CE", 33.5, 35.5, clock.Now())}, nil)
	require.NoError(t, err)

	// Dropped off coverage: no exit alert, state held.
	clock.Advance(5 * time.Minute)
	alerts, err := mon.Evaluate(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Len(t, store.states, 1)

	// Past the stale window the state reverts silently.
	clock.Advance(DefaultStaleAfter)
	alerts, err = mon.Evaluate(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Empty(t, store.states)
}

func TestHighPrioritySeverity(t *testing.T) {
	store := newMemStore(squareFence(1, time.Hour))
	clock := timeutil.NewManualClock(t0)
	mon := NewMonitor(store, Config{}, clock)

	cats := map[string]aggregator.Category{"AE01CE": aggregator.CategoryFighter}
	alerts, err := mon.Evaluate(context.Background(),
		[]model.Position{pos("AE01CE", 33.5, 35.5, t0)}, cats)
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, AlertEntry, alerts[0].Type)
	assert.Equal(t, SeverityHigh, alerts[0].Severity)
}

func TestLongDwellThresholdIsHighSeverity(t *testing.T) {
	store := newMemStore(squareFence(1, 2000*time.Second))
	clock := timeutil.NewManualClock(t0)
	mon := NewMonitor(store, Config{}, clock)
	ctx := context.Background()

	_, err := mon.Evaluate(ctx, []model.Position{pos("AE01CE", 33.5, 35.5, clock.Now())}, nil)
	require.NoError(t, err)

	clock.Advance(2001 * time.Second)
	alerts, err := mon.Evaluate(ctx, []model.Position{pos("AE01CE", 33.5, 35.5, clock.Now())}, nil)
	require.NoError(t, err)

	require.Equal(t, []string{AlertDwell}, alertTypes(alerts))
	assert.Equal(t, SeverityHigh, alerts[0].Severity)
}
