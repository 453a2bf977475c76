package calibration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-data/skywatch/internal/timeutil"
)

type memStore struct {
	params     map[string]*Params
	outcomes   []Outcome
	nextID     int64
	thresholds map[string]*Threshold
}

func newMemStore() *memStore {
	return &memStore{
		params:     map[string]*Params{},
		thresholds: map[string]*Threshold{},
		nextID:     1,
	}
}

func (m *memStore) GetCalibration(ctx context.Context, task string) (*Params, error) {
	return m.params[task], nil
}

func (m *memStore) SaveCalibration(ctx context.Context, p *Params) error {
	cp := *p
	m.params[p.TaskType] = &cp
	return nil
}

func (m *memStore) InsertOutcome(ctx context.Context, o *Outcome) error {
	o.ID = m.nextID
	m.nextID++
	m.outcomes = append(m.outcomes, *o)
	return nil
}

func (m *memStore) VerifyOutcome(ctx context.Context, id int64, truth bool) error {
	for i := range m.outcomes {
		if m.outcomes[i].ID == id {
			m.outcomes[i].Verified = true
			m.outcomes[i].Truth = truth
		}
	}
	return nil
}

func (m *memStore) VerifiedOutcomes(ctx context.Context, task string, limit int) ([]Outcome, error) {
	var out []Outcome
	for _, o := range m.outcomes {
		if o.TaskType == task && o.Verified && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) GetThreshold(ctx context.Context, task, name string) (*Threshold, error) {
	return m.thresholds[task+"/"+name], nil
}

func (m *memStore) SaveThreshold(ctx context.Context, t *Threshold) error {
	cp := *t
	m.thresholds[t.TaskType+"/"+t.Name] = &cp
	return nil
}

var clock = timeutil.NewManualClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))

func TestCalibrateIsIdentityUntrained(t *testing.T) {
	c := NewCalibrator(newMemStore(), clock)
	got, err := c.Calibrate(context.Background(), "anomaly", 0.73)
	require.NoError(t, err)
	assert.Equal(t, 0.73, got)
}

func TestCalibrateIsIdentityUnderSampleFloor(t *testing.T) {
	store := newMemStore()
	store.params["anomaly"] = &Params{TaskType: "anomaly", A: -8, B: 4, SampleCount: 49}
	c := NewCalibrator(store, clock)

	got, err := c.Calibrate(context.Background(), "anomaly", 0.73)
	require.NoError(t, err)
	assert.Equal(t, 0.73, got)
}

// seedOutcomes records n outcomes with raw scores spread over [0,1] where
// the truth is simply raw > 0.5.
func seedOutcomes(t *testing.T, c *Calibrator, store *memStore, task string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		raw := float64(i) / float64(n-1)
		require.NoError(t, c.RecordOutcome(ctx, task, raw))
		require.NoError(t, c.VerifyOutcome(ctx, int64(i+1), raw > 0.5))
	}
}

func TestTrainFitsMonotonicCurve(t *testing.T) {
	store := newMemStore()
	c := NewCalibrator(store, clock)
	seedOutcomes(t, c, store, "anomaly", 200)

	params, err := c.Train(context.Background(), "anomaly")
	require.NoError(t, err)
	require.NotNil(t, params)
	assert.Equal(t, 200, params.SampleCount)
	assert.GreaterOrEqual(t, params.ECE, 0.0)
	assert.Less(t, params.ECE, 0.5)

	ctx := context.Background()
	lo, err := c.Calibrate(ctx, "anomaly", 0.1)
	require.NoError(t, err)
	mid, err := c.Calibrate(ctx, "anomaly", 0.5)
	require.NoError(t, err)
	hi, err := c.Calibrate(ctx, "anomaly", 0.9)
	require.NoError(t, err)

	assert.Less(t, lo, mid)
	assert.Less(t, mid, hi)
	assert.Less(t, lo, 0.3)
	assert.Greater(t, hi, 0.7)
}

func TestTrainSkipsSparseTasks(t *testing.T) {
	store := newMemStore()
	c := NewCalibrator(store, clock)
	seedOutcomes(t, c, store, "anomaly", 10)

	params, err := c.Train(context.Background(), "anomaly")
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestThresholdDefaults(t *testing.T) {
	m := NewThresholds(newMemStore())
	exceeds, conf, err := m.Apply(context.Background(), "anomaly", "altitude", 0.8)
	require.NoError(t, err)
	assert.True(t, exceeds) // default boundary is 0.5
	assert.InDelta(t, (0.8-0.5)/0.5, conf, 1e-9)

	under, conf2, err := m.Apply(context.Background(), "anomaly", "altitude", 0.3)
	require.NoError(t, err)
	assert.False(t, under)
	assert.InDelta(t, 0.4, conf2, 1e-9)
}

func TestThresholdUpdateMovesTowardMode(t *testing.T) {
	store := newMemStore()
	m := NewThresholds(store)
	ctx := context.Background()

	var th *Threshold
	var err error
	for i := 0; i < 20; i++ {
		th, err = m.Update(ctx, "anomaly", "altitude", true, true)
		require.NoError(t, err)
	}

	assert.Equal(t, 20, th.TP)
	assert.Equal(t, initialAlpha+20, th.Alpha)
	assert.Equal(t, initialBeta, th.Beta)
	assert.Greater(t, th.Current, defaultThresholdValue)
	assert.LessOrEqual(t, th.Current, th.Max)
}

func TestThresholdStaysInDeclaredRange(t *testing.T) {
	store := newMemStore()
	m := NewThresholds(store)
	ctx := context.Background()

	// Hammer the posterior both directions; the boundary must never leave
	// [min, max].
	for i := 0; i < 200; i++ {
		th, err := m.Update(ctx, "anomaly", "altitude", true, true)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, th.Current, th.Min)
		assert.LessOrEqual(t, th.Current, th.Max)
	}
	for i := 0; i < 400; i++ {
		th, err := m.Update(ctx, "anomaly", "altitude", true, false)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, th.Current, th.Min)
		assert.LessOrEqual(t, th.Current, th.Max)
	}
}

func TestThresholdConfusionCounters(t *testing.T) {
	m := NewThresholds(newMemStore())
	ctx := context.Background()

	_, err := m.Update(ctx, "anomaly", "speed", true, true)
	require.NoError(t, err)
	_, err = m.Update(ctx, "anomaly", "speed", true, false)
	require.NoError(t, err)
	_, err = m.Update(ctx, "anomaly", "speed", false, true)
	require.NoError(t, err)
	th, err := m.Update(ctx, "anomaly", "speed", false, false)
	require.NoError(t, err)

	assert.Equal(t, 1, th.TP)
	assert.Equal(t, 1, th.FP)
	assert.Equal(t, 1, th.FN)
	assert.Equal(t, 1, th.TN)
	assert.Equal(t, initialAlpha+2, th.Alpha)
	assert.Equal(t, initialBeta+2, th.Beta)
}
