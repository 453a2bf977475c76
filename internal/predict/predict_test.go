package predict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-data/skywatch/internal/geo"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/profile"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

func fPtr(f float64) *float64 { return &f }

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func eastbound() Input {
	return Input{
		Hex: "AE01CE", Time: t0,
		Lat: 33.0, Lon: 35.0,
		AltitudeFt:  fPtr(25000),
		GroundSpeed: fPtr(300),
		Track:       fPtr(90),
	}
}

func TestForecastSkipsWithoutKinematics(t *testing.T) {
	in := Input{Hex: "AE01CE", Time: t0, Lat: 33, Lon: 35}
	assert.Nil(t, Forecast(in, nil))
}

func TestForecastStraightLine(t *testing.T) {
	preds := Forecast(eastbound(), nil)
	require.Len(t, preds, 3)

	// 300 kts east for 5 minutes is 25 nm along track.
	wantLat, wantLon, err := geo.Destination(33.0, 35.0, 90, 25)
	require.NoError(t, err)
	off, err := geo.DistanceNM(preds[0].Lat, preds[0].Lon, wantLat, wantLon)
	require.NoError(t, err)
	assert.Less(t, off, 0.1)

	assert.Equal(t, t0.Add(5*time.Minute), preds[0].TargetTime)
	assert.Equal(t, t0.Add(10*time.Minute), preds[0].ExpiresAt)
	assert.Equal(t, 25000.0, *preds[0].AltitudeFt)
}

func TestForecastConfidenceDecaysWithHorizon(t *testing.T) {
	preds := Forecast(eastbound(), nil)
	require.Len(t, preds, 3)
	assert.GreaterOrEqual(t, preds[0].Confidence, preds[1].Confidence)
	assert.GreaterOrEqual(t, preds[1].Confidence, preds[2].Confidence)
	assert.InDelta(t, 0.7*0.95, preds[0].Confidence, 1e-9)
	assert.InDelta(t, 0.7*0.70, preds[2].Confidence, 1e-9)

	assert.Less(t, preds[0].UncertaintyNM, preds[1].UncertaintyNM)
	assert.Less(t, preds[1].UncertaintyNM, preds[2].UncertaintyNM)
}

func TestForecastTurnShortensDistance(t *testing.T) {
	turning := eastbound()
	turning.TurnRateDegSec = fPtr(0.2) // 60 degrees over 5 minutes

	straight := Forecast(eastbound(), nil)
	turned := Forecast(turning, nil)
	require.Len(t, turned, 3)

	sd, err := geo.DistanceNM(33.0, 35.0, straight[0].Lat, straight[0].Lon)
	require.NoError(t, err)
	td, err := geo.DistanceNM(33.0, 35.0, turned[0].Lat, turned[0].Lon)
	require.NoError(t, err)
	assert.Less(t, td, sd)
}

func TestForecastVerticalRateFloorsAtGround(t *testing.T) {
	in := eastbound()
	in.AltitudeFt = fPtr(20000)
	in.VerticalRate = fPtr(-1000)

	preds := Forecast(in, nil)
	require.Len(t, preds, 3)
	assert.Equal(t, 15000.0, *preds[0].AltitudeFt)
	assert.Equal(t, 0.0, *preds[2].AltitudeFt) // 20000 - 30*1000 floored
}

func trainedProfileAt(lat, lon float64) *profile.Profile {
	return &profile.Profile{
		Hex: "AE01CE", IsTrained: true, SampleCount: 20,
		Regions: []profile.Region{{CenterLat: lat, CenterLon: lon, RadiusNM: 60, Count: 20, Frequency: 1}},
	}
}

func TestForecastProfileShapesUncertainty(t *testing.T) {
	bare := Forecast(eastbound(), nil)
	near := Forecast(eastbound(), trainedProfileAt(33.0, 35.5))
	far := Forecast(eastbound(), trainedProfileAt(45.0, 10.0))

	require.Len(t, near, 3)
	assert.InDelta(t, bare[0].UncertaintyNM*0.8, near[0].UncertaintyNM, 1e-9)
	assert.InDelta(t, bare[0].UncertaintyNM*1.2, far[0].UncertaintyNM, 1e-9)

	assert.InDelta(t, 0.85*0.95, near[0].Confidence, 1e-9)
}

type memStore struct {
	saved       []Prediction
	due         []Prediction
	actuals     map[string]*model.Position
	validations []Validation
	skipped     []int64
	rollups     int
}

func newMemStore() *memStore {
	return &memStore{actuals: map[string]*model.Position{}}
}

func (m *memStore) SavePredictions(ctx context.Context, preds []Prediction) error {
	m.saved = append(m.saved, preds...)
	return nil
}

func (m *memStore) DuePredictions(ctx context.Context, now time.Time) ([]Prediction, error) {
	return m.due, nil
}

func (m *memStore) PositionNear(ctx context.Context, hex string, target time.Time, tol time.Duration) (*model.Position, error) {
	return m.actuals[hex], nil
}

func (m *memStore) SaveValidation(ctx context.Context, v Validation) error {
	m.validations = append(m.validations, v)
	return nil
}

func (m *memStore) SkipValidation(ctx context.Context, id int64) error {
	m.skipped = append(m.skipped, id)
	return nil
}

func (m *memStore) UpsertAccuracyRollup(ctx context.Context, horizon time.Duration, day time.Time, accurate bool, errNM float64) error {
	m.rollups++
	return nil
}

func TestRunnerGatesOnGroundSpeed(t *testing.T) {
	store := newMemStore()
	slow := eastbound()
	slow.GroundSpeed = fPtr(30)

	err := NewRunner(store).ForecastAll(context.Background(), []Input{slow, eastbound()}, nil)
	require.NoError(t, err)
	assert.Len(t, store.saved, 3) // only the moving aircraft forecast
}

func TestValidatorMarksAccurate(t *testing.T) {
	store := newMemStore()
	pred := Prediction{
		ID: 1, Hex: "AE01CE", Horizon: 5 * time.Minute,
		TargetTime: t0.Add(5 * time.Minute),
		Lat:        33.0, Lon: 35.5, UncertaintyNM: 2.0,
	}
	store.due = []Prediction{pred}
	store.actuals["AE01CE"] = &model.Position{Hex: "AE01CE", Lat: 33.0, Lon: 35.51, Time: pred.TargetTime}

	clock := timeutil.NewManualClock(t0.Add(6 * time.Minute))
	results, err := NewValidator(store, clock).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.True(t, results[0].Accurate)
	assert.Less(t, results[0].ErrorNM, 1.0)
	assert.Equal(t, 1, store.rollups)
}

func TestValidatorMarksInaccurateOutsideUncertainty(t *testing.T) {
	store := newMemStore()
	store.due = []Prediction{{
		ID: 1, Hex: "AE01CE", Horizon: 5 * time.Minute,
		TargetTime: t0.Add(5 * time.Minute),
		Lat:        33.0, Lon: 35.5, UncertaintyNM: 2.0,
	}}
	// Actual a full degree of longitude away: ~50 nm of error.
	store.actuals["AE01CE"] = &model.Position{Hex: "AE01CE", Lat: 33.0, Lon: 36.5}

	results, err := NewValidator(store, timeutil.NewManualClock(t0.Add(6*time.Minute))).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Accurate)
}

func TestValidatorSkipsWithoutActual(t *testing.T) {
	store := newMemStore()
	store.due = []Prediction{{ID: 7, Hex: "AE01CE", TargetTime: t0}}

	results, err := NewValidator(store, timeutil.NewManualClock(t0.Add(time.Hour))).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, []int64{7}, store.skipped)
	assert.Zero(t, store.rollups)
}
