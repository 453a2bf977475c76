package intel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-data/skywatch/internal/aggregator"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/profile"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type memStore struct {
	anomalies []Anomaly
	intents   []Intent
	threats   []Threat
}

func (m *memStore) InsertAnomaly(ctx context.Context, a *Anomaly) error {
	m.anomalies = append(m.anomalies, *a)
	return nil
}

func (m *memStore) InsertIntent(ctx context.Context, i *Intent) error {
	m.intents = append(m.intents, *i)
	return nil
}

func (m *memStore) SaveThreat(ctx context.Context, t *Threat) error {
	m.threats = append(m.threats, *t)
	return nil
}

type fakeDeviations struct {
	deviations []profile.Deviation
}

func (f *fakeDeviations) CheckDeviation(ctx context.Context, hex string, positions []model.Position, pattern *string) ([]profile.Deviation, error) {
	return f.deviations, nil
}

type fakeThresholds struct {
	boundary float64
}

func (f *fakeThresholds) Apply(ctx context.Context, task, name string, score float64) (bool, float64, error) {
	return score >= f.boundary, 0.5, nil
}

type identityCalibrator struct{}

func (identityCalibrator) Calibrate(ctx context.Context, task string, raw float64) (float64, error) {
	return raw, nil
}

type fakeSignals struct {
	scores map[string]float64
}

func (f *fakeSignals) PatternAnomalyScore(ctx context.Context, et, id string) (float64, error) {
	return f.scores["pattern_anomaly"], nil
}
func (f *fakeSignals) RegionalTensionScore(ctx context.Context) (float64, error) {
	return f.scores["regional_tension"], nil
}
func (f *fakeSignals) NewsCorrelationScore(ctx context.Context, et, id string) (float64, error) {
	return f.scores["news_correlation"], nil
}
func (f *fakeSignals) HistoricalContextScore(ctx context.Context, et, id string) (float64, error) {
	return f.scores["historical_context"], nil
}
func (f *fakeSignals) FormationActivityScore(ctx context.Context, et, id string) (float64, error) {
	return f.scores["formation_activity"], nil
}
func (f *fakeSignals) LocationContextScore(ctx context.Context, et, id string) (float64, error) {
	return f.scores["location_context"], nil
}

func newEngine(store *memStore, dev *fakeDeviations, th *fakeThresholds, sig *fakeSignals) *Engine {
	return New(store, dev, th, identityCalibrator{}, sig, Config{}, timeutil.NewManualClock(t0))
}

func TestDetectAnomaliesGatesOnThreshold(t *testing.T) {
	store := &memStore{}
	dev := &fakeDeviations{deviations: []profile.Deviation{
		{Type: "altitude", Severity: 1.0, Detected: "40000 ft", Expected: "25000 +- 2000 ft"},
		{Type: "time", Severity: 0.5, Detected: "hour 03Z", Expected: "activity 0.0100"},
	}}
	eng := newEngine(store, dev, &fakeThresholds{boundary: 0.6}, nil)

	anomalies, err := eng.DetectAnomalies(context.Background(), "AE01CE", nil, nil, nil)
	require.NoError(t, err)

	// Only the altitude deviation clears the 0.6 boundary.
	require.Len(t, anomalies, 1)
	a := anomalies[0]
	assert.Equal(t, "altitude", a.Type)
	assert.Equal(t, 1.0, a.Severity)
	assert.Equal(t, 1.0, a.Factors.AltitudeDeviation)
	assert.Zero(t, a.Factors.UnusualTime)
	assert.Len(t, store.anomalies, 1)
}

func TestDetectAnomaliesEmptyWhenQuiet(t *testing.T) {
	store := &memStore{}
	eng := newEngine(store, &fakeDeviations{}, &fakeThresholds{boundary: 0.5}, nil)

	anomalies, err := eng.DetectAnomalies(context.Background(), "AE01CE", nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
	assert.Empty(t, store.anomalies)
}

func strPtr(s string) *string { return &s }

func TestClassifyIntentRules(t *testing.T) {
	store := &memStore{}
	eng := newEngine(store, nil, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name       string
		category   aggregator.Category
		pattern    *string
		nearby     []NearbyAircraft
		wantIntent string
		wantConf   float64
	}{
		{
			name:     "tanker with receiver",
			category: aggregator.CategoryTanker,
			nearby: []NearbyAircraft{
				{Hex: "AE0002", Category: aggregator.CategoryFighter, DistanceNM: 3},
			},
			wantIntent: IntentRefueling, wantConf: 0.8,
		},
		{
			name:     "lonely tanker",
			category: aggregator.CategoryTanker,
			nearby: []NearbyAircraft{
				{Hex: "AE0002", Category: aggregator.CategoryTanker, DistanceNM: 3},
			},
			wantIntent: IntentTransit, wantConf: 0.5,
		},
		{
			name:       "isr in orbit",
			category:   aggregator.CategoryISR,
			pattern:    strPtr(model.PatternOrbit),
			wantIntent: IntentSurveillance, wantConf: 0.75,
		},
		{
			name:       "awacs racetrack",
			category:   aggregator.CategoryAWACS,
			pattern:    strPtr(model.PatternRacetrack),
			wantIntent: IntentSurveillance, wantConf: 0.75,
		},
		{
			name:       "fighter orbit",
			category:   aggregator.CategoryFighter,
			pattern:    strPtr(model.PatternOrbit),
			wantIntent: IntentPatrol, wantConf: 0.6,
		},
		{
			name:       "trainer",
			category:   aggregator.CategoryTrainer,
			wantIntent: IntentTraining, wantConf: 0.7,
		},
		{
			name:       "transport holding",
			category:   aggregator.CategoryTransport,
			pattern:    strPtr(model.PatternHolding),
			wantIntent: IntentPatrol, wantConf: 0.55,
		},
		{
			name:       "straight transport",
			category:   aggregator.CategoryTransport,
			pattern:    strPtr(model.PatternStraight),
			wantIntent: IntentTransit, wantConf: 0.5,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := eng.ClassifyIntent(ctx, "AE0001", nil, tc.category, tc.pattern, tc.nearby)
			require.NoError(t, err)
			assert.Equal(t, tc.wantIntent, got.Intent)
			assert.Equal(t, tc.wantConf, got.Confidence)
			assert.NotEmpty(t, got.Reasoning)
		})
	}
}

func TestAssessThreatCompositeAndLevel(t *testing.T) {
	store := &memStore{}
	sig := &fakeSignals{scores: map[string]float64{
		"pattern_anomaly":    1.0,
		"regional_tension":   1.0,
		"news_correlation":   1.0,
		"historical_context": 1.0,
		"formation_activity": 1.0,
		"location_context":   1.0,
	}}
	eng := newEngine(store, nil, nil, sig)

	th, err := eng.AssessThreat(context.Background(), "aircraft", "AE01CE")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, th.Score, 1e-9)
	assert.Equal(t, ThreatCritical, th.Level)
	assert.Equal(t, t0.Add(DefaultThreatValidity), th.ExpiresAt)
	assert.Len(t, th.Components, 6)
}

func TestAssessThreatWeighting(t *testing.T) {
	store := &memStore{}
	// Only the location component lights up.
	sig := &fakeSignals{scores: map[string]float64{"location_context": 1.0}}
	eng := newEngine(store, nil, nil, sig)

	th, err := eng.AssessThreat(context.Background(), "aircraft", "AE01CE")
	require.NoError(t, err)

	assert.InDelta(t, 0.20, th.Score, 1e-9)
	assert.Equal(t, ThreatLow, th.Level)
}

func TestThreatLevels(t *testing.T) {
	assert.Equal(t, ThreatCritical, threatLevel(0.85))
	assert.Equal(t, ThreatHigh, threatLevel(0.65))
	assert.Equal(t, ThreatElevated, threatLevel(0.45))
	assert.Equal(t, ThreatLow, threatLevel(0.25))
	assert.Equal(t, ThreatMinimal, threatLevel(0.1))
}
