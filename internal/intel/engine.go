// Package intel composes the behavioral, formation and context layers into
// intelligence products: anomaly detections, intent classifications and
// threat assessments.
package intel

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/skywatch-data/skywatch/internal/aggregator"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/profile"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// Task type for threshold and calibration lookups.
const TaskAnomaly = "anomaly"

// Intent tags.
const (
	IntentRefueling    = "refueling"
	IntentSurveillance = "surveillance"
	IntentPatrol       = "patrol"
	IntentTraining     = "training"
	IntentTransit      = "transit"
)

// Threat levels.
const (
	ThreatCritical = "critical"
	ThreatHigh     = "high"
	ThreatElevated = "elevated"
	ThreatLow      = "low"
	ThreatMinimal  = "minimal"
)

// DefaultThreatValidity is how long an assessment stays current.
const DefaultThreatValidity = 6 * time.Hour

// Factors carries the explainability breakdown of an anomaly.
type Factors struct {
	AltitudeDeviation float64 `json:"altitude_deviation"`
	SpeedDeviation    float64 `json:"speed_deviation"`
	UnusualPattern    float64 `json:"unusual_pattern"`
	UnusualRegion     float64 `json:"unusual_region"`
	UnusualTime       float64 `json:"unusual_time"`
	ErraticTrack      float64 `json:"erratic_track"`
}

// Anomaly is one stored anomaly detection.
type Anomaly struct {
	ID         int64
	Hex        string
	FlightID   *int64
	Type       string
	Severity   float64 // calibrated
	RawScore   float64
	Detected   string
	Expected   string
	Factors    Factors
	DetectedAt time.Time
}

// Intent is one stored intent classification.
type Intent struct {
	ID           int64
	Hex          string
	FlightID     *int64
	Intent       string
	Confidence   float64
	Reasoning    string
	ClassifiedAt time.Time
}

// Threat is one stored threat assessment.
type Threat struct {
	ID         int64
	EntityType string // aircraft, formation, region
	EntityID   string
	Score      float64
	Level      string
	Components map[string]float64
	AssessedAt time.Time
	ExpiresAt  time.Time
}

// DeviationChecker is the profiler surface the engine consumes.
type DeviationChecker interface {
	CheckDeviation(ctx context.Context, hex string, positions []model.Position, pattern *string) ([]profile.Deviation, error)
}

// ThresholdApplier gates anomaly severities.
type ThresholdApplier interface {
	Apply(ctx context.Context, taskType, name string, score float64) (bool, float64, error)
}

// Calibrator maps raw severities to calibrated probabilities.
type Calibrator interface {
	Calibrate(ctx context.Context, taskType string, raw float64) (float64, error)
}

// SignalSource provides the six threat components, each in [0,1].
type SignalSource interface {
	PatternAnomalyScore(ctx context.Context, entityType, entityID string) (float64, error)
	RegionalTensionScore(ctx context.Context) (float64, error)
	NewsCorrelationScore(ctx context.Context, entityType, entityID string) (float64, error)
	HistoricalContextScore(ctx context.Context, entityType, entityID string) (float64, error)
	FormationActivityScore(ctx context.Context, entityType, entityID string) (float64, error)
	LocationContextScore(ctx context.Context, entityType, entityID string) (float64, error)
}

// Store persists the engine's products.
type Store interface {
	InsertAnomaly(ctx context.Context, a *Anomaly) error
	InsertIntent(ctx context.Context, i *Intent) error
	SaveThreat(ctx context.Context, t *Threat) error
}

// Config tunes the engine.
type Config struct {
	ThreatValidity time.Duration
}

// Engine composes the upstream components.
type Engine struct {
	store      Store
	deviations DeviationChecker
	thresholds ThresholdApplier
	calibrator Calibrator
	signals    SignalSource
	cfg        Config
	clock      timeutil.Clock
}

// New builds an Engine. Zero config fields take defaults; a nil clock falls
// back to the real one.
func New(store Store, deviations DeviationChecker, thresholds ThresholdApplier, calibrator Calibrator, signals SignalSource, cfg Config, clock timeutil.Clock) *Engine {
	if cfg.ThreatValidity <= 0 {
		cfg.ThreatValidity = DefaultThreatValidity
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Engine{
		store:      store,
		deviations: deviations,
		thresholds: thresholds,
		calibrator: calibrator,
		signals:    signals,
		cfg:        cfg,
		clock:      clock,
	}
}

// DetectAnomalies runs the deviation check for the aircraft, calibrates
// each deviation's severity, gates it through the adaptive threshold for
// its type, and stores whatever survives.
func (e *Engine) DetectAnomalies(ctx context.Context, hex string, flightID *int64, positions []model.Position, pattern *string) ([]Anomaly, error) {
	deviations, err := e.deviations.CheckDeviation(ctx, hex, positions, pattern)
	if err != nil {
		return nil, fmt.Errorf("check deviation %s: %w", hex, err)
	}

	now := e.clock.Now().UTC()
	var out []Anomaly
	for _, d := range deviations {
		calibrated, err := e.calibrator.Calibrate(ctx, TaskAnomaly, d.Severity)
		if err != nil {
			return out, fmt.Errorf("calibrate %s/%s: %w", hex, d.Type, err)
		}
		exceeds, _, err := e.thresholds.Apply(ctx, TaskAnomaly, d.Type, calibrated)
		if err != nil {
			return out, fmt.Errorf("apply threshold %s/%s: %w", hex, d.Type, err)
		}
		if !exceeds {
			continue
		}

		a := Anomaly{
			Hex:        hex,
			FlightID:   flightID,
			Type:       d.Type,
			Severity:   calibrated,
			RawScore:   d.Severity,
			Detected:   d.Detected,
			Expected:   d.Expected,
			Factors:    factorsFor(d),
			DetectedAt: now,
		}
		if err := e.store.InsertAnomaly(ctx, &a); err != nil {
			return out, fmt.Errorf("insert anomaly %s/%s: %w", hex, d.Type, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func factorsFor(d profile.Deviation) Factors {
	var f Factors
	switch d.Type {
	case "altitude":
		f.AltitudeDeviation = d.Severity
	case "speed":
		f.SpeedDeviation = d.Severity
	case "pattern":
		f.UnusualPattern = d.Severity
	case "region":
		f.UnusualRegion = d.Severity
	case "time":
		f.UnusualTime = d.Severity
	default:
		f.ErraticTrack = d.Severity
	}
	return f
}

// NearbyAircraft is a neighbor considered for intent classification.
type NearbyAircraft struct {
	Hex        string
	Category   aggregator.Category
	DistanceNM float64
}

// ClassifyIntent applies the heuristic rule ladder and stores the result.
// The first matching rule wins.
func (e *Engine) ClassifyIntent(ctx context.Context, hex string, flightID *int64, category aggregator.Category, pattern *string, nearby []NearbyAircraft) (*Intent, error) {
	intent, confidence, reasoning := classifyIntent(category, pattern, nearby)
	rec := &Intent{
		Hex:          hex,
		FlightID:     flightID,
		Intent:       intent,
		Confidence:   confidence,
		Reasoning:    reasoning,
		ClassifiedAt: e.clock.Now().UTC(),
	}
	if err := e.store.InsertIntent(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert intent %s: %w", hex, err)
	}
	return rec, nil
}

func orbiting(pattern *string) bool {
	return pattern != nil && (*pattern == model.PatternOrbit || *pattern == model.PatternRacetrack)
}

func classifyIntent(category aggregator.Category, pattern *string, nearby []NearbyAircraft) (string, float64, string) {
	if category == aggregator.CategoryTanker {
		for _, n := range nearby {
			if n.Category != aggregator.CategoryTanker && n.DistanceNM <= 10 {
				return IntentRefueling, 0.8, "tanker with receiver traffic inside 10 nm"
			}
		}
	}
	if (category == aggregator.CategoryISR || category == aggregator.CategoryAWACS) && orbiting(pattern) {
		return IntentSurveillance, 0.75, "collection platform holding a surveillance orbit"
	}
	if category == aggregator.CategoryFighter && orbiting(pattern) {
		return IntentPatrol, 0.6, "fighter established in an orbit or racetrack"
	}
	if category == aggregator.CategoryTrainer {
		return IntentTraining, 0.7, "trainer airframe"
	}
	if pattern != nil && *pattern == model.PatternHolding {
		return IntentPatrol, 0.55, "holding without another explanation"
	}
	return IntentTransit, 0.5, "no rule matched"
}

// Threat component weights.
var threatWeights = map[string]float64{
	"pattern_anomaly":    0.20,
	"regional_tension":   0.15,
	"news_correlation":   0.20,
	"historical_context": 0.15,
	"formation_activity": 0.10,
	"location_context":   0.20,
}

// AssessThreat computes the six-component weighted composite for an entity
// and stores the assessment with its validity window.
func (e *Engine) AssessThreat(ctx context.Context, entityType, entityID string) (*Threat, error) {
	components := map[string]float64{}
	fetch := func(name string, f func() (float64, error)) error {
		v, err := f()
		if err != nil {
			return fmt.Errorf("threat component %s for %s/%s: %w", name, entityType, entityID, err)
		}
		components[name] = math.Max(0, math.Min(1, v))
		return nil
	}

	if err := fetch("pattern_anomaly", func() (float64, error) {
		return e.signals.PatternAnomalyScore(ctx, entityType, entityID)
	}); err != nil {
		return nil, err
	}
	if err := fetch("regional_tension", func() (float64, error) {
		return e.signals.RegionalTensionScore(ctx)
	}); err != nil {
		return nil, err
	}
	if err := fetch("news_correlation", func() (float64, error) {
		return e.signals.NewsCorrelationScore(ctx, entityType, entityID)
	}); err != nil {
		return nil, err
	}
	if err := fetch("historical_context", func() (float64, error) {
		return e.signals.HistoricalContextScore(ctx, entityType, entityID)
	}); err != nil {
		return nil, err
	}
	if err := fetch("formation_activity", func() (float64, error) {
		return e.signals.FormationActivityScore(ctx, entityType, entityID)
	}); err != nil {
		return nil, err
	}
	if err := fetch("location_context", func() (float64, error) {
		return e.signals.LocationContextScore(ctx, entityType, entityID)
	}); err != nil {
		return nil, err
	}

	var score float64
	for name, w := range threatWeights {
		score += w * components[name]
	}

	now := e.clock.Now().UTC()
	t := &Threat{
		EntityType: entityType,
		EntityID:   entityID,
		Score:      score,
		Level:      threatLevel(score),
		Components: components,
		AssessedAt: now,
		ExpiresAt:  now.Add(e.cfg.ThreatValidity),
	}
	if err := e.store.SaveThreat(ctx, t); err != nil {
		return nil, fmt.Errorf("save threat %s/%s: %w", entityType, entityID, err)
	}
	return t, nil
}

func threatLevel(score float64) string {
	switch {
	case score >= 0.8:
		return ThreatCritical
	case score >= 0.6:
		return ThreatHigh
	case score >= 0.4:
		return ThreatElevated
	case score >= 0.2:
		return ThreatLow
	default:
		return ThreatMinimal
	}
}
