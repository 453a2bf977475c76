package calibration

import (
	"context"
	"fmt"
	"math"
)

// Threshold defaults.
const (
	DefaultThresholdMin   = 0.1
	DefaultThresholdMax   = 0.9
	defaultThresholdValue = 0.5
	initialAlpha          = 2.0
	initialBeta           = 2.0
	thresholdAdjustRate   = 0.1
)

// Threshold is one adaptive decision boundary keyed by (task, name). The
// Beta(alpha, beta) posterior tracks prediction successes and failures; the
// current value chases the posterior mode within [Min, Max].
type Threshold struct {
	TaskType string
	Name     string
	Alpha    float64
	Beta     float64
	Current  float64
	Min      float64
	Max      float64
	TP       int
	FP       int
	TN       int
	FN       int
}

// Mode is the Beta posterior mode (alpha-1)/(alpha+beta-2).
func (t *Threshold) Mode() float64 {
	denom := t.Alpha + t.Beta - 2
	if denom <= 0 {
		return defaultThresholdValue
	}
	return (t.Alpha - 1) / denom
}

func (t *Threshold) clamp() {
	t.Current = math.Max(t.Min, math.Min(t.Max, t.Current))
}

// ThresholdStore is the persistence surface for adaptive thresholds.
type ThresholdStore interface {
	// GetThreshold returns (nil, nil) when the pair has no row yet.
	GetThreshold(ctx context.Context, taskType, name string) (*Threshold, error)
	SaveThreshold(ctx context.Context, t *Threshold) error
}

// Thresholds manages adaptive decision boundaries.
type Thresholds struct {
	store ThresholdStore
}

// NewThresholds builds a Thresholds manager over the given store.
func NewThresholds(store ThresholdStore) *Thresholds {
	return &Thresholds{store: store}
}

func (m *Thresholds) getOrCreate(ctx context.Context, taskType, name string) (*Threshold, error) {
	t, err := m.store.GetThreshold(ctx, taskType, name)
	if err != nil {
		return nil, fmt.Errorf("load threshold %s/%s: %w", taskType, name, err)
	}
	if t != nil {
		return t, nil
	}
	t = &Threshold{
		TaskType: taskType,
		Name:     name,
		Alpha:    initialAlpha,
		Beta:     initialBeta,
		Current:  defaultThresholdValue,
		Min:      DefaultThresholdMin,
		Max:      DefaultThresholdMax,
	}
	if err := m.store.SaveThreshold(ctx, t); err != nil {
		return nil, fmt.Errorf("save threshold %s/%s: %w", taskType, name, err)
	}
	return t, nil
}

// Update tallies one prediction outcome into the confusion counters,
// rewards the posterior (alpha on a correct call, beta on a miss) and moves
// the current value toward the posterior mode, clamped to [Min, Max].
func (m *Thresholds) Update(ctx context.Context, taskType, name string, predictedPositive, actualPositive bool) (*Threshold, error) {
	t, err := m.getOrCreate(ctx, taskType, name)
	if err != nil {
		return nil, err
	}

	correct := predictedPositive == actualPositive
	switch {
	case predictedPositive && actualPositive:
		t.TP++
	case predictedPositive && !actualPositive:
		t.FP++
	case !predictedPositive && actualPositive:
		t.FN++
	default:
		t.TN++
	}
	if correct {
		t.Alpha++
	} else {
		t.Beta++
	}

	t.Current += thresholdAdjustRate * (t.Mode() - t.Current)
	t.clamp()

	if err := m.store.SaveThreshold(ctx, t); err != nil {
		return nil, fmt.Errorf("save threshold %s/%s: %w", taskType, name, err)
	}
	return t, nil
}

// Apply tests a score against the current threshold. The confidence grows
// with the score's distance from the boundary, normalized by the larger
// side of the split.
func (m *Thresholds) Apply(ctx context.Context, taskType, name string, score float64) (bool, float64, error) {
	t, err := m.getOrCreate(ctx, taskType, name)
	if err != nil {
		return false, 0, err
	}
	exceeds := score >= t.Current
	confidence := math.Abs(score-t.Current) / math.Max(t.Current, 1-t.Current)
	return exceeds, confidence, nil
}
