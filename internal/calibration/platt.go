// Package calibration turns raw model scores into calibrated probabilities
// (Platt scaling trained from verified outcomes) and maintains adaptive
// decision thresholds driven by confusion-matrix feedback.
package calibration

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// MinTrainingSamples is the verified-outcome count below which calibration
// is the identity.
const MinTrainingSamples = 50

// Training hyperparameters.
const (
	maxTrainingOutcomes = 1000
	gdIterations        = 1000
	gdLearningRate      = 0.1
	eceBins             = 10
)

// Params are the per-task Platt coefficients.
type Params struct {
	TaskType    string
	A           float64
	B           float64
	SampleCount int
	ECE         float64
	TrainedAt   time.Time
}

// Outcome is one recorded prediction with its eventual ground truth.
type Outcome struct {
	ID       int64
	TaskType string
	RawScore float64
	Verified bool
	Truth    bool
}

// Store is the persistence surface for calibration.
type Store interface {
	// GetCalibration returns (nil, nil) when the task has never trained.
	GetCalibration(ctx context.Context, taskType string) (*Params, error)
	SaveCalibration(ctx context.Context, p *Params) error
	InsertOutcome(ctx context.Context, o *Outcome) error
	VerifyOutcome(ctx context.Context, id int64, truth bool) error
	// VerifiedOutcomes returns up to limit most-recent verified outcomes.
	VerifiedOutcomes(ctx context.Context, taskType string, limit int) ([]Outcome, error)
}

// Calibrator owns Platt parameters per task type.
type Calibrator struct {
	store Store
	clock timeutil.Clock
}

// NewCalibrator builds a Calibrator. A nil clock falls back to the real one.
func NewCalibrator(store Store, clock timeutil.Clock) *Calibrator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Calibrator{store: store, clock: clock}
}

// sigmoidPlatt maps a raw score through 1/(1+exp(A*raw+B)).
func sigmoidPlatt(a, b, raw float64) float64 {
	p := 1 / (1 + math.Exp(a*raw+b))
	return math.Max(0, math.Min(1, p))
}

// Calibrate maps a raw score to a calibrated probability. Tasks with fewer
// than MinTrainingSamples verified outcomes pass scores through unchanged.
func (c *Calibrator) Calibrate(ctx context.Context, taskType string, raw float64) (float64, error) {
	p, err := c.store.GetCalibration(ctx, taskType)
	if err != nil {
		return raw, fmt.Errorf("load calibration %s: %w", taskType, err)
	}
	if p == nil || p.SampleCount < MinTrainingSamples {
		return raw, nil
	}
	return sigmoidPlatt(p.A, p.B, raw), nil
}

// RecordOutcome stores a raw prediction for later verification.
func (c *Calibrator) RecordOutcome(ctx context.Context, taskType string, raw float64) error {
	return c.store.InsertOutcome(ctx, &Outcome{TaskType: taskType, RawScore: raw})
}

// VerifyOutcome sets the ground truth for a recorded outcome.
func (c *Calibrator) VerifyOutcome(ctx context.Context, id int64, truth bool) error {
	return c.store.VerifyOutcome(ctx, id, truth)
}

// Train fits Platt parameters for the task from its verified outcomes and
// records a 10-bin expected calibration error. Training is skipped (nil
// error) while the verified sample count is under MinTrainingSamples.
func (c *Calibrator) Train(ctx context.Context, taskType string) (*Params, error) {
	outcomes, err := c.store.VerifiedOutcomes(ctx, taskType, maxTrainingOutcomes)
	if err != nil {
		return nil, fmt.Errorf("load outcomes %s: %w", taskType, err)
	}
	if len(outcomes) < MinTrainingSamples {
		return nil, nil
	}

	a, b := fitPlatt(outcomes)
	params := &Params{
		TaskType:    taskType,
		A:           a,
		B:           b,
		SampleCount: len(outcomes),
		ECE:         expectedCalibrationError(outcomes, a, b),
		TrainedAt:   c.clock.Now().UTC(),
	}
	if err := c.store.SaveCalibration(ctx, params); err != nil {
		return nil, fmt.Errorf("save calibration %s: %w", taskType, err)
	}
	return params, nil
}

// fitPlatt runs batch gradient descent on the logistic loss of
// p = 1/(1+exp(A*x+B)).
func fitPlatt(outcomes []Outcome) (float64, float64) {
	a, b := -1.0, 0.0
	n := float64(len(outcomes))
	for iter := 0; iter < gdIterations; iter++ {
		var gradA, gradB float64
		for _, o := range outcomes {
			p := sigmoidPlatt(a, b, o.RawScore)
			y := 0.0
			if o.Truth {
				y = 1.0
			}
			// d(nll)/dz with z = A*x+B is (y - p); chain through z.
			gradA += (y - p) * o.RawScore
			gradB += y - p
		}
		a -= gdLearningRate * gradA / n
		b -= gdLearningRate * gradB / n
	}
	return a, b
}

// expectedCalibrationError bins calibrated probabilities and averages the
// per-bin gap between mean confidence and observed accuracy.
func expectedCalibrationError(outcomes []Outcome, a, b float64) float64 {
	type bin struct {
		n    int
		conf float64
		hits int
	}
	bins := make([]bin, eceBins)
	for _, o := range outcomes {
		p := sigmoidPlatt(a, b, o.RawScore)
		idx := int(p * eceBins)
		if idx >= eceBins {
			idx = eceBins - 1
		}
		bins[idx].n++
		bins[idx].conf += p
		if o.Truth {
			bins[idx].hits++
		}
	}

	var ece float64
	total := float64(len(outcomes))
	for _, bn := range bins {
		if bn.n == 0 {
			continue
		}
		conf := bn.conf / float64(bn.n)
		acc := float64(bn.hits) / float64(bn.n)
		ece += float64(bn.n) / total * math.Abs(conf-acc)
	}
	return ece
}
