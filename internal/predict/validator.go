package predict

import (
	"context"
	"fmt"
	"time"

	"github.com/skywatch-data/skywatch/internal/geo"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/monitoring"
	"github.com/skywatch-data/skywatch/internal/profile"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// actualTolerance is how far from the target time an observed position may
// sit and still count as the actual.
const actualTolerance = time.Minute

// Validation is the outcome of checking one elapsed prediction.
type Validation struct {
	PredictionID int64
	Hex          string
	Horizon      time.Duration
	TargetTime   time.Time
	ErrorNM      float64
	Accurate     bool
}

// Store is the persistence surface for prediction storage and validation.
type Store interface {
	SavePredictions(ctx context.Context, preds []Prediction) error
	// DuePredictions returns unvalidated predictions whose target time has
	// elapsed as of now.
	DuePredictions(ctx context.Context, now time.Time) ([]Prediction, error)
	// PositionNear returns the observed position for hex closest to target
	// within the tolerance, or nil when none exists.
	PositionNear(ctx context.Context, hex string, target time.Time, tolerance time.Duration) (*model.Position, error)
	SaveValidation(ctx context.Context, v Validation) error
	// SkipValidation retires a prediction that has no observable actual.
	SkipValidation(ctx context.Context, predictionID int64) error
	UpsertAccuracyRollup(ctx context.Context, horizon time.Duration, day time.Time, accurate bool, errorNM float64) error
}

// Validator resolves elapsed predictions against observed positions.
type Validator struct {
	store Store
	clock timeutil.Clock
}

// NewValidator builds a Validator. A nil clock falls back to the real one.
func NewValidator(store Store, clock timeutil.Clock) *Validator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Validator{store: store, clock: clock}
}

// Run validates every due prediction: the actual position at target time
// (within a minute) yields an error distance, and the prediction counts as
// accurate iff that error fits inside the uncertainty radius. Results roll
// up per horizon per UTC day. Predictions without an observable actual are
// retired without a verdict.
func (v *Validator) Run(ctx context.Context) ([]Validation, error) {
	now := v.clock.Now().UTC()
	due, err := v.store.DuePredictions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("load due predictions: %w", err)
	}

	var out []Validation
	for _, p := range due {
		actual, err := v.store.PositionNear(ctx, p.Hex, p.TargetTime, actualTolerance)
		if err != nil {
			return out, fmt.Errorf("find actual for %s: %w", p.Hex, err)
		}
		if actual == nil {
			if err := v.store.SkipValidation(ctx, p.ID); err != nil {
				return out, fmt.Errorf("skip prediction %d: %w", p.ID, err)
			}
			continue
		}

		errNM, derr := geo.DistanceNM(p.Lat, p.Lon, actual.Lat, actual.Lon)
		if derr != nil {
			monitoring.Logf("predict: bad actual for %s: %v", p.Hex, derr)
			continue
		}

		result := Validation{
			PredictionID: p.ID,
			Hex:          p.Hex,
			Horizon:      p.Horizon,
			TargetTime:   p.TargetTime,
			ErrorNM:      errNM,
			Accurate:     errNM <= p.UncertaintyNM,
		}
		if err := v.store.SaveValidation(ctx, result); err != nil {
			return out, fmt.Errorf("save validation %d: %w", p.ID, err)
		}
		day := p.TargetTime.UTC().Truncate(24 * time.Hour)
		if err := v.store.UpsertAccuracyRollup(ctx, p.Horizon, day, result.Accurate, errNM); err != nil {
			return out, fmt.Errorf("rollup %s: %w", p.Horizon, err)
		}
		out = append(out, result)
	}
	return out, nil
}

// Runner forecasts every eligible input and persists the results.
type Runner struct {
	store Store
}

// NewRunner builds a Runner over the given store.
func NewRunner(store Store) *Runner {
	return &Runner{store: store}
}

// ForecastAll runs Forecast over each input moving faster than
// MinGroundSpeedKts and saves everything produced. Profiles are matched to
// inputs by hex; missing entries are fine.
func (r *Runner) ForecastAll(ctx context.Context, inputs []Input, profiles map[string]*profile.Profile) error {
	var preds []Prediction
	for _, in := range inputs {
		if in.GroundSpeed == nil || *in.GroundSpeed <= MinGroundSpeedKts {
			continue
		}
		preds = append(preds, Forecast(in, profiles[in.Hex])...)
	}
	if len(preds) == 0 {
		return nil
	}
	return r.store.SavePredictions(ctx, preds)
}
