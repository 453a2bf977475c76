package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skywatch-data/skywatch/internal/predict"
)

// SavePredictions persists a forecast batch.
func (s *Store) SavePredictions(ctx context.Context, preds []predict.Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range preds {
		batch.Queue(`
			INSERT INTO predictions (hex, horizon_seconds, predicted_at, target_time, lat, lon,
				altitude_ft, uncertainty_nm, confidence, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, p.Hex, int(p.Horizon.Seconds()), p.PredictedAt, p.TargetTime, p.Lat, p.Lon,
			p.AltitudeFt, p.UncertaintyNM, p.Confidence, p.ExpiresAt)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save predictions: %w", err)
	}
	return nil
}

// DuePredictions returns unvalidated predictions whose target time has
// elapsed and that have not yet expired past usefulness.
func (s *Store) DuePredictions(ctx context.Context, now time.Time) ([]predict.Prediction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hex, horizon_seconds, predicted_at, target_time, lat, lon,
		       altitude_ft, uncertainty_nm, confidence, expires_at
		FROM predictions
		WHERE NOT validated AND target_time <= $1
		ORDER BY target_time
	`, now)
	if err != nil {
		return nil, fmt.Errorf("due predictions: %w", err)
	}
	defer rows.Close()

	var out []predict.Prediction
	for rows.Next() {
		var p predict.Prediction
		var horizonSeconds int
		if err := rows.Scan(&p.ID, &p.Hex, &horizonSeconds, &p.PredictedAt, &p.TargetTime,
			&p.Lat, &p.Lon, &p.AltitudeFt, &p.UncertaintyNM, &p.Confidence, &p.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.Horizon = time.Duration(horizonSeconds) * time.Second
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveValidation records one resolved prediction and retires it.
func (s *Store) SaveValidation(ctx context.Context, v predict.Validation) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO prediction_validations (prediction_id, hex, horizon_seconds, target_time, error_nm, accurate)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (prediction_id) DO NOTHING
	`, v.PredictionID, v.Hex, int(v.Horizon.Seconds()), v.TargetTime, v.ErrorNM, v.Accurate)
	batch.Queue(`UPDATE predictions SET validated = TRUE WHERE id = $1`, v.PredictionID)
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save validation %d: %w", v.PredictionID, err)
	}
	return nil
}

// SkipValidation retires a prediction with no observable actual.
func (s *Store) SkipValidation(ctx context.Context, predictionID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE predictions SET validated = TRUE WHERE id = $1`, predictionID)
	if err != nil {
		return fmt.Errorf("skip validation %d: %w", predictionID, err)
	}
	return nil
}

// UpsertAccuracyRollup folds one validation into the per-horizon daily
// accuracy row.
func (s *Store) UpsertAccuracyRollup(ctx context.Context, horizon time.Duration, day time.Time, accurate bool, errorNM float64) error {
	accurateN := 0
	if accurate {
		accurateN = 1
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO prediction_accuracy (horizon_seconds, day, total, accurate_count, error_sum_nm)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (horizon_seconds, day) DO UPDATE SET
			total = prediction_accuracy.total + 1,
			accurate_count = prediction_accuracy.accurate_count + EXCLUDED.accurate_count,
			error_sum_nm = prediction_accuracy.error_sum_nm + EXCLUDED.error_sum_nm
	`, int(horizon.Seconds()), day, accurateN, errorNM)
	if err != nil {
		return fmt.Errorf("upsert accuracy rollup: %w", err)
	}
	return nil
}

// AccuracyRollup is one day of accuracy for one horizon.
type AccuracyRollup struct {
	Horizon      time.Duration
	Day          time.Time
	Total        int
	Accurate     int
	MeanErrorNM  float64
	AccuracyRate float64
}

// AccuracyRollups returns rollups for days on or after since, newest first.
func (s *Store) AccuracyRollups(ctx context.Context, since time.Time) ([]AccuracyRollup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT horizon_seconds, day, total, accurate_count, error_sum_nm
		FROM prediction_accuracy WHERE day >= $1
		ORDER BY day DESC, horizon_seconds
	`, since)
	if err != nil {
		return nil, fmt.Errorf("accuracy rollups: %w", err)
	}
	defer rows.Close()

	var out []AccuracyRollup
	for rows.Next() {
		var r AccuracyRollup
		var horizonSeconds int
		var errorSum float64
		if err := rows.Scan(&horizonSeconds, &r.Day, &r.Total, &r.Accurate, &errorSum); err != nil {
			return nil, fmt.Errorf("scan accuracy rollup: %w", err)
		}
		r.Horizon = time.Duration(horizonSeconds) * time.Second
		if r.Total > 0 {
			r.MeanErrorNM = errorSum / float64(r.Total)
			r.AccuracyRate = float64(r.Accurate) / float64(r.Total)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PredictionsFor returns the unexpired forecasts for one aircraft.
func (s *Store) PredictionsFor(ctx context.Context, hex string, now time.Time) ([]predict.Prediction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hex, horizon_seconds, predicted_at, target_time, lat, lon,
		       altitude_ft, uncertainty_nm, confidence, expires_at
		FROM predictions
		WHERE hex = $1 AND expires_at > $2
		ORDER BY target_time
	`, hex, now)
	if err != nil {
		return nil, fmt.Errorf("predictions for %s: %w", hex, err)
	}
	defer rows.Close()

	var out []predict.Prediction
	for rows.Next() {
		var p predict.Prediction
		var horizonSeconds int
		if err := rows.Scan(&p.ID, &p.Hex, &horizonSeconds, &p.PredictedAt, &p.TargetTime,
			&p.Lat, &p.Lon, &p.AltitudeFt, &p.UncertaintyNM, &p.Confidence, &p.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.Horizon = time.Duration(horizonSeconds) * time.Second
		out = append(out, p)
	}
	return out, rows.Err()
}
