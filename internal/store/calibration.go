package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/skywatch-data/skywatch/internal/calibration"
)

// GetCalibration returns the Platt parameters for a task, or (nil, nil)
// when the task has never trained.
func (s *Store) GetCalibration(ctx context.Context, taskType string) (*calibration.Params, error) {
	var p calibration.Params
	err := s.pool.QueryRow(ctx, `
		SELECT task_type, a, b, sample_count, ece, trained_at
		FROM calibration WHERE task_type = $1
	`, taskType).Scan(&p.TaskType, &p.A, &p.B, &p.SampleCount, &p.ECE, &p.TrainedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get calibration %s: %w", taskType, err)
	}
	return &p, nil
}

// SaveCalibration upserts the Platt parameters for a task.
func (s *Store) SaveCalibration(ctx context.Context, p *calibration.Params) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calibration (task_type, a, b, sample_count, ece, trained_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (task_type) DO UPDATE SET
			a = EXCLUDED.a, b = EXCLUDED.b,
			sample_count = EXCLUDED.sample_count,
			ece = EXCLUDED.ece, trained_at = EXCLUDED.trained_at
	`, p.TaskType, p.A, p.B, p.SampleCount, p.ECE, p.TrainedAt)
	if err != nil {
		return fmt.Errorf("save calibration %s: %w", p.TaskType, err)
	}
	return nil
}

// InsertOutcome records a raw prediction awaiting ground truth.
func (s *Store) InsertOutcome(ctx context.Context, o *calibration.Outcome) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO calibration_outcomes (task_type, raw_score, verified, truth)
		VALUES ($1, $2, $3, $4) RETURNING id
	`, o.TaskType, o.RawScore, o.Verified, o.Truth).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert outcome %s: %w", o.TaskType, err)
	}
	return nil
}

// VerifyOutcome attaches the ground truth to a recorded outcome.
func (s *Store) VerifyOutcome(ctx context.Context, id int64, truth bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE calibration_outcomes SET verified = TRUE, truth = $2 WHERE id = $1`, id, truth)
	if err != nil {
		return fmt.Errorf("verify outcome %d: %w", id, err)
	}
	return nil
}

// VerifiedOutcomes returns up to limit most-recent verified outcomes.
func (s *Store) VerifiedOutcomes(ctx context.Context, taskType string, limit int) ([]calibration.Outcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_type, raw_score, verified, truth
		FROM calibration_outcomes
		WHERE task_type = $1 AND verified
		ORDER BY id DESC LIMIT $2
	`, taskType, limit)
	if err != nil {
		return nil, fmt.Errorf("verified outcomes %s: %w", taskType, err)
	}
	defer rows.Close()

	var out []calibration.Outcome
	for rows.Next() {
		var o calibration.Outcome
		if err := rows.Scan(&o.ID, &o.TaskType, &o.RawScore, &o.Verified, &o.Truth); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetThreshold returns an adaptive threshold, or (nil, nil) when the
// (task, name) pair has no row yet.
func (s *Store) GetThreshold(ctx context.Context, taskType, name string) (*calibration.Threshold, error) {
	var t calibration.Threshold
	err := s.pool.QueryRow(ctx, `
		SELECT task_type, name, alpha, beta, current, min, max, tp, fp, tn, fn
		FROM thresholds WHERE task_type = $1 AND name = $2
	`, taskType, name).Scan(&t.TaskType, &t.Name, &t.Alpha, &t.Beta, &t.Current,
		&t.Min, &t.Max, &t.TP, &t.FP, &t.TN, &t.FN)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get threshold %s/%s: %w", taskType, name, err)
	}
	return &t, nil
}

// SaveThreshold upserts an adaptive threshold.
func (s *Store) SaveThreshold(ctx context.Context, t *calibration.Threshold) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO thresholds (task_type, name, alpha, beta, current, min, max, tp, fp, tn, fn)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (task_type, name) DO UPDATE SET
			alpha = EXCLUDED.alpha, beta = EXCLUDED.beta,
			current = EXCLUDED.current, min = EXCLUDED.min, max = EXCLUDED.max,
			tp = EXCLUDED.tp, fp = EXCLUDED.fp, tn = EXCLUDED.tn, fn = EXCLUDED.fn
	`, t.TaskType, t.Name, t.Alpha, t.Beta, t.Current, t.Min, t.Max, t.TP, t.FP, t.TN, t.FN)
	if err != nil {
		return fmt.Errorf("save threshold %s/%s: %w", t.TaskType, t.Name, err)
	}
	return nil
}
