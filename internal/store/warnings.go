package store

import (
	"context"
	"fmt"
	"time"

	"github.com/skywatch-data/skywatch/internal/proximity"
)

// ActiveWarnings returns every proximity warning still marked active.
func (s *Store) ActiveWarnings(ctx context.Context) ([]proximity.Warning, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hex1, hex2, type, severity, confidence, distance_nm, cpa_distance_nm,
		       time_to_cpa_seconds, closure_kts, vertical_ft, first_seen, last_seen, active
		FROM proximity_warnings WHERE active ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("active warnings: %w", err)
	}
	defer rows.Close()

	var out []proximity.Warning
	for rows.Next() {
		var w proximity.Warning
		var tCPASeconds float64
		if err := rows.Scan(&w.ID, &w.Hex1, &w.Hex2, &w.Type, &w.Severity, &w.Confidence,
			&w.DistanceNM, &w.CPADistanceNM, &tCPASeconds, &w.ClosureKts, &w.VerticalFt,
			&w.FirstSeen, &w.LastSeen, &w.Active); err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		w.TimeToCPA = time.Duration(tCPASeconds * float64(time.Second))
		out = append(out, w)
	}
	return out, rows.Err()
}

// InsertWarning persists a new warning and fills in its id.
func (s *Store) InsertWarning(ctx context.Context, w *proximity.Warning) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO proximity_warnings (hex1, hex2, type, severity, confidence, distance_nm,
			cpa_distance_nm, time_to_cpa_seconds, closure_kts, vertical_ft, first_seen, last_seen, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, w.Hex1, w.Hex2, w.Type, w.Severity, w.Confidence, w.DistanceNM,
		w.CPADistanceNM, w.TimeToCPA.Seconds(), w.ClosureKts, w.VerticalFt,
		w.FirstSeen, w.LastSeen, w.Active).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("insert warning %s/%s: %w", w.Hex1, w.Hex2, err)
	}
	return nil
}

// UpdateWarning refreshes a tracked warning in place.
func (s *Store) UpdateWarning(ctx context.Context, w *proximity.Warning) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE proximity_warnings SET
			type = $2, severity = $3, confidence = $4, distance_nm = $5,
			cpa_distance_nm = $6, time_to_cpa_seconds = $7, closure_kts = $8,
			vertical_ft = $9, last_seen = $10
		WHERE id = $1
	`, w.ID, w.Type, w.Severity, w.Confidence, w.DistanceNM,
		w.CPADistanceNM, w.TimeToCPA.Seconds(), w.ClosureKts, w.VerticalFt, w.LastSeen)
	if err != nil {
		return fmt.Errorf("update warning %d: %w", w.ID, err)
	}
	return nil
}

// DeactivateWarning marks a warning inactive.
func (s *Store) DeactivateWarning(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE proximity_warnings SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate warning %d: %w", id, err)
	}
	return nil
}
