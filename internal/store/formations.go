package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/skywatch-data/skywatch/internal/formation"
)

// ActiveFormations returns every formation still marked active.
func (s *Store) ActiveFormations(ctx context.Context) ([]formation.Formation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, aircraft, confidence, center_lat, center_lon, altitude_ft, first_seen, last_seen, active
		FROM formations WHERE active ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("active formations: %w", err)
	}
	defer rows.Close()

	var out []formation.Formation
	for rows.Next() {
		f, err := scanFormation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFormation(rows pgx.Rows) (formation.Formation, error) {
	var f formation.Formation
	var aircraftJSON []byte
	if err := rows.Scan(&f.ID, &f.Type, &aircraftJSON, &f.Confidence, &f.CenterLat, &f.CenterLon, &f.AltitudeFt, &f.FirstSeen, &f.LastSeen, &f.Active); err != nil {
		return f, fmt.Errorf("scan formation: %w", err)
	}
	if err := json.Unmarshal(aircraftJSON, &f.Aircraft); err != nil {
		return f, fmt.Errorf("decode formation %d aircraft: %w", f.ID, err)
	}
	return f, nil
}

// InsertFormation persists a new formation and fills in its id.
func (s *Store) InsertFormation(ctx context.Context, f *formation.Formation) error {
	aircraftJSON, err := json.Marshal(f.Aircraft)
	if err != nil {
		return fmt.Errorf("encode formation aircraft: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO formations (type, aircraft, confidence, center_lat, center_lon, altitude_ft, first_seen, last_seen, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, f.Type, aircraftJSON, f.Confidence, f.CenterLat, f.CenterLon, f.AltitudeFt, f.FirstSeen, f.LastSeen, f.Active).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("insert %s formation: %w", f.Type, err)
	}
	return nil
}

// UpdateFormation refreshes a tracked formation in place.
func (s *Store) UpdateFormation(ctx context.Context, f *formation.Formation) error {
	aircraftJSON, err := json.Marshal(f.Aircraft)
	if err != nil {
		return fmt.Errorf("encode formation aircraft: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE formations SET
			aircraft = $2, confidence = $3, center_lat = $4, center_lon = $5,
			altitude_ft = $6, last_seen = $7
		WHERE id = $1
	`, f.ID, aircraftJSON, f.Confidence, f.CenterLat, f.CenterLon, f.AltitudeFt, f.LastSeen)
	if err != nil {
		return fmt.Errorf("update formation %d: %w", f.ID, err)
	}
	return nil
}

// DeactivateFormation marks a formation inactive.
func (s *Store) DeactivateFormation(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE formations SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate formation %d: %w", id, err)
	}
	return nil
}
