package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skywatch-data/skywatch/internal/model"
)

// UpsertAircraft merges an identity record: non-null attributes win, the
// military flag only ever turns on, first_seen keeps the earliest value.
func (s *Store) UpsertAircraft(ctx context.Context, a *model.Aircraft) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO aircraft (hex, registration, type_code, operator, is_military, military_category, country, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (hex) DO UPDATE SET
			registration      = COALESCE(EXCLUDED.registration, aircraft.registration),
			type_code         = COALESCE(EXCLUDED.type_code, aircraft.type_code),
			operator          = COALESCE(EXCLUDED.operator, aircraft.operator),
			is_military       = aircraft.is_military OR EXCLUDED.is_military,
			military_category = COALESCE(EXCLUDED.military_category, aircraft.military_category),
			country           = COALESCE(EXCLUDED.country, aircraft.country),
			first_seen        = LEAST(aircraft.first_seen, EXCLUDED.first_seen),
			last_seen         = GREATEST(aircraft.last_seen, EXCLUDED.last_seen)
	`, a.Hex, a.Registration, a.TypeCode, a.Operator, a.IsMilitary, a.MilitaryCategory, a.Country, a.FirstSeen, a.LastSeen)
	if err != nil {
		return fmt.Errorf("upsert aircraft %s: %w", a.Hex, err)
	}
	return nil
}

// GetAircraft returns the identity record for a hex, or (nil, nil).
func (s *Store) GetAircraft(ctx context.Context, hex string) (*model.Aircraft, error) {
	var a model.Aircraft
	err := s.pool.QueryRow(ctx, `
		SELECT hex, registration, type_code, operator, is_military, military_category, country, first_seen, last_seen
		FROM aircraft WHERE hex = $1
	`, hex).Scan(&a.Hex, &a.Registration, &a.TypeCode, &a.Operator, &a.IsMilitary, &a.MilitaryCategory, &a.Country, &a.FirstSeen, &a.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get aircraft %s: %w", hex, err)
	}
	return &a, nil
}

// InsertPositions appends a batch to the position history and refreshes the
// latest-position table. A newer row already in positions_latest wins.
func (s *Store) InsertPositions(ctx context.Context, positions []model.Position) error {
	if len(positions) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, []interface{}{
			p.Hex, p.Time, p.Lat, p.Lon, p.AltitudeFt, p.GroundSpeed,
			p.Track, p.VerticalRate, p.Source, p.AgeSeconds,
		})
	}
	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{"positions"},
		[]string{"hex", "time", "lat", "lon", "altitude_ft", "ground_speed", "track", "vertical_rate", "source", "age_seconds"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy positions: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(`
			INSERT INTO positions_latest (hex, time, lat, lon, altitude_ft, ground_speed, track, vertical_rate, source, age_seconds)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (hex) DO UPDATE SET
				time = EXCLUDED.time, lat = EXCLUDED.lat, lon = EXCLUDED.lon,
				altitude_ft = EXCLUDED.altitude_ft, ground_speed = EXCLUDED.ground_speed,
				track = EXCLUDED.track, vertical_rate = EXCLUDED.vertical_rate,
				source = EXCLUDED.source, age_seconds = EXCLUDED.age_seconds
			WHERE positions_latest.time <= EXCLUDED.time
		`, p.Hex, p.Time, p.Lat, p.Lon, p.AltitudeFt, p.GroundSpeed, p.Track, p.VerticalRate, p.Source, p.AgeSeconds)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("refresh latest positions: %w", err)
	}
	return nil
}

const positionColumns = `hex, time, lat, lon, altitude_ft, ground_speed, track, vertical_rate, source, age_seconds`

func scanPositions(rows pgx.Rows) ([]model.Position, error) {
	defer rows.Close()
	var out []model.Position
	for rows.Next() {
		var p model.Position
		if err := rows.Scan(&p.Hex, &p.Time, &p.Lat, &p.Lon, &p.AltitudeFt, &p.GroundSpeed, &p.Track, &p.VerticalRate, &p.Source, &p.AgeSeconds); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LatestPositions returns the most recent position per aircraft, newest
// first.
func (s *Store) LatestPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionColumns+` FROM positions_latest ORDER BY time DESC`)
	if err != nil {
		return nil, fmt.Errorf("latest positions: %w", err)
	}
	return scanPositions(rows)
}

// MilitaryTrack is a latest position joined with aircraft identity, the raw
// material for formation and proximity snapshots.
type MilitaryTrack struct {
	model.Position
	TypeCode *string
	Category *string
}

// LatestMilitaryTracks returns the latest position of every military
// aircraft seen since the cutoff.
func (s *Store) LatestMilitaryTracks(ctx context.Context, since time.Time) ([]MilitaryTrack, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.hex, p.time, p.lat, p.lon, p.altitude_ft, p.ground_speed, p.track, p.vertical_rate, p.source, p.age_seconds,
		       a.type_code, a.military_category
		FROM positions_latest p
		JOIN aircraft a ON a.hex = p.hex
		WHERE a.is_military AND p.time >= $1
		ORDER BY p.hex
	`, since)
	if err != nil {
		return nil, fmt.Errorf("latest military tracks: %w", err)
	}
	defer rows.Close()

	var out []MilitaryTrack
	for rows.Next() {
		var t MilitaryTrack
		if err := rows.Scan(&t.Hex, &t.Time, &t.Lat, &t.Lon, &t.AltitudeFt, &t.GroundSpeed, &t.Track, &t.VerticalRate, &t.Source, &t.AgeSeconds, &t.TypeCode, &t.Category); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PositionsSince returns one aircraft's history newer than since, in time
// order.
func (s *Store) PositionsSince(ctx context.Context, hex string, since time.Time) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE hex = $1 AND time >= $2 ORDER BY time`,
		hex, since)
	if err != nil {
		return nil, fmt.Errorf("positions for %s: %w", hex, err)
	}
	return scanPositions(rows)
}

// MilitaryPositionsSince returns every military position newer than since.
func (s *Store) MilitaryPositionsSince(ctx context.Context, since time.Time) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.hex, p.time, p.lat, p.lon, p.altitude_ft, p.ground_speed, p.track, p.vertical_rate, p.source, p.age_seconds
		FROM positions p
		JOIN aircraft a ON a.hex = p.hex
		WHERE a.is_military AND p.time >= $1
		ORDER BY p.time
	`, since)
	if err != nil {
		return nil, fmt.Errorf("military positions: %w", err)
	}
	return scanPositions(rows)
}

// PositionNear returns the observed position for hex closest to target
// within the tolerance, or (nil, nil) when none exists.
func (s *Store) PositionNear(ctx context.Context, hex string, target time.Time, tolerance time.Duration) (*model.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE hex = $1 AND time BETWEEN $2 AND $3
		ORDER BY ABS(EXTRACT(EPOCH FROM (time - $4))) ASC
		LIMIT 1
	`, hex, target.Add(-tolerance), target.Add(tolerance), target)
	if err != nil {
		return nil, fmt.Errorf("position near %s: %w", hex, err)
	}
	out, err := scanPositions(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// PrunePositions deletes history rows older than the cutoff.
func (s *Store) PrunePositions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune positions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// OpenFlight starts a new flight for hex and returns its id.
func (s *Store) OpenFlight(ctx context.Context, hex string, departure time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO flights (hex, departure_time) VALUES ($1, $2) RETURNING id`,
		hex, departure).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("open flight for %s: %w", hex, err)
	}
	return id, nil
}

// OpenFlightFor returns hex's flight without an arrival time, or (nil, nil).
func (s *Store) OpenFlightFor(ctx context.Context, hex string) (*model.Flight, error) {
	var f model.Flight
	err := s.pool.QueryRow(ctx, `
		SELECT id, hex, departure_time, arrival_time, detected_pattern
		FROM flights WHERE hex = $1 AND arrival_time IS NULL
		ORDER BY departure_time DESC LIMIT 1
	`, hex).Scan(&f.ID, &f.Hex, &f.DepartureTime, &f.ArrivalTime, &f.DetectedPattern)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open flight for %s: %w", hex, err)
	}
	return &f, nil
}

// CloseFlight records the arrival time and the pattern detected over the
// flight, when any.
func (s *Store) CloseFlight(ctx context.Context, id int64, arrival time.Time, pattern *string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE flights SET arrival_time = $2, detected_pattern = COALESCE($3, detected_pattern) WHERE id = $1`,
		id, arrival, pattern)
	if err != nil {
		return fmt.Errorf("close flight %d: %w", id, err)
	}
	return nil
}

// OpenFlightPatterns returns the detected pattern of every open flight that
// has one, keyed by hex.
func (s *Store) OpenFlightPatterns(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT hex, detected_pattern
		FROM flights WHERE arrival_time IS NULL AND detected_pattern IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("open flight patterns: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var hex, pattern string
		if err := rows.Scan(&hex, &pattern); err != nil {
			return nil, err
		}
		out[hex] = pattern
	}
	return out, rows.Err()
}

// SetFlightPattern updates the detected pattern of an open flight.
func (s *Store) SetFlightPattern(ctx context.Context, id int64, pattern string) error {
	_, err := s.pool.Exec(ctx, `UPDATE flights SET detected_pattern = $2 WHERE id = $1`, id, pattern)
	if err != nil {
		return fmt.Errorf("set flight %d pattern: %w", id, err)
	}
	return nil
}
