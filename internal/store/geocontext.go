package store

import (
	"context"
	"fmt"
	"time"

	"github.com/skywatch-data/skywatch/internal/geocontext"
)

// ActiveInfrastructure returns every active infrastructure site.
func (s *Store) ActiveInfrastructure(ctx context.Context) ([]geocontext.Infrastructure, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, type, lat, lon, importance, active
		FROM infrastructure WHERE active ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("active infrastructure: %w", err)
	}
	defer rows.Close()

	var out []geocontext.Infrastructure
	for rows.Next() {
		var inf geocontext.Infrastructure
		if err := rows.Scan(&inf.ID, &inf.Name, &inf.Type, &inf.Lat, &inf.Lon, &inf.Importance, &inf.Active); err != nil {
			return nil, fmt.Errorf("scan infrastructure: %w", err)
		}
		out = append(out, inf)
	}
	return out, rows.Err()
}

// InsertInfrastructure persists a site and fills in its id.
func (s *Store) InsertInfrastructure(ctx context.Context, inf *geocontext.Infrastructure) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO infrastructure (name, type, lat, lon, importance, active)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id
	`, inf.Name, inf.Type, inf.Lat, inf.Lon, inf.Importance, inf.Active).Scan(&inf.ID)
	if err != nil {
		return fmt.Errorf("insert infrastructure %q: %w", inf.Name, err)
	}
	return nil
}

// ActiveAirspaces returns every active special-use airspace.
func (s *Store) ActiveAirspaces(ctx context.Context) ([]geocontext.Airspace, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, class, polygon, floor_ft, ceiling_ft, active
		FROM airspaces WHERE active ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("active airspaces: %w", err)
	}
	defer rows.Close()

	var out []geocontext.Airspace
	for rows.Next() {
		var a geocontext.Airspace
		var polygonJSON []byte
		if err := rows.Scan(&a.ID, &a.Name, &a.Class, &polygonJSON, &a.FloorFt, &a.CeilingFt, &a.Active); err != nil {
			return nil, fmt.Errorf("scan airspace: %w", err)
		}
		poly, err := unmarshalPolygon(polygonJSON)
		if err != nil {
			return nil, fmt.Errorf("decode airspace %d polygon: %w", a.ID, err)
		}
		a.Polygon = poly
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAirspace persists an airspace volume and fills in its id.
func (s *Store) InsertAirspace(ctx context.Context, a *geocontext.Airspace) error {
	polygonJSON, err := marshalPolygon(a.Polygon)
	if err != nil {
		return fmt.Errorf("encode airspace polygon: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO airspaces (name, class, polygon, floor_ft, ceiling_ft, active)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id
	`, a.Name, a.Class, polygonJSON, a.FloorFt, a.CeilingFt, a.Active).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert airspace %q: %w", a.Name, err)
	}
	return nil
}

// ActiveZones returns every active activity zone.
func (s *Store) ActiveZones(ctx context.Context) ([]geocontext.ActivityZone, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, center_lat, center_lon, radius_nm, level, active
		FROM activity_zones WHERE active ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("active zones: %w", err)
	}
	defer rows.Close()

	var out []geocontext.ActivityZone
	for rows.Next() {
		var z geocontext.ActivityZone
		if err := rows.Scan(&z.ID, &z.CenterLat, &z.CenterLon, &z.RadiusNM, &z.Level, &z.Active); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

// UpsertZone inserts or refreshes the zone keyed by its bucket center.
func (s *Store) UpsertZone(ctx context.Context, z *geocontext.ActivityZone, lastActivity time.Time) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO activity_zones (center_lat, center_lon, radius_nm, level, active, last_activity)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		ON CONFLICT (center_lat, center_lon) DO UPDATE SET
			radius_nm = EXCLUDED.radius_nm,
			level = EXCLUDED.level,
			active = TRUE,
			last_activity = GREATEST(activity_zones.last_activity, EXCLUDED.last_activity)
		RETURNING id
	`, z.CenterLat, z.CenterLon, z.RadiusNM, z.Level, lastActivity).Scan(&z.ID)
	if err != nil {
		return fmt.Errorf("upsert zone %.2f,%.2f: %w", z.CenterLat, z.CenterLon, err)
	}
	z.Active = true
	return nil
}

// DeactivateZonesBefore retires zones whose last activity predates the
// cutoff and reports how many were retired.
func (s *Store) DeactivateZonesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE activity_zones SET active = FALSE WHERE active AND last_activity < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivate zones: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
