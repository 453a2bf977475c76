package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/skywatch-data/skywatch/internal/geofence"
)

func marshalPolygon(p orb.Polygon) ([]byte, error) {
	return json.Marshal(geojson.NewGeometry(p))
}

func unmarshalPolygon(raw []byte) (orb.Polygon, error) {
	var g geojson.Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	poly, ok := g.Geometry().(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("geometry is %s, want Polygon", g.Type)
	}
	return poly, nil
}

// ActiveGeofences returns every active fence.
func (s *Store) ActiveGeofences(ctx context.Context) ([]geofence.Geofence, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, polygon, dwell_threshold_seconds, alert_on_entry, alert_on_dwell, alert_on_exit, active
		FROM geofences WHERE active ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("active geofences: %w", err)
	}
	defer rows.Close()

	var out []geofence.Geofence
	for rows.Next() {
		g, err := scanGeofence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGeofence(row pgx.Row) (geofence.Geofence, error) {
	var g geofence.Geofence
	var polygonJSON []byte
	var dwellSeconds int
	if err := row.Scan(&g.ID, &g.Name, &polygonJSON, &dwellSeconds,
		&g.AlertOnEntry, &g.AlertOnDwell, &g.AlertOnExit, &g.Active); err != nil {
		return g, fmt.Errorf("scan geofence: %w", err)
	}
	poly, err := unmarshalPolygon(polygonJSON)
	if err != nil {
		return g, fmt.Errorf("decode geofence %d polygon: %w", g.ID, err)
	}
	g.Polygon = poly
	g.DwellThreshold = time.Duration(dwellSeconds) * time.Second
	return g, nil
}

// GetGeofence returns one fence by id, or (nil, nil).
func (s *Store) GetGeofence(ctx context.Context, id int64) (*geofence.Geofence, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, polygon, dwell_threshold_seconds, alert_on_entry, alert_on_dwell, alert_on_exit, active
		FROM geofences WHERE id = $1
	`, id)
	g, err := scanGeofence(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// InsertGeofence persists a new fence and fills in its id.
func (s *Store) InsertGeofence(ctx context.Context, g *geofence.Geofence) error {
	polygonJSON, err := marshalPolygon(g.Polygon)
	if err != nil {
		return fmt.Errorf("encode geofence polygon: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO geofences (name, polygon, dwell_threshold_seconds, alert_on_entry, alert_on_dwell, alert_on_exit, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, g.Name, polygonJSON, int(g.DwellThreshold.Seconds()),
		g.AlertOnEntry, g.AlertOnDwell, g.AlertOnExit, g.Active).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("insert geofence %q: %w", g.Name, err)
	}
	return nil
}

// UpdateGeofence rewrites a fence in place.
func (s *Store) UpdateGeofence(ctx context.Context, g *geofence.Geofence) error {
	polygonJSON, err := marshalPolygon(g.Polygon)
	if err != nil {
		return fmt.Errorf("encode geofence polygon: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE geofences SET
			name = $2, polygon = $3, dwell_threshold_seconds = $4,
			alert_on_entry = $5, alert_on_dwell = $6, alert_on_exit = $7, active = $8
		WHERE id = $1
	`, g.ID, g.Name, polygonJSON, int(g.DwellThreshold.Seconds()),
		g.AlertOnEntry, g.AlertOnDwell, g.AlertOnExit, g.Active)
	if err != nil {
		return fmt.Errorf("update geofence %d: %w", g.ID, err)
	}
	return nil
}

// DeleteGeofence removes a fence and, via cascade, its pair states.
func (s *Store) DeleteGeofence(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM geofences WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete geofence %d: %w", id, err)
	}
	return nil
}

// GeofenceStates returns every persisted (fence, aircraft) pair state.
func (s *Store) GeofenceStates(ctx context.Context) ([]geofence.State, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT geofence_id, hex, state, entered_at, entry_lat, entry_lon, dwell_alerted, last_seen
		FROM geofence_states
	`)
	if err != nil {
		return nil, fmt.Errorf("geofence states: %w", err)
	}
	defer rows.Close()

	var out []geofence.State
	for rows.Next() {
		var st geofence.State
		if err := rows.Scan(&st.GeofenceID, &st.Hex, &st.State, &st.EnteredAt,
			&st.EntryLat, &st.EntryLon, &st.DwellAlerted, &st.LastSeen); err != nil {
			return nil, fmt.Errorf("scan geofence state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SaveGeofenceState upserts one pair state.
func (s *Store) SaveGeofenceState(ctx context.Context, st *geofence.State) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO geofence_states (geofence_id, hex, state, entered_at, entry_lat, entry_lon, dwell_alerted, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (geofence_id, hex) DO UPDATE SET
			state = EXCLUDED.state,
			entered_at = EXCLUDED.entered_at,
			entry_lat = EXCLUDED.entry_lat,
			entry_lon = EXCLUDED.entry_lon,
			dwell_alerted = EXCLUDED.dwell_alerted,
			last_seen = EXCLUDED.last_seen
	`, st.GeofenceID, st.Hex, st.State, st.EnteredAt, st.EntryLat, st.EntryLon, st.DwellAlerted, st.LastSeen)
	if err != nil {
		return fmt.Errorf("save geofence state %d/%s: %w", st.GeofenceID, st.Hex, err)
	}
	return nil
}

// DeleteGeofenceState drops one pair state.
func (s *Store) DeleteGeofenceState(ctx context.Context, geofenceID int64, hex string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM geofence_states WHERE geofence_id = $1 AND hex = $2`, geofenceID, hex)
	if err != nil {
		return fmt.Errorf("delete geofence state %d/%s: %w", geofenceID, hex, err)
	}
	return nil
}

// InsertGeofenceAlert records one emitted geofence event.
func (s *Store) InsertGeofenceAlert(ctx context.Context, a *geofence.Alert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO geofence_alerts (geofence_id, fence_name, hex, type, severity, lat, lon, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.GeofenceID, a.Fence, a.Hex, a.Type, a.Severity, a.Lat, a.Lon, a.Time)
	if err != nil {
		return fmt.Errorf("insert geofence alert %s/%s: %w", a.Fence, a.Hex, err)
	}
	return nil
}

// GeofenceAlertsSince returns geofence events newer than since, newest
// first.
func (s *Store) GeofenceAlertsSince(ctx context.Context, since time.Time) ([]geofence.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT geofence_id, fence_name, hex, type, severity, lat, lon, time
		FROM geofence_alerts WHERE time >= $1 ORDER BY time DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("geofence alerts: %w", err)
	}
	defer rows.Close()

	var out []geofence.Alert
	for rows.Next() {
		var a geofence.Alert
		if err := rows.Scan(&a.GeofenceID, &a.Fence, &a.Hex, &a.Type, &a.Severity, &a.Lat, &a.Lon, &a.Time); err != nil {
			return nil, fmt.Errorf("scan geofence alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
