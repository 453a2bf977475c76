package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skywatch-data/skywatch/internal/intel"
)

// InsertAnomaly records one detected behavioral anomaly.
func (s *Store) InsertAnomaly(ctx context.Context, a *intel.Anomaly) error {
	factorsJSON, err := json.Marshal(a.Factors)
	if err != nil {
		return fmt.Errorf("encode anomaly factors: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO anomalies (hex, flight_id, type, severity, raw_score, detected, expected, factors, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, a.Hex, a.FlightID, a.Type, a.Severity, a.RawScore, a.Detected, a.Expected, factorsJSON, a.DetectedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert anomaly %s/%s: %w", a.Hex, a.Type, err)
	}
	return nil
}

// AnomaliesSince returns anomalies newer than since, newest first.
func (s *Store) AnomaliesSince(ctx context.Context, since time.Time) ([]intel.Anomaly, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hex, flight_id, type, severity, raw_score, detected, expected, factors, detected_at
		FROM anomalies WHERE detected_at >= $1 ORDER BY detected_at DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("anomalies since: %w", err)
	}
	defer rows.Close()

	var out []intel.Anomaly
	for rows.Next() {
		var a intel.Anomaly
		var factorsJSON []byte
		if err := rows.Scan(&a.ID, &a.Hex, &a.FlightID, &a.Type, &a.Severity, &a.RawScore,
			&a.Detected, &a.Expected, &factorsJSON, &a.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		if err := json.Unmarshal(factorsJSON, &a.Factors); err != nil {
			return nil, fmt.Errorf("decode anomaly %d factors: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertIntent records one intent classification.
func (s *Store) InsertIntent(ctx context.Context, i *intel.Intent) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO intents (hex, flight_id, intent, confidence, reasoning, classified_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, i.Hex, i.FlightID, i.Intent, i.Confidence, i.Reasoning, i.ClassifiedAt).Scan(&i.ID)
	if err != nil {
		return fmt.Errorf("insert intent %s/%s: %w", i.Hex, i.Intent, err)
	}
	return nil
}

// SaveThreat records one threat assessment.
func (s *Store) SaveThreat(ctx context.Context, t *intel.Threat) error {
	componentsJSON, err := json.Marshal(t.Components)
	if err != nil {
		return fmt.Errorf("encode threat components: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO threats (entity_type, entity_id, score, level, components, assessed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, t.EntityType, t.EntityID, t.Score, t.Level, componentsJSON, t.AssessedAt, t.ExpiresAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("save threat %s/%s: %w", t.EntityType, t.EntityID, err)
	}
	return nil
}

// CurrentThreats returns unexpired threat assessments, highest score first.
func (s *Store) CurrentThreats(ctx context.Context, now time.Time) ([]intel.Threat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, score, level, components, assessed_at, expires_at
		FROM threats WHERE expires_at > $1 ORDER BY score DESC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("current threats: %w", err)
	}
	defer rows.Close()

	var out []intel.Threat
	for rows.Next() {
		var t intel.Threat
		var componentsJSON []byte
		if err := rows.Scan(&t.ID, &t.EntityType, &t.EntityID, &t.Score, &t.Level,
			&componentsJSON, &t.AssessedAt, &t.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan threat: %w", err)
		}
		if err := json.Unmarshal(componentsJSON, &t.Components); err != nil {
			return nil, fmt.Errorf("decode threat %d components: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
