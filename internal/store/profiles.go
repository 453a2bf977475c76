package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/skywatch-data/skywatch/internal/profile"
)

// GetProfile returns the behavioral profile for a hex, or (nil, nil).
func (s *Store) GetProfile(ctx context.Context, hex string) (*profile.Profile, error) {
	var (
		p                        profile.Profile
		patternJSON, regionsJSON []byte
		altJSON, speedJSON       []byte
		hourlyJSON, dailyJSON    []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT hex, pattern_dist, regions, altitude, speed, hourly, daily, sample_count, is_trained, last_flight_at, updated_at
		FROM profiles WHERE hex = $1
	`, hex).Scan(&p.Hex, &patternJSON, &regionsJSON, &altJSON, &speedJSON, &hourlyJSON, &dailyJSON,
		&p.SampleCount, &p.IsTrained, &p.LastFlightAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", hex, err)
	}

	for _, f := range []struct {
		raw []byte
		dst interface{}
	}{
		{patternJSON, &p.PatternDist},
		{regionsJSON, &p.Regions},
		{altJSON, &p.Altitude},
		{speedJSON, &p.Speed},
		{hourlyJSON, &p.Hourly},
		{dailyJSON, &p.Daily},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", hex, err)
		}
	}
	return &p, nil
}

// SaveProfile upserts the whole profile.
func (s *Store) SaveProfile(ctx context.Context, p *profile.Profile) error {
	patternJSON, err := json.Marshal(p.PatternDist)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.Hex, err)
	}
	regionsJSON, _ := json.Marshal(p.Regions)
	altJSON, _ := json.Marshal(p.Altitude)
	speedJSON, _ := json.Marshal(p.Speed)
	hourlyJSON, _ := json.Marshal(p.Hourly)
	dailyJSON, _ := json.Marshal(p.Daily)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO profiles (hex, pattern_dist, regions, altitude, speed, hourly, daily, sample_count, is_trained, last_flight_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (hex) DO UPDATE SET
			pattern_dist = EXCLUDED.pattern_dist,
			regions = EXCLUDED.regions,
			altitude = EXCLUDED.altitude,
			speed = EXCLUDED.speed,
			hourly = EXCLUDED.hourly,
			daily = EXCLUDED.daily,
			sample_count = EXCLUDED.sample_count,
			is_trained = EXCLUDED.is_trained,
			last_flight_at = EXCLUDED.last_flight_at,
			updated_at = EXCLUDED.updated_at
	`, p.Hex, patternJSON, regionsJSON, altJSON, speedJSON, hourlyJSON, dailyJSON,
		p.SampleCount, p.IsTrained, p.LastFlightAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.Hex, err)
	}
	return nil
}
