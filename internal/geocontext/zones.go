package geocontext

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// Zone refresh parameters: positions cluster into 0.1 degree buckets, and a
// bucket needs three distinct military aircraft to materialize a zone.
const (
	zoneBucketDeg    = 0.1
	zoneMinAircraft  = 3
	zoneRadiusNM     = 30.0
	zoneLookback     = 24 * time.Hour
	zoneDeactivation = 2 * time.Hour
)

// ZoneStore is the persistence surface for the zone refresher.
type ZoneStore interface {
	// MilitaryPositionsSince returns military positions newer than since.
	MilitaryPositionsSince(ctx context.Context, since time.Time) ([]model.Position, error)
	// UpsertZone inserts or refreshes the zone keyed by its bucket center.
	UpsertZone(ctx context.Context, z *ActivityZone, lastActivity time.Time) error
	// DeactivateZonesBefore retires zones whose last activity predates the cutoff.
	DeactivateZonesBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Refresher rebuilds activity zones from recent traffic.
type Refresher struct {
	store ZoneStore
	clock timeutil.Clock
}

// NewRefresher builds a Refresher. A nil clock falls back to the real one.
func NewRefresher(store ZoneStore, clock timeutil.Clock) *Refresher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Refresher{store: store, clock: clock}
}

type bucketKey struct {
	latBin int
	lonBin int
}

type bucketAgg struct {
	hexes    map[string]bool
	latest   time.Time
	latSum   float64
	lonSum   float64
	nSamples int
}

// Refresh clusters the past day's military positions into lat/lon buckets,
// upserts a zone for every bucket with enough distinct aircraft, and
// deactivates zones quiet for over two hours. Returns the number of zones
// upserted.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	now := r.clock.Now().UTC()
	positions, err := r.store.MilitaryPositionsSince(ctx, now.Add(-zoneLookback))
	if err != nil {
		return 0, fmt.Errorf("load recent positions: %w", err)
	}

	buckets := map[bucketKey]*bucketAgg{}
	for _, p := range positions {
		k := bucketKey{
			latBin: int(math.Floor(p.Lat / zoneBucketDeg)),
			lonBin: int(math.Floor(p.Lon / zoneBucketDeg)),
		}
		b, ok := buckets[k]
		if !ok {
			b = &bucketAgg{hexes: map[string]bool{}}
			buckets[k] = b
		}
		b.hexes[p.Hex] = true
		b.latSum += p.Lat
		b.lonSum += p.Lon
		b.nSamples++
		if p.Time.After(b.latest) {
			b.latest = p.Time
		}
	}

	var upserted int
	for _, b := range buckets {
		if len(b.hexes) < zoneMinAircraft {
			continue
		}
		zone := &ActivityZone{
			CenterLat: b.latSum / float64(b.nSamples),
			CenterLon: b.lonSum / float64(b.nSamples),
			RadiusNM:  zoneRadiusNM,
			Level:     activityLevel(len(b.hexes)),
			Active:    true,
		}
		if err := r.store.UpsertZone(ctx, zone, b.latest); err != nil {
			return upserted, fmt.Errorf("upsert zone: %w", err)
		}
		upserted++
	}

	if _, err := r.store.DeactivateZonesBefore(ctx, now.Add(-zoneDeactivation)); err != nil {
		return upserted, fmt.Errorf("deactivate stale zones: %w", err)
	}
	return upserted, nil
}

// activityLevel grades a bucket by its distinct aircraft count.
func activityLevel(aircraft int) string {
	switch {
	case aircraft >= 10:
		return "intense"
	case aircraft >= 6:
		return "high"
	case aircraft >= 4:
		return "moderate"
	default:
		return "low"
	}
}
