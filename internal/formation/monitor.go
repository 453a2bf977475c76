package formation

import (
	"context"
	"fmt"
	"time"

	"github.com/skywatch-data/skywatch/internal/monitoring"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// StaleAfter is how long a formation can go unrefreshed before it is marked
// inactive.
const StaleAfter = 10 * time.Minute

// Store is the persistence surface the monitor needs.
type Store interface {
	ActiveFormations(ctx context.Context) ([]Formation, error)
	InsertFormation(ctx context.Context, f *Formation) error
	UpdateFormation(ctx context.Context, f *Formation) error
	DeactivateFormation(ctx context.Context, id int64) error
}

// Monitor runs detection over snapshots and reconciles results against the
// persisted active set.
type Monitor struct {
	store Store
	clock timeutil.Clock
}

// NewMonitor builds a Monitor. A nil clock falls back to the real one.
func NewMonitor(store Store, clock timeutil.Clock) *Monitor {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Monitor{store: store, clock: clock}
}

// Process detects formations in the snapshot and upserts them: a detection
// sharing any aircraft with an active formation of the same type refreshes
// that formation, anything else inserts. Formations unrefreshed for
// StaleAfter are deactivated. Returns the detections found.
func (m *Monitor) Process(ctx context.Context, snapshot []SnapshotAircraft) ([]Detection, error) {
	detections := Detect(snapshot)
	now := m.clock.Now().UTC()

	active, err := m.store.ActiveFormations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active formations: %w", err)
	}

	refreshed := map[int64]bool{}
	for _, d := range detections {
		existing := matchFormation(active, d, refreshed)
		if existing != nil {
			existing.Aircraft = d.Aircraft
			existing.Confidence = d.Confidence
			existing.CenterLat = d.CenterLat
			existing.CenterLon = d.CenterLon
			existing.AltitudeFt = d.AltitudeFt
			existing.LastSeen = now
			refreshed[existing.ID] = true
			if err := m.store.UpdateFormation(ctx, existing); err != nil {
				return nil, fmt.Errorf("update formation %d: %w", existing.ID, err)
			}
			continue
		}

		f := &Formation{
			Type:       d.Type,
			Aircraft:   d.Aircraft,
			Confidence: d.Confidence,
			CenterLat:  d.CenterLat,
			CenterLon:  d.CenterLon,
			AltitudeFt: d.AltitudeFt,
			FirstSeen:  now,
			LastSeen:   now,
			Active:     true,
		}
		if err := m.store.InsertFormation(ctx, f); err != nil {
			return nil, fmt.Errorf("insert %s formation: %w", d.Type, err)
		}
		monitoring.Logf("formation: new %s with %d aircraft (conf %.2f)", d.Type, len(d.Aircraft), d.Confidence)
	}

	for i := range active {
		f := &active[i]
		if refreshed[f.ID] {
			continue
		}
		if now.Sub(f.LastSeen) >= StaleAfter {
			if err := m.store.DeactivateFormation(ctx, f.ID); err != nil {
				return nil, fmt.Errorf("deactivate formation %d: %w", f.ID, err)
			}
		}
	}

	return detections, nil
}

// matchFormation finds an unclaimed active formation of the same type that
// shares at least one aircraft with the detection.
func matchFormation(active []Formation, d Detection, claimed map[int64]bool) *Formation {
	members := map[string]bool{}
	for _, hex := range d.Aircraft {
		members[hex] = true
	}
	for i := range active {
		f := &active[i]
		if f.Type != d.Type || claimed[f.ID] {
			continue
		}
		for _, hex := range f.Aircraft {
			if members[hex] {
				return f
			}
		}
	}
	return nil
}
