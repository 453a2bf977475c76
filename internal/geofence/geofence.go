// Package geofence evaluates aircraft positions against user-defined
// polygon fences and drives the per-(fence, aircraft) state machine:
// outside, inside, dwelling. Alerts fire on the configured transitions and
// are idempotent across repeated evaluations of the same inside-set.
package geofence

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/skywatch-data/skywatch/internal/aggregator"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// States of the (geofence, aircraft) pair.
const (
	StateOutside  = "outside"
	StateInside   = "inside"
	StateDwelling = "dwelling"
)

// Alert types.
const (
	AlertEntry = "entry"
	AlertDwell = "dwell"
	AlertExit  = "exit"
)

// Severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// DefaultStaleAfter reverts state entries that have not been refreshed.
const DefaultStaleAfter = 30 * time.Minute

// longDwell marks a dwell threshold long enough that crossing it rates a
// high-severity alert on its own.
const longDwell = 1800 * time.Second

// Geofence is one active fence.
type Geofence struct {
	ID             int64
	Name           string
	Polygon        orb.Polygon // lon/lat rings
	DwellThreshold time.Duration
	AlertOnEntry   bool
	AlertOnDwell   bool
	AlertOnExit    bool
	Active         bool
}

// Contains reports whether the position lies inside the fence polygon.
func (g *Geofence) Contains(lat, lon float64) bool {
	return planar.PolygonContains(g.Polygon, orb.Point{lon, lat})
}

// State is the persisted condition of one (geofence, aircraft) pair.
type State struct {
	GeofenceID   int64
	Hex          string
	State        string
	EnteredAt    time.Time
	EntryLat     float64
	EntryLon     float64
	DwellAlerted bool
	LastSeen     time.Time
}

// Alert is one emitted geofence event.
type Alert struct {
	GeofenceID int64
	Fence      string
	Hex        string
	Type       string
	Severity   string
	Lat        float64
	Lon        float64
	Time       time.Time
}

// Store is the persistence surface for fences, pair states and alerts.
type Store interface {
	ActiveGeofences(ctx context.Context) ([]Geofence, error)
	GeofenceStates(ctx context.Context) ([]State, error)
	SaveGeofenceState(ctx context.Context, s *State) error
	DeleteGeofenceState(ctx context.Context, geofenceID int64, hex string) error
	InsertGeofenceAlert(ctx context.Context, a *Alert) error
}

// Config tunes the monitor.
type Config struct {
	StaleAfter time.Duration
}

// Monitor evaluates position batches against all active fences.
type Monitor struct {
	store Store
	cfg   Config
	clock timeutil.Clock
}

// NewMonitor builds a Monitor. Zero config fields take defaults; a nil
// clock falls back to the real one.
func NewMonitor(store Store, cfg Config, clock timeutil.Clock) *Monitor {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Monitor{store: store, cfg: cfg, clock: clock}
}

// highPriority reports whether the aircraft category rates elevated alert
// severity regardless of dwell length.
func highPriority(cat aggregator.Category) bool {
	return cat == aggregator.CategoryFighter || cat == aggregator.CategoryISR
}

func alertSeverity(alertType string, fence *Geofence, cat aggregator.Category) string {
	if highPriority(cat) {
		if alertType == AlertExit {
			return SeverityMedium
		}
		return SeverityHigh
	}
	switch alertType {
	case AlertDwell:
		if fence.DwellThreshold > longDwell {
			return SeverityHigh
		}
		return SeverityMedium
	case AlertEntry:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Evaluate runs one batch of positions through every active fence and
// returns the alerts emitted. Categories may be nil when classification is
// unavailable. Stale pair states revert to outside without an exit alert.
func (m *Monitor) Evaluate(ctx context.Context, positions []model.Position, categories map[string]aggregator.Category) ([]Alert, error) {
	now := m.clock.Now().UTC()

	fences, err := m.store.ActiveGeofences(ctx)
	if err != nil {
		return nil, fmt.Errorf("load geofences: %w", err)
	}
	states, err := m.store.GeofenceStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load geofence states: %w", err)
	}

	type key struct {
		fence int64
		hex   string
	}
	byKey := map[key]*State{}
	for i := range states {
		s := &states[i]
		byKey[key{s.GeofenceID, s.Hex}] = s
	}

	// Latest position per hex wins within the batch.
	latest := map[string]model.Position{}
	for _, p := range positions {
		if prev, ok := latest[p.Hex]; !ok || p.Time.After(prev.Time) {
			latest[p.Hex] = p
		}
	}

	var alerts []Alert
	emit := func(fence *Geofence, hex, alertType string, lat, lon float64) error {
		a := Alert{
			GeofenceID: fence.ID,
			Fence:      fence.Name,
			Hex:        hex,
			Type:       alertType,
			Severity:   alertSeverity(alertType, fence, categories[hex]),
			Lat:        lat,
			Lon:        lon,
			Time:       now,
		}
		if err := m.store.InsertGeofenceAlert(ctx, &a); err != nil {
			return fmt.Errorf("insert %s alert for %s: %w", alertType, hex, err)
		}
		alerts = append(alerts, a)
		return nil
	}

	for fi := range fences {
		fence := &fences[fi]
		inside := map[string]model.Position{}
		for hex, p := range latest {
			if fence.Contains(p.Lat, p.Lon) {
				inside[hex] = p
			}
		}

		// Transitions for aircraft currently inside.
		for hex, p := range inside {
			k := key{fence.ID, hex}
			s, ok := byKey[k]
			if !ok || s.State == StateOutside {
				ns := &State{
					GeofenceID: fence.ID,
					Hex:        hex,
					State:      StateInside,
					EnteredAt:  now,
					EntryLat:   p.Lat,
					EntryLon:   p.Lon,
					LastSeen:   now,
				}
				if err := m.store.SaveGeofenceState(ctx, ns); err != nil {
					return alerts, fmt.Errorf("save state %d/%s: %w", fence.ID, hex, err)
				}
				byKey[k] = ns
				if fence.AlertOnEntry {
					if err := emit(fence, hex, AlertEntry, p.Lat, p.Lon); err != nil {
						return alerts, err
					}
				}
				continue
			}

			s.LastSeen = now
			if s.State == StateInside && now.Sub(s.EnteredAt) >= fence.DwellThreshold {
				s.State = StateDwelling
				if fence.AlertOnDwell && !s.DwellAlerted {
					s.DwellAlerted = true
					if err := emit(fence, hex, AlertDwell, p.Lat, p.Lon); err != nil {
						return alerts, err
					}
				}
			}
			if err := m.store.SaveGeofenceState(ctx, s); err != nil {
				return alerts, fmt.Errorf("save state %d/%s: %w", fence.ID, hex, err)
			}
		}

		// Exits and stale reversion for tracked pairs no longer inside.
		for _, s := range states {
			if s.GeofenceID != fence.ID || s.State == StateOutside {
				continue
			}
			if _, still := inside[s.Hex]; still {
				continue
			}
			stale := now.Sub(s.LastSeen) >= m.cfg.StaleAfter
			if !stale {
				// Seen this tick but outside the polygon: a real exit.
				if p, observed := latest[s.Hex]; observed {
					if fence.AlertOnExit {
						if err := emit(fence, s.Hex, AlertExit, p.Lat, p.Lon); err != nil {
							return alerts, err
						}
					}
				} else {
					// Not observed this tick; keep the state until stale.
					continue
				}
			}
			if err := m.store.DeleteGeofenceState(ctx, fence.ID, s.Hex); err != nil {
				return alerts, fmt.Errorf("delete state %d/%s: %w", fence.ID, s.Hex, err)
			}
			delete(byKey, key{fence.ID, s.Hex})
		}
	}

	return alerts, nil
}
