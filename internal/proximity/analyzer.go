// Package proximity runs pairwise closest-point-of-approach analysis over a
// snapshot of active military aircraft and maintains the resulting warning
// lifecycle.
package proximity

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/skywatch-data/skywatch/internal/geo"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// Severity levels, ordered.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Warning types.
const (
	TypeSameAltitude     = "same_altitude"
	TypeParallelApproach = "parallel_approach"
	TypeConvergence      = "convergence"
	TypeCrossing         = "crossing"
	TypeVerticalConflict = "vertical_conflict"
)

// Analyzer thresholds.
const (
	minClosureKts  = 50.0
	maxTimeToCPA   = 30 * time.Minute
	maxCPANM       = 20.0
	rawDistGateNM  = 40.0 // 2x the low-severity lateral threshold
	minConfidence  = 0.5
	WarningTimeout = 10 * time.Minute
)

// Target is one aircraft in the analysis snapshot.
type Target struct {
	Hex         string
	Lat         float64
	Lon         float64
	AltitudeFt  *float64
	GroundSpeed *float64
	Track       *float64
}

// Conflict is the geometry computed for one converging pair.
type Conflict struct {
	Hex1          string // smaller hex
	Hex2          string
	Type          string
	Severity      string
	Confidence    float64
	DistanceNM    float64
	CPADistanceNM float64
	TimeToCPA     time.Duration
	ClosureKts    float64
	VerticalFt    *float64
}

// Warning is a persisted conflict with lifecycle fields.
type Warning struct {
	ID        int64
	Conflict
	FirstSeen time.Time
	LastSeen  time.Time
	Active    bool
}

// Analyze evaluates every unordered pair and returns the conflicts worth
// acting on: converging, CPA inside 20 nm, confidence at least 0.5.
func Analyze(snapshot []Target) []Conflict {
	var out []Conflict
	for i := 0; i < len(snapshot); i++ {
		for j := i + 1; j < len(snapshot); j++ {
			if c, ok := analyzePair(snapshot[i], snapshot[j]); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

func analyzePair(a, b Target) (Conflict, bool) {
	raw, err := geo.DistanceNM(a.Lat, a.Lon, b.Lat, b.Lon)
	if err != nil || raw > rawDistGateNM {
		return Conflict{}, false
	}

	var vertical *float64
	if a.AltitudeFt != nil && b.AltitudeFt != nil {
		v := math.Abs(*a.AltitudeFt - *b.AltitudeFt)
		vertical = &v
	}

	ka := kinematics(a)
	kb := kinematics(b)
	cpa, err := geo.ComputeCPA(ka, kb)
	if err != nil {
		return Conflict{}, false
	}
	if cpa.ClosureRateKts <= minClosureKts {
		return Conflict{}, false
	}
	if cpa.TimeToCPAHours < 0 {
		return Conflict{}, false
	}
	tCPA := time.Duration(cpa.TimeToCPAHours * float64(time.Hour))
	if tCPA > maxTimeToCPA {
		return Conflict{}, false
	}

	severity, ok := severityFor(cpa.DistanceNM, vertical)
	if !ok || cpa.DistanceNM >= maxCPANM {
		return Conflict{}, false
	}

	conf := confidence(a, b, tCPA)
	if conf < minConfidence {
		return Conflict{}, false
	}

	c := Conflict{
		Type:          warningType(a, b, vertical),
		Severity:      severity,
		Confidence:    conf,
		DistanceNM:    raw,
		CPADistanceNM: cpa.DistanceNM,
		TimeToCPA:     tCPA,
		ClosureKts:    cpa.ClosureRateKts,
		VerticalFt:    vertical,
	}
	c.Hex1, c.Hex2 = orderPair(a.Hex, b.Hex)
	return c, true
}

func kinematics(t Target) geo.Kinematics {
	k := geo.Kinematics{Lat: t.Lat, Lon: t.Lon}
	if t.Track != nil {
		k.TrackDeg = *t.Track
	}
	if t.GroundSpeed != nil {
		k.SpeedKts = *t.GroundSpeed
	}
	return k
}

func orderPair(h1, h2 string) (string, string) {
	if h1 < h2 {
		return h1, h2
	}
	return h2, h1
}

// warningType classifies the conflict geometry. Heading geometry wins when
// both tracks are known; altitude-based types carry the rest.
func warningType(a, b Target, vertical *float64) string {
	if a.Track != nil && b.Track != nil {
		diff := geo.AngleDiff(*a.Track, *b.Track)
		switch {
		case diff < 30:
			return TypeParallelApproach
		case diff > 150:
			return TypeConvergence
		case diff > 60 && diff < 120:
			return TypeCrossing
		}
	}
	if vertical != nil && *vertical < 500 {
		return TypeSameAltitude
	}
	if vertical != nil && *vertical < 2000 {
		return TypeVerticalConflict
	}
	return TypeConvergence
}

var severityRank = map[string]int{
	SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3, SeverityCritical: 4,
}

// severityFor combines lateral CPA distance with vertical separation,
// keeping the more severe of the two.
func severityFor(cpaNM float64, vertical *float64) (string, bool) {
	var lateral string
	switch {
	case cpaNM < 3:
		lateral = SeverityCritical
	case cpaNM < 5:
		lateral = SeverityHigh
	case cpaNM < 10:
		lateral = SeverityMedium
	case cpaNM < 20:
		lateral = SeverityLow
	default:
		return "", false
	}

	if vertical == nil {
		return lateral, true
	}
	var vert string
	switch {
	case *vertical < 500:
		vert = SeverityCritical
	case *vertical < 1000:
		vert = SeverityHigh
	case *vertical < 2000:
		vert = SeverityMedium
	case *vertical < 3000:
		vert = SeverityLow
	default:
		vert = ""
	}
	if vert != "" && severityRank[vert] > severityRank[lateral] {
		return vert, true
	}
	return lateral, true
}

func confidence(a, b Target, tCPA time.Duration) float64 {
	conf := 1.0
	for _, t := range []Target{a, b} {
		if t.Track == nil {
			conf -= 0.2
		}
		if t.GroundSpeed == nil {
			conf -= 0.15
		}
		if t.AltitudeFt == nil {
			conf -= 0.1
		}
	}
	switch {
	case tCPA > 20*time.Minute:
		conf -= 0.2
	case tCPA > 10*time.Minute:
		conf -= 0.1
	}
	return math.Max(0, conf)
}

// Store is the warning persistence surface.
type Store interface {
	ActiveWarnings(ctx context.Context) ([]Warning, error)
	InsertWarning(ctx context.Context, w *Warning) error
	UpdateWarning(ctx context.Context, w *Warning) error
	DeactivateWarning(ctx context.Context, id int64) error
}

// Monitor wraps Analyze with the warning lifecycle.
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

// Process analyzes the snapshot and reconciles conflicts against the active
// warning set: an existing warning for the same pair refreshes in place,
// anything new inserts, and warnings unrefreshed for WarningTimeout are
// deactivated.
func (m *Monitor) Process(ctx context.Context, snapshot []Target) ([]Conflict, error) {
	conflicts := Analyze(snapshot)
	now := m.clock.Now().UTC()

	active, err := m.store.ActiveWarnings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active warnings: %w", err)
	}
	byPair := map[[2]string]*Warning{}
	for i := range active {
		w := &active[i]
		byPair[[2]string{w.Hex1, w.Hex2}] = w
	}

	refreshed := map[int64]bool{}
	for _, c := range conflicts {
		if w, ok := byPair[[2]string{c.Hex1, c.Hex2}]; ok {
			w.Conflict = c
			w.LastSeen = now
			refreshed[w.ID] = true
			if err := m.store.UpdateWarning(ctx, w); err != nil {
				return nil, fmt.Errorf("update warning %d: %w", w.ID, err)
			}
			continue
		}
		w := &Warning{Conflict: c, FirstSeen: now, LastSeen: now, Active: true}
		if err := m.store.InsertWarning(ctx, w); err != nil {
			return nil, fmt.Errorf("insert warning %s/%s: %w", c.Hex1, c.Hex2, err)
		}
	}

	for i := range active {
		w := &active[i]
		if refreshed[w.ID] {
			continue
		}
		if now.Sub(w.LastSeen) >= WarningTimeout {
			if err := m.store.DeactivateWarning(ctx, w.ID); err != nil {
				return nil, fmt.Errorf("deactivate warning %d: %w", w.ID, err)
			}
		}
	}

	return conflicts, nil
}
