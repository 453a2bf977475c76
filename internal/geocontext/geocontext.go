// Package geocontext scores the intelligence value of a point from three
// layers: proximity to significant infrastructure, containing special-use
// airspace, and recent military activity zones.
package geocontext

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/skywatch-data/skywatch/internal/geo"
)

// Intelligence value bands.
const (
	ValueCritical = "critical"
	ValueHigh     = "high"
	ValueModerate = "moderate"
	ValueLow      = "low"
)

// Infrastructure is one fixed site of interest.
type Infrastructure struct {
	ID         int64
	Name       string
	Type       string // airbase, port, radar, sam_site, ...
	Lat        float64
	Lon        float64
	Importance string // critical, high, medium, low
	Active     bool
}

// Airspace is one special-use airspace volume.
type Airspace struct {
	ID        int64
	Name      string
	Class     string // prohibited, restricted, danger, moa, tfr, warning, alert, class_b...
	Polygon   orb.Polygon
	FloorFt   *float64
	CeilingFt *float64
	Active    bool
}

// ActivityZone is a recent concentration of military traffic.
type ActivityZone struct {
	ID        int64
	CenterLat float64
	CenterLon float64
	RadiusNM  float64
	Level     string // intense, high, moderate, low
	Active    bool
}

// Assessment is the scored context for one point.
type Assessment struct {
	InfraScore        float64
	AirspaceScore     float64
	ActivityScore     float64
	Combined          float64
	Value             string
	NearestInfra      *Infrastructure
	NearestInfraNM    float64
	ContainingSpaces  []string
	ContainingZoneLvl string
}

var importanceScores = map[string]float64{
	"critical": 1.0, "high": 0.8, "medium": 0.5, "low": 0.3,
}

var airspaceClassScores = map[string]float64{
	"prohibited": 1.0, "restricted": 0.9, "danger": 0.8,
	"moa": 0.7, "tfr": 0.7, "warning": 0.6, "alert": 0.5,
	"class_b": 0.3, "class_c": 0.2, "class_d": 0.1,
}

var activityLevelScores = map[string]float64{
	"intense": 1.0, "high": 0.8, "moderate": 0.5, "low": 0.2,
}

// infraScoreRangeNM is the distance at which infrastructure influence
// decays to zero.
const infraScoreRangeNM = 100.0

// Store provides the three context layers.
type Store interface {
	ActiveInfrastructure(ctx context.Context) ([]Infrastructure, error)
	ActiveAirspaces(ctx context.Context) ([]Airspace, error)
	ActiveZones(ctx context.Context) ([]ActivityZone, error)
}

// Scorer assesses points against the context layers.
type Scorer struct {
	store Store
}

// NewScorer builds a Scorer over the given store.
func NewScorer(store Store) *Scorer {
	return &Scorer{store: store}
}

// Score assesses one point. Altitude is optional; when given, airspace
// volumes only count if their limits bracket it.
func (s *Scorer) Score(ctx context.Context, lat, lon float64, altitudeFt *float64) (*Assessment, error) {
	infra, err := s.store.ActiveInfrastructure(ctx)
	if err != nil {
		return nil, fmt.Errorf("load infrastructure: %w", err)
	}
	spaces, err := s.store.ActiveAirspaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("load airspaces: %w", err)
	}
	zones, err := s.store.ActiveZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("load activity zones: %w", err)
	}

	a := &Assessment{}
	a.InfraScore, a.NearestInfra, a.NearestInfraNM = scoreInfrastructure(infra, lat, lon)
	a.AirspaceScore, a.ContainingSpaces = scoreAirspace(spaces, lat, lon, altitudeFt)
	a.ActivityScore, a.ContainingZoneLvl = scoreActivity(zones, lat, lon)

	a.Combined = 0.35*a.InfraScore + 0.35*a.AirspaceScore + 0.30*a.ActivityScore
	a.Value = valueBand(a.Combined)
	return a, nil
}

func valueBand(combined float64) string {
	switch {
	case combined >= 0.8:
		return ValueCritical
	case combined >= 0.6:
		return ValueHigh
	case combined >= 0.3:
		return ValueModerate
	default:
		return ValueLow
	}
}

func scoreInfrastructure(infra []Infrastructure, lat, lon float64) (float64, *Infrastructure, float64) {
	var nearest *Infrastructure
	nearestDist := math.MaxFloat64
	for i := range infra {
		d, err := geo.DistanceNM(infra[i].Lat, infra[i].Lon, lat, lon)
		if err != nil {
			continue
		}
		if d < nearestDist {
			nearest = &infra[i]
			nearestDist = d
		}
	}
	if nearest == nil {
		return 0, nil, 0
	}
	score := importanceScores[nearest.Importance] * math.Max(0, 1-nearestDist/infraScoreRangeNM)
	return score, nearest, nearestDist
}

func scoreAirspace(spaces []Airspace, lat, lon float64, altitudeFt *float64) (float64, []string) {
	var best float64
	var names []string
	pt := orb.Point{lon, lat}
	for i := range spaces {
		sp := &spaces[i]
		if !planar.PolygonContains(sp.Polygon, pt) {
			continue
		}
		if altitudeFt != nil {
			if sp.FloorFt != nil && *altitudeFt < *sp.FloorFt {
				continue
			}
			if sp.CeilingFt != nil && *altitudeFt > *sp.CeilingFt {
				continue
			}
		}
		names = append(names, sp.Name)
		if sc := airspaceClassScores[sp.Class]; sc > best {
			best = sc
		}
	}
	return best, names
}

func scoreActivity(zones []ActivityZone, lat, lon float64) (float64, string) {
	var best float64
	var level string
	for _, z := range zones {
		d, err := geo.DistanceNM(z.CenterLat, z.CenterLon, lat, lon)
		if err != nil || d > z.RadiusNM {
			continue
		}
		if sc := activityLevelScores[z.Level]; sc > best {
			best = sc
			level = z.Level
		}
	}
	return best, level
}
