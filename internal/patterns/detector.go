// Package patterns classifies flight tracks into canonical military
// patterns: orbit, racetrack, holding and tanker track. The detector is
// pure; it consumes a time-sorted position sequence for one aircraft and
// returns ranked candidates with confidences.
package patterns

import (
	"errors"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/trackgeom"
)

// ErrInsufficientData is returned for sequences too short to classify.
var ErrInsufficientData = errors.New("patterns: insufficient data")

const (
	minPoints   = 6
	minDuration = 5 * time.Minute
)

// Detection is one candidate pattern with its confidence and the geometry
// that produced it.
type Detection struct {
	Pattern    string // model.Pattern* tag
	Confidence float64
	Metadata   Metadata
}

// Metadata carries pattern-specific geometry for downstream consumers.
type Metadata struct {
	CenterLat   float64
	CenterLon   float64
	RadiusNM    float64
	Revolutions float64
	Direction   trackgeom.Direction
	LegLengthNM float64
	WidthNM     float64
	HeadingA    float64
	HeadingB    float64
	AreaNM2     float64
	Reversals   int
}

// Detect runs every pattern rule over the sequence and returns candidates
// sorted by confidence descending. The first element is the primary
// classification. Sequences with fewer than 6 points or spanning less than
// 5 minutes are refused.
func Detect(points []trackgeom.Point) ([]Detection, error) {
	if len(points) < minPoints || trackgeom.Duration(points) < minDuration {
		return nil, ErrInsufficientData
	}

	var out []Detection
	if d, ok := detectOrbit(points); ok {
		out = append(out, d)
	}
	if d, ok := detectRacetrack(points); ok {
		out = append(out, d)
	}
	if d, ok := detectHolding(points); ok {
		out = append(out, d)
	}
	if d, ok := detectTankerTrack(points); ok {
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

// Primary returns the top-ranked pattern tag, or model.PatternStraight when
// nothing matched.
func Primary(detections []Detection) string {
	if len(detections) == 0 {
		return model.PatternStraight
	}
	return detections[0].Pattern
}

func detectOrbit(points []trackgeom.Point) (Detection, bool) {
	if len(points) < 10 || trackgeom.Duration(points) < 5*time.Minute {
		return Detection{}, false
	}

	fit := trackgeom.FitCircle(points)
	if fit.Confidence < 0.5 || fit.RadiusNM < 2 || fit.RadiusNM > 50 {
		return Detection{}, false
	}

	av := trackgeom.CalculateAngularVelocity(points)
	if av.Consistency < 0.3 || av.Direction == trackgeom.Indeterminate {
		return Detection{}, false
	}

	circumference := 2 * math.Pi * fit.RadiusNM
	revolutions := trackgeom.PathLengthNM(points) / circumference
	if revolutions < 0.5 {
		return Detection{}, false
	}

	conf := fit.Confidence + math.Min(1, revolutions/2)*0.2
	if conf > 1 {
		conf = 1
	}

	return Detection{
		Pattern:    model.PatternOrbit,
		Confidence: conf,
		Metadata: Metadata{
			CenterLat:   fit.CenterLat,
			CenterLon:   fit.CenterLon,
			RadiusNM:    fit.RadiusNM,
			Revolutions: revolutions,
			Direction:   av.Direction,
		},
	}, true
}

const racetrackMinLegNM = 5.0

func detectRacetrack(points []trackgeom.Point) (Detection, bool) {
	if len(points) < 8 {
		return Detection{}, false
	}

	params := trackgeom.DetectRacetrackParams(points)
	if !params.Valid || params.LegLengthNM <= racetrackMinLegNM || params.Confidence < 0.5 {
		return Detection{}, false
	}

	return Detection{
		Pattern:    model.PatternRacetrack,
		Confidence: params.Confidence,
		Metadata: Metadata{
			LegLengthNM: params.LegLengthNM,
			WidthNM:     params.WidthNM,
			HeadingA:    params.HeadingA,
			HeadingB:    params.HeadingB,
		},
	}, true
}

const holdingMaxAreaNM2 = 50.0

func detectHolding(points []trackgeom.Point) (Detection, bool) {
	confinement := trackgeom.CheckAreaConfinement(points, holdingMaxAreaNM2)
	if !confinement.Confined {
		return Detection{}, false
	}

	reversals := trackgeom.FindHeadingReversals(points)
	if len(reversals) < 2 {
		return Detection{}, false
	}

	conf := 0.6*(1-confinement.AreaNM2/holdingMaxAreaNM2) +
		0.4*math.Min(1, float64(len(reversals))/4)
	if conf < 0.5 {
		return Detection{}, false
	}

	lat, lon := trackgeom.Centroid(points)
	return Detection{
		Pattern:    model.PatternHolding,
		Confidence: conf,
		Metadata: Metadata{
			CenterLat: lat,
			CenterLon: lon,
			AreaNM2:   confinement.AreaNM2,
			Reversals: len(reversals),
		},
	}, true
}

func detectTankerTrack(points []trackgeom.Point) (Detection, bool) {
	if trackgeom.Duration(points) < 20*time.Minute {
		return Detection{}, false
	}

	altitudes := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Altitude != nil {
			altitudes = append(altitudes, *p.Altitude)
		}
	}
	if len(altitudes) < 2 {
		return Detection{}, false
	}

	meanAlt, variance := stat.MeanVariance(altitudes, nil)
	stddev := math.Sqrt(variance)
	if meanAlt < 18000 || meanAlt > 40000 || stddev >= 3000 {
		return Detection{}, false
	}

	pathLen := trackgeom.PathLengthNM(points)
	if pathLen < 30 || pathLen > 200 {
		return Detection{}, false
	}

	reversals := trackgeom.FindHeadingReversals(points)
	straightness := trackgeom.Straightness(points)
	if len(reversals) == 0 && straightness <= 0.7 {
		return Detection{}, false
	}

	// Aggregate: altitude stability, duration, length, plus a bonus for
	// whichever shape signal fired.
	conf := 0.3 * (1 - stddev/3000)
	conf += 0.2 * math.Min(1, trackgeom.Duration(points).Minutes()/60)
	conf += 0.2 * math.Min(1, pathLen/100)
	if len(reversals) > 0 {
		conf += 0.2 * math.Min(1, float64(len(reversals))/2)
	}
	if straightness > 0.7 {
		conf += 0.15
	}
	if conf > 1 {
		conf = 1
	}
	if conf < 0.5 {
		return Detection{}, false
	}

	lat, lon := trackgeom.Centroid(points)
	return Detection{
		Pattern:    model.PatternTankerTrack,
		Confidence: conf,
		Metadata: Metadata{
			CenterLat: lat,
			CenterLon: lon,
			Reversals: len(reversals),
		},
	}, true
}
