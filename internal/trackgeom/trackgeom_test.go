package trackgeom

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-data/skywatch/internal/geo"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// circleTrack builds n points sampled every step around a circle of the
// given radius, with track tangent to the path (clockwise).
func circleTrack(centerLat, centerLon, radiusNM float64, n int, step time.Duration) []Point {
	points := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		frac := float64(i) / float64(n)
		angle := frac * 360 // bearing from centre
		lat, lon, _ := geo.Destination(centerLat, centerLon, angle, radiusNM)
		heading := geo.NormalizeDegrees(angle + 90) // tangent, clockwise
		h := heading
		points = append(points, Point{
			Lat:     lat,
			Lon:     lon,
			Time:    t0.Add(time.Duration(i) * step),
			Heading: &h,
		})
	}
	return points
}

// racetrackTrack builds a track flying legLen nm on axisHeading, turning,
// and flying back, repeated twice.
func racetrackTrack(startLat, startLon, axisHeading, legLen float64) []Point {
	points := []Point{}
	lat, lon := startLat, startLon
	ts := t0
	appendLeg := func(heading float64, dist float64, samples int) {
		for i := 0; i < samples; i++ {
			lat, lon, _ = geo.Destination(lat, lon, heading, dist/float64(samples))
			h := heading
			ts = ts.Add(30 * time.Second)
			points = append(points, Point{Lat: lat, Lon: lon, Time: ts, Heading: &h})
		}
	}
	for i := 0; i < 2; i++ {
		appendLeg(axisHeading, legLen, 8)
		appendLeg(geo.NormalizeDegrees(axisHeading+90), 5, 2)
		appendLeg(geo.NormalizeDegrees(axisHeading+180), legLen, 8)
		appendLeg(geo.NormalizeDegrees(axisHeading+270), 5, 2)
	}
	return points
}

func TestFitCircleOnSyntheticOrbit(t *testing.T) {
	points := circleTrack(33.9, 35.5, 10, 60, 10*time.Second)

	fit := FitCircle(points)
	assert.InDelta(t, 10, fit.RadiusNM, 0.3)
	assert.InDelta(t, 33.9, fit.CenterLat, 0.05)
	assert.InDelta(t, 35.5, fit.CenterLon, 0.05)
	assert.GreaterOrEqual(t, fit.Confidence, 0.9)
	assert.Less(t, fit.MeanErrorNM, 0.5)
}

func TestFitCircleDegenerate(t *testing.T) {
	assert.Zero(t, FitCircle(nil).Confidence)
	assert.Zero(t, FitCircle([]Point{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}).Confidence)

	// Collinear points have no meaningful circle.
	line := []Point{}
	for i := 0; i < 10; i++ {
		line = append(line, Point{Lat: 30, Lon: 30 + float64(i)*0.01, Time: t0.Add(time.Duration(i) * time.Second)})
	}
	fit := FitCircle(line)
	assert.Less(t, fit.Confidence, 0.5)
}

func TestCalculateAngularVelocityClockwise(t *testing.T) {
	points := circleTrack(33.9, 35.5, 10, 60, 10*time.Second)

	res := CalculateAngularVelocity(points)
	assert.Equal(t, Clockwise, res.Direction)
	assert.GreaterOrEqual(t, res.Consistency, 0.95)
	// One full revolution in 10 minutes is 36 deg/min.
	assert.InDelta(t, 36, res.MeanDegPerMin, 4)
}

func TestCalculateAngularVelocityStraight(t *testing.T) {
	h := 90.0
	points := []Point{}
	for i := 0; i < 10; i++ {
		points = append(points, Point{
			Lat: 30, Lon: 30 + 0.05*float64(i),
			Time:    t0.Add(time.Duration(i) * 30 * time.Second),
			Heading: &h,
		})
	}
	res := CalculateAngularVelocity(points)
	assert.Equal(t, Indeterminate, res.Direction)
}

func TestFindHeadingReversals(t *testing.T) {
	points := racetrackTrack(34.0, 36.0, 0, 20)
	reversals := FindHeadingReversals(points)
	// Two circuits produce four 180-degree turns.
	assert.GreaterOrEqual(t, len(reversals), 2)
	for _, r := range reversals {
		assert.Greater(t, r.DeltaDeg, 120.0)
	}
}

func TestFindHeadingReversalsStraightLine(t *testing.T) {
	h := 45.0
	points := []Point{}
	for i := 0; i < 20; i++ {
		points = append(points, Point{
			Lat: 30 + 0.01*float64(i), Lon: 30 + 0.01*float64(i),
			Time:    t0.Add(time.Duration(i) * 15 * time.Second),
			Heading: &h,
		})
	}
	assert.Empty(t, FindHeadingReversals(points))
}

func TestCheckAreaConfinement(t *testing.T) {
	points := circleTrack(33.9, 35.5, 3, 30, 10*time.Second)
	c := CheckAreaConfinement(points, 50)
	assert.True(t, c.Confined)
	// A 3 nm radius circle spans about 6x6 nm.
	assert.InDelta(t, 36, c.AreaNM2, 8)

	wide := CheckAreaConfinement(circleTrack(33.9, 35.5, 20, 30, 10*time.Second), 50)
	assert.False(t, wide.Confined)
}

func TestDetectRacetrackParams(t *testing.T) {
	points := racetrackTrack(34.0, 36.0, 10, 25)

	params := DetectRacetrackParams(points)
	require.True(t, params.Valid)
	sep := math.Abs(params.HeadingA - params.HeadingB)
	if sep > 180 {
		sep = 360 - sep
	}
	assert.InDelta(t, 180, sep, 30)
	assert.Greater(t, params.LegLengthNM, 10.0)
	assert.Greater(t, params.Confidence, 0.4)
}

func TestDetectRacetrackParamsRejectsOrbit(t *testing.T) {
	// An orbit has no pair of dominant opposing headings.
	params := DetectRacetrackParams(circleTrack(33.9, 35.5, 10, 60, 10*time.Second))
	assert.Less(t, params.Confidence, 0.5)
}

func TestDetectRacetrackParamsTooFewPoints(t *testing.T) {
	assert.False(t, DetectRacetrackParams(racetrackTrack(34, 36, 0, 25)[:5]).Valid)
}

func TestStraightness(t *testing.T) {
	h := 90.0
	straight := []Point{}
	for i := 0; i < 10; i++ {
		straight = append(straight, Point{
			Lat: 30, Lon: 30 + 0.05*float64(i),
			Time:    t0.Add(time.Duration(i) * 30 * time.Second),
			Heading: &h,
		})
	}
	assert.Greater(t, Straightness(straight), 0.99)

	orbit := circleTrack(33.9, 35.5, 10, 60, 10*time.Second)
	assert.Less(t, Straightness(orbit), 0.3)
}

func TestPathLengthAndDuration(t *testing.T) {
	points := circleTrack(33.9, 35.5, 10, 60, 10*time.Second)
	// Circumference of a 10 nm circle is ~62.8 nm; 60 chords are slightly shorter.
	assert.InDelta(t, 2*math.Pi*10, PathLengthNM(points), 2)
	assert.Equal(t, 59*10*time.Second, Duration(points))
}
