package patterns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-data/skywatch/internal/geo"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/trackgeom"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func circleTrack(centerLat, centerLon, radiusNM float64, n int, step time.Duration, altitude *float64) []trackgeom.Point {
	points := make([]trackgeom.Point, 0, n)
	for i := 0; i < n; i++ {
		angle := float64(i) / float64(n) * 360
		lat, lon, _ := geo.Destination(centerLat, centerLon, angle, radiusNM)
		h := geo.NormalizeDegrees(angle + 90)
		points = append(points, trackgeom.Point{
			Lat: lat, Lon: lon,
			Time:     t0.Add(time.Duration(i) * step),
			Heading:  &h,
			Altitude: altitude,
		})
	}
	return points
}

func racetrackTrack(startLat, startLon, axisHeading, legLen float64, altitude *float64, step time.Duration) []trackgeom.Point {
	var points []trackgeom.Point
	lat, lon := startLat, startLon
	ts := t0
	appendLeg := func(heading, dist float64, samples int) {
		for i := 0; i < samples; i++ {
			lat, lon, _ = geo.Destination(lat, lon, heading, dist/float64(samples))
			h := heading
			ts = ts.Add(step)
			points = append(points, trackgeom.Point{Lat: lat, Lon: lon, Time: ts, Heading: &h, Altitude: altitude})
		}
	}
	for i := 0; i < 2; i++ {
		appendLeg(axisHeading, legLen, 8)
		appendLeg(geo.NormalizeDegrees(axisHeading+90), 4, 2)
		appendLeg(geo.NormalizeDegrees(axisHeading+180), legLen, 8)
		appendLeg(geo.NormalizeDegrees(axisHeading+270), 4, 2)
	}
	return points
}

func TestDetectOrbitScenario(t *testing.T) {
	// Acceptance scenario: 60 points every 10 s around (33.9, 35.5) on a
	// 10 nm circle, track tangent to the path.
	points := circleTrack(33.9, 35.5, 10, 60, 10*time.Second, nil)

	detections, err := Detect(points)
	require.NoError(t, err)
	require.NotEmpty(t, detections)

	assert.Equal(t, model.PatternOrbit, Primary(detections))
	top := detections[0]
	assert.InDelta(t, 10, top.Metadata.RadiusNM, 0.3)
	assert.GreaterOrEqual(t, top.Confidence, 0.7)
	assert.InDelta(t, 1, top.Metadata.Revolutions, 0.15)
	assert.Equal(t, trackgeom.Clockwise, top.Metadata.Direction)
}

func TestDetectRefusesShortInput(t *testing.T) {
	points := circleTrack(33.9, 35.5, 10, 5, 10*time.Second, nil)
	_, err := Detect(points)
	assert.ErrorIs(t, err, ErrInsufficientData)

	// Enough points but under five minutes.
	points = circleTrack(33.9, 35.5, 10, 20, 5*time.Second, nil)
	_, err = Detect(points)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestDetectRacetrack(t *testing.T) {
	points := racetrackTrack(34.0, 36.0, 10, 25, nil, 30*time.Second)

	detections, err := Detect(points)
	require.NoError(t, err)
	require.NotEmpty(t, detections)
	assert.Equal(t, model.PatternRacetrack, Primary(detections))
	assert.Greater(t, detections[0].Metadata.LegLengthNM, 5.0)
}

func TestDetectHolding(t *testing.T) {
	// Small confined racetrack: a holding stack.
	points := racetrackTrack(34.0, 36.0, 0, 4, nil, 30*time.Second)

	detections, err := Detect(points)
	require.NoError(t, err)
	require.NotEmpty(t, detections)

	var holding *Detection
	for i := range detections {
		if detections[i].Pattern == model.PatternHolding {
			holding = &detections[i]
		}
	}
	require.NotNil(t, holding, "expected a holding candidate")
	assert.GreaterOrEqual(t, holding.Confidence, 0.5)
	assert.GreaterOrEqual(t, holding.Metadata.Reversals, 2)
}

func TestDetectTankerTrack(t *testing.T) {
	alt := 25000.0
	// Long racetrack at FL250: 40 nm legs over ~40 minutes.
	points := racetrackTrack(34.0, 36.0, 90, 40, &alt, 70*time.Second)

	detections, err := Detect(points)
	require.NoError(t, err)

	var tanker *Detection
	for i := range detections {
		if detections[i].Pattern == model.PatternTankerTrack {
			tanker = &detections[i]
		}
	}
	require.NotNil(t, tanker, "expected a tanker-track candidate")
	assert.GreaterOrEqual(t, tanker.Confidence, 0.5)
}

func TestDetectStraightFlightYieldsNothing(t *testing.T) {
	h := 90.0
	var points []trackgeom.Point
	for i := 0; i < 30; i++ {
		lat, lon, _ := geo.Destination(34.0, 36.0, 90, float64(i)*2)
		points = append(points, trackgeom.Point{
			Lat: lat, Lon: lon,
			Time:    t0.Add(time.Duration(i) * 30 * time.Second),
			Heading: &h,
		})
	}

	detections, err := Detect(points)
	require.NoError(t, err)
	assert.Empty(t, detections)
	assert.Equal(t, model.PatternStraight, Primary(detections))
}

func TestDetectionsSortedByConfidence(t *testing.T) {
	points := racetrackTrack(34.0, 36.0, 0, 4, nil, 30*time.Second)
	detections, err := Detect(points)
	require.NoError(t, err)
	for i := 1; i < len(detections); i++ {
		assert.GreaterOrEqual(t, detections[i-1].Confidence, detections[i].Confidence)
	}
}
