package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceNM(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tol                    float64
	}{
		{"same point", 33.9, 35.5, 33.9, 35.5, 0, 1e-9},
		{"one degree latitude", 0, 0, 1, 0, 60.04, 0.1},
		{"one degree longitude at equator", 0, 0, 0, 1, 60.04, 0.1},
		{"beirut to larnaca", 33.82, 35.49, 34.88, 33.62, 118, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DistanceNM(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, tt.tol)
		})
	}
}

func TestDistanceNMInvalidInput(t *testing.T) {
	_, err := DistanceNM(91, 0, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)

	_, err = DistanceNM(0, 0, 0, 181)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)

	_, err = DistanceNM(0, -180, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
}

func TestBearing(t *testing.T) {
	north, err := Bearing(0, 0, 1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, north, 1e-6)

	east, err := Bearing(0, 0, 0, 1)
	require.NoError(t, err)
	assert.InDelta(t, 90, east, 1e-6)

	south, err := Bearing(1, 0, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 180, south, 1e-6)

	west, err := Bearing(0, 1, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 270, west, 1e-6)
}

func TestDestinationRoundTrip(t *testing.T) {
	startLat, startLon := 33.9, 35.5
	for _, brg := range []float64{0, 45, 90, 135, 200, 315} {
		lat, lon, err := Destination(startLat, startLon, brg, 50)
		require.NoError(t, err)

		d, err := DistanceNM(startLat, startLon, lat, lon)
		require.NoError(t, err)
		assert.InDelta(t, 50, d, 0.01, "bearing %v", brg)

		back, err := Bearing(startLat, startLon, lat, lon)
		require.NoError(t, err)
		assert.InDelta(t, brg, back, 0.5, "bearing %v", brg)
	}
}

func TestDestinationNegativeDistance(t *testing.T) {
	_, _, err := Destination(0, 0, 90, -5)
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
}

func TestInterpolateAngle(t *testing.T) {
	assert.InDelta(t, 45, InterpolateAngle(0, 90, 0.5), 1e-9)
	// Shortest path across north: 350 -> 10 passes through 0.
	assert.InDelta(t, 0, InterpolateAngle(350, 10, 0.5), 1e-9)
	assert.InDelta(t, 355, InterpolateAngle(350, 10, 0.25), 1e-9)
	// Endpoints.
	assert.InDelta(t, 350, InterpolateAngle(350, 10, 0), 1e-9)
	assert.InDelta(t, 10, InterpolateAngle(350, 10, 1), 1e-9)
}

func TestAngleDiff(t *testing.T) {
	assert.InDelta(t, 20, AngleDiff(350, 10), 1e-9)
	assert.InDelta(t, 180, AngleDiff(0, 180), 1e-9)
	assert.InDelta(t, 5, AngleDiff(0, 355), 1e-9)
}

func TestSphericalInterpolate(t *testing.T) {
	lat, lon, err := SphericalInterpolate(0, 0, 0, 10, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0, lat, 1e-6)
	assert.InDelta(t, 5, lon, 1e-6)

	// Midpoint lies equidistant from both endpoints.
	lat, lon, err = SphericalInterpolate(30, 30, 40, 50, 0.5)
	require.NoError(t, err)
	d1, _ := DistanceNM(30, 30, lat, lon)
	d2, _ := DistanceNM(40, 50, lat, lon)
	assert.InDelta(t, d1, d2, 0.01)
}

func TestSphericalInterpolateNearCoincident(t *testing.T) {
	// Below the angular threshold the result is a plain lerp.
	lat, lon, err := SphericalInterpolate(33.9, 35.5, 33.9001, 35.5001, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 33.90005, lat, 1e-7)
	assert.InDelta(t, 35.50005, lon, 1e-7)
}

func TestComputeCPAHeadOn(t *testing.T) {
	// Scenario from the proximity analyzer acceptance test: two aircraft
	// approaching head-on at 500 kts each, 0.5 degrees of longitude apart.
	a := Kinematics{Lat: 32.0, Lon: 34.0, TrackDeg: 90, SpeedKts: 500}
	b := Kinematics{Lat: 32.0, Lon: 34.5, TrackDeg: 270, SpeedKts: 500}

	res, err := ComputeCPA(a, b)
	require.NoError(t, err)

	assert.InDelta(t, 1000, res.ClosureRateKts, 1)
	assert.InDelta(t, 1.6, res.TimeToCPAHours*60, 0.2) // minutes
	assert.Less(t, res.DistanceNM, 0.1)
}

func TestComputeCPADiverging(t *testing.T) {
	a := Kinematics{Lat: 32.0, Lon: 34.0, TrackDeg: 270, SpeedKts: 400}
	b := Kinematics{Lat: 32.0, Lon: 34.5, TrackDeg: 90, SpeedKts: 400}

	res, err := ComputeCPA(a, b)
	require.NoError(t, err)

	assert.Negative(t, res.TimeToCPAHours)
	assert.Negative(t, res.ClosureRateKts)
	// Diverging pairs report the current separation.
	d, _ := DistanceNM(a.Lat, a.Lon, b.Lat, b.Lon)
	assert.InDelta(t, d, res.DistanceNM, 1e-6)
}

func TestComputeCPAParallel(t *testing.T) {
	// Same velocity vector: no relative motion, constant separation.
	a := Kinematics{Lat: 32.0, Lon: 34.0, TrackDeg: 0, SpeedKts: 450}
	b := Kinematics{Lat: 32.1, Lon: 34.0, TrackDeg: 0, SpeedKts: 450}

	res, err := ComputeCPA(a, b)
	require.NoError(t, err)
	assert.Zero(t, res.TimeToCPAHours)
	assert.InDelta(t, 6, res.DistanceNM, 0.1)
}

func TestNormalizeDegrees(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeDegrees(360))
	assert.Equal(t, 350.0, NormalizeDegrees(-10))
	assert.Equal(t, 10.0, NormalizeDegrees(730))
	assert.False(t, math.Signbit(NormalizeDegrees(0)))
}
