// Package geo provides great-circle math on a spherical Earth, in nautical
// miles and degrees. All functions validate their inputs and return
// ErrInvalidCoordinate rather than producing NaN geometry.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusNM is the mean Earth radius in nautical miles.
const EarthRadiusNM = 3440.065

// ErrInvalidCoordinate is returned when a latitude or longitude is outside
// its legal range.
var ErrInvalidCoordinate = errors.New("geo: invalid coordinate")

// ValidateLatLon checks that lat is within [-90,90] and lon within (-180,180].
func ValidateLatLon(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon <= -180 || lon > 180 {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, lat, lon)
	}
	return nil
}

// DistanceNM returns the haversine great-circle distance between two points
// in nautical miles.
func DistanceNM(lat1, lon1, lat2, lon2 float64) (float64, error) {
	if err := ValidateLatLon(lat1, lon1); err != nil {
		return 0, err
	}
	if err := ValidateLatLon(lat2, lon2); err != nil {
		return 0, err
	}

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusNM * c, nil
}

// Bearing returns the initial great-circle bearing from point 1 to point 2,
// in degrees [0,360).
func Bearing(lat1, lon1, lat2, lon2 float64) (float64, error) {
	if err := ValidateLatLon(lat1, lon1); err != nil {
		return 0, err
	}
	if err := ValidateLatLon(lat2, lon2); err != nil {
		return 0, err
	}

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	theta := math.Atan2(y, x) * 180 / math.Pi

	return NormalizeDegrees(theta), nil
}

// Destination computes the forward great-circle solution: the point reached
// by travelling distanceNM along the given initial bearing.
func Destination(lat, lon, bearingDeg, distanceNM float64) (float64, float64, error) {
	if err := ValidateLatLon(lat, lon); err != nil {
		return 0, 0, err
	}
	if distanceNM < 0 {
		return 0, 0, fmt.Errorf("%w: negative distance %v", ErrInvalidCoordinate, distanceNM)
	}

	delta := distanceNM / EarthRadiusNM // angular distance
	theta := bearingDeg * math.Pi / 180
	phi1 := lat * math.Pi / 180
	lambda1 := lon * math.Pi / 180

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) +
		math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	outLat := phi2 * 180 / math.Pi
	outLon := lambda2 * 180 / math.Pi
	// wrap longitude into (-180,180]
	for outLon <= -180 {
		outLon += 360
	}
	for outLon > 180 {
		outLon -= 360
	}
	return outLat, outLon, nil
}

// NormalizeDegrees wraps an angle into [0,360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// AngleDiff returns the smallest absolute difference between two headings,
// in degrees [0,180].
func AngleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeDegrees(a) - NormalizeDegrees(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// InterpolateAngle performs shortest-path angular interpolation between two
// headings. t=0 returns a1, t=1 returns a2; the result is in [0,360).
func InterpolateAngle(a1, a2, t float64) float64 {
	a1 = NormalizeDegrees(a1)
	a2 = NormalizeDegrees(a2)
	d := a2 - a1
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return NormalizeDegrees(a1 + d*t)
}

// SphericalInterpolate returns the point a fraction t of the way along the
// great circle from (lat1,lon1) to (lat2,lon2). For nearly coincident points
// (angular distance below 1e-4 rad) it falls back to linear interpolation,
// which avoids the 0/0 in the slerp weights.
func SphericalInterpolate(lat1, lon1, lat2, lon2, t float64) (float64, float64, error) {
	if err := ValidateLatLon(lat1, lon1); err != nil {
		return 0, 0, err
	}
	if err := ValidateLatLon(lat2, lon2); err != nil {
		return 0, 0, err
	}

	phi1 := lat1 * math.Pi / 180
	lambda1 := lon1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	lambda2 := lon2 * math.Pi / 180

	// Angular distance between the endpoints.
	dPhi := phi2 - phi1
	dLambda := lambda2 - lambda1
	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	delta := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	if delta < 1e-4 {
		return lat1 + (lat2-lat1)*t, lon1 + (lon2-lon1)*t, nil
	}

	sinDelta := math.Sin(delta)
	w1 := math.Sin((1-t)*delta) / sinDelta
	w2 := math.Sin(t*delta) / sinDelta

	x := w1*math.Cos(phi1)*math.Cos(lambda1) + w2*math.Cos(phi2)*math.Cos(lambda2)
	y := w1*math.Cos(phi1)*math.Sin(lambda1) + w2*math.Cos(phi2)*math.Sin(lambda2)
	z := w1*math.Sin(phi1) + w2*math.Sin(phi2)

	lat := math.Atan2(z, math.Sqrt(x*x+y*y)) * 180 / math.Pi
	lon := math.Atan2(y, x) * 180 / math.Pi
	return lat, lon, nil
}
