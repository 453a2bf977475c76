package geo

import "math"

// NMPerDegreeLat is the approximate north-south extent of one degree of
// latitude in nautical miles, used for local tangent-plane projections.
const NMPerDegreeLat = 60.0

// Kinematics describes a moving aircraft for CPA computation.
type Kinematics struct {
	Lat      float64
	Lon      float64
	TrackDeg float64 // degrees [0,360)
	SpeedKts float64 // ground speed, knots
}

// CPAResult is the closest point of approach between two aircraft assuming
// constant velocity on a local tangent plane.
type CPAResult struct {
	TimeToCPAHours float64 // negative when the pair is already diverging
	DistanceNM     float64 // separation at CPA (or current separation when diverging)
	ClosureRateKts float64 // positive when converging along the line of sight
}

// localOffsetNM projects b relative to a onto a flat plane centred between
// the two points: 60 nm per degree of latitude, longitude scaled by
// cos(average latitude).
func localOffsetNM(a, b Kinematics) (dx, dy float64) {
	avgLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	dx = (b.Lon - a.Lon) * NMPerDegreeLat * math.Cos(avgLat)
	dy = (b.Lat - a.Lat) * NMPerDegreeLat
	return dx, dy
}

// velocityNM converts track/speed into east/north components in knots.
func velocityNM(k Kinematics) (vx, vy float64) {
	rad := k.TrackDeg * math.Pi / 180
	vx = k.SpeedKts * math.Sin(rad)
	vy = k.SpeedKts * math.Cos(rad)
	return vx, vy
}

// ComputeCPA computes the closest point of approach between two aircraft.
// Coordinates are validated; the kinematic state is taken as-is.
func ComputeCPA(a, b Kinematics) (CPAResult, error) {
	if err := ValidateLatLon(a.Lat, a.Lon); err != nil {
		return CPAResult{}, err
	}
	if err := ValidateLatLon(b.Lat, b.Lon); err != nil {
		return CPAResult{}, err
	}

	px, py := localOffsetNM(a, b)
	avx, avy := velocityNM(a)
	bvx, bvy := velocityNM(b)

	// Relative velocity of b with respect to a.
	vx := bvx - avx
	vy := bvy - avy

	dist := math.Hypot(px, py)

	// Closure rate is the negative of the range-rate: positive when the
	// separation is shrinking.
	var closure float64
	if dist > 1e-9 {
		closure = -(px*vx + py*vy) / dist
	}

	v2 := vx*vx + vy*vy
	if v2 < 1e-9 {
		// No relative motion: separation is constant.
		return CPAResult{TimeToCPAHours: 0, DistanceNM: dist, ClosureRateKts: 0}, nil
	}

	tCPA := -(px*vx + py*vy) / v2
	if tCPA < 0 {
		// Already past the closest point.
		return CPAResult{TimeToCPAHours: tCPA, DistanceNM: dist, ClosureRateKts: closure}, nil
	}

	cx := px + vx*tCPA
	cy := py + vy*tCPA
	return CPAResult{
		TimeToCPAHours: tCPA,
		DistanceNM:     math.Hypot(cx, cy),
		ClosureRateKts: closure,
	}, nil
}
