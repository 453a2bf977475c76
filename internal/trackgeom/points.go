// Package trackgeom provides pure geometric analysis over ordered position
// sequences: circle fitting, heading-reversal detection, angular velocity,
// area confinement and racetrack parameter extraction. It has no knowledge
// of aircraft identity or persistence; callers feed it time-sorted points.
package trackgeom

import (
	"math"
	"time"

	"github.com/skywatch-data/skywatch/internal/geo"
)

// Point is a single sample along a flight track. Heading and Altitude are
// optional: nil means the upstream did not report them.
type Point struct {
	Lat      float64
	Lon      float64
	Time     time.Time
	Heading  *float64 // degrees [0,360)
	Altitude *float64 // feet
}

// Direction of rotation derived from a point sequence.
type Direction string

const (
	Clockwise        Direction = "clockwise"
	CounterClockwise Direction = "counter_clockwise"
	Indeterminate    Direction = "indeterminate"
)

// Duration returns the time span covered by the sequence.
func Duration(points []Point) time.Duration {
	if len(points) < 2 {
		return 0
	}
	return points[len(points)-1].Time.Sub(points[0].Time)
}

// PathLengthNM returns the cumulative along-track distance in nautical miles.
func PathLengthNM(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		d, err := geo.DistanceNM(points[i-1].Lat, points[i-1].Lon, points[i].Lat, points[i].Lon)
		if err != nil {
			continue
		}
		total += d
	}
	return total
}

// Centroid returns the mean lat/lon of the sequence.
func Centroid(points []Point) (lat, lon float64) {
	if len(points) == 0 {
		return 0, 0
	}
	for _, p := range points {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(points))
	return lat / n, lon / n
}

// headingAt returns the heading for point i, preferring the reported heading
// and falling back to the bearing toward the next point.
func headingAt(points []Point, i int) (float64, bool) {
	if points[i].Heading != nil {
		return *points[i].Heading, true
	}
	if i+1 < len(points) {
		b, err := geo.Bearing(points[i].Lat, points[i].Lon, points[i+1].Lat, points[i+1].Lon)
		if err == nil {
			return b, true
		}
	}
	return 0, false
}

// localXY projects a point onto a flat plane centred on (refLat, refLon),
// in nautical miles east/north.
func localXY(p Point, refLat, refLon float64) (x, y float64) {
	x = (p.Lon - refLon) * geo.NMPerDegreeLat * math.Cos(refLat*math.Pi/180)
	y = (p.Lat - refLat) * geo.NMPerDegreeLat
	return x, y
}

// Reversal marks a position where the track heading reversed.
type Reversal struct {
	Index   int
	Lat     float64
	Lon     float64
	Time    time.Time
	DeltaDeg float64
}

// reversalWindow bounds how far apart two samples may be while still
// counting a >120 degree heading change as a reversal.
const reversalWindow = 2 * time.Minute

// FindHeadingReversals returns the positions where the heading changes by
// more than 120 degrees within a short window. Consecutive window hits are
// collapsed into a single reversal.
func FindHeadingReversals(points []Point) []Reversal {
	var out []Reversal
	lastHit := -10
	for i := 0; i < len(points); i++ {
		h1, ok := headingAt(points, i)
		if !ok {
			continue
		}
		for j := i + 1; j < len(points); j++ {
			if points[j].Time.Sub(points[i].Time) > reversalWindow {
				break
			}
			h2, ok := headingAt(points, j)
			if !ok {
				continue
			}
			if d := geo.AngleDiff(h1, h2); d > 120 {
				if j-lastHit > 3 {
					out = append(out, Reversal{
						Index:    j,
						Lat:      points[j].Lat,
						Lon:      points[j].Lon,
						Time:     points[j].Time,
						DeltaDeg: d,
					})
					lastHit = j
				}
				break
			}
		}
	}
	return out
}

// AngularVelocityResult summarizes the rotation of a track.
type AngularVelocityResult struct {
	MeanDegPerMin float64   // magnitude of the mean turn rate
	Consistency   float64   // [0,1]; 1 means every sample turned the same way
	Direction     Direction
}

// CalculateAngularVelocity derives the mean turn rate and its consistency
// from successive headings. Direction is indeterminate when turns cancel
// out or too few heading samples exist.
func CalculateAngularVelocity(points []Point) AngularVelocityResult {
	var sumSigned, sumAbs, sumRate float64
	var n int
	for i := 1; i < len(points); i++ {
		h1, ok1 := headingAt(points, i-1)
		h2, ok2 := headingAt(points, i)
		if !ok1 || !ok2 {
			continue
		}
		dt := points[i].Time.Sub(points[i-1].Time).Minutes()
		if dt <= 0 {
			continue
		}
		d := geo.NormalizeDegrees(h2) - geo.NormalizeDegrees(h1)
		if d > 180 {
			d -= 360
		} else if d < -180 {
			d += 360
		}
		sumSigned += d
		sumAbs += math.Abs(d)
		sumRate += math.Abs(d) / dt
		n++
	}
	if n == 0 || sumAbs < 1e-9 {
		return AngularVelocityResult{Direction: Indeterminate}
	}

	res := AngularVelocityResult{
		MeanDegPerMin: sumRate / float64(n),
		Consistency:   math.Abs(sumSigned) / sumAbs,
	}
	switch {
	case res.Consistency < 0.2:
		res.Direction = Indeterminate
	case sumSigned > 0:
		res.Direction = Clockwise
	default:
		res.Direction = CounterClockwise
	}
	return res
}

// Confinement is the bounding box of a track in local nautical miles.
type Confinement struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
	WidthNM        float64 // east-west extent
	HeightNM       float64 // north-south extent
	AreaNM2        float64
	Confined       bool
}

// CheckAreaConfinement computes the track bounding box and whether its area
// stays below maxAreaNM2.
func CheckAreaConfinement(points []Point, maxAreaNM2 float64) Confinement {
	if len(points) == 0 {
		return Confinement{}
	}
	c := Confinement{
		MinLat: points[0].Lat, MaxLat: points[0].Lat,
		MinLon: points[0].Lon, MaxLon: points[0].Lon,
	}
	for _, p := range points[1:] {
		c.MinLat = math.Min(c.MinLat, p.Lat)
		c.MaxLat = math.Max(c.MaxLat, p.Lat)
		c.MinLon = math.Min(c.MinLon, p.Lon)
		c.MaxLon = math.Max(c.MaxLon, p.Lon)
	}
	midLat := (c.MinLat + c.MaxLat) / 2
	c.WidthNM = (c.MaxLon - c.MinLon) * geo.NMPerDegreeLat * math.Cos(midLat*math.Pi/180)
	c.HeightNM = (c.MaxLat - c.MinLat) * geo.NMPerDegreeLat
	c.AreaNM2 = c.WidthNM * c.HeightNM
	c.Confined = c.AreaNM2 < maxAreaNM2
	return c
}

// Straightness returns the ratio of end-to-end displacement to path length,
// in [0,1]. A perfectly straight track scores 1.
func Straightness(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	path := PathLengthNM(points)
	if path < 1e-9 {
		return 0
	}
	direct, err := geo.DistanceNM(points[0].Lat, points[0].Lon,
		points[len(points)-1].Lat, points[len(points)-1].Lon)
	if err != nil {
		return 0
	}
	return math.Min(1, direct/path)
}
