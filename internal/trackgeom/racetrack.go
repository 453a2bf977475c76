package trackgeom

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/skywatch-data/skywatch/internal/geo"
)

// RacetrackParams describes an extracted racetrack (hippodrome) geometry:
// two long parallel legs flown in opposite directions joined by turns.
type RacetrackParams struct {
	HeadingA    float64 // dominant outbound heading, degrees
	HeadingB    float64 // dominant inbound heading, degrees
	LegLengthNM float64
	WidthNM     float64
	Confidence  float64 // [0,1]
	Valid       bool
}

const headingBinDeg = 10

// DetectRacetrackParams looks for two dominant headings 150-210 degrees
// apart and extracts leg geometry. Valid is false when no opposing heading
// pair dominates the sequence.
func DetectRacetrackParams(points []Point) RacetrackParams {
	if len(points) < 8 {
		return RacetrackParams{}
	}

	// Histogram the per-sample headings into 10 degree bins.
	bins := make(map[int]int)
	headings := make([]float64, 0, len(points))
	for i := range points {
		h, ok := headingAt(points, i)
		if !ok {
			continue
		}
		headings = append(headings, h)
		bins[int(geo.NormalizeDegrees(h))/headingBinDeg]++
	}
	if len(headings) < 8 {
		return RacetrackParams{}
	}

	type binCount struct {
		bin   int
		count int
	}
	ranked := make([]binCount, 0, len(bins))
	for b, c := range bins {
		ranked = append(ranked, binCount{b, c})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].count > ranked[j].count })

	// Find the best pair of bins whose centres are 150-210 degrees apart.
	var bestA, bestB binCount
	var bestTotal int
	for i := 0; i < len(ranked); i++ {
		for j := i + 1; j < len(ranked); j++ {
			// AngleDiff caps at 180, so >=150 covers the 150-210 window.
			sep := geo.AngleDiff(binCenter(ranked[i].bin), binCenter(ranked[j].bin))
			if sep >= 150 && ranked[i].count+ranked[j].count > bestTotal {
				bestA, bestB = ranked[i], ranked[j]
				bestTotal = ranked[i].count + ranked[j].count
			}
		}
	}
	if bestTotal == 0 {
		return RacetrackParams{}
	}

	hA := binCenter(bestA.bin)
	hB := binCenter(bestB.bin)

	// Assign samples to the two legs and measure run geometry.
	legALen := longestRunNM(points, hA)
	legBLen := longestRunNM(points, hB)
	legLen := math.Max(legALen, legBLen)

	// Width: spread of the track perpendicular to the leg axis.
	width := perpendicularSpreadNM(points, hA)

	// Confidence: fraction of samples on the two dominant legs, damped by
	// heading scatter within the sequence.
	frac := float64(bestTotal) / float64(len(headings))
	_, variance := stat.MeanVariance(headings, nil)
	scatter := math.Min(1, math.Sqrt(variance)/180)
	conf := frac * (1 - 0.3*scatter)
	if conf > 1 {
		conf = 1
	}

	return RacetrackParams{
		HeadingA:    hA,
		HeadingB:    hB,
		LegLengthNM: legLen,
		WidthNM:     width,
		Confidence:  conf,
		Valid:       legLen > 0,
	}
}

func binCenter(bin int) float64 {
	return float64(bin)*headingBinDeg + headingBinDeg/2
}

// longestRunNM measures the longest contiguous distance flown within 30
// degrees of the given heading.
func longestRunNM(points []Point, heading float64) float64 {
	var best, current float64
	for i := 1; i < len(points); i++ {
		h, ok := headingAt(points, i-1)
		if !ok {
			continue
		}
		d, err := geo.DistanceNM(points[i-1].Lat, points[i-1].Lon, points[i].Lat, points[i].Lon)
		if err != nil {
			continue
		}
		if geo.AngleDiff(h, heading) <= 30 {
			current += d
			if current > best {
				best = current
			}
		} else {
			current = 0
		}
	}
	return best
}

// perpendicularSpreadNM returns the extent of the track perpendicular to
// the given axis heading.
func perpendicularSpreadNM(points []Point, axisHeading float64) float64 {
	if len(points) == 0 {
		return 0
	}
	refLat, refLon := Centroid(points)
	rad := axisHeading * math.Pi / 180
	// Unit vector perpendicular to the leg axis.
	px := math.Cos(rad)
	py := -math.Sin(rad)

	minP := math.Inf(1)
	maxP := math.Inf(-1)
	for _, p := range points {
		x, y := localXY(p, refLat, refLon)
		proj := x*px + y*py
		minP = math.Min(minP, proj)
		maxP = math.Max(maxP, proj)
	}
	return maxP - minP
}
