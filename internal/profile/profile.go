// Package profile maintains per-aircraft behavioral baselines: pattern
// distribution, typical operating regions, altitude/speed statistics and
// time-of-day activity, all updated with exponential moving averages.
// Profiles start from type-keyed cold-start priors and are considered
// trained after ten observed flights.
package profile

import (
	"math"
	"time"
)

// MaxRegions bounds the typical-region list.
const MaxRegions = 10

// TrainedSampleCount is the observation count at which a profile becomes
// trained and deviation scoring switches on.
const TrainedSampleCount = 10

// Stats is a running min/max/avg/stddev summary.
type Stats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	StdDev float64 `json:"stddev"`
	Seeded bool    `json:"seeded"`
}

// Seed initializes the stats from a first mean/stddev pair.
func (s *Stats) Seed(mean, stddev float64) {
	s.Min, s.Max, s.Avg, s.StdDev = mean, mean, mean, stddev
	s.Seeded = true
}

const statsDecay = 0.95

// Absorb folds a new observation batch mean into the stats. Min/max move
// monotonically; avg and stddev decay exponentially.
func (s *Stats) Absorb(values []float64) {
	if len(values) == 0 {
		return
	}
	var sum float64
	lo, hi := values[0], values[0]
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / float64(len(values))

	if !s.Seeded {
		var varSum float64
		for _, v := range values {
			varSum += (v - mean) * (v - mean)
		}
		s.Seed(mean, math.Sqrt(varSum/float64(len(values))))
		s.Min, s.Max = lo, hi
		return
	}

	s.Min = math.Min(s.Min, lo)
	s.Max = math.Max(s.Max, hi)
	s.Avg = s.Avg*statsDecay + mean*(1-statsDecay)
	dev := mean - s.Avg
	s.StdDev = math.Sqrt(s.StdDev*s.StdDev*statsDecay + dev*dev*(1-statsDecay))
}

// Region is a typical operating area with a normalized visit frequency.
type Region struct {
	CenterLat float64 `json:"center_lat"`
	CenterLon float64 `json:"center_lon"`
	RadiusNM  float64 `json:"radius_nm"`
	Count     int     `json:"count"`
	Frequency float64 `json:"frequency"` // normalized over all regions
}

// Profile is the behavioral baseline for one aircraft.
type Profile struct {
	Hex          string
	PatternDist  map[string]float64 // sums to 1
	Regions      []Region           // at most MaxRegions, frequencies sum to 1
	Altitude     Stats
	Speed        Stats
	Hourly       []float64 // 24 slots, sums to 1
	Daily        []float64 // 7 slots, sums to 1
	SampleCount  int
	IsTrained    bool
	LastFlightAt time.Time
	UpdatedAt    time.Time
}

// normalize scales values so they sum to 1. All-zero input is left alone.
func normalize(values []float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	if sum <= 0 {
		return
	}
	for i := range values {
		values[i] /= sum
	}
}

func normalizeMap(m map[string]float64) {
	var sum float64
	for _, v := range m {
		sum += v
	}
	if sum <= 0 {
		return
	}
	for k := range m {
		m[k] /= sum
	}
}

func uniformSlots(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 1 / float64(n)
	}
	return s
}
