// Package predict produces short-horizon great-circle forecasts for active
// military aircraft and validates them after the fact against observed
// positions.
package predict

import (
	"math"
	"time"

	"github.com/skywatch-data/skywatch/internal/geo"
	"github.com/skywatch-data/skywatch/internal/profile"
)

// Horizons are the forecast lead times.
var Horizons = []time.Duration{5 * time.Minute, 15 * time.Minute, 30 * time.Minute}

// MinGroundSpeedKts gates prediction: parked and taxiing aircraft are not
// forecast.
const MinGroundSpeedKts = 50.0

// expirySlack keeps a prediction queryable a little past its target time so
// the validator can still find it.
const expirySlack = 5 * time.Minute

// Input is the kinematic state a forecast starts from.
type Input struct {
	Hex            string
	Time           time.Time
	Lat            float64
	Lon            float64
	AltitudeFt     *float64
	GroundSpeed    *float64 // knots
	Track          *float64 // degrees
	VerticalRate   *float64 // feet per minute
	TurnRateDegSec *float64
}

// Prediction is one stored forecast.
type Prediction struct {
	ID            int64
	Hex           string
	Horizon       time.Duration
	PredictedAt   time.Time
	TargetTime    time.Time
	Lat           float64
	Lon           float64
	AltitudeFt    *float64
	UncertaintyNM float64
	Confidence    float64
	ExpiresAt     time.Time
}

func uncertaintyBase(h time.Duration) float64 {
	switch {
	case h <= 5*time.Minute:
		return 1.0
	case h <= 15*time.Minute:
		return 3.0
	default:
		return 6.0
	}
}

func confidenceDecay(h time.Duration) float64 {
	switch {
	case h <= 5*time.Minute:
		return 0.95
	case h <= 15*time.Minute:
		return 0.85
	default:
		return 0.70
	}
}

// Forecast projects the input over every horizon. Inputs with neither
// heading nor speed yield no predictions; a missing half of the pair is
// treated as zero. The profile may be nil; a trained profile tightens
// uncertainty near its typical regions and raises base confidence.
func Forecast(in Input, prof *profile.Profile) []Prediction {
	if in.Track == nil && in.GroundSpeed == nil {
		return nil
	}
	var speed, heading float64
	if in.GroundSpeed != nil {
		speed = *in.GroundSpeed
	}
	if in.Track != nil {
		heading = *in.Track
	}

	trained := prof != nil && prof.IsTrained

	out := make([]Prediction, 0, len(Horizons))
	for _, h := range Horizons {
		minutes := h.Minutes()
		distance := speed * minutes / 60

		projHeading := heading
		if in.TurnRateDegSec != nil && *in.TurnRateDegSec != 0 {
			endHeading := math.Mod(heading+*in.TurnRateDegSec*minutes*60, 360)
			if endHeading < 0 {
				endHeading += 360
			}
			halfTurn := geo.AngleDiff(heading, endHeading) / 2
			if halfTurn > 10 {
				distance *= math.Cos(halfTurn * math.Pi / 180)
			}
			projHeading = geo.InterpolateAngle(heading, endHeading, 0.5)
		}

		lat, lon, err := geo.Destination(in.Lat, in.Lon, projHeading, distance)
		if err != nil {
			continue
		}

		var altPred *float64
		if in.AltitudeFt != nil {
			a := *in.AltitudeFt
			if in.VerticalRate != nil {
				a = math.Max(0, a+*in.VerticalRate*minutes)
			}
			altPred = &a
		}

		uncertainty := uncertaintyBase(h) + speed*0.01*(minutes/30)
		if in.TurnRateDegSec != nil && math.Abs(*in.TurnRateDegSec) > 0.5 {
			uncertainty += math.Abs(*in.TurnRateDegSec) * 0.5 * (minutes / 30)
		}
		if trained {
			if nearTypicalRegion(prof, lat, lon) {
				uncertainty *= 0.8
			} else {
				uncertainty *= 1.2
			}
		}

		base := 0.7
		if trained {
			base = 0.85
		}
		confidence := math.Min(0.95, base*confidenceDecay(h))

		out = append(out, Prediction{
			Hex:           in.Hex,
			Horizon:       h,
			PredictedAt:   in.Time,
			TargetTime:    in.Time.Add(h),
			Lat:           lat,
			Lon:           lon,
			AltitudeFt:    altPred,
			UncertaintyNM: uncertainty,
			Confidence:    confidence,
			ExpiresAt:     in.Time.Add(h + expirySlack),
		})
	}
	return out
}

// nearTypicalRegion reports whether (lat, lon) falls within 1.5x the radius
// of any of the profile's typical regions.
func nearTypicalRegion(prof *profile.Profile, lat, lon float64) bool {
	for _, r := range prof.Regions {
		d, err := geo.DistanceNM(r.CenterLat, r.CenterLon, lat, lon)
		if err == nil && d <= 1.5*r.RadiusNM {
			return true
		}
	}
	return false
}
