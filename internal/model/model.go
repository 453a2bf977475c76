// Package model holds the core entities shared between the pipeline
// components and the store: aircraft identity, positions and flights.
// Derived per-component state (profiles, formations, warnings, ...) lives
// with the component that owns its mutation.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var hexPattern = regexp.MustCompile(`^[0-9A-F]{6}$`)

// ValidateHex checks that a string is a canonical 24-bit ICAO hex: six
// hexadecimal characters, upper case.
func ValidateHex(hex string) error {
	if !hexPattern.MatchString(hex) {
		return fmt.Errorf("invalid icao hex %q", hex)
	}
	return nil
}

// NormalizeHex upper-cases and trims an ICAO hex.
func NormalizeHex(hex string) string {
	return strings.ToUpper(strings.TrimSpace(hex))
}

// Aircraft is the identity record for one airframe. Attributes update
// monotonically: non-null wins unless a later trusted source overwrites.
type Aircraft struct {
	Hex              string
	Registration     *string
	TypeCode         *string
	Operator         *string
	IsMilitary       bool
	MilitaryCategory *string // tanker, awacs, isr, transport, fighter, helicopter, trainer, other
	Country          *string
	FirstSeen        time.Time
	LastSeen         time.Time
}

// Position is a time-stamped sample for an ICAO hex. Altitude, speed,
// track and vertical rate may be absent. Lat/lon are always both present;
// a sample missing either is rejected before it reaches the store.
type Position struct {
	Hex          string
	Time         time.Time
	Lat          float64
	Lon          float64
	AltitudeFt   *float64
	GroundSpeed  *float64 // knots
	Track        *float64 // degrees [0,360)
	VerticalRate *float64 // feet per minute
	Source       string
	AgeSeconds   float64 // seconds since last contact at sample time
}

// Validate enforces the position invariants.
func (p *Position) Validate() error {
	if err := ValidateHex(p.Hex); err != nil {
		return err
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon <= -180 || p.Lon > 180 {
		return fmt.Errorf("position for %s out of range: lat=%v lon=%v", p.Hex, p.Lat, p.Lon)
	}
	return nil
}

// Flight is a contiguous activity period for one aircraft.
type Flight struct {
	ID              int64
	Hex             string
	DepartureTime   time.Time
	ArrivalTime     *time.Time
	DetectedPattern *string // orbit, racetrack, holding, tanker_track, straight
}

// Pattern tags shared across the detector, profiler and intelligence
// engine.
const (
	PatternOrbit       = "orbit"
	PatternRacetrack   = "racetrack"
	PatternHolding     = "holding"
	PatternTankerTrack = "tanker_track"
	PatternStraight    = "straight"
)

// PatternKeys lists every pattern tag in profile-distribution order.
var PatternKeys = []string{
	PatternOrbit, PatternRacetrack, PatternHolding, PatternTankerTrack, PatternStraight,
}
