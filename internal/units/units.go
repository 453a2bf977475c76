// Package units provides the unit conversions used when adapting upstream
// feeds. ADS-B aggregator endpoints report feet/knots/fpm; OpenSky-style
// endpoints report metric and must be converted on ingest.
package units

// Conversion factors applied to OpenSky-style metric fields.
const (
	MetersToFeet = 3.28084
	MPSToKnots   = 1.944
	MPSToFPM     = 196.85
)

// FeetFromMeters converts a barometric or geometric altitude.
func FeetFromMeters(m float64) float64 { return m * MetersToFeet }

// KnotsFromMPS converts a ground speed.
func KnotsFromMPS(mps float64) float64 { return mps * MPSToKnots }

// FPMFromMPS converts a vertical rate to feet per minute.
func FPMFromMPS(mps float64) float64 { return mps * MPSToFPM }

// FlightLevelFeet converts a flight level (hundreds of feet) to feet.
func FlightLevelFeet(fl int) float64 { return float64(fl) * 100 }
