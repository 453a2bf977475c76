// Package formation detects multi-aircraft structures in a snapshot of
// active military positions: tanker-receiver pairs, escorted high-value
// assets, strike packages and combat air patrols. Detection is pure; the
// Monitor wraps it with persistence and the stale-formation lifecycle.
package formation

import (
	"math"
	"sort"
	"time"

	"github.com/skywatch-data/skywatch/internal/aggregator"
	"github.com/skywatch-data/skywatch/internal/geo"
)

// Formation type tags.
const (
	TypeTankerReceiver = "tanker_receiver"
	TypeEscort         = "escort"
	TypeStrikePackage  = "strike_package"
	TypeCAP            = "cap"
)

// SnapshotAircraft is one aircraft in the detection snapshot.
type SnapshotAircraft struct {
	Hex           string
	TypeCode      *string
	Category      aggregator.Category
	Lat           float64
	Lon           float64
	AltitudeFt    *float64
	GroundSpeed   *float64
	Track         *float64
	RecentPattern *string // primary pattern of the current flight, when known
}

// Detection is one formation candidate found in a snapshot.
type Detection struct {
	Type       string
	Aircraft   []string // member hexes, sorted
	Confidence float64
	CenterLat  float64
	CenterLon  float64
	AltitudeFt float64
}

// Rule constants.
const (
	tankerBandLowFt   = 20000.0
	tankerBandHighFt  = 35000.0
	tankerReceiverNM  = 5.0
	tankerHeadingTol  = 30.0
	escortRadiusNM    = 10.0
	escortHeadingTol  = 45.0
	strikeRadiusNM    = 20.0
	strikeHeadingTol  = 30.0
	strikeMinAircraft = 3
	capRadiusNM       = 30.0
	capMinAircraft    = 2
)

// highValueTypes supplement the category tables for escort detection.
var highValueTypes = map[string]bool{
	"E3": true, "E3TF": true, "E3CF": true, "E7": true, "E767": true,
	"RC135": true, "E8": true, "E6": true, "B742": true,
}

func inTankerBand(alt *float64) bool {
	return alt != nil && *alt >= tankerBandLowFt && *alt <= tankerBandHighFt
}

func isTanker(a SnapshotAircraft) bool {
	if a.Category == aggregator.CategoryTanker {
		return true
	}
	return a.TypeCode != nil && aggregator.CategoryForType(*a.TypeCode) == aggregator.CategoryTanker
}

func isHighValue(a SnapshotAircraft) bool {
	if a.Category == aggregator.CategoryAWACS || a.Category == aggregator.CategoryISR {
		return true
	}
	return a.TypeCode != nil && highValueTypes[*a.TypeCode]
}

func isFighter(a SnapshotAircraft) bool {
	if a.Category == aggregator.CategoryFighter {
		return true
	}
	return a.TypeCode != nil && aggregator.CategoryForType(*a.TypeCode) == aggregator.CategoryFighter
}

// distNM is the separation between two snapshot aircraft; invalid
// coordinates count as infinitely far apart.
func distNM(a, b SnapshotAircraft) float64 {
	d, err := geo.DistanceNM(a.Lat, a.Lon, b.Lat, b.Lon)
	if err != nil {
		return math.Inf(1)
	}
	return d
}

func headingsAligned(a, b SnapshotAircraft, tolerance float64) (float64, bool) {
	if a.Track == nil || b.Track == nil {
		return 0, false
	}
	diff := geo.AngleDiff(*a.Track, *b.Track)
	return diff, diff <= tolerance
}

// Detect runs all four rules over the snapshot and returns every candidate.
func Detect(snapshot []SnapshotAircraft) []Detection {
	var out []Detection
	out = append(out, detectTankerReceiver(snapshot)...)
	out = append(out, detectEscort(snapshot)...)
	out = append(out, detectStrikePackage(snapshot)...)
	out = append(out, detectCAP(snapshot)...)
	return out
}

func detectTankerReceiver(snapshot []SnapshotAircraft) []Detection {
	var out []Detection
	for _, tanker := range snapshot {
		if !isTanker(tanker) || !inTankerBand(tanker.AltitudeFt) {
			continue
		}

		members := []SnapshotAircraft{tanker}
		bestAltGap := math.MaxFloat64
		bestHdgGap := math.MaxFloat64
		for _, other := range snapshot {
			if other.Hex == tanker.Hex || isTanker(other) || !inTankerBand(other.AltitudeFt) {
				continue
			}
			if distNM(tanker, other) > tankerReceiverNM {
				continue
			}
			hdgGap, ok := headingsAligned(tanker, other, tankerHeadingTol)
			if !ok {
				continue
			}
			members = append(members, other)
			bestAltGap = math.Min(bestAltGap, math.Abs(*tanker.AltitudeFt-*other.AltitudeFt))
			bestHdgGap = math.Min(bestHdgGap, hdgGap)
		}
		if len(members) < 2 {
			continue
		}

		conf := 0.5
		if bestAltGap < 2000 {
			conf += 0.2 * (1 - bestAltGap/2000)
		}
		if bestHdgGap < 15 {
			conf += 0.3 * (1 - bestHdgGap/15)
		}
		out = append(out, buildDetection(TypeTankerReceiver, members, conf))
	}
	return out
}

func detectEscort(snapshot []SnapshotAircraft) []Detection {
	var out []Detection
	for _, hva := range snapshot {
		if !isHighValue(hva) {
			continue
		}

		members := []SnapshotAircraft{hva}
		for _, other := range snapshot {
			if other.Hex == hva.Hex || !isFighter(other) {
				continue
			}
			if distNM(hva, other) > escortRadiusNM {
				continue
			}
			if _, ok := headingsAligned(hva, other, escortHeadingTol); !ok {
				continue
			}
			members = append(members, other)
		}
		if len(members) < 2 {
			continue
		}

		conf := math.Min(0.95, 0.5+0.15*float64(len(members)-1))
		out = append(out, buildDetection(TypeEscort, members, conf))
	}
	return out
}

// detectStrikePackage greedily clusters fighters around a seed. Each fighter
// belongs to at most one package.
func detectStrikePackage(snapshot []SnapshotAircraft) []Detection {
	var fighters []SnapshotAircraft
	for _, a := range snapshot {
		if isFighter(a) {
			fighters = append(fighters, a)
		}
	}

	used := map[string]bool{}
	var out []Detection
	for _, seed := range fighters {
		if used[seed.Hex] {
			continue
		}
		cluster := []SnapshotAircraft{seed}
		for _, other := range fighters {
			if other.Hex == seed.Hex || used[other.Hex] {
				continue
			}
			if distNM(seed, other) > strikeRadiusNM {
				continue
			}
			if _, ok := headingsAligned(seed, other, strikeHeadingTol); !ok {
				continue
			}
			cluster = append(cluster, other)
		}
		if len(cluster) < strikeMinAircraft {
			continue
		}
		for _, m := range cluster {
			used[m.Hex] = true
		}

		conf := math.Min(0.9, 0.5+0.1*float64(len(cluster)-strikeMinAircraft))
		out = append(out, buildDetection(TypeStrikePackage, cluster, conf))
	}
	return out
}

func isOrbitingPattern(pattern *string) bool {
	if pattern == nil {
		return false
	}
	return *pattern == "orbit" || *pattern == "racetrack"
}

// detectCAP groups orbiting fighters that sit within 30 nm of each other.
func detectCAP(snapshot []SnapshotAircraft) []Detection {
	var orbiting []SnapshotAircraft
	for _, a := range snapshot {
		if isFighter(a) && isOrbitingPattern(a.RecentPattern) {
			orbiting = append(orbiting, a)
		}
	}
	if len(orbiting) < capMinAircraft {
		return nil
	}

	used := map[string]bool{}
	var out []Detection
	for _, seed := range orbiting {
		if used[seed.Hex] {
			continue
		}
		group := []SnapshotAircraft{seed}
		for _, other := range orbiting {
			if other.Hex == seed.Hex || used[other.Hex] {
				continue
			}
			if distNM(seed, other) <= capRadiusNM {
				group = append(group, other)
			}
		}
		if len(group) < capMinAircraft {
			continue
		}
		for _, m := range group {
			used[m.Hex] = true
		}

		conf := math.Min(0.85, 0.6+0.1*float64(len(group)-capMinAircraft))
		out = append(out, buildDetection(TypeCAP, group, conf))
	}
	return out
}

func buildDetection(ftype string, members []SnapshotAircraft, conf float64) Detection {
	hexes := make([]string, 0, len(members))
	var lat, lon, alt float64
	var altN int
	for _, m := range members {
		hexes = append(hexes, m.Hex)
		lat += m.Lat
		lon += m.Lon
		if m.AltitudeFt != nil {
			alt += *m.AltitudeFt
			altN++
		}
	}
	sort.Strings(hexes)
	n := float64(len(members))
	d := Detection{
		Type:       ftype,
		Aircraft:   hexes,
		Confidence: conf,
		CenterLat:  lat / n,
		CenterLon:  lon / n,
	}
	if altN > 0 {
		d.AltitudeFt = alt / float64(altN)
	}
	return d
}

// Formation is a persisted detection with its lifecycle fields.
type Formation struct {
	ID         int64
	Type       string
	Aircraft   []string
	Confidence float64
	CenterLat  float64
	CenterLon  float64
	AltitudeFt float64
	FirstSeen  time.Time
	LastSeen   time.Time
	Active     bool
}
