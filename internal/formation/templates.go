package formation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/skywatch-data/skywatch/internal/geo"
)

// Template describes the expected geometry of a known formation shape. An
// arbitrary aircraft group is scored against each template by comparing
// spacing, altitude spread, speed spread, heading variance and type list.
type Template struct {
	Name             string
	FormationType    string
	SpacingNM        float64 // expected mean pairwise spacing
	AltSpreadFt      float64 // expected altitude stddev
	SpeedSpreadKts   float64 // expected speed stddev
	HeadingSpreadDeg float64 // expected heading stddev
	TypeCodes        []string
	MinAircraft      int
}

// DefaultTemplates is the built-in pattern library.
var DefaultTemplates = []Template{
	{
		Name: "refueling track", FormationType: TypeTankerReceiver,
		SpacingNM: 2, AltSpreadFt: 500, SpeedSpreadKts: 15, HeadingSpreadDeg: 5,
		TypeCodes: []string{"KC135", "KC46", "KC10", "MRTT"}, MinAircraft: 2,
	},
	{
		Name: "escorted hva", FormationType: TypeEscort,
		SpacingNM: 5, AltSpreadFt: 2000, SpeedSpreadKts: 30, HeadingSpreadDeg: 10,
		TypeCodes: []string{"E3", "E7", "RC135"}, MinAircraft: 2,
	},
	{
		Name: "four ship", FormationType: TypeStrikePackage,
		SpacingNM: 8, AltSpreadFt: 3000, SpeedSpreadKts: 40, HeadingSpreadDeg: 15,
		TypeCodes: []string{"F16", "F15", "F18", "F35", "EUFI"}, MinAircraft: 3,
	},
	{
		Name: "station cap", FormationType: TypeCAP,
		SpacingNM: 15, AltSpreadFt: 4000, SpeedSpreadKts: 50, HeadingSpreadDeg: 90,
		TypeCodes: []string{"F16", "F15", "F18", "F35", "EUFI"}, MinAircraft: 2,
	},
}

// TemplateMatch is one scored template.
type TemplateMatch struct {
	Template Template
	Score    float64 // [0,1]
}

// RankTemplates scores the group against every template and returns matches
// sorted by score descending. Groups smaller than a template's minimum skip
// that template.
func RankTemplates(group []SnapshotAircraft, templates []Template) []TemplateMatch {
	if len(templates) == 0 {
		templates = DefaultTemplates
	}
	var out []TemplateMatch
	for _, tpl := range templates {
		if len(group) < tpl.MinAircraft {
			continue
		}
		out = append(out, TemplateMatch{Template: tpl, Score: scoreTemplate(group, tpl)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func scoreTemplate(group []SnapshotAircraft, tpl Template) float64 {
	spacing := meanPairwiseSpacingNM(group)
	altSpread := spreadOf(group, func(a SnapshotAircraft) *float64 { return a.AltitudeFt })
	speedSpread := spreadOf(group, func(a SnapshotAircraft) *float64 { return a.GroundSpeed })
	headingSpread := headingSpreadDeg(group)

	score := 0.3*closeness(spacing, tpl.SpacingNM) +
		0.2*closeness(altSpread, tpl.AltSpreadFt) +
		0.15*closeness(speedSpread, tpl.SpeedSpreadKts) +
		0.15*closeness(headingSpread, tpl.HeadingSpreadDeg) +
		0.2*typeOverlap(group, tpl.TypeCodes)
	return math.Min(1, score)
}

// closeness maps an observed value against an expectation into (0,1]:
// 1 at a perfect match, falling off as the ratio diverges.
func closeness(observed, expected float64) float64 {
	if expected <= 0 {
		return 0
	}
	ratio := observed / expected
	if ratio > 1 {
		ratio = 1 / ratio
	}
	return ratio
}

func meanPairwiseSpacingNM(group []SnapshotAircraft) float64 {
	var sum float64
	var n int
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			d := distNM(group[i], group[j])
			if math.IsInf(d, 1) {
				continue
			}
			sum += d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func spreadOf(group []SnapshotAircraft, get func(SnapshotAircraft) *float64) float64 {
	var values []float64
	for _, a := range group {
		if v := get(a); v != nil {
			values = append(values, *v)
		}
	}
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// headingSpreadDeg measures angular scatter around the group's mean heading.
func headingSpreadDeg(group []SnapshotAircraft) float64 {
	var headings []float64
	for _, a := range group {
		if a.Track != nil {
			headings = append(headings, *a.Track)
		}
	}
	if len(headings) < 2 {
		return 0
	}
	ref := headings[0]
	var devs []float64
	for _, h := range headings {
		devs = append(devs, geo.AngleDiff(ref, h))
	}
	return stat.StdDev(devs, nil)
}

func typeOverlap(group []SnapshotAircraft, codes []string) float64 {
	if len(codes) == 0 {
		return 0
	}
	wanted := map[string]bool{}
	for _, c := range codes {
		wanted[c] = true
	}
	var hit int
	for _, a := range group {
		if a.TypeCode != nil && wanted[*a.TypeCode] {
			hit++
		}
	}
	return float64(hit) / float64(len(group))
}
