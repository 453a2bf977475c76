package aggregator

import (
	"encoding/json"
	"math"

	"github.com/skywatch-data/skywatch/internal/feeds"
)

// MergeRecords combines two records for the same hex. Non-null wins; when
// both sides carry a value the left (earlier-seen) side is preferred,
// except: seen/seen_pos take the minimum (freshest contact) and mil is a
// logical OR pending reclassification. Source sets are unioned.
func MergeRecords(left, right feeds.Record) feeds.Record {
	out := left

	out.Flight = pickString(left.Flight, right.Flight)
	out.Reg = pickString(left.Reg, right.Reg)
	out.Type = pickString(left.Type, right.Type)
	out.Desc = pickString(left.Desc, right.Desc)
	out.Lat = pickFloat(left.Lat, right.Lat)
	out.Lon = pickFloat(left.Lon, right.Lon)
	out.AltBaro = pickFloat(left.AltBaro, right.AltBaro)
	out.AltGeom = pickFloat(left.AltGeom, right.AltGeom)
	out.GS = pickFloat(left.GS, right.GS)
	out.Track = pickFloat(left.Track, right.Track)
	out.BaroRate = pickFloat(left.BaroRate, right.BaroRate)
	out.Squawk = pickString(left.Squawk, right.Squawk)
	out.Category = pickString(left.Category, right.Category)
	out.Operator = pickString(left.Operator, right.Operator)

	out.Seen = minFloat(left.Seen, right.Seen)
	out.SeenPos = minFloat(left.SeenPos, right.SeenPos)
	out.Mil = left.Mil || right.Mil

	if out.LastPosition == nil {
		out.LastPosition = right.LastPosition
	}

	out.Sources = unionSources(left.Sources, right.Sources)

	// Union extension bags, left-biased.
	if len(right.Extra) > 0 && out.Extra == nil {
		out.Extra = make(map[string]json.RawMessage, len(right.Extra))
	}
	for k, v := range right.Extra {
		if _, ok := out.Extra[k]; !ok {
			out.Extra[k] = v
		}
	}

	return out
}

func pickString(a, b *string) *string {
	if a != nil && *a != "" {
		return a
	}
	if b != nil && *b != "" {
		return b
	}
	return a
}

func pickFloat(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

func minFloat(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	m := math.Min(*a, *b)
	return &m
}

func unionSources(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
