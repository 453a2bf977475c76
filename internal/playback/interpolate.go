// Package playback reconstructs smooth aircraft motion between recorded
// frames for time-shifted replay: spherical interpolation for positions,
// angular interpolation for track, and a monotonic-clock animator with a
// speed multiplier. Frames persist in a local SQLite archive.
package playback

import (
	"sort"
	"time"

	"github.com/skywatch-data/skywatch/internal/geo"
	"github.com/skywatch-data/skywatch/internal/model"
)

// Frame is one recorded snapshot of all tracked aircraft.
type Frame struct {
	Time     time.Time
	Aircraft []model.Position
}

// Interpolate produces the snapshot for a wall time t between two ordered
// frames. Aircraft present in both frames move smoothly; aircraft in only
// one frame fade, the first half of the gap keeping the departing set and
// the second half the arriving set.
func Interpolate(f1, f2 Frame, t time.Time) Frame {
	if !t.After(f1.Time) {
		return f1
	}
	if !t.Before(f2.Time) {
		return f2
	}
	span := f2.Time.Sub(f1.Time)
	frac := float64(t.Sub(f1.Time)) / float64(span)

	byHex1 := indexByHex(f1.Aircraft)
	byHex2 := indexByHex(f2.Aircraft)

	out := Frame{Time: t}
	for hex, p1 := range byHex1 {
		p2, ok := byHex2[hex]
		if !ok {
			if frac < 0.5 {
				out.Aircraft = append(out.Aircraft, p1)
			}
			continue
		}
		out.Aircraft = append(out.Aircraft, blend(p1, p2, frac, t))
	}
	for hex, p2 := range byHex2 {
		if _, ok := byHex1[hex]; !ok && frac >= 0.5 {
			out.Aircraft = append(out.Aircraft, p2)
		}
	}

	sort.Slice(out.Aircraft, func(i, j int) bool {
		return out.Aircraft[i].Hex < out.Aircraft[j].Hex
	})
	return out
}

func indexByHex(positions []model.Position) map[string]model.Position {
	m := make(map[string]model.Position, len(positions))
	for _, p := range positions {
		m[p.Hex] = p
	}
	return m
}

func blend(p1, p2 model.Position, frac float64, t time.Time) model.Position {
	out := p1
	out.Time = t

	if lat, lon, err := geo.SphericalInterpolate(p1.Lat, p1.Lon, p2.Lat, p2.Lon, frac); err == nil {
		out.Lat, out.Lon = lat, lon
	}
	out.AltitudeFt = lerpPtr(p1.AltitudeFt, p2.AltitudeFt, frac)
	out.GroundSpeed = lerpPtr(p1.GroundSpeed, p2.GroundSpeed, frac)
	out.VerticalRate = lerpPtr(p1.VerticalRate, p2.VerticalRate, frac)
	out.Track = angleLerpPtr(p1.Track, p2.Track, frac)
	return out
}

// lerpPtr interpolates two optional scalars; a missing endpoint carries the
// other through.
func lerpPtr(a, b *float64, frac float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	}
	v := *a + (*b-*a)*frac
	return &v
}

func angleLerpPtr(a, b *float64, frac float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	}
	v := geo.InterpolateAngle(*a, *b, frac)
	return &v
}

// FindFrame binary-searches the ordered frame list and returns the indexes
// bracketing t: (i, i) on an exact or boundary hit. ok is false when the
// list is empty.
func FindFrame(frames []Frame, t time.Time) (int, int, bool) {
	if len(frames) == 0 {
		return 0, 0, false
	}
	if !t.After(frames[0].Time) {
		return 0, 0, true
	}
	last := len(frames) - 1
	if !t.Before(frames[last].Time) {
		return last, last, true
	}
	// First frame at or after t.
	hi := sort.Search(len(frames), func(i int) bool {
		return !frames[i].Time.Before(t)
	})
	if frames[hi].Time.Equal(t) {
		return hi, hi, true
	}
	return hi - 1, hi, true
}
