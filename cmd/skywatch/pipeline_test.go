package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-data/skywatch/internal/aggregator"
	"github.com/skywatch-data/skywatch/internal/formation"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/store"
)

func militaryTrack(hex string, lat, lon float64, typeCode, category string) store.MilitaryTrack {
	t := store.MilitaryTrack{Position: model.Position{Hex: hex, Lat: lat, Lon: lon}}
	if typeCode != "" {
		t.TypeCode = strPtr(typeCode)
	}
	if category != "" {
		t.Category = strPtr(category)
	}
	return t
}

func TestFormationSnapshotCarriesLivePatterns(t *testing.T) {
	alt := 25000.0
	hdgA, hdgB := 90.0, 270.0

	tracks := []store.MilitaryTrack{
		militaryTrack("F1", 55.0, 20.0, "F16", "fighter"),
		militaryTrack("F2", 55.15, 20.0, "F16", "fighter"),
	}
	for i := range tracks {
		tracks[i].AltitudeFt = &alt
	}
	tracks[0].Track = &hdgA
	tracks[1].Track = &hdgB

	snapshot := formationSnapshot(tracks, map[string]string{
		"F1": model.PatternOrbit,
		"F2": model.PatternRacetrack,
	})
	require.Len(t, snapshot, 2)
	require.NotNil(t, snapshot[0].RecentPattern)
	assert.Equal(t, model.PatternOrbit, *snapshot[0].RecentPattern)

	// Two orbiting fighters 9 nm apart form a combat air patrol.
	detections := formation.Detect(snapshot)
	var patrol *formation.Detection
	for i, d := range detections {
		if d.Type == formation.TypeCAP {
			patrol = &detections[i]
		}
	}
	require.NotNil(t, patrol)
	assert.Equal(t, []string{"F1", "F2"}, patrol.Aircraft)
}

func TestFormationSnapshotWithoutPatternsNoCAP(t *testing.T) {
	tracks := []store.MilitaryTrack{
		militaryTrack("F1", 55.0, 20.0, "F16", "fighter"),
		militaryTrack("F2", 55.15, 20.0, "F16", "fighter"),
	}
	snapshot := formationSnapshot(tracks, nil)
	for _, d := range formation.Detect(snapshot) {
		assert.NotEqual(t, formation.TypeCAP, d.Type)
	}
}

func TestNearbyAircraft(t *testing.T) {
	self := militaryTrack("A", 55.0, 20.0, "KC135", "tanker")
	tracks := []store.MilitaryTrack{
		self,
		militaryTrack("B", 55.1, 20.0, "F16", "fighter"), // ~6 nm
		militaryTrack("C", 57.0, 20.0, "F15", "fighter"), // ~120 nm, out of range
	}

	nearby := nearbyAircraft(tracks, self, intentNearbyNM)
	require.Len(t, nearby, 1)
	assert.Equal(t, "B", nearby[0].Hex)
	assert.Equal(t, aggregator.CategoryFighter, nearby[0].Category)
	assert.InDelta(t, 6.0, nearby[0].DistanceNM, 0.2)
}
