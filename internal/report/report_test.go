package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-data/skywatch/internal/alerts"
	"github.com/skywatch-data/skywatch/internal/geocontext"
	"github.com/skywatch-data/skywatch/internal/store"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var _ Store = (*store.Store)(nil)

type fakeStore struct {
	alerts  []alerts.Alert
	zones   []geocontext.ActivityZone
	rollups []store.AccuracyRollup

	alertsSince time.Time
}

func (f *fakeStore) AlertsSince(ctx context.Context, since time.Time) ([]alerts.Alert, error) {
	f.alertsSince = since
	return f.alerts, nil
}

func (f *fakeStore) ActiveZones(ctx context.Context) ([]geocontext.ActivityZone, error) {
	return f.zones, nil
}

func (f *fakeStore) AccuracyRollups(ctx context.Context, since time.Time) ([]store.AccuracyRollup, error) {
	return f.rollups, nil
}

func TestRenderProducesAllCharts(t *testing.T) {
	fs := &fakeStore{
		alerts: []alerts.Alert{
			{Type: "formation", Title: "f", Severity: "high", CreatedAt: t0.Add(-2 * time.Hour)},
			{Type: "formation", Title: "f2", Severity: "low", CreatedAt: t0.Add(-1 * time.Hour)},
			{Type: "geofence", Title: "g", Severity: "critical", CreatedAt: t0.Add(-30 * time.Minute)},
		},
		zones: []geocontext.ActivityZone{
			{ID: 1, CenterLat: 33, CenterLon: -117, RadiusNM: 10, Level: "high", Active: true},
		},
		rollups: []store.AccuracyRollup{
			{Horizon: 5 * time.Minute, Day: t0.AddDate(0, 0, -1), Total: 10, Accurate: 8, AccuracyRate: 0.8},
			{Horizon: 15 * time.Minute, Day: t0.AddDate(0, 0, -1), Total: 10, Accurate: 5, AccuracyRate: 0.5},
		},
	}
	gen := NewGenerator(fs, Config{})

	var buf bytes.Buffer
	require.NoError(t, gen.Render(context.Background(), t0, &buf))

	out := buf.String()
	assert.Contains(t, out, "Alert mix")
	assert.Contains(t, out, "Alert volume per hour")
	assert.Contains(t, out, "Active hot zones")
	assert.Contains(t, out, "Prediction accuracy by horizon")

	// Default window is 24h.
	assert.Equal(t, t0.Add(-24*time.Hour), fs.alertsSince)
}

func TestRenderEmptyWindow(t *testing.T) {
	gen := NewGenerator(&fakeStore{}, Config{Window: time.Hour, Title: "empty"})

	var buf bytes.Buffer
	require.NoError(t, gen.Render(context.Background(), t0, &buf))
	assert.NotZero(t, buf.Len())
}
