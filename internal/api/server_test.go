package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch-data/skywatch/internal/aggregator"
	"github.com/skywatch-data/skywatch/internal/alerts"
	"github.com/skywatch-data/skywatch/internal/feeds"
	"github.com/skywatch-data/skywatch/internal/formation"
	"github.com/skywatch-data/skywatch/internal/geofence"
	"github.com/skywatch-data/skywatch/internal/intel"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/predict"
	"github.com/skywatch-data/skywatch/internal/profile"
	"github.com/skywatch-data/skywatch/internal/proximity"
	"github.com/skywatch-data/skywatch/internal/store"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// The production store and aggregator must satisfy the server's surfaces.
var (
	_ Store     = (*store.Store)(nil)
	_ HexLookup = (*aggregator.Aggregator)(nil)
)

type fakeStore struct {
	positions  []model.Position
	formations []formation.Formation
	warnings   []proximity.Warning
	alerts     []alerts.Alert
	profiles   map[string]*profile.Profile
	preds      []predict.Prediction
	rollups    []store.AccuracyRollup
	fences     map[int64]*geofence.Geofence
	fenceAlrts []geofence.Alert
	threats    []intel.Threat
	anomalies  []intel.Anomaly

	lastSince   time.Time
	nextFenceID int64
	deleted     []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:    map[string]*profile.Profile{},
		fences:      map[int64]*geofence.Geofence{},
		nextFenceID: 1,
	}
}

func (f *fakeStore) LatestPositions(ctx context.Context) ([]model.Position, error) {
	return f.positions, nil
}

func (f *fakeStore) ActiveFormations(ctx context.Context) ([]formation.Formation, error) {
	return f.formations, nil
}

func (f *fakeStore) ActiveWarnings(ctx context.Context) ([]proximity.Warning, error) {
	return f.warnings, nil
}

func (f *fakeStore) AlertsSince(ctx context.Context, since time.Time) ([]alerts.Alert, error) {
	f.lastSince = since
	return f.alerts, nil
}

func (f *fakeStore) GetProfile(ctx context.Context, hex string) (*profile.Profile, error) {
	return f.profiles[hex], nil
}

func (f *fakeStore) PredictionsFor(ctx context.Context, hex string, now time.Time) ([]predict.Prediction, error) {
	var out []predict.Prediction
	for _, p := range f.preds {
		if p.Hex == hex {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) AccuracyRollups(ctx context.Context, since time.Time) ([]store.AccuracyRollup, error) {
	f.lastSince = since
	return f.rollups, nil
}

func (f *fakeStore) ActiveGeofences(ctx context.Context) ([]geofence.Geofence, error) {
	var out []geofence.Geofence
	for _, g := range f.fences {
		out = append(out, *g)
	}
	return out, nil
}

func (f *fakeStore) GetGeofence(ctx context.Context, id int64) (*geofence.Geofence, error) {
	return f.fences[id], nil
}

func (f *fakeStore) InsertGeofence(ctx context.Context, g *geofence.Geofence) error {
	g.ID = f.nextFenceID
	f.nextFenceID++
	f.fences[g.ID] = g
	return nil
}

func (f *fakeStore) UpdateGeofence(ctx context.Context, g *geofence.Geofence) error {
	f.fences[g.ID] = g
	return nil
}

func (f *fakeStore) DeleteGeofence(ctx context.Context, id int64) error {
	delete(f.fences, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) GeofenceAlertsSince(ctx context.Context, since time.Time) ([]geofence.Alert, error) {
	f.lastSince = since
	return f.fenceAlrts, nil
}

func (f *fakeStore) CurrentThreats(ctx context.Context, now time.Time) ([]intel.Threat, error) {
	return f.threats, nil
}

func (f *fakeStore) AnomaliesSince(ctx context.Context, since time.Time) ([]intel.Anomaly, error) {
	f.lastSince = since
	return f.anomalies, nil
}

func setupTestServer(fs *fakeStore) *Server {
	return NewServer(fs, nil, timeutil.NewManualClock(t0))
}

func fp(v float64) *float64 { return &v }

func TestListPositions(t *testing.T) {
	fs := newFakeStore()
	fs.positions = []model.Position{
		{Hex: "AE0001", Time: t0, Lat: 33, Lon: -117, AltitudeFt: fp(25000), Source: "adsb"},
		{Hex: "AE0002", Time: t0, Lat: 34, Lon: -118, Source: "mlat"},
	}
	server := setupTestServer(fs)

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out []PositionAPI
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.Equal(t, "AE0001", out[0].Hex)
	assert.Equal(t, 25000.0, *out[0].AltitudeFt)
	assert.Nil(t, out[1].AltitudeFt)
}

type fakeHexLookup struct {
	recs map[string]*feeds.Record
	err  error
}

func (f *fakeHexLookup) LookupHex(ctx context.Context, hex string) (*feeds.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.recs[hex], nil
}

func TestShowAircraft(t *testing.T) {
	typeCode := "F16"
	lookup := &fakeHexLookup{recs: map[string]*feeds.Record{
		"ae1234": {
			Hex: "AE1234", Type: &typeCode, Lat: fp(55.2), Lon: fp(20.1),
			AltBaro: fp(24000), GS: fp(420), Mil: true,
			Sources: []string{"adsb.lol"},
		},
	}}
	server := NewServer(newFakeStore(), lookup, timeutil.NewManualClock(t0))

	req := httptest.NewRequest(http.MethodGet, "/api/aircraft/ae1234", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out AircraftAPI
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Equal(t, "AE1234", out.Hex)
	assert.Equal(t, "F16", *out.TypeCode)
	assert.Equal(t, 24000.0, *out.AltitudeFt)
	assert.True(t, out.Military)
	assert.Equal(t, []string{"adsb.lol"}, out.Sources)
}

func TestShowAircraftNotFound(t *testing.T) {
	server := NewServer(newFakeStore(), &fakeHexLookup{}, timeutil.NewManualClock(t0))

	req := httptest.NewRequest(http.MethodGet, "/api/aircraft/ffffff", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestShowAircraftUnconfigured(t *testing.T) {
	server := setupTestServer(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/api/aircraft/ae1234", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListPositionsMethodNotAllowed(t *testing.T) {
	server := setupTestServer(newFakeStore())

	req := httptest.NewRequest(http.MethodPost, "/api/positions", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestListWarningsFlattensConflict(t *testing.T) {
	fs := newFakeStore()
	fs.warnings = []proximity.Warning{{
		ID: 7,
		Conflict: proximity.Conflict{
			Hex1: "AE0001", Hex2: "AE0002", Type: "head_on", Severity: "critical",
			Confidence: 0.9, CPADistanceNM: 1.2, TimeToCPA: 90 * time.Second,
		},
		FirstSeen: t0, LastSeen: t0, Active: true,
	}}
	server := setupTestServer(fs)

	req := httptest.NewRequest(http.MethodGet, "/api/warnings", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out []WarningAPI
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "head_on", out[0].Type)
	assert.Equal(t, 90.0, out[0].TimeToCPASeconds)
}

func TestListAlertsWindow(t *testing.T) {
	fs := newFakeStore()
	server := setupTestServer(fs)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts?hours=6", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, t0.Add(-6*time.Hour), fs.lastSince)
}

func TestListAlertsBadWindow(t *testing.T) {
	server := setupTestServer(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/api/alerts?hours=zero", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShowProfile(t *testing.T) {
	fs := newFakeStore()
	fs.profiles["AE0001"] = &profile.Profile{
		Hex:         "AE0001",
		PatternDist: map[string]float64{"transit": 1},
		SampleCount: 12,
		IsTrained:   true,
	}
	server := setupTestServer(fs)

	req := httptest.NewRequest(http.MethodGet, "/api/profiles/AE0001", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out ProfileAPI
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Equal(t, "AE0001", out.Hex)
	assert.True(t, out.IsTrained)
}

func TestShowProfileNotFound(t *testing.T) {
	server := setupTestServer(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/api/profiles/AE9999", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListPredictions(t *testing.T) {
	fs := newFakeStore()
	fs.preds = []predict.Prediction{
		{ID: 1, Hex: "AE0001", Horizon: 5 * time.Minute, Lat: 33.5, Lon: -117.5},
		{ID: 2, Hex: "AE0002", Horizon: 5 * time.Minute, Lat: 40, Lon: -100},
	}
	server := setupTestServer(fs)

	req := httptest.NewRequest(http.MethodGet, "/api/predictions/AE0001", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out []PredictionAPI
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, 300.0, out[0].HorizonSeconds)
}

func TestShowAccuracy(t *testing.T) {
	fs := newFakeStore()
	fs.rollups = []store.AccuracyRollup{
		{Horizon: 5 * time.Minute, Day: t0.Truncate(24 * time.Hour), Total: 10, Accurate: 8, AccuracyRate: 0.8},
	}
	server := setupTestServer(fs)

	req := httptest.NewRequest(http.MethodGet, "/api/predictions/accuracy?days=3", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out []AccuracyAPI
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, 0.8, out[0].AccuracyRate)
	assert.Equal(t, t0.AddDate(0, 0, -3), fs.lastSince)
}

const fencePayload = `{
	"name": "test range",
	"polygon": {"type": "Polygon", "coordinates": [[[-117,33],[-116,33],[-116,34],[-117,34],[-117,33]]]},
	"dwell_seconds": 300,
	"alert_on_entry": true,
	"active": true
}`

func TestCreateGeofence(t *testing.T) {
	fs := newFakeStore()
	server := setupTestServer(fs)

	req := httptest.NewRequest(http.MethodPost, "/api/geofences", strings.NewReader(fencePayload))
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var out GeofenceAPI
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Equal(t, int64(1), out.ID)
	assert.Equal(t, "test range", out.Name)
	assert.Equal(t, 300.0, out.DwellSeconds)

	g := fs.fences[1]
	require.NotNil(t, g)
	assert.Equal(t, 5*time.Minute, g.DwellThreshold)
	assert.True(t, g.Contains(33.5, -116.5))
}

func TestCreateGeofenceRejectsBadBody(t *testing.T) {
	server := setupTestServer(newFakeStore())

	for _, body := range []string{
		`{not json`,
		`{"name": "", "polygon": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}}`,
		`{"name": "no polygon"}`,
		`{"name": "point", "polygon": {"type": "Point", "coordinates": [1,2]}}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/geofences", strings.NewReader(body))
		w := httptest.NewRecorder()
		server.ServeMux().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", body)
	}
}

func TestGeofenceByID(t *testing.T) {
	fs := newFakeStore()
	fs.fences[4] = &geofence.Geofence{
		ID:   4,
		Name: "restricted",
		Polygon: orb.Polygon{{
			{-117, 33}, {-116, 33}, {-116, 34}, {-117, 34}, {-117, 33},
		}},
		Active: true,
	}
	server := setupTestServer(fs)

	req := httptest.NewRequest(http.MethodGet, "/api/geofences/4", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out GeofenceAPI
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Equal(t, "restricted", out.Name)
	require.NotNil(t, out.Polygon)
	assert.Equal(t, "Polygon", out.Polygon.Type)
}

func TestGeofenceByIDInvalid(t *testing.T) {
	server := setupTestServer(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/api/geofences/abc", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGeofenceNotFound(t *testing.T) {
	server := setupTestServer(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/api/geofences/99", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateGeofence(t *testing.T) {
	fs := newFakeStore()
	fs.fences[2] = &geofence.Geofence{
		ID:      2,
		Name:    "old name",
		Polygon: orb.Polygon{{{-117, 33}, {-116, 33}, {-116, 34}, {-117, 33}}},
	}
	server := setupTestServer(fs)

	req := httptest.NewRequest(http.MethodPut, "/api/geofences/2", strings.NewReader(fencePayload))
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test range", fs.fences[2].Name)
	assert.Equal(t, int64(2), fs.fences[2].ID)
}

func TestDeleteGeofence(t *testing.T) {
	fs := newFakeStore()
	fs.fences[3] = &geofence.Geofence{ID: 3, Name: "gone"}
	server := setupTestServer(fs)

	req := httptest.NewRequest(http.MethodDelete, "/api/geofences/3", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []int64{3}, fs.deleted)
}

func TestListThreats(t *testing.T) {
	fs := newFakeStore()
	fs.threats = []intel.Threat{{
		ID: 1, EntityType: "aircraft", EntityID: "AE0001", Score: 0.7, Level: "high",
		Components: map[string]float64{"anomaly": 0.6},
	}}
	server := setupTestServer(fs)

	req := httptest.NewRequest(http.MethodGet, "/api/threats", nil)
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out []ThreatAPI
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "high", out[0].Level)
}
