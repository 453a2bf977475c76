// Package api serves the read surface of the fusion engine over HTTP:
// the live picture (positions, formations, warnings, threats), per-aircraft
// lookups (profile, predictions) and geofence management.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/skywatch-data/skywatch/internal/alerts"
	"github.com/skywatch-data/skywatch/internal/feeds"
	"github.com/skywatch-data/skywatch/internal/formation"
	"github.com/skywatch-data/skywatch/internal/geofence"
	"github.com/skywatch-data/skywatch/internal/intel"
	"github.com/skywatch-data/skywatch/internal/model"
	"github.com/skywatch-data/skywatch/internal/monitoring"
	"github.com/skywatch-data/skywatch/internal/predict"
	"github.com/skywatch-data/skywatch/internal/profile"
	"github.com/skywatch-data/skywatch/internal/proximity"
	"github.com/skywatch-data/skywatch/internal/store"
	"github.com/skywatch-data/skywatch/internal/timeutil"
)

// ANSI escape codes for request log coloring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Store collects every store call the handlers make.
type Store interface {
	LatestPositions(ctx context.Context) ([]model.Position, error)
	ActiveFormations(ctx context.Context) ([]formation.Formation, error)
	ActiveWarnings(ctx context.Context) ([]proximity.Warning, error)
	AlertsSince(ctx context.Context, since time.Time) ([]alerts.Alert, error)
	GetProfile(ctx context.Context, hex string) (*profile.Profile, error)
	PredictionsFor(ctx context.Context, hex string, now time.Time) ([]predict.Prediction, error)
	AccuracyRollups(ctx context.Context, since time.Time) ([]store.AccuracyRollup, error)
	ActiveGeofences(ctx context.Context) ([]geofence.Geofence, error)
	GetGeofence(ctx context.Context, id int64) (*geofence.Geofence, error)
	InsertGeofence(ctx context.Context, g *geofence.Geofence) error
	UpdateGeofence(ctx context.Context, g *geofence.Geofence) error
	DeleteGeofence(ctx context.Context, id int64) error
	GeofenceAlertsSince(ctx context.Context, since time.Time) ([]geofence.Alert, error)
	CurrentThreats(ctx context.Context, now time.Time) ([]intel.Threat, error)
	AnomaliesSince(ctx context.Context, since time.Time) ([]intel.Anomaly, error)
}

// HexLookup resolves a single aircraft against the live upstream picture.
// The aggregator satisfies it.
type HexLookup interface {
	LookupHex(ctx context.Context, hex string) (*feeds.Record, error)
}

// Server answers read queries against the store.
type Server struct {
	store Store
	hexes HexLookup // optional; nil disables /api/aircraft/
	clock timeutil.Clock
}

// NewServer builds a Server. A nil clock falls back to the real one.
func NewServer(st Store, hexes HexLookup, clock timeutil.Clock) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{store: st, hexes: hexes, clock: clock}
}

// ServeMux wires every endpoint.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/positions", s.listPositions)
	mux.HandleFunc("/api/aircraft/", s.showAircraft)
	mux.HandleFunc("/api/formations", s.listFormations)
	mux.HandleFunc("/api/warnings", s.listWarnings)
	mux.HandleFunc("/api/alerts", s.listAlerts)
	mux.HandleFunc("/api/threats", s.listThreats)
	mux.HandleFunc("/api/anomalies", s.listAnomalies)
	mux.HandleFunc("/api/profiles/", s.showProfile)
	mux.HandleFunc("/api/predictions/accuracy", s.showAccuracy)
	mux.HandleFunc("/api/predictions/", s.listPredictions)
	mux.HandleFunc("/api/geofences", s.handleGeofencesOrCreate)
	mux.HandleFunc("/api/geofences/", s.handleGeofenceByID)
	mux.HandleFunc("/api/geofence_alerts", s.listGeofenceAlerts)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("SkyWatch fusion engine\n"))
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: write response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// requireGet rejects non-GET methods. Returns false when the request was
// already answered.
func (s *Server) requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// hoursWindow reads an "hours" query parameter, default 24.
func (s *Server) hoursWindow(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		parsed, err := strconv.Atoi(h)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'hours' parameter")
			return time.Time{}, false
		}
		hours = parsed
	}
	return s.clock.Now().Add(-time.Duration(hours) * time.Hour), true
}

func (s *Server) listPositions(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	positions, err := s.store.LatestPositions(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve positions: %v", err))
		return
	}
	out := make([]PositionAPI, len(positions))
	for i, p := range positions {
		out[i] = PositionToAPI(p)
	}
	s.writeJSON(w, out)
}

func (s *Server) showAircraft(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	hex := pathTail(r.URL.Path, "/api/aircraft/")
	if hex == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing aircraft hex")
		return
	}
	if s.hexes == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Aircraft lookup not configured")
		return
	}
	rec, err := s.hexes.LookupHex(r.Context(), hex)
	if err != nil {
		s.writeJSONError(w, http.StatusBadGateway,
			fmt.Sprintf("Failed to look up aircraft: %v", err))
		return
	}
	if rec == nil {
		s.writeJSONError(w, http.StatusNotFound, "Aircraft not found")
		return
	}
	s.writeJSON(w, AircraftToAPI(*rec))
}

func (s *Server) listFormations(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	formations, err := s.store.ActiveFormations(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve formations: %v", err))
		return
	}
	out := make([]FormationAPI, len(formations))
	for i, f := range formations {
		out[i] = FormationToAPI(f)
	}
	s.writeJSON(w, out)
}

func (s *Server) listWarnings(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	warnings, err := s.store.ActiveWarnings(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve warnings: %v", err))
		return
	}
	out := make([]WarningAPI, len(warnings))
	for i, wrn := range warnings {
		out[i] = WarningToAPI(wrn)
	}
	s.writeJSON(w, out)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	since, ok := s.hoursWindow(w, r)
	if !ok {
		return
	}
	list, err := s.store.AlertsSince(r.Context(), since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve alerts: %v", err))
		return
	}
	out := make([]AlertAPI, len(list))
	for i, a := range list {
		out[i] = AlertToAPI(a)
	}
	s.writeJSON(w, out)
}

func (s *Server) listThreats(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	threats, err := s.store.CurrentThreats(r.Context(), s.clock.Now())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve threats: %v", err))
		return
	}
	out := make([]ThreatAPI, len(threats))
	for i, t := range threats {
		out[i] = ThreatToAPI(t)
	}
	s.writeJSON(w, out)
}

func (s *Server) listAnomalies(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	since, ok := s.hoursWindow(w, r)
	if !ok {
		return
	}
	anomalies, err := s.store.AnomaliesSince(r.Context(), since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve anomalies: %v", err))
		return
	}
	out := make([]AnomalyAPI, len(anomalies))
	for i, a := range anomalies {
		out[i] = AnomalyToAPI(a)
	}
	s.writeJSON(w, out)
}

func (s *Server) showProfile(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	hex := pathTail(r.URL.Path, "/api/profiles/")
	if hex == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing aircraft hex")
		return
	}
	p, err := s.store.GetProfile(r.Context(), hex)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve profile: %v", err))
		return
	}
	if p == nil {
		s.writeJSONError(w, http.StatusNotFound, "Profile not found")
		return
	}
	s.writeJSON(w, ProfileToAPI(*p))
}

func (s *Server) listPredictions(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	hex := pathTail(r.URL.Path, "/api/predictions/")
	if hex == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing aircraft hex")
		return
	}
	preds, err := s.store.PredictionsFor(r.Context(), hex, s.clock.Now())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve predictions: %v", err))
		return
	}
	out := make([]PredictionAPI, len(preds))
	for i, p := range preds {
		out[i] = PredictionToAPI(p)
	}
	s.writeJSON(w, out)
}

func (s *Server) showAccuracy(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	days := 7
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'days' parameter")
			return
		}
		days = parsed
	}
	since := s.clock.Now().AddDate(0, 0, -days)
	rollups, err := s.store.AccuracyRollups(r.Context(), since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve accuracy: %v", err))
		return
	}
	out := make([]AccuracyAPI, len(rollups))
	for i, a := range rollups {
		out[i] = AccuracyToAPI(a)
	}
	s.writeJSON(w, out)
}

func (s *Server) listGeofenceAlerts(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	since, ok := s.hoursWindow(w, r)
	if !ok {
		return
	}
	list, err := s.store.GeofenceAlertsSince(r.Context(), since)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve geofence alerts: %v", err))
		return
	}
	out := make([]GeofenceAlertAPI, len(list))
	for i, a := range list {
		out[i] = GeofenceAlertToAPI(a)
	}
	s.writeJSON(w, out)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
