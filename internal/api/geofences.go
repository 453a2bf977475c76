package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/skywatch-data/skywatch/internal/geofence"
)

// GeofenceRequest is the request body for creating or updating a geofence.
type GeofenceRequest struct {
	Name         string            `json:"name"`
	Polygon      *geojson.Geometry `json:"polygon"`
	DwellSeconds float64           `json:"dwell_seconds"`
	AlertOnEntry bool              `json:"alert_on_entry"`
	AlertOnDwell bool              `json:"alert_on_dwell"`
	AlertOnExit  bool              `json:"alert_on_exit"`
	Active       bool              `json:"active"`
}

func (req *GeofenceRequest) toGeofence() (*geofence.Geofence, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if req.Polygon == nil {
		return nil, fmt.Errorf("polygon is required")
	}
	poly, ok := req.Polygon.Geometry().(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("polygon geometry is %s, want Polygon", req.Polygon.Type)
	}
	if len(poly) == 0 || len(poly[0]) < 4 {
		return nil, fmt.Errorf("polygon ring needs at least 3 distinct points")
	}
	return &geofence.Geofence{
		Name:           req.Name,
		Polygon:        poly,
		DwellThreshold: time.Duration(req.DwellSeconds * float64(time.Second)),
		AlertOnEntry:   req.AlertOnEntry,
		AlertOnDwell:   req.AlertOnDwell,
		AlertOnExit:    req.AlertOnExit,
		Active:         req.Active,
	}, nil
}

// pathTail returns the first path segment after the prefix.
func pathTail(path, prefix string) string {
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// handleGeofencesOrCreate handles GET and POST to /api/geofences.
func (s *Server) handleGeofencesOrCreate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listGeofences(w, r)
	case http.MethodPost:
		s.createGeofence(w, r)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleGeofenceByID handles GET/PUT/DELETE on /api/geofences/:id.
func (s *Server) handleGeofenceByID(w http.ResponseWriter, r *http.Request) {
	raw := pathTail(r.URL.Path, "/api/geofences/")
	if raw == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing geofence ID")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid geofence ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.showGeofence(w, r, id)
	case http.MethodPut:
		s.updateGeofence(w, r, id)
	case http.MethodDelete:
		s.deleteGeofence(w, r, id)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) listGeofences(w http.ResponseWriter, r *http.Request) {
	fences, err := s.store.ActiveGeofences(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve geofences: %v", err))
		return
	}
	out := make([]GeofenceAPI, len(fences))
	for i, g := range fences {
		out[i] = GeofenceToAPI(g)
	}
	s.writeJSON(w, out)
}

func (s *Server) createGeofence(w http.ResponseWriter, r *http.Request) {
	var req GeofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	g, err := req.toGeofence()
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.InsertGeofence(r.Context(), g); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to create geofence: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(GeofenceToAPI(*g))
}

func (s *Server) showGeofence(w http.ResponseWriter, r *http.Request, id int64) {
	g, err := s.store.GetGeofence(r.Context(), id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve geofence: %v", err))
		return
	}
	if g == nil {
		s.writeJSONError(w, http.StatusNotFound, "Geofence not found")
		return
	}
	s.writeJSON(w, GeofenceToAPI(*g))
}

func (s *Server) updateGeofence(w http.ResponseWriter, r *http.Request, id int64) {
	existing, err := s.store.GetGeofence(r.Context(), id)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve geofence: %v", err))
		return
	}
	if existing == nil {
		s.writeJSONError(w, http.StatusNotFound, "Geofence not found")
		return
	}

	var req GeofenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	g, err := req.toGeofence()
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	g.ID = id
	if err := s.store.UpdateGeofence(r.Context(), g); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to update geofence: %v", err))
		return
	}
	s.writeJSON(w, GeofenceToAPI(*g))
}

func (s *Server) deleteGeofence(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.store.DeleteGeofence(r.Context(), id); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to delete geofence: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
