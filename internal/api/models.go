package api

import (
	"time"

	"github.com/paulmach/orb/geojson"

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
)

// The engine's domain structs carry no JSON tags. These view structs pin
// the wire format so internal renames never leak into the API.

// PositionAPI is the wire form of a position sample.
type PositionAPI struct {
	Hex          string    `json:"hex"`
	Time         time.Time `json:"time"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	AltitudeFt   *float64  `json:"altitude_ft,omitempty"`
	GroundSpeed  *float64  `json:"ground_speed,omitempty"`
	Track        *float64  `json:"track,omitempty"`
	VerticalRate *float64  `json:"vertical_rate,omitempty"`
	Source       string    `json:"source"`
	AgeSeconds   float64   `json:"age_seconds"`
}

// PositionToAPI converts a position to its wire form.
func PositionToAPI(p model.Position) PositionAPI {
	return PositionAPI{
		Hex:          p.Hex,
		Time:         p.Time,
		Lat:          p.Lat,
		Lon:          p.Lon,
		AltitudeFt:   p.AltitudeFt,
		GroundSpeed:  p.GroundSpeed,
		Track:        p.Track,
		VerticalRate: p.VerticalRate,
		Source:       p.Source,
		AgeSeconds:   p.AgeSeconds,
	}
}

// FormationAPI is the wire form of an active formation.
type FormationAPI struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	Aircraft   []string  `json:"aircraft"`
	Confidence float64   `json:"confidence"`
	CenterLat  float64   `json:"center_lat"`
	CenterLon  float64   `json:"center_lon"`
	AltitudeFt float64   `json:"altitude_ft"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// FormationToAPI converts a formation to its wire form.
func FormationToAPI(f formation.Formation) FormationAPI {
	return FormationAPI{
		ID:         f.ID,
		Type:       f.Type,
		Aircraft:   f.Aircraft,
		Confidence: f.Confidence,
		CenterLat:  f.CenterLat,
		CenterLon:  f.CenterLon,
		AltitudeFt: f.AltitudeFt,
		FirstSeen:  f.FirstSeen,
		LastSeen:   f.LastSeen,
	}
}

// WarningAPI is the wire form of a proximity warning.
type WarningAPI struct {
	ID               int64     `json:"id"`
	Hex1             string    `json:"hex1"`
	Hex2             string    `json:"hex2"`
	Type             string    `json:"type"`
	Severity         string    `json:"severity"`
	Confidence       float64   `json:"confidence"`
	DistanceNM       float64   `json:"distance_nm"`
	CPADistanceNM    float64   `json:"cpa_distance_nm"`
	TimeToCPASeconds float64   `json:"time_to_cpa_seconds"`
	ClosureKts       float64   `json:"closure_kts"`
	VerticalFt       *float64  `json:"vertical_ft,omitempty"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
}

// WarningToAPI converts a warning to its wire form.
func WarningToAPI(w proximity.Warning) WarningAPI {
	return WarningAPI{
		ID:               w.ID,
		Hex1:             w.Hex1,
		Hex2:             w.Hex2,
		Type:             w.Type,
		Severity:         w.Severity,
		Confidence:       w.Confidence,
		DistanceNM:       w.DistanceNM,
		CPADistanceNM:    w.CPADistanceNM,
		TimeToCPASeconds: w.TimeToCPA.Seconds(),
		ClosureKts:       w.ClosureKts,
		VerticalFt:       w.VerticalFt,
		FirstSeen:        w.FirstSeen,
		LastSeen:         w.LastSeen,
	}
}

// AlertAPI is the wire form of an intelligence alert.
// AircraftAPI is the wire form of an upstream point lookup.
type AircraftAPI struct {
	Hex          string   `json:"hex"`
	Flight       *string  `json:"flight,omitempty"`
	Registration *string  `json:"registration,omitempty"`
	TypeCode     *string  `json:"type_code,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	AltitudeFt   *float64 `json:"altitude_ft,omitempty"`
	GroundSpeed  *float64 `json:"ground_speed,omitempty"`
	Track        *float64 `json:"track,omitempty"`
	Military     bool     `json:"military"`
	Sources      []string `json:"sources,omitempty"`
}

// AircraftToAPI converts an upstream record to its wire form.
func AircraftToAPI(r feeds.Record) AircraftAPI {
	alt := r.AltBaro
	if alt == nil {
		alt = r.AltGeom
	}
	return AircraftAPI{
		Hex:          r.Hex,
		Flight:       r.Flight,
		Registration: r.Reg,
		TypeCode:     r.Type,
		Lat:          r.Lat,
		Lon:          r.Lon,
		AltitudeFt:   alt,
		GroundSpeed:  r.GS,
		Track:        r.Track,
		Military:     r.Mil,
		Sources:      r.Sources,
	}
}

type AlertAPI struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Details   string    `json:"details"`
	Severity  string    `json:"severity"`
	Aircraft  []string  `json:"aircraft,omitempty"`
	Region    string    `json:"region,omitempty"`
	NewsURL   string    `json:"news_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertToAPI converts an alert to its wire form.
func AlertToAPI(a alerts.Alert) AlertAPI {
	return AlertAPI{
		ID:        a.ID,
		EventID:   a.EventID,
		Type:      a.Type,
		Title:     a.Title,
		Details:   a.Details,
		Severity:  a.Severity,
		Aircraft:  a.Aircraft,
		Region:    a.Region,
		NewsURL:   a.NewsURL,
		CreatedAt: a.CreatedAt,
	}
}

// ThreatAPI is the wire form of a threat assessment.
type ThreatAPI struct {
	ID         int64              `json:"id"`
	EntityType string             `json:"entity_type"`
	EntityID   string             `json:"entity_id"`
	Score      float64            `json:"score"`
	Level      string             `json:"level"`
	Components map[string]float64 `json:"components"`
	AssessedAt time.Time          `json:"assessed_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

// ThreatToAPI converts a threat to its wire form.
func ThreatToAPI(t intel.Threat) ThreatAPI {
	return ThreatAPI{
		ID:         t.ID,
		EntityType: t.EntityType,
		EntityID:   t.EntityID,
		Score:      t.Score,
		Level:      t.Level,
		Components: t.Components,
		AssessedAt: t.AssessedAt,
		ExpiresAt:  t.ExpiresAt,
	}
}

// AnomalyAPI is the wire form of a behavioral anomaly.
type AnomalyAPI struct {
	ID         int64         `json:"id"`
	Hex        string        `json:"hex"`
	FlightID   *int64        `json:"flight_id,omitempty"`
	Type       string        `json:"type"`
	Severity   float64       `json:"severity"`
	RawScore   float64       `json:"raw_score"`
	Detected   string        `json:"detected"`
	Expected   string        `json:"expected"`
	Factors    intel.Factors `json:"factors"`
	DetectedAt time.Time     `json:"detected_at"`
}

// AnomalyToAPI converts an anomaly to its wire form.
func AnomalyToAPI(a intel.Anomaly) AnomalyAPI {
	return AnomalyAPI{
		ID:         a.ID,
		Hex:        a.Hex,
		FlightID:   a.FlightID,
		Type:       a.Type,
		Severity:   a.Severity,
		RawScore:   a.RawScore,
		Detected:   a.Detected,
		Expected:   a.Expected,
		Factors:    a.Factors,
		DetectedAt: a.DetectedAt,
	}
}

// ProfileAPI is the wire form of a behavioral profile.
type ProfileAPI struct {
	Hex          string             `json:"hex"`
	PatternDist  map[string]float64 `json:"pattern_dist"`
	Regions      []profile.Region   `json:"regions"`
	Altitude     profile.Stats      `json:"altitude"`
	Speed        profile.Stats      `json:"speed"`
	Hourly       []float64          `json:"hourly"`
	Daily        []float64          `json:"daily"`
	SampleCount  int                `json:"sample_count"`
	IsTrained    bool               `json:"is_trained"`
	LastFlightAt time.Time          `json:"last_flight_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ProfileToAPI converts a profile to its wire form.
func ProfileToAPI(p profile.Profile) ProfileAPI {
	return ProfileAPI{
		Hex:          p.Hex,
		PatternDist:  p.PatternDist,
		Regions:      p.Regions,
		Altitude:     p.Altitude,
		Speed:        p.Speed,
		Hourly:       p.Hourly,
		Daily:        p.Daily,
		SampleCount:  p.SampleCount,
		IsTrained:    p.IsTrained,
		LastFlightAt: p.LastFlightAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// PredictionAPI is the wire form of a trajectory prediction.
type PredictionAPI struct {
	ID             int64     `json:"id"`
	Hex            string    `json:"hex"`
	HorizonSeconds float64   `json:"horizon_seconds"`
	PredictedAt    time.Time `json:"predicted_at"`
	TargetTime     time.Time `json:"target_time"`
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AltitudeFt     *float64  `json:"altitude_ft,omitempty"`
	UncertaintyNM  float64   `json:"uncertainty_nm"`
	Confidence     float64   `json:"confidence"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// PredictionToAPI converts a prediction to its wire form.
func PredictionToAPI(p predict.Prediction) PredictionAPI {
	return PredictionAPI{
		ID:             p.ID,
		Hex:            p.Hex,
		HorizonSeconds: p.Horizon.Seconds(),
		PredictedAt:    p.PredictedAt,
		TargetTime:     p.TargetTime,
		Lat:            p.Lat,
		Lon:            p.Lon,
		AltitudeFt:     p.AltitudeFt,
		UncertaintyNM:  p.UncertaintyNM,
		Confidence:     p.Confidence,
		ExpiresAt:      p.ExpiresAt,
	}
}

// AccuracyAPI is the wire form of a per-horizon accuracy rollup.
type AccuracyAPI struct {
	HorizonSeconds float64   `json:"horizon_seconds"`
	Day            time.Time `json:"day"`
	Total          int       `json:"total"`
	Accurate       int       `json:"accurate"`
	MeanErrorNM    float64   `json:"mean_error_nm"`
	AccuracyRate   float64   `json:"accuracy_rate"`
}

// AccuracyToAPI converts a rollup to its wire form.
func AccuracyToAPI(a store.AccuracyRollup) AccuracyAPI {
	return AccuracyAPI{
		HorizonSeconds: a.Horizon.Seconds(),
		Day:            a.Day,
		Total:          a.Total,
		Accurate:       a.Accurate,
		MeanErrorNM:    a.MeanErrorNM,
		AccuracyRate:   a.AccuracyRate,
	}
}

// GeofenceAPI is the wire form of a geofence, polygon as GeoJSON.
type GeofenceAPI struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	Polygon      *geojson.Geometry `json:"polygon"`
	DwellSeconds float64           `json:"dwell_seconds"`
	AlertOnEntry bool              `json:"alert_on_entry"`
	AlertOnDwell bool              `json:"alert_on_dwell"`
	AlertOnExit  bool              `json:"alert_on_exit"`
	Active       bool              `json:"active"`
}

// GeofenceToAPI converts a geofence to its wire form.
func GeofenceToAPI(g geofence.Geofence) GeofenceAPI {
	return GeofenceAPI{
		ID:           g.ID,
		Name:         g.Name,
		Polygon:      geojson.NewGeometry(g.Polygon),
		DwellSeconds: g.DwellThreshold.Seconds(),
		AlertOnEntry: g.AlertOnEntry,
		AlertOnDwell: g.AlertOnDwell,
		AlertOnExit:  g.AlertOnExit,
		Active:       g.Active,
	}
}

// GeofenceAlertAPI is the wire form of a geofence alert.
type GeofenceAlertAPI struct {
	GeofenceID int64     `json:"geofence_id"`
	Fence      string    `json:"fence"`
	Hex        string    `json:"hex"`
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Time       time.Time `json:"time"`
}

// GeofenceAlertToAPI converts a geofence alert to its wire form.
func GeofenceAlertToAPI(a geofence.Alert) GeofenceAlertAPI {
	return GeofenceAlertAPI{
		GeofenceID: a.GeofenceID,
		Fence:      a.Fence,
		Hex:        a.Hex,
		Type:       a.Type,
		Severity:   a.Severity,
		Lat:        a.Lat,
		Lon:        a.Lon,
		Time:       a.Time,
	}
}
