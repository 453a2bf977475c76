package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// Every field is a pointer so a partial JSON file only overrides what it
// names; the Get* methods supply defaults for everything else.
type TuningConfig struct {
	// Ingest params
	PollInterval   *string  `json:"poll_interval,omitempty"` // duration string like "30s"
	StaleAfter     *string  `json:"stale_after,omitempty"`
	PositionJumpNM *float64 `json:"position_jump_nm,omitempty"`

	// Formation params
	FormationRadiusNM       *float64 `json:"formation_radius_nm,omitempty"`
	FormationAltitudeBandFt *float64 `json:"formation_altitude_band_ft,omitempty"`
	FormationMinDuration    *string  `json:"formation_min_duration,omitempty"`

	// Proximity params
	ProximityMaxCPANM      *float64 `json:"proximity_max_cpa_nm,omitempty"`
	ProximityMinConfidence *float64 `json:"proximity_min_confidence,omitempty"`

	// Prediction params
	PredictionInterval *string `json:"prediction_interval,omitempty"`
	ValidationInterval *string `json:"validation_interval,omitempty"`

	// Geofence params
	GeofenceStaleAfter *string `json:"geofence_stale_after,omitempty"`

	// Retention params
	PositionRetentionDays     *int `json:"position_retention_days,omitempty"`
	FrameArchiveRetentionDays *int `json:"frame_archive_retention_days,omitempty"`

	// Intelligence params
	NewsInterval           *string  `json:"news_interval,omitempty"`
	AlertDedupHours        *int     `json:"alert_dedup_hours,omitempty"`
	ThresholdAdjustRate    *float64 `json:"threshold_adjust_rate,omitempty"`
	CalibrationMinOutcomes *int     `json:"calibration_min_outcomes,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a fully populated config carrying the
// engine defaults.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		PollInterval:              ptrString("30s"),
		StaleAfter:                ptrString("60s"),
		PositionJumpNM:            ptrFloat64(50),
		FormationRadiusNM:         ptrFloat64(3),
		FormationAltitudeBandFt:   ptrFloat64(2000),
		FormationMinDuration:      ptrString("90s"),
		ProximityMaxCPANM:         ptrFloat64(20),
		ProximityMinConfidence:    ptrFloat64(0.5),
		PredictionInterval:        ptrString("60s"),
		ValidationInterval:        ptrString("5m"),
		GeofenceStaleAfter:        ptrString("2m"),
		PositionRetentionDays:     ptrInt(30),
		FrameArchiveRetentionDays: ptrInt(2),
		NewsInterval:              ptrString("15m"),
		AlertDedupHours:           ptrInt(6),
		ThresholdAdjustRate:       ptrFloat64(0.1),
		CalibrationMinOutcomes:    ptrInt(20),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	durations := map[string]*string{
		"poll_interval":          c.PollInterval,
		"stale_after":            c.StaleAfter,
		"formation_min_duration": c.FormationMinDuration,
		"prediction_interval":    c.PredictionInterval,
		"validation_interval":    c.ValidationInterval,
		"geofence_stale_after":   c.GeofenceStaleAfter,
		"news_interval":          c.NewsInterval,
	}
	for name, v := range durations {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.ProximityMinConfidence != nil {
		if *c.ProximityMinConfidence < 0 || *c.ProximityMinConfidence > 1 {
			return fmt.Errorf("proximity_min_confidence must be between 0 and 1, got %f", *c.ProximityMinConfidence)
		}
	}
	if c.ThresholdAdjustRate != nil {
		if *c.ThresholdAdjustRate <= 0 || *c.ThresholdAdjustRate > 1 {
			return fmt.Errorf("threshold_adjust_rate must be in (0, 1], got %f", *c.ThresholdAdjustRate)
		}
	}
	if c.PositionRetentionDays != nil && *c.PositionRetentionDays < 1 {
		return fmt.Errorf("position_retention_days must be positive, got %d", *c.PositionRetentionDays)
	}
	if c.FrameArchiveRetentionDays != nil && *c.FrameArchiveRetentionDays < 1 {
		return fmt.Errorf("frame_archive_retention_days must be positive, got %d", *c.FrameArchiveRetentionDays)
	}
	if c.FormationRadiusNM != nil && *c.FormationRadiusNM <= 0 {
		return fmt.Errorf("formation_radius_nm must be positive, got %f", *c.FormationRadiusNM)
	}

	return nil
}

func (c *TuningConfig) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}

// GetPollInterval returns the ingest poll interval or the default.
func (c *TuningConfig) GetPollInterval() time.Duration {
	return c.duration(c.PollInterval, 30*time.Second)
}

// GetStaleAfter returns the track staleness cutoff or the default.
func (c *TuningConfig) GetStaleAfter() time.Duration {
	return c.duration(c.StaleAfter, 60*time.Second)
}

// GetPositionJumpNM returns the impossible-jump filter distance or the default.
func (c *TuningConfig) GetPositionJumpNM() float64 {
	if c.PositionJumpNM == nil {
		return 50
	}
	return *c.PositionJumpNM
}

// GetFormationRadiusNM returns the formation clustering radius or the default.
func (c *TuningConfig) GetFormationRadiusNM() float64 {
	if c.FormationRadiusNM == nil {
		return 3
	}
	return *c.FormationRadiusNM
}

// GetFormationAltitudeBandFt returns the formation altitude band or the default.
func (c *TuningConfig) GetFormationAltitudeBandFt() float64 {
	if c.FormationAltitudeBandFt == nil {
		return 2000
	}
	return *c.FormationAltitudeBandFt
}

// GetFormationMinDuration returns the minimum co-travel time or the default.
func (c *TuningConfig) GetFormationMinDuration() time.Duration {
	return c.duration(c.FormationMinDuration, 90*time.Second)
}

// GetProximityMaxCPANM returns the CPA distance ceiling or the default.
func (c *TuningConfig) GetProximityMaxCPANM() float64 {
	if c.ProximityMaxCPANM == nil {
		return 20
	}
	return *c.ProximityMaxCPANM
}

// GetProximityMinConfidence returns the conflict confidence floor or the default.
func (c *TuningConfig) GetProximityMinConfidence() float64 {
	if c.ProximityMinConfidence == nil {
		return 0.5
	}
	return *c.ProximityMinConfidence
}

// GetPredictionInterval returns the prediction cycle interval or the default.
func (c *TuningConfig) GetPredictionInterval() time.Duration {
	return c.duration(c.PredictionInterval, 60*time.Second)
}

// GetValidationInterval returns the validation cycle interval or the default.
func (c *TuningConfig) GetValidationInterval() time.Duration {
	return c.duration(c.ValidationInterval, 5*time.Minute)
}

// GetGeofenceStaleAfter returns the geofence contact timeout or the default.
func (c *TuningConfig) GetGeofenceStaleAfter() time.Duration {
	return c.duration(c.GeofenceStaleAfter, 2*time.Minute)
}

// GetPositionRetentionDays returns the position history retention or the default.
func (c *TuningConfig) GetPositionRetentionDays() int {
	if c.PositionRetentionDays == nil {
		return 30
	}
	return *c.PositionRetentionDays
}

// GetFrameArchiveRetentionDays returns the playback archive retention or the default.
func (c *TuningConfig) GetFrameArchiveRetentionDays() int {
	if c.FrameArchiveRetentionDays == nil {
		return 2
	}
	return *c.FrameArchiveRetentionDays
}

// GetNewsInterval returns the news polling interval or the default.
func (c *TuningConfig) GetNewsInterval() time.Duration {
	return c.duration(c.NewsInterval, 15*time.Minute)
}

// GetAlertDedupHours returns the alert dedup window or the default.
func (c *TuningConfig) GetAlertDedupHours() int {
	if c.AlertDedupHours == nil {
		return 6
	}
	return *c.AlertDedupHours
}

// GetThresholdAdjustRate returns the adaptive threshold step rate or the default.
func (c *TuningConfig) GetThresholdAdjustRate() float64 {
	if c.ThresholdAdjustRate == nil {
		return 0.1
	}
	return *c.ThresholdAdjustRate
}

// GetCalibrationMinOutcomes returns the calibration training floor or the default.
func (c *TuningConfig) GetCalibrationMinOutcomes() int {
	if c.CalibrationMinOutcomes == nil {
		return 20
	}
	return *c.CalibrationMinOutcomes
}
