package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.PollInterval == nil || *cfg.PollInterval != "30s" {
		t.Errorf("Expected PollInterval '30s', got %v", cfg.PollInterval)
	}
	if cfg.FormationRadiusNM == nil || *cfg.FormationRadiusNM != 3 {
		t.Errorf("Expected FormationRadiusNM 3, got %v", cfg.FormationRadiusNM)
	}
	if cfg.ThresholdAdjustRate == nil || *cfg.ThresholdAdjustRate != 0.1 {
		t.Errorf("Expected ThresholdAdjustRate 0.1, got %v", cfg.ThresholdAdjustRate)
	}

	if got := cfg.GetPollInterval(); got != 30*time.Second {
		t.Errorf("GetPollInterval() = %v, want 30s", got)
	}
	if got := cfg.GetGeofenceStaleAfter(); got != 2*time.Minute {
		t.Errorf("GetGeofenceStaleAfter() = %v, want 2m", got)
	}
	if got := cfg.GetCalibrationMinOutcomes(); got != 20 {
		t.Errorf("GetCalibrationMinOutcomes() = %d, want 20", got)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestEmptyConfigFallsBackToDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if got := cfg.GetPollInterval(); got != 30*time.Second {
		t.Errorf("GetPollInterval() = %v, want 30s", got)
	}
	if got := cfg.GetPositionJumpNM(); got != 50 {
		t.Errorf("GetPositionJumpNM() = %f, want 50", got)
	}
	if got := cfg.GetFormationMinDuration(); got != 90*time.Second {
		t.Errorf("GetFormationMinDuration() = %v, want 90s", got)
	}
	if got := cfg.GetAlertDedupHours(); got != 6 {
		t.Errorf("GetAlertDedupHours() = %d, want 6", got)
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	data := `{"poll_interval": "10s", "formation_radius_nm": 5.0}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	// Overridden fields
	if got := cfg.GetPollInterval(); got != 10*time.Second {
		t.Errorf("GetPollInterval() = %v, want 10s", got)
	}
	if got := cfg.GetFormationRadiusNM(); got != 5.0 {
		t.Errorf("GetFormationRadiusNM() = %f, want 5", got)
	}

	// Omitted fields keep defaults
	if got := cfg.GetStaleAfter(); got != 60*time.Second {
		t.Errorf("GetStaleAfter() = %v, want 60s", got)
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	if _, err := LoadTuningConfig("tuning.yaml"); err == nil {
		t.Error("Expected error for non-JSON extension")
	}
}

func TestLoadTuningConfigRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"bad_duration":   `{"poll_interval": "fast"}`,
		"bad_confidence": `{"proximity_min_confidence": 1.5}`,
		"bad_rate":       `{"threshold_adjust_rate": 0}`,
		"bad_retention":  `{"position_retention_days": 0}`,
	}
	for name, data := range cases {
		path := filepath.Join(dir, name+".json")
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
		if _, err := LoadTuningConfig(path); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidateAcceptsEmpty(t *testing.T) {
	if err := EmptyTuningConfig().Validate(); err != nil {
		t.Errorf("empty config should validate, got %v", err)
	}
}
