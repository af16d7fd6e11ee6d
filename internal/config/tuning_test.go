package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetterDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetSmoothingAlpha() != 0.6 {
		t.Errorf("GetSmoothingAlpha() = %f, want 0.6", cfg.GetSmoothingAlpha())
	}
	if cfg.GetMinConfidence() != 0.35 {
		t.Errorf("GetMinConfidence() = %f, want 0.35", cfg.GetMinConfidence())
	}
	if cfg.GetMinFrames() != 3 {
		t.Errorf("GetMinFrames() = %d, want 3", cfg.GetMinFrames())
	}
	if cfg.GetMinDuration() != 500*time.Millisecond {
		t.Errorf("GetMinDuration() = %v, want 500ms", cfg.GetMinDuration())
	}
	if cfg.GetIoUThreshold() != 0.3 {
		t.Errorf("GetIoUThreshold() = %f, want 0.3", cfg.GetIoUThreshold())
	}
	if cfg.GetStalenessWindow() != 500*time.Millisecond {
		t.Errorf("GetStalenessWindow() = %v, want 500ms", cfg.GetStalenessWindow())
	}
	if cfg.GetSensitiveConfidence() != 0.20 {
		t.Errorf("GetSensitiveConfidence() = %f, want 0.20", cfg.GetSensitiveConfidence())
	}
	if cfg.GetAreaGrowthLimit() != 2.5 {
		t.Errorf("GetAreaGrowthLimit() = %f, want 2.5", cfg.GetAreaGrowthLimit())
	}
	if cfg.GetGrowthOverrideConfidence() != 80 {
		t.Errorf("GetGrowthOverrideConfidence() = %f, want 80", cfg.GetGrowthOverrideConfidence())
	}
	if cfg.GetFrameWidth() != 640 || cfg.GetFrameHeight() != 480 {
		t.Errorf("frame = %dx%d, want 640x480", cfg.GetFrameWidth(), cfg.GetFrameHeight())
	}
	if cfg.GetDetectorTimeout() != 2*time.Second {
		t.Errorf("GetDetectorTimeout() = %v, want 2s", cfg.GetDetectorTimeout())
	}
	if cfg.GetMotionGateEnabled() {
		t.Error("GetMotionGateEnabled() = true, want false")
	}
	if cfg.GetMotionDiffThreshold() != 25 {
		t.Errorf("GetMotionDiffThreshold() = %d, want 25", cfg.GetMotionDiffThreshold())
	}
	if cfg.GetMotionMinArea() != 5000 {
		t.Errorf("GetMotionMinArea() = %d, want 5000", cfg.GetMotionMinArea())
	}
	if cfg.GetSmoothingWindow() != 8 {
		t.Errorf("GetSmoothingWindow() = %d, want 8", cfg.GetSmoothingWindow())
	}
	if cfg.GetSmoothingStabilityRatio() != 0.6 {
		t.Errorf("GetSmoothingStabilityRatio() = %f, want 0.6", cfg.GetSmoothingStabilityRatio())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	// Partial config: omitted fields keep defaults.
	testJSON := `{
  "smoothing_alpha": 0.5,
  "min_confidence": 0.4,
  "min_duration": "250ms",
  "motion_gate_enabled": true
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.SmoothingAlpha == nil || *cfg.SmoothingAlpha != 0.5 {
		t.Errorf("Expected SmoothingAlpha 0.5, got %v", cfg.SmoothingAlpha)
	}
	if cfg.GetMinConfidence() != 0.4 {
		t.Errorf("GetMinConfidence() = %f, want 0.4", cfg.GetMinConfidence())
	}
	if cfg.GetMinDuration() != 250*time.Millisecond {
		t.Errorf("GetMinDuration() = %v, want 250ms", cfg.GetMinDuration())
	}
	if !cfg.GetMotionGateEnabled() {
		t.Error("GetMotionGateEnabled() = false, want true")
	}

	// Omitted fields fall back.
	if cfg.GetIoUThreshold() != 0.3 {
		t.Errorf("GetIoUThreshold() = %f, want default 0.3", cfg.GetIoUThreshold())
	}
	if cfg.GetMinFrames() != 3 {
		t.Errorf("GetMinFrames() = %d, want default 3", cfg.GetMinFrames())
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := LoadTuningConfig(configPath); err == nil {
		t.Error("Expected error for non-.json extension")
	}
}

func TestLoadTuningConfigMissingFile(t *testing.T) {
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name string
		cfg  TuningConfig
	}{
		{"alpha zero", TuningConfig{SmoothingAlpha: ptrFloat64(0)}},
		{"alpha above one", TuningConfig{SmoothingAlpha: ptrFloat64(1.5)}},
		{"negative min_confidence", TuningConfig{MinConfidence: ptrFloat64(-0.1)}},
		{"iou above one", TuningConfig{IoUThreshold: ptrFloat64(1.2)}},
		{"zero min_frames", TuningConfig{MinFrames: ptrInt(0)}},
		{"bad min_duration", TuningConfig{MinDuration: ptrString("fast")}},
		{"bad staleness_window", TuningConfig{StalenessWindow: ptrString("5 minutes")}},
		{"bad detector_timeout", TuningConfig{DetectorTimeout: ptrString("soon")}},
		{"growth limit at one", TuningConfig{AreaGrowthLimit: ptrFloat64(1.0)}},
		{"override above 100", TuningConfig{GrowthOverrideConfidence: ptrFloat64(101)}},
		{"zero frame_width", TuningConfig{FrameWidth: ptrInt(0)}},
		{"diff threshold above 255", TuningConfig{MotionDiffThreshold: ptrInt(256)}},
		{"negative motion_min_area", TuningConfig{MotionMinArea: ptrInt(-1)}},
		{"zero smoothing_window", TuningConfig{SmoothingWindow: ptrInt(0)}},
		{"stability ratio above one", TuningConfig{SmoothingStabilityRatio: ptrFloat64(1.1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	if err := EmptyTuningConfig().Validate(); err != nil {
		t.Errorf("Empty config should validate, got %v", err)
	}
}

func TestTrackerConfigBridge(t *testing.T) {
	cfg := &TuningConfig{
		SmoothingAlpha:    ptrFloat64(0.5),
		MinConfidence:     ptrFloat64(0.4),
		MinFrames:         ptrInt(5),
		MinDuration:       ptrString("1s"),
		MotionGateEnabled: ptrBool(true),
	}
	tc := cfg.TrackerConfig()

	if tc.SmoothingAlpha != 0.5 {
		t.Errorf("SmoothingAlpha = %f, want 0.5", tc.SmoothingAlpha)
	}
	if tc.MinConfidence != 0.4 {
		t.Errorf("MinConfidence = %f, want 0.4", tc.MinConfidence)
	}
	if tc.MinFrames != 5 {
		t.Errorf("MinFrames = %d, want 5", tc.MinFrames)
	}
	if tc.MinDuration != time.Second {
		t.Errorf("MinDuration = %v, want 1s", tc.MinDuration)
	}
	// Admission tables come from the track package defaults.
	if len(tc.ConfidenceFloors) == 0 || len(tc.SizeConstraints) == 0 {
		t.Error("Expected default admission tables to be populated")
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("Bridged config should validate, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	// Runs from internal/config, resolving the repo-root defaults file.
	cfg := MustLoadDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults file should validate, got %v", err)
	}
	if err := cfg.TrackerConfig().Validate(); err != nil {
		t.Errorf("Defaults tracker config should validate, got %v", err)
	}
}

func TestClone(t *testing.T) {
	cfg := &TuningConfig{
		MinConfidence:   ptrFloat64(0.5),
		IoUThreshold:    ptrFloat64(0.3),
		MinFrames:       ptrInt(3),
		MinDuration:     ptrString("500ms"),
		StalenessWindow: ptrString("500ms"),
	}
	clone := cfg.Clone()

	// The copy must not share pointer storage with the original.
	*clone.MinConfidence = 1.5
	*clone.MinDuration = "bogus"
	clone.MinFrames = nil

	if *cfg.MinConfidence != 0.5 {
		t.Errorf("original MinConfidence = %f after mutating clone, want 0.5", *cfg.MinConfidence)
	}
	if *cfg.MinDuration != "500ms" {
		t.Errorf("original MinDuration = %q after mutating clone, want 500ms", *cfg.MinDuration)
	}
	if cfg.MinFrames == nil || *cfg.MinFrames != 3 {
		t.Error("original MinFrames changed after clearing clone field")
	}

	// Nil fields stay nil.
	if clone.SmoothingAlpha != nil || clone.DetectorURL != nil {
		t.Error("Clone invented values for unset fields")
	}
}
