package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/greensort-data/sortstream/internal/track"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/realtime/config endpoint so the same JSON
// can be used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Tracker params
	SmoothingAlpha           *float64 `json:"smoothing_alpha,omitempty"`
	MinConfidence            *float64 `json:"min_confidence,omitempty"`
	MinFrames                *int     `json:"min_frames,omitempty"`
	MinDuration              *string  `json:"min_duration,omitempty"` // duration string like "500ms"
	IoUThreshold             *float64 `json:"iou_threshold,omitempty"`
	StalenessWindow          *string  `json:"staleness_window,omitempty"` // duration string like "500ms"
	SensitiveConfidence      *float64 `json:"sensitive_confidence,omitempty"`
	AreaGrowthLimit          *float64 `json:"area_growth_limit,omitempty"`
	GrowthOverrideConfidence *float64 `json:"growth_override_confidence,omitempty"` // 0-100 scale

	// Reference frame for area ratios
	FrameWidth  *int `json:"frame_width,omitempty"`
	FrameHeight *int `json:"frame_height,omitempty"`

	// Detector params
	DetectorURL     *string `json:"detector_url,omitempty"`
	DetectorTimeout *string `json:"detector_timeout,omitempty"` // duration string like "2s"

	// Motion gate params
	MotionGateEnabled   *bool `json:"motion_gate_enabled,omitempty"`
	MotionDiffThreshold *int  `json:"motion_diff_threshold,omitempty"`
	MotionMinArea       *int  `json:"motion_min_area,omitempty"`

	// Classification smoothing params
	SmoothingWindow         *int     `json:"smoothing_window,omitempty"`
	SmoothingStabilityRatio *float64 `json:"smoothing_stability_ratio,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
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

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Clone returns a deep copy. A plain struct copy is not enough: every
// field is a pointer, so decoding JSON over the copy would write
// through into the original.
func (c *TuningConfig) Clone() *TuningConfig {
	out := &TuningConfig{}
	if c.SmoothingAlpha != nil {
		out.SmoothingAlpha = ptrFloat64(*c.SmoothingAlpha)
	}
	if c.MinConfidence != nil {
		out.MinConfidence = ptrFloat64(*c.MinConfidence)
	}
	if c.MinFrames != nil {
		out.MinFrames = ptrInt(*c.MinFrames)
	}
	if c.MinDuration != nil {
		out.MinDuration = ptrString(*c.MinDuration)
	}
	if c.IoUThreshold != nil {
		out.IoUThreshold = ptrFloat64(*c.IoUThreshold)
	}
	if c.StalenessWindow != nil {
		out.StalenessWindow = ptrString(*c.StalenessWindow)
	}
	if c.SensitiveConfidence != nil {
		out.SensitiveConfidence = ptrFloat64(*c.SensitiveConfidence)
	}
	if c.AreaGrowthLimit != nil {
		out.AreaGrowthLimit = ptrFloat64(*c.AreaGrowthLimit)
	}
	if c.GrowthOverrideConfidence != nil {
		out.GrowthOverrideConfidence = ptrFloat64(*c.GrowthOverrideConfidence)
	}
	if c.FrameWidth != nil {
		out.FrameWidth = ptrInt(*c.FrameWidth)
	}
	if c.FrameHeight != nil {
		out.FrameHeight = ptrInt(*c.FrameHeight)
	}
	if c.DetectorURL != nil {
		out.DetectorURL = ptrString(*c.DetectorURL)
	}
	if c.DetectorTimeout != nil {
		out.DetectorTimeout = ptrString(*c.DetectorTimeout)
	}
	if c.MotionGateEnabled != nil {
		out.MotionGateEnabled = ptrBool(*c.MotionGateEnabled)
	}
	if c.MotionDiffThreshold != nil {
		out.MotionDiffThreshold = ptrInt(*c.MotionDiffThreshold)
	}
	if c.MotionMinArea != nil {
		out.MotionMinArea = ptrInt(*c.MotionMinArea)
	}
	if c.SmoothingWindow != nil {
		out.SmoothingWindow = ptrInt(*c.SmoothingWindow)
	}
	if c.SmoothingStabilityRatio != nil {
		out.SmoothingStabilityRatio = ptrFloat64(*c.SmoothingStabilityRatio)
	}
	return out
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.SmoothingAlpha != nil {
		if *c.SmoothingAlpha <= 0 || *c.SmoothingAlpha > 1 {
			return fmt.Errorf("smoothing_alpha must be in (0, 1], got %f", *c.SmoothingAlpha)
		}
	}
	if c.MinConfidence != nil {
		if *c.MinConfidence < 0 || *c.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
		}
	}
	if c.IoUThreshold != nil {
		if *c.IoUThreshold < 0 || *c.IoUThreshold > 1 {
			return fmt.Errorf("iou_threshold must be between 0 and 1, got %f", *c.IoUThreshold)
		}
	}
	if c.SensitiveConfidence != nil {
		if *c.SensitiveConfidence < 0 || *c.SensitiveConfidence > 1 {
			return fmt.Errorf("sensitive_confidence must be between 0 and 1, got %f", *c.SensitiveConfidence)
		}
	}
	if c.MinFrames != nil {
		if *c.MinFrames < 1 {
			return fmt.Errorf("min_frames must be at least 1, got %d", *c.MinFrames)
		}
	}
	if c.MinDuration != nil && *c.MinDuration != "" {
		if _, err := time.ParseDuration(*c.MinDuration); err != nil {
			return fmt.Errorf("invalid min_duration '%s': %w", *c.MinDuration, err)
		}
	}
	if c.StalenessWindow != nil && *c.StalenessWindow != "" {
		if _, err := time.ParseDuration(*c.StalenessWindow); err != nil {
			return fmt.Errorf("invalid staleness_window '%s': %w", *c.StalenessWindow, err)
		}
	}
	if c.DetectorTimeout != nil && *c.DetectorTimeout != "" {
		if _, err := time.ParseDuration(*c.DetectorTimeout); err != nil {
			return fmt.Errorf("invalid detector_timeout '%s': %w", *c.DetectorTimeout, err)
		}
	}
	if c.AreaGrowthLimit != nil {
		if *c.AreaGrowthLimit <= 1 {
			return fmt.Errorf("area_growth_limit must exceed 1, got %f", *c.AreaGrowthLimit)
		}
	}
	if c.GrowthOverrideConfidence != nil {
		if *c.GrowthOverrideConfidence < 0 || *c.GrowthOverrideConfidence > 100 {
			return fmt.Errorf("growth_override_confidence must be between 0 and 100, got %f", *c.GrowthOverrideConfidence)
		}
	}
	if c.FrameWidth != nil {
		if *c.FrameWidth <= 0 {
			return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
		}
	}
	if c.FrameHeight != nil {
		if *c.FrameHeight <= 0 {
			return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
		}
	}
	if c.MotionDiffThreshold != nil {
		if *c.MotionDiffThreshold < 0 || *c.MotionDiffThreshold > 255 {
			return fmt.Errorf("motion_diff_threshold must be between 0 and 255, got %d", *c.MotionDiffThreshold)
		}
	}
	if c.MotionMinArea != nil {
		if *c.MotionMinArea < 0 {
			return fmt.Errorf("motion_min_area must be non-negative, got %d", *c.MotionMinArea)
		}
	}
	if c.SmoothingWindow != nil {
		if *c.SmoothingWindow < 1 {
			return fmt.Errorf("smoothing_window must be at least 1, got %d", *c.SmoothingWindow)
		}
	}
	if c.SmoothingStabilityRatio != nil {
		if *c.SmoothingStabilityRatio < 0 || *c.SmoothingStabilityRatio > 1 {
			return fmt.Errorf("smoothing_stability_ratio must be between 0 and 1, got %f", *c.SmoothingStabilityRatio)
		}
	}
	return nil
}

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *TuningConfig) GetSmoothingAlpha() float64 {
	if c.SmoothingAlpha == nil {
		return 0.6
	}
	return *c.SmoothingAlpha
}

// GetMinConfidence returns the min_confidence value or the default.
func (c *TuningConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.35
	}
	return *c.MinConfidence
}

// GetMinFrames returns the min_frames value or the default.
func (c *TuningConfig) GetMinFrames() int {
	if c.MinFrames == nil {
		return 3
	}
	return *c.MinFrames
}

// GetMinDuration parses and returns the MinDuration as a time.Duration.
func (c *TuningConfig) GetMinDuration() time.Duration {
	if c.MinDuration == nil || *c.MinDuration == "" {
		return 500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.MinDuration)
	if err != nil {
		return 500 * time.Millisecond // default on parse error
	}
	return d
}

// GetIoUThreshold returns the iou_threshold value or the default.
func (c *TuningConfig) GetIoUThreshold() float64 {
	if c.IoUThreshold == nil {
		return 0.3
	}
	return *c.IoUThreshold
}

// GetStalenessWindow parses and returns the StalenessWindow as a time.Duration.
func (c *TuningConfig) GetStalenessWindow() time.Duration {
	if c.StalenessWindow == nil || *c.StalenessWindow == "" {
		return 500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.StalenessWindow)
	if err != nil {
		return 500 * time.Millisecond // default on parse error
	}
	return d
}

// GetSensitiveConfidence returns the sensitive_confidence value or the default.
func (c *TuningConfig) GetSensitiveConfidence() float64 {
	if c.SensitiveConfidence == nil {
		return 0.20
	}
	return *c.SensitiveConfidence
}

// GetAreaGrowthLimit returns the area_growth_limit value or the default.
func (c *TuningConfig) GetAreaGrowthLimit() float64 {
	if c.AreaGrowthLimit == nil {
		return 2.5
	}
	return *c.AreaGrowthLimit
}

// GetGrowthOverrideConfidence returns the growth_override_confidence value or the default.
func (c *TuningConfig) GetGrowthOverrideConfidence() float64 {
	if c.GrowthOverrideConfidence == nil {
		return 80
	}
	return *c.GrowthOverrideConfidence
}

// GetFrameWidth returns the frame_width value or the default.
func (c *TuningConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 640
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the frame_height value or the default.
func (c *TuningConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 480
	}
	return *c.FrameHeight
}

// GetDetectorURL returns the detector_url value or the default.
func (c *TuningConfig) GetDetectorURL() string {
	if c.DetectorURL == nil || *c.DetectorURL == "" {
		return "http://127.0.0.1:8500/detect"
	}
	return *c.DetectorURL
}

// GetDetectorTimeout parses and returns the DetectorTimeout as a time.Duration.
func (c *TuningConfig) GetDetectorTimeout() time.Duration {
	if c.DetectorTimeout == nil || *c.DetectorTimeout == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.DetectorTimeout)
	if err != nil {
		return 2 * time.Second // default on parse error
	}
	return d
}

// GetMotionGateEnabled returns the motion_gate_enabled value or the default.
func (c *TuningConfig) GetMotionGateEnabled() bool {
	if c.MotionGateEnabled == nil {
		return false // default: gate disabled
	}
	return *c.MotionGateEnabled
}

// GetMotionDiffThreshold returns the motion_diff_threshold value or the default.
func (c *TuningConfig) GetMotionDiffThreshold() int {
	if c.MotionDiffThreshold == nil {
		return 25
	}
	return *c.MotionDiffThreshold
}

// GetMotionMinArea returns the motion_min_area value or the default.
func (c *TuningConfig) GetMotionMinArea() int {
	if c.MotionMinArea == nil {
		return 5000
	}
	return *c.MotionMinArea
}

// GetSmoothingWindow returns the smoothing_window value or the default.
func (c *TuningConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return 8
	}
	return *c.SmoothingWindow
}

// GetSmoothingStabilityRatio returns the smoothing_stability_ratio value or the default.
func (c *TuningConfig) GetSmoothingStabilityRatio() float64 {
	if c.SmoothingStabilityRatio == nil {
		return 0.6
	}
	return *c.SmoothingStabilityRatio
}

// TrackerConfig builds a track.Config from the tuning values. The
// per-class admission tables are not tunable through JSON and come from
// the track package defaults.
func (c *TuningConfig) TrackerConfig() track.Config {
	cfg := track.DefaultConfig()
	cfg.SmoothingAlpha = c.GetSmoothingAlpha()
	cfg.MinConfidence = c.GetMinConfidence()
	cfg.MinFrames = c.GetMinFrames()
	cfg.MinDuration = c.GetMinDuration()
	cfg.IoUThreshold = c.GetIoUThreshold()
	cfg.Staleness = c.GetStalenessWindow()
	cfg.SensitiveConfidence = c.GetSensitiveConfidence()
	cfg.AreaGrowthLimit = c.GetAreaGrowthLimit()
	cfg.GrowthOverrideConf = c.GetGrowthOverrideConfidence()
	cfg.FrameWidth = c.GetFrameWidth()
	cfg.FrameHeight = c.GetFrameHeight()
	return cfg
}
