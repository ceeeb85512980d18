package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/cone.pilot/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// Every field is optional; the Get* accessors fall back to the built-in
// defaults so a partial file only overrides what it names.
type TuningConfig struct {
	// Vision params
	CameraFOVDeg      *float64 `json:"camera_fov_deg,omitempty"`
	AssociationGatePx *float64 `json:"association_gate_px,omitempty"`
	MinDetectionScore *float64 `json:"min_detection_score,omitempty"`

	// Navigation params
	DeadZoneDeg      *float64 `json:"dead_zone_deg,omitempty"`
	KpAngular        *float64 `json:"kp_angular,omitempty"`
	SearchSteering   *float64 `json:"search_steering,omitempty"`
	SearchThrottle   *float64 `json:"search_throttle,omitempty"`
	AlignThrottle    *float64 `json:"align_throttle,omitempty"`
	ApproachThrottle *float64 `json:"approach_throttle,omitempty"`

	// Drive link params
	LinkDevice   *string `json:"link_device,omitempty"`
	LinkBaudRate *int    `json:"link_baud_rate,omitempty"`
	LinkDataBits *int    `json:"link_data_bits,omitempty"`
	LinkStopBits *int    `json:"link_stop_bits,omitempty"`
	LinkParity   *string `json:"link_parity,omitempty"`

	// Replay / telemetry params
	ReplayFrameInterval *string `json:"replay_frame_interval,omitempty"` // duration string like "33ms"
	TelemetryEnabled    *bool   `json:"telemetry_enabled,omitempty"`
}

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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/plot-run/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.CameraFOVDeg != nil {
		if *c.CameraFOVDeg <= 0 || *c.CameraFOVDeg >= 180 {
			return fmt.Errorf("camera_fov_deg must be in (0, 180), got %f", *c.CameraFOVDeg)
		}
	}

	if c.AssociationGatePx != nil && *c.AssociationGatePx <= 0 {
		return fmt.Errorf("association_gate_px must be positive, got %f", *c.AssociationGatePx)
	}

	if c.MinDetectionScore != nil {
		if *c.MinDetectionScore < 0 || *c.MinDetectionScore > 1 {
			return fmt.Errorf("min_detection_score must be between 0 and 1, got %f", *c.MinDetectionScore)
		}
	}

	if c.DeadZoneDeg != nil && *c.DeadZoneDeg < 0 {
		return fmt.Errorf("dead_zone_deg must be non-negative, got %f", *c.DeadZoneDeg)
	}

	if c.KpAngular != nil && *c.KpAngular < 0 {
		return fmt.Errorf("kp_angular must be non-negative, got %f", *c.KpAngular)
	}

	for name, v := range map[string]*float64{
		"search_steering":   c.SearchSteering,
		"search_throttle":   c.SearchThrottle,
		"align_throttle":    c.AlignThrottle,
		"approach_throttle": c.ApproachThrottle,
	} {
		if v != nil && (*v < -1 || *v > 1) {
			return fmt.Errorf("%s must be between -1 and 1, got %f", name, *v)
		}
	}

	if c.ReplayFrameInterval != nil && *c.ReplayFrameInterval != "" {
		d, err := time.ParseDuration(*c.ReplayFrameInterval)
		if err != nil {
			return fmt.Errorf("invalid replay_frame_interval '%s': %w", *c.ReplayFrameInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("replay_frame_interval must be positive, got %s", d)
		}
	}

	return nil
}

// GetCameraFOVDeg returns the camera_fov_deg value or the default.
func (c *TuningConfig) GetCameraFOVDeg() float64 {
	if c.CameraFOVDeg == nil {
		return 70.0
	}
	return *c.CameraFOVDeg
}

// GetCameraFOVRad returns the horizontal field of view in radians.
func (c *TuningConfig) GetCameraFOVRad() float64 {
	return units.DegToRad(c.GetCameraFOVDeg())
}

// GetAssociationGatePx returns the association_gate_px value or the default.
func (c *TuningConfig) GetAssociationGatePx() float64 {
	if c.AssociationGatePx == nil {
		return 60.0
	}
	return *c.AssociationGatePx
}

// GetMinDetectionScore returns the min_detection_score value or the default.
func (c *TuningConfig) GetMinDetectionScore() float64 {
	if c.MinDetectionScore == nil {
		return 0.5
	}
	return *c.MinDetectionScore
}

// GetDeadZoneDeg returns the dead_zone_deg value or the default.
func (c *TuningConfig) GetDeadZoneDeg() float64 {
	if c.DeadZoneDeg == nil {
		return 3.0
	}
	return *c.DeadZoneDeg
}

// GetDeadZoneRad returns the alignment dead zone in radians.
func (c *TuningConfig) GetDeadZoneRad() float64 {
	return units.DegToRad(c.GetDeadZoneDeg())
}

// GetKpAngular returns the kp_angular value or the default.
func (c *TuningConfig) GetKpAngular() float64 {
	if c.KpAngular == nil {
		return 1.2
	}
	return *c.KpAngular
}

// GetSearchSteering returns the search_steering value or the default.
func (c *TuningConfig) GetSearchSteering() float64 {
	if c.SearchSteering == nil {
		return 0.35
	}
	return *c.SearchSteering
}

// GetSearchThrottle returns the search_throttle value or the default.
func (c *TuningConfig) GetSearchThrottle() float64 {
	if c.SearchThrottle == nil {
		return 0.20
	}
	return *c.SearchThrottle
}

// GetAlignThrottle returns the align_throttle value or the default.
func (c *TuningConfig) GetAlignThrottle() float64 {
	if c.AlignThrottle == nil {
		return 0.15
	}
	return *c.AlignThrottle
}

// GetApproachThrottle returns the approach_throttle value or the default.
func (c *TuningConfig) GetApproachThrottle() float64 {
	if c.ApproachThrottle == nil {
		return 0.35
	}
	return *c.ApproachThrottle
}

// GetLinkDevice returns the link_device value or the default.
func (c *TuningConfig) GetLinkDevice() string {
	if c.LinkDevice == nil || *c.LinkDevice == "" {
		return "/dev/rfcomm0"
	}
	return *c.LinkDevice
}

// GetLinkBaudRate returns the link_baud_rate value or the default.
func (c *TuningConfig) GetLinkBaudRate() int {
	if c.LinkBaudRate == nil {
		return 115200
	}
	return *c.LinkBaudRate
}

// GetLinkDataBits returns the link_data_bits value or the default.
func (c *TuningConfig) GetLinkDataBits() int {
	if c.LinkDataBits == nil {
		return 8
	}
	return *c.LinkDataBits
}

// GetLinkStopBits returns the link_stop_bits value or the default.
func (c *TuningConfig) GetLinkStopBits() int {
	if c.LinkStopBits == nil {
		return 1
	}
	return *c.LinkStopBits
}

// GetLinkParity returns the link_parity value or the default.
func (c *TuningConfig) GetLinkParity() string {
	if c.LinkParity == nil || *c.LinkParity == "" {
		return "N"
	}
	return *c.LinkParity
}

// GetReplayFrameInterval parses and returns the ReplayFrameInterval as a time.Duration.
func (c *TuningConfig) GetReplayFrameInterval() time.Duration {
	if c.ReplayFrameInterval == nil || *c.ReplayFrameInterval == "" {
		return 33 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.ReplayFrameInterval)
	if err != nil || d <= 0 {
		return 33 * time.Millisecond // default on parse error
	}
	return d
}

// GetTelemetryEnabled returns the telemetry_enabled value or the default.
func (c *TuningConfig) GetTelemetryEnabled() bool {
	if c.TelemetryEnabled == nil {
		return true
	}
	return *c.TelemetryEnabled
}
