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

// TuningConfig represents the root configuration for the contrast pipeline.
// Values are fixed at start-up; nothing is re-read while the loop runs.
type TuningConfig struct {
	// ROI and frame geometry
	ROISize       *int `json:"roi_size,omitempty"`
	FrameWidth    *int `json:"frame_width,omitempty"`
	FrameHeight   *int `json:"frame_height,omitempty"`
	FramePoolSize *int `json:"frame_pool_size,omitempty"`

	// Filter cascade
	HPFCutoffHz *float64 `json:"hpf_cutoff_hz,omitempty"`
	LPFCutoffHz *float64 `json:"lpf_cutoff_hz,omitempty"`
	MAWindow    *int     `json:"ma_window,omitempty"`

	// Timing
	CycleRateHz *float64 `json:"cycle_rate_hz,omitempty"`
	DtFallback  *string  `json:"dt_fallback,omitempty"` // duration string like "40ms"
	DtMax       *string  `json:"dt_max,omitempty"`      // duration string like "200ms"

	// Warm-up
	WarmupSettle      *string `json:"warmup_settle,omitempty"` // duration string like "5s"
	PrimeDuringWarmup *bool   `json:"prime_during_warmup,omitempty"`

	// Sensor
	ExposureValue *int  `json:"exposure_value,omitempty"`
	GainValue     *int  `json:"gain_value,omitempty"`
	LockAuto      *bool `json:"lock_auto,omitempty"`

	// Diagnostics
	Debug      *bool `json:"debug,omitempty"`
	DebugEvery *int  `json:"debug_every,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults, so
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
		"../../../" + DefaultConfigPath, // from cmd/tools/...
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. Cross-field
// constraints that depend on frame geometry are checked again when the
// pipeline is built.
func (c *TuningConfig) Validate() error {
	if c.ROISize != nil && *c.ROISize <= 0 {
		return fmt.Errorf("roi_size must be positive, got %d", *c.ROISize)
	}
	if c.FrameWidth != nil && *c.FrameWidth <= 0 {
		return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
	}
	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}
	if c.FramePoolSize != nil && *c.FramePoolSize <= 0 {
		return fmt.Errorf("frame_pool_size must be positive, got %d", *c.FramePoolSize)
	}
	if c.HPFCutoffHz != nil && *c.HPFCutoffHz <= 0 {
		return fmt.Errorf("hpf_cutoff_hz must be positive, got %f", *c.HPFCutoffHz)
	}
	if c.LPFCutoffHz != nil && *c.LPFCutoffHz <= 0 {
		return fmt.Errorf("lpf_cutoff_hz must be positive, got %f", *c.LPFCutoffHz)
	}
	if c.GetHPFCutoffHz() >= c.GetLPFCutoffHz() {
		return fmt.Errorf("hpf_cutoff_hz (%g) must be below lpf_cutoff_hz (%g)", c.GetHPFCutoffHz(), c.GetLPFCutoffHz())
	}
	if c.MAWindow != nil && *c.MAWindow <= 0 {
		return fmt.Errorf("ma_window must be positive, got %d", *c.MAWindow)
	}
	if c.CycleRateHz != nil && *c.CycleRateHz <= 0 {
		return fmt.Errorf("cycle_rate_hz must be positive, got %f", *c.CycleRateHz)
	}
	if c.DebugEvery != nil && *c.DebugEvery <= 0 {
		return fmt.Errorf("debug_every must be positive, got %d", *c.DebugEvery)
	}

	for name, v := range map[string]*string{
		"dt_fallback":   c.DtFallback,
		"dt_max":        c.DtMax,
		"warmup_settle": c.WarmupSettle,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %v", name, d)
		}
	}
	if c.GetDtFallback() <= 0 || c.GetDtFallback() > c.GetDtMax() {
		return fmt.Errorf("dt_fallback (%v) must be in (0, dt_max=%v]", c.GetDtFallback(), c.GetDtMax())
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetROISize returns the roi_size value or the default.
func (c *TuningConfig) GetROISize() int {
	if c.ROISize == nil {
		return 64
	}
	return *c.ROISize
}

// GetFrameWidth returns the frame_width value or the default (QQVGA).
func (c *TuningConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 160
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the frame_height value or the default (QQVGA).
func (c *TuningConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 120
	}
	return *c.FrameHeight
}

// GetFramePoolSize returns the frame_pool_size value or the default.
func (c *TuningConfig) GetFramePoolSize() int {
	if c.FramePoolSize == nil {
		return 2
	}
	return *c.FramePoolSize
}

// GetHPFCutoffHz returns the hpf_cutoff_hz value or the default.
func (c *TuningConfig) GetHPFCutoffHz() float64 {
	if c.HPFCutoffHz == nil {
		return 0.7
	}
	return *c.HPFCutoffHz
}

// GetLPFCutoffHz returns the lpf_cutoff_hz value or the default.
func (c *TuningConfig) GetLPFCutoffHz() float64 {
	if c.LPFCutoffHz == nil {
		return 4.0
	}
	return *c.LPFCutoffHz
}

// GetMAWindow returns the ma_window value or the default.
func (c *TuningConfig) GetMAWindow() int {
	if c.MAWindow == nil {
		return 5
	}
	return *c.MAWindow
}

// GetCycleRateHz returns the cycle_rate_hz value or the default.
func (c *TuningConfig) GetCycleRateHz() float64 {
	if c.CycleRateHz == nil {
		return 25
	}
	return *c.CycleRateHz
}

// GetDtFallback parses and returns the DtFallback as a time.Duration.
func (c *TuningConfig) GetDtFallback() time.Duration {
	return durationOr(c.DtFallback, 40*time.Millisecond)
}

// GetDtMax parses and returns the DtMax as a time.Duration.
func (c *TuningConfig) GetDtMax() time.Duration {
	return durationOr(c.DtMax, 200*time.Millisecond)
}

// GetWarmupSettle parses and returns the WarmupSettle as a time.Duration.
func (c *TuningConfig) GetWarmupSettle() time.Duration {
	return durationOr(c.WarmupSettle, 5*time.Second)
}

// GetPrimeDuringWarmup returns the prime_during_warmup value or the default.
func (c *TuningConfig) GetPrimeDuringWarmup() bool {
	if c.PrimeDuringWarmup == nil {
		return true
	}
	return *c.PrimeDuringWarmup
}

// GetExposureValue returns the exposure_value value or the default.
func (c *TuningConfig) GetExposureValue() int {
	if c.ExposureValue == nil {
		return 300
	}
	return *c.ExposureValue
}

// GetGainValue returns the gain_value value or the default.
func (c *TuningConfig) GetGainValue() int {
	if c.GainValue == nil {
		return 0
	}
	return *c.GainValue
}

// GetLockAuto returns the lock_auto value or the default.
func (c *TuningConfig) GetLockAuto() bool {
	if c.LockAuto == nil {
		return true
	}
	return *c.LockAuto
}

// GetDebug returns the debug value or the default: disabled, so the
// telemetry stream stays strictly parseable.
func (c *TuningConfig) GetDebug() bool {
	if c.Debug == nil {
		return false
	}
	return *c.Debug
}

// GetDebugEvery returns the debug_every value or the default.
func (c *TuningConfig) GetDebugEvery() int {
	if c.DebugEvery == nil {
		return 25
	}
	return *c.DebugEvery
}
