package pipeline

import (
	"fmt"
	"time"

	"github.com/banshee-data/speckle/internal/config"
	"github.com/banshee-data/speckle/internal/roi"
	"github.com/banshee-data/speckle/internal/warmup"
)

// Config holds everything the runner needs, resolved from the tuning file.
type Config struct {
	// Geometry
	ROISize     int // ROI side in pixels (default: 64)
	FrameWidth  int // expected frame width (default: 160)
	FrameHeight int // expected frame height (default: 120)

	// Filter cascade
	HPFCutoffHz float64 // drift rejection corner (default: 0.7)
	LPFCutoffHz float64 // noise rejection corner (default: 4.0)
	MAWindow    int     // smoother length (default: 5)

	// Timing
	CycleRateHz float64       // nominal cycle rate (default: 25)
	DtFallback  time.Duration // used when the measured interval is out of range (default: 40ms)
	DtMax       time.Duration // largest accepted interval, inclusive (default: 200ms)

	// Warm-up
	WarmupSettle      time.Duration // output suppressed for this long (default: 5s)
	PrimeDuringWarmup bool          // run the cascade silently while warming (default: true)

	// Diagnostics
	Debug      bool // emit '#' records (default: false)
	DebugEvery int  // active cycles between '#' records (default: 25)
}

// DefaultConfig returns a Config loaded from the canonical tuning defaults
// file. Panics if the file cannot be found; intended for tests.
func DefaultConfig() *Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) *Config {
	return &Config{
		ROISize:           cfg.GetROISize(),
		FrameWidth:        cfg.GetFrameWidth(),
		FrameHeight:       cfg.GetFrameHeight(),
		HPFCutoffHz:       cfg.GetHPFCutoffHz(),
		LPFCutoffHz:       cfg.GetLPFCutoffHz(),
		MAWindow:          cfg.GetMAWindow(),
		CycleRateHz:       cfg.GetCycleRateHz(),
		DtFallback:        cfg.GetDtFallback(),
		DtMax:             cfg.GetDtMax(),
		WarmupSettle:      cfg.GetWarmupSettle(),
		PrimeDuringWarmup: cfg.GetPrimeDuringWarmup(),
		Debug:             cfg.GetDebug(),
		DebugEvery:        cfg.GetDebugEvery(),
	}
}

// Validate checks the configuration, including that the ROI fits the frame.
func (c *Config) Validate() error {
	if _, err := roi.Centered(c.ROISize, c.FrameWidth, c.FrameHeight); err != nil {
		return fmt.Errorf("roi: %w", err)
	}
	if c.HPFCutoffHz <= 0 || c.LPFCutoffHz <= 0 {
		return fmt.Errorf("cutoffs must be positive, got hpf=%g lpf=%g", c.HPFCutoffHz, c.LPFCutoffHz)
	}
	if c.HPFCutoffHz >= c.LPFCutoffHz {
		return fmt.Errorf("HPFCutoffHz (%g) must be below LPFCutoffHz (%g)", c.HPFCutoffHz, c.LPFCutoffHz)
	}
	if c.MAWindow <= 0 {
		return fmt.Errorf("MAWindow must be positive, got %d", c.MAWindow)
	}
	if c.CycleRateHz <= 0 {
		return fmt.Errorf("CycleRateHz must be positive, got %g", c.CycleRateHz)
	}
	if c.DtFallback <= 0 || c.DtFallback > c.DtMax {
		return fmt.Errorf("DtFallback (%v) must be in (0, DtMax=%v]", c.DtFallback, c.DtMax)
	}
	if c.WarmupSettle < 0 {
		return fmt.Errorf("WarmupSettle must be non-negative, got %v", c.WarmupSettle)
	}
	if c.Debug && c.DebugEvery <= 0 {
		return fmt.Errorf("DebugEvery must be positive when Debug is set, got %d", c.DebugEvery)
	}
	return nil
}

// Period is the pacing delay between cycles.
func (c *Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.CycleRateHz)
}

// WarmupCycles is the number of cycles the gate holds output back.
func (c *Config) WarmupCycles() int {
	return warmup.Threshold(c.CycleRateHz, c.WarmupSettle)
}

// WithROISize sets the ROI side.
func (c *Config) WithROISize(n int) *Config {
	c.ROISize = n
	return c
}

// WithFrameGeometry sets the expected frame size.
func (c *Config) WithFrameGeometry(width, height int) *Config {
	c.FrameWidth = width
	c.FrameHeight = height
	return c
}

// WithCutoffs sets both filter corners.
func (c *Config) WithCutoffs(hpfHz, lpfHz float64) *Config {
	c.HPFCutoffHz = hpfHz
	c.LPFCutoffHz = lpfHz
	return c
}

// WithMAWindow sets the smoother length.
func (c *Config) WithMAWindow(n int) *Config {
	c.MAWindow = n
	return c
}

// WithWarmupSettle sets the warm-up duration.
func (c *Config) WithWarmupSettle(d time.Duration) *Config {
	c.WarmupSettle = d
	return c
}

// WithPrimeDuringWarmup selects whether the cascade runs while warming.
func (c *Config) WithPrimeDuringWarmup(enabled bool) *Config {
	c.PrimeDuringWarmup = enabled
	return c
}

// WithDebug enables '#' diagnostic records every n active cycles.
func (c *Config) WithDebug(enabled bool, every int) *Config {
	c.Debug = enabled
	c.DebugEvery = every
	return c
}
