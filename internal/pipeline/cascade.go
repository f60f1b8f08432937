package pipeline

import (
	"time"

	"github.com/banshee-data/speckle/internal/filter"
)

// Cascade is the HPF → LPF → moving-average chain. It owns all filter state
// for one runner.
type Cascade struct {
	HPF *filter.HighPass
	LPF *filter.LowPass
	MA  *filter.MovingAverage
}

// NewCascade builds a zeroed cascade from cfg.
func NewCascade(cfg *Config) (*Cascade, error) {
	ma, err := filter.NewMovingAverage(cfg.MAWindow)
	if err != nil {
		return nil, err
	}
	return &Cascade{
		HPF: filter.NewHighPass(cfg.HPFCutoffHz),
		LPF: filter.NewLowPass(cfg.LPFCutoffHz),
		MA:  ma,
	}, nil
}

// Process runs one contrast value through all three stages with the
// measured interval dt in seconds.
func (c *Cascade) Process(kRaw, dt float64) float64 {
	y := c.HPF.Process(kRaw, dt)
	y = c.LPF.Process(y, dt)
	return c.MA.Process(y)
}

// Reset zeroes every stage.
func (c *Cascade) Reset() {
	c.HPF.Reset()
	c.LPF.Reset()
	c.MA.Reset()
}

// ClampDt returns dt, or fallback when dt is non-positive or above max. The
// second result reports whether the fallback was used. maxDt itself is
// accepted.
func ClampDt(dt, fallback, maxDt time.Duration) (time.Duration, bool) {
	if dt <= 0 || dt > maxDt {
		return fallback, true
	}
	return dt, false
}
