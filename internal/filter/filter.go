// Package filter implements the single-pole temporal filters and the
// moving-average smoother applied to the speckle contrast series. The
// recursive filters take the measured sample interval on every call, so they
// keep their cutoff when acquisition timing jitters.
package filter

import "math"

// timeConstant returns RC for a single-pole filter with cutoff fc.
func timeConstant(cutoffHz float64) float64 {
	return 1 / (2 * math.Pi * cutoffHz)
}

// HighPass is a single-pole high-pass filter:
//
//	alpha = RC / (RC + dt)
//	y[n]  = alpha * (y[n-1] + x[n] - x[n-1])
type HighPass struct {
	CutoffHz float64

	xPrev float64
	yPrev float64
}

// NewHighPass returns a high-pass filter with zero state.
func NewHighPass(cutoffHz float64) *HighPass {
	return &HighPass{CutoffHz: cutoffHz}
}

// Process filters x sampled dt seconds after the previous input.
func (f *HighPass) Process(x, dt float64) float64 {
	rc := timeConstant(f.CutoffHz)
	alpha := rc / (rc + dt)
	y := alpha * (f.yPrev + x - f.xPrev)
	f.xPrev = x
	f.yPrev = y
	return y
}

// Reset zeroes the filter state.
func (f *HighPass) Reset() {
	f.xPrev = 0
	f.yPrev = 0
}

// LowPass is a single-pole low-pass filter:
//
//	beta = dt / (RC + dt)
//	y[n] = y[n-1] + beta * (x[n] - y[n-1])
type LowPass struct {
	CutoffHz float64

	yPrev float64
}

// NewLowPass returns a low-pass filter with zero state.
func NewLowPass(cutoffHz float64) *LowPass {
	return &LowPass{CutoffHz: cutoffHz}
}

// Process filters x sampled dt seconds after the previous input.
func (f *LowPass) Process(x, dt float64) float64 {
	rc := timeConstant(f.CutoffHz)
	beta := dt / (rc + dt)
	f.yPrev += beta * (x - f.yPrev)
	return f.yPrev
}

// Reset zeroes the filter state.
func (f *LowPass) Reset() {
	f.yPrev = 0
}
