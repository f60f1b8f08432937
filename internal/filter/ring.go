package filter

import (
	"fmt"
	"math"
)

// Ring is a fixed-length circular buffer of float64 that keeps the sum of
// its contents. Push is O(1) regardless of length.
type Ring struct {
	buf []float64
	sum float64
	idx int
}

// NewRing returns a zero-filled ring of length n.
func NewRing(n int) (*Ring, error) {
	if n <= 0 {
		return nil, fmt.Errorf("ring length must be positive, got %d", n)
	}
	return &Ring{buf: make([]float64, n)}, nil
}

// Push overwrites the oldest slot with v and returns the evicted value.
func (r *Ring) Push(v float64) float64 {
	old := r.buf[r.idx]
	r.sum += v - old
	r.buf[r.idx] = v
	r.idx++
	if r.idx == len(r.buf) {
		r.idx = 0
	}
	return old
}

// Sum returns the running sum.
func (r *Ring) Sum() float64 { return r.sum }

// Len returns the fixed length.
func (r *Ring) Len() int { return len(r.buf) }

// Values returns the contents oldest first.
func (r *Ring) Values() []float64 {
	out := make([]float64, 0, len(r.buf))
	out = append(out, r.buf[r.idx:]...)
	return append(out, r.buf[:r.idx]...)
}

// Check recomputes the sum from the buffer and reports drift of the running
// sum beyond a relative tolerance.
func (r *Ring) Check() error {
	var exact, mag float64
	for _, v := range r.buf {
		exact += v
		mag += math.Abs(v)
	}
	tol := 1e-9 * math.Max(mag, 1)
	if math.Abs(exact-r.sum) > tol {
		return fmt.Errorf("ring running sum %g differs from contents sum %g", r.sum, exact)
	}
	return nil
}

// Resync replaces the running sum with the exact sum of the contents,
// discarding accumulated round-off.
func (r *Ring) Resync() {
	var exact float64
	for _, v := range r.buf {
		exact += v
	}
	r.sum = exact
}

// Reset zeroes the contents.
func (r *Ring) Reset() {
	for i := range r.buf {
		r.buf[i] = 0
	}
	r.sum = 0
	r.idx = 0
}

// MovingAverage is a fixed-window mean over a Ring. Until the window fills,
// the zero-initialised slots count towards the mean.
type MovingAverage struct {
	ring *Ring
}

// NewMovingAverage returns a moving average over n samples.
func NewMovingAverage(n int) (*MovingAverage, error) {
	r, err := NewRing(n)
	if err != nil {
		return nil, err
	}
	return &MovingAverage{ring: r}, nil
}

// Process pushes x and returns the mean of the window.
func (m *MovingAverage) Process(x float64) float64 {
	m.ring.Push(x)
	return m.ring.Sum() / float64(m.ring.Len())
}

// Window returns the window length.
func (m *MovingAverage) Window() int { return m.ring.Len() }

// Ring exposes the underlying buffer for invariant checks.
func (m *MovingAverage) Ring() *Ring { return m.ring }

// Reset zeroes the window.
func (m *MovingAverage) Reset() { m.ring.Reset() }
