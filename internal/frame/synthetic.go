package frame

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/speckle/internal/timeutil"
)

// Modulation returns the mean intensity and the speckle amplitude of a
// synthetic frame t seconds after the source started. The rendered frame is a
// checkerboard of mean-amplitude and mean+amplitude pixels, so its contrast
// (std/mean) is amplitude/mean.
type Modulation func(t float64) (mean, amplitude float64)

// Tone is one sinusoidal component of a synthetic contrast signal.
type Tone struct {
	FreqHz    float64
	Amplitude float64
}

// Tones describes a checkerboard whose amplitude is Base plus a sum of
// sinusoids, at a fixed Mean intensity.
type Tones struct {
	Mean       float64
	Base       float64
	Components []Tone
}

// Modulation returns the Modulation for the tone set.
func (tn Tones) Modulation() Modulation {
	return func(t float64) (float64, float64) {
		amp := tn.Base
		for _, c := range tn.Components {
			amp += c.Amplitude * math.Sin(2*math.Pi*c.FreqHz*t)
		}
		return tn.Mean, amp
	}
}

// DefaultTones is a plausible skin-perfusion signal: a 1.2 Hz pulse riding on
// a 0.2 Hz respiratory drift.
func DefaultTones() Tones {
	return Tones{
		Mean: 128,
		Base: 40,
		Components: []Tone{
			{FreqHz: 1.2, Amplitude: 6},
			{FreqHz: 0.2, Amplitude: 8},
		},
	}
}

// defaultExposure is the exposure value at which synthetic intensities are
// rendered unscaled.
const defaultExposure = 300

// Synthetic renders frames from a Modulation. It stands in for the camera in
// dev mode and drives the pipeline tests.
type Synthetic struct {
	pool  *Pool
	clock timeutil.Clock
	mod   Modulation

	start   time.Time
	started bool
	calls   int

	// DropEvery makes every n-th Acquire report ErrNoFrame. Zero disables.
	DropEvery int

	exposure   int
	gain       int
	autoLocked bool
}

// NewSynthetic creates a synthetic source that renders into pool buffers.
func NewSynthetic(pool *Pool, clock timeutil.Clock, mod Modulation) *Synthetic {
	return &Synthetic{
		pool:     pool,
		clock:    clock,
		mod:      mod,
		exposure: defaultExposure,
	}
}

// Geometry reports the pool geometry.
func (s *Synthetic) Geometry() (int, int) { return s.pool.Geometry() }

// Acquire renders the next frame.
func (s *Synthetic) Acquire() (*Frame, error) {
	s.calls++
	if s.DropEvery > 0 && s.calls%s.DropEvery == 0 {
		return nil, ErrNoFrame
	}

	f, ok := s.pool.Get()
	if !ok {
		return nil, ErrNoFrame
	}

	now := s.clock.Now()
	if !s.started {
		s.start = now
		s.started = true
	}
	f.Captured = now

	mean, amp := s.mod(now.Sub(s.start).Seconds())
	scale := s.scale()
	lo := clampPixel((mean - amp) * scale)
	hi := clampPixel((mean + amp) * scale)

	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*f.Width : (y+1)*f.Width]
		for x := range row {
			if (x+y)&1 == 0 {
				row[x] = lo
			} else {
				row[x] = hi
			}
		}
	}
	return f, nil
}

// Release returns the frame to the pool.
func (s *Synthetic) Release(f *Frame) error { return s.pool.Put(f) }

// Close is a no-op.
func (s *Synthetic) Close() error { return nil }

// SetExposure sets the manual exposure. Intensities scale linearly with
// exposure relative to the default of 300.
func (s *Synthetic) SetExposure(value int, lockAuto bool) error {
	if value <= 0 {
		return fmt.Errorf("exposure must be positive, got %d", value)
	}
	s.exposure = value
	s.autoLocked = lockAuto
	return nil
}

// SetGain sets the manual analog gain in dB-like steps of 6 (doubling).
func (s *Synthetic) SetGain(value int, lockAuto bool) error {
	if value < 0 {
		return fmt.Errorf("gain must be non-negative, got %d", value)
	}
	s.gain = value
	s.autoLocked = lockAuto
	return nil
}

// AutoLocked reports whether the last exposure or gain call locked the
// automatic controls.
func (s *Synthetic) AutoLocked() bool { return s.autoLocked }

func (s *Synthetic) scale() float64 {
	return float64(s.exposure) / defaultExposure * math.Pow(2, float64(s.gain)/6)
}

func clampPixel(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
