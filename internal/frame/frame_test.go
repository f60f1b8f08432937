package frame

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/speckle/internal/timeutil"
)

func TestNewPool_Validation(t *testing.T) {
	_, err := NewPool(0, 160, 120)
	assert.Error(t, err)

	_, err = NewPool(2, 0, 120)
	assert.Error(t, err)

	p, err := NewPool(2, 160, 120)
	require.NoError(t, err)
	w, h := p.Geometry()
	assert.Equal(t, 160, w)
	assert.Equal(t, 120, h)
	assert.Equal(t, 2, p.Size())
}

func TestPool_GetPut(t *testing.T) {
	p, err := NewPool(2, 4, 4)
	require.NoError(t, err)

	a, ok := p.Get()
	require.True(t, ok)
	b, ok := p.Get()
	require.True(t, ok)
	assert.Equal(t, 2, p.Outstanding())
	assert.NotEqual(t, a.Seq, b.Seq)

	_, ok = p.Get()
	assert.False(t, ok, "pool of two must be exhausted after two gets")

	require.NoError(t, p.Put(a))
	assert.Equal(t, 1, p.Outstanding())

	c, ok := p.Get()
	require.True(t, ok)
	assert.Same(t, a, c)
}

func TestPool_DoubleRelease(t *testing.T) {
	p, err := NewPool(1, 4, 4)
	require.NoError(t, err)

	f, ok := p.Get()
	require.True(t, ok)
	require.NoError(t, p.Put(f))

	err = p.Put(f)
	assert.True(t, errors.Is(err, ErrDoubleRelease), "got %v", err)
	assert.Equal(t, 0, p.Outstanding())
}

func TestPool_ForeignFrame(t *testing.T) {
	p1, _ := NewPool(1, 4, 4)
	p2, _ := NewPool(1, 4, 4)

	f, ok := p1.Get()
	require.True(t, ok)
	assert.ErrorIs(t, p2.Put(f), ErrForeignFrame)
	assert.Error(t, p2.Put(nil))
}

func TestSynthetic_Checkerboard(t *testing.T) {
	p, _ := NewPool(2, 8, 6)
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	src := NewSynthetic(p, clock, Tones{Mean: 100, Base: 20}.Modulation())

	f, err := src.Acquire()
	require.NoError(t, err)
	defer src.Release(f)

	assert.Equal(t, uint8(80), f.At(0, 0))
	assert.Equal(t, uint8(120), f.At(1, 0))
	assert.Equal(t, uint8(120), f.At(0, 1))
	assert.Equal(t, uint8(80), f.At(1, 1))
	assert.Equal(t, clock.Now(), f.Captured)
}

func TestSynthetic_ToneFollowsClock(t *testing.T) {
	p, _ := NewPool(1, 2, 2)
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tones := Tones{Mean: 100, Base: 20, Components: []Tone{{FreqHz: 1, Amplitude: 10}}}
	src := NewSynthetic(p, clock, tones.Modulation())

	f, err := src.Acquire()
	require.NoError(t, err)
	assert.Equal(t, uint8(120), f.At(1, 0), "t=0: sin term is zero")
	require.NoError(t, src.Release(f))

	clock.Advance(250 * time.Millisecond)
	f, err = src.Acquire()
	require.NoError(t, err)
	assert.Equal(t, uint8(130), f.At(1, 0), "t=0.25s: sin term at its peak")
	require.NoError(t, src.Release(f))
}

func TestSynthetic_DropEvery(t *testing.T) {
	p, _ := NewPool(1, 2, 2)
	src := NewSynthetic(p, timeutil.NewMockClock(time.Time{}), Tones{Mean: 50}.Modulation())
	src.DropEvery = 3

	var dropped int
	for i := 0; i < 9; i++ {
		f, err := src.Acquire()
		if errors.Is(err, ErrNoFrame) {
			dropped++
			continue
		}
		require.NoError(t, err)
		require.NoError(t, src.Release(f))
	}
	assert.Equal(t, 3, dropped)
	assert.Equal(t, 0, p.Outstanding())
}

func TestSynthetic_PoolExhaustionIsTransient(t *testing.T) {
	p, _ := NewPool(1, 2, 2)
	src := NewSynthetic(p, timeutil.NewMockClock(time.Time{}), Tones{Mean: 50}.Modulation())

	f, err := src.Acquire()
	require.NoError(t, err)

	_, err = src.Acquire()
	assert.ErrorIs(t, err, ErrNoFrame)

	require.NoError(t, src.Release(f))
	_, err = src.Acquire()
	assert.NoError(t, err)
}

func TestSynthetic_ExposureAndGainScale(t *testing.T) {
	p, _ := NewPool(1, 2, 2)
	src := NewSynthetic(p, timeutil.NewMockClock(time.Time{}), Tones{Mean: 50, Base: 10}.Modulation())

	require.NoError(t, src.SetExposure(600, true))
	require.NoError(t, src.SetGain(6, true))
	assert.True(t, src.AutoLocked())

	f, err := src.Acquire()
	require.NoError(t, err)
	// (50±10) * 2 (exposure) * 2 (gain)
	assert.Equal(t, uint8(160), f.At(0, 0))
	assert.Equal(t, uint8(240), f.At(1, 0))
	require.NoError(t, src.Release(f))

	assert.Error(t, src.SetExposure(0, true))
	assert.Error(t, src.SetGain(-1, true))
}

func TestClampPixel(t *testing.T) {
	assert.Equal(t, uint8(0), clampPixel(-3))
	assert.Equal(t, uint8(255), clampPixel(300))
	assert.Equal(t, uint8(128), clampPixel(127.6))
	assert.Equal(t, uint8(0), clampPixel(math.Copysign(0, -1)))
}

func TestParseProbe(t *testing.T) {
	out := `{"streams":[{"codec_type":"audio"},{"codec_type":"video","width":640,"height":480}]}`
	w, h, err := parseProbe(out)
	require.NoError(t, err)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	_, _, err = parseProbe(`{"streams":[{"codec_type":"audio"}]}`)
	assert.Error(t, err)

	_, _, err = parseProbe(`not json`)
	assert.Error(t, err)
}
