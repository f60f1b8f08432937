package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = 0.04

func TestHighPass_FirstSample(t *testing.T) {
	hp := NewHighPass(0.7)
	rc := 1 / (2 * math.Pi * 0.7)
	alpha := rc / (rc + dt)

	y := hp.Process(0.3, dt)
	assert.InDelta(t, alpha*0.3, y, 1e-15)
}

func TestHighPass_RejectsDC(t *testing.T) {
	hp := NewHighPass(0.7)

	var y float64
	for i := 0; i < 500; i++ {
		y = hp.Process(0.31, dt)
	}
	assert.InDelta(t, 0, y, 1e-9)
}

func TestHighPass_PassesFastSteps(t *testing.T) {
	hp := NewHighPass(0.7)
	hp.Process(0, dt)

	// A step passes through almost unattenuated on the sample it happens.
	y := hp.Process(1, dt)
	assert.Greater(t, y, 0.8)
}

func TestHighPass_UsesMeasuredInterval(t *testing.T) {
	short := NewHighPass(0.7)
	long := NewHighPass(0.7)

	ys := short.Process(1, 0.01)
	yl := long.Process(1, 0.2)
	assert.Greater(t, ys, yl, "longer interval decays more of the step")
}

func TestHighPass_Reset(t *testing.T) {
	hp := NewHighPass(0.7)
	hp.Process(1, dt)
	hp.Reset()

	a := NewHighPass(0.7)
	assert.Equal(t, a.Process(0.5, dt), hp.Process(0.5, dt))
}

func TestLowPass_TracksStep(t *testing.T) {
	lp := NewLowPass(4.0)

	var y float64
	for i := 0; i < 200; i++ {
		y = lp.Process(2.5, dt)
	}
	assert.InDelta(t, 2.5, y, 1e-9)
}

func TestLowPass_FirstSample(t *testing.T) {
	lp := NewLowPass(4.0)
	rc := 1 / (2 * math.Pi * 4.0)
	beta := dt / (rc + dt)

	assert.InDelta(t, beta, lp.Process(1, dt), 1e-15)
}

func TestLowPass_MonotoneApproach(t *testing.T) {
	lp := NewLowPass(4.0)
	prev := 0.0
	for i := 0; i < 50; i++ {
		y := lp.Process(1, dt)
		require.GreaterOrEqual(t, y, prev)
		require.LessOrEqual(t, y, 1.0)
		prev = y
	}
}

func TestLowPass_Reset(t *testing.T) {
	lp := NewLowPass(4.0)
	lp.Process(10, dt)
	lp.Reset()
	assert.Equal(t, NewLowPass(4.0).Process(1, dt), lp.Process(1, dt))
}

func TestMovingAverage_ConstantInput(t *testing.T) {
	ma, err := NewMovingAverage(5)
	require.NoError(t, err)

	var y float64
	for i := 0; i < 5; i++ {
		y = ma.Process(0.125)
	}
	assert.InDelta(t, 0.125, y, 1e-15)

	for i := 0; i < 7; i++ {
		assert.InDelta(t, 0.125, ma.Process(0.125), 1e-15)
	}
}

func TestMovingAverage_PartialWindowCountsZeros(t *testing.T) {
	ma, err := NewMovingAverage(4)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, ma.Process(4), 1e-15)
	assert.InDelta(t, 2.0, ma.Process(4), 1e-15)
}

func TestMovingAverage_Window(t *testing.T) {
	ma, err := NewMovingAverage(3)
	require.NoError(t, err)
	assert.Equal(t, 3, ma.Window())

	for _, v := range []float64{1, 2, 3, 4} {
		ma.Process(v)
	}
	assert.Equal(t, []float64{2, 3, 4}, ma.Ring().Values())
	assert.InDelta(t, 3.0, ma.Process(2), 1e-15) // 3, 4, 2

	ma.Reset()
	assert.Equal(t, []float64{0, 0, 0}, ma.Ring().Values())
}

func TestNewRing_Invalid(t *testing.T) {
	_, err := NewRing(0)
	assert.Error(t, err)
	_, err = NewMovingAverage(-1)
	assert.Error(t, err)
}

func TestRing_SumInvariant(t *testing.T) {
	r, err := NewRing(7)
	require.NoError(t, err)

	x := 0.0
	for i := 0; i < 10000; i++ {
		x = math.Sin(float64(i)*0.37) * 0.05
		r.Push(x)
	}
	assert.NoError(t, r.Check())

	var exact float64
	for _, v := range r.Values() {
		exact += v
	}
	assert.InDelta(t, exact, r.Sum(), 1e-9)
}

func TestRing_PushReturnsEvicted(t *testing.T) {
	r, err := NewRing(2)
	require.NoError(t, err)

	assert.Equal(t, 0.0, r.Push(1))
	assert.Equal(t, 0.0, r.Push(2))
	assert.Equal(t, 1.0, r.Push(3))
	assert.Equal(t, []float64{2, 3}, r.Values())
}

func TestRing_CheckDetectsDrift(t *testing.T) {
	r, err := NewRing(3)
	require.NoError(t, err)
	r.Push(1)
	r.sum += 0.5

	assert.Error(t, r.Check())
	r.Resync()
	assert.NoError(t, r.Check())
}
