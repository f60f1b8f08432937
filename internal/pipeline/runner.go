// Package pipeline turns a stream of speckle frames into the filtered
// contrast time series: ROI statistics, warm-up gate, then the HPF → LPF →
// moving-average cascade, one sample per active cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/speckle/internal/frame"
	"github.com/banshee-data/speckle/internal/monitoring"
	"github.com/banshee-data/speckle/internal/roi"
	"github.com/banshee-data/speckle/internal/telemetry"
	"github.com/banshee-data/speckle/internal/timeutil"
	"github.com/banshee-data/speckle/internal/warmup"
)

var (
	// ErrWarmingUp is returned by Step for cycles the warm-up gate holds
	// back. The frame was consumed and, when priming, filtered.
	ErrWarmingUp = errors.New("warming up")

	// ErrGeometryMismatch is returned by Step when a frame does not have the
	// configured size. The frame is released and nothing else happens.
	ErrGeometryMismatch = errors.New("frame geometry mismatch")
)

// Sample is the outcome of one active cycle.
type Sample struct {
	KRaw  float64 // unfiltered contrast of this frame
	KFilt float64 // cascade output
	T     float64 // seconds since the first active sample

	Mean  float64
	Std   float64
	Dt    float64 // interval fed to the filters, after clamping
	Cycle int     // index among processed cycles, starting at 0
}

// Record converts s to the emitted telemetry record.
func (s Sample) Record() telemetry.Record {
	return telemetry.Record{T: s.T, KFilt: s.KFilt}
}

// Counters summarises a run.
type Counters struct {
	Processed int // cycles with a usable frame
	Skipped   int // cycles with no frame or a mismatched one
	Clamped   int // intervals replaced by the fallback
	Emitted   int // samples written
	Resynced  int // moving-average sums rebuilt after drift
}

// Runner owns the cycle loop and all of its state. It is not safe for
// concurrent use; exactly one goroutine calls Step or Run.
type Runner struct {
	cfg     *Config
	src     frame.Source
	out     telemetry.Emitter
	clock   timeutil.Clock
	window  roi.Window
	gate    *warmup.Gate
	cascade *Cascade

	last     time.Time
	haveLast bool
	t0       time.Time
	active   bool
	counters Counters
}

// NewRunner validates cfg against src and builds a runner with zeroed
// filter state. A nil clock selects the real clock.
func NewRunner(cfg *Config, src frame.Source, out telemetry.Emitter, clock timeutil.Clock) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if w, h := src.Geometry(); w != cfg.FrameWidth || h != cfg.FrameHeight {
		return nil, fmt.Errorf("source produces %dx%d frames, config expects %dx%d: %w",
			w, h, cfg.FrameWidth, cfg.FrameHeight, ErrGeometryMismatch)
	}
	window, err := roi.Centered(cfg.ROISize, cfg.FrameWidth, cfg.FrameHeight)
	if err != nil {
		return nil, err
	}
	cascade, err := NewCascade(cfg)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = telemetry.Discard
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Runner{
		cfg:     cfg,
		src:     src,
		out:     out,
		clock:   clock,
		window:  window,
		gate:    warmup.NewGate(cfg.WarmupCycles()),
		cascade: cascade,
	}, nil
}

// Window returns the ROI the runner reduces each frame over.
func (r *Runner) Window() roi.Window { return r.window }

// Gate exposes the warm-up gate state.
func (r *Runner) Gate() *warmup.Gate { return r.gate }

// Cascade exposes the filter chain.
func (r *Runner) Cascade() *Cascade { return r.cascade }

// Counters returns the run counters so far.
func (r *Runner) Counters() Counters { return r.counters }

// Step runs one cycle. It returns the emitted sample, or an error saying why
// nothing was emitted: a wrapped frame.ErrNoFrame or ErrGeometryMismatch for
// skipped cycles, ErrWarmingUp while the gate is closed, frame.ErrEndOfStream
// when the source is exhausted, or a wrapped emitter error.
func (r *Runner) Step() (Sample, error) {
	f, err := r.src.Acquire()
	if err != nil {
		if errors.Is(err, frame.ErrNoFrame) {
			r.skip("no frame")
		}
		return Sample{}, fmt.Errorf("acquire: %w", err)
	}
	defer r.release(f)

	if f.Width != r.cfg.FrameWidth || f.Height != r.cfg.FrameHeight {
		r.skip(fmt.Sprintf("%s, want %dx%d", f, r.cfg.FrameWidth, r.cfg.FrameHeight))
		return Sample{}, fmt.Errorf("%s: %w", f, ErrGeometryMismatch)
	}

	now := r.clock.Now()
	var measured time.Duration
	if r.haveLast {
		measured = now.Sub(r.last)
	}
	r.last = now
	r.haveLast = true

	dt, clamped := ClampDt(measured, r.cfg.DtFallback, r.cfg.DtMax)
	if clamped {
		r.counters.Clamped++
	}
	cycle := r.counters.Processed
	r.counters.Processed++

	stats := roi.Compute(f, r.window)
	s := Sample{
		KRaw:  stats.KRaw,
		Mean:  stats.Mean,
		Std:   stats.Std,
		Dt:    dt.Seconds(),
		Cycle: cycle,
	}

	if !r.gate.Admit() {
		if r.cfg.PrimeDuringWarmup {
			r.cascade.Process(s.KRaw, s.Dt)
		}
		return Sample{}, ErrWarmingUp
	}

	s.KFilt = r.cascade.Process(s.KRaw, s.Dt)
	if !r.active {
		r.active = true
		r.t0 = now
	}
	s.T = now.Sub(r.t0).Seconds()

	if err := r.out.WriteRecord(s.Record()); err != nil {
		return s, fmt.Errorf("emit cycle %d: %w", cycle, err)
	}
	r.counters.Emitted++
	if r.counters.Emitted%r.cascade.MA.Window() == 0 {
		r.checkRing()
	}

	if r.cfg.Debug && r.counters.Emitted%r.cfg.DebugEvery == 0 {
		if err := r.out.WriteDiagnostic(r.diagnostic(s)); err != nil {
			return s, fmt.Errorf("emit diagnostic: %w", err)
		}
	}
	return s, nil
}

// Run writes the stream header and then steps once per period until ctx is
// done or the source reports frame.ErrEndOfStream. Skipped and warming
// cycles are not errors. A non-finite value reaching the emitter is logged
// and dropped; any other emitter error ends the run.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.out.WriteHeader(); err != nil {
		return fmt.Errorf("emit header: %w", err)
	}
	period := r.cfg.Period()
	for {
		if ctx.Err() != nil {
			return nil
		}

		_, err := r.Step()
		switch {
		case err == nil,
			errors.Is(err, ErrWarmingUp),
			errors.Is(err, frame.ErrNoFrame),
			errors.Is(err, ErrGeometryMismatch):
		case errors.Is(err, frame.ErrEndOfStream):
			monitoring.Logf("pipeline: end of stream after %d cycles (%d emitted)", r.counters.Processed, r.counters.Emitted)
			return nil
		case errors.Is(err, telemetry.ErrNonFinite):
			monitoring.Logf("pipeline: BUG: %v", err)
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-r.clock.After(period):
		}
	}
}

func (r *Runner) skip(reason string) {
	r.counters.Skipped++
	if r.cfg.Debug {
		monitoring.Logf("pipeline: skipped cycle (%s), %d skipped so far", reason, r.counters.Skipped)
	}
}

// checkRing rebuilds the moving-average sum once per window if round-off
// has pushed it away from the window contents.
func (r *Runner) checkRing() {
	ring := r.cascade.MA.Ring()
	if err := ring.Check(); err != nil {
		monitoring.Logf("pipeline: %v, resyncing", err)
		ring.Resync()
		r.counters.Resynced++
	}
}

func (r *Runner) release(f *frame.Frame) {
	if err := r.src.Release(f); err != nil {
		monitoring.Logf("pipeline: release %s: %v", f, err)
	}
}

func (r *Runner) diagnostic(s Sample) telemetry.Diagnostic {
	return telemetry.Diagnostic{
		Cycle:   s.Cycle,
		T:       s.T,
		Mean:    s.Mean,
		Std:     s.Std,
		KRaw:    s.KRaw,
		KFilt:   s.KFilt,
		Dt:      s.Dt,
		Skipped: r.counters.Skipped,
		Clamped: r.counters.Clamped,
		RingOK:  r.cascade.MA.Ring().Check() == nil,
		Warmup:  r.gate.Count(),
	}
}
