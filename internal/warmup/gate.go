// Package warmup gates pipeline output until the filter cascade is past its
// start-up transient.
package warmup

import (
	"math"
	"time"
)

// State is the gate state.
type State int

const (
	// Warming suppresses output while cycles are counted.
	Warming State = iota
	// Active passes every cycle. It is terminal.
	Active
)

func (s State) String() string {
	switch s {
	case Warming:
		return "warming"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Threshold converts a settle duration at a nominal cycle rate into a cycle
// count, rounding to the nearest cycle.
func Threshold(rateHz float64, settle time.Duration) int {
	if rateHz <= 0 || settle <= 0 {
		return 0
	}
	return int(math.Round(rateHz * settle.Seconds()))
}

// Gate counts admission attempts and opens for good once the count reaches
// its threshold. With threshold N, attempts 0..N-1 are denied and attempt N
// and every later one is admitted.
type Gate struct {
	threshold int
	count     int
	state     State
}

// NewGate returns a gate that opens after threshold denied attempts. A
// threshold of zero or less opens immediately.
func NewGate(threshold int) *Gate {
	g := &Gate{threshold: threshold}
	if threshold <= 0 {
		g.threshold = 0
		g.state = Active
	}
	return g
}

// Admit records one attempt and reports whether it may pass.
func (g *Gate) Admit() bool {
	if g.state == Active {
		return true
	}
	if g.count >= g.threshold {
		g.state = Active
		return true
	}
	g.count++
	return false
}

// State returns the current state.
func (g *Gate) State() State { return g.state }

// Count returns the number of denied attempts so far. It stops growing once
// the gate is active.
func (g *Gate) Count() int { return g.count }

// Threshold returns the number of attempts denied before activation.
func (g *Gate) Threshold() int { return g.threshold }
