// Package guard implements the impedance guard: a two-state tamper detector
// that compares consecutive raw readings and masks the signal for a fixed
// window after a sudden jump.
package guard

import (
	"math"
	"time"
)

const (
	// DefaultThreshold is the maximum accepted delta between consecutive
	// readings (V). A sudden spike beyond it is the signature of probe injection.
	DefaultThreshold = 2.5
	// DefaultLockout is how long the signal stays masked after an anomaly.
	DefaultLockout = 50 * time.Millisecond
)

// State is the guard state at a given instant.
type State int

const (
	// Normal passes samples through to comparison.
	Normal State = iota
	// LockedOut masks samples until the lockout deadline.
	LockedOut
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case LockedOut:
		return "locked-out"
	default:
		return "unknown"
	}
}

// Guard holds the comparison baseline and the lockout deadline.
// It is not safe for concurrent use; the sampling loop owns it.
type Guard struct {
	threshold float64
	lockout   time.Duration

	previous     float64
	lockoutUntil time.Duration
	armed        bool // lockoutUntil is meaningful
}

// New creates a guard in the Normal state with the given baseline reading.
// Non-positive parameters fall back to the defaults.
func New(threshold float64, lockout time.Duration, baseline float64) *Guard {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if lockout <= 0 {
		lockout = DefaultLockout
	}
	return &Guard{
		threshold: threshold,
		lockout:   lockout,
		previous:  baseline,
	}
}

// State reports the guard state at now. Lockout lifts at the first instant
// >= the deadline; no event marks re-arming.
func (g *Guard) State(now time.Duration) State {
	if g.armed && now < g.lockoutUntil {
		return LockedOut
	}
	return Normal
}

// Locked reports whether a tick starting at now must be skipped.
func (g *Guard) Locked(now time.Duration) bool {
	return g.State(now) == LockedOut
}

// Observe compares raw against the previous observed reading and records it
// as the new baseline. It returns true when the delta exceeds the threshold,
// in which case the guard is locked out until now + lockout.
//
// Callers must not call Observe while Locked(now) is true.
func (g *Guard) Observe(now time.Duration, raw float64) bool {
	tripped := math.Abs(raw-g.previous) > g.threshold
	g.previous = raw
	if tripped {
		g.lockoutUntil = now + g.lockout
		g.armed = true
	}
	return tripped
}

// Previous returns the last observed raw reading.
func (g *Guard) Previous() float64 {
	return g.previous
}

// LockoutUntil returns the deadline of the most recent lockout and whether a
// lockout has ever been entered.
func (g *Guard) LockoutUntil() (time.Duration, bool) {
	return g.lockoutUntil, g.armed
}

// Threshold returns the configured delta threshold (V).
func (g *Guard) Threshold() float64 {
	return g.threshold
}

// Lockout returns the configured lockout duration.
func (g *Guard) Lockout() time.Duration {
	return g.lockout
}
