// Package clock provides the monotonic time source that paces the sampling
// loop. Instants are durations since the clock was started.
package clock

import (
	"sync"
	"time"
)

// Clock is a monotonic time source with a blocking sleep-until primitive.
type Clock interface {
	// Now returns the time elapsed since the clock started.
	Now() time.Duration
	// SleepUntil blocks until Now() >= t. It returns immediately if t has
	// already passed.
	SleepUntil(t time.Duration)
}

var (
	_ Clock = (*System)(nil)
	_ Clock = (*Sim)(nil)
)

// System is a Clock backed by the runtime monotonic clock.
type System struct {
	start time.Time
}

// NewSystem starts a system clock at the current instant.
func NewSystem() *System {
	return &System{start: time.Now()}
}

// Now returns the elapsed monotonic time since start.
func (c *System) Now() time.Duration {
	return time.Since(c.start)
}

// SleepUntil sleeps for the remaining time until t.
func (c *System) SleepUntil(t time.Duration) {
	if d := t - c.Now(); d > 0 {
		time.Sleep(d)
	}
}

// Sim is a simulated clock for deterministic tests and offline runs.
// SleepUntil advances time instantly.
type Sim struct {
	mu  sync.Mutex
	now time.Duration
}

// NewSim returns a simulated clock starting at the given instant.
func NewSim(start time.Duration) *Sim {
	return &Sim{now: start}
}

// Now returns the simulated time.
func (c *Sim) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SleepUntil jumps to t. Time never moves backwards.
func (c *Sim) SleepUntil(t time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
}

// Advance moves the simulated time forward by d, emulating work performed
// inside a tick.
func (c *Sim) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += d
	}
}
