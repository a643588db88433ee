// Package scheduler drives the fixed-rate acquisition loop:
// guard check, filter cascade and emit, once per tick boundary.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/itohio/neurowall/pkg/adc"
	"github.com/itohio/neurowall/pkg/clock"
	"github.com/itohio/neurowall/pkg/guard"
	"github.com/itohio/neurowall/pkg/notch"
	"github.com/itohio/neurowall/pkg/wire"
)

// Logger is the subset of *log.Logger used by the loop.
type Logger interface {
	Printf(format string, v ...any)
}

// Stats counts what the loop has done so far.
type Stats struct {
	Ticks       uint64 // Tick boundaries serviced
	Samples     uint64 // Sample lines emitted
	Anomalies   uint64 // Sentinel lines emitted
	Skipped     uint64 // Ticks skipped during lockout
	Overruns    uint64 // Boundaries missed because a tick overran
	WriteErrors uint64 // Failed sink writes
}

// Outcome describes what a single tick did.
type Outcome int

const (
	// Emitted means a filtered sample line was written.
	Emitted Outcome = iota
	// Anomaly means the guard tripped and the sentinel was written.
	Anomaly
	// Skipped means the tick fell inside a lockout window.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Emitted:
		return "emitted"
	case Anomaly:
		return "anomaly"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Options configures a Loop. Clock, Source, Guard, Bank and Emitter are
// required.
type Options struct {
	Period  time.Duration
	Clock   clock.Clock
	Source  adc.Source
	Guard   *guard.Guard
	Bank    *notch.Bank
	Emitter *wire.Emitter
	Logger  Logger

	// Report, if set, is called from the loop every ReportEvery ticks.
	Report      func(Stats)
	ReportEvery uint64
}

// Loop is the single-threaded sampling loop. All state it touches is owned
// by it; none of its methods are safe for concurrent use.
type Loop struct {
	period  time.Duration
	clk     clock.Clock
	src     adc.Source
	guard   *guard.Guard
	bank    *notch.Bank
	emitter *wire.Emitter
	logger  Logger

	report      func(Stats)
	reportEvery uint64

	next  time.Duration // start of the next tick boundary
	stats Stats
}

// New validates opts and creates a loop whose first tick boundary is the
// clock's current instant.
func New(opts Options) (*Loop, error) {
	if opts.Period <= 0 {
		return nil, fmt.Errorf("invalid tick period %v", opts.Period)
	}
	if opts.Clock == nil || opts.Source == nil || opts.Guard == nil || opts.Bank == nil || opts.Emitter == nil {
		return nil, fmt.Errorf("clock, source, guard, bank and emitter are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Loop{
		period:      opts.Period,
		clk:         opts.Clock,
		src:         opts.Source,
		guard:       opts.Guard,
		bank:        opts.Bank,
		emitter:     opts.Emitter,
		logger:      logger,
		report:      opts.Report,
		reportEvery: opts.ReportEvery,
		next:        opts.Clock.Now(),
	}, nil
}

// Run repeats Tick forever. ctx is only consulted between ticks; the wait
// for a tick boundary is never interrupted. With context.Background() Run
// never returns.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.Tick()
	}
}

// RunTicks services exactly n tick boundaries.
func (l *Loop) RunTicks(n int) {
	for i := 0; i < n; i++ {
		l.Tick()
	}
}

// Tick waits for the next boundary, services it and returns what it did.
func (l *Loop) Tick() Outcome {
	l.clk.SleepUntil(l.next)
	boundary := l.next

	out := l.service(l.clk.Now())

	l.stats.Ticks++
	l.advance(boundary)

	if l.report != nil && l.reportEvery > 0 && l.stats.Ticks%l.reportEvery == 0 {
		l.report(l.stats)
	}

	return out
}

// service performs the tick body at instant now.
func (l *Loop) service(now time.Duration) Outcome {
	if l.guard.Locked(now) {
		l.stats.Skipped++
		return Skipped
	}

	raw := l.src.Read()

	if l.guard.Observe(now, raw) {
		l.stats.Anomalies++
		if err := l.emitter.Anomaly(); err != nil {
			l.writeFailed(err)
		}
		return Anomaly
	}

	filtered := l.bank.Process(raw)

	l.stats.Samples++
	if err := l.emitter.Sample(now, filtered); err != nil {
		l.writeFailed(err)
	}
	return Emitted
}

// advance moves the next boundary one period past boundary, dropping any
// boundaries the tick has already overrun.
func (l *Loop) advance(boundary time.Duration) {
	next := boundary + l.period
	if now := l.clk.Now(); now >= next {
		missed := (now-next)/l.period + 1
		l.stats.Overruns += uint64(missed)
		next += missed * l.period
	}
	l.next = next
}

func (l *Loop) writeFailed(err error) {
	l.stats.WriteErrors++
	l.logger.Printf("Sink write failed: %v", err)
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return l.stats
}

// Next returns the start of the next tick boundary.
func (l *Loop) Next() time.Duration {
	return l.next
}

// Period returns the tick period.
func (l *Loop) Period() time.Duration {
	return l.period
}
