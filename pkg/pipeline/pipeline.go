// Package pipeline assembles the acquisition stage from a deployment
// configuration.
package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/itohio/neurowall/pkg/adc"
	"github.com/itohio/neurowall/pkg/adc/synth"
	"github.com/itohio/neurowall/pkg/clock"
	"github.com/itohio/neurowall/pkg/config"
	"github.com/itohio/neurowall/pkg/guard"
	"github.com/itohio/neurowall/pkg/notch"
	"github.com/itohio/neurowall/pkg/scheduler"
	"github.com/itohio/neurowall/pkg/wire"
)

// Bank builds the notch cascade tuned for cfg.
func Bank(cfg *config.Config) *notch.Bank {
	return notch.Tuned(float64(cfg.Sampling.RateHz), cfg.Notch.Q, cfg.Notch.Frequencies...)
}

// Build assembles the sampling loop described by cfg, reading from src and
// writing protocol lines to sink. The guard baseline starts at 0 V.
func Build(cfg *config.Config, clk clock.Clock, src adc.Source, sink io.Writer, opts ...Option) (*scheduler.Loop, error) {
	period := cfg.Sampling.Period()
	if period <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d Hz", cfg.Sampling.RateHz)
	}

	o := scheduler.Options{
		Period:  period,
		Clock:   clk,
		Source:  src,
		Guard:   guard.New(cfg.Guard.Threshold, cfg.Guard.Lockout, 0),
		Bank:    Bank(cfg),
		Emitter: wire.NewEmitter(sink),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return scheduler.New(o)
}

// Option adjusts loop options before construction.
type Option func(*scheduler.Options)

// WithLogger sets the loop logger.
func WithLogger(l scheduler.Logger) Option {
	return func(o *scheduler.Options) { o.Logger = l }
}

// WithReport installs a periodic stats hook.
func WithReport(every uint64, fn func(scheduler.Stats)) Option {
	return func(o *scheduler.Options) {
		o.ReportEvery = every
		o.Report = fn
	}
}

// BenchResult is the outcome of an offline run.
type BenchResult struct {
	Raw      []float64     // Every reading taken from the source
	Filtered []float64     // Values of emitted sample lines, in order
	Records  []wire.Record // All emitted records, in order
	Stats    scheduler.Stats
}

// Bench runs the loop for ticks boundaries on a simulated clock against the
// configured synthetic source and decodes everything it emitted.
func Bench(cfg *config.Config, ticks int) (*BenchResult, error) {
	clk := clock.NewSim(0)
	src := synth.New(cfg.Simulator, cfg.ADC, clk)

	res := &BenchResult{}
	tap := adc.SourceFunc(func() float64 {
		v := src.Read()
		res.Raw = append(res.Raw, v)
		return v
	})

	var out bytes.Buffer
	loop, err := Build(cfg, clk, tap, &out)
	if err != nil {
		return nil, err
	}
	loop.RunTicks(ticks)
	res.Stats = loop.Stats()

	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		rec, err := wire.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("failed to decode bench output: %w", err)
		}
		res.Records = append(res.Records, rec)
		if rec.Kind == wire.KindSample {
			res.Filtered = append(res.Filtered, rec.Value)
		}
	}

	return res, nil
}
