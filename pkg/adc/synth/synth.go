// Package synth simulates the analog front end for bench runs and tests.
package synth

import (
	"math"
	"math/rand"

	"github.com/itohio/neurowall/pkg/adc"
	"github.com/itohio/neurowall/pkg/clock"
	"github.com/itohio/neurowall/pkg/config"
)

// Synth simulates an analog front end for bench runs and tests. The signal
// is a DC baseline plus injected tones, uniform noise and periodic probe
// spikes, sampled at the clock's current instant and quantized like the
// configured ADC.
type Synth struct {
	cfg  config.SimulatorConfig
	clk  clock.Clock
	bits int
	vref float64

	rng       *rand.Rand
	lastSpike int64
}

var _ adc.Source = (*Synth)(nil)

// New creates a synthetic source. A non-positive resolution disables
// quantization.
func New(cfg config.SimulatorConfig, adcCfg config.ADCConfig, clk clock.Clock) *Synth {
	return &Synth{
		cfg:  cfg,
		clk:  clk,
		bits: adcCfg.ResolutionBits,
		vref: adcCfg.VRef,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Read generates a single simulated reading.
func (s *Synth) Read() float64 {
	now := s.clk.Now()
	t := now.Seconds()

	v := s.cfg.DC
	for _, tone := range s.cfg.Tones {
		v += tone.Amplitude * math.Sin(2*math.Pi*tone.Frequency*t)
	}

	if s.cfg.NoiseLevel > 0 {
		v += (s.rng.Float64()*2 - 1) * s.cfg.NoiseLevel
	}

	// One spiked reading per elapsed spike period
	if s.cfg.SpikePeriod > 0 {
		n := int64(now / s.cfg.SpikePeriod)
		if n > s.lastSpike {
			s.lastSpike = n
			v += s.cfg.SpikeAmplitude
		}
	}

	if s.bits > 0 {
		return adc.ToVoltage(adc.FromVoltage(v, s.bits, s.vref), s.bits, s.vref)
	}
	return v
}
