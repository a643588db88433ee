package notch

import (
	"math/cmplx"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
)

// DefaultFrequencies are the SSVEP injection tones (Hz) rejected by the
// deployment bank, in cascade order.
var DefaultFrequencies = []float64{8.57, 10.9, 15.0, 20.0}

// Bank is a fixed, ordered cascade of notch stages. Each stage filters the
// output of the previous one.
type Bank struct {
	stages []*Filter
}

// NewBank builds a cascade from coefficients in declared order.
func NewBank(coeffs ...Coefficients) *Bank {
	stages := make([]*Filter, len(coeffs))
	for i, c := range coeffs {
		stages[i] = NewFilter(c)
	}
	return &Bank{stages: stages}
}

// Tuned designs one notch per frequency at the given Q and sample rate and
// returns them as a cascade in the same order.
func Tuned(sampleRate, q float64, frequencies ...float64) *Bank {
	coeffs := make([]Coefficients, len(frequencies))
	for i, f := range frequencies {
		coeffs[i] = Design(f, q, sampleRate)
	}
	return NewBank(coeffs...)
}

// Process runs x through every stage in order.
func (b *Bank) Process(x float64) float64 {
	for _, s := range b.stages {
		x = s.Process(x)
	}
	return x
}

// Len returns the number of stages.
func (b *Bank) Len() int {
	return len(b.stages)
}

// Stages returns the stage coefficients in cascade order.
func (b *Bank) Stages() []Coefficients {
	out := make([]Coefficients, len(b.stages))
	for i, s := range b.stages {
		out[i] = s.c
	}
	return out
}

// Magnitude returns the cascade gain at freqHz.
func (b *Bank) Magnitude(freqHz, sampleRate float64) float64 {
	return cmplx.Abs(biquad.NewChain(b.Stages()).Response(freqHz, sampleRate))
}
