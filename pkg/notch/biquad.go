// Package notch implements the biquad notch stages and the ordered filter
// bank used to reject known narrow-band injection tones.
package notch

import (
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// DefaultQ is the quality factor used when tuning deployment stages.
const DefaultQ = 30

// Coefficients holds the transfer function of a single second-order section.
// a0 is normalized to 1 and not stored.
type Coefficients = biquad.Coefficients

// Design computes RBJ notch coefficients centered at freq (Hz) with quality
// factor q for the given sample rate. It returns the zero value when freq is
// not strictly between 0 and Nyquist or either input is not finite. A q that
// is not a positive finite number falls back to DefaultQ.
func Design(freq, q, sampleRate float64) Coefficients {
	if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		q = DefaultQ
	}
	return design.Notch(freq, q, sampleRate)
}

// Magnitude returns |H(e^jw)| of c at freqHz.
func Magnitude(c Coefficients, freqHz, sampleRate float64) float64 {
	return cmplx.Abs(c.Response(freqHz, sampleRate))
}

// Filter is a Direct Form I biquad stage. Coefficients are fixed at
// construction; history persists for the lifetime of the filter.
type Filter struct {
	c Coefficients

	x1, x2 float64 // input history
	y1, y2 float64 // output history
}

// NewFilter returns a Filter with zero history.
func NewFilter(c Coefficients) *Filter {
	return &Filter{c: c}
}

// Coefficients returns the stage tuning.
func (f *Filter) Coefficients() Coefficients {
	return f.c
}

// Process filters one input sample and returns the output.
// History is shifted only after the output has been computed.
func (f *Filter) Process(x float64) float64 {
	y := f.c.B0*x + f.c.B1*f.x1 + f.c.B2*f.x2 - f.c.A1*f.y1 - f.c.A2*f.y2

	f.x2 = f.x1
	f.x1 = x
	f.y2 = f.y1
	f.y1 = y

	return y
}

// State returns the current history as (x1, x2, y1, y2).
func (f *Filter) State() (x1, x2, y1, y2 float64) {
	return f.x1, f.x2, f.y1, f.y2
}
