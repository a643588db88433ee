// Package analysis measures how strongly the acquisition stage rejects
// injected tones, using an FFT over steady-state sample windows.
package analysis

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

var (
	// ErrTooShort is returned when a window has too few samples to resolve a tone.
	ErrTooShort = errors.New("not enough samples")
	// ErrOutOfBand is returned for a frequency at DC or at or above Nyquist.
	ErrOutOfBand = errors.New("frequency outside analysis band")
	// ErrToneAbsent is returned when the input carries no energy at the tone.
	ErrToneAbsent = errors.New("tone absent from input")
)

// ToneAmplitude estimates the peak amplitude of the component at freq (Hz)
// in samples taken at sampleRate. The mean is removed and a Hann window
// applied before the transform; the result is corrected for window gain.
func ToneAmplitude(samples []float64, sampleRate, freq float64) (float64, error) {
	n := len(samples)
	if n < 4 {
		return 0, ErrTooShort
	}

	bin := int(math.Round(freq * float64(n) / sampleRate))
	if bin <= 0 || bin >= n/2 {
		return 0, ErrOutOfBand
	}

	mean := 0.0
	for _, v := range samples {
		mean += v
	}
	mean /= float64(n)

	w := window.Hann(n)
	gain := 0.0
	in := make([]float64, n)
	for i, v := range samples {
		in[i] = (v - mean) * w[i]
		gain += w[i]
	}

	spectrum := fft.FFTReal(in)
	return 2 * cmplx.Abs(spectrum[bin]) / gain, nil
}

// Attenuation returns the ratio of the tone amplitude in output to that in
// input. Values near 0 mean strong rejection; values near 1 mean passthrough.
func Attenuation(input, output []float64, sampleRate, freq float64) (float64, error) {
	in, err := ToneAmplitude(input, sampleRate, freq)
	if err != nil {
		return 0, err
	}
	if in == 0 {
		return 0, ErrToneAbsent
	}
	out, err := ToneAmplitude(output, sampleRate, freq)
	if err != nil {
		return 0, err
	}
	return out / in, nil
}

// Decibels converts an amplitude ratio to dB. A zero ratio yields -Inf.
func Decibels(ratio float64) float64 {
	return 20 * math.Log10(ratio)
}

// ToneReport is the measured rejection of one tone.
type ToneReport struct {
	Frequency float64
	Input     float64 // Peak amplitude at the input (V)
	Output    float64 // Peak amplitude at the output (V)
	Ratio     float64
}

// Report measures every frequency in freqs over matching input and output
// windows. Frequencies that cannot be resolved are skipped.
func Report(input, output []float64, sampleRate float64, freqs ...float64) []ToneReport {
	out := make([]ToneReport, 0, len(freqs))
	for _, f := range freqs {
		in, err := ToneAmplitude(input, sampleRate, f)
		if err != nil {
			continue
		}
		o, err := ToneAmplitude(output, sampleRate, f)
		if err != nil {
			continue
		}
		r := ToneReport{Frequency: f, Input: in, Output: o}
		if in > 0 {
			r.Ratio = o / in
		}
		out = append(out, r)
	}
	return out
}
