// Package adc models the hardware input boundary: a source that yields one
// bounded voltage reading per call.
package adc

// Source supplies one raw reading (V) per call.
type Source interface {
	Read() float64
}

// SourceFunc adapts a function to Source.
type SourceFunc func() float64

// Read calls f.
func (f SourceFunc) Read() float64 { return f() }

// MaxCount returns the largest count of an ADC with the given resolution.
func MaxCount(bits int) uint32 {
	if bits <= 0 || bits > 31 {
		return 0
	}
	return 1<<uint(bits) - 1
}

// ToVoltage converts an ADC count to volts for the given resolution and
// reference. Counts above the representable range are not clamped.
func ToVoltage(count uint32, bits int, vref float64) float64 {
	max := MaxCount(bits)
	if max == 0 {
		return 0
	}
	return float64(count) * (vref / float64(max))
}

// FromVoltage quantizes v to the nearest ADC count, clamped to [0, max].
func FromVoltage(v float64, bits int, vref float64) uint32 {
	max := MaxCount(bits)
	if max == 0 || vref <= 0 {
		return 0
	}
	c := v/vref*float64(max) + 0.5
	if c < 0 {
		return 0
	}
	if c > float64(max) {
		return max
	}
	return uint32(c)
}

// Counts is a Source converting raw counts from read to volts.
type Counts struct {
	read func() uint32
	bits int
	vref float64
}

// NewCounts wraps a count reader, e.g. a microcontroller ADC channel.
func NewCounts(read func() uint32, bits int, vref float64) *Counts {
	return &Counts{read: read, bits: bits, vref: vref}
}

// Read samples the channel and returns volts.
func (c *Counts) Read() float64 {
	return ToVoltage(c.read(), c.bits, c.vref)
}

// Replay returns readings from a fixed sequence, repeating the last one
// once the sequence is exhausted.
type Replay struct {
	values []float64
	reads  int
}

// NewReplay creates a replay source. An empty sequence reads as 0.
func NewReplay(values ...float64) *Replay {
	return &Replay{values: values}
}

// Read returns the next reading.
func (r *Replay) Read() float64 {
	r.reads++
	if len(r.values) == 0 {
		return 0
	}
	i := r.reads - 1
	if i >= len(r.values) {
		i = len(r.values) - 1
	}
	return r.values[i]
}

// Reads returns how many times Read has been called.
func (r *Replay) Reads() int {
	return r.reads
}
