// Package wire implements the line-oriented output protocol of the
// acquisition stage.
//
// Sample line:  "<timestamp_ms>,<filtered_value>\n", value with 4 decimals.
// Anomaly line: "EVT-L1-IMP\n".
package wire

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	// Sentinel marks an impedance anomaly on the output channel.
	Sentinel = "EVT-L1-IMP"
	// Precision is the number of decimals of a filtered value.
	Precision = 4
)

// ErrMalformed is returned for lines that are neither sample nor anomaly lines.
var ErrMalformed = errors.New("malformed line")

// Kind distinguishes the two record types on the wire.
type Kind int

const (
	// KindSample is a timestamped filtered value.
	KindSample Kind = iota
	// KindAnomaly is the impedance sentinel line.
	KindAnomaly
)

func (k Kind) String() string {
	if k == KindAnomaly {
		return "anomaly"
	}
	return "sample"
}

// Record is one decoded protocol line.
type Record struct {
	Kind      Kind
	Timestamp time.Duration // millisecond resolution, zero for anomalies
	Value     float64       // zero for anomalies
}

// Emitter writes protocol lines to a byte sink. Writes are synchronous:
// a slow sink blocks the caller.
type Emitter struct {
	w   io.Writer
	buf []byte
}

// NewEmitter returns an emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w, buf: make([]byte, 0, 32)}
}

// Sample writes a sample line for the given monotonic timestamp.
func (e *Emitter) Sample(ts time.Duration, value float64) error {
	e.buf = AppendSample(e.buf[:0], ts, value)
	return e.write()
}

// Anomaly writes the sentinel line.
func (e *Emitter) Anomaly() error {
	e.buf = append(e.buf[:0], Sentinel...)
	e.buf = append(e.buf, '\n')
	return e.write()
}

func (e *Emitter) write() error {
	if _, err := e.w.Write(e.buf); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}
	return nil
}

// AppendSample appends a sample line, including the trailing newline, to dst.
func AppendSample(dst []byte, ts time.Duration, value float64) []byte {
	dst = strconv.AppendInt(dst, ts.Milliseconds(), 10)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, value, 'f', Precision, 64)
	return append(dst, '\n')
}

// Parse decodes a single line. Surrounding whitespace, including the line
// terminator, is ignored.
func Parse(line string) (Record, error) {
	line = strings.TrimSpace(line)
	if line == Sentinel {
		return Record{Kind: KindAnomaly}, nil
	}

	ts, value, ok := strings.Cut(line, ",")
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || ms < 0 {
		return Record{}, fmt.Errorf("%w: invalid timestamp %q", ErrMalformed, ts)
	}

	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: invalid value %q", ErrMalformed, value)
	}

	return Record{
		Kind:      KindSample,
		Timestamp: time.Duration(ms) * time.Millisecond,
		Value:     v,
	}, nil
}
