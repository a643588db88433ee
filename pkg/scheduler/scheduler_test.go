package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/itohio/neurowall/pkg/adc"
	"github.com/itohio/neurowall/pkg/adc/synth"
	"github.com/itohio/neurowall/pkg/analysis"
	"github.com/itohio/neurowall/pkg/clock"
	"github.com/itohio/neurowall/pkg/config"
	"github.com/itohio/neurowall/pkg/guard"
	"github.com/itohio/neurowall/pkg/notch"
	"github.com/itohio/neurowall/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate   = 250
	testPeriod = 4 * time.Millisecond
)

type harness struct {
	clk  *clock.Sim
	out  *bytes.Buffer
	loop *Loop
}

func newHarness(t *testing.T, src adc.Source) *harness {
	t.Helper()

	clk := clock.NewSim(0)
	out := &bytes.Buffer{}
	loop, err := New(Options{
		Period:  testPeriod,
		Clock:   clk,
		Source:  src,
		Guard:   guard.New(guard.DefaultThreshold, guard.DefaultLockout, 0),
		Bank:    notch.Tuned(testRate, notch.DefaultQ, notch.DefaultFrequencies...),
		Emitter: wire.NewEmitter(out),
	})
	require.NoError(t, err)

	return &harness{clk: clk, out: out, loop: loop}
}

func (h *harness) lines() []string {
	s := strings.TrimSuffix(h.out.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func (h *harness) records(t *testing.T) []wire.Record {
	t.Helper()
	var out []wire.Record
	for _, l := range h.lines() {
		r, err := wire.Parse(l)
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	valid := Options{
		Period:  testPeriod,
		Clock:   clock.NewSim(0),
		Source:  adc.NewReplay(),
		Guard:   guard.New(0, 0, 0),
		Bank:    notch.NewBank(),
		Emitter: wire.NewEmitter(&bytes.Buffer{}),
	}

	_, err := New(valid)
	require.NoError(t, err)

	noPeriod := valid
	noPeriod.Period = 0
	_, err = New(noPeriod)
	assert.Error(t, err)

	noSource := valid
	noSource.Source = nil
	_, err = New(noSource)
	assert.Error(t, err)

	noBank := valid
	noBank.Bank = nil
	_, err = New(noBank)
	assert.Error(t, err)
}

// Constant 2.50 V for 10 ticks: DC passes, no anomalies, one line per tick.
func TestScenario_ConstantDC(t *testing.T) {
	h := newHarness(t, adc.NewReplay(2.5))
	h.loop.RunTicks(10)

	recs := h.records(t)
	require.Len(t, recs, 10)
	for i, r := range recs {
		assert.Equal(t, wire.KindSample, r.Kind)
		assert.Equal(t, time.Duration(i)*testPeriod, r.Timestamp)
		assert.InDelta(t, 2.5, r.Value, 0.3)
	}

	st := h.loop.Stats()
	assert.Equal(t, Stats{Ticks: 10, Samples: 10}, st)

	// Bank transient settles onto the DC level
	h.loop.RunTicks(3000)
	last := h.records(t)
	assert.InDelta(t, 2.5, last[len(last)-1].Value, 1e-4)
}

// Jump from 2.50 V to -0.01 V on tick 5 exceeds the 2.5 V threshold.
func TestScenario_JumpAboveThreshold(t *testing.T) {
	src := adc.NewReplay(2.5, 2.5, 2.5, 2.5, -0.01, 1.0)
	h := newHarness(t, src)

	// tick 5 at 16ms trips; lockout until 66ms skips ticks 20..64ms; 68ms resumes
	outcomes := make([]Outcome, 18)
	for i := range outcomes {
		outcomes[i] = h.loop.Tick()
	}

	for i := 0; i < 4; i++ {
		assert.Equal(t, Emitted, outcomes[i], "tick %d", i+1)
	}
	assert.Equal(t, Anomaly, outcomes[4])
	for i := 5; i < 17; i++ {
		assert.Equal(t, Skipped, outcomes[i], "tick %d", i+1)
	}
	assert.Equal(t, Emitted, outcomes[17])

	lines := h.lines()
	require.Len(t, lines, 6)
	for i, prefix := range []string{"0,", "4,", "8,", "12,"} {
		assert.True(t, strings.HasPrefix(lines[i], prefix), lines[i])
	}
	assert.Equal(t, wire.Sentinel, lines[4])
	assert.True(t, strings.HasPrefix(lines[5], "68,"), lines[5])

	// Skipped ticks never read the ADC
	assert.Equal(t, 6, src.Reads())

	st := h.loop.Stats()
	assert.Equal(t, uint64(18), st.Ticks)
	assert.Equal(t, uint64(5), st.Samples)
	assert.Equal(t, uint64(1), st.Anomalies)
	assert.Equal(t, uint64(12), st.Skipped)
}

// Jump from 2.50 V to 0.00 V is exactly the threshold and is accepted.
func TestScenario_JumpEqualToThreshold(t *testing.T) {
	src := adc.NewReplay(2.5, 2.5, 2.5, 2.5, 0.0)
	h := newHarness(t, src)
	h.loop.RunTicks(8)

	for _, l := range h.lines() {
		assert.NotEqual(t, wire.Sentinel, l)
	}
	assert.Len(t, h.lines(), 8)
	assert.Equal(t, uint64(0), h.loop.Stats().Anomalies)
}

// Lockout freezes the baseline: the first reading after lockout is compared
// against the spike, not against the last accepted reading.
func TestLockout_ComparesAgainstSpike(t *testing.T) {
	// 0 -> 2.5 accepted, 5.1 trips. 5.05 after lockout is within threshold of
	// the spike but not of 2.5, so it is accepted. -0.1 trips again.
	src := adc.NewReplay(0, 2.5, 5.1, 5.05, -0.1)
	h := newHarness(t, src)
	h.loop.RunTicks(40)

	assert.Equal(t, uint64(2), h.loop.Stats().Anomalies)
	assert.Equal(t, []string{wire.Sentinel, wire.Sentinel}, filter(h.lines(), wire.Sentinel))
}

func filter(lines []string, want string) []string {
	var out []string
	for _, l := range lines {
		if l == want {
			out = append(out, l)
		}
	}
	return out
}

// A 15 Hz tone is rejected by its notch; a 5 Hz tone passes.
func TestScenario_ToneRejection(t *testing.T) {
	const n, settle = 6000, 5000

	run := func(freq float64) float64 {
		clk := clock.NewSim(0)
		sim := config.SimulatorConfig{
			DC:    2.5,
			Tones: []config.ToneConfig{{Frequency: freq, Amplitude: 0.5}},
		}
		src := synth.New(sim, config.ADCConfig{}, clk)

		var raw []float64
		tap := adc.SourceFunc(func() float64 {
			v := src.Read()
			raw = append(raw, v)
			return v
		})

		out := &bytes.Buffer{}
		loop, err := New(Options{
			Period:  testPeriod,
			Clock:   clk,
			Source:  tap,
			Guard:   guard.New(guard.DefaultThreshold, guard.DefaultLockout, 2.5),
			Bank:    notch.Tuned(testRate, notch.DefaultQ, notch.DefaultFrequencies...),
			Emitter: wire.NewEmitter(out),
		})
		require.NoError(t, err)
		loop.RunTicks(n)

		var filtered []float64
		for _, l := range strings.Split(strings.TrimSpace(out.String()), "\n") {
			r, err := wire.Parse(l)
			require.NoError(t, err)
			filtered = append(filtered, r.Value)
		}
		require.Len(t, filtered, n)

		ratio, err := analysis.Attenuation(raw[settle:], filtered[settle:], testRate, freq)
		require.NoError(t, err)
		return ratio
	}

	assert.Less(t, run(15.0), 0.01)
	assert.InDelta(t, 1.0, run(5.0), 0.02)
}

// Same state and input reproduce the same output.
func TestLoop_Deterministic(t *testing.T) {
	values := make([]float64, 500)
	for i := range values {
		values[i] = 2.5 + 0.4*math.Sin(float64(i)*0.3)
		if i%97 == 50 {
			values[i] = 6.0
		}
	}

	run := func() string {
		h := newHarness(t, adc.NewReplay(values...))
		h.loop.RunTicks(len(values))
		return h.out.String()
	}

	first := run()
	assert.Contains(t, first, wire.Sentinel)
	assert.Equal(t, first, run())
}

// slowSource consumes clock time on every read.
type slowSource struct {
	clk *clock.Sim
	d   time.Duration
}

func (s slowSource) Read() float64 {
	s.clk.Advance(s.d)
	return 1.0
}

func TestLoop_OverrunSkipsBoundaries(t *testing.T) {
	clk := clock.NewSim(0)
	out := &bytes.Buffer{}
	loop, err := New(Options{
		Period:  testPeriod,
		Clock:   clk,
		Source:  slowSource{clk: clk, d: 9 * time.Millisecond},
		Guard:   guard.New(guard.DefaultThreshold, guard.DefaultLockout, 1.0),
		Bank:    notch.NewBank(),
		Emitter: wire.NewEmitter(out),
	})
	require.NoError(t, err)

	loop.Tick()
	// Tick at 0 ends at 9ms: boundaries 4ms and 8ms are dropped
	assert.Equal(t, 12*time.Millisecond, loop.Next())
	assert.Equal(t, uint64(2), loop.Stats().Overruns)

	loop.Tick()
	assert.Equal(t, 24*time.Millisecond, loop.Next())
	assert.Equal(t, "0,1.0000\n12,1.0000\n", out.String())
}

func TestLoop_BoundariesEquallySpaced(t *testing.T) {
	clk := clock.NewSim(0)
	loop, err := New(Options{
		Period:  testPeriod,
		Clock:   clk,
		Source:  slowSource{clk: clk, d: time.Millisecond},
		Guard:   guard.New(guard.DefaultThreshold, guard.DefaultLockout, 1.0),
		Bank:    notch.NewBank(),
		Emitter: wire.NewEmitter(&bytes.Buffer{}),
	})
	require.NoError(t, err)

	for i := 1; i <= 50; i++ {
		loop.Tick()
		assert.Equal(t, time.Duration(i)*testPeriod, loop.Next())
	}
	assert.Equal(t, uint64(0), loop.Stats().Overruns)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("port gone") }

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Printf(format string, v ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func TestLoop_WriteErrorsDoNotStopLoop(t *testing.T) {
	logger := &recordingLogger{}
	loop, err := New(Options{
		Period:  testPeriod,
		Clock:   clock.NewSim(0),
		Source:  adc.NewReplay(1.0, 1.0, 4.0),
		Guard:   guard.New(guard.DefaultThreshold, guard.DefaultLockout, 1.0),
		Bank:    notch.NewBank(),
		Emitter: wire.NewEmitter(failingWriter{}),
		Logger:  logger,
	})
	require.NoError(t, err)

	loop.RunTicks(3)
	st := loop.Stats()
	assert.Equal(t, uint64(3), st.Ticks)
	assert.Equal(t, uint64(3), st.WriteErrors)
	assert.Equal(t, uint64(1), st.Anomalies)
	require.Len(t, logger.lines, 3)
	assert.Contains(t, logger.lines[0], "port gone")
}

func TestLoop_Report(t *testing.T) {
	var reports []Stats
	loop, err := New(Options{
		Period:      testPeriod,
		Clock:       clock.NewSim(0),
		Source:      adc.NewReplay(1.0),
		Guard:       guard.New(guard.DefaultThreshold, guard.DefaultLockout, 1.0),
		Bank:        notch.NewBank(),
		Emitter:     wire.NewEmitter(&bytes.Buffer{}),
		Report:      func(s Stats) { reports = append(reports, s) },
		ReportEvery: 25,
	})
	require.NoError(t, err)

	loop.RunTicks(100)
	require.Len(t, reports, 4)
	assert.Equal(t, uint64(25), reports[0].Ticks)
	assert.Equal(t, uint64(100), reports[3].Samples)
}

func TestLoop_RunStopsBetweenTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ticks := 0
	src := adc.SourceFunc(func() float64 {
		ticks++
		if ticks == 20 {
			cancel()
		}
		return 1.0
	})

	loop, err := New(Options{
		Period:  testPeriod,
		Clock:   clock.NewSim(0),
		Source:  src,
		Guard:   guard.New(guard.DefaultThreshold, guard.DefaultLockout, 1.0),
		Bank:    notch.NewBank(),
		Emitter: wire.NewEmitter(&bytes.Buffer{}),
	})
	require.NoError(t, err)

	err = loop.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(20), loop.Stats().Ticks, "the tick in progress completes")
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "emitted", Emitted.String())
	assert.Equal(t, "anomaly", Anomaly.String())
	assert.Equal(t, "skipped", Skipped.String())
	assert.Equal(t, "unknown", Outcome(7).String())
}
