// Command neurowall runs the acquisition stage on a host against the
// synthetic front end, streaming protocol lines to a serial port or stdout.
// With -analyze it performs an offline bench run and reports tone rejection.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/itohio/neurowall/pkg/adc/synth"
	"github.com/itohio/neurowall/pkg/analysis"
	"github.com/itohio/neurowall/pkg/clock"
	"github.com/itohio/neurowall/pkg/config"
	"github.com/itohio/neurowall/pkg/link"
	"github.com/itohio/neurowall/pkg/pipeline"
	"github.com/itohio/neurowall/pkg/scheduler"
)

func main() {
	var (
		portFlag    = flag.String("p", "", "Serial port override (e.g., /dev/ttyUSB0 or COM3)")
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		stdoutFlag  = flag.Bool("stdout", false, "Write protocol lines to stdout instead of the serial port")
		ticksFlag   = flag.Int("ticks", 0, "Stop after this many ticks (0 = run until interrupted)")
		analyzeFlag = flag.Int("analyze", 0, "Run an offline bench of N ticks and report tone rejection")
		listFlag    = flag.Bool("list", false, "List serial ports and exit")
	)
	flag.Parse()

	if *listFlag {
		listPorts()
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	if *analyzeFlag > 0 {
		if err := analyze(cfg, *analyzeFlag); err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}
		return
	}

	var sink io.Writer = os.Stdout
	if !*stdoutFlag {
		port, err := link.Open(cfg.Serial.Port, cfg.Serial.BaudRate)
		if err != nil {
			log.Fatalf("Failed to open sink: %v", err)
		}
		defer port.Close()
		sink = port
	}

	clk := clock.NewSystem()
	src := synth.New(cfg.Simulator, cfg.ADC, clk)

	loop, err := pipeline.Build(cfg, clk, src, sink,
		pipeline.WithReport(uint64(cfg.Sampling.RateHz)*10, logStats),
	)
	if err != nil {
		log.Fatalf("Failed to build sampling loop: %v", err)
	}

	log.Printf("Sampling at %s, %d notch stages, guard %.2f V / %v",
		humanize.SIWithDigits(float64(cfg.Sampling.RateHz), 0, "Hz"),
		len(cfg.Notch.Frequencies), cfg.Guard.Threshold, cfg.Guard.Lockout)

	if *ticksFlag > 0 {
		loop.RunTicks(*ticksFlag)
		logStats(loop.Stats())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loop.Run(ctx); err != nil {
		logStats(loop.Stats())
	}
}

func logStats(st scheduler.Stats) {
	log.Printf("ticks=%s samples=%s anomalies=%s skipped=%s overruns=%s write_errors=%s",
		humanize.Comma(int64(st.Ticks)),
		humanize.Comma(int64(st.Samples)),
		humanize.Comma(int64(st.Anomalies)),
		humanize.Comma(int64(st.Skipped)),
		humanize.Comma(int64(st.Overruns)),
		humanize.Comma(int64(st.WriteErrors)))
}

func listPorts() {
	ports, err := link.Ports()
	if err != nil {
		log.Fatalf("Failed to list ports: %v", err)
	}
	for _, p := range ports {
		fmt.Println(p.Name)
	}
}

// analyze runs an offline bench and prints input/output amplitude per tone
// over the second half of the run.
func analyze(cfg *config.Config, ticks int) error {
	started := time.Now()
	res, err := pipeline.Bench(cfg, ticks)
	if err != nil {
		return err
	}

	n := len(res.Filtered)
	if n != len(res.Raw) {
		return fmt.Errorf("bench hit %d anomalies, disable spikes for tone analysis", res.Stats.Anomalies)
	}

	freqs := append([]float64{}, cfg.Notch.Frequencies...)
	for _, tone := range cfg.Simulator.Tones {
		if !slices.Contains(freqs, tone.Frequency) {
			freqs = append(freqs, tone.Frequency)
		}
	}

	rate := float64(cfg.Sampling.RateHz)
	reports := analysis.Report(res.Raw[n/2:], res.Filtered[n/2:], rate, freqs...)

	log.Printf("Bench of %s ticks (%v simulated) in %v",
		humanize.Comma(int64(ticks)), time.Duration(ticks)*cfg.Sampling.Period(), time.Since(started).Round(time.Millisecond))

	fmt.Printf("%10s %12s %12s %10s\n", "freq", "input", "output", "gain")
	for _, r := range reports {
		if r.Input < 1e-6 {
			continue
		}
		fmt.Printf("%10s %12.6f %12.6f %8.1fdB\n",
			humanize.SIWithDigits(r.Frequency, 2, "Hz"), r.Input, r.Output, analysis.Decibels(r.Ratio))
	}

	return nil
}
