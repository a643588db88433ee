// Command capture records the protocol lines emitted by the acquisition
// stage into a SQLite database for later inspection.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/itohio/neurowall/pkg/capture"
	"github.com/itohio/neurowall/pkg/config"
	"github.com/itohio/neurowall/pkg/link"
	"github.com/itohio/neurowall/pkg/wire"
)

const flushInterval = 500 * time.Millisecond

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., /dev/ttyUSB0 or COM3)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		dbFlag     = flag.String("db", "", "Capture database override")
		forFlag    = flag.Duration("for", 0, "Stop after this long (0 = run until interrupted)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *dbFlag != "" {
		cfg.Capture.Database = *dbFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *forFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *forFlag)
		defer cancel()
	}

	store := capture.New(cfg.Capture.Database)
	defer store.Close()

	snapshot, err := yaml.Marshal(cfg)
	if err != nil {
		log.Fatalf("Failed to marshal configuration: %v", err)
	}

	sessionID, err := store.CreateSession(ctx, cfg.Serial.Port, string(snapshot))
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	writer, err := store.Writer(ctx, sessionID)
	if err != nil {
		log.Fatalf("Failed to open session writer: %v", err)
	}

	receiver := link.NewReceiver(cfg.Serial.Port, cfg.Serial.BaudRate, link.DefaultBufferSize)
	if err := receiver.Connect(); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	log.Printf("Capturing %s into %s (session %d)", cfg.Serial.Port, cfg.Capture.Database, sessionID)

	record(ctx, receiver, writer)

	if err := receiver.Close(); err != nil {
		log.Printf("Error closing receiver: %v", err)
	}

	// The run context may already be done; the summary uses a fresh one.
	counts, err := store.Counts(context.Background(), sessionID)
	if err != nil {
		log.Fatalf("Failed to count records: %v", err)
	}
	st := receiver.Stats()
	log.Printf("Session %d: %s samples, %s anomalies, %s malformed, %s dropped",
		sessionID,
		humanize.Comma(counts.Samples),
		humanize.Comma(counts.Anomalies),
		humanize.Comma(int64(st.Malformed)),
		humanize.Comma(int64(st.Dropped)))
}

// record batches incoming records and flushes them periodically until ctx
// is done or the receiver closes.
func record(ctx context.Context, receiver *link.Receiver, writer *capture.Writer) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var batch []wire.Record
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := writer.Append(context.Background(), batch...); err != nil {
			log.Printf("Failed to store %d records: %v", len(batch), err)
		}
		batch = batch[:0]
	}
	defer flush()

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-receiver.Records():
			if !ok {
				return
			}
			if rec.Kind == wire.KindAnomaly {
				log.Printf("Impedance anomaly reported")
			}
			batch = append(batch, rec)
		case <-ticker.C:
			flush()
		}
	}
}
