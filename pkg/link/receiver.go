package link

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/itohio/neurowall/pkg/wire"
)

// Receiver reads protocol lines from a serial connection and decodes them
// into records on a channel.
type Receiver struct {
	port     string
	baudRate int
	bufSize  int

	conn      io.ReadCloser
	records   chan wire.Record
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
	done      chan struct{}

	received  atomic.Uint64
	malformed atomic.Uint64
	dropped   atomic.Uint64
}

// ReceiverStats counts decoded, rejected and dropped lines.
type ReceiverStats struct {
	Received  uint64
	Malformed uint64
	Dropped   uint64
}

// NewReceiver creates a receiver for the specified port, baud rate and buffer size.
func NewReceiver(port string, baudRate int, bufSize int) *Receiver {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Receiver{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		records:  make(chan wire.Record, bufSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Connect opens the serial port and starts decoding lines.
func (r *Receiver) Connect() error {
	conn, err := Open(r.port, r.baudRate)
	if err != nil {
		return err
	}
	if err := r.Attach(conn); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// Attach starts decoding lines from an already open connection.
func (r *Receiver) Attach(conn io.ReadCloser) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connected {
		return fmt.Errorf("already connected")
	}
	if r.ctx.Err() != nil {
		return fmt.Errorf("receiver closed")
	}

	r.conn = conn
	r.connected = true

	go r.readRecords()

	return nil
}

// Close closes the connection and waits for the read loop to exit. The
// records channel is closed once the loop is done.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		return nil
	}

	r.cancel()

	var err error
	if r.conn != nil {
		if cErr := r.conn.Close(); cErr != nil {
			err = fmt.Errorf("failed to close serial port: %w", cErr)
		}
	}
	r.connected = false
	r.mu.Unlock()

	<-r.done
	return err
}

// Records returns the channel of decoded records.
func (r *Receiver) Records() <-chan wire.Record {
	return r.records
}

// IsConnected returns whether the receiver is currently attached.
func (r *Receiver) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// Stats returns line counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Received:  r.received.Load(),
		Malformed: r.malformed.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// readRecords reads lines from the connection and parses them into records.
func (r *Receiver) readRecords() {
	defer close(r.done)
	defer close(r.records)

	scanner := bufio.NewScanner(r.conn)
	for scanner.Scan() {
		if r.ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := wire.Parse(line)
		if err != nil {
			r.malformed.Add(1)
			log.Printf("Failed to parse line '%s': %v", line, err)
			continue
		}
		r.received.Add(1)

		// Send record to channel (non-blocking)
		select {
		case r.records <- rec:
		case <-r.ctx.Done():
			return
		default:
			r.dropped.Add(1)
			log.Printf("Records channel full, dropping record")
		}
	}

	if err := scanner.Err(); err != nil && r.ctx.Err() == nil {
		log.Printf("Error reading from serial port: %v", err)
	}
}
