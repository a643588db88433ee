// Package link connects the acquisition stage to its serial transport: the
// sink the loop writes protocol lines to, and the host-side receiver that
// decodes them.
package link

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the firmware UART.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the records channel buffer.
	DefaultBufferSize = 100
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Open opens a serial port in 8N1 mode at the given baud rate.
func Open(port string, baudRate int) (io.ReadWriteCloser, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	conn, err := serial.Open(port, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}

	return conn, nil
}
