//go:build tinygo

package main

import (
	"machine"
	"time"
)

const (
	// Sampling configuration
	SAMPLE_RATE_HZ = 250 // Fixed tick rate (4ms period)

	// Impedance guard
	IMP_THRESHOLD_V = 2.5                   // Volts, sudden spike = probe injection
	LOCKOUT         = 50 * time.Millisecond // Signal lockout after anomaly

	// Notch bank tuning (Hz), cascade order
	NOTCH_Q = 30

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // Hardware resolution in bits
	ADC_SCALED_BITS  = 16   // machine.ADC.Get scales readings to 16 bits

	// ADC pin
	PIN_ADC = machine.A1

	// Serial configuration
	// Line format: "timestamp_ms,filtered_value\n", e.g. "4294967295,-3.3000\n" = ~20 bytes max
	// 250 lines/sec * 20 bytes/line = 5,000 bytes/sec
	// UART 8N1: 10 bits/byte = 50,000 baud minimum
	// 115200 provides ~2.3x headroom
	UART_BAUD_RATE = 115200
)

// SSVEP adversarial injection targets
var NOTCH_FREQUENCIES = []float64{8.57, 10.9, 15.0, 20.0}
