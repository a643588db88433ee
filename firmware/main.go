//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/neurowall/pkg/adc"
	"github.com/itohio/neurowall/pkg/clock"
	"github.com/itohio/neurowall/pkg/guard"
	"github.com/itohio/neurowall/pkg/notch"
	"github.com/itohio/neurowall/pkg/scheduler"
	"github.com/itohio/neurowall/pkg/wire"
)

var uart = machine.UART0

func main() {
	// Configure ADC pin and set up ADC with highest resolution
	machine.InitADC()
	PIN_ADC.Configure(machine.PinConfig{Mode: machine.PinInput})

	channel := machine.ADC{Pin: PIN_ADC}
	channel.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	src := adc.NewCounts(func() uint32 {
		return uint32(channel.Get())
	}, ADC_SCALED_BITS, ADC_REFERENCE_MV/1000.0)

	loop, err := scheduler.New(scheduler.Options{
		Period:  time.Second / SAMPLE_RATE_HZ,
		Clock:   clock.NewSystem(),
		Source:  src,
		Guard:   guard.New(IMP_THRESHOLD_V, LOCKOUT, 0),
		Bank:    notch.Tuned(SAMPLE_RATE_HZ, NOTCH_Q, NOTCH_FREQUENCIES...),
		Emitter: wire.NewEmitter(uart),
	})
	if err != nil {
		for {
			println(err.Error())
			time.Sleep(time.Second)
		}
	}

	// Never returns; only a hardware reset stops the loop.
	loop.Run(context.Background())
}
