// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package board

import (
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/ezrec/halrt/device"
	"github.com/ezrec/halrt/driver"
	"github.com/ezrec/halrt/internal"
	"github.com/ezrec/halrt/loop"
)

// Registry owns the event loop, the simulated peripherals, and the one
// driver of each peripheral. It is built once at start up and passed to
// the code that needs it.
type Registry struct {
	Config *Config

	loop         *loop.EventLoop
	timers       map[int]*device.Timer
	uarts        map[int]*device.Uart
	timerDrivers map[int]*driver.TimerDriver
	charDrivers  map[int]*driver.CharacterDriver
}

// NewRegistry builds every resource declared in the board description.
func NewRegistry(cfg *Config) (reg *Registry) {
	reg = &Registry{
		Config:       cfg,
		loop:         loop.NewEventLoop(),
		timers:       map[int]*device.Timer{},
		uarts:        map[int]*device.Uart{},
		timerDrivers: map[int]*driver.TimerDriver{},
		charDrivers:  map[int]*driver.CharacterDriver{},
	}

	for _, tc := range cfg.Timers {
		tm := device.NewTimer(timerName(tc.Id), tc.Bits)
		reg.timers[tc.Id] = tm
		reg.timerDrivers[tc.Id] = driver.NewTimerDriver(reg.loop, tm)
	}

	for _, uc := range cfg.Uarts {
		uart := device.NewUart(uartName(uc.Id))
		cd := driver.NewCharacterDriver(reg.loop, uart)
		cd.WriteQueueDepth = uc.WriteQueue
		cd.ReadQueueDepth = uc.ReadQueue
		reg.uarts[uc.Id] = uart
		reg.charDrivers[uc.Id] = cd
	}

	return
}

func timerName(id int) string {
	return fmt.Sprintf("TIM%d", id)
}

func uartName(id int) string {
	return fmt.Sprintf("UART%d", id)
}

// SetVerbose sets verbose logging on every resource.
func (reg *Registry) SetVerbose(verbose bool) {
	reg.loop.Verbose = verbose
	for id, tm := range reg.timers {
		tm.Verbose = verbose
		reg.timerDrivers[id].Verbose = verbose
	}
	for id, uart := range reg.uarts {
		uart.Verbose = verbose
		reg.charDrivers[id].Verbose = verbose
	}
}

// EventLoop returns the event loop.
func (reg *Registry) EventLoop() *loop.EventLoop {
	return reg.loop
}

// Timer returns the timer peripheral with the given id.
func (reg *Registry) Timer(id int) (tm *device.Timer, err error) {
	tm, ok := reg.timers[id]
	if !ok {
		err = ErrInvalidTimerId(id)
	}

	return
}

// Uart returns the UART peripheral with the given id.
func (reg *Registry) Uart(id int) (uart *device.Uart, err error) {
	uart, ok := reg.uarts[id]
	if !ok {
		err = ErrInvalidUartId(id)
	}

	return
}

// TimerDriver returns the driver of a timer.
func (reg *Registry) TimerDriver(id int) (td *driver.TimerDriver, err error) {
	td, ok := reg.timerDrivers[id]
	if !ok {
		err = ErrInvalidTimerId(id)
	}

	return
}

// CharacterDriver returns the driver of a UART.
func (reg *Registry) CharacterDriver(id int) (cd *driver.CharacterDriver, err error) {
	cd, ok := reg.charDrivers[id]
	if !ok {
		err = ErrInvalidUartId(id)
	}

	return
}

// LoggingUart returns the driver of the UART carrying the log, if any.
func (reg *Registry) LoggingUart() (cd *driver.CharacterDriver, ok bool) {
	cd, ok = reg.charDrivers[reg.Config.LoggingUart]
	return
}

// Resources returns the name and description of every peripheral, timers
// first, each in id order.
func (reg *Registry) Resources() iter.Seq2[string, string] {
	var timers iter.Seq2[string, string] = func(yield func(string, string) bool) {
		for _, id := range slices.Sorted(maps.Keys(reg.timers)) {
			tc, _ := reg.Config.Timer(id)
			if !yield(timerName(id), f("%d-bit timer, max count %d", tc.Bits, uint32(reg.timers[id].MaxCount))) {
				return
			}
		}
	}

	var uarts iter.Seq2[string, string] = func(yield func(string, string) bool) {
		for _, id := range slices.Sorted(maps.Keys(reg.uarts)) {
			uc, _ := reg.Config.Uart(id)
			desc := f("uart at %d baud", uc.Baud)
			if id == reg.Config.LoggingUart {
				desc = f("uart at %d baud, logging", uc.Baud)
			}
			if !yield(uartName(id), desc) {
				return
			}
		}
	}

	return internal.IterSeq2Concat(timers, uarts)
}
