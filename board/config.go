// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package board describes the peripherals of a board, and owns the single
// instance of each driver built on them.
//
// A board description is a Starlark file:
//
//	uart(1, baud=115200)
//	uart(2, read_queue=4)
//	timer(2, bits=32)
//	logging_uart = 1
package board

import (
	"errors"
	"slices"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/ezrec/halrt/device"
)

const (
	UART_DEFAULT_BAUD        = 115200
	UART_DEFAULT_WRITE_QUEUE = 0 // Unlimited.
	UART_DEFAULT_READ_QUEUE  = 1
	NO_LOGGING_UART          = -1
)

// DEFAULT_BOARD is used when no board description is given.
const DEFAULT_BOARD = `
uart(1)
uart(2, read_queue=1)
timer(2)
logging_uart = 1
`

// UartConfig is one declared UART.
type UartConfig struct {
	Id         int
	Baud       int
	WriteQueue int // Write queue depth of its driver.
	ReadQueue  int // Read queue depth of its driver.
}

// TimerConfig is one declared timer.
type TimerConfig struct {
	Id   int
	Bits int // Counter width.
}

// Config is a loaded board description.
type Config struct {
	Uarts       []UartConfig
	Timers      []TimerConfig
	LoggingUart int // NO_LOGGING_UART if unset.
}

// Uart returns the configuration of a UART.
func (cfg *Config) Uart(id int) (uc UartConfig, ok bool) {
	index := slices.IndexFunc(cfg.Uarts, func(uc UartConfig) bool { return uc.Id == id })
	if index < 0 {
		return
	}

	return cfg.Uarts[index], true
}

// Timer returns the configuration of a timer.
func (cfg *Config) Timer(id int) (tc TimerConfig, ok bool) {
	index := slices.IndexFunc(cfg.Timers, func(tc TimerConfig) bool { return tc.Id == id })
	if index < 0 {
		return
	}

	return cfg.Timers[index], true
}

// declareUart is the uart() builtin.
func (cfg *Config) declareUart(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (value starlark.Value, err error) {
	uc := UartConfig{
		Baud:       UART_DEFAULT_BAUD,
		WriteQueue: UART_DEFAULT_WRITE_QUEUE,
		ReadQueue:  UART_DEFAULT_READ_QUEUE,
	}

	err = starlark.UnpackArgs(fn.Name(), args, kwargs,
		"id", &uc.Id,
		"baud?", &uc.Baud,
		"write_queue?", &uc.WriteQueue,
		"read_queue?", &uc.ReadQueue)
	if err != nil {
		return
	}

	switch {
	case uc.Id < 0:
		err = &ErrConfigValue{Key: "uart id", Value: uc.Id}
	case uc.Baud <= 0:
		err = &ErrConfigValue{Key: "baud", Value: uc.Baud}
	case uc.WriteQueue < 0:
		err = &ErrConfigValue{Key: "write_queue", Value: uc.WriteQueue}
	case uc.ReadQueue < 0:
		err = &ErrConfigValue{Key: "read_queue", Value: uc.ReadQueue}
	}
	if err != nil {
		return
	}

	if _, found := cfg.Uart(uc.Id); found {
		err = &ErrDuplicateId{Kind: "uart", Id: uc.Id}
		return
	}

	cfg.Uarts = append(cfg.Uarts, uc)
	value = starlark.None

	return
}

// declareTimer is the timer() builtin.
func (cfg *Config) declareTimer(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (value starlark.Value, err error) {
	tc := TimerConfig{
		Bits: device.TIMER_DEFAULT_BITS,
	}

	err = starlark.UnpackArgs(fn.Name(), args, kwargs,
		"id", &tc.Id,
		"bits?", &tc.Bits)
	if err != nil {
		return
	}

	switch {
	case tc.Id < 0:
		err = &ErrConfigValue{Key: "timer id", Value: tc.Id}
	case tc.Bits < device.TIMER_MIN_BITS || tc.Bits > device.TIMER_MAX_BITS:
		err = &ErrConfigValue{Key: "bits", Value: tc.Bits}
	}
	if err != nil {
		return
	}

	if _, found := cfg.Timer(tc.Id); found {
		err = &ErrDuplicateId{Kind: "timer", Id: tc.Id}
		return
	}

	cfg.Timers = append(cfg.Timers, tc)
	value = starlark.None

	return
}

// Load evaluates a board description. src may be a string, a []byte or an
// io.Reader; name is used in error messages.
func Load(name string, src any) (cfg *Config, err error) {
	defer func() {
		if err != nil {
			cfg = nil
			err = &ErrLoad{Name: name, Err: err}
		}
	}()

	cfg = &Config{
		LoggingUart: NO_LOGGING_UART,
	}

	thread := starlark.Thread{Name: name}
	opts := syntax.FileOptions{TopLevelControl: true}
	pred := starlark.StringDict{
		"uart":  starlark.NewBuiltin("uart", cfg.declareUart),
		"timer": starlark.NewBuiltin("timer", cfg.declareTimer),
	}

	globals, err := starlark.ExecFileOptions(&opts, &thread, name, src, pred)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) && evalErr.Unwrap() != nil {
			// Report our own errors, not the starlark backtrace.
			err = evalErr.Unwrap()
		}
		return
	}

	logging, ok := globals["logging_uart"]
	if !ok {
		return
	}

	id, err := starlark.AsInt32(logging)
	if err != nil {
		return
	}

	if _, found := cfg.Uart(id); !found {
		err = ErrLoggingUart
		return
	}

	cfg.LoggingUart = id

	return
}
