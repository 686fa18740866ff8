// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package device

import (
	"context"
	"io"
	"slices"
	"sync"

	"github.com/ezrec/halrt/irq"
	"github.com/ezrec/halrt/status"
)

// UART_CHUNK is the largest transfer moved by one Serve step.
const UART_CHUNK = 64

// Uart is a simulated UART. Transmitted characters go to Output, received
// characters are fed with Receive (or read from Input by Serve). Characters
// received while no read is armed wait in Rx; once Rx is full they are
// dropped and counted in Overruns.
type Uart struct {
	Verbose bool // If set, enables verbose logging.
	Name    string

	Input  io.Reader
	Output io.Writer

	Rx       Fifo
	Overruns int

	TxLine irq.Line
	RxLine irq.Line

	mu            sync.Mutex
	writeComplete WriteCompleteFunc
	readComplete  ReadCompleteFunc

	shift    sync.Mutex // Serializes shiftOut.
	txArmed  bool
	txBuf    []byte
	txCount  int
	txSerial int // Counts armed writes.

	rxArmed bool
	rxBuf   []byte
	rxCount int
	rxStop  byte
	rxUntil bool

	txReady chan struct{}
	rxReady chan struct{}
}

var _ CharacterDevice = (*Uart)(nil)

// NewUart creates a simulated UART.
func NewUart(name string) (uart *Uart) {
	uart = &Uart{
		Name:    name,
		txReady: make(chan struct{}, 1),
		rxReady: make(chan struct{}, 1),
	}
	uart.TxLine.Name = name + " tx"
	uart.RxLine.Name = name + " rx"
	uart.Rx.Reset()

	return
}

func notify(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// SetWriteCompleteCallback sets the write completion callback.
func (uart *Uart) SetWriteCompleteCallback(callback WriteCompleteFunc) {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	uart.writeComplete = callback
}

// SetReadCompleteCallback sets the read completion callback.
func (uart *Uart) SetReadCompleteCallback(callback ReadCompleteFunc) {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	uart.readComplete = callback
}

// StartWrite arms a write. A nil buffer or an armed write is refused.
func (uart *Uart) StartWrite(buf []byte) bool {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	if buf == nil || uart.txArmed {
		return false
	}

	if uart.Verbose {
		logf("uart %v: start write %d", uart.Name, len(buf))
	}

	uart.txArmed = true
	uart.txBuf = buf
	uart.txCount = 0
	uart.txSerial++
	notify(uart.txReady)

	return true
}

// CancelWrite stops the armed write.
func (uart *Uart) CancelWrite() (written int, ok bool) {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	if !uart.txArmed {
		return
	}

	if uart.Verbose {
		logf("uart %v: cancel write at %d", uart.Name, uart.txCount)
	}

	uart.txArmed = false
	uart.txBuf = nil
	written = uart.txCount
	ok = true

	return
}

// Writing reports whether a write is armed, and its progress.
func (uart *Uart) Writing() (armed bool, written int, size int) {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	return uart.txArmed, uart.txCount, len(uart.txBuf)
}

// Transmit shifts out up to n characters of the armed write, completing it
// when the whole buffer is sent. A failing Output completes the write with
// a HW_PROTOCOL_ERROR. Output is written without holding the UART, so a
// slow Output never blocks arming or cancelling; a write cancelled meanwhile
// is left cancelled.
func (uart *Uart) Transmit(n int) (sent int) {
	sent, done := uart.shiftOut(n)
	if done != nil {
		uart.TxLine.Raise(done)
	}

	return
}

// shiftOut moves one chunk to Output, returning the completion handler
// when the write ended.
func (uart *Uart) shiftOut(n int) (sent int, done irq.Handler) {
	uart.shift.Lock()
	defer uart.shift.Unlock()

	uart.mu.Lock()
	if !uart.txArmed {
		uart.mu.Unlock()
		return
	}

	end := min(uart.txCount+n, len(uart.txBuf))
	chunk := slices.Clone(uart.txBuf[uart.txCount:end])
	serial := uart.txSerial
	output := uart.Output
	uart.mu.Unlock()

	st := status.Success
	if output != nil && len(chunk) > 0 {
		var err error
		sent, err = output.Write(chunk)
		if err != nil {
			if uart.Verbose {
				logf("uart %v: output: %v", uart.Name, err)
			}
			st = status.New(status.HW_PROTOCOL_ERROR)
		}
	} else {
		sent = len(chunk)
	}

	uart.mu.Lock()
	defer uart.mu.Unlock()

	if !uart.txArmed || uart.txSerial != serial {
		return
	}

	uart.txCount += sent

	if uart.txCount < len(uart.txBuf) && !st.IsError() {
		return
	}

	count := uart.txCount
	callback := uart.writeComplete
	uart.txArmed = false
	uart.txBuf = nil

	if callback != nil {
		done = func() { callback(count, st) }
	}

	return
}

// StartRead arms a read. A nil buffer or an armed read is refused.
func (uart *Uart) StartRead(buf []byte, stop *byte) bool {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	if buf == nil || uart.rxArmed {
		return false
	}

	if uart.Verbose {
		logf("uart %v: start read %d", uart.Name, len(buf))
	}

	uart.rxArmed = true
	uart.rxBuf = buf
	uart.rxCount = 0
	uart.rxUntil = stop != nil
	if stop != nil {
		uart.rxStop = *stop
	}
	notify(uart.rxReady)

	return true
}

// CancelRead stops the armed read.
func (uart *Uart) CancelRead() (read int, ok bool) {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	if !uart.rxArmed {
		return
	}

	if uart.Verbose {
		logf("uart %v: cancel read at %d", uart.Name, uart.rxCount)
	}

	uart.rxArmed = false
	uart.rxBuf = nil
	read = uart.rxCount
	ok = true

	return
}

// Reading reports whether a read is armed, and its progress.
func (uart *Uart) Reading() (armed bool, read int, size int) {
	uart.mu.Lock()
	defer uart.mu.Unlock()

	return uart.rxArmed, uart.rxCount, len(uart.rxBuf)
}

// Receive latches incoming characters into the receive FIFO, then services
// the armed read.
func (uart *Uart) Receive(data ...byte) {
	uart.mu.Lock()
	for _, value := range data {
		if !uart.Rx.Put(value) {
			uart.Overruns++
		}
	}
	uart.mu.Unlock()

	uart.Service()
}

// fill moves characters from the FIFO to the armed read. done is set when
// the read terminated, with the read disarmed.
func (uart *Uart) fill() (count int, st Status, done bool) {
	if !uart.rxArmed {
		return
	}

	for uart.rxCount < len(uart.rxBuf) {
		value, ok := uart.Rx.Get()
		if !ok {
			break
		}
		uart.rxBuf[uart.rxCount] = value
		uart.rxCount++
		if uart.rxUntil && value == uart.rxStop {
			done = true
			break
		}
	}

	if !done && uart.rxCount == len(uart.rxBuf) {
		done = true
		if uart.rxUntil {
			st = status.New(status.BUFFER_OVERFLOW)
		}
	}

	if done {
		count = uart.rxCount
		uart.rxArmed = false
		uart.rxBuf = nil
	}

	return
}

// Service completes the armed read from characters already held in the FIFO.
// Reads re-armed by the completion callback are serviced as well.
func (uart *Uart) Service() {
	for {
		uart.mu.Lock()
		count, st, done := uart.fill()
		callback := uart.readComplete
		uart.mu.Unlock()

		if !done {
			return
		}

		if uart.Verbose {
			logf("uart %v: read %d %v", uart.Name, count, st)
		}

		if callback != nil {
			uart.RxLine.Raise(func() { callback(count, st) })
		}
	}
}

// FaultWrite terminates the armed write with a hardware reported outcome.
func (uart *Uart) FaultWrite(kind status.ErrorKind) bool {
	uart.mu.Lock()
	if !uart.txArmed {
		uart.mu.Unlock()
		return false
	}
	count := uart.txCount
	callback := uart.writeComplete
	uart.txArmed = false
	uart.txBuf = nil
	uart.mu.Unlock()

	if callback != nil {
		uart.TxLine.Raise(func() { callback(count, status.New(kind)) })
	}

	return true
}

// FaultRead terminates the armed read with a hardware reported outcome.
func (uart *Uart) FaultRead(kind status.ErrorKind) bool {
	uart.mu.Lock()
	if !uart.rxArmed {
		uart.mu.Unlock()
		return false
	}
	count := uart.rxCount
	callback := uart.readComplete
	uart.rxArmed = false
	uart.rxBuf = nil
	uart.mu.Unlock()

	if callback != nil {
		uart.RxLine.Raise(func() { callback(count, status.New(kind)) })
	}

	return true
}

// Serve moves characters between the armed operations and Input/Output
// until ctx is done. The Input reader goroutine exits at the first read
// error, as a blocked Read cannot be interrupted.
func (uart *Uart) Serve(ctx context.Context) (err error) {
	if uart.Input != nil {
		go func() {
			var chunk [UART_CHUNK]byte
			for {
				n, err := uart.Input.Read(chunk[:])
				if n > 0 {
					uart.Receive(chunk[:n]...)
				}
				if err != nil {
					if uart.Verbose && err != io.EOF {
						logf("uart %v: input: %v", uart.Name, err)
					}
					return
				}
				if ctx.Err() != nil {
					return
				}
			}
		}()
	}

	for {
		// Pick up work armed before Serve started, or re-armed in a callback.
		for {
			armed, _, _ := uart.Writing()
			if !armed {
				break
			}
			uart.Transmit(UART_CHUNK)
		}
		uart.Service()

		select {
		case <-uart.txReady:
		case <-uart.rxReady:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}
