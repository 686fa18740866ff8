// Package device defines the hardware capabilities consumed by the drivers,
// and the simulated peripherals that implement them on a hosted build.
//
// A capability invokes its completion callbacks from interrupt context. It
// never invokes them from inside the call that arms the operation, and never
// for an operation that was cancelled.
package device

import (
	"math"
	"time"
)

// TICK is the duration of one timer tick.
const TICK = time.Microsecond

// Ticks is a count of timer ticks.
type Ticks uint32

// MAX_WAIT is the longest duration a Ticks count holds.
const MAX_WAIT = time.Duration(math.MaxUint32) * TICK

// TicksOf converts a duration to ticks, truncating towards zero.
// Negative durations are zero ticks; overlong durations saturate.
func TicksOf(d time.Duration) Ticks {
	if d <= 0 {
		return 0
	}

	count := d / TICK
	if count > math.MaxUint32 {
		return math.MaxUint32
	}

	return Ticks(count)
}

// Duration converts ticks back to a duration.
func (t Ticks) Duration() time.Duration {
	return time.Duration(t) * TICK
}

// WriteCompleteFunc receives the count of characters written and the outcome.
type WriteCompleteFunc func(count int, st Status)

// ReadCompleteFunc receives the count of characters read and the outcome.
type ReadCompleteFunc func(count int, st Status)

// WaitCompleteFunc receives the outcome of a wait.
type WaitCompleteFunc func(st Status)

// CharacterDevice is a character I/O channel with one armed read and one
// armed write at most.
type CharacterDevice interface {
	// SetWriteCompleteCallback sets the single-slot write completion callback.
	SetWriteCompleteCallback(callback WriteCompleteFunc)
	// SetReadCompleteCallback sets the single-slot read completion callback.
	SetReadCompleteCallback(callback ReadCompleteFunc)

	// StartWrite arms a write of buf. False if the device refused.
	StartWrite(buf []byte) bool
	// CancelWrite stops the armed write and reports the count written.
	CancelWrite() (written int, ok bool)

	// StartRead arms a read into buf, terminated early by stop if not nil.
	// False if the device refused.
	StartRead(buf []byte, stop *byte) bool
	// CancelRead stops the armed read and reports the count read.
	CancelRead() (read int, ok bool)
}

// TimerDevice is a single one-shot countdown.
type TimerDevice interface {
	// SetWaitCompleteCallback sets the single-slot expiry callback.
	SetWaitCompleteCallback(callback WaitCompleteFunc)

	StartWait(count Ticks) bool
	SuspendWait() bool
	ResumeWait() bool
	CancelWait() bool
	RemainingWaitTime() Ticks
}
