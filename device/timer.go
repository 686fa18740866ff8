// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package device

import (
	"context"
	"sync"
	"time"

	"github.com/ezrec/halrt/irq"
	"github.com/ezrec/halrt/status"
)

const (
	TIMER_DEFAULT_BITS = 32 // Counter width of a general purpose timer.
	TIMER_MIN_BITS     = 1
	TIMER_MAX_BITS     = 32
)

// Timer is a simulated one-shot countdown timer. Time moves forward only
// through Advance, which Serve calls from the wall clock.
//
// Suspending the wait masks the expiry interrupt but keeps the counter
// running, so an expiry during suspension is delivered on resume.
type Timer struct {
	Verbose  bool // If set, enables verbose logging.
	Name     string
	MaxCount Ticks // Largest count accepted by StartWait.

	Line irq.Line

	mu         sync.Mutex
	callback   WaitCompleteFunc
	armed      bool
	suspended  bool
	programmed Ticks
	elapsed    Ticks

	// due is set from an expiry until its handler returns, or while a
	// countdown re-armed by the handler is already past due. overrun is the
	// time counted since the expiry.
	due     bool
	overrun Ticks
}

var _ TimerDevice = (*Timer)(nil)

// NewTimer creates a simulated timer with a counter of the given width.
func NewTimer(name string, bits int) (tm *Timer) {
	bits = max(TIMER_MIN_BITS, min(bits, TIMER_MAX_BITS))

	tm = &Timer{
		Name:     name,
		MaxCount: Ticks((uint64(1) << bits) - 1),
	}
	tm.Line.Name = name

	return
}

// SetWaitCompleteCallback sets the expiry callback.
func (tm *Timer) SetWaitCompleteCallback(callback WaitCompleteFunc) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.callback = callback
}

// StartWait arms the countdown, replacing any armed one.
func (tm *Timer) StartWait(count Ticks) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if count > tm.MaxCount {
		if tm.Verbose {
			logf("timer %v: %v", tm.Name, &ErrInvalidTimerCount{Count: count, MaxCount: tm.MaxCount})
		}
		return false
	}

	if tm.Verbose {
		logf("timer %v: start wait %d", tm.Name, uint32(count))
	}

	tm.armed = true
	tm.programmed = count
	tm.elapsed = 0

	// Re-armed after an expiry: the counter kept running meanwhile.
	if tm.due {
		tm.elapsed = min(tm.overrun, count)
		tm.overrun -= tm.elapsed
		tm.due = tm.overrun > 0
	}

	return true
}

// SuspendWait masks the expiry interrupt. Suspensions do not nest.
func (tm *Timer) SuspendWait() bool {
	tm.mu.Lock()
	suspended := tm.suspended
	tm.suspended = true
	tm.mu.Unlock()

	if suspended {
		return false
	}

	tm.Line.Mask()

	return true
}

// ResumeWait unmasks the expiry interrupt, delivering a latched expiry.
func (tm *Timer) ResumeWait() bool {
	tm.mu.Lock()
	suspended := tm.suspended
	tm.suspended = false
	tm.mu.Unlock()

	if !suspended {
		return false
	}

	tm.Line.Unmask()

	return true
}

// CancelWait disarms the countdown. It fails when nothing is armed,
// including when the countdown already expired and its interrupt is latched.
func (tm *Timer) CancelWait() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if !tm.armed {
		return false
	}

	if tm.Verbose {
		logf("timer %v: cancel wait, %d left", tm.Name, uint32(tm.programmed-tm.elapsed))
	}

	tm.armed = false
	tm.due = false
	tm.overrun = 0

	return true
}

// RemainingWaitTime returns the ticks left on the armed countdown.
func (tm *Timer) RemainingWaitTime() Ticks {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if !tm.armed {
		return 0
	}

	return tm.programmed - tm.elapsed
}

// Armed reports whether a countdown is running.
func (tm *Timer) Armed() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	return tm.armed
}

// Advance moves time forward, returning how many countdowns expired. Time
// left over after an expiry counts against the countdown re-armed by the
// expiry callback, even when the callback is latched by a suspended wait.
func (tm *Timer) Advance(ticks Ticks) (fired int) {
	for {
		tm.mu.Lock()
		if !tm.armed {
			if tm.due {
				tm.overrun += ticks
			}
			tm.mu.Unlock()
			return
		}

		left := tm.programmed - tm.elapsed
		if ticks < left {
			tm.elapsed += ticks
			tm.mu.Unlock()
			return
		}

		tm.elapsed = tm.programmed
		tm.armed = false
		tm.due = true
		tm.overrun += ticks - left
		ticks = 0
		callback := tm.callback
		tm.mu.Unlock()

		fired++
		if callback == nil {
			tm.expired()
			continue
		}

		tm.Line.Raise(func() {
			callback(status.Success)
			tm.expired()
		})
	}
}

// expired ends the expiry once its handler has run. Without a re-armed
// countdown the counter stops, and the overrun is dropped.
func (tm *Timer) expired() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if !tm.armed {
		tm.due = false
		tm.overrun = 0
	}
}

// Usleep busy waits, for peripheral bring-up before the event loop runs.
func (tm *Timer) Usleep(count Ticks) (err error) {
	if count > tm.MaxCount {
		err = &ErrInvalidTimerCount{Count: count, MaxCount: tm.MaxCount}
		return
	}

	if tm.Armed() {
		err = ErrUnsupported
		return
	}

	time.Sleep(count.Duration())

	return
}

// Serve advances the timer with the wall clock every period until ctx is
// done.
func (tm *Timer) Serve(ctx context.Context, period time.Duration) (err error) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := time.Now()
	var carry time.Duration
	for {
		select {
		case now := <-ticker.C:
			carry += now.Sub(last)
			last = now
			ticks := TicksOf(carry)
			carry -= ticks.Duration()
			tm.Advance(ticks)
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}
