// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package driver

import (
	"slices"
	"time"

	"github.com/ezrec/halrt/device"
	"github.com/ezrec/halrt/status"
)

// Handle identifies a wait for cancellation. Handles are never reused.
type Handle uint32

// WaitCallback receives the outcome of a wait.
type WaitCallback func(st status.Status)

// waitOp is one logical timer. ticks is relative to the expiry of the
// previous entry; for the head, the device holds the live remaining time.
type waitOp struct {
	handle   Handle
	ticks    device.Ticks
	callback WaitCallback
}

// TimerDriver multiplexes any number of waits onto one timer device using a
// delta queue. The queue is shared with the expiry interrupt and is only
// touched from normal context between SuspendWait and ResumeWait.
type TimerDriver struct {
	Verbose bool // If set, enables verbose logging.

	loop   EventLoop
	device device.TimerDevice

	waits      []waitOp
	nextHandle Handle
}

// Timer is the caller's reference to a submitted wait.
type Timer struct {
	owner  *TimerDriver
	handle Handle
}

// NewTimerDriver binds a driver to the device's expiry callback.
func NewTimerDriver(el EventLoop, dev device.TimerDevice) (td *TimerDriver) {
	td = &TimerDriver{
		loop:       el,
		device:     dev,
		nextHandle: 1,
	}

	dev.SetWaitCompleteCallback(td.completeWait)

	return
}

// Handle returns the handle of the wait.
func (timer Timer) Handle() Handle {
	return timer.handle
}

// CancelWait cancels the wait.
func (timer Timer) CancelWait() (err error) {
	if timer.owner == nil {
		err = cancelFailure("wait", f("no such wait"))
		return
	}

	return timer.owner.CancelWait(timer.handle)
}

// AsyncWait starts a wait of duration d, truncated to device ticks. Waits
// longer than device.MAX_WAIT are refused. The callback, which may be nil,
// runs from the event loop when the wait expires or is cancelled.
func (td *TimerDriver) AsyncWait(d time.Duration, callback WaitCallback) (timer Timer, err error) {
	if d > device.MAX_WAIT {
		err = startFailure("wait", f("wait too long"))
		return
	}

	op := waitOp{
		handle:   td.nextHandle,
		ticks:    device.TicksOf(d),
		callback: callback,
	}
	td.nextHandle++

	if !td.device.SuspendWait() {
		err = startFailure("wait", f("could not suspend wait on device"))
		return
	}

	err = td.insert(op)

	td.device.ResumeWait()

	if err != nil {
		return
	}

	timer = Timer{owner: td, handle: op.handle}

	return
}

// insert places op in the delta queue, rescheduling the device when op
// expires before the running wait.
func (td *TimerDriver) insert(op waitOp) (err error) {
	if len(td.waits) == 0 {
		if !td.device.StartWait(op.ticks) {
			err = startFailure("wait", f("device refused to start wait"))
			return
		}
		td.waits = append(td.waits, op)
		if td.Verbose {
			logf("timer: wait %d started, %d ticks", op.handle, uint32(op.ticks))
		}
		return
	}

	remaining := td.device.RemainingWaitTime()

	if op.ticks < remaining {
		// The running wait is longer, push it back behind the new one.
		if !td.device.CancelWait() {
			err = startFailure("wait", f("could not reschedule running wait"))
			return
		}
		if !td.device.StartWait(op.ticks) {
			td.device.StartWait(remaining)
			err = startFailure("wait", f("device refused to start wait"))
			return
		}
		td.waits[0].ticks = remaining - op.ticks
		td.waits = slices.Insert(td.waits, 0, op)
		if td.Verbose {
			logf("timer: wait %d preempts wait %d, %d ticks", op.handle, td.waits[1].handle, uint32(op.ticks))
		}
		return
	}

	ticks := op.ticks - remaining
	index := 1
	for index < len(td.waits) && ticks >= td.waits[index].ticks {
		ticks -= td.waits[index].ticks
		index++
	}

	op.ticks = ticks
	td.waits = slices.Insert(td.waits, index, op)
	if index+1 < len(td.waits) {
		td.waits[index+1].ticks -= ticks
	}

	if td.Verbose {
		logf("timer: wait %d queued at %d, %d ticks after previous", op.handle, index, uint32(ticks))
	}

	return
}

// deliver schedules the callback of op on the event loop.
func (td *TimerDriver) deliver(op waitOp, st status.Status) {
	if op.callback == nil {
		return
	}

	callback := op.callback
	td.loop.PushEvent(func() { callback(st) })
}

// armHead starts the device for the head, extra ticks later than its stored
// delta. Waits the device refuses complete with FAILURE.
func (td *TimerDriver) armHead(extra device.Ticks) {
	for len(td.waits) > 0 {
		if td.device.StartWait(td.waits[0].ticks + extra) {
			return
		}

		failed := td.waits[0]
		td.waits = slices.Delete(td.waits, 0, 1)
		extra += failed.ticks
		if td.Verbose {
			logf("timer: wait %d refused by device", failed.handle)
		}
		td.deliver(failed, status.New(status.FAILURE))
	}
}

// completeWait runs in interrupt context.
func (td *TimerDriver) completeWait(st status.Status) {
	if len(td.waits) == 0 {
		if td.Verbose {
			logf("timer: spurious wait completion")
		}
		return
	}

	op := td.waits[0]
	td.waits = slices.Delete(td.waits, 0, 1)
	if td.Verbose {
		logf("timer: wait %d done, %v", op.handle, st)
	}
	td.deliver(op, st)

	td.armHead(0)
}

// CancelWait cancels the wait with the given handle. Its callback receives
// an ABORTED status. The device is always resumed before returning, on
// failure too.
func (td *TimerDriver) CancelWait(handle Handle) (err error) {
	if !td.device.SuspendWait() {
		err = cancelFailure("wait", f("could not suspend wait on device"))
		return
	}

	err = td.remove(handle)

	td.device.ResumeWait()

	return
}

func (td *TimerDriver) remove(handle Handle) (err error) {
	if len(td.waits) == 0 {
		err = cancelFailure("wait", f("nothing to cancel"))
		return
	}

	if td.waits[0].handle == handle {
		remaining := td.device.RemainingWaitTime()
		if !td.device.CancelWait() {
			err = cancelFailure("wait", f("wait already expired"))
			return
		}

		op := td.waits[0]
		td.waits = slices.Delete(td.waits, 0, 1)
		if td.Verbose {
			logf("timer: wait %d cancelled, %d ticks left", op.handle, uint32(remaining))
		}
		td.deliver(op, status.Aborted)

		// The followers were relative to the cancelled expiry.
		td.armHead(remaining)
		return
	}

	index := slices.IndexFunc(td.waits[1:], func(op waitOp) bool { return op.handle == handle })
	if index < 0 {
		err = cancelFailure("wait", f("wait already executed or unknown"))
		return
	}
	index++

	op := td.waits[index]
	td.waits = slices.Delete(td.waits, index, index+1)
	if index < len(td.waits) {
		td.waits[index].ticks += op.ticks
	}

	if td.Verbose {
		logf("timer: wait %d cancelled before start", op.handle)
	}
	td.deliver(op, status.Aborted)

	return
}

// Pending returns the number of queued waits.
func (td *TimerDriver) Pending() (count int) {
	// A refused suspend means the caller already holds it.
	if td.device.SuspendWait() {
		defer td.device.ResumeWait()
	}

	return len(td.waits)
}

// Remaining returns the time left before the wait with the given handle
// expires: the device's remaining time for the head, plus the deltas of
// every entry up to the wait.
func (td *TimerDriver) Remaining(handle Handle) (ticks device.Ticks, ok bool) {
	if td.device.SuspendWait() {
		defer td.device.ResumeWait()
	}

	for index, op := range td.waits {
		if index == 0 {
			ticks = td.device.RemainingWaitTime()
		} else {
			ticks += op.ticks
		}
		if op.handle == handle {
			ok = true
			return
		}
	}

	ticks = 0

	return
}
