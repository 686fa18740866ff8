package driver

import (
	"math"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ezrec/halrt/device"
	"github.com/ezrec/halrt/loop"
	"github.com/ezrec/halrt/status"
)

func newTimerTest() (el *loop.EventLoop, dev *fakeTimerDevice, drv *TimerDriver, rec *record) {
	el = loop.NewEventLoop()
	dev = &fakeTimerDevice{}
	drv = NewTimerDriver(el, dev)
	rec = &record{}
	return
}

func TestTimerDriver_Basic(t *testing.T) {
	assert := assert.New(t)

	el, dev, drv, rec := newTimerTest()

	timer, err := drv.AsyncWait(5*time.Second, rec.wait(0))
	assert.NoError(err)
	assert.Equal(Handle(1), timer.Handle())
	assert.Equal([]string{"suspendWait", "startWait(5000000)", "resumeWait"}, dev.calls)
	dev.calls = nil

	dev.mockWaitFinished(status.Success)
	assert.Empty(dev.armCalls())
	assert.Equal(0, drv.Pending())

	el.RunPending()
	assert.Equal([]int{0}, rec.ids)
	assert.Equal([]status.Status{status.Success}, rec.statuses)
}

func TestTimerDriver_Chain(t *testing.T) {
	assert := assert.New(t)

	el, dev, drv, rec := newTimerTest()
	waits := []time.Duration{30 * time.Microsecond, 200 * time.Millisecond, 5 * time.Second, 16 * time.Minute}

	for n, wait := range waits {
		_, err := drv.AsyncWait(wait, rec.wait(n))
		assert.NoError(err)
	}
	assert.Equal([]string{startWait(30)}, dev.armCalls())
	assert.Equal(4, drv.Pending())

	for n := 1; n < len(waits); n++ {
		dev.mockWaitFinished(status.Success)
		assert.Equal([]string{startWait(device.TicksOf(waits[n] - waits[n-1]))}, dev.armCalls())
	}
	dev.mockWaitFinished(status.Success)
	assert.Empty(dev.armCalls())

	el.RunPending()
	assert.Equal([]int{0, 1, 2, 3}, rec.ids)
	assert.True(rec.only(status.Success))
}

func TestTimerDriver_ChainUnordered(t *testing.T) {
	assert := assert.New(t)

	el, dev, drv, rec := newTimerTest()
	wait1 := 200 * time.Millisecond
	wait2 := 30 * time.Microsecond
	wait3 := 16 * time.Minute
	wait4 := 5 * time.Second

	_, err := drv.AsyncWait(wait1, rec.wait(0))
	assert.NoError(err)
	assert.Equal([]string{startWait(200_000)}, dev.armCalls())

	// A shorter wait reschedules the running one.
	_, err = drv.AsyncWait(wait2, rec.wait(1))
	assert.NoError(err)
	assert.Equal([]string{"cancelWait", startWait(30)}, dev.armCalls())

	_, err = drv.AsyncWait(wait3, rec.wait(2))
	assert.NoError(err)
	_, err = drv.AsyncWait(wait4, rec.wait(3))
	assert.NoError(err)
	assert.Empty(dev.armCalls())

	dev.mockWaitFinished(status.Success)
	assert.Equal([]string{startWait(device.TicksOf(wait1 - wait2))}, dev.armCalls())
	dev.mockWaitFinished(status.Success)
	assert.Equal([]string{startWait(device.TicksOf(wait4 - wait1))}, dev.armCalls())
	dev.mockWaitFinished(status.Success)
	assert.Equal([]string{startWait(device.TicksOf(wait3 - wait4))}, dev.armCalls())
	dev.mockWaitFinished(status.Success)
	assert.Empty(dev.armCalls())

	el.RunPending()
	assert.Equal([]int{1, 0, 3, 2}, rec.ids)
	assert.True(rec.only(status.Success))
}

func TestTimerDriver_ElapsedHead(t *testing.T) {
	assert := assert.New(t)

	_, dev, drv, rec := newTimerTest()

	_, err := drv.AsyncWait(100*time.Microsecond, rec.wait(0))
	assert.NoError(err)
	dev.elapsed = 60

	// 50µs from now is after the head's 40µs left.
	second, err := drv.AsyncWait(50*time.Microsecond, rec.wait(1))
	assert.NoError(err)
	assert.Equal([]string{startWait(100)}, dev.armCalls())

	left, ok := drv.Remaining(second.Handle())
	assert.True(ok)
	assert.Equal(device.Ticks(50), left)

	// 20µs from now preempts the head.
	third, err := drv.AsyncWait(20*time.Microsecond, rec.wait(2))
	assert.NoError(err)
	assert.Equal([]string{"cancelWait", startWait(20)}, dev.armCalls())

	left, ok = drv.Remaining(third.Handle())
	assert.True(ok)
	assert.Equal(device.Ticks(20), left)
	left, ok = drv.Remaining(second.Handle())
	assert.True(ok)
	assert.Equal(device.Ticks(50), left)

	dev.mockWaitFinished(status.Success)
	assert.Equal([]string{startWait(20)}, dev.armCalls())
	dev.mockWaitFinished(status.Success)
	assert.Equal([]string{startWait(10)}, dev.armCalls())
}

func TestTimerDriver_Cancel(t *testing.T) {
	assert := assert.New(t)

	el, dev, drv, rec := newTimerTest()
	waits := []time.Duration{30 * time.Microsecond, 200 * time.Millisecond, 5 * time.Second}

	_, err := drv.AsyncWait(waits[0], rec.wait(0))
	assert.NoError(err)
	timer, err := drv.AsyncWait(waits[1], rec.wait(1))
	assert.NoError(err)
	_, err = drv.AsyncWait(waits[2], rec.wait(2))
	assert.NoError(err)
	dev.armCalls()

	// Not started yet, so the device is left alone.
	assert.NoError(timer.CancelWait())
	assert.Empty(dev.armCalls())
	assert.False(dev.suspended)
	el.RunPending()
	assert.Equal([]int{1}, rec.ids)
	assert.Equal([]status.Status{status.Aborted}, rec.statuses)

	// The cancelled delta folds into the follower.
	dev.mockWaitFinished(status.Success)
	assert.Equal([]string{startWait(device.TicksOf(waits[2] - waits[0]))}, dev.armCalls())
	dev.mockWaitFinished(status.Success)

	el.RunPending()
	assert.Equal([]int{1, 0, 2}, rec.ids)
	assert.Equal([]status.Status{status.Aborted, status.Success, status.Success}, rec.statuses)
}

func TestTimerDriver_CancelTail(t *testing.T) {
	assert := assert.New(t)

	el, dev, drv, rec := newTimerTest()

	_, err := drv.AsyncWait(time.Millisecond, rec.wait(0))
	assert.NoError(err)
	tail, err := drv.AsyncWait(2*time.Millisecond, rec.wait(1))
	assert.NoError(err)

	assert.NoError(tail.CancelWait())
	assert.Equal(1, drv.Pending())
	dev.armCalls()

	dev.mockWaitFinished(status.Success)
	assert.Empty(dev.armCalls())

	el.RunPending()
	assert.Equal([]int{1, 0}, rec.ids)
}

func TestTimerDriver_CancelExecd(t *testing.T) {
	assert := assert.New(t)

	el, dev, drv, rec := newTimerTest()

	timer, err := drv.AsyncWait(30*time.Microsecond, rec.wait(0))
	assert.NoError(err)

	dev.mockWaitFinished(status.Success)
	err = timer.CancelWait()
	assert.ErrorIs(err, ErrCancelAsyncOpFailure)
	assert.False(dev.suspended)

	// Stale handle with other waits still queued.
	_, err = drv.AsyncWait(time.Millisecond, rec.wait(1))
	assert.NoError(err)
	_, err = drv.AsyncWait(2*time.Millisecond, rec.wait(2))
	assert.NoError(err)
	assert.ErrorIs(timer.CancelWait(), ErrCancelAsyncOpFailure)
	assert.False(dev.suspended)

	el.RunPending()
	assert.Equal([]int{0}, rec.ids)
	assert.Equal([]status.Status{status.Success}, rec.statuses)
}

func TestTimerDriver_CancelRunning(t *testing.T) {
	assert := assert.New(t)

	el, dev, drv, rec := newTimerTest()
	wait1 := 30 * time.Microsecond
	wait2 := 42 * time.Second

	timer, err := drv.AsyncWait(wait1, rec.wait(0))
	assert.NoError(err)
	_, err = drv.AsyncWait(wait2, rec.wait(1))
	assert.NoError(err)
	dev.armCalls()

	assert.NoError(timer.CancelWait())
	assert.Equal([]string{"cancelWait", startWait(device.TicksOf(wait2))}, dev.armCalls())

	dev.mockWaitFinished(status.Success)

	el.RunPending()
	assert.Equal([]int{0, 1}, rec.ids)
	assert.Equal([]status.Status{status.Aborted, status.Success}, rec.statuses)
}

func TestTimerDriver_CancelRunningElapsed(t *testing.T) {
	assert := assert.New(t)

	_, dev, drv, rec := newTimerTest()

	timer, err := drv.AsyncWait(100*time.Microsecond, rec.wait(0))
	assert.NoError(err)
	_, err = drv.AsyncWait(250*time.Microsecond, rec.wait(1))
	assert.NoError(err)
	dev.armCalls()

	// 70µs in, the follower has 180µs left.
	dev.elapsed = 70
	assert.NoError(timer.CancelWait())
	assert.Equal([]string{"cancelWait", startWait(180)}, dev.armCalls())
}

func TestTimerDriver_CancelTooLate(t *testing.T) {
	assert := assert.New(t)

	el, dev, drv, rec := newTimerTest()

	timer, err := drv.AsyncWait(30*time.Microsecond, rec.wait(0))
	assert.NoError(err)

	dev.refuseCancel = true
	assert.ErrorIs(timer.CancelWait(), ErrCancelAsyncOpFailure)
	assert.False(dev.suspended)
	assert.Equal(1, drv.Pending())

	dev.mockWaitFinished(status.Success)
	el.RunPending()
	assert.Equal([]status.Status{status.Success}, rec.statuses)
}

func TestTimerDriver_CancelEmpty(t *testing.T) {
	assert := assert.New(t)

	_, dev, drv, _ := newTimerTest()

	assert.ErrorIs(drv.CancelWait(7), ErrCancelAsyncOpFailure)
	assert.Equal([]string{"suspendWait", "resumeWait"}, dev.calls)

	var zero Timer
	assert.ErrorIs(zero.CancelWait(), ErrCancelAsyncOpFailure)
}

func TestTimerDriver_SuspendRefused(t *testing.T) {
	assert := assert.New(t)

	_, dev, drv, rec := newTimerTest()
	dev.refuseSuspend = true

	_, err := drv.AsyncWait(time.Millisecond, rec.wait(0))
	assert.ErrorIs(err, ErrStartAsyncOpFailure)
	assert.ErrorIs(drv.CancelWait(1), ErrCancelAsyncOpFailure)
	assert.Empty(dev.armCalls())
}

func TestTimerDriver_StartRefused(t *testing.T) {
	assert := assert.New(t)

	_, dev, drv, rec := newTimerTest()
	dev.refuseStart = true

	_, err := drv.AsyncWait(time.Millisecond, rec.wait(0))
	assert.ErrorIs(err, ErrStartAsyncOpFailure)
	assert.False(dev.suspended)
	assert.Equal(0, drv.Pending())

	// Handles are not reused after a failure.
	dev.refuseStart = false
	timer, err := drv.AsyncWait(time.Millisecond, rec.wait(1))
	assert.NoError(err)
	assert.Equal(Handle(2), timer.Handle())
}

func TestTimerDriver_RearmRefused(t *testing.T) {
	assert := assert.New(t)

	el, dev, drv, rec := newTimerTest()

	for n, wait := range []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond} {
		_, err := drv.AsyncWait(wait, rec.wait(n))
		assert.NoError(err)
	}

	dev.refuseStart = true
	dev.mockWaitFinished(status.Success)
	assert.Equal(0, drv.Pending())

	el.RunPending()
	assert.Equal([]int{0, 1, 2}, rec.ids)
	assert.Equal([]status.Status{status.Success, status.New(status.FAILURE), status.New(status.FAILURE)}, rec.statuses)
}

func TestTimerDriver_DeviceStatus(t *testing.T) {
	assert := assert.New(t)

	el, dev, drv, rec := newTimerTest()

	_, err := drv.AsyncWait(time.Millisecond, rec.wait(0))
	assert.NoError(err)
	dev.mockWaitFinished(status.New(status.TIMEOUT))

	el.RunPending()
	assert.Equal([]status.Status{status.New(status.TIMEOUT)}, rec.statuses)
}

func TestTimerDriver_Scenario30us200ms(t *testing.T) {
	assert := assert.New(t)

	el, dev, drv, rec := newTimerTest()

	_, err := drv.AsyncWait(200*time.Millisecond, rec.wait(200_000))
	assert.NoError(err)
	_, err = drv.AsyncWait(30*time.Microsecond, rec.wait(30))
	assert.NoError(err)
	assert.Equal([]string{startWait(200_000), "cancelWait", startWait(30)}, dev.armCalls())

	dev.mockWaitFinished(status.Success)
	assert.Equal([]string{startWait(200_000 - 30)}, dev.armCalls())
	dev.mockWaitFinished(status.Success)

	el.RunPending()
	assert.Equal([]int{30, 200_000}, rec.ids)
}

func TestTimerDriver_TooLong(t *testing.T) {
	assert := assert.New(t)

	_, dev, drv, rec := newTimerTest()

	_, err := drv.AsyncWait(2*time.Hour, rec.wait(0))
	assert.ErrorIs(err, ErrStartAsyncOpFailure)
	assert.Empty(dev.calls)

	_, err = drv.AsyncWait(device.MAX_WAIT+time.Microsecond, rec.wait(1))
	assert.ErrorIs(err, ErrStartAsyncOpFailure)

	_, err = drv.AsyncWait(device.MAX_WAIT, rec.wait(2))
	assert.NoError(err)
	assert.Equal([]string{startWait(math.MaxUint32)}, dev.armCalls())
}

func TestTimerDriver_TooLongTimer(t *testing.T) {
	assert := assert.New(t)

	el := loop.NewEventLoop()
	tm := device.NewTimer("TIM2", 32)
	drv := NewTimerDriver(el, tm)
	rec := &record{}

	_, err := drv.AsyncWait(2*time.Hour, rec.wait(0))
	assert.ErrorIs(err, ErrStartAsyncOpFailure)
	assert.False(tm.Armed())

	tm.Advance(device.TicksOf(72 * time.Minute))
	el.RunPending()
	assert.Empty(rec.statuses)
}

func TestTimerDriver_LatchedExpiry(t *testing.T) {
	assert := assert.New(t)

	el := loop.NewEventLoop()
	tm := device.NewTimer("TIM2", 32)
	drv := NewTimerDriver(el, tm)
	rec := &record{}

	_, err := drv.AsyncWait(10*time.Microsecond, rec.wait(0))
	assert.NoError(err)
	second, err := drv.AsyncWait(20*time.Microsecond, rec.wait(1))
	assert.NoError(err)

	// The first wait expires while the queue is held.
	assert.True(tm.SuspendWait())
	assert.Equal(1, tm.Advance(15))
	assert.True(tm.Line.Pending())
	assert.True(tm.ResumeWait())

	left, ok := drv.Remaining(second.Handle())
	assert.True(ok)
	assert.Equal(device.Ticks(5), left)

	assert.Equal(1, tm.Advance(5))
	el.RunPending()
	assert.Equal([]int{0, 1}, rec.ids)
	assert.True(rec.only(status.Success))
}

func TestTimerDriver_LatchedExpiryOverdue(t *testing.T) {
	assert := assert.New(t)

	el := loop.NewEventLoop()
	tm := device.NewTimer("TIM2", 32)
	drv := NewTimerDriver(el, tm)
	rec := &record{}

	var timers []Timer
	for n, wait := range []time.Duration{10, 12, 30} {
		timer, err := drv.AsyncWait(wait*time.Microsecond, rec.wait(n))
		assert.NoError(err)
		timers = append(timers, timer)
	}

	// Past the first two while held; the second is overdue on resume.
	assert.True(tm.SuspendWait())
	tm.Advance(15)
	assert.True(tm.ResumeWait())
	assert.Equal(device.Ticks(0), tm.RemainingWaitTime())

	assert.Equal(1, tm.Advance(0))
	left, ok := drv.Remaining(timers[2].Handle())
	assert.True(ok)
	assert.Equal(device.Ticks(15), left)

	assert.Equal(1, tm.Advance(15))
	el.RunPending()
	assert.Equal([]int{0, 1, 2}, rec.ids)
}

// liveWait tracks the absolute deadline of a queued wait in the
// property tests.
type liveWait struct {
	id       int
	timer    Timer
	deadline device.Ticks
}

func TestTimerDriver_ExpiryOrder(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewSource(1))
	el := loop.NewEventLoop()
	tm := device.NewTimer("TIM2", 32)
	drv := NewTimerDriver(el, tm)
	rec := &record{}

	// Distinct expiry times, submitted in random order.
	perm := rng.Perm(40)
	for _, n := range perm {
		_, err := drv.AsyncWait(time.Duration(n*37+5)*time.Microsecond, rec.wait(n))
		assert.NoError(err)
	}

	for drv.Pending() > 0 {
		tm.Advance(device.Ticks(rng.Intn(50)))
	}
	el.RunPending()

	expect := make([]int, 40)
	for n := range expect {
		expect[n] = n
	}
	assert.Equal(expect, rec.ids)
	assert.True(rec.only(status.Success))
}

func TestTimerDriver_DeltaSum(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewSource(42))
	el := loop.NewEventLoop()
	tm := device.NewTimer("TIM2", 32)
	drv := NewTimerDriver(el, tm)
	rec := &record{}

	var now device.Ticks
	var live []liveWait
	aborted := map[int]bool{}

	for step := range 2000 {
		switch rng.Intn(5) {
		case 0, 1:
			d := device.Ticks(rng.Intn(1000))
			timer, err := drv.AsyncWait(d.Duration(), rec.wait(step))
			assert.NoError(err)
			live = append(live, liveWait{id: step, timer: timer, deadline: now + d})
		case 2:
			if len(live) == 0 {
				continue
			}
			n := rng.Intn(len(live))
			assert.NoError(live[n].timer.CancelWait())
			aborted[live[n].id] = true
			live = slices.Delete(live, n, n+1)
		case 3:
			d := device.Ticks(rng.Intn(300))
			tm.Advance(d)
			now += d
			live = slices.DeleteFunc(live, func(lw liveWait) bool { return lw.deadline <= now })
		case 4:
			// Time passes while the queue is held.
			d := device.Ticks(rng.Intn(300))
			assert.True(tm.SuspendWait())
			tm.Advance(d)
			assert.True(tm.ResumeWait())
			tm.Advance(0)
			now += d
			live = slices.DeleteFunc(live, func(lw liveWait) bool { return lw.deadline <= now })
		}

		assert.Equal(len(live), drv.Pending(), "step %d", step)
		for _, lw := range live {
			left, ok := drv.Remaining(lw.timer.Handle())
			if assert.True(ok, "step %d wait %d", step, lw.id) {
				assert.Equal(lw.deadline-now, left, "step %d wait %d", step, lw.id)
			}
		}
	}

	el.RunPending()
	for n, id := range rec.ids {
		if aborted[id] {
			assert.Equal(status.Aborted, rec.statuses[n])
		} else {
			assert.Equal(status.Success, rec.statuses[n])
		}
	}
}
