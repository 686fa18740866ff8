package driver

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ezrec/halrt/device"
	"github.com/ezrec/halrt/status"
)

// fakeCharacterDevice records every call, and completes operations when
// told how many characters moved.
type fakeCharacterDevice struct {
	calls     []string
	writeBufs [][]byte
	readBufs  [][]byte
	readStops []*byte

	refuseStart  bool
	refuseCancel bool

	writeSize, written int
	readSize, read     int

	writeComplete device.WriteCompleteFunc
	readComplete  device.ReadCompleteFunc
}

var _ device.CharacterDevice = (*fakeCharacterDevice)(nil)

func (dev *fakeCharacterDevice) SetWriteCompleteCallback(callback device.WriteCompleteFunc) {
	dev.writeComplete = callback
}

func (dev *fakeCharacterDevice) SetReadCompleteCallback(callback device.ReadCompleteFunc) {
	dev.readComplete = callback
}

func (dev *fakeCharacterDevice) StartWrite(buf []byte) bool {
	dev.calls = append(dev.calls, fmt.Sprintf("startWrite(%d)", len(buf)))
	if dev.refuseStart {
		return false
	}
	dev.writeBufs = append(dev.writeBufs, buf)
	dev.writeSize = len(buf)
	dev.written = 0
	return true
}

func (dev *fakeCharacterDevice) CancelWrite() (written int, ok bool) {
	dev.calls = append(dev.calls, "cancelWrite")
	return dev.written, !dev.refuseCancel
}

func (dev *fakeCharacterDevice) StartRead(buf []byte, stop *byte) bool {
	dev.calls = append(dev.calls, fmt.Sprintf("startRead(%d)", len(buf)))
	if dev.refuseStart {
		return false
	}
	dev.readBufs = append(dev.readBufs, buf)
	dev.readStops = append(dev.readStops, stop)
	dev.readSize = len(buf)
	dev.read = 0
	return true
}

func (dev *fakeCharacterDevice) CancelRead() (read int, ok bool) {
	dev.calls = append(dev.calls, "cancelRead")
	return dev.read, !dev.refuseCancel
}

// mockWrite simulates n characters leaving the device.
func (dev *fakeCharacterDevice) mockWrite(n int) {
	dev.written += n
	if dev.written >= dev.writeSize {
		dev.writeComplete(dev.written, status.Success)
	}
}

// mockRead simulates n characters arriving in the device.
func (dev *fakeCharacterDevice) mockRead(n int) {
	dev.read += n
	if dev.read >= dev.readSize {
		dev.readComplete(dev.read, status.Success)
	}
}

// fakeTimerDevice records every call. Time only passes when a test sets
// elapsed.
type fakeTimerDevice struct {
	calls []string

	refuseStart   bool
	refuseSuspend bool
	refuseCancel  bool

	suspended  bool
	programmed device.Ticks
	elapsed    device.Ticks

	waitComplete device.WaitCompleteFunc
}

var _ device.TimerDevice = (*fakeTimerDevice)(nil)

func (dev *fakeTimerDevice) SetWaitCompleteCallback(callback device.WaitCompleteFunc) {
	dev.waitComplete = callback
}

func (dev *fakeTimerDevice) StartWait(count device.Ticks) bool {
	dev.calls = append(dev.calls, fmt.Sprintf("startWait(%d)", uint32(count)))
	if dev.refuseStart {
		return false
	}
	dev.programmed = count
	dev.elapsed = 0
	return true
}

func (dev *fakeTimerDevice) SuspendWait() bool {
	dev.calls = append(dev.calls, "suspendWait")
	if dev.refuseSuspend {
		return false
	}
	dev.suspended = true
	return true
}

func (dev *fakeTimerDevice) ResumeWait() bool {
	dev.calls = append(dev.calls, "resumeWait")
	dev.suspended = false
	return true
}

func (dev *fakeTimerDevice) CancelWait() bool {
	dev.calls = append(dev.calls, "cancelWait")
	return !dev.refuseCancel
}

func (dev *fakeTimerDevice) RemainingWaitTime() device.Ticks {
	dev.calls = append(dev.calls, "getRemainingWaitTime")
	return dev.programmed - dev.elapsed
}

// mockWaitFinished simulates the countdown expiring.
func (dev *fakeTimerDevice) mockWaitFinished(st status.Status) {
	dev.waitComplete(st)
}

// armCalls returns the calls that arm or disarm the countdown, and clears
// the record.
func (dev *fakeTimerDevice) armCalls() (calls []string) {
	for _, call := range dev.calls {
		if strings.HasPrefix(call, "startWait") || call == "cancelWait" {
			calls = append(calls, call)
		}
	}
	dev.calls = nil
	return
}

func startWait(d device.Ticks) string {
	return fmt.Sprintf("startWait(%d)", uint32(d))
}

// record collects callback outcomes in the order the event loop ran them.
type record struct {
	ids      []int
	statuses []status.Status
	counts   []int
}

func (rec *record) wait(id int) WaitCallback {
	return func(st status.Status) {
		rec.ids = append(rec.ids, id)
		rec.statuses = append(rec.statuses, st)
	}
}

func (rec *record) io(id int) IoCallback {
	return func(count int, st status.Status) {
		rec.ids = append(rec.ids, id)
		rec.counts = append(rec.counts, count)
		rec.statuses = append(rec.statuses, st)
	}
}

func (rec *record) only(st status.Status) bool {
	return !slices.ContainsFunc(rec.statuses, func(got status.Status) bool { return got != st })
}
