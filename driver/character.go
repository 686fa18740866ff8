// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package driver

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/ezrec/halrt/device"
	"github.com/ezrec/halrt/status"
)

// IoCallback receives the count of characters transferred and the outcome.
type IoCallback func(count int, st status.Status)

type ioOp struct {
	callback IoCallback
	buf      []byte
	stop     *byte
}

// ioQueue is the FIFO of one transfer direction. The head is the operation
// armed on the device; the others have not been started.
type ioQueue struct {
	name   string
	ops    *queue.Queue
	start  func(op *ioOp) bool
	cancel func() (count int, ok bool)
}

// CharacterDriver queues asynchronous reads and writes on a character
// device, one queue per direction.
type CharacterDriver struct {
	Verbose bool // If set, enables verbose logging.

	// Pending operation limits per direction, including the running one.
	// Zero is unlimited; one rejects a request while another is in flight.
	WriteQueueDepth int
	ReadQueueDepth  int

	loop   EventLoop
	device device.CharacterDevice

	mu     sync.Mutex
	writes ioQueue
	reads  ioQueue
}

// NewCharacterDriver binds a driver to the device's completion callbacks.
func NewCharacterDriver(el EventLoop, dev device.CharacterDevice) (cd *CharacterDriver) {
	cd = &CharacterDriver{
		loop:   el,
		device: dev,
	}

	cd.writes = ioQueue{
		name:   "write",
		ops:    queue.New(),
		start:  func(op *ioOp) bool { return dev.StartWrite(op.buf) },
		cancel: dev.CancelWrite,
	}
	cd.reads = ioQueue{
		name:   "read",
		ops:    queue.New(),
		start:  func(op *ioOp) bool { return dev.StartRead(op.buf, op.stop) },
		cancel: dev.CancelRead,
	}

	dev.SetWriteCompleteCallback(cd.completeWrite)
	dev.SetReadCompleteCallback(cd.completeRead)

	return
}

// AsyncWrite queues a write of buf. The callback, which may be nil, runs
// from the event loop once the write completes or is cancelled.
func (cd *CharacterDriver) AsyncWrite(buf []byte, callback IoCallback) (err error) {
	return cd.enqueue(&cd.writes, cd.WriteQueueDepth, &ioOp{callback: callback, buf: buf})
}

// AsyncRead queues a read into buf, ending early after the stop character
// when stop is not nil. The callback, which may be nil, runs from the event
// loop once the read completes or is cancelled.
func (cd *CharacterDriver) AsyncRead(buf []byte, stop *byte, callback IoCallback) (err error) {
	op := &ioOp{callback: callback, buf: buf}
	if stop != nil {
		value := *stop
		op.stop = &value
	}

	return cd.enqueue(&cd.reads, cd.ReadQueueDepth, op)
}

// CancelAsyncWrite stops the running write. Its callback receives the
// count already written and an ABORTED status; the next queued write starts.
func (cd *CharacterDriver) CancelAsyncWrite() (err error) {
	return cd.cancel(&cd.writes)
}

// CancelAsyncRead stops the running read. Its callback receives the count
// already read and an ABORTED status; the next queued read starts.
func (cd *CharacterDriver) CancelAsyncRead() (err error) {
	return cd.cancel(&cd.reads)
}

// PendingWrites returns the number of queued writes, including the running one.
func (cd *CharacterDriver) PendingWrites() int {
	cd.mu.Lock()
	defer cd.mu.Unlock()

	return cd.writes.ops.Length()
}

// PendingReads returns the number of queued reads, including the running one.
func (cd *CharacterDriver) PendingReads() int {
	cd.mu.Lock()
	defer cd.mu.Unlock()

	return cd.reads.ops.Length()
}

func (cd *CharacterDriver) enqueue(q *ioQueue, depth int, op *ioOp) (err error) {
	if op.buf == nil {
		err = startFailure(q.name, f("null buffer"))
		return
	}

	cd.mu.Lock()
	defer cd.mu.Unlock()

	if depth > 0 && q.ops.Length() >= depth {
		err = startFailure(q.name, f("driver is busy"))
		return
	}

	q.ops.Add(op)
	if q.ops.Length() > 1 {
		if cd.Verbose {
			logf("driver: %v queued, %d pending", q.name, q.ops.Length())
		}
		return
	}

	if !q.start(op) {
		q.ops.Remove()
		err = startFailure(q.name, f("device refused to start"))
		return
	}

	if cd.Verbose {
		logf("driver: %v started, %d characters", q.name, len(op.buf))
	}

	return
}

// deliver schedules the callback of op on the event loop.
func (cd *CharacterDriver) deliver(op *ioOp, count int, st status.Status) {
	if op.callback == nil {
		return
	}

	callback := op.callback
	cd.loop.PushEvent(func() { callback(count, st) })
}

// startNext arms the device with the new head. Operations the device
// refuses to start complete with FAILURE.
func (cd *CharacterDriver) startNext(q *ioQueue) {
	for q.ops.Length() > 0 {
		op := q.ops.Peek().(*ioOp)
		if q.start(op) {
			return
		}

		if cd.Verbose {
			logf("driver: %v refused by device", q.name)
		}
		q.ops.Remove()
		cd.deliver(op, 0, status.New(status.FAILURE))
	}
}

// complete runs in interrupt context.
func (cd *CharacterDriver) complete(q *ioQueue, count int, st status.Status) {
	cd.mu.Lock()
	defer cd.mu.Unlock()

	if q.ops.Length() == 0 {
		if cd.Verbose {
			logf("driver: spurious %v completion", q.name)
		}
		return
	}

	op := q.ops.Remove().(*ioOp)
	cd.deliver(op, count, st)

	cd.startNext(q)
}

func (cd *CharacterDriver) completeWrite(count int, st status.Status) {
	cd.complete(&cd.writes, count, st)
}

func (cd *CharacterDriver) completeRead(count int, st status.Status) {
	cd.complete(&cd.reads, count, st)
}

// cancel relies on the device staying silent for a cancelled operation: the
// driver itself delivers the ABORTED outcome.
func (cd *CharacterDriver) cancel(q *ioQueue) (err error) {
	cd.mu.Lock()
	defer cd.mu.Unlock()

	if q.ops.Length() == 0 {
		err = cancelFailure(q.name, f("nothing to cancel"))
		return
	}

	count, ok := q.cancel()
	if !ok {
		err = cancelFailure(q.name, f("device could not cancel operation"))
		return
	}

	if cd.Verbose {
		logf("driver: %v cancelled after %d characters", q.name, count)
	}

	op := q.ops.Remove().(*ioOp)
	cd.deliver(op, count, status.Aborted)

	cd.startNext(q)

	return
}
