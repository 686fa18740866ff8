// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package logstream writes text to a character driver without blocking.
package logstream

import (
	"io"
	"sync"

	"github.com/eapache/queue"

	"github.com/ezrec/halrt/driver"
	"github.com/ezrec/halrt/status"
)

// AsyncWriter is the write side of a character driver.
type AsyncWriter interface {
	AsyncWrite(buf []byte, callback driver.IoCallback) error
}

var _ AsyncWriter = (*driver.CharacterDriver)(nil)

// Stream buffers writes until Flush, then hands the buffer to the driver.
// Flushed buffers are written one at a time, in flush order, and are not
// touched again by the Stream until the driver is done with them.
type Stream struct {
	Verbose bool // If set, enables verbose logging.

	Failures int // Flushed buffers that could not be written.

	mu      sync.Mutex
	writer  AsyncWriter
	active  []byte
	pending *queue.Queue
}

var _ io.Writer = (*Stream)(nil)

// NewStream creates a stream on a character driver.
func NewStream(writer AsyncWriter) (stream *Stream) {
	stream = &Stream{
		writer:  writer,
		pending: queue.New(),
	}

	return
}

// Write appends to the active buffer. It never fails.
func (stream *Stream) Write(p []byte) (n int, err error) {
	stream.mu.Lock()
	defer stream.mu.Unlock()

	stream.active = append(stream.active, p...)
	n = len(p)

	return
}

// Buffered returns the number of bytes not yet flushed.
func (stream *Stream) Buffered() int {
	stream.mu.Lock()
	defer stream.mu.Unlock()

	return len(stream.active)
}

// Pending returns the number of flushed buffers not yet written.
func (stream *Stream) Pending() int {
	stream.mu.Lock()
	defer stream.mu.Unlock()

	return stream.pending.Length()
}

// Flush moves the active buffer to the pending list, starting its write
// when no other write is in progress.
func (stream *Stream) Flush() (err error) {
	stream.mu.Lock()
	defer stream.mu.Unlock()

	if len(stream.active) == 0 {
		return
	}

	buf := stream.active
	// Lines tend to be the same size, so keep the capacity.
	stream.active = make([]byte, 0, cap(buf))

	stream.pending.Add(buf)
	if stream.pending.Length() > 1 {
		return
	}

	err = stream.writer.AsyncWrite(buf, stream.written)
	if err != nil {
		stream.pending.Remove()
		stream.Failures++
	}

	return
}

// written runs from the event loop when the head buffer is done.
func (stream *Stream) written(count int, st status.Status) {
	stream.mu.Lock()
	defer stream.mu.Unlock()

	if stream.pending.Length() == 0 {
		return
	}

	stream.pending.Remove()
	if st.IsError() {
		stream.Failures++
		if stream.Verbose {
			logf("logstream: write failed after %d bytes: %v", count, st)
		}
	}

	for stream.pending.Length() > 0 {
		buf := stream.pending.Peek().([]byte)
		err := stream.writer.AsyncWrite(buf, stream.written)
		if err == nil {
			return
		}
		if stream.Verbose {
			logf("logstream: %v", err)
		}
		stream.pending.Remove()
		stream.Failures++
	}
}
