// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package driver turns the single-shot device capabilities into queued,
// asynchronous operations.
//
// Device completions arrive in interrupt context. Drivers update their
// queues there, re-arm the device for the next request, and hand the
// caller's callback to the event loop, so application code only ever runs
// from EventLoop.Run.
package driver

import (
	"github.com/ezrec/halrt/loop"
)

// EventLoop receives the deferred callbacks of a driver.
type EventLoop interface {
	PushEvent(event loop.Event)
}

var _ EventLoop = (*loop.EventLoop)(nil)
