// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package loop defers completion work out of interrupt context.
//
// Drivers push the application's callbacks from their interrupt handlers;
// the goroutine running EventLoop.Run executes them one at a time, in push
// order, at normal priority.
package loop

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/ezrec/halrt/translate"
)

var logf = translate.Logf

// Event is a deferred task.
type Event func()

// EventLoop is the deferred-task queue of the runtime.
type EventLoop struct {
	Verbose bool // If set, enables verbose logging.

	// mu is the critical section standing in for the global interrupt mask.
	mu     sync.Mutex
	events *queue.Queue
	wake   chan struct{}
}

// NewEventLoop creates an empty event loop.
func NewEventLoop() (el *EventLoop) {
	el = &EventLoop{
		events: queue.New(),
		wake:   make(chan struct{}, 1),
	}

	return
}

// PushEvent appends an event. It is legal from interrupt and normal context.
func (el *EventLoop) PushEvent(event Event) {
	if event == nil {
		return
	}

	el.mu.Lock()
	el.events.Add(event)
	el.mu.Unlock()

	// Wake a parked Run.
	select {
	case el.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued events.
func (el *EventLoop) Pending() int {
	el.mu.Lock()
	defer el.mu.Unlock()

	return el.events.Length()
}

// pop removes the head event with the queue critical section held only for
// the dequeue itself.
func (el *EventLoop) pop() (event Event, ok bool) {
	el.mu.Lock()
	defer el.mu.Unlock()

	if el.events.Length() == 0 {
		return
	}

	event = el.events.Remove().(Event)
	ok = true

	return
}

// Run dispatches events until ctx is done, parking while the queue is
// empty. Firmware passes a context that never ends.
func (el *EventLoop) Run(ctx context.Context) (err error) {
	if el.Verbose {
		logf("loop: run")
	}

	for {
		event, ok := el.pop()
		if !ok {
			select {
			case <-el.wake:
			case <-ctx.Done():
				err = ctx.Err()
				if el.Verbose {
					logf("loop: stopped: %v", err)
				}
				return
			}
			continue
		}

		event()
	}
}

// RunPending dispatches events until the queue is empty, including events
// pushed by the dispatched events, and returns how many ran.
func (el *EventLoop) RunPending() (count int) {
	for {
		event, ok := el.pop()
		if !ok {
			return
		}

		event()
		count++
	}
}
