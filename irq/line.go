// Package irq models a single interrupt source of a simulated peripheral.
//
// A Line serializes its handler the way a single-priority interrupt would:
// handlers never nest, masking the line waits for a running handler to
// return, and an interrupt raised while masked is latched and delivered on
// unmask. Nested Mask calls are not supported.
package irq

import (
	"sync"
)

// Handler runs in interrupt context.
type Handler func()

// Line is one interrupt source.
type Line struct {
	Name string

	mu      sync.Mutex
	masked  bool
	pending []Handler
}

// Mask disables delivery. It returns once no handler is running.
func (line *Line) Mask() {
	line.mu.Lock()
	line.masked = true
	line.mu.Unlock()
}

// Unmask enables delivery, running any latched handlers first.
func (line *Line) Unmask() {
	line.mu.Lock()
	defer line.mu.Unlock()

	line.masked = false
	for len(line.pending) > 0 {
		handler := line.pending[0]
		line.pending = line.pending[1:]
		handler()
	}
}

// Masked reports whether delivery is currently disabled.
func (line *Line) Masked() bool {
	line.mu.Lock()
	defer line.mu.Unlock()

	return line.masked
}

// Pending reports whether an interrupt is latched.
func (line *Line) Pending() bool {
	line.mu.Lock()
	defer line.mu.Unlock()

	return len(line.pending) > 0
}

// Raise delivers an interrupt. The handler runs before Raise returns unless
// the line is masked, in which case it is latched.
func (line *Line) Raise(handler Handler) {
	line.mu.Lock()
	defer line.mu.Unlock()

	if line.masked {
		line.pending = append(line.pending, handler)
		return
	}

	handler()
}

// Clear drops latched interrupts, returning how many were dropped.
func (line *Line) Clear() (count int) {
	line.mu.Lock()
	defer line.mu.Unlock()

	count = len(line.pending)
	line.pending = nil

	return
}
