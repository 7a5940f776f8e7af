// Package clock implements the per-machine Lamport logical clock.
//
// Two rules advance the clock:
//
//	Tick:    local event or send, clock = clock + 1
//	Receive: message carrying r, clock = max(clock, r) + 1
//
// Both rules are linearizable with respect to Current, so the event loop
// and anything reporting on the machine (log writer, status readers) always
// observe a value that was actually held by the clock.
package clock

import "sync"

// Clock is a Lamport logical clock owned by a single machine.
//
// Thread-safety: all methods are safe for concurrent use. The mutex is held
// only for the read-modify-write, never across I/O.
type Clock struct {
	mu    sync.Mutex
	value int64
}

// New creates a clock starting at 0.
func New() *Clock {
	return &Clock{}
}

// NewAt creates a clock starting at a specific value.
// Negative values are clamped to 0.
func NewAt(start int64) *Clock {
	if start < 0 {
		start = 0
	}
	return &Clock{value: start}
}

// Tick advances the clock by one for an internal or send event and returns
// the new value.
func (c *Clock) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

// Receive applies the receive rule for a message stamped with received and
// returns the new value, which is strictly greater than both the previous
// local value and received.
func (c *Clock) Receive(received int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if received > c.value {
		c.value = received
	}
	c.value++
	return c.value
}

// Current returns the current value without advancing it.
func (c *Clock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
