package network

import "sync/atomic"

// Clock is the coordinator's logical tick counter.
//
// The value is the id of the next tick to release, which is also the date
// stamped on outgoing messages. It only moves forward.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations), so
// status readers may sample it while the frame loop advances it.
type Clock struct {
	tick atomic.Uint64
}

// NewClock creates a clock at tick 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock at a specific tick.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.tick.Store(start)
	return c
}

// Advance moves the clock one tick forward and returns the new value.
func (c *Clock) Advance() uint64 {
	return c.tick.Add(1)
}

// Current returns the current tick.
func (c *Clock) Current() uint64 {
	return c.tick.Load()
}
