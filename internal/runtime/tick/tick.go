package tick

import (
	"sync/atomic"
	"time"
)

// ChatmanConstant is the hot-path ceiling: eight ticks, one full beat cycle.
// At the 4GHz reference clock this is roughly two nanoseconds.
const ChatmanConstant uint64 = 8

// TicksPerNS is the reference conversion rate between wall nanoseconds and
// ticks (4GHz reference clock, 0.25ns per tick).
const TicksPerNS uint64 = 4

// Counter is a process-local monotonic tick counter. Each call observes a
// unique, monotonically increasing value; no stronger ordering is promised.
type Counter struct {
	value atomic.Uint64
}

// Next advances the counter and returns the new value.
func (c *Counter) Next() uint64 {
	return c.value.Add(1)
}

// Current returns the last issued value without advancing.
func (c *Counter) Current() uint64 {
	return c.value.Load()
}

// Reset returns the counter to zero. Defined for process start; there is no
// teardown beyond process exit.
func (c *Counter) Reset() {
	c.value.Store(0)
}

// ForDuration converts an observed wall duration to ticks at the reference
// clock rate. Budgets are enforced by measuring after the fact, never by
// preempting at the tick boundary.
func ForDuration(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d.Nanoseconds()) * TicksPerNS
}
