package beat

import "sync/atomic"

const (
	// BeatsPerEpoch is the cycle period; it aligns with the hot-path tick
	// ceiling so one epoch covers one worst-case hot execution.
	BeatsPerEpoch = 8
	cycleMask     = BeatsPerEpoch - 1
)

// Scheduler is the global 8-phase cycle generator. A single atomic counter
// is the only shared state; each Next call observes a unique, monotonically
// increasing cycle.
type Scheduler struct {
	cycle atomic.Uint64
}

// NewScheduler returns a scheduler with the cycle counter at zero.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Next advances the global cycle and returns it. The first call returns 0.
func (s *Scheduler) Next() uint64 {
	return s.cycle.Add(1) - 1
}

// Current returns the next cycle Next would hand out, without advancing.
func (s *Scheduler) Current() uint64 {
	return s.cycle.Load()
}

// Tick extracts the beat phase from a cycle via mask, no division.
func Tick(cycle uint64) uint64 {
	return cycle & cycleMask
}

// Pulse returns 1 iff the cycle opens a new epoch (tick == 0). The value is
// derived from arithmetic underflow and sign-bit extraction so the pass and
// fail paths execute the same instructions.
func Pulse(cycle uint64) uint64 {
	t := cycle & cycleMask
	return ((t - 1) >> 63) & 1
}

// Epoch returns the 8-beat epoch index a cycle belongs to.
func Epoch(cycle uint64) uint64 {
	return cycle >> 3
}
