// Package slo maintains per-tier sliding windows of observed latencies and
// checks tail latency against each tier's p99 target. Recording happens off
// the hot path; violations are diagnostic evidence, never execution gates.
package slo

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tiger/tiered-workflow-runtime/api/runtimeclass"
)

const (
	// DefaultWindow is the ring capacity per tier.
	DefaultWindow = 1000
	// minSamples is the floor below which no percentile is reported; a
	// percentile over a handful of samples is misleading precision.
	minSamples = 100
)

// ring is a fixed-capacity FIFO of latency samples.
type ring struct {
	samples []int64
	next    int
	full    bool
}

func newRing(capacity int) *ring {
	return &ring{samples: make([]int64, 0, capacity)}
}

func (r *ring) push(ns int64) {
	if !r.full && len(r.samples) < cap(r.samples) {
		r.samples = append(r.samples, ns)
		if len(r.samples) == cap(r.samples) {
			r.full = true
			r.next = 0
		}
		return
	}
	r.samples[r.next] = ns
	r.next = (r.next + 1) % len(r.samples)
}

func (r *ring) count() int {
	return len(r.samples)
}

func (r *ring) snapshot() []int64 {
	out := make([]int64, len(r.samples))
	copy(out, r.samples)
	return out
}

// Monitor tracks observed latency per tier.
type Monitor struct {
	mu      sync.Mutex
	window  int
	windows map[runtimeclass.Class]*ring
}

// NewMonitor returns a monitor with the given per-tier window size. A
// window of 0 selects DefaultWindow.
func NewMonitor(window int) (*Monitor, error) {
	if window == 0 {
		window = DefaultWindow
	}
	if window < minSamples {
		return nil, fmt.Errorf("slo window must hold at least %d samples, got %d", minSamples, window)
	}
	m := &Monitor{window: window, windows: map[runtimeclass.Class]*ring{}}
	for _, class := range runtimeclass.Classes() {
		m.windows[class] = newRing(window)
	}
	return m, nil
}

// Record appends one latency observation for the tier, evicting the oldest
// sample once the window is full.
func (m *Monitor) Record(class runtimeclass.Class, latencyNS int64) error {
	if !class.Valid() {
		return fmt.Errorf("unknown runtime class %q", class)
	}
	if latencyNS < 0 {
		return fmt.Errorf("latency must be >= 0 ns, got %d", latencyNS)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[class].push(latencyNS)
	return nil
}

// Samples returns the number of observations currently held for the tier.
func (m *Monitor) Samples(class runtimeclass.Class) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.windows[class]
	if !ok {
		return 0
	}
	return r.count()
}

// P99 returns the 99th-percentile latency for the tier by sorted rank, or 0
// while fewer than 100 samples are present.
func (m *Monitor) P99(class runtimeclass.Class) int64 {
	m.mu.Lock()
	r, ok := m.windows[class]
	if !ok || r.count() < minSamples {
		m.mu.Unlock()
		return 0
	}
	samples := r.snapshot()
	m.mu.Unlock()

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	rank := (len(samples) * 99) / 100
	if rank >= len(samples) {
		rank = len(samples) - 1
	}
	return samples[rank]
}

// Check compares the tier's observed p99 to its target. A nil violation
// means the tier is compliant or has too few samples to judge.
func (m *Monitor) Check(class runtimeclass.Class) (*runtimeclass.SloViolation, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("unknown runtime class %q", class)
	}
	p99 := m.P99(class)
	threshold := class.Metadata().SLOP99NS
	if p99 <= threshold {
		return nil, nil
	}
	return &runtimeclass.SloViolation{
		Class:            class,
		P99LatencyNS:     p99,
		SLOThresholdNS:   threshold,
		ViolationPercent: float64(p99-threshold) / float64(threshold) * 100,
	}, nil
}
