// Package multiinstance tracks the lifecycle of multi-instance activities.
// A tracker counts launches and completions for one activity in one case;
// the target instance count is either fixed at creation or discovered at
// run time and frozen with Seal.
package multiinstance

import (
	"fmt"
	"strings"
	"sync"
)

// Tracker counts instance launches and completions for one multi-instance
// activity.
type Tracker struct {
	mu        sync.Mutex
	target    int
	sealed    bool
	launched  int
	completed int
	threshold int
	cancelled bool
}

// NewTracker returns a tracker with a design-time instance count. A target
// of 0 means the count is discovered at run time and fixed later with Seal.
func NewTracker(target int) (*Tracker, error) {
	if target < 0 {
		return nil, fmt.Errorf("instance target must be >= 0, got %d", target)
	}
	return &Tracker{target: target, sealed: target > 0}, nil
}

// Launch records n new instance launches.
func (t *Tracker) Launch(n int) error {
	if n < 1 {
		return fmt.Errorf("launch count must be >= 1, got %d", n)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return fmt.Errorf("activity is cancelled, no further launches")
	}
	if t.sealed && t.launched+n > t.target {
		return fmt.Errorf("launch of %d exceeds instance target %d (already launched %d)", n, t.target, t.launched)
	}
	t.launched += n
	return nil
}

// CompleteOne records one instance completion.
func (t *Tracker) CompleteOne() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed >= t.launched {
		return fmt.Errorf("completion without a matching launch (launched %d, completed %d)", t.launched, t.completed)
	}
	t.completed++
	return nil
}

// Seal freezes the run-time-discovered instance count at the number
// launched so far. Sealing an already sealed tracker is a no-op.
func (t *Tracker) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return
	}
	t.target = t.launched
	t.sealed = true
}

// Sealed reports whether the instance count is fixed.
func (t *Tracker) Sealed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sealed
}

// SetThreshold configures an early-completion threshold of m completions.
func (t *Tracker) SetThreshold(m int) error {
	if m < 1 {
		return fmt.Errorf("completion threshold must be >= 1, got %d", m)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threshold = m
	return nil
}

// ThresholdReached reports whether the configured completion threshold has
// been met. It is always false when no threshold is set.
func (t *Tracker) ThresholdReached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.threshold > 0 && t.completed >= t.threshold
}

// AllDone reports whether every instance of a fixed-count activity has
// completed. An unsealed tracker is never done because further instances
// may still launch.
func (t *Tracker) AllDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sealed && t.target > 0 && t.completed >= t.target
}

// Cancel marks the activity cancelled and returns the number of instances
// that were still running.
func (t *Tracker) Cancel() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	return t.launched - t.completed
}

// Cancelled reports whether the activity was cancelled.
func (t *Tracker) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Counts returns the launched and completed instance counts.
func (t *Tracker) Counts() (launched, completed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.launched, t.completed
}

// Target returns the fixed instance count, 0 while still unsealed.
func (t *Tracker) Target() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.sealed {
		return 0
	}
	return t.target
}

// Registry owns instance trackers indexed by (case id, activity id).
type Registry struct {
	mu       sync.Mutex
	trackers map[string]*Tracker
}

// NewRegistry returns an empty tracker registry.
func NewRegistry() *Registry {
	return &Registry{trackers: map[string]*Tracker{}}
}

func trackerKey(caseID, activityID string) (string, error) {
	caseID = strings.TrimSpace(caseID)
	activityID = strings.TrimSpace(activityID)
	if caseID == "" || activityID == "" {
		return "", fmt.Errorf("case_id and activity_id are required")
	}
	return caseID + "/" + activityID, nil
}

// Get returns the tracker for the activity, creating an unsealed one on
// first reference.
func (r *Registry) Get(caseID, activityID string) (*Tracker, error) {
	key, err := trackerKey(caseID, activityID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tracker, ok := r.trackers[key]
	if !ok {
		tracker, _ = NewTracker(0)
		r.trackers[key] = tracker
	}
	return tracker, nil
}

// Remove destroys one tracker.
func (r *Registry) Remove(caseID, activityID string) {
	key, err := trackerKey(caseID, activityID)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trackers, key)
}

// DropCase destroys every tracker owned by a completed case.
func (r *Registry) DropCase(caseID string) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return
	}
	prefix := caseID + "/"
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.trackers {
		if strings.HasPrefix(key, prefix) {
			delete(r.trackers, key)
		}
	}
}
