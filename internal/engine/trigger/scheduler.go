// Package trigger delivers external signals to waiting activities. Transient
// triggers are dropped when nobody is waiting; persistent triggers are kept,
// optionally backed by a durable store, until an activity consumes them.
package trigger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Trigger is one external signal addressed to an activity in a case.
type Trigger struct {
	ID       string            `json:"id"`
	CaseID   string            `json:"case_id"`
	Activity string            `json:"activity"`
	FireAtMS int64             `json:"fire_at_ms,omitempty"`
	Payload  map[string]string `json:"payload,omitempty"`
}

// Validate checks the trigger's required fields.
func (t Trigger) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("trigger id is required")
	}
	if strings.TrimSpace(t.CaseID) == "" {
		return fmt.Errorf("trigger case_id is required")
	}
	if strings.TrimSpace(t.Activity) == "" {
		return fmt.Errorf("trigger activity is required")
	}
	if t.FireAtMS < 0 {
		return fmt.Errorf("trigger fire_at_ms must be >= 0, got %d", t.FireAtMS)
	}
	return nil
}

// Store is the durability seam for persistent triggers.
type Store interface {
	Put(t Trigger) error
	Delete(id string) error
	List() ([]Trigger, error)
}

// Scheduler routes triggers to activities. A nil store keeps persistent
// triggers in memory only.
type Scheduler struct {
	mu      sync.Mutex
	waiting map[string]struct{}
	pending map[string]Trigger
	store   Store
}

// NewScheduler returns a scheduler. store may be nil.
func NewScheduler(store Store) *Scheduler {
	return &Scheduler{
		waiting: map[string]struct{}{},
		pending: map[string]Trigger{},
		store:   store,
	}
}

func waiterKey(caseID, activity string) (string, error) {
	caseID = strings.TrimSpace(caseID)
	activity = strings.TrimSpace(activity)
	if caseID == "" || activity == "" {
		return "", fmt.Errorf("case_id and activity are required")
	}
	return caseID + "/" + activity, nil
}

// AddWaiter registers an activity as waiting for a trigger.
func (s *Scheduler) AddWaiter(caseID, activity string) error {
	key, err := waiterKey(caseID, activity)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting[key] = struct{}{}
	return nil
}

// RemoveWaiter deregisters a waiting activity.
func (s *Scheduler) RemoveWaiter(caseID, activity string) {
	key, err := waiterKey(caseID, activity)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.waiting, key)
}

// OfferTransient delivers a trigger only if its target activity is waiting
// right now. The bool reports delivery; an undelivered transient trigger is
// lost, never queued.
func (s *Scheduler) OfferTransient(t Trigger) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}
	key, err := waiterKey(t.CaseID, t.Activity)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.waiting[key]; !ok {
		return false, nil
	}
	delete(s.waiting, key)
	return true, nil
}

// Persist queues a trigger until its target activity consumes it. With a
// store configured the trigger survives restarts.
func (s *Scheduler) Persist(t Trigger) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pending[t.ID]; exists {
		return fmt.Errorf("trigger %s already pending", t.ID)
	}
	if s.store != nil {
		if err := s.store.Put(t); err != nil {
			return fmt.Errorf("persist trigger %s: %w", t.ID, err)
		}
	}
	s.pending[t.ID] = t
	return nil
}

// Consume pops the oldest pending trigger addressed to the activity. The
// bool reports whether one was found.
func (s *Scheduler) Consume(caseID, activity string) (Trigger, bool, error) {
	if _, err := waiterKey(caseID, activity); err != nil {
		return Trigger{}, false, err
	}
	caseID = strings.TrimSpace(caseID)
	activity = strings.TrimSpace(activity)

	s.mu.Lock()
	defer s.mu.Unlock()

	var match *Trigger
	for id := range s.pending {
		t := s.pending[id]
		if t.CaseID != caseID || t.Activity != activity {
			continue
		}
		if match == nil || t.FireAtMS < match.FireAtMS || (t.FireAtMS == match.FireAtMS && t.ID < match.ID) {
			match = &t
		}
	}
	if match == nil {
		return Trigger{}, false, nil
	}
	if s.store != nil {
		if err := s.store.Delete(match.ID); err != nil {
			return Trigger{}, false, fmt.Errorf("consume trigger %s: %w", match.ID, err)
		}
	}
	delete(s.pending, match.ID)
	return *match, true, nil
}

// Due returns pending triggers whose fire time has passed, sorted by fire
// time then id. They stay pending until consumed.
func (s *Scheduler) Due(nowMS int64) []Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := make([]Trigger, 0, len(s.pending))
	for _, t := range s.pending {
		if t.FireAtMS <= nowMS {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].FireAtMS != due[j].FireAtMS {
			return due[i].FireAtMS < due[j].FireAtMS
		}
		return due[i].ID < due[j].ID
	})
	return due
}

// PendingCount returns the number of queued persistent triggers.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Restore reloads queued triggers from the store. Call once at startup
// before accepting work.
func (s *Scheduler) Restore() error {
	if s.store == nil {
		return nil
	}
	stored, err := s.store.List()
	if err != nil {
		return fmt.Errorf("restore triggers: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range stored {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("restore triggers: %w", err)
		}
		s.pending[t.ID] = t
	}
	return nil
}
