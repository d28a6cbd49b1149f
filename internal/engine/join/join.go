// Package join tracks synchronization state for split/join constructs. One
// State exists per join point per case; concurrent edge arrivals for the
// same join are serialized by the state's own mutex because arrived-set
// mutation is not idempotent under interleaving.
package join

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// State is the mutable tracker for one join point in one case.
type State struct {
	mu             sync.Mutex
	arrived        map[string]struct{}
	arrivalOrder   []string
	expectedTotal  int
	activeUpstream map[string]struct{}
	fired          bool
}

// NewState returns an empty join tracker.
func NewState() *State {
	return &State{
		arrived:        map[string]struct{}{},
		activeUpstream: map[string]struct{}{},
	}
}

// SetExpectedTotal records the statically known branch count for AND-join
// style firing.
func (s *State) SetExpectedTotal(n int) error {
	if n < 1 {
		return fmt.Errorf("expected_total must be >= 1")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectedTotal = n
	return nil
}

// SetActiveUpstream replaces the live upstream edge set.
func (s *State) SetActiveUpstream(edges []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeUpstream = make(map[string]struct{}, len(edges))
	for _, edge := range edges {
		edge = strings.TrimSpace(edge)
		if edge != "" {
			s.activeUpstream[edge] = struct{}{}
		}
	}
}

// PruneUpstream removes a pruned branch from the live upstream set.
func (s *State) PruneUpstream(edge string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeUpstream, strings.TrimSpace(edge))
}

// Arrive records an incoming edge. Duplicate edge ids do not advance the
// arrival count; the bool reports whether the edge was newly recorded.
func (s *State) Arrive(edge string) (bool, error) {
	edge = strings.TrimSpace(edge)
	if edge == "" {
		return false, fmt.Errorf("edge id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.arrived[edge]; seen {
		return false, nil
	}
	s.arrived[edge] = struct{}{}
	s.arrivalOrder = append(s.arrivalOrder, edge)
	return true, nil
}

// ArrivedCount returns the number of distinct arrived edges.
func (s *State) ArrivedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.arrived)
}

// Arrived returns the distinct arrived edges in arrival order.
func (s *State) Arrived() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.arrivalOrder))
	copy(out, s.arrivalOrder)
	return out
}

// ExpectedTotal returns the configured branch count, 0 when unknown.
func (s *State) ExpectedTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expectedTotal
}

// AndReady reports whether the distinct arrival count has reached the
// statically known expected total.
func (s *State) AndReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expectedTotal > 0 && len(s.arrived) >= s.expectedTotal
}

// OrReady reports whether any arrived edge belongs to the live upstream
// set. The set is consulted at call time, never a snapshot frozen at split
// time, so pruned branches stop counting immediately.
func (s *State) OrReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for edge := range s.activeUpstream {
		if _, ok := s.arrived[edge]; ok {
			return true
		}
	}
	return false
}

// AllActiveArrived reports whether every edge in the live upstream set has
// arrived. Used by synchronizing merges, which wait for all still-active
// branches rather than the first.
func (s *State) AllActiveArrived() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.activeUpstream) == 0 {
		return false
	}
	for edge := range s.activeUpstream {
		if _, ok := s.arrived[edge]; !ok {
			return false
		}
	}
	return true
}

// PendingUpstream returns live upstream edges that have not arrived, sorted
// for deterministic cancellation lists.
func (s *State) PendingUpstream() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]string, 0, len(s.activeUpstream))
	for edge := range s.activeUpstream {
		if _, ok := s.arrived[edge]; !ok {
			pending = append(pending, edge)
		}
	}
	sort.Strings(pending)
	return pending
}

// MarkFired latches the discriminator-fired flag. The bool reports whether
// this call won the latch.
func (s *State) MarkFired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return false
	}
	s.fired = true
	return true
}

// Fired reports whether the join already fired in this round.
func (s *State) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Reset clears arrivals and the fired latch for the next round. The
// expected total and upstream set survive, matching discriminator reset
// semantics.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arrived = map[string]struct{}{}
	s.arrivalOrder = nil
	s.fired = false
}

// Registry owns join trackers indexed by (case id, join point id).
type Registry struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewRegistry returns an empty tracker registry.
func NewRegistry() *Registry {
	return &Registry{states: map[string]*State{}}
}

func trackerKey(caseID, joinID string) (string, error) {
	caseID = strings.TrimSpace(caseID)
	joinID = strings.TrimSpace(joinID)
	if caseID == "" || joinID == "" {
		return "", fmt.Errorf("case_id and join_id are required")
	}
	return caseID + "/" + joinID, nil
}

// Get returns the tracker for the join point, creating it on first
// reference.
func (r *Registry) Get(caseID, joinID string) (*State, error) {
	key, err := trackerKey(caseID, joinID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[key]
	if !ok {
		state = NewState()
		r.states[key] = state
	}
	return state, nil
}

// Remove destroys one join tracker.
func (r *Registry) Remove(caseID, joinID string) {
	key, err := trackerKey(caseID, joinID)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, key)
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
	for key := range r.states {
		if strings.HasPrefix(key, prefix) {
			delete(r.states, key)
		}
	}
}
