package execution

import (
	"fmt"
	"strings"
)

// PatternID identifies one of the 43 canonical workflow control-flow patterns.
type PatternID uint8

// PatternCount is the size of the closed pattern catalogue.
const PatternCount = 43

// Valid reports whether the id is inside the closed catalogue.
func (id PatternID) Valid() bool {
	return id >= 1 && id <= PatternCount
}

// Group is the catalogue section a pattern belongs to.
type Group string

const (
	GroupBasic         Group = "basic_control_flow"
	GroupBranching     Group = "advanced_branching"
	GroupMultiInstance Group = "multiple_instance"
	GroupStateBased    Group = "state_based"
	GroupCancellation  Group = "cancellation"
	GroupAdvanced      Group = "advanced_control"
	GroupTrigger       Group = "trigger"
)

// Group returns the catalogue section for the pattern id.
func (id PatternID) Group() Group {
	switch {
	case id >= 1 && id <= 5:
		return GroupBasic
	case id >= 6 && id <= 11:
		return GroupBranching
	case id >= 12 && id <= 15:
		return GroupMultiInstance
	case id >= 16 && id <= 18:
		return GroupStateBased
	case id >= 19 && id <= 25:
		return GroupCancellation
	case id >= 26 && id <= 39:
		return GroupAdvanced
	case id >= 40 && id <= 43:
		return GroupTrigger
	default:
		return ""
	}
}

// Context is the per-invocation pattern input. The caller owns it for the
// duration of one execution; executors never retain it.
type Context struct {
	CaseID      string
	WorkflowID  string
	Variables   map[string]string
	ArrivedFrom []string
	ScopeID     string
}

// Validate enforces context required fields.
func (c *Context) Validate() error {
	if c == nil {
		return fmt.Errorf("execution context is required")
	}
	if strings.TrimSpace(c.CaseID) == "" {
		return fmt.Errorf("case_id is required")
	}
	if strings.TrimSpace(c.WorkflowID) == "" {
		return fmt.Errorf("workflow_id is required")
	}
	return nil
}

// Var returns a context variable, or the empty string when absent.
func (c *Context) Var(name string) string {
	if c == nil || c.Variables == nil {
		return ""
	}
	return c.Variables[name]
}

// StateUpdates is the structured tracker delta a pattern invocation produced.
type StateUpdates struct {
	JoinArrived        []string `json:"join_arrived,omitempty"`
	JoinReady          bool     `json:"join_ready,omitempty"`
	InstancesLaunched  []string `json:"instances_launched,omitempty"`
	InstancesCompleted int      `json:"instances_completed,omitempty"`
	AllInstancesDone   bool     `json:"all_instances_done,omitempty"`
	ThresholdReached   bool     `json:"threshold_reached,omitempty"`
}

// Result is the immutable outcome of one pattern invocation.
type Result struct {
	Success          bool              `json:"success"`
	NextActivities   []string          `json:"next_activities,omitempty"`
	NextState        string            `json:"next_state,omitempty"`
	Variables        map[string]string `json:"variables,omitempty"`
	Updates          *StateUpdates     `json:"updates,omitempty"`
	CancelActivities []string          `json:"cancel_activities,omitempty"`
	Terminates       bool              `json:"terminates,omitempty"`
}

// Failure builds the in-band failure result. Pattern failures are never
// raised; the reason travels in variables["error"].
func Failure(reason string) Result {
	return Result{
		Success:   false,
		Variables: map[string]string{"error": reason},
	}
}

// Observable reports whether the result carries at least one populated
// output field. Every successful pattern invocation must be observable.
func (r Result) Observable() bool {
	return len(r.NextActivities) > 0 ||
		r.NextState != "" ||
		len(r.Variables) > 0 ||
		r.Updates != nil ||
		len(r.CancelActivities) > 0 ||
		r.Terminates
}
