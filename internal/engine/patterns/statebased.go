package patterns

import (
	"fmt"

	"github.com/tiger/tiered-workflow-runtime/api/execution"
)

// deferredChoice (16) lets the environment pick one of several offered
// branches; the moment one is taken the alternatives are withdrawn.
func (e *Engine) deferredChoice(ctx *execution.Context) execution.Result {
	options := splitList(ctx.Var("options"))
	if len(options) < 2 {
		return execution.Failure(fmt.Sprintf("deferred choice requires at least 2 options, got %d", len(options)))
	}
	chosen := ctx.Var("chosen")
	if chosen == "" && len(ctx.ArrivedFrom) > 0 {
		chosen = ctx.ArrivedFrom[0]
	}
	if chosen == "" {
		return execution.Result{Success: true, NextState: "offered"}
	}

	var withdrawn []string
	found := false
	for _, opt := range options {
		if opt == chosen {
			found = true
			continue
		}
		withdrawn = append(withdrawn, opt)
	}
	if !found {
		return execution.Failure(fmt.Sprintf("chosen branch %q is not among the offered options", chosen))
	}
	return execution.Result{
		Success:          true,
		NextActivities:   []string{chosen},
		CancelActivities: withdrawn,
	}
}

// interleavedRouting (17) runs a fixed set of activities in any order but
// never two at once: the next activity is the first not yet completed.
func (e *Engine) interleavedRouting(ctx *execution.Context) execution.Result {
	activities := splitList(ctx.Var("activities"))
	if len(activities) == 0 {
		return execution.Failure("variable \"activities\" is required")
	}
	completed := map[string]bool{}
	for _, a := range splitList(ctx.Var("completed")) {
		completed[a] = true
	}

	for _, a := range activities {
		if !completed[a] {
			return execution.Result{
				Success:        true,
				NextActivities: []string{a},
				NextState:      "interleaving",
			}
		}
	}
	return execution.Result{Success: true, NextState: "interleaving.done"}
}

// milestone (18) enables the activity only while the case sits in the
// required milestone state.
func (e *Engine) milestone(ctx *execution.Context) execution.Result {
	required := ctx.Var("milestone")
	if required == "" {
		return execution.Failure("variable \"milestone\" is required")
	}
	activity := ctx.Var("activity")
	if activity == "" {
		return execution.Failure("variable \"activity\" is required")
	}
	if ctx.Var("state") != required {
		return execution.Result{Success: true, NextState: "milestone.waiting"}
	}
	return execution.Result{Success: true, NextActivities: []string{activity}}
}
