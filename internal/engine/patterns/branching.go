package patterns

import (
	"fmt"
	"strconv"

	"github.com/tiger/tiered-workflow-runtime/api/execution"
)

// multiChoice (6) activates every branch whose predicate holds. The chosen
// branches become the live upstream set of the paired synchronizing merge.
func (e *Engine) multiChoice(ctx *execution.Context) execution.Result {
	choices, err := parseChoices(ctx.Var("choices"))
	if err != nil {
		return execution.Failure(err.Error())
	}
	var branches []string
	for _, c := range choices {
		if c.matches(ctx) {
			branches = append(branches, c.branch)
		}
	}
	if len(branches) == 0 {
		return execution.Failure("multi-choice matched no branch")
	}

	if ctx.Var("join") != "" || ctx.ScopeID != "" {
		state, _, err := e.joinPoint(ctx)
		if err != nil {
			return execution.Failure(err.Error())
		}
		state.SetActiveUpstream(branches)
	}
	return execution.Result{
		Success:        true,
		NextActivities: branches,
		Variables:      copyVars(ctx),
	}
}

// synchronizingMerge (7) waits for every branch in the live upstream set.
// The set is consulted at arrival time, so branches pruned after the split
// stop being waited on.
func (e *Engine) synchronizingMerge(ctx *execution.Context) execution.Result {
	state, id, err := e.joinPoint(ctx)
	if err != nil {
		return execution.Failure(err.Error())
	}
	if active := splitList(ctx.Var("active")); len(active) > 0 {
		state.SetActiveUpstream(active)
	}
	for _, pruned := range splitList(ctx.Var("pruned")) {
		state.PruneUpstream(pruned)
	}
	for _, edge := range ctx.ArrivedFrom {
		if _, err := state.Arrive(edge); err != nil {
			return execution.Failure(err.Error())
		}
	}

	updates := &execution.StateUpdates{
		JoinArrived: state.Arrived(),
		JoinReady:   state.AllActiveArrived(),
	}
	result := execution.Result{Success: true, Updates: updates}
	if updates.JoinReady {
		next := ctx.Var("next")
		if next == "" {
			next = "merged"
		}
		result.NextActivities = []string{next}
		e.joins.Remove(ctx.CaseID, id)
	}
	return result
}

// multiMerge (8) is the uncontrolled merge: every arrival activates the
// downstream activity again, duplicates included.
func (e *Engine) multiMerge(ctx *execution.Context) execution.Result {
	if len(ctx.ArrivedFrom) == 0 {
		return execution.Failure("multi-merge requires at least one arrived edge")
	}
	next := ctx.Var("next")
	if next == "" {
		next = "merged"
	}
	activations := make([]string, len(ctx.ArrivedFrom))
	for i := range ctx.ArrivedFrom {
		activations[i] = next
	}
	return execution.Result{
		Success:        true,
		NextActivities: activations,
		Variables:      copyVars(ctx),
	}
}

// discriminate implements the shared discriminator algebra of patterns 9
// and 24: the first arrival fires, later arrivals of the round are
// absorbed, and the round resets once all expected branches arrived.
func (e *Engine) discriminate(ctx *execution.Context) execution.Result {
	state, _, err := e.joinPoint(ctx)
	if err != nil {
		return execution.Failure(err.Error())
	}
	expected, err := intVar(ctx, "expected")
	if err != nil {
		return execution.Failure(err.Error())
	}
	if err := state.SetExpectedTotal(expected); err != nil {
		return execution.Failure(err.Error())
	}

	fired := false
	for _, edge := range ctx.ArrivedFrom {
		recorded, err := state.Arrive(edge)
		if err != nil {
			return execution.Failure(err.Error())
		}
		if recorded && state.MarkFired() {
			fired = true
		}
	}

	updates := &execution.StateUpdates{
		JoinArrived: state.Arrived(),
		JoinReady:   fired,
	}
	result := execution.Result{Success: true, Updates: updates}
	if fired {
		next := ctx.Var("next")
		if next == "" {
			next = "merged"
		}
		result.NextActivities = []string{next}
	}
	if state.AndReady() {
		state.Reset()
	}
	return result
}

// structuredDiscriminator (9) fires on the first arrival and absorbs the
// rest of the round.
func (e *Engine) structuredDiscriminator(ctx *execution.Context) execution.Result {
	return e.discriminate(ctx)
}

// arbitraryCycles (10) loops back to an earlier activity until the
// iteration cap is reached.
func (e *Engine) arbitraryCycles(ctx *execution.Context) execution.Result {
	iterations, err := intVar(ctx, "iterations")
	if err != nil {
		return execution.Failure(err.Error())
	}
	max, err := intVar(ctx, "max_iterations")
	if err != nil {
		return execution.Failure(err.Error())
	}

	vars := copyVars(ctx)
	if vars == nil {
		vars = map[string]string{}
	}
	if iterations < max {
		vars["iterations"] = strconv.Itoa(iterations + 1)
		back := ctx.Var("loop")
		if back == "" {
			return execution.Failure("variable \"loop\" is required while iterating")
		}
		return execution.Result{Success: true, NextActivities: []string{back}, Variables: vars}
	}
	next := ctx.Var("next")
	if next == "" {
		next = "exit"
	}
	return execution.Result{Success: true, NextActivities: []string{next}, Variables: vars}
}

// implicitTermination (11) completes the case once no activities remain
// active, without an explicit end node.
func (e *Engine) implicitTermination(ctx *execution.Context) execution.Result {
	active, err := intVar(ctx, "active_count")
	if err != nil {
		return execution.Failure(err.Error())
	}
	if active == 0 {
		e.CompleteCase(ctx.CaseID)
		return execution.Result{Success: true, NextState: "completed"}
	}
	return execution.Result{
		Success:   true,
		NextState: "running",
		Variables: map[string]string{"active_count": fmt.Sprintf("%d", active)},
	}
}
