package patterns

import (
	"fmt"

	"github.com/tiger/tiered-workflow-runtime/api/execution"
	"github.com/tiger/tiered-workflow-runtime/internal/engine/join"
)

// joinPoint resolves the join tracker addressed by the context. The join id
// comes from the "join" variable, falling back to the scope id.
func (e *Engine) joinPoint(ctx *execution.Context) (*join.State, string, error) {
	id := ctx.Var("join")
	if id == "" {
		id = ctx.ScopeID
	}
	state, err := e.joins.Get(ctx.CaseID, id)
	if err != nil {
		return nil, "", fmt.Errorf("resolve join point: %w", err)
	}
	return state, id, nil
}

// sequence (1) hands control to the single downstream activity.
func (e *Engine) sequence(ctx *execution.Context) execution.Result {
	next := splitList(ctx.Var("next"))
	if len(next) == 0 {
		next = []string{"next"}
	}
	if len(next) > 1 {
		return execution.Failure(fmt.Sprintf("sequence allows one downstream activity, got %d", len(next)))
	}
	return execution.Result{
		Success:        true,
		NextActivities: next,
		Variables:      copyVars(ctx),
	}
}

// parallelSplit (2) activates every branch concurrently.
func (e *Engine) parallelSplit(ctx *execution.Context) execution.Result {
	branches := splitList(ctx.Var("branches"))
	if len(branches) < 2 {
		return execution.Failure(fmt.Sprintf("parallel split requires at least 2 branches, got %d", len(branches)))
	}
	return execution.Result{
		Success:        true,
		NextActivities: branches,
		Variables:      copyVars(ctx),
	}
}

// synchronization (3) is the AND-join: fires once every expected branch has
// arrived, counting distinct edge ids only.
func (e *Engine) synchronization(ctx *execution.Context) execution.Result {
	state, id, err := e.joinPoint(ctx)
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
	for _, edge := range ctx.ArrivedFrom {
		if _, err := state.Arrive(edge); err != nil {
			return execution.Failure(err.Error())
		}
	}

	updates := &execution.StateUpdates{
		JoinArrived: state.Arrived(),
		JoinReady:   state.AndReady(),
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

// exclusiveChoice (4) takes the first branch whose predicate holds. An
// unmatched input is an error, never a silent no-op.
func (e *Engine) exclusiveChoice(ctx *execution.Context) execution.Result {
	choices, err := parseChoices(ctx.Var("choices"))
	if err != nil {
		return execution.Failure(err.Error())
	}
	for _, c := range choices {
		if c.matches(ctx) {
			return execution.Result{
				Success:        true,
				NextActivities: []string{c.branch},
				Variables:      copyVars(ctx),
			}
		}
	}
	return execution.Failure("exclusive choice matched no branch")
}

// simpleMerge (5) passes any arrival straight through without
// synchronization.
func (e *Engine) simpleMerge(ctx *execution.Context) execution.Result {
	if len(ctx.ArrivedFrom) == 0 {
		return execution.Failure("simple merge requires at least one arrived edge")
	}
	next := ctx.Var("next")
	if next == "" {
		next = "merged"
	}
	return execution.Result{
		Success:        true,
		NextActivities: []string{next},
		Variables:      copyVars(ctx),
	}
}
