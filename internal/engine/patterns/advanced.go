package patterns

import (
	"fmt"
	"strconv"

	"github.com/tiger/tiered-workflow-runtime/api/execution"
)

// partialJoin implements the shared k-of-n algebra of patterns 26 and 27.
// The join fires once k distinct branches arrived; cancelling variants also
// withdraw the branches still in flight.
func (e *Engine) partialJoin(ctx *execution.Context, cancelling bool) execution.Result {
	state, id, err := e.joinPoint(ctx)
	if err != nil {
		return execution.Failure(err.Error())
	}
	expected, err := intVar(ctx, "expected")
	if err != nil {
		return execution.Failure(err.Error())
	}
	k, err := intVar(ctx, "k")
	if err != nil {
		return execution.Failure(err.Error())
	}
	if k < 1 || k > expected {
		return execution.Failure(fmt.Sprintf("k must be in [1, %d], got %d", expected, k))
	}
	if err := state.SetExpectedTotal(expected); err != nil {
		return execution.Failure(err.Error())
	}
	if upstream := splitList(ctx.Var("upstream")); len(upstream) > 0 {
		state.SetActiveUpstream(upstream)
	}

	for _, edge := range ctx.ArrivedFrom {
		if _, err := state.Arrive(edge); err != nil {
			return execution.Failure(err.Error())
		}
	}

	fired := false
	if state.ArrivedCount() >= k && state.MarkFired() {
		fired = true
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
		if cancelling {
			result.CancelActivities = state.PendingUpstream()
			e.joins.Remove(ctx.CaseID, id)
			return result
		}
	}
	// Blocking variant: the round resets only after all n branches arrived.
	if !cancelling && state.AndReady() {
		state.Reset()
	}
	return result
}

// blockingPartialJoin (26) fires at k of n arrivals and blocks the next
// round until the remaining branches arrive.
func (e *Engine) blockingPartialJoin(ctx *execution.Context) execution.Result {
	return e.partialJoin(ctx, false)
}

// cancellingPartialJoin (27) fires at k of n arrivals and withdraws the
// rest.
func (e *Engine) cancellingPartialJoin(ctx *execution.Context) execution.Result {
	return e.partialJoin(ctx, true)
}

// structuredLoop (28) repeats the loop body while the loop condition holds;
// pre-test and post-test placement behave the same at this level.
func (e *Engine) structuredLoop(ctx *execution.Context) execution.Result {
	body := ctx.Var("body")
	if body == "" {
		return execution.Failure("variable \"body\" is required")
	}
	if ctx.Var("continue") == "true" {
		return execution.Result{Success: true, NextActivities: []string{body}, NextState: "looping"}
	}
	next := ctx.Var("next")
	if next == "" {
		next = "exit"
	}
	return execution.Result{Success: true, NextActivities: []string{next}}
}

// recursion (29) re-invokes the activity itself until the depth cap, then
// unwinds to the continuation.
func (e *Engine) recursion(ctx *execution.Context) execution.Result {
	activity := ctx.Var("activity")
	if activity == "" {
		return execution.Failure("variable \"activity\" is required")
	}
	depth, err := intVar(ctx, "depth")
	if err != nil {
		return execution.Failure(err.Error())
	}
	maxDepth, err := intVar(ctx, "max_depth")
	if err != nil {
		return execution.Failure(err.Error())
	}

	if depth < maxDepth {
		vars := copyVars(ctx)
		vars["depth"] = strconv.Itoa(depth + 1)
		return execution.Result{Success: true, NextActivities: []string{activity}, Variables: vars}
	}
	next := ctx.Var("next")
	if next == "" {
		next = "unwound"
	}
	return execution.Result{Success: true, NextActivities: []string{next}, Variables: copyVars(ctx)}
}

// generalizedANDJoin (30) synchronizes whatever branches are live at
// arrival time rather than a statically declared count.
func (e *Engine) generalizedANDJoin(ctx *execution.Context) execution.Result {
	state, id, err := e.joinPoint(ctx)
	if err != nil {
		return execution.Failure(err.Error())
	}
	if active := splitList(ctx.Var("active")); len(active) > 0 {
		state.SetActiveUpstream(active)
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

// localSynchronizingMerge (31) is the synchronizing merge decided from
// locally available branch state; pruned branches are dropped from the wait
// set as the prune information reaches the merge.
func (e *Engine) localSynchronizingMerge(ctx *execution.Context) execution.Result {
	return e.synchronizingMerge(ctx)
}

// cancelActivityInstance (32) withdraws a single instance of a
// multi-instance activity, leaving its siblings running.
func (e *Engine) cancelActivityInstance(ctx *execution.Context) execution.Result {
	instance := ctx.Var("instance")
	if instance == "" {
		return execution.Failure("variable \"instance\" is required")
	}
	return execution.Result{
		Success:          true,
		CancelActivities: []string{instance},
		Variables:        map[string]string{"cancelled_instance": instance},
	}
}

// cancelProcessInstance (33) terminates the case and withdraws everything
// still running.
func (e *Engine) cancelProcessInstance(ctx *execution.Context) execution.Result {
	running := splitList(ctx.Var("activities"))
	e.CompleteCase(ctx.CaseID)
	return execution.Result{
		Success:          true,
		CancelActivities: running,
		NextState:        "cancelled",
		Terminates:       true,
	}
}

// stopProcessInstance (34) stops the case gracefully: running activities
// finish, nothing new starts.
func (e *Engine) stopProcessInstance(ctx *execution.Context) execution.Result {
	return execution.Result{
		Success:    true,
		NextState:  "stopping",
		Terminates: true,
	}
}

// abortProcessInstance (35) tears the case down immediately.
func (e *Engine) abortProcessInstance(ctx *execution.Context) execution.Result {
	running := splitList(ctx.Var("activities"))
	e.CompleteCase(ctx.CaseID)
	return execution.Result{
		Success:          true,
		CancelActivities: running,
		NextState:        "aborted",
		Terminates:       true,
	}
}

// disableActivity (36) marks an activity so it can no longer be started;
// already running instances are unaffected.
func (e *Engine) disableActivity(ctx *execution.Context) execution.Result {
	activity := ctx.Var("activity")
	if activity == "" {
		return execution.Failure("variable \"activity\" is required")
	}
	return execution.Result{
		Success:   true,
		Variables: map[string]string{"disabled." + activity: "true"},
	}
}

// skipActivity (37) bypasses an activity and hands control straight to its
// successor.
func (e *Engine) skipActivity(ctx *execution.Context) execution.Result {
	activity := ctx.Var("activity")
	if activity == "" {
		return execution.Failure("variable \"activity\" is required")
	}
	next := ctx.Var("next")
	if next == "" {
		return execution.Failure("variable \"next\" is required")
	}
	return execution.Result{
		Success:        true,
		NextActivities: []string{next},
		Variables:      map[string]string{"skipped." + activity: "true"},
	}
}

// multiThreadActivity (38) runs one activity in a fixed number of parallel
// threads of the same case.
func (e *Engine) multiThreadActivity(ctx *execution.Context) execution.Result {
	activity := ctx.Var("activity")
	if activity == "" {
		return execution.Failure("variable \"activity\" is required")
	}
	threads, err := intVar(ctx, "threads")
	if err != nil {
		return execution.Failure(err.Error())
	}
	if threads < 1 {
		return execution.Failure("thread count must be >= 1")
	}
	activations := make([]string, threads)
	for i := 0; i < threads; i++ {
		activations[i] = fmt.Sprintf("%s@%d", activity, i+1)
	}
	return execution.Result{Success: true, NextActivities: activations}
}

// threadMerge (39) joins the threads of pattern 38 back into one flow.
// Thread arrivals carry distinct instance edges, so the merge is an
// AND-join over the thread count.
func (e *Engine) threadMerge(ctx *execution.Context) execution.Result {
	state, id, err := e.joinPoint(ctx)
	if err != nil {
		return execution.Failure(err.Error())
	}
	threads, err := intVar(ctx, "threads")
	if err != nil {
		return execution.Failure(err.Error())
	}
	if err := state.SetExpectedTotal(threads); err != nil {
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
