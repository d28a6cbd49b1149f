package patterns

import (
	"fmt"

	"github.com/tiger/tiered-workflow-runtime/api/execution"
)

// cancelActivity (19) withdraws one enabled or running activity.
// Cancellation is cooperative: the result signals intent, the execution
// substrate performs the teardown.
func (e *Engine) cancelActivity(ctx *execution.Context) execution.Result {
	activity := ctx.Var("activity")
	if activity == "" {
		return execution.Failure("variable \"activity\" is required")
	}
	return execution.Result{
		Success:          true,
		CancelActivities: []string{activity},
	}
}

// cancelCase (20) cancels every running activity and terminates the case.
func (e *Engine) cancelCase(ctx *execution.Context) execution.Result {
	running := splitList(ctx.Var("activities"))
	e.CompleteCase(ctx.CaseID)
	return execution.Result{
		Success:          true,
		CancelActivities: running,
		NextState:        "cancelled",
		Terminates:       true,
	}
}

// cancelRegion (21) cancels a bounded region of the workflow; the case
// itself keeps running.
func (e *Engine) cancelRegion(ctx *execution.Context) execution.Result {
	region := splitList(ctx.Var("region"))
	if len(region) == 0 {
		return execution.Failure("variable \"region\" is required")
	}
	return execution.Result{
		Success:          true,
		CancelActivities: region,
		NextState:        "region.cancelled",
	}
}

// cancelMIActivity (22) cancels a multi-instance activity with all of its
// still-running instances.
func (e *Engine) cancelMIActivity(ctx *execution.Context) execution.Result {
	tracker, activity, err := e.miTracker(ctx)
	if err != nil {
		return execution.Failure(err.Error())
	}
	running := tracker.Cancel()
	e.instances.Remove(ctx.CaseID, activity)
	return execution.Result{
		Success:          true,
		CancelActivities: []string{activity},
		Variables:        map[string]string{"cancelled_instances": fmt.Sprintf("%d", running)},
	}
}

// completeMIActivity (23) finishes a multi-instance activity early once a
// completion threshold is met, cancelling the remaining instances.
func (e *Engine) completeMIActivity(ctx *execution.Context) execution.Result {
	tracker, activity, err := e.miTracker(ctx)
	if err != nil {
		return execution.Failure(err.Error())
	}
	threshold, err := intVar(ctx, "threshold")
	if err != nil {
		return execution.Failure(err.Error())
	}
	if err := tracker.SetThreshold(threshold); err != nil {
		return execution.Failure(err.Error())
	}

	switch action := ctx.Var("action"); action {
	case "", "launch":
		n, err := intVar(ctx, "instances")
		if err != nil {
			return execution.Failure(err.Error())
		}
		if n < threshold {
			return execution.Failure(fmt.Sprintf("threshold %d exceeds instance count %d", threshold, n))
		}
		start, _ := tracker.Counts()
		if err := tracker.Launch(n); err != nil {
			return execution.Failure(err.Error())
		}
		tracker.Seal()
		ids := instanceIDs(activity, start, n)
		return execution.Result{
			Success:        true,
			NextActivities: ids,
			Updates:        &execution.StateUpdates{InstancesLaunched: ids},
		}
	case "complete":
		if err := tracker.CompleteOne(); err != nil {
			return execution.Failure(err.Error())
		}
		_, completed := tracker.Counts()
		updates := &execution.StateUpdates{
			InstancesCompleted: completed,
			AllInstancesDone:   tracker.AllDone(),
			ThresholdReached:   tracker.ThresholdReached(),
		}
		result := execution.Result{Success: true, Updates: updates}
		if updates.ThresholdReached {
			next := ctx.Var("next")
			if next == "" {
				next = "joined"
			}
			result.NextActivities = []string{next}
			result.CancelActivities = []string{activity}
			e.instances.Remove(ctx.CaseID, activity)
		}
		return result
	default:
		return execution.Failure(fmt.Sprintf("unknown multi-instance action %q", action))
	}
}

// blockingDiscriminator (24) fires on the first arrival of a round and
// blocks a new round from starting until every branch of the current round
// has arrived.
func (e *Engine) blockingDiscriminator(ctx *execution.Context) execution.Result {
	return e.discriminate(ctx)
}

// cancellingDiscriminator (25) fires on the first arrival and withdraws the
// branches still in flight.
func (e *Engine) cancellingDiscriminator(ctx *execution.Context) execution.Result {
	state, id, err := e.joinPoint(ctx)
	if err != nil {
		return execution.Failure(err.Error())
	}
	if upstream := splitList(ctx.Var("upstream")); len(upstream) > 0 {
		state.SetActiveUpstream(upstream)
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
		result.CancelActivities = state.PendingUpstream()
		e.joins.Remove(ctx.CaseID, id)
	}
	return result
}
