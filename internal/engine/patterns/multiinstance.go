package patterns

import (
	"fmt"

	"github.com/tiger/tiered-workflow-runtime/api/execution"
	"github.com/tiger/tiered-workflow-runtime/internal/engine/multiinstance"
)

// miTracker resolves the instance tracker for the activity named by the
// context.
func (e *Engine) miTracker(ctx *execution.Context) (*multiinstance.Tracker, string, error) {
	activity := ctx.Var("activity")
	if activity == "" {
		return nil, "", fmt.Errorf("variable %q is required", "activity")
	}
	tracker, err := e.instances.Get(ctx.CaseID, activity)
	if err != nil {
		return nil, "", err
	}
	return tracker, activity, nil
}

// instanceIDs returns sequential instance ids for a batch launched after
// start instances already exist.
func instanceIDs(activity string, start, n int) []string {
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("%s#%d", activity, start+i+1)
	}
	return ids
}

// miWithoutSync (12) launches n independent instances with no downstream
// synchronization.
func (e *Engine) miWithoutSync(ctx *execution.Context) execution.Result {
	tracker, activity, err := e.miTracker(ctx)
	if err != nil {
		return execution.Failure(err.Error())
	}
	n, err := intVar(ctx, "instances")
	if err != nil {
		return execution.Failure(err.Error())
	}
	start, _ := tracker.Counts()
	if err := tracker.Launch(n); err != nil {
		return execution.Failure(err.Error())
	}
	ids := instanceIDs(activity, start, n)
	return execution.Result{
		Success:        true,
		NextActivities: ids,
		Updates:        &execution.StateUpdates{InstancesLaunched: ids},
	}
}

// miFixedCount is the shared algebra of patterns 13 and 14: launch a known
// number of instances, seal the count, synchronize on full completion.
func (e *Engine) miFixedCount(ctx *execution.Context, countVar string) execution.Result {
	tracker, activity, err := e.miTracker(ctx)
	if err != nil {
		return execution.Failure(err.Error())
	}
	switch action := ctx.Var("action"); action {
	case "", "launch":
		n, err := intVar(ctx, countVar)
		if err != nil {
			return execution.Failure(err.Error())
		}
		if n == 0 {
			return execution.Failure("instance count must be >= 1")
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
		return e.miComplete(ctx, tracker, activity)
	default:
		return execution.Failure(fmt.Sprintf("unknown multi-instance action %q", action))
	}
}

// miComplete records one instance completion and fires the downstream
// activity once the sealed count is fully completed.
func (e *Engine) miComplete(ctx *execution.Context, tracker *multiinstance.Tracker, activity string) execution.Result {
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
	if updates.AllInstancesDone {
		next := ctx.Var("next")
		if next == "" {
			next = "joined"
		}
		result.NextActivities = []string{next}
		e.instances.Remove(ctx.CaseID, activity)
	}
	return result
}

// miDesignTime (13) launches a count fixed when the workflow was designed.
func (e *Engine) miDesignTime(ctx *execution.Context) execution.Result {
	return e.miFixedCount(ctx, "instances")
}

// miRunTime (14) launches a count resolved from case data at run time. The
// "count_from" variable names the case variable holding the count.
func (e *Engine) miRunTime(ctx *execution.Context) execution.Result {
	countVar := ctx.Var("count_from")
	if countVar == "" {
		countVar = "instances"
	}
	return e.miFixedCount(ctx, countVar)
}

// miUnbounded (15) keeps launching instances while the case runs; the count
// is unknown until the activity is sealed, and only a sealed activity can
// report all instances done.
func (e *Engine) miUnbounded(ctx *execution.Context) execution.Result {
	tracker, activity, err := e.miTracker(ctx)
	if err != nil {
		return execution.Failure(err.Error())
	}
	switch action := ctx.Var("action"); action {
	case "", "launch":
		n := 1
		if ctx.Var("instances") != "" {
			if n, err = intVar(ctx, "instances"); err != nil {
				return execution.Failure(err.Error())
			}
			if n == 0 {
				return execution.Failure("instance count must be >= 1")
			}
		}
		start, _ := tracker.Counts()
		if err := tracker.Launch(n); err != nil {
			return execution.Failure(err.Error())
		}
		ids := instanceIDs(activity, start, n)
		return execution.Result{
			Success:        true,
			NextActivities: ids,
			Updates:        &execution.StateUpdates{InstancesLaunched: ids},
		}
	case "seal":
		tracker.Seal()
		launched, completed := tracker.Counts()
		updates := &execution.StateUpdates{
			InstancesCompleted: completed,
			AllInstancesDone:   tracker.AllDone(),
		}
		result := execution.Result{Success: true, Updates: updates}
		result.Variables = map[string]string{"sealed_count": fmt.Sprintf("%d", launched)}
		if updates.AllInstancesDone {
			next := ctx.Var("next")
			if next == "" {
				next = "joined"
			}
			result.NextActivities = []string{next}
			e.instances.Remove(ctx.CaseID, activity)
		}
		return result
	case "complete":
		return e.miComplete(ctx, tracker, activity)
	default:
		return execution.Failure(fmt.Sprintf("unknown multi-instance action %q", action))
	}
}
