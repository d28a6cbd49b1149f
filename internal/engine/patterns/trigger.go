package patterns

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/tiger/tiered-workflow-runtime/api/execution"
	"github.com/tiger/tiered-workflow-runtime/internal/engine/trigger"
	"github.com/tiger/tiered-workflow-runtime/internal/runtime/beat"
)

// transientTrigger (40) delivers a signal only to an activity waiting right
// now; an undelivered signal is lost, never queued.
func (e *Engine) transientTrigger(ctx *execution.Context) execution.Result {
	activity := ctx.Var("activity")
	if activity == "" {
		return execution.Failure("variable \"activity\" is required")
	}

	switch action := ctx.Var("action"); action {
	case "wait":
		if err := e.triggers.AddWaiter(ctx.CaseID, activity); err != nil {
			return execution.Failure(err.Error())
		}
		return execution.Result{Success: true, NextState: "waiting"}
	case "", "fire":
		delivered, err := e.triggers.OfferTransient(trigger.Trigger{
			ID:       "trg-" + uuid.NewString(),
			CaseID:   ctx.CaseID,
			Activity: activity,
			Payload:  copyVars(ctx),
		})
		if err != nil {
			return execution.Failure(err.Error())
		}
		if !delivered {
			return execution.Result{
				Success:   true,
				Variables: map[string]string{"trigger_lost": "true"},
			}
		}
		return execution.Result{Success: true, NextActivities: []string{activity}}
	default:
		return execution.Failure(fmt.Sprintf("unknown trigger action %q", action))
	}
}

// persistentTrigger (41) queues a signal until the target activity consumes
// it; with a durable store configured the signal survives restarts.
func (e *Engine) persistentTrigger(ctx *execution.Context) execution.Result {
	activity := ctx.Var("activity")
	if activity == "" {
		return execution.Failure("variable \"activity\" is required")
	}

	switch action := ctx.Var("action"); action {
	case "", "fire":
		id := ctx.Var("trigger_id")
		if id == "" {
			id = "trg-" + uuid.NewString()
		}
		var fireAt int64
		if raw := ctx.Var("fire_at_ms"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed < 0 {
				return execution.Failure(fmt.Sprintf("variable \"fire_at_ms\" must be a non-negative integer, got %q", raw))
			}
			fireAt = parsed
		}
		if err := e.triggers.Persist(trigger.Trigger{
			ID:       id,
			CaseID:   ctx.CaseID,
			Activity: activity,
			FireAtMS: fireAt,
			Payload:  copyVars(ctx),
		}); err != nil {
			return execution.Failure(err.Error())
		}
		return execution.Result{
			Success:   true,
			NextState: "queued",
			Variables: map[string]string{"trigger_id": id},
		}
	case "consume":
		queued, found, err := e.triggers.Consume(ctx.CaseID, activity)
		if err != nil {
			return execution.Failure(err.Error())
		}
		if !found {
			return execution.Result{Success: true, NextState: "waiting"}
		}
		return execution.Result{
			Success:        true,
			NextActivities: []string{activity},
			Variables:      map[string]string{"trigger_id": queued.ID},
		}
	default:
		return execution.Failure(fmt.Sprintf("unknown trigger action %q", action))
	}
}

// autoStartTask (42) starts the activity only on a pulse boundary of the
// beat cycle; off-pulse invocations report the wait.
func (e *Engine) autoStartTask(ctx *execution.Context) execution.Result {
	activity := ctx.Var("activity")
	if activity == "" {
		return execution.Failure("variable \"activity\" is required")
	}

	var cycle uint64
	if raw := ctx.Var("cycle"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return execution.Failure(fmt.Sprintf("variable \"cycle\" must be an unsigned integer, got %q", raw))
		}
		cycle = parsed
	} else {
		cycle = e.beats.Next()
	}

	vars := map[string]string{"cycle": strconv.FormatUint(cycle, 10)}
	if beat.Pulse(cycle) == 1 {
		return execution.Result{
			Success:        true,
			NextActivities: []string{activity},
			Variables:      vars,
		}
	}
	return execution.Result{
		Success:   true,
		NextState: "awaiting.pulse",
		Variables: vars,
	}
}

// fireAndForget (43) launches the activity detached from the case: no join,
// no completion tracking.
func (e *Engine) fireAndForget(ctx *execution.Context) execution.Result {
	activity := ctx.Var("activity")
	if activity == "" {
		return execution.Failure("variable \"activity\" is required")
	}
	return execution.Result{
		Success:        true,
		NextActivities: []string{activity},
		Variables:      map[string]string{"detached": "true"},
	}
}
