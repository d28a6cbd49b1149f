// Package patterns implements the closed registry of the 43 canonical
// workflow control-flow patterns. Executors are stateless functions over an
// execution context plus the engine's per-case trackers; failures travel
// in-band through the result, never as raised errors.
package patterns

import (
	"errors"
	"fmt"

	"github.com/tiger/tiered-workflow-runtime/api/execution"
	"github.com/tiger/tiered-workflow-runtime/internal/engine/join"
	"github.com/tiger/tiered-workflow-runtime/internal/engine/multiinstance"
	"github.com/tiger/tiered-workflow-runtime/internal/engine/trigger"
	"github.com/tiger/tiered-workflow-runtime/internal/runtime/beat"
)

// ErrUnknownPattern is returned for pattern ids outside the closed
// catalogue. The catalogue is closed; there is no plugin
// surface.
var ErrUnknownPattern = errors.New("unknown pattern id")

type executor func(*execution.Context) execution.Result

// Engine dispatches pattern invocations. It owns the per-case join and
// instance trackers and the trigger scheduler the executors consult.
type Engine struct {
	joins     *join.Registry
	instances *multiinstance.Registry
	triggers  *trigger.Scheduler
	beats     *beat.Scheduler
	table     map[execution.PatternID]executor
}

// NewEngine returns an engine with fresh trackers. triggerStore may be nil;
// persistent triggers then live in memory only.
func NewEngine(triggerStore trigger.Store) *Engine {
	e := &Engine{
		joins:     join.NewRegistry(),
		instances: multiinstance.NewRegistry(),
		triggers:  trigger.NewScheduler(triggerStore),
		beats:     beat.NewScheduler(),
	}
	e.table = map[execution.PatternID]executor{
		1:  e.sequence,
		2:  e.parallelSplit,
		3:  e.synchronization,
		4:  e.exclusiveChoice,
		5:  e.simpleMerge,
		6:  e.multiChoice,
		7:  e.synchronizingMerge,
		8:  e.multiMerge,
		9:  e.structuredDiscriminator,
		10: e.arbitraryCycles,
		11: e.implicitTermination,
		12: e.miWithoutSync,
		13: e.miDesignTime,
		14: e.miRunTime,
		15: e.miUnbounded,
		16: e.deferredChoice,
		17: e.interleavedRouting,
		18: e.milestone,
		19: e.cancelActivity,
		20: e.cancelCase,
		21: e.cancelRegion,
		22: e.cancelMIActivity,
		23: e.completeMIActivity,
		24: e.blockingDiscriminator,
		25: e.cancellingDiscriminator,
		26: e.blockingPartialJoin,
		27: e.cancellingPartialJoin,
		28: e.structuredLoop,
		29: e.recursion,
		30: e.generalizedANDJoin,
		31: e.localSynchronizingMerge,
		32: e.cancelActivityInstance,
		33: e.cancelProcessInstance,
		34: e.stopProcessInstance,
		35: e.abortProcessInstance,
		36: e.disableActivity,
		37: e.skipActivity,
		38: e.multiThreadActivity,
		39: e.threadMerge,
		40: e.transientTrigger,
		41: e.persistentTrigger,
		42: e.autoStartTask,
		43: e.fireAndForget,
	}
	return e
}

// Triggers exposes the trigger scheduler for restore-at-startup and external
// signal delivery.
func (e *Engine) Triggers() *trigger.Scheduler {
	return e.triggers
}

// Beats exposes the beat scheduler driving pulse-aligned patterns.
func (e *Engine) Beats() *beat.Scheduler {
	return e.beats
}

// CompleteCase releases every tracker owned by a finished case.
func (e *Engine) CompleteCase(caseID string) {
	e.joins.DropCase(caseID)
	e.instances.DropCase(caseID)
}

// Execute runs one pattern invocation. The returned error covers only
// contract violations (unknown id, invalid context); pattern-level failures
// come back as success=false with variables["error"].
func (e *Engine) Execute(id execution.PatternID, ctx *execution.Context) (execution.Result, error) {
	if !id.Valid() {
		return execution.Result{}, fmt.Errorf("pattern %d: %w", id, ErrUnknownPattern)
	}
	if err := ctx.Validate(); err != nil {
		return execution.Result{}, err
	}
	return e.table[id](ctx), nil
}

// PatternIDs returns every id in the closed catalogue in ascending order.
func PatternIDs() []execution.PatternID {
	ids := make([]execution.PatternID, 0, execution.PatternCount)
	for id := execution.PatternID(1); id <= execution.PatternCount; id++ {
		ids = append(ids, id)
	}
	return ids
}

// Name returns the catalogue name for a pattern id, empty for invalid ids.
func Name(id execution.PatternID) string {
	return patternNames[id]
}

var patternNames = map[execution.PatternID]string{
	1:  "Sequence",
	2:  "Parallel Split",
	3:  "Synchronization",
	4:  "Exclusive Choice",
	5:  "Simple Merge",
	6:  "Multi-Choice",
	7:  "Structured Synchronizing Merge",
	8:  "Multi-Merge",
	9:  "Structured Discriminator",
	10: "Arbitrary Cycles",
	11: "Implicit Termination",
	12: "Multiple Instances Without Synchronization",
	13: "Multiple Instances With Design-Time Knowledge",
	14: "Multiple Instances With Run-Time Knowledge",
	15: "Multiple Instances Without Run-Time Knowledge",
	16: "Deferred Choice",
	17: "Interleaved Parallel Routing",
	18: "Milestone",
	19: "Cancel Activity",
	20: "Cancel Case",
	21: "Cancel Region",
	22: "Cancel Multiple Instance Activity",
	23: "Complete Multiple Instance Activity",
	24: "Blocking Discriminator",
	25: "Cancelling Discriminator",
	26: "Blocking Partial Join",
	27: "Cancelling Partial Join",
	28: "Structured Loop",
	29: "Recursion",
	30: "Generalized AND-Join",
	31: "Local Synchronizing Merge",
	32: "Cancel Activity Instance",
	33: "Cancel Process Instance",
	34: "Stop Process Instance",
	35: "Abort Process Instance",
	36: "Disable Activity",
	37: "Skip Activity",
	38: "Activity Instance in Multiple Threads",
	39: "Thread Merge",
	40: "Transient Trigger",
	41: "Persistent Trigger",
	42: "Auto-Start Task",
	43: "Fire-and-Forget",
}
