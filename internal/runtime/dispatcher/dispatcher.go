// Package dispatcher composes the execution path of one operation: classify
// into a tier, gate the hot tier through the branchless budget guard, run the
// pattern, mint and persist the receipt, record the latency sample, and emit
// telemetry. Everything observable about one execution leaves through here.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tiger/tiered-workflow-runtime/api/execution"
	"github.com/tiger/tiered-workflow-runtime/api/runtimeclass"
	"github.com/tiger/tiered-workflow-runtime/internal/engine/patterns"
	"github.com/tiger/tiered-workflow-runtime/internal/observability/receipt"
	"github.com/tiger/tiered-workflow-runtime/internal/observability/slo"
	"github.com/tiger/tiered-workflow-runtime/internal/observability/telemetry"
	"github.com/tiger/tiered-workflow-runtime/internal/runtime/beat"
	"github.com/tiger/tiered-workflow-runtime/internal/runtime/budget"
	"github.com/tiger/tiered-workflow-runtime/internal/runtime/classifier"
	"github.com/tiger/tiered-workflow-runtime/internal/runtime/executionpool"
	"github.com/tiger/tiered-workflow-runtime/internal/runtime/guard"
	"github.com/tiger/tiered-workflow-runtime/internal/runtime/tick"
	"github.com/tiger/tiered-workflow-runtime/internal/store/casestore"
	"github.com/tiger/tiered-workflow-runtime/internal/store/receiptlog"
)

// Request is one unit of work submitted for dispatch.
type Request struct {
	Operation string
	InputSize uint64
	Pattern   execution.PatternID
	Context   *execution.Context
}

// Outcome is everything one dispatch produced. Violation is diagnostic
// evidence only; a non-nil violation never fails the dispatch.
type Outcome struct {
	Class     runtimeclass.Class
	Result    execution.Result
	Receipt   runtimeclass.Receipt
	TicksUsed uint64
	LatencyNS int64
	Cycle     uint64
	Budget    budget.Decision
	Violation *runtimeclass.SloViolation
}

// Config wires the dispatcher's collaborators.
type Config struct {
	// Engine is required; all pattern execution goes through it.
	Engine *patterns.Engine
	// Monitor may be nil; a default-window monitor is created.
	Monitor *slo.Monitor
	// Receipts may be nil; receipts are then minted but not persisted.
	Receipts receiptlog.Log
	// Anchors may be nil; epoch roots are then not recorded.
	Anchors *receipt.Anchorer
	// Emitter may be nil; the process default emitter is used.
	Emitter telemetry.Emitter
	// Clock may be nil; receipts then carry system wall time.
	Clock receipt.Clock
	// ColdPool may be nil; cold-tier patterns then run inline instead of
	// through the bounded worker pool.
	ColdPool *executionpool.Pool
	// Cases may be nil; case state transitions are then not persisted.
	Cases casestore.Store
}

// Dispatcher runs operations through the tiered execution path.
type Dispatcher struct {
	engine    *patterns.Engine
	monitor   *slo.Monitor
	receipts  receiptlog.Log
	anchors   *receipt.Anchorer
	generator *receipt.Generator
	emitter   telemetry.Emitter
	coldPool  *executionpool.Pool
	cases     casestore.Store
	clock     receipt.Clock
}

// New constructs a dispatcher from its collaborators.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("pattern engine is required")
	}
	monitor := cfg.Monitor
	if monitor == nil {
		var err error
		monitor, err = slo.NewMonitor(0)
		if err != nil {
			return nil, fmt.Errorf("default slo monitor: %w", err)
		}
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = telemetry.DefaultEmitter()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{
		engine:    cfg.Engine,
		monitor:   monitor,
		receipts:  cfg.Receipts,
		anchors:   cfg.Anchors,
		generator: receipt.NewGenerator(cfg.Clock),
		emitter:   emitter,
		coldPool:  cfg.ColdPool,
		cases:     cfg.Cases,
		clock:     clock,
	}, nil
}

// Monitor exposes the latency monitor for diagnostics endpoints.
func (d *Dispatcher) Monitor() *slo.Monitor {
	return d.monitor
}

// Dispatch runs one operation end to end. The returned error covers contract
// violations (unknown operation or pattern, invalid context) and persistence
// failures; pattern-level failures come back in-band in Outcome.Result.
func (d *Dispatcher) Dispatch(req Request) (Outcome, error) {
	class, err := classifier.Classify(runtimeclass.OperationDescriptor{
		Name:      req.Operation,
		InputSize: req.InputSize,
	})
	if err != nil {
		return Outcome{}, err
	}

	cycle := d.engine.Beats().Next()
	d.sealAtPulse(cycle)

	meta := class.Metadata()
	result, err := d.execute(class, meta, req)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Class: class, Result: result.result, Cycle: cycle}
	outcome.LatencyNS = result.latencyNS
	outcome.TicksUsed = d.ticksUsed(class, req.InputSize, result.latencyNS)
	outcome.Budget, err = budget.Evaluate(class, d.budgetUsedNS(class, outcome))
	if err != nil {
		return Outcome{}, fmt.Errorf("evaluate budget: %w", err)
	}

	rcpt, err := d.mintReceipt(outcome)
	if err != nil {
		return Outcome{}, err
	}
	outcome.Receipt = rcpt

	if err := d.persistCase(req, outcome); err != nil {
		return Outcome{}, err
	}

	if err := d.monitor.Record(class, outcome.LatencyNS); err != nil {
		return Outcome{}, fmt.Errorf("record latency: %w", err)
	}
	violation, err := d.monitor.Check(class)
	if err != nil {
		return Outcome{}, fmt.Errorf("check slo: %w", err)
	}
	outcome.Violation = violation

	d.emit(req, outcome)
	return outcome, nil
}

type executed struct {
	result    execution.Result
	latencyNS int64
}

// execute runs the guarded pattern invocation. The hot tier gates through
// the branchless conjunction before any pattern code runs; its used-ticks
// operand is the input size, one element per tick of the budget. Warm and
// cold tiers carry nanosecond budgets enforced by measurement, not gates.
func (d *Dispatcher) execute(class runtimeclass.Class, meta runtimeclass.Metadata, req Request) (executed, error) {
	if class == runtimeclass.R1 {
		gctx := guard.Context{}
		gctx.Params[0] = meta.BudgetTicks
		gctx.Params[1] = req.InputSize
		if !guard.All(gctx, guard.TickBudget) {
			return executed{
				result: execution.Failure(fmt.Sprintf(
					"tick budget exceeded: %d elements over budget %d", req.InputSize, meta.BudgetTicks)),
			}, nil
		}
	}

	start := time.Now()
	result, err := d.run(class, req)
	elapsed := time.Since(start)
	if err != nil {
		return executed{}, err
	}
	return executed{result: result, latencyNS: elapsed.Nanoseconds()}, nil
}

// run invokes the pattern engine, routing cold-tier work through the
// bounded pool when one is configured so long queries queue instead of
// piling up unbounded.
func (d *Dispatcher) run(class runtimeclass.Class, req Request) (execution.Result, error) {
	if d.coldPool == nil || class != runtimeclass.C1 || req.Context == nil {
		return d.engine.Execute(req.Pattern, req.Context)
	}
	var result execution.Result
	err := d.coldPool.Do(context.Background(), req.Context.CaseID, func(context.Context) error {
		var runErr error
		result, runErr = d.engine.Execute(req.Pattern, req.Context)
		return runErr
	})
	return result, err
}

// ticksUsed derives the receipt tick count. Hot-tier work is sized in
// elements, one per tick; off the hot path ticks are converted from the
// observed wall latency at the reference clock rate.
func (d *Dispatcher) ticksUsed(class runtimeclass.Class, inputSize uint64, latencyNS int64) uint64 {
	if class == runtimeclass.R1 {
		return inputSize
	}
	return tick.ForDuration(time.Duration(latencyNS))
}

// budgetUsedNS picks the operand for the wall-budget decision. Hot-tier
// spend is accounted in ticks, so it converts back at the reference clock
// rate instead of using wall latency, which would be dominated by scheduler
// noise at nanosecond scale.
func (d *Dispatcher) budgetUsedNS(class runtimeclass.Class, outcome Outcome) int64 {
	if class == runtimeclass.R1 {
		return int64(outcome.TicksUsed / tick.TicksPerNS)
	}
	return outcome.LatencyNS
}

func (d *Dispatcher) mintReceipt(outcome Outcome) (runtimeclass.Receipt, error) {
	output, err := json.Marshal(outcome.Result)
	if err != nil {
		return runtimeclass.Receipt{}, fmt.Errorf("encode result: %w", err)
	}
	rcpt, err := d.generator.Generate(receipt.Input{
		SpanID: "span-" + uuid.NewString(),
		Ticks:  outcome.TicksUsed,
		Lanes:  1,
		Output: output,
	})
	if err != nil {
		return runtimeclass.Receipt{}, fmt.Errorf("mint receipt: %w", err)
	}
	if d.receipts != nil {
		if err := d.receipts.Append(rcpt); err != nil {
			return runtimeclass.Receipt{}, fmt.Errorf("persist receipt: %w", err)
		}
	}
	if d.anchors != nil {
		if err := d.anchors.Add(rcpt); err != nil {
			return runtimeclass.Receipt{}, err
		}
	}
	return rcpt, nil
}

// persistCase records the case's new state after an execution. The stored
// state is the pattern's transition when it declared one, otherwise the
// case stays running; terminating patterns without an explicit state land
// in "completed".
func (d *Dispatcher) persistCase(req Request, outcome Outcome) error {
	if d.cases == nil || req.Context == nil {
		return nil
	}
	state := outcome.Result.NextState
	if state == "" {
		if outcome.Result.Terminates {
			state = "completed"
		} else {
			state = "running"
		}
	}
	err := d.cases.Save(casestore.Case{
		ID:          req.Context.CaseID,
		WorkflowID:  req.Context.WorkflowID,
		State:       state,
		Variables:   outcome.Result.Variables,
		UpdatedAtMS: d.clock().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("persist case: %w", err)
	}
	return nil
}

// sealAtPulse closes the previous epoch's receipt anchor when the cycle
// opens a new epoch. Cycle zero opens the first epoch; there is nothing to
// seal behind it.
func (d *Dispatcher) sealAtPulse(cycle uint64) {
	if d.anchors == nil || cycle == 0 || beat.Pulse(cycle) != 1 {
		return
	}
	d.anchors.Seal(beat.Epoch(cycle) - 1)
}

func (d *Dispatcher) emit(req Request, outcome Outcome) {
	correlation := telemetry.Correlation{
		CaseID:     req.Context.CaseID,
		WorkflowID: req.Context.WorkflowID,
		SpanID:     outcome.Receipt.SpanID,
		Class:      string(outcome.Class),
		Operation:  req.Operation,
		EmittedBy:  "dispatcher",
	}
	attributes := map[string]string{
		"pattern": fmt.Sprintf("%d", req.Pattern),
		"budget":  string(outcome.Budget.Action),
	}
	if outcome.Budget.Action == budget.ActionExhausted {
		d.emitter.EmitLog("budget.exhausted", "warn",
			fmt.Sprintf("execution spent %dns of the %dns budget", outcome.Budget.UsedNS, outcome.Budget.BudgetNS),
			attributes, correlation)
	}
	d.emitter.EmitMetric(telemetry.MetricTicksUsed, float64(outcome.TicksUsed), "ticks", attributes, correlation)
	d.emitter.EmitMetric(telemetry.MetricLatencyNS, float64(outcome.LatencyNS), "ns", attributes, correlation)
	d.emitter.EmitMetric(telemetry.MetricReceiptsTotal, 1, "", attributes, correlation)
	if outcome.Violation != nil {
		d.emitter.EmitMetric(telemetry.MetricSLOViolations, 1, "", map[string]string{
			"class": string(outcome.Violation.Class),
		}, correlation)
	}
}
