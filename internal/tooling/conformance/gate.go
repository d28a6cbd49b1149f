// Package conformance executes the full pattern catalogue and the reference
// end-to-end scenarios against a fresh runtime and reports the outcome as a
// schema-validated JSON artifact. The gate is release tooling: a failed
// report blocks shipping, it never gates production dispatch.
package conformance

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tiger/tiered-workflow-runtime/api/execution"
	"github.com/tiger/tiered-workflow-runtime/api/runtimeclass"
	"github.com/tiger/tiered-workflow-runtime/internal/engine/patterns"
	"github.com/tiger/tiered-workflow-runtime/internal/observability/slo"
	"github.com/tiger/tiered-workflow-runtime/internal/runtime/dispatcher"
)

// ReportSchemaVersion pins the report artifact format.
const ReportSchemaVersion = "twr.conformance-report.v1"

//go:embed report_schema.json
var reportSchemaJSON string

// PatternResult is the outcome of one catalogue pattern check.
type PatternResult struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Group  string `json:"group"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ScenarioResult is the outcome of one end-to-end scenario.
type ScenarioResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// SLOResult is the per-tier latency window summary.
type SLOResult struct {
	Class    string `json:"class"`
	Samples  int    `json:"samples"`
	P99NS    int64  `json:"p99_ns"`
	TargetNS int64  `json:"target_ns"`
	Passed   bool   `json:"passed"`
}

// Report is the machine-readable conformance artifact.
type Report struct {
	SchemaVersion  string           `json:"schema_version"`
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Passed         bool             `json:"passed"`
	Patterns       []PatternResult  `json:"patterns"`
	Scenarios      []ScenarioResult `json:"scenarios"`
	SLO            []SLOResult      `json:"slo"`
	Violations     []string         `json:"violations,omitempty"`
}

// CanonicalInput returns the representative context the gate runs pattern id
// with. Every input exercises the pattern's success path.
func CanonicalInput(id execution.PatternID) *execution.Context {
	ctx := func(vars map[string]string, arrived ...string) *execution.Context {
		return &execution.Context{
			CaseID:      "conformance-case",
			WorkflowID:  "conformance-wf",
			ScopeID:     "conformance-scope",
			Variables:   vars,
			ArrivedFrom: arrived,
		}
	}
	inputs := map[execution.PatternID]*execution.Context{
		1:  ctx(map[string]string{"next": "b"}),
		2:  ctx(map[string]string{"branches": "a,b"}),
		3:  ctx(map[string]string{"join": "j", "expected": "1"}, "e1"),
		4:  ctx(map[string]string{"choices": "default->a"}),
		5:  ctx(nil, "e1"),
		6:  ctx(map[string]string{"choices": "default->a"}),
		7:  ctx(map[string]string{"join": "j", "active": "e1"}, "e1"),
		8:  ctx(nil, "e1"),
		9:  ctx(map[string]string{"join": "j", "expected": "2"}, "e1"),
		10: ctx(map[string]string{"iterations": "0", "max_iterations": "1", "loop": "back"}),
		11: ctx(map[string]string{"active_count": "0"}),
		12: ctx(map[string]string{"activity": "a", "instances": "1"}),
		13: ctx(map[string]string{"activity": "a", "instances": "1"}),
		14: ctx(map[string]string{"activity": "a", "instances": "1"}),
		15: ctx(map[string]string{"activity": "a"}),
		16: ctx(map[string]string{"options": "a,b", "chosen": "a"}),
		17: ctx(map[string]string{"activities": "a,b"}),
		18: ctx(map[string]string{"milestone": "m", "state": "m", "activity": "a"}),
		19: ctx(map[string]string{"activity": "a"}),
		20: ctx(map[string]string{"activities": "a"}),
		21: ctx(map[string]string{"region": "a"}),
		22: ctx(map[string]string{"activity": "a"}),
		23: ctx(map[string]string{"activity": "a", "instances": "2", "threshold": "1"}),
		24: ctx(map[string]string{"join": "j", "expected": "2"}, "e1"),
		25: ctx(map[string]string{"join": "j", "upstream": "e1,e2"}, "e1"),
		26: ctx(map[string]string{"join": "j", "expected": "2", "k": "1"}, "e1"),
		27: ctx(map[string]string{"join": "j", "expected": "2", "k": "1", "upstream": "e1,e2"}, "e1"),
		28: ctx(map[string]string{"body": "b", "continue": "false"}),
		29: ctx(map[string]string{"activity": "a", "depth": "0", "max_depth": "1"}),
		30: ctx(map[string]string{"join": "j", "active": "e1"}, "e1"),
		31: ctx(map[string]string{"join": "j", "active": "e1"}, "e1"),
		32: ctx(map[string]string{"instance": "a#1"}),
		33: ctx(map[string]string{"activities": "a"}),
		34: ctx(nil),
		35: ctx(map[string]string{"activities": "a"}),
		36: ctx(map[string]string{"activity": "a"}),
		37: ctx(map[string]string{"activity": "a", "next": "b"}),
		38: ctx(map[string]string{"activity": "a", "threads": "2"}),
		39: ctx(map[string]string{"join": "j", "threads": "1"}, "a@1"),
		40: ctx(map[string]string{"activity": "a"}),
		41: ctx(map[string]string{"activity": "a"}),
		42: ctx(map[string]string{"activity": "a", "cycle": "0"}),
		43: ctx(map[string]string{"activity": "a"}),
	}
	return inputs[id]
}

// Run executes the full gate and builds the report.
func Run() Report {
	report := Report{
		SchemaVersion:  ReportSchemaVersion,
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}
	violations := make([]string, 0)

	report.Patterns = evaluatePatterns(&violations)

	monitor, err := slo.NewMonitor(0)
	if err != nil {
		violations = append(violations, fmt.Sprintf("slo monitor: %v", err))
	}
	report.Scenarios = evaluateScenarios(monitor, &violations)
	report.SLO = evaluateSLO(monitor, &violations)

	report.Passed = len(violations) == 0
	report.Violations = normalizeViolations(violations)
	return report
}

// evaluatePatterns runs every catalogue pattern against its canonical input
// on a fresh engine, so tracker state never bleeds between checks.
func evaluatePatterns(violations *[]string) []PatternResult {
	out := make([]PatternResult, 0, execution.PatternCount)
	for _, id := range patterns.PatternIDs() {
		result := PatternResult{
			ID:    int(id),
			Name:  patterns.Name(id),
			Group: string(id.Group()),
		}
		engine := patterns.NewEngine(nil)
		execResult, err := engine.Execute(id, CanonicalInput(id))
		switch {
		case err != nil:
			result.Detail = err.Error()
		case !execResult.Success:
			result.Detail = execResult.Variables["error"]
		case !execResult.Observable():
			result.Detail = "result carries no observable output"
		default:
			result.Passed = true
		}
		if !result.Passed {
			*violations = append(*violations, fmt.Sprintf("pattern %d (%s): %s", id, result.Name, result.Detail))
		}
		out = append(out, result)
	}
	return out
}

func evaluateScenarios(monitor *slo.Monitor, violations *[]string) []ScenarioResult {
	scenarios := []struct {
		name string
		run  func() error
	}{
		{name: "hot_sequence", run: func() error { return runHotSequence(monitor) }},
		{name: "cold_query_slo", run: func() error { return runColdQuery(monitor) }},
		{name: "and_join_duplicate_edges", run: runAndJoin},
	}
	out := make([]ScenarioResult, 0, len(scenarios))
	for _, scenario := range scenarios {
		result := ScenarioResult{Name: scenario.name, Passed: true}
		if err := scenario.run(); err != nil {
			result.Passed = false
			result.Detail = err.Error()
			*violations = append(*violations, fmt.Sprintf("scenario %s: %v", scenario.name, err))
		}
		out = append(out, result)
	}
	return out
}

// runHotSequence covers the hot path end to end: a small point lookup lands
// on R1, passes the tick-budget guard, and runs a sequence step that
// preserves its variables.
func runHotSequence(monitor *slo.Monitor) error {
	d, err := dispatcher.New(dispatcher.Config{
		Engine:  patterns.NewEngine(nil),
		Monitor: monitor,
	})
	if err != nil {
		return err
	}
	outcome, err := d.Dispatch(dispatcher.Request{
		Operation: "ASK_SP",
		InputSize: 5,
		Pattern:   1,
		Context: &execution.Context{
			CaseID:     "conformance-case",
			WorkflowID: "conformance-wf",
			Variables:  map[string]string{"x": "1"},
		},
	})
	if err != nil {
		return err
	}
	if outcome.Class != runtimeclass.R1 {
		return fmt.Errorf("expected R1, got %s", outcome.Class)
	}
	if !outcome.Result.Success {
		return fmt.Errorf("sequence failed: %s", outcome.Result.Variables["error"])
	}
	if outcome.Result.Variables["x"] != "1" {
		return fmt.Errorf("variables not preserved: %+v", outcome.Result.Variables)
	}
	if len(outcome.Result.NextActivities) == 0 {
		return fmt.Errorf("no downstream activity")
	}
	return nil
}

// runColdQuery checks that a steady cold workload under the target produces
// no violation once the window holds enough samples to judge.
func runColdQuery(monitor *slo.Monitor) error {
	d, err := dispatcher.New(dispatcher.Config{
		Engine:  patterns.NewEngine(nil),
		Monitor: monitor,
	})
	if err != nil {
		return err
	}
	for i := 0; i < 150; i++ {
		if err := monitor.Record(runtimeclass.C1, 200_000_000); err != nil {
			return err
		}
	}
	outcome, err := d.Dispatch(dispatcher.Request{
		Operation: "SPARQL_SELECT",
		InputSize: 100,
		Pattern:   1,
		Context:   &execution.Context{CaseID: "conformance-case", WorkflowID: "conformance-wf"},
	})
	if err != nil {
		return err
	}
	if outcome.Class != runtimeclass.C1 {
		return fmt.Errorf("expected C1, got %s", outcome.Class)
	}
	if outcome.Violation != nil {
		return fmt.Errorf("unexpected violation: %+v", outcome.Violation)
	}
	return nil
}

// runAndJoin replays the duplicate-edge AND-join scenario: with three
// expected branches, edges e1, e2, and a duplicate e1 must not fire the
// join; e3 must.
func runAndJoin() error {
	engine := patterns.NewEngine(nil)
	arrive := func(edge string) (execution.Result, error) {
		return engine.Execute(3, &execution.Context{
			CaseID:      "conformance-case",
			WorkflowID:  "conformance-wf",
			ScopeID:     "j",
			Variables:   map[string]string{"expected": "3"},
			ArrivedFrom: []string{edge},
		})
	}
	for _, edge := range []string{"e1", "e2", "e1"} {
		result, err := arrive(edge)
		if err != nil {
			return err
		}
		if result.Updates == nil || result.Updates.JoinReady {
			return fmt.Errorf("join fired early on edge %s", edge)
		}
	}
	result, err := arrive("e3")
	if err != nil {
		return err
	}
	if result.Updates == nil || !result.Updates.JoinReady {
		return fmt.Errorf("join did not fire on the final distinct edge")
	}
	return nil
}

func evaluateSLO(monitor *slo.Monitor, violations *[]string) []SLOResult {
	out := make([]SLOResult, 0, len(runtimeclass.Classes()))
	for _, class := range runtimeclass.Classes() {
		result := SLOResult{
			Class:    string(class),
			Samples:  monitor.Samples(class),
			P99NS:    monitor.P99(class),
			TargetNS: class.Metadata().SLOP99NS,
			Passed:   true,
		}
		violation, err := monitor.Check(class)
		if err != nil {
			result.Passed = false
			*violations = append(*violations, fmt.Sprintf("slo %s: %v", class, err))
		} else if violation != nil {
			result.Passed = false
			*violations = append(*violations, fmt.Sprintf(
				"slo %s: p99 %dns exceeds target %dns", class, violation.P99LatencyNS, violation.SLOThresholdNS))
		}
		out = append(out, result)
	}
	return out
}

// Encode renders the report as indented JSON.
func (r Report) Encode() ([]byte, error) {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return raw, nil
}

// ValidateReport checks a serialized report against the embedded schema.
func ValidateReport(raw []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("report_schema.json", strings.NewReader(reportSchemaJSON)); err != nil {
		return fmt.Errorf("add report schema: %w", err)
	}
	schema, err := compiler.Compile("report_schema.json")
	if err != nil {
		return fmt.Errorf("compile report schema: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("report does not match schema: %w", err)
	}
	return nil
}

func normalizeViolations(violations []string) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
