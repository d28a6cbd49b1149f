// Package budget evaluates observed execution latency against each tier's
// wall-clock budget. Budgets are enforced by measurement after the fact;
// the decision tells the caller how to treat the overrun, it never preempts
// running work.
package budget

import (
	"fmt"

	"github.com/tiger/tiered-workflow-runtime/api/runtimeclass"
)

// Action is the deterministic budget decision.
type Action string

const (
	// ActionContinue means the execution fit its budget.
	ActionContinue Action = "continue"
	// ActionWarn means the execution crossed the warning fraction but not
	// the budget itself.
	ActionWarn Action = "warn"
	// ActionExhausted means the execution overran its budget. Overruns are
	// diagnostic evidence feeding the SLO monitor, not failures.
	ActionExhausted Action = "exhausted"
)

// warnNumerator/warnDenominator place the warning line at 80% of budget.
const (
	warnNumerator   = 4
	warnDenominator = 5
)

// Decision is the outcome of one budget evaluation.
type Decision struct {
	Action   Action `json:"action"`
	BudgetNS int64  `json:"budget_ns"`
	UsedNS   int64  `json:"used_ns"`
}

// Evaluate compares observed latency to the tier's wall budget.
func Evaluate(class runtimeclass.Class, elapsedNS int64) (Decision, error) {
	if !class.Valid() {
		return Decision{}, fmt.Errorf("unknown runtime class %q", class)
	}
	if elapsedNS < 0 {
		return Decision{}, fmt.Errorf("elapsed_ns must be >= 0, got %d", elapsedNS)
	}
	budgetNS := class.Metadata().BudgetNS
	decision := Decision{BudgetNS: budgetNS, UsedNS: elapsedNS}

	warnAt := budgetNS * warnNumerator / warnDenominator
	switch {
	case elapsedNS > budgetNS:
		decision.Action = ActionExhausted
	case elapsedNS >= warnAt:
		decision.Action = ActionWarn
	default:
		decision.Action = ActionContinue
	}
	return decision, nil
}
