package budget

import (
	"testing"

	"github.com/tiger/tiered-workflow-runtime/api/runtimeclass"
)

func TestEvaluateDecisions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		class   runtimeclass.Class
		elapsed int64
		want    Action
	}{
		{"hot within budget", runtimeclass.R1, 0, ActionContinue},
		{"hot over budget", runtimeclass.R1, 3, ActionExhausted},
		{"warm under warning line", runtimeclass.W1, 400_000, ActionContinue},
		{"warm at warning line", runtimeclass.W1, 800_000, ActionWarn},
		{"warm at budget", runtimeclass.W1, 1_000_000, ActionWarn},
		{"warm over budget", runtimeclass.W1, 1_000_001, ActionExhausted},
		{"cold under warning line", runtimeclass.C1, 100_000_000, ActionContinue},
		{"cold over budget", runtimeclass.C1, 600_000_000, ActionExhausted},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			decision, err := Evaluate(tc.class, tc.elapsed)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if decision.Action != tc.want {
				t.Fatalf("action = %q, want %q (decision %+v)", decision.Action, tc.want, decision)
			}
			if decision.BudgetNS != tc.class.Metadata().BudgetNS {
				t.Fatalf("budget_ns = %d, want tier budget %d", decision.BudgetNS, tc.class.Metadata().BudgetNS)
			}
			if decision.UsedNS != tc.elapsed {
				t.Fatalf("used_ns = %d, want %d", decision.UsedNS, tc.elapsed)
			}
		})
	}
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := Evaluate(runtimeclass.Class("X9"), 10); err == nil {
		t.Fatal("expected unknown class to be rejected")
	}
	if _, err := Evaluate(runtimeclass.W1, -1); err == nil {
		t.Fatal("expected negative elapsed time to be rejected")
	}
}
