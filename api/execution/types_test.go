package execution

import "testing"

func TestPatternIDValidity(t *testing.T) {
	t.Parallel()

	if PatternID(0).Valid() {
		t.Fatalf("pattern id 0 must be invalid")
	}
	if !PatternID(1).Valid() || !PatternID(43).Valid() {
		t.Fatalf("pattern ids 1 and 43 must be valid")
	}
	if PatternID(44).Valid() {
		t.Fatalf("pattern id 44 must be invalid")
	}
}

func TestPatternIDGroups(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id    PatternID
		group Group
	}{
		{1, GroupBasic},
		{5, GroupBasic},
		{6, GroupBranching},
		{11, GroupBranching},
		{12, GroupMultiInstance},
		{15, GroupMultiInstance},
		{16, GroupStateBased},
		{18, GroupStateBased},
		{19, GroupCancellation},
		{25, GroupCancellation},
		{26, GroupAdvanced},
		{39, GroupAdvanced},
		{40, GroupTrigger},
		{43, GroupTrigger},
	}
	for _, tc := range cases {
		if got := tc.id.Group(); got != tc.group {
			t.Fatalf("pattern %d: expected group %s, got %s", tc.id, tc.group, got)
		}
	}
	if PatternID(0).Group() != "" {
		t.Fatalf("out-of-range pattern id must map to empty group")
	}
}

func TestContextValidate(t *testing.T) {
	t.Parallel()

	valid := &Context{CaseID: "case-1", WorkflowID: "wf-1"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected context error: %v", err)
	}

	if err := (&Context{WorkflowID: "wf-1"}).Validate(); err == nil {
		t.Fatalf("expected missing case_id to fail validation")
	}
	if err := (&Context{CaseID: "case-1"}).Validate(); err == nil {
		t.Fatalf("expected missing workflow_id to fail validation")
	}
	var nilCtx *Context
	if err := nilCtx.Validate(); err == nil {
		t.Fatalf("expected nil context to fail validation")
	}
}

func TestFailureCarriesReasonInBand(t *testing.T) {
	t.Parallel()

	result := Failure("exclusive_choice_no_branch_matched")
	if result.Success {
		t.Fatalf("failure result must not report success")
	}
	if result.Variables["error"] != "exclusive_choice_no_branch_matched" {
		t.Fatalf("expected error variable, got %+v", result.Variables)
	}
	if !result.Observable() {
		t.Fatalf("failure result must still be observable")
	}
}

func TestObservable(t *testing.T) {
	t.Parallel()

	if (Result{Success: true}).Observable() {
		t.Fatalf("empty result must not be observable")
	}
	if !(Result{Success: true, Terminates: true}).Observable() {
		t.Fatalf("terminating result must be observable")
	}
	if !(Result{Success: true, NextActivities: []string{"a"}}).Observable() {
		t.Fatalf("result with next activities must be observable")
	}
}
