package slo

import (
	"testing"

	"github.com/tiger/tiered-workflow-runtime/api/runtimeclass"
)

func newTestMonitor(t *testing.T, window int) *Monitor {
	t.Helper()
	m, err := NewMonitor(window)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return m
}

func recordN(t *testing.T, m *Monitor, class runtimeclass.Class, n int, ns int64) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := m.Record(class, ns); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
}

func TestP99ZeroBelowMinimumSamples(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, 0)
	recordN(t, m, runtimeclass.W1, 99, 5_000_000)
	if got := m.P99(runtimeclass.W1); got != 0 {
		t.Fatalf("99 samples must yield p99 == 0, got %d", got)
	}
	if err := m.Record(runtimeclass.W1, 5_000_000); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := m.P99(runtimeclass.W1); got != 5_000_000 {
		t.Fatalf("100 uniform samples must yield the sample value, got %d", got)
	}
}

func TestP99UniformSamples(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, 0)
	recordN(t, m, runtimeclass.C1, 100, 42)
	if got := m.P99(runtimeclass.C1); got != 42 {
		t.Fatalf("expected p99 == 42, got %d", got)
	}
}

func TestP99PicksTailSample(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, 0)
	// 99 fast samples and one slow outlier: the p99 rank lands on the
	// outlier.
	recordN(t, m, runtimeclass.W1, 99, 1_000)
	if err := m.Record(runtimeclass.W1, 9_000_000); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := m.P99(runtimeclass.W1); got != 9_000_000 {
		t.Fatalf("expected the tail outlier at p99, got %d", got)
	}
}

func TestWindowEvictsOldestSamples(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, 100)
	recordN(t, m, runtimeclass.W1, 100, 9_000_000)
	recordN(t, m, runtimeclass.W1, 100, 1_000)

	if got := m.Samples(runtimeclass.W1); got != 100 {
		t.Fatalf("window of 100 must hold 100 samples, got %d", got)
	}
	if got := m.P99(runtimeclass.W1); got != 1_000 {
		t.Fatalf("old slow samples must be evicted, p99 = %d", got)
	}
}

func TestCheckNoViolationWithinTarget(t *testing.T) {
	t.Parallel()

	// Cold-tier target is 500ms; 150 samples of 200ms stay compliant.
	m := newTestMonitor(t, 0)
	recordN(t, m, runtimeclass.C1, 150, 200_000_000)

	violation, err := m.Check(runtimeclass.C1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if violation != nil {
		t.Fatalf("200ms p99 against a 500ms target must not violate: %+v", violation)
	}
}

func TestCheckReportsViolation(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, 0)
	recordN(t, m, runtimeclass.W1, 150, 2_000_000)

	violation, err := m.Check(runtimeclass.W1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if violation == nil {
		t.Fatalf("2ms p99 against a 1ms target must violate")
	}
	if violation.Class != runtimeclass.W1 {
		t.Fatalf("unexpected class %q", violation.Class)
	}
	if violation.P99LatencyNS != 2_000_000 || violation.SLOThresholdNS != 1_000_000 {
		t.Fatalf("unexpected violation payload: %+v", violation)
	}
	if violation.ViolationPercent != 100 {
		t.Fatalf("expected 100%% overshoot, got %f", violation.ViolationPercent)
	}
}

func TestCheckSilentBelowMinimumSamples(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, 0)
	recordN(t, m, runtimeclass.R1, 50, 1_000_000)
	violation, err := m.Check(runtimeclass.R1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if violation != nil {
		t.Fatalf("too few samples must not produce a violation: %+v", violation)
	}
}

func TestRecordRejectsBadInput(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, 0)
	if err := m.Record("X9", 1); err == nil {
		t.Fatalf("expected unknown class to fail")
	}
	if err := m.Record(runtimeclass.R1, -1); err == nil {
		t.Fatalf("expected negative latency to fail")
	}
	if _, err := m.Check("X9"); err == nil {
		t.Fatalf("expected check on unknown class to fail")
	}
}

func TestNewMonitorRejectsTinyWindow(t *testing.T) {
	t.Parallel()

	if _, err := NewMonitor(10); err == nil {
		t.Fatalf("expected window below the sample floor to fail")
	}
}

func TestTiersAreIsolated(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, 0)
	recordN(t, m, runtimeclass.W1, 150, 9_000_000)
	if got := m.P99(runtimeclass.C1); got != 0 {
		t.Fatalf("recording W1 must not affect C1, got %d", got)
	}
}
