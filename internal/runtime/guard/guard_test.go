package guard

import (
	"math"
	"testing"
	"time"
)

func TestTickBudgetFullDomain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		budget uint64
		used   uint64
		pass   bool
	}{
		{0, 0, true},
		{0, 1, false},
		{8, 5, true},
		{8, 8, true},
		{8, 9, false},
		{math.MaxUint64, math.MaxUint64, true},
		{math.MaxUint64 - 1, math.MaxUint64, false},
		{math.MaxUint64, 0, true},
		{1 << 63, (1 << 63) - 1, true},
		{(1 << 63) - 1, 1 << 63, false},
	}
	for _, tc := range cases {
		ctx := Context{Params: [MaxParams]uint64{tc.budget, tc.used}}
		if got := TickBudget(ctx); got != tc.pass {
			t.Fatalf("budget=%d used=%d: expected %v, got %v", tc.budget, tc.used, tc.pass, got)
		}
	}
}

func TestRange(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value, min, max uint64
		pass            bool
	}{
		{5, 0, 10, true},
		{0, 0, 0, true},
		{11, 0, 10, false},
		{5, 6, 10, false},
		{math.MaxUint64, 0, math.MaxUint64, true},
		{math.MaxUint64, math.MaxUint64, 0, false},
		{1 << 63, 1, 1 << 63, true},
	}
	for _, tc := range cases {
		ctx := Context{Params: [MaxParams]uint64{tc.value, tc.min, tc.max}}
		if got := Range(ctx); got != tc.pass {
			t.Fatalf("value=%d min=%d max=%d: expected %v, got %v", tc.value, tc.min, tc.max, tc.pass, got)
		}
	}
}

func TestThreshold(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value, threshold uint64
		pass             bool
	}{
		{10, 10, true},
		{11, 10, true},
		{9, 10, false},
		{0, 0, true},
		{math.MaxUint64, 1, true},
		{1, math.MaxUint64, false},
	}
	for _, tc := range cases {
		ctx := Context{Params: [MaxParams]uint64{tc.value, tc.threshold}}
		if got := Threshold(ctx); got != tc.pass {
			t.Fatalf("value=%d threshold=%d: expected %v, got %v", tc.value, tc.threshold, tc.pass, got)
		}
	}
}

func TestAllConjunctionEvaluatesEveryGuard(t *testing.T) {
	t.Parallel()

	evaluated := 0
	counting := func(pass bool) Func {
		return func(Context) bool {
			evaluated++
			return pass
		}
	}

	if All(Context{}, counting(true), counting(false), counting(true)) {
		t.Fatalf("conjunction with a failing guard must fail")
	}
	if evaluated != 3 {
		t.Fatalf("hot-tier conjunction must evaluate all guards, evaluated %d", evaluated)
	}

	evaluated = 0
	if !All(Context{}, counting(true), counting(true)) {
		t.Fatalf("conjunction of passing guards must pass")
	}
	if evaluated != 2 {
		t.Fatalf("expected 2 evaluations, got %d", evaluated)
	}
}

func TestAllLazyShortCircuits(t *testing.T) {
	t.Parallel()

	evaluated := 0
	counting := func(pass bool) Func {
		return func(Context) bool {
			evaluated++
			return pass
		}
	}

	if AllLazy(Context{}, counting(false), counting(true)) {
		t.Fatalf("lazy conjunction with failing guard must fail")
	}
	if evaluated != 1 {
		t.Fatalf("warm-tier conjunction may stop at the first failure, evaluated %d", evaluated)
	}
}

// Differential timing: pass and fail inputs must not take measurably
// different paths through the predicate. The bound is deliberately loose to
// stay robust on shared CI machines; it catches a conditional branch, not
// micro-architectural jitter.
func TestTickBudgetTimingParity(t *testing.T) {
	passCtx := Context{Params: [MaxParams]uint64{8, 5}}
	failCtx := Context{Params: [MaxParams]uint64{8, 9}}

	const rounds = 5
	const iterations = 2_000_000

	measure := func(ctx Context) time.Duration {
		best := time.Duration(math.MaxInt64)
		for r := 0; r < rounds; r++ {
			sink := true
			start := time.Now()
			for i := 0; i < iterations; i++ {
				sink = TickBudget(ctx) && sink
			}
			elapsed := time.Since(start)
			_ = sink
			if elapsed < best {
				best = elapsed
			}
		}
		return best
	}

	passTime := measure(passCtx)
	failTime := measure(failCtx)

	slower, faster := passTime, failTime
	if failTime > passTime {
		slower, faster = failTime, passTime
	}
	if faster <= 0 {
		t.Skip("timer resolution too coarse for differential measurement")
	}
	if float64(slower)/float64(faster) > 3.0 {
		t.Fatalf("pass/fail timing diverges: pass=%v fail=%v", passTime, failTime)
	}
}
