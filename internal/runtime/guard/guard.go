// Package guard implements the branchless predicate gates that sit between
// classification and pattern execution. Predicates are total over the full
// uint64 domain and compute pass/fail through arithmetic and bitmask
// identities, so the instruction path does not diverge between outcomes and
// evaluation cost stays bounded regardless of the verdict.
package guard

// MaxParams is the fixed parameter capacity of a guard context.
const MaxParams = 8

// Context carries up to eight numeric parameters on the stack. It is created
// immediately before a guard check, owned by the calling frame, and never
// retained.
type Context struct {
	Params [MaxParams]uint64
}

// Func is a total guard predicate.
type Func func(Context) bool

// ltMask returns 1 when x < y over the full uint64 domain, 0 otherwise,
// using sign-bit extraction instead of a comparison branch.
func ltMask(x, y uint64) uint64 {
	return ((^x & y) | (^(x ^ y) & (x - y))) >> 63
}

// leMask returns 1 when x <= y, 0 otherwise.
func leMask(x, y uint64) uint64 {
	return ltMask(y, x) ^ 1
}

// TickBudget passes iff params[1] (used ticks) <= params[0] (budget ticks).
// Holds for the full uint64 domain, including a zero budget.
func TickBudget(ctx Context) bool {
	return leMask(ctx.Params[1], ctx.Params[0]) == 1
}

// Range passes iff params[0] (value) lies in [params[1], params[2]].
func Range(ctx Context) bool {
	return leMask(ctx.Params[1], ctx.Params[0])&leMask(ctx.Params[0], ctx.Params[2]) == 1
}

// Threshold passes iff params[0] (value) >= params[1] (threshold).
func Threshold(ctx Context) bool {
	return leMask(ctx.Params[1], ctx.Params[0]) == 1
}

// All evaluates every guard and conjoins the verdicts. Hot-tier gates must
// not short-circuit: a data-dependent early exit would reintroduce a
// verdict-dependent cost, so every guard runs even after a failure.
func All(ctx Context, guards ...Func) bool {
	pass := uint64(1)
	for _, g := range guards {
		pass &= verdictMask(g(ctx))
	}
	return pass == 1
}

// AllLazy is the warm/cold-tier conjunction. Tick-exactness does not apply
// off the hot path, so short-circuiting is allowed there.
func AllLazy(ctx Context, guards ...Func) bool {
	for _, g := range guards {
		if !g(ctx) {
			return false
		}
	}
	return true
}

func verdictMask(pass bool) uint64 {
	var v uint64
	if pass {
		v = 1
	}
	return v
}
