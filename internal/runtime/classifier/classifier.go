// Package classifier assigns incoming operations to runtime tiers. The
// mapping is a pure lookup over a fixed operation catalogue: no mutable
// state, no I/O.
package classifier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tiger/tiered-workflow-runtime/api/runtimeclass"
	"github.com/tiger/tiered-workflow-runtime/internal/runtime/tick"
)

// ErrUnknownOperation is returned for operation names outside the catalogue.
// It is fatal to the single call, never to the process.
var ErrUnknownOperation = errors.New("unknown operation")

// hotEligible lists operations cheap enough for the hot tier when their
// input fits inside one tick budget: point lookups, existence checks,
// counts, single-value comparisons, datatype/uniqueness validation.
var hotEligible = map[string]bool{
	"ASK_SP":            true,
	"ASK_BN":            true,
	"COUNT_SP_EQ":       true,
	"COUNT_SP_GE":       true,
	"COMPARE_O_EQ":      true,
	"VALIDATE_DATATYPE": true,
	"VALIDATE_UNIQUE":   true,
}

// warmOnly lists structurally heavier operations that never qualify for the
// hot tier regardless of input size.
var warmOnly = map[string]bool{
	"CONSTRUCT8":    true,
	"AOT_TRANSFORM": true,
}

// coldOnly lists multi-result and whole-graph operations.
var coldOnly = map[string]bool{
	"SPARQL_SELECT":  true,
	"GRAPH_JOIN":     true,
	"SHACL_VALIDATE": true,
}

// hotInputLimit is the largest input size the hot tier accepts; one element
// per tick of the budget.
const hotInputLimit = tick.ChatmanConstant

// Classify maps an operation descriptor to its runtime tier.
func Classify(descriptor runtimeclass.OperationDescriptor) (runtimeclass.Class, error) {
	if err := descriptor.Validate(); err != nil {
		return "", err
	}
	name := strings.TrimSpace(descriptor.Name)

	switch {
	case hotEligible[name]:
		if descriptor.InputSize <= hotInputLimit {
			return runtimeclass.R1, nil
		}
		return runtimeclass.W1, nil
	case warmOnly[name]:
		return runtimeclass.W1, nil
	case coldOnly[name]:
		return runtimeclass.C1, nil
	default:
		return "", fmt.Errorf("classify %q: %w", name, ErrUnknownOperation)
	}
}

// KnownOperations returns the full catalogue, hot-to-cold, for diagnostics
// and conformance reporting.
func KnownOperations() []string {
	names := make([]string, 0, len(hotEligible)+len(warmOnly)+len(coldOnly))
	for _, set := range []map[string]bool{hotEligible, warmOnly, coldOnly} {
		for name := range set {
			names = append(names, name)
		}
	}
	return names
}
