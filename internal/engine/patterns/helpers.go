package patterns

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tiger/tiered-workflow-runtime/api/execution"
)

// splitList parses a comma-separated variable into trimmed, non-empty
// entries.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// intVar parses a required non-negative integer variable.
func intVar(ctx *execution.Context, name string) (int, error) {
	raw := strings.TrimSpace(ctx.Var(name))
	if raw == "" {
		return 0, fmt.Errorf("variable %q is required", name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("variable %q must be an integer, got %q", name, raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("variable %q must be >= 0, got %d", name, n)
	}
	return n, nil
}

// copyVars clones the context variables so results never alias caller state.
func copyVars(ctx *execution.Context) map[string]string {
	if len(ctx.Variables) == 0 {
		return nil
	}
	out := make(map[string]string, len(ctx.Variables))
	for k, v := range ctx.Variables {
		out[k] = v
	}
	return out
}

// choice is one (predicate, branch) pair of a choice pattern.
type choice struct {
	key      string
	value    string
	branch   string
	fallback bool
}

// matches evaluates the pair's predicate against the context.
func (c choice) matches(ctx *execution.Context) bool {
	if c.fallback {
		return true
	}
	return ctx.Var(c.key) == c.value
}

// parseChoices parses the ordered pair list of a choice pattern. Pairs are
// separated by ";"; each pair is "key=value->branch" or "default->branch".
func parseChoices(raw string) ([]choice, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("variable \"choices\" is required")
	}
	var out []choice
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		cond, branch, found := strings.Cut(pair, "->")
		cond = strings.TrimSpace(cond)
		branch = strings.TrimSpace(branch)
		if !found || branch == "" {
			return nil, fmt.Errorf("malformed choice pair %q", pair)
		}
		if cond == "default" {
			out = append(out, choice{branch: branch, fallback: true})
			continue
		}
		key, value, ok := strings.Cut(cond, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed choice predicate %q", cond)
		}
		out = append(out, choice{key: key, value: strings.TrimSpace(value), branch: branch})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("variable \"choices\" holds no pairs")
	}
	return out, nil
}
