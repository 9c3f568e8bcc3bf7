package expressions

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Evaluator folds predicate evaluation into a branch decision. Predicates see
// a single variable, "state", holding a read-only copy of the run state. Any
// compile or evaluation error — including referencing a field the state does
// not have — resolves to false, so a broken or premature predicate degrades
// the branch instead of failing the run.
type Evaluator struct {
	engine Engine
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator backed by the given engine.
func NewEvaluator(engine Engine, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{engine: engine, logger: logger}
}

// Condition evaluates the predicate expression against the state and reports
// the branch decision. An empty expression is false.
func (ev *Evaluator) Condition(ctx context.Context, expression string, state map[string]any) bool {
	if expression == "" {
		return false
	}

	out, err := ev.engine.Evaluate(ctx, expression, map[string]any{
		"state": DeepCopyMap(state),
	})
	if err != nil {
		ev.logger.DebugContext(ctx, "condition folded to false",
			slog.String("expression", expression),
			slog.String("error", err.Error()))
		return false
	}

	return Truthy(out)
}

// Truthy reduces an evaluation result to a boolean: nil and zero values are
// false, non-empty collections and non-zero numbers are true.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case uint64:
		return val != 0
	case float64:
		return val != 0
	case map[string]any:
		return len(val) > 0
	case []any:
		return len(val) > 0
	default:
		return false
	}
}

// DeepCopyMap recursively copies a string-keyed map.
func DeepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies a value.
// Handles maps, slices, and primitives (which are inherently immutable).
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, item := range val {
			cp[k] = deepCopyAny(item)
		}
		return cp
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		return val
	}
}
