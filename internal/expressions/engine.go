package expressions

import "context"

// Engine evaluates expressions against run state.
// Three implementations: Expr (default conditions), CEL (alternative
// conditions), GoJQ (state transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
