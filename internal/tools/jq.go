package tools

import (
	"context"
	"errors"

	"github.com/halcyor/gantry/internal/expressions"
	"github.com/halcyor/gantry/pkg/schema"
)

// JQTool applies a jq program to the run state and replaces the state with
// the program's output. The program must produce a single object; anything
// else is an execution error, since the state contract is an open map.
type JQTool struct {
	name   string
	desc   string
	query  string
	engine *expressions.GoJQEngine
}

// NewJQTool creates a jq transform tool. The program is validated eagerly
// so a bad query fails at registration time, not mid-run.
func NewJQTool(name, description, query string, engine *expressions.GoJQEngine) (*JQTool, error) {
	if engine == nil {
		engine = expressions.NewGoJQEngine()
	}
	// Probe-compile against an empty object.
	if _, err := engine.Evaluate(context.Background(), query, map[string]any{}); err != nil {
		var gerr *schema.GantryError
		if errors.As(err, &gerr) && gerr.Code == schema.ErrCodeValidation {
			return nil, err
		}
		// Runtime errors against the empty probe are fine; the real state
		// may well satisfy the program.
	}
	return &JQTool{name: name, desc: description, query: query, engine: engine}, nil
}

func (t *JQTool) Name() string        { return t.name }
func (t *JQTool) Description() string { return t.desc }

// Transform runs the jq program with the state as input.
func (t *JQTool) Transform(ctx context.Context, state map[string]any) (map[string]any, error) {
	out, err := t.engine.Evaluate(ctx, t.query, state)
	if err != nil {
		return nil, err
	}
	result, ok := out.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"jq program %q produced %T, want object", t.query, out)
	}
	return result, nil
}
