package tools

import (
	"context"
	"testing"

	"github.com/halcyor/gantry/internal/engine"
	"github.com/halcyor/gantry/internal/expressions"
	"github.com/halcyor/gantry/internal/registry"
	"github.com/halcyor/gantry/internal/store"
	"github.com/halcyor/gantry/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReviewEngine(t *testing.T) *engine.Engine {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, RegisterReviewTools(reg))
	eval := expressions.NewEvaluator(expressions.NewExprEngine(), nil)
	return engine.NewEngine(reg, store.NewMemoryStore(), eval, nil, engine.Config{}, nil)
}

func TestReviewWorkflow_CleanSourceSinglePass(t *testing.T) {
	e := newReviewEngine(t)

	run, err := e.Execute(context.Background(), "review", ReviewGraph(), map[string]any{
		"code": cleanSource,
	})
	require.NoError(t, err)

	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, 100, run.State["score"])
	assert.Equal(t, false, run.State["needs_refinement"])

	// analyze, check, score. No refine pass.
	require.Len(t, run.Logs, 3)
	assert.Equal(t, "analyze_syntax", run.Logs[0].Node)
	assert.Equal(t, "check_style", run.Logs[1].Node)
	assert.Equal(t, "score_code", run.Logs[2].Node)
}

func TestReviewWorkflow_RefineLoopImprovesScore(t *testing.T) {
	e := newReviewEngine(t)

	run, err := e.Execute(context.Background(), "review", ReviewGraph(), map[string]any{
		"code": printfSource,
	})
	require.NoError(t, err)

	assert.Equal(t, schema.RunStatusCompleted, run.Status)

	// At least one refine pass happened and the loop terminated.
	var refines int
	for _, entry := range run.Logs {
		if entry.Node == "refine_code" {
			refines++
		}
	}
	assert.GreaterOrEqual(t, refines, 1)
	assert.LessOrEqual(t, refines, MaxRefinementIterations)

	// The rewrite removed the fmt.Print* calls.
	code := run.State["code"].(string)
	assert.NotContains(t, code, "fmt.Println(")
	assert.Contains(t, code, "log.Println(")
}

func TestReviewWorkflow_LoopIsBounded(t *testing.T) {
	e := newReviewEngine(t)

	// Syntax errors cannot be refined away, so only the iteration guard in
	// the predicate ends the loop.
	run, err := e.Execute(context.Background(), "review", ReviewGraph(), map[string]any{
		"code": "package demo\nfunc {",
	})
	require.NoError(t, err)

	assert.Equal(t, schema.RunStatusCompleted, run.Status)

	var refines int
	for _, entry := range run.Logs {
		if entry.Node == "refine_code" {
			refines++
		}
	}
	assert.Equal(t, MaxRefinementIterations, refines)
}
