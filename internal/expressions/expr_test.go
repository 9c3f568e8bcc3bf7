package expressions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/halcyor/gantry/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_BooleanLiteral(t *testing.T) {
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), "true", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_StateFieldAccess(t *testing.T) {
	e := NewExprEngine()
	data := map[string]any{
		"state": map[string]any{"score": 72, "syntax_valid": true},
	}

	t.Run("attribute style", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), "state.score < 80", data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("key style", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `state["syntax_valid"] == true`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})

	t.Run("conjunction", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), "state.score < 80 && state.syntax_valid", data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})
}

func TestExpr_MissingVariableIsNil(t *testing.T) {
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), "missing == nil", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_EmptyExpression(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "", map[string]any{})
	require.Error(t, err)

	var gerr *schema.GantryError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, schema.ErrCodeValidation, gerr.Code)
}

func TestExpr_CompileError(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "state.score <", map[string]any{})
	require.Error(t, err)

	var gerr *schema.GantryError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, schema.ErrCodeValidation, gerr.Code)
}

func TestExpr_CacheReuse(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	_, err := e.Evaluate(ctx, "1 + 1", map[string]any{})
	require.NoError(t, err)

	e.mu.RLock()
	_, cached := e.cache["1 + 1"]
	e.mu.RUnlock()
	assert.True(t, cached)
}

func TestExpr_ConcurrentEvaluation(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := e.Evaluate(ctx, "state.n > 0", map[string]any{
				"state": map[string]any{"n": 1},
			})
			assert.NoError(t, err)
			assert.Equal(t, true, out)
		}()
	}
	wg.Wait()
}
