package expressions

import (
	"context"
	"errors"
	"testing"

	"github.com/halcyor/gantry/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCELEngine(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())
}

func TestCEL_StateComparison(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"state": map[string]any{"score": 90},
	}

	out, evalErr := e.Evaluate(context.Background(), "state.score >= 80", data)
	require.NoError(t, evalErr)
	assert.Equal(t, true, out)
}

func TestCEL_MissingStateDefaultsToEmpty(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	// No "state" key at all — activation defaults to an empty map, so key
	// membership checks still work.
	out, evalErr := e.Evaluate(context.Background(), `"score" in state`, map[string]any{})
	require.NoError(t, evalErr)
	assert.Equal(t, false, out)
}

func TestCEL_MissingFieldIsRuntimeError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, evalErr := e.Evaluate(context.Background(), "state.absent > 0", map[string]any{
		"state": map[string]any{},
	})
	require.Error(t, evalErr)

	var gerr *schema.GantryError
	require.True(t, errors.As(evalErr, &gerr))
	assert.Equal(t, schema.ErrCodeExecution, gerr.Code)
}

func TestCEL_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, evalErr := e.Evaluate(context.Background(), "state.score >", map[string]any{})
	require.Error(t, evalErr)

	var gerr *schema.GantryError
	require.True(t, errors.As(evalErr, &gerr))
	assert.Equal(t, schema.ErrCodeValidation, gerr.Code)
}

func TestCEL_EmptyExpression(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, evalErr := e.Evaluate(context.Background(), "", map[string]any{})
	require.Error(t, evalErr)
}
