package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGantryError_Error(t *testing.T) {
	err := NewError(ErrCodeNodeNotFound, "node not registered")
	assert.Equal(t, "[NODE_NOT_FOUND] node not registered", err.Error())

	err = err.WithNode("score_code")
	assert.Equal(t, "[NODE_NOT_FOUND] node score_code: node not registered", err.Error())
}

func TestGantryError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewErrorf(ErrCodeStore, "persist run: %s", cause.Error()).WithCause(cause)

	require.ErrorIs(t, err, cause)

	var gerr *GantryError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, ErrCodeStore, gerr.Code)
}

func TestGantryError_Details(t *testing.T) {
	err := NewError(ErrCodeInvalidGraph, "start node missing").
		WithDetails(map[string]any{"start_node": "a"})
	assert.Equal(t, "a", err.Details["start_node"])
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, RunStatusPending.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
	assert.True(t, RunStatusCompleted.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
}
