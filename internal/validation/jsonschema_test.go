package validation

import (
	"testing"

	"github.com/halcyor/gantry/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *GraphValidator {
	t.Helper()
	v, err := NewGraphValidator()
	require.NoError(t, err)
	return v
}

func validDef() *schema.GraphDefinition {
	return &schema.GraphDefinition{
		Nodes: []string{"a", "b"},
		Edges: map[string]string{"a": "b"},
		ConditionalEdges: map[string]schema.ConditionalEdge{
			"b": {Condition: "state.x > 0", TrueNext: "a"},
		},
		StartNode: "a",
	}
}

func TestValidateDefinition_Valid(t *testing.T) {
	v := newValidator(t)
	require.NoError(t, v.ValidateDefinition(validDef()))
}

func TestValidateDefinition_Nil(t *testing.T) {
	v := newValidator(t)
	err := v.ValidateDefinition(nil)
	require.Error(t, err)

	var gerr *schema.GantryError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, schema.ErrCodeValidation, gerr.Code)
}

func TestValidateDefinition_EmptyNodes(t *testing.T) {
	v := newValidator(t)
	def := &schema.GraphDefinition{Nodes: []string{}, StartNode: "a"}

	err := v.ValidateDefinition(def)
	require.Error(t, err)

	var gerr *schema.GantryError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, schema.ErrCodeValidation, gerr.Code)
}

func TestValidateDefinition_MissingStartNode(t *testing.T) {
	v := newValidator(t)
	def := &schema.GraphDefinition{Nodes: []string{"a"}}

	err := v.ValidateDefinition(def)
	require.Error(t, err)
}

func TestValidateDefinition_EmptyCondition(t *testing.T) {
	v := newValidator(t)
	def := validDef()
	def.ConditionalEdges["b"] = schema.ConditionalEdge{Condition: "", TrueNext: "a"}

	err := v.ValidateDefinition(def)
	require.Error(t, err)
}

func TestValidateDefinition_DuplicateNodes(t *testing.T) {
	v := newValidator(t)
	def := validDef()
	def.Nodes = []string{"a", "b", "a"}

	err := v.ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node")
}

func TestValidateInitialState_NoSchemaAcceptsAnything(t *testing.T) {
	v := newValidator(t)
	require.NoError(t, v.ValidateInitialState(map[string]any{"anything": 1}, nil))
	require.NoError(t, v.ValidateInitialState(nil, nil))
}

func TestValidateInitialState_EnforcesSchema(t *testing.T) {
	v := newValidator(t)
	stateSchema := map[string]any{
		"type":     "object",
		"required": []any{"code"},
		"properties": map[string]any{
			"code": map[string]any{"type": "string"},
		},
	}

	require.NoError(t, v.ValidateInitialState(map[string]any{"code": "package x"}, stateSchema))

	err := v.ValidateInitialState(map[string]any{}, stateSchema)
	require.Error(t, err)
	var gerr *schema.GantryError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, schema.ErrCodeValidation, gerr.Code)

	err = v.ValidateInitialState(map[string]any{"code": 42}, stateSchema)
	require.Error(t, err)
}

func TestValidateInitialState_SchemaCached(t *testing.T) {
	v := newValidator(t)
	stateSchema := map[string]any{"type": "object"}

	require.NoError(t, v.ValidateInitialState(map[string]any{}, stateSchema))
	require.NoError(t, v.ValidateInitialState(map[string]any{"x": 1}, stateSchema))

	v.mu.RLock()
	defer v.mu.RUnlock()
	assert.Len(t, v.cache, 1)
}

func TestValidateInitialState_BadSchema(t *testing.T) {
	v := newValidator(t)
	err := v.ValidateInitialState(map[string]any{}, map[string]any{"type": 12345})
	require.Error(t, err)
}
