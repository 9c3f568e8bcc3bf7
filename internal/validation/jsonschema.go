package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/halcyor/gantry/pkg/schema"
)

// graphSchemaJSON is the JSON Schema for the GraphDefinition wire format.
// Embedded as a constant to avoid filesystem dependencies.
const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://gantry.dev/schemas/graph.json",
  "type": "object",
  "required": ["nodes", "start_node"],
  "properties": {
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "string",
        "minLength": 1
      }
    },
    "edges": {
      "type": "object",
      "additionalProperties": {
        "type": "string",
        "minLength": 1
      }
    },
    "conditional_edges": {
      "type": "object",
      "additionalProperties": { "$ref": "#/$defs/conditional_edge" }
    },
    "start_node": {
      "type": "string",
      "minLength": 1
    },
    "state_schema": {
      "type": "object"
    }
  },
  "additionalProperties": false,
  "$defs": {
    "conditional_edge": {
      "type": "object",
      "required": ["condition"],
      "properties": {
        "condition": {
          "type": "string",
          "minLength": 1
        },
        "true_next": { "type": "string" },
        "false_next": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// GraphValidator checks graph definitions against the wire-format schema and
// initial run state against a graph's optional state schema.
// It is safe for concurrent use.
type GraphValidator struct {
	graphSchema *jsonschema.Schema

	// mu guards the cache for dynamic state-schema compilation.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewGraphValidator creates a GraphValidator with the graph schema pre-compiled.
func NewGraphValidator() (*GraphValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(graphSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal graph schema: %w", err)
	}
	if err := c.AddResource("https://gantry.dev/schemas/graph.json", doc); err != nil {
		return nil, fmt.Errorf("add graph schema resource: %w", err)
	}

	compiled, err := c.Compile("https://gantry.dev/schemas/graph.json")
	if err != nil {
		return nil, fmt.Errorf("compile graph schema: %w", err)
	}

	return &GraphValidator{
		graphSchema: compiled,
		cache:       make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateDefinition checks the wire shape of a graph definition. Structural
// rules beyond the wire shape (edge targets, start node membership) live in
// the graph package and run at execution time as well.
func (v *GraphValidator) ValidateDefinition(def *schema.GraphDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "graph definition is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize graph definition").WithCause(err)
	}

	if err := v.graphSchema.Validate(doc); err != nil {
		return toGantryError(err)
	}

	// Duplicate node names are legal JSON but never a legal graph.
	seen := make(map[string]struct{}, len(def.Nodes))
	for _, node := range def.Nodes {
		if _, exists := seen[node]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate node %q", node)
		}
		seen[node] = struct{}{}
	}

	return nil
}

// ValidateInitialState checks a run's initial state against the graph's
// declared state schema. A graph without a state schema accepts any map.
func (v *GraphValidator) ValidateInitialState(state map[string]any, stateSchema map[string]any) error {
	if len(stateSchema) == 0 {
		return nil
	}
	if state == nil {
		state = map[string]any{}
	}

	compiled, err := v.getOrCompile(stateSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid state schema").WithCause(err)
	}

	doc, err := toJSONValue(state)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize initial state").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toGantryError(err)
	}

	return nil
}

// getOrCompile returns a cached compiled state schema or compiles and caches
// a new one, keyed by the schema's serialized form.
func (v *GraphValidator) getOrCompile(stateSchema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(stateSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal state schema: %w", err)
	}
	key := string(raw)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal state schema: %w", err)
	}

	// Each dynamic schema gets a unique URL to avoid compiler collisions.
	url := fmt.Sprintf("gantry://state-schema/%d", len(v.cache))

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add state schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile state schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toGantryError converts a jsonschema.ValidationError into a GantryError
// with one message per violated constraint.
func toGantryError(err error) *schema.GantryError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
