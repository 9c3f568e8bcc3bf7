package graph

import (
	"github.com/halcyor/gantry/pkg/schema"
)

// Validate checks a graph definition's structural well-formedness before any
// execution begins. It is purely structural: predicates are never evaluated
// and tools are never invoked. Rules are checked in a fixed order and the
// first failure wins; the returned error names the exact rule and the
// offending node.
func Validate(def *schema.GraphDefinition, startNode string) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeInvalidGraph, "graph definition is nil")
	}

	nodes := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		if n == schema.EndNode {
			return schema.NewErrorf(schema.ErrCodeInvalidGraph,
				"node name %q is reserved for the terminal marker", schema.EndNode)
		}
		nodes[n] = true
	}

	if !nodes[startNode] {
		return schema.NewErrorf(schema.ErrCodeInvalidGraph,
			"start node %q not found in graph nodes", startNode).
			WithDetails(map[string]any{"start_node": startNode})
	}

	for source, target := range def.Edges {
		if !nodes[source] {
			return schema.NewErrorf(schema.ErrCodeInvalidGraph,
				"edge source %q not in nodes", source)
		}
		if target != schema.EndNode && !nodes[target] {
			return schema.NewErrorf(schema.ErrCodeInvalidGraph,
				"edge target %q not in nodes", target)
		}
	}

	for source, edge := range def.ConditionalEdges {
		if !nodes[source] {
			return schema.NewErrorf(schema.ErrCodeInvalidGraph,
				"conditional edge source %q not in nodes", source)
		}
		trueNext := successorOrEnd(edge.TrueNext)
		falseNext := successorOrEnd(edge.FalseNext)
		if trueNext != schema.EndNode && !nodes[trueNext] {
			return schema.NewErrorf(schema.ErrCodeInvalidGraph,
				"conditional edge true_next %q not in nodes", trueNext)
		}
		if falseNext != schema.EndNode && !nodes[falseNext] {
			return schema.NewErrorf(schema.ErrCodeInvalidGraph,
				"conditional edge false_next %q not in nodes", falseNext)
		}
	}

	return nil
}

// successorOrEnd applies the default: an omitted conditional successor
// means the terminal marker.
func successorOrEnd(name string) string {
	if name == "" {
		return schema.EndNode
	}
	return name
}
