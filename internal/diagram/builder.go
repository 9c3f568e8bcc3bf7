package diagram

import (
	"github.com/halcyor/gantry/pkg/schema"
)

// FromDefinition builds a renderable model from a graph definition.
// Conditional transitions become a pair of labeled edges and any
// transition to the terminal marker materializes a single end node.
func FromDefinition(title string, def *schema.GraphDefinition) *Model {
	m := &Model{
		Title: title,
		Start: def.StartNode,
	}

	for _, name := range def.Nodes {
		kind := NodeKindTool
		if _, ok := def.ConditionalEdges[name]; ok {
			kind = NodeKindCondition
		}
		m.Nodes = append(m.Nodes, &Node{ID: name, Label: name, Kind: kind})
	}

	needsEnd := false
	for _, name := range def.Nodes {
		if cond, ok := def.ConditionalEdges[name]; ok {
			trueNext := branchTarget(cond.TrueNext)
			falseNext := branchTarget(cond.FalseNext)
			m.Edges = append(m.Edges,
				Edge{From: name, To: trueNext, Label: truncate(cond.Condition, 40)},
				Edge{From: name, To: falseNext, Label: "else"},
			)
			needsEnd = needsEnd || trueNext == schema.EndNode || falseNext == schema.EndNode
			continue
		}
		next, ok := def.Edges[name]
		if !ok || next == schema.EndNode {
			next = schema.EndNode
			needsEnd = true
		}
		m.Edges = append(m.Edges, Edge{From: name, To: next})
	}

	if needsEnd {
		m.Nodes = append(m.Nodes, &Node{ID: schema.EndNode, Label: "end", Kind: NodeKindTerminal})
	}
	return m
}

// ApplyRunOverlay annotates nodes with per-node statuses from a run's
// logs. current, when non-empty, marks the node about to execute.
func ApplyRunOverlay(m *Model, statuses map[string]string, current string) {
	for _, node := range m.Nodes {
		if s, ok := statuses[node.ID]; ok {
			node.Status = s
		}
		if node.ID == current && node.Status == "" {
			node.Status = "running"
		}
	}
}

func branchTarget(next string) string {
	if next == "" {
		return schema.EndNode
	}
	return next
}

// truncate shortens s to max runes, never splitting a multi-byte rune.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
