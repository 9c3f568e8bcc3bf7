package schema

// EndNode is the reserved terminal marker. It is a valid edge target but
// never a real node name; reaching it ends the traversal.
const EndNode = "__end__"

// GraphDefinition is the JSON-serializable workflow graph format.
// Nodes name the processing steps; edges and conditional edges wire them.
type GraphDefinition struct {
	Nodes            []string                   `json:"nodes"`
	Edges            map[string]string          `json:"edges,omitempty"`
	ConditionalEdges map[string]ConditionalEdge `json:"conditional_edges,omitempty"`
	StartNode        string                     `json:"start_node"`
	// StateSchema optionally declares a JSON Schema for the run's initial
	// state, checked at run creation time.
	StateSchema map[string]any `json:"state_schema,omitempty"`
}

// ConditionalEdge picks one of two successors by evaluating a predicate
// over the state produced by the source node. An omitted successor
// defaults to EndNode.
type ConditionalEdge struct {
	Condition string `json:"condition"`
	TrueNext  string `json:"true_next,omitempty"`
	FalseNext string `json:"false_next,omitempty"`
}

// HasNode reports whether name is declared in the node set.
func (g *GraphDefinition) HasNode(name string) bool {
	for _, n := range g.Nodes {
		if n == name {
			return true
		}
	}
	return false
}
