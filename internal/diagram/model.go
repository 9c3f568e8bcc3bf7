package diagram

// NodeKind classifies a diagram node.
type NodeKind string

const (
	NodeKindTool      NodeKind = "tool"
	NodeKindCondition NodeKind = "condition"
	NodeKindTerminal  NodeKind = "terminal"
)

// Model is the intermediate representation used by all renderers.
// Start names the entry node so renderers can mark it.
type Model struct {
	Title string
	Start string
	Nodes []*Node
	Edges []Edge
}

// Node represents a single graph node. Status is empty when no run
// overlay has been applied.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status string
}

// Edge represents a transition between two nodes. Label carries the
// condition text and branch for conditional transitions.
type Edge struct {
	From  string
	To    string
	Label string
}
