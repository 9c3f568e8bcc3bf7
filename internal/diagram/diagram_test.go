package diagram

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyor/gantry/pkg/schema"
)

func linearGraph() *schema.GraphDefinition {
	return &schema.GraphDefinition{
		Nodes:     []string{"fetch", "transform", "persist"},
		Edges:     map[string]string{"fetch": "transform", "transform": "persist"},
		StartNode: "fetch",
	}
}

func branchingGraph() *schema.GraphDefinition {
	return &schema.GraphDefinition{
		Nodes: []string{"score", "retry"},
		Edges: map[string]string{"retry": "score"},
		ConditionalEdges: map[string]schema.ConditionalEdge{
			"score": {Condition: "state.score < 80", TrueNext: "retry"},
		},
		StartNode: "score",
	}
}

func TestFromDefinitionLinear(t *testing.T) {
	m := FromDefinition("pipeline", linearGraph())

	assert.Equal(t, "pipeline", m.Title)
	assert.Equal(t, "fetch", m.Start)
	require.Len(t, m.Nodes, 4) // three tools plus the end node
	assert.Equal(t, NodeKindTerminal, m.Nodes[3].Kind)
	assert.Equal(t, schema.EndNode, m.Nodes[3].ID)

	require.Len(t, m.Edges, 3)
	assert.Equal(t, Edge{From: "persist", To: schema.EndNode}, m.Edges[2])
}

func TestFromDefinitionConditional(t *testing.T) {
	m := FromDefinition("loop", branchingGraph())

	var score *Node
	for _, n := range m.Nodes {
		if n.ID == "score" {
			score = n
		}
	}
	require.NotNil(t, score)
	assert.Equal(t, NodeKindCondition, score.Kind)

	// Conditional source contributes a labeled true edge and an else edge.
	var labels []string
	for _, e := range m.Edges {
		if e.From == "score" {
			labels = append(labels, e.Label)
		}
	}
	assert.Equal(t, []string{"state.score < 80", "else"}, labels)

	// Omitted false branch routes to the end node.
	found := false
	for _, e := range m.Edges {
		if e.From == "score" && e.To == schema.EndNode {
			found = true
		}
	}
	assert.True(t, found)
}

func TestFromDefinitionTruncatesLongConditions(t *testing.T) {
	def := branchingGraph()
	cond := def.ConditionalEdges["score"]
	cond.Condition = strings.Repeat("state.x > 1 && ", 10)
	def.ConditionalEdges["score"] = cond

	m := FromDefinition("loop", def)
	for _, e := range m.Edges {
		if e.From == "score" && e.Label != "else" {
			assert.LessOrEqual(t, len([]rune(e.Label)), 40)
			assert.True(t, strings.HasSuffix(e.Label, "..."))
		}
	}
}

func TestFromDefinitionTruncatesOnRuneBoundary(t *testing.T) {
	def := branchingGraph()
	cond := def.ConditionalEdges["score"]
	cond.Condition = `state.label == "` + strings.Repeat("é", 50) + `"`
	def.ConditionalEdges["score"] = cond

	m := FromDefinition("loop", def)
	for _, e := range m.Edges {
		if e.From == "score" && e.Label != "else" {
			assert.True(t, utf8.ValidString(e.Label))
			assert.Equal(t, 40, len([]rune(e.Label)))
			assert.True(t, strings.HasSuffix(e.Label, "..."))
		}
	}
}

func TestApplyRunOverlay(t *testing.T) {
	m := FromDefinition("pipeline", linearGraph())
	ApplyRunOverlay(m, map[string]string{"fetch": "completed"}, "transform")

	byID := map[string]*Node{}
	for _, n := range m.Nodes {
		byID[n.ID] = n
	}
	assert.Equal(t, "completed", byID["fetch"].Status)
	assert.Equal(t, "running", byID["transform"].Status)
	assert.Empty(t, byID["persist"].Status)
}

func TestRenderMermaid(t *testing.T) {
	m := FromDefinition("pipeline", linearGraph())
	ApplyRunOverlay(m, map[string]string{"fetch": "completed", "transform": "failed"}, "")

	out := RenderMermaid(m)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "%% pipeline")
	assert.Contains(t, out, `fetch(["fetch"])`)
	assert.Contains(t, out, `transform["transform"]`)
	assert.Contains(t, out, "fetch --> transform")
	assert.Contains(t, out, "class fetch completed")
	assert.Contains(t, out, "class transform failed")
}

func TestRenderMermaidConditional(t *testing.T) {
	out := RenderMermaid(FromDefinition("loop", branchingGraph()))

	assert.Contains(t, out, `score{"score"}`)
	assert.Contains(t, out, "score -->|state.score < 80| retry")
	assert.Contains(t, out, "score -->|else| __end__")
}

func TestRenderPNG(t *testing.T) {
	m := FromDefinition("pipeline", linearGraph())
	ApplyRunOverlay(m, map[string]string{"fetch": "completed"}, "transform")

	png, err := RenderPNG(context.Background(), m)
	require.NoError(t, err)
	require.NotEmpty(t, png)

	// Verify PNG magic bytes: 0x89 P N G.
	assert.True(t, len(png) > 8, "PNG should be larger than header")
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
	assert.Equal(t, byte('N'), png[2])
	assert.Equal(t, byte('G'), png[3])
}

func TestRenderPNGConditional(t *testing.T) {
	png, err := RenderPNG(context.Background(), FromDefinition("loop", branchingGraph()))
	require.NoError(t, err)
	require.NotEmpty(t, png)
	assert.Equal(t, byte(0x89), png[0])
}
