package tools

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strings"

	"github.com/halcyor/gantry/internal/expressions"
	"github.com/halcyor/gantry/internal/registry"
	"github.com/halcyor/gantry/pkg/schema"
)

// MaxRefinementIterations caps the refine loop in the review graph.
const MaxRefinementIterations = 3

// refinementScoreFloor is the score below which refinement is suggested.
const refinementScoreFloor = 80

// RegisterReviewTools registers the four code-review tools on the registry.
func RegisterReviewTools(reg *registry.Registry) error {
	for _, tool := range []registry.Tool{
		registry.ToolFunc{
			ToolName: "analyze_syntax",
			Desc:     "Parse Go source and report validity plus an AST node count",
			Fn:       AnalyzeSyntax,
		},
		registry.ToolFunc{
			ToolName: "check_style",
			Desc:     "Flag fmt.Print* calls, long lines, and undocumented exported declarations",
			Fn:       CheckStyle,
		},
		registry.ToolFunc{
			ToolName: "score_code",
			Desc:     "Score the source 0-100 from the collected issues",
			Fn:       ScoreCode,
		},
		registry.ToolFunc{
			ToolName: "refine_code",
			Desc:     "Rewrite fmt.Print* calls to their log equivalents",
			Fn:       RefineCode,
		},
	} {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// ReviewGraph returns the wired code-review workflow definition:
// analyze -> check -> score, then a conditional refine loop back to check
// until the score clears the floor or the iteration cap is hit.
func ReviewGraph() *schema.GraphDefinition {
	return &schema.GraphDefinition{
		Nodes: []string{"analyze_syntax", "check_style", "score_code", "refine_code"},
		Edges: map[string]string{
			"analyze_syntax": "check_style",
			"check_style":    "score_code",
			"refine_code":    "check_style",
		},
		ConditionalEdges: map[string]schema.ConditionalEdge{
			"score_code": {
				Condition: fmt.Sprintf("state.needs_refinement && state.refinement_iteration < %d", MaxRefinementIterations),
				TrueNext:  "refine_code",
				FalseNext: schema.EndNode,
			},
		},
		StartNode: "analyze_syntax",
	}
}

// AnalyzeSyntax parses the source under state["code"] and records whether it
// is valid Go, along with an AST node count as a rough complexity signal.
func AnalyzeSyntax(_ context.Context, state map[string]any) (map[string]any, error) {
	code := stateString(state, "code")
	out := expressions.DeepCopyMap(state)

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "src.go", code, parser.ParseComments)
	if err != nil {
		out["syntax_valid"] = false
		out["syntax_error"] = err.Error()
		out["ast_node_count"] = 0
		return out, nil
	}

	count := 0
	ast.Inspect(file, func(n ast.Node) bool {
		if n != nil {
			count++
		}
		return true
	})

	out["syntax_valid"] = true
	out["syntax_error"] = ""
	out["ast_node_count"] = count
	return out, nil
}

// CheckStyle scans the source for fmt.Print* calls, lines over 100
// characters, and exported declarations without doc comments.
func CheckStyle(_ context.Context, state map[string]any) (map[string]any, error) {
	code := stateString(state, "code")
	out := expressions.DeepCopyMap(state)

	if valid, ok := state["syntax_valid"].(bool); ok && !valid {
		out["style_issues"] = []any{"skipped: syntax errors present"}
		out["has_print_statements"] = false
		out["style_passed"] = false
		return out, nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "src.go", code, parser.ParseComments)
	if err != nil {
		out["style_issues"] = []any{"unable to parse source for style checking"}
		out["has_print_statements"] = false
		out["style_passed"] = false
		return out, nil
	}

	var issues []any
	hasPrint := false

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		pkg, ok := sel.X.(*ast.Ident)
		if !ok || pkg.Name != "fmt" || !strings.HasPrefix(sel.Sel.Name, "Print") {
			return true
		}
		hasPrint = true
		issues = append(issues, fmt.Sprintf("line %d: use log instead of fmt.%s",
			fset.Position(call.Pos()).Line, sel.Sel.Name))
		return true
	})

	for i, line := range strings.Split(code, "\n") {
		if len(line) > 100 {
			issues = append(issues, fmt.Sprintf("line %d: line exceeds 100 characters (%d chars)", i+1, len(line)))
		}
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Name.IsExported() && d.Doc == nil {
				issues = append(issues, fmt.Sprintf("line %d: exported %s missing doc comment",
					fset.Position(d.Pos()).Line, d.Name.Name))
			}
		case *ast.GenDecl:
			if d.Doc != nil {
				continue
			}
			for _, s := range d.Specs {
				ts, ok := s.(*ast.TypeSpec)
				if ok && ts.Name.IsExported() && ts.Doc == nil {
					issues = append(issues, fmt.Sprintf("line %d: exported %s missing doc comment",
						fset.Position(ts.Pos()).Line, ts.Name.Name))
				}
			}
		}
	}

	out["style_issues"] = issues
	out["has_print_statements"] = hasPrint
	out["style_passed"] = len(issues) == 0
	return out, nil
}

// ScoreCode reduces the collected issues to a 0-100 score. A syntax error
// costs 50, each fmt.Print* call 10, each missing doc comment 5, each long
// line 2, anything else 5.
func ScoreCode(_ context.Context, state map[string]any) (map[string]any, error) {
	out := expressions.DeepCopyMap(state)

	score := 100
	breakdown := map[string]any{}

	if valid, ok := state["syntax_valid"].(bool); ok && !valid {
		breakdown["syntax_error"] = 50
		score -= 50
	}

	for _, raw := range stateSlice(state, "style_issues") {
		issue, _ := raw.(string)
		switch {
		case strings.Contains(issue, "fmt.Print"):
			breakdown["print_statements"] = stateInt(breakdown, "print_statements") + 10
			score -= 10
		case strings.Contains(issue, "doc comment"):
			breakdown["missing_docs"] = stateInt(breakdown, "missing_docs") + 5
			score -= 5
		case strings.Contains(issue, "exceeds"):
			breakdown["long_lines"] = stateInt(breakdown, "long_lines") + 2
			score -= 2
		default:
			breakdown["other_issues"] = stateInt(breakdown, "other_issues") + 5
			score -= 5
		}
	}

	if score < 0 {
		score = 0
	}

	out["score"] = score
	out["score_breakdown"] = breakdown
	out["needs_refinement"] = score < refinementScoreFloor
	out["refinement_iteration"] = stateInt(state, "refinement_iteration")
	return out, nil
}

var printCallPattern = regexp.MustCompile(`\bfmt\.(Print(?:ln|f)?)\(`)

// RefineCode rewrites fmt.Print* calls to their log equivalents. It is a
// textual rewrite, not a type-checked one; the loop re-runs check_style on
// the result. Past the iteration cap it forces needs_refinement off so the
// graph exits.
func RefineCode(_ context.Context, state map[string]any) (map[string]any, error) {
	code := stateString(state, "code")
	out := expressions.DeepCopyMap(state)

	iteration := stateInt(state, "refinement_iteration") + 1
	out["refinement_iteration"] = iteration

	if iteration > MaxRefinementIterations {
		out["refinement_applied"] = []any{"max iterations reached, stopping refinement"}
		out["needs_refinement"] = false
		return out, nil
	}

	var applied []any
	if hasPrint, _ := state["has_print_statements"].(bool); hasPrint {
		rewritten := printCallPattern.ReplaceAllString(code, "log.$1(")
		if rewritten != code {
			if !strings.Contains(rewritten, `"log"`) {
				rewritten = insertLogImport(rewritten)
			}
			code = rewritten
			applied = append(applied, "replaced fmt.Print* with log equivalents")
		}
	}

	out["code"] = code
	out["refinement_applied"] = applied
	return out, nil
}

// insertLogImport adds a log import directly after the package clause.
func insertLogImport(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "package ") {
			out := make([]string, 0, len(lines)+2)
			out = append(out, lines[:i+1]...)
			out = append(out, "", `import "log"`)
			out = append(out, lines[i+1:]...)
			return strings.Join(out, "\n")
		}
	}
	return code
}

func stateString(state map[string]any, key string) string {
	v, _ := state[key].(string)
	return v
}

func stateSlice(state map[string]any, key string) []any {
	v, _ := state[key].([]any)
	return v
}

// stateInt reads an integer-valued field, tolerating the float64 that JSON
// round trips produce.
func stateInt(state map[string]any, key string) int {
	switch v := state[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
