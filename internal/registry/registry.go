package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/halcyor/gantry/pkg/schema"
)

// Tool is a named, pure state-transform capability backing a graph node.
// Transform receives the full run state and returns the full replacement
// state; it must not mutate external state directly.
type Tool interface {
	Name() string
	Description() string
	Transform(ctx context.Context, state map[string]any) (map[string]any, error)
}

// ToolFunc adapts a plain function to the Tool interface.
type ToolFunc struct {
	ToolName string
	Desc     string
	Fn       func(ctx context.Context, state map[string]any) (map[string]any, error)
}

func (t ToolFunc) Name() string        { return t.ToolName }
func (t ToolFunc) Description() string { return t.Desc }

func (t ToolFunc) Transform(ctx context.Context, state map[string]any) (map[string]any, error) {
	return t.Fn(ctx, state)
}

// ToolInfo is a summary of a registered tool for listing.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Registry is a thread-safe mapping from node name to tool. It is built
// once at startup and read-only during execution; concurrent reads are
// safe while many runs traverse simultaneously.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. Re-registering an existing name
// fails with a CONFLICT error and leaves the existing binding untouched.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return schema.NewError(schema.ErrCodeValidation, "tool is nil")
	}
	name := tool.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "tool name is empty")
	}
	if name == schema.EndNode {
		return schema.NewErrorf(schema.ErrCodeValidation, "tool name %q is reserved", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "tool %q already registered", name)
	}

	r.tools[name] = tool
	return nil
}

// Resolve looks up a tool by name. The boolean distinguishes a bad graph
// reference from a registry malfunction; no error is returned.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// List returns info for all registered tools, sorted by name.
func (r *Registry) List() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(r.tools))
	for _, tool := range r.tools {
		infos = append(infos, ToolInfo{
			Name:        tool.Name(),
			Description: tool.Description(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Has checks if a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Reset removes all registered tools. Intended for test isolation only.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]Tool)
}
