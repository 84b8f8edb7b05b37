package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/ixlab/aibox/internal/llm"
)

// Spec describes one tool to the model. InputSchema is a JSON schema object
// in the shape every vendor tool config accepts.
type Spec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Func executes a tool call and returns the normalized result.
type Func func(ctx context.Context, input map[string]any) (llm.ToolResult, error)

// Registry holds the tools enabled for a provider instance.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]Spec),
		funcs: make(map[string]Func),
	}
}

// Register adds a tool; re-registering a name replaces the previous entry.
func (r *Registry) Register(spec Spec, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
	r.funcs[spec.Name] = fn
}

// Specs returns the registered tool specifications for request building.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	return out
}

// Execute runs the named tool. Execution failures come back as an error-flagged
// ToolResult so the conversation can continue; only unknown tools error out.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (llm.ToolResult, error) {
	r.mu.RLock()
	fn, ok := r.funcs[call.Name]
	r.mu.RUnlock()
	if !ok {
		return llm.ToolResult{}, fmt.Errorf("unknown tool %q", call.Name)
	}
	result, err := fn(ctx, call.Input)
	if err != nil {
		return llm.ToolResult{ID: call.ID, Text: err.Error(), IsError: true}, nil
	}
	result.ID = call.ID
	return result, nil
}
