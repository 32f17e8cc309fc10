// ABOUTME: Tool definitions and the static tool registry.
// ABOUTME: Tools are registered once at startup; the registry is read-only after.

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrUnknownTool is returned when a call names a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Handler executes a tool with validated arguments and returns its result.
type Handler func(ctx context.Context, args map[string]any) (*Result, error)

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Result is what a tool handler produces.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult builds a single-text-block result.
func TextResult(text string) *Result {
	return &Result{Content: []Content{{Type: "text", Text: text}}}
}

// Tool is an immutable tool definition. Arguments are validated against
// InputSchema before the handler runs.
type Tool struct {
	Name             string
	Description      string
	InputSchema      *Schema
	Handler          Handler
	RequiresApproval bool
}

// ValidateArguments checks args against the tool's input schema.
func (t *Tool) ValidateArguments(args map[string]any) error {
	if t.InputSchema == nil {
		return nil
	}
	return t.InputSchema.Validate(args)
}

// Registry maps tool names to definitions. It is populated during startup
// and only read afterwards.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tool-registry"),
	}
}

// Register adds a tool. Duplicate names and nil handlers are rejected.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)

	r.logger.Debug("tool registered",
		"tool", t.Name,
		"requires_approval", t.RequiresApproval)
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools in registration order.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
