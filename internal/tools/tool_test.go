// ABOUTME: Tests for the tool registry.
// ABOUTME: Covers registration rules, lookup, and list ordering.

package tools

import (
	"context"
	"log/slog"
	"testing"
)

func noopTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "test tool",
		Handler: func(ctx context.Context, args map[string]any) (*Result, error) {
			return TextResult("ok"), nil
		},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry(slog.Default())

	if err := r.Register(noopTool("alpha")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tool, ok := r.Get("alpha")
	if !ok {
		t.Fatal("expected tool to be found")
	}
	if tool.Name != "alpha" {
		t.Errorf("expected name 'alpha', got %q", tool.Name)
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing tool to not be found")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry(slog.Default())

	if err := r.Register(noopTool("alpha")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(noopTool("alpha")); err == nil {
		t.Fatal("expected error registering duplicate name")
	}
}

func TestRegisterInvalid(t *testing.T) {
	r := NewRegistry(slog.Default())

	if err := r.Register(&Tool{Name: "", Handler: noopTool("x").Handler}); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Register(&Tool{Name: "no-handler"}); err == nil {
		t.Error("expected error for nil handler")
	}
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry(slog.Default())
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := r.Register(noopTool(name)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(list))
	}
	want := []string{"charlie", "alpha", "bravo"}
	for i, tool := range list {
		if tool.Name != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], tool.Name)
		}
	}
}
