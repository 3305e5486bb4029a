package tools

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codewright/codewright/internal/transcript"
)

type stubTool struct {
	name    string
	schema  map[string]any
	fn      func(ctx context.Context, params map[string]any) (string, error)
	invoked atomic.Int32
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }

func (s *stubTool) Parameters() map[string]any {
	if s.schema != nil {
		return s.schema
	}
	return map[string]any{"type": "object"}
}

func (s *stubTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	s.invoked.Add(1)
	if s.fn != nil {
		return s.fn(ctx, params)
	}
	return "ok", nil
}

func TestRegistryReplacesByName(t *testing.T) {
	registry := NewRegistry()
	first := &stubTool{name: "dup"}
	second := &stubTool{name: "dup", fn: func(context.Context, map[string]any) (string, error) {
		return "second", nil
	}}
	registry.Register(first)
	registry.Register(second)

	tool, ok := registry.Get("dup")
	if !ok {
		t.Fatal("expected tool to be registered")
	}
	out, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if out != "second" {
		t.Errorf("expected later registration to win, got %q", out)
	}
	if len(registry.List()) != 1 {
		t.Errorf("expected 1 tool, got %d", len(registry.List()))
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	registry := NewRegistry()
	spy := &stubTool{name: "present"}
	registry.Register(spy)
	d := NewDispatcher(registry, DispatcherOptions{})

	result := d.Dispatch(context.Background(), transcript.ToolCall{ID: "c1", Name: "absent"})

	if result.OK {
		t.Error("expected failure result")
	}
	if result.Failure != transcript.FailureUnknownTool {
		t.Errorf("expected unknown_tool failure, got %q", result.Failure)
	}
	if !strings.Contains(result.Content, "unknown tool") || !strings.Contains(result.Content, "present") {
		t.Errorf("expected message naming available tools, got %q", result.Content)
	}
	if spy.invoked.Load() != 0 {
		t.Error("no tool should have been invoked")
	}
}

func TestDispatchInvalidArguments(t *testing.T) {
	registry := NewRegistry()
	spy := &stubTool{
		name: "typed",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{"type": "string"},
			},
			"required": []string{"command"},
		},
	}
	registry.Register(spy)
	d := NewDispatcher(registry, DispatcherOptions{})

	result := d.Dispatch(context.Background(), transcript.ToolCall{
		ID:        "c1",
		Name:      "typed",
		Arguments: map[string]any{"command": 42},
	})

	if result.Failure != transcript.FailureInvalidArguments {
		t.Fatalf("expected invalid_arguments failure, got %q (%s)", result.Failure, result.Content)
	}
	if !strings.Contains(result.Content, "invalid arguments for typed") {
		t.Errorf("expected violation listing, got %q", result.Content)
	}
	if spy.invoked.Load() != 0 {
		t.Error("tool must not run on invalid arguments")
	}
}

func TestDispatchSuccess(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "echo", fn: func(_ context.Context, params map[string]any) (string, error) {
		return GetString(params, "text", ""), nil
	}})
	d := NewDispatcher(registry, DispatcherOptions{})

	result := d.Dispatch(context.Background(), transcript.ToolCall{
		ID:        "c1",
		Name:      "echo",
		Arguments: map[string]any{"text": "hello"},
	})

	if !result.OK {
		t.Fatalf("expected success, got %q", result.Content)
	}
	if result.CallID != "c1" {
		t.Errorf("expected call id c1, got %q", result.CallID)
	}
	if result.Content != "hello" {
		t.Errorf("expected echoed content, got %q", result.Content)
	}
}

func TestDispatchToolError(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "broken", fn: func(context.Context, map[string]any) (string, error) {
		return "", errors.New("boom")
	}})
	d := NewDispatcher(registry, DispatcherOptions{})

	result := d.Dispatch(context.Background(), transcript.ToolCall{ID: "c1", Name: "broken"})

	if result.OK {
		t.Error("expected failure result")
	}
	if result.Failure != transcript.FailureExecution {
		t.Errorf("expected execution_error failure, got %q", result.Failure)
	}
	if !strings.Contains(result.Content, "boom") {
		t.Errorf("expected tool error in content, got %q", result.Content)
	}
}

func TestDispatchTimeout(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "slow", fn: func(ctx context.Context, _ map[string]any) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "done", nil
		}
	}})
	d := NewDispatcher(registry, DispatcherOptions{Timeout: 50 * time.Millisecond})

	start := time.Now()
	result := d.Dispatch(context.Background(), transcript.ToolCall{ID: "c1", Name: "slow"})
	elapsed := time.Since(start)

	if result.Failure != transcript.FailureTimeout {
		t.Fatalf("expected timeout failure, got %q (%s)", result.Failure, result.Content)
	}
	if !strings.Contains(result.Content, "did not complete within") {
		t.Errorf("expected timeout message, got %q", result.Content)
	}
	if elapsed > 2*time.Second {
		t.Errorf("dispatch blocked for %v, expected prompt timeout result", elapsed)
	}
}

func TestDispatchAllKeepsOrder(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{name: "a", fn: func(context.Context, map[string]any) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return "first", nil
	}})
	registry.Register(&stubTool{name: "b", fn: func(context.Context, map[string]any) (string, error) {
		return "second", nil
	}})
	d := NewDispatcher(registry, DispatcherOptions{})

	calls := []transcript.ToolCall{
		{ID: "c1", Name: "a"},
		{ID: "c2", Name: "missing"},
		{ID: "c3", Name: "b"},
	}
	results := d.DispatchAll(context.Background(), calls)

	if len(results) != len(calls) {
		t.Fatalf("expected %d results, got %d", len(calls), len(results))
	}
	for i, call := range calls {
		if results[i].CallID != call.ID {
			t.Errorf("result %d has call id %q, want %q", i, results[i].CallID, call.ID)
		}
	}
	if results[0].Content != "first" || results[2].Content != "second" {
		t.Errorf("unexpected contents: %q / %q", results[0].Content, results[2].Content)
	}
	if results[1].Failure != transcript.FailureUnknownTool {
		t.Errorf("expected unknown_tool for middle call, got %q", results[1].Failure)
	}
}

func TestDispatchTruncatesLongOutput(t *testing.T) {
	var lines []string
	for i := 0; i < 500; i++ {
		lines = append(lines, "line")
	}
	registry := NewRegistry()
	registry.Register(&stubTool{name: "bash", fn: func(context.Context, map[string]any) (string, error) {
		return strings.Join(lines, "\n"), nil
	}})
	d := NewDispatcher(registry, DispatcherOptions{})

	result := d.Dispatch(context.Background(), transcript.ToolCall{ID: "c1", Name: "bash"})

	if !result.OK {
		t.Fatalf("expected success, got %q", result.Content)
	}
	if !strings.Contains(result.Content, "lines omitted") {
		t.Error("expected line truncation marker in output")
	}
}

func TestValidateArgumentsListsViolations(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string"},
			"limit":   map[string]any{"type": "integer"},
		},
		"required": []string{"pattern"},
	}

	violations := ValidateArguments(schema, map[string]any{"limit": "ten"})
	if len(violations) == 0 {
		t.Fatal("expected violations for missing pattern and wrong limit type")
	}

	if got := ValidateArguments(schema, map[string]any{"pattern": "x", "limit": 3}); len(got) != 0 {
		t.Errorf("expected no violations, got %v", got)
	}
}
