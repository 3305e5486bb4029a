package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBashTool_Basic(t *testing.T) {
	tool := NewBashTool(t.TempDir(), 5*time.Second)

	result, err := tool.Execute(context.Background(), map[string]any{
		"command": "echo hello",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(result, "hello") {
		t.Errorf("expected 'hello' in output, got %q", result)
	}
}

func TestBashTool_RunsInWorkDir(t *testing.T) {
	tmpDir := t.TempDir()
	tool := NewBashTool(tmpDir, 5*time.Second)

	result, err := tool.Execute(context.Background(), map[string]any{
		"command": "pwd",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(result, tmpDir) {
		t.Errorf("expected working dir %q in output, got %q", tmpDir, result)
	}
}

func TestBashTool_StderrSection(t *testing.T) {
	tool := NewBashTool(t.TempDir(), 5*time.Second)

	result, err := tool.Execute(context.Background(), map[string]any{
		"command": "echo oops >&2",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(result, "STDERR:") || !strings.Contains(result, "oops") {
		t.Errorf("expected STDERR section, got %q", result)
	}
}

func TestBashTool_ExitCode(t *testing.T) {
	tool := NewBashTool(t.TempDir(), 5*time.Second)

	result, err := tool.Execute(context.Background(), map[string]any{
		"command": "exit 42",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(result, "Exit code: 42") {
		t.Errorf("expected 'Exit code: 42', got %q", result)
	}
}

func TestBashTool_Timeout(t *testing.T) {
	tool := NewBashTool(t.TempDir(), 100*time.Millisecond)

	result, err := tool.Execute(context.Background(), map[string]any{
		"command": "sleep 10",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(result, "timed out") {
		t.Errorf("expected timeout message, got %q", result)
	}
}

func TestBashTool_DenyPatterns(t *testing.T) {
	tool := NewBashTool(t.TempDir(), 5*time.Second)

	dangerous := []string{
		"rm -rf /",
		"rm -rf ~",
		"dd if=/dev/zero of=/dev/sda",
		"shutdown -h now",
	}
	for _, cmd := range dangerous {
		result, _ := tool.Execute(context.Background(), map[string]any{
			"command": cmd,
		})
		if !strings.Contains(result, "blocked by safety policy") {
			t.Errorf("expected %q to be blocked, got %q", cmd, result)
		}
	}
}

func TestBashTool_EmptyCommand(t *testing.T) {
	tool := NewBashTool(t.TempDir(), 5*time.Second)

	result, _ := tool.Execute(context.Background(), map[string]any{})
	if !strings.Contains(result, "command is required") {
		t.Errorf("expected required-command error, got %q", result)
	}
}

func TestBashTool_NoOutput(t *testing.T) {
	tool := NewBashTool(t.TempDir(), 5*time.Second)

	result, err := tool.Execute(context.Background(), map[string]any{
		"command": "true",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result != "(no output)" {
		t.Errorf("expected '(no output)', got %q", result)
	}
}
