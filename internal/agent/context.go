package agent

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/codewright/codewright/internal/provider"
	"github.com/codewright/codewright/internal/tools"
	"github.com/codewright/codewright/internal/transcript"
)

// buildMessages renders the context window into provider wire shape: the
// system prompt first, then the windowed turns with each turn's tool
// results threaded behind its calls.
func (l *Loop) buildMessages(ctx context.Context) ([]provider.Message, error) {
	window, err := l.transcript.Window(ctx, l.windowOpts, l.summarizer)
	if err != nil {
		return nil, fmt.Errorf("build context window: %w", err)
	}

	messages := make([]provider.Message, 0, len(window)*2+1)
	messages = append(messages, provider.Message{Role: "system", Content: l.systemPrompt()})
	for _, turn := range window {
		switch turn.Role {
		case transcript.RoleUser:
			messages = append(messages, provider.Message{Role: "user", Content: turn.Content})
		case transcript.RoleSummary:
			messages = append(messages, provider.Message{
				Role:    "system",
				Content: "Summary of the earlier part of this session:\n\n" + turn.Content,
			})
		case transcript.RoleAssistant:
			msg := provider.Message{Role: "assistant", Content: turn.Content}
			for _, call := range turn.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, provider.ToolCall{
					ID:        call.ID,
					Name:      call.Name,
					Arguments: call.Arguments,
				})
			}
			messages = append(messages, msg)
			for _, res := range turn.Results {
				messages = append(messages, provider.Message{
					Role:       "tool",
					Content:    res.Content,
					ToolCallID: res.CallID,
				})
			}
		}
	}
	return messages, nil
}

// systemPrompt assembles the per-cycle system prompt: identity, working
// rules, runtime info, and the current plan snapshot.
func (l *Loop) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, `# codewright

You are codewright, an autonomous coding agent working inside a project checkout.
You have access to tools that allow you to:
- Run shell commands
- Search and read the project tree
- Create and edit files
- Maintain a TODO list for multi-step work

## Working Rules
1. Inspect before you change: use ls, tree, grep, and text_editor view to understand the code first.
2. For multi-step tasks keep the TODO list current with todo_write; hold one item in_progress at a time and complete items as you finish them.
3. Verify each change before moving on.
4. When the task is done, reply with plain text and no tool calls. That final message is the session result.

## Project Root
%s

## Runtime
%s %s, Go %s
`, l.projectRoot, runtime.GOOS, runtime.GOARCH, runtime.Version())

	if l.planner != nil && l.planner.Len() > 0 {
		b.WriteString("\n## Current TODO List\n")
		b.WriteString(l.planner.Render())
	}
	return b.String()
}

// toolDefinitions exports the registry contents as provider tool
// definitions in OpenAI function format.
func toolDefinitions(reg *tools.Registry) []provider.ToolDefinition {
	if reg == nil {
		return nil
	}
	list := reg.List()
	defs := make([]provider.ToolDefinition, 0, len(list))
	for _, tool := range list {
		defs = append(defs, provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionSpec{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return defs
}
