package tools

import (
	"context"
	"fmt"

	"github.com/codewright/codewright/internal/plan"
)

// TodoWriteTool replaces the whole task plan with the latest items. The
// planner is shared with the agent loop, which renders it into the
// reasoning input and reminder blocks.
type TodoWriteTool struct {
	planner *plan.Plan
}

func NewTodoWriteTool(planner *plan.Plan) *TodoWriteTool {
	return &TodoWriteTool{planner: planner}
}

func (t *TodoWriteTool) Name() string { return "todo_write" }

func (t *TodoWriteTool) Description() string {
	return "Update the entire TODO list with the latest items. " +
		"Use it to plan multi-step work and to mark steps in_progress and completed as you go."
}

func (t *TodoWriteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"todos": map[string]any{
				"type":        "array",
				"description": "The full TODO list; it replaces the previous one",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id": map[string]any{
							"type":        "string",
							"description": "Stable item id; generated when omitted",
						},
						"content": map[string]any{
							"type":        "string",
							"description": "What needs to be done",
						},
						"status": map[string]any{
							"type": "string",
							"enum": []string{"pending", "in_progress", "completed", "cancelled"},
						},
						"priority": map[string]any{
							"type": "string",
							"enum": []string{"low", "medium", "high"},
						},
					},
					"required": []string{"content"},
				},
			},
		},
		"required": []string{"todos"},
	}
}

func (t *TodoWriteTool) Execute(_ context.Context, params map[string]any) (string, error) {
	raw, ok := params["todos"].([]any)
	if !ok {
		return "Error: todos must be an array of items", nil
	}

	items := make([]plan.Item, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			return "Error: each todo must be an object", nil
		}
		items = append(items, plan.Item{
			ID:       GetString(m, "id", ""),
			Content:  GetString(m, "content", ""),
			Status:   plan.Status(GetString(m, "status", "")),
			Priority: plan.Priority(GetString(m, "priority", "")),
		})
	}

	if err := t.planner.SetPlan(items); err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}

	pending, inProgress, _, _ := t.planner.Counts()
	unfinished := pending + inProgress

	message := fmt.Sprintf("Successfully updated the TODO list with %d items.", len(items))
	if unfinished > 0 {
		message += fmt.Sprintf(" %d todo%s not completed.", unfinished, pluralAre(unfinished))
	} else {
		message += " All todos are completed."
	}
	return message, nil
}

func pluralAre(n int) string {
	if n == 1 {
		return " is"
	}
	return "s are"
}
