package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"buildmatic/internal/chat"
	"buildmatic/internal/todo"
)

type TodoWriteTool struct {
	tracker *todo.Tracker
}

func NewTodoWriteTool(tracker *todo.Tracker) *TodoWriteTool {
	return &TodoWriteTool{tracker: tracker}
}

func (t *TodoWriteTool) ID() ID { return TodoWrite }

func (t *TodoWriteTool) Spec() chat.ToolSpec {
	return chat.ToolSpec{
		Name:        TodoWrite.String(),
		Description: "Update task list.",
		InputSchema: chat.ObjectSchema(map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": chat.ObjectSchema(map[string]any{
					"content":    map[string]any{"type": "string"},
					"status":     map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
					"activeForm": map[string]any{"type": "string"},
				}, "content", "status", "activeForm"),
			},
		}, "items"),
	}
}

func (t *TodoWriteTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	if t.tracker == nil {
		return "", fmt.Errorf("todo tracker unavailable")
	}
	var in struct {
		Items []todo.Item `json:"items"`
	}
	if err := decodeArgs("TodoWrite", args, &in); err != nil {
		return "", err
	}
	return t.tracker.Update(in.Items)
}
