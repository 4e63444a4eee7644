package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"buildmatic/internal/chat"
)

var ErrSubagentUnavailable = errors.New("subagent not available")

// TaskRunner runs a subagent to completion and returns its final answer.
type TaskRunner func(ctx context.Context, description, prompt, agentType string) (string, error)

// AgentOption is one entry of the agent_type enum shown to the model.
type AgentOption struct {
	Name        string
	Description string
}

type TaskTool struct {
	runner TaskRunner
	agents []AgentOption
}

func NewTaskTool(runner TaskRunner, agents []AgentOption) *TaskTool {
	return &TaskTool{runner: runner, agents: agents}
}

func (t *TaskTool) ID() ID { return Task }

func (t *TaskTool) Spec() chat.ToolSpec {
	names := make([]string, 0, len(t.agents))
	lines := make([]string, 0, len(t.agents))
	for _, a := range t.agents {
		names = append(names, a.Name)
		lines = append(lines, fmt.Sprintf("- %s: %s", a.Name, a.Description))
	}
	return chat.ToolSpec{
		Name:        Task.String(),
		Description: "Spawn a subagent for a focused subtask.\n\nAgent types:\n" + strings.Join(lines, "\n"),
		InputSchema: chat.ObjectSchema(map[string]any{
			"description": map[string]any{"type": "string", "description": "Short task description (3-5 words)"},
			"prompt":      map[string]any{"type": "string", "description": "Detailed instructions for the subagent"},
			"agent_type":  map[string]any{"type": "string", "enum": names},
		}, "description", "prompt", "agent_type"),
	}
}

func (t *TaskTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if t.runner == nil {
		return "", ErrSubagentUnavailable
	}
	var in struct {
		Description string `json:"description"`
		Prompt      string `json:"prompt"`
		AgentType   string `json:"agent_type"`
	}
	if err := decodeArgs("Task", args, &in); err != nil {
		return "", err
	}
	if err := requireField("prompt", in.Prompt); err != nil {
		return "", err
	}
	if err := requireField("agent_type", in.AgentType); err != nil {
		return "", err
	}
	return t.runner(ctx, strings.TrimSpace(in.Description), in.Prompt, strings.TrimSpace(in.AgentType))
}
