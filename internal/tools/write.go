package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"buildmatic/internal/chat"
	"buildmatic/internal/security"
)

type WriteTool struct {
	ws *security.Workspace
}

func NewWriteTool(ws *security.Workspace) *WriteTool {
	return &WriteTool{ws: ws}
}

func (t *WriteTool) ID() ID { return WriteFile }

func (t *WriteTool) Spec() chat.ToolSpec {
	return chat.ToolSpec{
		Name:        WriteFile.String(),
		Description: "Write content to a file. Creates parent directories if needed.",
		InputSchema: chat.ObjectSchema(map[string]any{
			"path":    map[string]any{"type": "string", "description": "Relative path for the file"},
			"content": map[string]any{"type": "string", "description": "Content to write"},
		}, "path", "content"),
	}
}

func (t *WriteTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := decodeArgs("write_file", args, &in); err != nil {
		return "", err
	}
	if err := requireField("path", in.Path); err != nil {
		return "", err
	}
	resolved, err := t.ws.Resolve(in.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(in.Content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(in.Content), in.Path), nil
}
