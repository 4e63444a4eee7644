package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"buildmatic/internal/chat"
	"buildmatic/internal/security"
)

// EditTool replaces the first verbatim occurrence of old_text. A missing
// match leaves the file untouched.
type EditTool struct {
	ws *security.Workspace
}

func NewEditTool(ws *security.Workspace) *EditTool {
	return &EditTool{ws: ws}
}

func (t *EditTool) ID() ID { return EditFile }

func (t *EditTool) Spec() chat.ToolSpec {
	return chat.ToolSpec{
		Name:        EditFile.String(),
		Description: "Replace exact text in a file. Use for surgical edits.",
		InputSchema: chat.ObjectSchema(map[string]any{
			"path":     map[string]any{"type": "string", "description": "Relative path to the file"},
			"old_text": map[string]any{"type": "string", "description": "Exact text to find"},
			"new_text": map[string]any{"type": "string", "description": "Replacement text"},
		}, "path", "old_text", "new_text"),
	}
}

func (t *EditTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Path    string `json:"path"`
		OldText string `json:"old_text"`
		NewText string `json:"new_text"`
	}
	if err := decodeArgs("edit_file", args, &in); err != nil {
		return "", err
	}
	if err := requireField("path", in.Path); err != nil {
		return "", err
	}
	if in.OldText == "" {
		return "", fmt.Errorf("old_text must not be empty")
	}
	resolved, err := t.ws.Resolve(in.Path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	original := string(data)
	if !strings.Contains(original, in.OldText) {
		return "", fmt.Errorf("text not found in %s", in.Path)
	}
	updated := strings.Replace(original, in.OldText, in.NewText, 1)
	if err := os.WriteFile(resolved, []byte(updated), info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("Edited %s", in.Path), nil
}
