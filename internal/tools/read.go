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

type ReadTool struct {
	ws       *security.Workspace
	maxChars int
}

func NewReadTool(ws *security.Workspace, maxChars int) *ReadTool {
	if maxChars <= 0 {
		maxChars = DefaultOutputLimit
	}
	return &ReadTool{ws: ws, maxChars: maxChars}
}

func (t *ReadTool) ID() ID { return ReadFile }

func (t *ReadTool) Spec() chat.ToolSpec {
	return chat.ToolSpec{
		Name:        ReadFile.String(),
		Description: "Read file contents. Returns UTF-8 text.",
		InputSchema: chat.ObjectSchema(map[string]any{
			"path":  map[string]any{"type": "string", "description": "Relative path to the file"},
			"limit": map[string]any{"type": "integer", "description": "Max lines to read (default: all)"},
		}, "path"),
	}
}

func (t *ReadTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Path  string `json:"path"`
		Limit int    `json:"limit"`
	}
	if err := decodeArgs("read_file", args, &in); err != nil {
		return "", err
	}
	if err := requireField("path", in.Path); err != nil {
		return "", err
	}
	resolved, err := t.ws.Resolve(in.Path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	content := string(data)

	if in.Limit > 0 {
		lines := strings.Split(content, "\n")
		if in.Limit < len(lines) {
			rest := len(lines) - in.Limit
			content = strings.Join(lines[:in.Limit], "\n") + fmt.Sprintf("\n... (%d more lines)", rest)
		}
	}
	content, _ = truncateRunes(content, t.maxChars)
	return content, nil
}
