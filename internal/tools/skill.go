package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"buildmatic/internal/chat"
	"buildmatic/internal/skills"
)

type SkillTool struct {
	loader *skills.Loader
}

func NewSkillTool(loader *skills.Loader) *SkillTool {
	return &SkillTool{loader: loader}
}

func (t *SkillTool) ID() ID { return Skill }

func (t *SkillTool) Spec() chat.ToolSpec {
	return chat.ToolSpec{
		Name:        Skill.String(),
		Description: "Load a skill for specialized knowledge.\n\nAvailable skills:\n" + t.loader.Descriptions(),
		InputSchema: chat.ObjectSchema(map[string]any{
			"skill": map[string]any{"type": "string", "description": "Name of the skill to load"},
		}, "skill"),
	}
}

func (t *SkillTool) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Skill string `json:"skill"`
	}
	if err := decodeArgs("Skill", args, &in); err != nil {
		return "", err
	}
	name := strings.TrimSpace(in.Skill)
	content, ok := t.loader.Content(name)
	if !ok {
		return "", t.loader.UnknownError(name)
	}
	return fmt.Sprintf("<skill-loaded name=%q>\n%s\n</skill-loaded>\n\nFollow the instructions in the skill above.", name, content), nil
}
