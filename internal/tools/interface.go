package tools

import (
	"context"
	"encoding/json"

	"buildmatic/internal/chat"
)

// ID is the closed set of tools the dispatcher knows how to route.
type ID int

const (
	Bash ID = iota + 1
	ReadFile
	WriteFile
	EditFile
	TodoWrite
	Task
	Skill
)

var idNames = map[ID]string{
	Bash:      "bash",
	ReadFile:  "read_file",
	WriteFile: "write_file",
	EditFile:  "edit_file",
	TodoWrite: "TodoWrite",
	Task:      "Task",
	Skill:     "Skill",
}

// AllIDs lists every tool in catalogue order.
func AllIDs() []ID {
	return []ID{Bash, ReadFile, WriteFile, EditFile, TodoWrite, Task, Skill}
}

// BaseIDs are the tools a subagent may receive.
func BaseIDs() []ID {
	return []ID{Bash, ReadFile, WriteFile, EditFile, TodoWrite}
}

func (id ID) String() string {
	if name, ok := idNames[id]; ok {
		return name
	}
	return "unknown"
}

// Truncatable reports whether the tool's output may be shortened before it
// re-enters history. Partial file content breaks later edits.
func (id ID) Truncatable() bool {
	switch id {
	case ReadFile, Skill:
		return false
	default:
		return true
	}
}

func ParseID(name string) (ID, bool) {
	for id, n := range idNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

type Tool interface {
	ID() ID
	Spec() chat.ToolSpec
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}
