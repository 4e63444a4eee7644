package contextmgr

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"buildmatic/internal/chat"
)

const (
	maxSummaryLines  = 10
	userPreviewRunes = 100
)

var writeConfirmPattern = regexp.MustCompile(`Wrote (\d+) bytes to (.+)`)

// Summarize 把较早的消息折叠成一条摘要消息，只保留最近 keepLast 条原文
// Summarize folds everything except the last keepLast messages into one
// synthetic user message. It is pure: the input slice is never modified.
func Summarize(history []chat.Message, keepLast int) []chat.Message {
	if keepLast < 0 {
		keepLast = 0
	}
	if len(history) <= keepLast {
		return history
	}
	split := len(history) - keepLast
	older := history[:split]
	recent := history[split:]

	var (
		lines []string
		files []string
	)
	for _, msg := range older {
		switch msg.Role {
		case chat.RoleUser:
			for _, b := range msg.Content {
				switch b.Type {
				case chat.BlockText:
					preview, _ := truncateHead(b.Text, userPreviewRunes)
					lines = append(lines, "User: "+preview)
				case chat.BlockToolResult:
					if m := writeConfirmPattern.FindStringSubmatch(b.Content); m != nil {
						files = append(files, fmt.Sprintf("%s (%sb)", m[2], m[1]))
					}
				}
			}
		case chat.RoleAssistant:
			for _, b := range msg.ToolUses() {
				switch b.Name {
				case "write_file":
					// covered by the files list
				case "Skill":
					lines = append(lines, "Loaded skill: "+skillName(b.Input))
				default:
					lines = append(lines, "Used: "+b.Name)
				}
			}
		}
	}
	if len(lines) > maxSummaryLines {
		lines = lines[:maxSummaryLines]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[Earlier context: %d messages]\n", len(older))
	if len(files) > 0 {
		fmt.Fprintf(&sb, "Files created: %s\n", strings.Join(files, ", "))
	}
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteString("\n[Recent messages follow]")

	out := make([]chat.Message, 0, keepLast+1)
	out = append(out, chat.UserText(sb.String()))
	out = append(out, recent...)
	return out
}

func skillName(input json.RawMessage) string {
	var in struct {
		Skill string `json:"skill"`
	}
	_ = json.Unmarshal(input, &in)
	return in.Skill
}
