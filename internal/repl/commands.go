package repl

import (
	"fmt"
	"strings"

	"buildmatic/internal/config"
)

var replCommands = []string{
	"/help             show this list",
	"/todos            show the task list",
	"/skills           list loaded skills",
	"/usage            token totals of this session",
	"/clear            forget the conversation history",
	"/model <name>     save the model to the project config",
	"exit | quit | q   leave",
}

func (l *Loop) printCommands() {
	fmt.Fprintln(l.out, "commands:")
	for _, cmd := range replCommands {
		fmt.Fprintf(l.out, "  %s\n", cmd)
	}
}

// handleCommand runs a slash command and reports whether the loop should exit.
func (l *Loop) handleCommand(input string) bool {
	parts := strings.Fields(input)
	switch parts[0] {
	case "/exit", "/quit":
		fmt.Fprintln(l.out, "Goodbye!")
		return true
	case "/help":
		l.printCommands()
	case "/todos":
		fmt.Fprintln(l.out, l.res.Session.Todos().Render())
	case "/skills":
		if len(l.res.SkillNames) == 0 {
			fmt.Fprintln(l.out, "no skills loaded")
			break
		}
		fmt.Fprintln(l.out, l.res.Session.Skills().Descriptions())
	case "/usage":
		if l.res.SessionLog == nil {
			fmt.Fprintln(l.out, "no session log")
			break
		}
		fmt.Fprintln(l.out, l.res.SessionLog.Summary())
		fmt.Fprintf(l.out, "Log: %s\n", l.res.SessionLog.Path())
	case "/clear":
		l.history = nil
		fmt.Fprintln(l.out, "history cleared")
	case "/model":
		if len(parts) < 2 {
			fmt.Fprintf(l.out, "current model: %s\nusage: /model <name>\n", l.res.Model)
			break
		}
		if err := config.WriteProviderModel(l.res.WorkspaceRoot, parts[1]); err != nil {
			fmt.Fprintf(l.out, "save model failed: %v\n", err)
			break
		}
		fmt.Fprintf(l.out, "model %s saved to %s/config.json; restart to use it\n", parts[1], config.ProjectDirName)
	default:
		fmt.Fprintf(l.out, "unknown command %s\n", parts[0])
		l.printCommands()
	}
	return false
}
