package orchestrator

import (
	"fmt"
	"strings"

	"buildmatic/internal/agent"
)

// SystemPrompt builds the top-level instructions. skillDescriptions is the
// loader's bullet list.
func SystemPrompt(workDir, skillDescriptions string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a coding agent at %s.\n\n", workDir)
	b.WriteString("Loop: plan -> act with tools -> report.\n\n")

	b.WriteString("**Skills available** (invoke with Skill tool when task matches):\n")
	b.WriteString(skillDescriptions)
	b.WriteString("\n\n")

	b.WriteString("**Subagents available** (invoke with Task tool for focused subtasks):\n")
	for i, opt := range agent.Options() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", opt.Name, opt.Description)
	}
	b.WriteString("\n\n")

	b.WriteString(`Rules:
- Use Skill tool IMMEDIATELY when a task matches a skill description
- Use Task tool for subtasks needing focused exploration or implementation
- Use TodoWrite to track multi-step work
- Prefer tools over prose. Act, don't just explain.
- After finishing, summarize what changed.

**IMPORTANT: Project Organization**
When creating any application, website, or multi-file project:
1. ALWAYS create a dedicated project folder first (e.g., "my-app/", "landing-page/")
2. Use a descriptive, kebab-case folder name based on the project purpose
3. Place ALL project files inside this folder - never in the root directory
4. Example: For a todo app, create "todo-app/" then "todo-app/index.html", "todo-app/styles.css", etc.`)
	return b.String()
}

// SubagentPrompt builds the system prompt of a nested conversation.
func SubagentPrompt(p agent.Profile, workDir string) string {
	return fmt.Sprintf("You are a %s subagent at %s.\n\n%s\n\nComplete the task and return a clear, concise summary.", p.Type, workDir, p.Prompt)
}
