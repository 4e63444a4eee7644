package event

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

// PreviewRunes is how much of a tool's output the console shows.
const PreviewRunes = 200

// Printer 控制台渲染器
// Printer renders events for a terminal
type Printer struct {
	w io.Writer

	tool   lipgloss.Style
	muted  lipgloss.Style
	errorS lipgloss.Style
	done   lipgloss.Style
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:      w,
		tool:   lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Bold(true),
		muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		errorS: lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		done:   lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
	}
}

func (p *Printer) Emit(e Event) {
	switch e.Kind {
	case KindText:
		fmt.Fprintln(p.w, e.Content)
	case KindToolStart:
		fmt.Fprintln(p.w, "\n"+p.tool.Render("> "+e.Name))
	case KindToolResult:
		fmt.Fprintln(p.w, p.muted.Render("  "+Preview(e.Output, PreviewRunes)))
	case KindDone:
		fmt.Fprintln(p.w, "\n"+p.done.Render("> Done"))
	case KindError:
		fmt.Fprintln(p.w, p.errorS.Render("Error: "+e.Message))
	case KindAborted:
		fmt.Fprintln(p.w, p.errorS.Render("Aborted: "+e.Message))
	}
}

// Preview returns the first n runes of s on one line, with "..." when cut.
func Preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > n {
		s = string([]rune(s)[:n]) + "..."
	}
	return strings.ReplaceAll(s, "\n", "\n  ")
}
