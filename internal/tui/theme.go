package tui

import "github.com/charmbracelet/lipgloss"

// Palette. event.Printer uses the same hues for tools, errors and done.
var (
	colorAccent  = lipgloss.Color("#7C3AED")
	colorTool    = lipgloss.Color("#06B6D4")
	colorError   = lipgloss.Color("#EF4444")
	colorSuccess = lipgloss.Color("#10B981")
	colorMuted   = lipgloss.Color("#6B7280")
	colorText    = lipgloss.Color("#E5E7EB")
	colorDim     = lipgloss.Color("#9CA3AF")
	colorBorder  = lipgloss.Color("#374151")
	colorBar     = lipgloss.Color("#111827")
)

// Theme TUI 样式
// Theme holds the rendered styles of every TUI element
type Theme struct {
	TitleStyle       lipgloss.Style
	ActiveTabStyle   lipgloss.Style
	InactiveTabStyle lipgloss.Style
	StatusBarStyle   lipgloss.Style
	SidebarStyle     lipgloss.Style
	InputStyle       lipgloss.Style
	UserStyle        lipgloss.Style
	ToolStyle        lipgloss.Style
	ErrorStyle       lipgloss.Style
	SuccessStyle     lipgloss.Style
	MutedStyle       lipgloss.Style
	DiffAddStyle     lipgloss.Style
	DiffDelStyle     lipgloss.Style
	DiffHunkStyle    lipgloss.Style
}

func DarkTheme() Theme {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	bordered := lipgloss.NewStyle().
		Foreground(colorText).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder)

	return Theme{
		TitleStyle:       fg(colorAccent).Bold(true),
		ActiveTabStyle:   fg(colorText).Background(colorAccent).Padding(0, 2).Bold(true),
		InactiveTabStyle: fg(colorDim).Padding(0, 2),
		StatusBarStyle:   fg(colorDim).Background(colorBar),
		SidebarStyle:     bordered.BorderLeft(true),
		InputStyle:       bordered.BorderTop(true),
		UserStyle:        fg(colorAccent).Bold(true),
		ToolStyle:        fg(colorTool).Bold(true),
		ErrorStyle:       fg(colorError).Bold(true),
		SuccessStyle:     fg(colorSuccess),
		MutedStyle:       fg(colorMuted),
		DiffAddStyle:     fg(colorSuccess),
		DiffDelStyle:     fg(colorError),
		DiffHunkStyle:    fg(colorTool),
	}
}
