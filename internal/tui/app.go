package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"buildmatic/internal/chat"
	"buildmatic/internal/event"
	"buildmatic/internal/todo"
	"buildmatic/internal/tools"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PanelID 面板标识
// PanelID identifies a panel
type PanelID int

const (
	PanelChat PanelID = iota
	PanelFiles
	PanelLogs
)

const usagePrefix = "[tokens:"

// Runner is the conversation surface the TUI drives.
type Runner interface {
	RunPrompt(ctx context.Context, history []chat.Message, prompt string, sink event.Sink) ([]chat.Message, error)
	Todos() *todo.Tracker
}

// Info is the static sidebar content.
type Info struct {
	Workspace string
	Model     string
	Skills    []string
	SessionID string
}

// --- Tea Messages ---

// eventMsg carries one conversation event into Update.
type eventMsg struct{ ev event.Event }

// turnDoneMsg is sent once RunPrompt returns.
type turnDoneMsg struct {
	history []chat.Message
	err     error
}

// App Bubble Tea 主 Model
// App is the main Bubble Tea model. Conversation events are folded into
// its state by apply; rendering reads only that state.
type App struct {
	width  int
	height int

	activePanel PanelID
	chatView    viewport.Model
	filesView   viewport.Model
	logsView    viewport.Model
	input       textarea.Model

	info      Info
	usage     string
	todoItems []todo.Item

	chatLines []string
	logLines  []string
	files     []string
	// pending holds text of the current step; it is flushed to the chat
	// when a tool starts, or replaced by the rendered answer on done.
	pending []string

	streaming bool
	lastError string

	runner  Runner
	history []chat.Message
	ctx     context.Context
	cancel  context.CancelFunc
	events  chan tea.Msg
	quit    chan struct{}
	quitOne *sync.Once

	theme Theme
	keys  KeyMap
	help  help.Model
}

// NewApp 创建 TUI 应用
// NewApp creates a new TUI application
func NewApp(ctx context.Context, runner Runner, info Info) App {
	ta := textarea.New()
	ta.Placeholder = "Ask anything (enter to send, esc to interrupt, ctrl+c to quit)"
	ta.CharLimit = 8192
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	if ctx == nil {
		ctx = context.Background()
	}
	return App{
		activePanel: PanelChat,
		input:       ta,
		info:        info,
		runner:      runner,
		ctx:         ctx,
		quit:        make(chan struct{}),
		quitOne:     &sync.Once{},
		theme:       DarkTheme(),
		keys:        DefaultKeyMap(),
		help:        help.New(),
	}
}

func (a App) Init() tea.Cmd {
	return textarea.Blink
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Quit):
			a.shutdown()
			return a, tea.Quit
		case key.Matches(msg, a.keys.SwitchPanel):
			a.activePanel = (a.activePanel + 1) % 3
			return a, nil
		case key.Matches(msg, a.keys.Cancel):
			if a.streaming && a.cancel != nil {
				a.cancel()
				a.appendLog("Generation interrupted")
			}
			return a, nil
		case key.Matches(msg, a.keys.ClearScreen):
			if !a.streaming {
				a.chatLines = nil
				a.history = nil
				a.refreshChat()
			}
			return a, nil
		case key.Matches(msg, a.keys.PageUp), key.Matches(msg, a.keys.PageDown):
			return a.scroll(msg)
		case key.Matches(msg, a.keys.Submit):
			return a.submit()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		return a, nil

	case eventMsg:
		a.apply(msg.ev)
		return a, waitForMsg(a.events)

	case turnDoneMsg:
		a.history = msg.history
		a.streaming = false
		if a.cancel != nil {
			a.cancel()
			a.cancel = nil
		}
		a.events = nil
		if msg.err != nil && a.lastError == "" {
			a.lastError = msg.err.Error()
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a App) submit() (tea.Model, tea.Cmd) {
	if a.streaming {
		return a, nil
	}
	text := strings.TrimSpace(a.input.Value())
	if text == "" {
		return a, nil
	}
	switch strings.ToLower(text) {
	case "exit", "quit", "q":
		a.shutdown()
		return a, tea.Quit
	}
	a.input.Reset()
	a.AppendUserMessage(text)
	return a, a.startTurn(text)
}

// startTurn runs the prompt on its own goroutine and streams its events
// back through a channel that waitForMsg drains one message at a time.
func (a *App) startTurn(prompt string) tea.Cmd {
	ctx, cancel := context.WithCancel(a.ctx)
	ch := make(chan tea.Msg, 64)
	a.cancel = cancel
	a.events = ch
	a.streaming = true
	a.lastError = ""
	a.pending = nil

	history := a.history
	runner := a.runner
	quit := a.quit
	send := func(msg tea.Msg) {
		select {
		case ch <- msg:
		case <-quit:
		}
	}
	go func() {
		defer close(ch)
		h, err := runner.RunPrompt(ctx, history, prompt, event.SinkFunc(func(e event.Event) {
			send(eventMsg{ev: e})
		}))
		send(turnDoneMsg{history: h, err: err})
	}()
	return waitForMsg(ch)
}

func waitForMsg(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (a *App) shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	a.quitOne.Do(func() { close(a.quit) })
}

// apply folds one event into the view state.
func (a *App) apply(e event.Event) {
	switch e.Kind {
	case event.KindText:
		if strings.HasPrefix(e.Content, usagePrefix) {
			a.usage = strings.TrimSuffix(strings.TrimPrefix(e.Content, "[tokens: "), "]")
			a.appendLog(e.Content)
			return
		}
		a.pending = append(a.pending, e.Content)
		a.refreshChat()
	case event.KindToolStart:
		a.flushPending()
		a.appendChat(a.theme.ToolStyle.Render("> " + e.Name))
		a.appendLog(fmt.Sprintf("[TOOL] %s %s", e.Name, string(e.Input)))
		a.trackFile(e.Name, e.Input)
		if id, ok := tools.ParseID(e.Name); ok && id == tools.EditFile {
			a.previewEdit(e.Input)
		}
	case event.KindToolResult:
		preview := event.Preview(e.Output, event.PreviewRunes)
		if looksLikeDiff(e.Output) {
			preview = RenderDiff(e.Output, a.theme)
		}
		a.appendChat(a.theme.MutedStyle.Render(indentBlock(preview, "  ")))
		a.appendLog(fmt.Sprintf("[DONE] %s (%d bytes)", e.Name, len(e.Output)))
		if id, ok := tools.ParseID(e.Name); ok && id == tools.TodoWrite && a.runner != nil {
			if tracker := a.runner.Todos(); tracker != nil {
				a.todoItems = tracker.Items()
			}
		}
	case event.KindDone:
		a.pending = nil
		if rendered := RenderMarkdown(e.Response, a.chatWidth()); rendered != "" {
			a.appendChat(rendered)
		}
		a.appendChat(a.theme.SuccessStyle.Render("> Done"))
	case event.KindError, event.KindAborted:
		a.flushPending()
		label := "Error: "
		if e.Kind == event.KindAborted {
			label = "Aborted: "
		}
		a.lastError = e.Message
		a.appendChat(a.theme.ErrorStyle.Render(label + e.Message))
		a.appendLog(label + e.Message)
	}
}

func (a *App) trackFile(name string, input json.RawMessage) {
	id, ok := tools.ParseID(name)
	if !ok || (id != tools.ReadFile && id != tools.WriteFile && id != tools.EditFile) {
		return
	}
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &in); err != nil || strings.TrimSpace(in.Path) == "" {
		return
	}
	entry := fmt.Sprintf("%-6s %s", strings.TrimSuffix(name, "_file"), in.Path)
	for _, f := range a.files {
		if f == entry {
			return
		}
	}
	a.files = append(a.files, entry)
	a.filesView.SetContent(strings.Join(a.files, "\n"))
}

func (a *App) previewEdit(input json.RawMessage) {
	var in struct {
		Path    string `json:"path"`
		OldText string `json:"old_text"`
		NewText string `json:"new_text"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return
	}
	if diff := editDiff(in.Path, in.OldText, in.NewText); diff != "" {
		a.appendChat(indentBlock(RenderDiff(diff, a.theme), "  "))
	}
}

func (a App) scroll(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activePanel {
	case PanelChat:
		a.chatView, cmd = a.chatView.Update(msg)
	case PanelFiles:
		a.filesView, cmd = a.filesView.Update(msg)
	case PanelLogs:
		a.logsView, cmd = a.logsView.Update(msg)
	}
	return a, cmd
}

// --- 内部方法 / Internal methods ---

func (a *App) relayout() {
	mainWidth := a.chatWidth()
	panelHeight := a.height - 8
	if panelHeight < 3 {
		panelHeight = 3
	}

	a.chatView = viewport.New(mainWidth, panelHeight)
	a.filesView = viewport.New(mainWidth, panelHeight)
	a.filesView.SetContent(strings.Join(a.files, "\n"))
	a.logsView = viewport.New(mainWidth, panelHeight)
	a.logsView.SetContent(strings.Join(a.logLines, "\n"))
	a.refreshChat()

	a.input.SetWidth(mainWidth - 4)
}

func (a App) sidebarWidth() int {
	if a.width < 80 {
		return 0
	}
	w := a.width * 25 / 100
	if w < 20 {
		w = 20
	}
	if w > 40 {
		w = 40
	}
	return w
}

func (a App) chatWidth() int {
	if a.width == 0 {
		return 80
	}
	sw := a.sidebarWidth()
	if sw > 0 {
		return a.width - sw - 1
	}
	return a.width
}

func (a *App) appendChat(text string) {
	a.chatLines = append(a.chatLines, text)
	a.refreshChat()
}

func (a *App) appendLog(text string) {
	a.logLines = append(a.logLines, text)
	a.logsView.SetContent(strings.Join(a.logLines, "\n"))
}

func (a *App) flushPending() {
	if len(a.pending) == 0 {
		return
	}
	a.chatLines = append(a.chatLines, a.pending...)
	a.pending = nil
	a.refreshChat()
}

func (a *App) refreshChat() {
	lines := append(append([]string(nil), a.chatLines...), a.pending...)
	a.chatView.SetContent(strings.Join(lines, "\n"))
	a.chatView.GotoBottom()
}

func indentBlock(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

// AppendUserMessage 添加用户消息到聊天面板
// AppendUserMessage adds a user message to the chat panel
func (a *App) AppendUserMessage(text string) {
	a.appendChat("\n" + a.theme.UserStyle.Render("you> ") + text)
}

// --- 渲染方法 / Render methods ---

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	sidebarWidth := a.sidebarWidth()
	mainWidth := a.chatWidth()

	inputHeight := 5
	statusHeight := 1
	tabHeight := 1
	panelHeight := a.height - inputHeight - statusHeight - tabHeight
	if panelHeight < 3 {
		panelHeight = 3
	}

	tabs := a.renderTabs()
	panel := a.renderActivePanel(mainWidth, panelHeight)
	inputBox := a.theme.InputStyle.Width(mainWidth).Render(a.input.View())
	statusBar := a.renderStatusBar(a.width)

	main := lipgloss.JoinVertical(lipgloss.Left, tabs, panel, inputBox)
	if sidebarWidth > 0 {
		sidebar := a.renderSidebar(sidebarWidth, a.height-statusHeight)
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, sidebar)
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, statusBar)
}

func (a App) renderTabs() string {
	tabs := []struct {
		id   PanelID
		name string
	}{
		{PanelChat, "Chat"},
		{PanelFiles, "Files"},
		{PanelLogs, "Logs"},
	}

	parts := make([]string, 0, len(tabs))
	for _, tab := range tabs {
		style := a.theme.InactiveTabStyle
		if tab.id == a.activePanel {
			style = a.theme.ActiveTabStyle
		}
		parts = append(parts, style.Render(tab.name))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (a App) renderActivePanel(width, height int) string {
	style := lipgloss.NewStyle().Width(width).Height(height)

	var content string
	switch a.activePanel {
	case PanelChat:
		content = a.chatView.View()
	case PanelFiles:
		if len(a.files) == 0 {
			content = a.theme.MutedStyle.Render("  No files accessed yet")
		} else {
			content = a.filesView.View()
		}
	case PanelLogs:
		if len(a.logLines) == 0 {
			content = a.theme.MutedStyle.Render("  No logs yet")
		} else {
			content = a.logsView.View()
		}
	}
	return style.Render(content)
}

func (a App) renderSidebar(width, height int) string {
	parts := []string{
		a.theme.TitleStyle.Render(" buildmatic"),
		"",
		a.theme.TitleStyle.Render(" Model"),
		"  " + a.info.Model,
		"",
		a.theme.TitleStyle.Render(" Workspace"),
		"  " + a.info.Workspace,
		"",
	}
	if a.info.SessionID != "" {
		parts = append(parts, a.theme.TitleStyle.Render(" Session"), "  "+a.info.SessionID, "")
	}

	if a.usage != "" {
		parts = append(parts, a.theme.TitleStyle.Render(" Last call"))
		for _, field := range strings.Split(a.usage, ", ") {
			parts = append(parts, "  "+field)
		}
		parts = append(parts, "")
	}

	if len(a.info.Skills) > 0 {
		parts = append(parts, a.theme.TitleStyle.Render(" Skills"))
		for _, s := range a.info.Skills {
			parts = append(parts, "  "+s)
		}
		parts = append(parts, "")
	}

	if len(a.todoItems) > 0 {
		parts = append(parts, a.theme.TitleStyle.Render(" Todo"))
		for _, item := range a.todoItems {
			mark := "[ ]"
			switch item.Status {
			case todo.StatusCompleted:
				mark = "[x]"
			case todo.StatusInProgress:
				mark = "[>]"
			}
			parts = append(parts, "  "+mark+" "+item.Content)
		}
		parts = append(parts, "")
	}

	return a.theme.SidebarStyle.Width(width).Height(height).Render(strings.Join(parts, "\n"))
}

func (a App) renderStatusBar(width int) string {
	status := "ready"
	switch {
	case a.streaming:
		status = "working..."
	case a.lastError != "":
		status = "error: " + a.lastError
	}

	left := fmt.Sprintf(" %s · %s", a.info.Model, status)
	right := a.help.ShortHelpView(a.keys.ShortHelp()) + "  "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return a.theme.StatusBarStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

// Run 启动 Bubble Tea TUI
// Run starts the Bubble Tea TUI application
func Run(ctx context.Context, runner Runner, info Info) error {
	app := NewApp(ctx, runner, info)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
