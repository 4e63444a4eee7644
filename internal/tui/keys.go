package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap 快捷键绑定；实现 help.KeyMap
// KeyMap holds the TUI keybindings and implements help.KeyMap.
type KeyMap struct {
	Submit      key.Binding
	Cancel      key.Binding
	Quit        key.Binding
	SwitchPanel key.Binding
	ClearScreen key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
}

func DefaultKeyMap() KeyMap {
	bind := func(k, help string) key.Binding {
		return key.NewBinding(key.WithKeys(k), key.WithHelp(k, help))
	}
	return KeyMap{
		Submit:      bind("enter", "send"),
		Cancel:      bind("esc", "interrupt"),
		Quit:        bind("ctrl+c", "quit"),
		SwitchPanel: bind("tab", "panel"),
		ClearScreen: bind("ctrl+l", "clear"),
		PageUp:      bind("pgup", "scroll up"),
		PageDown:    bind("pgdown", "scroll down"),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Cancel, k.SwitchPanel, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Cancel, k.Quit},
		{k.SwitchPanel, k.ClearScreen, k.PageUp, k.PageDown},
	}
}
