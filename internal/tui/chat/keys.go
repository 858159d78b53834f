package chat

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Send      key.Binding
	Clear     key.Binding
	NextModel key.Binding
	Retry     key.Binding
	Quit      key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+k"),
			key.WithHelp("ctrl+k", "clear"),
		),
		NextModel: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next model"),
		),
		Retry: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "retry"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+d"),
			key.WithHelp("ctrl+c", "quit"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
		),
	}
}
