package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the key bindings of the notification list and reminder popup.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Read    key.Binding
	ReadAll key.Binding
	Delete  key.Binding
	Select  key.Binding

	Previous key.Binding
	Next     key.Binding
	Dismiss  key.Binding
	CloseAll key.Binding

	Quit key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Read: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "mark read"),
		),
		ReadAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "read all"),
		),
		Delete: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "delete"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open"),
		),
		Previous: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←", "previous"),
		),
		Next: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→", "next"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "dismiss"),
		),
		CloseAll: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close all"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// listHelp implements help.KeyMap for the notification list.
type listHelp struct{ KeyMap }

func (k listHelp) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Read, k.ReadAll, k.Delete, k.Select, k.Quit}
}

func (k listHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// popupHelp implements help.KeyMap while the reminder popup is open.
type popupHelp struct{ KeyMap }

func (k popupHelp) ShortHelp() []key.Binding {
	return []key.Binding{k.Previous, k.Next, k.Dismiss, k.CloseAll, k.Quit}
}

func (k popupHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
