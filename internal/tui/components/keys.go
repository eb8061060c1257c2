package components

import "github.com/charmbracelet/bubbles/key"

// PostListKeyMap defines key bindings for post list navigation
type PostListKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Home     key.Binding
	End      key.Binding
	HalfUp   key.Binding
	HalfDown key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Escape   key.Binding
	Enter    key.Binding
	Filter   key.Binding
}

// DefaultPostListKeyMap returns the default post list key bindings
func DefaultPostListKeyMap() PostListKeyMap {
	return PostListKeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Home: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "go to top"),
		),
		End: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "go to bottom"),
		),
		HalfUp: key.NewBinding(
			key.WithKeys("ctrl+u"),
			key.WithHelp("C-u", "half page up"),
		),
		HalfDown: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("C-d", "half page down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "page down"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filter"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "accept filter"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
	}
}

// ComposeKeyMap defines key bindings for the compose modal
type ComposeKeyMap struct {
	Submit   key.Binding
	Complete key.Binding
	Next     key.Binding
	Prev     key.Binding
	Cancel   key.Binding
}

// DefaultComposeKeyMap returns the default compose key bindings
func DefaultComposeKeyMap() ComposeKeyMap {
	return ComposeKeyMap{
		Submit: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("C-s", "post"),
		),
		Complete: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "complete mention"),
		),
		Next: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "next suggestion"),
		),
		Prev: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("C-p", "previous suggestion"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "discard"),
		),
	}
}

// LoginKeyMap defines key bindings for the login form
type LoginKeyMap struct {
	Next   key.Binding
	Prev   key.Binding
	Submit key.Binding
}

// DefaultLoginKeyMap returns the default login key bindings
func DefaultLoginKeyMap() LoginKeyMap {
	return LoginKeyMap{
		Next: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "next field"),
		),
		Prev: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("S-tab", "previous field"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "sign in"),
		),
	}
}

// Package-level key map instances
var (
	PostListKeys = DefaultPostListKeyMap()
	ComposeKeys  = DefaultComposeKeyMap()
	LoginKeys    = DefaultLoginKeyMap()
)
