package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the application
type KeyMap struct {
	// Tabs
	Home          key.Binding
	Notifications key.Binding
	OwnProfile    key.Binding
	Back          key.Binding

	// Actions
	Quit            key.Binding
	Help            key.Binding
	Refresh         key.Binding
	ShowNew         key.Binding
	Like            key.Binding
	Repost          key.Binding
	Compose         key.Binding
	Reply           key.Binding
	Quote           key.Binding
	Delete          key.Binding
	Open            key.Binding
	Profile         key.Binding
	ToggleInspector key.Binding
	ScrollInspector key.Binding
	MentionsOnly    key.Binding
	Logout          key.Binding

	// Confirmations
	Confirm key.Binding
	Deny    key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Home: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "home"),
		),
		Notifications: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "notifications"),
		),
		OwnProfile: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "your profile"),
		),
		Back: key.NewBinding(
			key.WithKeys("h", "left", "backspace", "esc"),
			key.WithHelp("h/←", "back"),
		),

		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		ShowNew: key.NewBinding(
			key.WithKeys("n", " "),
			key.WithHelp("n", "show new posts"),
		),
		Like: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "like/unlike"),
		),
		Repost: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "repost/undo"),
		),
		Compose: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "new post"),
		),
		Reply: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "reply"),
		),
		Quote: key.NewBinding(
			key.WithKeys("Q"),
			key.WithHelp("Q", "quote"),
		),
		Delete: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "delete own post"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open in browser"),
		),
		Profile: key.NewBinding(
			key.WithKeys("enter", "p"),
			key.WithHelp("enter", "author profile"),
		),
		ToggleInspector: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "toggle inspector"),
		),
		ScrollInspector: key.NewBinding(
			key.WithKeys("J", "K"),
			key.WithHelp("J/K", "scroll inspector"),
		),
		MentionsOnly: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mentions only"),
		),
		Logout: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "logout"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "confirm"),
		),
		Deny: key.NewBinding(
			key.WithKeys("n", "N", "esc"),
			key.WithHelp("n/esc", "cancel"),
		),
	}
}

// Keys is the global key bindings instance
var Keys = DefaultKeyMap()
