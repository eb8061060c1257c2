package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/hangar/internal/tui/styles"
)

// LoginForm asks for a handle and an app password
type LoginForm struct {
	handle   textinput.Model
	password textinput.Model
	focus    int
	busy     bool
	errText  string
}

// NewLoginForm creates a login form
func NewLoginForm() LoginForm {
	h := textinput.New()
	h.Placeholder = "you.bsky.social"
	h.Prompt = "Handle    "
	h.CharLimit = 253
	h.Width = 32

	p := textinput.New()
	p.Placeholder = "xxxx-xxxx-xxxx-xxxx"
	p.Prompt = "Password  "
	p.EchoMode = textinput.EchoPassword
	p.EchoCharacter = '•'
	p.Width = 32

	f := LoginForm{handle: h, password: p}
	f.handle.Focus()
	return f
}

// Focus returns the cursor blink command for the focused field
func (f *LoginForm) Focus() tea.Cmd {
	if f.focus == 0 {
		return f.handle.Focus()
	}
	return f.password.Focus()
}

// SetBusy marks a login attempt as in progress
func (f *LoginForm) SetBusy(busy bool) { f.busy = busy }

// SetError shows err under the form and clears the password
func (f *LoginForm) SetError(msg string) {
	f.errText = msg
	f.busy = false
	f.password.SetValue("")
}

// Credentials returns the trimmed handle and the password
func (f LoginForm) Credentials() (string, string) {
	return strings.TrimPrefix(strings.TrimSpace(f.handle.Value()), "@"), f.password.Value()
}

// Update handles input events, returns (form, cmd, submitted)
func (f LoginForm) Update(msg tea.Msg) (LoginForm, tea.Cmd, bool) {
	if f.busy {
		return f, nil, false
	}
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, LoginKeys.Submit):
			handle, password := f.Credentials()
			if handle != "" && password != "" {
				f.errText = ""
				return f, nil, true
			}
			if handle != "" {
				return f, f.setFocus(1), false
			}
			return f, nil, false
		case key.Matches(keyMsg, LoginKeys.Next):
			return f, f.setFocus(1 - f.focus), false
		case key.Matches(keyMsg, LoginKeys.Prev):
			return f, f.setFocus(1 - f.focus), false
		}
	}

	var cmd tea.Cmd
	if f.focus == 0 {
		f.handle, cmd = f.handle.Update(msg)
	} else {
		f.password, cmd = f.password.Update(msg)
	}
	return f, cmd, false
}

func (f *LoginForm) setFocus(i int) tea.Cmd {
	f.focus = i
	if i == 0 {
		f.password.Blur()
		return f.handle.Focus()
	}
	f.handle.Blur()
	return f.password.Focus()
}

// View renders the login form
func (f LoginForm) View() string {
	parts := []string{
		styles.ModalTitle.Render("Sign in to Bluesky"),
		f.handle.View(),
		f.password.View(),
		"",
	}
	switch {
	case f.busy:
		parts = append(parts, styles.DimStyle.Render("Signing in…"))
	case f.errText != "":
		parts = append(parts, styles.ErrorStyle.Width(44).Render(f.errText))
	default:
		parts = append(parts, styles.DimStyle.Render("Use an app password, not your account password."))
	}
	return styles.ModalStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
