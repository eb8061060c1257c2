package components

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/tui/styles"
)

// MaxPostLength is the longest post the service accepts, in characters.
const MaxPostLength = 300

const maxSuggestions = 5

// Suggester returns known accounts matching a partial handle
type Suggester func(partial string, limit int) []domain.Actor

// ComposeModal is the post editor with @mention completion
type ComposeModal struct {
	visible bool
	title   string
	context string // text of the post being replied to or quoted
	area    textarea.Model

	suggest     Suggester
	suggestions []domain.Actor
	selected    int
}

// NewComposeModal creates a compose modal
func NewComposeModal(suggest Suggester) ComposeModal {
	ta := textarea.New()
	ta.Placeholder = "What's up?"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetWidth(56)
	ta.SetHeight(6)
	ta.Prompt = ""

	return ComposeModal{area: ta, suggest: suggest}
}

// Show opens the modal empty. context is shown above the editor.
func (m *ComposeModal) Show(title, context string) tea.Cmd {
	m.visible = true
	m.title = title
	m.context = context
	m.area.Reset()
	m.suggestions = nil
	return m.area.Focus()
}

// Hide dismisses the modal
func (m *ComposeModal) Hide() {
	m.visible = false
	m.area.Blur()
}

// IsVisible returns whether the modal is shown
func (m ComposeModal) IsVisible() bool { return m.visible }

// Value returns the draft text
func (m ComposeModal) Value() string { return m.area.Value() }

// Suggestions returns the mention candidates for the word being typed
func (m ComposeModal) Suggestions() []domain.Actor { return m.suggestions }

// Valid reports whether the draft can be posted
func (m ComposeModal) Valid() bool {
	n := utf8.RuneCountInString(strings.TrimSpace(m.Value()))
	return n > 0 && n <= MaxPostLength
}

// Update handles input events, returns (modal, cmd, submitted)
func (m ComposeModal) Update(msg tea.Msg) (ComposeModal, tea.Cmd, bool) {
	if !m.visible {
		return m, nil, false
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, ComposeKeys.Submit):
			return m, nil, m.Valid()
		case key.Matches(keyMsg, ComposeKeys.Cancel):
			if len(m.suggestions) > 0 {
				m.suggestions = nil
				return m, nil, false
			}
			m.Hide()
			return m, nil, false
		case key.Matches(keyMsg, ComposeKeys.Complete):
			if len(m.suggestions) > 0 {
				m.complete(m.suggestions[m.selected])
			}
			return m, nil, false
		case key.Matches(keyMsg, ComposeKeys.Next):
			if len(m.suggestions) > 0 {
				m.selected = (m.selected + 1) % len(m.suggestions)
			}
			return m, nil, false
		case key.Matches(keyMsg, ComposeKeys.Prev):
			if len(m.suggestions) > 0 {
				m.selected = (m.selected - 1 + len(m.suggestions)) % len(m.suggestions)
			}
			return m, nil, false
		}
	}

	var cmd tea.Cmd
	m.area, cmd = m.area.Update(msg)
	m.refreshSuggestions()
	return m, cmd, false
}

// currentMention returns the partial handle being typed at the end of
// the draft, without the @.
func currentMention(text string) (string, bool) {
	if text == "" || unicode.IsSpace(rune(text[len(text)-1])) {
		return "", false
	}
	word := text[strings.LastIndexFunc(text, unicode.IsSpace)+1:]
	partial, ok := strings.CutPrefix(word, "@")
	return partial, ok && partial != ""
}

func (m *ComposeModal) refreshSuggestions() {
	m.suggestions = nil
	m.selected = 0
	if m.suggest == nil {
		return
	}
	if partial, ok := currentMention(m.area.Value()); ok {
		m.suggestions = m.suggest(partial, maxSuggestions)
	}
}

// complete replaces the partial mention with the chosen handle
func (m *ComposeModal) complete(a domain.Actor) {
	text := m.area.Value()
	partial, ok := currentMention(text)
	if !ok {
		return
	}
	m.area.SetValue(text[:len(text)-len(partial)] + a.Handle + " ")
	m.suggestions = nil
}

// View renders the compose modal
func (m ComposeModal) View() string {
	if !m.visible {
		return ""
	}
	const modalWidth = 58

	parts := []string{styles.ModalTitle.Render(m.title)}
	if m.context != "" {
		parts = append(parts, styles.DimStyle.Width(modalWidth).Render(styles.Truncate(m.context, modalWidth*2)), "")
	}
	parts = append(parts, m.area.View())

	for i, a := range m.suggestions {
		line := "@" + a.Handle
		if a.DisplayName != "" {
			line += "  " + a.DisplayName
		}
		if i == m.selected {
			parts = append(parts, styles.SuggestCurrent.Render(styles.Truncate(line, modalWidth)))
		} else {
			parts = append(parts, styles.SuggestStyle.Render(styles.Truncate(line, modalWidth)))
		}
	}

	n := utf8.RuneCountInString(m.Value())
	counter := styles.DimStyle.Render(fmt.Sprintf("%d/%d", n, MaxPostLength))
	if n > MaxPostLength {
		counter = styles.ErrorStyle.Render(fmt.Sprintf("%d/%d", n, MaxPostLength))
	}
	hint := styles.HelpKeyStyle.Render("C-s") + styles.HelpDescStyle.Render(" post  ") +
		styles.HelpKeyStyle.Render("esc") + styles.HelpDescStyle.Render(" discard")
	gap := modalWidth - lipgloss.Width(hint) - lipgloss.Width(counter)
	parts = append(parts, "", hint+strings.Repeat(" ", max(gap, 1))+counter)

	return styles.ModalStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
