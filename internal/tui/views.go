package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/hangar/internal/tui/styles"
)

// View renders the whole screen
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}

	switch m.State {
	case StateStarting:
		return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center,
			RenderSpinner(m.SpinnerFrame)+" "+styles.DimStyle.Render("Restoring session…"))
	case StateLogin:
		return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center, m.Login.View())
	case StateHelp:
		return m.renderHelp()
	case StateConfirmLogout:
		return m.renderConfirm("Log Out?", "This removes your stored session\nand this account's cached data.")
	case StateConfirmDelete:
		return m.renderConfirm("Delete Post?", "The post is removed from Bluesky.\nThis cannot be undone.")
	}

	// the layout depends on the banner, which changes with results
	m.updateLayout()

	rows := []string{m.renderTabs()}
	if m.unseen > 0 && m.Tab != TabNotifications {
		rows = append(rows, m.renderBanner())
	}

	var content string
	if m.Tab == TabNotifications {
		content = m.Notifications.View()
	} else {
		content = m.Posts.View()
		if _, inspector := m.columnWidths(); inspector > 0 {
			content = lipgloss.JoinHorizontal(lipgloss.Top, content, m.Inspector.View())
		}
	}
	rows = append(rows, content, m.renderFooter())
	view := lipgloss.JoinVertical(lipgloss.Left, rows...)

	if m.Compose.IsVisible() {
		view = lipgloss.Place(m.Width, m.Height,
			lipgloss.Center, lipgloss.Center,
			m.Compose.View())
	}
	return view
}

// renderTabs renders the tab bar with the account handle on the right
func (m Model) renderTabs() string {
	tab := func(label string, active bool) string {
		if active {
			return styles.BannerStyle.Render(label)
		}
		return styles.DimStyle.Padding(0, 1).Render(label)
	}
	notes := "2 Notifications"
	if m.unread > 0 {
		notes = fmt.Sprintf("2 Notifications (%d)", m.unread)
	}
	left := tab("1 Home", m.Tab == TabHome) + tab(notes, m.Tab == TabNotifications) +
		tab("3 Profile", m.Tab == TabProfile)

	right := ""
	if s := m.core.Session(); s != nil {
		right = styles.HandleStyle.Render("@" + s.Handle)
	}
	gap := m.Width - lipgloss.Width(left) - lipgloss.Width(right)
	return left + strings.Repeat(" ", max(gap, 1)) + right
}

// renderBanner renders the new-posts banner above the list
func (m Model) renderBanner() string {
	text := "↑ " + pluralize(m.unseen, "new post") + "  (n to show)"
	return lipgloss.PlaceHorizontal(m.Width, lipgloss.Center, styles.BannerStyle.Render(text))
}

// renderFooter renders a single-line minimal footer
func (m Model) renderFooter() string {
	var left string
	switch {
	case m.StatusMsg != "" && m.StatusIsErr:
		left = styles.ErrorStyle.Render(m.StatusMsg)
	case m.StatusMsg != "":
		left = styles.DimStyle.Render(m.StatusMsg)
	case m.loading():
		spinner := "…"
		if !m.settings.ReduceMotion {
			spinner = RenderSpinner(m.SpinnerFrame)
		}
		left = spinner + " " + styles.DimStyle.Render("Loading")
	case m.cacheDegraded:
		left = styles.DimStyle.Render("offline cache unavailable")
	}

	var center string
	switch m.Tab {
	case TabNotifications:
		center = styles.AccentStyle.Render("m") + styles.DimStyle.Render(" mentions only")
	default:
		center = styles.AccentStyle.Render("l") + styles.DimStyle.Render(" like  ") +
			styles.AccentStyle.Render("b") + styles.DimStyle.Render(" repost  ") +
			styles.AccentStyle.Render("e") + styles.DimStyle.Render(" reply  ") +
			styles.AccentStyle.Render("c") + styles.DimStyle.Render(" post")
	}

	right := styles.AccentStyle.Render("?") + styles.DimStyle.Render(" help")

	leftWidth := lipgloss.Width(left)
	centerWidth := lipgloss.Width(center)
	rightWidth := lipgloss.Width(right)

	if leftWidth+centerWidth+rightWidth >= m.Width {
		gap := max(m.Width-leftWidth-rightWidth, 0)
		return left + strings.Repeat(" ", gap) + right
	}
	available := m.Width - leftWidth - rightWidth
	leftPad := (available - centerWidth) / 2
	rightPad := available - centerWidth - leftPad
	return left + strings.Repeat(" ", leftPad) + center + strings.Repeat(" ", rightPad) + right
}

// renderHelp renders the help screen
func (m Model) renderHelp() string {
	help := `
NAVIGATION                      POSTS
  j/k        Up/down               l      Like / unlike
  g/G        Top / bottom          b      Repost / undo
  PgUp/PgDn  Scroll page           e      Reply
  Ctrl+u/d   Scroll half page      Q      Quote
  Enter      Author profile        c      New post
  h/Esc      Back                  x      Delete own post
  1 2 3      Home / Notif. / You   o      Open in browser

VIEW                            OTHER
  /          Filter                r      Refresh
  n          Show new posts        L      Logout
  i          Toggle inspector      q      Quit
  J/K        Scroll inspector      ?      This help
  m          Mentions only

Press any key to return...
`
	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(help))
}

func (m Model) renderConfirm(title, body string) string {
	modal := lipgloss.JoinVertical(lipgloss.Center,
		styles.ModalTitle.Render(title),
		body,
		"",
		"[Y] Yes      [N] No",
	)
	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(modal))
}

// RenderSpinner renders a loading spinner
func RenderSpinner(frame int) string {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	return styles.SpinnerStyle.Render(frames[frame%len(frames)])
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
