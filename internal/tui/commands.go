package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/hangar/internal/coordinator"
)

// Command factories for async operations

// WaitForResultCmd blocks on the coordinator channel and delivers the next
// envelope. Update re-arms it after every result.
func WaitForResultCmd(results <-chan coordinator.Envelope) tea.Cmd {
	return func() tea.Msg {
		env, ok := <-results
		if !ok {
			return ResultsClosedMsg{}
		}
		return ResultMsg{Env: env}
	}
}

// TickCmd returns a command that sends a tick after a delay
func TickCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// ClearStatusCmd returns a command that clears status after a delay
func ClearStatusCmd(seq int, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(t time.Time) tea.Msg {
		return ClearStatusMsg{seq: seq}
	})
}

// OpenLinkCmd opens url outside the terminal
func OpenLinkCmd(opener Opener, url string) tea.Cmd {
	return func() tea.Msg {
		return LinkOpenedMsg{URL: url, Err: opener.Open(url)}
	}
}
