package tui

import "github.com/mmcdole/hangar/internal/coordinator"

// Message types for the TUI

// ResultMsg carries one completed background task
type ResultMsg struct {
	Env coordinator.Envelope
}

// ResultsClosedMsg signals that the coordinator shut down
type ResultsClosedMsg struct{}

// startMsg kicks off session resume once the program runs
type startMsg struct{}

// TickMsg is a general tick message for animations
type TickMsg struct{}

// ClearStatusMsg clears the status bar message
type ClearStatusMsg struct {
	seq int
}

// LinkOpenedMsg reports the outcome of opening a link
type LinkOpenedMsg struct {
	URL string
	Err error
}
