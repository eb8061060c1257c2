package adapter

import (
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"runtime"
)

// Launcher opens links (post permalinks, external embeds) outside the
// terminal, in the configured browser or the system default handler.
type Launcher struct {
	command string   // configured browser command, empty for system default
	args    []string // additional arguments placed before the URL
	logger  *slog.Logger

	start func(name string, args ...string) error
}

// NewLauncher creates a Launcher. An empty command uses the platform opener.
func NewLauncher(command string, args []string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		command: command,
		args:    args,
		logger:  logger,
		start:   startDetached,
	}
}

func startDetached(name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return err
	}
	return exec.Command(name, args...).Start()
}

// Open launches rawURL. Only http and https links are accepted so that
// text from a post can never name a local program or file.
func (l *Launcher) Open(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("refusing to open %q: not a web link", rawURL)
	}

	name, args := l.commandFor(u.String())
	l.logger.Info("opening link", "command", name, "url", u.String())
	if err := l.start(name, args...); err != nil {
		return fmt.Errorf("failed to open link with %s: %w", name, err)
	}
	return nil
}

// commandFor builds the command line for the configured browser, or the
// system default handler (open/xdg-open/start).
func (l *Launcher) commandFor(link string) (string, []string) {
	if l.command != "" {
		args := append(append([]string{}, l.args...), link)
		return l.command, args
	}
	switch runtime.GOOS {
	case "darwin":
		return "open", []string{link}
	case "windows":
		return "cmd", []string{"/c", "start", "", link}
	default:
		return "xdg-open", []string{link}
	}
}
