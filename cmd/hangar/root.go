package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/hangar/internal/adapter"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/service"
	"github.com/mmcdole/hangar/internal/settings"
	"github.com/mmcdole/hangar/internal/tui"
	"github.com/spf13/cobra"
)

// globals is the state every command shares, filled in before it runs.
type globals struct {
	configDir string
	verbose   bool

	cfg     *adapter.Config
	logger  *slog.Logger // file log
	console *slog.Logger // stderr, warnings only unless --verbose
	closer  io.Closer
}

func (g *globals) dir() string {
	if g.configDir != "" {
		return g.configDir
	}
	return adapter.DefaultConfigDir()
}

func (g *globals) settingsPath() (string, error) {
	return settings.Path(g.dir())
}

func (g *globals) setup(cmd *cobra.Command) error {
	cfg, err := adapter.LoadConfig(g.configDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	g.cfg = cfg
	g.console = adapter.ConsoleLogger(cmd.ErrOrStderr(), g.verbose)

	logger, closer, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		g.console.Warn("file logging disabled", "error", err)
		logger, closer = adapter.NullLogger(), io.NopCloser(nil)
	}
	g.logger, g.closer = logger, closer
	slog.SetDefault(logger)
	return nil
}

func (g *globals) teardown() error {
	if g.closer == nil {
		return nil
	}
	return g.closer.Close()
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "hangar",
		Short:         "A terminal client for Bluesky",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return g.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), g)
		},
	}

	cmd.Version = Version
	cmd.PersistentFlags().StringVar(&g.configDir, "config-dir", "", "directory holding config.yaml and settings.toml")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "print debug output to stderr")

	cmd.AddCommand(
		newLoginCmd(g),
		newLogoutCmd(g),
		newWhoamiCmd(g),
		newTimelineCmd(g),
		newCacheCmd(g),
		newSettingsCmd(g),
		newConfigCmd(g),
	)
	return cmd
}

func runTUI(ctx context.Context, g *globals) error {
	prefs := settings.Default()
	if path, err := g.settingsPath(); err == nil {
		if prefs, err = settings.Load(path); err != nil {
			g.console.Warn("using default settings", "error", err)
			prefs = settings.Default()
		}
	}

	rt := openRuntime(g.cfg, g.logger)
	defer rt.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	poller := service.NewPoller(rt.core, g.cfg.Timeline.PollInterval, g.logger,
		domain.StreamHome, domain.StreamNotifications)
	go poller.Run(ctx)

	launcher := adapter.NewLauncher(g.cfg.Browser.Command, g.cfg.Browser.Args, g.logger)
	model := tui.NewModel(rt.core, launcher, prefs, g.logger)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	g.logger.Info("starting hangar", "version", Version)
	if _, err := p.Run(); err != nil {
		g.logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}
	g.logger.Info("shutting down")
	return nil
}
