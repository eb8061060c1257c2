package main

import (
	"fmt"
	"slices"

	"github.com/mmcdole/hangar/internal/settings"
	"github.com/spf13/cobra"
)

func newSettingsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Get or set display preferences",
	}
	cmd.AddCommand(
		newSettingsShowCmd(g),
		newSettingsGetCmd(g),
		newSettingsSetCmd(g),
	)
	return cmd
}

func loadSettings(g *globals) (settings.Settings, error) {
	path, err := g.settingsPath()
	if err != nil {
		return settings.Settings{}, err
	}
	return settings.Load(path)
}

func newSettingsShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print every setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(g)
			if err != nil {
				return err
			}
			for _, key := range settings.AllowedKeys() {
				value, err := s.Get(key)
				if err != nil {
					return err
				}
				if err := writePlain(cmd.OutOrStdout(), "%s = %s\n", key, value); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newSettingsGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !slices.Contains(settings.AllowedKeys(), key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, settings.AllowedKeys())
			}
			s, err := loadSettings(g)
			if err != nil {
				return err
			}
			value, err := s.Get(key)
			if err != nil {
				return err
			}
			return writePlain(cmd.OutOrStdout(), "%s\n", value)
		},
	}
}

func newSettingsSetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := g.settingsPath()
			if err != nil {
				return err
			}
			s, err := settings.SetKey(path, args[0], args[1])
			if err != nil {
				return err
			}
			value, err := s.Get(args[0])
			if err != nil {
				return err
			}
			return writePlain(cmd.OutOrStdout(), "%s = %s\n", args[0], value)
		},
	}
}
