package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/mmcdole/hangar/internal/adapter"
	"github.com/spf13/cobra"
)

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, s := range adapter.Flatten(g.cfg) {
					if err := writePlain(cmd.OutOrStdout(), "%s = %v\n", s.Key, s.Value); err != nil {
						return err
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return writePlain(cmd.OutOrStdout(), "%s\n", filepath.Join(g.dir(), "config.yaml"))
			},
		},
		newConfigInitCmd(g),
	)
	return cmd
}

func newConfigInitCmd(g *globals) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(g.dir(), "config.yaml")
			if _, err := os.Stat(path); err == nil && !force {
				return errors.New(path + " already exists, use --force to overwrite")
			}
			if err := adapter.SaveConfig(g.cfg, g.dir()); err != nil {
				return err
			}
			return writePlain(cmd.OutOrStdout(), "wrote %s\n", path)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
