package main

import (
	"sort"

	"github.com/mmcdole/hangar/internal/adapter"
	"github.com/mmcdole/hangar/internal/store"
	"github.com/spf13/cobra"
)

func newCacheCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or trim the local cache",
	}
	cmd.AddCommand(
		newCacheStatsCmd(g),
		newCacheEvictCmd(g),
		newCacheClearCmd(g),
	)
	return cmd
}

func newCacheStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cached rows and image bytes per account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache := openCache(g.cfg.Cache, g.logger)
			defer cache.Close()

			accounts, err := cache.Accounts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(accounts) == 0 {
				return writePlain(out, "cache is empty\n")
			}
			for _, account := range accounts {
				st, err := cache.Stats(account)
				if err != nil {
					return err
				}
				if err := writePlain(out, "%s\n", account); err != nil {
					return err
				}
				kinds := make([]string, 0, len(st.Rows))
				for k := range st.Rows {
					kinds = append(kinds, string(k))
				}
				sort.Strings(kinds)
				for _, k := range kinds {
					if err := writePlain(out, "  %-14s %d\n", k, st.Rows[store.Kind(k)]); err != nil {
						return err
					}
				}
				if err := writePlain(out, "  %-14s %d (%s)\n", "images", st.Images, formatBytes(st.ImageBytes)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCacheEvictCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "evict",
		Short: "Drop stale entries and trim accounts over their limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache := openCache(g.cfg.Cache, g.logger)
			defer cache.Close()

			expired, err := cache.Cleanup()
			if err != nil {
				return err
			}
			st, err := cache.Evict()
			if err != nil {
				return err
			}
			return writePlain(cmd.OutOrStdout(), "removed %d stale, evicted %d rows and %d images (%s)\n",
				expired, st.Rows, st.Images, formatBytes(st.ImageBytes))
		},
	}
}

func newCacheClearCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the cache database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := adapter.ClearCache(&g.cfg.Cache); err != nil {
				return err
			}
			return writePlain(cmd.OutOrStdout(), "cache cleared\n")
		},
	}
}
