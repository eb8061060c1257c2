package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
	"github.com/spf13/cobra"
)

func newTimelineCmd(g *globals) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print the newest posts of the home timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return errors.New("--limit must be positive")
			}
			rt := openRuntime(g.cfg, g.logger)
			defer rt.Close()

			if _, err := rt.core.Resume(cmd.Context()); err != nil {
				if errors.Is(err, domain.ErrNotAuthenticated) {
					return errors.New("not logged in, run `hangar login` first")
				}
				return err
			}
			posts, err := rt.core.CollectTimeline(cmd.Context(), limit)
			if err != nil {
				return errors.New(domain.UserMessage(err))
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(posts)
			}
			now := time.Now()
			for _, p := range posts {
				if err := writePlain(out, "%s\n", formatPostLine(p, now)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of posts")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	return cmd
}
