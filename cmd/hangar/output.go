package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/tui/components"
)

func writePlain(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

// formatPostLine renders a post on one line for the timeline command.
func formatPostLine(p domain.Post, now time.Time) string {
	text := strings.Join(strings.Fields(p.Text), " ")
	head := "@" + p.Author.Handle
	if p.RepostedBy != nil {
		head = "@" + p.RepostedBy.Handle + " ⟲ " + head
	}
	age := components.Ago(p.CreatedAt, now)
	return fmt.Sprintf("%-6s %s: %s  [↩ %d ⟲ %d ♥ %d]", age, head, text, p.ReplyCount, p.RepostCount, p.LikeCount)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
