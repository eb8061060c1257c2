// Package timeline merges fetched pages into an ordered feed and tracks
// what the consumer has acknowledged.
package timeline

import (
	"sort"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
)

// Result is the outcome of merging a page into a feed.
type Result struct {
	Posts        []domain.Post
	Cursor       string // oldest continuation cursor after the merge
	HasMore      bool
	NewCount     int  // items inserted strictly above the previous head
	Inserted     int  // items not previously present
	NeedsRefresh bool // the page did not chain with the feed; Posts is unchanged
}

// Before reports whether a sorts ahead of b: newer sort time first, then
// URI and CID ascending.
func Before(a, b domain.Post) bool {
	ta, tb := a.SortTime(), b.SortTime()
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	if a.URI != b.URI {
		return a.URI < b.URI
	}
	return a.CID < b.CID
}

// Sort orders posts in feed order in place.
func Sort(posts []domain.Post) {
	sort.SliceStable(posts, func(i, j int) bool { return Before(posts[i], posts[j]) })
}

// Merge integrates page into existing.
//
// A continuation page (requested with a cursor) must have been requested
// with the cursor recorded on existing. A head page that shares no post
// with a non-empty feed, still has older pages behind it, and whose oldest
// item is newer than the current head leaves an unknown hole. Both cases
// return NeedsRefresh instead of guessing.
func Merge(existing domain.Feed, page domain.Page[domain.Post]) Result {
	unchanged := Result{Posts: existing.Posts, Cursor: existing.Cursor, HasMore: existing.HasMore}

	if !page.IsHead() && page.RequestCursor != existing.Cursor {
		unchanged.NeedsRefresh = true
		return unchanged
	}

	index := make(map[string]int, len(existing.Posts))
	merged := make([]domain.Post, 0, len(existing.Posts)+len(page.Items))
	for _, p := range existing.Posts {
		if _, dup := index[p.Ref().Key()]; dup {
			continue
		}
		index[p.Ref().Key()] = len(merged)
		merged = append(merged, p)
	}

	var fresh []domain.Post
	seen := make(map[string]bool, len(page.Items))
	overlap := false
	for _, p := range page.Items {
		key := p.Ref().Key()
		if i, ok := index[key]; ok {
			overlap = true
			refreshCounts(&merged[i], p, page.RequestedAt)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, p)
	}

	head, hasHead := existing.Head()
	if page.IsHead() && hasHead && !overlap && page.Cursor != "" && len(fresh) > 0 {
		oldest := fresh[0]
		for _, p := range fresh[1:] {
			if Before(oldest, p) {
				oldest = p
			}
		}
		if Before(oldest, head) {
			unchanged.NeedsRefresh = true
			return unchanged
		}
	}

	res := Result{Inserted: len(fresh)}
	if hasHead {
		for _, p := range fresh {
			if Before(p, head) {
				res.NewCount++
			}
		}
	}
	merged = append(merged, fresh...)
	Sort(merged)
	res.Posts = merged

	switch {
	case !page.IsHead():
		res.Cursor = page.Cursor
		res.HasMore = page.Cursor != ""
	case hasHead:
		res.Cursor = existing.Cursor
		res.HasMore = existing.HasMore
	default:
		res.Cursor = page.Cursor
		res.HasMore = page.Cursor != ""
	}
	return res
}

// refreshCounts copies the mutable parts of a newer copy of the same post.
// The sort fields stay so existing order is preserved. A copy requested
// before dst's last local mutation is older than dst and is ignored.
func refreshCounts(dst *domain.Post, src domain.Post, requestedAt time.Time) {
	if dst.MutatedAfter(requestedAt) {
		return
	}
	dst.ReplyCount = src.ReplyCount
	dst.RepostCount = src.RepostCount
	dst.LikeCount = src.LikeCount
	dst.QuoteCount = src.QuoteCount
	dst.Viewer = src.Viewer
}

// Apply returns existing updated with a successful merge result.
func Apply(existing domain.Feed, res Result) domain.Feed {
	existing.Posts = res.Posts
	existing.Cursor = res.Cursor
	existing.HasMore = res.HasMore
	return existing
}
