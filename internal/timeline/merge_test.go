package timeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// post returns p<i>; lower i is newer.
func post(i int) domain.Post {
	return domain.Post{
		URI:       fmt.Sprintf("at://did:plc:author/app.bsky.feed.post/p%d", i),
		CID:       fmt.Sprintf("cid%d", i),
		Text:      fmt.Sprintf("p%d", i),
		IndexedAt: epoch.Add(-time.Duration(i) * time.Minute),
	}
}

func posts(from, to int) []domain.Post {
	var out []domain.Post
	for i := from; i <= to; i++ {
		out = append(out, post(i))
	}
	return out
}

func texts(ps []domain.Post) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Text
	}
	return out
}

func TestPolledHeadReportsNewCount(t *testing.T) {
	first := Merge(domain.Feed{}, domain.Page[domain.Post]{Items: posts(1, 25), Cursor: "c25"})
	assert.Equal(t, 0, first.NewCount)
	assert.Equal(t, "c25", first.Cursor)
	feed := Apply(domain.Feed{Key: domain.StreamHome}, first)

	res := Merge(feed, domain.Page[domain.Post]{Items: posts(0, 24), Cursor: "c24"})
	require.False(t, res.NeedsRefresh)
	assert.Equal(t, 1, res.NewCount)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, "p0", res.Posts[0].Text)
	assert.Len(t, res.Posts, 26)
	assert.Equal(t, "c25", res.Cursor, "head merges keep the oldest cursor")
}

func TestContinuationExtendsFeed(t *testing.T) {
	feed := Apply(domain.Feed{}, Merge(domain.Feed{}, domain.Page[domain.Post]{Items: posts(0, 9), Cursor: "c9"}))

	res := Merge(feed, domain.Page[domain.Post]{Items: posts(8, 19), Cursor: "c19", RequestCursor: "c9"})
	require.False(t, res.NeedsRefresh)
	assert.Equal(t, 0, res.NewCount, "filling below the head is not new")
	assert.Equal(t, 10, res.Inserted)
	assert.Len(t, res.Posts, 20)
	assert.Equal(t, "c19", res.Cursor)
	assert.True(t, res.HasMore)

	end := Merge(Apply(feed, res), domain.Page[domain.Post]{Items: posts(20, 21), RequestCursor: "c19"})
	assert.False(t, end.HasMore)
}

func TestUnchainedContinuationNeedsRefresh(t *testing.T) {
	feed := Apply(domain.Feed{}, Merge(domain.Feed{}, domain.Page[domain.Post]{Items: posts(0, 9), Cursor: "c9"}))

	res := Merge(feed, domain.Page[domain.Post]{Items: posts(30, 39), Cursor: "c39", RequestCursor: "c29"})
	assert.True(t, res.NeedsRefresh)
	assert.Equal(t, texts(feed.Posts), texts(res.Posts))
	assert.Equal(t, "c9", res.Cursor)
}

func TestDisjointNewerHeadPageNeedsRefresh(t *testing.T) {
	feed := Apply(domain.Feed{}, Merge(domain.Feed{}, domain.Page[domain.Post]{Items: posts(50, 59), Cursor: "c59"}))

	res := Merge(feed, domain.Page[domain.Post]{Items: posts(0, 9), Cursor: "c9"})
	assert.True(t, res.NeedsRefresh)
	assert.Len(t, res.Posts, 10)

	// a complete head page (no continuation) cannot hide a hole
	res = Merge(feed, domain.Page[domain.Post]{Items: posts(0, 9)})
	assert.False(t, res.NeedsRefresh)
	assert.Equal(t, 10, res.NewCount)
}

func TestDuplicatesRefreshCountsWithoutReordering(t *testing.T) {
	feed := Apply(domain.Feed{}, Merge(domain.Feed{}, domain.Page[domain.Post]{Items: posts(0, 2), Cursor: "c2"}))
	updated := post(1)
	updated.LikeCount = 99
	updated.Viewer.Like = "at://did:plc:me/app.bsky.feed.like/1"

	res := Merge(feed, domain.Page[domain.Post]{Items: []domain.Post{updated, updated}})
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, []string{"p0", "p1", "p2"}, texts(res.Posts))
	assert.Equal(t, 99, res.Posts[1].LikeCount)
	assert.Equal(t, 0, feed.Posts[1].LikeCount, "input feed is not mutated")
}

func TestCopyRequestedBeforeLocalMutationIsIgnored(t *testing.T) {
	liked := post(1)
	liked.LikeCount = 4
	liked.Viewer.Like = "at://did:plc:me/app.bsky.feed.like/1"
	liked.MutatedAt = epoch
	feed := domain.Feed{Posts: []domain.Post{post(0), liked, post(2)}, Cursor: "c2", HasMore: true}

	before := domain.Page[domain.Post]{Items: posts(0, 2), Cursor: "c2", RequestedAt: epoch.Add(-time.Second)}
	res := Merge(feed, before)
	require.False(t, res.NeedsRefresh)
	assert.True(t, res.Posts[1].Liked())
	assert.Equal(t, 4, res.Posts[1].LikeCount)

	after := before
	after.RequestedAt = epoch.Add(time.Second)
	res = Merge(feed, after)
	assert.False(t, res.Posts[1].Liked())
	assert.Equal(t, 0, res.Posts[1].LikeCount)
}

func TestTieBreakIsTotal(t *testing.T) {
	a, b := post(0), post(0)
	b.URI += "b"
	assert.True(t, Before(a, b))
	assert.False(t, Before(b, a))
	assert.False(t, Before(a, a))
}

// merge(merge(∅, P1), P2) equals merging the deduplicated union at once,
// and is strictly time-descending without duplicates.
func TestMergeOfChainedPagesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 60).Draw(t, "n")
		universe := posts(0, n-1)

		split := rapid.IntRange(1, n-1).Draw(t, "split")
		overlap := rapid.IntRange(0, split).Draw(t, "overlap")
		end := rapid.IntRange(split, n).Draw(t, "end")

		p1Items := rapid.Permutation(universe[:split]).Draw(t, "p1")
		p2Items := rapid.Permutation(universe[split-overlap : end]).Draw(t, "p2")
		p1 := domain.Page[domain.Post]{Items: p1Items, Cursor: "c1"}
		p2 := domain.Page[domain.Post]{Items: p2Items, Cursor: "c2", RequestCursor: "c1"}

		step1 := Merge(domain.Feed{}, p1)
		step2 := Merge(Apply(domain.Feed{}, step1), p2)
		if step2.NeedsRefresh {
			t.Fatalf("chained pages reported a gap")
		}

		union := append(append([]domain.Post{}, p1Items...), p2Items...)
		once := Merge(domain.Feed{}, domain.Page[domain.Post]{Items: union, Cursor: "c2"})

		require.Equal(t, texts(once.Posts), texts(step2.Posts))
		require.Len(t, step2.Posts, end)
		for i := 1; i < len(step2.Posts); i++ {
			if !step2.Posts[i-1].IndexedAt.After(step2.Posts[i].IndexedAt) {
				t.Fatalf("not strictly descending at %d", i)
			}
		}
	})
}
