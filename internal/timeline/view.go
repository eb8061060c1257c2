package timeline

import (
	"github.com/mmcdole/hangar/internal/domain"
)

// View is the displayed state of one feed. Polled posts land in the
// underlying feed immediately but stay hidden above the anchor until the
// consumer acknowledges them.
type View struct {
	feed   domain.Feed
	anchor domain.PostRef // topmost displayed post
	unseen int
	stale  bool // a merge detected a gap; the owner should refresh
}

// NewView starts a view over feed with everything visible.
func NewView(feed domain.Feed) *View {
	v := &View{feed: feed}
	v.resetAnchor()
	return v
}

func (v *View) resetAnchor() {
	v.unseen = 0
	if head, ok := v.feed.Head(); ok {
		v.anchor = head.Ref()
	} else {
		v.anchor = domain.PostRef{}
	}
}

// Feed returns the full underlying feed, including unacknowledged posts.
func (v *View) Feed() domain.Feed { return v.feed }

// Unseen is the number of new posts waiting above the anchor.
func (v *View) Unseen() int { return v.unseen }

// NeedsRefresh reports whether a gap was detected since the last refresh.
func (v *View) NeedsRefresh() bool { return v.stale }

// Visible returns the posts from the anchor down.
func (v *View) Visible() []domain.Post {
	if v.anchor.IsZero() {
		return v.feed.Posts
	}
	for i, p := range v.feed.Posts {
		if p.Ref() == v.anchor {
			return v.feed.Posts[i:]
		}
	}
	return v.feed.Posts
}

// ApplyRefresh installs the result of an explicit refresh. A refresh that
// does not chain with the current feed replaces it outright.
func (v *View) ApplyRefresh(page domain.Page[domain.Post], generation uint64) Result {
	res := Merge(v.feed, page)
	if res.NeedsRefresh {
		res = Merge(domain.Feed{}, page)
	}
	v.feed = Apply(v.feed, res)
	v.feed.Generation = generation
	v.stale = false
	v.resetAnchor()
	return res
}

// ApplyPoll merges a background head page without moving the view.
func (v *View) ApplyPoll(page domain.Page[domain.Post]) Result {
	res := Merge(v.feed, page)
	if res.NeedsRefresh {
		v.stale = true
		return res
	}
	wasEmpty := len(v.feed.Posts) == 0
	v.feed = Apply(v.feed, res)
	if wasEmpty {
		v.resetAnchor()
		return res
	}
	v.unseen += res.NewCount
	return res
}

// ApplyMore appends an older page.
func (v *View) ApplyMore(page domain.Page[domain.Post]) Result {
	res := Merge(v.feed, page)
	if res.NeedsRefresh {
		v.stale = true
		return res
	}
	v.feed = Apply(v.feed, res)
	if v.anchor.IsZero() {
		v.resetAnchor()
	}
	return res
}

// Acknowledge reveals the pending posts.
func (v *View) Acknowledge() {
	v.resetAnchor()
}

// UpdatePost replaces the displayed copy of a post, if present.
func (v *View) UpdatePost(p domain.Post) bool {
	for i := range v.feed.Posts {
		if v.feed.Posts[i].URI == p.URI {
			sortFields := v.feed.Posts[i]
			p.RepostedBy, p.RepostedAt, p.ParentAuthor = sortFields.RepostedBy, sortFields.RepostedAt, sortFields.ParentAuthor
			v.feed.Posts[i] = p
			return true
		}
	}
	return false
}

// Remove drops a post from the feed, e.g. after it was deleted.
func (v *View) Remove(uri string) {
	posts := v.feed.Posts[:0:0]
	for _, p := range v.feed.Posts {
		if p.URI != uri {
			posts = append(posts, p)
		}
	}
	v.feed.Posts = posts
	if v.anchor.URI == uri {
		v.resetAnchor()
	}
}

// Window returns up to n visible posts starting at offset, the slice the
// consumer is showing; its keys are what should be pinned in the cache.
func (v *View) Window(offset, n int) []domain.Post {
	visible := v.Visible()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(visible) {
		return nil
	}
	end := min(offset+n, len(visible))
	return visible[offset:end]
}
