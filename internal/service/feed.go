package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/hangar/internal/coordinator"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/timeline"
)

// FetchMode says how a fetched page is folded into its view.
type FetchMode int

const (
	FetchRefresh FetchMode = iota // explicit refresh, may replace the feed
	FetchPoll                     // background head check, raises the banner
	FetchMore                     // older page
	FetchCached                   // feed restored from the cache
)

func (m FetchMode) String() string {
	switch m {
	case FetchPoll:
		return "poll"
	case FetchMore:
		return "more"
	case FetchCached:
		return "cached"
	default:
		return "refresh"
	}
}

// FeedPage is the payload of a feed fetch.
type FeedPage struct {
	Account string
	Stream  string
	Mode    FetchMode
	Page    domain.Page[domain.Post]
	Cached  domain.Feed     // FetchCached only
	Profile *domain.Profile // profile streams, on refresh
}

// Snapshot is the displayed state of one stream.
type Snapshot struct {
	Stream       string
	Posts        []domain.Post // from the view anchor down, newest first
	Unseen       int           // new posts held behind the banner
	HasMore      bool
	NeedsRefresh bool
	Generation   uint64
	Profile      *domain.Profile
}

func profileActor(stream string) (string, bool) {
	return strings.CutPrefix(stream, domain.ProfileStream(""))
}

// Refresh starts a new generation for stream and fetches its head. Results
// of earlier requests on the stream become stale.
func (c *Core) Refresh(stream string) (coordinator.Handle, error) {
	s, err := c.active()
	if err != nil {
		return coordinator.Handle{}, err
	}
	gen := c.coord.Generations().Next(stream)
	if stream == domain.StreamNotifications {
		return c.coord.Submit(stream, coordinator.KindFetch, c.notificationsTask(s, "", FetchRefresh))
	}
	return c.coord.Submit(stream, coordinator.KindFetch, c.fetchTask(s, stream, "", FetchRefresh, gen))
}

// Poll fetches the head of stream without starting a new generation. It
// may be called from any goroutine.
func (c *Core) Poll(stream string) (coordinator.Handle, error) {
	s, err := c.active()
	if err != nil {
		return coordinator.Handle{}, err
	}
	if stream == domain.StreamNotifications {
		return c.coord.Submit(stream, coordinator.KindFetch, c.notificationsTask(s, "", FetchPoll))
	}
	gen := c.coord.Generations().Current(stream)
	return c.coord.Submit(stream, coordinator.KindFetch, c.fetchTask(s, stream, "", FetchPoll, gen))
}

// LoadMore fetches the page older than cursor. An empty cursor continues
// from the oldest page the stream has loaded.
func (c *Core) LoadMore(stream, cursor string) (coordinator.Handle, error) {
	s, err := c.active()
	if err != nil {
		return coordinator.Handle{}, err
	}
	if stream == domain.StreamNotifications {
		if cursor == "" {
			if !c.notes.hasMore {
				return coordinator.Handle{}, ErrNoMore
			}
			cursor = c.notes.cursor
		}
		return c.coord.Submit(stream, coordinator.KindFetch, c.notificationsTask(s, cursor, FetchMore))
	}
	if cursor == "" {
		feed := c.view(stream).Feed()
		if !feed.HasMore {
			return coordinator.Handle{}, ErrNoMore
		}
		cursor = feed.Cursor
	}
	gen := c.coord.Generations().Current(stream)
	return c.coord.Submit(stream, coordinator.KindFetch, c.fetchTask(s, stream, cursor, FetchMore, gen))
}

// LoadCached restores stream from the cache so something can be shown
// before the network answers.
func (c *Core) LoadCached(stream string) (coordinator.Handle, error) {
	s, err := c.active()
	if err != nil {
		return coordinator.Handle{}, err
	}
	account := s.AccountID()
	if stream == domain.StreamNotifications {
		return c.coord.Submit(stream, coordinator.KindFetch, func(ctx context.Context) (any, error) {
			items, err := c.cache.ListNotifications(account)
			warnCache(ctx, err)
			return NotificationsPage{Account: account, Mode: FetchCached, Items: items}, nil
		})
	}
	return c.coord.Submit(stream, coordinator.KindFetch, func(ctx context.Context) (any, error) {
		feed, _, err := c.cache.GetFeed(account, stream)
		warnCache(ctx, err)
		return FeedPage{Account: account, Stream: stream, Mode: FetchCached, Cached: feed}, nil
	})
}

func (c *Core) fetchTask(s *domain.Session, stream, cursor string, mode FetchMode, gen uint64) coordinator.Task {
	return func(ctx context.Context) (any, error) {
		s, err := c.ensureFresh(ctx, s)
		if err != nil {
			return nil, err
		}
		account := s.AccountID()
		out := FeedPage{Account: account, Stream: stream, Mode: mode}

		if actor, ok := profileActor(stream); ok && mode == FetchRefresh {
			prof, err := c.remote.FetchProfile(ctx, s, actor)
			if err != nil {
				return nil, err
			}
			out.Profile = &prof
			warnCache(ctx, c.cache.SaveProfile(account, prof))
		}

		page, err := c.fetchPage(ctx, s, stream, cursor)
		if err != nil {
			return nil, err
		}
		for _, derr := range page.DecodeErrors {
			coordinator.Warn(ctx, derr)
		}
		out.Page = page
		c.persistFeed(ctx, account, stream, page, mode, gen)
		return out, nil
	}
}

// fetchPage requests one page of stream and stamps it with the time the
// request was issued.
func (c *Core) fetchPage(ctx context.Context, s *domain.Session, stream, cursor string) (domain.Page[domain.Post], error) {
	requestedAt := c.now()
	var page domain.Page[domain.Post]
	var err error
	switch actor, ok := profileActor(stream); {
	case stream == domain.StreamHome:
		page, err = c.remote.FetchTimeline(ctx, s, cursor, c.pageSize)
	case ok:
		page, err = c.remote.FetchAuthorFeed(ctx, s, actor, cursor, c.pageSize)
	default:
		return domain.Page[domain.Post]{}, fmt.Errorf("unknown stream %q", stream)
	}
	page.RequestedAt = requestedAt
	return page, err
}

// persistFeed merges page into the cached copy of the feed. Read, merge and
// write share one transaction, and the cache refuses the write if a newer
// generation already stored the feed.
func (c *Core) persistFeed(ctx context.Context, account, stream string, page domain.Page[domain.Post], mode FetchMode, gen uint64) {
	gap := false
	written, err := c.cache.MergeFeed(account, stream, gen, func(cached domain.Feed) (domain.Feed, bool) {
		res := timeline.Merge(cached, page)
		if res.NeedsRefresh {
			if mode != FetchRefresh {
				gap = true
				return cached, false
			}
			res = timeline.Merge(domain.Feed{}, page)
		}
		feed := timeline.Apply(domain.Feed{Key: stream}, res)
		feed.FetchedAt = page.RequestedAt
		return feed, true
	})
	if err != nil {
		warnCache(ctx, err)
		return
	}
	if gap {
		warnCache(ctx, c.cache.SaveFetchedPosts(account, page.Items, page.RequestedAt))
		return
	}
	if !written {
		c.logger.Debug("cached feed is newer, keeping it", "stream", stream, "generation", gen)
	}
}

func (c *Core) applyFeed(p FeedPage, gen uint64, u *Update) {
	if p.Account != c.account {
		u.Stale = true
		return
	}
	v := c.view(p.Stream)
	var res timeline.Result
	switch p.Mode {
	case FetchCached:
		if len(v.Feed().Posts) == 0 && len(p.Cached.Posts) > 0 {
			p.Cached.Key = p.Stream
			v = timeline.NewView(p.Cached)
			c.views[p.Stream] = v
			c.rememberAuthors(p.Cached.Posts)
		}
	case FetchRefresh:
		res = v.ApplyRefresh(p.Page, gen)
	case FetchPoll:
		res = v.ApplyPoll(p.Page)
	case FetchMore:
		res = v.ApplyMore(p.Page)
	}
	if p.Profile != nil {
		c.profiles[p.Stream] = *p.Profile
		c.rememberActor(p.Profile.Actor())
	}
	c.rememberAuthors(p.Page.Items)

	u.NewCount = v.Unseen()
	u.NeedsRefresh = v.NeedsRefresh()
	if res.NeedsRefresh {
		c.logger.Info("feed gap detected", "stream", p.Stream, "mode", p.Mode.String())
	}
	if p.Stream == c.focus {
		c.pinFocused()
	}
}

// Timeline returns the home timeline snapshot.
func (c *Core) Timeline() Snapshot {
	return c.Snapshot(domain.StreamHome)
}

// Profile returns the snapshot of an actor's profile stream. OpenProfile
// loads it.
func (c *Core) Profile(actor string) Snapshot {
	return c.Snapshot(domain.ProfileStream(actor))
}

// OpenProfile fetches an actor's profile and posts.
func (c *Core) OpenProfile(actor string) (coordinator.Handle, error) {
	return c.Refresh(domain.ProfileStream(actor))
}

// Snapshot returns a copy of the displayed state of stream.
func (c *Core) Snapshot(stream string) Snapshot {
	c.syncAccount()
	snap := Snapshot{Stream: stream}
	v, ok := c.views[stream]
	if !ok {
		return snap
	}
	feed := v.Feed()
	snap.Posts = append([]domain.Post(nil), v.Visible()...)
	snap.Unseen = v.Unseen()
	snap.HasMore = feed.HasMore
	snap.NeedsRefresh = v.NeedsRefresh()
	snap.Generation = feed.Generation
	if prof, ok := c.profiles[stream]; ok {
		snap.Profile = &prof
	}
	return snap
}

// Acknowledge reveals the posts held behind the new-posts banner.
func (c *Core) Acknowledge(stream string) {
	if v, ok := c.views[stream]; ok {
		v.Acknowledge()
		if stream == c.focus {
			c.pinFocused()
		}
	}
}

// CollectTimeline fetches up to limit home timeline posts synchronously and
// caches them. It serves one-shot commands that have no consumer loop.
func (c *Core) CollectTimeline(ctx context.Context, limit int) ([]domain.Post, error) {
	s, err := c.active()
	if err != nil {
		return nil, err
	}
	if s, err = c.ensureFresh(ctx, s); err != nil {
		return nil, err
	}
	requestedAt := c.now()
	posts, decodeErrs, err := collectPages(ctx, func(ctx context.Context, cursor string) (domain.Page[domain.Post], error) {
		return c.remote.FetchTimeline(ctx, s, cursor, min(limit, c.pageSize))
	}, limit)
	if err != nil {
		return nil, err
	}
	if len(decodeErrs) > 0 {
		c.logger.Warn("skipped undecodable posts", "count", len(decodeErrs))
	}
	timeline.Sort(posts)
	if err := c.cache.SaveFetchedPosts(s.AccountID(), posts, requestedAt); err != nil {
		c.logger.Warn("timeline not cached", "error", err)
	}
	return posts, nil
}
