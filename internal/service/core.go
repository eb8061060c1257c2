// Package service is the core API the presentation layer talks to. Calls
// that need the network or the cache are submitted to the coordinator and
// their results come back on Results; the consumer passes each envelope to
// Apply on its own goroutine and reads snapshots afterwards.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmcdole/hangar/internal/coordinator"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/store"
	"github.com/mmcdole/hangar/internal/timeline"
)

const (
	DefaultPageSize    = 50
	DefaultRefreshSkew = time.Minute

	// DefaultPinWindow is how many posts from the top of the focused view
	// stay pinned in the cache until the consumer reports its window.
	DefaultPinWindow = 100
)

// Streams that are not feeds.
const (
	StreamSession   = "session"
	StreamMutations = "mutations"
	StreamImages    = "images"
)

// ErrNoMore is returned by LoadMore when the stream has no older pages.
var ErrNoMore = errors.New("no more pages")

// imageSource downloads image blobs (consumer-defined interface).
type imageSource interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Deps are the collaborators of a Core. Cache, Sessions, Coordinator and
// Remote are required.
type Deps struct {
	Remote      domain.Remote
	Images      imageSource
	Cache       *store.Cache
	Sessions    *Sessions
	Coordinator *coordinator.Coordinator
	Logger      *slog.Logger
	PageSize    int
	RefreshSkew time.Duration
}

// Core ties the protocol client, cache, session and coordinator together.
//
// Submitting methods and Poll may be called from any goroutine. Apply and
// the snapshot accessors touch view state and must all be called from the
// one goroutine that drains Results.
type Core struct {
	remote   domain.Remote
	images   imageSource
	cache    *store.Cache
	sessions *Sessions
	coord    *coordinator.Coordinator
	logger   *slog.Logger
	pageSize int
	skew     time.Duration
	now      func() time.Time
	locks    *keyedMutex

	// owned by the consumer goroutine
	account  string
	views    map[string]*timeline.View
	profiles map[string]domain.Profile
	notes    notificationState
	actors   map[string]domain.Actor
	focus    string
	window   [2]int
}

// New builds a Core over already constructed collaborators.
func New(d Deps) *Core {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := d.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	skew := d.RefreshSkew
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}
	c := &Core{
		remote:   d.Remote,
		images:   d.Images,
		cache:    d.Cache,
		sessions: d.Sessions,
		coord:    d.Coordinator,
		logger:   logger,
		pageSize: pageSize,
		skew:     skew,
		now:      time.Now,
		locks:    newKeyedMutex(),
		focus:    domain.StreamHome,
		window:   [2]int{0, DefaultPinWindow},
	}
	c.resetViews("")
	return c
}

// Results is the channel the consumer drains and feeds to Apply.
func (c *Core) Results() <-chan coordinator.Envelope { return c.coord.Results() }

// Session returns the active session, or nil when logged out.
func (c *Core) Session() *domain.Session { return c.sessions.Current() }

// Degraded reports whether the cache fell back to pass-through mode.
func (c *Core) Degraded() bool { return c.cache.Degraded() }

// Close stops the workers and closes the cache.
func (c *Core) Close() error {
	c.coord.Close()
	return c.cache.Close()
}

func (c *Core) resetViews(account string) {
	c.account = account
	c.views = make(map[string]*timeline.View)
	c.profiles = make(map[string]domain.Profile)
	c.notes = notificationState{}
	c.actors = make(map[string]domain.Actor)
}

func (c *Core) view(stream string) *timeline.View {
	v, ok := c.views[stream]
	if !ok {
		v = timeline.NewView(domain.Feed{Key: stream})
		c.views[stream] = v
	}
	return v
}

func (c *Core) active() (*domain.Session, error) {
	s := c.sessions.Current()
	if s == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return s, nil
}

// ensureFresh refreshes s ahead of time when its access token is about
// to expire. Connectivity problems are left for the request itself.
func (c *Core) ensureFresh(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	if !s.AccessExpired(c.now(), c.skew) {
		return s, nil
	}
	fresh, err := c.remote.Refresh(ctx, s)
	if err != nil {
		if errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrNotAuthenticated) {
			return nil, err
		}
		c.logger.Debug("proactive refresh failed", "did", s.DID, "error", err)
		return s, nil
	}
	c.sessions.Publish(fresh)
	return fresh, nil
}

func warnCache(ctx context.Context, err error) {
	if err != nil {
		coordinator.Warn(ctx, err)
	}
}

// Update describes what Apply changed.
type Update struct {
	Stream       string
	Kind         coordinator.Kind
	Stale        bool // the result was outdated and ignored
	Err          error
	Warnings     []error
	NewCount     int  // posts waiting behind the new-posts banner
	NeedsRefresh bool // a gap was detected; the stream should be refreshed
	Confirmation *domain.Confirmation
	Session      *SessionChange
	Image        *ImageResult
}

// Apply folds a completed envelope into the view state. Fetch results of
// an outdated generation or another account are ignored; mutation results
// always apply.
func (c *Core) Apply(env coordinator.Envelope) Update {
	u := Update{Stream: env.Stream, Kind: env.Kind, Warnings: env.Warnings}
	c.syncAccount()
	if !c.coord.Accept(env) {
		u.Stale = true
		return u
	}
	if env.Err != nil {
		u.Err = env.Err
		if !errors.Is(env.Err, context.Canceled) {
			c.logger.Warn("request failed", "stream", env.Stream, "category", domain.Categorize(env.Err), "error", env.Err)
		}
		return u
	}

	switch p := env.Payload.(type) {
	case FeedPage:
		c.applyFeed(p, env.Generation, &u)
	case NotificationsPage:
		c.applyNotifications(p, &u)
	case notificationsSeen:
		if p.Account == c.account {
			c.notes.markRead()
		}
	case MutationResult:
		c.applyMutation(p, &u)
	case SessionChange:
		u.Session = &p
		if p.Session.AccountID() == c.account {
			for _, a := range p.Actors {
				c.rememberActor(a)
			}
		}
	case ImageResult:
		if p.Account == c.account {
			u.Image = &p
		} else {
			u.Stale = true
		}
	case nil:
	default:
		c.logger.Warn("unknown result payload", "stream", env.Stream)
	}
	return u
}

// syncAccount drops view state that belongs to a previous account.
func (c *Core) syncAccount() {
	account := c.sessions.Current().AccountID()
	if account == c.account {
		return
	}
	c.resetViews(account)
}

// Focus reports which stream the consumer displays and which slice of its
// visible posts is on screen; those posts are pinned against eviction.
func (c *Core) Focus(stream string, offset, n int) {
	c.focus = stream
	c.window = [2]int{offset, n}
	c.pinFocused()
}

func (c *Core) pinFocused() {
	if c.account == "" {
		return
	}
	v, ok := c.views[c.focus]
	if !ok {
		return
	}
	posts := v.Window(c.window[0], c.window[1])
	uris := make([]string, len(posts))
	for i, p := range posts {
		uris[i] = p.URI
	}
	pins := c.cache.Pins()
	pins.Replace(c.account, store.KindPost, uris...)
	pins.Replace(c.account, store.KindFeed, c.focus)
}
