package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/hangar/internal/coordinator"
	"github.com/mmcdole/hangar/internal/credential"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/store"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeRemote is an in-memory server. Timeline pages are served from order
// unless timeline is set.
type fakeRemote struct {
	mu            sync.Mutex
	posts         map[string]domain.Post
	order         []string
	notifications []domain.Notification
	profiles      map[string]domain.Profile
	records       int

	timeline   func(ctx context.Context, cursor string) (domain.Page[domain.Post], error)
	mutateGate chan struct{}

	mutations      atomic.Int32
	seen           atomic.Int32
	deleteSessions atomic.Int32
}

var _ domain.Remote = (*fakeRemote)(nil)

func newFakeRemote() *fakeRemote {
	return &fakeRemote{posts: make(map[string]domain.Post), profiles: make(map[string]domain.Profile)}
}

func uriOf(i int) string { return fmt.Sprintf("at://did:plc:bob/app.bsky.feed.post/p%d", i) }

func makePost(i int) domain.Post {
	return domain.Post{
		URI:       uriOf(i),
		CID:       fmt.Sprintf("cid%d", i),
		Author:    domain.Actor{DID: "did:plc:bob", Handle: "bob.example"},
		Text:      fmt.Sprintf("p%d", i),
		LikeCount: 3,
		IndexedAt: epoch.Add(-time.Duration(i) * time.Minute),
	}
}

// addPosts publishes p<from>..p<to>, newest first.
func (f *fakeRemote) addPosts(from, to int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := from; i <= to; i++ {
		p := makePost(i)
		f.posts[p.URI] = p
	}
	f.order = f.order[:0]
	for uri := range f.posts {
		f.order = append(f.order, uri)
	}
	// newest first: lower index is newer
	sortURIs(f.order)
}

func sortURIs(uris []string) {
	idx := func(u string) int {
		n, _ := strconv.Atoi(u[strings.LastIndex(u, "/p")+2:])
		return n
	}
	for i := 1; i < len(uris); i++ {
		for j := i; j > 0 && idx(uris[j]) < idx(uris[j-1]); j-- {
			uris[j], uris[j-1] = uris[j-1], uris[j]
		}
	}
}

func (f *fakeRemote) post(uri string) domain.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts[uri]
}

func (f *fakeRemote) Authenticate(_ context.Context, identifier, password string) (*domain.Session, error) {
	if password != "app-pass-1" {
		return nil, fmt.Errorf("createSession: %w", domain.ErrInvalidCredentials)
	}
	name := strings.SplitN(identifier, ".", 2)[0]
	return &domain.Session{
		DID:        "did:plc:" + name,
		Handle:     identifier,
		AccessJWT:  "access-" + name,
		RefreshJWT: "refresh-" + name,
		Service:    "https://pds.example",
	}, nil
}

func (f *fakeRemote) Refresh(_ context.Context, s *domain.Session) (*domain.Session, error) {
	next := *s
	next.AccessJWT += "+"
	next.AccessExpiresAt = time.Time{}
	return &next, nil
}

func (f *fakeRemote) DeleteSession(context.Context, *domain.Session) error {
	f.deleteSessions.Add(1)
	return nil
}

func (f *fakeRemote) FetchTimeline(ctx context.Context, _ *domain.Session, cursor string, limit int) (domain.Page[domain.Post], error) {
	if f.timeline != nil {
		page, err := f.timeline(ctx, cursor)
		page.RequestCursor = cursor
		return page, err
	}
	return f.page(cursor, limit), nil
}

// page serves the published posts from the offset encoded in cursor.
func (f *fakeRemote) page(cursor string, limit int) domain.Page[domain.Post] {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(strings.TrimPrefix(cursor, "c"))
	}
	page := domain.Page[domain.Post]{RequestCursor: cursor}
	end := min(start+limit, len(f.order))
	for _, uri := range f.order[start:end] {
		page.Items = append(page.Items, f.posts[uri])
	}
	if end < len(f.order) {
		page.Cursor = "c" + strconv.Itoa(end)
	}
	return page
}

func (f *fakeRemote) FetchAuthorFeed(ctx context.Context, s *domain.Session, actor, cursor string, limit int) (domain.Page[domain.Post], error) {
	page, err := f.FetchTimeline(ctx, s, cursor, limit)
	var mine []domain.Post
	for _, p := range page.Items {
		if p.Author.Handle == actor || p.Author.DID == actor {
			mine = append(mine, p)
		}
	}
	page.Items = mine
	return page, err
}

func (f *fakeRemote) FetchPosts(_ context.Context, _ *domain.Session, uris []string) ([]domain.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Post
	for _, uri := range uris {
		if p, ok := f.posts[uri]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRemote) FetchProfile(_ context.Context, _ *domain.Session, actor string) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[actor]; ok {
		return p, nil
	}
	return domain.Profile{}, domain.ErrNotFound
}

func (f *fakeRemote) FetchNotifications(_ context.Context, _ *domain.Session, cursor string, _ int) (domain.Page[domain.Notification], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Page[domain.Notification]{Items: append([]domain.Notification(nil), f.notifications...), RequestCursor: cursor}, nil
}

func (f *fakeRemote) UpdateSeen(context.Context, *domain.Session) error {
	f.seen.Add(1)
	return nil
}

func (f *fakeRemote) ResolveHandle(_ context.Context, _ *domain.Session, handle string) (string, error) {
	return "did:plc:" + strings.SplitN(handle, ".", 2)[0], nil
}

func (f *fakeRemote) Mutate(ctx context.Context, s *domain.Session, a domain.Action) (domain.Confirmation, error) {
	if f.mutateGate != nil {
		select {
		case <-f.mutateGate:
		case <-ctx.Done():
			return domain.Confirmation{}, ctx.Err()
		}
	}
	f.mutations.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records++
	conf := domain.Confirmation{Kind: a.Kind, Subject: a.Subject, At: epoch}

	p := f.posts[a.Subject.URI]
	switch a.Kind {
	case domain.ActionLike:
		conf.RecordURI = fmt.Sprintf("at://%s/app.bsky.feed.like/%d", s.DID, f.records)
		p.Viewer.Like = conf.RecordURI
		p.LikeCount++
	case domain.ActionUnlike:
		p.Viewer.Like = ""
		p.LikeCount--
	case domain.ActionRepost:
		conf.RecordURI = fmt.Sprintf("at://%s/app.bsky.feed.repost/%d", s.DID, f.records)
		p.Viewer.Repost = conf.RecordURI
		p.RepostCount++
	case domain.ActionUnrepost:
		p.Viewer.Repost = ""
		p.RepostCount--
	case domain.ActionDeletePost:
		delete(f.posts, a.Subject.URI)
		return conf, nil
	default:
		conf.RecordURI = fmt.Sprintf("at://%s/app.bsky.feed.post/new%d", s.DID, f.records)
		conf.RecordCID = fmt.Sprintf("newcid%d", f.records)
		created := domain.Post{
			URI:       conf.RecordURI,
			CID:       conf.RecordCID,
			Author:    domain.Actor{DID: s.DID, Handle: s.Handle},
			Text:      a.Draft.Text,
			Reply:     a.Draft.ReplyTo,
			IndexedAt: epoch.Add(time.Hour),
		}
		f.posts[created.URI] = created
		return conf, nil
	}
	f.posts[a.Subject.URI] = p
	return conf, nil
}

type harness struct {
	core   *Core
	remote *fakeRemote
	cache  *store.Cache
	creds  *credential.Store
}

type harnessOption func(*Deps)

func newHarness(t *testing.T, remote *fakeRemote, creds *credential.Store, opts ...harnessOption) *harness {
	t.Helper()
	cache, err := store.Open(store.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	if creds == nil {
		creds = credential.NewMemory(nil)
	}
	deps := Deps{
		Remote:      remote,
		Cache:       cache,
		Sessions:    NewSessions(creds, nil),
		Coordinator: coordinator.New(coordinator.Options{RequestTimeout: 5 * time.Second}),
		PageSize:    25,
	}
	for _, o := range opts {
		o(&deps)
	}
	core := New(deps)
	t.Cleanup(func() { _ = core.Close() })
	return &harness{core: core, remote: remote, cache: cache, creds: creds}
}

func (h *harness) login(t *testing.T, handle string) *domain.Session {
	t.Helper()
	change, err := h.core.Login(context.Background(), handle, "app-pass-1")
	require.NoError(t, err)
	return change.Session
}

// next applies the next delivered envelope.
func (h *harness) next(t *testing.T) Update {
	t.Helper()
	select {
	case env := <-h.core.Results():
		return h.core.Apply(env)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a result")
		return Update{}
	}
}

// submitted asserts a Submit-style call succeeded:
// submitted(t)(h.core.Like(ref)).
func submitted(t *testing.T) func(coordinator.Handle, error) {
	return func(_ coordinator.Handle, err error) {
		t.Helper()
		require.NoError(t, err)
	}
}
