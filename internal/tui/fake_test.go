package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/hangar/internal/coordinator"
	"github.com/mmcdole/hangar/internal/credential"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/service"
	"github.com/mmcdole/hangar/internal/settings"
	"github.com/mmcdole/hangar/internal/store"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const testPassword = "app-pass-1"

// stubRemote serves a small fixed world: posts by bob, two notifications.
type stubRemote struct {
	mu      sync.Mutex
	posts   map[string]domain.Post
	records int
}

var _ domain.Remote = (*stubRemote)(nil)

func newStubRemote(n int) *stubRemote {
	r := &stubRemote{posts: make(map[string]domain.Post)}
	for i := 1; i <= n; i++ {
		r.add(i)
	}
	return r
}

func stubPost(i int) domain.Post {
	return domain.Post{
		URI:       fmt.Sprintf("at://did:plc:bob/app.bsky.feed.post/p%d", i),
		CID:       fmt.Sprintf("cid%d", i),
		Author:    domain.Actor{DID: "did:plc:bob", Handle: "bob.test", DisplayName: "Bob"},
		Text:      fmt.Sprintf("post number %d", i),
		CreatedAt: epoch.Add(-time.Duration(i) * time.Minute),
		IndexedAt: epoch.Add(-time.Duration(i) * time.Minute),
	}
}

func (r *stubRemote) add(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := stubPost(i)
	r.posts[p.URI] = p
}

func (r *stubRemote) sorted() []domain.Post {
	out := make([]domain.Post, 0, len(r.posts))
	for _, p := range r.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IndexedAt.After(out[j].IndexedAt) })
	return out
}

func (r *stubRemote) Authenticate(_ context.Context, identifier, password string) (*domain.Session, error) {
	if password != testPassword {
		return nil, domain.ErrInvalidCredentials
	}
	name := strings.SplitN(identifier, ".", 2)[0]
	return &domain.Session{DID: "did:plc:" + name, Handle: identifier, AccessJWT: "a", RefreshJWT: "r", Service: "https://pds.test"}, nil
}

func (r *stubRemote) Refresh(_ context.Context, s *domain.Session) (*domain.Session, error) {
	next := *s
	return &next, nil
}

func (r *stubRemote) DeleteSession(context.Context, *domain.Session) error { return nil }

func (r *stubRemote) FetchTimeline(_ context.Context, _ *domain.Session, cursor string, _ int) (domain.Page[domain.Post], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cursor != "" {
		return domain.Page[domain.Post]{RequestCursor: cursor}, nil
	}
	return domain.Page[domain.Post]{Items: r.sorted()}, nil
}

func (r *stubRemote) FetchAuthorFeed(ctx context.Context, s *domain.Session, actor, cursor string, limit int) (domain.Page[domain.Post], error) {
	return r.FetchTimeline(ctx, s, cursor, limit)
}

func (r *stubRemote) FetchPosts(_ context.Context, _ *domain.Session, uris []string) ([]domain.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Post
	for _, u := range uris {
		if p, ok := r.posts[u]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *stubRemote) FetchProfile(_ context.Context, _ *domain.Session, actor string) (domain.Profile, error) {
	return domain.Profile{DID: "did:plc:bob", Handle: "bob.test", DisplayName: "Bob", PostsCount: len(r.posts)}, nil
}

func (r *stubRemote) FetchNotifications(_ context.Context, _ *domain.Session, cursor string, _ int) (domain.Page[domain.Notification], error) {
	if cursor != "" {
		return domain.Page[domain.Notification]{RequestCursor: cursor}, nil
	}
	return domain.Page[domain.Notification]{Items: []domain.Notification{
		{URI: "at://did:plc:bob/app.bsky.feed.post/m1", Author: domain.Actor{DID: "did:plc:bob", Handle: "bob.test"},
			Reason: domain.ReasonMention, Text: "hey @alice.test", IndexedAt: epoch},
		{URI: "at://did:plc:carol/app.bsky.feed.like/l1", Author: domain.Actor{DID: "did:plc:carol", Handle: "carol.test"},
			Reason: domain.ReasonLike, IsRead: true, IndexedAt: epoch.Add(-time.Hour)},
	}}, nil
}

func (r *stubRemote) UpdateSeen(context.Context, *domain.Session) error { return nil }

func (r *stubRemote) ResolveHandle(_ context.Context, _ *domain.Session, handle string) (string, error) {
	return "did:plc:" + strings.SplitN(handle, ".", 2)[0], nil
}

func (r *stubRemote) Mutate(_ context.Context, s *domain.Session, a domain.Action) (domain.Confirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records++
	conf := domain.Confirmation{Kind: a.Kind, Subject: a.Subject, At: epoch}
	switch a.Kind {
	case domain.ActionLike, domain.ActionRepost:
		conf.RecordURI = fmt.Sprintf("at://%s/app.bsky.feed.like/%d", s.DID, r.records)
	case domain.ActionCreatePost, domain.ActionCreateReply, domain.ActionCreateQuote:
		conf.RecordURI = fmt.Sprintf("at://%s/app.bsky.feed.post/new%d", s.DID, r.records)
		conf.RecordCID = fmt.Sprintf("newcid%d", r.records)
	case domain.ActionDeletePost:
		delete(r.posts, a.Subject.URI)
	}
	return conf, nil
}

// driver runs a Model against a real core, delivering results by hand.
type driver struct {
	t    *testing.T
	m    Model
	core *service.Core
}

func newDriver(t *testing.T, remote *stubRemote) *driver {
	t.Helper()
	cache, err := store.Open(store.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	core := service.New(service.Deps{
		Remote:      remote,
		Cache:       cache,
		Sessions:    service.NewSessions(credential.NewMemory(nil), nil),
		Coordinator: coordinator.New(coordinator.Options{RequestTimeout: 5 * time.Second}),
		PageSize:    25,
	})
	t.Cleanup(func() { _ = core.Close() })

	prefs := settings.Default()
	prefs.ReduceMotion = true
	d := &driver{t: t, m: NewModel(core, nil, prefs, nil), core: core}
	d.send(tea.WindowSizeMsg{Width: 120, Height: 40})
	return d
}

func (d *driver) send(msg tea.Msg) tea.Cmd {
	d.t.Helper()
	next, cmd := d.m.Update(msg)
	d.m = next.(Model)
	return cmd
}

// deliver feeds the next n results into the model.
func (d *driver) deliver(n int) {
	d.t.Helper()
	for i := 0; i < n; i++ {
		select {
		case env := <-d.core.Results():
			d.send(ResultMsg{Env: env})
		case <-time.After(5 * time.Second):
			d.t.Fatalf("timed out waiting for result %d of %d", i+1, n)
		}
	}
}

func (d *driver) press(keys ...string) {
	d.t.Helper()
	for _, k := range keys {
		switch k {
		case "enter":
			d.send(tea.KeyMsg{Type: tea.KeyEnter})
		case "tab":
			d.send(tea.KeyMsg{Type: tea.KeyTab})
		case "esc":
			d.send(tea.KeyMsg{Type: tea.KeyEsc})
		case "ctrl+s":
			d.send(tea.KeyMsg{Type: tea.KeyCtrlS})
		default:
			d.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
		}
	}
}

func (d *driver) typeText(s string) {
	d.t.Helper()
	for _, r := range s {
		d.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

// login resumes (finding nothing), signs in as alice and loads the home
// timeline and notifications.
func (d *driver) login() {
	d.t.Helper()
	d.send(startMsg{})
	d.deliver(1)
	require.Equal(d.t, StateLogin, d.m.State)

	d.typeText("alice.test")
	d.press("tab")
	d.typeText(testPassword)
	d.press("enter")
	d.deliver(1)
	require.Equal(d.t, StateBrowsing, d.m.State)
	d.deliver(4)
}
