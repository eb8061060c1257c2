package atproto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeXRPC is a scriptable XRPC endpoint keyed by NSID.
type fakeXRPC struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
	srv      *httptest.Server
}

func newFakeXRPC(t *testing.T) *fakeXRPC {
	t.Helper()
	f := &fakeXRPC{handlers: map[string]http.HandlerFunc{}, hits: map[string]int{}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nsid := strings.TrimPrefix(r.URL.Path, "/xrpc/")
		f.mu.Lock()
		f.hits[nsid]++
		h := f.handlers[nsid]
		f.mu.Unlock()
		if h == nil {
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "MethodNotImplemented"})
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeXRPC) handle(nsid string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[nsid] = h
}

func (f *fakeXRPC) count(nsid string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[nsid]
}

func (f *fakeXRPC) client(opts Options) *Client {
	opts.BaseURL = f.srv.URL
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
		opts.MaxDelay = 5 * time.Millisecond
	}
	return NewClient(opts)
}

func (f *fakeXRPC) session() *domain.Session {
	return &domain.Session{
		DID:        "did:plc:acct-1",
		Handle:     "alice.example",
		AccessJWT:  "access-1",
		RefreshJWT: "refresh-1",
		Service:    f.srv.URL,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "did:plc:acct-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func feedItem(uri, cid, indexedAt string) map[string]any {
	return map[string]any{
		"post": map[string]any{
			"uri":       uri,
			"cid":       cid,
			"author":    map[string]any{"did": "did:plc:author", "handle": "author.example"},
			"record":    map[string]any{"$type": "app.bsky.feed.post", "text": "post " + uri, "createdAt": indexedAt},
			"likeCount": 3,
			"indexedAt": indexedAt,
		},
	}
}

func TestAuthenticateCreatesSession(t *testing.T) {
	f := newFakeXRPC(t)
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second).UTC()
	access := signedToken(t, exp)

	f.handle(nsidCreateSession, func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice.example", req.Identifier)
		assert.Equal(t, "app-pass-1", req.Password)
		writeJSON(w, http.StatusOK, map[string]any{
			"did":        "did:plc:acct-1",
			"handle":     "alice.example",
			"accessJwt":  access,
			"refreshJwt": "refresh-1",
			"didDoc": map[string]any{
				"service": []map[string]any{
					{"id": "#atproto_pds", "type": "AtprotoPersonalDataServer", "serviceEndpoint": "https://pds.example"},
				},
			},
		})
	})

	s, err := f.client(Options{}).Authenticate(context.Background(), "@alice.example", "app-pass-1")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:acct-1", s.AccountID())
	assert.Equal(t, "alice.example", s.Handle)
	assert.Equal(t, "https://pds.example", s.Service)
	assert.True(t, s.AccessExpiresAt.Equal(exp), "expiry %v != %v", s.AccessExpiresAt, exp)
}

func TestAuthenticateInvalidCredentials(t *testing.T) {
	f := newFakeXRPC(t)
	f.handle(nsidCreateSession, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "AuthenticationRequired", "message": "Invalid identifier or password"})
	})

	_, err := f.client(Options{}).Authenticate(context.Background(), "alice.example", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, domain.CategoryAuthentication, domain.Categorize(err))
	assert.Equal(t, "Invalid handle or app password.", domain.UserMessage(err))
}

func TestAuthenticateServiceUnreachable(t *testing.T) {
	f := newFakeXRPC(t)
	c := f.client(Options{MaxAttempts: 1})
	f.srv.Close()

	_, err := c.Authenticate(context.Background(), "alice.example", "app-pass-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, domain.CategoryConnectivity, domain.Categorize(err))
}

func TestFetchTimelineIsolatesUndecodableItems(t *testing.T) {
	f := newFakeXRPC(t)
	f.handle(nsidGetTimeline, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		assert.Equal(t, "c10", r.URL.Query().Get("cursor"))
		writeJSON(w, http.StatusOK, map[string]any{
			"cursor": "c11",
			"feed": []any{
				feedItem("at://did:plc:author/app.bsky.feed.post/1", "cid1", "2024-05-01T12:00:02Z"),
				map[string]any{"post": map[string]any{"cid": "no-uri"}},
				"not even an object",
				feedItem("at://did:plc:author/app.bsky.feed.post/2", "cid2", "2024-05-01T12:00:01Z"),
			},
		})
	})

	page, err := f.client(Options{}).FetchTimeline(context.Background(), f.session(), "c10", 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "cid1", page.Items[0].CID)
	assert.Equal(t, "cid2", page.Items[1].CID)
	assert.Equal(t, "c11", page.Cursor)
	assert.Equal(t, "c10", page.RequestCursor)
	require.Len(t, page.DecodeErrors, 2)
	assert.ErrorIs(t, page.DecodeErrors[0], domain.ErrDecode)
	var de *domain.DecodeError
	require.ErrorAs(t, page.DecodeErrors[1], &de)
	assert.Equal(t, 2, de.Index)
}

func TestFetchTimelineMapsRepostReason(t *testing.T) {
	f := newFakeXRPC(t)
	f.handle(nsidGetTimeline, func(w http.ResponseWriter, r *http.Request) {
		item := feedItem("at://did:plc:author/app.bsky.feed.post/1", "cid1", "2024-05-01T12:00:00Z")
		item["reason"] = map[string]any{
			"$type":     typeReasonRepost,
			"by":        map[string]any{"did": "did:plc:bob", "handle": "bob.example"},
			"indexedAt": "2024-05-02T08:00:00Z",
		}
		writeJSON(w, http.StatusOK, map[string]any{"feed": []any{item}})
	})

	page, err := f.client(Options{}).FetchTimeline(context.Background(), f.session(), "", 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	p := page.Items[0]
	require.NotNil(t, p.RepostedBy)
	assert.Equal(t, "bob.example", p.RepostedBy.Handle)
	assert.True(t, p.SortTime().Equal(time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)))
	assert.True(t, page.IsHead())
}

func TestTransientServerErrorsAreRetried(t *testing.T) {
	f := newFakeXRPC(t)
	var calls int
	f.handle(nsidGetProfile, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"did": "did:plc:bob", "handle": "bob.example", "followersCount": 7})
	})

	p, err := f.client(Options{MaxAttempts: 3}).FetchProfile(context.Background(), f.session(), "bob.example")
	require.NoError(t, err)
	assert.Equal(t, 7, p.FollowersCount)
	assert.Equal(t, 3, f.count(nsidGetProfile))
}

func TestRetriesAreBounded(t *testing.T) {
	f := newFakeXRPC(t)
	f.handle(nsidGetProfile, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "BadGateway"})
	})

	_, err := f.client(Options{MaxAttempts: 3}).FetchProfile(context.Background(), f.session(), "bob.example")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Equal(t, 3, f.count(nsidGetProfile))
}

func TestInternalServerErrorIsNotRetried(t *testing.T) {
	f := newFakeXRPC(t)
	f.handle(nsidGetProfile, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "InternalServerError"})
	})

	_, err := f.client(Options{MaxAttempts: 3}).FetchProfile(context.Background(), f.session(), "bob.example")
	require.Error(t, err)
	var re *domain.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusInternalServerError, re.Status)
	assert.NotErrorIs(t, err, domain.ErrNetwork)
	assert.Equal(t, 1, f.count(nsidGetProfile))
}

func TestExpiredTokenRefreshesOnceAndRetries(t *testing.T) {
	f := newFakeXRPC(t)
	f.handle(nsidGetTimeline, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ExpiredToken", "message": "Token has expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cursor": "c1", "feed": []any{}})
	})
	f.handle(nsidRefreshSession, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer refresh-1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"did": "did:plc:acct-1", "handle": "alice.example",
			"accessJwt": "access-2", "refreshJwt": "refresh-2",
		})
	})

	var published []*domain.Session
	c := f.client(Options{OnRefresh: func(s *domain.Session) { published = append(published, s) }})

	page, err := c.FetchTimeline(context.Background(), f.session(), "", 10)
	require.NoError(t, err)
	assert.Equal(t, "c1", page.Cursor)
	assert.Equal(t, 2, f.count(nsidGetTimeline))
	assert.Equal(t, 1, f.count(nsidRefreshSession))
	require.Len(t, published, 1)
	assert.Equal(t, "access-2", published[0].AccessJWT)

	// A second caller still holding the rotated session reuses the successor.
	_, err = c.FetchTimeline(context.Background(), f.session(), "", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(nsidRefreshSession))
}

func TestOnlyLatestRotationIsRemembered(t *testing.T) {
	f := newFakeXRPC(t)
	var issued int
	f.handle(nsidRefreshSession, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		issued++
		n := issued + 1
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"did": "did:plc:acct-1", "handle": "alice.example",
			"accessJwt": fmt.Sprintf("access-%d", n), "refreshJwt": fmt.Sprintf("refresh-%d", n),
		})
	})
	c := f.client(Options{})
	ctx := context.Background()

	first := f.session()
	prev, s := first, first
	for range 5 {
		next, err := c.Refresh(ctx, s)
		require.NoError(t, err)
		prev, s = s, next
	}
	assert.Equal(t, "refresh-6", s.RefreshJWT)
	assert.Equal(t, 5, f.count(nsidRefreshSession))
	assert.Len(t, c.rotated, 1)

	again, err := c.Refresh(ctx, prev)
	require.NoError(t, err)
	assert.Equal(t, s.RefreshJWT, again.RefreshJWT)
	assert.Equal(t, 5, f.count(nsidRefreshSession), "latest predecessor resolves locally")

	_, err = c.Refresh(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 6, f.count(nsidRefreshSession), "older tokens are forgotten")
	assert.Len(t, c.rotated, 1)
}

func TestPersistentAuthFailureSurfacesAfterOneRetry(t *testing.T) {
	f := newFakeXRPC(t)
	f.handle(nsidGetTimeline, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "InvalidToken"})
	})
	f.handle(nsidRefreshSession, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"did": "did:plc:acct-1", "handle": "alice.example",
			"accessJwt": "access-2", "refreshJwt": "refresh-2",
		})
	})

	_, err := f.client(Options{}).FetchTimeline(context.Background(), f.session(), "", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, 2, f.count(nsidGetTimeline))
	assert.Equal(t, 1, f.count(nsidRefreshSession))
}

func TestRateLimitCarriesResetHint(t *testing.T) {
	f := newFakeXRPC(t)
	f.handle(nsidGetTimeline, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ratelimit-reset", "1893456000")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "RateLimitExceeded"})
	})

	_, err := f.client(Options{}).FetchTimeline(context.Background(), f.session(), "", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	var re *domain.RemoteError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.RetryAfter.Equal(time.Unix(1893456000, 0)))
	assert.Equal(t, 1, f.count(nsidGetTimeline))
	assert.Equal(t, domain.CategoryRateLimited, domain.Categorize(err))
}

func TestCreatePostIsNotRetriedWithoutConsent(t *testing.T) {
	f := newFakeXRPC(t)
	f.handle(nsidCreateRecord, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Unavailable"})
	})
	c := f.client(Options{MaxAttempts: 3})

	action := domain.Action{Kind: domain.ActionCreatePost, Draft: domain.Draft{Text: "hello"}}
	_, err := c.Mutate(context.Background(), f.session(), action)
	require.Error(t, err)
	assert.Equal(t, 1, f.count(nsidCreateRecord))

	action.AllowRetry = true
	_, err = c.Mutate(context.Background(), f.session(), action)
	require.Error(t, err)
	assert.Equal(t, 4, f.count(nsidCreateRecord))
}

func TestLikeAndUnlikeRecords(t *testing.T) {
	f := newFakeXRPC(t)
	var created map[string]any
	var deleted deleteRecordRequest
	f.handle(nsidCreateRecord, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		writeJSON(w, http.StatusOK, map[string]string{"uri": "at://did:plc:acct-1/app.bsky.feed.like/3kabc", "cid": "likecid"})
	})
	f.handle(nsidDeleteRecord, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&deleted))
		writeJSON(w, http.StatusOK, map[string]any{})
	})
	c := f.client(Options{})
	subject := domain.PostRef{URI: "at://did:plc:author/app.bsky.feed.post/1", CID: "cid1"}

	conf, err := c.Mutate(context.Background(), f.session(), domain.Action{Kind: domain.ActionLike, Subject: subject})
	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:acct-1/app.bsky.feed.like/3kabc", conf.RecordURI)
	assert.Equal(t, "did:plc:acct-1", created["repo"])
	assert.Equal(t, collectionLike, created["collection"])
	record := created["record"].(map[string]any)
	assert.Equal(t, subject.URI, record["subject"].(map[string]any)["uri"])

	_, err = c.Mutate(context.Background(), f.session(), domain.Action{
		Kind: domain.ActionUnlike, Subject: subject, RecordURI: conf.RecordURI,
	})
	require.NoError(t, err)
	assert.Equal(t, "3kabc", deleted.Rkey)
	assert.Equal(t, collectionLike, deleted.Collection)
}

func TestDeleteOfMissingRecordSucceeds(t *testing.T) {
	f := newFakeXRPC(t)
	f.handle(nsidDeleteRecord, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "RecordNotFound", "message": "Could not locate record"})
	})
	_, err := f.client(Options{}).Mutate(context.Background(), f.session(), domain.Action{
		Kind:      domain.ActionUnrepost,
		RecordURI: "at://did:plc:acct-1/app.bsky.feed.repost/3kxyz",
	})
	require.NoError(t, err)
}

func TestReplyAndQuoteRecords(t *testing.T) {
	f := newFakeXRPC(t)
	var bodies []map[string]any
	f.handle(nsidCreateRecord, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		bodies = append(bodies, body)
		writeJSON(w, http.StatusOK, map[string]string{"uri": "at://did:plc:acct-1/app.bsky.feed.post/new", "cid": "newcid"})
	})
	f.handle(nsidResolveHandle, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("handle") == "bob.example.com" {
			writeJSON(w, http.StatusOK, map[string]string{"did": "did:plc:bob"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidRequest", "message": "Unable to resolve handle"})
	})
	c := f.client(Options{})
	parent := domain.PostRef{URI: "at://did:plc:author/app.bsky.feed.post/1", CID: "cid1"}

	_, err := c.Mutate(context.Background(), f.session(), domain.Action{
		Kind:  domain.ActionCreateReply,
		Draft: domain.Draft{Text: "hi @bob.example.com and @ghost.example.com", ReplyTo: &domain.ReplyRef{Parent: parent}},
	})
	require.NoError(t, err)
	rec := bodies[0]["record"].(map[string]any)
	reply := rec["reply"].(map[string]any)
	assert.Equal(t, parent.URI, reply["root"].(map[string]any)["uri"])
	assert.Equal(t, parent.URI, reply["parent"].(map[string]any)["uri"])
	facets := rec["facets"].([]any)
	require.Len(t, facets, 1, "unresolved mention is dropped")
	feature := facets[0].(map[string]any)["features"].([]any)[0].(map[string]any)
	assert.Equal(t, "did:plc:bob", feature["did"])

	_, err = c.Mutate(context.Background(), f.session(), domain.Action{
		Kind:  domain.ActionCreateQuote,
		Draft: domain.Draft{Text: "look", Quote: &parent},
	})
	require.NoError(t, err)
	embed := bodies[1]["record"].(map[string]any)["embed"].(map[string]any)
	assert.Equal(t, "app.bsky.embed.record", embed["$type"])
	assert.Equal(t, parent.CID, embed["record"].(map[string]any)["cid"])
}

func TestDeadlineSurfacesAsNetworkError(t *testing.T) {
	f := newFakeXRPC(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	f.handle(nsidGetTimeline, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.client(Options{}).FetchTimeline(ctx, f.session(), "", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNetwork))
	assert.Equal(t, domain.CategoryConnectivity, domain.Categorize(err))
}

func TestRecordKey(t *testing.T) {
	rkey, err := RecordKey("at://did:plc:acct-1/app.bsky.feed.like/3kabc")
	require.NoError(t, err)
	assert.Equal(t, "3kabc", rkey)

	_, err = RecordKey("https://example.com/x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = RecordKey("at://did:plc:acct-1/app.bsky.feed.like")
	assert.Error(t, err)
}

func TestWebURL(t *testing.T) {
	p := domain.Post{
		URI:    "at://did:plc:bob/app.bsky.feed.post/3kxyz",
		Author: domain.Actor{DID: "did:plc:bob", Handle: "bob.test"},
	}
	u, err := WebURL(p)
	require.NoError(t, err)
	assert.Equal(t, "https://bsky.app/profile/bob.test/post/3kxyz", u)

	p.Author = domain.Actor{}
	u, err = WebURL(p)
	require.NoError(t, err)
	assert.Equal(t, "https://bsky.app/profile/did:plc:bob/post/3kxyz", u)

	_, err = WebURL(domain.Post{URI: "bogus"})
	assert.Error(t, err)
}
