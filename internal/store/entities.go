package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// feedRecord is the persisted shape of a feed: post order plus paging state.
// The posts themselves live in the posts table.
type feedRecord struct {
	PostURIs []string `json:"post_uris"`
	Cursor   string   `json:"cursor"`
	HasMore  bool     `json:"has_more"`
}

func postEntry(account string, p domain.Post) (Entry, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Account: account, Kind: KindPost, Key: p.URI, Payload: data, IndexedAt: p.IndexedAt}, nil
}

func decodePost(e Entry) (domain.Post, error) {
	var p domain.Post
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return domain.Post{}, fmt.Errorf("decode post %s: %w", e.Key, err)
	}
	return p, nil
}

// === Posts ===

// SavePosts writes posts in one transaction, replacing what is stored.
func (c *Cache) SavePosts(account string, posts []domain.Post) error {
	batch := make([]Entry, 0, len(posts))
	for _, p := range posts {
		e, err := postEntry(account, p)
		if err != nil {
			return err
		}
		batch = append(batch, e)
	}
	return c.PutMany(batch)
}

// SaveFetchedPosts writes posts fetched by a request issued at requestedAt.
// A stored row mutated locally after that keeps its viewer state and counters.
func (c *Cache) SaveFetchedPosts(account string, posts []domain.Post, requestedAt time.Time) error {
	if account == "" {
		return errNoAccount
	}
	if len(posts) == 0 || c.passThrough() {
		return nil
	}
	now := c.now()
	err := c.db.Update(func(tx *bolt.Tx) error {
		return putPosts(tx, account, posts, requestedAt, now)
	})
	if err != nil {
		return c.fail("save posts", err)
	}
	c.maybeEvict(account)
	return nil
}

// putPosts writes post rows inside tx. With a non-zero requestedAt, rows
// mutated locally after it keep their stored engagement.
func putPosts(tx *bolt.Tx, account string, posts []domain.Post, requestedAt, now time.Time) error {
	b, err := kindBucket(tx, account, KindPost, true)
	if err != nil {
		return err
	}
	for _, p := range posts {
		if !requestedAt.IsZero() {
			stored, ok, err := readEntry(b, p.URI)
			if err != nil {
				return err
			}
			if ok {
				local, err := decodePost(stored)
				if err != nil {
					return err
				}
				if local.MutatedAfter(requestedAt) {
					p.KeepEngagement(local)
				}
			}
		}
		e, err := postEntry(account, p)
		if err != nil {
			return err
		}
		stamp(&e, now)
		if err := writeEntry(tx, e); err != nil {
			return err
		}
	}
	return nil
}

// GetPost returns a cached post by URI.
func (c *Cache) GetPost(account, uri string) (domain.Post, bool, error) {
	e, ok, err := c.Get(account, KindPost, uri)
	if err != nil || !ok {
		return domain.Post{}, false, err
	}
	p, err := decodePost(e)
	if err != nil {
		return domain.Post{}, false, c.fail("get post", err)
	}
	return p, true, nil
}

// UpdatePost applies fn to the cached post inside a single write
// transaction, so counters derived from the stored state cannot interleave
// with a concurrent writer. fn returns false to leave the row unchanged.
// A changed row is stamped with the mutation time. A missing post reports
// found=false.
func (c *Cache) UpdatePost(account, uri string, fn func(*domain.Post) bool) (domain.Post, bool, error) {
	if account == "" {
		return domain.Post{}, false, errNoAccount
	}
	if c.passThrough() {
		return domain.Post{}, false, nil
	}

	var post domain.Post
	var found bool
	now := c.now()
	err := c.db.Update(func(tx *bolt.Tx) error {
		b, err := kindBucket(tx, account, KindPost, false)
		if err != nil {
			return err
		}
		e, ok, err := readEntry(b, uri)
		if err != nil || !ok {
			return err
		}
		found = true
		if post, err = decodePost(e); err != nil {
			return err
		}
		if !fn(&post) {
			return nil
		}
		post.MutatedAt = now
		updated, err := postEntry(account, post)
		if err != nil {
			return err
		}
		updated.FetchedAt = e.FetchedAt
		updated.TTL = e.TTL
		stamp(&updated, now)
		return writeEntry(tx, updated)
	})
	if err != nil {
		return domain.Post{}, false, c.fail("update post", err)
	}
	if found {
		c.touch(account, KindPost, uri)
	}
	return post, found, nil
}

// === Feeds ===

// MergeFeed reads the stored feed, passes it to fn and writes the result,
// all inside one write transaction so concurrent merges of the same feed
// serialize. fn returns false to skip the write. A feed stored by a newer
// generation than gen is left alone and fn is not called.
//
// The returned feed's FetchedAt is taken as the request time of its posts:
// rows mutated locally after it keep their stored engagement. The bool
// reports whether the write happened.
func (c *Cache) MergeFeed(account, key string, gen uint64, fn func(domain.Feed) (domain.Feed, bool)) (bool, error) {
	if account == "" {
		return false, errNoAccount
	}
	if c.passThrough() {
		return false, nil
	}

	written := false
	now := c.now()
	err := c.db.Update(func(tx *bolt.Tx) error {
		existing, ok, err := readFeed(tx, account, key)
		if err != nil {
			return err
		}
		if ok && existing.Generation > gen {
			return nil
		}
		if !ok {
			existing = domain.Feed{Key: key}
		}
		feed, write := fn(existing)
		if !write {
			return nil
		}

		rec := feedRecord{Cursor: feed.Cursor, HasMore: feed.HasMore}
		for _, p := range feed.Posts {
			rec.PostURIs = append(rec.PostURIs, p.URI)
		}
		if err := putPosts(tx, account, feed.Posts, feed.FetchedAt, now); err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		e := Entry{Account: account, Kind: KindFeed, Key: key, Payload: data, Generation: gen, FetchedAt: feed.FetchedAt}
		stamp(&e, now)
		if err := writeEntry(tx, e); err != nil {
			return err
		}
		written = true
		return nil
	})
	if err != nil {
		return false, c.fail("merge feed", err)
	}
	if written {
		c.maybeEvict(account)
	}
	return written, nil
}

// GetFeed reassembles a cached feed. Posts evicted since the feed was
// written are skipped.
func (c *Cache) GetFeed(account, key string) (domain.Feed, bool, error) {
	if account == "" {
		return domain.Feed{}, false, errNoAccount
	}
	if c.passThrough() {
		return domain.Feed{}, false, nil
	}

	var feed domain.Feed
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		var err error
		feed, found, err = readFeed(tx, account, key)
		return err
	})
	if err != nil {
		return domain.Feed{}, false, c.fail("get feed", err)
	}
	if found {
		c.touch(account, KindFeed, key)
	}
	return feed, found, nil
}

func readFeed(tx *bolt.Tx, account, key string) (domain.Feed, bool, error) {
	fb, err := kindBucket(tx, account, KindFeed, false)
	if err != nil {
		return domain.Feed{}, false, err
	}
	e, ok, err := readEntry(fb, key)
	if err != nil || !ok {
		return domain.Feed{}, false, err
	}
	var rec feedRecord
	if err := json.Unmarshal(e.Payload, &rec); err != nil {
		return domain.Feed{}, false, fmt.Errorf("decode feed %s: %w", key, err)
	}
	feed := domain.Feed{Key: key, Cursor: rec.Cursor, HasMore: rec.HasMore, Generation: e.Generation, FetchedAt: e.FetchedAt}

	pb, err := kindBucket(tx, account, KindPost, false)
	if err != nil {
		return domain.Feed{}, false, err
	}
	for _, uri := range rec.PostURIs {
		pe, ok, err := readEntry(pb, uri)
		if err != nil {
			return domain.Feed{}, false, err
		}
		if !ok {
			continue
		}
		p, err := decodePost(pe)
		if err != nil {
			return domain.Feed{}, false, err
		}
		feed.Posts = append(feed.Posts, p)
	}
	return feed, true, nil
}

// === Profiles ===

// SaveProfile writes a profile keyed by DID.
func (c *Cache) SaveProfile(account string, p domain.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.Put(account, KindProfile, p.DID, data, 0)
}

// GetProfile looks a profile up by DID or handle.
func (c *Cache) GetProfile(account, actor string) (domain.Profile, bool, error) {
	if strings.HasPrefix(actor, "did:") {
		e, ok, err := c.Get(account, KindProfile, actor)
		if err != nil || !ok {
			return domain.Profile{}, false, err
		}
		var p domain.Profile
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return domain.Profile{}, false, c.fail("get profile", err)
		}
		return p, true, nil
	}

	profiles, err := c.ListProfiles(account)
	if err != nil {
		return domain.Profile{}, false, err
	}
	handle := strings.TrimPrefix(actor, "@")
	for _, p := range profiles {
		if strings.EqualFold(p.Handle, handle) {
			c.touch(account, KindProfile, p.DID)
			return p, true, nil
		}
	}
	return domain.Profile{}, false, nil
}

// ListProfiles returns every cached profile of the account.
func (c *Cache) ListProfiles(account string) ([]domain.Profile, error) {
	var out []domain.Profile
	err := c.scan(account, KindProfile, func(e Entry) error {
		var p domain.Profile
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// === Notifications ===

// SaveNotifications writes notifications keyed by URI.
func (c *Cache) SaveNotifications(account string, items []domain.Notification) error {
	batch := make([]Entry, 0, len(items))
	for _, n := range items {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		batch = append(batch, Entry{Account: account, Kind: KindNotification, Key: n.URI, Payload: data, Read: n.IsRead, IndexedAt: n.IndexedAt})
	}
	return c.PutMany(batch)
}

// ListNotifications returns cached notifications, newest first.
func (c *Cache) ListNotifications(account string) ([]domain.Notification, error) {
	var out []domain.Notification
	err := c.scan(account, KindNotification, func(e Entry) error {
		var n domain.Notification
		if err := json.Unmarshal(e.Payload, &n); err != nil {
			return err
		}
		n.IsRead = e.Read
		out = append(out, n)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].IndexedAt.Equal(out[j].IndexedAt) {
			return out[i].IndexedAt.After(out[j].IndexedAt)
		}
		return out[i].URI > out[j].URI
	})
	return out, err
}

// MarkNotificationsRead flips the read state of every cached notification.
func (c *Cache) MarkNotificationsRead(account string) error {
	if account == "" {
		return errNoAccount
	}
	if c.passThrough() {
		return nil
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		b, err := kindBucket(tx, account, KindNotification, false)
		if err != nil || b == nil {
			return err
		}
		var updates []Entry
		err = b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if !e.Read {
				e.Read = true
				updates = append(updates, e)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, e := range updates {
			if err := writeEntry(tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return c.fail("mark read", err)
	}
	return nil
}

// === Images ===

// PutImage stores an image blob keyed by URL.
func (c *Cache) PutImage(account, url string, data []byte) error {
	return c.Put(account, KindImage, url, data, 0)
}

// GetImage returns a cached image blob.
func (c *Cache) GetImage(account, url string) ([]byte, bool, error) {
	e, ok, err := c.Get(account, KindImage, url)
	if err != nil || !ok {
		return nil, false, err
	}
	return e.Payload, true, nil
}

// scan visits every live entry of one kind.
func (c *Cache) scan(account string, kind Kind, fn func(Entry) error) error {
	if account == "" {
		return errNoAccount
	}
	if c.passThrough() {
		return nil
	}
	now := c.now()
	err := c.db.View(func(tx *bolt.Tx) error {
		b, err := kindBucket(tx, account, kind, false)
		if err != nil || b == nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if e.Expired(now) {
				return nil
			}
			return fn(e)
		})
	})
	if err != nil {
		return c.fail("scan "+string(kind), err)
	}
	return nil
}
