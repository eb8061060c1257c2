// Package store is the local cache: a bbolt database partitioned into one
// bucket per account, each holding a sub-bucket per entity kind.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Kind names an entity table inside an account bucket.
type Kind string

const (
	KindPost         Kind = "posts"
	KindProfile      Kind = "profiles"
	KindFeed         Kind = "feeds"
	KindNotification Kind = "notifications"
	KindImage        Kind = "images"
)

// Kinds lists every kind counted against the row threshold.
var rowKinds = []Kind{KindPost, KindProfile, KindFeed, KindNotification}

// blobs holds raw image bytes; the images bucket holds their metadata.
var bucketBlobs = []byte("blobs")

const accountPrefix = "acct:"

var errNoAccount = errors.New("cache access without account")

// Defaults for Options fields left zero.
const (
	DefaultMaxRows       = 5000
	DefaultMaxImageBytes = 100 << 20
	DefaultEvictRatio    = 0.1
	DefaultPinTTL        = 5 * time.Minute
)

// FileName is the database file created inside Options.Dir.
const FileName = "hangar.db"

// Options configures the cache.
type Options struct {
	Dir           string        // Directory holding FileName
	MaxRows       int           // Per-account row threshold across entity kinds
	MaxImageBytes int64         // Per-account image byte threshold
	EvictRatio    float64       // Fraction below the threshold eviction trims to
	PinTTL        time.Duration // Lifetime of a pin without renewal
	Logger        *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.MaxRows <= 0 {
		o.MaxRows = DefaultMaxRows
	}
	if o.MaxImageBytes <= 0 {
		o.MaxImageBytes = DefaultMaxImageBytes
	}
	if o.EvictRatio <= 0 || o.EvictRatio > 1 {
		o.EvictRatio = DefaultEvictRatio
	}
	if o.PinTTL <= 0 {
		o.PinTTL = DefaultPinTTL
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Entry is the stored envelope of one cached entity.
type Entry struct {
	Account    string        `json:"account"`
	Kind       Kind          `json:"kind"`
	Key        string        `json:"key"`
	Payload    []byte        `json:"payload,omitempty"`
	FetchedAt  time.Time     `json:"fetched_at"`
	TTL        time.Duration `json:"ttl,omitempty"`
	LastAccess time.Time     `json:"last_access"`
	Size       int64         `json:"size"`
	Generation uint64        `json:"generation,omitempty"` // feeds
	IndexedAt  time.Time     `json:"indexed_at,omitempty"` // posts
	Read       bool          `json:"read,omitempty"`       // notifications
}

// Expired reports whether the entry outlived its TTL.
func (e Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.After(e.FetchedAt.Add(e.TTL))
}

// Cache implements the local cache. A Cache without a database, or one
// that hit a storage error, runs in pass-through mode: reads miss and
// writes are dropped.
type Cache struct {
	db     *bolt.DB
	opts   Options
	logger *slog.Logger
	pins   *PinSet
	now    func() time.Time

	mu      sync.Mutex
	touched map[string]time.Time // in-memory access log, merged at eviction

	degraded atomic.Bool
	warnOnce sync.Once
}

// Open opens (or creates) the cache database under opts.Dir.
func Open(opts Options) (*Cache, error) {
	opts.applyDefaults()
	if opts.Dir == "" {
		return nil, errors.New("cache dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, &domain.CacheError{Op: "open", Err: err}
	}

	dbPath := filepath.Join(opts.Dir, FileName)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, &domain.CacheError{Op: "open", Err: fmt.Errorf("failed to open bolt db: %w", err)}
	}
	return newCache(db, opts), nil
}

// Disabled returns a cache that is permanently in pass-through mode.
func Disabled(logger *slog.Logger) *Cache {
	opts := Options{Logger: logger}
	opts.applyDefaults()
	c := newCache(nil, opts)
	c.degraded.Store(true)
	return c
}

func newCache(db *bolt.DB, opts Options) *Cache {
	return &Cache{
		db:      db,
		opts:    opts,
		logger:  opts.Logger,
		pins:    NewPinSet(opts.PinTTL),
		now:     time.Now,
		touched: make(map[string]time.Time),
	}
}

func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Pins returns the pin set guarding the displayed window from eviction.
func (c *Cache) Pins() *PinSet { return c.pins }

// Degraded reports whether the cache has fallen back to pass-through mode.
func (c *Cache) Degraded() bool { return c.degraded.Load() }

func (c *Cache) passThrough() bool {
	return c.db == nil || c.degraded.Load()
}

// fail switches the cache to pass-through mode and returns the error the
// caller should surface as a warning.
func (c *Cache) fail(op string, err error) error {
	c.degraded.Store(true)
	c.warnOnce.Do(func() {
		c.logger.Warn("cache failure, continuing without cache", "op", op, "error", err)
	})
	return &domain.CacheError{Op: op, Err: err}
}

func entryID(account string, kind Kind, key string) string {
	return account + "\x00" + string(kind) + "\x00" + key
}

func (c *Cache) touch(account string, kind Kind, key string) {
	c.mu.Lock()
	c.touched[entryID(account, kind, key)] = c.now()
	c.mu.Unlock()
}

func (c *Cache) lastAccess(e Entry) time.Time {
	c.mu.Lock()
	t, ok := c.touched[entryID(e.Account, e.Kind, e.Key)]
	c.mu.Unlock()
	if ok && t.After(e.LastAccess) {
		return t
	}
	return e.LastAccess
}

// === Bucket helpers ===

func accountBucket(tx *bolt.Tx, account string, create bool) (*bolt.Bucket, error) {
	if account == "" {
		return nil, errNoAccount
	}
	name := []byte(accountPrefix + account)
	if create {
		return tx.CreateBucketIfNotExists(name)
	}
	return tx.Bucket(name), nil
}

func kindBucket(tx *bolt.Tx, account string, kind Kind, create bool) (*bolt.Bucket, error) {
	acct, err := accountBucket(tx, account, create)
	if err != nil || acct == nil {
		return nil, err
	}
	if create {
		return acct.CreateBucketIfNotExists([]byte(kind))
	}
	return acct.Bucket([]byte(kind)), nil
}

func readEntry(b *bolt.Bucket, key string) (Entry, bool, error) {
	if b == nil {
		return Entry{}, false, nil
	}
	v := b.Get([]byte(key))
	if v == nil {
		return Entry{}, false, nil
	}
	var e Entry
	if err := json.Unmarshal(v, &e); err != nil {
		return Entry{}, false, fmt.Errorf("corrupt entry %q: %w", key, err)
	}
	return e, true, nil
}

func writeEntry(tx *bolt.Tx, e Entry) error {
	b, err := kindBucket(tx, e.Account, e.Kind, true)
	if err != nil {
		return err
	}
	if e.Kind == KindImage {
		acct, _ := accountBucket(tx, e.Account, true)
		blobs, err := acct.CreateBucketIfNotExists(bucketBlobs)
		if err != nil {
			return err
		}
		if err := blobs.Put([]byte(e.Key), e.Payload); err != nil {
			return err
		}
		e.Payload = nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.Put([]byte(e.Key), data)
}

func deleteEntry(tx *bolt.Tx, account string, kind Kind, key string) error {
	acct, err := accountBucket(tx, account, false)
	if err != nil || acct == nil {
		return err
	}
	if b := acct.Bucket([]byte(kind)); b != nil {
		if err := b.Delete([]byte(key)); err != nil {
			return err
		}
	}
	if kind == KindImage {
		if blobs := acct.Bucket(bucketBlobs); blobs != nil {
			return blobs.Delete([]byte(key))
		}
	}
	return nil
}

// === Generic operations ===

// Get returns the entry for (account, kind, key). Expired entries miss.
func (c *Cache) Get(account string, kind Kind, key string) (Entry, bool, error) {
	if account == "" {
		return Entry{}, false, errNoAccount
	}
	if c.passThrough() {
		return Entry{}, false, nil
	}

	var e Entry
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		b, err := kindBucket(tx, account, kind, false)
		if err != nil {
			return err
		}
		e, found, err = readEntry(b, key)
		if err != nil || !found {
			return err
		}
		if kind == KindImage {
			acct, _ := accountBucket(tx, account, false)
			if blobs := acct.Bucket(bucketBlobs); blobs != nil {
				e.Payload = append([]byte(nil), blobs.Get([]byte(key))...)
			}
		}
		return nil
	})
	if err != nil {
		return Entry{}, false, c.fail("get", err)
	}
	if !found || e.Expired(c.now()) {
		return Entry{}, false, nil
	}
	c.touch(account, kind, key)
	return e, true, nil
}

// Put stores a single payload.
func (c *Cache) Put(account string, kind Kind, key string, payload []byte, ttl time.Duration) error {
	return c.PutMany([]Entry{{Account: account, Kind: kind, Key: key, Payload: payload, TTL: ttl}})
}

// PutMany writes a batch in a single transaction. Writes to the same key
// are last-writer-wins.
func (c *Cache) PutMany(batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}
	for _, e := range batch {
		if e.Account == "" {
			return errNoAccount
		}
	}
	if c.passThrough() {
		return nil
	}

	now := c.now()
	accounts := make(map[string]bool)
	err := c.db.Update(func(tx *bolt.Tx) error {
		for _, e := range batch {
			stamp(&e, now)
			if err := writeEntry(tx, e); err != nil {
				return err
			}
			accounts[e.Account] = true
		}
		return nil
	})
	if err != nil {
		return c.fail("put", err)
	}
	for account := range accounts {
		c.maybeEvict(account)
	}
	return nil
}

func stamp(e *Entry, now time.Time) {
	if e.FetchedAt.IsZero() {
		e.FetchedAt = now
	}
	e.LastAccess = now
	e.Size = int64(len(e.Payload))
}

// Delete removes one entry.
func (c *Cache) Delete(account string, kind Kind, key string) error {
	if account == "" {
		return errNoAccount
	}
	if c.passThrough() {
		return nil
	}
	if err := c.db.Update(func(tx *bolt.Tx) error {
		return deleteEntry(tx, account, kind, key)
	}); err != nil {
		return c.fail("delete", err)
	}
	return nil
}

// InvalidateAccount drops every row of one account. Other accounts are untouched.
func (c *Cache) InvalidateAccount(account string) error {
	if account == "" {
		return errNoAccount
	}
	c.pins.UnpinAccount(account)
	c.mu.Lock()
	prefix := account + "\x00"
	for id := range c.touched {
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			delete(c.touched, id)
		}
	}
	c.mu.Unlock()

	if c.passThrough() {
		return nil
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(accountPrefix + account))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return c.fail("invalidate", err)
	}
	c.logger.Info("cache invalidated", "account", account)
	return nil
}

// Accounts lists the accounts that have cached rows.
func (c *Cache) Accounts() ([]string, error) {
	if c.passThrough() {
		return nil, nil
	}
	var accounts []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if n := string(name); len(n) > len(accountPrefix) && n[:len(accountPrefix)] == accountPrefix {
				accounts = append(accounts, n[len(accountPrefix):])
			}
			return nil
		})
	})
	if err != nil {
		return nil, c.fail("accounts", err)
	}
	return accounts, nil
}

// Stats summarizes one account's footprint.
type Stats struct {
	Rows       map[Kind]int
	TotalRows  int
	Images     int
	ImageBytes int64
}

// Stats returns row counts and image bytes for an account.
func (c *Cache) Stats(account string) (Stats, error) {
	st := Stats{Rows: make(map[Kind]int)}
	if account == "" {
		return st, errNoAccount
	}
	if c.passThrough() {
		return st, nil
	}
	err := c.db.View(func(tx *bolt.Tx) error {
		var err error
		st, err = accountStats(tx, account)
		return err
	})
	if err != nil {
		return st, c.fail("stats", err)
	}
	return st, nil
}

func accountStats(tx *bolt.Tx, account string) (Stats, error) {
	st := Stats{Rows: make(map[Kind]int)}
	acct, err := accountBucket(tx, account, false)
	if err != nil || acct == nil {
		return st, err
	}
	for _, kind := range rowKinds {
		if b := acct.Bucket([]byte(kind)); b != nil {
			n := b.Stats().KeyN
			st.Rows[kind] = n
			st.TotalRows += n
		}
	}
	if b := acct.Bucket([]byte(KindImage)); b != nil {
		err = b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			st.Images++
			st.ImageBytes += e.Size
			return nil
		})
	}
	return st, err
}
