package store

import (
	"encoding/json"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Eviction thresholds are per account. When an account exceeds a threshold
// its least recently used unpinned entries are removed until it sits at
// (1 - EvictRatio) of the threshold.

// EvictStats reports what an eviction pass removed.
type EvictStats struct {
	Rows       int
	Images     int
	ImageBytes int64
}

func (s *EvictStats) add(o EvictStats) {
	s.Rows += o.Rows
	s.Images += o.Images
	s.ImageBytes += o.ImageBytes
}

type candidate struct {
	entry  Entry
	access time.Time
}

// Evict runs an eviction pass over every account.
func (c *Cache) Evict() (EvictStats, error) {
	var total EvictStats
	accounts, err := c.Accounts()
	if err != nil {
		return total, err
	}
	for _, account := range accounts {
		st, err := c.evictAccount(account)
		if err != nil {
			return total, err
		}
		total.add(st)
	}
	return total, nil
}

func (c *Cache) maybeEvict(account string) {
	if _, err := c.evictAccount(account); err != nil {
		c.logger.Warn("eviction failed", "account", account, "error", err)
	}
}

func (c *Cache) evictAccount(account string) (EvictStats, error) {
	var st EvictStats
	if c.passThrough() {
		return st, nil
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		stats, err := accountStats(tx, account)
		if err != nil {
			return err
		}

		if stats.TotalRows > c.opts.MaxRows {
			target := int(float64(c.opts.MaxRows) * (1 - c.opts.EvictRatio))
			excess := stats.TotalRows - target
			victims, err := c.lruCandidates(tx, account, rowKinds)
			if err != nil {
				return err
			}
			for _, v := range victims {
				if excess <= 0 {
					break
				}
				if err := deleteEntry(tx, account, v.entry.Kind, v.entry.Key); err != nil {
					return err
				}
				excess--
				st.Rows++
			}
		}

		if stats.ImageBytes > c.opts.MaxImageBytes {
			target := int64(float64(c.opts.MaxImageBytes) * (1 - c.opts.EvictRatio))
			excess := stats.ImageBytes - target
			victims, err := c.lruCandidates(tx, account, []Kind{KindImage})
			if err != nil {
				return err
			}
			for _, v := range victims {
				if excess <= 0 {
					break
				}
				if err := deleteEntry(tx, account, KindImage, v.entry.Key); err != nil {
					return err
				}
				excess -= v.entry.Size
				st.Images++
				st.ImageBytes += v.entry.Size
			}
		}
		return nil
	})
	if err != nil {
		return st, c.fail("evict", err)
	}
	if st.Rows > 0 || st.Images > 0 {
		c.logger.Debug("evicted cache entries", "account", account, "rows", st.Rows, "images", st.Images, "bytes", st.ImageBytes)
	}
	return st, nil
}

// lruCandidates returns unpinned entries of the given kinds, least recently used first.
func (c *Cache) lruCandidates(tx *bolt.Tx, account string, kinds []Kind) ([]candidate, error) {
	acct, err := accountBucket(tx, account, false)
	if err != nil || acct == nil {
		return nil, err
	}
	var out []candidate
	for _, kind := range kinds {
		b := acct.Bucket([]byte(kind))
		if b == nil {
			continue
		}
		err := b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if c.pins.Pinned(account, e.Kind, e.Key) {
				return nil
			}
			out = append(out, candidate{entry: e, access: c.lastAccess(e)})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].access.Before(out[j].access)
	})
	return out, nil
}

// Retention windows for Cleanup.
const (
	FeedRetention   = 24 * time.Hour
	EntityRetention = 7 * 24 * time.Hour
)

// Cleanup removes stale rows: feeds fetched more than FeedRetention ago and
// posts, profiles and notifications older than EntityRetention. Pinned rows stay.
func (c *Cache) Cleanup() (int, error) {
	accounts, err := c.Accounts()
	if err != nil || c.passThrough() {
		return 0, err
	}
	now := c.now()
	removed := 0
	err = c.db.Update(func(tx *bolt.Tx) error {
		for _, account := range accounts {
			acct, err := accountBucket(tx, account, false)
			if err != nil || acct == nil {
				continue
			}
			for _, kind := range rowKinds {
				b := acct.Bucket([]byte(kind))
				if b == nil {
					continue
				}
				limit := EntityRetention
				if kind == KindFeed {
					limit = FeedRetention
				}
				var stale []string
				err := b.ForEach(func(k, v []byte) error {
					var e Entry
					if err := json.Unmarshal(v, &e); err != nil {
						return err
					}
					if now.Sub(e.FetchedAt) > limit && !c.pins.Pinned(account, kind, e.Key) {
						stale = append(stale, e.Key)
					}
					return nil
				})
				if err != nil {
					return err
				}
				for _, key := range stale {
					if err := b.Delete([]byte(key)); err != nil {
						return err
					}
					removed++
				}
			}
		}
		return nil
	})
	if err != nil {
		return removed, c.fail("cleanup", err)
	}
	return removed, nil
}
