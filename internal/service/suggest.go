package service

import (
	"context"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mmcdole/hangar/internal/domain"
)

// cachedActors lists the actors of the account's cached profiles.
func (c *Core) cachedActors(ctx context.Context, account string) []domain.Actor {
	profiles, err := c.cache.ListProfiles(account)
	warnCache(ctx, err)
	actors := make([]domain.Actor, 0, len(profiles))
	for _, p := range profiles {
		actors = append(actors, p.Actor())
	}
	return actors
}

func (c *Core) rememberActor(a domain.Actor) {
	if a.Handle == "" {
		return
	}
	c.actors[strings.ToLower(a.Handle)] = a
}

func (c *Core) rememberAuthors(posts []domain.Post) {
	for _, p := range posts {
		c.rememberActor(p.Author)
		if p.RepostedBy != nil {
			c.rememberActor(*p.RepostedBy)
		}
	}
}

// SuggestHandles ranks actors seen in this session against a partial
// mention such as "@ali", best match first.
func (c *Core) SuggestHandles(partial string, limit int) []domain.Actor {
	partial = strings.TrimPrefix(partial, "@")
	if partial == "" || limit <= 0 {
		return nil
	}
	handles := make([]string, 0, len(c.actors))
	for h := range c.actors {
		handles = append(handles, h)
	}
	ranks := fuzzy.RankFindNormalizedFold(partial, handles)
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].Target < ranks[j].Target
	})

	out := make([]domain.Actor, 0, min(limit, len(ranks)))
	for _, r := range ranks {
		if len(out) == limit {
			break
		}
		out = append(out, c.actors[r.Target])
	}
	return out
}
