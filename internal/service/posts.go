package service

import (
	"context"
	"fmt"

	"github.com/mmcdole/hangar/internal/coordinator"
	"github.com/mmcdole/hangar/internal/domain"
	"github.com/mmcdole/hangar/internal/store"
)

// MutationResult is the payload of a write action.
type MutationResult struct {
	Account      string
	Confirmation domain.Confirmation
	Post         domain.Post // subject after the action, or the created post
	HasPost      bool
	Deleted      string // URI removed by a delete
}

// Like likes a post. Liking an already liked post is a no-op.
func (c *Core) Like(ref domain.PostRef) (coordinator.Handle, error) {
	return c.submitToggle(domain.ActionLike, ref)
}

// Unlike removes the viewer's like, if any.
func (c *Core) Unlike(ref domain.PostRef) (coordinator.Handle, error) {
	return c.submitToggle(domain.ActionUnlike, ref)
}

// Repost reposts a post. Reposting twice is a no-op.
func (c *Core) Repost(ref domain.PostRef) (coordinator.Handle, error) {
	return c.submitToggle(domain.ActionRepost, ref)
}

// Unrepost removes the viewer's repost, if any.
func (c *Core) Unrepost(ref domain.PostRef) (coordinator.Handle, error) {
	return c.submitToggle(domain.ActionUnrepost, ref)
}

func (c *Core) submitToggle(kind domain.ActionKind, ref domain.PostRef) (coordinator.Handle, error) {
	s, err := c.active()
	if err != nil {
		return coordinator.Handle{}, err
	}
	if ref.URI == "" {
		return coordinator.Handle{}, fmt.Errorf("%s: %w: empty post reference", kind, domain.ErrNotFound)
	}
	return c.coord.Submit(StreamMutations, coordinator.KindMutation, func(ctx context.Context) (any, error) {
		return c.toggle(ctx, s, kind, ref)
	})
}

// toggle brings the viewer state of one post to the state kind asks for.
// Actions on the same post are serialized, and the current state is read
// from the cache (or the server) under that lock, so repeated or
// concurrent requests converge on a single record.
func (c *Core) toggle(ctx context.Context, s *domain.Session, kind domain.ActionKind, ref domain.PostRef) (MutationResult, error) {
	s, err := c.ensureFresh(ctx, s)
	if err != nil {
		return MutationResult{}, err
	}
	account := s.AccountID()
	unlock := c.locks.lock(account + "|" + ref.URI)
	defer unlock()

	cur, err := c.currentPost(ctx, s, ref)
	if err != nil {
		return MutationResult{}, err
	}
	out := MutationResult{Account: account, Post: cur, HasPost: true}
	if inEffect(kind, cur) {
		out.Confirmation = domain.Confirmation{Kind: kind, Subject: cur.Ref(), Noop: true, At: c.now()}
		c.logger.Debug("mutation already in effect", "action", kind.String(), "subject", cur.URI)
		return out, nil
	}

	action := domain.Action{Kind: kind, Subject: cur.Ref()}
	switch kind {
	case domain.ActionUnlike:
		action.RecordURI = cur.Viewer.Like
	case domain.ActionUnrepost:
		action.RecordURI = cur.Viewer.Repost
	}
	conf, err := c.remote.Mutate(ctx, s, action)
	if err != nil {
		return MutationResult{}, err
	}
	out.Confirmation = conf

	post, found, err := c.cache.UpdatePost(account, cur.URI, func(p *domain.Post) bool {
		return applyToggle(p, kind, conf.RecordURI)
	})
	warnCache(ctx, err)
	if !found {
		post = cur
		applyToggle(&post, kind, conf.RecordURI)
		post.MutatedAt = c.now()
		warnCache(ctx, c.cache.SavePosts(account, []domain.Post{post}))
	}
	out.Post = post
	return out, nil
}

// currentPost returns the freshest known copy of a post: the cached one,
// else the server's.
func (c *Core) currentPost(ctx context.Context, s *domain.Session, ref domain.PostRef) (domain.Post, error) {
	account := s.AccountID()
	p, ok, err := c.cache.GetPost(account, ref.URI)
	warnCache(ctx, err)
	if ok {
		return p, nil
	}
	posts, err := c.remote.FetchPosts(ctx, s, []string{ref.URI})
	if err != nil {
		return domain.Post{}, err
	}
	if len(posts) == 0 {
		return domain.Post{}, fmt.Errorf("post %s: %w", ref.URI, domain.ErrNotFound)
	}
	warnCache(ctx, c.cache.SavePosts(account, posts[:1]))
	return posts[0], nil
}

func inEffect(kind domain.ActionKind, p domain.Post) bool {
	switch kind {
	case domain.ActionLike:
		return p.Liked()
	case domain.ActionUnlike:
		return !p.Liked()
	case domain.ActionRepost:
		return p.Reposted()
	case domain.ActionUnrepost:
		return !p.Reposted()
	}
	return false
}

// applyToggle updates viewer state and the matching counter. It reports
// false when p already reflects the action.
func applyToggle(p *domain.Post, kind domain.ActionKind, record string) bool {
	if inEffect(kind, *p) {
		return false
	}
	switch kind {
	case domain.ActionLike:
		p.Viewer.Like = record
		p.LikeCount++
	case domain.ActionUnlike:
		p.Viewer.Like = ""
		p.LikeCount = max(0, p.LikeCount-1)
	case domain.ActionRepost:
		p.Viewer.Repost = record
		p.RepostCount++
	case domain.ActionUnrepost:
		p.Viewer.Repost = ""
		p.RepostCount = max(0, p.RepostCount-1)
	default:
		return false
	}
	return true
}

// ReplyTo builds the reply reference for answering parent, keeping the
// root of the thread parent belongs to.
func ReplyTo(parent domain.Post) *domain.ReplyRef {
	root := parent.Ref()
	if parent.Reply != nil && parent.Reply.Root.URI != "" {
		root = parent.Reply.Root
	}
	return &domain.ReplyRef{Root: root, Parent: parent.Ref()}
}

// Compose publishes a draft as a post, reply or quote depending on which
// references it carries. Posts are sent once; allowRetry lets transport
// failures be retried at the risk of a duplicate.
func (c *Core) Compose(d domain.Draft, allowRetry bool) (coordinator.Handle, error) {
	s, err := c.active()
	if err != nil {
		return coordinator.Handle{}, err
	}
	return c.coord.Submit(StreamMutations, coordinator.KindMutation, func(ctx context.Context) (any, error) {
		return c.compose(ctx, s, d, allowRetry)
	})
}

func (c *Core) compose(ctx context.Context, s *domain.Session, d domain.Draft, allowRetry bool) (MutationResult, error) {
	s, err := c.ensureFresh(ctx, s)
	if err != nil {
		return MutationResult{}, err
	}
	kind := domain.ActionCreatePost
	switch {
	case d.ReplyTo != nil:
		kind = domain.ActionCreateReply
	case d.Quote != nil:
		kind = domain.ActionCreateQuote
	}
	conf, err := c.remote.Mutate(ctx, s, domain.Action{Kind: kind, Draft: d, AllowRetry: allowRetry})
	if err != nil {
		return MutationResult{}, err
	}

	account := s.AccountID()
	out := MutationResult{Account: account, Confirmation: conf, HasPost: true}
	posts, err := c.remote.FetchPosts(ctx, s, []string{conf.RecordURI})
	if err == nil && len(posts) > 0 {
		out.Post = posts[0]
	} else {
		if err != nil {
			c.logger.Debug("created post not fetched", "uri", conf.RecordURI, "error", err)
		}
		out.Post = domain.Post{
			URI:       conf.RecordURI,
			CID:       conf.RecordCID,
			Author:    domain.Actor{DID: s.DID, Handle: s.Handle},
			Text:      d.Text,
			Reply:     d.ReplyTo,
			CreatedAt: conf.At,
			IndexedAt: conf.At,
		}
	}
	warnCache(ctx, c.cache.SavePosts(account, []domain.Post{out.Post}))

	if d.ReplyTo != nil {
		c.bumpCount(ctx, account, d.ReplyTo.Parent.URI, func(p *domain.Post) { p.ReplyCount++ })
	}
	if d.Quote != nil {
		c.bumpCount(ctx, account, d.Quote.URI, func(p *domain.Post) { p.QuoteCount++ })
	}
	return out, nil
}

func (c *Core) bumpCount(ctx context.Context, account, uri string, fn func(*domain.Post)) {
	_, _, err := c.cache.UpdatePost(account, uri, func(p *domain.Post) bool {
		fn(p)
		return true
	})
	warnCache(ctx, err)
}

// Delete removes one of the viewer's posts.
func (c *Core) Delete(ref domain.PostRef) (coordinator.Handle, error) {
	s, err := c.active()
	if err != nil {
		return coordinator.Handle{}, err
	}
	return c.coord.Submit(StreamMutations, coordinator.KindMutation, func(ctx context.Context) (any, error) {
		s, err := c.ensureFresh(ctx, s)
		if err != nil {
			return nil, err
		}
		conf, err := c.remote.Mutate(ctx, s, domain.Action{Kind: domain.ActionDeletePost, Subject: ref})
		if err != nil {
			return nil, err
		}
		account := s.AccountID()
		warnCache(ctx, c.cache.Delete(account, store.KindPost, ref.URI))
		return MutationResult{Account: account, Confirmation: conf, Deleted: ref.URI}, nil
	})
}

func (c *Core) applyMutation(p MutationResult, u *Update) {
	u.Confirmation = &p.Confirmation
	if p.Account != c.account {
		return
	}
	if p.Deleted != "" {
		for _, v := range c.views {
			v.Remove(p.Deleted)
		}
		return
	}
	if p.HasPost {
		for _, v := range c.views {
			v.UpdatePost(p.Post)
		}
	}
}
