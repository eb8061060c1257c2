package service

import (
	"context"
	"sort"

	"github.com/mmcdole/hangar/internal/coordinator"
	"github.com/mmcdole/hangar/internal/domain"
)

// NotificationsPage is the payload of a notifications fetch.
type NotificationsPage struct {
	Account string
	Mode    FetchMode
	Page    domain.Page[domain.Notification]
	Items   []domain.Notification // FetchCached only
}

type notificationsSeen struct {
	Account string
}

// NotificationSnapshot is the displayed notification list.
type NotificationSnapshot struct {
	Items   []domain.Notification
	Unread  int
	HasMore bool
}

type notificationState struct {
	items   []domain.Notification
	cursor  string
	hasMore bool
	loaded  bool
}

// merge adds incoming items, replacing known ones, newest first.
func (n *notificationState) merge(incoming []domain.Notification) {
	index := make(map[string]int, len(n.items))
	for i, item := range n.items {
		index[item.URI] = i
	}
	for _, item := range incoming {
		if i, ok := index[item.URI]; ok {
			n.items[i] = item
			continue
		}
		index[item.URI] = len(n.items)
		n.items = append(n.items, item)
	}
	sort.SliceStable(n.items, func(i, j int) bool {
		a, b := n.items[i], n.items[j]
		if !a.IndexedAt.Equal(b.IndexedAt) {
			return a.IndexedAt.After(b.IndexedAt)
		}
		return a.URI > b.URI
	})
}

func (n *notificationState) markRead() {
	for i := range n.items {
		n.items[i].IsRead = true
	}
}

// isMention reports whether a notification addresses the viewer directly.
func isMention(n domain.Notification) bool {
	switch n.Reason {
	case domain.ReasonMention, domain.ReasonReply, domain.ReasonQuote:
		return true
	}
	return false
}

func (c *Core) notificationsTask(s *domain.Session, cursor string, mode FetchMode) coordinator.Task {
	return func(ctx context.Context) (any, error) {
		s, err := c.ensureFresh(ctx, s)
		if err != nil {
			return nil, err
		}
		page, err := c.remote.FetchNotifications(ctx, s, cursor, c.pageSize)
		if err != nil {
			return nil, err
		}
		for _, derr := range page.DecodeErrors {
			coordinator.Warn(ctx, derr)
		}
		account := s.AccountID()
		warnCache(ctx, c.cache.SaveNotifications(account, page.Items))
		return NotificationsPage{Account: account, Mode: mode, Page: page}, nil
	}
}

func (c *Core) applyNotifications(p NotificationsPage, u *Update) {
	if p.Account != c.account {
		u.Stale = true
		return
	}
	n := &c.notes
	switch p.Mode {
	case FetchCached:
		if !n.loaded {
			n.merge(p.Items)
		}
		return
	case FetchRefresh:
		*n = notificationState{}
		n.merge(p.Page.Items)
		n.cursor, n.hasMore = p.Page.Cursor, p.Page.Cursor != ""
	case FetchMore:
		n.merge(p.Page.Items)
		n.cursor, n.hasMore = p.Page.Cursor, p.Page.Cursor != ""
	case FetchPoll:
		before := len(n.items)
		n.merge(p.Page.Items)
		if !n.loaded {
			n.cursor, n.hasMore = p.Page.Cursor, p.Page.Cursor != ""
		}
		u.NewCount = len(n.items) - before
	}
	n.loaded = true
	for _, item := range p.Page.Items {
		c.rememberActor(item.Author)
	}
}

// Notifications returns the loaded notifications, optionally only those
// that mention, reply to or quote the viewer.
func (c *Core) Notifications(mentionsOnly bool) NotificationSnapshot {
	c.syncAccount()
	snap := NotificationSnapshot{HasMore: c.notes.hasMore}
	for _, n := range c.notes.items {
		if mentionsOnly && !isMention(n) {
			continue
		}
		if !n.IsRead {
			snap.Unread++
		}
		snap.Items = append(snap.Items, n)
	}
	return snap
}

// MarkSeen marks every notification read, remotely and in the cache.
func (c *Core) MarkSeen() (coordinator.Handle, error) {
	s, err := c.active()
	if err != nil {
		return coordinator.Handle{}, err
	}
	return c.coord.Submit(domain.StreamNotifications, coordinator.KindMutation, func(ctx context.Context) (any, error) {
		s, err := c.ensureFresh(ctx, s)
		if err != nil {
			return nil, err
		}
		if err := c.remote.UpdateSeen(ctx, s); err != nil {
			return nil, err
		}
		account := s.AccountID()
		warnCache(ctx, c.cache.MarkNotificationsRead(account))
		return notificationsSeen{Account: account}, nil
	})
}
