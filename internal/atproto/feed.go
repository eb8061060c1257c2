package atproto

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
)

// getPostsBatch is the maximum number of URIs app.bsky.feed.getPosts accepts.
const getPostsBatch = 25

// query performs an authenticated, idempotent GET.
func (c *Client) query(ctx context.Context, s *domain.Session, nsid string, q url.Values, out any) error {
	return c.authed(ctx, s, func(cur *domain.Session) error {
		return c.doRequest(ctx, xrpcCall{
			method:     http.MethodGet,
			nsid:       nsid,
			query:      q,
			token:      cur.AccessJWT,
			service:    cur.Service,
			idempotent: true,
		}, out)
	})
}

func pageQuery(cursor string, limit int) url.Values {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// FetchTimeline returns one page of the home timeline.
func (c *Client) FetchTimeline(ctx context.Context, s *domain.Session, cursor string, limit int) (domain.Page[domain.Post], error) {
	return c.fetchFeed(ctx, s, nsidGetTimeline, pageQuery(cursor, limit), cursor)
}

// FetchAuthorFeed returns one page of an actor's posts and reposts.
func (c *Client) FetchAuthorFeed(ctx context.Context, s *domain.Session, actor, cursor string, limit int) (domain.Page[domain.Post], error) {
	q := pageQuery(cursor, limit)
	q.Set("actor", actor)
	return c.fetchFeed(ctx, s, nsidGetAuthorFeed, q, cursor)
}

func (c *Client) fetchFeed(ctx context.Context, s *domain.Session, nsid string, q url.Values, cursor string) (domain.Page[domain.Post], error) {
	var resp feedResponse
	if err := c.query(ctx, s, nsid, q, &resp); err != nil {
		return domain.Page[domain.Post]{}, err
	}
	posts, failures := decodeItems(resp.Feed, mapFeedItem, c.logger, nsid)
	return domain.Page[domain.Post]{
		Items:         posts,
		Cursor:        resp.Cursor,
		RequestCursor: cursor,
		DecodeErrors:  failures,
	}, nil
}

// FetchPosts hydrates posts by URI, batching to the endpoint limit.
// URIs the service no longer knows are omitted from the result.
func (c *Client) FetchPosts(ctx context.Context, s *domain.Session, uris []string) ([]domain.Post, error) {
	var out []domain.Post
	for start := 0; start < len(uris); start += getPostsBatch {
		end := min(start+getPostsBatch, len(uris))
		q := url.Values{}
		for _, uri := range uris[start:end] {
			q.Add("uris", uri)
		}
		var resp postsResponse
		if err := c.query(ctx, s, nsidGetPosts, q, &resp); err != nil {
			return nil, err
		}
		posts, _ := decodeItems(resp.Posts, mapPostRaw, c.logger, nsidGetPosts)
		out = append(out, posts...)
	}
	return out, nil
}

func mapPostRaw(raw json.RawMessage) (domain.Post, error) {
	var dto postViewDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return domain.Post{}, err
	}
	return mapPostView(dto)
}

// FetchProfile returns the detailed profile of an actor (DID or handle).
func (c *Client) FetchProfile(ctx context.Context, s *domain.Session, actor string) (domain.Profile, error) {
	q := url.Values{}
	q.Set("actor", actor)
	var dto profileDetailedDTO
	if err := c.query(ctx, s, nsidGetProfile, q, &dto); err != nil {
		return domain.Profile{}, err
	}
	return mapProfile(dto)
}

// FetchNotifications returns one page of notifications.
func (c *Client) FetchNotifications(ctx context.Context, s *domain.Session, cursor string, limit int) (domain.Page[domain.Notification], error) {
	var resp notificationsResponse
	if err := c.query(ctx, s, nsidListNotifications, pageQuery(cursor, limit), &resp); err != nil {
		return domain.Page[domain.Notification]{}, err
	}
	items, failures := decodeItems(resp.Notifications, mapNotification, c.logger, nsidListNotifications)
	return domain.Page[domain.Notification]{
		Items:         items,
		Cursor:        resp.Cursor,
		RequestCursor: cursor,
		DecodeErrors:  failures,
	}, nil
}

// UpdateSeen marks every notification up to now as read.
func (c *Client) UpdateSeen(ctx context.Context, s *domain.Session) error {
	seenAt := c.now().UTC().Format(time.RFC3339Nano)
	return c.authed(ctx, s, func(cur *domain.Session) error {
		return c.doRequest(ctx, xrpcCall{
			method:     http.MethodPost,
			nsid:       nsidUpdateSeen,
			body:       updateSeenRequest{SeenAt: seenAt},
			token:      cur.AccessJWT,
			service:    cur.Service,
			idempotent: true,
		}, nil)
	})
}
