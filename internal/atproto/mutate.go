package atproto

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
)

// Mutate performs a write action as the given session. Create actions are
// sent once unless the caller set AllowRetry.
func (c *Client) Mutate(ctx context.Context, s *domain.Session, a domain.Action) (domain.Confirmation, error) {
	if s == nil {
		return domain.Confirmation{}, domain.ErrNotAuthenticated
	}
	conf := domain.Confirmation{Kind: a.Kind, Subject: a.Subject}
	createdAt := c.now().UTC().Format(time.RFC3339Nano)

	var rec createRecordResponse
	var err error
	switch a.Kind {
	case domain.ActionLike, domain.ActionRepost:
		collection := collectionLike
		if a.Kind == domain.ActionRepost {
			collection = collectionRepost
		}
		if a.Subject.URI == "" || a.Subject.CID == "" {
			return conf, fmt.Errorf("%s: %w: subject reference", a.Kind, domain.ErrNotFound)
		}
		rec, err = c.createRecord(ctx, s, collection, subjectRecordDTO{
			Type:      collection,
			Subject:   strongRefDTO{URI: a.Subject.URI, CID: a.Subject.CID},
			CreatedAt: createdAt,
		}, true)

	case domain.ActionUnlike, domain.ActionUnrepost:
		collection := collectionLike
		if a.Kind == domain.ActionUnrepost {
			collection = collectionRepost
		}
		err = c.deleteRecord(ctx, s, collection, a.RecordURI)

	case domain.ActionDeletePost:
		err = c.deleteRecord(ctx, s, collectionPost, a.Subject.URI)

	case domain.ActionCreatePost, domain.ActionCreateReply, domain.ActionCreateQuote:
		var record postRecordDTO
		record, err = c.buildPostRecord(ctx, s, a, createdAt)
		if err == nil {
			rec, err = c.createRecord(ctx, s, collectionPost, record, a.AllowRetry)
		}

	default:
		return conf, fmt.Errorf("unsupported action %d", a.Kind)
	}
	if err != nil {
		return conf, fmt.Errorf("%s: %w", a.Kind, err)
	}

	conf.RecordURI = rec.URI
	conf.RecordCID = rec.CID
	conf.At = c.now()
	c.logger.Debug("mutation applied", "action", a.Kind.String(), "subject", a.Subject.URI, "record", rec.URI)
	return conf, nil
}

func (c *Client) buildPostRecord(ctx context.Context, s *domain.Session, a domain.Action, createdAt string) (postRecordDTO, error) {
	d := a.Draft
	if strings.TrimSpace(d.Text) == "" && d.Quote == nil {
		return postRecordDTO{}, fmt.Errorf("empty post")
	}
	record := postRecordDTO{
		Type:      collectionPost,
		Text:      d.Text,
		Facets:    facetsToWire(c.resolveMentions(ctx, s, DetectFacets(d.Text))),
		Langs:     d.Langs,
		CreatedAt: createdAt,
	}

	switch a.Kind {
	case domain.ActionCreateReply:
		if d.ReplyTo == nil || d.ReplyTo.Parent.URI == "" {
			return postRecordDTO{}, fmt.Errorf("reply without parent")
		}
		root := d.ReplyTo.Root
		if root.URI == "" {
			root = d.ReplyTo.Parent
		}
		record.Reply = &replyRefDTO{
			Root:   strongRefDTO{URI: root.URI, CID: root.CID},
			Parent: strongRefDTO{URI: d.ReplyTo.Parent.URI, CID: d.ReplyTo.Parent.CID},
		}
	case domain.ActionCreateQuote:
		q := d.Quote
		if q == nil {
			q = &a.Subject
		}
		if q.URI == "" || q.CID == "" {
			return postRecordDTO{}, fmt.Errorf("quote without subject")
		}
		record.Embed = embedRecordDTO{
			Type:   "app.bsky.embed.record",
			Record: strongRefDTO{URI: q.URI, CID: q.CID},
		}
	}
	return record, nil
}

func (c *Client) createRecord(ctx context.Context, s *domain.Session, collection string, record any, retry bool) (createRecordResponse, error) {
	var resp createRecordResponse
	err := c.authed(ctx, s, func(cur *domain.Session) error {
		return c.doRequest(ctx, xrpcCall{
			method:     http.MethodPost,
			nsid:       nsidCreateRecord,
			body:       createRecordRequest{Repo: cur.DID, Collection: collection, Record: record},
			token:      cur.AccessJWT,
			service:    cur.Service,
			idempotent: retry,
		}, &resp)
	})
	return resp, err
}

// deleteRecord removes the record at uri. Deleting a record that is already
// gone succeeds, which keeps unlike and unrepost idempotent.
func (c *Client) deleteRecord(ctx context.Context, s *domain.Session, collection, uri string) error {
	rkey, err := RecordKey(uri)
	if err != nil {
		return err
	}
	err = c.authed(ctx, s, func(cur *domain.Session) error {
		return c.doRequest(ctx, xrpcCall{
			method:     http.MethodPost,
			nsid:       nsidDeleteRecord,
			body:       deleteRecordRequest{Repo: cur.DID, Collection: collection, Rkey: rkey},
			token:      cur.AccessJWT,
			service:    cur.Service,
			idempotent: true,
		}, nil)
	})
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// RecordKey returns the rkey segment of at://<repo>/<collection>/<rkey>.
func RecordKey(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return "", fmt.Errorf("%w: not an at:// uri: %q", domain.ErrNotFound, uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] == "" {
		return "", fmt.Errorf("%w: malformed record uri: %q", domain.ErrNotFound, uri)
	}
	return parts[2], nil
}

// WebURL returns the bsky.app address of a post, for opening outside the
// client. The author handle is preferred over the DID when known.
func WebURL(p domain.Post) (string, error) {
	rkey, err := RecordKey(p.URI)
	if err != nil {
		return "", err
	}
	actor := p.Author.Handle
	if actor == "" || actor == "handle.invalid" {
		actor = p.Author.DID
	}
	if actor == "" {
		repo, _, _ := strings.Cut(strings.TrimPrefix(p.URI, "at://"), "/")
		actor = repo
	}
	return "https://bsky.app/profile/" + actor + "/post/" + rkey, nil
}
