package domain

import (
	"time"
)

// Session is the authenticated identity of the running instance.
// Values are immutable once published; refresh produces a new Session.
type Session struct {
	DID              string    // Account identifier (did:plc:...)
	Handle           string    // Human-readable handle
	AccessJWT        string    // Short-lived bearer token
	RefreshJWT       string    // Long-lived token used for refreshSession
	Service          string    // PDS endpoint the tokens were issued by
	AccessExpiresAt  time.Time // Zero when the token carries no exp claim
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
}

// AccountID returns the cache namespace for this session.
func (s *Session) AccountID() string {
	if s == nil {
		return ""
	}
	return s.DID
}

// AccessExpired reports whether the access token is known to expire before now+skew.
func (s *Session) AccessExpired(now time.Time, skew time.Duration) bool {
	if s == nil || s.AccessExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(s.AccessExpiresAt)
}

// PostRef is the canonical identity of a post: (URI, CID).
type PostRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Key returns a stable string form of the identity, usable as a map or cache key.
func (r PostRef) Key() string {
	return r.URI + "|" + r.CID
}

// IsZero reports whether the reference is empty.
func (r PostRef) IsZero() bool {
	return r.URI == "" && r.CID == ""
}

// ReplyRef points at the thread root and the direct parent of a reply.
type ReplyRef struct {
	Root   PostRef `json:"root"`
	Parent PostRef `json:"parent"`
}

// Actor is the compact author view embedded in posts and notifications.
type Actor struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// Name returns the display name, falling back to the handle.
func (a Actor) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Handle
}

// ViewerState holds the record URIs of the viewer's own like and repost.
// An empty string means "not liked" / "not reposted".
type ViewerState struct {
	Like   string `json:"like,omitempty"`
	Repost string `json:"repost,omitempty"`
}

// Post is a single feed entry.
type Post struct {
	URI         string      `json:"uri"`
	CID         string      `json:"cid"`
	Author      Actor       `json:"author"`
	Text        string      `json:"text"`
	Facets      []Facet     `json:"facets,omitempty"`
	Embed       *Embed      `json:"embed,omitempty"`
	Reply       *ReplyRef   `json:"reply,omitempty"` // Set when the post is itself a reply
	ReplyCount  int         `json:"reply_count"`
	RepostCount int         `json:"repost_count"`
	LikeCount   int         `json:"like_count"`
	QuoteCount  int         `json:"quote_count"`
	Viewer      ViewerState `json:"viewer"`
	CreatedAt   time.Time   `json:"created_at"`
	IndexedAt   time.Time   `json:"indexed_at"`

	// Feed context, only populated for timeline entries
	RepostedBy   *Actor    `json:"reposted_by,omitempty"`
	RepostedAt   time.Time `json:"reposted_at,omitempty"`
	ParentAuthor *Actor    `json:"parent_author,omitempty"`

	// Set locally when a like, repost or reply by the viewer lands.
	// Copies fetched by requests issued before it carry older engagement.
	MutatedAt time.Time `json:"mutated_at,omitzero"`
}

// Ref returns the canonical identity of the post.
func (p Post) Ref() PostRef {
	return PostRef{URI: p.URI, CID: p.CID}
}

// SortTime is the timestamp a post is ordered by inside a feed.
// Reposts sort by the time of the repost.
func (p Post) SortTime() time.Time {
	if p.RepostedBy != nil && !p.RepostedAt.IsZero() {
		return p.RepostedAt
	}
	return p.IndexedAt
}

// MutatedAfter reports whether a local mutation landed after t.
func (p Post) MutatedAfter(t time.Time) bool {
	return !p.MutatedAt.IsZero() && p.MutatedAt.After(t)
}

// KeepEngagement copies the viewer state, counters and mutation stamp of
// local over p, leaving the content fields of p alone.
func (p *Post) KeepEngagement(local Post) {
	p.ReplyCount = local.ReplyCount
	p.RepostCount = local.RepostCount
	p.LikeCount = local.LikeCount
	p.QuoteCount = local.QuoteCount
	p.Viewer = local.Viewer
	p.MutatedAt = local.MutatedAt
}

// Liked reports whether the viewer has liked the post.
func (p Post) Liked() bool { return p.Viewer.Like != "" }

// Reposted reports whether the viewer has reposted the post.
func (p Post) Reposted() bool { return p.Viewer.Repost != "" }

// FacetKind identifies the rich-text feature a facet marks.
type FacetKind string

const (
	FacetLink    FacetKind = "link"
	FacetMention FacetKind = "mention"
	FacetTag     FacetKind = "tag"
)

// Facet annotates a UTF-8 byte range of the post text.
type Facet struct {
	ByteStart int       `json:"byte_start"`
	ByteEnd   int       `json:"byte_end"`
	Kind      FacetKind `json:"kind"`
	Value     string    `json:"value"` // URI for links, DID for mentions, tag text for tags
}

// EmbedKind identifies the shape of an Embed.
type EmbedKind string

const (
	EmbedImages          EmbedKind = "images"
	EmbedExternal        EmbedKind = "external"
	EmbedRecord          EmbedKind = "record"
	EmbedRecordWithMedia EmbedKind = "record_with_media"
	EmbedVideo           EmbedKind = "video"
)

// Embed is the media or record attached to a post.
type Embed struct {
	Kind     EmbedKind       `json:"kind"`
	Images   []Image         `json:"images,omitempty"`
	External *External       `json:"external,omitempty"`
	Record   *EmbeddedRecord `json:"record,omitempty"`
	Video    *Video          `json:"video,omitempty"`
	Media    *Embed          `json:"media,omitempty"` // record_with_media only
}

type Image struct {
	Thumb    string `json:"thumb"`
	Fullsize string `json:"fullsize"`
	Alt      string `json:"alt,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

type External struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Thumb       string `json:"thumb,omitempty"`
}

// EmbeddedRecord is a quoted post. Missing is set when the quoted post
// was deleted or is blocked.
type EmbeddedRecord struct {
	URI       string    `json:"uri"`
	CID       string    `json:"cid"`
	Author    Actor     `json:"author"`
	Text      string    `json:"text,omitempty"`
	IndexedAt time.Time `json:"indexed_at,omitempty"`
	Missing   bool      `json:"missing,omitempty"`
}

type Video struct {
	Playlist  string `json:"playlist"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Alt       string `json:"alt,omitempty"`
}

// ProfileViewer holds the viewer's relationship to a profile.
type ProfileViewer struct {
	Following  string `json:"following,omitempty"`   // follow record URI
	FollowedBy string `json:"followed_by,omitempty"` // their follow record URI
	Muted      bool   `json:"muted,omitempty"`
	BlockedBy  bool   `json:"blocked_by,omitempty"`
}

// Profile is the detailed view of an actor.
type Profile struct {
	DID            string        `json:"did"`
	Handle         string        `json:"handle"`
	DisplayName    string        `json:"display_name,omitempty"`
	Description    string        `json:"description,omitempty"`
	Avatar         string        `json:"avatar,omitempty"`
	Banner         string        `json:"banner,omitempty"`
	FollowersCount int           `json:"followers_count"`
	FollowsCount   int           `json:"follows_count"`
	PostsCount     int           `json:"posts_count"`
	Viewer         ProfileViewer `json:"viewer"`
	IndexedAt      time.Time     `json:"indexed_at,omitempty"`
}

// Actor returns the compact view of the profile.
func (p Profile) Actor() Actor {
	return Actor{DID: p.DID, Handle: p.Handle, DisplayName: p.DisplayName, Avatar: p.Avatar}
}

// NotificationReason is why a notification was generated.
type NotificationReason string

const (
	ReasonLike    NotificationReason = "like"
	ReasonRepost  NotificationReason = "repost"
	ReasonFollow  NotificationReason = "follow"
	ReasonMention NotificationReason = "mention"
	ReasonReply   NotificationReason = "reply"
	ReasonQuote   NotificationReason = "quote"
)

// Notification is one entry of the notification list. URI is its identity.
type Notification struct {
	URI           string             `json:"uri"`
	CID           string             `json:"cid"`
	Author        Actor              `json:"author"`
	Reason        NotificationReason `json:"reason"`
	ReasonSubject string             `json:"reason_subject,omitempty"`
	Text          string             `json:"text,omitempty"`
	IsRead        bool               `json:"is_read"`
	IndexedAt     time.Time          `json:"indexed_at"`
}

// Page is one cursor-delimited slice of a remote collection.
type Page[T any] struct {
	Items         []T
	Cursor        string  // Continuation for the next (older) page, empty at the end
	RequestCursor string    // Cursor this page was requested with, empty for the head
	RequestedAt   time.Time // When the request was issued
	DecodeErrors  []error   // Items dropped while decoding
}

// IsHead reports whether the page was requested from the top of the collection.
func (p Page[T]) IsHead() bool {
	return p.RequestCursor == ""
}

// Feed is the persisted and displayed state of one timeline stream.
type Feed struct {
	Key        string    `json:"key"`
	Posts      []Post    `json:"posts"`
	Cursor     string    `json:"cursor"` // Oldest continuation cursor
	HasMore    bool      `json:"has_more"`
	Generation uint64    `json:"generation"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Head returns the topmost post, if any.
func (f Feed) Head() (Post, bool) {
	if len(f.Posts) == 0 {
		return Post{}, false
	}
	return f.Posts[0], true
}

// Stream keys for the logical request streams.
const (
	StreamHome          = "home"
	StreamNotifications = "notifications"
)

// ProfileStream returns the stream key for a profile view.
func ProfileStream(actor string) string {
	return "profile:" + actor
}
