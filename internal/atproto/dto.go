package atproto

import "encoding/json"

// Lexicon identifiers
const (
	nsidCreateSession     = "com.atproto.server.createSession"
	nsidRefreshSession    = "com.atproto.server.refreshSession"
	nsidDeleteSession     = "com.atproto.server.deleteSession"
	nsidResolveHandle     = "com.atproto.identity.resolveHandle"
	nsidCreateRecord      = "com.atproto.repo.createRecord"
	nsidDeleteRecord      = "com.atproto.repo.deleteRecord"
	nsidGetTimeline       = "app.bsky.feed.getTimeline"
	nsidGetAuthorFeed     = "app.bsky.feed.getAuthorFeed"
	nsidGetPosts          = "app.bsky.feed.getPosts"
	nsidGetProfile        = "app.bsky.actor.getProfile"
	nsidListNotifications = "app.bsky.notification.listNotifications"
	nsidUpdateSeen        = "app.bsky.notification.updateSeen"

	collectionPost   = "app.bsky.feed.post"
	collectionLike   = "app.bsky.feed.like"
	collectionRepost = "app.bsky.feed.repost"

	typeEmbedImages          = "app.bsky.embed.images#view"
	typeEmbedExternal        = "app.bsky.embed.external#view"
	typeEmbedRecord          = "app.bsky.embed.record#view"
	typeEmbedRecordWithMedia = "app.bsky.embed.recordWithMedia#view"
	typeEmbedVideo           = "app.bsky.embed.video#view"
	typeViewRecord           = "app.bsky.embed.record#viewRecord"
	typeReasonRepost         = "app.bsky.feed.defs#reasonRepost"

	typeFacetLink    = "app.bsky.richtext.facet#link"
	typeFacetMention = "app.bsky.richtext.facet#mention"
	typeFacetTag     = "app.bsky.richtext.facet#tag"
)

type xrpcErrorDTO struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// === Sessions ===

type createSessionRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type sessionDTO struct {
	DID        string          `json:"did"`
	Handle     string          `json:"handle"`
	AccessJwt  string          `json:"accessJwt"`
	RefreshJwt string          `json:"refreshJwt"`
	DidDoc     json.RawMessage `json:"didDoc,omitempty"`
}

type didDocDTO struct {
	Service []struct {
		ID              string `json:"id"`
		Type            string `json:"type"`
		ServiceEndpoint string `json:"serviceEndpoint"`
	} `json:"service"`
}

type resolveHandleResponse struct {
	DID string `json:"did"`
}

// === Actors ===

type profileBasicDTO struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

type profileDetailedDTO struct {
	DID            string `json:"did"`
	Handle         string `json:"handle"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	Avatar         string `json:"avatar"`
	Banner         string `json:"banner"`
	FollowersCount int    `json:"followersCount"`
	FollowsCount   int    `json:"followsCount"`
	PostsCount     int    `json:"postsCount"`
	IndexedAt      string `json:"indexedAt"`
	Viewer         *struct {
		Following  string `json:"following"`
		FollowedBy string `json:"followedBy"`
		Muted      bool   `json:"muted"`
		BlockedBy  bool   `json:"blockedBy"`
	} `json:"viewer"`
}

// === Feeds ===

type feedResponse struct {
	Cursor string            `json:"cursor"`
	Feed   []json.RawMessage `json:"feed"`
}

type postsResponse struct {
	Posts []json.RawMessage `json:"posts"`
}

type feedViewPostDTO struct {
	Post   postViewDTO `json:"post"`
	Reply  *struct {
		Parent struct {
			Type   string           `json:"$type"`
			Author *profileBasicDTO `json:"author"`
		} `json:"parent"`
	} `json:"reply,omitempty"`
	Reason *struct {
		Type      string          `json:"$type"`
		By        profileBasicDTO `json:"by"`
		IndexedAt string          `json:"indexedAt"`
	} `json:"reason,omitempty"`
}

type postViewDTO struct {
	URI         string          `json:"uri"`
	CID         string          `json:"cid"`
	Author      profileBasicDTO `json:"author"`
	Record      json.RawMessage `json:"record"`
	Embed       json.RawMessage `json:"embed,omitempty"`
	ReplyCount  int             `json:"replyCount"`
	RepostCount int             `json:"repostCount"`
	LikeCount   int             `json:"likeCount"`
	QuoteCount  int             `json:"quoteCount"`
	IndexedAt   string          `json:"indexedAt"`
	Viewer      *struct {
		Like   string `json:"like"`
		Repost string `json:"repost"`
	} `json:"viewer,omitempty"`
}

type strongRefDTO struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type replyRefDTO struct {
	Root   strongRefDTO `json:"root"`
	Parent strongRefDTO `json:"parent"`
}

type facetDTO struct {
	Index struct {
		ByteStart int `json:"byteStart"`
		ByteEnd   int `json:"byteEnd"`
	} `json:"index"`
	Features []facetFeatureDTO `json:"features"`
}

type facetFeatureDTO struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
	DID  string `json:"did,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

// postRecordDTO is the app.bsky.feed.post record, read and written.
type postRecordDTO struct {
	Type      string       `json:"$type"`
	Text      string       `json:"text"`
	Facets    []facetDTO   `json:"facets,omitempty"`
	Reply     *replyRefDTO `json:"reply,omitempty"`
	Embed     any          `json:"embed,omitempty"`
	Langs     []string     `json:"langs,omitempty"`
	CreatedAt string       `json:"createdAt"`
}

// postRecordReadDTO mirrors postRecordDTO with the embed left raw.
type postRecordReadDTO struct {
	Text      string       `json:"text"`
	Facets    []facetDTO   `json:"facets"`
	Reply     *replyRefDTO `json:"reply"`
	CreatedAt string       `json:"createdAt"`
}

type embedViewDTO struct {
	Type   string `json:"$type"`
	Images []struct {
		Thumb       string `json:"thumb"`
		Fullsize    string `json:"fullsize"`
		Alt         string `json:"alt"`
		AspectRatio *struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"aspectRatio"`
	} `json:"images"`
	External *struct {
		URI         string `json:"uri"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Thumb       string `json:"thumb"`
	} `json:"external"`
	Record    json.RawMessage `json:"record"`
	Media     json.RawMessage `json:"media"`
	Playlist  string          `json:"playlist"`
	Thumbnail string          `json:"thumbnail"`
	Alt       string          `json:"alt"`
}

type viewRecordDTO struct {
	Type      string          `json:"$type"`
	URI       string          `json:"uri"`
	CID       string          `json:"cid"`
	Author    profileBasicDTO `json:"author"`
	Value     json.RawMessage `json:"value"`
	IndexedAt string          `json:"indexedAt"`
	// recordWithMedia nests the view one level deeper
	Record json.RawMessage `json:"record"`
}

// === Notifications ===

type notificationsResponse struct {
	Cursor        string            `json:"cursor"`
	Notifications []json.RawMessage `json:"notifications"`
}

type notificationDTO struct {
	URI           string          `json:"uri"`
	CID           string          `json:"cid"`
	Author        profileBasicDTO `json:"author"`
	Reason        string          `json:"reason"`
	ReasonSubject string          `json:"reasonSubject"`
	Record        json.RawMessage `json:"record"`
	IsRead        bool            `json:"isRead"`
	IndexedAt     string          `json:"indexedAt"`
}

type updateSeenRequest struct {
	SeenAt string `json:"seenAt"`
}

// === Records ===

type createRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}

type deleteRecordRequest struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Rkey       string `json:"rkey"`
}

type createRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type subjectRecordDTO struct {
	Type      string       `json:"$type"`
	Subject   strongRefDTO `json:"subject"`
	CreatedAt string       `json:"createdAt"`
}

type embedRecordDTO struct {
	Type   string       `json:"$type"`
	Record strongRefDTO `json:"record"`
}
