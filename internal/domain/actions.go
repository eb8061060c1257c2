package domain

import "time"

// ActionKind enumerates the mutations the client can perform.
type ActionKind int

const (
	ActionLike ActionKind = iota + 1
	ActionUnlike
	ActionRepost
	ActionUnrepost
	ActionCreatePost
	ActionCreateReply
	ActionCreateQuote
	ActionDeletePost
)

func (k ActionKind) String() string {
	switch k {
	case ActionLike:
		return "like"
	case ActionUnlike:
		return "unlike"
	case ActionRepost:
		return "repost"
	case ActionUnrepost:
		return "unrepost"
	case ActionCreatePost:
		return "create_post"
	case ActionCreateReply:
		return "create_reply"
	case ActionCreateQuote:
		return "create_quote"
	case ActionDeletePost:
		return "delete_post"
	default:
		return "unknown"
	}
}

// Creates reports whether the action creates a new post. Those actions are
// not idempotent and must not be retried without caller consent.
func (k ActionKind) Creates() bool {
	return k == ActionCreatePost || k == ActionCreateReply || k == ActionCreateQuote
}

// Action is a single mutation request.
type Action struct {
	Kind       ActionKind
	Subject    PostRef // Post being liked, reposted, quoted or deleted
	RecordURI  string  // Like or repost record to delete for Unlike/Unrepost
	Draft      Draft   // Content for the create actions
	AllowRetry bool    // Caller consents to retrying a create on transport failure
}

// Draft is the content of a post being composed.
type Draft struct {
	Text    string
	Langs   []string
	ReplyTo *ReplyRef // Set for replies
	Quote   *PostRef  // Set for quote posts
}

// Confirmation is the server acknowledgement of a mutation.
type Confirmation struct {
	Kind      ActionKind
	Subject   PostRef
	RecordURI string // URI of the created like/repost/post record, empty for deletes
	RecordCID string
	Noop      bool // The action was already in effect and no request was made
	At        time.Time
}
