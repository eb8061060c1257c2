package domain

import "context"

// Authenticator creates and renews sessions.
type Authenticator interface {
	Authenticate(ctx context.Context, identifier, password string) (*Session, error)
	Refresh(ctx context.Context, s *Session) (*Session, error)
	DeleteSession(ctx context.Context, s *Session) error
}

// TimelineSource pages through the home timeline.
type TimelineSource interface {
	FetchTimeline(ctx context.Context, s *Session, cursor string, limit int) (Page[Post], error)
}

// ProfileSource reads actor profiles and posts.
type ProfileSource interface {
	FetchProfile(ctx context.Context, s *Session, actor string) (Profile, error)
	FetchAuthorFeed(ctx context.Context, s *Session, actor, cursor string, limit int) (Page[Post], error)
	FetchPosts(ctx context.Context, s *Session, uris []string) ([]Post, error)
}

// NotificationSource pages through notifications and marks them seen.
type NotificationSource interface {
	FetchNotifications(ctx context.Context, s *Session, cursor string, limit int) (Page[Notification], error)
	UpdateSeen(ctx context.Context, s *Session) error
}

// Mutator applies write actions on behalf of a session.
type Mutator interface {
	Mutate(ctx context.Context, s *Session, a Action) (Confirmation, error)
}

// CredentialProvider persists the secret needed to resume a session.
// Store and Retrieve return ErrSecretsUnavailable when the backing
// facility cannot be used; Retrieve returns ErrNotFound when nothing is stored.
type CredentialProvider interface {
	Store(accountID string, secret []byte) error
	Retrieve(accountID string) ([]byte, error)
	Clear(accountID string) error
}

// Remote groups every capability of the protocol client.
type Remote interface {
	Authenticator
	TimelineSource
	ProfileSource
	NotificationSource
	Mutator
	ResolveHandle(ctx context.Context, s *Session, handle string) (string, error)
}
