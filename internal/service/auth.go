package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmcdole/hangar/internal/coordinator"
	"github.com/mmcdole/hangar/internal/domain"
)

// SessionChange is the payload of login, resume and logout.
type SessionChange struct {
	Session   *domain.Session // active session, nil after logout
	Previous  *domain.Session // session that was replaced or logged out
	Persisted bool            // the session was written to secret storage
	Actors    []domain.Actor  // cached profiles of the account, for mention suggestions
}

// Login authenticates and makes the new session active. If secret storage
// is unavailable the session stays usable in memory but will not survive
// a restart; Persisted reports which happened.
func (c *Core) Login(ctx context.Context, identifier, password string) (SessionChange, error) {
	s, err := c.remote.Authenticate(ctx, identifier, password)
	if err != nil {
		return SessionChange{}, err
	}
	prev := c.sessions.Current()
	if prev != nil && prev.DID != s.DID {
		c.cache.Pins().UnpinAccount(prev.AccountID())
	}
	c.coord.Generations().Reset()

	change := SessionChange{Session: s, Previous: prev, Persisted: true}
	if err := c.sessions.Set(s); err != nil {
		change.Persisted = false
		coordinator.Warn(ctx, err)
		c.logger.Warn("session kept in memory only", "did", s.DID, "error", err)
	}
	change.Actors = c.cachedActors(ctx, s.AccountID())
	return change, nil
}

// SubmitLogin runs Login on a worker.
func (c *Core) SubmitLogin(identifier, password string) (coordinator.Handle, error) {
	return c.coord.Submit(StreamSession, coordinator.KindMutation, func(ctx context.Context) (any, error) {
		return c.Login(ctx, identifier, password)
	})
}

// Resume restores the session saved by the last login, refreshing it when
// the access token has expired. Without connectivity the stored session is
// kept so cached data can be shown. It returns domain.ErrNotAuthenticated
// when there is nothing to resume.
func (c *Core) Resume(ctx context.Context) (SessionChange, error) {
	s, err := c.sessions.Resume()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SessionChange{}, domain.ErrNotAuthenticated
		}
		return SessionChange{}, fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, err)
	}
	c.coord.Generations().Reset()

	if s.AccessExpired(c.now(), c.skew) {
		fresh, err := c.remote.Refresh(ctx, s)
		switch {
		case err == nil:
			c.sessions.Publish(fresh)
			s = fresh
		case errors.Is(err, domain.ErrAuth):
			c.sessions.Clear()
			return SessionChange{}, fmt.Errorf("%w: stored session expired", domain.ErrNotAuthenticated)
		default:
			c.logger.Info("resuming offline", "did", s.DID, "error", err)
		}
	}
	return SessionChange{Session: s, Persisted: true, Actors: c.cachedActors(ctx, s.AccountID())}, nil
}

// SubmitResume runs Resume on a worker.
func (c *Core) SubmitResume() (coordinator.Handle, error) {
	return c.coord.Submit(StreamSession, coordinator.KindMutation, func(ctx context.Context) (any, error) {
		return c.Resume(ctx)
	})
}

// Logout forgets the active session, its stored secret and its cached
// data, then revokes the session server-side on a best-effort basis.
func (c *Core) Logout(ctx context.Context) (SessionChange, error) {
	s := c.sessions.Clear()
	if s == nil {
		return SessionChange{}, nil
	}
	c.coord.Generations().Reset()

	account := s.AccountID()
	c.cache.Pins().UnpinAccount(account)
	if err := c.cache.InvalidateAccount(account); err != nil {
		coordinator.Warn(ctx, err)
		c.logger.Warn("cached data not cleared", "account", account, "error", err)
	}
	if err := c.remote.DeleteSession(ctx, s); err != nil {
		c.logger.Info("server session not revoked", "did", s.DID, "error", err)
	}
	c.logger.Info("logged out", "did", s.DID)
	return SessionChange{Previous: s}, nil
}

// SubmitLogout runs Logout on a worker.
func (c *Core) SubmitLogout() (coordinator.Handle, error) {
	return c.coord.Submit(StreamSession, coordinator.KindMutation, func(ctx context.Context) (any, error) {
		return c.Logout(ctx)
	})
}
