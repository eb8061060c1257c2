package atproto

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mmcdole/hangar/internal/domain"
)

// Authenticate exchanges a handle (or email) and app password for a session.
func (c *Client) Authenticate(ctx context.Context, identifier, password string) (*domain.Session, error) {
	identifier = strings.TrimPrefix(strings.TrimSpace(identifier), "@")
	if identifier == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	var dto sessionDTO
	err := c.doRequest(ctx, xrpcCall{
		method:     http.MethodPost,
		nsid:       nsidCreateSession,
		body:       createSessionRequest{Identifier: identifier, Password: password},
		idempotent: true,
	}, &dto)
	if err != nil {
		var re *domain.RemoteError
		if errors.As(err, &re) && (errors.Is(err, domain.ErrAuth) || re.Status == http.StatusBadRequest) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCredentials, re.Code)
		}
		return nil, err
	}

	s, err := mapSession(dto, c.baseURL)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = c.now()
	c.logger.Info("session created", "did", s.DID, "handle", s.Handle, "service", s.Service)
	return s, nil
}

// Refresh trades the session's refresh token for a new session.
// Concurrent refreshes of the same session collapse into one request, and
// a session that was already rotated returns its successor.
func (c *Client) Refresh(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	if s == nil || s.RefreshJWT == "" {
		return nil, domain.ErrNotAuthenticated
	}
	if next, ok := c.successor(s); ok {
		return next, nil
	}

	v, err, shared := c.refreshes.Do(s.RefreshJWT, func() (any, error) {
		var dto sessionDTO
		err := c.doRequest(ctx, xrpcCall{
			method:     http.MethodPost,
			nsid:       nsidRefreshSession,
			token:      s.RefreshJWT,
			service:    s.Service,
			idempotent: true,
		}, &dto)
		if err != nil {
			return nil, err
		}
		fresh, err := mapSession(dto, s.Service)
		if err != nil {
			return nil, err
		}
		if fresh.DID != s.DID {
			return nil, fmt.Errorf("%w: refresh returned a different account", domain.ErrAuth)
		}
		fresh.CreatedAt = c.now()
		c.rotateMu.Lock()
		c.rotated[s.DID] = rotation{from: s.RefreshJWT, to: fresh}
		c.rotateMu.Unlock()
		return fresh, nil
	})
	if err != nil {
		c.logger.Warn("session refresh failed", "did", s.DID, "error", err)
		return nil, err
	}
	fresh := v.(*domain.Session)
	c.logger.Debug("session refreshed", "did", fresh.DID, "shared", shared)
	return fresh, nil
}

// successor returns the session s was last rotated into. Only the most
// recent rotation per account is remembered.
func (c *Client) successor(s *domain.Session) (*domain.Session, bool) {
	c.rotateMu.Lock()
	defer c.rotateMu.Unlock()
	r, ok := c.rotated[s.DID]
	if !ok || r.from != s.RefreshJWT {
		return nil, false
	}
	return r.to, true
}

// DeleteSession revokes the refresh token server-side.
func (c *Client) DeleteSession(ctx context.Context, s *domain.Session) error {
	if s == nil || s.RefreshJWT == "" {
		return nil
	}
	return c.doRequest(ctx, xrpcCall{
		method:  http.MethodPost,
		nsid:    nsidDeleteSession,
		token:   s.RefreshJWT,
		service: s.Service,
	}, nil)
}

// ResolveHandle returns the DID a handle points at.
func (c *Client) ResolveHandle(ctx context.Context, s *domain.Session, handle string) (string, error) {
	query := url.Values{}
	query.Set("handle", strings.TrimPrefix(handle, "@"))

	var resp resolveHandleResponse
	err := c.authed(ctx, s, func(cur *domain.Session) error {
		return c.doRequest(ctx, xrpcCall{
			method:     http.MethodGet,
			nsid:       nsidResolveHandle,
			query:      query,
			token:      cur.AccessJWT,
			service:    cur.Service,
			idempotent: true,
		}, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.DID == "" {
		return "", domain.ErrNotFound
	}
	return resp.DID, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client only needs it to schedule refreshes.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time.UTC()
}
