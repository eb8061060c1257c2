// Package atproto is the typed client for the ATproto XRPC surface used by
// the app: sessions, timelines, profiles, notifications and record writes.
package atproto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	baseRetryDelay     = 250 * time.Millisecond
	maxRetryDelay      = 2 * time.Second
	maxErrorBody       = 4 << 10
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL     string
	Timeout     time.Duration // per attempt
	MaxAttempts int           // total attempts for retryable calls
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger

	// OnRefresh is called with every session produced by an implicit
	// refresh so the owner can publish it.
	OnRefresh func(*domain.Session)
}

// Client implements domain.Remote over HTTPS.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	onRefresh   func(*domain.Session)
	now         func() time.Time

	refreshes singleflight.Group
	rotateMu  sync.Mutex
	rotated   map[string]rotation // by DID, latest rotation only
}

// rotation records the session a refresh token was traded for.
type rotation struct {
	from string
	to   *domain.Session
}

var _ domain.Remote = (*Client)(nil)

// NewClient creates a new XRPC client
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		httpClient:  httpClient,
		logger:      logger,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
		onRefresh:   opts.OnRefresh,
		now:         time.Now,
		rotated:     make(map[string]rotation),
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = baseRetryDelay
	}
	if c.maxDelay < c.baseDelay {
		c.maxDelay = maxRetryDelay
	}
	return c
}

// xrpcCall describes one query or procedure invocation.
type xrpcCall struct {
	method     string
	nsid       string
	query      url.Values
	body       any
	token      string
	service    string // overrides the client base URL (session PDS)
	idempotent bool   // safe to resend after a transport failure
}

// doRequest performs an XRPC call and decodes the JSON response into out.
// Transient failures are retried with exponential backoff up to maxAttempts.
func (c *Client) doRequest(ctx context.Context, call xrpcCall, out any) error {
	base := c.baseURL
	if call.service != "" {
		base = strings.TrimRight(call.service, "/")
	}
	reqURL := base + "/xrpc/" + call.nsid
	if len(call.query) > 0 {
		reqURL += "?" + call.query.Encode()
	}

	var payload []byte
	if call.body != nil {
		var err error
		payload, err = json.Marshal(call.body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", call.nsid, err)
		}
	}

	attempts := 1
	if call.idempotent {
		attempts = c.maxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", domain.ErrNetwork, ctx.Err())
		}

		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Debug("retrying request", "nsid", call.nsid, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", domain.ErrNetwork, ctx.Err())
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, call.method, reqURL, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if call.token != "" {
			req.Header.Set("Authorization", "Bearer "+call.token)
		}

		c.logger.Debug("xrpc request", "method", call.method, "nsid", call.nsid, "attempt", attempt)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %s: %w", domain.ErrNetwork, call.nsid, err)
			if !transientTransport(ctx, err) {
				return lastErr
			}
			c.logger.Warn("xrpc transport error", "nsid", call.nsid, "attempt", attempt, "error", err)
			continue
		}

		err = c.handleResponse(resp, call.nsid, out)
		if err == nil {
			return nil
		}
		var re *domain.RemoteError
		if errors.As(err, &re) && retryableStatus(re.Status) {
			lastErr = err
			c.logger.Warn("xrpc server error, will retry",
				"status", re.Status,
				"nsid", call.nsid,
				"attempt", attempt,
				"maxAttempts", attempts,
			)
			continue
		}
		return err
	}

	c.logger.Error("xrpc request failed after retries", "nsid", call.nsid, "error", lastErr)
	return lastErr
}

func (c *Client) handleResponse(resp *http.Response, nsid string, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read %s response: %w", domain.ErrNetwork, nsid, err)
		}
		if len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrDecode, nsid, err)
		}
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var xe xrpcErrorDTO
	_ = json.Unmarshal(body, &xe)

	re := &domain.RemoteError{
		Status:  resp.StatusCode,
		Code:    xe.Error,
		Message: xe.Message,
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		xe.Error == "ExpiredToken", xe.Error == "InvalidToken", xe.Error == "AuthenticationRequired":
		re.Kind = domain.ErrAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		re.Kind = domain.ErrRateLimited
		re.RetryAfter = rateLimitReset(resp.Header, c.now())
	case resp.StatusCode == http.StatusNotFound,
		xe.Error == "NotFound", xe.Error == "RecordNotFound",
		strings.Contains(strings.ToLower(xe.Message), "not found"):
		re.Kind = domain.ErrNotFound
	case retryableStatus(resp.StatusCode):
		re.Kind = domain.ErrNetwork
	}
	c.logger.Debug("xrpc error response", "nsid", nsid, "status", resp.StatusCode, "code", xe.Error)
	return re
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay * time.Duration(1<<(attempt-1))
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// transientTransport reports whether a transport error is worth another attempt.
// A cancelled or expired caller context is final.
func transientTransport(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "connection refused")
}

// rateLimitReset reads the reset hint from ratelimit-reset (unix seconds)
// or Retry-After (seconds).
func rateLimitReset(h http.Header, now time.Time) time.Time {
	if v := h.Get("ratelimit-reset"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(secs, 0)
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}
	return time.Time{}
}

// authed runs fn with the session's access token. An auth-class failure
// triggers exactly one refresh followed by exactly one retry.
func (c *Client) authed(ctx context.Context, s *domain.Session, fn func(*domain.Session) error) error {
	if s == nil {
		return domain.ErrNotAuthenticated
	}
	err := fn(s)
	if err == nil || !errors.Is(err, domain.ErrAuth) || s.RefreshJWT == "" {
		return err
	}

	c.logger.Info("access token rejected, refreshing session", "did", s.DID)
	fresh, rerr := c.Refresh(ctx, s)
	if rerr != nil {
		return rerr
	}
	if c.onRefresh != nil {
		c.onRefresh(fresh)
	}
	return fn(fresh)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
