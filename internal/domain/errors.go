package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for core operations
var (
	// ErrNetwork indicates a transient transport failure (timeout, reset, 5xx gateway)
	ErrNetwork = errors.New("service is unreachable")

	// ErrAuth indicates the credentials or tokens were rejected
	ErrAuth = errors.New("authentication failed")

	// ErrInvalidCredentials indicates the handle/password pair was rejected at login
	ErrInvalidCredentials = fmt.Errorf("%w: invalid handle or app password", ErrAuth)

	// ErrRateLimited indicates the service asked the client to back off
	ErrRateLimited = errors.New("rate limited")

	// ErrDecode indicates a malformed payload or item
	ErrDecode = errors.New("malformed response")

	// ErrCache indicates a local storage failure
	ErrCache = errors.New("cache unavailable")

	// ErrNotFound indicates the referenced entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrNotAuthenticated indicates an operation needs a session and none is active
	ErrNotAuthenticated = errors.New("not logged in")

	// ErrSecretsUnavailable indicates the OS secret service cannot be used
	ErrSecretsUnavailable = errors.New("secret storage unavailable")

	// ErrQueueFull indicates the background queue cannot accept more work
	ErrQueueFull = errors.New("background queue is full")

	// ErrClosed indicates the runtime has been shut down
	ErrClosed = errors.New("runtime closed")
)

// RemoteError is a non-success XRPC response.
type RemoteError struct {
	Status     int       // HTTP status
	Code       string    // XRPC error name, e.g. "ExpiredToken"
	Message    string    // Server supplied message
	RetryAfter time.Time // Rate-limit reset hint, zero if absent
	Kind       error     // One of the sentinels above
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("xrpc %d", e.Status)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return e.Kind }

// DecodeError records one item dropped from a page.
type DecodeError struct {
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode item %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// CacheError wraps a storage failure with the operation that hit it.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() []error { return []error{ErrCache, e.Err} }

// Category is the user-facing class of a failure.
type Category string

const (
	CategoryNone           Category = ""
	CategoryConnectivity   Category = "connectivity"
	CategoryAuthentication Category = "authentication"
	CategoryRateLimited    Category = "rate-limited"
	CategoryUnknown        Category = "unknown"
)

// Categorize maps an error to the category shown to the user.
func Categorize(err error) Category {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, ErrAuth), errors.Is(err, ErrNotAuthenticated):
		return CategoryAuthentication
	case errors.Is(err, ErrRateLimited):
		return CategoryRateLimited
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return CategoryConnectivity
	default:
		return CategoryUnknown
	}
}

// UserMessage renders err without internal detail.
func UserMessage(err error) string {
	if errors.Is(err, ErrInvalidCredentials) {
		return "Invalid handle or app password."
	}
	switch Categorize(err) {
	case CategoryNone:
		return ""
	case CategoryConnectivity:
		return "Can't reach the service. Check your connection and try again."
	case CategoryAuthentication:
		return "Your session has expired. Please log in again."
	case CategoryRateLimited:
		var re *RemoteError
		if errors.As(err, &re) && !re.RetryAfter.IsZero() {
			return fmt.Sprintf("Too many requests. Try again after %s.", re.RetryAfter.Local().Format(time.Kitchen))
		}
		return "Too many requests. Try again shortly."
	default:
		return "Something went wrong."
	}
}
