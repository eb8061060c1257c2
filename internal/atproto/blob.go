package atproto

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mmcdole/hangar/internal/domain"
)

const maxImageBytes = 8 << 20

// FetchImage downloads an image from the CDN. CDN URLs are public, so no
// session is attached and no retries are attempted.
func (c *Client) FetchImage(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch image: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode >= 500:
		return nil, &domain.RemoteError{Status: resp.StatusCode, Message: "image fetch failed", Kind: domain.ErrNetwork}
	case resp.StatusCode >= 400:
		return nil, &domain.RemoteError{Status: resp.StatusCode, Message: "image fetch rejected", Kind: domain.ErrNotFound}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read image: %v", domain.ErrNetwork, err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	c.logger.Debug("image fetched", "url", rawURL, "bytes", len(data))
	return data, nil
}
