package service

import (
	"context"
	"errors"

	"github.com/mmcdole/hangar/internal/coordinator"
)

// ImageResult is the payload of an image load.
type ImageResult struct {
	Account string
	URL     string
	Data    []byte
	Cached  bool
}

// Image loads an image blob, from the cache when possible.
func (c *Core) Image(url string) (coordinator.Handle, error) {
	s, err := c.active()
	if err != nil {
		return coordinator.Handle{}, err
	}
	if c.images == nil {
		return coordinator.Handle{}, errors.New("image loading not configured")
	}
	account := s.AccountID()
	return c.coord.Submit(StreamImages, coordinator.KindFetch, func(ctx context.Context) (any, error) {
		data, ok, err := c.cache.GetImage(account, url)
		warnCache(ctx, err)
		if ok {
			return ImageResult{Account: account, URL: url, Data: data, Cached: true}, nil
		}
		data, err = c.images.FetchImage(ctx, url)
		if err != nil {
			return nil, err
		}
		warnCache(ctx, c.cache.PutImage(account, url, data))
		return ImageResult{Account: account, URL: url, Data: data}, nil
	})
}
