package service

import (
	"context"

	"github.com/mmcdole/hangar/internal/domain"
)

// collectPages follows cursors until limit items are gathered or the
// collection ends. Decode errors of every page are returned alongside.
func collectPages[T any](
	ctx context.Context,
	fetch func(ctx context.Context, cursor string) (domain.Page[T], error),
	limit int,
) ([]T, []error, error) {
	var all []T
	var decodeErrs []error
	cursor := ""

	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		page, err := fetch(ctx, cursor)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, page.Items...)
		decodeErrs = append(decodeErrs, page.DecodeErrors...)

		if len(all) >= limit || page.Cursor == "" || len(page.Items) == 0 {
			break
		}
		cursor = page.Cursor
	}

	if len(all) > limit {
		all = all[:limit]
	}
	return all, decodeErrs, nil
}
