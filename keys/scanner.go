package keys

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/edgefirst-dev/jwt/storage"
)

// DefaultPageSize is the listing page size used by Scan. Stores with strict page limits
// are always satisfied by one entry per page.
const DefaultPageSize = 1

// Scan lists every key under prefix and yields each stored blob.
//
// The sequence is finite and lazy; stopping early abandons the listing and a new call
// starts again from the beginning. Entries that disappear between listing and fetch are
// skipped. Keys repeated by the backend (Redis SCAN may do this) are yielded once.
// A storage failure is yielded as the final element, wrapped in ErrStorage.
func Scan(ctx context.Context, store storage.Adapter, prefix string, pageSize int) iter.Seq2[[]byte, error] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return func(yield func([]byte, error) bool) {
		seen := make(map[string]struct{})
		cursor := ""
		for {
			page, err := store.List(ctx, storage.ListOptions{Prefix: prefix, Cursor: cursor, Limit: pageSize})
			if err != nil {
				yield(nil, fmt.Errorf("%w: list %q: %w", ErrStorage, prefix, err))
				return
			}

			for _, entry := range page.Entries {
				if _, dup := seen[entry.Key]; dup {
					continue
				}
				seen[entry.Key] = struct{}{}

				blob, err := store.Get(ctx, entry.Key)
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				if err != nil {
					yield(nil, fmt.Errorf("%w: get %q: %w", ErrStorage, entry.Key, err))
					return
				}
				if !yield(blob, nil) {
					return
				}
			}

			if page.Cursor == "" {
				return
			}
			cursor = page.Cursor
		}
	}
}
