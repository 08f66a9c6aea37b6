package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("storage: key not found")

// ErrLocked is returned by Locker implementations when the lock is held elsewhere
// and could not be acquired before the context was done.
var ErrLocked = errors.New("storage: lock held")

// Entry is one key returned by a listing page.
type Entry struct {
	Key string
}

// ListOptions selects one page of a prefix listing.
//
// An empty Cursor starts from the beginning of the prefix. Limit <= 0 lets the adapter
// pick its own page size.
type ListOptions struct {
	Prefix string
	Cursor string
	Limit  int
}

// ListResult is one listing page. Cursor is empty when the listing is complete.
type ListResult struct {
	Entries []Entry
	Cursor  string
}

// Adapter is the durable key-value store consumed by the key lifecycle manager.
//
// Implementations must be safe for concurrent use.
type Adapter interface {
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// UnlockFunc releases a lock obtained from a Locker.
type UnlockFunc func(ctx context.Context) error

// Locker is implemented by adapters that can provide a mutual-exclusion primitive.
//
// Lock blocks until the lock is acquired, ctx is done, or the adapter gives up.
// The lock expires on its own after ttl so a crashed holder cannot wedge other callers.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
