// Package memory provides an in-process storage.Adapter.
//
// It is intended for tests, examples, and single-process deployments that do not need
// durability across restarts.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/edgefirst-dev/jwt/storage"
)

const defaultPageSize = 100

// Store is a mutex-guarded map implementing storage.Adapter and storage.Locker.
//
// Listing cursors are the last key of the previous page, so keys written while a
// listing is in progress are observed when they sort after the cursor.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte

	lockMu  sync.Mutex
	locks   map[string]*heldLock
	lockSeq uint64
}

type heldLock struct {
	token   uint64
	expires time.Time
	release chan struct{}
}

var (
	_ storage.Adapter = (*Store)(nil)
	_ storage.Locker  = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		values: make(map[string][]byte),
		locks:  make(map[string]*heldLock),
	}
}

// List returns up to opts.Limit keys that start with opts.Prefix and sort after opts.Cursor.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (storage.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.ListResult{}, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		if !strings.HasPrefix(k, opts.Prefix) {
			continue
		}
		if opts.Cursor != "" && k <= opts.Cursor {
			continue
		}
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	slices.Sort(keys)

	var res storage.ListResult
	if len(keys) > limit {
		keys = keys[:limit]
		res.Cursor = keys[len(keys)-1]
	}
	res.Entries = make([]storage.Entry, 0, len(keys))
	for _, k := range keys {
		res.Entries = append(res.Entries, storage.Entry{Key: k})
	}
	return res, nil
}

// Get returns a copy of the stored value or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(v), nil
}

// Set stores a copy of value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.values[key] = slices.Clone(value)
	s.mu.Unlock()
	return nil
}

// Delete removes key. Missing keys are ignored.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
}

// Len reports how many keys are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Lock acquires the named lock, waiting for the current holder to release it or for
// its ttl to lapse.
func (s *Store) Lock(ctx context.Context, key string, ttl time.Duration) (storage.UnlockFunc, error) {
	for {
		s.lockMu.Lock()
		held, ok := s.locks[key]
		if ok && time.Now().After(held.expires) {
			close(held.release)
			delete(s.locks, key)
			ok = false
		}
		if !ok {
			s.lockSeq++
			l := &heldLock{
				token:   s.lockSeq,
				expires: time.Now().Add(ttl),
				release: make(chan struct{}),
			}
			s.locks[key] = l
			s.lockMu.Unlock()
			return s.unlocker(key, l.token), nil
		}
		wait := held.release
		remaining := time.Until(held.expires)
		s.lockMu.Unlock()

		timer := time.NewTimer(remaining)
		select {
		case <-wait:
			timer.Stop()
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, storage.ErrLocked
		}
	}
}

func (s *Store) unlocker(key string, token uint64) storage.UnlockFunc {
	return func(context.Context) error {
		s.lockMu.Lock()
		defer s.lockMu.Unlock()
		held, ok := s.locks[key]
		if !ok || held.token != token {
			return nil
		}
		close(held.release)
		delete(s.locks, key)
		return nil
	}
}
