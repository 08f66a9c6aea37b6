package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/edgefirst-dev/jwt/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every error returned by the Redis client other than redis.Nil.
var ErrRedisUnavailable = errors.New("redis unavailable")

const (
	defaultScanCount = 100
	lockRetryMin     = 10 * time.Millisecond
	lockRetryMax     = 250 * time.Millisecond
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var unlockLua = redis.NewScript(unlockScript)

// Store is a Redis-backed storage.Adapter.
//
// Listing uses SCAN, so the cursor is Redis's own iteration cursor and pages may be
// empty before the iteration finishes. Keys are namespaced with an optional prefix that
// is stripped again from listing results.
//
//	Performance: List is one SCAN, Get one GET, Set one SET.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

var (
	_ storage.Adapter = (*Store)(nil)
	_ storage.Locker  = (*Store)(nil)
)

// NewStore creates a Store backed by client. A non-empty prefix is joined to every key
// with ":".
func NewStore(client redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  client,
		prefix: strings.TrimSuffix(prefix, ":"),
	}
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *Store) unkey(k string) string {
	if s.prefix == "" {
		return k
	}
	return strings.TrimPrefix(k, s.prefix+":")
}

// List runs one SCAN step matching opts.Prefix. opts.Limit is passed as COUNT, which
// bounds buckets visited rather than keys returned: with a small Limit a full listing
// walks the whole database a few keys per round trip.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (storage.ListResult, error) {
	var cursor uint64
	if opts.Cursor != "" {
		c, err := strconv.ParseUint(opts.Cursor, 10, 64)
		if err != nil {
			return storage.ListResult{}, fmt.Errorf("invalid scan cursor %q: %w", opts.Cursor, err)
		}
		cursor = c
	}
	count := int64(opts.Limit)
	if count <= 0 {
		count = defaultScanCount
	}

	keys, next, err := s.redis.Scan(ctx, cursor, escapeGlob(s.key(opts.Prefix))+"*", count).Result()
	if err != nil {
		return storage.ListResult{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	res := storage.ListResult{Entries: make([]storage.Entry, 0, len(keys))}
	for _, k := range keys {
		res.Entries = append(res.Entries, storage.Entry{Key: s.unkey(k)})
	}
	if next != 0 {
		res.Cursor = strconv.FormatUint(next, 10)
	}
	return res, nil
}

// Get returns the value stored under key or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return data, nil
}

// Set stores value under key without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.redis.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Lock takes a SET NX PX lock, polling with capped backoff until it succeeds or ctx is done.
// The returned unlock only deletes the key while it still holds this caller's token.
func (s *Store) Lock(ctx context.Context, key string, ttl time.Duration) (storage.UnlockFunc, error) {
	lockKey := s.key(key)
	token := uuid.NewString()
	wait := lockRetryMin

	for {
		ok, err := s.redis.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, storage.ErrLocked
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := unlockLua.Run(ctx, s.redis, []string{lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
					return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
				}
				return nil
			}, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, storage.ErrLocked
		case <-timer.C:
		}
		wait *= 2
		if wait > lockRetryMax {
			wait = lockRetryMax
		}
	}
}

func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
