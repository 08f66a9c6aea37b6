package jwt

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/edgefirst-dev/jwt/storage/memory"
	"github.com/go-logr/logr/testr"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// newTestIssuer builds an Issuer over an in-memory store. mutate may adjust the builder
// before Build.
func newTestIssuer(t *testing.T, mutate func(*Builder)) *Issuer {
	t.Helper()

	b := New().WithStorage(memory.New()).WithLogger(testr.New(t))
	if mutate != nil {
		mutate(b)
	}
	iss, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(iss.Close)
	return iss
}
