package keys

import (
	"context"
	"errors"
	"testing"

	"github.com/edgefirst-dev/jwt/storage"
)

// scriptedStore replays fixed listing pages and serves Get from values.
type scriptedStore struct {
	pages  []storage.ListResult
	values map[string][]byte
	calls  []storage.ListOptions
}

func (s *scriptedStore) List(_ context.Context, o storage.ListOptions) (storage.ListResult, error) {
	s.calls = append(s.calls, o)
	idx := len(s.calls) - 1
	if idx >= len(s.pages) {
		return storage.ListResult{}, errors.New("listed past the last page")
	}
	return s.pages[idx], nil
}

func (s *scriptedStore) Get(_ context.Context, k string) ([]byte, error) {
	v, ok := s.values[k]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (s *scriptedStore) Set(context.Context, string, []byte) error { return nil }

func collect(t *testing.T, store storage.Adapter) []string {
	t.Helper()
	var out []string
	for blob, err := range Scan(context.Background(), store, "p:", 0) {
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, string(blob))
	}
	return out
}

func TestScanSinglePageWithoutCursor(t *testing.T) {
	s := &scriptedStore{
		pages:  []storage.ListResult{{Entries: []storage.Entry{{Key: "p:a"}}}},
		values: map[string][]byte{"p:a": []byte("A")},
	}
	if got := collect(t, s); len(got) != 1 || got[0] != "A" {
		t.Fatalf("got %v", got)
	}
	if len(s.calls) != 1 || s.calls[0].Limit != DefaultPageSize || s.calls[0].Cursor != "" {
		t.Fatalf("unexpected list calls %+v", s.calls)
	}
}

func TestScanFollowsCursorThroughEmptyPages(t *testing.T) {
	s := &scriptedStore{
		pages: []storage.ListResult{
			{Entries: []storage.Entry{{Key: "p:a"}}, Cursor: "1"},
			{Cursor: "2"},
			{Entries: []storage.Entry{{Key: "p:b"}, {Key: "p:a"}}, Cursor: "3"},
			{Entries: []storage.Entry{{Key: "p:gone"}, {Key: "p:c"}}},
		},
		values: map[string][]byte{"p:a": []byte("A"), "p:b": []byte("B"), "p:c": []byte("C")},
	}
	got := collect(t, s)
	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Fatalf("got %v", got)
	}
	for i, want := range []string{"", "1", "2", "3"} {
		if s.calls[i].Cursor != want {
			t.Fatalf("call %d cursor = %q, want %q", i, s.calls[i].Cursor, want)
		}
	}
}

func TestScanStopsWhenConsumerBreaks(t *testing.T) {
	s := &scriptedStore{
		pages: []storage.ListResult{
			{Entries: []storage.Entry{{Key: "p:a"}}, Cursor: "1"},
			{Entries: []storage.Entry{{Key: "p:b"}}},
		},
		values: map[string][]byte{"p:a": []byte("A"), "p:b": []byte("B")},
	}
	for range Scan(context.Background(), s, "p:", 1) {
		break
	}
	if len(s.calls) != 1 {
		t.Fatalf("expected scan to stop after first page, listed %d times", len(s.calls))
	}
}

func TestScanYieldsStorageErrorLast(t *testing.T) {
	s := &scriptedStore{pages: []storage.ListResult{{Cursor: "1"}}}
	var errs []error
	for _, err := range Scan(context.Background(), s, "p:", 1) {
		errs = append(errs, err)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrStorage) {
		t.Fatalf("expected one ErrStorage, got %v", errs)
	}
}
