package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestDispatcherDisabledReturnsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher should be nil")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports drops")
	}
	if got := d.DroppedByCategory(); len(got) != len(Categories) || got["key"] != 0 {
		t.Fatalf("nil dispatcher categories = %v", got)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for range 10 {
		d.Emit(context.Background(), Event{EventType: "key.generated"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink")
	}
	close(sink.release)
	d.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if uint64(len(sink.got))+d.Dropped() != 10 {
		t.Fatalf("delivered %d + dropped %d != 10", len(sink.got), d.Dropped())
	}
}

func TestDispatcherFlushesOnClose(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	for range 3 {
		d.Emit(context.Background(), Event{EventType: "key.rotated"})
	}
	d.Close()
	d.Emit(context.Background(), Event{EventType: "after-close"})

	timeout := time.After(time.Second)
	for i := range 3 {
		select {
		case e := <-sink.Events():
			if e.EventType != "key.rotated" {
				t.Fatalf("event %d = %q", i, e.EventType)
			}
		case <-timeout:
			t.Fatalf("only %d events delivered", i)
		}
	}
	select {
	case e := <-sink.Events():
		t.Fatalf("event emitted after close was delivered: %v", e)
	default:
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{EventType: "key.generated", Purpose: "signing", KeyID: "k1", Success: true})
	s.Emit(context.Background(), Event{EventType: "token.verify_failed", Error: "expired"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["kid"] != "k1" || first["purpose"] != "signing" {
		t.Fatalf("unexpected event %v", first)
	}
}

// parkedSink signals when the dispatcher loop enters Emit and holds it there.
type parkedSink struct {
	entered chan struct{}
	release chan struct{}
}

func newParkedSink() *parkedSink {
	return &parkedSink{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (s *parkedSink) Emit(context.Context, Event) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
}

// fillQueue parks the loop on one event and fills the single queue slot with another.
func fillQueue(t *testing.T, d *Dispatcher, sink *parkedSink) {
	t.Helper()
	d.Emit(context.Background(), Event{EventType: "key.generated"})
	select {
	case <-sink.entered:
	case <-time.After(time.Second):
		t.Fatal("dispatcher loop never reached the sink")
	}
	d.Emit(context.Background(), Event{EventType: "key.generated"})
}

func TestDispatcherCountsDropsPerCategory(t *testing.T) {
	sink := newParkedSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	fillQueue(t, d, sink)

	for range 3 {
		d.Emit(context.Background(), Event{EventType: "token.verify_failed"})
	}
	d.Emit(context.Background(), Event{EventType: "jwks.fetch_failed"})

	got := d.DroppedByCategory()
	want := map[string]uint64{"key": 0, "token": 3, "jwks": 1, "other": 0}
	for name, n := range want {
		if got[name] != n {
			t.Fatalf("drops = %v, want %v", got, want)
		}
	}
	if d.Dropped() != 4 {
		t.Fatalf("total drops = %d", d.Dropped())
	}
	close(sink.release)
	d.Close()
}

func TestDispatcherCancelledEmitCountsDrop(t *testing.T) {
	sink := newParkedSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	fillQueue(t, d, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Emit(ctx, Event{EventType: "key.rotated"})
	if d.DroppedByCategory()["key"] != 1 {
		t.Fatalf("cancelled emit on a full queue: drops = %v", d.DroppedByCategory())
	}
	close(sink.release)
	d.Close()
}

func TestDispatcherStampsMissingTimestamp(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Now: func() time.Time { return fixed }}, sink)

	explicit := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	d.Emit(context.Background(), Event{EventType: "key.generated"})
	d.Emit(context.Background(), Event{EventType: "key.rotated", Timestamp: explicit})
	d.Close()

	first, second := <-sink.Events(), <-sink.Events()
	if !first.Timestamp.Equal(fixed) || first.Timestamp.Location() != time.UTC {
		t.Fatalf("stamped timestamp = %v", first.Timestamp)
	}
	if !second.Timestamp.Equal(explicit) {
		t.Fatalf("explicit timestamp overwritten: %v", second.Timestamp)
	}
}

func TestCategoryOf(t *testing.T) {
	tests := map[string]Category{
		"key.generated":       CategoryKey,
		"key.generation_race": CategoryKey,
		"token.verify_failed": CategoryToken,
		"jwks.fetch_failed":   CategoryJWKS,
		"keys.generated":      CategoryOther,
		"":                    CategoryOther,
	}
	for eventType, want := range tests {
		if got := CategoryOf(eventType); got != want {
			t.Fatalf("CategoryOf(%q) = %s, want %s", eventType, got, want)
		}
	}
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONWriterSinkCountsFailures(t *testing.T) {
	s := NewJSONWriterSink(brokenWriter{})
	s.Emit(context.Background(), Event{EventType: "key.generated"})
	s.Emit(context.Background(), Event{EventType: "key.rotated"})
	if s.Failures() != 2 {
		t.Fatalf("failures = %d", s.Failures())
	}

	NewJSONWriterSink(nil).Emit(context.Background(), Event{EventType: "key.generated"})
}
