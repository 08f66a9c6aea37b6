package audit

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// Event is a key lifecycle or token verification record.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Purpose   string            `json:"purpose,omitempty"`
	KeyID     string            `json:"kid,omitempty"`
	Subject   string            `json:"sub,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Category groups event types by the subsystem that produced them.
type Category uint8

const (
	CategoryKey Category = iota
	CategoryToken
	CategoryJWKS
	CategoryOther
	categoryCount
)

// Categories lists every Category in reporting order.
var Categories = [categoryCount]Category{CategoryKey, CategoryToken, CategoryJWKS, CategoryOther}

func (c Category) String() string {
	switch c {
	case CategoryKey:
		return "key"
	case CategoryToken:
		return "token"
	case CategoryJWKS:
		return "jwks"
	default:
		return "other"
	}
}

// CategoryOf classifies an event type by its dotted prefix: "key.rotated" is a key event.
func CategoryOf(eventType string) Category {
	prefix, _, _ := strings.Cut(eventType, ".")
	switch prefix {
	case "key":
		return CategoryKey
	case "token":
		return CategoryToken
	case "jwks":
		return CategoryJWKS
	default:
		return CategoryOther
	}
}

// Category returns the subsystem e belongs to.
func (e Event) Category() Category {
	return CategoryOf(e.EventType)
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a reader through a buffered channel. Emit blocks while the
// channel is full until ctx ends.
type ChannelSink struct {
	out chan Event
}

// NewChannelSink returns a ChannelSink holding up to buffer unread events.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{out: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.out <- event:
	case <-ctx.Done():
	}
}

// Events is the read side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.out
}

// JSONWriterSink writes one JSON object per line. Encoding or write failures are
// counted, not returned.
type JSONWriterSink struct {
	mu     sync.Mutex
	enc    *json.Encoder
	failed uint64
}

// NewJSONWriterSink returns a sink writing to w. A nil w discards events.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	s := &JSONWriterSink{}
	if w != nil {
		s.enc = json.NewEncoder(w)
	}
	return s
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(event); err != nil {
		s.failed++
	}
}

// Failures reports how many events could not be written.
func (s *JSONWriterSink) Failures() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}
