package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit discard events instead of waiting for queue space.
	DropIfFull bool
	// Now stamps events that arrive without a timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Dispatcher forwards events to a Sink from a single goroutine, so key lifecycle and
// verification paths never wait on sink I/O unless configured to.
//
// A nil *Dispatcher is valid and ignores every call.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	stop       chan struct{}
	drained    chan struct{}
	dropIfFull bool
	now        func() time.Time

	dropped   [categoryCount]atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		drained:    make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
		now:        now,
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.drained)

	ctx := context.Background()
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(ctx, ev)
		case <-d.stop:
			// Deliver what was queued before Close.
			for {
				select {
				case ev := <-d.queue:
					d.sink.Emit(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event. Events emitted after Close are discarded without counting as drops.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.dropped[event.Category()].Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped[event.Category()].Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events and waits until the queue is delivered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		<-d.drained
	})
}

// Dropped reports the total number of discarded events.
func (d *Dispatcher) Dropped() uint64 {
	var total uint64
	for _, n := range d.DroppedByCategory() {
		total += n
	}
	return total
}

// DroppedByCategory reports discarded events keyed by Category.String. Every category
// is present, zero or not.
func (d *Dispatcher) DroppedByCategory() map[string]uint64 {
	out := make(map[string]uint64, len(Categories))
	for _, c := range Categories {
		if d != nil {
			out[c.String()] = d.dropped[c].Load()
		} else {
			out[c.String()] = 0
		}
	}
	return out
}
