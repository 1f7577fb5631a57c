package bus

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
)

var ErrClosed = errors.New("event bus closed")

// Bus is the coalescing channel between services and the store. At most
// one pending event is buffered per coalescing key; a newer event for
// the same key replaces an unconsumed older one, which bounds memory
// under fast producers and a slow consumer. Events with an empty key are
// never coalesced. Per-key publish order is preserved: keys are drained
// in order of their oldest pending publish.
type Bus struct {
	mu      sync.Mutex
	pending map[string]models.Event
	order   []string
	seq     uint64
	closed  bool
	notify  chan struct{}
	metrics repository.Metrics
}

// New creates an empty bus.
func New(metrics repository.Metrics) *Bus {
	return &Bus{
		pending: make(map[string]models.Event),
		notify:  make(chan struct{}, 1),
		metrics: metrics,
	}
}

// Publish enqueues an event without blocking. A pending event with the
// same coalescing key is replaced.
func (b *Bus) Publish(ev models.Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	key := ev.CoalesceKey()
	if key == "" {
		b.seq++
		key = "\x00" + strconv.FormatUint(b.seq, 10)
	}
	if _, ok := b.pending[key]; ok {
		b.metrics.RecordCoalesced(ev.Kind())
	} else {
		b.order = append(b.order, key)
	}
	b.pending[key] = ev
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// Next blocks until an event is available or the context is done. It
// returns the latest event for the key that has been pending longest.
func (b *Bus) Next(ctx context.Context) (models.Event, error) {
	for {
		b.mu.Lock()
		if len(b.order) > 0 {
			key := b.order[0]
			b.order = b.order[1:]
			ev := b.pending[key]
			delete(b.pending, key)
			b.mu.Unlock()
			return ev, nil
		}
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.notify:
		}
	}
}

// Len returns the number of pending events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Close stops the bus from accepting new events. Pending events remain
// drainable.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
