package overlay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/store"
)

// Entry is one user-visible notice with its display deadline.
type Entry struct {
	Code    string    `json:"code"`
	Symbol  string    `json:"symbol,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Overlay aggregates the warning feed: store alerts plus collected log
// bursts. It keeps a bounded recent window for the status API; old
// entries age out rather than accumulate.
type Overlay struct {
	ttl time.Duration
	max int

	mu       sync.Mutex
	entries  []Entry
	last     models.ErrorOccurred
	tracking bool

	sub *store.Subscription
}

// New creates an overlay keeping at most max entries for ttl each.
func New(ttl time.Duration, max int) *Overlay {
	return &Overlay{ttl: ttl, max: max}
}

// Watch subscribes to the store alert feed and mirrors new alerts into
// the overlay until ctx is done.
func (o *Overlay) Watch(ctx context.Context, st *store.Store) {
	o.sub = st.Subscribe(func(s models.AppState) interface{} {
		return s.Alerts
	})
	defer st.Unsubscribe(o.sub)

	for {
		select {
		case <-ctx.Done():
			return
		case v := <-o.sub.C:
			alerts, ok := v.([]models.ErrorOccurred)
			if !ok {
				continue
			}
			o.ingest(alerts)
		}
	}
}

// ingest appends alerts not seen before. The store alert ring keeps a
// constant length once full while its content shifts, so the new tail
// is found by locating the last consumed alert rather than by count.
func (o *Overlay) ingest(alerts []models.ErrorOccurred) {
	o.mu.Lock()
	defer o.mu.Unlock()
	start := 0
	if o.tracking {
		for i := len(alerts) - 1; i >= 0; i-- {
			if alerts[i] == o.last {
				start = i + 1
				break
			}
		}
		// last consumed alert already scrolled off: replay what is there
	}
	for _, a := range alerts[start:] {
		o.append(Entry{Code: string(a.Code), Symbol: a.Symbol, Message: a.Message, At: a.At})
	}
	if len(alerts) > 0 {
		o.last = alerts[len(alerts)-1]
		o.tracking = true
	}
}

// PublishMessage lets the overlay serve as the log collector sink:
// aggregated warn/error bursts show up beside domain alerts.
func (o *Overlay) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.append(Entry{
		Code:    topic,
		Message: fmt.Sprintf("%v", payload),
		At:      time.Now(),
	})
	return nil
}

func (o *Overlay) append(e Entry) {
	o.entries = append(o.entries, e)
	if o.max > 0 && len(o.entries) > o.max {
		o.entries = o.entries[len(o.entries)-o.max:]
	}
}

// Recent returns the entries still inside the display window, newest
// last.
func (o *Overlay) Recent() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	cutoff := time.Now().Add(-o.ttl)
	out := make([]Entry, 0, len(o.entries))
	for _, e := range o.entries {
		if e.At.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}
