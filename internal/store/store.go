package store

import (
	"context"
	"reflect"
	"sync"

	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
	"TapeDeck/pkg/logger"
)

// Store holds the canonical application state. All mutation flows
// through a single queue consumed by one goroutine, so reducers never
// race each other; services and the controller only ever propose events.
type Store struct {
	log     *logger.Logger
	metrics repository.Metrics

	mu    sync.RWMutex
	state models.AppState

	events chan envelope
	done   chan struct{}

	subMu   sync.Mutex
	subs    map[uint64]*Subscription
	nextSub uint64
}

type envelope struct {
	ev   models.Event
	done chan struct{}
}

// New creates a store seeded with the initial state.
func New(initial models.AppState, queueSize int, log *logger.Logger, metrics repository.Metrics) *Store {
	if queueSize <= 0 {
		queueSize = 256
	}
	if initial.Symbols == nil {
		initial.Symbols = make(map[string]models.SymbolState)
	}
	if initial.Portfolio.Positions == nil {
		initial.Portfolio.Positions = make(map[string]models.Position)
	}
	return &Store{
		log:     log,
		metrics: metrics,
		state:   initial,
		events:  make(chan envelope, queueSize),
		done:    make(chan struct{}),
		subs:    make(map[uint64]*Subscription),
	}
}

// Run consumes the mutation queue until the context is done. It must be
// called exactly once.
func (s *Store) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.events:
			s.apply(env.ev)
			if env.done != nil {
				close(env.done)
			}
		}
	}
}

// Dispatch enqueues an event for application in arrival order. It never
// blocks the caller: when the queue is full the event is dropped with a
// diagnostic, trading delivery for a bounded queue.
func (s *Store) Dispatch(ev models.Event) {
	select {
	case s.events <- envelope{ev: ev}:
	case <-s.done:
		s.log.Debug("dispatch after store stop", logger.String("kind", ev.Kind()))
	default:
		s.log.Warn("store queue full, dropping event", logger.String("kind", ev.Kind()))
		s.metrics.RecordEvent(ev.Kind(), false)
	}
}

// DispatchWait enqueues an event and blocks until it has been applied.
// Used by the mode manager to commit transitions in order.
func (s *Store) DispatchWait(ctx context.Context, ev models.Event) error {
	done := make(chan struct{})
	select {
	case s.events <- envelope{ev: ev, done: done}:
	case <-s.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state snapshot. Everything reachable from it
// must be treated as read-only.
func (s *Store) State() models.AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) apply(ev models.Event) {
	s.mu.Lock()
	prev := s.state

	if dropped, reason := gate(prev, ev); dropped {
		s.mu.Unlock()
		s.log.Debug("event dropped", logger.String("kind", ev.Kind()), logger.String("reason", reason))
		s.metrics.RecordEvent(ev.Kind(), false)
		return
	}

	next, known := reduce(prev, ev)
	if !known {
		s.mu.Unlock()
		s.log.Warn("unknown event shape dropped", logger.String("kind", ev.Kind()))
		s.metrics.RecordEvent(ev.Kind(), false)
		return
	}
	s.state = next
	s.mu.Unlock()

	s.metrics.RecordEvent(ev.Kind(), true)
	s.notify(next)
}

// gate enforces mode exclusion and watchlist membership. Live-service
// events must never mutate state while a backtest owns execution, and a
// symbol update for a removed symbol is a no-op.
func gate(state models.AppState, ev models.Event) (bool, string) {
	switch e := ev.(type) {
	case models.SymbolUpdated:
		if state.Mode == models.ModeBacktest {
			return true, "mode=backtest"
		}
		if !state.OnWatchlist(e.Symbol) {
			return true, "symbol not on watchlist"
		}
	case models.EquityUpdated, models.ScanResultsUpdated:
		if state.Mode == models.ModeBacktest {
			return true, "mode=backtest"
		}
	}
	return false, ""
}

// Subscription delivers selected state values. Delivery coalesces: the
// channel holds at most one value and a newer value replaces an
// unconsumed older one, so a slow reader always sees the freshest state.
type Subscription struct {
	C    chan interface{}
	id   uint64
	sel  func(models.AppState) interface{}
	last interface{}
}

// Subscribe registers a selector and returns the subscription with the
// current value already queued.
func (s *Store) Subscribe(sel func(models.AppState) interface{}) *Subscription {
	sub := &Subscription{
		C:   make(chan interface{}, 1),
		sel: sel,
	}
	cur := sel(s.State())
	sub.last = cur
	sub.C <- cur

	s.subMu.Lock()
	s.nextSub++
	sub.id = s.nextSub
	s.subs[sub.id] = sub
	s.subMu.Unlock()
	return sub
}

// Unsubscribe removes the subscription; its channel stops receiving.
func (s *Store) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	s.subMu.Lock()
	delete(s.subs, sub.id)
	s.subMu.Unlock()
}

func (s *Store) notify(state models.AppState) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subs {
		v := sub.sel(state)
		if reflect.DeepEqual(v, sub.last) {
			continue
		}
		sub.last = v
		select {
		case sub.C <- v:
		default:
			// replace the unconsumed older value
			select {
			case <-sub.C:
			default:
			}
			sub.C <- v
		}
	}
}
