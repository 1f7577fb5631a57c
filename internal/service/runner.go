package service

import (
	"context"
	"sync"
	"time"

	"TapeDeck/internal/bus"
	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
	"TapeDeck/pkg/logger"
)

// TickFunc does one iteration of a service loop: fetch, transform,
// publish. Errors are recoverable; they are reported and the loop keeps
// ticking. Only cancellation terminates the loop.
type TickFunc func(ctx context.Context) error

// Runner implements the Service lifecycle around a tick loop. The loop
// suspends on wait-for-tick-or-cancellation; Pause parks it between
// ticks and returns only after the park is acknowledged, so a paused
// runner emits no further events.
type Runner struct {
	name     string
	interval time.Duration
	tick     TickFunc
	bus      *bus.Bus
	log      *logger.Logger
	metrics  repository.Metrics

	mu       sync.Mutex
	phase    Phase
	cancel   context.CancelFunc
	done     chan struct{}
	pauseReq chan pauseRequest
	resume   chan struct{}
	kick     chan struct{}
}

type pauseRequest struct {
	ack    chan struct{}
	resume chan struct{}
}

// NewRunner builds a runner; the concrete services supply the tick.
func NewRunner(name string, interval time.Duration, tick TickFunc, b *bus.Bus, log *logger.Logger, metrics repository.Metrics) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		tick:     tick,
		bus:      b,
		log:      log,
		metrics:  metrics,
		kick:     make(chan struct{}, 1),
	}
}

func (r *Runner) Name() string { return r.name }

// Phase returns the current lifecycle phase.
func (r *Runner) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Start launches the loop. Start on a running service is a no-op.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.phase {
	case PhaseRunning:
		return nil
	case PhaseStopped:
	default:
		return ErrInvalidTransition
	}

	r.phase = PhaseStarting
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.pauseReq = make(chan pauseRequest)
	go r.loop(ctx, r.done, r.pauseReq)
	r.phase = PhaseRunning
	r.log.Info("service started", logger.String("service", r.name))
	return nil
}

// Pause parks the loop between ticks and waits for the acknowledgment.
// After Pause returns nil the service publishes nothing until Resume.
func (r *Runner) Pause(ctx context.Context) error {
	r.mu.Lock()
	switch r.phase {
	case PhasePaused:
		r.mu.Unlock()
		return nil
	case PhaseRunning:
	default:
		r.mu.Unlock()
		return ErrInvalidTransition
	}
	req := pauseRequest{ack: make(chan struct{}), resume: make(chan struct{})}
	pauseCh := r.pauseReq
	done := r.done
	r.mu.Unlock()

	select {
	case pauseCh <- req:
	case <-done:
		return ErrInvalidTransition
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.ack:
	case <-done:
		return ErrInvalidTransition
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	r.phase = PhasePaused
	r.resume = req.resume
	r.mu.Unlock()
	r.log.Info("service paused", logger.String("service", r.name))
	return nil
}

// Resume unparks a paused loop.
func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.phase {
	case PhaseRunning:
		return nil
	case PhasePaused:
	default:
		return ErrInvalidTransition
	}
	close(r.resume)
	r.resume = nil
	r.phase = PhaseRunning
	r.log.Info("service resumed", logger.String("service", r.name))
	return nil
}

// Stop cancels the loop and waits for it to exit. Safe from any phase.
// A context deadline bounds the wait; expiry is a forced, logged
// degradation, not an error.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.phase == PhaseStopped {
		r.mu.Unlock()
		return nil
	}
	r.phase = PhaseStopping
	if r.resume != nil {
		close(r.resume)
		r.resume = nil
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			r.log.Warn("service stop timed out, forcing", logger.String("service", r.name))
			r.metrics.RecordError("service_stop_timeout")
		}
	}

	r.mu.Lock()
	r.phase = PhaseStopped
	r.cancel = nil
	r.mu.Unlock()
	r.log.Info("service stopped", logger.String("service", r.name))
	return nil
}

// Kick requests an immediate tick, e.g. right after the watchlist
// changes. No-op unless running.
func (r *Runner) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *Runner) loop(ctx context.Context, done chan struct{}, pauseReq chan pauseRequest) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// first tick immediately so startup is not one interval behind
	r.runTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-pauseReq:
			close(req.ack)
			select {
			case <-req.resume:
				ticker.Reset(r.interval)
			case <-ctx.Done():
				return
			}
		case <-r.kick:
			r.runTick(ctx)
		case <-ticker.C:
			r.runTick(ctx)
		}
	}
}

func (r *Runner) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := r.tick(ctx); err != nil && ctx.Err() == nil {
		r.log.Warn("service tick failed", logger.String("service", r.name), logger.Error(err))
		r.metrics.RecordError("tick_" + r.name)
		if r.bus != nil {
			_ = r.bus.Publish(models.ErrorOccurred{
				Code:    models.ErrCodeServiceError,
				Message: r.name + ": " + err.Error(),
				At:      time.Now(),
			})
		}
	}
	r.metrics.RecordLatency("tick_"+r.name, time.Since(start).Seconds())
}
