package mode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TapeDeck/internal/backtest"
	"TapeDeck/internal/bus"
	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
	"TapeDeck/internal/service"
	"TapeDeck/pkg/logger"
)

// ErrTransitionInProgress is returned when a transition is requested
// while another one has not finished.
var ErrTransitionInProgress = errors.New("mode: transition in progress")

// Store is the slice of the state store the manager depends on.
type Store interface {
	State() models.AppState
	DispatchWait(ctx context.Context, ev models.Event) error
}

// Manager serializes mode transitions. A transition quiesces whatever
// the old mode was running before the new mode is committed to the
// store, so no live event lands inside a backtest and vice versa. At
// most one transition runs at a time; overlapping requests fail fast
// instead of queueing.
type Manager struct {
	store    Store
	services []service.Service
	session  *backtest.Session
	bus      *bus.Bus
	log      *logger.Logger
	metrics  repository.Metrics

	drainTimeout time.Duration

	mu     sync.Mutex
	active bool
}

// NewManager builds the mode manager over the given live services.
func NewManager(store Store, services []service.Service, session *backtest.Session,
	drainTimeout time.Duration, b *bus.Bus, log *logger.Logger, metrics repository.Metrics) *Manager {
	return &Manager{
		store:        store,
		services:     services,
		session:      session,
		bus:          b,
		log:          log,
		metrics:      metrics,
		drainTimeout: drainTimeout,
	}
}

// Transition moves the application to target. Transitioning to the
// current mode is a no-op. input is required when target is backtest
// and ignored otherwise.
func (m *Manager) Transition(ctx context.Context, target models.Mode, input *models.BacktestInput) error {
	if target == models.ModeBacktest && input == nil {
		return errors.New("mode: backtest transition requires an input")
	}

	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return ErrTransitionInProgress
	}
	m.active = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.active = false
		m.mu.Unlock()
	}()

	from := m.store.State().Mode
	if from == target {
		return nil
	}
	m.log.Info("mode transition",
		logger.String("from", from.String()),
		logger.String("to", target.String()))

	// quiesce the old mode before the new one is committed
	if from == models.ModeLive {
		m.pauseAll(ctx)
	}
	if from == models.ModeBacktest {
		m.session.Cancel()
	}

	if err := m.store.DispatchWait(ctx, models.ModeChanged{Mode: target}); err != nil {
		return fmt.Errorf("commit mode %s: %w", target, err)
	}

	var startErr error
	switch target {
	case models.ModeIdle:
		// idle means nothing runs; paused services are shut down
		m.stopServices(ctx)
	case models.ModeLive:
		startErr = m.startAll()
	case models.ModeBacktest:
		startErr = m.session.Start(ctx, *input)
	}
	if startErr != nil {
		return fmt.Errorf("enter %s: %w", target, startErr)
	}

	m.metrics.RecordMode(target.String())
	_ = m.bus.Publish(models.ModeTransitioned{From: from, To: target, At: time.Now()})
	return nil
}

// pauseAll parks every live service, bounded by the drain timeout. A
// service that does not acknowledge in time is force-stopped and the
// degradation is surfaced; the transition itself still proceeds.
func (m *Manager) pauseAll(ctx context.Context) {
	dctx, cancel := context.WithTimeout(ctx, m.drainTimeout)
	defer cancel()

	for _, svc := range m.services {
		if err := svc.Pause(dctx); err == nil {
			continue
		} else if errors.Is(err, service.ErrInvalidTransition) {
			// not running, nothing to drain
			continue
		}

		m.log.Warn("service did not drain, forcing stop", logger.String("service", svc.Name()))
		m.metrics.RecordError("transition_drain")
		sctx, scancel := context.WithTimeout(context.Background(), m.drainTimeout)
		_ = svc.Stop(sctx)
		scancel()
		_ = m.bus.Publish(models.ErrorOccurred{
			Code:    models.ErrCodeTransitionDegraded,
			Message: fmt.Sprintf("service %s did not drain in %s", svc.Name(), m.drainTimeout),
			At:      time.Now(),
		})
	}
}

// startAll resumes paused services and starts stopped ones.
func (m *Manager) startAll() error {
	for _, svc := range m.services {
		var err error
		switch svc.Phase() {
		case service.PhasePaused:
			err = svc.Resume()
		case service.PhaseRunning:
		default:
			err = svc.Start()
		}
		if err != nil {
			return fmt.Errorf("service %s: %w", svc.Name(), err)
		}
	}
	return nil
}

func (m *Manager) stopServices(ctx context.Context) {
	for _, svc := range m.services {
		if svc.Phase() == service.PhaseStopped {
			continue
		}
		if err := svc.Stop(ctx); err != nil {
			m.log.Warn("service stop failed", logger.String("service", svc.Name()), logger.Error(err))
		}
	}
}

// StopAll shuts every live service down and aborts any in-flight
// backtest. Used on application shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.session.Cancel()
	m.stopServices(ctx)
}
