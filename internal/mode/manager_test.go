package mode

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TapeDeck/internal/backtest"
	"TapeDeck/internal/bus"
	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
	"TapeDeck/internal/service"
	"TapeDeck/internal/store"
	"TapeDeck/pkg/logger"
	"TapeDeck/pkg/metrics"
)

// fakeService tracks lifecycle calls and honors the Service contract.
type fakeService struct {
	name       string
	phase      atomic.Int32
	pauses     atomic.Int64
	starts     atomic.Int64
	stops      atomic.Int64
	blockPause chan struct{}
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Start() error {
	f.starts.Add(1)
	f.phase.Store(int32(service.PhaseRunning))
	return nil
}

func (f *fakeService) Pause(ctx context.Context) error {
	if f.phase.Load() != int32(service.PhaseRunning) {
		return service.ErrInvalidTransition
	}
	if f.blockPause != nil {
		select {
		case <-f.blockPause:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.pauses.Add(1)
	f.phase.Store(int32(service.PhasePaused))
	return nil
}

func (f *fakeService) Resume() error {
	f.phase.Store(int32(service.PhaseRunning))
	return nil
}

func (f *fakeService) Stop(ctx context.Context) error {
	f.stops.Add(1)
	f.phase.Store(int32(service.PhaseStopped))
	return nil
}

func (f *fakeService) Phase() service.Phase { return service.Phase(f.phase.Load()) }

// fakeData serves a fixed candle window.
type fakeData struct{}

func (fakeData) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return &models.Quote{Symbol: symbol, Price: 10}, nil
}

func (fakeData) FetchHistory(ctx context.Context, symbol string, from, to time.Time, interval string) (*models.PriceSeries, error) {
	// slow enough that a canceled caller context would abort the fetch
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s := &models.PriceSeries{Symbol: symbol, Interval: interval}
	for i := 0; i < 50; i++ {
		s.Candles = append(s.Candles, models.Candle{Time: from.Add(time.Duration(i) * time.Minute), Close: 10})
	}
	return s, nil
}

func (fakeData) FetchMovers(ctx context.Context, limit int) ([]models.Mover, error) { return nil, nil }

func (fakeData) FetchProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	return &models.CompanyProfile{Symbol: symbol}, nil
}

func (fakeData) HasRecentNews(ctx context.Context, symbol string, window time.Duration) (bool, error) {
	return false, nil
}

type fakeEngine struct{}

func (fakeEngine) Indicators(s *models.PriceSeries, p models.StrategyParams) *models.PriceSeries {
	out := *s
	out.Indicators = make([]models.Indicators, len(s.Candles))
	return &out
}

func (fakeEngine) Evaluate(*models.PriceSeries, models.StrategyParams, *models.Position) *models.Signal {
	return nil
}

func (fakeEngine) Backtest(ctx context.Context, s *models.PriceSeries, p models.StrategyParams, cash float64) (*models.BacktestRun, error) {
	return &models.BacktestRun{FinalValue: cash}, nil
}

type fixture struct {
	manager  *Manager
	store    *store.Store
	services []*fakeService
	bus      *bus.Bus
	cancel   context.CancelFunc
}

func newFixture(t *testing.T, svcs ...*fakeService) *fixture {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)

	b := bus.New(metrics.Nop{})
	st := store.New(models.AppState{Watchlist: []string{"AAPL"}}, 64, l, metrics.Nop{})
	ctx, cancel := context.WithCancel(context.Background())
	go st.Run(ctx)

	session := backtest.NewSession(fakeData{}, map[string]repository.StrategyEngine{"fake": fakeEngine{}},
		"1min", b, l, metrics.Nop{})

	services := make([]service.Service, len(svcs))
	for i, s := range svcs {
		services[i] = s
	}
	m := NewManager(st, services, session, 100*time.Millisecond, b, l, metrics.Nop{})
	return &fixture{manager: m, store: st, services: svcs, bus: b, cancel: cancel}
}

func testInput() *models.BacktestInput {
	return &models.BacktestInput{
		Symbol:     "AAPL",
		From:       time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
		StrategyID: "fake",
	}
}

func TestTransitionToLiveStartsServices(t *testing.T) {
	svc := &fakeService{name: "poller"}
	f := newFixture(t, svc)
	defer f.cancel()

	require.NoError(t, f.manager.Transition(context.Background(), models.ModeLive, nil))
	assert.Equal(t, models.ModeLive, f.store.State().Mode)
	assert.Equal(t, int64(1), svc.starts.Load())
}

func TestTransitionSameModeIsNoop(t *testing.T) {
	svc := &fakeService{name: "poller"}
	f := newFixture(t, svc)
	defer f.cancel()

	require.NoError(t, f.manager.Transition(context.Background(), models.ModeIdle, nil))
	assert.Zero(t, svc.starts.Load())
	assert.Zero(t, svc.pauses.Load())
}

func TestTransitionToBacktestPausesLiveFirst(t *testing.T) {
	svc := &fakeService{name: "poller"}
	f := newFixture(t, svc)
	defer f.cancel()

	ctx := context.Background()
	require.NoError(t, f.manager.Transition(ctx, models.ModeLive, nil))
	require.NoError(t, f.manager.Transition(ctx, models.ModeBacktest, testInput()))

	assert.Equal(t, int64(1), svc.pauses.Load())
	assert.Equal(t, service.PhasePaused, svc.Phase())
	assert.Equal(t, models.ModeBacktest, f.store.State().Mode)
}

func TestTransitionBackToLiveResumes(t *testing.T) {
	svc := &fakeService{name: "poller"}
	f := newFixture(t, svc)
	defer f.cancel()

	ctx := context.Background()
	require.NoError(t, f.manager.Transition(ctx, models.ModeLive, nil))
	require.NoError(t, f.manager.Transition(ctx, models.ModeBacktest, testInput()))
	require.NoError(t, f.manager.Transition(ctx, models.ModeLive, nil))

	assert.Equal(t, service.PhaseRunning, svc.Phase())
	assert.Equal(t, models.ModeLive, f.store.State().Mode)
}

func TestTransitionToIdleStopsServices(t *testing.T) {
	svc := &fakeService{name: "poller"}
	f := newFixture(t, svc)
	defer f.cancel()

	ctx := context.Background()
	require.NoError(t, f.manager.Transition(ctx, models.ModeLive, nil))
	require.NoError(t, f.manager.Transition(ctx, models.ModeIdle, nil))

	assert.Equal(t, models.ModeIdle, f.store.State().Mode)
	assert.Equal(t, service.PhaseStopped, svc.Phase())
	assert.Equal(t, int64(1), svc.stops.Load())
}

func TestBacktestSurvivesRequestContext(t *testing.T) {
	f := newFixture(t, &fakeService{name: "poller"})
	defer f.cancel()

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.manager.Transition(reqCtx, models.ModeBacktest, testInput()))
	// the request that triggered the transition ends here
	cancel()

	dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dcancel()
	for {
		ev, err := f.bus.Next(dctx)
		require.NoError(t, err, "expected the run to finish")
		if _, failed := ev.(models.BacktestFailed); failed {
			t.Fatalf("run aborted after the request ended: %+v", ev)
		}
		if fin, ok := ev.(models.BacktestFinished); ok {
			require.NotNil(t, fin.Report)
			return
		}
	}
}

func TestTransitionBacktestRequiresInput(t *testing.T) {
	f := newFixture(t, &fakeService{name: "poller"})
	defer f.cancel()

	err := f.manager.Transition(context.Background(), models.ModeBacktest, nil)
	assert.Error(t, err)
}

func TestConcurrentTransitionRejected(t *testing.T) {
	blocked := &fakeService{name: "poller", blockPause: make(chan struct{})}
	f := newFixture(t, blocked)
	defer f.cancel()

	ctx := context.Background()
	require.NoError(t, f.manager.Transition(ctx, models.ModeLive, nil))

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- f.manager.Transition(ctx, models.ModeBacktest, testInput())
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	err := f.manager.Transition(ctx, models.ModeIdle, nil)
	assert.ErrorIs(t, err, ErrTransitionInProgress)

	close(blocked.blockPause)
	require.NoError(t, <-done)
}

func TestDrainTimeoutForcesStopAndProceeds(t *testing.T) {
	stuck := &fakeService{name: "poller", blockPause: make(chan struct{})}
	defer close(stuck.blockPause)
	f := newFixture(t, stuck)
	defer f.cancel()

	ctx := context.Background()
	require.NoError(t, f.manager.Transition(ctx, models.ModeLive, nil))
	require.NoError(t, f.manager.Transition(ctx, models.ModeBacktest, testInput()))

	assert.Equal(t, int64(1), stuck.stops.Load(), "a service that cannot drain gets force-stopped")
	assert.Equal(t, models.ModeBacktest, f.store.State().Mode, "the transition still completes")
}
