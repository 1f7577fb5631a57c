package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TapeDeck/internal/bus"
	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
	"TapeDeck/pkg/config"
	"TapeDeck/pkg/logger"
	"TapeDeck/pkg/metrics"
)

type staticState struct {
	state models.AppState
}

func (s staticState) State() models.AppState { return s.state }

// fakeData serves a fixed quote and history, or fails everything when
// failWith is set.
type fakeData struct {
	failWith error
	price    float64
}

func (d *fakeData) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if d.failWith != nil {
		return nil, d.failWith
	}
	return &models.Quote{Symbol: symbol, Price: d.price}, nil
}

func (d *fakeData) FetchHistory(ctx context.Context, symbol string, from, to time.Time, interval string) (*models.PriceSeries, error) {
	if d.failWith != nil {
		return nil, d.failWith
	}
	s := &models.PriceSeries{Symbol: symbol, Interval: interval}
	for i := 0; i < 30; i++ {
		s.Candles = append(s.Candles, models.Candle{
			Time: from.Add(time.Duration(i) * time.Minute),
			Open: d.price, High: d.price, Low: d.price, Close: d.price,
		})
	}
	return s, nil
}

func (d *fakeData) FetchMovers(ctx context.Context, limit int) ([]models.Mover, error) {
	return nil, nil
}

func (d *fakeData) FetchProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	return &models.CompanyProfile{Symbol: symbol}, nil
}

func (d *fakeData) HasRecentNews(ctx context.Context, symbol string, window time.Duration) (bool, error) {
	return false, nil
}

// buyEngine signals a buy on every evaluation when flat.
type buyEngine struct{}

func (buyEngine) Indicators(series *models.PriceSeries, params models.StrategyParams) *models.PriceSeries {
	return series
}

func (buyEngine) Evaluate(series *models.PriceSeries, params models.StrategyParams, pos *models.Position) *models.Signal {
	if pos != nil && pos.Qty > 0 {
		return nil
	}
	last, _ := series.Last()
	return &models.Signal{Symbol: series.Symbol, Action: models.SignalBuy, Price: last.Close, Reason: "test"}
}

func (buyEngine) Backtest(ctx context.Context, series *models.PriceSeries, params models.StrategyParams, startingCash float64) (*models.BacktestRun, error) {
	return &models.BacktestRun{FinalValue: startingCash}, nil
}

func newTestPoller(t *testing.T, state models.AppState, data repository.DataAPI) (*Poller, *bus.Bus) {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	cfg, err := config.Load("")
	require.NoError(t, err)

	b := bus.New(metrics.Nop{})
	engines := map[string]repository.StrategyEngine{"fake": buyEngine{}}
	p := New(cfg, staticState{state}, data, nil, engines, b, l, metrics.Nop{})
	return p, b
}

func watchState(symbols ...string) models.AppState {
	return models.AppState{
		Mode:      models.ModeLive,
		Watchlist: symbols,
		Symbols:   map[string]models.SymbolState{},
	}
}

func next(t *testing.T, b *bus.Bus, match func(models.Event) bool) models.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		ev, err := b.Next(ctx)
		require.NoError(t, err, "expected event never arrived")
		if match(ev) {
			return ev
		}
	}
}

func TestTickPublishesSymbolUpdated(t *testing.T) {
	p, b := newTestPoller(t, watchState("AAPL"), &fakeData{price: 42})

	require.NoError(t, p.tick(context.Background()))

	ev := next(t, b, func(ev models.Event) bool {
		_, ok := ev.(models.SymbolUpdated)
		return ok
	})
	updated := ev.(models.SymbolUpdated)
	assert.Equal(t, "AAPL", updated.Symbol)
	assert.Equal(t, 42.0, updated.Quote.Price)
	assert.Equal(t, 30, updated.Series.Len())
}

func TestTickEmptyWatchlistIsQuiet(t *testing.T) {
	p, b := newTestPoller(t, watchState(), &fakeData{price: 42})

	require.NoError(t, p.tick(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Next(ctx)
	assert.Error(t, err)
}

func TestAutoTradeSignalBecomesOrderIntent(t *testing.T) {
	state := watchState("AAPL")
	state.StrategyID = "fake"
	state.AutoTrade = true
	p, b := newTestPoller(t, state, &fakeData{price: 42})

	require.NoError(t, p.tick(context.Background()))

	ev := next(t, b, func(ev models.Event) bool {
		_, ok := ev.(models.OrderIntent)
		return ok
	})
	intent := ev.(models.OrderIntent)
	assert.Equal(t, models.OrderSideBuy, intent.Side)
	assert.Equal(t, 42.0, intent.Price)
	assert.Equal(t, 100.0, intent.PosPct)
}

func TestDisarmedSignalStaysSignalOnly(t *testing.T) {
	state := watchState("AAPL")
	state.StrategyID = "fake"
	p, b := newTestPoller(t, state, &fakeData{price: 42})

	require.NoError(t, p.tick(context.Background()))

	ev := next(t, b, func(ev models.Event) bool {
		_, ok := ev.(models.SymbolUpdated)
		return ok
	})
	require.NotNil(t, ev.(models.SymbolUpdated).Signal)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for {
		extra, err := b.Next(ctx)
		if err != nil {
			return // no OrderIntent showed up
		}
		_, isIntent := extra.(models.OrderIntent)
		assert.False(t, isIntent, "intent published while auto-trade disarmed")
	}
}

func TestFailStreakRaisesOneAlert(t *testing.T) {
	data := &fakeData{failWith: errors.New("api down")}
	p, b := newTestPoller(t, watchState("AAPL"), data)

	// default fail_warn_after is 3; the alert fires exactly at the streak
	for i := 0; i < 3; i++ {
		require.NoError(t, p.tick(context.Background()))
	}

	ev := next(t, b, func(ev models.Event) bool {
		_, ok := ev.(models.ErrorOccurred)
		return ok
	})
	alert := ev.(models.ErrorOccurred)
	assert.Equal(t, models.ErrCodeDataUnavailable, alert.Code)
	assert.Equal(t, "AAPL", alert.Symbol)
	assert.Contains(t, alert.Message, "after 3 attempts")
}

func TestSuccessResetsFailStreak(t *testing.T) {
	data := &fakeData{failWith: errors.New("api down")}
	p, _ := newTestPoller(t, watchState("AAPL"), data)

	require.NoError(t, p.tick(context.Background()))
	require.NoError(t, p.tick(context.Background()))

	data.failWith = nil
	require.NoError(t, p.tick(context.Background()))

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.fails)
}

func TestInjectQuoteFoldsPriceIntoLastBar(t *testing.T) {
	series := &models.PriceSeries{
		Symbol: "AAPL",
		Candles: []models.Candle{
			{Open: 100, High: 101, Low: 99, Close: 100},
			{Open: 100, High: 102, Low: 98, Close: 100},
		},
	}

	out := injectQuote(series, &models.Quote{Price: 105})
	last := out.Candles[1]
	assert.Equal(t, 105.0, last.Close)
	assert.Equal(t, 105.0, last.High) // price above the old high
	assert.Equal(t, 98.0, last.Low)

	// the input series is untouched
	assert.Equal(t, 100.0, series.Candles[1].Close)
	assert.Equal(t, 102.0, series.Candles[1].High)
}

func TestInjectQuoteExtendsLowSide(t *testing.T) {
	series := &models.PriceSeries{
		Candles: []models.Candle{{Open: 100, High: 102, Low: 98, Close: 100}},
	}
	out := injectQuote(series, &models.Quote{Price: 95})
	assert.Equal(t, 95.0, out.Candles[0].Close)
	assert.Equal(t, 95.0, out.Candles[0].Low)
	assert.Equal(t, 102.0, out.Candles[0].High)
}

func TestInjectQuoteEmptySeriesPassthrough(t *testing.T) {
	series := &models.PriceSeries{Symbol: "AAPL"}
	assert.Same(t, series, injectQuote(series, &models.Quote{Price: 100}))
}
