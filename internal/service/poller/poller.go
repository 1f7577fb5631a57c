package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TapeDeck/internal/bus"
	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
	"TapeDeck/internal/service"
	"TapeDeck/pkg/config"
	"TapeDeck/pkg/logger"
	"TapeDeck/pkg/workpool"
)

// StateReader is the read-only view of the store the poller needs.
type StateReader interface {
	State() models.AppState
}

// Poller fetches quotes and history deltas for every watchlist symbol
// on a fixed cadence, recomputes indicators, evaluates the configured
// strategy and publishes one coalesced SymbolUpdated per symbol per
// tick. Symbols are polled concurrently with a bounded number of
// in-flight fetches.
type Poller struct {
	*service.Runner

	states  StateReader
	data    repository.DataAPI
	stream  repository.QuoteStream
	engines map[string]repository.StrategyEngine
	bus     *bus.Bus
	pool    *workpool.Pool
	log     *logger.Logger
	metrics repository.Metrics

	fetchTimeout  time.Duration
	keepBars      int
	failWarnAfter int
	interval      string

	mu    sync.Mutex
	fails map[string]int
}

// New builds the live polling service.
func New(cfg *config.Config, states StateReader, data repository.DataAPI, stream repository.QuoteStream,
	engines map[string]repository.StrategyEngine, b *bus.Bus, log *logger.Logger, metrics repository.Metrics) *Poller {
	p := &Poller{
		states:        states,
		data:          data,
		stream:        stream,
		engines:       engines,
		bus:           b,
		pool:          workpool.New(cfg.Polling.MaxConcurrent),
		log:           log,
		metrics:       metrics,
		fetchTimeout:  cfg.Polling.FetchTimeout,
		keepBars:      cfg.Polling.KeepBars,
		failWarnAfter: cfg.Polling.FailWarnAfter,
		interval:      cfg.DataAPI.Interval,
		fails:         make(map[string]int),
	}
	p.Runner = service.NewRunner("poller", cfg.Polling.Interval, p.tick, b, log, metrics)
	return p
}

func (p *Poller) tick(ctx context.Context) error {
	state := p.states.State()
	symbols := state.Watchlist
	if len(symbols) == 0 {
		return nil
	}

	p.pool.Each(ctx, len(symbols), func(i int) {
		p.pollOne(ctx, state, symbols[i])
	})
	return nil
}

func (p *Poller) pollOne(ctx context.Context, state models.AppState, symbol string) {
	fctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	quote, series, err := p.fetch(fctx, state, symbol)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.recordFailure(symbol, err)
		return
	}
	p.clearFailure(symbol)
	p.metrics.RecordLastPrice(symbol, quote.Price)

	engine := p.engines[state.StrategyID]
	var signal *models.Signal
	if engine != nil {
		series = engine.Indicators(series, state.Params)
		var pos *models.Position
		if held, ok := state.Portfolio.Position(symbol); ok {
			pos = &held
		}
		signal = engine.Evaluate(series, state.Params, pos)
	}

	now := time.Now()
	_ = p.bus.Publish(models.SymbolUpdated{
		Symbol: symbol,
		Series: series,
		Quote:  *quote,
		Signal: signal,
		At:     now,
	})

	if signal != nil && state.AutoTrade {
		_ = p.bus.Publish(models.OrderIntent{
			Symbol: symbol,
			Side:   models.OrderSide(signal.Action),
			Price:  signal.Price,
			PosPct: 100,
			Reason: signal.Reason,
			At:     now,
		})
	}
}

func (p *Poller) fetch(ctx context.Context, state models.AppState, symbol string) (*models.Quote, *models.PriceSeries, error) {
	quote, err := p.data.FetchQuote(ctx, symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	// a connected push stream is fresher than the polled quote
	if p.stream != nil {
		if last, ok := p.stream.Last(symbol); ok {
			quote.Price = last
		}
	}

	prev := state.Symbols[symbol].Series
	from := time.Now().Add(-24 * time.Hour)
	if prev.Len() > 0 {
		from = prev.LastTime()
	}
	delta, err := p.data.FetchHistory(ctx, symbol, from, time.Now(), p.interval)
	if err != nil {
		return nil, nil, fmt.Errorf("history %s: %w", symbol, err)
	}

	var series *models.PriceSeries
	if prev.Len() > 0 {
		series = prev.Append(delta.Candles, p.keepBars)
	} else {
		series = delta
	}
	series = injectQuote(series, quote)
	return quote, series, nil
}

// injectQuote folds the live quote into the final bar so indicators see
// the current price rather than the last closed bar.
func injectQuote(series *models.PriceSeries, quote *models.Quote) *models.PriceSeries {
	if series.Len() == 0 || quote == nil {
		return series
	}
	out := &models.PriceSeries{Symbol: series.Symbol, Interval: series.Interval}
	out.Candles = append([]models.Candle(nil), series.Candles...)
	last := &out.Candles[len(out.Candles)-1]
	last.Close = quote.Price
	if quote.Price > last.High {
		last.High = quote.Price
	}
	if quote.Price < last.Low {
		last.Low = quote.Price
	}
	return out
}

func (p *Poller) recordFailure(symbol string, err error) {
	p.mu.Lock()
	p.fails[symbol]++
	streak := p.fails[symbol]
	p.mu.Unlock()

	p.log.Warn("poll failed", logger.String("symbol", symbol), logger.Int("streak", streak), logger.Error(err))
	p.metrics.RecordError("poll_fetch")

	// surface after a streak; the symbol stays on the watchlist and is
	// retried next tick
	if streak == p.failWarnAfter {
		_ = p.bus.Publish(models.ErrorOccurred{
			Code:    models.ErrCodeDataUnavailable,
			Symbol:  symbol,
			Message: fmt.Sprintf("no data for %s after %d attempts", symbol, streak),
			At:      time.Now(),
		})
	}
}

func (p *Poller) clearFailure(symbol string) {
	p.mu.Lock()
	delete(p.fails, symbol)
	p.mu.Unlock()
}
