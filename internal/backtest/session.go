package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TapeDeck/internal/bus"
	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
	"TapeDeck/pkg/logger"
)

// ErrAlreadyRunning is returned by Start while a run is in flight.
var ErrAlreadyRunning = errors.New("backtest: session already running")

// Session owns one backtest run at a time: fetch the historical window,
// hand it to the strategy engine, and publish the finished report. The
// run executes on its own goroutine so mode transitions are not blocked
// by slow history fetches; Cancel aborts it without producing a report.
type Session struct {
	data    repository.DataAPI
	engines map[string]repository.StrategyEngine
	bus     *bus.Bus
	log     *logger.Logger
	metrics repository.Metrics

	interval string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession builds a backtest session runner.
func NewSession(data repository.DataAPI, engines map[string]repository.StrategyEngine,
	interval string, b *bus.Bus, log *logger.Logger, metrics repository.Metrics) *Session {
	return &Session{
		data:     data,
		engines:  engines,
		bus:      b,
		log:      log,
		metrics:  metrics,
		interval: interval,
	}
}

// Running reports whether a run is in flight.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Start launches a run for input. One run at a time; a second Start
// before the first finishes returns ErrAlreadyRunning.
func (s *Session) Start(ctx context.Context, input models.BacktestInput) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	// the run outlives the caller's context: an HTTP request that
	// started a backtest is long gone before the report lands. Only
	// Cancel aborts the run.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	_ = s.bus.Publish(models.BacktestStarted{Input: input})

	go func() {
		defer close(done)
		defer s.clear()
		s.run(runCtx, input)
	}()
	return nil
}

// Cancel aborts the in-flight run, if any, and waits for it to unwind.
// Canceling an idle session is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Session) clear() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.mu.Unlock()
}

func (s *Session) run(ctx context.Context, input models.BacktestInput) {
	started := time.Now()
	report, err := s.execute(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			s.log.Info("backtest canceled", logger.String("symbol", input.Symbol))
			_ = s.bus.Publish(models.BacktestFailed{Err: "canceled"})
			return
		}
		s.log.Error("backtest failed", logger.String("symbol", input.Symbol), logger.Error(err))
		s.metrics.RecordError("backtest_run")
		_ = s.bus.Publish(models.BacktestFailed{Err: err.Error()})
		_ = s.bus.Publish(models.ErrorOccurred{
			Code:    models.ErrCodeBacktestFailed,
			Symbol:  input.Symbol,
			Message: err.Error(),
			At:      time.Now(),
		})
		return
	}

	s.metrics.RecordLatency("backtest_run", time.Since(started).Seconds())
	s.log.Info("backtest finished",
		logger.String("symbol", input.Symbol),
		logger.Int("trades", len(report.Trades)),
		logger.Any("final_value", report.FinalValue))
	_ = s.bus.Publish(models.BacktestFinished{Report: report})
}

// execute is the pure part of a run: same input, same report.
func (s *Session) execute(ctx context.Context, input models.BacktestInput) (*models.BacktestReport, error) {
	engine := s.engines[input.StrategyID]
	if engine == nil {
		return nil, fmt.Errorf("unknown strategy %q", input.StrategyID)
	}

	series, err := s.data.FetchHistory(ctx, input.Symbol, input.From, input.To, s.interval)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", input.Symbol, err)
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("no bars for %s in range", input.Symbol)
	}

	series = engine.Indicators(series, input.Params)
	run, err := engine.Backtest(ctx, series, input.Params, input.StartingCash)
	if err != nil {
		return nil, err
	}

	report := &models.BacktestReport{
		Input:       input,
		FinalValue:  run.FinalValue,
		Trades:      run.Trades,
		EquityCurve: run.EquityCurve,
		PriceSlice:  series,
	}
	for _, t := range run.Trades {
		switch t.Side {
		case models.OrderSideBuy:
			report.Buys++
		case models.OrderSideSell:
			report.Sells++
		}
	}
	return report, nil
}
