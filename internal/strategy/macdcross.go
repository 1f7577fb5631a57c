package strategy

import (
	"context"
	"fmt"
	"time"

	"TapeDeck/internal/domain/models"
)

// MACDCross trades MACD/signal-line crossovers confirmed by Bollinger
// position: a bullish cross near the lower band buys, a bearish cross
// or a close above the upper band sells. It is stateless; everything it
// needs is in the series and params.
type MACDCross struct{}

// NewMACDCross returns the macd-cross engine.
func NewMACDCross() *MACDCross { return &MACDCross{} }

func (e *MACDCross) Indicators(series *models.PriceSeries, params models.StrategyParams) *models.PriceSeries {
	return computeIndicators(series, params)
}

// Evaluate inspects the last two bars for a crossover. pos is the
// currently held position, nil when flat; buys are only signaled when
// flat and sells only when holding.
func (e *MACDCross) Evaluate(series *models.PriceSeries, params models.StrategyParams, pos *models.Position) *models.Signal {
	n := series.Len()
	warmup := params.BBPeriod
	if warmup < 26 {
		warmup = 26
	}
	if n < warmup+1 || len(series.Indicators) < n {
		return nil
	}
	return e.evaluateAt(series, params, n-1, pos != nil && pos.Qty > 0)
}

// evaluateAt decides a signal for bar i from bars i-1 and i.
func (e *MACDCross) evaluateAt(series *models.PriceSeries, params models.StrategyParams, i int, holding bool) *models.Signal {
	prev, cur := series.Indicators[i-1], series.Indicators[i]
	bar := series.Candles[i]

	crossUp := prev.MACD <= prev.MACDSignal && cur.MACD > cur.MACDSignal
	crossDown := prev.MACD >= prev.MACDSignal && cur.MACD < cur.MACDSignal

	if !holding {
		// require the cross to happen in negative territory with some
		// separation, near the lower band
		threshold := -params.MACDThreshold * bar.Close
		if crossUp && cur.MACD < threshold && cur.BBLower > 0 && bar.Close <= cur.BBMiddle {
			return &models.Signal{
				Symbol: series.Symbol,
				Action: models.SignalBuy,
				Price:  bar.Close,
				Reason: "macd cross up below threshold",
				Time:   bar.Time,
			}
		}
		return nil
	}

	if crossDown {
		return &models.Signal{
			Symbol: series.Symbol,
			Action: models.SignalSell,
			Price:  bar.Close,
			Reason: "macd cross down",
			Time:   bar.Time,
		}
	}
	if cur.BBUpper > 0 && bar.Close >= cur.BBUpper {
		return &models.Signal{
			Symbol: series.Symbol,
			Action: models.SignalSell,
			Price:  bar.Close,
			Reason: "close above upper band",
			Time:   bar.Time,
		}
	}
	return nil
}

// Backtest replays the series bar by bar with all-in position sizing.
// Identical inputs produce identical runs.
func (e *MACDCross) Backtest(ctx context.Context, series *models.PriceSeries, params models.StrategyParams, startingCash float64) (*models.BacktestRun, error) {
	if len(series.Indicators) < series.Len() {
		return nil, fmt.Errorf("series is missing indicator rows")
	}
	if startingCash <= 0 {
		return nil, fmt.Errorf("starting cash must be positive, got %.2f", startingCash)
	}

	warmup := params.BBPeriod
	if warmup < 26 {
		warmup = 26
	}

	cash := startingCash
	var qty float64
	run := &models.BacktestRun{}

	for i := warmup + 1; i < series.Len(); i++ {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		sig := e.evaluateAt(series, params, i, qty > 0)
		bar := series.Candles[i]
		if sig != nil {
			switch sig.Action {
			case models.SignalBuy:
				qty = cash / bar.Close
				cash = 0
				run.Trades = append(run.Trades, models.Trade{
					Time: bar.Time, Side: models.OrderSideBuy, Price: bar.Close, Qty: qty, Value: qty * bar.Close,
				})
			case models.SignalSell:
				cash = qty * bar.Close
				run.Trades = append(run.Trades, models.Trade{
					Time: bar.Time, Side: models.OrderSideSell, Price: bar.Close, Qty: qty, Value: cash,
				})
				qty = 0
			}
		}
		run.EquityCurve = append(run.EquityCurve, models.EquityPoint{
			Time:  bar.Time.Truncate(time.Second),
			Cash:  cash,
			Value: cash + qty*bar.Close,
		})
	}

	last, _ := series.Last()
	run.FinalValue = cash + qty*last.Close
	return run, nil
}
