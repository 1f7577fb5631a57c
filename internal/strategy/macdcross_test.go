package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TapeDeck/internal/domain/models"
)

func testParams() models.StrategyParams {
	return models.StrategyParams{MACDThreshold: 0.002, BBPeriod: 20, BBDev: 2, Lookback: 200}
}

// flatSeries builds n bars at close 100 with hand-set indicator rows that
// never signal: MACD stays below its signal line and the close sits on
// the middle band.
func flatSeries(n int) *models.PriceSeries {
	start := time.Date(2026, 8, 3, 9, 30, 0, 0, time.UTC)
	s := &models.PriceSeries{Symbol: "AAPL", Interval: "1min"}
	for i := 0; i < n; i++ {
		s.Candles = append(s.Candles, models.Candle{
			Time:  start.Add(time.Duration(i) * time.Minute),
			Close: 100,
		})
		s.Indicators = append(s.Indicators, models.Indicators{
			MACD:       -1.0,
			MACDSignal: -0.5,
			BBUpper:    105,
			BBMiddle:   100,
			BBLower:    95,
		})
	}
	return s
}

func TestEvaluateNilBeforeWarmup(t *testing.T) {
	e := NewMACDCross()
	assert.Nil(t, e.Evaluate(flatSeries(26), testParams(), nil))
}

func TestEvaluateBuyOnCrossUpBelowThreshold(t *testing.T) {
	e := NewMACDCross()
	s := flatSeries(30)
	// last bar crosses up while still well below -threshold*close (-0.2)
	s.Indicators[29].MACD = -0.3
	s.Indicators[29].MACDSignal = -0.4

	sig := e.Evaluate(s, testParams(), nil)
	require.NotNil(t, sig)
	assert.Equal(t, models.SignalBuy, sig.Action)
	assert.Equal(t, "AAPL", sig.Symbol)
	assert.Equal(t, 100.0, sig.Price)
}

func TestEvaluateNoBuyWhenCrossAboveThreshold(t *testing.T) {
	e := NewMACDCross()
	s := flatSeries(30)
	// crosses up but too close to zero to clear the threshold filter
	s.Indicators[29].MACD = -0.1
	s.Indicators[29].MACDSignal = -0.15

	assert.Nil(t, e.Evaluate(s, testParams(), nil))
}

func TestEvaluateNoBuyAboveMiddleBand(t *testing.T) {
	e := NewMACDCross()
	s := flatSeries(30)
	s.Indicators[29].MACD = -0.3
	s.Indicators[29].MACDSignal = -0.4
	s.Candles[29].Close = 103 // above the middle band

	assert.Nil(t, e.Evaluate(s, testParams(), nil))
}

func TestEvaluateNoBuyWhileHolding(t *testing.T) {
	e := NewMACDCross()
	s := flatSeries(30)
	s.Indicators[29].MACD = -0.3
	s.Indicators[29].MACDSignal = -0.4

	pos := &models.Position{Symbol: "AAPL", Qty: 5}
	assert.Nil(t, e.Evaluate(s, testParams(), pos))
}

func TestEvaluateSellOnCrossDown(t *testing.T) {
	e := NewMACDCross()
	s := flatSeries(30)
	s.Indicators[28].MACD = 0.5
	s.Indicators[28].MACDSignal = 0.3
	s.Indicators[29].MACD = 0.2
	s.Indicators[29].MACDSignal = 0.3

	pos := &models.Position{Symbol: "AAPL", Qty: 5}
	sig := e.Evaluate(s, testParams(), pos)
	require.NotNil(t, sig)
	assert.Equal(t, models.SignalSell, sig.Action)
	assert.Equal(t, "macd cross down", sig.Reason)
}

func TestEvaluateSellOnCloseAboveUpperBand(t *testing.T) {
	e := NewMACDCross()
	s := flatSeries(30)
	s.Candles[29].Close = 106 // above the 105 upper band, no crossover

	pos := &models.Position{Symbol: "AAPL", Qty: 5}
	sig := e.Evaluate(s, testParams(), pos)
	require.NotNil(t, sig)
	assert.Equal(t, models.SignalSell, sig.Action)
	assert.Equal(t, "close above upper band", sig.Reason)
}

func TestBacktestBuyThenSellAllIn(t *testing.T) {
	e := NewMACDCross()
	s := flatSeries(32)
	// bar 28 buys at 100, bar 30 sells at 110
	s.Indicators[28].MACD = -0.3
	s.Indicators[28].MACDSignal = -0.4
	s.Indicators[29].MACD = -0.3
	s.Indicators[29].MACDSignal = -0.4
	s.Indicators[30].MACD = 0.2
	s.Indicators[30].MACDSignal = 0.3
	s.Candles[30].Close = 110

	run, err := e.Backtest(context.Background(), s, testParams(), 10000)
	require.NoError(t, err)
	require.Len(t, run.Trades, 2)

	buy, sell := run.Trades[0], run.Trades[1]
	assert.Equal(t, models.OrderSideBuy, buy.Side)
	assert.InDelta(t, 100.0, buy.Qty, 1e-9) // 10000 all-in at 100
	assert.Equal(t, models.OrderSideSell, sell.Side)
	assert.InDelta(t, 110.0, sell.Price, 1e-9)
	assert.InDelta(t, 11000.0, run.FinalValue, 1e-9)

	// equity is marked to market while holding
	require.NotEmpty(t, run.EquityCurve)
	last := run.EquityCurve[len(run.EquityCurve)-1]
	assert.InDelta(t, 11000.0, last.Value, 1e-9)
}

func TestBacktestIsDeterministic(t *testing.T) {
	e := NewMACDCross()
	s := flatSeries(40)
	s.Indicators[28].MACD = -0.3
	s.Indicators[28].MACDSignal = -0.4
	s.Indicators[33].MACD = 0.2
	s.Indicators[33].MACDSignal = 0.3

	first, err := e.Backtest(context.Background(), s, testParams(), 10000)
	require.NoError(t, err)
	second, err := e.Backtest(context.Background(), s, testParams(), 10000)
	require.NoError(t, err)

	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.EquityCurve, second.EquityCurve)
	assert.Equal(t, first.FinalValue, second.FinalValue)
}

func TestBacktestRejectsMissingIndicators(t *testing.T) {
	e := NewMACDCross()
	s := flatSeries(30)
	s.Indicators = s.Indicators[:10]

	_, err := e.Backtest(context.Background(), s, testParams(), 10000)
	assert.Error(t, err)
}

func TestBacktestRejectsNonPositiveCash(t *testing.T) {
	e := NewMACDCross()
	_, err := e.Backtest(context.Background(), flatSeries(30), testParams(), 0)
	assert.Error(t, err)
}

func TestRegistryContainsMACDCross(t *testing.T) {
	reg := Registry()
	require.Contains(t, reg, StrategyMACDCross)
	assert.NotNil(t, reg[StrategyMACDCross])
}
