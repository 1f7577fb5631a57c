package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TapeDeck/internal/domain/models"
)

func TestEMAConstantSeriesStaysFlat(t *testing.T) {
	closes := []float64{50, 50, 50, 50, 50}
	out := ema(closes, 3)
	require.Len(t, out, len(closes))
	for _, v := range out {
		assert.InDelta(t, 50.0, v, 1e-9)
	}
}

func TestEMATracksTrend(t *testing.T) {
	closes := []float64{10, 11, 12, 13, 14, 15}
	out := ema(closes, 3)
	// an EMA lags a rising series but keeps rising with it
	for i := 1; i < len(out); i++ {
		assert.Greater(t, out[i], out[i-1])
		assert.Less(t, out[i], closes[i])
	}
}

func TestMACDZeroOnConstantSeries(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 75
	}
	line, signal := macd(closes)
	assert.InDelta(t, 0.0, line[39], 1e-9)
	assert.InDelta(t, 0.0, signal[39], 1e-9)
}

func TestBollingerConstantSeriesCollapsesToMean(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
	}
	upper, middle, lower := bollinger(closes, 20, 2)
	assert.InDelta(t, 100.0, upper[24], 1e-9)
	assert.InDelta(t, 100.0, middle[24], 1e-9)
	assert.InDelta(t, 100.0, lower[24], 1e-9)
}

func TestBollingerZeroBeforeFullPeriod(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	upper, middle, lower := bollinger(closes, 3, 2)
	assert.Zero(t, upper[1])
	assert.Zero(t, middle[1])
	assert.Zero(t, lower[1])
	assert.NotZero(t, middle[2])
	assert.Greater(t, upper[4], middle[4])
	assert.Less(t, lower[4], middle[4])
}

func TestBollingerShortSeriesAllZero(t *testing.T) {
	upper, middle, lower := bollinger([]float64{1, 2}, 20, 2)
	for i := range upper {
		assert.Zero(t, upper[i])
		assert.Zero(t, middle[i])
		assert.Zero(t, lower[i])
	}
}

func TestComputeIndicatorsDoesNotMutateInput(t *testing.T) {
	s := &models.PriceSeries{Symbol: "AAPL", Interval: "1min"}
	for i := 0; i < 30; i++ {
		s.Candles = append(s.Candles, models.Candle{Close: 100 + float64(i)})
	}

	out := computeIndicators(s, testParams())
	require.Len(t, out.Indicators, 30)
	assert.Nil(t, s.Indicators)
	assert.Equal(t, "AAPL", out.Symbol)

	out.Candles[0].Close = 1
	assert.Equal(t, 100.0, s.Candles[0].Close)
}
