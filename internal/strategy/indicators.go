package strategy

import (
	"math"

	"TapeDeck/internal/domain/models"
)

// ema computes an exponential moving average over closes with the given
// period. Output is aligned with the input; positions before the first
// full period carry the running seed.
func ema(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 || period <= 0 {
		return out
	}
	k := 2.0 / (float64(period) + 1)
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = closes[i]*k + out[i-1]*(1-k)
	}
	return out
}

// macd returns the MACD line (EMA12-EMA26) and its 9-period signal line.
func macd(closes []float64) (line, signal []float64) {
	fast := ema(closes, 12)
	slow := ema(closes, 26)
	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = fast[i] - slow[i]
	}
	signal = ema(line, 9)
	return line, signal
}

// bollinger returns the upper, middle and lower bands for the given
// period and deviation multiplier. Positions before a full period are
// zero.
func bollinger(closes []float64, period int, dev float64) (upper, middle, lower []float64) {
	n := len(closes)
	upper = make([]float64, n)
	middle = make([]float64, n)
	lower = make([]float64, n)
	if period <= 0 || n < period {
		return upper, middle, lower
	}
	var sum, sumSq float64
	for i, c := range closes {
		sum += c
		sumSq += c * c
		if i >= period {
			old := closes[i-period]
			sum -= old
			sumSq -= old * old
		}
		if i >= period-1 {
			mean := sum / float64(period)
			variance := sumSq/float64(period) - mean*mean
			if variance < 0 {
				variance = 0
			}
			sd := math.Sqrt(variance)
			middle[i] = mean
			upper[i] = mean + dev*sd
			lower[i] = mean - dev*sd
		}
	}
	return upper, middle, lower
}

// computeIndicators returns a copy of series with indicator rows filled
// in. The input series is not modified.
func computeIndicators(series *models.PriceSeries, params models.StrategyParams) *models.PriceSeries {
	out := &models.PriceSeries{
		Symbol:   series.Symbol,
		Interval: series.Interval,
		Candles:  append([]models.Candle(nil), series.Candles...),
	}
	closes := make([]float64, len(out.Candles))
	for i, c := range out.Candles {
		closes[i] = c.Close
	}
	line, signal := macd(closes)
	upper, middle, lower := bollinger(closes, params.BBPeriod, params.BBDev)

	out.Indicators = make([]models.Indicators, len(closes))
	for i := range closes {
		out.Indicators[i] = models.Indicators{
			MACD:       line[i],
			MACDSignal: signal[i],
			BBUpper:    upper[i],
			BBMiddle:   middle[i],
			BBLower:    lower[i],
		}
	}
	return out
}
