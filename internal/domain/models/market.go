package models

import "time"

// Quote is the latest traded price snapshot for a symbol.
type Quote struct {
	Symbol        string
	Price         float64
	Change        float64
	PreviousClose float64
	Volume        float64
	AvgVolume     float64
	Timestamp     time.Time
}

// Candle represents one OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Indicators holds strategy-computed values aligned with a candle.
type Indicators struct {
	MACD       float64
	MACDSignal float64
	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
}

// PriceSeries is an ordered (ascending time) sequence of candles plus
// the indicator rows computed for them. A series is treated as immutable
// once published; producers build a new series instead of mutating one
// that consumers may hold.
type PriceSeries struct {
	Symbol     string
	Interval   string
	Candles    []Candle
	Indicators []Indicators
}

// Len returns the number of candles.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Candles)
}

// Last returns the most recent candle, or false when the series is empty.
func (s *PriceSeries) Last() (Candle, bool) {
	if s.Len() == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// LastTime returns the timestamp of the most recent candle.
func (s *PriceSeries) LastTime() time.Time {
	c, ok := s.Last()
	if !ok {
		return time.Time{}
	}
	return c.Time
}

// Append returns a new series with bars newer than the current tail
// appended, capped to keep bars. The receiver is not modified.
func (s *PriceSeries) Append(delta []Candle, keep int) *PriceSeries {
	out := &PriceSeries{Symbol: s.Symbol, Interval: s.Interval}
	out.Candles = make([]Candle, len(s.Candles), len(s.Candles)+len(delta))
	copy(out.Candles, s.Candles)
	tail := s.LastTime()
	for _, c := range delta {
		if !c.Time.After(tail) {
			continue
		}
		out.Candles = append(out.Candles, c)
	}
	if keep > 0 && len(out.Candles) > keep {
		out.Candles = append([]Candle(nil), out.Candles[len(out.Candles)-keep:]...)
	}
	return out
}

// Mover is one row of the movers snapshot produced by the scanner.
type Mover struct {
	Symbol    string
	Price     float64
	Change    float64
	ChangePct float64
	Volume    float64
	AvgVolume float64
	RelVolPct float64
	Float     float64
	HasNews   bool
	Passed    bool
	FetchedAt time.Time
}

// CompanyProfile carries the profile fields the scanner filter needs.
type CompanyProfile struct {
	Symbol      string
	FloatShares float64
	AvgVolume   float64
}
