package models

import "time"

type SignalAction string

const (
	SignalBuy  SignalAction = "buy"
	SignalSell SignalAction = "sell"
)

// Signal is a strategy-derived buy/sell indication for one symbol.
type Signal struct {
	Symbol string
	Action SignalAction
	Price  float64
	Reason string
	Time   time.Time
}

// StrategyParams are the operator-tunable strategy knobs. They are
// passed through to the strategy collaborator unchanged.
type StrategyParams struct {
	MACDThreshold float64 `yaml:"macd_threshold" json:"macd_threshold" default:"0.002"`
	BBPeriod      int     `yaml:"bb_period" json:"bb_period" default:"20"`
	BBDev         float64 `yaml:"bb_dev" json:"bb_dev" default:"2.0"`
	Lookback      int     `yaml:"lookback" json:"lookback" default:"200"`
}
