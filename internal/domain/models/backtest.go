package models

import "time"

// BacktestInput identifies one backtest run. Identical inputs must yield
// identical reports.
type BacktestInput struct {
	Symbol       string         `json:"symbol"`
	From         time.Time      `json:"from"`
	To           time.Time      `json:"to"`
	StartingCash float64        `json:"starting_cash"`
	StrategyID   string         `json:"strategy_id"`
	Params       StrategyParams `json:"params"`
}

// Trade is one executed trade of a backtest run.
type Trade struct {
	Time  time.Time
	Side  OrderSide
	Price float64
	Qty   float64
	Value float64
}

// BacktestReport is the immutable summary of a historical strategy run.
// It is detached from live state and safe to share by reference.
type BacktestReport struct {
	Input       BacktestInput
	FinalValue  float64
	Trades      []Trade
	EquityCurve []EquityPoint
	PriceSlice  *PriceSeries
	Buys        int
	Sells       int
}

// BacktestRun is what the strategy collaborator returns; the session
// wraps it into a report.
type BacktestRun struct {
	Trades      []Trade
	EquityCurve []EquityPoint
	FinalValue  float64
}
