package models

import "time"

// SymbolState is the per-symbol slice of application state. One instance
// exists per watchlist entry, created when the symbol is added and
// evicted when it is removed.
type SymbolState struct {
	Symbol     string
	Series     *PriceSeries
	Quote      Quote
	LastSignal *Signal
	FailStreak int
	UpdatedAt  time.Time
}

// ScanState holds the latest scanner output.
type ScanState struct {
	Passed    []Mover
	All       []Mover
	UpdatedAt time.Time
}

// BacktestState tracks the current backtest session from the store's
// point of view. Report is nil until a run completes; it is never
// partially populated.
type BacktestState struct {
	Running bool
	Input   *BacktestInput
	Report  *BacktestReport
	Err     string
}

// RuntimeConfig is the config subset carried inside AppState so that
// reducers stay pure functions of (state, event).
type RuntimeConfig struct {
	EquityRetention time.Duration
}

// AppState is the aggregate application state. It is owned exclusively
// by the store and mutated only by reducers; everything reachable from a
// snapshot must be treated as read-only.
type AppState struct {
	Mode         Mode
	Config       RuntimeConfig
	ActiveSymbol string
	Watchlist    []string
	StrategyID   string
	Params       StrategyParams
	AutoTrade    bool
	TradeAmount  float64
	Symbols      map[string]SymbolState
	Portfolio    PortfolioState
	Scan         ScanState
	Backtest     BacktestState
	Alerts       []ErrorOccurred
}

// OnWatchlist reports whether symbol is a watchlist member.
func (s AppState) OnWatchlist(symbol string) bool {
	for _, w := range s.Watchlist {
		if w == symbol {
			return true
		}
	}
	return false
}

// Snapshot is the persisted subset of AppState, loaded at startup and
// saved on change by the persistence collaborator.
type Snapshot struct {
	Watchlist   []string       `json:"watchlist"`
	StrategyID  string         `json:"strategy_id"`
	Params      StrategyParams `json:"params"`
	TradeAmount float64        `json:"trade_amount"`
	SavedAt     time.Time      `json:"saved_at"`
}
