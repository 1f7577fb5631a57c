package models

import "time"

// Event is a typed state mutation proposal. Services and the controller
// publish events; only store reducers turn them into state.
type Event interface {
	// Kind names the event for logging and metrics.
	Kind() string
	// CoalesceKey is the per-key coalescing key on the event bus. Events
	// returning "" are never coalesced.
	CoalesceKey() string
}

// SymbolUpdated carries a fresh series/quote/signal for one symbol.
// Published by the live polling service, at most once per symbol per tick.
type SymbolUpdated struct {
	Symbol string
	Series *PriceSeries
	Quote  Quote
	Signal *Signal
	At     time.Time
}

func (SymbolUpdated) Kind() string          { return "symbol_updated" }
func (e SymbolUpdated) CoalesceKey() string { return "symbol:" + e.Symbol }

// ScanResultsUpdated carries the latest filtered movers list.
type ScanResultsUpdated struct {
	Passed []Mover
	All    []Mover
	At     time.Time
}

func (ScanResultsUpdated) Kind() string        { return "scan_results_updated" }
func (ScanResultsUpdated) CoalesceKey() string { return "scan" }

// EquityUpdated appends (or replaces, when the timestamp repeats) one
// equity curve point.
type EquityUpdated struct {
	Point EquityPoint
}

func (EquityUpdated) Kind() string        { return "equity_updated" }
func (EquityUpdated) CoalesceKey() string { return "equity" }

// OrderIntent asks the controller to validate and submit an order. It is
// routed to the controller, never applied to the store directly.
type OrderIntent struct {
	Symbol string
	Side   OrderSide
	Price  float64
	PosPct float64
	Reason string
	At     time.Time
}

func (OrderIntent) Kind() string        { return "order_intent" }
func (OrderIntent) CoalesceKey() string { return "" }

// PortfolioSynced replaces the mirrored book with the broker's view.
// Dispatched at startup and after reconnects.
type PortfolioSynced struct {
	Balance   Balance
	Positions map[string]Position
	Orders    []Order
}

func (PortfolioSynced) Kind() string        { return "portfolio_synced" }
func (PortfolioSynced) CoalesceKey() string { return "portfolio_sync" }

// OrderFilled mirrors a broker fill into PortfolioState.
type OrderFilled struct {
	Order Order
}

func (OrderFilled) Kind() string        { return "order_filled" }
func (OrderFilled) CoalesceKey() string { return "" }

// ModeChanged commits a mode transition. Dispatched only by the mode
// manager.
type ModeChanged struct {
	Mode Mode
}

func (ModeChanged) Kind() string        { return "mode_changed" }
func (ModeChanged) CoalesceKey() string { return "" }

// ModeTransitioned is the post-commit observability record of a
// completed transition.
type ModeTransitioned struct {
	From Mode
	To   Mode
	At   time.Time
}

func (ModeTransitioned) Kind() string        { return "mode_transitioned" }
func (ModeTransitioned) CoalesceKey() string { return "" }

// WatchlistSet replaces the watchlist. Duplicates are dropped by the
// reducer, first occurrence wins.
type WatchlistSet struct {
	Symbols []string
}

func (WatchlistSet) Kind() string        { return "watchlist_set" }
func (WatchlistSet) CoalesceKey() string { return "" }

// SymbolAdded appends one symbol to the watchlist.
type SymbolAdded struct {
	Symbol string
}

func (SymbolAdded) Kind() string        { return "symbol_added" }
func (SymbolAdded) CoalesceKey() string { return "" }

// SymbolRemoved removes one symbol and evicts its SymbolState.
type SymbolRemoved struct {
	Symbol string
}

func (SymbolRemoved) Kind() string        { return "symbol_removed" }
func (SymbolRemoved) CoalesceKey() string { return "" }

// ActiveSymbolSet changes the symbol in focus.
type ActiveSymbolSet struct {
	Symbol string
}

func (ActiveSymbolSet) Kind() string        { return "active_symbol_set" }
func (ActiveSymbolSet) CoalesceKey() string { return "" }

// StrategySet selects the strategy and its parameters.
type StrategySet struct {
	ID     string
	Params StrategyParams
}

func (StrategySet) Kind() string        { return "strategy_set" }
func (StrategySet) CoalesceKey() string { return "" }

// AutoTradeArmed toggles automatic order submission on signals.
type AutoTradeArmed struct {
	Enabled bool
}

func (AutoTradeArmed) Kind() string        { return "auto_trade_armed" }
func (AutoTradeArmed) CoalesceKey() string { return "" }

// TradeAmountSet stores the cash amount used for auto-trade buys.
type TradeAmountSet struct {
	Amount float64
}

func (TradeAmountSet) Kind() string        { return "trade_amount_set" }
func (TradeAmountSet) CoalesceKey() string { return "" }

// BacktestStarted marks a session as running.
type BacktestStarted struct {
	Input BacktestInput
}

func (BacktestStarted) Kind() string        { return "backtest_started" }
func (BacktestStarted) CoalesceKey() string { return "" }

// BacktestFinished publishes a completed, immutable report.
type BacktestFinished struct {
	Report *BacktestReport
}

func (BacktestFinished) Kind() string        { return "backtest_finished" }
func (BacktestFinished) CoalesceKey() string { return "" }

// BacktestFailed records a failed or canceled run; no report exists.
type BacktestFailed struct {
	Err string
}

func (BacktestFailed) Kind() string        { return "backtest_failed" }
func (BacktestFailed) CoalesceKey() string { return "" }

// ErrorCode classifies user-visible failures.
type ErrorCode string

const (
	ErrCodeDataUnavailable    ErrorCode = "data_unavailable"
	ErrCodeOrderError         ErrorCode = "order_error"
	ErrCodeBacktestFailed     ErrorCode = "backtest_failed"
	ErrCodeTransitionDegraded ErrorCode = "transition_degraded"
	ErrCodeServiceError       ErrorCode = "service_error"
)

// ErrorOccurred is the warning stream rendered by the overlay service.
type ErrorOccurred struct {
	Code    ErrorCode
	Symbol  string
	Message string
	At      time.Time
}

func (ErrorOccurred) Kind() string          { return "error_occurred" }
func (e ErrorOccurred) CoalesceKey() string { return "" }
