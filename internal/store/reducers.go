package store

import (
	"maps"
	"slices"
	"strings"

	"TapeDeck/internal/domain/models"
)

// reduce maps (state, event) to the next state. Reducers are pure: no
// I/O, no blocking, no writes through shared references. Collections are
// cloned before modification because readers may still hold the previous
// snapshot. The second return value is false for unknown event shapes.
func reduce(s models.AppState, ev models.Event) (models.AppState, bool) {
	switch e := ev.(type) {
	case models.SymbolUpdated:
		return reduceSymbolUpdated(s, e), true
	case models.ScanResultsUpdated:
		s.Scan = models.ScanState{Passed: e.Passed, All: e.All, UpdatedAt: e.At}
		return s, true
	case models.EquityUpdated:
		return reduceEquityUpdated(s, e), true
	case models.OrderFilled:
		return reduceOrderFilled(s, e), true
	case models.PortfolioSynced:
		s.Portfolio.Cash = e.Balance.Cash
		s.Portfolio.BuyingPower = e.Balance.BuyingPower
		s.Portfolio.Positions = maps.Clone(e.Positions)
		if s.Portfolio.Positions == nil {
			s.Portfolio.Positions = make(map[string]models.Position)
		}
		s.Portfolio.Orders = slices.Clone(e.Orders)
		return s, true
	case models.ModeChanged:
		s.Mode = e.Mode
		if e.Mode != models.ModeBacktest {
			s.Backtest = models.BacktestState{}
		}
		return s, true
	case models.ModeTransitioned:
		return s, true
	case models.WatchlistSet:
		return reduceWatchlistSet(s, e), true
	case models.SymbolAdded:
		return reduceSymbolAdded(s, e), true
	case models.SymbolRemoved:
		return reduceSymbolRemoved(s, e), true
	case models.ActiveSymbolSet:
		if s.OnWatchlist(e.Symbol) {
			s.ActiveSymbol = e.Symbol
		}
		return s, true
	case models.StrategySet:
		s.StrategyID = e.ID
		s.Params = e.Params
		return s, true
	case models.AutoTradeArmed:
		s.AutoTrade = e.Enabled
		return s, true
	case models.TradeAmountSet:
		s.TradeAmount = e.Amount
		return s, true
	case models.BacktestStarted:
		in := e.Input
		s.Backtest = models.BacktestState{Running: true, Input: &in}
		return s, true
	case models.BacktestFinished:
		s.Backtest.Running = false
		s.Backtest.Report = e.Report
		s.Backtest.Err = ""
		return s, true
	case models.BacktestFailed:
		s.Backtest.Running = false
		s.Backtest.Report = nil
		s.Backtest.Err = e.Err
		return s, true
	case models.ErrorOccurred:
		alerts := append(slices.Clone(s.Alerts), e)
		if len(alerts) > maxAlerts {
			alerts = alerts[len(alerts)-maxAlerts:]
		}
		s.Alerts = alerts
		return s, true
	default:
		return s, false
	}
}

func reduceSymbolUpdated(s models.AppState, e models.SymbolUpdated) models.AppState {
	symbols := maps.Clone(s.Symbols)
	st := symbols[e.Symbol]
	st.Symbol = e.Symbol
	st.Series = e.Series
	st.Quote = e.Quote
	if e.Signal != nil {
		st.LastSignal = e.Signal
	}
	st.FailStreak = 0
	st.UpdatedAt = e.At
	symbols[e.Symbol] = st
	s.Symbols = symbols
	return s
}

// epsilonQty treats residual fractional quantities as flat.
const epsilonQty = 1e-9

// maxAlerts bounds the overlay alert ring.
const maxAlerts = 50

func reduceEquityUpdated(s models.AppState, e models.EquityUpdated) models.AppState {
	curve := s.Portfolio.EquityCurve
	stale := len(curve) > 0 && curve[len(curve)-1].Time.After(e.Point.Time)

	out := make([]models.EquityPoint, 0, len(curve)+1)
	replaced := false
	for _, p := range curve {
		if s.Config.EquityRetention > 0 && p.Time.Before(e.Point.Time.Add(-s.Config.EquityRetention)) {
			continue
		}
		if p.Time.Equal(e.Point.Time) {
			// idempotent replay: same timestamp replaces the point
			out = append(out, e.Point)
			replaced = true
			continue
		}
		out = append(out, p)
	}
	if !replaced {
		if stale {
			// older than the tail and matching no recorded point:
			// drop it, the curve stays monotonic
			return s
		}
		out = append(out, e.Point)
	}
	s.Portfolio.EquityCurve = out
	return s
}

func reduceOrderFilled(s models.AppState, e models.OrderFilled) models.AppState {
	o := e.Order
	s.Portfolio.Orders = append(slices.Clone(s.Portfolio.Orders), o)
	if o.Status != models.OrderStatusFilled {
		return s
	}

	positions := maps.Clone(s.Portfolio.Positions)
	pos := positions[o.Symbol]
	pos.Symbol = o.Symbol
	switch o.Side {
	case models.OrderSideBuy:
		cost := o.Qty * o.Price
		held := pos.Qty * pos.AvgPrice
		pos.Qty += o.Qty
		if pos.Qty > 0 {
			pos.AvgPrice = (held + cost) / pos.Qty
		}
		pos.MarketValue = pos.Qty * o.Price
		positions[o.Symbol] = pos
		s.Portfolio.Cash -= cost
	case models.OrderSideSell:
		pos.Qty -= o.Qty
		pos.MarketValue = pos.Qty * o.Price
		if pos.Qty <= epsilonQty {
			delete(positions, o.Symbol)
		} else {
			positions[o.Symbol] = pos
		}
		s.Portfolio.Cash += o.Qty * o.Price
	}
	s.Portfolio.Positions = positions
	return s
}

func reduceWatchlistSet(s models.AppState, e models.WatchlistSet) models.AppState {
	seen := make(map[string]struct{}, len(e.Symbols))
	list := make([]string, 0, len(e.Symbols))
	for _, sym := range e.Symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		list = append(list, sym)
	}

	symbols := make(map[string]models.SymbolState, len(list))
	for _, sym := range list {
		if st, ok := s.Symbols[sym]; ok {
			symbols[sym] = st
		} else {
			symbols[sym] = models.SymbolState{Symbol: sym}
		}
	}

	s.Watchlist = list
	s.Symbols = symbols
	if !s.OnWatchlist(s.ActiveSymbol) {
		s.ActiveSymbol = ""
		if len(list) > 0 {
			s.ActiveSymbol = list[0]
		}
	}
	// replacing the watchlist disarms auto-trading
	s.AutoTrade = false
	return s
}

func reduceSymbolAdded(s models.AppState, e models.SymbolAdded) models.AppState {
	sym := strings.ToUpper(strings.TrimSpace(e.Symbol))
	if sym == "" || s.OnWatchlist(sym) {
		return s
	}
	s.Watchlist = append(slices.Clone(s.Watchlist), sym)
	symbols := maps.Clone(s.Symbols)
	symbols[sym] = models.SymbolState{Symbol: sym}
	s.Symbols = symbols
	if s.ActiveSymbol == "" {
		s.ActiveSymbol = sym
	}
	return s
}

func reduceSymbolRemoved(s models.AppState, e models.SymbolRemoved) models.AppState {
	sym := strings.ToUpper(strings.TrimSpace(e.Symbol))
	if !s.OnWatchlist(sym) {
		return s
	}
	list := make([]string, 0, len(s.Watchlist)-1)
	for _, w := range s.Watchlist {
		if w != sym {
			list = append(list, w)
		}
	}
	symbols := maps.Clone(s.Symbols)
	delete(symbols, sym)
	s.Watchlist = list
	s.Symbols = symbols
	if s.ActiveSymbol == sym {
		s.ActiveSymbol = ""
		if len(list) > 0 {
			s.ActiveSymbol = list[0]
		}
	}
	return s
}
