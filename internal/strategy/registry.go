package strategy

import "TapeDeck/internal/domain/repository"

// StrategyMACDCross is the default strategy identifier.
const StrategyMACDCross = "macd-cross"

// Registry returns the id-to-engine map used by the poller and backtest
// session. Engines are stateless and shared.
func Registry() map[string]repository.StrategyEngine {
	return map[string]repository.StrategyEngine{
		StrategyMACDCross: NewMACDCross(),
	}
}
