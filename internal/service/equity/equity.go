package equity

import (
	"context"
	"time"

	"TapeDeck/internal/bus"
	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
	"TapeDeck/internal/service"
	"TapeDeck/pkg/config"
	"TapeDeck/pkg/logger"
)

// StateReader is the read-only store view the sampler needs.
type StateReader interface {
	State() models.AppState
}

// Sampler records one equity curve point per interval: cash plus the
// sum of open positions marked to the latest known price. It reads only
// from the store snapshot, so a sample never blocks on the network.
type Sampler struct {
	*service.Runner

	states StateReader
	bus    *bus.Bus
}

// New builds the equity sampling service.
func New(cfg *config.Config, states StateReader, b *bus.Bus, log *logger.Logger, metrics repository.Metrics) *Sampler {
	s := &Sampler{states: states, bus: b}
	s.Runner = service.NewRunner("equity", cfg.Equity.Interval, s.tick, b, log, metrics)
	return s
}

func (s *Sampler) tick(ctx context.Context) error {
	state := s.states.State()
	point := Sample(state, time.Now())
	_ = s.bus.Publish(models.EquityUpdated{Point: point})
	return nil
}

// Sample computes the account value at ts from a state snapshot. Open
// positions are marked at the latest polled price when one exists; a
// position with no quote falls back to its broker-reported market
// value, then to cost basis.
func Sample(state models.AppState, ts time.Time) models.EquityPoint {
	value := state.Portfolio.Cash
	for symbol, pos := range state.Portfolio.Positions {
		switch {
		case state.Symbols[symbol].Quote.Price > 0:
			value += pos.Qty * state.Symbols[symbol].Quote.Price
		case pos.MarketValue > 0:
			value += pos.MarketValue
		default:
			value += pos.Qty * pos.AvgPrice
		}
	}
	return models.EquityPoint{
		Time:  ts.Truncate(time.Second),
		Cash:  state.Portfolio.Cash,
		Value: value,
	}
}
