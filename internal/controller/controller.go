package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TapeDeck/internal/bus"
	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
	"TapeDeck/pkg/logger"
)

// Store is the slice of the state store the controller depends on.
type Store interface {
	State() models.AppState
	DispatchWait(ctx context.Context, ev models.Event) error
}

// ModeSwitcher is the slice of the mode manager the controller drives.
type ModeSwitcher interface {
	Transition(ctx context.Context, target models.Mode, input *models.BacktestInput) error
}

// Controller is the single entry point for operator intents. It
// validates against the current snapshot, talks to the broker and mode
// manager, and turns outcomes into store events. It never mutates state
// directly.
type Controller struct {
	store   Store
	broker  repository.Broker
	modes   ModeSwitcher
	persist repository.Persister
	bus     *bus.Bus
	log     *logger.Logger
	metrics repository.Metrics
}

// New builds the controller.
func New(store Store, broker repository.Broker, modes ModeSwitcher,
	persist repository.Persister, b *bus.Bus, log *logger.Logger, metrics repository.Metrics) *Controller {
	return &Controller{
		store:   store,
		broker:  broker,
		modes:   modes,
		persist: persist,
		bus:     b,
		log:     log,
		metrics: metrics,
	}
}

// AddSymbol appends an uppercased symbol to the watchlist.
func (c *Controller) AddSymbol(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("empty symbol")
	}
	if err := c.store.DispatchWait(ctx, models.SymbolAdded{Symbol: symbol}); err != nil {
		return err
	}
	return c.saveSnapshot(ctx)
}

// RemoveSymbol drops a symbol and its accumulated state.
func (c *Controller) RemoveSymbol(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := c.store.DispatchWait(ctx, models.SymbolRemoved{Symbol: symbol}); err != nil {
		return err
	}
	return c.saveSnapshot(ctx)
}

// SetWatchlist replaces the watchlist wholesale.
func (c *Controller) SetWatchlist(ctx context.Context, symbols []string) error {
	if err := c.store.DispatchWait(ctx, models.WatchlistSet{Symbols: symbols}); err != nil {
		return err
	}
	return c.saveSnapshot(ctx)
}

// SelectSymbol changes the symbol in focus. Selecting a symbol that is
// not on the watchlist adds it first.
func (c *Controller) SelectSymbol(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return fmt.Errorf("empty symbol")
	}
	if !c.store.State().OnWatchlist(symbol) {
		if err := c.AddSymbol(ctx, symbol); err != nil {
			return err
		}
	}
	return c.store.DispatchWait(ctx, models.ActiveSymbolSet{Symbol: symbol})
}

// SetStrategy selects the strategy and its parameters.
func (c *Controller) SetStrategy(ctx context.Context, id string, params models.StrategyParams) error {
	if err := c.store.DispatchWait(ctx, models.StrategySet{ID: id, Params: params}); err != nil {
		return err
	}
	return c.saveSnapshot(ctx)
}

// ArmAutoTrade toggles automatic order submission on live signals.
func (c *Controller) ArmAutoTrade(ctx context.Context, enabled bool) error {
	return c.store.DispatchWait(ctx, models.AutoTradeArmed{Enabled: enabled})
}

// SetTradeAmount sets the cash amount used for auto-trade buys. Zero
// means spend all available cash.
func (c *Controller) SetTradeAmount(ctx context.Context, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("trade amount must not be negative")
	}
	if err := c.store.DispatchWait(ctx, models.TradeAmountSet{Amount: amount}); err != nil {
		return err
	}
	return c.saveSnapshot(ctx)
}

// EnterBacktest switches to backtest mode and launches a run.
func (c *Controller) EnterBacktest(ctx context.Context, input models.BacktestInput) error {
	input.Symbol = strings.ToUpper(strings.TrimSpace(input.Symbol))
	if input.Symbol == "" {
		return fmt.Errorf("backtest: empty symbol")
	}
	if !input.From.Before(input.To) {
		return fmt.Errorf("backtest: from %s is not before to %s", input.From.Format(time.DateOnly), input.To.Format(time.DateOnly))
	}
	state := c.store.State()
	if input.StrategyID == "" {
		input.StrategyID = state.StrategyID
	}
	if input.Params == (models.StrategyParams{}) {
		// a request naming only the strategy still runs with the
		// configured parameters, not zero-valued ones
		input.Params = state.Params
	}
	return c.modes.Transition(ctx, models.ModeBacktest, &input)
}

// ExitBacktest cancels any running backtest and returns to live mode.
func (c *Controller) ExitBacktest(ctx context.Context) error {
	return c.modes.Transition(ctx, models.ModeLive, nil)
}

// SubmitOrder is the manual order path; it runs the same validation and
// submission as auto-trade intents.
func (c *Controller) SubmitOrder(ctx context.Context, symbol string, side models.OrderSide, posPct float64) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	state := c.store.State()
	quote := state.Symbols[symbol].Quote
	return c.HandleOrderIntent(ctx, models.OrderIntent{
		Symbol: symbol,
		Side:   side,
		Price:  quote.Price,
		PosPct: posPct,
		Reason: "manual",
		At:     time.Now(),
	})
}

// HandleOrderIntent validates an intent against the current snapshot and
// submits it to the broker. Rejections surface as order_error alerts;
// fills are mirrored into the store.
func (c *Controller) HandleOrderIntent(ctx context.Context, intent models.OrderIntent) error {
	state := c.store.State()
	if state.Mode != models.ModeLive {
		return c.reject(intent, "not in live mode")
	}

	qty, reason := c.sizeOrder(state, intent)
	if reason != "" {
		return c.reject(intent, reason)
	}

	order, err := c.broker.SubmitOrder(ctx, intent.Symbol, intent.Side, models.OrderTypeMarket, qty)
	if err != nil {
		c.metrics.RecordError("order_submit")
		return c.reject(intent, err.Error())
	}
	if intent.Reason != "" {
		order.Reason = intent.Reason
	}

	c.log.Info("order filled",
		logger.String("symbol", order.Symbol),
		logger.String("side", string(order.Side)),
		logger.Any("qty", order.Qty),
		logger.Any("price", order.Price))
	return c.store.DispatchWait(ctx, models.OrderFilled{Order: *order})
}

// sizeOrder computes the order quantity, or a rejection reason.
func (c *Controller) sizeOrder(state models.AppState, intent models.OrderIntent) (float64, string) {
	switch intent.Side {
	case models.OrderSideBuy:
		if intent.Price <= 0 {
			return 0, "no price available"
		}
		budget := state.TradeAmount
		if budget == 0 || budget > state.Portfolio.Cash {
			budget = state.Portfolio.Cash
		}
		qty := budget / intent.Price
		if qty <= 0 {
			return 0, "insufficient cash"
		}
		return qty, ""
	case models.OrderSideSell:
		pos, ok := state.Portfolio.Position(intent.Symbol)
		if !ok || pos.Qty <= 0 {
			return 0, "no position to sell"
		}
		pct := intent.PosPct
		if pct <= 0 || pct > 100 {
			pct = 100
		}
		return pos.Qty * pct / 100, ""
	default:
		return 0, fmt.Sprintf("unknown side %q", intent.Side)
	}
}

func (c *Controller) reject(intent models.OrderIntent, reason string) error {
	c.log.Warn("order rejected",
		logger.String("symbol", intent.Symbol),
		logger.String("side", string(intent.Side)),
		logger.String("reason", reason))
	_ = c.bus.Publish(models.ErrorOccurred{
		Code:    models.ErrCodeOrderError,
		Symbol:  intent.Symbol,
		Message: reason,
		At:      time.Now(),
	})
	return nil
}

// saveSnapshot persists the durable state subset. Persistence failures
// are logged, not propagated; the in-memory state is already committed.
func (c *Controller) saveSnapshot(ctx context.Context) error {
	state := c.store.State()
	snap := &models.Snapshot{
		Watchlist:   state.Watchlist,
		StrategyID:  state.StrategyID,
		Params:      state.Params,
		TradeAmount: state.TradeAmount,
		SavedAt:     time.Now(),
	}
	if err := c.persist.Save(ctx, snap); err != nil {
		c.log.Warn("snapshot save failed", logger.Error(err))
		c.metrics.RecordError("snapshot_save")
	}
	return nil
}
