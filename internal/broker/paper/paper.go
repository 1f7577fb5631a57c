package paper

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"TapeDeck/internal/domain/models"
	"TapeDeck/pkg/logger"
)

// Quoter supplies the fill price for market orders; backed by the store
// snapshot so paper fills track the latest polled price.
type Quoter interface {
	LastPrice(symbol string) (float64, bool)
}

// Broker simulates an account: market orders fill immediately at the
// last known price, limit orders are rejected. It keeps its own book so
// restarts of the store do not invent cash.
type Broker struct {
	quoter Quoter
	log    *logger.Logger

	mu        sync.Mutex
	cash      float64
	positions map[string]models.Position
	orders    []models.Order
	nextID    int
}

// New creates a paper broker with the given starting cash.
func New(startingCash float64, quoter Quoter, log *logger.Logger) *Broker {
	return &Broker{
		quoter:    quoter,
		log:       log,
		cash:      startingCash,
		positions: make(map[string]models.Position),
	}
}

func (b *Broker) SubmitOrder(ctx context.Context, symbol string, side models.OrderSide, typ models.OrderType, qty float64) (*models.Order, error) {
	if typ != models.OrderTypeMarket {
		return nil, fmt.Errorf("paper: only market orders are supported")
	}
	if qty <= 0 {
		return nil, fmt.Errorf("paper: quantity must be positive, got %g", qty)
	}
	price, ok := b.quoter.LastPrice(symbol)
	if !ok || price <= 0 {
		return nil, fmt.Errorf("paper: no price for %s", symbol)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch side {
	case models.OrderSideBuy:
		cost := qty * price
		if cost > b.cash {
			// fill what the cash covers rather than rejecting outright
			qty = b.cash / price
			cost = qty * price
		}
		if qty <= 0 {
			return nil, fmt.Errorf("paper: insufficient cash for %s", symbol)
		}
		b.cash -= cost
		pos := b.positions[symbol]
		total := pos.Qty + qty
		pos.Symbol = symbol
		pos.AvgPrice = (pos.AvgPrice*pos.Qty + cost) / total
		pos.Qty = total
		pos.MarketValue = total * price
		b.positions[symbol] = pos
	case models.OrderSideSell:
		pos, held := b.positions[symbol]
		if !held || pos.Qty <= 0 {
			return nil, fmt.Errorf("paper: no position in %s", symbol)
		}
		if qty > pos.Qty {
			qty = pos.Qty
		}
		b.cash += qty * price
		pos.Qty -= qty
		pos.MarketValue = pos.Qty * price
		if pos.Qty <= 1e-9 {
			delete(b.positions, symbol)
		} else {
			b.positions[symbol] = pos
		}
	default:
		return nil, fmt.Errorf("paper: unknown side %q", side)
	}

	b.nextID++
	order := models.Order{
		ID:          fmt.Sprintf("paper-%d", b.nextID),
		Symbol:      symbol,
		Side:        side,
		Type:        typ,
		Qty:         qty,
		Price:       price,
		Status:      models.OrderStatusFilled,
		SubmittedAt: time.Now(),
	}
	b.orders = append(b.orders, order)
	b.log.Debug("paper fill",
		logger.String("symbol", symbol),
		logger.String("side", string(side)),
		logger.Any("qty", qty),
		logger.Any("price", price))
	return &order, nil
}

func (b *Broker) FetchBalance(ctx context.Context) (models.Balance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value := b.cash
	for _, pos := range b.positions {
		value += pos.MarketValue
	}
	return models.Balance{Cash: b.cash, BuyingPower: b.cash, Value: value}, nil
}

func (b *Broker) FetchPositions(ctx context.Context) (map[string]models.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.positions), nil
}

// FetchOpenOrders is always empty for a paper account; market fills are
// immediate.
func (b *Broker) FetchOpenOrders(ctx context.Context) ([]models.Order, error) {
	return nil, nil
}
