package models

import "time"

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

type OrderStatus string

const (
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusRejected OrderStatus = "rejected"
)

// Order is a broker order as mirrored into PortfolioState. Orders keep
// submission order in the state slice.
type Order struct {
	ID          string
	Symbol      string
	Side        OrderSide
	Type        OrderType
	Qty         float64
	Price       float64
	Status      OrderStatus
	Reason      string
	SubmittedAt time.Time
}

// Position is a held quantity for one symbol.
type Position struct {
	Symbol      string
	Qty         float64
	AvgPrice    float64
	MarketValue float64
}

// EquityPoint is one sample of total account value.
type EquityPoint struct {
	Time  time.Time
	Cash  float64
	Value float64
}

// PortfolioState aggregates cash, positions, order history and the
// recorded equity curve. It is owned by the store; only reducers write it.
type PortfolioState struct {
	Cash        float64
	BuyingPower float64
	Positions   map[string]Position
	Orders      []Order
	EquityCurve []EquityPoint
}

// Position returns the held position for symbol, if any.
func (p PortfolioState) Position(symbol string) (Position, bool) {
	pos, ok := p.Positions[symbol]
	return pos, ok
}

// Balance is the broker-reported account snapshot used at startup.
type Balance struct {
	Cash        float64
	BuyingPower float64
	Value       float64
}
