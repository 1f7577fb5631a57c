package paper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TapeDeck/internal/domain/models"
	"TapeDeck/pkg/logger"
)

type fixedQuoter map[string]float64

func (q fixedQuoter) LastPrice(symbol string) (float64, bool) {
	price, ok := q[symbol]
	return price, ok
}

func newTestBroker(t *testing.T, cash float64, quotes fixedQuoter) *Broker {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return New(cash, quotes, l)
}

func TestBuyFillsAtLastPrice(t *testing.T) {
	b := newTestBroker(t, 10000, fixedQuoter{"AAPL": 100})
	ctx := context.Background()

	order, err := b.SubmitOrder(ctx, "AAPL", models.OrderSideBuy, models.OrderTypeMarket, 10)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, order.Status)
	assert.Equal(t, 100.0, order.Price)
	assert.Equal(t, 10.0, order.Qty)

	balance, err := b.FetchBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 9000.0, balance.Cash, 1e-9)
	assert.InDelta(t, 10000.0, balance.Value, 1e-9)
}

func TestBuyClampsToAvailableCash(t *testing.T) {
	b := newTestBroker(t, 500, fixedQuoter{"AAPL": 100})

	order, err := b.SubmitOrder(context.Background(), "AAPL", models.OrderSideBuy, models.OrderTypeMarket, 10)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, order.Qty, 1e-9)

	balance, err := b.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.0, balance.Cash, 1e-9)
}

func TestBuyAveragesEntryPrice(t *testing.T) {
	quotes := fixedQuoter{"AAPL": 100}
	b := newTestBroker(t, 100000, quotes)
	ctx := context.Background()

	_, err := b.SubmitOrder(ctx, "AAPL", models.OrderSideBuy, models.OrderTypeMarket, 10)
	require.NoError(t, err)
	quotes["AAPL"] = 120
	_, err = b.SubmitOrder(ctx, "AAPL", models.OrderSideBuy, models.OrderTypeMarket, 10)
	require.NoError(t, err)

	positions, err := b.FetchPositions(ctx)
	require.NoError(t, err)
	pos := positions["AAPL"]
	assert.InDelta(t, 20.0, pos.Qty, 1e-9)
	assert.InDelta(t, 110.0, pos.AvgPrice, 1e-9)
}

func TestSellClosesPositionAndCreditsCash(t *testing.T) {
	quotes := fixedQuoter{"AAPL": 100}
	b := newTestBroker(t, 1000, quotes)
	ctx := context.Background()

	_, err := b.SubmitOrder(ctx, "AAPL", models.OrderSideBuy, models.OrderTypeMarket, 10)
	require.NoError(t, err)
	quotes["AAPL"] = 110
	_, err = b.SubmitOrder(ctx, "AAPL", models.OrderSideSell, models.OrderTypeMarket, 10)
	require.NoError(t, err)

	positions, err := b.FetchPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	balance, err := b.FetchBalance(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1100.0, balance.Cash, 1e-9)
}

func TestSellClampsToHeldQuantity(t *testing.T) {
	b := newTestBroker(t, 1000, fixedQuoter{"AAPL": 100})
	ctx := context.Background()

	_, err := b.SubmitOrder(ctx, "AAPL", models.OrderSideBuy, models.OrderTypeMarket, 5)
	require.NoError(t, err)
	order, err := b.SubmitOrder(ctx, "AAPL", models.OrderSideSell, models.OrderTypeMarket, 50)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, order.Qty, 1e-9)
}

func TestSellWithoutPositionFails(t *testing.T) {
	b := newTestBroker(t, 1000, fixedQuoter{"AAPL": 100})
	_, err := b.SubmitOrder(context.Background(), "AAPL", models.OrderSideSell, models.OrderTypeMarket, 1)
	assert.Error(t, err)
}

func TestRejectsLimitOrders(t *testing.T) {
	b := newTestBroker(t, 1000, fixedQuoter{"AAPL": 100})
	_, err := b.SubmitOrder(context.Background(), "AAPL", models.OrderSideBuy, models.OrderTypeLimit, 1)
	assert.Error(t, err)
}

func TestRejectsUnknownSymbol(t *testing.T) {
	b := newTestBroker(t, 1000, fixedQuoter{})
	_, err := b.SubmitOrder(context.Background(), "ZZZZ", models.OrderSideBuy, models.OrderTypeMarket, 1)
	assert.Error(t, err)
}

func TestOpenOrdersAlwaysEmpty(t *testing.T) {
	b := newTestBroker(t, 1000, fixedQuoter{"AAPL": 100})
	_, err := b.SubmitOrder(context.Background(), "AAPL", models.OrderSideBuy, models.OrderTypeMarket, 1)
	require.NoError(t, err)

	orders, err := b.FetchOpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}
