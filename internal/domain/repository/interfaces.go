package repository

import (
	"context"
	"time"

	"TapeDeck/internal/domain/models"
)

// DataAPI is the market data collaborator boundary.
type DataAPI interface {
	FetchQuote(ctx context.Context, symbol string) (*models.Quote, error)
	FetchHistory(ctx context.Context, symbol string, from, to time.Time, interval string) (*models.PriceSeries, error)
	FetchMovers(ctx context.Context, limit int) ([]models.Mover, error)
	FetchProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error)
	HasRecentNews(ctx context.Context, symbol string, window time.Duration) (bool, error)
}

// QuoteStream is an optional push feed of last trade prices. When
// connected, pushed prices take precedence over polled quotes.
type QuoteStream interface {
	Start(ctx context.Context, symbols []string) error
	Last(symbol string) (float64, bool)
	Close() error
}

// Broker is the order execution collaborator boundary. PortfolioState is
// mirrored from broker acks via store events; the broker owns its book.
type Broker interface {
	SubmitOrder(ctx context.Context, symbol string, side models.OrderSide, typ models.OrderType, qty float64) (*models.Order, error)
	FetchBalance(ctx context.Context) (models.Balance, error)
	FetchPositions(ctx context.Context) (map[string]models.Position, error)
	FetchOpenOrders(ctx context.Context) ([]models.Order, error)
}

// StrategyEngine evaluates live signals and runs deterministic backtests
// over a historical series.
type StrategyEngine interface {
	// Indicators returns a copy of series with indicator rows populated.
	Indicators(series *models.PriceSeries, params models.StrategyParams) *models.PriceSeries
	// Evaluate returns a signal for the series tail, or nil.
	Evaluate(series *models.PriceSeries, params models.StrategyParams, pos *models.Position) *models.Signal
	// Backtest is pure: identical inputs yield identical runs.
	Backtest(ctx context.Context, series *models.PriceSeries, params models.StrategyParams, startingCash float64) (*models.BacktestRun, error)
}

// Persister loads and saves the durable AppState subset.
type Persister interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snap *models.Snapshot) error
	LoadScan(ctx context.Context, maxAge time.Duration) (*models.ScanState, error)
	SaveScan(ctx context.Context, scan *models.ScanState) error
}

// Metrics is the observability recorder used across services.
type Metrics interface {
	RecordEvent(kind string, applied bool)
	RecordCoalesced(kind string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordMode(mode string)
}
