package di

import (
	"fmt"
	"net"
	"time"

	"TapeDeck/internal/backtest"
	"TapeDeck/internal/broker/paper"
	"TapeDeck/internal/bus"
	"TapeDeck/internal/controller"
	"TapeDeck/internal/dataapi/finnhub"
	"TapeDeck/internal/dataapi/fmp"
	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
	"TapeDeck/internal/handler/api"
	"TapeDeck/internal/mode"
	"TapeDeck/internal/overlay"
	"TapeDeck/internal/persist"
	"TapeDeck/internal/service"
	"TapeDeck/internal/service/equity"
	"TapeDeck/internal/service/poller"
	"TapeDeck/internal/service/scanner"
	"TapeDeck/internal/store"
	"TapeDeck/internal/strategy"
	"TapeDeck/pkg/cache"
	"TapeDeck/pkg/config"
	xhttp "TapeDeck/pkg/http"
	"TapeDeck/pkg/logger"
	"TapeDeck/pkg/metrics"
	"TapeDeck/pkg/server"
	"TapeDeck/pkg/util"
)

// ProvideLogger creates the application logger and routes collected
// warn/error bursts into the overlay feed.
func ProvideLogger(cfg *config.Config, ov *overlay.Overlay) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	l.AddCollector(&logger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          "log_burst",
		Publisher:      ov,
	})
	return l, nil
}

// ProvideMetrics creates the Prometheus recorder, or a no-op when
// metrics are disabled.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvideCache builds the cache stack: memory-only by default, layered
// over Redis when configured.
func ProvideCache(cfg *config.Config, l *logger.Logger) cache.Service {
	if cfg.Cache.Redis.Enabled {
		host, port := cfg.Cache.Redis.Addr, 6379
		if h, p, err := net.SplitHostPort(cfg.Cache.Redis.Addr); err == nil {
			host = h
			port = util.ParseIntDefault(p, port)
		}
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(host),
			cache.WithRedisPort(port),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
			cache.WithRedisPrefix("tapedeck"),
		)
		if err == nil {
			return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize))
		}
		l.Warn("redis unavailable, using memory cache", logger.Error(err))
	}
	return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
}

// ProvideOverlay creates the warning overlay feed.
func ProvideOverlay() *overlay.Overlay {
	return overlay.New(5*time.Minute, 100)
}

// ProvideBus creates the coalescing event bus.
func ProvideBus(m repository.Metrics) *bus.Bus {
	return bus.New(m)
}

// ProvideStore creates the state store seeded from config.
func ProvideStore(cfg *config.Config, l *logger.Logger, m repository.Metrics) *store.Store {
	initial := models.AppState{
		Mode: models.ModeIdle,
		Config: models.RuntimeConfig{
			EquityRetention: cfg.Equity.Retention,
		},
	}
	return store.New(initial, cfg.Store.QueueSize, l, m)
}

// ProvideDataAPI creates the market data client.
func ProvideDataAPI(cfg *config.Config, c cache.Service, l *logger.Logger) repository.DataAPI {
	return fmp.New(cfg, c, l)
}

// ProvideQuoteStream creates the push price stream, nil when disabled.
func ProvideQuoteStream(cfg *config.Config, l *logger.Logger) repository.QuoteStream {
	if !cfg.Stream.Enabled || cfg.Stream.APIKey == "" {
		return nil
	}
	return finnhub.New(cfg.Stream.APIKey, cfg.Stream.URL, cfg.Stream.ReconnectDelay, cfg.Stream.PingInterval, l)
}

// ProvideEngines exposes the strategy registry.
func ProvideEngines() map[string]repository.StrategyEngine {
	return strategy.Registry()
}

// storeQuoter adapts store snapshots to the paper broker's price source.
type storeQuoter struct {
	store *store.Store
}

func (q storeQuoter) LastPrice(symbol string) (float64, bool) {
	price := q.store.State().Symbols[symbol].Quote.Price
	return price, price > 0
}

// ProvideBroker creates the execution backend.
func ProvideBroker(cfg *config.Config, st *store.Store, l *logger.Logger) repository.Broker {
	return paper.New(cfg.Broker.StartingCash, storeQuoter{store: st}, l)
}

// ProvidePersister creates the file-backed persistence layer.
func ProvidePersister(cfg *config.Config, l *logger.Logger) repository.Persister {
	return persist.NewFileStore(cfg.Persist.Path, l)
}

// ProvideServices assembles the live services in start order.
func ProvideServices(
	cfg *config.Config,
	st *store.Store,
	data repository.DataAPI,
	stream repository.QuoteStream,
	engines map[string]repository.StrategyEngine,
	persister repository.Persister,
	b *bus.Bus,
	l *logger.Logger,
	m repository.Metrics,
) []service.Service {
	return []service.Service{
		poller.New(cfg, st, data, stream, engines, b, l, m),
		scanner.New(cfg, data, persister, b, l, m),
		equity.New(cfg, st, b, l, m),
	}
}

// ProvideSession creates the backtest session runner.
func ProvideSession(cfg *config.Config, data repository.DataAPI, engines map[string]repository.StrategyEngine,
	b *bus.Bus, l *logger.Logger, m repository.Metrics) *backtest.Session {
	return backtest.NewSession(data, engines, cfg.DataAPI.Interval, b, l, m)
}

// ProvideModeManager creates the mode manager over the live services.
func ProvideModeManager(cfg *config.Config, st *store.Store, services []service.Service,
	session *backtest.Session, b *bus.Bus, l *logger.Logger, m repository.Metrics) *mode.Manager {
	return mode.NewManager(st, services, session, cfg.Mode.DrainTimeout, b, l, m)
}

// ProvideController creates the intent controller.
func ProvideController(st *store.Store, broker repository.Broker, modes *mode.Manager,
	persister repository.Persister, b *bus.Bus, l *logger.Logger, m repository.Metrics) *controller.Controller {
	return controller.New(st, broker, modes, persister, b, l, m)
}

// ProvideRouter wires the bus to the store and controller.
func ProvideRouter(b *bus.Bus, st *store.Store, ctrl *controller.Controller, l *logger.Logger) *bus.Router {
	return bus.NewRouter(b, st, ctrl, l)
}

// ProvideHandler creates the status HTTP handler.
func ProvideHandler(l *logger.Logger, st *store.Store, ctrl *controller.Controller, ov *overlay.Overlay) xhttp.Handler {
	return api.NewStatusHandler(l, st, ctrl, ov)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	st *store.Store,
	b *bus.Bus,
	router *bus.Router,
	modes *mode.Manager,
	ctrl *controller.Controller,
	broker repository.Broker,
	stream repository.QuoteStream,
	persister repository.Persister,
	ov *overlay.Overlay,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, l, st, b, router, modes, ctrl, broker, stream, persister, ov, handler)
}
