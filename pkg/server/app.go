package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TapeDeck/internal/bus"
	"TapeDeck/internal/controller"
	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
	"TapeDeck/internal/mode"
	"TapeDeck/internal/overlay"
	"TapeDeck/internal/persist"
	"TapeDeck/internal/store"
	"TapeDeck/pkg/config"
	xhttp "TapeDeck/pkg/http"
	applogger "TapeDeck/pkg/logger"
)

// App encapsulates the entire application lifecycle: the store and
// event router goroutines, the live services behind the mode manager,
// the quote stream, and the status HTTP server.
type App struct {
	cfg     *config.Config
	log     *applogger.Logger
	store   *store.Store
	bus     *bus.Bus
	router  *bus.Router
	modes   *mode.Manager
	ctrl    *controller.Controller
	broker  repository.Broker
	stream  repository.QuoteStream
	persist repository.Persister
	overlay *overlay.Overlay

	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
}

// New creates an App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
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
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		store:       st,
		bus:         b,
		router:      router,
		modes:       modes,
		ctrl:        ctrl,
		broker:      broker,
		stream:      stream,
		persist:     persister,
		overlay:     ov,
		httpHandler: handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.store.Run(ctx)
	go a.router.Run(ctx)
	go a.overlay.Watch(ctx, a.store)

	if err := a.seed(ctx); err != nil {
		return err
	}

	if a.stream != nil && a.cfg.Stream.Enabled {
		if err := a.stream.Start(ctx, a.store.State().Watchlist); err != nil {
			// the stream is an enhancement over polling, not a dependency
			a.log.Warn("quote stream unavailable", applogger.Error(err))
		}
	}

	if err := a.modes.Transition(ctx, models.ModeLive, nil); err != nil {
		return err
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}
	a.log.Info("application started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Int("watchlist", len(a.store.State().Watchlist)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	a.log.Info("shutdown signal received")
	return a.shutdown(cancel)
}

// seed restores durable state and mirrors the broker book before any
// service starts, so the first tick already sees the real watchlist.
func (a *App) seed(ctx context.Context) error {
	watchlist := a.cfg.Watchlist
	strategyID := a.cfg.Strategy.ID
	params := models.StrategyParams{
		MACDThreshold: a.cfg.Strategy.MACDThreshold,
		BBPeriod:      a.cfg.Strategy.BBPeriod,
		BBDev:         a.cfg.Strategy.BBDev,
		Lookback:      a.cfg.Strategy.Lookback,
	}
	var tradeAmount float64

	if snap, err := a.persist.Load(ctx); err == nil {
		if len(snap.Watchlist) > 0 {
			watchlist = snap.Watchlist
		}
		if snap.StrategyID != "" {
			strategyID = snap.StrategyID
			params = snap.Params
		}
		tradeAmount = snap.TradeAmount
		a.log.Info("restored snapshot", applogger.Int("symbols", len(snap.Watchlist)))
	} else if !errors.Is(err, persist.ErrNotFound) {
		a.log.Warn("snapshot load failed", applogger.Error(err))
	}

	if err := a.store.DispatchWait(ctx, models.WatchlistSet{Symbols: watchlist}); err != nil {
		return err
	}
	if err := a.store.DispatchWait(ctx, models.StrategySet{ID: strategyID, Params: params}); err != nil {
		return err
	}
	if tradeAmount > 0 {
		if err := a.store.DispatchWait(ctx, models.TradeAmountSet{Amount: tradeAmount}); err != nil {
			return err
		}
	}

	balance, err := a.broker.FetchBalance(ctx)
	if err != nil {
		return err
	}
	positions, err := a.broker.FetchPositions(ctx)
	if err != nil {
		return err
	}
	orders, err := a.broker.FetchOpenOrders(ctx)
	if err != nil {
		return err
	}
	if err := a.store.DispatchWait(ctx, models.PortfolioSynced{
		Balance:   balance,
		Positions: positions,
		Orders:    orders,
	}); err != nil {
		return err
	}

	if scan, err := a.persist.LoadScan(ctx, a.cfg.Scanner.CacheTTL); err == nil {
		a.store.Dispatch(models.ScanResultsUpdated{Passed: scan.Passed, All: scan.All, At: scan.UpdatedAt})
	}
	return nil
}

// shutdown stops services, the stream and the HTTP server in order.
func (a *App) shutdown(cancel context.CancelFunc) error {
	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer stopCancel()

	a.modes.StopAll(stopCtx)
	if a.stream != nil {
		if err := a.stream.Close(); err != nil {
			a.log.Warn("stream close error", applogger.Error(err))
		}
	}
	a.bus.Close()
	cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(stopCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	// give in-flight dispatches a moment to settle before exit
	time.Sleep(50 * time.Millisecond)
	a.log.Info("shutdown complete")
	return nil
}
