package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"TapeDeck/internal/backtest"
	"TapeDeck/internal/controller"
	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/mode"
	"TapeDeck/internal/overlay"
	"TapeDeck/internal/store"
	xhttp "TapeDeck/pkg/http"
	xlogger "TapeDeck/pkg/logger"
)

// StatusHandler exposes the dashboard state and the operator intents
// over HTTP. It is a thin adapter: reads come from store snapshots,
// writes go through the controller.
type StatusHandler struct {
	logger  *xlogger.Logger
	store   *store.Store
	ctrl    *controller.Controller
	overlay *overlay.Overlay
}

func NewStatusHandler(logger *xlogger.Logger, st *store.Store, ctrl *controller.Controller, ov *overlay.Overlay) *StatusHandler {
	return &StatusHandler{logger: logger, store: st, ctrl: ctrl, overlay: ov}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/state", h.State)
	g.GET("/scan", h.Scan)
	g.GET("/alerts", h.Alerts)
	g.GET("/portfolio", h.Portfolio)
	g.POST("/watchlist", h.SetWatchlist)
	g.POST("/symbols/:symbol", h.AddSymbol)
	g.DELETE("/symbols/:symbol", h.RemoveSymbol)
	g.POST("/strategy", h.SetStrategy)
	g.POST("/autotrade", h.ArmAutoTrade)
	g.POST("/orders", h.SubmitOrder)
	g.POST("/backtest", h.StartBacktest)
	g.DELETE("/backtest", h.StopBacktest)
}

func (h *StatusHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// fail maps controller errors onto the API error envelope. Transition
// races are conflicts, everything else from the controller is a bad
// request.
func (h *StatusHandler) fail(c echo.Context, err error) error {
	if errors.Is(err, mode.ErrTransitionInProgress) || errors.Is(err, backtest.ErrAlreadyRunning) {
		return xhttp.AppErrorResponse(c, xhttp.ConflictError(err.Error()))
	}
	return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
}

type stateResponse struct {
	Mode         string               `json:"mode"`
	ActiveSymbol string               `json:"active_symbol"`
	Watchlist    []string             `json:"watchlist"`
	StrategyID   string               `json:"strategy_id"`
	AutoTrade    bool                 `json:"auto_trade"`
	TradeAmount  float64              `json:"trade_amount"`
	Quotes       map[string]float64   `json:"quotes"`
	Backtest     models.BacktestState `json:"backtest"`
}

func (h *StatusHandler) State(c echo.Context) error {
	s := h.store.State()
	quotes := make(map[string]float64, len(s.Symbols))
	for sym, ss := range s.Symbols {
		quotes[sym] = ss.Quote.Price
	}
	return xhttp.SuccessResponse(c, stateResponse{
		Mode:         s.Mode.String(),
		ActiveSymbol: s.ActiveSymbol,
		Watchlist:    s.Watchlist,
		StrategyID:   s.StrategyID,
		AutoTrade:    s.AutoTrade,
		TradeAmount:  s.TradeAmount,
		Quotes:       quotes,
		Backtest:     s.Backtest,
	})
}

func (h *StatusHandler) Scan(c echo.Context) error {
	s := h.store.State()
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), len(s.Scan.Passed))
	passed := s.Scan.Passed
	if limit < len(passed) {
		passed = passed[:limit]
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"passed":     passed,
		"updated_at": s.Scan.UpdatedAt,
	})
}

func (h *StatusHandler) Alerts(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.overlay.Recent())
}

func (h *StatusHandler) Portfolio(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.store.State().Portfolio)
}

type watchlistRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1"`
}

func (h *StatusHandler) SetWatchlist(c echo.Context) error {
	req := &watchlistRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.ctrl.SetWatchlist(c.Request().Context(), req.Symbols); err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, h.store.State().Watchlist)
}

func (h *StatusHandler) AddSymbol(c echo.Context) error {
	if err := h.ctrl.AddSymbol(c.Request().Context(), c.Param("symbol")); err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, h.store.State().Watchlist)
}

func (h *StatusHandler) RemoveSymbol(c echo.Context) error {
	if err := h.ctrl.RemoveSymbol(c.Request().Context(), c.Param("symbol")); err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, h.store.State().Watchlist)
}

type strategyRequest struct {
	ID     string                `json:"id" validate:"required"`
	Params models.StrategyParams `json:"params"`
}

func (h *StatusHandler) SetStrategy(c echo.Context) error {
	req := &strategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.ctrl.SetStrategy(c.Request().Context(), req.ID, req.Params); err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, req.ID)
}

type autoTradeRequest struct {
	Enabled bool     `json:"enabled"`
	Amount  *float64 `json:"amount,omitempty"`
}

func (h *StatusHandler) ArmAutoTrade(c echo.Context) error {
	req := &autoTradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	if req.Amount != nil {
		if err := h.ctrl.SetTradeAmount(ctx, *req.Amount); err != nil {
			return h.fail(c, err)
		}
	}
	if err := h.ctrl.ArmAutoTrade(ctx, req.Enabled); err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, req.Enabled)
}

type orderRequest struct {
	Symbol string  `json:"symbol" validate:"required"`
	Side   string  `json:"side" validate:"required,oneof=buy sell"`
	PosPct float64 `json:"pos_pct" default:"100"`
}

func (h *StatusHandler) SubmitOrder(c echo.Context) error {
	req := &orderRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	err := h.ctrl.SubmitOrder(c.Request().Context(), req.Symbol, models.OrderSide(req.Side), req.PosPct)
	if err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, "submitted")
}

type backtestRequest struct {
	Symbol       string  `json:"symbol" validate:"required"`
	From         string  `json:"from" validate:"required"`
	To           string  `json:"to" validate:"required"`
	StartingCash float64 `json:"starting_cash" default:"10000"`
	StrategyID   string  `json:"strategy_id"`
}

func (h *StatusHandler) StartBacktest(c echo.Context) error {
	req := &backtestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, ok := xhttp.ParseTime(req.From)
	if !ok {
		return xhttp.BadRequestResponse(c, "invalid from date")
	}
	to := xhttp.ParseTimeDefault(req.To, time.Now())
	err := h.ctrl.EnterBacktest(c.Request().Context(), models.BacktestInput{
		Symbol:       req.Symbol,
		From:         from,
		To:           to,
		StartingCash: req.StartingCash,
		StrategyID:   req.StrategyID,
	})
	if err != nil {
		h.logger.Warn("backtest start rejected", xlogger.Error(err))
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, "started")
}

func (h *StatusHandler) StopBacktest(c echo.Context) error {
	if err := h.ctrl.ExitBacktest(c.Request().Context()); err != nil {
		return h.fail(c, err)
	}
	return xhttp.SuccessResponse(c, "live")
}
