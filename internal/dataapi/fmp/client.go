package fmp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/service/ratelimit"
	"TapeDeck/pkg/cache"
	"TapeDeck/pkg/config"
	httpkit "TapeDeck/pkg/http"
	"TapeDeck/pkg/logger"
	"TapeDeck/pkg/util"
)

const limiterKey = "fmp"

// Client is a DataAPI backed by the Financial Modeling Prep REST API.
// Profile and news lookups are read-through cached; every request goes
// through a token-bucket limiter so bursts of symbols do not trip the
// upstream rate limit.
type Client struct {
	baseURL   string
	apiKey    string
	rateLimit float64

	http    *httpkit.Client
	limiter *ratelimit.Limiter
	cache   cache.Service
	log     *logger.Logger

	historyTTL time.Duration
	profileTTL time.Duration
}

// New builds an FMP client.
func New(cfg *config.Config, c cache.Service, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.DataAPI.BaseURL, "/"),
		apiKey:     cfg.DataAPI.APIKey,
		rateLimit:  cfg.DataAPI.RateLimit,
		http:       httpkit.NewClient(httpkit.WithTimeout(cfg.Polling.FetchTimeout)),
		limiter:    ratelimit.New(),
		cache:      c,
		log:        log,
		historyTTL: cfg.DataAPI.HistoryTTL,
		profileTTL: cfg.DataAPI.ProfileTTL,
	}
}

func (c *Client) get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	if err := c.limiter.Wait(ctx, limiterKey, c.rateLimit, c.rateLimit); err != nil {
		return err
	}
	if query == nil {
		query = map[string][]string{}
	}
	query["apikey"] = []string{c.apiKey}
	return c.http.SendAndParse(ctx, &httpkit.RequestOptions{
		Method:      httpkit.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: query,
	}, dest)
}

type quoteRow struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	PreviousClose float64 `json:"previousClose"`
	Volume        float64 `json:"volume"`
	AvgVolume     float64 `json:"avgVolume"`
	Timestamp     int64   `json:"timestamp"`
}

func (c *Client) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	var rows []quoteRow
	if err := c.get(ctx, "/quote/"+symbol, nil, &rows); err != nil {
		return nil, fmt.Errorf("fmp quote: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("fmp quote: no data for %s", symbol)
	}
	r := rows[0]
	return &models.Quote{
		Symbol:        r.Symbol,
		Price:         r.Price,
		Change:        r.Change,
		PreviousClose: r.PreviousClose,
		Volume:        r.Volume,
		AvgVolume:     r.AvgVolume,
		Timestamp:     time.Unix(r.Timestamp, 0),
	}, nil
}

type barRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func (c *Client) FetchHistory(ctx context.Context, symbol string, from, to time.Time, interval string) (*models.PriceSeries, error) {
	key := fmt.Sprintf("fmp:history:%s:%s:%d:%d", symbol, interval, from.Unix(), to.Unix())
	var cached models.PriceSeries
	if err := c.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	var rows []barRow
	query := map[string][]string{
		"from": {from.Format(time.DateOnly)},
		"to":   {to.Format(time.DateOnly)},
	}
	if err := c.get(ctx, fmt.Sprintf("/historical-chart/%s/%s", interval, symbol), query, &rows); err != nil {
		return nil, fmt.Errorf("fmp history: %w", err)
	}

	series := &models.PriceSeries{Symbol: symbol, Interval: interval}
	for _, r := range rows {
		ts, ok := util.ParseTime(r.Date)
		if !ok {
			continue
		}
		if ts.Before(from) || ts.After(to) {
			continue
		}
		series.Candles = append(series.Candles, models.Candle{
			Time: ts, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume,
		})
	}
	// the API returns newest first
	sort.Slice(series.Candles, func(i, j int) bool {
		return series.Candles[i].Time.Before(series.Candles[j].Time)
	})

	if err := c.cache.Set(ctx, key, series, c.historyTTL); err != nil {
		c.log.Debug("history cache set failed", logger.Error(err))
	}
	return series, nil
}

type moverRow struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Change     float64 `json:"change"`
	ChangesPct float64 `json:"changesPercentage"`
}

func (c *Client) FetchMovers(ctx context.Context, limit int) ([]models.Mover, error) {
	var rows []moverRow
	if err := c.get(ctx, "/stock_market/gainers", nil, &rows); err != nil {
		return nil, fmt.Errorf("fmp movers: %w", err)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	movers := make([]models.Mover, 0, len(rows))
	for _, r := range rows {
		movers = append(movers, models.Mover{
			Symbol:    r.Symbol,
			Price:     r.Price,
			Change:    r.Change,
			ChangePct: r.ChangesPct,
		})
	}
	return movers, nil
}

type profileRow struct {
	Symbol      string  `json:"symbol"`
	VolAvg      float64 `json:"volAvg"`
	FloatShares float64 `json:"floatShares"`
}

func (c *Client) FetchProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	key := "fmp:profile:" + symbol
	var cached models.CompanyProfile
	if err := c.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	var rows []profileRow
	if err := c.get(ctx, "/profile/"+symbol, nil, &rows); err != nil {
		return nil, fmt.Errorf("fmp profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("fmp profile: no data for %s", symbol)
	}
	profile := &models.CompanyProfile{
		Symbol:      rows[0].Symbol,
		FloatShares: rows[0].FloatShares,
		AvgVolume:   rows[0].VolAvg,
	}
	if err := c.cache.Set(ctx, key, profile, c.profileTTL); err != nil {
		c.log.Debug("profile cache set failed", logger.Error(err))
	}
	return profile, nil
}

type newsRow struct {
	PublishedDate string `json:"publishedDate"`
}

func (c *Client) HasRecentNews(ctx context.Context, symbol string, window time.Duration) (bool, error) {
	key := "fmp:news:" + symbol
	var cached bool
	if err := c.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	var rows []newsRow
	query := map[string][]string{
		"tickers": {symbol},
		"limit":   {"10"},
	}
	if err := c.get(ctx, "/stock_news", query, &rows); err != nil {
		return false, fmt.Errorf("fmp news: %w", err)
	}

	cutoff := time.Now().Add(-window)
	recent := false
	for _, r := range rows {
		if ts, ok := util.ParseTime(r.PublishedDate); ok && ts.After(cutoff) {
			recent = true
			break
		}
	}
	if err := c.cache.Set(ctx, key, recent, c.profileTTL); err != nil {
		c.log.Debug("news cache set failed", logger.Error(err))
	}
	return recent, nil
}
