package scanner

import (
	"context"
	"sort"
	"sync"
	"time"

	"TapeDeck/internal/bus"
	"TapeDeck/internal/domain/models"
	"TapeDeck/internal/domain/repository"
	"TapeDeck/internal/service"
	"TapeDeck/pkg/config"
	"TapeDeck/pkg/logger"
	"TapeDeck/pkg/workpool"
)

// Scanner periodically pulls the top market movers, enriches each row
// with profile and news data, applies the favorability filter and
// publishes one coalesced ScanResultsUpdated per sweep. Results are also
// written through the persister so a restart inside the cache window
// does not begin with an empty screen.
type Scanner struct {
	*service.Runner

	data    repository.DataAPI
	persist repository.Persister
	bus     *bus.Bus
	pool    *workpool.Pool
	log     *logger.Logger
	metrics repository.Metrics
	cfg     *config.Config
}

// New builds the scanner service.
func New(cfg *config.Config, data repository.DataAPI, persist repository.Persister,
	b *bus.Bus, log *logger.Logger, metrics repository.Metrics) *Scanner {
	s := &Scanner{
		data:    data,
		persist: persist,
		bus:     b,
		pool:    workpool.New(cfg.Polling.MaxConcurrent),
		log:     log,
		metrics: metrics,
		cfg:     cfg,
	}
	s.Runner = service.NewRunner("scanner", cfg.Scanner.Interval, s.tick, b, log, metrics)
	return s
}

func (s *Scanner) tick(ctx context.Context) error {
	started := time.Now()
	movers, err := s.data.FetchMovers(ctx, s.cfg.Scanner.Limit)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	enriched := make([]models.Mover, 0, len(movers))
	s.pool.Each(ctx, len(movers), func(i int) {
		m, ok := s.enrich(ctx, movers[i])
		if !ok {
			return
		}
		mu.Lock()
		enriched = append(enriched, m)
		mu.Unlock()
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	sort.Slice(enriched, func(i, j int) bool {
		return enriched[i].ChangePct > enriched[j].ChangePct
	})
	passed := make([]models.Mover, 0, len(enriched))
	for _, m := range enriched {
		if m.Passed {
			passed = append(passed, m)
		}
	}
	s.metrics.RecordLatency("scan_sweep", time.Since(started).Seconds())

	now := time.Now()
	_ = s.bus.Publish(models.ScanResultsUpdated{Passed: passed, All: enriched, At: now})

	if err := s.persist.SaveScan(ctx, &models.ScanState{Passed: passed, All: enriched, UpdatedAt: now}); err != nil {
		// cache write failures do not fail the sweep
		s.log.Warn("scan cache save failed", logger.Error(err))
		s.metrics.RecordError("scan_cache_save")
	}
	return nil
}

// enrich fills profile and news fields for one mover and applies the
// favorability filter. Rows whose enrichment fails are dropped from the
// sweep rather than failing it.
func (s *Scanner) enrich(ctx context.Context, m models.Mover) (models.Mover, bool) {
	quote, err := s.data.FetchQuote(ctx, m.Symbol)
	if err != nil {
		s.log.Debug("scan enrich quote failed", logger.String("symbol", m.Symbol), logger.Error(err))
		return m, false
	}
	m.Price = quote.Price
	m.Volume = quote.Volume
	m.AvgVolume = quote.AvgVolume

	profile, err := s.data.FetchProfile(ctx, m.Symbol)
	if err != nil {
		s.log.Debug("scan enrich profile failed", logger.String("symbol", m.Symbol), logger.Error(err))
		return m, false
	}
	m.Float = profile.FloatShares
	if m.AvgVolume == 0 {
		m.AvgVolume = profile.AvgVolume
	}
	if m.AvgVolume > 0 {
		m.RelVolPct = m.Volume / m.AvgVolume * 100
	}

	hasNews, err := s.data.HasRecentNews(ctx, m.Symbol, s.cfg.Scanner.NewsWindow)
	if err != nil {
		// news is a soft signal; keep the row without it
		s.log.Debug("scan news check failed", logger.String("symbol", m.Symbol), logger.Error(err))
		hasNews = false
	}
	m.HasNews = hasNews
	m.FetchedAt = time.Now()
	m.Passed = s.favorable(m)
	return m, true
}

func (s *Scanner) favorable(m models.Mover) bool {
	if m.ChangePct < s.cfg.Scanner.MinGainPct {
		return false
	}
	if m.RelVolPct < s.cfg.Scanner.MinRelVol*100 {
		return false
	}
	if s.cfg.Scanner.MaxFloat > 0 && m.Float > s.cfg.Scanner.MaxFloat {
		return false
	}
	if m.Price < s.cfg.Scanner.MinPrice {
		return false
	}
	if s.cfg.Scanner.MaxPrice > 0 && m.Price > s.cfg.Scanner.MaxPrice {
		return false
	}
	return m.HasNews
}
