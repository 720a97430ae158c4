package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/dyike/stella/internal/cache"
	"github.com/dyike/stella/internal/dataflows"
	"github.com/dyike/stella/internal/models"
)

// Sources lists the provider tiers, highest priority first.
type Sources struct {
	Info       []InfoSource
	History    []HistorySource
	Highlights []HighlightsSource
	Quotes     []QuoteSource
	Names      []NameSource
}

// Provider serves metrics and highlights through the cache, falling back
// across tiers. Its public methods never return errors: exhaustion yields an
// empty value that the caller renders as unavailable.
type Provider struct {
	src    Sources
	loader *cache.Loader
	clock  cache.Clock
}

func NewProvider(src Sources, loader *cache.Loader, clock cache.Clock) *Provider {
	if clock == nil {
		clock = cache.SystemClock
	}
	return &Provider{src: src, loader: loader, clock: clock}
}

// GetMetrics returns the fundamentals snapshot for ticker, or an empty one
// (only Ticker set) when no source answered.
func (p *Provider) GetMetrics(ctx context.Context, ticker string) *models.Metrics {
	ticker = dataflows.NormalizeSymbol(ticker)
	m, err := cache.Cached(ctx, p.loader, cache.KindMetrics, ticker, func(ctx context.Context) (*models.Metrics, error) {
		return p.fetchMetrics(ctx, ticker)
	})
	if err != nil {
		log.Error().Err(err).Str("ticker", ticker).Msg("error fetching stock data")
		return &models.Metrics{Ticker: ticker}
	}
	return m
}

func (p *Provider) fetchMetrics(ctx context.Context, ticker string) (*models.Metrics, error) {
	var info *dataflows.CompanyInfo
	for _, src := range p.src.Info {
		got, err := src.CompanyInfo(ctx, ticker)
		if err != nil {
			log.Debug().Err(err).Str("source", src.Name()).Str("ticker", ticker).Msg("company info tier failed")
			continue
		}
		if info == nil {
			info = got
		} else {
			info.Merge(got)
		}
		if info.Description != "" && info.PriceTarget != nil {
			break
		}
	}

	since := p.clock.Now().AddDate(-5, 0, 0)
	bars, histSource := p.history(ctx, ticker, since)

	if info == nil && len(bars) == 0 {
		return nil, fmt.Errorf("metrics for %s: %w", ticker, dataflows.ErrNoData)
	}
	m := ComputeMetrics(ticker, info, closesOf(bars))
	log.Info().Str("ticker", ticker).Str("history", histSource).Int("bars", len(bars)).Msg("data fetched and cached")
	return m, nil
}

func (p *Provider) history(ctx context.Context, ticker string, since time.Time) ([]models.Bar, string) {
	for _, src := range p.src.History {
		bars, err := src.DailyHistory(ctx, ticker, since)
		if err != nil || len(bars) == 0 {
			log.Debug().Err(err).Str("source", src.Name()).Str("ticker", ticker).Msg("history tier failed")
			continue
		}
		return bars, src.Name()
	}
	return nil, ""
}

// ComputeMetrics derives the snapshot from a fundamentals bundle (may be
// nil) and daily closes, oldest first.
func ComputeMetrics(ticker string, info *dataflows.CompanyInfo, closes []float64) *models.Metrics {
	m := &models.Metrics{Ticker: ticker}
	if info != nil {
		m.CurrentPrice = info.CurrentPrice
		m.PriceTarget = info.PriceTarget
		m.FiftyTwoWeekHigh = info.FiftyTwoWeekHigh
		m.FiftyTwoWeekLow = info.FiftyTwoWeekLow
		m.AvgVolume = info.AvgVolume
		m.Beta = info.Beta
		m.DividendYield = info.DividendYield
		m.SharesOutstanding = info.SharesOutstanding
		m.MarketCap = info.MarketCap
		m.InstitutionalHoldings = info.InstitutionalHoldings
		m.InsiderHoldings = info.InsiderHoldings
		m.BookValuePerShare = info.BookValue
		m.DebtToCapital = info.DebtToEquity
		m.ReturnOnEquity = info.ReturnOnEquity
		m.BusinessDescription = info.Description
	}
	if m.CurrentPrice == nil && len(closes) > 0 {
		m.CurrentPrice = models.Float(closes[len(closes)-1])
	}

	m.OneYearReturn = TrailingReturn(closes, tradingDaysPerYear)
	m.FiveYearReturn = TrailingReturn(closes, 0)
	m.MA50 = MovingAverage(closes, 50)
	m.MA200 = MovingAverage(closes, 200)
	m.Volatility = Volatility(DailyReturns(closes))
	return m
}

// GetStockHighlights returns the short-lived price snapshot for ticker. A
// tier counts only if it answers with at least its MinSessions of history.
func (p *Provider) GetStockHighlights(ctx context.Context, ticker string) models.HighlightsSnapshot {
	ticker = dataflows.NormalizeSymbol(ticker)
	snap, err := cache.Cached(ctx, p.loader, cache.KindHighlights, ticker, func(ctx context.Context) (models.HighlightsSnapshot, error) {
		return p.fetchHighlights(ctx, ticker)
	})
	if err != nil {
		log.Error().Err(err).Str("ticker", ticker).Msg("error fetching highlights")
		return models.HighlightsSnapshot{}
	}
	return snap
}

func (p *Provider) fetchHighlights(ctx context.Context, ticker string) (models.HighlightsSnapshot, error) {
	since := p.clock.Now().AddDate(-1, 0, 0)
	var errs []error
	for _, src := range p.src.Highlights {
		snap, err := highlightsFrom(ctx, src, ticker, since)
		if err != nil {
			log.Debug().Err(err).Str("source", src.Name()).Str("ticker", ticker).Msg("highlights tier failed, falling back")
			errs = append(errs, err)
			continue
		}
		log.Info().Str("source", src.Name()).Str("ticker", ticker).Msg("highlights fetched and cached")
		return snap, nil
	}
	if len(errs) == 0 {
		return models.HighlightsSnapshot{}, fmt.Errorf("highlights for %s: %w", ticker, dataflows.ErrNoData)
	}
	return models.HighlightsSnapshot{}, errors.Join(errs...)
}

// highlightsFrom builds a snapshot from one tier. Averages the history
// cannot cover stay nil.
func highlightsFrom(ctx context.Context, src HighlightsSource, ticker string, since time.Time) (models.HighlightsSnapshot, error) {
	q, err := src.Quote(ctx, ticker)
	if err != nil {
		return models.HighlightsSnapshot{}, err
	}
	bars, err := src.RecentHistory(ctx, ticker, since)
	if err != nil {
		return models.HighlightsSnapshot{}, err
	}
	if len(bars) < src.MinSessions() {
		return models.HighlightsSnapshot{}, fmt.Errorf("not enough history data for %s: %d sessions", ticker, len(bars))
	}

	closes := closesOf(bars)
	change := DailyChange(q.Price, q.PreviousClose)
	if change == nil && q.ChangePercent != nil && q.PreviousClose == nil {
		change = q.ChangePercent
	}
	return models.HighlightsSnapshot{
		CurrentPrice: q.Price,
		DailyChange:  change,
		MA50:         models.Round2(MovingAverage(closes, 50)),
		MA200:        models.Round2(MovingAverage(closes, 200)),
	}, nil
}

// LivePrice returns the latest price from the first quote tier that has one.
func (p *Provider) LivePrice(ctx context.Context, ticker string) *float64 {
	for _, src := range p.src.Quotes {
		q, err := src.Quote(ctx, ticker)
		if err != nil || q.Price == nil {
			log.Debug().Err(err).Str("source", src.Name()).Str("ticker", ticker).Msg("live price tier failed")
			continue
		}
		return q.Price
	}
	return nil
}

// DisplayName resolves a human-readable company name, falling back to the
// ticker itself.
func (p *Provider) DisplayName(ctx context.Context, ticker string) string {
	for _, src := range p.src.Names {
		name, err := src.DisplayName(ctx, ticker)
		if err != nil || strings.TrimSpace(name) == "" {
			log.Debug().Err(err).Str("source", src.Name()).Str("ticker", ticker).Msg("display name tier failed")
			continue
		}
		return strings.TrimSpace(name)
	}
	return ticker
}

// History returns daily bars since the given time from the first tier that
// answers. Used by the pregeneration jobs.
func (p *Provider) History(ctx context.Context, ticker string, since time.Time) ([]models.Bar, error) {
	bars, _ := p.history(ctx, dataflows.NormalizeSymbol(ticker), since)
	if len(bars) == 0 {
		return nil, fmt.Errorf("history for %s: %w", ticker, dataflows.ErrNoData)
	}
	return bars, nil
}
