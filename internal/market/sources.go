package market

import (
	"context"
	"time"

	"github.com/dyike/stella/internal/dataflows"
	"github.com/dyike/stella/internal/models"
)

type InfoSource interface {
	Name() string
	CompanyInfo(ctx context.Context, symbol string) (*dataflows.CompanyInfo, error)
}

// HistorySource returns daily bars from since until now, oldest first.
type HistorySource interface {
	Name() string
	DailyHistory(ctx context.Context, symbol string, since time.Time) ([]models.Bar, error)
}

type QuoteSource interface {
	Name() string
	Quote(ctx context.Context, symbol string) (*dataflows.Quote, error)
}

type NameSource interface {
	Name() string
	DisplayName(ctx context.Context, symbol string) (string, error)
}

// HighlightsSource is one tier of the highlights chain: a latest quote plus
// recent history for moving averages. A tier returning fewer than
// MinSessions bars counts as failed; zero accepts any length.
type HighlightsSource interface {
	QuoteSource
	RecentHistory(ctx context.Context, symbol string, since time.Time) ([]models.Bar, error)
	MinSessions() int
}

// fullYearSessions is the history a price-history tier must cover before
// its highlights are trusted.
const fullYearSessions = 200

// YahooHistory adapts the Yahoo chart API.
type YahooHistory struct {
	Client *dataflows.YahooClient
	Now    func() time.Time
}

func (h YahooHistory) Name() string { return h.Client.Name() }

func (h YahooHistory) DailyHistory(ctx context.Context, symbol string, since time.Time) ([]models.Bar, error) {
	return h.Client.History(ctx, symbol, since, h.Now())
}

// AlphaVantageHistory asks for the compact series when it covers since.
type AlphaVantageHistory struct {
	Client *dataflows.AlphaVantageClient
	Now    func() time.Time
}

func (h AlphaVantageHistory) Name() string { return h.Client.Name() }

func (h AlphaVantageHistory) DailyHistory(ctx context.Context, symbol string, since time.Time) ([]models.Bar, error) {
	// the compact series is the latest 100 sessions, about 140 calendar days
	full := h.Now().Sub(since) > 140*24*time.Hour
	bars, err := h.Client.History(ctx, symbol, full)
	if err != nil {
		return nil, err
	}
	return trimBefore(bars, since), nil
}

type LongportHistory struct {
	Client *dataflows.LongportClient
	Now    func() time.Time
}

func (h LongportHistory) Name() string { return h.Client.Name() }

func (h LongportHistory) DailyHistory(ctx context.Context, symbol string, since time.Time) ([]models.Bar, error) {
	days := h.Now().Sub(since).Hours() / 24
	count := int(days*tradingDaysPerYear/365) + 5
	bars, err := h.Client.History(ctx, symbol, count)
	if err != nil {
		return nil, err
	}
	return trimBefore(bars, since), nil
}

// YahooHighlights pairs the Yahoo quote with a year of chart history.
type YahooHighlights struct {
	*dataflows.YahooClient
	YahooHistory
}

func (y YahooHighlights) Name() string { return y.YahooClient.Name() }

func (y YahooHighlights) RecentHistory(ctx context.Context, symbol string, since time.Time) ([]models.Bar, error) {
	return y.YahooHistory.DailyHistory(ctx, symbol, since)
}

func (y YahooHighlights) MinSessions() int { return fullYearSessions }

// AlphaVantageHighlights uses the compact daily series only; the full
// series is a premium endpoint. 100 sessions leave the 200-day average nil.
type AlphaVantageHighlights struct {
	*dataflows.AlphaVantageClient
}

func (a AlphaVantageHighlights) Name() string { return a.AlphaVantageClient.Name() }

func (a AlphaVantageHighlights) RecentHistory(ctx context.Context, symbol string, since time.Time) ([]models.Bar, error) {
	bars, err := a.AlphaVantageClient.History(ctx, symbol, false)
	if err != nil {
		return nil, err
	}
	return trimBefore(bars, since), nil
}

func (a AlphaVantageHighlights) MinSessions() int { return 0 }

// YahooNames resolves display names from the quote's short name.
type YahooNames struct {
	Client *dataflows.YahooClient
}

func (n YahooNames) Name() string { return n.Client.Name() }

func (n YahooNames) DisplayName(ctx context.Context, symbol string) (string, error) {
	q, err := n.Client.Quote(ctx, symbol)
	if err != nil {
		return "", err
	}
	if q.Name == "" {
		return "", dataflows.ErrNoData
	}
	return q.Name, nil
}

func trimBefore(bars []models.Bar, since time.Time) []models.Bar {
	for i, b := range bars {
		if !b.Date.Before(since) {
			return bars[i:]
		}
	}
	return nil
}
