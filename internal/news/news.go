package news

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/phuslu/log"

	"github.com/dyike/stella/internal/cache"
	"github.com/dyike/stella/internal/dataflows"
)

const defaultLimit = 5

// FeedSource returns ticker-scoped headlines.
type FeedSource interface {
	Name() string
	News(ctx context.Context, symbol string, limit int) ([]dataflows.NewsItem, error)
}

// SearchSource runs free-text news searches.
type SearchSource interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]dataflows.NewsItem, error)
}

// Provider flattens news from tiered sources into display strings. Like the
// market provider it never fails: exhaustion yields an empty list.
type Provider struct {
	feeds    []FeedSource
	searches []SearchSource
	loader   *cache.Loader
	limit    int
}

func NewProvider(feeds []FeedSource, searches []SearchSource, loader *cache.Loader) *Provider {
	return &Provider{feeds: feeds, searches: searches, loader: loader, limit: defaultLimit}
}

// Search returns up to limit items for query from the first search tier
// that has any.
func (p *Provider) Search(ctx context.Context, query string, limit int) []string {
	for _, src := range p.searches {
		items, err := src.Search(ctx, query, limit)
		if err != nil || len(items) == 0 {
			log.Debug().Err(err).Str("source", src.Name()).Str("query", query).Msg("news search tier failed")
			continue
		}
		log.Info().Str("source", src.Name()).Int("items", len(items)).Str("query", query).Msg("fetched news")
		return Format(items)
	}
	log.Warn().Str("query", query).Msg("no news source returned results")
	return []string{}
}

func (p *Provider) CompanyNews(ctx context.Context, company string) []string {
	return p.Search(ctx, "latest news on "+company, p.limit)
}

func (p *Provider) GeneralNews(ctx context.Context, topic string) []string {
	return p.Search(ctx, "latest news on "+topic, p.limit)
}

// RecentNews returns cached ticker news, or walks the feed tiers and, when a
// company name is known, a final web search. Only non-empty results are
// cached.
func (p *Provider) RecentNews(ctx context.Context, ticker, company string) []string {
	ticker = dataflows.NormalizeSymbol(ticker)
	items, err := cache.Cached(ctx, p.loader, cache.KindNews, ticker, func(ctx context.Context) ([]string, error) {
		return p.fetchRecent(ctx, ticker, company)
	})
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("recent news unavailable")
		return []string{}
	}
	return items
}

func (p *Provider) fetchRecent(ctx context.Context, ticker, company string) ([]string, error) {
	for _, src := range p.feeds {
		items, err := src.News(ctx, ticker, p.limit)
		if err != nil || len(items) == 0 {
			log.Debug().Err(err).Str("source", src.Name()).Str("ticker", ticker).Msg("news tier failed, falling back")
			continue
		}
		log.Info().Str("source", src.Name()).Str("ticker", ticker).Msg("news fetched and cached")
		return Format(items), nil
	}
	if company != "" {
		if items := p.Search(ctx, fmt.Sprintf("latest news on %s stock", company), p.limit); len(items) > 0 {
			return items, nil
		}
	}
	return nil, fmt.Errorf("recent news for %s: %w", ticker, dataflows.ErrNoData)
}

// Format renders items as "title: summary", or "title: publisher - link"
// for sources that carry no summary.
func Format(items []dataflows.NewsItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch {
		case it.Summary != "":
			out = append(out, it.Title+": "+it.Summary)
		case it.Publisher != "" || it.URL != "":
			out = append(out, fmt.Sprintf("%s: %s - %s", it.Title, it.Publisher, it.URL))
		default:
			out = append(out, it.Title)
		}
	}
	return out
}

var strict = bluemonday.StrictPolicy()

// Clean strips markup from each item, keeping the text.
func Clean(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = strings.TrimSpace(html.UnescapeString(strict.Sanitize(item)))
	}
	return out
}
