package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/dyike/stella/consts"
	"github.com/dyike/stella/internal/llm"
	"github.com/dyike/stella/internal/models"
	"github.com/dyike/stella/internal/news"
	"github.com/dyike/stella/internal/pool"
)

func (e *Executors) Highlights(ctx context.Context, s *models.AgentState) (*models.AgentState, error) {
	defer took(consts.Highlights, time.Now())
	if len(s.Companies) == 0 {
		s.Response = consts.MsgNoCompanies
		return s, nil
	}

	entries := e.collectHighlights(ctx, s.Companies)
	if s.Mode == models.Interactive {
		out, err := e.renderHighlights(ctx, entries)
		if err != nil {
			log.Error().Err(err).Msg("error generating highlights")
			s.Response = consts.MsgHighlightsError
			return s, nil
		}
		s.Response = out
		return s, nil
	}

	s.Response = highlightsJSON(entries)
	return s, nil
}

// collectHighlights fetches every company concurrently and returns the
// survivors in input order. A company whose fetch panics is dropped.
func (e *Executors) collectHighlights(ctx context.Context, companies []models.CompanyRef) []models.CompanyHighlights {
	slots := make([]*models.CompanyHighlights, len(companies))
	var wg sync.WaitGroup
	for i, c := range companies {
		pool.SafeGo(&wg, "highlights:"+c.Ticker, func() {
			slots[i] = e.companyHighlights(ctx, c)
		})
	}
	wg.Wait()

	out := make([]models.CompanyHighlights, 0, len(companies))
	for i, entry := range slots {
		if entry == nil {
			log.Warn().Str("ticker", companies[i].Ticker).Msg("excluding company from highlights")
			continue
		}
		out = append(out, *entry)
	}
	return out
}

func (e *Executors) companyHighlights(ctx context.Context, c models.CompanyRef) *models.CompanyHighlights {
	if c.Name == c.Ticker {
		g := e.pool.Group(ctx)
		g.Go("name:"+c.Ticker, func(ctx context.Context) {
			c.Name = e.market.DisplayName(ctx, c.Ticker)
		})
		g.Wait()
	}

	var (
		stock *models.HighlightsSnapshot
		items []string
	)
	g := e.pool.Group(ctx)
	g.Go("stock:"+c.Ticker, func(ctx context.Context) {
		snap := e.market.GetStockHighlights(ctx, c.Ticker)
		stock = &snap
	})
	g.Go("recent-news:"+c.Ticker, func(ctx context.Context) {
		items = e.news.RecentNews(ctx, c.Ticker, c.Name)
	})
	g.Wait()
	if stock == nil || items == nil {
		return nil
	}

	return &models.CompanyHighlights{
		Company:      c.Name,
		Ticker:       c.Ticker,
		CurrentPrice: stock.CurrentPrice,
		DailyChange:  stock.DailyChange,
		MA50:         stock.MA50,
		MA200:        stock.MA200,
		News:         items,
	}
}

// highlightsJSON emits a bare object for one company and an array
// otherwise.
func highlightsJSON(entries []models.CompanyHighlights) string {
	var (
		data []byte
		err  error
	)
	if len(entries) == 1 {
		data, err = json.Marshal(entries[0])
	} else {
		data, err = json.Marshal(entries)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to encode highlights")
		return "[]"
	}
	return string(data)
}

// renderHighlights builds one markdown block per company with an LLM news
// digest. Any digest failure fails the whole response.
func (e *Executors) renderHighlights(ctx context.Context, entries []models.CompanyHighlights) (string, error) {
	summaries := make([]string, len(entries))
	errs := make([]error, len(entries))

	g := e.pool.Group(ctx)
	for i, entry := range entries {
		items := news.Clean(entry.News)
		if len(items) == 0 {
			summaries[i] = consts.MsgNoNews
			continue
		}
		g.Go("summary:"+entry.Ticker, func(ctx context.Context) {
			summaries[i], errs[i] = e.summarize(ctx, llm.PromptHighlightsSummary, items, map[string]any{"company": entry.Company})
		})
	}
	g.Wait()

	blocks := make([]string, 0, len(entries))
	for i, entry := range entries {
		if errs[i] != nil {
			return "", fmt.Errorf("summary for %s: %w", entry.Ticker, errs[i])
		}
		if summaries[i] == "" && ctx.Err() != nil {
			return "", ctx.Err()
		}
		blocks = append(blocks, highlightBlock(entry, summaries[i]))
	}
	return strings.Join(blocks, "\n\n"), nil
}

func highlightBlock(h models.CompanyHighlights, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s (%s)**\n", h.Company, h.Ticker)
	fmt.Fprintf(&b, "Current Price: %s\n", formatNumber(h.CurrentPrice))
	if h.DailyChange != nil {
		fmt.Fprintf(&b, "Daily Change: %.2f%% \n", *h.DailyChange)
	} else {
		b.WriteString("Daily Change: N/A\n")
	}
	fmt.Fprintf(&b, "50 Day MA: %s\n", formatNumber(h.MA50))
	fmt.Fprintf(&b, "200 Day MA: %s\n", formatNumber(h.MA200))
	fmt.Fprintf(&b, "Recent News:\n%s\n", summary)
	return b.String()
}
