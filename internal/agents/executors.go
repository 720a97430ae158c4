package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/dyike/stella/consts"
	"github.com/dyike/stella/internal/cache"
	"github.com/dyike/stella/internal/llm"
	"github.com/dyike/stella/internal/models"
	"github.com/dyike/stella/internal/news"
	"github.com/dyike/stella/internal/pool"
)

const dateLayout = "2006-01-02"

// MarketData is the slice of the market provider the executors use.
type MarketData interface {
	GetMetrics(ctx context.Context, ticker string) *models.Metrics
	GetStockHighlights(ctx context.Context, ticker string) models.HighlightsSnapshot
	LivePrice(ctx context.Context, ticker string) *float64
	DisplayName(ctx context.Context, ticker string) string
}

// NewsData is the slice of the news provider the executors use.
type NewsData interface {
	CompanyNews(ctx context.Context, company string) []string
	GeneralNews(ctx context.Context, topic string) []string
	RecentNews(ctx context.Context, ticker, company string) []string
}

// Executors holds the five task nodes. Each fills state.Response and never
// returns an error: failures become the task's fixed error message.
type Executors struct {
	market MarketData
	news   NewsData
	gen    llm.Generator
	docs   *DocumentStore
	pool   *pool.Pool
	clock  cache.Clock

	background sync.WaitGroup
}

func NewExecutors(market MarketData, newsData NewsData, gen llm.Generator, docs *DocumentStore, p *pool.Pool, clock cache.Clock) *Executors {
	if clock == nil {
		clock = cache.SystemClock
	}
	return &Executors{market: market, news: newsData, gen: gen, docs: docs, pool: p, clock: clock}
}

// Wait blocks until background report generation has finished.
func (e *Executors) Wait() {
	e.background.Wait()
}

// ReportPath is where today's report for ticker is stored.
func (e *Executors) ReportPath(ticker string) string {
	return e.docs.ReportPath(ticker, e.today())
}

func (e *Executors) today() string {
	return e.clock.Now().Format(dateLayout)
}

// companyInputs is what the report and overview prompts are built from.
type companyInputs struct {
	metrics *models.Metrics
	news    []string
}

func (in *companyInputs) metricsJSON() string {
	data, err := json.MarshalIndent(in.metrics, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// gather fetches metrics and company news in parallel.
func (e *Executors) gather(ctx context.Context, c models.CompanyRef) *companyInputs {
	in := &companyInputs{}
	g := e.pool.Group(ctx)
	g.Go("metrics:"+c.Ticker, func(ctx context.Context) {
		in.metrics = e.market.GetMetrics(ctx, c.Ticker)
	})
	g.Go("news:"+c.Ticker, func(ctx context.Context) {
		in.news = news.Clean(e.news.CompanyNews(ctx, c.Name))
	})
	g.Wait()
	if in.metrics == nil {
		in.metrics = &models.Metrics{Ticker: c.Ticker}
	}
	return in
}

func (e *Executors) Report(ctx context.Context, s *models.AgentState) (*models.AgentState, error) {
	defer took(consts.Report, time.Now())
	if s.Company == nil {
		s.Response = consts.MsgNoCompany
		return s, nil
	}
	out, err := e.report(ctx, *s.Company, nil)
	if err != nil {
		log.Error().Err(err).Str("ticker", s.Company.Ticker).Msg("error generating report")
		s.Response = consts.MsgReportError
		return s, nil
	}
	s.Response = out
	return s, nil
}

// report returns today's stored report, or generates and stores one. in
// may carry inputs that were already fetched.
func (e *Executors) report(ctx context.Context, c models.CompanyRef, in *companyInputs) (string, error) {
	date := e.today()
	if doc, ok := e.docs.Report(c.Ticker, date); ok {
		log.Info().Str("ticker", c.Ticker).Str("date", date).Msg("serving stored report")
		return doc, nil
	}
	if in == nil {
		in = e.gather(ctx, c)
	}

	prompt, err := llm.Render(ctx, llm.PromptReport, map[string]any{
		"company": c.Name,
		"ticker":  c.Ticker,
		"date":    date,
		"data":    in.metricsJSON(),
		"news":    strings.Join(in.news, "\n"),
	})
	if err != nil {
		return "", err
	}
	out, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("report generation for %s: %w", c.Ticker, err)
	}
	if err := e.docs.SaveReport(c.Ticker, date, out); err != nil {
		log.Error().Err(err).Str("ticker", c.Ticker).Msg("failed to store report")
	}
	return out, nil
}

func (e *Executors) Overview(ctx context.Context, s *models.AgentState) (*models.AgentState, error) {
	defer took(consts.Overview, time.Now())
	if s.Company == nil {
		s.Response = consts.MsgNoCompany
		return s, nil
	}
	c := *s.Company
	date := e.today()

	if doc, ok := e.docs.Overview(c.Ticker, date); ok {
		if price := e.market.LivePrice(ctx, c.Ticker); price != nil {
			doc += "\n\n**Live Current Price:** " + formatNumber(price)
		}
		s.Response = doc
		return s, nil
	}

	in := e.gather(ctx, c)
	var (
		prompt string
		err    error
	)
	if report, ok := e.docs.Report(c.Ticker, date); ok {
		prompt, err = llm.Render(ctx, llm.PromptOverviewFromReport, map[string]any{"report": report})
	} else {
		prompt, err = llm.Render(ctx, llm.PromptOverview, map[string]any{
			"company": c.Name,
			"price":   formatNumber(in.metrics.CurrentPrice),
			"data":    in.metricsJSON(),
			"news":    strings.Join(in.news, "\n"),
		})
	}
	if err == nil {
		var out string
		out, err = e.gen.Generate(ctx, prompt)
		if err == nil {
			if serr := e.docs.SaveOverview(c.Ticker, date, out); serr != nil {
				log.Error().Err(serr).Str("ticker", c.Ticker).Msg("failed to store overview")
			}
			s.Response = out
		}
	}
	if err != nil {
		log.Error().Err(err).Str("ticker", c.Ticker).Msg("error generating overview")
		s.Response = consts.MsgOverviewError
	}

	e.reportInBackground(ctx, c, in)
	return s, nil
}

// reportInBackground makes sure a full report exists for the day without
// holding up the overview response.
func (e *Executors) reportInBackground(ctx context.Context, c models.CompanyRef, in *companyInputs) {
	bg := context.WithoutCancel(ctx)
	pool.SafeGo(&e.background, "report:"+c.Ticker, func() {
		if _, err := e.report(bg, c, in); err != nil {
			log.Warn().Err(err).Str("ticker", c.Ticker).Msg("background report failed")
		}
	})
}

func (e *Executors) CompanyNews(ctx context.Context, s *models.AgentState) (*models.AgentState, error) {
	defer took(consts.CompanyNews, time.Now())
	if s.Company == nil {
		s.Response = consts.MsgNoCompany
		return s, nil
	}
	items := news.Clean(e.news.CompanyNews(ctx, s.Company.Name))
	s.Response = e.presentNews(ctx, s.Mode, items)
	return s, nil
}

func (e *Executors) GeneralNews(ctx context.Context, s *models.AgentState) (*models.AgentState, error) {
	defer took(consts.GeneralNews, time.Now())
	items := news.Clean(e.news.GeneralNews(ctx, s.Topic))
	s.Response = e.presentNews(ctx, s.Mode, items)
	return s, nil
}

// presentNews returns raw items for programmatic callers and an LLM digest
// for interactive ones.
func (e *Executors) presentNews(ctx context.Context, mode models.OutputMode, items []string) string {
	if mode != models.Interactive {
		return strings.Join(items, "\n\n")
	}
	if len(items) == 0 {
		return consts.MsgNoNews
	}
	out, err := e.summarize(ctx, llm.PromptNewsSummary, items, nil)
	if err != nil {
		log.Error().Err(err).Msg("error summarizing news")
		return consts.MsgNewsError
	}
	return out
}

func (e *Executors) summarize(ctx context.Context, name string, items []string, vars map[string]any) (string, error) {
	if vars == nil {
		vars = map[string]any{}
	}
	vars["news"] = strings.Join(items, "\n\n")
	prompt, err := llm.Render(ctx, name, vars)
	if err != nil {
		return "", err
	}
	return e.gen.Generate(ctx, prompt)
}

func took(executor string, start time.Time) {
	log.Info().Str("executor", executor).Dur("took", time.Since(start)).Msg("executor finished")
}

// formatNumber prints the shortest exact representation, or N/A.
func formatNumber(v *float64) string {
	if v == nil {
		return consts.MsgPriceUnavailable
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
