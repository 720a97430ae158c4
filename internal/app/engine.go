package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"

	"github.com/dyike/stella/config"
	"github.com/dyike/stella/internal/agents"
	"github.com/dyike/stella/internal/cache"
	"github.com/dyike/stella/internal/dataflows"
	"github.com/dyike/stella/internal/graph"
	"github.com/dyike/stella/internal/llm"
	"github.com/dyike/stella/internal/market"
	"github.com/dyike/stella/internal/news"
	"github.com/dyike/stella/internal/pool"
	"github.com/dyike/stella/internal/storage"
)

// Engine is one fully wired set of components built from a Config.
type Engine struct {
	Config    *config.Config
	Agent     *graph.Agent
	Market    *market.Provider
	News      *news.Provider
	Docs      *agents.DocumentStore
	Executors *agents.Executors
	Pool      *pool.Pool
	History   *storage.Store

	BuiltAt time.Time
	Version uint64

	cache cache.Store
}

var engineSeq atomic.Uint64

type Option func(*buildOptions)

type buildOptions struct {
	generator llm.Generator
	clock     cache.Clock
}

// WithGenerator replaces the configured chat model.
func WithGenerator(g llm.Generator) Option {
	return func(o *buildOptions) {
		o.generator = g
	}
}

func WithClock(c cache.Clock) Option {
	return func(o *buildOptions) {
		o.clock = c
	}
}

func BuildEngine(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	o := buildOptions{clock: cache.SystemClock}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := openCache(cfg, o.clock)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		Config:  cfg,
		BuiltAt: time.Now(),
		Version: engineSeq.Add(1),
		cache:   store,
	}

	gen := o.generator
	if gen == nil {
		chat, err := llm.NewChatGenerator(ctx, cfg.LLM, cfg.LLMTimeout())
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("create chat model: %w", err)
		}
		gen = chat
	}

	loader := cache.NewLoader(store, cfg.Cache.SingleFlight)
	marketSrc, feeds, searches := buildSources(cfg, o.clock)
	e.Market = market.NewProvider(marketSrc, loader, o.clock)
	e.News = news.NewProvider(feeds, searches, loader)
	e.Docs = agents.NewDocumentStore(cfg.ReportsDir, cfg.OverviewsDir)
	e.Pool = pool.New(cfg.Pool.Size)

	graphOpts := []graph.Option{graph.WithBatchConcurrency(cfg.Pool.BatchConcurrency)}
	if cfg.HistoryDB != "" {
		history, err := storage.Open(cfg.HistoryDB)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("open query history: %w", err)
		}
		e.History = history
		graphOpts = append(graphOpts, graph.WithRecorder(history))
	}

	e.Executors = agents.NewExecutors(e.Market, e.News, gen, e.Docs, e.Pool, o.clock)
	e.Agent, err = graph.NewAgent(ctx, agents.NewRouter(gen), e.Executors, graphOpts...)
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	log.Info().
		Uint64("version", e.Version).
		Str("cache", cfg.Cache.Backend).
		Str("llm", cfg.LLM.Provider).
		Int("pool", cfg.Pool.Size).
		Msg("engine built")
	return e, nil
}

func openCache(cfg *config.Config, clock cache.Clock) (cache.Store, error) {
	ttls := cache.TTLs{
		Metrics:    cfg.MetricsTTL(),
		News:       cfg.NewsTTL(),
		Highlights: cfg.HighlightsTTL(),
	}
	switch cfg.Cache.Backend {
	case "badger":
		return cache.OpenBadger(filepath.Join(cfg.Cache.Dir, "badger"), ttls, clock)
	default:
		return cache.NewFileStore(cfg.Cache.Dir, ttls, clock)
	}
}

// buildSources orders the provider tiers. Keyed providers join only when
// configured; Yahoo and Google News need no credentials.
func buildSources(cfg *config.Config, clock cache.Clock) (market.Sources, []news.FeedSource, []news.SearchSource) {
	p := cfg.Providers
	timeout := cfg.HTTPTimeout()
	retry := dataflows.DefaultRetryConfig()
	retry.MaxRetries = p.MaxRetries

	var (
		src      market.Sources
		feeds    []news.FeedSource
		searches []news.SearchSource
	)

	yahoo := dataflows.NewYahooClient(timeout, p.RequestsPerSecond, dataflows.WithYahooRetry(retry))
	yahooHistory := market.YahooHistory{Client: yahoo, Now: clock.Now}

	var av *dataflows.AlphaVantageClient
	if p.AlphaVantageAPIKey != "" {
		av = dataflows.NewAlphaVantageClient(p.AlphaVantageAPIKey, timeout, p.RequestsPerSecond, dataflows.WithAlphaVantageRetry(retry))
	}

	src.Info = append(src.Info, yahoo)
	src.History = append(src.History, yahooHistory)
	src.Highlights = append(src.Highlights, market.YahooHighlights{YahooClient: yahoo, YahooHistory: yahooHistory})
	src.Quotes = append(src.Quotes, yahoo)
	src.Names = append(src.Names, market.YahooNames{Client: yahoo})

	if av != nil {
		avHistory := market.AlphaVantageHistory{Client: av, Now: clock.Now}
		src.Info = append(src.Info, av)
		src.History = append(src.History, avHistory)
		src.Highlights = append(src.Highlights, market.AlphaVantageHighlights{AlphaVantageClient: av})
		src.Quotes = append(src.Quotes, av)
		feeds = append(feeds, av)
	}
	feeds = append(feeds, yahoo)

	if cfg.HasLongportCredentials() {
		lp, err := dataflows.NewLongportClient(p.LongportAppKey, p.LongportAppSecret, p.LongportAccessToken)
		if err != nil {
			log.Warn().Err(err).Msg("longport disabled")
		} else {
			src.History = append(src.History, market.LongportHistory{Client: lp, Now: clock.Now})
			src.Names = append(src.Names, lp)
		}
	}

	if p.BraveAPIKey != "" {
		searches = append(searches, dataflows.NewBraveClient(p.BraveAPIKey, timeout, p.RequestsPerSecond, dataflows.WithBraveRetry(retry)))
	}
	searches = append(searches, dataflows.NewGoogleNewsClient(timeout, p.RequestsPerSecond, dataflows.WithGoogleNewsRetry(retry)))

	return src, feeds, searches
}

// Close drains background work and releases stores.
func (e *Engine) Close() error {
	if e.Agent != nil {
		e.Agent.Wait()
	}
	var errs []error
	if e.History != nil {
		errs = append(errs, e.History.Close())
	}
	if e.cache != nil {
		errs = append(errs, e.cache.Close())
	}
	return errors.Join(errs...)
}
