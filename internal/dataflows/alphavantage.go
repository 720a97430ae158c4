package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dyike/stella/internal/models"
)

const alphaVantageURL = "https://www.alphavantage.co"

// AlphaVantageClient talks to the Alpha Vantage query API. Every function
// is a GET on /query with a "function" parameter.
type AlphaVantageClient struct {
	http   *httpClient
	apiKey string
}

type AlphaVantageOption func(*AlphaVantageClient)

func WithAlphaVantageBaseURL(url string) AlphaVantageOption {
	return func(c *AlphaVantageClient) { c.http.client.SetBaseURL(url) }
}

func WithAlphaVantageRetry(cfg RetryConfig) AlphaVantageOption {
	return func(c *AlphaVantageClient) { c.http.retry = cfg }
}

func NewAlphaVantageClient(apiKey string, timeout time.Duration, rps float64, opts ...AlphaVantageOption) *AlphaVantageClient {
	c := &AlphaVantageClient{
		http:   newHTTPClient("alphavantage", alphaVantageURL, timeout, rps),
		apiKey: apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AlphaVantageClient) Name() string { return "alphavantage" }

// avNotice covers the 200 responses Alpha Vantage uses for throttling and
// bad requests.
type avNotice struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (n avNotice) err() error {
	switch {
	case n.ErrorMessage != "":
		return &APIError{Provider: "alphavantage", Status: 400, Message: n.ErrorMessage}
	case n.Note != "":
		return &APIError{Provider: "alphavantage", Status: 429, Message: n.Note}
	case n.Information != "":
		return &APIError{Provider: "alphavantage", Status: 429, Message: n.Information}
	}
	return nil
}

func (c *AlphaVantageClient) query(ctx context.Context, function string, params map[string]string, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("alphavantage: %w", ErrNotConfigured)
	}
	q := map[string]string{"function": function, "apikey": c.apiKey}
	for k, v := range params {
		q[k] = v
	}
	body, err := c.http.get(ctx, "/query", q)
	if err != nil {
		return err
	}

	var notice avNotice
	if err := json.Unmarshal(body, &notice); err == nil {
		if err := notice.err(); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode alphavantage %s: %w", function, err)
	}
	return nil
}

type avGlobalQuote struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		PreviousClose string `json:"08. previous close"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

func (c *AlphaVantageClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = NormalizeSymbol(symbol)
	var resp avGlobalQuote
	if err := c.query(ctx, "GLOBAL_QUOTE", map[string]string{"symbol": symbol}, &resp); err != nil {
		return nil, err
	}
	gq := resp.GlobalQuote
	q := &Quote{
		Symbol:        symbol,
		Price:         parseNumber(gq.Price),
		PreviousClose: parseNumber(gq.PreviousClose),
		ChangePercent: parseNumber(gq.ChangePercent),
	}
	if q.Price == nil {
		return nil, fmt.Errorf("alphavantage quote %s: %w", symbol, ErrNoData)
	}
	return q, nil
}

type avDailySeries struct {
	Series map[string]struct {
		Open   string `json:"1. open"`
		High   string `json:"2. high"`
		Low    string `json:"3. low"`
		Close  string `json:"4. close"`
		Volume string `json:"5. volume"`
	} `json:"Time Series (Daily)"`
}

// History returns daily bars, oldest first. Full selects the complete
// series; otherwise the latest 100 points.
func (c *AlphaVantageClient) History(ctx context.Context, symbol string, full bool) ([]models.Bar, error) {
	symbol = NormalizeSymbol(symbol)
	size := "compact"
	if full {
		size = "full"
	}
	var resp avDailySeries
	if err := c.query(ctx, "TIME_SERIES_DAILY", map[string]string{"symbol": symbol, "outputsize": size}, &resp); err != nil {
		return nil, err
	}

	bars := make([]models.Bar, 0, len(resp.Series))
	for day, row := range resp.Series {
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		closePrice := parseNumber(row.Close)
		if closePrice == nil {
			continue
		}
		bar := models.Bar{Symbol: symbol, Date: date, Close: *closePrice}
		if v := parseNumber(row.Open); v != nil {
			bar.Open = *v
		}
		if v := parseNumber(row.High); v != nil {
			bar.High = *v
		}
		if v := parseNumber(row.Low); v != nil {
			bar.Low = *v
		}
		if v, err := strconv.ParseInt(row.Volume, 10, 64); err == nil {
			bar.Volume = v
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("alphavantage history %s: %w", symbol, ErrNoData)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

type avOverview struct {
	Symbol               string `json:"Symbol"`
	Name                 string `json:"Name"`
	Description          string `json:"Description"`
	AnalystTargetPrice   string `json:"AnalystTargetPrice"`
	Beta                 string `json:"Beta"`
	WeekHigh52           string `json:"52WeekHigh"`
	WeekLow52            string `json:"52WeekLow"`
	SharesOutstanding    string `json:"SharesOutstanding"`
	MarketCapitalization string `json:"MarketCapitalization"`
	BookValue            string `json:"BookValue"`
	DividendYield        string `json:"DividendYield"`
	ReturnOnEquityTTM    string `json:"ReturnOnEquityTTM"`
	PercentInstitutions  string `json:"PercentInstitutions"`
	PercentInsiders      string `json:"PercentInsiders"`
}

func (c *AlphaVantageClient) CompanyInfo(ctx context.Context, symbol string) (*CompanyInfo, error) {
	symbol = NormalizeSymbol(symbol)
	var ov avOverview
	if err := c.query(ctx, "OVERVIEW", map[string]string{"symbol": symbol}, &ov); err != nil {
		return nil, err
	}
	if ov.Symbol == "" {
		return nil, fmt.Errorf("alphavantage overview %s: %w", symbol, ErrNoData)
	}

	pct := func(s string) *float64 {
		v := parseNumber(s)
		if v == nil {
			return nil
		}
		f := *v / 100
		return &f
	}
	return &CompanyInfo{
		Symbol:                symbol,
		Name:                  ov.Name,
		Description:           ov.Description,
		PriceTarget:           parseNumber(ov.AnalystTargetPrice),
		Beta:                  parseNumber(ov.Beta),
		FiftyTwoWeekHigh:      parseNumber(ov.WeekHigh52),
		FiftyTwoWeekLow:       parseNumber(ov.WeekLow52),
		SharesOutstanding:     parseNumber(ov.SharesOutstanding),
		MarketCap:             parseNumber(ov.MarketCapitalization),
		BookValue:             parseNumber(ov.BookValue),
		DividendYield:         parseNumber(ov.DividendYield),
		ReturnOnEquity:        parseNumber(ov.ReturnOnEquityTTM),
		InstitutionalHoldings: pct(ov.PercentInstitutions),
		InsiderHoldings:       pct(ov.PercentInsiders),
	}, nil
}

type avNewsFeed struct {
	Feed []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Summary       string `json:"summary"`
		Source        string `json:"source"`
		TimePublished string `json:"time_published"`
	} `json:"feed"`
}

// News returns the latest sentiment-feed articles for a ticker.
func (c *AlphaVantageClient) News(ctx context.Context, symbol string, limit int) ([]NewsItem, error) {
	symbol = NormalizeSymbol(symbol)
	var resp avNewsFeed
	params := map[string]string{
		"tickers": symbol,
		"limit":   strconv.Itoa(limit),
		"sort":    "LATEST",
	}
	if err := c.query(ctx, "NEWS_SENTIMENT", params, &resp); err != nil {
		return nil, err
	}

	items := make([]NewsItem, 0, limit)
	for _, a := range resp.Feed {
		if a.Title == "" {
			continue
		}
		published, _ := time.Parse("20060102T150405", a.TimePublished)
		items = append(items, NewsItem{
			Title:       a.Title,
			Summary:     a.Summary,
			Publisher:   a.Source,
			URL:         a.URL,
			PublishedAt: published,
		})
		if len(items) == limit {
			break
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("alphavantage news %s: %w", symbol, ErrNoData)
	}
	return items, nil
}
