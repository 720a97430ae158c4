package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/piquette/finance-go/quote"

	"github.com/dyike/stella/internal/models"
)

const yahooSearchURL = "https://query2.finance.yahoo.com"

// YahooClient reads quotes and history through finance-go and headlines
// through Yahoo's search endpoint.
type YahooClient struct {
	http *httpClient
}

type YahooOption func(*YahooClient)

// WithYahooSearchURL points the headline search at another host.
func WithYahooSearchURL(url string) YahooOption {
	return func(c *YahooClient) { c.http.client.SetBaseURL(url) }
}

func WithYahooRetry(cfg RetryConfig) YahooOption {
	return func(c *YahooClient) { c.http.retry = cfg }
}

func NewYahooClient(timeout time.Duration, rps float64, opts ...YahooOption) *YahooClient {
	// finance-go uses a package level client
	finance.SetHTTPClient(&http.Client{Timeout: timeout})

	c := &YahooClient{http: newHTTPClient("yahoo", yahooSearchURL, timeout, rps)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *YahooClient) Name() string { return "yahoo" }

// CompanyInfo maps the equity quote onto the fundamentals bundle. Yahoo's
// quote has no description, target or holdings; later tiers fill those.
func (c *YahooClient) CompanyInfo(ctx context.Context, symbol string) (*CompanyInfo, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	var info *CompanyInfo
	err := WithRetry(ctx, c.http.retry, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		eq, err := equity.Get(symbol)
		if err != nil {
			return fmt.Errorf("failed to get equity for %s: %w", symbol, err)
		}
		if eq == nil {
			return fmt.Errorf("yahoo equity %s: %w", symbol, ErrNoData)
		}
		info = &CompanyInfo{
			Symbol:            symbol,
			Name:              eq.ShortName,
			CurrentPrice:      nonZero(eq.RegularMarketPrice),
			PreviousClose:     nonZero(eq.RegularMarketPreviousClose),
			FiftyTwoWeekHigh:  nonZero(eq.FiftyTwoWeekHigh),
			FiftyTwoWeekLow:   nonZero(eq.FiftyTwoWeekLow),
			AvgVolume:         nonZero(float64(eq.AverageDailyVolume3Month)),
			DividendYield:     nonZero(eq.TrailingAnnualDividendYield),
			SharesOutstanding: nonZero(float64(eq.SharesOutstanding)),
			MarketCap:         nonZero(float64(eq.MarketCap)),
			BookValue:         nonZero(eq.BookValue),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if info.CurrentPrice == nil && info.MarketCap == nil {
		return nil, fmt.Errorf("yahoo equity %s: %w", symbol, ErrNoData)
	}
	return info, nil
}

func (c *YahooClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	var result *Quote
	err := WithRetry(ctx, c.http.retry, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		q, err := quote.Get(symbol)
		if err != nil {
			return fmt.Errorf("failed to get quote for %s: %w", symbol, err)
		}
		if q == nil {
			return fmt.Errorf("yahoo quote %s: %w", symbol, ErrNoData)
		}
		result = &Quote{
			Symbol:        symbol,
			Name:          q.ShortName,
			Price:         nonZero(q.RegularMarketPrice),
			PreviousClose: nonZero(q.RegularMarketPreviousClose),
			ChangePercent: nonZero(q.RegularMarketChangePercent),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// History returns daily bars between start and end, oldest first.
func (c *YahooClient) History(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	var bars []models.Bar
	err := WithRetry(ctx, c.http.retry, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		iter := chart.Get(&chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		})

		bars = bars[:0]
		for iter.Next() {
			bar := iter.Bar()
			bars = append(bars, models.Bar{
				Symbol: symbol,
				Date:   time.Unix(int64(bar.Timestamp), 0).UTC(),
				Open:   decimalFloat(bar.Open),
				High:   decimalFloat(bar.High),
				Low:    decimalFloat(bar.Low),
				Close:  decimalFloat(bar.Close),
				Volume: int64(bar.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo history %s: %w", symbol, ErrNoData)
	}
	return bars, nil
}

type yahooSearchResponse struct {
	News []struct {
		Title               string `json:"title"`
		Publisher           string `json:"publisher"`
		Link                string `json:"link"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
	} `json:"news"`
}

// News returns recent headlines for a ticker.
func (c *YahooClient) News(ctx context.Context, symbol string, limit int) ([]NewsItem, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	body, err := c.http.get(ctx, "/v1/finance/search", map[string]string{
		"q":           NormalizeSymbol(symbol),
		"newsCount":   strconv.Itoa(limit),
		"quotesCount": "0",
	})
	if err != nil {
		return nil, err
	}

	var resp yahooSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode yahoo search: %w", err)
	}

	items := make([]NewsItem, 0, len(resp.News))
	for _, n := range resp.News {
		if n.Title == "" {
			continue
		}
		items = append(items, NewsItem{
			Title:       n.Title,
			Publisher:   n.Publisher,
			URL:         n.Link,
			PublishedAt: time.Unix(n.ProviderPublishTime, 0).UTC(),
		})
		if len(items) == limit {
			break
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("yahoo news %s: %w", symbol, ErrNoData)
	}
	return items, nil
}
