package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const braveURL = "https://api.search.brave.com"

// BraveClient runs Brave web searches restricted to the past day.
type BraveClient struct {
	http   *httpClient
	apiKey string
}

type BraveOption func(*BraveClient)

func WithBraveBaseURL(url string) BraveOption {
	return func(c *BraveClient) { c.http.client.SetBaseURL(url) }
}

func WithBraveRetry(cfg RetryConfig) BraveOption {
	return func(c *BraveClient) { c.http.retry = cfg }
}

func NewBraveClient(apiKey string, timeout time.Duration, rps float64, opts ...BraveOption) *BraveClient {
	c := &BraveClient{
		http:   newHTTPClient("brave", braveURL, timeout, rps),
		apiKey: apiKey,
	}
	c.http.client.SetHeader("Accept", "application/json")
	c.http.client.SetHeader("X-Subscription-Token", apiKey)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *BraveClient) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
		} `json:"results"`
	} `json:"web"`
}

func (c *BraveClient) Search(ctx context.Context, query string, limit int) ([]NewsItem, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("brave: %w", ErrNotConfigured)
	}
	body, err := c.http.get(ctx, "/res/v1/web/search", map[string]string{
		"q":         query,
		"count":     strconv.Itoa(limit),
		"freshness": "pd",
	})
	if err != nil {
		return nil, err
	}

	var resp braveResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode brave search: %w", err)
	}
	items := make([]NewsItem, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		if r.Title == "" {
			continue
		}
		items = append(items, NewsItem{Title: r.Title, Summary: r.Description, URL: r.URL})
		if len(items) == limit {
			break
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("brave search %q: %w", query, ErrNoData)
	}
	return items, nil
}
