package dataflows

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const googleNewsURL = "https://news.google.com"

type rss struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Source      struct {
		URL  string `xml:"url,attr"`
		Text string `xml:",chardata"`
	} `xml:"source"`
}

// GoogleNewsClient searches the public Google News RSS feed. It needs no
// key and serves as the last news tier.
type GoogleNewsClient struct {
	http *httpClient
}

type GoogleNewsOption func(*GoogleNewsClient)

func WithGoogleNewsBaseURL(url string) GoogleNewsOption {
	return func(c *GoogleNewsClient) { c.http.client.SetBaseURL(url) }
}

func WithGoogleNewsRetry(cfg RetryConfig) GoogleNewsOption {
	return func(c *GoogleNewsClient) { c.http.retry = cfg }
}

func NewGoogleNewsClient(timeout time.Duration, rps float64, opts ...GoogleNewsOption) *GoogleNewsClient {
	c := &GoogleNewsClient{http: newHTTPClient("googlenews", googleNewsURL, timeout, rps)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *GoogleNewsClient) Name() string { return "googlenews" }

func (c *GoogleNewsClient) Search(ctx context.Context, query string, limit int) ([]NewsItem, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	body, err := c.http.get(ctx, "/rss/search", map[string]string{
		"q":    query,
		"hl":   "en-US",
		"gl":   "US",
		"ceid": "US:en",
	})
	if err != nil {
		return nil, err
	}

	var feed rss
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse google news rss: %w", err)
	}

	items := make([]NewsItem, 0, limit)
	for _, it := range feed.Channel.Items {
		if it.Title == "" {
			continue
		}
		published, _ := time.Parse(time.RFC1123, it.PubDate)
		items = append(items, NewsItem{
			Title:       it.Title,
			Summary:     htmlText(it.Description),
			Publisher:   it.Source.Text,
			URL:         it.Link,
			PublishedAt: published,
		})
		if len(items) == limit {
			break
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("google news %q: %w", query, ErrNoData)
	}
	return items, nil
}

// htmlText flattens the HTML snippet Google embeds in item descriptions.
func htmlText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
