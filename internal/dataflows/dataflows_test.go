package dataflows

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noRetry = RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"182.52", ptr(182.52)},
		{" -1.2345% ", ptr(-1.2345)},
		{"None", nil},
		{"-", nil},
		{"", nil},
		{"abc", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseNumber(tt.in), tt.in)
	}
}

func ptr(v float64) *float64 { return &v }

func TestWithRetryStopsOnPermanentErrors(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	calls := 0
	err := WithRetry(context.Background(), cfg, func() error {
		calls++
		return &APIError{Provider: "x", Status: 404, Message: "missing"}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = WithRetry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return &APIError{Provider: "x", Status: 503}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestAlphaVantageQuote(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "IBM", r.URL.Query().Get("symbol"))
		assert.Equal(t, "demo", r.URL.Query().Get("apikey"))
		w.Write([]byte(`{"Global Quote": {"01. symbol": "IBM", "05. price": "231.4000", "08. previous close": "229.1000", "10. change percent": "1.0039%"}}`))
	})
	c := NewAlphaVantageClient("demo", time.Second, 100, WithAlphaVantageBaseURL(srv.URL), WithAlphaVantageRetry(noRetry))

	q, err := c.Quote(context.Background(), "ibm")
	require.NoError(t, err)
	assert.InDelta(t, 231.4, *q.Price, 1e-9)
	assert.InDelta(t, 229.1, *q.PreviousClose, 1e-9)
	assert.InDelta(t, 1.0039, *q.ChangePercent, 1e-9)
}

func TestAlphaVantageThrottleNoteIsAnError(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`))
	})
	c := NewAlphaVantageClient("demo", time.Second, 100, WithAlphaVantageBaseURL(srv.URL), WithAlphaVantageRetry(noRetry))

	_, err := c.Quote(context.Background(), "IBM")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 429, apiErr.Status)
}

func TestAlphaVantageWithoutKey(t *testing.T) {
	c := NewAlphaVantageClient("", time.Second, 100)
	_, err := c.News(context.Background(), "IBM", 5)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAlphaVantageHistorySortedOldestFirst(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "compact", r.URL.Query().Get("outputsize"))
		w.Write([]byte(`{"Time Series (Daily)": {
			"2025-01-03": {"1. open": "10", "2. high": "12", "3. low": "9", "4. close": "11", "5. volume": "100"},
			"2025-01-02": {"1. open": "9", "2. high": "10", "3. low": "8", "4. close": "10", "5. volume": "200"},
			"2025-01-06": {"4. close": "12"}
		}}`))
	})
	c := NewAlphaVantageClient("demo", time.Second, 100, WithAlphaVantageBaseURL(srv.URL), WithAlphaVantageRetry(noRetry))

	bars, err := c.History(context.Background(), "IBM", false)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, []float64{10, 11, 12}, []float64{bars[0].Close, bars[1].Close, bars[2].Close})
	assert.Equal(t, int64(200), bars[0].Volume)
}

func TestAlphaVantageOverview(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Symbol": "IBM", "Name": "International Business Machines", "Description": "IBM makes things.",
			"AnalystTargetPrice": "250.5", "Beta": "0.7", "PercentInstitutions": "62.5", "PercentInsiders": "None",
			"MarketCapitalization": "210000000000"}`))
	})
	c := NewAlphaVantageClient("demo", time.Second, 100, WithAlphaVantageBaseURL(srv.URL), WithAlphaVantageRetry(noRetry))

	info, err := c.CompanyInfo(context.Background(), "IBM")
	require.NoError(t, err)
	assert.Equal(t, "IBM makes things.", info.Description)
	assert.InDelta(t, 250.5, *info.PriceTarget, 1e-9)
	assert.InDelta(t, 0.625, *info.InstitutionalHoldings, 1e-9)
	assert.Nil(t, info.InsiderHoldings)
	assert.Nil(t, info.CurrentPrice)
}

func TestAlphaVantageNewsRespectsLimit(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NEWS_SENTIMENT", r.URL.Query().Get("function"))
		assert.Equal(t, "LATEST", r.URL.Query().Get("sort"))
		w.Write([]byte(`{"feed": [
			{"title": "One", "summary": "s1", "time_published": "20250102T130000"},
			{"title": "Two", "summary": "s2"},
			{"title": "Three", "summary": "s3"}
		]}`))
	})
	c := NewAlphaVantageClient("demo", time.Second, 100, WithAlphaVantageBaseURL(srv.URL), WithAlphaVantageRetry(noRetry))

	items, err := c.News(context.Background(), "IBM", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "One", items[0].Title)
	assert.Equal(t, "s1", items[0].Summary)
	assert.Equal(t, 2025, items[0].PublishedAt.Year())
}

func TestBraveSearch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/res/v1/web/search", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "pd", r.URL.Query().Get("freshness"))
		assert.Equal(t, "latest news on Tesla", r.URL.Query().Get("q"))
		w.Write([]byte(`{"web": {"results": [{"title": "Tesla rallies", "description": "Shares <strong>rose</strong>"}]}}`))
	})
	c := NewBraveClient("key", time.Second, 100, WithBraveBaseURL(srv.URL), WithBraveRetry(noRetry))

	items, err := c.Search(context.Background(), "latest news on Tesla", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Tesla rallies", items[0].Title)
	assert.Equal(t, "Shares <strong>rose</strong>", items[0].Summary)
}

func TestBraveServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"web": {"results": [{"title": "ok"}]}}`))
	})
	retry := RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	c := NewBraveClient("key", time.Second, 100, WithBraveBaseURL(srv.URL), WithBraveRetry(retry))

	items, err := c.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBraveEmptyResults(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"web": {"results": []}}`))
	})
	c := NewBraveClient("key", time.Second, 100, WithBraveBaseURL(srv.URL), WithBraveRetry(noRetry))
	_, err := c.Search(context.Background(), "q", 5)
	assert.True(t, errors.Is(err, ErrNoData))
}

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>news</title>
<item>
  <title>Fed holds rates steady - Reuters</title>
  <link>https://news.example/fed</link>
  <description>&lt;a href="https://news.example/fed"&gt;Fed holds rates&lt;/a&gt;&amp;nbsp;&lt;font&gt;Reuters&lt;/font&gt;</description>
  <pubDate>Tue, 14 Jan 2025 15:04:05 GMT</pubDate>
  <source url="https://reuters.com">Reuters</source>
</item>
<item>
  <title>Markets wrap</title>
  <link>https://news.example/wrap</link>
</item>
</channel></rss>`

func TestGoogleNewsSearch(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rss/search", r.URL.Path)
		assert.Equal(t, "interest rates", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleRSS))
	})
	c := NewGoogleNewsClient(time.Second, 100, WithGoogleNewsBaseURL(srv.URL), WithGoogleNewsRetry(noRetry))

	items, err := c.Search(context.Background(), "interest rates", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Fed holds rates steady - Reuters", items[0].Title)
	assert.Equal(t, "Reuters", items[0].Publisher)
	assert.Contains(t, items[0].Summary, "Fed holds rates")
	assert.NotContains(t, items[0].Summary, "<a")
	assert.Equal(t, 2025, items[0].PublishedAt.Year())
}

func TestYahooNews(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/finance/search", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("q"))
		w.Write([]byte(`{"news": [
			{"title": "Apple ships", "publisher": "Bloomberg", "link": "https://b.example/1"},
			{"title": "", "publisher": "x"},
			{"title": "Apple again", "publisher": "WSJ", "link": "https://w.example/2"}
		]}`))
	})
	c := NewYahooClient(time.Second, 100, WithYahooSearchURL(srv.URL), WithYahooRetry(noRetry))

	items, err := c.News(context.Background(), "aapl", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Bloomberg", items[0].Publisher)
	assert.Equal(t, "https://w.example/2", items[1].URL)
}

func TestLongportSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"aapl", "AAPL.US", true},
		{"700.HK", "700.HK", true},
		{"600519.SS", "600519.SH", true},
		{"005930.KS", "", false},
	}
	for _, tt := range tests {
		got, ok := longportSymbol(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCompanyInfoMergeKeepsKnownFields(t *testing.T) {
	a := &CompanyInfo{Name: "Apple", CurrentPrice: ptr(190)}
	a.Merge(&CompanyInfo{Name: "Apple Inc", CurrentPrice: ptr(1), Beta: ptr(1.2), Description: "Phones"})

	assert.Equal(t, "Apple", a.Name)
	assert.Equal(t, 190.0, *a.CurrentPrice)
	assert.Equal(t, 1.2, *a.Beta)
	assert.Equal(t, "Phones", a.Description)
}
