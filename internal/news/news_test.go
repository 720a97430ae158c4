package news

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/stella/internal/cache"
	"github.com/dyike/stella/internal/dataflows"
)

type fakeFeed struct {
	name    string
	items   []dataflows.NewsItem
	err     error
	calls   int
	queries []string
}

func (f *fakeFeed) Name() string { return f.name }

func (f *fakeFeed) News(ctx context.Context, symbol string, limit int) ([]dataflows.NewsItem, error) {
	f.calls++
	return f.items, f.err
}

func (f *fakeFeed) Search(ctx context.Context, query string, limit int) ([]dataflows.NewsItem, error) {
	f.calls++
	f.queries = append(f.queries, query)
	return f.items, f.err
}

func newLoader(t *testing.T) *cache.Loader {
	store, err := cache.NewFileStore(t.TempDir(), cache.DefaultTTLs(), cache.SystemClock)
	require.NoError(t, err)
	return cache.NewLoader(store, true)
}

func TestFormat(t *testing.T) {
	got := Format([]dataflows.NewsItem{
		{Title: "A", Summary: "sum"},
		{Title: "B", Publisher: "Reuters", URL: "https://r.example/b"},
		{Title: "C"},
	})
	assert.Equal(t, []string{"A: sum", "B: Reuters - https://r.example/b", "C"}, got)
}

func TestClean(t *testing.T) {
	got := Clean([]string{"<b>AT&amp;T</b> beats: shares <em>up</em>", "plain & simple"})
	assert.Equal(t, []string{"AT&T beats: shares up", "plain & simple"}, got)
}

func TestSearchFallsThroughEmptyTiers(t *testing.T) {
	brave := &fakeFeed{name: "brave", err: dataflows.ErrNotConfigured}
	google := &fakeFeed{name: "google", items: []dataflows.NewsItem{{Title: "Fed", Summary: "holds"}}}
	p := NewProvider(nil, []SearchSource{brave, google}, newLoader(t))

	assert.Equal(t, []string{"Fed: holds"}, p.GeneralNews(context.Background(), "interest rates"))
	assert.Equal(t, []string{"latest news on interest rates"}, google.queries)
}

func TestSearchExhaustedIsEmptyNotNil(t *testing.T) {
	p := NewProvider(nil, []SearchSource{&fakeFeed{name: "x", err: errors.New("down")}}, newLoader(t))
	got := p.CompanyNews(context.Background(), "Tesla")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRecentNewsTiersAndCache(t *testing.T) {
	av := &fakeFeed{name: "alphavantage", err: errors.New("rate limited")}
	yahoo := &fakeFeed{name: "yahoo", items: []dataflows.NewsItem{{Title: "Apple ships", Publisher: "WSJ", URL: "u"}}}
	p := NewProvider([]FeedSource{av, yahoo}, nil, newLoader(t))

	got := p.RecentNews(context.Background(), "aapl", "Apple")
	assert.Equal(t, []string{"Apple ships: WSJ - u"}, got)

	again := p.RecentNews(context.Background(), "AAPL", "Apple")
	assert.Equal(t, got, again)
	assert.Equal(t, 1, yahoo.calls)
	assert.Equal(t, 1, av.calls)
}

func TestRecentNewsSearchesByCompanyLast(t *testing.T) {
	feed := &fakeFeed{name: "feed", err: errors.New("down")}
	brave := &fakeFeed{name: "brave", items: []dataflows.NewsItem{{Title: "Hyundai EV", Summary: "plant"}}}
	p := NewProvider([]FeedSource{feed}, []SearchSource{brave}, newLoader(t))

	got := p.RecentNews(context.Background(), "005380.KS", "Hyundai")
	assert.Equal(t, []string{"Hyundai EV: plant"}, got)
	assert.Equal(t, []string{"latest news on Hyundai stock"}, brave.queries)
}

func TestRecentNewsWithoutCompanySkipsSearch(t *testing.T) {
	feed := &fakeFeed{name: "feed", err: errors.New("down")}
	brave := &fakeFeed{name: "brave", items: []dataflows.NewsItem{{Title: "x"}}}
	p := NewProvider([]FeedSource{feed}, []SearchSource{brave}, newLoader(t))

	assert.Empty(t, p.RecentNews(context.Background(), "XYZ", ""))
	assert.Equal(t, 0, brave.calls)

	// failures are not cached
	feed.err = nil
	feed.items = []dataflows.NewsItem{{Title: "now", Summary: "ok"}}
	assert.Equal(t, []string{"now: ok"}, p.RecentNews(context.Background(), "XYZ", ""))
}
