package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type storeFactory func(t *testing.T, clock Clock) Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"file": func(t *testing.T, clock Clock) Store {
			s, err := NewFileStore(t.TempDir(), DefaultTTLs(), clock)
			require.NoError(t, err)
			return s
		},
		"badger": func(t *testing.T, clock Clock) Store {
			s, err := OpenBadger("", DefaultTTLs(), clock)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStoreRoundTripIsByteIdentical(t *testing.T) {
	payload := []byte("{\n  \"current_price\": 182.5,\n  \"beta\": null\n}")
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			s := factory(t, newFakeClock())
			require.NoError(t, s.Set(KindMetrics, "AAPL", payload))

			got, err := s.Get(KindMetrics, "AAPL")
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestStoreMissOnAbsentEntry(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			s := factory(t, newFakeClock())
			_, err := s.Get(KindNews, "TSLA")
			assert.ErrorIs(t, err, ErrMiss)
		})
	}
}

func TestStoreExpiresPerKind(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			s := factory(t, clock)
			require.NoError(t, s.Set(KindHighlights, "NVDA", []byte(`{}`)))
			require.NoError(t, s.Set(KindMetrics, "NVDA", []byte(`{}`)))

			clock.Advance(4*time.Minute + 59*time.Second)
			_, err := s.Get(KindHighlights, "NVDA")
			require.NoError(t, err)

			clock.Advance(time.Second)
			_, err = s.Get(KindHighlights, "NVDA")
			assert.ErrorIs(t, err, ErrMiss)

			_, err = s.Get(KindMetrics, "NVDA")
			assert.NoError(t, err, "metrics TTL is a day")

			clock.Advance(24 * time.Hour)
			_, err = s.Get(KindMetrics, "NVDA")
			assert.ErrorIs(t, err, ErrMiss)
		})
	}
}

func TestStoreKeysAreCaseInsensitive(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			s := factory(t, newFakeClock())
			require.NoError(t, s.Set(KindNews, "msft", []byte(`["a"]`)))
			got, err := s.Get(KindNews, "MSFT")
			require.NoError(t, err)
			assert.Equal(t, `["a"]`, string(got))
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, DefaultTTLs(), newFakeClock())
	require.NoError(t, err)
	require.NoError(t, s.Set(KindNews, "005930.KS", []byte(`[]`)))

	_, err = os.Stat(filepath.Join(dir, "005930.KS_news.json"))
	assert.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestCachedWritesThroughOnSuccess(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), DefaultTTLs(), newFakeClock())
	require.NoError(t, err)
	l := NewLoader(s, true)

	calls := 0
	fetch := func(context.Context) ([]string, error) {
		calls++
		return []string{"headline"}, nil
	}

	got, err := Cached(context.Background(), l, KindNews, "AAPL", fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"headline"}, got)

	got, err = Cached(context.Background(), l, KindNews, "AAPL", fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"headline"}, got)
	assert.Equal(t, 1, calls)
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), DefaultTTLs(), newFakeClock())
	require.NoError(t, err)
	l := NewLoader(s, false)

	boom := errors.New("provider down")
	_, err = Cached(context.Background(), l, KindMetrics, "AAPL", func(context.Context) (map[string]float64, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Get(KindMetrics, "AAPL")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCachedSingleFlight(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), DefaultTTLs(), newFakeClock())
	require.NoError(t, err)
	l := NewLoader(s, true)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Cached(context.Background(), l, KindHighlights, "TSLA", fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestCachedSharedLoadOutlivesCancelledCaller(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), DefaultTTLs(), newFakeClock())
	require.NoError(t, err)
	l := NewLoader(s, true)

	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 42, nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := Cached(firstCtx, l, KindMetrics, "TSLA", fetch)
		firstErr <- err
	}()
	<-started

	second := make(chan int, 1)
	go func() {
		v, err := Cached(context.Background(), l, KindMetrics, "TSLA", fetch)
		assert.NoError(t, err)
		second <- v
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, 42, <-second)

	var cached int
	require.True(t, GetJSON(s, KindMetrics, "TSLA", &cached))
	assert.Equal(t, 42, cached)
}
