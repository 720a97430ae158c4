package cache

import (
	"errors"
	"strings"
	"time"
)

// ErrMiss is returned when an entry is absent or older than its kind's TTL.
var ErrMiss = errors.New("cache miss")

// Kind selects the TTL and the storage namespace of an entry.
type Kind string

const (
	KindMetrics    Kind = "metrics"
	KindNews       Kind = "news"
	KindHighlights Kind = "highlights"
)

// Store holds opaque payloads keyed by kind and ticker. Get returns the
// payload exactly as it was written.
type Store interface {
	Get(kind Kind, ticker string) ([]byte, error)
	Set(kind Kind, ticker string, payload []byte) error
	Close() error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type TTLs struct {
	Metrics    time.Duration
	News       time.Duration
	Highlights time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{
		Metrics:    24 * time.Hour,
		News:       24 * time.Hour,
		Highlights: 5 * time.Minute,
	}
}

func (t TTLs) For(kind Kind) time.Duration {
	switch kind {
	case KindMetrics:
		return t.Metrics
	case KindNews:
		return t.News
	case KindHighlights:
		return t.Highlights
	}
	return 0
}

// normalizeTicker upper-cases the ticker and strips path separators so it
// can be used as a file name.
func normalizeTicker(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(t)
}
