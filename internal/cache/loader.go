package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/phuslu/log"
	"golang.org/x/sync/singleflight"
)

// Loader pairs a Store with optional single-flight deduplication so that
// concurrent misses for the same kind and ticker run one fetch.
type Loader struct {
	store        Store
	singleFlight bool
	group        singleflight.Group
}

func NewLoader(store Store, singleFlight bool) *Loader {
	return &Loader{store: store, singleFlight: singleFlight}
}

// GetJSON decodes a fresh entry into out. Any failure counts as a miss.
func GetJSON(s Store, kind Kind, ticker string, out any) bool {
	data, err := s.Get(kind, ticker)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			log.Warn().Err(err).Str("kind", string(kind)).Str("ticker", ticker).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Str("ticker", ticker).Msg("cache entry is corrupt")
		return false
	}
	return true
}

func SetJSON(s Store, kind Kind, ticker string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(kind, ticker, data)
}

// Cached returns the fresh cached value for kind/ticker, or runs fetch and
// writes a successful result through before returning it. Fetch errors are
// returned as is and nothing is stored.
//
// With single-flight on, the shared fetch runs on a context detached from
// cancellation so one caller giving up does not fail the others; each caller
// still stops waiting when its own ctx is done.
func Cached[T any](ctx context.Context, l *Loader, kind Kind, ticker string, fetch func(ctx context.Context) (T, error)) (T, error) {
	var out T
	if GetJSON(l.store, kind, ticker, &out) {
		log.Debug().Str("kind", string(kind)).Str("ticker", ticker).Msg("cache hit")
		return out, nil
	}

	load := func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := SetJSON(l.store, kind, ticker, v); err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Str("ticker", ticker).Msg("cache write failed")
		}
		return v, nil
	}

	if !l.singleFlight {
		v, err := load(ctx)
		if err != nil {
			return out, err
		}
		return v.(T), nil
	}

	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(string(kind)+":"+normalizeTicker(ticker), func() (any, error) {
		return load(shared)
	})
	select {
	case <-ctx.Done():
		return out, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return out, res.Err
		}
		if res.Shared {
			log.Debug().Str("kind", string(kind)).Str("ticker", ticker).Msg("joined in-flight load")
		}
		return res.Val.(T), nil
	}
}
