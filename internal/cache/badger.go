package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps entries in an embedded badger database. Each value is
// prefixed with the write time in unix nanoseconds so freshness follows the
// injected clock; badger's own TTL only garbage-collects old entries.
type BadgerStore struct {
	db    *badger.DB
	ttls  TTLs
	clock Clock
}

// OpenBadger opens a store at dir, or an in-memory one when dir is empty.
func OpenBadger(dir string, ttls TTLs, clock Clock) (*BadgerStore, error) {
	if clock == nil {
		clock = SystemClock
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache: %w", err)
	}
	return &BadgerStore{db: db, ttls: ttls, clock: clock}, nil
}

func badgerKey(kind Kind, ticker string) []byte {
	return []byte(fmt.Sprintf("cache:%s:%s", kind, normalizeTicker(ticker)))
}

func (s *BadgerStore) Get(kind Kind, ticker string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(kind, ticker))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	if len(value) < 8 {
		return nil, ErrMiss
	}
	written := time.Unix(0, int64(binary.BigEndian.Uint64(value[:8])))
	if s.clock.Now().Sub(written) >= s.ttls.For(kind) {
		return nil, ErrMiss
	}
	return value[8:], nil
}

func (s *BadgerStore) Set(kind Kind, ticker string, payload []byte) error {
	value := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(value[:8], uint64(s.clock.Now().UnixNano()))
	copy(value[8:], payload)

	return s.db.Update(func(txn *badger.Txn) error {
		// physical expiry trails the logical TTL
		entry := badger.NewEntry(badgerKey(kind, ticker), value).WithTTL(2*s.ttls.For(kind) + time.Minute)
		return txn.SetEntry(entry)
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
