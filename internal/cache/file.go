package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps one JSON file per ticker and kind under dir, named
// {TICKER}_{kind}.json. Freshness is judged from the file's modification
// time, which is stamped from the store's clock on write.
type FileStore struct {
	dir   string
	ttls  TTLs
	clock Clock
}

func NewFileStore(dir string, ttls TTLs, clock Clock) (*FileStore, error) {
	if clock == nil {
		clock = SystemClock
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, ttls: ttls, clock: clock}, nil
}

func (s *FileStore) path(kind Kind, ticker string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", normalizeTicker(ticker), kind))
}

func (s *FileStore) Get(kind Kind, ticker string) ([]byte, error) {
	path := s.path(kind, ticker)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, err
	}
	if s.clock.Now().Sub(info.ModTime()) >= s.ttls.For(kind) {
		return nil, ErrMiss
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return data, nil
}

// Set writes through a temp file and rename so readers never observe a
// partially written entry.
func (s *FileStore) Set(kind Kind, ticker string, payload []byte) error {
	path := s.path(kind, ticker)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	now := s.clock.Now()
	if err := os.Chtimes(tmpName, now, now); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to commit cache entry %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
