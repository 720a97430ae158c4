package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	StatusDone  = "done"
	StatusError = "error"
)

// QueryRecord is one answered query.
type QueryRecord struct {
	ID       string        `json:"id"`
	Query    string        `json:"query"`
	Source   string        `json:"source"`
	Task     string        `json:"task"`
	Response string        `json:"response"`
	Status   string        `json:"status"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

type QueryWithMeta struct {
	QueryRecord
	RowID     int64  `json:"cursor"`
	CreatedAt string `json:"created_at"`
}

// Store persists the query log in SQLite.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_loc=UTC")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS queries (
    id TEXT PRIMARY KEY,
    query TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    task TEXT NOT NULL DEFAULT '',
    response TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    elapsed_ms INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_queries_created ON queries(created_at);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Record inserts rec, replacing any earlier row with the same id.
func (s *Store) Record(ctx context.Context, rec QueryRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("query id is required")
	}
	if rec.Status == "" {
		rec.Status = StatusDone
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO queries (id, query, source, task, response, status, elapsed_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    response=excluded.response,
    task=excluded.task,
    status=excluded.status,
    elapsed_ms=excluded.elapsed_ms
`, rec.ID, rec.Query, rec.Source, rec.Task, rec.Response, rec.Status, rec.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert query: %w", err)
	}
	return nil
}

// List pages through the log newest first. A zero cursor starts at the
// newest row; pass the last RowID seen to continue.
func (s *Store) List(ctx context.Context, cursor int64, limit int) ([]QueryWithMeta, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT rowid, id, query, source, task, response, status, elapsed_ms, created_at
FROM queries
WHERE (? = 0 OR rowid < ?)
ORDER BY rowid DESC
LIMIT ?
`, cursor, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	var out []QueryWithMeta
	for rows.Next() {
		rec, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queries rows: %w", err)
	}
	return out, nil
}

// Get returns nil without error when id is unknown.
func (s *Store) Get(ctx context.Context, id string) (*QueryWithMeta, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("query id is required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT rowid, id, query, source, task, response, status, elapsed_ms, created_at
FROM queries
WHERE id = ?
LIMIT 1
`, id)
	rec, err := scanQuery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuery(row scanner) (*QueryWithMeta, error) {
	var (
		rec       QueryWithMeta
		elapsedMS int64
	)
	err := row.Scan(&rec.RowID, &rec.ID, &rec.Query, &rec.Source, &rec.Task, &rec.Response, &rec.Status, &elapsedMS, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan query: %w", err)
	}
	rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return &rec, nil
}
