package agents

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DocumentStore keeps generated markdown per ticker and day:
// {dir}/{TICKER}_{YYYY-MM-DD}.md.
type DocumentStore struct {
	reportsDir   string
	overviewsDir string
}

func NewDocumentStore(reportsDir, overviewsDir string) *DocumentStore {
	return &DocumentStore{reportsDir: reportsDir, overviewsDir: overviewsDir}
}

func (d *DocumentStore) Report(ticker, date string) (string, bool) {
	return readDocument(documentPath(d.reportsDir, ticker, date))
}

func (d *DocumentStore) SaveReport(ticker, date, content string) error {
	return writeDocument(documentPath(d.reportsDir, ticker, date), content)
}

func (d *DocumentStore) Overview(ticker, date string) (string, bool) {
	return readDocument(documentPath(d.overviewsDir, ticker, date))
}

func (d *DocumentStore) SaveOverview(ticker, date, content string) error {
	return writeDocument(documentPath(d.overviewsDir, ticker, date), content)
}

func (d *DocumentStore) ReportPath(ticker, date string) string {
	return documentPath(d.reportsDir, ticker, date)
}

func documentPath(dir, ticker, date string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.md", strings.ToUpper(ticker), date))
}

func readDocument(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// writeDocument replaces path atomically so concurrent readers never see a
// partial document.
func writeDocument(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".doc-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	_, werr := tmp.WriteString(content)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
