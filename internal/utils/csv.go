package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dyike/stella/internal/models"
)

const historyDateLayout = "2006-01-02"

var historyHeader = []string{"Symbol", "Date", "Open", "High", "Low", "Close", "Volume"}

// HistoryCSVPath is {dir}/{TICKER}_history.csv.
func HistoryCSVPath(dir, ticker string) string {
	return filepath.Join(dir, strings.ToUpper(ticker)+"_history.csv")
}

// WriteHistoryCSV replaces the ticker's history file with bars and returns
// its path.
func WriteHistoryCSV(dir, ticker string, bars []models.Bar) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	path := HistoryCSVPath(dir, ticker)
	tmpPath := path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV file: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(historyHeader); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("failed to write headers: %w", err)
	}
	for _, b := range bars {
		row := []string{
			b.Symbol,
			b.Date.Format(historyDateLayout),
			strconv.FormatFloat(b.Open, 'f', 4, 64),
			strconv.FormatFloat(b.High, 'f', 4, 64),
			strconv.FormatFloat(b.Low, 'f', 4, 64),
			strconv.FormatFloat(b.Close, 'f', 4, 64),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := writer.Write(row); err != nil {
			_ = file.Close()
			return "", fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return path, os.Rename(tmpPath, path)
}

// ReadHistoryCSV loads a file written by WriteHistoryCSV. Malformed rows are
// skipped.
func ReadHistoryCSV(path string) ([]models.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, fmt.Errorf("no data in CSV file")
	}

	bars := make([]models.Bar, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) < len(historyHeader) {
			continue
		}
		date, err := time.Parse(historyDateLayout, record[1])
		if err != nil {
			continue
		}
		open, _ := strconv.ParseFloat(record[2], 64)
		high, _ := strconv.ParseFloat(record[3], 64)
		low, _ := strconv.ParseFloat(record[4], 64)
		closePrice, _ := strconv.ParseFloat(record[5], 64)
		volume, _ := strconv.ParseInt(record[6], 10, 64)
		bars = append(bars, models.Bar{
			Symbol: record[0],
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}
	return bars, nil
}
