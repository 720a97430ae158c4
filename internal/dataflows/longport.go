package dataflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"

	"github.com/dyike/stella/internal/models"
)

// LongportClient resolves display names and daily candles from Longport.
// Longport symbols carry a market suffix, so bare US tickers get ".US".
type LongportClient struct {
	quoteCtx *quote.QuoteContext
}

func NewLongportClient(appKey, appSecret, accessToken string) (*LongportClient, error) {
	if appKey == "" || appSecret == "" || accessToken == "" {
		return nil, fmt.Errorf("longport: %w", ErrNotConfigured)
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(appKey, appSecret, accessToken))
	if err != nil {
		return nil, err
	}
	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}
	return &LongportClient{quoteCtx: quoteContext}, nil
}

func (c *LongportClient) Name() string { return "longport" }

// longportSymbol maps a Yahoo style ticker to Longport's symbol format.
// Markets Longport does not list return false.
func longportSymbol(ticker string) (string, bool) {
	t := NormalizeSymbol(ticker)
	if !strings.Contains(t, ".") {
		return t + ".US", true
	}
	switch {
	case strings.HasSuffix(t, ".HK"), strings.HasSuffix(t, ".US"):
		return t, true
	case strings.HasSuffix(t, ".SS"):
		return strings.TrimSuffix(t, ".SS") + ".SH", true
	case strings.HasSuffix(t, ".SZ"):
		return t, true
	}
	return "", false
}

func (c *LongportClient) DisplayName(ctx context.Context, ticker string) (string, error) {
	symbol, ok := longportSymbol(ticker)
	if !ok {
		return "", fmt.Errorf("longport has no market for %s: %w", ticker, ErrNoData)
	}
	infos, err := c.quoteCtx.StaticInfo(ctx, []string{symbol})
	if err != nil {
		return "", err
	}
	for _, info := range infos {
		if info != nil && info.NameEn != "" {
			return info.NameEn, nil
		}
	}
	return "", fmt.Errorf("longport static info %s: %w", symbol, ErrNoData)
}

// History returns the latest count daily candles, oldest first.
func (c *LongportClient) History(ctx context.Context, ticker string, count int) ([]models.Bar, error) {
	symbol, ok := longportSymbol(ticker)
	if !ok {
		return nil, fmt.Errorf("longport has no market for %s: %w", ticker, ErrNoData)
	}
	// Longport caps a single candlestick request at 1000 rows
	if count > 1000 {
		count = 1000
	}
	sticks, err := c.quoteCtx.Candlesticks(ctx, symbol, quote.PeriodDay, int32(count), quote.AdjustTypeNo)
	if err != nil {
		return nil, err
	}

	bars := make([]models.Bar, 0, len(sticks))
	for _, stick := range sticks {
		if stick == nil {
			continue
		}
		open, _ := stick.Open.Float64()
		high, _ := stick.High.Float64()
		low, _ := stick.Low.Float64()
		closePrice, _ := stick.Close.Float64()
		bars = append(bars, models.Bar{
			Symbol: NormalizeSymbol(ticker),
			Date:   time.Unix(stick.Timestamp, 0).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: stick.Volume,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("longport history %s: %w", symbol, ErrNoData)
	}
	return bars, nil
}
