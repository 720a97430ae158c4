package dataflows

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/phuslu/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// WithRetry executes fn with exponential backoff. Errors that cannot
// succeed on repeat end the loop early.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		log.Debug().Err(lastErr).Int("attempt", attempt+1).Msg("retrying request")
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// ValidateSymbol checks if a stock symbol is valid format
func ValidateSymbol(symbol string) error {
	symbol = NormalizeSymbol(symbol)
	if len(symbol) == 0 {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 12 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	return nil
}

// NormalizeSymbol converts symbol to standard format
func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// httpClient holds what every REST provider shares: a resty client, a
// request budget and retry policy.
type httpClient struct {
	name    string
	client  *resty.Client
	limiter *rate.Limiter
	retry   RetryConfig
}

func newHTTPClient(name, baseURL string, timeout time.Duration, rps float64) *httpClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", "stella/1.0")

	if rps <= 0 {
		rps = 5
	}
	return &httpClient{
		name:    name,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   DefaultRetryConfig(),
	}
}

// get issues a rate-limited GET with retries and returns the body of a 2xx
// response.
func (h *httpClient) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	var body []byte
	err := WithRetry(ctx, h.retry, func() error {
		if err := h.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := h.client.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(path)
		if err != nil {
			return fmt.Errorf("%s request failed: %w", h.name, err)
		}
		if resp.IsError() {
			return &APIError{Provider: h.name, Status: resp.StatusCode(), Message: truncate(resp.String(), 200)}
		}
		body = resp.Body()
		return nil
	})
	return body, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// parseNumber reads provider strings such as "182.52", "1.2%" or "None".
func parseNumber(s string) *float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	switch s {
	case "", "-", "None", "null", "N/A":
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// nonZero treats the zero value of libraries that do not model absence as
// missing.
func nonZero(v float64) *float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func decimalFloat(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
