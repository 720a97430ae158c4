package models

import (
	"math"
	"time"
)

// Bar is one daily OHLCV row.
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Metrics is a fundamentals and price-statistics snapshot for one ticker.
// Nil fields mean the value was not available from any source.
type Metrics struct {
	Ticker                string             `json:"ticker"`
	CurrentPrice          *float64           `json:"current_price"`
	PriceTarget           *float64           `json:"price_target"`
	FiftyTwoWeekHigh      *float64           `json:"52_week_high"`
	FiftyTwoWeekLow       *float64           `json:"52_week_low"`
	AvgVolume             *float64           `json:"avg_volume"`
	Beta                  *float64           `json:"beta"`
	DividendYield         *float64           `json:"dividend_yield"`
	SharesOutstanding     *float64           `json:"shares_outstanding"`
	MarketCap             *float64           `json:"market_cap"`
	InstitutionalHoldings *float64           `json:"institutional_holdings"`
	InsiderHoldings       *float64           `json:"insider_holdings"`
	BookValuePerShare     *float64           `json:"book_value_per_share"`
	DebtToCapital         *float64           `json:"debt_to_capital"`
	ReturnOnEquity        *float64           `json:"return_on_equity"`
	OneYearReturn         *float64           `json:"1y_return"`
	FiveYearReturn        *float64           `json:"5y_return"`
	MA50                  *float64           `json:"50d_ma"`
	MA200                 *float64           `json:"200d_ma"`
	Volatility            *VolatilityMetrics `json:"volatility_metrics"`
	BusinessDescription   string             `json:"business_description"`
}

// IsEmpty reports whether no source contributed anything.
func (m *Metrics) IsEmpty() bool {
	if m == nil {
		return true
	}
	return m.CurrentPrice == nil && m.MarketCap == nil && m.MA50 == nil &&
		m.BusinessDescription == "" && m.Volatility == nil
}

type VolatilityMetrics struct {
	AnnualizedVol *float64 `json:"annualized_vol"`
	AnnualizedVar *float64 `json:"annualized_var"`
	Kurtosis      *float64 `json:"kurtosis"`
	VaR95         *float64 `json:"95_var"`
	CVaR95        *float64 `json:"95_cvar"`
}

// HighlightsSnapshot is the short-lived price view used by the highlights task.
type HighlightsSnapshot struct {
	CurrentPrice *float64 `json:"current_price"`
	DailyChange  *float64 `json:"daily_change"`
	MA50         *float64 `json:"50_day_ma"`
	MA200        *float64 `json:"200_day_ma"`
}

func (s HighlightsSnapshot) IsEmpty() bool {
	return s.CurrentPrice == nil && s.DailyChange == nil && s.MA50 == nil && s.MA200 == nil
}

// CompanyHighlights is one entry of the programmatic highlights payload.
type CompanyHighlights struct {
	Company      string   `json:"company"`
	Ticker       string   `json:"ticker"`
	CurrentPrice *float64 `json:"current_price"`
	DailyChange  *float64 `json:"daily_change"`
	MA50         *float64 `json:"50_day_ma"`
	MA200        *float64 `json:"200_day_ma"`
	News         []string `json:"news"`
}

// Float returns a pointer to v, or nil when v is NaN or infinite.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Round2 rounds to two decimals, keeping nil.
func Round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(math.Round(*v*100) / 100)
}
