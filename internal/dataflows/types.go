package dataflows

import "time"

// CompanyInfo is the fundamentals bundle a provider can return for a ticker.
// Nil fields are unknown.
type CompanyInfo struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description string `json:"description"`

	CurrentPrice          *float64 `json:"current_price"`
	PreviousClose         *float64 `json:"previous_close"`
	PriceTarget           *float64 `json:"price_target"`
	FiftyTwoWeekHigh      *float64 `json:"52_week_high"`
	FiftyTwoWeekLow       *float64 `json:"52_week_low"`
	AvgVolume             *float64 `json:"avg_volume"`
	Beta                  *float64 `json:"beta"`
	DividendYield         *float64 `json:"dividend_yield"`
	SharesOutstanding     *float64 `json:"shares_outstanding"`
	MarketCap             *float64 `json:"market_cap"`
	InstitutionalHoldings *float64 `json:"institutional_holdings"`
	InsiderHoldings       *float64 `json:"insider_holdings"`
	BookValue             *float64 `json:"book_value"`
	DebtToEquity          *float64 `json:"debt_to_equity"`
	ReturnOnEquity        *float64 `json:"return_on_equity"`
}

// Merge fills the unknown fields of c from other.
func (c *CompanyInfo) Merge(other *CompanyInfo) {
	if other == nil {
		return
	}
	if c.Name == "" {
		c.Name = other.Name
	}
	if c.Description == "" {
		c.Description = other.Description
	}
	fill := func(dst **float64, src *float64) {
		if *dst == nil {
			*dst = src
		}
	}
	fill(&c.CurrentPrice, other.CurrentPrice)
	fill(&c.PreviousClose, other.PreviousClose)
	fill(&c.PriceTarget, other.PriceTarget)
	fill(&c.FiftyTwoWeekHigh, other.FiftyTwoWeekHigh)
	fill(&c.FiftyTwoWeekLow, other.FiftyTwoWeekLow)
	fill(&c.AvgVolume, other.AvgVolume)
	fill(&c.Beta, other.Beta)
	fill(&c.DividendYield, other.DividendYield)
	fill(&c.SharesOutstanding, other.SharesOutstanding)
	fill(&c.MarketCap, other.MarketCap)
	fill(&c.InstitutionalHoldings, other.InstitutionalHoldings)
	fill(&c.InsiderHoldings, other.InsiderHoldings)
	fill(&c.BookValue, other.BookValue)
	fill(&c.DebtToEquity, other.DebtToEquity)
	fill(&c.ReturnOnEquity, other.ReturnOnEquity)
}

// Quote is a latest-price view.
type Quote struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Price         *float64 `json:"price"`
	PreviousClose *float64 `json:"previous_close"`
	ChangePercent *float64 `json:"change_percent"`
}

// NewsItem is one article or headline.
type NewsItem struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Publisher   string    `json:"publisher"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}
