package agents

import (
	"regexp"
	"strings"

	"github.com/dyike/stella/internal/models"
)

type knownCompany struct {
	pattern *regexp.Regexp
	ref     models.CompanyRef
}

// knownCompanies is matched in order; the order decides which company wins
// when a query names several.
var knownCompanies = compileKnown([][3]string{
	{"apple", "Apple", "AAPL"},
	{"nvidia", "Nvidia", "NVDA"},
	{"tesla", "Tesla", "TSLA"},
	{"samsung", "Samsung", "005930.KS"},
	{"mcdonalds", "McDonalds", "MCD"},
	{"microsoft", "Microsoft", "MSFT"},
	{"alibaba", "Alibaba", "BABA"},
	{"hyundai", "Hyundai", "005380.KS"},
	{"bank of america", "Bank of America", "BAC"},
	{"jpmorgan", "JPMorgan", "JPM"},
})

func compileKnown(rows [][3]string) []knownCompany {
	out := make([]knownCompany, 0, len(rows))
	for _, r := range rows {
		out = append(out, knownCompany{
			pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(r[0]) + `\b`),
			ref:     models.CompanyRef{Name: r[1], Ticker: r[2]},
		})
	}
	return out
}

// matchKnown returns every known company named in query, in table order.
func matchKnown(query string) []models.CompanyRef {
	lower := strings.ToLower(query)
	var out []models.CompanyRef
	for _, k := range knownCompanies {
		if k.pattern.MatchString(lower) {
			out = append(out, k.ref)
		}
	}
	return out
}

func knownByTicker(ticker string) (models.CompanyRef, bool) {
	for _, k := range knownCompanies {
		if k.ref.Ticker == ticker {
			return k.ref, true
		}
	}
	return models.CompanyRef{}, false
}
