package market

import (
	"math"
	"sort"

	"github.com/dyike/stella/internal/models"
)

const tradingDaysPerYear = 252

// DailyReturns is the percent change between consecutive closes.
func DailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

// MovingAverage is the mean of the last window closes, or nil when the
// series is shorter than the window.
func MovingAverage(closes []float64, window int) *float64 {
	if window <= 0 || len(closes) < window {
		return nil
	}
	return models.Float(mean(closes[len(closes)-window:]))
}

// TrailingReturn compares the latest close with the close lookback
// sessions earlier (inclusive). A lookback of 0 uses the first close.
func TrailingReturn(closes []float64, lookback int) *float64 {
	n := len(closes)
	if n == 0 {
		return nil
	}
	base := closes[0]
	if lookback > 0 {
		if n < lookback {
			return nil
		}
		base = closes[n-lookback]
	}
	if base == 0 {
		return nil
	}
	return models.Float(closes[n-1]/base - 1)
}

// Volatility summarizes daily returns: annualized volatility and variance,
// excess kurtosis, and the 95% historical VaR and CVaR.
func Volatility(returns []float64) *models.VolatilityMetrics {
	if len(returns) < 2 {
		return nil
	}
	variance := sampleVariance(returns)
	q := quantile(returns, 0.05)

	var tail []float64
	for _, r := range returns {
		if r <= q {
			tail = append(tail, r)
		}
	}

	return &models.VolatilityMetrics{
		AnnualizedVol: models.Float(math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)),
		AnnualizedVar: models.Float(variance * tradingDaysPerYear),
		Kurtosis:      excessKurtosis(returns),
		VaR95:         models.Float(q),
		CVaR95:        models.Float(mean(tail)),
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleVariance uses the n-1 denominator.
func sampleVariance(xs []float64) float64 {
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return ss / float64(len(xs)-1)
}

// excessKurtosis is the bias-corrected sample estimator (Fisher's G2).
func excessKurtosis(xs []float64) *float64 {
	n := float64(len(xs))
	if n < 4 {
		return nil
	}
	m := mean(xs)
	var m2, m4 float64
	for _, x := range xs {
		d := (x - m) * (x - m)
		m2 += d
		m4 += d * d
	}
	if m2 == 0 {
		return models.Float(0)
	}
	numer := n * (n + 1) * (n - 1) * m4
	denom := (n - 2) * (n - 3) * m2 * m2
	adj := 3 * (n - 1) * (n - 1) / ((n - 2) * (n - 3))
	return models.Float(numer/denom - adj)
}

// quantile interpolates linearly between order statistics.
func quantile(xs []float64, q float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}

// DailyChange is the percent move from prev to current. It is nil when
// either side is unknown or prev is zero.
func DailyChange(current, prev *float64) *float64 {
	if current == nil || prev == nil || *prev == 0 {
		return nil
	}
	return models.Float((*current - *prev) / *prev * 100)
}

func closesOf(bars []models.Bar) []float64 {
	out := make([]float64, 0, len(bars))
	for _, b := range bars {
		out = append(out, b.Close)
	}
	return out
}
