package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// tailCount returns the number of observations in the loss tail for the given
// confidence level, clamped to [1, n].
func tailCount(n int, confidence float64) int {
	count := int(math.Ceil(float64(n) * (1.0 - confidence)))
	if count < 1 {
		count = 1
	}
	if count > n {
		count = n
	}
	return count
}

// CalculateVaR calculates historical Value at Risk at the specified confidence
// level: the (1-confidence)-quantile of the sorted return series.
//
// The result is a periodic return, negative for losses. Callers annualize and
// convert sign/units as needed.
func CalculateVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	return sorted[tailCount(len(sorted), confidence)-1]
}

// CalculateCVaR calculates historical Conditional Value at Risk (expected
// shortfall) at the specified confidence level: the mean of all returns at or
// below the VaR quantile.
//
// Args:
//   - returns: Historical returns (negative for losses)
//   - confidence: Confidence level (e.g., 0.95 for 95%)
//
// Returns:
//   - CVaR value (negative for losses, positive for gains in tail)
func CalculateCVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	if len(returns) == 1 {
		return returns[0]
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	count := tailCount(len(sorted), confidence)

	sum := 0.0
	for _, r := range sorted[:count] {
		sum += r
	}

	return sum / float64(count)
}

// MonteCarloCVaR estimates CVaR by sampling portfolio returns from a normal
// distribution with the given mean and standard deviation. Useful as a
// cross-check on the historical estimate when the observed series is short.
func MonteCarloCVaR(mu, sigma float64, numSimulations int, confidence float64) float64 {
	if numSimulations <= 0 || sigma < 0 {
		return 0.0
	}

	normal := distuv.Normal{
		Mu:    mu,
		Sigma: math.Max(sigma, 1e-10),
	}

	simulated := make([]float64, numSimulations)
	for i := range simulated {
		simulated[i] = normal.Rand()
	}

	return CalculateCVaR(simulated, confidence)
}
