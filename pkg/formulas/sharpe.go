package formulas

import (
	"math"
)

// CalculateSharpeRatio calculates the annualized Sharpe ratio from periodic returns.
//
// Sharpe = (mean return - periodic risk-free rate) / standard deviation,
// annualized by sqrt(periodsPerYear).
//
// Args:
//
//	returns: Array of periodic returns (daily, monthly, etc.)
//	riskFreeRate: Risk-free rate (annual, as decimal, e.g., 0.02 for 2%)
//	periodsPerYear: Number of periods per year (252 for daily, 12 for monthly)
//
// Returns:
//
//	Sharpe ratio or nil if insufficient data
func CalculateSharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return nil
	}

	meanReturn := Mean(returns)

	stdDev := StdDev(returns)
	if stdDev == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)

	sharpe := (meanReturn - periodicRiskFree) / stdDev
	annualizedSharpe := sharpe * math.Sqrt(float64(periodsPerYear))

	return &annualizedSharpe
}

// DownsideDeviation calculates the standard deviation of returns falling below
// the mean of the series. This is the denominator of the Sortino ratio.
//
// Returns 0 when no observation falls below the mean.
func DownsideDeviation(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	mean := Mean(returns)

	var downsideSquaredSum float64
	downsideCount := 0
	for _, ret := range returns {
		if ret < mean {
			deviation := ret - mean
			downsideSquaredSum += deviation * deviation
			downsideCount++
		}
	}

	if downsideCount == 0 {
		return 0
	}

	return math.Sqrt(downsideSquaredSum / float64(downsideCount))
}

// CalculateSortinoRatio calculates the annualized Sortino ratio: excess return
// over the risk-free rate divided by downside-only deviation.
//
// Returns nil when there is insufficient data or no downside observations.
func CalculateSortinoRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 || periodsPerYear <= 0 {
		return nil
	}

	downside := DownsideDeviation(returns)
	if downside == 0 {
		return nil
	}

	meanReturn := Mean(returns)
	periodicRiskFree := riskFreeRate / float64(periodsPerYear)

	sortino := (meanReturn - periodicRiskFree) / downside
	annualizedSortino := sortino * math.Sqrt(float64(periodsPerYear))

	return &annualizedSortino
}
