// Package formulas provides the pure statistical building blocks used by the
// optimization and risk modules. Functions operate on plain float64 slices of
// daily fractional returns and have no dependencies beyond gonum.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// Covariance calculates the sample covariance between two datasets
func Covariance(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// CalculateReturns converts prices to fractional returns
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// AnnualizedVolatility calculates annualized volatility from periodic returns.
// Formula: sample standard deviation × sqrt(periodsPerYear)
func AnnualizedVolatility(returns []float64, periodsPerYear int) float64 {
	if len(returns) == 0 || periodsPerYear <= 0 {
		return 0
	}

	return StdDev(returns) * math.Sqrt(float64(periodsPerYear))
}

// CalculateAnnualReturn calculates the annualized return from periodic returns
// by geometric compounding.
//
// Formula: ((1+r1)*(1+r2)*...*(1+rN))^(periodsPerYear/N) - 1
//
// Returns of -100% or worse are skipped, since compounding through them is
// undefined. Overflow or otherwise non-finite results collapse to 0.
func CalculateAnnualReturn(returns []float64, periodsPerYear int) float64 {
	if len(returns) == 0 || periodsPerYear <= 0 {
		return 0.0
	}

	cumulative := 1.0
	observations := 0
	for _, r := range returns {
		if r <= -1 {
			continue
		}
		cumulative *= (1 + r)
		observations++
	}

	if observations == 0 {
		return 0.0
	}

	// Very short periods: return the simple cumulative return to avoid
	// extreme annualization.
	if observations < 3 {
		return cumulative - 1
	}

	years := float64(observations) / float64(periodsPerYear)
	annualized := math.Pow(cumulative, 1.0/years) - 1

	if math.IsNaN(annualized) || math.IsInf(annualized, 0) {
		return 0.0
	}

	return annualized
}

// WeightedSeries builds the daily portfolio return series from per-asset
// series and a weight vector. All series must share the given length; the
// trailing window of each series is used.
func WeightedSeries(returns [][]float64, weights []float64, length int) []float64 {
	if len(returns) == 0 || len(returns) != len(weights) || length <= 0 {
		return []float64{}
	}

	portfolio := make([]float64, length)
	for i, series := range returns {
		if len(series) < length {
			continue
		}
		window := series[len(series)-length:]
		for t := 0; t < length; t++ {
			portfolio[t] += weights[i] * window[t]
		}
	}

	return portfolio
}
