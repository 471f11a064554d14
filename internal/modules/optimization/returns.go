package optimization

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/aristath/ballast/pkg/formulas"
)

// emaPeriod is the span for exponentially weighted return estimation.
// Series shorter than the span fall back to the geometric method.
const emaPeriod = 20

// expectedReturns estimates the annualized percent return of each asset over
// its own lookback window.
func expectedReturns(assets []AssetData, opts Options) []float64 {
	mu := make([]float64, len(assets))
	for i, asset := range assets {
		mu[i] = annualizedReturn(asset.Returns, opts)
	}
	return mu
}

// annualizedReturn estimates one asset's annualized percent return from its
// daily series, using the most recent lookback-sized window.
func annualizedReturn(returns []float64, opts Options) float64 {
	window := opts.LookbackPeriod
	if len(returns) < window {
		window = len(returns)
	}
	if window == 0 {
		return 0
	}
	tail := returns[len(returns)-window:]

	if opts.ReturnMethod == ReturnMethodEMA && window >= emaPeriod {
		ema := talib.Ema(tail, emaPeriod)
		daily := ema[len(ema)-1]
		if 1+daily > 0 {
			return (math.Pow(1+daily, float64(opts.TradingDaysPerYear)) - 1) * 100
		}
	}

	return formulas.CalculateAnnualReturn(tail, opts.TradingDaysPerYear) * 100
}
