package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/ballast/internal/modules/calculations"
	"github.com/aristath/ballast/pkg/formulas"
)

// HighCorrelationThreshold is the absolute correlation above which a pair of
// assets is flagged in the optimization result.
const HighCorrelationThreshold = 0.80

// CovarianceEstimator builds annualized covariance matrices from daily
// returns. Estimates are cached by asset set and estimation parameters; the
// cache is optional.
type CovarianceEstimator struct {
	cache *calculations.Cache
	log   zerolog.Logger
}

func NewCovarianceEstimator(cache *calculations.Cache, log zerolog.Logger) *CovarianceEstimator {
	return &CovarianceEstimator{
		cache: cache,
		log:   log.With().Str("component", "covariance").Logger(),
	}
}

// alignReturns truncates every series to the shared estimation window: the
// smaller of the lookback and the shortest series. Each aligned series is the
// most recent slice of the input. The window can be 0 or 1 for degenerate
// inputs; estimation handles those without erroring.
func alignReturns(assets []AssetData, lookback int) ([][]float64, int) {
	window := lookback
	for _, asset := range assets {
		if len(asset.Returns) < window {
			window = len(asset.Returns)
		}
	}

	aligned := make([][]float64, len(assets))
	for i, asset := range assets {
		aligned[i] = asset.Returns[len(asset.Returns)-window:]
	}
	return aligned, window
}

// Estimate computes the annualized covariance matrix (percent squared) for
// the given assets. The daily sample covariance uses the N-1 denominator,
// gets L2 regularization added to its diagonal, and is then scaled by
// trading days and converted to percent units. Fewer than two aligned
// observations yield a zero matrix before regularization.
func (e *CovarianceEstimator) Estimate(assets []AssetData, opts Options) *CovarianceMatrix {
	symbols := make([]string, len(assets))
	for i, asset := range assets {
		symbols[i] = asset.Symbol
	}

	aligned, window := alignReturns(assets, opts.LookbackPeriod)

	cacheKey := calculations.KeyForSymbols(symbols,
		fmt.Sprintf("w=%d", window),
		fmt.Sprintf("l2=%g", opts.L2Regularization),
		fmt.Sprintf("td=%d", opts.TradingDaysPerYear),
	)

	if e.cache != nil {
		var cached CovarianceMatrix
		if e.cache.Get(calculations.CategoryCovariance, cacheKey, &cached) {
			if remapped, ok := remapCovariance(&cached, symbols); ok {
				e.log.Debug().Int("assets", len(symbols)).Msg("covariance cache hit")
				return remapped
			}
		}
	}

	cov := computeCovariance(aligned, window, opts)
	result := &CovarianceMatrix{Symbols: symbols, Values: cov, Observations: window}

	if e.cache != nil {
		if err := e.cache.Set(calculations.CategoryCovariance, cacheKey, result, calculations.TTLCovariance); err != nil {
			e.log.Warn().Err(err).Msg("failed to cache covariance matrix")
		}
	}

	return result
}

// computeCovariance builds the annualized matrix from aligned daily series.
func computeCovariance(aligned [][]float64, window int, opts Options) [][]float64 {
	n := len(aligned)
	annualize := float64(opts.TradingDaysPerYear) * 10000.0

	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	if window < 2 {
		for i := 0; i < n; i++ {
			cov[i][i] = opts.L2Regularization * annualize
		}
		return cov
	}

	demeaned := make([][]float64, n)
	for i, series := range aligned {
		mean := stat.Mean(series, nil)
		d := make([]float64, window)
		for k, v := range series {
			d[k] = v - mean
		}
		demeaned[i] = d
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var sum float64
			for k := 0; k < window; k++ {
				sum += demeaned[i][k] * demeaned[j][k]
			}
			daily := sum / float64(window-1)
			if i == j {
				daily += opts.L2Regularization
			}
			cov[i][j] = daily * annualize
			cov[j][i] = cov[i][j]
		}
	}
	return cov
}

// remapCovariance reorders a cached matrix to the requested symbol order.
// Returns false when the cached symbol set does not match.
func remapCovariance(cached *CovarianceMatrix, symbols []string) (*CovarianceMatrix, bool) {
	if len(cached.Symbols) != len(symbols) {
		return nil, false
	}
	pos := make(map[string]int, len(cached.Symbols))
	for i, s := range cached.Symbols {
		pos[s] = i
	}
	perm := make([]int, len(symbols))
	for i, s := range symbols {
		p, ok := pos[s]
		if !ok {
			return nil, false
		}
		perm[i] = p
	}

	n := len(symbols)
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			values[i][j] = cached.Values[perm[i]][perm[j]]
		}
	}
	out := make([]string, n)
	copy(out, symbols)
	return &CovarianceMatrix{Symbols: out, Values: values, Observations: cached.Observations}, true
}

// HighCorrelationPairs flags every asset pair whose return correlation meets
// the threshold in absolute value, ordered by first then second index.
// Correlations come from the raw aligned series: the regularized covariance
// would understate them for low-volatility assets.
func HighCorrelationPairs(assets []AssetData, lookback int, threshold float64) []CorrelationPair {
	aligned, window := alignReturns(assets, lookback)
	if window < 2 {
		return nil
	}
	var pairs []CorrelationPair
	for i := 0; i < len(assets); i++ {
		for j := i + 1; j < len(assets); j++ {
			corr := formulas.Correlation(aligned[i], aligned[j])
			if math.Abs(corr) >= threshold {
				pairs = append(pairs, CorrelationPair{
					Symbol1:     assets[i].Symbol,
					Symbol2:     assets[j].Symbol,
					Correlation: corr,
				})
			}
		}
	}
	return pairs
}
