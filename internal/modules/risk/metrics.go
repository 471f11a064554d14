// Package risk computes portfolio-level risk metrics for a weighted asset
// set: tail risk (historical and simulated VaR/CVaR), drawdown, risk-adjusted
// return ratios, and benchmark regression.
package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/ballast/internal/events"
	"github.com/aristath/ballast/internal/modules/calculations"
	"github.com/aristath/ballast/internal/modules/optimization"
	"github.com/aristath/ballast/pkg/formulas"
)

// Confidence levels reported for VaR and CVaR.
var varConfidences = []float64{0.95, 0.99}

// monteCarloRuns is the sample count for the simulated CVaR cross-check.
const monteCarloRuns = 10000

// CorrelationMatrix is the pairwise correlation of the asset return series,
// in the order of Symbols.
type CorrelationMatrix struct {
	Symbols []string    `json:"symbols"`
	Values  [][]float64 `json:"values"`
}

// PortfolioMetrics is the full risk report for one weighted portfolio.
// Returns and volatilities are annualized percentages; VaR and CVaR are
// positive annualized percent losses keyed by confidence level.
type PortfolioMetrics struct {
	ExpectedReturn float64  `json:"expected_return"`
	Volatility     float64  `json:"volatility"`
	ExcessReturn   float64  `json:"excess_return"`
	SharpeRatio    float64  `json:"sharpe_ratio"`
	SortinoRatio   *float64 `json:"sortino_ratio,omitempty"`
	MaxDrawdown    *float64 `json:"max_drawdown,omitempty"`

	ValueAtRisk    map[string]float64 `json:"value_at_risk"`
	ConditionalVaR map[string]float64 `json:"conditional_var"`
	MonteCarloCVaR map[string]float64 `json:"monte_carlo_cvar"`

	Beta  *float64 `json:"beta,omitempty"`
	Alpha *float64 `json:"alpha,omitempty"`

	Correlations *CorrelationMatrix `json:"correlations,omitempty"`
	Observations int                `json:"observations"`
}

// MetricsCalculator computes portfolio risk metrics. It shares the covariance
// estimator (and therefore the calculation cache) with the optimizer, so the
// volatility reported here matches the one attached to optimization results
// for the same weights.
type MetricsCalculator struct {
	estimator *optimization.CovarianceEstimator
	events    *events.Manager
	defaults  optimization.Options
	log       zerolog.Logger
}

// NewMetricsCalculator wires the calculator. Cache and event manager are
// optional; nil disables caching and event emission respectively.
func NewMetricsCalculator(cache *calculations.Cache, eventManager *events.Manager, defaults optimization.Options, log zerolog.Logger) *MetricsCalculator {
	return &MetricsCalculator{
		estimator: optimization.NewCovarianceEstimator(cache, log),
		events:    eventManager,
		defaults:  defaults.WithDefaults(optimization.DefaultOptions()),
		log:       log.With().Str("component", "risk_metrics").Logger(),
	}
}

// Compute builds the risk report for the given weights. Weights are taken as
// given; symbols missing from the map carry zero weight. Empty input yields a
// zero-valued report rather than an error.
func (m *MetricsCalculator) Compute(assets []optimization.AssetData, weights map[string]float64, opts optimization.Options) *PortfolioMetrics {
	opts = opts.WithDefaults(m.defaults)

	metrics := &PortfolioMetrics{
		ValueAtRisk:    map[string]float64{},
		ConditionalVaR: map[string]float64{},
		MonteCarloCVaR: map[string]float64{},
	}
	if len(assets) == 0 {
		return metrics
	}

	sigma := m.estimator.Estimate(assets, opts)
	metrics.Observations = sigma.Observations

	w := make([]float64, len(assets))
	series := make([][]float64, len(assets))
	window := opts.LookbackPeriod
	for i, asset := range assets {
		w[i] = weights[asset.Symbol]
		series[i] = asset.Returns
		if len(asset.Returns) < window {
			window = len(asset.Returns)
		}
	}

	riskFreePct := opts.RiskFreeRate * 100
	metrics.ExpectedReturn = weightedAnnualReturn(series, w, opts)
	metrics.Volatility = portfolioVolatility(sigma, w)
	metrics.ExcessReturn = metrics.ExpectedReturn - riskFreePct
	if metrics.Volatility > 0 {
		metrics.SharpeRatio = metrics.ExcessReturn / metrics.Volatility
	}

	portfolio := formulas.WeightedSeries(series, w, window)
	metrics.SortinoRatio = formulas.CalculateSortinoRatio(portfolio, opts.RiskFreeRate, opts.TradingDaysPerYear)
	if dd := formulas.CalculateMaxDrawdownFromReturns(portfolio); dd != nil {
		pct := *dd * 100
		metrics.MaxDrawdown = &pct
	}

	annualize := math.Sqrt(float64(opts.TradingDaysPerYear)) * 100
	meanDaily := formulas.Mean(portfolio)
	stdDaily := formulas.StdDev(portfolio)
	for _, confidence := range varConfidences {
		key := confidenceKey(confidence)
		metrics.ValueAtRisk[key] = lossPercent(formulas.CalculateVaR(portfolio, confidence), annualize)
		metrics.ConditionalVaR[key] = lossPercent(formulas.CalculateCVaR(portfolio, confidence), annualize)
		metrics.MonteCarloCVaR[key] = lossPercent(formulas.MonteCarloCVaR(meanDaily, stdDaily, monteCarloRuns, confidence), annualize)
	}

	metrics.Beta, metrics.Alpha = benchmarkRegression(portfolio, opts.BenchmarkReturns, opts.TradingDaysPerYear)
	metrics.Correlations = correlationMatrix(assets, window)

	m.events.EmitTyped("risk", &events.RiskMetricsComputedData{
		Assets:       len(assets),
		Observations: metrics.Observations,
	})
	m.log.Debug().
		Int("assets", len(assets)).
		Float64("volatility", metrics.Volatility).
		Float64("var_95", metrics.ValueAtRisk[confidenceKey(0.95)]).
		Msg("risk metrics computed")

	return metrics
}

// portfolioVolatility is the annualized percent volatility sqrt(w' Σ w).
func portfolioVolatility(sigma *optimization.CovarianceMatrix, w []float64) float64 {
	sym := sigma.Sym()
	wVec := mat.NewVecDense(len(w), w)
	var tmp mat.VecDense
	tmp.MulVec(sym, wVec)
	variance := mat.Dot(wVec, &tmp)
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// weightedAnnualReturn is the weighted sum of per-asset annualized returns,
// each estimated over its own trailing lookback window.
func weightedAnnualReturn(series [][]float64, w []float64, opts optimization.Options) float64 {
	var total float64
	for i, returns := range series {
		window := opts.LookbackPeriod
		if len(returns) < window {
			window = len(returns)
		}
		if window == 0 {
			continue
		}
		tail := returns[len(returns)-window:]
		total += w[i] * formulas.CalculateAnnualReturn(tail, opts.TradingDaysPerYear) * 100
	}
	return total
}

// benchmarkRegression regresses the portfolio series on the benchmark series.
// Beta is the slope; alpha is the intercept annualized to a percent. Both are
// nil without a usable benchmark.
func benchmarkRegression(portfolio, benchmark []float64, periodsPerYear int) (beta, alpha *float64) {
	if len(benchmark) == 0 {
		return nil, nil
	}
	n := len(portfolio)
	if len(benchmark) < n {
		n = len(benchmark)
	}
	if n < 2 {
		return nil, nil
	}

	x := benchmark[len(benchmark)-n:]
	y := portfolio[len(portfolio)-n:]
	if formulas.Variance(x) == 0 {
		return nil, nil
	}

	a, b := stat.LinearRegression(x, y, nil, false)
	alphaPct := a * float64(periodsPerYear) * 100
	return &b, &alphaPct
}

// correlationMatrix computes pairwise correlations from the unregularized
// sample covariance of the aligned trailing windows. Nil when fewer than two
// observations are available.
func correlationMatrix(assets []optimization.AssetData, window int) *CorrelationMatrix {
	if window < 2 {
		return nil
	}

	n := len(assets)
	data := make([]float64, window*n)
	symbols := make([]string, n)
	for j, asset := range assets {
		symbols[j] = asset.Symbol
		tail := asset.Returns[len(asset.Returns)-window:]
		for t := 0; t < window; t++ {
			data[t*n+j] = tail[t]
		}
	}

	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, mat.NewDense(window, n, data), nil)

	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			values[i][j] = cov.At(i, j)
		}
	}

	corr, err := formulas.CorrelationMatrixFromCovariance(values)
	if err != nil {
		return nil
	}
	return &CorrelationMatrix{Symbols: symbols, Values: corr}
}

// lossPercent converts a periodic tail return into a positive annualized
// percent loss. Gains in the tail clamp to zero.
func lossPercent(periodic, annualize float64) float64 {
	loss := -periodic * annualize
	if loss < 0 {
		return 0
	}
	return loss
}

func confidenceKey(confidence float64) string {
	return fmt.Sprintf("%.2f", confidence)
}
