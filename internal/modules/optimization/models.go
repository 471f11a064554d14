// Package optimization implements mean-variance portfolio optimization:
// covariance estimation, closed-form and numerically constrained solvers,
// risk parity, and efficient frontier generation.
package optimization

import "gonum.org/v1/gonum/mat"

// OptimizationType identifies the objective used for a solve.
type OptimizationType string

const (
	TypeMaxSharpe    OptimizationType = "MAX_SHARPE"
	TypeMinVariance  OptimizationType = "MIN_VARIANCE"
	TypeRiskParity   OptimizationType = "RISK_PARITY"
	TypeTargetReturn OptimizationType = "TARGET_RETURN"
)

// Return estimation methods.
const (
	ReturnMethodGeometric = "geometric"
	ReturnMethodEMA       = "ema"
)

// AssetData is one asset's input to an optimization run. Returns are daily
// fractional returns in chronological order, aligned across assets. The
// caller owns the slice for the duration of the call.
type AssetData struct {
	Symbol       string    `json:"symbol"`
	Sector       string    `json:"sector,omitempty"`
	Returns      []float64 `json:"returns"`
	CurrentPrice float64   `json:"current_price,omitempty"`
	CompanyName  string    `json:"company_name,omitempty"`
}

// OptimizationConstraints holds box bounds, objective hints, and sector caps.
// TargetReturn and MaxRisk are annualized percentages, matching the units of
// OptimizationResult.
type OptimizationConstraints struct {
	MinWeight          float64            `json:"min_weight"`
	MaxWeight          float64            `json:"max_weight"`
	TargetReturn       *float64           `json:"target_return,omitempty"`
	MaxRisk            *float64           `json:"max_risk,omitempty"`
	SectorLimits       map[string]float64 `json:"sector_limits,omitempty"`
	MinReturnThreshold *float64           `json:"min_return_threshold,omitempty"`
}

// DefaultConstraints returns the unconstrained long-only box.
func DefaultConstraints() *OptimizationConstraints {
	return &OptimizationConstraints{MinWeight: 0.0, MaxWeight: 1.0}
}

// Options holds estimator and solver configuration for one run.
type Options struct {
	OptimizationType     OptimizationType `json:"optimization_type,omitempty"`
	LookbackPeriod       int              `json:"lookback_period,omitempty"`
	TradingDaysPerYear   int              `json:"trading_days_per_year,omitempty"`
	RiskFreeRate         float64          `json:"risk_free_rate,omitempty"`
	L2Regularization     float64          `json:"l2_regularization,omitempty"`
	MaxIterations        int              `json:"max_iterations,omitempty"`
	ConvergenceThreshold float64          `json:"convergence_threshold,omitempty"`
	FrontierPoints       int              `json:"frontier_points,omitempty"`
	FrontierWorkers      int              `json:"frontier_workers,omitempty"`
	ReturnMethod         string           `json:"return_method,omitempty"`
	IncludeFrontier      *bool            `json:"include_frontier,omitempty"`
	BenchmarkReturns     []float64        `json:"benchmark_returns,omitempty"`
}

// DefaultOptions returns the engine defaults used when a field is zero.
func DefaultOptions() Options {
	return Options{
		LookbackPeriod:       252,
		TradingDaysPerYear:   252,
		RiskFreeRate:         0.02,
		L2Regularization:     1e-5,
		MaxIterations:        100,
		ConvergenceThreshold: 1e-6,
		FrontierPoints:       50,
		FrontierWorkers:      4,
		ReturnMethod:         ReturnMethodGeometric,
	}
}

// WithDefaults fills zero-valued fields from the defaults.
func (o Options) WithDefaults(defaults Options) Options {
	if o.LookbackPeriod <= 0 {
		o.LookbackPeriod = defaults.LookbackPeriod
	}
	if o.TradingDaysPerYear <= 0 {
		o.TradingDaysPerYear = defaults.TradingDaysPerYear
	}
	if o.RiskFreeRate == 0 {
		o.RiskFreeRate = defaults.RiskFreeRate
	}
	if o.L2Regularization == 0 {
		o.L2Regularization = defaults.L2Regularization
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = defaults.MaxIterations
	}
	if o.ConvergenceThreshold <= 0 {
		o.ConvergenceThreshold = defaults.ConvergenceThreshold
	}
	if o.FrontierPoints <= 0 {
		o.FrontierPoints = defaults.FrontierPoints
	}
	if o.FrontierWorkers <= 0 {
		o.FrontierWorkers = defaults.FrontierWorkers
	}
	if o.ReturnMethod == "" {
		o.ReturnMethod = defaults.ReturnMethod
	}
	return o
}

// includeFrontier reports whether the frontier should be generated. Defaults
// to true when the caller did not say.
func (o Options) includeFrontier() bool {
	if o.IncludeFrontier == nil {
		return true
	}
	return *o.IncludeFrontier
}

// FrontierPoint is one point on the efficient frontier. Return and volatility
// are annualized percentages.
type FrontierPoint struct {
	Return      float64            `json:"return"`
	Volatility  float64            `json:"volatility"`
	SharpeRatio float64            `json:"sharpe_ratio"`
	Weights     map[string]float64 `json:"weights"`
}

// CorrelationPair flags a highly correlated asset pair.
type CorrelationPair struct {
	Symbol1     string  `json:"symbol1"`
	Symbol2     string  `json:"symbol2"`
	Correlation float64 `json:"correlation"`
}

// OptimizationResult is the outcome of one optimization run. ExpectedReturn
// and ExpectedVolatility are annualized percentages. Weights carry the same
// key set as the input asset list and sum to 1 for non-empty input.
type OptimizationResult struct {
	RunID              string             `json:"run_id,omitempty"`
	Weights            map[string]float64 `json:"weights"`
	ExpectedReturn     float64            `json:"expected_return"`
	ExpectedVolatility float64            `json:"expected_volatility"`
	SharpeRatio        float64            `json:"sharpe_ratio"`
	SortinoRatio       *float64           `json:"sortino_ratio,omitempty"`
	MaxDrawdown        *float64           `json:"max_drawdown,omitempty"`
	InformationRatio   *float64           `json:"information_ratio,omitempty"`
	EfficientFrontier  []FrontierPoint    `json:"efficient_frontier,omitempty"`
	OptimizationType   OptimizationType   `json:"optimization_type"`
	Confidence         float64            `json:"confidence"`
	Converged          bool               `json:"converged"`
	FallbackReason     string             `json:"fallback_reason,omitempty"`
	FromCache          bool               `json:"from_cache,omitempty"`
	HighCorrelations   []CorrelationPair  `json:"high_correlations,omitempty"`
	Observations       int                `json:"observations"`
}

// assetIndex assigns each symbol a dense index so all matrix and vector math
// runs on flat arrays. Symbol keys exist only at the API boundary.
type assetIndex struct {
	symbols []string
	index   map[string]int
}

func newAssetIndex(assets []AssetData) *assetIndex {
	ix := &assetIndex{
		symbols: make([]string, len(assets)),
		index:   make(map[string]int, len(assets)),
	}
	for i, asset := range assets {
		ix.symbols[i] = asset.Symbol
		ix.index[asset.Symbol] = i
	}
	return ix
}

func (ix *assetIndex) n() int {
	return len(ix.symbols)
}

// toMap converts a dense weight vector back to symbol keys.
func (ix *assetIndex) toMap(weights []float64) map[string]float64 {
	out := make(map[string]float64, len(ix.symbols))
	for i, symbol := range ix.symbols {
		out[symbol] = weights[i]
	}
	return out
}

// fromMap converts a symbol-keyed weight map to the dense vector. Missing
// symbols get zero.
func (ix *assetIndex) fromMap(weights map[string]float64) []float64 {
	w := make([]float64, len(ix.symbols))
	for i, symbol := range ix.symbols {
		w[i] = weights[symbol]
	}
	return w
}

// CovarianceMatrix holds the annualized covariance (percent squared) for an
// ordered set of assets, plus the observation count it was estimated from.
type CovarianceMatrix struct {
	Symbols      []string    `json:"symbols" msgpack:"symbols"`
	Values       [][]float64 `json:"values" msgpack:"values"`
	Observations int         `json:"observations" msgpack:"observations"`
}

// Dim returns the matrix dimension.
func (c *CovarianceMatrix) Dim() int {
	return len(c.Symbols)
}

// Sym converts the matrix to gonum's symmetric form for solver use.
func (c *CovarianceMatrix) Sym() *mat.SymDense {
	n := c.Dim()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, c.Values[i][j])
		}
	}
	return sym
}
