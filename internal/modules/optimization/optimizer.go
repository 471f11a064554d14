package optimization

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/ballast/internal/events"
	"github.com/aristath/ballast/internal/modules/calculations"
	"github.com/aristath/ballast/pkg/formulas"
)

// Solve-quality factors entering the confidence score.
const (
	solveFactorClosedForm = 1.0
	solveFactorNumerical  = 0.9
	solveFactorFallback   = 0.25
)

// Optimizer orchestrates one optimization run: estimate, solve, constrain,
// attach risk metrics and the efficient frontier. Construct one per process
// and share it; all methods are safe for concurrent use. Covariance matrices,
// frontiers, and full results are cached with TTL expiry; callers invalidate
// through InvalidateCaches when return series change.
type Optimizer struct {
	estimator *CovarianceEstimator
	cache     *calculations.Cache
	events    *events.Manager
	defaults  Options
	log       zerolog.Logger
}

// NewOptimizer wires the facade. The cache and event manager are optional;
// nil disables caching and event emission respectively.
func NewOptimizer(cache *calculations.Cache, eventManager *events.Manager, defaults Options, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		estimator: NewCovarianceEstimator(cache, log),
		cache:     cache,
		events:    eventManager,
		defaults:  defaults.WithDefaults(DefaultOptions()),
		log:       log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize runs the full pipeline for one asset set. Empty input yields an
// empty zero-confidence result; data-quality problems degrade to fallback
// allocations with a populated FallbackReason. Only caller contract
// violations return an error.
func (o *Optimizer) Optimize(ctx context.Context, assets []AssetData, constraints *OptimizationConstraints, opts Options) (*OptimizationResult, error) {
	start := time.Now()
	opts = opts.WithDefaults(o.defaults)
	if constraints == nil {
		constraints = DefaultConstraints()
	}

	runID := uuid.New().String()
	optType, err := o.resolveType(constraints, opts)
	if err == nil {
		err = ValidateConstraints(constraints)
	}
	if err == nil {
		err = checkSymbolsUnique(assets)
	}
	if err == nil && optType == TypeTargetReturn && constraints.TargetReturn == nil {
		err = fmt.Errorf("%w: target_return is required for %s", ErrInvalidConstraint, TypeTargetReturn)
	}
	if err != nil {
		o.events.EmitTyped("optimization", &events.OptimizationFailedData{
			RunID:            runID,
			OptimizationType: string(optType),
			Error:            err.Error(),
		})
		return nil, err
	}

	if len(assets) == 0 {
		return &OptimizationResult{
			RunID:            runID,
			Weights:          map[string]float64{},
			OptimizationType: optType,
			Confidence:       0,
			Converged:        true,
		}, nil
	}

	o.events.EmitTyped("optimization", &events.OptimizationStartedData{
		RunID:            runID,
		OptimizationType: string(optType),
		Assets:           len(assets),
	})

	cacheKey := o.requestKey(assets, constraints, opts)
	if o.cache != nil {
		var cached OptimizationResult
		if o.cache.Get(calculations.CategoryOptimization, cacheKey, &cached) {
			cached.RunID = runID
			cached.FromCache = true
			o.log.Debug().Str("run_id", runID).Msg("optimization cache hit")
			o.emitCompleted(runID, &cached, start)
			return &cached, nil
		}
	}

	result := o.run(ctx, runID, assets, constraints, opts, optType)

	if o.cache != nil {
		if err := o.cache.Set(calculations.CategoryOptimization, cacheKey, result, calculations.TTLOptimization); err != nil {
			o.log.Warn().Err(err).Msg("failed to cache optimization result")
		}
	}

	o.log.Info().
		Str("run_id", runID).
		Str("type", string(result.OptimizationType)).
		Int("assets", len(assets)).
		Float64("expected_return", result.ExpectedReturn).
		Float64("volatility", result.ExpectedVolatility).
		Bool("converged", result.Converged).
		Dur("elapsed", time.Since(start)).
		Msg("optimization complete")

	o.emitCompleted(runID, result, start)
	return result, nil
}

// run executes the solve pipeline after validation and cache miss.
func (o *Optimizer) run(ctx context.Context, runID string, assets []AssetData, constraints *OptimizationConstraints, opts Options, optType OptimizationType) *OptimizationResult {
	// Expected returns drive both screening and the solve.
	mu := expectedReturns(assets, opts)

	weights := make(map[string]float64, len(assets))
	for _, asset := range assets {
		weights[asset.Symbol] = 0
	}

	survivors, muS := screenByReturn(assets, mu, constraints.MinReturnThreshold)
	if len(survivors) == 0 {
		return &OptimizationResult{
			RunID:            runID,
			Weights:          weights,
			OptimizationType: optType,
			Confidence:       0,
			Converged:        true,
			FallbackReason:   "all assets below minimum return threshold",
		}
	}

	if len(survivors) == 1 {
		return o.singleAsset(runID, survivors[0], weights, opts, optType)
	}

	ix := newAssetIndex(survivors)
	sigma := o.estimator.Estimate(survivors, opts)
	sym := sigma.Sym()
	lower, upper := buildBounds(constraints, ix.n())
	sectorFeasible := func(w []float64) bool {
		return sectorsWithinLimits(w, survivors, constraints.SectorLimits)
	}
	riskFreePct := opts.RiskFreeRate * 100

	var frontier []FrontierPoint
	frontierReady := false
	ensureFrontier := func() []FrontierPoint {
		if !frontierReady {
			fStart := time.Now()
			frontier = generateFrontier(ctx, sym, muS, survivors, constraints, opts, ix)
			frontierReady = true
			o.events.EmitTyped("optimization", &events.FrontierComputedData{
				RunID:      runID,
				Assets:     len(survivors),
				Points:     len(frontier),
				DurationMs: time.Since(fStart).Milliseconds(),
			})
		}
		return frontier
	}

	w, solveFactor, converged, fallbackReason := o.dispatch(sym, muS, constraints, opts, optType, lower, upper, sectorFeasible, ensureFrontier, ix)
	w = applyConstraints(w, survivors, constraints)

	// Cap portfolio volatility by moving down the frontier when requested.
	// Only the efficient half participates in selection; dominated points
	// stay in the result for display.
	if constraints.MaxRisk != nil && portfolioVolatility(sym, w) > *constraints.MaxRisk+boxTolerance {
		if point, ok := capToMaxRisk(efficientHalf(ensureFrontier()), *constraints.MaxRisk); ok {
			w = ix.fromMap(point.Weights)
			if solveFactor > solveFactorNumerical {
				solveFactor = solveFactorNumerical
			}
		}
	}

	ret := portfolioReturn(muS, w)
	vol := portfolioVolatility(sym, w)

	aligned, window := alignReturns(survivors, opts.LookbackPeriod)
	portfolio := formulas.WeightedSeries(aligned, w, window)

	result := &OptimizationResult{
		RunID:              runID,
		ExpectedReturn:     ret,
		ExpectedVolatility: vol,
		SharpeRatio:        sharpeRatio(ret, vol, riskFreePct),
		SortinoRatio:       formulas.CalculateSortinoRatio(portfolio, opts.RiskFreeRate, opts.TradingDaysPerYear),
		MaxDrawdown:        drawdownPercent(portfolio),
		InformationRatio:   informationRatio(portfolio, opts.BenchmarkReturns, opts.TradingDaysPerYear),
		OptimizationType:   optType,
		Converged:          converged,
		FallbackReason:     fallbackReason,
		HighCorrelations:   HighCorrelationPairs(survivors, opts.LookbackPeriod, HighCorrelationThreshold),
		Observations:       sigma.Observations,
	}

	for i, symbol := range ix.symbols {
		weights[symbol] = w[i]
	}
	result.Weights = weights

	if opts.includeFrontier() {
		result.EfficientFrontier = ensureFrontier()
	}

	dataFactor := math.Max(0.1, math.Min(1, float64(sigma.Observations)/float64(opts.LookbackPeriod)))
	result.Confidence = dataFactor * solveFactor
	return result
}

// dispatch routes to the solver for the requested objective. Returns dense
// weights, the solve-quality factor, convergence, and a fallback reason when
// the solve degraded to the closest feasible allocation.
func (o *Optimizer) dispatch(sigma *mat.SymDense, mu []float64, constraints *OptimizationConstraints, opts Options, optType OptimizationType, lower, upper []float64, sectorFeasible feasibilityCheck, ensureFrontier func() []FrontierPoint, ix *assetIndex) ([]float64, float64, bool, string) {
	switch optType {
	case TypeMinVariance:
		w, numerical, err := solveMinVariance(sigma, lower, upper, sectorFeasible)
		if err != nil {
			return o.fallback(lower, upper, err)
		}
		return w, closedOrNumerical(numerical), true, ""

	case TypeTargetReturn:
		w, numerical, err := solveTargetReturn(sigma, mu, *constraints.TargetReturn, lower, upper, sectorFeasible)
		if err != nil {
			return o.fallback(lower, upper, err)
		}
		return w, closedOrNumerical(numerical), true, ""

	case TypeRiskParity:
		w, converged, iterations := riskParityWeights(sigma, lower, upper, opts.MaxIterations, opts.ConvergenceThreshold)
		if !converged {
			o.log.Debug().Int("iterations", iterations).Msg("risk parity stopped at iteration limit")
			return w, solveFactorNumerical, false, ""
		}
		return w, solveFactorClosedForm, true, ""

	default: // TypeMaxSharpe
		riskFreePct := opts.RiskFreeRate * 100
		if w, err := maxSharpeClosedForm(sigma, mu, riskFreePct); err == nil {
			if withinBox(w, lower, upper) && sectorFeasible(w) {
				return w, solveFactorClosedForm, true, ""
			}
		}
		point, ok := maxSharpePoint(efficientHalf(ensureFrontier()))
		if !ok {
			return o.fallback(lower, upper, fmt.Errorf("%w: no feasible frontier point", ErrNumericalInstability))
		}
		return ix.fromMap(point.Weights), solveFactorNumerical, true, ""
	}
}

// fallback returns the closest feasible allocation to equal weights.
func (o *Optimizer) fallback(lower, upper []float64, err error) ([]float64, float64, bool, string) {
	o.log.Warn().Err(err).Msg("optimization fell back to equal-weight allocation")
	return feasibleStart(lower, upper), solveFactorFallback, false, err.Error()
}

// singleAsset allocates everything to the sole surviving asset, with risk
// and return taken directly from its own series.
func (o *Optimizer) singleAsset(runID string, asset AssetData, weights map[string]float64, opts Options, optType OptimizationType) *OptimizationResult {
	weights[asset.Symbol] = 1.0

	window := opts.LookbackPeriod
	if len(asset.Returns) < window {
		window = len(asset.Returns)
	}
	tail := asset.Returns[len(asset.Returns)-window:]

	ret := annualizedReturn(asset.Returns, opts)
	vol := formulas.AnnualizedVolatility(tail, opts.TradingDaysPerYear) * 100
	riskFreePct := opts.RiskFreeRate * 100

	return &OptimizationResult{
		RunID:              runID,
		Weights:            weights,
		ExpectedReturn:     ret,
		ExpectedVolatility: vol,
		SharpeRatio:        sharpeRatio(ret, vol, riskFreePct),
		SortinoRatio:       formulas.CalculateSortinoRatio(tail, opts.RiskFreeRate, opts.TradingDaysPerYear),
		MaxDrawdown:        drawdownPercent(tail),
		InformationRatio:   informationRatio(tail, opts.BenchmarkReturns, opts.TradingDaysPerYear),
		OptimizationType:   optType,
		Confidence:         1.0,
		Converged:          true,
		Observations:       window,
	}
}

// GenerateEfficientFrontier traces the risk/return curve for an asset set
// without running a full optimization. Results are cached with TTL expiry.
func (o *Optimizer) GenerateEfficientFrontier(ctx context.Context, assets []AssetData, constraints *OptimizationConstraints, opts Options) ([]FrontierPoint, error) {
	opts = opts.WithDefaults(o.defaults)
	if constraints == nil {
		constraints = DefaultConstraints()
	}
	if err := ValidateConstraints(constraints); err != nil {
		return nil, err
	}
	if err := checkSymbolsUnique(assets); err != nil {
		return nil, err
	}
	if len(assets) < 2 {
		return nil, nil
	}

	cacheKey := o.requestKey(assets, constraints, opts)
	if o.cache != nil {
		var cached []FrontierPoint
		if o.cache.Get(calculations.CategoryFrontier, cacheKey, &cached) {
			return cached, nil
		}
	}

	start := time.Now()
	mu := expectedReturns(assets, opts)
	ix := newAssetIndex(assets)
	sigma := o.estimator.Estimate(assets, opts)
	points := generateFrontier(ctx, sigma.Sym(), mu, assets, constraints, opts, ix)

	if o.cache != nil {
		if err := o.cache.Set(calculations.CategoryFrontier, cacheKey, points, calculations.TTLFrontier); err != nil {
			o.log.Warn().Err(err).Msg("failed to cache frontier")
		}
	}

	o.events.EmitTyped("optimization", &events.FrontierComputedData{
		RunID:      uuid.New().String(),
		Assets:     len(assets),
		Points:     len(points),
		DurationMs: time.Since(start).Milliseconds(),
	})
	return points, nil
}

// DiversificationRatio computes the weighted average of individual asset
// volatilities divided by portfolio volatility. A ratio above 1 indicates a
// diversification benefit; 0 means it could not be computed.
func (o *Optimizer) DiversificationRatio(assets []AssetData, weights map[string]float64, opts Options) float64 {
	if len(assets) == 0 {
		return 0
	}
	opts = opts.WithDefaults(o.defaults)
	ix := newAssetIndex(assets)
	sigma := o.estimator.Estimate(assets, opts)
	sym := sigma.Sym()

	w := ix.fromMap(weights)
	portfolioVol := portfolioVolatility(sym, w)
	if portfolioVol <= 0 {
		return 0
	}

	var weightedVol float64
	for i := range w {
		weightedVol += w[i] * math.Sqrt(sym.At(i, i))
	}
	return weightedVol / portfolioVol
}

// InvalidateCaches clears cached covariance matrices, frontiers, and full
// optimization results. Callers invoke this when underlying return series
// change; entries otherwise expire by TTL only.
func (o *Optimizer) InvalidateCaches() (int64, error) {
	if o.cache == nil {
		return 0, nil
	}
	var total int64
	for _, category := range []string{
		calculations.CategoryCovariance,
		calculations.CategoryFrontier,
		calculations.CategoryOptimization,
	} {
		n, err := o.cache.Invalidate(category)
		if err != nil {
			return total, fmt.Errorf("invalidate %s cache: %w", category, err)
		}
		total += n
		o.events.EmitTyped("optimization", &events.CacheInvalidatedData{
			Category: category,
			Entries:  n,
		})
	}
	return total, nil
}

// CacheStats reports entry counts for the calculation cache backing this
// optimizer. Returns nil when caching is disabled.
func (o *Optimizer) CacheStats() (*calculations.Stats, error) {
	if o.cache == nil {
		return nil, nil
	}
	return o.cache.GetStats()
}

// resolveType picks the objective: an explicit type wins, a target-return
// hint selects TARGET_RETURN, and maximum Sharpe is the default.
func (o *Optimizer) resolveType(constraints *OptimizationConstraints, opts Options) (OptimizationType, error) {
	switch opts.OptimizationType {
	case TypeMaxSharpe, TypeMinVariance, TypeRiskParity, TypeTargetReturn:
		return opts.OptimizationType, nil
	case "":
		if constraints != nil && constraints.TargetReturn != nil {
			return TypeTargetReturn, nil
		}
		return TypeMaxSharpe, nil
	default:
		return TypeMaxSharpe, fmt.Errorf("unknown optimization type %q", opts.OptimizationType)
	}
}

func (o *Optimizer) emitCompleted(runID string, result *OptimizationResult, start time.Time) {
	o.events.EmitTyped("optimization", &events.OptimizationCompletedData{
		RunID:            runID,
		OptimizationType: string(result.OptimizationType),
		Assets:           len(result.Weights),
		ExpectedReturn:   result.ExpectedReturn,
		Volatility:       result.ExpectedVolatility,
		SharpeRatio:      result.SharpeRatio,
		Converged:        result.Converged,
		FromCache:        result.FromCache,
		DurationMs:       time.Since(start).Milliseconds(),
	})
}

// requestKey builds the deterministic cache key for a full request:
// symbols plus a canonical rendering of constraints and options.
func (o *Optimizer) requestKey(assets []AssetData, constraints *OptimizationConstraints, opts Options) string {
	symbols := make([]string, len(assets))
	for i, asset := range assets {
		symbols[i] = asset.Symbol
	}
	return calculations.KeyForSymbols(symbols, canonicalConstraints(constraints), canonicalOptions(opts))
}

func canonicalConstraints(c *OptimizationConstraints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "min=%g,max=%g", c.MinWeight, c.MaxWeight)
	if c.TargetReturn != nil {
		fmt.Fprintf(&b, ",tr=%g", *c.TargetReturn)
	}
	if c.MaxRisk != nil {
		fmt.Fprintf(&b, ",mr=%g", *c.MaxRisk)
	}
	if c.MinReturnThreshold != nil {
		fmt.Fprintf(&b, ",mrt=%g", *c.MinReturnThreshold)
	}
	if len(c.SectorLimits) > 0 {
		sectors := make([]string, 0, len(c.SectorLimits))
		for sector := range c.SectorLimits {
			sectors = append(sectors, sector)
		}
		sort.Strings(sectors)
		for _, sector := range sectors {
			fmt.Fprintf(&b, ",sl[%s]=%g", sector, c.SectorLimits[sector])
		}
	}
	return b.String()
}

func canonicalOptions(o Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "type=%s,lb=%d,td=%d,rf=%g,l2=%g,mi=%d,ct=%g,fp=%d,rm=%s,if=%t",
		o.OptimizationType, o.LookbackPeriod, o.TradingDaysPerYear, o.RiskFreeRate,
		o.L2Regularization, o.MaxIterations, o.ConvergenceThreshold, o.FrontierPoints,
		o.ReturnMethod, o.includeFrontier())
	if len(o.BenchmarkReturns) > 0 {
		fmt.Fprintf(&b, ",bench=%d", len(o.BenchmarkReturns))
	}
	return b.String()
}

// screenByReturn drops assets whose annualized expected return falls below
// the threshold. Dropped assets keep their zero entry in the result weights.
func screenByReturn(assets []AssetData, mu []float64, threshold *float64) ([]AssetData, []float64) {
	if threshold == nil {
		return assets, mu
	}
	survivors := make([]AssetData, 0, len(assets))
	muS := make([]float64, 0, len(mu))
	for i, asset := range assets {
		if mu[i] >= *threshold {
			survivors = append(survivors, asset)
			muS = append(muS, mu[i])
		}
	}
	return survivors, muS
}

func checkSymbolsUnique(assets []AssetData) error {
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		if _, dup := seen[asset.Symbol]; dup {
			return fmt.Errorf("duplicate asset symbol %q", asset.Symbol)
		}
		seen[asset.Symbol] = struct{}{}
	}
	return nil
}

// drawdownPercent converts the fractional max drawdown to a percentage.
func drawdownPercent(returns []float64) *float64 {
	dd := formulas.CalculateMaxDrawdownFromReturns(returns)
	if dd == nil {
		return nil
	}
	pct := *dd * 100
	return &pct
}

// informationRatio measures annualized active return per unit of tracking
// error against a benchmark series. Nil without a benchmark or when the
// tracking error is zero.
func informationRatio(portfolio, benchmark []float64, periodsPerYear int) *float64 {
	if len(benchmark) == 0 {
		return nil
	}
	n := len(portfolio)
	if len(benchmark) < n {
		n = len(benchmark)
	}
	if n < 2 {
		return nil
	}

	pTail := portfolio[len(portfolio)-n:]
	bTail := benchmark[len(benchmark)-n:]
	active := make([]float64, n)
	for i := range active {
		active[i] = pTail[i] - bTail[i]
	}

	trackingError := formulas.StdDev(active)
	if trackingError == 0 {
		return nil
	}
	ir := formulas.Mean(active) / trackingError * math.Sqrt(float64(periodsPerYear))
	return &ir
}

func closedOrNumerical(numerical bool) float64 {
	if numerical {
		return solveFactorNumerical
	}
	return solveFactorClosedForm
}
