package optimization

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type frontierJob struct {
	index  int
	target float64
}

type frontierResult struct {
	index int
	point FrontierPoint
	ok    bool
}

// frontierTargets spans the achievable return range: equally spaced targets
// between the lowest and highest per-asset annualized return.
func frontierTargets(mu []float64, points int) []float64 {
	if len(mu) == 0 || points < 1 {
		return nil
	}
	lo, hi := floats.Min(mu), floats.Max(mu)
	if points == 1 || hi-lo < epsDegenerate {
		return []float64{lo}
	}
	targets := make([]float64, points)
	step := (hi - lo) / float64(points-1)
	for i := range targets {
		targets[i] = lo + float64(i)*step
	}
	return targets
}

// generateFrontier traces the risk/return curve by solving the target-return
// problem at each of the spaced targets, in parallel across a bounded worker
// pool. Targets that fail to solve are dropped; the returned points keep
// target order. Cancelling the context stops the sweep early.
func generateFrontier(ctx context.Context, sigma *mat.SymDense, mu []float64, assets []AssetData, constraints *OptimizationConstraints, opts Options, ix *assetIndex) []FrontierPoint {
	targets := frontierTargets(mu, opts.FrontierPoints)
	if len(targets) == 0 {
		return nil
	}

	lower, upper := buildBounds(constraints, ix.n())
	feasible := func(w []float64) bool {
		return sectorsWithinLimits(w, assets, constraints.SectorLimits)
	}
	riskFreePct := opts.RiskFreeRate * 100

	workers := opts.FrontierWorkers
	if workers > len(targets) {
		workers = len(targets)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan frontierJob)
	results := make(chan frontierResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					results <- frontierResult{index: job.index}
					continue
				}
				point, ok := solveFrontierPoint(sigma, mu, assets, constraints, opts, ix, lower, upper, feasible, riskFreePct, job.target)
				results <- frontierResult{index: job.index, point: point, ok: ok}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, target := range targets {
			select {
			case <-ctx.Done():
				return
			case jobs <- frontierJob{index: i, target: target}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*FrontierPoint, len(targets))
	for res := range results {
		if res.ok {
			point := res.point
			ordered[res.index] = &point
		}
	}

	out := make([]FrontierPoint, 0, len(targets))
	for _, point := range ordered {
		if point != nil {
			out = append(out, *point)
		}
	}
	return out
}

// solveFrontierPoint solves one target and evaluates the constrained weights.
func solveFrontierPoint(sigma *mat.SymDense, mu []float64, assets []AssetData, constraints *OptimizationConstraints, opts Options, ix *assetIndex, lower, upper []float64, feasible feasibilityCheck, riskFreePct, target float64) (FrontierPoint, bool) {
	w, _, err := solveTargetReturn(sigma, mu, target, lower, upper, feasible)
	if err != nil {
		return FrontierPoint{}, false
	}
	w = applyConstraints(w, assets, constraints)

	ret := portfolioReturn(mu, w)
	vol := portfolioVolatility(sigma, w)
	return FrontierPoint{
		Return:      ret,
		Volatility:  vol,
		SharpeRatio: sharpeRatio(ret, vol, riskFreePct),
		Weights:     ix.toMap(w),
	}, true
}

// efficientHalf returns the frontier from the minimum-volatility point
// onward. Points below the minimum-variance return are dominated and serve
// only diagnostic display.
func efficientHalf(points []FrontierPoint) []FrontierPoint {
	if len(points) == 0 {
		return nil
	}
	minIdx := 0
	for i, p := range points {
		if p.Volatility < points[minIdx].Volatility {
			minIdx = i
		}
	}
	return points[minIdx:]
}

// maxSharpePoint picks the frontier point with the highest Sharpe ratio.
func maxSharpePoint(points []FrontierPoint) (FrontierPoint, bool) {
	if len(points) == 0 {
		return FrontierPoint{}, false
	}
	best := points[0]
	for _, p := range points[1:] {
		if p.SharpeRatio > best.SharpeRatio {
			best = p
		}
	}
	return best, true
}

// capToMaxRisk picks the highest-return point whose volatility does not
// exceed the cap. When no point qualifies, the minimum-volatility point is
// the closest achievable portfolio.
func capToMaxRisk(points []FrontierPoint, maxRisk float64) (FrontierPoint, bool) {
	if len(points) == 0 {
		return FrontierPoint{}, false
	}
	var best *FrontierPoint
	for i := range points {
		p := &points[i]
		if p.Volatility <= maxRisk {
			if best == nil || p.Return > best.Return {
				best = p
			}
		}
	}
	if best != nil {
		return *best, true
	}

	minIdx := 0
	for i, p := range points {
		if p.Volatility < points[minIdx].Volatility {
			minIdx = i
		}
	}
	return points[minIdx], true
}
