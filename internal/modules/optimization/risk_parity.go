package optimization

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// riskContributions returns each asset's contribution to portfolio variance:
// w_i * (sigma w)_i. The contributions sum to w' sigma w.
func riskContributions(sigma *mat.SymDense, w []float64) []float64 {
	n := len(w)
	wv := mat.NewVecDense(n, w)
	var sw mat.VecDense
	sw.MulVec(sigma, wv)

	contrib := make([]float64, n)
	for i := 0; i < n; i++ {
		contrib[i] = w[i] * sw.AtVec(i)
	}
	return contrib
}

// riskParityWeights iterates multiplicative updates until every asset
// contributes an equal share of portfolio variance. Each step rescales
// weights by the square root of target share over actual contribution,
// clamps to the box, and renormalizes to full investment. The square root
// damps the update; the undamped ratio oscillates between two allocations
// for uncorrelated assets instead of settling. Converges when the largest
// weight change drops below the threshold.
func riskParityWeights(sigma *mat.SymDense, lower, upper []float64, maxIterations int, convergenceThreshold float64) ([]float64, bool, int) {
	n := sigma.SymmetricDim()
	w := equalWeights(n)

	for iter := 1; iter <= maxIterations; iter++ {
		contrib := riskContributions(sigma, w)
		totalVar := floats.Sum(contrib)
		if totalVar < epsDegenerate {
			return w, true, iter
		}
		targetShare := totalVar / float64(n)

		next := make([]float64, n)
		for i := 0; i < n; i++ {
			if contrib[i] < epsDegenerate {
				next[i] = w[i]
				continue
			}
			next[i] = w[i] * math.Sqrt(targetShare/contrib[i])
		}
		for i := 0; i < n; i++ {
			next[i] = math.Min(math.Max(next[i], lower[i]), upper[i])
		}
		sum := floats.Sum(next)
		if sum < epsDegenerate {
			return equalWeights(n), false, iter
		}
		floats.Scale(1/sum, next)

		var maxDelta float64
		for i := 0; i < n; i++ {
			if d := math.Abs(next[i] - w[i]); d > maxDelta {
				maxDelta = d
			}
		}
		w = next
		if maxDelta < convergenceThreshold {
			return w, true, iter
		}
	}
	return w, false, maxIterations
}
