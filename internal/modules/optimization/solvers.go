package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	// penaltyWeight scales the quadratic penalties that enforce the budget
	// and target-return equalities in the numerical solver.
	penaltyWeight = 1000.0

	// epsDegenerate guards divisions in the closed-form solutions.
	epsDegenerate = 1e-12

	// boxTolerance is the slack allowed when testing a closed-form solution
	// against the weight bounds.
	boxTolerance = 1e-8
)

// feasibilityCheck reports whether a weight vector satisfies the caller's
// constraints. Used to accept or reject closed-form solutions.
type feasibilityCheck func(w []float64) bool

// choleskyFactor factorizes the covariance matrix, reporting numerical
// instability when it is not positive definite.
func choleskyFactor(sigma *mat.SymDense) (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if !chol.Factorize(sigma) {
		return nil, fmt.Errorf("%w: covariance matrix is not positive definite", ErrNumericalInstability)
	}
	return &chol, nil
}

// solveSPD solves sigma * x = b through an existing Cholesky factorization.
func solveSPD(chol *mat.Cholesky, b []float64) ([]float64, error) {
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, mat.NewVecDense(len(b), b)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNumericalInstability, err)
	}
	out := make([]float64, len(b))
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

// minVarianceClosedForm solves the unconstrained global minimum variance
// portfolio: w proportional to inverse(sigma) * 1.
func minVarianceClosedForm(sigma *mat.SymDense) ([]float64, error) {
	chol, err := choleskyFactor(sigma)
	if err != nil {
		return nil, err
	}
	n := sigma.SymmetricDim()
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	x, err := solveSPD(chol, ones)
	if err != nil {
		return nil, err
	}
	sum := floats.Sum(x)
	if math.Abs(sum) < epsDegenerate {
		return nil, fmt.Errorf("%w: degenerate minimum variance solution", ErrNumericalInstability)
	}
	floats.Scale(1/sum, x)
	return x, nil
}

// targetReturnClosedForm solves the two-fund Lagrangian for the minimum
// variance portfolio achieving the target expected return.
func targetReturnClosedForm(sigma *mat.SymDense, mu []float64, target float64) ([]float64, error) {
	chol, err := choleskyFactor(sigma)
	if err != nil {
		return nil, err
	}
	n := sigma.SymmetricDim()
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}

	x1, err := solveSPD(chol, ones)
	if err != nil {
		return nil, err
	}
	x2, err := solveSPD(chol, mu)
	if err != nil {
		return nil, err
	}

	a := floats.Sum(x1)
	b := floats.Sum(x2)
	c := floats.Dot(mu, x2)
	d := a*c - b*b
	if math.Abs(d) < epsDegenerate {
		return nil, fmt.Errorf("%w: degenerate target-return system", ErrNumericalInstability)
	}

	lambda := (c - b*target) / d
	gamma := (a*target - b) / d

	w := make([]float64, n)
	for i := range w {
		w[i] = lambda*x1[i] + gamma*x2[i]
	}
	return w, nil
}

// maxSharpeClosedForm solves the unconstrained tangency portfolio:
// w proportional to inverse(sigma) * (mu - rf). The risk-free rate is an
// annualized percentage like mu.
func maxSharpeClosedForm(sigma *mat.SymDense, mu []float64, riskFreePct float64) ([]float64, error) {
	chol, err := choleskyFactor(sigma)
	if err != nil {
		return nil, err
	}
	n := sigma.SymmetricDim()
	excess := make([]float64, n)
	for i := range excess {
		excess[i] = mu[i] - riskFreePct
	}
	y, err := solveSPD(chol, excess)
	if err != nil {
		return nil, err
	}
	sum := floats.Sum(y)
	if math.Abs(sum) < epsDegenerate {
		return nil, fmt.Errorf("%w: tangency portfolio has zero net exposure", ErrNumericalInstability)
	}
	floats.Scale(1/sum, y)
	return y, nil
}

// withinBox reports whether every weight lies inside its bounds, with slack
// for floating point noise.
func withinBox(w, lower, upper []float64) bool {
	for i, v := range w {
		if v < lower[i]-boxTolerance || v > upper[i]+boxTolerance {
			return false
		}
	}
	return true
}

// solveConstrained minimizes portfolio variance under the box bounds, the
// full-investment budget, and an optional target-return equality. Equalities
// enter as quadratic penalties; bounds are enforced by clamping during the
// search and an exact projection afterwards. Reports false when neither BFGS
// nor the Nelder-Mead fallback converges.
func solveConstrained(sigma *mat.SymDense, mu []float64, target *float64, lower, upper []float64) ([]float64, bool) {
	n := sigma.SymmetricDim()

	clamp := func(w []float64) []float64 {
		c := make([]float64, n)
		for i, v := range w {
			c[i] = math.Min(math.Max(v, lower[i]), upper[i])
		}
		return c
	}

	objective := func(w []float64) float64 {
		w = clamp(w)
		wv := mat.NewVecDense(n, w)
		var sw mat.VecDense
		sw.MulVec(sigma, wv)
		f := mat.Dot(wv, &sw)

		budget := floats.Sum(w) - 1
		f += penaltyWeight * budget * budget
		if target != nil {
			miss := floats.Dot(mu, w) - *target
			f += penaltyWeight * miss * miss
		}
		return f
	}

	gradient := func(grad, w []float64) {
		w = clamp(w)
		wv := mat.NewVecDense(n, w)
		var sw mat.VecDense
		sw.MulVec(sigma, wv)

		budget := floats.Sum(w) - 1
		var miss float64
		if target != nil {
			miss = floats.Dot(mu, w) - *target
		}
		for i := 0; i < n; i++ {
			grad[i] = 2*sw.AtVec(i) + 2*penaltyWeight*budget
			if target != nil {
				grad[i] += 2 * penaltyWeight * miss * mu[i]
			}
		}
	}

	problem := optimize.Problem{Func: objective, Grad: gradient}
	initial := feasibleStart(lower, upper)

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !isSuccessStatus(result.Status) {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil || !isSuccessStatus(result.Status) {
			return nil, false
		}
	}

	w, ok := projectToSimplexBox(clamp(result.X), lower, upper)
	if !ok {
		return nil, false
	}
	return w, true
}

// solveMinVariance produces minimum-variance weights: the closed form when
// it lands inside the constraints, the numerical solver otherwise. The
// second return reports whether the numerical path produced the weights.
func solveMinVariance(sigma *mat.SymDense, lower, upper []float64, feasible feasibilityCheck) ([]float64, bool, error) {
	if w, err := minVarianceClosedForm(sigma); err == nil {
		if withinBox(w, lower, upper) && (feasible == nil || feasible(w)) {
			return w, false, nil
		}
	}
	if w, ok := solveConstrained(sigma, nil, nil, lower, upper); ok {
		return w, true, nil
	}
	return nil, true, fmt.Errorf("%w: constrained minimum-variance solve did not converge", ErrNumericalInstability)
}

// solveTargetReturn produces minimum-variance weights achieving the target
// expected return, preferring the closed-form Lagrangian solution.
func solveTargetReturn(sigma *mat.SymDense, mu []float64, target float64, lower, upper []float64, feasible feasibilityCheck) ([]float64, bool, error) {
	if w, err := targetReturnClosedForm(sigma, mu, target); err == nil {
		if withinBox(w, lower, upper) && (feasible == nil || feasible(w)) {
			return w, false, nil
		}
	}
	if w, ok := solveConstrained(sigma, mu, &target, lower, upper); ok {
		return w, true, nil
	}
	return nil, true, fmt.Errorf("%w: constrained target-return solve did not converge", ErrNumericalInstability)
}

func isSuccessStatus(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	}
	return false
}

// projectToSimplexBox returns the Euclidean projection of v onto the set
// {w : lower <= w <= upper, sum(w) = 1}. The projection clamps v - tau where
// tau is found by bisection; the clamped sum is monotone nonincreasing in
// tau. Reports false when the box cannot contain a full-investment vector.
func projectToSimplexBox(v, lower, upper []float64) ([]float64, bool) {
	n := len(v)
	if floats.Sum(lower) > 1+boxTolerance || floats.Sum(upper) < 1-boxTolerance {
		return nil, false
	}

	clampedSum := func(tau float64) float64 {
		var s float64
		for i := 0; i < n; i++ {
			s += math.Min(math.Max(v[i]-tau, lower[i]), upper[i])
		}
		return s
	}

	lo, hi := -1.0, 1.0
	for clampedSum(lo) < 1 {
		lo *= 2
		if lo < -1e12 {
			return nil, false
		}
	}
	for clampedSum(hi) > 1 {
		hi *= 2
		if hi > 1e12 {
			return nil, false
		}
	}
	for iter := 0; iter < 100; iter++ {
		mid := (lo + hi) / 2
		if clampedSum(mid) > 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	tau := (lo + hi) / 2

	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = math.Min(math.Max(v[i]-tau, lower[i]), upper[i])
	}

	// Spread the bisection residual across coordinates that are strictly
	// inside their bounds so the sum is exact.
	residual := 1 - floats.Sum(w)
	if residual != 0 {
		var free []int
		for i := range w {
			if w[i] > lower[i]+epsDegenerate && w[i] < upper[i]-epsDegenerate {
				free = append(free, i)
			}
		}
		if len(free) > 0 {
			share := residual / float64(len(free))
			for _, i := range free {
				w[i] += share
			}
		}
	}
	return w, true
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

// portfolioReturn is the annualized percent expected return of the weights.
func portfolioReturn(mu, w []float64) float64 {
	return floats.Dot(mu, w)
}

// portfolioVolatility is the annualized percent volatility sqrt(w' sigma w).
func portfolioVolatility(sigma *mat.SymDense, w []float64) float64 {
	wv := mat.NewVecDense(len(w), w)
	var sw mat.VecDense
	sw.MulVec(sigma, wv)
	variance := mat.Dot(wv, &sw)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// sharpeRatio computes (return - rf) / volatility, zero when volatility is
// zero. All inputs are annualized percentages.
func sharpeRatio(ret, vol, riskFreePct float64) float64 {
	if vol <= 0 {
		return 0
	}
	return (ret - riskFreePct) / vol
}
