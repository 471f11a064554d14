package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMinVarianceClosedForm(t *testing.T) {
	// Independent assets with variances 4 and 1: weights proportional to
	// inverse variance.
	sigma := mat.NewSymDense(2, []float64{4, 0, 0, 1})

	w, err := minVarianceClosedForm(sigma)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, w[0], 1e-9)
	assert.InDelta(t, 0.8, w[1], 1e-9)
}

func TestMaxSharpeClosedForm(t *testing.T) {
	sigma := mat.NewSymDense(2, []float64{4, 0, 0, 1})
	mu := []float64{10, 8}

	w, err := maxSharpeClosedForm(sigma, mu, 2.0)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, w[0], 1e-9)
	assert.InDelta(t, 0.75, w[1], 1e-9)
}

func TestTargetReturnClosedFormMatchesTangency(t *testing.T) {
	// The tangency portfolio lies on the frontier, so solving for its
	// return must reproduce it.
	sigma := mat.NewSymDense(2, []float64{4, 0, 0, 1})
	mu := []float64{10, 8}

	w, err := targetReturnClosedForm(sigma, mu, 8.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, w[0], 1e-9)
	assert.InDelta(t, 0.75, w[1], 1e-9)
	assert.InDelta(t, 8.5, portfolioReturn(mu, w), 1e-9)
}

func TestCholeskyRejectsIndefiniteMatrix(t *testing.T) {
	// Eigenvalues 3 and -1: not positive definite.
	sigma := mat.NewSymDense(2, []float64{1, 2, 2, 1})

	_, err := choleskyFactor(sigma)
	require.ErrorIs(t, err, ErrNumericalInstability)
}

func TestSolveConstrainedRespectsBoundsAndBudget(t *testing.T) {
	sigma := mat.NewSymDense(2, []float64{4, 0, 0, 1})
	mu := []float64{10, 8}
	target := 8.5
	lower := []float64{0.3, 0.3}
	upper := []float64{0.7, 0.7}

	w, ok := solveConstrained(sigma, mu, &target, lower, upper)
	require.True(t, ok)

	var sum float64
	for i, v := range w {
		sum += v
		assert.GreaterOrEqual(t, v, lower[i]-1e-6)
		assert.LessOrEqual(t, v, upper[i]+1e-6)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.InDelta(t, target, portfolioReturn(mu, w), 0.5)
}

func TestProjectToSimplexBox(t *testing.T) {
	t.Run("uniform excess is shared", func(t *testing.T) {
		w, ok := projectToSimplexBox([]float64{0.5, 0.5, 0.5}, []float64{0, 0, 0}, []float64{1, 1, 1})
		require.True(t, ok)
		for _, v := range w {
			assert.InDelta(t, 1.0/3.0, v, 1e-9)
		}
	})

	t.Run("tight box", func(t *testing.T) {
		lower := []float64{0.2, 0.2, 0.2, 0.2}
		upper := []float64{0.3, 0.3, 0.3, 0.3}
		w, ok := projectToSimplexBox([]float64{0.9, 0.05, 0.03, 0.02}, lower, upper)
		require.True(t, ok)

		expected := []float64{0.3, 0.25, 0.23, 0.22}
		var sum float64
		for i, v := range w {
			sum += v
			assert.InDelta(t, expected[i], v, 1e-6)
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	})

	t.Run("infeasible box", func(t *testing.T) {
		_, ok := projectToSimplexBox([]float64{0.5, 0.5}, []float64{0, 0}, []float64{0.4, 0.4})
		assert.False(t, ok)
	})
}

func TestRiskParityEqualizesContributions(t *testing.T) {
	// Variance 4 vs 1, uncorrelated: risk parity puts 1/3 on the riskier
	// asset and 2/3 on the calmer one.
	sigma := mat.NewSymDense(2, []float64{4, 0, 0, 1})

	w, converged, _ := riskParityWeights(sigma, []float64{0, 0}, []float64{1, 1}, 100, 1e-6)
	require.True(t, converged)
	assert.InDelta(t, 1.0/3.0, w[0], 1e-3)
	assert.InDelta(t, 2.0/3.0, w[1], 1e-3)

	contrib := riskContributions(sigma, w)
	assert.InDelta(t, contrib[0], contrib[1], 1e-3)
}

func TestRiskParitySingleIterationOnEqualRisk(t *testing.T) {
	sigma := mat.NewSymDense(3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})

	w, converged, iterations := riskParityWeights(sigma, []float64{0, 0, 0}, []float64{1, 1, 1}, 100, 1e-6)
	require.True(t, converged)
	assert.Equal(t, 1, iterations)
	for _, v := range w {
		assert.InDelta(t, 1.0/3.0, v, 1e-9)
	}
}
