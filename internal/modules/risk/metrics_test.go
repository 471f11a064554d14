package risk

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ballast/internal/modules/optimization"
	"github.com/aristath/ballast/pkg/formulas"
)

func syntheticReturns(n int, drift, amp, freq, phase float64) []float64 {
	returns := make([]float64, n)
	for i := range returns {
		returns[i] = drift + amp*math.Sin(freq*float64(i)+phase)
	}
	return returns
}

func twoAssets(n int) []optimization.AssetData {
	return []optimization.AssetData{
		{Symbol: "XXX", Sector: "tech", Returns: syntheticReturns(n, 0.0004, 0.010, 0.9, 0.0)},
		{Symbol: "YYY", Sector: "finance", Returns: syntheticReturns(n, 0.0002, 0.006, 1.3, 2.1)},
	}
}

func testCalculator(t *testing.T) *MetricsCalculator {
	t.Helper()
	return NewMetricsCalculator(nil, nil, optimization.DefaultOptions(), zerolog.Nop())
}

func TestComputeEmptyAssets(t *testing.T) {
	metrics := testCalculator(t).Compute(nil, nil, optimization.Options{})

	assert.Zero(t, metrics.ExpectedReturn)
	assert.Zero(t, metrics.Volatility)
	assert.Zero(t, metrics.Observations)
	assert.Empty(t, metrics.ValueAtRisk)
	assert.Empty(t, metrics.ConditionalVaR)
	assert.Nil(t, metrics.Correlations)
}

func TestComputeTailRiskOrdering(t *testing.T) {
	calc := testCalculator(t)
	metrics := calc.Compute(twoAssets(252), map[string]float64{"XXX": 0.6, "YYY": 0.4}, optimization.Options{})

	require.Len(t, metrics.ValueAtRisk, 2)
	require.Len(t, metrics.ConditionalVaR, 2)

	var95 := metrics.ValueAtRisk["0.95"]
	var99 := metrics.ValueAtRisk["0.99"]
	cvar95 := metrics.ConditionalVaR["0.95"]
	cvar99 := metrics.ConditionalVaR["0.99"]

	assert.Greater(t, var95, 0.0)
	assert.GreaterOrEqual(t, var99, var95, "the loss at 99 must be at least the loss at 95")
	assert.GreaterOrEqual(t, cvar95, var95, "expected shortfall is at least the quantile loss")
	assert.GreaterOrEqual(t, cvar99, var99)
}

func TestComputeSingleAssetMatchesFormulas(t *testing.T) {
	series := syntheticReturns(252, 0.0004, 0.010, 0.9, 0.0)
	assets := []optimization.AssetData{{Symbol: "XXX", Returns: series}}
	opts := optimization.Options{L2Regularization: 1e-12}

	metrics := testCalculator(t).Compute(assets, map[string]float64{"XXX": 1.0}, opts)

	wantReturn := formulas.CalculateAnnualReturn(series, 252) * 100
	wantVol := formulas.AnnualizedVolatility(series, 252) * 100
	assert.InDelta(t, wantReturn, metrics.ExpectedReturn, 1e-9)
	assert.InDelta(t, wantVol, metrics.Volatility, 1e-4)
	assert.InDelta(t, wantReturn-2.0, metrics.ExcessReturn, 1e-9)
	assert.InDelta(t, metrics.ExcessReturn/metrics.Volatility, metrics.SharpeRatio, 1e-9)
	assert.Equal(t, 252, metrics.Observations)

	require.NotNil(t, metrics.MaxDrawdown)
	assert.Greater(t, *metrics.MaxDrawdown, 0.0)
	require.NotNil(t, metrics.SortinoRatio)
}

func TestComputeBenchmarkRegression(t *testing.T) {
	series := syntheticReturns(252, 0.0004, 0.010, 0.9, 0.0)
	assets := []optimization.AssetData{{Symbol: "XXX", Returns: series}}
	weights := map[string]float64{"XXX": 1.0}

	t.Run("self benchmark", func(t *testing.T) {
		opts := optimization.Options{BenchmarkReturns: series}
		metrics := testCalculator(t).Compute(assets, weights, opts)

		require.NotNil(t, metrics.Beta)
		require.NotNil(t, metrics.Alpha)
		assert.InDelta(t, 1.0, *metrics.Beta, 1e-9)
		assert.InDelta(t, 0.0, *metrics.Alpha, 1e-9)
	})

	t.Run("leveraged benchmark", func(t *testing.T) {
		doubled := make([]float64, len(series))
		for i, r := range series {
			doubled[i] = 2 * r
		}
		opts := optimization.Options{BenchmarkReturns: doubled}
		metrics := testCalculator(t).Compute(assets, weights, opts)

		require.NotNil(t, metrics.Beta)
		assert.InDelta(t, 0.5, *metrics.Beta, 1e-9)
		assert.InDelta(t, 0.0, *metrics.Alpha, 1e-9)
	})

	t.Run("no benchmark", func(t *testing.T) {
		metrics := testCalculator(t).Compute(assets, weights, optimization.Options{})
		assert.Nil(t, metrics.Beta)
		assert.Nil(t, metrics.Alpha)
	})

	t.Run("flat benchmark", func(t *testing.T) {
		flat := make([]float64, len(series))
		opts := optimization.Options{BenchmarkReturns: flat}
		metrics := testCalculator(t).Compute(assets, weights, opts)
		assert.Nil(t, metrics.Beta)
		assert.Nil(t, metrics.Alpha)
	})
}

func TestComputeCorrelationMatrix(t *testing.T) {
	base := syntheticReturns(252, 0.0004, 0.010, 0.9, 0.0)
	scaled := make([]float64, len(base))
	for i, r := range base {
		scaled[i] = 0.5 * r
	}
	assets := []optimization.AssetData{
		{Symbol: "XXX", Returns: base},
		{Symbol: "SCL", Returns: scaled},
		{Symbol: "YYY", Returns: syntheticReturns(252, 0.0002, 0.006, 1.3, 2.1)},
	}
	weights := map[string]float64{"XXX": 0.4, "SCL": 0.3, "YYY": 0.3}

	metrics := testCalculator(t).Compute(assets, weights, optimization.Options{})

	corr := metrics.Correlations
	require.NotNil(t, corr)
	assert.Equal(t, []string{"XXX", "SCL", "YYY"}, corr.Symbols)

	for i := range corr.Values {
		assert.InDelta(t, 1.0, corr.Values[i][i], 1e-12)
	}
	assert.InDelta(t, 1.0, corr.Values[0][1], 1e-9, "a scaled copy is perfectly correlated")
	assert.Equal(t, corr.Values[0][1], corr.Values[1][0])
	assert.Less(t, math.Abs(corr.Values[0][2]), 0.5)
}

func TestComputeMonteCarloCVaR(t *testing.T) {
	series := syntheticReturns(252, 0.0003, 0.010, 0.9, 0.0)
	assets := []optimization.AssetData{{Symbol: "XXX", Returns: series}}

	metrics := testCalculator(t).Compute(assets, map[string]float64{"XXX": 1.0}, optimization.Options{})

	mc95 := metrics.MonteCarloCVaR["0.95"]
	mc99 := metrics.MonteCarloCVaR["0.99"]
	hist95 := metrics.ConditionalVaR["0.95"]

	assert.Greater(t, mc95, 0.0)
	assert.Greater(t, mc99, mc95)
	// The simulated estimate assumes normality, so it only roughly agrees
	// with the historical tail.
	assert.Greater(t, mc95, 0.3*hist95)
	assert.Less(t, mc95, 5.0*hist95)
}

func TestComputeMissingWeightIsZero(t *testing.T) {
	calc := testCalculator(t)
	assets := twoAssets(252)

	partial := calc.Compute(assets, map[string]float64{"XXX": 1.0}, optimization.Options{})
	solo := calc.Compute(assets[:1], map[string]float64{"XXX": 1.0}, optimization.Options{})

	assert.InDelta(t, solo.ExpectedReturn, partial.ExpectedReturn, 1e-9)
	assert.InDelta(t, solo.Volatility, partial.Volatility, 1e-9)
}

func TestLossPercent(t *testing.T) {
	annualize := math.Sqrt(252.0) * 100

	assert.InDelta(t, 0.01*annualize, lossPercent(-0.01, annualize), 1e-12)
	assert.Zero(t, lossPercent(0.02, annualize), "a tail gain is not a loss")
	assert.Zero(t, lossPercent(0.0, annualize))
}
