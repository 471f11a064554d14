package optimization

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ballast/internal/database"
	"github.com/aristath/ballast/internal/modules/calculations"
)

// syntheticReturns builds a deterministic daily return series oscillating
// around a drift. Different frequencies keep assets decorrelated.
func syntheticReturns(n int, drift, amp, freq, phase float64) []float64 {
	returns := make([]float64, n)
	for i := range returns {
		returns[i] = drift + amp*math.Sin(freq*float64(i)+phase)
	}
	return returns
}

// fourAssets is a small diversified universe with distinct drifts, risk
// levels, and sectors.
func fourAssets(n int) []AssetData {
	return []AssetData{
		{Symbol: "AAA", Sector: "tech", Returns: syntheticReturns(n, 0.0008, 0.012, 0.9, 0.0)},
		{Symbol: "BBB", Sector: "tech", Returns: syntheticReturns(n, 0.0005, 0.009, 0.7, 1.3)},
		{Symbol: "CCC", Sector: "finance", Returns: syntheticReturns(n, 0.0003, 0.006, 1.1, 2.6)},
		{Symbol: "DDD", Sector: "finance", Returns: syntheticReturns(n, 0.0002, 0.004, 1.3, 3.9)},
	}
}

func testOptimizer(t *testing.T) *Optimizer {
	t.Helper()
	return NewOptimizer(nil, nil, DefaultOptions(), zerolog.Nop())
}

func testOptimizerWithCache(t *testing.T) *Optimizer {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache, err := calculations.NewCache(db, zerolog.Nop())
	require.NoError(t, err)
	return NewOptimizer(cache, nil, DefaultOptions(), zerolog.Nop())
}

func sumWeights(weights map[string]float64) float64 {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	return sum
}

func f64(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }
