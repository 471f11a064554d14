package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConstraints(t *testing.T) {
	tests := []struct {
		name        string
		constraints *OptimizationConstraints
		wantErr     bool
	}{
		{name: "nil", constraints: nil},
		{name: "defaults", constraints: DefaultConstraints()},
		{name: "tight box", constraints: &OptimizationConstraints{MinWeight: 0.05, MaxWeight: 0.5}},
		{name: "min above max", constraints: &OptimizationConstraints{MinWeight: 0.6, MaxWeight: 0.4}, wantErr: true},
		{name: "negative min", constraints: &OptimizationConstraints{MinWeight: -0.1, MaxWeight: 0.5}, wantErr: true},
		{name: "max above one", constraints: &OptimizationConstraints{MinWeight: 0, MaxWeight: 1.5}, wantErr: true},
		{name: "sector limit above one", constraints: &OptimizationConstraints{MaxWeight: 1, SectorLimits: map[string]float64{"tech": 1.5}}, wantErr: true},
		{name: "negative sector limit", constraints: &OptimizationConstraints{MaxWeight: 1, SectorLimits: map[string]float64{"tech": -0.1}}, wantErr: true},
		{name: "negative max risk", constraints: &OptimizationConstraints{MaxWeight: 1, MaxRisk: f64(-5)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConstraints(tt.constraints)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConstraint)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestApplyConstraintsClampsAndRenormalizes(t *testing.T) {
	assets := fourAssets(60)
	c := &OptimizationConstraints{MinWeight: 0.1, MaxWeight: 0.4}

	out := applyConstraints([]float64{0.8, 0.15, 0.05, 0.0}, assets, c)

	var sum float64
	for _, w := range out {
		sum += w
		assert.GreaterOrEqual(t, w, 0.1-1e-9)
		assert.LessOrEqual(t, w, 0.4+1e-9)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestApplyConstraintsSectorCapHolds(t *testing.T) {
	assets := fourAssets(60)
	c := &OptimizationConstraints{
		MinWeight:    0,
		MaxWeight:    1,
		SectorLimits: map[string]float64{"tech": 0.3},
	}

	out := applyConstraints([]float64{0.5, 0.3, 0.1, 0.1}, assets, c)

	var sum, tech float64
	for i, w := range out {
		sum += w
		if assets[i].Sector == "tech" {
			tech += w
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.LessOrEqual(t, tech, 0.3+1e-6)
}

func TestApplyConstraintsCollapseFallsBackToEqual(t *testing.T) {
	assets := fourAssets(60)[:3]
	c := &OptimizationConstraints{MinWeight: 0, MaxWeight: 1}

	out := applyConstraints([]float64{0, 0, 0}, assets, c)
	for _, w := range out {
		assert.InDelta(t, 1.0/3.0, w, 1e-9)
	}
}

func TestApplyConstraintsInfeasibleBoxEndsAtEqual(t *testing.T) {
	assets := fourAssets(60)[:2]
	// Two assets capped at 0.4 cannot sum to 1; the equal split is the
	// documented fallback even though it breaches the cap.
	c := &OptimizationConstraints{MinWeight: 0, MaxWeight: 0.4}

	out := applyConstraints([]float64{0.9, 0.1}, assets, c)
	assert.InDelta(t, 0.5, out[0], 1e-6)
	assert.InDelta(t, 0.5, out[1], 1e-6)
}

func TestAggregateBySector(t *testing.T) {
	assets := fourAssets(60)
	assets = append(assets, AssetData{Symbol: "EEE", Returns: syntheticReturns(60, 0.0001, 0.005, 1.5, 0.4)})

	weights := map[string]float64{"AAA": 0.3, "BBB": 0.2, "CCC": 0.2, "DDD": 0.2, "EEE": 0.1}
	bySector := AggregateBySector(weights, assets)

	assert.InDelta(t, 0.5, bySector["tech"], 1e-9)
	assert.InDelta(t, 0.4, bySector["finance"], 1e-9)
	assert.InDelta(t, 0.1, bySector["other"], 1e-9)

	var total float64
	for _, v := range bySector {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestFeasibleStart(t *testing.T) {
	t.Run("uniform inside box", func(t *testing.T) {
		lower := []float64{0.1, 0.1, 0.1, 0.1}
		upper := []float64{0.4, 0.4, 0.4, 0.4}
		w := feasibleStart(lower, upper)
		for _, v := range w {
			assert.InDelta(t, 0.25, v, 1e-9)
		}
	})

	t.Run("infeasible box falls back to equal", func(t *testing.T) {
		lower := []float64{0, 0, 0, 0}
		upper := []float64{0.2, 0.2, 0.2, 0.2}
		w := feasibleStart(lower, upper)
		for _, v := range w {
			assert.InDelta(t, 0.25, v, 1e-9)
		}
	})
}

func TestSectorsWithinLimits(t *testing.T) {
	assets := fourAssets(60)
	limits := map[string]float64{"tech": 0.5}

	assert.True(t, sectorsWithinLimits([]float64{0.25, 0.25, 0.25, 0.25}, assets, limits))
	assert.False(t, sectorsWithinLimits([]float64{0.4, 0.2, 0.2, 0.2}, assets, limits))
	assert.True(t, sectorsWithinLimits([]float64{0.4, 0.2, 0.2, 0.2}, assets, nil))
}
