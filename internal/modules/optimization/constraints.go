package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ValidateConstraints rejects constraint sets that violate the caller
// contract. Feasibility against the data is not checked here; an infeasible
// but well-formed box degrades to a fallback allocation during the solve.
func ValidateConstraints(c *OptimizationConstraints) error {
	if c == nil {
		return nil
	}
	if c.MinWeight < 0 {
		return fmt.Errorf("%w: min_weight %.4f is negative", ErrInvalidConstraint, c.MinWeight)
	}
	if c.MaxWeight > 1 {
		return fmt.Errorf("%w: max_weight %.4f exceeds 1", ErrInvalidConstraint, c.MaxWeight)
	}
	if c.MinWeight > c.MaxWeight {
		return fmt.Errorf("%w: min_weight %.4f exceeds max_weight %.4f", ErrInvalidConstraint, c.MinWeight, c.MaxWeight)
	}
	for sector, limit := range c.SectorLimits {
		if limit < 0 || limit > 1 {
			return fmt.Errorf("%w: sector limit %.4f for %q outside [0,1]", ErrInvalidConstraint, limit, sector)
		}
	}
	if c.MaxRisk != nil && *c.MaxRisk < 0 {
		return fmt.Errorf("%w: max_risk %.4f is negative", ErrInvalidConstraint, *c.MaxRisk)
	}
	return nil
}

// buildBounds expands the box constraints to per-asset bound vectors.
func buildBounds(c *OptimizationConstraints, n int) (lower, upper []float64) {
	lower = make([]float64, n)
	upper = make([]float64, n)
	for i := 0; i < n; i++ {
		lower[i] = c.MinWeight
		upper[i] = c.MaxWeight
	}
	return lower, upper
}

// feasibleStart returns the closest feasible allocation to equal weights:
// the projection of 1/n onto the box-constrained simplex. Falls back to plain
// equal weights when the box cannot contain a full-investment vector.
func feasibleStart(lower, upper []float64) []float64 {
	n := len(lower)
	if w, ok := projectToSimplexBox(equalWeights(n), lower, upper); ok {
		return w
	}
	return equalWeights(n)
}

// sectorWeights aggregates a dense weight vector by sector. Assets without a
// sector are skipped.
func sectorWeights(w []float64, assets []AssetData) map[string]float64 {
	sums := make(map[string]float64)
	for i, asset := range assets {
		if asset.Sector == "" {
			continue
		}
		sums[asset.Sector] += w[i]
	}
	return sums
}

// sectorsWithinLimits reports whether every sector aggregate respects its
// limit, with floating point slack.
func sectorsWithinLimits(w []float64, assets []AssetData, limits map[string]float64) bool {
	if len(limits) == 0 {
		return true
	}
	sums := sectorWeights(w, assets)
	for sector, sum := range sums {
		if limit, ok := limits[sector]; ok && sum > limit+boxTolerance {
			return false
		}
	}
	return true
}

// applyConstraints enforces the box and sector limits on a weight vector:
// clamp each weight to its bounds, scale down any sector exceeding its limit
// proportionally, then renormalize to full investment. Renormalization can
// push weights back over a bound, so the pass repeats until it reaches a
// fixed point. A total that collapses to zero falls back to equal allocation.
func applyConstraints(w []float64, assets []AssetData, c *OptimizationConstraints) []float64 {
	n := len(w)
	out := make([]float64, n)
	copy(out, w)

	for pass := 0; pass < 50; pass++ {
		prev := make([]float64, n)
		copy(prev, out)

		for i := range out {
			if out[i] < c.MinWeight {
				out[i] = c.MinWeight
			}
			if out[i] > c.MaxWeight {
				out[i] = c.MaxWeight
			}
		}

		if len(c.SectorLimits) > 0 {
			sums := sectorWeights(out, assets)
			for i, asset := range assets {
				if asset.Sector == "" {
					continue
				}
				limit, ok := c.SectorLimits[asset.Sector]
				if !ok {
					continue
				}
				if sum := sums[asset.Sector]; sum > limit && sum > 0 {
					out[i] *= limit / sum
				}
			}
		}

		total := floats.Sum(out)
		if total < epsDegenerate {
			return equalWeights(n)
		}
		floats.Scale(1/total, out)

		var maxDelta float64
		for i := range out {
			if d := math.Abs(out[i] - prev[i]); d > maxDelta {
				maxDelta = d
			}
		}
		if maxDelta < 1e-9 {
			break
		}
	}
	return out
}

// AggregateBySector sums portfolio weights by sector using the sector tags
// from the asset list. Assets without a sector are grouped under "other".
func AggregateBySector(weights map[string]float64, assets []AssetData) map[string]float64 {
	out := make(map[string]float64)
	for _, asset := range assets {
		w, ok := weights[asset.Symbol]
		if !ok {
			continue
		}
		sector := asset.Sector
		if sector == "" {
			sector = "other"
		}
		out[sector] += w
	}
	return out
}
